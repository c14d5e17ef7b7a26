package store

import (
	"crypto/sha256"
	"encoding/hex"
)

// AssetKind distinguishes raster images from video sources
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

// VariantKind distinguishes responsive output variants from the
// low-resolution progressive-loading placeholder.
type VariantKind string

const (
	VariantKindResponsive  VariantKind = "responsive"
	VariantKindPlaceholder VariantKind = "placeholder"
)

// Asset is a source media descriptor referenced by a page
type Asset struct {
	// ID is the content hash of the source URL, stable across jobs.
	ID      string    `json:"id"`
	URL     string    `json:"url"`
	Kind    AssetKind `json:"kind"`
	AltText string    `json:"alt_text,omitempty"`
}

// NewAsset builds an asset descriptor with its content-addressed id
func NewAsset(url string, kind AssetKind, altText string) Asset {
	return Asset{
		ID:      AssetIDFor(url),
		URL:     url,
		Kind:    kind,
		AltText: altText,
	}
}

// AssetIDFor derives the stable id for a source URL. Identical sources
// share one id across jobs, which is what makes optimized variants
// shareable through the cache.
func AssetIDFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:8])
}

// Variant is one derived output of an asset: a (format, width) cell of
// the optimization matrix, content-addressed by source and config.
type Variant struct {
	Kind     VariantKind `json:"kind"`
	Format   string      `json:"format"`
	Width    int         `json:"width"`
	Key      string      `json:"key"`
	URL      string      `json:"url"`
	ByteSize int64       `json:"byte_size"`
}

// OptimizedAsset is an immutable set of variants derived from one source
// asset. It is shareable across jobs: the variant keys are pure functions
// of (source identity, optimization config).
type OptimizedAsset struct {
	Source   Asset     `json:"source"`
	Variants []Variant `json:"variants"`
}

// Placeholder returns the placeholder variant, if one was produced
func (a *OptimizedAsset) Placeholder() *Variant {
	for i := range a.Variants {
		if a.Variants[i].Kind == VariantKindPlaceholder {
			return &a.Variants[i]
		}
	}
	return nil
}

// TotalBytes sums the byte sizes of all variants
func (a *OptimizedAsset) TotalBytes() int64 {
	var total int64
	for _, v := range a.Variants {
		total += v.ByteSize
	}
	return total
}
