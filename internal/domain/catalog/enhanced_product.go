package catalog

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BrandInfo is the resolved brand carried on an enhanced product
type BrandInfo struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Slug    string    `json:"slug"`
	LogoURL string    `json:"logo_url,omitempty"`
}

// CategorySegment is one node of a resolved category path, root first
type CategorySegment struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

// AssetRef is a raw media reference awaiting optimization
type AssetRef struct {
	URL     string    `json:"url"`
	Kind    MediaKind `json:"kind"`
	AltText string    `json:"alt_text,omitempty"`
}

// EnhancedProduct is the denormalized, render-ready projection of a
// catalog product. It is built once per generation job (snapshot-at-start)
// and never mutated afterwards.
type EnhancedProduct struct {
	ID             uuid.UUID          `json:"id"`
	Name           string             `json:"name"`
	Slug           string             `json:"slug"`
	Description    string             `json:"description,omitempty"`
	Brand          *BrandInfo         `json:"brand,omitempty"`
	CategoryPath   []CategorySegment  `json:"category_path,omitempty"`
	Price          decimal.Decimal    `json:"price"`
	EffectivePrice decimal.Decimal    `json:"effective_price"`
	Currency       string             `json:"currency"`
	OnSale         bool               `json:"on_sale"`
	Scores         map[string]float64 `json:"scores,omitempty"`
	Assets         []AssetRef         `json:"assets"`
}

// PrimaryImage returns the first image asset reference, if any
func (p *EnhancedProduct) PrimaryImage() *AssetRef {
	for i := range p.Assets {
		if p.Assets[i].Kind == MediaKindImage {
			return &p.Assets[i]
		}
	}
	return nil
}

// CategorySlugPath joins the category path slugs with "/", root first
func (p *EnhancedProduct) CategorySlugPath() string {
	path := ""
	for i, seg := range p.CategoryPath {
		if i > 0 {
			path += "/"
		}
		path += seg.Slug
	}
	return path
}
