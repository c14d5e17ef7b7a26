// Package assets converts source media into optimized variant matrices
// and publishes them to the content-distribution target.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/storegen/backend/internal/domain/generation"
	"github.com/storegen/backend/internal/domain/store"
	"github.com/storegen/backend/internal/infrastructure/cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Issue records a per-asset failure. Issues are non-fatal: one failed
// asset never blocks the rest of the batch.
type Issue struct {
	AssetID string `json:"asset_id"`
	Message string `json:"message"`
}

// Stats reports cumulative byte counters. The measurable contract is
// that OutputBytes stays materially below SourceBytes across the corpus.
type Stats struct {
	SourceBytes    int64
	OutputBytes    int64
	VariantsBuilt  int64
	VariantsReused int64
}

// Optimizer turns source assets into {format × resolution} variant
// matrices with a bounded worker pool. Variants are content-addressed:
// the cache is checked before transcoding, and a hit skips both the
// transcode and the publish.
type Optimizer struct {
	transcoder Transcoder
	publisher  Publisher
	cache      *cache.TieredCache
	logger     *zap.Logger
	workers    int
	batchSize  int

	sourceBytes    int64
	outputBytes    int64
	variantsBuilt  int64
	variantsReused int64
}

// OptimizerOption configures the optimizer
type OptimizerOption func(*Optimizer)

// WithOptimizerLogger sets the logger for the optimizer
func WithOptimizerLogger(logger *zap.Logger) OptimizerOption {
	return func(o *Optimizer) {
		o.logger = logger
	}
}

// WithWorkers bounds the transcoding concurrency
func WithWorkers(n int) OptimizerOption {
	return func(o *Optimizer) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithBatchSize sets how many assets are grouped per processing batch
func WithBatchSize(n int) OptimizerOption {
	return func(o *Optimizer) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// NewOptimizer creates an asset optimizer
func NewOptimizer(transcoder Transcoder, publisher Publisher, c *cache.TieredCache, opts ...OptimizerOption) *Optimizer {
	o := &Optimizer{
		transcoder: transcoder,
		publisher:  publisher,
		cache:      c,
		logger:     zap.NewNop(),
		workers:    8,
		batchSize:  16,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stats returns the cumulative byte and variant counters
func (o *Optimizer) Stats() Stats {
	return Stats{
		SourceBytes:    atomic.LoadInt64(&o.sourceBytes),
		OutputBytes:    atomic.LoadInt64(&o.outputBytes),
		VariantsBuilt:  atomic.LoadInt64(&o.variantsBuilt),
		VariantsReused: atomic.LoadInt64(&o.variantsReused),
	}
}

// Optimize processes the assets in fixed-size batches with a bounded
// worker pool. The returned slice holds one OptimizedAsset per source
// that produced at least one variant; per-asset failures are returned
// as issues. The only fatal error is context cancellation.
func (o *Optimizer) Optimize(ctx context.Context, assetList []store.Asset, cfg generation.OptimizationConfig) ([]store.OptimizedAsset, []Issue, error) {
	started := time.Now()

	type outcome struct {
		index int
		asset store.OptimizedAsset
		issue *Issue
	}
	outcomes := make([]outcome, len(assetList))

	for batchStart := 0; batchStart < len(assetList); batchStart += o.batchSize {
		batchEnd := batchStart + o.batchSize
		if batchEnd > len(assetList) {
			batchEnd = len(assetList)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.workers)
		var mu sync.Mutex

		for i := batchStart; i < batchEnd; i++ {
			idx := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				optimized, err := o.optimizeOne(gctx, assetList[idx], cfg)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					// Cancellation aborts the batch; anything else is per-asset.
					if gctx.Err() != nil {
						return gctx.Err()
					}
					outcomes[idx] = outcome{index: idx, issue: &Issue{
						AssetID: assetList[idx].ID,
						Message: err.Error(),
					}}
					return nil
				}
				outcomes[idx] = outcome{index: idx, asset: *optimized}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
	}

	var results []store.OptimizedAsset
	var issues []Issue
	for i := range outcomes {
		if outcomes[i].issue != nil {
			issues = append(issues, *outcomes[i].issue)
			continue
		}
		if outcomes[i].asset.Source.ID != "" {
			results = append(results, outcomes[i].asset)
		}
	}

	stats := o.Stats()
	o.logger.Info("Asset optimization complete",
		zap.Int("assets", len(assetList)),
		zap.Int("optimized", len(results)),
		zap.Int("failed", len(issues)),
		zap.Int64("variants_built", stats.VariantsBuilt),
		zap.Int64("variants_reused", stats.VariantsReused),
		zap.Duration("duration", time.Since(started)),
	)
	return results, issues, nil
}

// optimizeOne builds the full variant matrix for one source asset
func (o *Optimizer) optimizeOne(ctx context.Context, asset store.Asset, cfg generation.OptimizationConfig) (*store.OptimizedAsset, error) {
	specs := variantSpecs(asset, cfg)
	if len(specs) == 0 {
		return nil, fmt.Errorf("no configured format applies to %s assets", asset.Kind)
	}

	optimized := &store.OptimizedAsset{Source: asset}
	for _, spec := range specs {
		variant, err := o.buildVariant(ctx, asset, spec, cfg.Quality)
		if err != nil {
			return nil, fmt.Errorf("variant %s@%d: %w", spec.format, spec.width, err)
		}
		optimized.Variants = append(optimized.Variants, *variant)
	}
	return optimized, nil
}

type variantSpec struct {
	kind   store.VariantKind
	format string
	width  int
}

// variantSpecs expands the configuration into the {format × resolution}
// matrix applicable to the asset's kind, plus the placeholder variant.
// The order is deterministic: formats as configured, widths ascending.
func variantSpecs(asset store.Asset, cfg generation.OptimizationConfig) []variantSpec {
	var specs []variantSpec
	for _, format := range cfg.Formats {
		if !formatApplies(asset.Kind, format) {
			continue
		}
		for _, width := range cfg.Breakpoints {
			specs = append(specs, variantSpec{kind: store.VariantKindResponsive, format: format, width: width})
		}
	}
	if cfg.Placeholder && asset.Kind == store.AssetKindImage {
		for _, format := range cfg.Formats {
			if formatApplies(store.AssetKindImage, format) {
				specs = append(specs, variantSpec{kind: store.VariantKindPlaceholder, format: format, width: cfg.PlaceholderWidth})
				break
			}
		}
	}
	return specs
}

func formatApplies(kind store.AssetKind, format string) bool {
	switch format {
	case generation.FormatMP4, generation.FormatWebM:
		return kind == store.AssetKindVideo
	default:
		return kind == store.AssetKindImage
	}
}

// buildVariant returns the variant for one matrix cell, reusing the
// content-addressed cache when an equivalent variant already exists.
func (o *Optimizer) buildVariant(ctx context.Context, asset store.Asset, spec variantSpec, quality int) (*store.Variant, error) {
	key := VariantKey(asset.URL, spec.format, spec.width, quality)

	if cached, ok, _ := o.cache.Get(ctx, key); ok {
		var variant store.Variant
		if err := json.Unmarshal(cached, &variant); err == nil {
			atomic.AddInt64(&o.variantsReused, 1)
			return &variant, nil
		}
		// A corrupt cache entry falls through to regeneration.
		_ = o.cache.Delete(ctx, key)
	}

	result, err := o.transcoder.Transcode(ctx, TranscodeRequest{
		SourceURL: asset.URL,
		Kind:      asset.Kind,
		Format:    spec.format,
		Width:     spec.width,
		Quality:   quality,
	})
	if err != nil {
		return nil, err
	}

	objectKey := fmt.Sprintf("assets/%s/%s", key, variantFileName(asset, spec))
	url, err := o.publishWithRetry(ctx, objectKey, result.Payload, contentTypeFor(spec.format))
	if err != nil {
		return nil, err
	}

	variant := &store.Variant{
		Kind:     spec.kind,
		Format:   spec.format,
		Width:    spec.width,
		Key:      key,
		URL:      url,
		ByteSize: int64(len(result.Payload)),
	}

	atomic.AddInt64(&o.variantsBuilt, 1)
	atomic.AddInt64(&o.sourceBytes, result.SourceBytes)
	atomic.AddInt64(&o.outputBytes, variant.ByteSize)

	encoded, _ := json.Marshal(variant)
	_ = o.cache.Set(ctx, key, encoded, 0)

	return variant, nil
}

// publishWithRetry wraps the CDN publish in exponential backoff. The
// variant is not considered optimized until the publish succeeds.
func (o *Optimizer) publishWithRetry(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	var url string
	operation := func() error {
		var err error
		url, err = o.publisher.Publish(ctx, key, payload, contentType)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", fmt.Errorf("publishing variant: %w", err)
	}
	return url, nil
}

// VariantKey derives the content address of a variant: a pure function
// of (source identity, optimization parameters), which is what makes
// re-optimization idempotent.
func VariantKey(sourceURL, format string, width, quality int) string {
	payload := fmt.Sprintf("%s|%s|%d|%d", sourceURL, format, width, quality)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:16])
}

func variantFileName(asset store.Asset, spec variantSpec) string {
	return fmt.Sprintf("%s-%d.%s", asset.ID, spec.width, spec.format)
}

func contentTypeFor(format string) string {
	switch format {
	case generation.FormatWebP:
		return "image/webp"
	case generation.FormatAVIF:
		return "image/avif"
	case generation.FormatJPEG:
		return "image/jpeg"
	case generation.FormatPNG:
		return "image/png"
	case generation.FormatMP4:
		return "video/mp4"
	case generation.FormatWebM:
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}

// SortIssues orders issues by asset id for stable job error lists
func SortIssues(issues []Issue) {
	sort.Slice(issues, func(i, j int) bool { return issues[i].AssetID < issues[j].AssetID })
}
