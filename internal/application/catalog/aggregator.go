// Package catalog assembles denormalized, render-ready product records
// from the external catalog store.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storegen/backend/internal/domain/catalog"
	"github.com/storegen/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Aggregator reads product, brand, category, and score records and
// shapes them into EnhancedProduct projections. The result of one Fetch
// is a job's immutable catalog snapshot (snapshot-at-start): catalog
// mutations after the fetch are invisible to the job.
type Aggregator struct {
	repo   catalog.Repository
	logger *zap.Logger
	now    func() time.Time
}

// AggregatorOption configures the aggregator
type AggregatorOption func(*Aggregator)

// WithLogger sets the logger for the aggregator
func WithLogger(logger *zap.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates a catalog aggregator
func NewAggregator(repo catalog.Repository, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		repo:   repo,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fetch returns render-ready products matching the filter, at most
// filter.MaxProducts of them. Products missing required fields (name,
// positive price, at least one image) are excluded and logged, never
// fatal to the fetch. Repeated calls with identical filters yield
// stable output absent catalog changes.
func (a *Aggregator) Fetch(ctx context.Context, filter catalog.Filter) ([]catalog.EnhancedProduct, error) {
	products, err := a.repo.FindActive(ctx, filter)
	if err != nil {
		return nil, shared.NewDomainError(shared.ErrCodeAggregation,
			fmt.Sprintf("Catalog fetch failed: %v", err))
	}

	brandIndex, err := a.loadBrands(ctx, products)
	if err != nil {
		return nil, err
	}
	categoryIndex, err := a.loadCategories(ctx)
	if err != nil {
		return nil, err
	}
	scoreIndex, err := a.loadScores(ctx, products)
	if err != nil {
		return nil, err
	}

	now := a.now()
	enhanced := make([]catalog.EnhancedProduct, 0, len(products))
	excluded := 0
	for i := range products {
		p := &products[i]
		if reason := requiredFieldsMissing(p); reason != "" {
			excluded++
			a.logger.Warn("Excluding product from aggregation",
				zap.String("product_id", p.ID.String()),
				zap.String("reason", reason),
			)
			continue
		}
		enhanced = append(enhanced, a.enhance(p, now, brandIndex, categoryIndex, scoreIndex))
		if filter.MaxProducts > 0 && len(enhanced) >= filter.MaxProducts {
			break
		}
	}
	if filter.MaxProducts == 0 {
		// A zero-product filter is a valid request for a structural-only store.
		enhanced = enhanced[:0]
	}

	a.logger.Info("Catalog aggregation complete",
		zap.Int("fetched", len(products)),
		zap.Int("enhanced", len(enhanced)),
		zap.Int("excluded", excluded),
	)
	return enhanced, nil
}

// requiredFieldsMissing returns a human-readable reason when a product
// lacks a field rendering depends on, or "" when it is usable.
func requiredFieldsMissing(p *catalog.Product) string {
	if p.Name == "" {
		return "missing name"
	}
	if p.Price.IsZero() || p.Price.IsNegative() {
		return "missing or non-positive price"
	}
	if len(p.Images()) == 0 {
		return "no image media"
	}
	return ""
}

func (a *Aggregator) enhance(
	p *catalog.Product,
	now time.Time,
	brands map[uuid.UUID]catalog.Brand,
	categories map[uuid.UUID]catalog.Category,
	scores map[uuid.UUID]map[string]float64,
) catalog.EnhancedProduct {
	ep := catalog.EnhancedProduct{
		ID:             p.ID,
		Name:           p.Name,
		Slug:           p.Slug,
		Description:    p.Description,
		Price:          p.Price.Round(2),
		EffectivePrice: p.EffectivePriceAt(now),
		Currency:       p.Currency,
		OnSale:         p.DiscountActiveAt(now),
		Scores:         scores[p.ID],
	}
	if ep.Slug == "" {
		ep.Slug = p.ID.String()
	}
	if p.BrandID != nil {
		if b, ok := brands[*p.BrandID]; ok {
			ep.Brand = &catalog.BrandInfo{ID: b.ID, Name: b.Name, Slug: b.Slug, LogoURL: b.LogoURL}
		}
	}
	if p.CategoryID != nil {
		ep.CategoryPath = resolveCategoryPath(*p.CategoryID, categories)
	}
	for _, m := range p.Media {
		ep.Assets = append(ep.Assets, catalog.AssetRef{URL: m.URL, Kind: m.Kind, AltText: m.AltText})
	}
	return ep
}

// resolveCategoryPath walks parent links to the root, returning the
// path root-first. A broken parent link truncates the path rather than
// failing the product.
func resolveCategoryPath(id uuid.UUID, categories map[uuid.UUID]catalog.Category) []catalog.CategorySegment {
	var reversed []catalog.CategorySegment
	cur := id
	for depth := 0; depth < 16; depth++ {
		c, ok := categories[cur]
		if !ok {
			break
		}
		reversed = append(reversed, catalog.CategorySegment{ID: c.ID, Name: c.Name, Slug: c.Slug})
		if c.ParentID == nil {
			break
		}
		cur = *c.ParentID
	}
	path := make([]catalog.CategorySegment, len(reversed))
	for i := range reversed {
		path[len(reversed)-1-i] = reversed[i]
	}
	return path
}

func (a *Aggregator) loadBrands(ctx context.Context, products []catalog.Product) (map[uuid.UUID]catalog.Brand, error) {
	idSet := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for i := range products {
		if products[i].BrandID != nil && !idSet[*products[i].BrandID] {
			idSet[*products[i].BrandID] = true
			ids = append(ids, *products[i].BrandID)
		}
	}
	brands, err := a.repo.FindBrands(ctx, ids)
	if err != nil {
		return nil, shared.NewDomainError(shared.ErrCodeAggregation,
			fmt.Sprintf("Brand fetch failed: %v", err))
	}
	index := make(map[uuid.UUID]catalog.Brand, len(brands))
	for _, b := range brands {
		index[b.ID] = b
	}
	return index, nil
}

func (a *Aggregator) loadCategories(ctx context.Context) (map[uuid.UUID]catalog.Category, error) {
	categories, err := a.repo.FindCategories(ctx)
	if err != nil {
		return nil, shared.NewDomainError(shared.ErrCodeAggregation,
			fmt.Sprintf("Category fetch failed: %v", err))
	}
	index := make(map[uuid.UUID]catalog.Category, len(categories))
	for _, c := range categories {
		index[c.ID] = c
	}
	return index, nil
}

func (a *Aggregator) loadScores(ctx context.Context, products []catalog.Product) (map[uuid.UUID]map[string]float64, error) {
	ids := make([]uuid.UUID, 0, len(products))
	for i := range products {
		ids = append(ids, products[i].ID)
	}
	scores, err := a.repo.FindScores(ctx, ids)
	if err != nil {
		return nil, shared.NewDomainError(shared.ErrCodeAggregation,
			fmt.Sprintf("Score fetch failed: %v", err))
	}
	index := make(map[uuid.UUID]map[string]float64)
	for _, s := range scores {
		if index[s.ProductID] == nil {
			index[s.ProductID] = make(map[string]float64)
		}
		index[s.ProductID][s.Audience] = s.Score
	}
	return index, nil
}
