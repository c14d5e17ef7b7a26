package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows the catalog slice a generation job reads. MaxProducts
// bounds the number of products after exclusion of malformed records;
// zero means "no products" and is a valid, successful request.
type Filter struct {
	BrandIDs    []uuid.UUID `json:"brand_ids,omitempty"`
	CategoryIDs []uuid.UUID `json:"category_ids,omitempty"`
	MaxProducts int         `json:"max_products"`
}

// Repository is the read-only query surface of the external catalog store.
// Implementations must return active products in deterministic order:
// sort_order ascending, then created_at descending, then id.
type Repository interface {
	// FindActive returns active products matching the filter with media preloaded.
	FindActive(ctx context.Context, filter Filter) ([]Product, error)

	// FindBrands returns the brands with the given ids.
	FindBrands(ctx context.Context, ids []uuid.UUID) ([]Brand, error)

	// FindCategories returns all categories; callers resolve paths in memory.
	FindCategories(ctx context.Context) ([]Category, error)

	// FindScores returns compatibility scores for the given products.
	FindScores(ctx context.Context, productIDs []uuid.UUID) ([]CompatibilityScore, error)
}
