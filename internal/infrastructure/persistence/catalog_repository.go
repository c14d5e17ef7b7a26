package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/storegen/backend/internal/domain/catalog"
	"gorm.io/gorm"
)

// Ensure GormCatalogRepository implements catalog.Repository
var _ catalog.Repository = (*GormCatalogRepository)(nil)

// GormCatalogRepository implements the read-only catalog query surface
// using GORM against the external catalog store.
type GormCatalogRepository struct {
	db *gorm.DB
}

// NewGormCatalogRepository creates a new GormCatalogRepository
func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

// FindActive returns active products matching the filter with media
// preloaded. Ordering is deterministic: curated sort order first, then
// recency, then id as the final tiebreaker so equal rows cannot swap
// between calls.
func (r *GormCatalogRepository) FindActive(ctx context.Context, filter catalog.Filter) ([]catalog.Product, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", catalog.ProductStatusActive).
		Preload("Media", func(db *gorm.DB) *gorm.DB {
			return db.Order("product_media.sort_order ASC")
		}).
		Order("sort_order ASC").
		Order("created_at DESC").
		Order("id ASC")

	if len(filter.BrandIDs) > 0 {
		query = query.Where("brand_id IN ?", filter.BrandIDs)
	}
	if len(filter.CategoryIDs) > 0 {
		query = query.Where("category_id IN ?", filter.CategoryIDs)
	}

	var products []catalog.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// FindBrands returns the brands with the given ids
func (r *GormCatalogRepository) FindBrands(ctx context.Context, ids []uuid.UUID) ([]catalog.Brand, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var brands []catalog.Brand
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&brands).Error; err != nil {
		return nil, err
	}
	return brands, nil
}

// FindCategories returns all categories for in-memory path resolution
func (r *GormCatalogRepository) FindCategories(ctx context.Context) ([]catalog.Category, error) {
	var categories []catalog.Category
	if err := r.db.WithContext(ctx).Order("sort_order ASC").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// FindScores returns compatibility scores for the given products
func (r *GormCatalogRepository) FindScores(ctx context.Context, productIDs []uuid.UUID) ([]catalog.CompatibilityScore, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var scores []catalog.CompatibilityScore
	if err := r.db.WithContext(ctx).Where("product_id IN ?", productIDs).Find(&scores).Error; err != nil {
		return nil, err
	}
	return scores, nil
}
