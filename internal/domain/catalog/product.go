package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductStatus represents the status of a product
type ProductStatus string

const (
	ProductStatusActive       ProductStatus = "active"
	ProductStatusInactive     ProductStatus = "inactive"
	ProductStatusDiscontinued ProductStatus = "discontinued"
)

// MediaKind distinguishes raster images from video sources
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// Product is the catalog read model consumed by the generation pipeline.
// The catalog store is owned by an external system; the pipeline only
// reads it, so there are no mutation methods here.
type Product struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Name            string          `gorm:"type:varchar(200);not null"`
	Slug            string          `gorm:"type:varchar(220);index"`
	Description     string          `gorm:"type:text"`
	BrandID         *uuid.UUID      `gorm:"type:uuid;index"`
	CategoryID      *uuid.UUID      `gorm:"type:uuid;index"`
	Price           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Currency        string          `gorm:"type:varchar(3);not null;default:'USD'"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	DiscountFrom    *time.Time
	DiscountUntil   *time.Time
	Status          ProductStatus `gorm:"type:varchar(20);not null;default:'active';index"`
	SortOrder       int           `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Media           []ProductMedia `gorm:"foreignKey:ProductID"`
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// ProductMedia is a raw media reference attached to a product
type ProductMedia struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index"`
	URL       string    `gorm:"type:varchar(2048);not null"`
	Kind      MediaKind `gorm:"type:varchar(10);not null;default:'image'"`
	AltText   string    `gorm:"type:varchar(500)"`
	SortOrder int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (ProductMedia) TableName() string {
	return "product_media"
}

// DiscountActiveAt reports whether the product discount applies at the
// given instant. A zero discount percent never counts as active.
func (p *Product) DiscountActiveAt(now time.Time) bool {
	if p.DiscountPercent.IsZero() || p.DiscountPercent.IsNegative() {
		return false
	}
	if p.DiscountFrom != nil && now.Before(*p.DiscountFrom) {
		return false
	}
	if p.DiscountUntil != nil && now.After(*p.DiscountUntil) {
		return false
	}
	return true
}

// EffectivePriceAt returns the price after any discount active at the
// given instant, rounded to 2 decimal places.
func (p *Product) EffectivePriceAt(now time.Time) decimal.Decimal {
	if !p.DiscountActiveAt(now) {
		return p.Price.Round(2)
	}
	factor := decimal.NewFromInt(100).Sub(p.DiscountPercent).Div(decimal.NewFromInt(100))
	return p.Price.Mul(factor).Round(2)
}

// Images returns the product media of kind image, in sort order.
// Media is expected to be preloaded sorted by sort_order.
func (p *Product) Images() []ProductMedia {
	var imgs []ProductMedia
	for _, m := range p.Media {
		if m.Kind == MediaKindImage {
			imgs = append(imgs, m)
		}
	}
	return imgs
}
