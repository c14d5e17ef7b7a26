package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Brand is reference data joined into enhanced products
type Brand struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"type:varchar(120);not null"`
	Slug      string    `gorm:"type:varchar(140);index"`
	LogoURL   string    `gorm:"type:varchar(2048)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (Brand) TableName() string {
	return "brands"
}

// Category is a node in the catalog category tree
type Category struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Name      string     `gorm:"type:varchar(120);not null"`
	Slug      string     `gorm:"type:varchar(140);index"`
	ParentID  *uuid.UUID `gorm:"type:uuid;index"`
	SortOrder int        `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (Category) TableName() string {
	return "categories"
}

// CompatibilityScore is a per-product annotation produced by an external
// scoring service and mirrored into the catalog store as reference data.
type CompatibilityScore struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index"`
	Audience  string    `gorm:"type:varchar(60);not null"`
	Score     float64   `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (CompatibilityScore) TableName() string {
	return "compatibility_scores"
}
