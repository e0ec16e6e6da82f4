package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogItem is a locally cached product from a distributor catalog. Rows
// back the search fallback when the live portal cannot be reached.
type CatalogItem struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DistributorID uuid.UUID `gorm:"column:distributor_id;type:uuid;not null;index:idx_catalog_items_distributor_sku,unique"`
	SKU           string    `gorm:"column:sku;size:80;not null;index:idx_catalog_items_distributor_sku,unique"`
	Description   string    `gorm:"column:description;size:500;not null"`
	Brand         string    `gorm:"column:brand;size:120"`
	PackSizeText  string    `gorm:"column:pack_size_text;size:80"`
	ImageURL      string    `gorm:"column:image_url;size:500"`
	IsActive      bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CatalogItem) TableName() string {
	return "catalog_items"
}

func (c *CatalogItem) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
