package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PriceRecord is a point-in-time price observation for a catalog item,
// written by the price worker as live searches surface fresh quotes.
type PriceRecord struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CatalogItemID uuid.UUID `gorm:"column:catalog_item_id;type:uuid;not null;index"`
	DistributorID uuid.UUID `gorm:"column:distributor_id;type:uuid;not null;index"`
	PriceCents    int64     `gorm:"column:price_cents;not null"`
	Currency      string    `gorm:"column:currency;size:3;not null;default:USD"`
	ObservedAt    time.Time `gorm:"column:observed_at;not null;index"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (PriceRecord) TableName() string {
	return "price_records"
}

func (p *PriceRecord) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
