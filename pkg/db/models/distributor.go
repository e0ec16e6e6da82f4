package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Settings holds the per-distributor portal configuration blob. Values are
// heterogeneous (URLs, account ids, numeric buyer ids) so typed access lives
// in the distributors service, not here.
type Settings map[string]any

// Distributor is the registry row for one external supplier portal.
type Distributor struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name       string    `gorm:"column:name;size:120;not null"`
	PlatformID string    `gorm:"column:platform_id;size:50;not null;index"`
	Settings   Settings  `gorm:"column:settings;serializer:json"`
	// DeliveryDays holds lowercase weekday names for platforms without a
	// delivery-date endpoint.
	DeliveryDays    pq.StringArray `gorm:"column:delivery_days;type:text[]"`
	OrderingEnabled bool           `gorm:"column:ordering_enabled;not null;default:false"`
	IsActive        bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Distributor) TableName() string {
	return "distributors"
}

func (d *Distributor) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
