package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DistributorSession persists the reusable authentication state captured from
// a distributor portal: cookie jar contents, sticky headers and an optional
// bearer token. One row per distributor.
type DistributorSession struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	DistributorID uuid.UUID         `gorm:"column:distributor_id;type:uuid;not null;uniqueIndex"`
	Cookies       map[string]string `gorm:"column:cookies;serializer:json"`
	Headers       map[string]string `gorm:"column:headers;serializer:json"`
	AuthToken     *string           `gorm:"column:auth_token"`
	RefreshToken  *string           `gorm:"column:refresh_token"`
	ExpiresAt     *time.Time        `gorm:"column:expires_at"`
	LastUsedAt    *time.Time        `gorm:"column:last_used_at"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (DistributorSession) TableName() string {
	return "distributor_sessions"
}

func (s *DistributorSession) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
