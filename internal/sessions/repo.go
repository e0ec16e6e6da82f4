package sessions

import (
	"context"

	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository handles distributor session persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByDistributor(ctx context.Context, distributorID uuid.UUID) (*models.DistributorSession, error)
	Create(ctx context.Context, session *models.DistributorSession) error
	UpdateColumns(ctx context.Context, distributorID uuid.UUID, columns map[string]any) error
	DeleteByDistributor(ctx context.Context, distributorID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a session repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByDistributor(ctx context.Context, distributorID uuid.UUID) (*models.DistributorSession, error) {
	var session models.DistributorSession
	if err := r.db.WithContext(ctx).
		Where("distributor_id = ?", distributorID).
		First(&session).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repository) Create(ctx context.Context, session *models.DistributorSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// UpdateColumns writes only the provided columns in a single UPDATE.
func (r *repository) UpdateColumns(ctx context.Context, distributorID uuid.UUID, columns map[string]any) error {
	if len(columns) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.DistributorSession{}).
		Where("distributor_id = ?", distributorID).
		Updates(columns).Error
}

func (r *repository) DeleteByDistributor(ctx context.Context, distributorID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("distributor_id = ?", distributorID).
		Delete(&models.DistributorSession{}).Error
}
