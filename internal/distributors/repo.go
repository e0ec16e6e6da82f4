package distributors

import (
	"context"

	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository handles distributor registry persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Distributor, error)
	ListActive(ctx context.Context) ([]models.Distributor, error)
	ListOrderingEnabled(ctx context.Context) ([]models.Distributor, error)
	Update(ctx context.Context, distributor *models.Distributor) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a distributor repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Distributor, error) {
	var dist models.Distributor
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&dist).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &dist, nil
}

func (r *repository) ListActive(ctx context.Context) ([]models.Distributor, error) {
	var dists []models.Distributor
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&dists).Error; err != nil {
		return nil, err
	}
	return dists, nil
}

func (r *repository) ListOrderingEnabled(ctx context.Context) ([]models.Distributor, error) {
	var dists []models.Distributor
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND ordering_enabled = ?", true, true).
		Order("name ASC").
		Find(&dists).Error; err != nil {
		return nil, err
	}
	return dists, nil
}

func (r *repository) Update(ctx context.Context, distributor *models.Distributor) error {
	return r.db.WithContext(ctx).Save(distributor).Error
}
