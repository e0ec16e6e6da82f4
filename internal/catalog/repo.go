package catalog

import (
	"context"
	"strings"

	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles cached catalog persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Search(ctx context.Context, distributorID uuid.UUID, query string, limit int) ([]models.CatalogItem, error)
	FindBySKU(ctx context.Context, distributorID uuid.UUID, sku string) (*models.CatalogItem, error)
	Upsert(ctx context.Context, item *models.CatalogItem) error
	LatestPrice(ctx context.Context, catalogItemID uuid.UUID) (*models.PriceRecord, error)
	InsertPriceRecord(ctx context.Context, record *models.PriceRecord) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Search(ctx context.Context, distributorID uuid.UUID, query string, limit int) ([]models.CatalogItem, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"

	var items []models.CatalogItem
	if err := r.db.WithContext(ctx).
		Where("distributor_id = ? AND is_active = ?", distributorID, true).
		Where("(LOWER(description) LIKE ? OR LOWER(sku) LIKE ?)", pattern, pattern).
		Order("description ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindBySKU(ctx context.Context, distributorID uuid.UUID, sku string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	if err := r.db.WithContext(ctx).
		Where("distributor_id = ? AND sku = ?", distributorID, sku).
		First(&item).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) Upsert(ctx context.Context, item *models.CatalogItem) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "distributor_id"}, {Name: "sku"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"description", "brand", "pack_size_text", "image_url", "is_active", "updated_at",
			}),
		}).
		Create(item).Error
}

func (r *repository) LatestPrice(ctx context.Context, catalogItemID uuid.UUID) (*models.PriceRecord, error) {
	var record models.PriceRecord
	if err := r.db.WithContext(ctx).
		Where("catalog_item_id = ?", catalogItemID).
		Order("observed_at DESC").
		First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) InsertPriceRecord(ctx context.Context, record *models.PriceRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}
