package catalog

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/google/uuid"
)

// CachedResult is a catalog item paired with its most recent observed price,
// when one exists.
type CachedResult struct {
	Item       models.CatalogItem
	PriceCents *int64
	ObservedAt *time.Time
}

// PriceObservation is one fresh price sighting from a live search. The JSON
// shape doubles as the Pub/Sub wire format between the aggregator and the
// price worker.
type PriceObservation struct {
	DistributorID uuid.UUID `json:"distributor_id"`
	SKU           string    `json:"sku"`
	Description   string    `json:"description"`
	Brand         string    `json:"brand,omitempty"`
	PackSizeText  string    `json:"pack_size_text,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	PriceCents    int64     `json:"price_cents"`
	Currency      string    `json:"currency,omitempty"`
	ObservedAt    time.Time `json:"observed_at"`
}

// ServiceParams groups dependencies for the catalog service.
type ServiceParams struct {
	Repo Repository
}

// Service serves the locally cached catalog.
type Service struct {
	repo Repository
}

// NewService builds a catalog service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, stdErrors.New("repo is required")
	}
	return &Service{repo: params.Repo}, nil
}

// Search looks up cached items for a distributor and decorates each with its
// latest known price. Backs the fallback path when a live portal is down.
func (s *Service) Search(ctx context.Context, distributorID uuid.UUID, query string, limit int) ([]CachedResult, error) {
	items, err := s.repo.Search(ctx, distributorID, query, limit)
	if err != nil {
		return nil, err
	}

	results := make([]CachedResult, 0, len(items))
	for _, item := range items {
		result := CachedResult{Item: item}
		price, err := s.repo.LatestPrice(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if price != nil {
			cents := price.PriceCents
			observed := price.ObservedAt
			result.PriceCents = &cents
			result.ObservedAt = &observed
		}
		results = append(results, result)
	}
	return results, nil
}

// RecordObservation upserts the catalog item and appends a price record.
func (s *Service) RecordObservation(ctx context.Context, obs PriceObservation) error {
	item, err := s.repo.FindBySKU(ctx, obs.DistributorID, obs.SKU)
	if err != nil {
		return err
	}
	if item == nil {
		item = &models.CatalogItem{
			ID:            uuid.New(),
			DistributorID: obs.DistributorID,
			SKU:           obs.SKU,
			IsActive:      true,
		}
	}
	item.Description = obs.Description
	item.Brand = obs.Brand
	item.PackSizeText = obs.PackSizeText
	item.ImageURL = obs.ImageURL
	if err := s.repo.Upsert(ctx, item); err != nil {
		return err
	}

	currency := obs.Currency
	if currency == "" {
		currency = "USD"
	}
	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}
	return s.repo.InsertPriceRecord(ctx, &models.PriceRecord{
		ID:            uuid.New(),
		CatalogItemID: item.ID,
		DistributorID: obs.DistributorID,
		PriceCents:    obs.PriceCents,
		Currency:      currency,
		ObservedAt:    observedAt.UTC(),
	})
}
