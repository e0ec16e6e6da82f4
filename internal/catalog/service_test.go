package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, Repository) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.CatalogItem{}, &models.PriceRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := NewRepository(conn)
	svc, err := NewService(ServiceParams{Repo: repo})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo
}

func TestRecordObservationAndSearch(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	distID := uuid.New()
	observed := time.Now().UTC().Truncate(time.Second)

	err := svc.RecordObservation(context.Background(), PriceObservation{
		DistributorID: distID,
		SKU:           "10044",
		Description:   "BUTTER AA 36/1LB CS",
		Brand:         "Gold Creek",
		PackSizeText:  "36/1LB",
		PriceCents:    14256,
		ObservedAt:    observed,
	})
	if err != nil {
		t.Fatalf("RecordObservation: %v", err)
	}

	results, err := svc.Search(context.Background(), distID, "butter", 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.Item.SKU != "10044" {
		t.Fatalf("unexpected sku %q", got.Item.SKU)
	}
	if got.PriceCents == nil || *got.PriceCents != 14256 {
		t.Fatalf("expected cached price 14256, got %v", got.PriceCents)
	}
	if got.ObservedAt == nil || !got.ObservedAt.UTC().Equal(observed) {
		t.Fatalf("expected observed at %v, got %v", observed, got.ObservedAt)
	}
}

func TestSearchReturnsLatestPrice(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	distID := uuid.New()
	base := time.Now().UTC().Truncate(time.Second)

	for i, cents := range []int64{10000, 11000, 10500} {
		err := svc.RecordObservation(context.Background(), PriceObservation{
			DistributorID: distID,
			SKU:           "20001",
			Description:   "MILK WHOLE 4/1GAL",
			PriceCents:    cents,
			ObservedAt:    base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("RecordObservation %d: %v", i, err)
		}
	}

	results, err := svc.Search(context.Background(), distID, "milk", 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected upsert to keep a single item, got %d", len(results))
	}
	if results[0].PriceCents == nil || *results[0].PriceCents != 10500 {
		t.Fatalf("expected most recent price 10500, got %v", results[0].PriceCents)
	}
}

func TestSearchMatchesSKUAndIsScopedToDistributor(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	distA := uuid.New()
	distB := uuid.New()

	for _, obs := range []PriceObservation{
		{DistributorID: distA, SKU: "A-1", Description: "CREAM HEAVY 9/1/2GAL", PriceCents: 5000},
		{DistributorID: distB, SKU: "B-1", Description: "CREAM HEAVY QT", PriceCents: 2000},
	} {
		if err := svc.RecordObservation(context.Background(), obs); err != nil {
			t.Fatalf("RecordObservation: %v", err)
		}
	}

	bySKU, err := svc.Search(context.Background(), distA, "a-1", 20)
	if err != nil {
		t.Fatalf("Search by sku: %v", err)
	}
	if len(bySKU) != 1 || bySKU[0].Item.SKU != "A-1" {
		t.Fatalf("expected sku match, got %+v", bySKU)
	}

	scoped, err := svc.Search(context.Background(), distA, "cream", 20)
	if err != nil {
		t.Fatalf("Search scoped: %v", err)
	}
	if len(scoped) != 1 || scoped[0].Item.DistributorID != distA {
		t.Fatalf("expected results scoped to distributor, got %+v", scoped)
	}
}

func TestSearchItemWithoutPriceRecords(t *testing.T) {
	t.Parallel()

	svc, repo := newTestService(t)
	distID := uuid.New()

	err := repo.Upsert(context.Background(), &models.CatalogItem{
		ID:            uuid.New(),
		DistributorID: distID,
		SKU:           "NOPRICE",
		Description:   "SALT KOSHER 12/3LB",
		IsActive:      true,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := svc.Search(context.Background(), distID, "salt", 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].PriceCents != nil || results[0].ObservedAt != nil {
		t.Fatalf("expected no cached price, got %+v", results[0])
	}
}
