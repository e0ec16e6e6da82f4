package ordering

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/platewise-backend/internal/distributors"
	"github.com/angelmondragon/platewise-backend/internal/sessions"
	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stubDistributorRepo struct {
	dist *models.Distributor
}

func (r *stubDistributorRepo) WithTx(*gorm.DB) distributors.Repository {
	return r
}

func (r *stubDistributorRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Distributor, error) {
	if r.dist != nil && r.dist.ID == id {
		return r.dist, nil
	}
	return nil, nil
}

func (r *stubDistributorRepo) ListActive(context.Context) ([]models.Distributor, error) {
	if r.dist == nil {
		return nil, nil
	}
	return []models.Distributor{*r.dist}, nil
}

func (r *stubDistributorRepo) ListOrderingEnabled(ctx context.Context) ([]models.Distributor, error) {
	return r.ListActive(ctx)
}

func (r *stubDistributorRepo) Update(context.Context, *models.Distributor) error {
	return nil
}

type adapterEnv struct {
	dist    *models.Distributor
	distSvc *distributors.Service
	sessSvc *sessions.Service
	factory *Factory
}

func newAdapterEnv(t *testing.T, platformID string, settings models.Settings) *adapterEnv {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.DistributorSession{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if settings == nil {
		settings = models.Settings{}
	}
	if _, ok := settings[distributors.SettingUsername]; !ok {
		settings[distributors.SettingUsername] = "buyer@example.com"
		settings[distributors.SettingPassword] = "hunter2"
	}

	dist := &models.Distributor{
		ID:              uuid.New(),
		Name:            "Test Distributor",
		PlatformID:      platformID,
		Settings:        settings,
		OrderingEnabled: true,
		IsActive:        true,
	}
	distSvc, err := distributors.NewService(distributors.ServiceParams{
		Repo: &stubDistributorRepo{dist: dist},
	})
	if err != nil {
		t.Fatalf("distributor service: %v", err)
	}
	sessSvc, err := sessions.NewService(sessions.ServiceParams{Repo: sessions.NewRepository(conn)})
	if err != nil {
		t.Fatalf("session service: %v", err)
	}
	factory, err := NewFactory(FactoryParams{Distributors: distSvc, Sessions: sessSvc})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	return &adapterEnv{dist: dist, distSvc: distSvc, sessSvc: sessSvc, factory: factory}
}

func (e *adapterEnv) adapter(t *testing.T) PlatformAdapter {
	t.Helper()
	client, err := e.factory.ClientFor(context.Background(), e.dist)
	if err != nil {
		t.Fatalf("ClientFor: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func (e *adapterEnv) seedSession(t *testing.T, update sessions.Update) {
	t.Helper()
	if err := e.sessSvc.Apply(context.Background(), e.dist.ID, update); err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

// scriptedAdapter exercises the shared session and cart logic without a
// network behind it.
type scriptedAdapter struct {
	*baseClient

	authCalls  int
	clearCalls int
	cart       []CartItem
}

func newScriptedAdapter(t *testing.T, env *adapterEnv) *scriptedAdapter {
	t.Helper()
	base, err := newBaseClient(baseParams{
		Distributor:  env.dist,
		Distributors: env.distSvc,
		Sessions:     env.sessSvc,
	})
	if err != nil {
		t.Fatalf("newBaseClient: %v", err)
	}
	a := &scriptedAdapter{baseClient: base}
	base.bind(a)
	return a
}

func (a *scriptedAdapter) Platform() string {
	return "scripted"
}

func (a *scriptedAdapter) Authenticate(ctx context.Context) (bool, error) {
	a.authCalls++
	expiry := time.Now().Add(time.Hour).UTC()
	if err := a.saveSession(ctx, sessions.Update{ExpiresAt: &expiry}); err != nil {
		return false, err
	}
	return true, nil
}

func (a *scriptedAdapter) Search(context.Context, string, int) ([]SearchResult, error) {
	return []SearchResult{}, nil
}

func (a *scriptedAdapter) AddToCart(_ context.Context, sku string, quantity int) (bool, error) {
	a.cart = append(a.cart, CartItem{SKU: sku, Quantity: quantity})
	return true, nil
}

func (a *scriptedAdapter) GetCart(context.Context) (*Cart, error) {
	cart := EmptyCart()
	cart.Items = append(cart.Items, a.cart...)
	return cart, nil
}

func (a *scriptedAdapter) ClearCart(context.Context) (bool, error) {
	a.clearCalls++
	a.cart = nil
	return true, nil
}

func (a *scriptedAdapter) GetDeliveryDates(context.Context) ([]time.Time, error) {
	return nil, nil
}

func TestEnsureAuthenticatedReusesLiveSession(t *testing.T) {
	t.Parallel()

	env := newAdapterEnv(t, "scripted", nil)
	adapter := newScriptedAdapter(t, env)

	for i := 0; i < 3; i++ {
		ok, err := adapter.EnsureAuthenticated(context.Background())
		if err != nil {
			t.Fatalf("EnsureAuthenticated %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("EnsureAuthenticated %d reported failure", i)
		}
	}
	if adapter.authCalls != 1 {
		t.Fatalf("expected a single authentication, got %d", adapter.authCalls)
	}
}

func TestEnsureAuthenticatedTreatsPastExpiryAsAbsent(t *testing.T) {
	t.Parallel()

	env := newAdapterEnv(t, "scripted", nil)
	adapter := newScriptedAdapter(t, env)

	expired := time.Now().Add(-time.Minute).UTC()
	env.seedSession(t, sessions.Update{ExpiresAt: &expired})

	ok, err := adapter.EnsureAuthenticated(context.Background())
	if err != nil {
		t.Fatalf("EnsureAuthenticated: %v", err)
	}
	if !ok || adapter.authCalls != 1 {
		t.Fatalf("expected re-authentication for an expired session, ok=%v calls=%d", ok, adapter.authCalls)
	}
}

func TestExpiryRetryRunsOperationExactlyTwice(t *testing.T) {
	t.Parallel()

	env := newAdapterEnv(t, "scripted", nil)
	adapter := newScriptedAdapter(t, env)

	attempts := 0
	err := adapter.withExpiryRetry(context.Background(), func(context.Context) error {
		attempts++
		return errors.New(errors.CodeSessionExpired, "portal says no")
	})
	if !errors.HasCode(err, errors.CodeSessionExpired) {
		t.Fatalf("expected the second failure to surface, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
	if adapter.authCalls != 1 {
		t.Fatalf("expected exactly one re-authentication, got %d", adapter.authCalls)
	}
}

func TestExpiryRetryRecoversAfterReauth(t *testing.T) {
	t.Parallel()

	env := newAdapterEnv(t, "scripted", nil)
	adapter := newScriptedAdapter(t, env)

	attempts := 0
	err := adapter.withExpiryRetry(context.Background(), func(context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New(errors.CodeSessionExpired, "portal says no")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery on retry, got %v", err)
	}
	if attempts != 2 || adapter.authCalls != 1 {
		t.Fatalf("unexpected attempts=%d authCalls=%d", attempts, adapter.authCalls)
	}
}

func TestGenericRemoveFromCart(t *testing.T) {
	t.Parallel()

	env := newAdapterEnv(t, "scripted", nil)
	adapter := newScriptedAdapter(t, env)
	adapter.cart = []CartItem{
		{SKU: "A", Quantity: 2},
		{SKU: "B", Quantity: 1},
		{SKU: "C", Quantity: 4},
	}

	removed, err := adapter.RemoveFromCart(context.Background(), "B")
	if err != nil {
		t.Fatalf("RemoveFromCart: %v", err)
	}
	if !removed {
		t.Fatal("expected removal to be reported")
	}
	if adapter.clearCalls != 1 {
		t.Fatalf("expected one clear, got %d", adapter.clearCalls)
	}
	if len(adapter.cart) != 2 || adapter.cart[0].SKU != "A" || adapter.cart[1].SKU != "C" {
		t.Fatalf("expected remaining items re-added in order, got %+v", adapter.cart)
	}
}

func TestGenericRemoveFromCartMissingSKU(t *testing.T) {
	t.Parallel()

	env := newAdapterEnv(t, "scripted", nil)
	adapter := newScriptedAdapter(t, env)
	adapter.cart = []CartItem{{SKU: "A", Quantity: 2}}

	removed, err := adapter.RemoveFromCart(context.Background(), "Z")
	if err != nil {
		t.Fatalf("RemoveFromCart: %v", err)
	}
	if removed {
		t.Fatal("expected no removal for an absent sku")
	}
	if adapter.clearCalls != 0 {
		t.Fatalf("expected the cart untouched, got %d clears", adapter.clearCalls)
	}
}

func TestGenericUpdateCartQuantity(t *testing.T) {
	t.Parallel()

	env := newAdapterEnv(t, "scripted", nil)
	adapter := newScriptedAdapter(t, env)
	adapter.cart = []CartItem{{SKU: "A", Quantity: 2}}

	ok, err := adapter.UpdateCartQuantity(context.Background(), "A", 5)
	if err != nil {
		t.Fatalf("UpdateCartQuantity: %v", err)
	}
	if !ok {
		t.Fatal("expected update to succeed")
	}
	if len(adapter.cart) != 1 || adapter.cart[0].Quantity != 5 {
		t.Fatalf("expected quantity 5, got %+v", adapter.cart)
	}

	ok, err = adapter.UpdateCartQuantity(context.Background(), "A", 0)
	if err != nil {
		t.Fatalf("UpdateCartQuantity to zero: %v", err)
	}
	if !ok || len(adapter.cart) != 0 {
		t.Fatalf("expected zero quantity to remove the line, got %+v", adapter.cart)
	}
}

func TestFactoryDefaultsToMock(t *testing.T) {
	t.Parallel()

	env := newAdapterEnv(t, "some-future-vendor", nil)
	adapter := env.adapter(t)
	if adapter.Platform() != PlatformMock {
		t.Fatalf("expected mock adapter, got %q", adapter.Platform())
	}
}

func TestFactoryBuildsPlatformAdapters(t *testing.T) {
	t.Parallel()

	platforms := map[string]models.Settings{
		PlatformValleyFoods: {
			distributors.SettingBaseURL: "https://portal.example.com",
			settingVFCustomerID:         "CUST-1",
			settingVFOperationCompany:   "042",
		},
		PlatformMetroWholesale: {
			distributors.SettingBaseURL: "https://shop.example.com",
			settingMWBusinessUnit:       "110",
		},
		PlatformFarmDirect: {
			distributors.SettingBaseURL: "https://farm.example.com",
			settingFDCompanyID:          "123456",
			settingFDSiteID:             "2",
		},
		PlatformGreenMarket: {
			distributors.SettingBaseURL: "https://market.example.com",
			settingGMBuyerID:            10,
			settingGMSellerID:           20,
		},
	}
	for platformID, settings := range platforms {
		env := newAdapterEnv(t, platformID, settings)
		adapter := env.adapter(t)
		if adapter.Platform() != platformID {
			t.Fatalf("expected %q adapter, got %q", platformID, adapter.Platform())
		}
		if adapter.DistributorID() != env.dist.ID {
			t.Fatalf("%s: adapter bound to wrong distributor", platformID)
		}
	}
}

func TestFactoryClientLoadsDistributor(t *testing.T) {
	t.Parallel()

	env := newAdapterEnv(t, PlatformMock, nil)
	adapter, err := env.factory.Client(context.Background(), env.dist.ID)
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	defer adapter.Close()
	if adapter.Platform() != PlatformMock {
		t.Fatalf("expected mock adapter, got %q", adapter.Platform())
	}

	if _, err := env.factory.Client(context.Background(), uuid.New()); !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not-found for an unknown distributor, got %v", err)
	}
}

func TestMockAdapterFlow(t *testing.T) {
	t.Parallel()

	env := newAdapterEnv(t, PlatformMock, nil)
	adapter := env.adapter(t)

	ok, err := adapter.EnsureAuthenticated(context.Background())
	if err != nil || !ok {
		t.Fatalf("EnsureAuthenticated: ok=%v err=%v", ok, err)
	}

	session, err := env.sessSvc.Get(context.Background(), env.dist.ID)
	if err != nil {
		t.Fatalf("session lookup: %v", err)
	}
	if session == nil || session.Cookies["mock_session"] == "" {
		t.Fatalf("expected a persisted mock session, got %+v", session)
	}

	results, err := adapter.Search(context.Background(), "butter", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 canned results, got %d", len(results))
	}
	for i, r := range results {
		want := fmt.Sprintf("MOCK-%d", i)
		if r.SKU != want {
			t.Fatalf("result %d: expected sku %s, got %s", i, want, r.SKU)
		}
		if r.PriceCents == nil {
			t.Fatalf("result %d: expected a price", i)
		}
	}

	cart, err := adapter.GetCart(context.Background())
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected an empty cart, got %+v", cart.Items)
	}
}

func TestMockDeliveryDatesFollowConfiguredWeekdays(t *testing.T) {
	t.Parallel()

	env := newAdapterEnv(t, PlatformMock, nil)
	env.dist.DeliveryDays = pq.StringArray{"monday", "thursday"}
	adapter := env.adapter(t)

	dates, err := adapter.GetDeliveryDates(context.Background())
	if err != nil {
		t.Fatalf("GetDeliveryDates: %v", err)
	}
	if len(dates) != 4 {
		t.Fatalf("expected 4 dates over two weeks, got %d", len(dates))
	}
	for _, date := range dates {
		if wd := date.Weekday(); wd != time.Monday && wd != time.Thursday {
			t.Fatalf("unexpected weekday %s", wd)
		}
		if !date.After(time.Now().UTC().Truncate(24 * time.Hour)) {
			t.Fatalf("date %s is not in the future", date)
		}
	}
}
