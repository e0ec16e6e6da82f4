package ordering

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/platewise-backend/internal/distributors"
	"github.com/angelmondragon/platewise-backend/internal/sessions"
	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/golang-jwt/jwt/v5"
)

func newValleyFoodsTestEnv(t *testing.T, serverURL string) (*adapterEnv, PlatformAdapter) {
	t.Helper()
	env := newAdapterEnv(t, PlatformValleyFoods, models.Settings{
		distributors.SettingBaseURL: serverURL,
		settingVFCustomerID:         "CUST-1",
		settingVFOperationCompany:   "042",
	})

	token := "Bearer test-access-token"
	expiry := time.Now().Add(time.Hour).UTC()
	env.seedSession(t, sessions.Update{AuthToken: &token, ExpiresAt: &expiry})

	return env, env.adapter(t)
}

func valleyFoodsMux(t *testing.T, createOrders *int32) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/Customer/V1/GetCustomerDeliveryDates", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"IsSuccess":    true,
			"ResultObject": []string{"2026-09-02T00:00:00"},
		})
	})

	mux.HandleFunc("/ProductCatalog/V1/SearchProductCatalog", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"IsSuccess": true,
			"ResultObject": map[string]any{
				"CatalogProducts": []map[string]any{{
					"ProductNumber":            "10044",
					"ProductDescription":       "BUTTER AA 36/1LB CS",
					"ProductKey":               "ABC-123",
					"ProductPackSizes":         []string{"36/1LB"},
					"ProductCategory":          "Dairy",
					"ProductImageUrlThumbnail": "https://img.example.com/10044.jpg",
					"IsOutOfStock":             false,
					"UnitOfMeasureOrderQuantities": []map[string]any{{
						"UnitOfMeasureAbbreviation": "CS",
						"Price":                     0,
					}},
				}},
			},
		})
	})

	mux.HandleFunc("/CustomerProductPrice/V1/GetCustomerProductPrice", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			CustomerProductPriceRequests []struct {
				ProductKey string `json:"ProductKey"`
			} `json:"CustomerProductPriceRequests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload.CustomerProductPriceRequests) == 0 {
			t.Errorf("price lookup without product keys: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"IsSuccess": true,
			"ResultObject": []map[string]any{{
				"ProductKey": "ABC-123",
				"Price":      142.56,
			}},
		})
	})

	var orderCreated atomic.Bool
	mux.HandleFunc("/OrderEntryHeader/V1/GetActiveOrder", func(w http.ResponseWriter, r *http.Request) {
		if !orderCreated.Load() {
			json.NewEncoder(w).Encode(map[string]any{"IsSuccess": false})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"IsSuccess":    true,
			"ResultObject": map[string]any{"OrderEntryHeaderId": "order-1"},
		})
	})
	mux.HandleFunc("/OrderEntryHeader/V1/CreateOrderEntryHeader", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(createOrders, 1)
		orderCreated.Store(true)
		json.NewEncoder(w).Encode(map[string]any{
			"IsSuccess":    true,
			"ResultObject": map[string]any{"OrderEntryHeaderId": "order-1"},
		})
	})
	mux.HandleFunc("/OrderEntryDetail/V1/UpdateOrderEntryDetail", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"IsSuccess": true})
	})

	return mux
}

func TestValleyFoodsSearchMergesPriceLookup(t *testing.T) {
	t.Parallel()

	var createOrders int32
	server := httptest.NewServer(valleyFoodsMux(t, &createOrders))
	defer server.Close()

	_, adapter := newValleyFoodsTestEnv(t, server.URL)

	results, err := adapter.Search(context.Background(), "butter", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.SKU != "10044" || got.ProductID != "ABC-123" {
		t.Fatalf("unexpected identifiers %+v", got)
	}
	if got.PriceCents == nil || *got.PriceCents != 14256 {
		t.Fatalf("expected merged price 14256, got %v", got.PriceCents)
	}
	if got.InStock == nil || !*got.InStock {
		t.Fatalf("expected in-stock, got %v", got.InStock)
	}
	if got.PackSize != "36/1LB" || got.PackUnit != "CS" {
		t.Fatalf("unexpected pack info %+v", got)
	}
}

func TestValleyFoodsAddToCartCreatesOrderOnce(t *testing.T) {
	t.Parallel()

	var createOrders int32
	server := httptest.NewServer(valleyFoodsMux(t, &createOrders))
	defer server.Close()

	_, adapter := newValleyFoodsTestEnv(t, server.URL)

	for i := 0; i < 2; i++ {
		added, err := adapter.AddToCart(context.Background(), "10044", 3)
		if err != nil {
			t.Fatalf("AddToCart %d: %v", i, err)
		}
		if !added {
			t.Fatalf("AddToCart %d reported failure", i)
		}
	}
	if n := atomic.LoadInt32(&createOrders); n != 1 {
		t.Fatalf("expected exactly one order header, got %d", n)
	}
}

func TestValleyFoodsAuthenticateWithoutRefreshToken(t *testing.T) {
	t.Parallel()

	env := newAdapterEnv(t, PlatformValleyFoods, models.Settings{
		distributors.SettingBaseURL: "https://portal.example.com",
		settingVFCustomerID:         "CUST-1",
		settingVFOperationCompany:   "042",
	})
	adapter := env.adapter(t)

	ok, err := adapter.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ok {
		t.Fatal("expected authentication to fail without a refresh token")
	}
}

func TestValleyFoodsGetCartFallsBackToSummary(t *testing.T) {
	t.Parallel()

	var createOrders int32
	mux := valleyFoodsMux(t, &createOrders)
	mux.HandleFunc("/Order/V1/GetOrder", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"IsSuccess": true,
			"ResultObject": map[string]any{
				"TotalOrderPrice": 427.68,
				"TotalLines":      2,
				"TotalQuantity":   5,
			},
		})
	})
	mux.HandleFunc("/OrderEntryDetail/V1/GetOrderEntryDetails", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	_, adapter := newValleyFoodsTestEnv(t, server.URL)

	// Seed the order cache through an add so GetCart sees an active order.
	if _, err := adapter.AddToCart(context.Background(), "10044", 1); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}

	cart, err := adapter.GetCart(context.Background())
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if cart.TotalCents != 42768 {
		t.Fatalf("expected total 42768, got %d", cart.TotalCents)
	}
	if len(cart.Items) != 1 || cart.Items[0].SKU != "(items in cart)" {
		t.Fatalf("expected the summary placeholder line, got %+v", cart.Items)
	}
}

func writeTokenFile(t *testing.T, payload map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vf_tokens.json")
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal token file: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}
	return path
}

func TestValleyFoodsAuthenticateFromCapturedTokenFile(t *testing.T) {
	t.Parallel()

	path := writeTokenFile(t, map[string]any{
		"access_token":  "captured-access",
		"refresh_token": "captured-refresh",
		"expires_in":    3600,
		"captured_at":   time.Now().UTC().Format(time.RFC3339),
	})
	env := newAdapterEnv(t, PlatformValleyFoods, models.Settings{
		distributors.SettingBaseURL: "https://portal.example.com",
		settingVFCustomerID:         "CUST-1",
		settingVFOperationCompany:   "042",
		settingVFTokenFile:          path,
	})
	adapter := env.adapter(t)

	ok, err := adapter.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !ok {
		t.Fatal("expected a fresh captured token to authenticate")
	}

	session, err := env.sessSvc.Get(context.Background(), env.dist.ID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if session == nil || session.AuthToken == nil || *session.AuthToken != "Bearer captured-access" {
		t.Fatalf("expected the captured bearer token saved, got %+v", session)
	}
	if session.RefreshToken == nil || *session.RefreshToken != "captured-refresh" {
		t.Fatalf("expected the captured refresh token saved, got %+v", session)
	}
	if session.ExpiresAt == nil || !session.ExpiresAt.After(time.Now().UTC()) {
		t.Fatalf("expected a future expiry, got %v", session.ExpiresAt)
	}
}

func TestValleyFoodsStaleTokenFileDoesNotAuthenticate(t *testing.T) {
	t.Parallel()

	captured := time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339)
	cases := map[string]string{
		"stale capture": writeTokenFile(t, map[string]any{
			"access_token": "captured-access",
			"expires_in":   3600,
			"captured_at":  captured,
		}),
		"missing file": filepath.Join(t.TempDir(), "missing.json"),
	}
	for name, path := range cases {
		env := newAdapterEnv(t, PlatformValleyFoods, models.Settings{
			distributors.SettingBaseURL: "https://portal.example.com",
			settingVFCustomerID:         "CUST-1",
			settingVFOperationCompany:   "042",
			settingVFTokenFile:          path,
		})
		adapter := env.adapter(t)

		ok, err := adapter.Authenticate(context.Background())
		if err != nil {
			t.Fatalf("%s: Authenticate: %v", name, err)
		}
		if ok {
			t.Fatalf("%s: expected authentication to fail", name)
		}
	}
}

func TestCapturedTokenRemaining(t *testing.T) {
	t.Parallel()

	fresh := time.Now().UTC().Format(time.RFC3339)
	if remaining, ok := capturedTokenRemaining(fresh, 3600); !ok || remaining <= 0 {
		t.Fatalf("expected a fresh capture to have time left, got %v %v", remaining, ok)
	}
	stale := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	if remaining, ok := capturedTokenRemaining(stale, 3600); !ok || remaining > 0 {
		t.Fatalf("expected an hour-old capture spent, got %v %v", remaining, ok)
	}
	if _, ok := capturedTokenRemaining("not-a-timestamp", 3600); ok {
		t.Fatal("expected unparseable capture times rejected")
	}
	if _, ok := capturedTokenRemaining("", 3600); ok {
		t.Fatal("expected a missing capture time rejected")
	}
}

func TestAccessTokenExpiryReadsExpClaim(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(45 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256,
		jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	got, ok := accessTokenExpiry(signed)
	if !ok {
		t.Fatal("expected the exp claim read")
	}
	if !got.Equal(exp) {
		t.Fatalf("expiry = %v, want %v", got, exp)
	}

	if _, ok := accessTokenExpiry("opaque-token"); ok {
		t.Fatal("expected opaque tokens rejected")
	}
}
