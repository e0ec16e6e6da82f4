package ordering

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/platewise-backend/internal/distributors"
	"github.com/angelmondragon/platewise-backend/pkg/db/models"
)

type greenMarketTestServer struct {
	*httptest.Server

	logins       int32
	createOrders int32
	orderGets    int32

	loginFails atomic.Bool

	lastLoginToken    string
	lastDeliveryToken string
	lastRequestedOn   string
}

func newGreenMarketTestServer(t *testing.T) *greenMarketTestServer {
	t.Helper()
	ts := &greenMarketTestServer{}
	mux := http.NewServeMux()

	signInPage := `<html><head><meta name="csrf-token" content="csrf-signin" /></head></html>`
	dashboardPage := `<html><head><meta name="csrf-token" content="csrf-dash" /></head></html>`

	mux.HandleFunc("/users/sign_in", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, signInPage)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		atomic.AddInt32(&ts.logins, 1)
		ts.lastLoginToken = r.FormValue("authenticity_token")
		if ts.loginFails.Load() {
			// Rails re-renders the form in place on bad credentials.
			fmt.Fprint(w, signInPage)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "_session_id", Value: "sess-1", Path: "/"})
		http.Redirect(w, r, "/admin/dashboard", http.StatusFound)
	})

	mux.HandleFunc("/admin/dashboard", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, dashboardPage)
	})

	mux.HandleFunc("/api/sellers/20/products/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{
			"id":                   9,
			"product_unit_id":      4321,
			"name":                 "Rainbow Carrots",
			"final_price":          "12.50",
			"unit":                 "bunch",
			"individual_unit_name": "bunch",
			"available":            true,
			"category_name":        "Produce",
		}})
	})

	mux.HandleFunc("/api/purchase_orders", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ts.createOrders, 1)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": 555})
	})

	mux.HandleFunc("/api/purchase_orders/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ts.orderGets, 1)
		json.NewEncoder(w).Encode(map[string]any{
			"id":    555,
			"total": "25.00",
			"purchase_order_items": []map[string]any{{
				"id":       71,
				"quantity": 2,
				"product":  map[string]any{"name": "Rainbow Carrots"},
				"product_unit": map[string]any{
					"id":    4321,
					"price": "12.50",
				},
			}},
		})
	})

	mux.HandleFunc("/api/purchase_order_items", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("/admin/purchase_orders/555/request_delivery_on", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ts.lastDeliveryToken = r.FormValue("authenticity_token")
		ts.lastRequestedOn = r.FormValue("requested_on")
		w.WriteHeader(http.StatusOK)
	})

	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newGreenMarketEnv(t *testing.T, serverURL string) *adapterEnv {
	t.Helper()
	return newAdapterEnv(t, PlatformGreenMarket, models.Settings{
		distributors.SettingBaseURL: serverURL,
		settingGMBuyerID:            10,
		settingGMSellerID:           20,
	})
}

func TestGreenMarketLoginSubmitsScrapedToken(t *testing.T) {
	t.Parallel()

	server := newGreenMarketTestServer(t)
	env := newGreenMarketEnv(t, server.URL)
	adapter := env.adapter(t)

	results, err := adapter.Search(context.Background(), "carrot", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if n := atomic.LoadInt32(&server.logins); n != 1 {
		t.Fatalf("expected one login, got %d", n)
	}
	if server.lastLoginToken != "csrf-signin" {
		t.Fatalf("expected the scraped csrf token in the login form, got %q", server.lastLoginToken)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.SKU != "4321" {
		t.Fatalf("expected the product unit id as sku, got %q", got.SKU)
	}
	if got.PriceCents == nil || *got.PriceCents != 1250 {
		t.Fatalf("expected price 1250, got %v", got.PriceCents)
	}
	if got.PackSize != "bunch" || got.Category != "Produce" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestGreenMarketLoginFailureReRendersForm(t *testing.T) {
	t.Parallel()

	server := newGreenMarketTestServer(t)
	server.loginFails.Store(true)
	env := newGreenMarketEnv(t, server.URL)
	adapter := env.adapter(t)

	ok, err := adapter.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ok {
		t.Fatal("expected a re-rendered sign-in form to count as failure")
	}
}

func TestGreenMarketCreatesOrderBeforeFirstAdd(t *testing.T) {
	t.Parallel()

	server := newGreenMarketTestServer(t)
	env := newGreenMarketEnv(t, server.URL)
	adapter := env.adapter(t)

	for i := 0; i < 2; i++ {
		added, err := adapter.AddToCart(context.Background(), "4321", 2)
		if err != nil {
			t.Fatalf("AddToCart %d: %v", i, err)
		}
		if !added {
			t.Fatalf("AddToCart %d reported failure", i)
		}
	}
	if n := atomic.LoadInt32(&server.createOrders); n != 1 {
		t.Fatalf("expected exactly one purchase order, got %d", n)
	}
}

func TestGreenMarketGetCartWithoutOrderSkipsNetwork(t *testing.T) {
	t.Parallel()

	server := newGreenMarketTestServer(t)
	env := newGreenMarketEnv(t, server.URL)
	adapter := env.adapter(t)

	cart, err := adapter.GetCart(context.Background())
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected an empty cart, got %+v", cart.Items)
	}
	if n := atomic.LoadInt32(&server.orderGets); n != 0 {
		t.Fatalf("expected no order fetch without an open order, got %d", n)
	}
}

func TestGreenMarketCartParsing(t *testing.T) {
	t.Parallel()

	server := newGreenMarketTestServer(t)
	env := newGreenMarketEnv(t, server.URL)
	adapter := env.adapter(t)

	if _, err := adapter.AddToCart(context.Background(), "4321", 2); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	cart, err := adapter.GetCart(context.Background())
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if cart.CartID != "555" {
		t.Fatalf("unexpected cart id %q", cart.CartID)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(cart.Items))
	}
	line := cart.Items[0]
	if line.SKU != "4321" || line.Quantity != 2 || line.Description != "Rainbow Carrots" {
		t.Fatalf("unexpected line %+v", line)
	}
	if line.ExtendedPriceCents == nil || *line.ExtendedPriceCents != 2500 {
		t.Fatalf("expected extended price 2500, got %v", line.ExtendedPriceCents)
	}
	if cart.TotalCents != 2500 {
		t.Fatalf("expected total 2500, got %d", cart.TotalCents)
	}
}

func TestGreenMarketSetDeliveryDateUsesFreshToken(t *testing.T) {
	t.Parallel()

	server := newGreenMarketTestServer(t)
	env := newGreenMarketEnv(t, server.URL)
	adapter := env.adapter(t)

	setter, okType := adapter.(DeliveryDateSetter)
	if !okType {
		t.Fatal("expected the adapter to support delivery dates")
	}

	if _, err := adapter.AddToCart(context.Background(), "4321", 1); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}

	date := time.Date(2026, time.September, 4, 0, 0, 0, 0, time.UTC)
	ok, err := setter.SetDeliveryDate(context.Background(), date)
	if err != nil {
		t.Fatalf("SetDeliveryDate: %v", err)
	}
	if !ok {
		t.Fatal("expected the delivery date to be accepted")
	}
	if server.lastRequestedOn != "2026-09-04" {
		t.Fatalf("unexpected requested_on %q", server.lastRequestedOn)
	}
	if server.lastDeliveryToken != "csrf-dash" {
		t.Fatalf("expected the dashboard csrf token, got %q", server.lastDeliveryToken)
	}
}

func TestGreenMarketDeliveryDatesAreWeekdays(t *testing.T) {
	t.Parallel()

	server := newGreenMarketTestServer(t)
	env := newGreenMarketEnv(t, server.URL)
	adapter := env.adapter(t)

	dates, err := adapter.GetDeliveryDates(context.Background())
	if err != nil {
		t.Fatalf("GetDeliveryDates: %v", err)
	}
	if len(dates) != 7 {
		t.Fatalf("expected 7 dates, got %d", len(dates))
	}
	for _, d := range dates {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("expected weekdays only, got %v", d)
		}
		if !d.After(time.Now().Add(-24 * time.Hour)) {
			t.Fatalf("expected future dates, got %v", d)
		}
	}
}
