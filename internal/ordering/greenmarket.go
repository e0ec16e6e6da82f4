package ordering

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/platewise-backend/internal/distributors"
	"github.com/angelmondragon/platewise-backend/internal/sessions"
	"github.com/angelmondragon/platewise-backend/pkg/errors"
)

// PlatformGreenMarket identifies the Green Market marketplace, a Rails app.
// The JSON API rides on the session cookie; form POSTs (login, delivery
// date) additionally need the CSRF token scraped from a page. The workflow
// is order-first: a purchase order must exist before any item goes in.
const PlatformGreenMarket = "greenmarket"

// Green Market setting keys.
const (
	settingGMBuyerID  = "buyer_id"
	settingGMSellerID = "seller_id"
)

var gmCSRFPattern = regexp.MustCompile(`<meta name="csrf-token" content="([^"]+)"`)

type greenMarketClient struct {
	*baseClient

	stateMu   sync.Mutex
	csrfToken string
	orderID   int64
}

func newGreenMarketClient(params baseParams) (*greenMarketClient, error) {
	base, err := newBaseClient(params)
	if err != nil {
		return nil, err
	}
	if base.baseURL == "" {
		return nil, errors.New(errors.CodeConfiguration,
			fmt.Sprintf("distributor %s is missing setting %q", params.Distributor.ID, distributors.SettingBaseURL))
	}
	c := &greenMarketClient{baseClient: base}
	base.bind(c)
	return c, nil
}

func (c *greenMarketClient) Platform() string {
	return PlatformGreenMarket
}

func (c *greenMarketClient) ids() (buyerID, sellerID int, err error) {
	buyerID, err = distributors.SettingInt(c.dist, settingGMBuyerID)
	if err != nil {
		return 0, 0, err
	}
	sellerID, err = distributors.SettingInt(c.dist, settingGMSellerID)
	if err != nil {
		return 0, 0, err
	}
	return buyerID, sellerID, nil
}

// Authenticate scrapes the CSRF token off the sign-in page and submits the
// Rails login form. Success is a 200 whose final URL moved off the sign-in
// path; a failed login re-renders the form at the same address.
func (c *greenMarketClient) Authenticate(ctx context.Context) (bool, error) {
	creds, err := c.credentials(ctx)
	if err != nil {
		return false, err
	}
	client, err := c.client(ctx)
	if err != nil {
		return false, err
	}

	pageReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/users/sign_in"), nil)
	if err != nil {
		return false, err
	}
	_, page, err := c.do(ctx, pageReq)
	if err != nil {
		return false, err
	}
	token := extractCSRFToken(string(page))
	if token == "" {
		c.logWarn(ctx, "sign-in page carried no csrf token")
		return false, nil
	}

	form := url.Values{
		"authenticity_token": {token},
		"user[email]":        {creds.Username},
		"user[password]":     {creds.Password},
		"user[remember_me]":  {"0"},
		"commit":             {"Sign in"},
	}
	loginReq, err := c.newFormRequest(ctx, c.endpoint("/users/sign_in"), form)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(loginReq)
	if err != nil {
		return false, errors.Wrap(errors.CodeTransport, err,
			fmt.Sprintf("login failed for %s", c.distributorName()))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || strings.Contains(resp.Request.URL.Path, "/users/sign_in") {
		c.logWarn(ctx, fmt.Sprintf("login landed on %s", resp.Request.URL.Path))
		return false, nil
	}

	c.stateMu.Lock()
	c.csrfToken = ""
	c.stateMu.Unlock()

	expiry := time.Now().Add(24 * time.Hour).UTC()
	if err := c.saveSession(ctx, sessions.Update{
		Cookies:   c.cookieMap(),
		ExpiresAt: &expiry,
	}); err != nil {
		return false, err
	}
	return true, nil
}

func extractCSRFToken(html string) string {
	match := gmCSRFPattern.FindStringSubmatch(html)
	if match == nil {
		return ""
	}
	return match[1]
}

// freshCSRFToken fetches the token from an authenticated page; the cached
// value survives until a form POST invalidates it.
func (c *greenMarketClient) freshCSRFToken(ctx context.Context) (string, error) {
	c.stateMu.Lock()
	cached := c.csrfToken
	c.stateMu.Unlock()
	if cached != "" {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/admin/dashboard"), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html")
	status, body, err := c.do(ctx, req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", nil
	}

	token := extractCSRFToken(string(body))
	c.stateMu.Lock()
	c.csrfToken = token
	c.stateMu.Unlock()
	return token, nil
}

type gmProduct struct {
	ID                 int64       `json:"id"`
	ProductUnitID      int64       `json:"product_unit_id"`
	Name               string      `json:"name"`
	FinalPrice         json.Number `json:"final_price"`
	Price              json.Number `json:"price"`
	Unit               string      `json:"unit"`
	UnitDescription    string      `json:"unit_description"`
	IndividualUnitName string      `json:"individual_unit_name"`
	UnitName           string      `json:"unit_name"`
	Available          *bool       `json:"available"`
	Published          *bool       `json:"published"`
	CategoryName       string      `json:"category_name"`
	ImageURL           string      `json:"image_url"`
	ProductPhoto       struct {
		SmallURL string `json:"small_url"`
	} `json:"product_photo"`
	ProductUnits []struct {
		ID    int64       `json:"id"`
		Price json.Number `json:"price"`
	} `json:"product_units"`
}

func (p gmProduct) toSearchResult() SearchResult {
	unitID := p.ProductUnitID
	if unitID == 0 {
		unitID = p.ID
	}
	sku := strconv.FormatInt(unitID, 10)

	r := SearchResult{
		SKU:         sku,
		Description: p.Name,
		Category:    p.CategoryName,
		ProductID:   sku,
	}
	if r.PackSize = p.Unit; r.PackSize == "" {
		r.PackSize = p.UnitDescription
	}
	if r.PackUnit = p.IndividualUnitName; r.PackUnit == "" {
		r.PackUnit = p.UnitName
	}

	inStock := true
	if p.Available != nil {
		inStock = *p.Available
	} else if p.Published != nil {
		inStock = *p.Published
	}
	r.InStock = &inStock

	if r.ImageURL = p.ProductPhoto.SmallURL; r.ImageURL == "" {
		r.ImageURL = p.ImageURL
	}

	if cents, ok := numberToCents(p.FinalPrice); ok && cents != 0 {
		r.PriceCents = &cents
	} else if cents, ok := numberToCents(p.Price); ok && cents != 0 {
		r.PriceCents = &cents
	} else if len(p.ProductUnits) > 0 {
		if cents, ok := numberToCents(p.ProductUnits[0].Price); ok && cents != 0 {
			r.PriceCents = &cents
		}
	}
	return r
}

func (c *greenMarketClient) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if err := c.requireAuth(ctx); err != nil {
		return nil, err
	}
	var results []SearchResult
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		found, err := c.searchCatalog(ctx, query, limit)
		if err != nil {
			return err
		}
		results = found
		return nil
	})
	return results, err
}

func (c *greenMarketClient) searchCatalog(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	buyerID, sellerID, err := c.ids()
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"page":        {"1"},
		"per_page":    {strconv.Itoa(limit)},
		"buyer_id":    {strconv.Itoa(buyerID)},
		"in_stock_on": {time.Now().Format("2006-01-02")},
		"text":        {query},
		"sort_by":     {"popularity"},
	}
	path := fmt.Sprintf("/api/sellers/%d/products/", sellerID)
	status, body, err := c.apiCall(ctx, http.MethodGet, path, nil, params)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("search", status)
	}

	// The endpoint answers with a bare array or a wrapped object depending
	// on version.
	var products []gmProduct
	if err := json.Unmarshal(body, &products); err != nil {
		var wrapped struct {
			Products []gmProduct `json:"products"`
			Items    []gmProduct `json:"items"`
		}
		if err := decodeJSON(body, &wrapped); err != nil {
			return nil, err
		}
		products = wrapped.Products
		if len(products) == 0 {
			products = wrapped.Items
		}
	}

	results := make([]SearchResult, 0, len(products))
	for _, p := range products {
		results = append(results, p.toSearchResult())
	}
	return results, nil
}

// ensureOrder returns the purchase order items get added to, creating one
// with tomorrow's requested delivery when none is cached.
func (c *greenMarketClient) ensureOrder(ctx context.Context) (int64, error) {
	c.stateMu.Lock()
	cached := c.orderID
	c.stateMu.Unlock()
	if cached != 0 {
		return cached, nil
	}

	buyerID, sellerID, err := c.ids()
	if err != nil {
		return 0, err
	}
	payload := map[string]any{
		"purchase_order": map[string]any{
			"seller_id":    sellerID,
			"buyer_id":     buyerID,
			"requested_on": time.Now().AddDate(0, 0, 1).Format("2006-01-02"),
		},
	}
	status, body, err := c.apiCall(ctx, http.MethodPost, "/api/purchase_orders", payload, nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return 0, c.unexpectedStatus("create order", status)
	}

	var resp struct {
		ID int64 `json:"id"`
	}
	if err := decodeJSON(body, &resp); err != nil {
		return 0, err
	}
	if resp.ID != 0 {
		c.stateMu.Lock()
		c.orderID = resp.ID
		c.stateMu.Unlock()
	}
	return resp.ID, nil
}

func (c *greenMarketClient) AddToCart(ctx context.Context, sku string, quantity int) (bool, error) {
	if err := c.requireAuth(ctx); err != nil {
		return false, err
	}
	unitID, err := strconv.ParseInt(sku, 10, 64)
	if err != nil {
		c.logWarn(ctx, fmt.Sprintf("sku %q is not a numeric product unit id", sku))
		return false, nil
	}

	var added bool
	err = c.withExpiryRetry(ctx, func(ctx context.Context) error {
		orderID, err := c.ensureOrder(ctx)
		if err != nil {
			return err
		}
		if orderID == 0 {
			c.logWarn(ctx, "could not obtain a purchase order for cart add")
			added = false
			return nil
		}

		payload := map[string]any{
			"product_unit_id": unitID,
			"quantity":        strconv.Itoa(quantity),
			"buyer_order_id":  orderID,
			"src":             "api",
		}
		status, _, err := c.apiCall(ctx, http.MethodPost, "/api/purchase_order_items", payload, nil)
		if err != nil {
			return err
		}
		added = status == http.StatusOK || status == http.StatusCreated
		return nil
	})
	return added, err
}

type gmOrderPayload struct {
	ID                 int64         `json:"id"`
	Total              json.Number   `json:"total"`
	PurchaseOrderItems []gmOrderLine `json:"purchase_order_items"`
	Items              []gmOrderLine `json:"items"`
}

type gmOrderLine struct {
	ID       int64       `json:"id"`
	Quantity json.Number `json:"quantity"`
	Product  struct {
		Name string `json:"name"`
	} `json:"product"`
	ProductUnit struct {
		ID    int64       `json:"id"`
		Price json.Number `json:"price"`
	} `json:"product_unit"`
}

func (c *greenMarketClient) GetCart(ctx context.Context) (*Cart, error) {
	if err := c.requireAuth(ctx); err != nil {
		return nil, err
	}

	c.stateMu.Lock()
	orderID := c.orderID
	c.stateMu.Unlock()
	if orderID == 0 {
		return EmptyCart(), nil
	}

	var cart *Cart
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		payload, err := c.loadOrder(ctx, orderID)
		if err != nil {
			return err
		}
		cart = parseGreenMarketOrder(payload)
		return nil
	})
	return cart, err
}

func (c *greenMarketClient) loadOrder(ctx context.Context, orderID int64) (*gmOrderPayload, error) {
	path := fmt.Sprintf("/api/purchase_orders/%d", orderID)
	status, body, err := c.apiCall(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("get order", status)
	}
	var payload gmOrderPayload
	if err := decodeJSON(body, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func parseGreenMarketOrder(payload *gmOrderPayload) *Cart {
	cart := EmptyCart()
	cart.CartID = strconv.FormatInt(payload.ID, 10)

	lines := payload.PurchaseOrderItems
	if len(lines) == 0 {
		lines = payload.Items
	}
	for _, line := range lines {
		unit, _ := numberToCents(line.ProductUnit.Price)
		quantity := numberToInt(line.Quantity)
		extended := unit * int64(quantity)

		cart.Items = append(cart.Items, CartItem{
			SKU:                strconv.FormatInt(line.ProductUnit.ID, 10),
			Description:        line.Product.Name,
			Quantity:           quantity,
			UnitPriceCents:     &unit,
			ExtendedPriceCents: &extended,
			ProductID:          strconv.FormatInt(line.ID, 10),
		})
		cart.SubtotalCents += extended
	}
	if total, ok := numberToCents(payload.Total); ok && total != 0 {
		cart.TotalCents = total
	} else {
		cart.TotalCents = cart.SubtotalCents
	}
	return cart
}

// ClearCart deletes every item on the open purchase order.
func (c *greenMarketClient) ClearCart(ctx context.Context) (bool, error) {
	if err := c.requireAuth(ctx); err != nil {
		return false, err
	}

	c.stateMu.Lock()
	orderID := c.orderID
	c.stateMu.Unlock()
	if orderID == 0 {
		return true, nil
	}

	var cleared bool
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		payload, err := c.loadOrder(ctx, orderID)
		if err != nil {
			return err
		}
		cart := parseGreenMarketOrder(payload)
		if len(cart.Items) == 0 {
			cleared = true
			return nil
		}

		ok := true
		for _, item := range cart.Items {
			if item.ProductID == "" {
				ok = false
				continue
			}
			path := fmt.Sprintf("/api/purchase_order_items/%s", item.ProductID)
			status, _, err := c.apiCall(ctx, http.MethodDelete, path, nil, nil)
			if err != nil {
				return err
			}
			if status != http.StatusOK && status != http.StatusNoContent {
				ok = false
			}
		}
		cleared = ok
		return nil
	})
	return cleared, err
}

// SetDeliveryDate posts the admin form that moves the order's requested
// delivery. Form POSTs need a fresh CSRF token, and a successful one burns
// it.
func (c *greenMarketClient) SetDeliveryDate(ctx context.Context, date time.Time) (bool, error) {
	if err := c.requireAuth(ctx); err != nil {
		return false, err
	}

	c.stateMu.Lock()
	orderID := c.orderID
	c.stateMu.Unlock()
	if orderID == 0 {
		c.logWarn(ctx, "no purchase order to set a delivery date on")
		return false, nil
	}

	var ok bool
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		token, err := c.freshCSRFToken(ctx)
		if err != nil {
			return err
		}
		if token == "" {
			c.logWarn(ctx, "could not fetch a csrf token for the delivery date form")
			ok = false
			return nil
		}

		form := url.Values{
			"authenticity_token": {token},
			"requested_on":       {date.Format("2006-01-02")},
		}
		path := fmt.Sprintf("/admin/purchase_orders/%d/request_delivery_on", orderID)
		req, err := c.newFormRequest(ctx, c.endpoint(path), form)
		if err != nil {
			return err
		}
		status, _, err := c.do(ctx, req)

		c.stateMu.Lock()
		c.csrfToken = ""
		c.stateMu.Unlock()

		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return errors.New(errors.CodeSessionExpired,
				fmt.Sprintf("%s rejected the stored session", c.distributorName()))
		}
		ok = status == http.StatusOK || status == http.StatusFound
		return nil
	})
	return ok, err
}

// GetDeliveryDates generates the next seven weekdays; the marketplace shows
// its schedule only in checkout HTML, so this mirrors what buyers see there.
func (c *greenMarketClient) GetDeliveryDates(context.Context) ([]time.Time, error) {
	dates := make([]time.Time, 0, 7)
	day := time.Now()
	for len(dates) < 7 {
		day = day.AddDate(0, 0, 1)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		dates = append(dates, time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC))
	}
	return dates, nil
}
