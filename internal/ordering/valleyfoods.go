package ordering

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/platewise-backend/internal/distributors"
	"github.com/angelmondragon/platewise-backend/internal/sessions"
	"github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/golang-jwt/jwt/v5"
)

// PlatformValleyFoods identifies distributors on the shared B2C OAuth2
// ordering platform. One login serves every distributor on the platform;
// the customer_id setting selects whose catalog and orders we touch.
const PlatformValleyFoods = "valleyfoods"

// Valley Foods setting keys.
const (
	settingVFCustomerID       = "customer_id"
	settingVFOperationCompany = "operation_company_number"
	settingVFOAuthTenant      = "oauth_tenant"
	settingVFOAuthPolicy      = "oauth_policy"
	settingVFOAuthClientID    = "oauth_client_id"
	settingVFTokenFile        = "token_file_path"
)

const (
	vfBusinessUnitKey = 3
	vfEmptyOrderID    = "00000000-0000-0000-0000-000000000000"
)

// valleyFoodsClient talks to the Valley Foods platform API. The platform is
// order-first: cart mutations target an OrderEntryHeader that has to exist
// before the first line is written.
type valleyFoodsClient struct {
	*baseClient

	orderMu sync.Mutex
	orderID string
}

func newValleyFoodsClient(params baseParams) (*valleyFoodsClient, error) {
	base, err := newBaseClient(params)
	if err != nil {
		return nil, err
	}
	if base.baseURL == "" {
		return nil, errors.New(errors.CodeConfiguration,
			fmt.Sprintf("distributor %s is missing setting %q", params.Distributor.ID, distributors.SettingBaseURL))
	}
	c := &valleyFoodsClient{baseClient: base}
	base.bind(c)
	return c, nil
}

func (c *valleyFoodsClient) Platform() string {
	return PlatformValleyFoods
}

// vfAuthStrategy is one way of turning stored material into a live access
// token. Strategies report false without error when they have nothing to
// offer, so the chain moves on to the next one.
type vfAuthStrategy struct {
	name string
	run  func(context.Context) (bool, error)
}

// Authenticate walks an ordered chain of token strategies: the refresh token
// stored with the session, the one provisioned in the credential secret, then
// a token file left behind by an operator's browser capture. The platform
// uses a PKCE authorization-code flow, so there is no way to mint a first
// token from username and password here; when the whole chain is dead an
// operator has to capture a new token.
func (c *valleyFoodsClient) Authenticate(ctx context.Context) (bool, error) {
	strategies := []vfAuthStrategy{
		{name: "session refresh token", run: c.authFromSession},
		{name: "provisioned refresh token", run: c.authFromCredentials},
		{name: "captured token file", run: c.authFromTokenFile},
	}
	for i, strategy := range strategies {
		ok, err := strategy.run(ctx)
		if err != nil || ok {
			return ok, err
		}
		if i < len(strategies)-1 {
			c.logInfo(ctx, fmt.Sprintf("%s did not yield a token, trying %s",
				strategy.name, strategies[i+1].name))
		}
	}

	c.logWarn(ctx, "no usable refresh token; provision one in the credential secret")
	return false, nil
}

func (c *valleyFoodsClient) authFromSession(ctx context.Context) (bool, error) {
	session, err := c.loadSession(ctx)
	if err != nil {
		return false, err
	}
	if session == nil || session.RefreshToken == nil || *session.RefreshToken == "" {
		return false, nil
	}
	return c.refreshAccessToken(ctx, *session.RefreshToken)
}

func (c *valleyFoodsClient) authFromCredentials(ctx context.Context) (bool, error) {
	creds, err := c.credentials(ctx)
	if err != nil {
		return false, err
	}
	token := creds.Extra["refresh_token"]
	if token == "" {
		return false, nil
	}
	return c.refreshAccessToken(ctx, token)
}

// vfTokenFile is the JSON a browser capture writes alongside the deployment;
// settingVFTokenFile points the adapter at it.
type vfTokenFile struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	CapturedAt   string `json:"captured_at"`
}

// authFromTokenFile uses a captured access token while it is still fresh and
// falls back to refreshing with the captured refresh token once it is not.
// An unreadable or malformed file disables the strategy, never the chain.
func (c *valleyFoodsClient) authFromTokenFile(ctx context.Context) (bool, error) {
	path, err := distributors.SettingString(c.dist, settingVFTokenFile)
	if err != nil {
		return false, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		c.logWarn(ctx, fmt.Sprintf("token file %s unreadable: %v", path, err))
		return false, nil
	}
	var tok vfTokenFile
	if err := json.Unmarshal(raw, &tok); err != nil {
		c.logWarn(ctx, fmt.Sprintf("token file %s is not valid JSON", path))
		return false, nil
	}
	if tok.ExpiresIn <= 0 {
		tok.ExpiresIn = 3600
	}

	if tok.AccessToken != "" {
		if remaining, ok := capturedTokenRemaining(tok.CapturedAt, tok.ExpiresIn); ok && remaining > 0 {
			bearer := "Bearer " + tok.AccessToken
			expiry := time.Now().Add(remaining).UTC()
			update := sessions.Update{AuthToken: &bearer, ExpiresAt: &expiry}
			if tok.RefreshToken != "" {
				update.RefreshToken = &tok.RefreshToken
			}
			if err := c.saveSession(ctx, update); err != nil {
				return false, err
			}
			c.logInfo(ctx, "using captured access token")
			return true, nil
		}
	}

	if tok.RefreshToken == "" {
		return false, nil
	}
	return c.refreshAccessToken(ctx, tok.RefreshToken)
}

// capturedTokenRemaining computes how long a captured access token has left,
// with the same one-minute safety margin the refresh path keeps.
func capturedTokenRemaining(capturedAt string, expiresIn int) (time.Duration, bool) {
	if capturedAt == "" {
		return 0, false
	}
	captured, err := time.Parse(time.RFC3339, capturedAt)
	if err != nil {
		return 0, false
	}
	remaining := time.Duration(expiresIn-60)*time.Second - time.Since(captured)
	return remaining, true
}

func (c *valleyFoodsClient) refreshAccessToken(ctx context.Context, refreshToken string) (bool, error) {
	tenant, err := distributors.SettingString(c.dist, settingVFOAuthTenant)
	if err != nil {
		return false, err
	}
	policy, err := distributors.SettingString(c.dist, settingVFOAuthPolicy)
	if err != nil {
		return false, err
	}
	clientID, err := distributors.SettingString(c.dist, settingVFOAuthClientID)
	if err != nil {
		return false, err
	}

	tokenURL := fmt.Sprintf("https://%s.b2clogin.com/%s.onmicrosoft.com/%s/oauth2/v2.0/token",
		tenant, tenant, policy)
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {clientID},
		"refresh_token": {refreshToken},
	}
	req, err := c.newFormRequest(ctx, tokenURL, form)
	if err != nil {
		return false, err
	}
	status, body, err := c.do(ctx, req)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		c.logWarn(ctx, fmt.Sprintf("token refresh rejected with status %d", status))
		return false, nil
	}

	var token struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := decodeJSON(body, &token); err != nil {
		return false, err
	}
	// The B2C policy may hand back only an id_token on refresh; API calls
	// need a real access token.
	if token.AccessToken == "" {
		c.logWarn(ctx, "token refresh returned no access token")
		return false, nil
	}

	if token.ExpiresIn <= 60 {
		token.ExpiresIn = 3600
	}
	next := token.RefreshToken
	if next == "" {
		next = refreshToken
	}
	bearer := "Bearer " + token.AccessToken
	expiry := time.Now().Add(time.Duration(token.ExpiresIn-60) * time.Second).UTC()
	// The access token is a JWT; its exp claim is authoritative where the
	// advisory expires_in can drift.
	if exp, ok := accessTokenExpiry(token.AccessToken); ok {
		expiry = exp.Add(-time.Minute).UTC()
	}
	if err := c.saveSession(ctx, sessions.Update{
		AuthToken:    &bearer,
		RefreshToken: &next,
		ExpiresAt:    &expiry,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// accessTokenExpiry reads the exp claim without verifying the signature; we
// are the token's audience, not its issuer.
func accessTokenExpiry(accessToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (c *valleyFoodsClient) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
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

type vfProduct struct {
	ProductNumber            string   `json:"ProductNumber"`
	ProductDescription       string   `json:"ProductDescription"`
	ProductKey               string   `json:"ProductKey"`
	ProductPackSizes         []string `json:"ProductPackSizes"`
	ProductCategory          string   `json:"ProductCategory"`
	ProductImageUrlThumbnail string   `json:"ProductImageUrlThumbnail"`
	IsOutOfStock             bool     `json:"IsOutOfStock"`
	Price                    float64  `json:"Price"`
	CustomerPrice            float64  `json:"CustomerPrice"`

	UnitOfMeasureOrderQuantities []struct {
		UnitOfMeasureAbbreviation string  `json:"UnitOfMeasureAbbreviation"`
		Price                     float64 `json:"Price"`
		CustomerPrice             float64 `json:"CustomerPrice"`
	} `json:"UnitOfMeasureOrderQuantities"`
}

func (p vfProduct) toSearchResult() SearchResult {
	inStock := !p.IsOutOfStock
	r := SearchResult{
		SKU:         p.ProductNumber,
		Description: p.ProductDescription,
		ProductID:   p.ProductKey,
		ImageURL:    p.ProductImageUrlThumbnail,
		Category:    p.ProductCategory,
		InStock:     &inStock,
	}
	if len(p.ProductPackSizes) > 0 {
		r.PackSize = p.ProductPackSizes[0]
	}
	if len(p.UnitOfMeasureOrderQuantities) > 0 {
		uom := p.UnitOfMeasureOrderQuantities[0]
		r.PackUnit = uom.UnitOfMeasureAbbreviation
		if dollars := firstNonZero(uom.Price, uom.CustomerPrice); dollars > 0 {
			cents := dollarsToCents(dollars)
			r.PriceCents = &cents
		}
	}
	if r.PriceCents == nil {
		if dollars := firstNonZero(p.Price, p.CustomerPrice); dollars > 0 {
			cents := dollarsToCents(dollars)
			r.PriceCents = &cents
		}
	}
	return r
}

func (c *valleyFoodsClient) searchCatalog(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	customerID, err := distributors.SettingString(c.dist, settingVFCustomerID)
	if err != nil {
		return nil, err
	}
	opco, err := distributors.SettingString(c.dist, settingVFOperationCompany)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"BusinessUnitKey":        vfBusinessUnitKey,
		"OperationCompanyNumber": opco,
		"CustomerId":             customerID,
		"DeliveryDate":           c.deliveryDateParam(ctx),
		"CurrentPageNumber":      0,
		"PageSize":               limit,
		"QueryText":              query,
		"Skip":                   0,
		"OrderEntryHeaderId":     vfEmptyOrderID,
		"LoadPricing":            true,
		"AdvanceFilter":          map[string]any{},
	}
	status, body, err := c.apiCall(ctx, http.MethodPost, "/ProductCatalog/V1/SearchProductCatalog", payload, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("search", status)
	}

	var resp struct {
		IsSuccess     bool     `json:"IsSuccess"`
		ErrorMessages []string `json:"ErrorMessages"`
		ResultObject  struct {
			CatalogProducts []vfProduct `json:"CatalogProducts"`
		} `json:"ResultObject"`
	}
	if err := decodeJSON(body, &resp); err != nil {
		return nil, err
	}
	if !resp.IsSuccess {
		c.logWarn(ctx, fmt.Sprintf("catalog search reported failure: %s",
			strings.Join(resp.ErrorMessages, "; ")))
		return []SearchResult{}, nil
	}
	products := resp.ResultObject.CatalogProducts
	if len(products) == 0 {
		return []SearchResult{}, nil
	}

	// LoadPricing returns zeros on this platform; prices need their own call.
	keys := make([]string, 0, len(products))
	for _, p := range products {
		if p.ProductKey != "" {
			keys = append(keys, p.ProductKey)
		}
	}
	prices, err := c.fetchPrices(ctx, customerID, opco, keys)
	if err != nil {
		if errors.HasCode(err, errors.CodeSessionExpired) {
			return nil, err
		}
		c.logWarn(ctx, "price lookup failed, returning unpriced results")
		prices = nil
	}

	results := make([]SearchResult, 0, len(products))
	for _, p := range products {
		r := p.toSearchResult()
		if cents, ok := prices[strings.ToLower(p.ProductKey)]; ok {
			r.PriceCents = &cents
		}
		results = append(results, r)
	}
	return results, nil
}

func (c *valleyFoodsClient) fetchPrices(ctx context.Context, customerID, opco string, keys []string) (map[string]int64, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	requests := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		requests = append(requests, map[string]any{
			"ProductKey":        key,
			"UnitOfMeasureType": 0,
		})
	}
	payload := map[string]any{
		"BusinessUnitKey":              vfBusinessUnitKey,
		"OperationCompanyNumber":       opco,
		"CustomerId":                   customerID,
		"DeliveryDate":                 c.deliveryDateParam(ctx),
		"CustomerProductPriceRequests": requests,
		"IgnoreRetry":                  false,
	}
	status, body, err := c.apiCall(ctx, http.MethodPost, "/CustomerProductPrice/V1/GetCustomerProductPrice", payload, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("price lookup", status)
	}

	var resp struct {
		IsSuccess    bool `json:"IsSuccess"`
		ResultObject []struct {
			ProductKey string  `json:"ProductKey"`
			Price      float64 `json:"Price"`
		} `json:"ResultObject"`
	}
	if err := decodeJSON(body, &resp); err != nil {
		return nil, err
	}
	if !resp.IsSuccess {
		return nil, nil
	}

	prices := make(map[string]int64, len(resp.ResultObject))
	for _, item := range resp.ResultObject {
		prices[strings.ToLower(item.ProductKey)] = dollarsToCents(item.Price)
	}
	return prices, nil
}

// deliveryDateParam returns the next delivery date for catalog context, or
// nil when the platform has none on file.
func (c *valleyFoodsClient) deliveryDateParam(ctx context.Context) any {
	dates, err := c.fetchDeliveryDates(ctx)
	if err != nil || len(dates) == 0 {
		return nil
	}
	return dates[0].Format(time.RFC3339)
}

func (c *valleyFoodsClient) AddToCart(ctx context.Context, sku string, quantity int) (bool, error) {
	if err := c.requireAuth(ctx); err != nil {
		return false, err
	}
	var added bool
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		ok, err := c.addOrderLine(ctx, sku, quantity)
		if err != nil {
			return err
		}
		added = ok
		return nil
	})
	return added, err
}

// addOrderLine looks the product up for its platform key, makes sure an
// order header exists, and upserts the line. UpdateOrderEntryDetail covers
// both add and quantity change.
func (c *valleyFoodsClient) addOrderLine(ctx context.Context, sku string, quantity int) (bool, error) {
	results, err := c.searchCatalog(ctx, sku, 1)
	if err != nil {
		return false, err
	}
	if len(results) == 0 || results[0].ProductID == "" {
		c.logWarn(ctx, fmt.Sprintf("product %s not found in catalog", sku))
		return false, nil
	}
	product := results[0]

	customerID, err := distributors.SettingString(c.dist, settingVFCustomerID)
	if err != nil {
		return false, err
	}
	orderID, err := c.ensureOrder(ctx, customerID)
	if err != nil {
		return false, err
	}
	if orderID == "" {
		c.logWarn(ctx, "could not obtain an order header for cart add")
		return false, nil
	}

	var priceDollars float64
	if product.PriceCents != nil {
		priceDollars = float64(*product.PriceCents) / 100
	}
	payload := map[string]any{
		"OrderEntryHeaderId":   orderID,
		"BusinessUnitKey":      vfBusinessUnitKey,
		"BusinessUnitERPKey":   vfBusinessUnitKey,
		"CustomerId":           customerID,
		"ProductKey":           product.ProductID,
		"UnitOfMeasureType":    0,
		"Quantity":             quantity,
		"Price":                priceDollars,
		"ProductNumber":        sku,
		"ProductDescription":   product.Description,
		"ProductPackSize":      product.PackSize,
		"ProductIsCatchWeight": false,
		"ProductAverageWeight": 1,
	}
	status, body, err := c.apiCall(ctx, http.MethodPost, "/OrderEntryDetail/V1/UpdateOrderEntryDetail", payload, nil)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, c.unexpectedStatus("add to cart", status)
	}
	var resp struct {
		IsSuccess bool `json:"IsSuccess"`
	}
	if err := decodeJSON(body, &resp); err != nil {
		return false, err
	}
	return resp.IsSuccess, nil
}

// activeOrderID returns the platform's open order for this customer, if any.
// The id is cached for the adapter's lifetime; orders live server-side per
// customer, not per session.
func (c *valleyFoodsClient) activeOrderID(ctx context.Context, customerID string) (string, error) {
	c.orderMu.Lock()
	cached := c.orderID
	c.orderMu.Unlock()
	if cached != "" {
		return cached, nil
	}

	status, body, err := c.apiCall(ctx, http.MethodGet, "/OrderEntryHeader/V1/GetActiveOrder", nil,
		url.Values{"CustomerId": {customerID}})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", nil
	}
	id, err := parseOrderHeaderID(body)
	if err != nil {
		return "", err
	}
	if id != "" {
		c.orderMu.Lock()
		c.orderID = id
		c.orderMu.Unlock()
	}
	return id, nil
}

func (c *valleyFoodsClient) ensureOrder(ctx context.Context, customerID string) (string, error) {
	id, err := c.activeOrderID(ctx, customerID)
	if err != nil || id != "" {
		return id, err
	}

	payload := map[string]any{
		"CustomerId":          customerID,
		"PurchaseOrderNumber": "",
	}
	status, body, err := c.apiCall(ctx, http.MethodPost, "/OrderEntryHeader/V1/CreateOrderEntryHeader", payload, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", c.unexpectedStatus("create order", status)
	}
	id, err = parseOrderHeaderID(body)
	if err != nil {
		return "", err
	}
	if id != "" {
		c.orderMu.Lock()
		c.orderID = id
		c.orderMu.Unlock()
	}
	return id, nil
}

func parseOrderHeaderID(body []byte) (string, error) {
	var resp struct {
		IsSuccess    bool `json:"IsSuccess"`
		ResultObject struct {
			OrderEntryHeaderId string `json:"OrderEntryHeaderId"`
		} `json:"ResultObject"`
	}
	if err := decodeJSON(body, &resp); err != nil {
		return "", err
	}
	if !resp.IsSuccess {
		return "", nil
	}
	id := resp.ResultObject.OrderEntryHeaderId
	if id == vfEmptyOrderID {
		return "", nil
	}
	return id, nil
}

func (c *valleyFoodsClient) GetCart(ctx context.Context) (*Cart, error) {
	if err := c.requireAuth(ctx); err != nil {
		return nil, err
	}
	var cart *Cart
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		loaded, err := c.loadCart(ctx)
		if err != nil {
			return err
		}
		cart = loaded
		return nil
	})
	return cart, err
}

func (c *valleyFoodsClient) loadCart(ctx context.Context) (*Cart, error) {
	customerID, err := distributors.SettingString(c.dist, settingVFCustomerID)
	if err != nil {
		return nil, err
	}
	orderID, err := c.activeOrderID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if orderID == "" {
		return EmptyCart(), nil
	}

	status, body, err := c.apiCall(ctx, http.MethodGet, "/Order/V1/GetOrder", nil,
		url.Values{"orderEntryHeaderId": {orderID}})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("get order", status)
	}

	var order struct {
		IsSuccess    bool `json:"IsSuccess"`
		ResultObject struct {
			TotalOrderPrice float64 `json:"TotalOrderPrice"`
			TotalLines      int     `json:"TotalLines"`
			TotalQuantity   int     `json:"TotalQuantity"`
		} `json:"ResultObject"`
	}
	if err := decodeJSON(body, &order); err != nil {
		return nil, err
	}
	if !order.IsSuccess {
		return EmptyCart(), nil
	}

	totalCents := dollarsToCents(order.ResultObject.TotalOrderPrice)
	cart := &Cart{
		Items:         []CartItem{},
		SubtotalCents: totalCents,
		TotalCents:    totalCents,
		CartID:        orderID,
	}

	lineStatus, lineBody, err := c.apiCall(ctx, http.MethodGet, "/OrderEntryDetail/V1/GetOrderEntryDetails", nil,
		url.Values{"orderEntryHeaderId": {orderID}})
	if err != nil {
		return nil, err
	}
	switch {
	case lineStatus == http.StatusOK:
		var lines struct {
			IsSuccess    bool `json:"IsSuccess"`
			ResultObject []struct {
				ProductNumber      string  `json:"ProductNumber"`
				ProductDescription string  `json:"ProductDescription"`
				ProductKey         string  `json:"ProductKey"`
				Quantity           int     `json:"Quantity"`
				Price              float64 `json:"Price"`
				ExtendedPrice      float64 `json:"ExtendedPrice"`
			} `json:"ResultObject"`
		}
		if err := decodeJSON(lineBody, &lines); err != nil {
			return nil, err
		}
		if lines.IsSuccess {
			for _, line := range lines.ResultObject {
				unit := dollarsToCents(line.Price)
				extended := dollarsToCents(line.ExtendedPrice)
				cart.Items = append(cart.Items, CartItem{
					SKU:                line.ProductNumber,
					Description:        line.ProductDescription,
					Quantity:           line.Quantity,
					UnitPriceCents:     &unit,
					ExtendedPriceCents: &extended,
					ProductID:          line.ProductKey,
				})
			}
		}
	case order.ResultObject.TotalLines > 0:
		// Some accounts cannot read line details (the endpoint 404s); surface
		// a summary line so callers still see the cart is non-empty.
		extended := totalCents
		cart.Items = append(cart.Items, CartItem{
			SKU: "(items in cart)",
			Description: fmt.Sprintf("%d item(s), %d total qty",
				order.ResultObject.TotalLines, order.ResultObject.TotalQuantity),
			Quantity:           order.ResultObject.TotalQuantity,
			ExtendedPriceCents: &extended,
		})
	}
	return cart, nil
}

// ClearCart deletes order lines one by one; the platform has no bulk clear.
func (c *valleyFoodsClient) ClearCart(ctx context.Context) (bool, error) {
	if err := c.requireAuth(ctx); err != nil {
		return false, err
	}
	var cleared bool
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		cart, err := c.loadCart(ctx)
		if err != nil {
			return err
		}
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
			removed, err := c.removeOrderLine(ctx, cart.CartID, item.ProductID)
			if err != nil {
				return err
			}
			if !removed {
				ok = false
			}
		}
		cleared = ok
		return nil
	})
	return cleared, err
}

func (c *valleyFoodsClient) removeOrderLine(ctx context.Context, orderID, productKey string) (bool, error) {
	payload := map[string]any{
		"OrderEntryHeaderId": orderID,
		"ProductKey":         productKey,
	}
	status, body, err := c.apiCall(ctx, http.MethodPost, "/OrderEntryDetail/V1/DeleteOrderEntryDetail", payload, nil)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, nil
	}
	var resp struct {
		IsSuccess bool `json:"IsSuccess"`
	}
	if err := decodeJSON(body, &resp); err != nil {
		return false, err
	}
	return resp.IsSuccess, nil
}

func (c *valleyFoodsClient) GetDeliveryDates(ctx context.Context) ([]time.Time, error) {
	if err := c.requireAuth(ctx); err != nil {
		return nil, err
	}
	var dates []time.Time
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		fetched, err := c.fetchDeliveryDates(ctx)
		if err != nil {
			return err
		}
		dates = fetched
		return nil
	})
	return dates, err
}

func (c *valleyFoodsClient) fetchDeliveryDates(ctx context.Context) ([]time.Time, error) {
	customerID, err := distributors.SettingString(c.dist, settingVFCustomerID)
	if err != nil {
		return nil, err
	}
	status, body, err := c.apiCall(ctx, http.MethodGet, "/Customer/V1/GetCustomerDeliveryDates", nil,
		url.Values{"customerId": {customerID}})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("delivery dates", status)
	}

	var resp struct {
		IsSuccess    bool     `json:"IsSuccess"`
		ResultObject []string `json:"ResultObject"`
	}
	if err := decodeJSON(body, &resp); err != nil {
		return nil, err
	}
	if !resp.IsSuccess {
		return nil, nil
	}

	dates := make([]time.Time, 0, len(resp.ResultObject))
	for _, raw := range resp.ResultObject {
		if parsed, ok := parsePlatformDate(raw); ok {
			dates = append(dates, parsed)
		}
	}
	return dates, nil
}
