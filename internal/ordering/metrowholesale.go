package ordering

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/platewise-backend/internal/distributors"
	"github.com/angelmondragon/platewise-backend/internal/sessions"
	"github.com/angelmondragon/platewise-backend/pkg/errors"
)

// PlatformMetroWholesale identifies the Metro Wholesale storefront. Cookie
// sessions, prices served as formatted display strings.
const PlatformMetroWholesale = "metrowholesale"

// Metro Wholesale setting keys.
const settingMWBusinessUnit = "business_unit"

// The storefront rejects logins without a browser user agent.
const mwUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type metroWholesaleClient struct {
	*baseClient
}

func newMetroWholesaleClient(params baseParams) (*metroWholesaleClient, error) {
	base, err := newBaseClient(params)
	if err != nil {
		return nil, err
	}
	if base.baseURL == "" {
		return nil, errors.New(errors.CodeConfiguration,
			fmt.Sprintf("distributor %s is missing setting %q", params.Distributor.ID, distributors.SettingBaseURL))
	}
	c := &metroWholesaleClient{baseClient: base}
	base.bind(c)
	return c, nil
}

func (c *metroWholesaleClient) Platform() string {
	return PlatformMetroWholesale
}

// Authenticate visits the login page to pick up the anonymous cookies, then
// posts the credentials as JSON. Success sets the auth cookies on the jar.
func (c *metroWholesaleClient) Authenticate(ctx context.Context) (bool, error) {
	creds, err := c.credentials(ctx)
	if err != nil {
		return false, err
	}

	pageReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/login/"), nil)
	if err != nil {
		return false, err
	}
	pageReq.Header.Set("User-Agent", mwUserAgent)
	if _, _, err := c.do(ctx, pageReq); err != nil {
		return false, err
	}

	loginReq, err := c.newJSONRequest(ctx, http.MethodPost, c.endpoint("/login/"), map[string]any{
		"email":        creds.Username,
		"password":     creds.Password,
		"staySignedIn": true,
	})
	if err != nil {
		return false, err
	}
	loginReq.Header.Set("User-Agent", mwUserAgent)
	loginReq.Header.Set("Referer", c.endpoint("/login/"))
	status, _, err := c.do(ctx, loginReq)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		c.logWarn(ctx, fmt.Sprintf("login rejected with status %d", status))
		return false, nil
	}

	cookies := c.cookieMap()
	authed := false
	for name := range cookies {
		if strings.Contains(name, "Application") || strings.Contains(name, "cwUser") {
			authed = true
			break
		}
	}
	if !authed {
		// The storefront sometimes renames its auth cookies; a 200 with any
		// cookies at all has proven good enough in practice.
		c.logWarn(ctx, "login returned 200 but no recognizable auth cookies")
	}

	expiry := time.Now().Add(24 * time.Hour).UTC()
	if err := c.saveSession(ctx, sessions.Update{
		Cookies:   cookies,
		ExpiresAt: &expiry,
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (c *metroWholesaleClient) businessUnit() (string, error) {
	return distributors.SettingString(c.dist, settingMWBusinessUnit)
}

// productCode builds the storefront's variant code: JDE_{sku}-{businessUnit}.
func (c *metroWholesaleClient) productCode(sku string) (string, error) {
	if strings.HasPrefix(sku, "JDE_") {
		return sku, nil
	}
	bu, err := c.businessUnit()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("JDE_%s-%s", sku, bu), nil
}

func (c *metroWholesaleClient) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
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

func (c *metroWholesaleClient) searchCatalog(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	pageSize := limit
	if pageSize > 50 {
		pageSize = 50
	}
	payload := map[string]any{
		"search": map[string]any{
			"page":                   0,
			"pageSize":               pageSize,
			"searchText":             query,
			"removeWordsIfNoResults": false,
			"pageToken":              "",
			"facets":                 []any{},
			"sortBy":                 nil,
			"direction":              nil,
			"pageNumber":             0,
		},
	}
	status, body, err := c.apiCall(ctx, http.MethodPost, "/search/Search/", payload, url.Values{"q": {query}})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("search", status)
	}

	var resp struct {
		Results []struct {
			Sku               string `json:"sku"`
			Name              string `json:"name"`
			Brand             string `json:"brand"`
			Category          string `json:"category"`
			ImageURL          string `json:"imageUrl"`
			WeightDescription string `json:"weightDescription"`
			Variants          []struct {
				Code                     string `json:"code"`
				InStock                  int    `json:"inStock"`
				Weight                   string `json:"weight"`
				PrimaryUnitOfMeasureCode string `json:"primaryUnitOfMeasureCode"`
			} `json:"variants"`
		} `json:"results"`
	}
	if err := decodeJSON(body, &resp); err != nil {
		return nil, err
	}

	items := resp.Results
	if len(items) > limit {
		items = items[:limit]
	}

	results := make([]SearchResult, 0, len(items))
	codes := make([]string, 0, len(items))
	for _, item := range items {
		r := SearchResult{
			SKU:         item.Sku,
			Description: strings.TrimSpace(item.Brand + " " + item.Name),
			ImageURL:    item.ImageURL,
			Category:    item.Category,
			PackSize:    item.WeightDescription,
			PackUnit:    "CS",
		}
		inStock := true
		if len(item.Variants) > 0 {
			variant := item.Variants[0]
			if variant.Code != "" {
				codes = append(codes, variant.Code)
				r.ProductID = variant.Code
			}
			if variant.Weight != "" {
				r.PackSize = variant.Weight
			}
			if variant.PrimaryUnitOfMeasureCode != "" {
				r.PackUnit = variant.PrimaryUnitOfMeasureCode
			}
			inStock = variant.InStock > 0
		}
		r.InStock = &inStock
		results = append(results, r)
	}

	if len(codes) > 0 {
		prices, err := c.fetchPrices(ctx, codes)
		if err != nil {
			if errors.HasCode(err, errors.CodeSessionExpired) {
				return nil, err
			}
			c.logWarn(ctx, "price lookup failed, returning unpriced results")
		}
		for i := range results {
			if results[i].SKU == "" {
				continue
			}
			// Variant codes embed the SKU: JDE_{sku}-{businessUnit}.
			for code, cents := range prices {
				if strings.Contains(code, results[i].SKU) {
					price := cents
					results[i].PriceCents = &price
					break
				}
			}
		}
	}
	return results, nil
}

func (c *metroWholesaleClient) fetchPrices(ctx context.Context, codes []string) (map[string]int64, error) {
	bu, err := c.businessUnit()
	if err != nil {
		return nil, err
	}

	variants := make([]map[string]any, 0, len(codes))
	for _, code := range codes {
		variants = append(variants, map[string]any{
			"code":                      code,
			"productKey":                nil,
			"productClassificationCode": nil,
			"uom":                       "CS",
			"checkAvailabilityFlag":     true,
			"chefItemFlag":              false,
			"bto":                       false,
			"supermarket":               false,
			"specialOrderFlag":          false,
			"stockingType":              "P",
			"vendorId":                  nil,
			"businessUnitId":            bu,
		})
	}
	status, body, err := c.apiCall(ctx, http.MethodPost, "/web-api/product/prices",
		map[string]any{"variants": variants}, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("price lookup", status)
	}

	var resp []struct {
		Code             string `json:"code"`
		PrimaryUnitPrice struct {
			Price string `json:"price"`
		} `json:"primaryUnitPrice"`
	}
	if err := decodeJSON(body, &resp); err != nil {
		return nil, err
	}

	prices := make(map[string]int64, len(resp))
	for _, item := range resp {
		if cents, ok := parsePriceCents(item.PrimaryUnitPrice.Price); ok {
			prices[item.Code] = cents
		}
	}
	return prices, nil
}

func (c *metroWholesaleClient) AddToCart(ctx context.Context, sku string, quantity int) (bool, error) {
	if err := c.requireAuth(ctx); err != nil {
		return false, err
	}
	code, err := c.productCode(sku)
	if err != nil {
		return false, err
	}

	payload := []map[string]any{{
		"code": code,
		"metadata": map[string]any{
			"unitOfMeasure":             "CS",
			"productKey":                nil,
			"productClassificationCode": nil,
			"chefItemFlag":              false,
			"bto":                       false,
			"supermarket":               false,
			"stockingType":              "P",
			"lineType":                  "S",
			"vendorId":                  nil,
			"productionItem":            false,
			"orderCutoffOverride":       nil,
		},
		"isReserve": false,
		"quantity":  quantity,
	}}

	var added bool
	err = c.withExpiryRetry(ctx, func(ctx context.Context) error {
		status, _, err := c.apiCall(ctx, http.MethodPost, "/web-api/cart/add", payload, nil)
		if err != nil {
			return err
		}
		added = status == http.StatusOK
		return nil
	})
	return added, err
}

type mwCartLine struct {
	ID           json.Number     `json:"id"`
	ProductSku   string          `json:"productSku"`
	Code         string          `json:"code"`
	Description  string          `json:"description"`
	ProductTitle string          `json:"productTitle"`
	Quantity     json.Number     `json:"quantity"`
	UnitPrice    string          `json:"unitPrice"`
	TotalPrice   json.RawMessage `json:"totalPrice"`
}

type mwCartPayload struct {
	ID         json.Number `json:"id"`
	CartGroups []struct {
		SubCarts []struct {
			Lines               []mwCartLine `json:"lines"`
			DeliveryInformation struct {
				DeliveryDates []struct {
					Date string `json:"date"`
				} `json:"deliveryDates"`
			} `json:"deliveryInformation"`
		} `json:"subCarts"`
	} `json:"cartGroups"`
}

func (c *metroWholesaleClient) GetCart(ctx context.Context) (*Cart, error) {
	if err := c.requireAuth(ctx); err != nil {
		return nil, err
	}
	var cart *Cart
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		payload, err := c.loadCart(ctx)
		if err != nil {
			return err
		}
		cart = c.parseCart(payload)
		return nil
	})
	return cart, err
}

func (c *metroWholesaleClient) loadCart(ctx context.Context) (*mwCartPayload, error) {
	status, body, err := c.apiCall(ctx, http.MethodGet, "/web-api/cart", nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("get cart", status)
	}
	var payload mwCartPayload
	if err := decodeJSON(body, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *metroWholesaleClient) parseCart(payload *mwCartPayload) *Cart {
	cart := EmptyCart()
	cart.CartID = payload.ID.String()

	for _, group := range payload.CartGroups {
		for _, sub := range group.SubCarts {
			for _, line := range sub.Lines {
				unit, _ := parsePriceCents(line.UnitPrice)
				extended, ok := centsFromRaw(line.TotalPrice)
				if !ok {
					extended = 0
				}

				sku := line.ProductSku
				if sku == "" {
					sku = line.Code
				}
				description := line.Description
				if description == "" {
					description = line.ProductTitle
				}
				cart.Items = append(cart.Items, CartItem{
					SKU:                sku,
					Description:        description,
					Quantity:           numberToInt(line.Quantity),
					UnitPriceCents:     &unit,
					ExtendedPriceCents: &extended,
					ProductID:          line.ID.String(),
				})
				cart.SubtotalCents += extended
			}
		}
	}
	cart.TotalCents = cart.SubtotalCents
	return cart
}

// RemoveFromCart uses the storefront's native remove-item endpoint instead of
// the clear-and-readd fallback.
func (c *metroWholesaleClient) RemoveFromCart(ctx context.Context, sku string) (bool, error) {
	if err := c.requireAuth(ctx); err != nil {
		return false, err
	}
	var removed bool
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		payload, err := c.loadCart(ctx)
		if err != nil {
			return err
		}
		cart := c.parseCart(payload)

		removed = false
		for _, item := range cart.Items {
			if item.SKU != sku || item.ProductID == "" {
				continue
			}
			ok, err := c.removeLine(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if ok {
				removed = true
			}
		}
		return nil
	})
	return removed, err
}

func (c *metroWholesaleClient) ClearCart(ctx context.Context) (bool, error) {
	if err := c.requireAuth(ctx); err != nil {
		return false, err
	}
	var cleared bool
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		payload, err := c.loadCart(ctx)
		if err != nil {
			return err
		}
		cart := c.parseCart(payload)
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
			removed, err := c.removeLine(ctx, item.ProductID)
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

func (c *metroWholesaleClient) removeLine(ctx context.Context, lineID string) (bool, error) {
	bu, err := c.businessUnit()
	if err != nil {
		return false, err
	}
	status, _, err := c.apiCall(ctx, http.MethodPost, "/web-api/cart/remove-item", map[string]any{
		"lineId":         json.Number(lineID),
		"businessUnitId": bu,
	}, nil)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// GetDeliveryDates reads the delivery windows the cart response carries.
func (c *metroWholesaleClient) GetDeliveryDates(ctx context.Context) ([]time.Time, error) {
	if err := c.requireAuth(ctx); err != nil {
		return nil, err
	}
	var dates []time.Time
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		payload, err := c.loadCart(ctx)
		if err != nil {
			return err
		}

		seen := map[time.Time]bool{}
		dates = dates[:0]
		for _, group := range payload.CartGroups {
			for _, sub := range group.SubCarts {
				for _, info := range sub.DeliveryInformation.DeliveryDates {
					parsed, ok := parsePlatformDate(info.Date)
					if !ok || seen[parsed] {
						continue
					}
					seen[parsed] = true
					dates = append(dates, parsed)
				}
			}
		}
		sortTimes(dates)
		return nil
	})
	return dates, err
}

// SetDeliveryDate picks the cart-wide delivery date.
func (c *metroWholesaleClient) SetDeliveryDate(ctx context.Context, date time.Time) (bool, error) {
	if err := c.requireAuth(ctx); err != nil {
		return false, err
	}
	bu, err := c.businessUnit()
	if err != nil {
		return false, err
	}

	payload := map[string]any{
		"expectedDeliveryDate":    date.Format("2006-01-02"),
		"erpExpectedDeliveryDate": date.Format("2006-01-02"),
		"orderCutoffOverride":     nil,
		"businessUnitId":          bu,
		"isJIT":                   false,
		"vendorId":                nil,
		"shippingItem":            nil,
	}
	var ok bool
	err = c.withExpiryRetry(ctx, func(ctx context.Context) error {
		status, _, err := c.apiCall(ctx, http.MethodPost, "/web-api/cart/update/deliveryDate", payload, nil)
		if err != nil {
			return err
		}
		ok = status == http.StatusOK
		return nil
	})
	return ok, err
}
