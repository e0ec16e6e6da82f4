package ordering

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/angelmondragon/platewise-backend/internal/distributors"
	"github.com/angelmondragon/platewise-backend/internal/sessions"
	"github.com/angelmondragon/platewise-backend/pkg/errors"
)

// PlatformFarmDirect identifies the Farm Direct SuiteCommerce store. Sessions
// die after roughly five minutes of inactivity, so the adapter keeps them
// alive with a heartbeat between operations. Login is a single JSON POST,
// which makes re-authentication cheap when the heartbeat loses the race.
const PlatformFarmDirect = "farmdirect"

// Farm Direct setting keys.
const (
	settingFDCompanyID  = "company_id"
	settingFDSiteID     = "site_id"
	settingFDPriceLevel = "price_level"
)

const (
	fdSessionTTL        = 5 * time.Minute
	fdHeartbeatInterval = 2 * time.Minute
	fdSessionTimedOut   = "ERR_USER_SESSION_TIMED_OUT"
)

type farmDirectClient struct {
	*baseClient

	activityMu   sync.Mutex
	lastActivity time.Time
}

func newFarmDirectClient(params baseParams) (*farmDirectClient, error) {
	base, err := newBaseClient(params)
	if err != nil {
		return nil, err
	}
	if base.baseURL == "" {
		return nil, errors.New(errors.CodeConfiguration,
			fmt.Sprintf("distributor %s is missing setting %q", params.Distributor.ID, distributors.SettingBaseURL))
	}
	c := &farmDirectClient{baseClient: base}
	base.bind(c)
	return c, nil
}

func (c *farmDirectClient) Platform() string {
	return PlatformFarmDirect
}

func (c *farmDirectClient) markActivity() {
	c.activityMu.Lock()
	c.lastActivity = time.Now()
	c.activityMu.Unlock()
}

func (c *farmDirectClient) idleFor() time.Duration {
	c.activityMu.Lock()
	defer c.activityMu.Unlock()
	if c.lastActivity.IsZero() {
		return fdHeartbeatInterval + time.Second
	}
	return time.Since(c.lastActivity)
}

func (c *farmDirectClient) siteParams() (url.Values, error) {
	companyID, err := distributors.SettingString(c.dist, settingFDCompanyID)
	if err != nil {
		return nil, err
	}
	siteID, err := distributors.SettingString(c.dist, settingFDSiteID)
	if err != nil {
		return nil, err
	}
	return url.Values{"c": {companyID}, "n": {siteID}}, nil
}

// Authenticate posts the credentials to the account login service and stores
// the resulting cookies with the platform's short expiry.
func (c *farmDirectClient) Authenticate(ctx context.Context) (bool, error) {
	creds, err := c.credentials(ctx)
	if err != nil {
		return false, err
	}
	site, err := c.siteParams()
	if err != nil {
		return false, err
	}

	req, err := c.newJSONRequest(ctx, http.MethodPost,
		c.endpoint("/scs/services/Account.Login.Service.ss")+"?"+site.Encode(),
		map[string]any{
			"email":    creds.Username,
			"password": creds.Password,
			"redirect": "true",
		})
	if err != nil {
		return false, err
	}
	req.Header.Set("X-SC-Touchpoint", "checkout")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	status, _, err := c.do(ctx, req)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		c.logWarn(ctx, fmt.Sprintf("login rejected with status %d", status))
		return false, nil
	}

	expiry := time.Now().Add(fdSessionTTL).UTC()
	if err := c.saveSession(ctx, sessions.Update{
		Cookies:   c.cookieMap(),
		ExpiresAt: &expiry,
	}); err != nil {
		return false, err
	}
	c.markActivity()
	return true, nil
}

// EnsureAuthenticated layers the heartbeat on top of the stored-session
// check: once the adapter has been idle past the heartbeat interval, a tiny
// read request probes the session, and a dead probe falls back to a full
// login.
func (c *farmDirectClient) EnsureAuthenticated(ctx context.Context) (bool, error) {
	ok, err := c.baseClient.EnsureAuthenticated(ctx)
	if err != nil || !ok {
		return ok, err
	}

	if c.idleFor() <= fdHeartbeatInterval {
		return true, nil
	}
	if alive, err := c.heartbeat(ctx); err != nil {
		return false, err
	} else if alive {
		return true, nil
	}

	c.logInfo(ctx, "heartbeat found a dead session, re-authenticating")
	if err := c.clearSession(ctx); err != nil {
		return false, err
	}
	return c.Authenticate(ctx)
}

// heartbeat hits the product-list service because it is tiny and read-only.
// A live session also gets its stored expiry pushed out.
func (c *farmDirectClient) heartbeat(ctx context.Context) (bool, error) {
	site, err := c.siteParams()
	if err != nil {
		return false, err
	}
	req, err := c.newJSONRequest(ctx, http.MethodGet,
		c.endpoint("/scs/services/ProductList.Service.ss")+"?"+site.Encode(), nil)
	if err != nil {
		return false, err
	}

	status, body, err := c.do(ctx, req)
	if err != nil {
		// A flaky heartbeat is not fatal; the follow-up login decides.
		c.logWarn(ctx, "heartbeat request failed")
		return false, nil
	}
	if status != http.StatusOK || sessionTimedOut(body) {
		return false, nil
	}

	c.markActivity()
	expiry := time.Now().Add(fdSessionTTL).UTC()
	if err := c.saveSession(ctx, sessions.Update{ExpiresAt: &expiry}); err != nil {
		return false, err
	}
	return true, nil
}

// sessionTimedOut checks the body for the platform's timeout marker. The
// store reports dead sessions inside 200 responses, so status alone is not
// enough.
func sessionTimedOut(body []byte) bool {
	var probe struct {
		ErrorCode string `json:"errorCode"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.ErrorCode == fdSessionTimedOut
}

// call wraps apiCall with the body-level timeout check.
func (c *farmDirectClient) call(ctx context.Context, method, path string, payload any, query url.Values, touchpoint string) (int, []byte, error) {
	rawurl := c.endpoint(path)
	if len(query) > 0 {
		rawurl += "?" + query.Encode()
	}
	req, err := c.newJSONRequest(ctx, method, rawurl, payload)
	if err != nil {
		return 0, nil, err
	}
	if touchpoint != "" {
		req.Header.Set("X-SC-Touchpoint", touchpoint)
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}

	status, body, err := c.do(ctx, req)
	if err != nil {
		return 0, nil, err
	}
	c.markActivity()
	if status == http.StatusUnauthorized || status == http.StatusForbidden || sessionTimedOut(body) {
		return status, body, errors.New(errors.CodeSessionExpired,
			fmt.Sprintf("%s reported a timed out session", c.distributorName()))
	}
	return status, body, nil
}

func (c *farmDirectClient) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
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

func (c *farmDirectClient) searchCatalog(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	site, err := c.siteParams()
	if err != nil {
		return nil, err
	}
	priceLevel, _ := distributors.SettingString(c.dist, settingFDPriceLevel)

	params := url.Values{
		"__country":    {"US"},
		"__currency":   {"USD"},
		"__fieldset":   {"search"},
		"__include":    {"facets"},
		"__language":   {"en"},
		"__pricelevel": {priceLevel},
		"__use_pcv":    {"T"},
		"c":            site["c"],
		"n":            site["n"],
		"limit":        {strconv.Itoa(limit)},
		"offset":       {"0"},
		"q":            {query},
		"sort":         {"relevance:asc"},
	}
	status, body, err := c.call(ctx, http.MethodGet, "/scs/searchApi.ssp", nil, params, "")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("search", status)
	}

	var resp struct {
		Items []struct {
			InternalID          json.Number `json:"internalid"`
			DisplayName         string      `json:"displayname"`
			StoreDisplayName    string      `json:"storedisplayname2"`
			OnlineCustomerPrice json.Number `json:"onlinecustomerprice"`
			PackSize            string      `json:"custitem_pack_size"`
			SaleUnit            json.Number `json:"saleunit"`
			IsInStock           *bool       `json:"isinstock"`
			Category            string      `json:"commercecategoryname"`
			ItemImagesDetail    struct {
				URL string `json:"url"`
			} `json:"itemimages_detail"`
		} `json:"items"`
	}
	if err := decodeJSON(body, &resp); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		description := item.DisplayName
		if description == "" {
			description = item.StoreDisplayName
		}
		inStock := true
		if item.IsInStock != nil {
			inStock = *item.IsInStock
		}
		r := SearchResult{
			SKU:         item.InternalID.String(),
			Description: description,
			PackSize:    item.PackSize,
			PackUnit:    item.SaleUnit.String(),
			InStock:     &inStock,
			ImageURL:    item.ItemImagesDetail.URL,
			Category:    item.Category,
			ProductID:   item.InternalID.String(),
		}
		// Prices come inline with search, no second lookup needed.
		if cents, ok := numberToCents(item.OnlineCustomerPrice); ok {
			r.PriceCents = &cents
		}
		results = append(results, r)
	}
	return results, nil
}

func (c *farmDirectClient) AddToCart(ctx context.Context, sku string, quantity int) (bool, error) {
	if err := c.requireAuth(ctx); err != nil {
		return false, err
	}
	itemID, err := strconv.Atoi(sku)
	if err != nil {
		c.logWarn(ctx, fmt.Sprintf("sku %q is not a numeric item id", sku))
		return false, nil
	}
	site, err := c.siteParams()
	if err != nil {
		return false, err
	}

	payload := []map[string]any{{
		"item":              map[string]any{"internalid": itemID},
		"quantity":          quantity,
		"options":           []any{},
		"location":          "",
		"fulfillmentChoice": "ship",
		"freeGift":          false,
	}}
	var added bool
	err = c.withExpiryRetry(ctx, func(ctx context.Context) error {
		status, _, err := c.call(ctx, http.MethodPost, "/scs/services/LiveOrder.Line.Service.ss", payload, site, "shopping")
		if err != nil {
			return err
		}
		added = status == http.StatusOK
		return nil
	})
	return added, err
}

type fdCartPayload struct {
	InternalID json.Number `json:"internalid"`
	Lines      []struct {
		InternalID json.Number `json:"internalid"`
		Quantity   json.Number `json:"quantity"`
		Rate       json.Number `json:"rate"`
		Amount     json.Number `json:"amount"`
		Item       struct {
			InternalID  json.Number `json:"internalid"`
			DisplayName string      `json:"displayname"`
		} `json:"item"`
	} `json:"lines"`
	Summary struct {
		Total json.Number `json:"total"`
	} `json:"summary"`
}

func (c *farmDirectClient) GetCart(ctx context.Context) (*Cart, error) {
	if err := c.requireAuth(ctx); err != nil {
		return nil, err
	}
	var cart *Cart
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		payload, err := c.loadCart(ctx)
		if err != nil {
			return err
		}
		cart = parseFarmDirectCart(payload)
		return nil
	})
	return cart, err
}

func (c *farmDirectClient) loadCart(ctx context.Context) (*fdCartPayload, error) {
	site, err := c.siteParams()
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"c":          site["c"],
		"n":          site["n"],
		"cur":        {"1"},
		"internalid": {"cart"},
	}
	status, body, err := c.call(ctx, http.MethodGet, "/scs/services/LiveOrder.Service.ss", nil, params, "")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.unexpectedStatus("get cart", status)
	}
	var payload fdCartPayload
	if err := decodeJSON(body, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func parseFarmDirectCart(payload *fdCartPayload) *Cart {
	cart := EmptyCart()
	cart.CartID = payload.InternalID.String()

	for _, line := range payload.Lines {
		unit, _ := numberToCents(line.Rate)
		extended, _ := numberToCents(line.Amount)

		cart.Items = append(cart.Items, CartItem{
			SKU:                line.Item.InternalID.String(),
			Description:        line.Item.DisplayName,
			Quantity:           numberToInt(line.Quantity),
			UnitPriceCents:     &unit,
			ExtendedPriceCents: &extended,
			ProductID:          line.InternalID.String(),
		})
		cart.SubtotalCents += extended
	}
	if total, ok := numberToCents(payload.Summary.Total); ok {
		cart.TotalCents = total
	} else {
		cart.TotalCents = cart.SubtotalCents
	}
	return cart
}

// ClearCart deletes live-order lines one at a time; the store has no bulk
// clear service.
func (c *farmDirectClient) ClearCart(ctx context.Context) (bool, error) {
	if err := c.requireAuth(ctx); err != nil {
		return false, err
	}
	var cleared bool
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		payload, err := c.loadCart(ctx)
		if err != nil {
			return err
		}
		cart := parseFarmDirectCart(payload)
		if len(cart.Items) == 0 {
			cleared = true
			return nil
		}

		site, err := c.siteParams()
		if err != nil {
			return err
		}
		ok := true
		for _, item := range cart.Items {
			if item.ProductID == "" {
				ok = false
				continue
			}
			params := url.Values{
				"c":          site["c"],
				"n":          site["n"],
				"internalid": {item.ProductID},
			}
			status, _, err := c.call(ctx, http.MethodDelete, "/scs/services/LiveOrder.Line.Service.ss", nil, params, "shopping")
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				ok = false
			}
		}
		cleared = ok
		return nil
	})
	return cleared, err
}

func (c *farmDirectClient) GetDeliveryDates(ctx context.Context) ([]time.Time, error) {
	if err := c.requireAuth(ctx); err != nil {
		return nil, err
	}
	var dates []time.Time
	err := c.withExpiryRetry(ctx, func(ctx context.Context) error {
		params := url.Values{
			"lang": {"en_US"},
			"cur":  {"USD"},
		}
		status, body, err := c.call(ctx, http.MethodGet, "/scs/services/CheckoutEnvironment.Service.ss", nil, params, "checkout")
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return c.unexpectedStatus("delivery dates", status)
		}

		var resp struct {
			Shipping struct {
				Methods []struct {
					DeliveryDates []struct {
						Date string `json:"date"`
					} `json:"deliveryDates"`
				} `json:"methods"`
			} `json:"shipping"`
		}
		if err := decodeJSON(body, &resp); err != nil {
			return err
		}

		seen := map[time.Time]bool{}
		dates = dates[:0]
		for _, method := range resp.Shipping.Methods {
			for _, info := range method.DeliveryDates {
				parsed, ok := parsePlatformDate(info.Date)
				if !ok || seen[parsed] {
					continue
				}
				seen[parsed] = true
				dates = append(dates, parsed)
			}
		}
		sortTimes(dates)
		return nil
	})
	return dates, err
}
