package ordering

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/platewise-backend/internal/distributors"
	"github.com/angelmondragon/platewise-backend/internal/sessions"
	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/angelmondragon/platewise-backend/pkg/secrets"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const defaultRequestTimeout = 30 * time.Second

// baseParams groups dependencies shared by every adapter.
type baseParams struct {
	Distributor  *models.Distributor
	Distributors *distributors.Service
	Sessions     *sessions.Service
	Logger       *logger.Logger
	Timeout      time.Duration
	// BaseURL may be empty for adapters that never touch the network (mock).
	BaseURL string
}

// baseClient carries the session lifecycle and HTTP plumbing every platform
// adapter needs: lazy cookie-jar client, session load/save/clear, the
// ensure-authenticated check, and the generic cart fallbacks.
type baseClient struct {
	dist    *models.Distributor
	distSvc *distributors.Service
	sessSvc *sessions.Service
	logg    *logger.Logger
	timeout time.Duration
	baseURL string

	// self points back at the concrete adapter so the shared defaults can
	// dispatch to overridden operations.
	self PlatformAdapter

	mu         sync.Mutex
	httpClient *http.Client
	session    *models.DistributorSession
	closed     bool
}

func newBaseClient(params baseParams) (*baseClient, error) {
	if params.Distributor == nil {
		return nil, stdErrors.New("distributor is required")
	}
	if params.Distributors == nil {
		return nil, stdErrors.New("distributor service is required")
	}
	if params.Sessions == nil {
		return nil, stdErrors.New("session service is required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &baseClient{
		dist:    params.Distributor,
		distSvc: params.Distributors,
		sessSvc: params.Sessions,
		logg:    params.Logger,
		timeout: timeout,
		baseURL: strings.TrimRight(params.BaseURL, "/"),
	}, nil
}

func (b *baseClient) bind(self PlatformAdapter) {
	b.self = self
}

func (b *baseClient) DistributorID() uuid.UUID {
	return b.dist.ID
}

func (b *baseClient) distributorName() string {
	return b.dist.Name
}

func (b *baseClient) credentials(ctx context.Context) (secrets.Credentials, error) {
	return b.distSvc.Credentials(ctx, b.dist)
}

// EnsureAuthenticated loads the stored session and authenticates only when it
// is absent or past its expiry. Adapters call this at the top of every
// operation instead of Authenticate.
func (b *baseClient) EnsureAuthenticated(ctx context.Context) (bool, error) {
	session, err := b.loadSession(ctx)
	if err != nil {
		return false, err
	}
	if session != nil && !sessions.IsExpired(session, time.Now()) {
		return true, nil
	}

	b.logInfo(ctx, "authenticating")
	ok, err := b.self.Authenticate(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		b.logInfo(ctx, "authentication succeeded")
	} else {
		b.logWarn(ctx, "authentication failed")
	}
	return ok, nil
}

// withExpiryRetry runs op and, when the platform signals a dead session,
// re-authenticates exactly once before retrying. A failure on the second
// attempt surfaces to the caller unchanged.
func (b *baseClient) withExpiryRetry(ctx context.Context, op func(context.Context) error) error {
	err := op(ctx)
	if !errors.HasCode(err, errors.CodeSessionExpired) {
		return err
	}

	b.logInfo(ctx, "session rejected by platform, re-authenticating")
	if err := b.clearSession(ctx); err != nil {
		return err
	}
	ok, authErr := b.EnsureAuthenticated(ctx)
	if authErr != nil {
		return authErr
	}
	if !ok {
		return errors.New(errors.CodeAuthFailed,
			fmt.Sprintf("re-authentication failed for %s", b.distributorName()))
	}
	return op(ctx)
}

func (b *baseClient) loadSession(ctx context.Context) (*models.DistributorSession, error) {
	b.mu.Lock()
	cached := b.session
	b.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	session, err := b.sessSvc.Get(ctx, b.dist.ID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.session = session
	b.mu.Unlock()
	return session, nil
}

// saveSession persists the partial update and refreshes the cached copy. The
// stored row is the only state shared across concurrent callers; the write is
// a single UPDATE so concurrent re-authentication is last-writer-wins.
func (b *baseClient) saveSession(ctx context.Context, update sessions.Update) error {
	now := time.Now().UTC()
	if update.LastUsedAt == nil {
		update.LastUsedAt = &now
	}
	if err := b.sessSvc.Apply(ctx, b.dist.ID, update); err != nil {
		return err
	}
	session, err := b.sessSvc.Get(ctx, b.dist.ID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.session = session
	b.mu.Unlock()
	return nil
}

// clearSession drops both the stored row and the in-memory HTTP state so the
// next request starts from a clean jar.
func (b *baseClient) clearSession(ctx context.Context) error {
	if err := b.sessSvc.Clear(ctx, b.dist.ID); err != nil {
		return err
	}
	b.mu.Lock()
	b.session = nil
	if b.httpClient != nil {
		b.httpClient.CloseIdleConnections()
		b.httpClient = nil
	}
	b.mu.Unlock()
	return nil
}

// client returns the lazily built HTTP client, seeding its cookie jar from
// the stored session. The client is reused across calls until the session is
// cleared or the adapter closed.
func (b *baseClient) client(ctx context.Context) (*http.Client, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, stdErrors.New("adapter is closed")
	}
	if b.httpClient != nil {
		c := b.httpClient
		b.mu.Unlock()
		return c, nil
	}
	b.mu.Unlock()

	session, err := b.loadSession(ctx)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if session != nil && len(session.Cookies) > 0 && b.baseURL != "" {
		target, err := url.Parse(b.baseURL)
		if err == nil {
			cookies := make([]*http.Cookie, 0, len(session.Cookies))
			for name, value := range session.Cookies {
				cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
			}
			jar.SetCookies(target, cookies)
		}
	}

	c := &http.Client{
		Jar:     jar,
		Timeout: b.timeout,
	}

	b.mu.Lock()
	if b.httpClient == nil {
		b.httpClient = c
	}
	c = b.httpClient
	b.mu.Unlock()
	return c, nil
}

// cookieMap snapshots the jar's cookies for the base URL so they can be
// persisted after a login.
func (b *baseClient) cookieMap() map[string]string {
	b.mu.Lock()
	c := b.httpClient
	b.mu.Unlock()

	cookies := map[string]string{}
	if c == nil || c.Jar == nil || b.baseURL == "" {
		return cookies
	}
	target, err := url.Parse(b.baseURL)
	if err != nil {
		return cookies
	}
	for _, cookie := range c.Jar.Cookies(target) {
		cookies[cookie.Name] = cookie.Value
	}
	return cookies
}

func (b *baseClient) endpoint(path string) string {
	return b.baseURL + path
}

func (b *baseClient) authToken(ctx context.Context) string {
	session, err := b.loadSession(ctx)
	if err != nil || session == nil || session.AuthToken == nil {
		return ""
	}
	return *session.AuthToken
}

// requireAuth runs the ensure-authenticated check and converts a credential
// rejection into an authentication error.
func (b *baseClient) requireAuth(ctx context.Context) error {
	ok, err := b.EnsureAuthenticated(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(errors.CodeAuthFailed,
			fmt.Sprintf("authentication failed for %s", b.distributorName()))
	}
	return nil
}

// apiCall builds a JSON request against the platform base URL, attaches the
// stored auth token, and classifies 401/403 as an expired session so the
// retry wrapper can re-authenticate.
func (b *baseClient) apiCall(ctx context.Context, method, path string, payload any, query url.Values) (int, []byte, error) {
	rawurl := b.endpoint(path)
	if len(query) > 0 {
		rawurl += "?" + query.Encode()
	}
	req, err := b.newJSONRequest(ctx, method, rawurl, payload)
	if err != nil {
		return 0, nil, err
	}
	if token := b.authToken(ctx); token != "" {
		req.Header.Set("Authorization", token)
	}
	status, body, err := b.do(ctx, req)
	if err != nil {
		return 0, nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return status, body, errors.New(errors.CodeSessionExpired,
			fmt.Sprintf("%s rejected the stored session", b.distributorName()))
	}
	return status, body, nil
}

func (b *baseClient) unexpectedStatus(op string, status int) error {
	return errors.New(errors.CodeTransport,
		fmt.Sprintf("%s: unexpected status %d from %s", op, status, b.distributorName()))
}

// do executes the request and returns status plus body. Network failures come
// back as transport errors; idempotent requests get one retry on a transient
// failure before giving up.
func (b *baseClient) do(ctx context.Context, req *http.Request) (int, []byte, error) {
	client, err := b.client(ctx)
	if err != nil {
		return 0, nil, err
	}

	var status int
	var body []byte

	attempt := func(ctx context.Context) error {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			if req.Method == http.MethodGet || req.Method == http.MethodHead {
				return retry.RetryableError(err)
			}
			return err
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return nil
	}

	backoff := retry.WithMaxRetries(1, retry.NewConstant(500*time.Millisecond))
	if err := retry.Do(ctx, backoff, attempt); err != nil {
		return 0, nil, errors.Wrap(errors.CodeTransport, err,
			fmt.Sprintf("%s %s failed for %s", req.Method, req.URL.Path, b.distributorName()))
	}
	return status, body, nil
}

func (b *baseClient) newJSONRequest(ctx context.Context, method, rawurl string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawurl, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (b *baseClient) newFormRequest(ctx context.Context, rawurl string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawurl, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

func decodeJSON(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(errors.CodeParse, err, "decoding platform response")
	}
	return nil
}

// RemoveFromCart is the generic clear-and-readd fallback for platforms with
// no native remove endpoint. O(cart size) network calls; acceptable because
// carts are small.
func (b *baseClient) RemoveFromCart(ctx context.Context, sku string) (bool, error) {
	cart, err := b.self.GetCart(ctx)
	if err != nil {
		return false, err
	}

	keep := make([]CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.SKU != sku {
			keep = append(keep, item)
		}
	}
	if len(keep) == len(cart.Items) {
		return false, nil
	}

	if _, err := b.self.ClearCart(ctx); err != nil {
		return false, err
	}
	for _, item := range keep {
		if _, err := b.self.AddToCart(ctx, item.SKU, item.Quantity); err != nil {
			return false, err
		}
	}
	return true, nil
}

// UpdateCartQuantity is the generic remove-then-readd fallback. A quantity of
// zero or less removes the line.
func (b *baseClient) UpdateCartQuantity(ctx context.Context, sku string, quantity int) (bool, error) {
	if quantity <= 0 {
		return b.self.RemoveFromCart(ctx, sku)
	}
	if _, err := b.self.RemoveFromCart(ctx, sku); err != nil {
		return false, err
	}
	return b.self.AddToCart(ctx, sku, quantity)
}

// Close releases the HTTP client. Safe to call more than once.
func (b *baseClient) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.httpClient != nil {
		b.httpClient.CloseIdleConnections()
		b.httpClient = nil
	}
	b.closed = true
	return nil
}

func (b *baseClient) logCtx(ctx context.Context) context.Context {
	ctx = b.logg.WithDistributorID(ctx, b.dist.ID.String())
	return b.logg.WithPlatform(ctx, b.dist.PlatformID)
}

func (b *baseClient) logInfo(ctx context.Context, msg string) {
	if b.logg == nil {
		return
	}
	b.logg.Info(b.logCtx(ctx), msg)
}

func (b *baseClient) logWarn(ctx context.Context, msg string) {
	if b.logg == nil {
		return
	}
	b.logg.Warn(b.logCtx(ctx), msg)
}
