package ordering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/platewise-backend/internal/sessions"
)

// PlatformMock is the default platform identifier for distributors without a
// real integration yet.
const PlatformMock = "mock"

// mockClient returns canned data without touching the network. Useful while
// a platform's API capture is still in progress.
type mockClient struct {
	*baseClient
}

func newMockClient(params baseParams) (*mockClient, error) {
	base, err := newBaseClient(params)
	if err != nil {
		return nil, err
	}
	c := &mockClient{baseClient: base}
	base.bind(c)
	return c, nil
}

func (c *mockClient) Platform() string {
	return PlatformMock
}

func (c *mockClient) Authenticate(ctx context.Context) (bool, error) {
	expiry := time.Now().Add(24 * time.Hour).UTC()
	err := c.saveSession(ctx, sessions.Update{
		Cookies:   map[string]string{"mock_session": "test123"},
		ExpiresAt: &expiry,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *mockClient) Search(_ context.Context, query string, limit int) ([]SearchResult, error) {
	count := 5
	if limit < count {
		count = limit
	}
	results := make([]SearchResult, 0, count)
	for i := 0; i < count; i++ {
		price := int64(999 + i*100)
		inStock := true
		results = append(results, SearchResult{
			SKU:         fmt.Sprintf("MOCK-%d", i),
			Description: fmt.Sprintf("Mock Product %d - %s", i, query),
			PriceCents:  &price,
			PackSize:    "1",
			PackUnit:    "each",
			InStock:     &inStock,
		})
	}
	return results, nil
}

func (c *mockClient) AddToCart(context.Context, string, int) (bool, error) {
	return true, nil
}

func (c *mockClient) GetCart(context.Context) (*Cart, error) {
	return EmptyCart(), nil
}

func (c *mockClient) ClearCart(context.Context) (bool, error) {
	return true, nil
}

// GetDeliveryDates projects the distributor's configured delivery weekdays
// onto the next two weeks.
func (c *mockClient) GetDeliveryDates(context.Context) ([]time.Time, error) {
	if len(c.dist.DeliveryDays) == 0 {
		return nil, nil
	}

	wanted := map[time.Weekday]bool{}
	for _, name := range c.dist.DeliveryDays {
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			if strings.EqualFold(name, wd.String()) {
				wanted[wd] = true
			}
		}
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	var dates []time.Time
	for i := 1; i <= 14; i++ {
		day := today.AddDate(0, 0, i)
		if wanted[day.Weekday()] {
			dates = append(dates, day)
		}
	}
	return dates, nil
}
