// Package ordering integrates external distributor portals behind one
// adapter contract: authenticate, search the catalog, and mutate the remote
// cart. Each platform speaks its own bespoke protocol; the adapters normalize
// those into SearchResult/Cart values the rest of the system can compare.
package ordering

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SearchResult is a normalized product record from one distributor catalog.
type SearchResult struct {
	SKU         string `json:"sku"`
	Description string `json:"description"`
	PriceCents  *int64 `json:"price_cents,omitempty"`
	PackSize    string `json:"pack_size,omitempty"`
	PackUnit    string `json:"pack_unit,omitempty"`
	InStock     *bool  `json:"in_stock,omitempty"`
	ProductURL  string `json:"product_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Category    string `json:"category,omitempty"`
	// ProductID is the platform-internal identifier required for cart calls.
	ProductID string `json:"product_id,omitempty"`
}

// CartItem is a normalized cart line.
type CartItem struct {
	SKU                string `json:"sku"`
	Description        string `json:"description"`
	Quantity           int    `json:"quantity"`
	UnitPriceCents     *int64 `json:"unit_price_cents,omitempty"`
	ExtendedPriceCents *int64 `json:"extended_price_cents,omitempty"`
	ProductID          string `json:"product_id,omitempty"`
}

// Cart mirrors the remote cart state on demand; it is never persisted here.
type Cart struct {
	Items         []CartItem `json:"items"`
	SubtotalCents int64      `json:"subtotal_cents"`
	TaxCents      int64      `json:"tax_cents"`
	ShippingCents int64      `json:"shipping_cents"`
	TotalCents    int64      `json:"total_cents"`
	CartID        string     `json:"cart_id,omitempty"`
}

// EmptyCart is what cart reads return when the platform has no cart yet.
func EmptyCart() *Cart {
	return &Cart{Items: []CartItem{}}
}

// PlatformAdapter is the uniform contract over one distributor portal.
//
// Authenticate reports false for rejected credentials and returns an error
// only for transport-level failures. All other operations go through
// EnsureAuthenticated internally; callers never invoke Authenticate directly
// outside of tests.
type PlatformAdapter interface {
	Platform() string
	DistributorID() uuid.UUID

	Authenticate(ctx context.Context) (bool, error)
	EnsureAuthenticated(ctx context.Context) (bool, error)

	// Search returns up to limit results; zero matches is an empty slice,
	// not an error.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	AddToCart(ctx context.Context, sku string, quantity int) (bool, error)
	GetCart(ctx context.Context) (*Cart, error)
	ClearCart(ctx context.Context) (bool, error)

	// RemoveFromCart and UpdateCartQuantity have generic clear-and-readd
	// defaults; platforms with native endpoints override them.
	RemoveFromCart(ctx context.Context, sku string) (bool, error)
	UpdateCartQuantity(ctx context.Context, sku string, quantity int) (bool, error)

	GetDeliveryDates(ctx context.Context) ([]time.Time, error)

	// Close releases the adapter's HTTP resources. Safe to call repeatedly.
	Close() error
}

// DeliveryDateSetter is implemented by platforms whose carts carry a
// requested delivery date. Callers type-assert for it.
type DeliveryDateSetter interface {
	SetDeliveryDate(ctx context.Context, date time.Time) (bool, error)
}
