package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/platewise-backend/api/responses"
	"github.com/angelmondragon/platewise-backend/api/validators"
	"github.com/angelmondragon/platewise-backend/internal/ordering"
	"github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

const deliveryDateLayout = "2006-01-02"

type addItemBody struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

type updateItemBody struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

type deliveryDateBody struct {
	Date string `json:"date" validate:"required"`
}

// withAdapter resolves the distributor from the URL, builds its platform
// adapter and hands it to fn, closing the adapter when the request is done.
func withAdapter(factory *ordering.Factory, logg *logger.Logger,
	fn func(w http.ResponseWriter, r *http.Request, adapter ordering.PlatformAdapter)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		distID, err := validators.ParseURLUUID(chi.URLParam(r, "distributorID"), "distributorID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		adapter, err := factory.Client(ctx, distID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		defer adapter.Close()

		if logg != nil {
			ctx = logg.WithDistributorID(ctx, distID.String())
			ctx = logg.WithPlatform(ctx, adapter.Platform())
			r = r.WithContext(ctx)
		}
		fn(w, r, adapter)
	}
}

// AddCartItem adds a product to the distributor's remote cart.
//
//	POST /api/v1/distributors/{distributorID}/cart/items
func AddCartItem(factory *ordering.Factory, logg *logger.Logger) http.HandlerFunc {
	return withAdapter(factory, logg, func(w http.ResponseWriter, r *http.Request, adapter ordering.PlatformAdapter) {
		ctx := r.Context()

		var body addItemBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		added, err := adapter.AddToCart(ctx, body.SKU, body.Quantity)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"added": added})
	})
}

// GetCart returns the remote cart state.
//
//	GET /api/v1/distributors/{distributorID}/cart
func GetCart(factory *ordering.Factory, logg *logger.Logger) http.HandlerFunc {
	return withAdapter(factory, logg, func(w http.ResponseWriter, r *http.Request, adapter ordering.PlatformAdapter) {
		ctx := r.Context()

		cart, err := adapter.GetCart(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cart)
	})
}

// ClearCart empties the remote cart.
//
//	DELETE /api/v1/distributors/{distributorID}/cart
func ClearCart(factory *ordering.Factory, logg *logger.Logger) http.HandlerFunc {
	return withAdapter(factory, logg, func(w http.ResponseWriter, r *http.Request, adapter ordering.PlatformAdapter) {
		ctx := r.Context()

		cleared, err := adapter.ClearCart(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"cleared": cleared})
	})
}

// RemoveCartItem removes one SKU from the remote cart.
//
//	DELETE /api/v1/distributors/{distributorID}/cart/items/{sku}
func RemoveCartItem(factory *ordering.Factory, logg *logger.Logger) http.HandlerFunc {
	return withAdapter(factory, logg, func(w http.ResponseWriter, r *http.Request, adapter ordering.PlatformAdapter) {
		ctx := r.Context()

		removed, err := adapter.RemoveFromCart(ctx, chi.URLParam(r, "sku"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"removed": removed})
	})
}

// UpdateCartItem sets the quantity for one SKU; zero removes the line.
//
//	PUT /api/v1/distributors/{distributorID}/cart/items/{sku}
func UpdateCartItem(factory *ordering.Factory, logg *logger.Logger) http.HandlerFunc {
	return withAdapter(factory, logg, func(w http.ResponseWriter, r *http.Request, adapter ordering.PlatformAdapter) {
		ctx := r.Context()

		var body updateItemBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		updated, err := adapter.UpdateCartQuantity(ctx, chi.URLParam(r, "sku"), body.Quantity)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"updated": updated})
	})
}

// DeliveryDates lists the distributor's upcoming delivery dates.
//
//	GET /api/v1/distributors/{distributorID}/delivery-dates
func DeliveryDates(factory *ordering.Factory, logg *logger.Logger) http.HandlerFunc {
	return withAdapter(factory, logg, func(w http.ResponseWriter, r *http.Request, adapter ordering.PlatformAdapter) {
		ctx := r.Context()

		dates, err := adapter.GetDeliveryDates(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		formatted := make([]string, 0, len(dates))
		for _, date := range dates {
			formatted = append(formatted, date.Format(deliveryDateLayout))
		}
		responses.WriteSuccess(w, map[string]any{"delivery_dates": formatted})
	})
}

// SetDeliveryDate requests a delivery date on the remote cart. Platforms
// without the capability answer 422.
//
//	PUT /api/v1/distributors/{distributorID}/cart/delivery-date
func SetDeliveryDate(factory *ordering.Factory, logg *logger.Logger) http.HandlerFunc {
	return withAdapter(factory, logg, func(w http.ResponseWriter, r *http.Request, adapter ordering.PlatformAdapter) {
		ctx := r.Context()

		var body deliveryDateBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		date, err := time.Parse(deliveryDateLayout, body.Date)
		if err != nil {
			responses.WriteError(ctx, logg, w,
				errors.New(errors.CodeValidation, "invalid delivery date").
					WithDetails(map[string]string{"date": "must be formatted YYYY-MM-DD"}))
			return
		}

		setter, ok := adapter.(ordering.DeliveryDateSetter)
		if !ok {
			responses.WriteError(ctx, logg, w,
				errors.New(errors.CodeConfiguration, "platform does not support delivery date selection"))
			return
		}

		set, err := setter.SetDeliveryDate(ctx, date)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"set": set})
	})
}
