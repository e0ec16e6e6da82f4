// Package routes wires middleware and controllers into the HTTP router.
package routes

import (
	"net/http"

	"github.com/angelmondragon/platewise-backend/api/controllers"
	"github.com/angelmondragon/platewise-backend/api/middleware"
	"github.com/angelmondragon/platewise-backend/internal/ordering"
	"github.com/angelmondragon/platewise-backend/internal/search"
	"github.com/angelmondragon/platewise-backend/pkg/config"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// RouterParams groups everything the router hands to controllers.
type RouterParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	Aggregator *search.Aggregator
	Factory    *ordering.Factory

	// RateLimiter throttles the search surface; nil disables throttling.
	RateLimiter middleware.Limiter

	// Readiness dependencies; nil entries are reported as skipped.
	DB     controllers.Pinger
	Redis  controllers.Pinger
	PubSub controllers.Pinger
}

// NewRouter builds the full route tree.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer(params.Logger))
	r.Use(middleware.RequestID(params.Logger))
	r.Use(middleware.Logging(params.Logger))
	r.Use(middleware.CORS(nil))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(params.Config))
		r.Get("/ready", controllers.HealthReady(params.Logger,
			controllers.NamedPinger("db", params.DB),
			controllers.NamedPinger("redis", params.Redis),
			controllers.NamedPinger("pubsub", params.PubSub),
		))
	})

	searchLimit := middleware.NewRateLimitPolicy("search",
		params.Config.Ordering.SearchRateWindow, params.Config.Ordering.SearchRateLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(searchLimit, params.RateLimiter, params.Logger)).
			Get("/search", controllers.Search(params.Aggregator, params.Config, params.Logger))

		r.Route("/distributors/{distributorID}", func(r chi.Router) {
			r.Get("/delivery-dates", controllers.DeliveryDates(params.Factory, params.Logger))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.GetCart(params.Factory, params.Logger))
				r.Delete("/", controllers.ClearCart(params.Factory, params.Logger))
				r.Put("/delivery-date", controllers.SetDeliveryDate(params.Factory, params.Logger))

				r.Post("/items", controllers.AddCartItem(params.Factory, params.Logger))
				r.Put("/items/{sku}", controllers.UpdateCartItem(params.Factory, params.Logger))
				r.Delete("/items/{sku}", controllers.RemoveCartItem(params.Factory, params.Logger))
			})
		})
	})

	return r
}
