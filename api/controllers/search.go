package controllers

import (
	"net/http"

	"github.com/angelmondragon/platewise-backend/api/responses"
	"github.com/angelmondragon/platewise-backend/api/validators"
	"github.com/angelmondragon/platewise-backend/internal/search"
	"github.com/angelmondragon/platewise-backend/pkg/config"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
)

// Search fans a product query out across distributors.
//
//	GET /api/v1/search?q=butter&distributor_ids=<uuid>,<uuid>&limit=10
func Search(aggregator *search.Aggregator, cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		limit, err := validators.ParseQueryInt(r, "limit", cfg.Ordering.DefaultSearchSize, 1, 50)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		ids, err := validators.ParseQueryUUIDList(r, "distributor_ids")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp, err := aggregator.Search(ctx, r.URL.Query().Get("q"), ids, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
