package ordering

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/angelmondragon/platewise-backend/internal/distributors"
	"github.com/angelmondragon/platewise-backend/internal/sessions"
	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/google/uuid"
)

// FactoryParams groups dependencies for the adapter factory.
type FactoryParams struct {
	Distributors   *distributors.Service
	Sessions       *sessions.Service
	Logger         *logger.Logger
	RequestTimeout time.Duration
}

// Factory maps a distributor's platform identifier to the matching adapter
// implementation, defaulting to the mock for unknown platforms.
type Factory struct {
	distSvc *distributors.Service
	sessSvc *sessions.Service
	logg    *logger.Logger
	timeout time.Duration

	constructors map[string]func(baseParams) (PlatformAdapter, error)
}

// NewFactory builds an adapter factory.
func NewFactory(params FactoryParams) (*Factory, error) {
	if params.Distributors == nil {
		return nil, stdErrors.New("distributor service is required")
	}
	if params.Sessions == nil {
		return nil, stdErrors.New("session service is required")
	}

	f := &Factory{
		distSvc: params.Distributors,
		sessSvc: params.Sessions,
		logg:    params.Logger,
		timeout: params.RequestTimeout,
	}
	f.constructors = map[string]func(baseParams) (PlatformAdapter, error){
		PlatformValleyFoods: func(p baseParams) (PlatformAdapter, error) {
			return newValleyFoodsClient(p)
		},
		PlatformMetroWholesale: func(p baseParams) (PlatformAdapter, error) {
			return newMetroWholesaleClient(p)
		},
		PlatformFarmDirect: func(p baseParams) (PlatformAdapter, error) {
			return newFarmDirectClient(p)
		},
		PlatformGreenMarket: func(p baseParams) (PlatformAdapter, error) {
			return newGreenMarketClient(p)
		},
	}
	return f, nil
}

// Client returns the adapter for a distributor. Unknown or empty platform
// identifiers get the mock adapter so development flows keep working.
func (f *Factory) Client(ctx context.Context, distributorID uuid.UUID) (PlatformAdapter, error) {
	dist, err := f.distSvc.Get(ctx, distributorID)
	if err != nil {
		return nil, err
	}
	return f.ClientFor(ctx, dist)
}

// ClientFor builds an adapter from an already loaded distributor row.
func (f *Factory) ClientFor(ctx context.Context, dist *models.Distributor) (PlatformAdapter, error) {
	if dist == nil {
		return nil, stdErrors.New("distributor is required")
	}

	params := baseParams{
		Distributor:  dist,
		Distributors: f.distSvc,
		Sessions:     f.sessSvc,
		Logger:       f.logg,
		Timeout:      f.timeout,
	}
	if baseURL, err := distributors.SettingString(dist, distributors.SettingBaseURL); err == nil {
		params.BaseURL = baseURL
	}

	if build, ok := f.constructors[dist.PlatformID]; ok {
		return build(params)
	}

	if f.logg != nil {
		f.logg.Warn(f.logg.WithDistributorID(ctx, dist.ID.String()),
			"no adapter for platform, using mock")
	}
	return newMockClient(params)
}
