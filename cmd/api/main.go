package main

import (
	"context"
	"net/http"
	"os"

	"github.com/angelmondragon/platewise-backend/api/routes"
	"github.com/angelmondragon/platewise-backend/internal/catalog"
	"github.com/angelmondragon/platewise-backend/internal/distributors"
	"github.com/angelmondragon/platewise-backend/internal/ordering"
	"github.com/angelmondragon/platewise-backend/internal/search"
	"github.com/angelmondragon/platewise-backend/internal/sessions"
	"github.com/angelmondragon/platewise-backend/pkg/config"
	"github.com/angelmondragon/platewise-backend/pkg/db"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/angelmondragon/platewise-backend/pkg/metrics"
	"github.com/angelmondragon/platewise-backend/pkg/migrate"
	"github.com/angelmondragon/platewise-backend/pkg/pubsub"
	"github.com/angelmondragon/platewise-backend/pkg/redis"
	"github.com/angelmondragon/platewise-backend/pkg/secrets"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var resolver distributors.CredentialResolver
	if !cfg.Secrets.Disabled && cfg.GCP.ProjectID != "" {
		source, err := secrets.NewManagerSource(context.Background(), cfg.GCP.ProjectID)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap secret manager", err)
			os.Exit(1)
		}
		defer source.Close()

		resolver, err = secrets.NewResolver(source)
		if err != nil {
			logg.Error(context.Background(), "failed to create secret resolver", err)
			os.Exit(1)
		}
	}

	distSvc, err := distributors.NewService(distributors.ServiceParams{
		Repo:     distributors.NewRepository(dbClient.DB()),
		Resolver: resolver,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create distributor service", err)
		os.Exit(1)
	}
	sessSvc, err := sessions.NewService(sessions.ServiceParams{
		Repo: sessions.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create session service", err)
		os.Exit(1)
	}
	catSvc, err := catalog.NewService(catalog.ServiceParams{
		Repo: catalog.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	factory, err := ordering.NewFactory(ordering.FactoryParams{
		Distributors:   distSvc,
		Sessions:       sessSvc,
		Logger:         logg,
		RequestTimeout: cfg.Ordering.RequestTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create adapter factory", err)
		os.Exit(1)
	}

	var pubsubClient *pubsub.Client
	var publisher search.ObservationPublisher
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer pubsubClient.Close()

		publisher, err = search.NewPubSubPublisher(pubsubClient)
		if err != nil {
			logg.Error(context.Background(), "failed to create price publisher", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "no GCP project configured, price observations disabled")
	}

	aggregator, err := search.NewAggregator(search.AggregatorParams{
		Distributors: distSvc,
		Adapters:     factory,
		Catalog:      catSvc,
		Cache:        redisClient,
		Publisher:    publisher,
		Metrics:      metrics.NewSearchMetrics(prometheus.DefaultRegisterer),
		Logger:       logg,
		CacheTTL:     cfg.Ordering.SearchCacheTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create search aggregator", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	routerParams := routes.RouterParams{
		Config:      cfg,
		Logger:      logg,
		Aggregator:  aggregator,
		Factory:     factory,
		RateLimiter: redisClient,
		DB:          dbClient,
		Redis:       redisClient,
	}
	if pubsubClient != nil {
		routerParams.PubSub = pubsubClient
	}

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(routerParams),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
