// Package controllers implements the HTTP handlers behind the router.
package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/platewise-backend/api/responses"
	"github.com/angelmondragon/platewise-backend/pkg/config"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
)

// Pinger is any dependency that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type namedPinger struct {
	name   string
	pinger Pinger
}

// NamedPinger labels a dependency for the readiness report.
func NamedPinger(name string, pinger Pinger) namedPinger {
	return namedPinger{name: name, pinger: pinger}
}

// HealthLive reports that the process is up.
func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{
			"status": "live",
			"env":    cfg.App.Env,
		})
	}
}

// HealthReady pings each dependency and returns 503 when any is down. Nil
// pingers are reported as skipped so optional dependencies never fail
// readiness.
func HealthReady(logg *logger.Logger, deps ...namedPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := make(map[string]string, len(deps))
		healthy := true
		for _, dep := range deps {
			if dep.pinger == nil {
				report[dep.name] = "skipped"
				continue
			}
			if err := dep.pinger.Ping(ctx); err != nil {
				if logg != nil {
					logg.Error(ctx, "readiness check failed: "+dep.name, err)
				}
				report[dep.name] = "down"
				healthy = false
				continue
			}
			report[dep.name] = "ok"
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		responses.WriteSuccessStatus(w, status, report)
	}
}
