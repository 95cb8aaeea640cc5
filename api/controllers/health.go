package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/cartpay-io/cartpay-backend/api/responses"
	"github.com/cartpay-io/cartpay-backend/pkg/config"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
)

const readyProbeTimeout = 2 * time.Second

// Pinger is any dependency the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "live", "env": cfg.App.Env})
	}
}

// HealthReady reports ready only when the backing stores answer. A failing
// dependency returns 503 so the load balancer stops routing here.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
		defer cancel()

		deps := map[string]Pinger{
			"database": dbP,
			"redis":    redisP,
		}

		status := map[string]string{"status": "ready", "env": cfg.App.Env}
		healthy := true
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				healthy = false
				status[name] = "down"
				if logg != nil {
					logCtx := logg.WithField(ctx, "dependency", name)
					logg.Error(logCtx, "readiness probe failed", err)
				}
				continue
			}
			status[name] = "up"
		}

		if !healthy {
			status["status"] = "degraded"
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, status)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
