package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/tradeyard/tradeyard-backend/api/responses"
	"github.com/tradeyard/tradeyard-backend/pkg/config"
	pkgerrors "github.com/tradeyard/tradeyard-backend/pkg/errors"
	"github.com/tradeyard/tradeyard-backend/pkg/logger"
)

// Pinger is the readiness probe dependency surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-TradeYard-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-TradeYard-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				wrapped := pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" is unreachable")
				responses.WriteError(r.Context(), logg, w, wrapped)
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
