package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nkiryanov/weddingplanner/internal/handlers/render"
	"github.com/nkiryanov/weddingplanner/internal/logger"
)

const healthCheckTimeout = 2 * time.Second

func handleHealth(check func(ctx context.Context) error, l logger.Logger) http.Handler {
	type response struct {
		Status string `json:"status"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()

			if err := check(ctx); err != nil {
				l.Warn("health check failed", "error", err)
				render.JSONWithStatus(w, response{Status: "unavailable"}, http.StatusServiceUnavailable)
				return
			}
		}

		render.JSON(w, response{Status: "ok"})
	})
}
