package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
)

// Logging writes one access line per request and feeds the HTTP metrics.
// Server errors log at warn; the cause was already logged by the responder.
func Logging(logg *logger.Logger, httpMetrics *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{"method": r.Method, "path": r.URL.Path})
			}
			r = r.WithContext(ctx)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			route := routePattern(r)
			httpMetrics.Observe(route, r.Method, status, elapsed)

			if logg == nil {
				return
			}
			lineCtx := logg.WithFields(ctx, map[string]any{
				"route":         route,
				"status":        status,
				"bytes_written": ww.BytesWritten(),
				"duration_ms":   elapsed.Milliseconds(),
			})
			logAccess(lineCtx, logg, status)
		})
	}
}

func logAccess(ctx context.Context, logg *logger.Logger, status int) {
	if status >= http.StatusInternalServerError {
		logg.Warn(ctx, "request.complete")
		return
	}
	logg.Info(ctx, "request.complete")
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
