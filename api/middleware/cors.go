package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
)

var devOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}

// CORS applies the configured origin list. Dev also admits any local port. A
// "*" origin turns credentials off.
func CORS(app config.AppConfig) func(http.Handler) http.Handler {
	origins := corsOrigins(app)
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyKeyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, "Retry-After"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           600,
	}
	if len(origins) == 0 {
		// An empty list means allow-all to the cors package; deny instead.
		opts.AllowOriginFunc = func(*http.Request, string) bool { return false }
	}
	return cors.New(opts).Handler
}

func corsOrigins(app config.AppConfig) []string {
	var origins []string
	for _, o := range app.CORSAllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	if app.IsDev() {
		origins = append(origins, devOrigins...)
	}
	slices.Sort(origins)
	return slices.Compact(origins)
}
