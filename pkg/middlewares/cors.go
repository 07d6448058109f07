package middlewares

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// CorsOptions returns the CORS policy for browser based front-desk tools
// served from origins
func CorsOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPut,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"Content-Type", "X-Correlation-ID"},
		ExposedHeaders: []string{"X-Txn-ID", "X-Correlation-ID"},
	}
}

// NewCorsMw should be the first middleware in the chain so that preflight
// requests are answered before routing
func NewCorsMw(opts cors.Options) mux.MiddlewareFunc {
	c := cors.New(opts)

	return func(next http.Handler) http.Handler {
		return c.Handler(next)
	}
}
