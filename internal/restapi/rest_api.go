package restapi

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"ikuyo.transit.dev/internal/app"
)

// Cache-Control tiers in seconds.
const (
	noCache        = 0
	shortCacheTTL  = 5
	staticCacheTTL = 300
)

// RestAPI serves the JSON display API.
type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
}

func NewRestAPI(app *app.Application) *RestAPI {
	return &RestAPI{
		Application: app,
		rateLimiter: NewRateLimitMiddleware(app.Config.RateLimit, time.Minute, app.Clock),
	}
}

// SetRoutes registers every endpoint on mux.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	limited := api.rateLimiter.Handler()

	mux.Handle("GET /api/live.json", CacheControlMiddleware(noCache, http.HandlerFunc(api.liveHandler)))
	mux.Handle("POST /api/refresh.json", CacheControlMiddleware(noCache, limited(http.HandlerFunc(api.refreshHandler))))
	mux.Handle("GET /api/providers.json", CacheControlMiddleware(staticCacheTTL, http.HandlerFunc(api.providersHandler)))
	mux.Handle("GET /api/config.json", CacheControlMiddleware(shortCacheTTL, http.HandlerFunc(api.configHandler)))
	mux.Handle("PUT /api/config.json", CacheControlMiddleware(noCache, limited(http.HandlerFunc(api.saveConfigHandler))))
	mux.Handle("DELETE /api/config.json", CacheControlMiddleware(noCache, limited(http.HandlerFunc(api.deleteConfigHandler))))
	mux.Handle("GET /api/current-time.json", CacheControlMiddleware(noCache, http.HandlerFunc(api.currentTimeHandler)))
	mux.HandleFunc("GET /healthz", api.healthHandler)
	mux.HandleFunc("GET /debug/state", api.debugStateHandler)
	if api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", api.sendNotFound)
}

// Handler wraps mux with the middleware chain, outermost first: CORS (when
// origins are configured), request id, request logging, metrics,
// compression.
func (api *RestAPI) Handler(mux *http.ServeMux) http.Handler {
	var h http.Handler = mux
	h = gzhttp.GzipHandler(h)
	h = MetricsHandler(api.Metrics)(h)
	h = NewRequestLoggingMiddleware(api.Logger)(h)
	h = RequestIDMiddleware(h)
	if len(api.Config.CORSOrigins) > 0 {
		h = cors.Handler(cors.Options{
			AllowedOrigins: api.Config.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
			MaxAge:         300,
		})(h)
	}
	return h
}

// Shutdown releases background resources held by the API.
func (api *RestAPI) Shutdown() {
	if api.rateLimiter != nil {
		api.rateLimiter.Stop()
	}
}
