package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ikuyo.transit.dev/internal/app"
	"ikuyo.transit.dev/internal/appconf"
	"ikuyo.transit.dev/internal/clock"
	"ikuyo.transit.dev/internal/logging"
	"ikuyo.transit.dev/internal/metrics"
	"ikuyo.transit.dev/internal/mvv"
	"ikuyo.transit.dev/internal/refresh"
	"ikuyo.transit.dev/internal/restapi"
	"ikuyo.transit.dev/internal/setup"
	"ikuyo.transit.dev/internal/store"
	"ikuyo.transit.dev/internal/transit"
)

const (
	dbStatsInterval = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// BuildApplication wires the store, the MVV provider, the refresh
// controller and the setup workflow from cfg. Logs go to logOutput.
func BuildApplication(cfg appconf.Config, logOutput io.Writer) (*app.Application, error) {
	logger := logging.NewLogger(logOutput, cfg.Env == appconf.Production, cfg.Verbose)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var clk clock.Clock = clock.RealClock{}
	if cfg.ClockEnvVar != "" || cfg.ClockFile != "" {
		clk = clock.NewEnvironmentClock(cfg.ClockEnvVar, cfg.ClockFile, loc, logging.Component(logger, "clock"))
	}

	m := metrics.NewWithLogger(logger)

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	m.StartDBStatsCollector(s.DB, dbStatsInterval)

	provider := mvv.New(
		mvv.WithBaseURL(cfg.ProviderBaseURL),
		mvv.WithRateLimit(cfg.ProviderRateLimit),
		mvv.WithClock(clk),
		mvv.WithLocation(loc),
		mvv.WithMetrics(m),
		mvv.WithLogger(logger),
	)
	registry := transit.NewRegistry(provider)

	configs := store.NewConfigStore(s)
	cache := store.NewLookupCacheStore(s)

	controller := refresh.NewController(registry,
		refresh.WithClock(clk),
		refresh.WithMetrics(m),
		refresh.WithLogger(logger),
		refresh.WithIdleInterval(cfg.IdleInterval),
		refresh.WithDepartureCount(mvv.DefaultDepartureCount),
	)

	return &app.Application{
		Config:       cfg,
		Logger:       logger,
		Clock:        clk,
		Metrics:      m,
		Location:     loc,
		Store:        s,
		Configs:      configs,
		LookupCache:  cache,
		Registry:     registry,
		Controller:   controller,
		Configurator: setup.NewConfigurator(registry, configs, cache, logger),
	}, nil
}

// CreateServer builds the HTTP server for the display API. The caller
// owns the returned API and must call Shutdown on it.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)

	mux := http.NewServeMux()
	api.SetRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.Handler(mux),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
	}
	return srv, api
}

// Run serves srv until ctx is done, then shuts it down gracefully.
func Run(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "http_server_started", slog.String("addr", srv.Addr))
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logging.LogOperation(logger, "http_server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-serveErr
}

// ParseRouteIDs splits a comma separated list, trimming blanks.
func ParseRouteIDs(input string) []string {
	if strings.TrimSpace(input) == "" {
		return []string{}
	}
	parts := strings.Split(input, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// parseLatLon reads "lat,lon".
func parseLatLon(input string) (lat, lon float64, err error) {
	parts := strings.Split(input, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected lat,lon, got %q", input)
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude: %w", err)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude: %w", err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("coordinates out of range: %g,%g", lat, lon)
	}
	return lat, lon, nil
}
