// Package setup implements the configuration workflow: finding a stop,
// choosing its routes and saving the widget configuration, with the last
// lookup cached so the workflow can resume.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ikuyo.transit.dev/internal/logging"
	"ikuyo.transit.dev/internal/models"
	"ikuyo.transit.dev/internal/transit"
	"ikuyo.transit.dev/internal/utils"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrNoProviders     = errors.New("no providers registered")
)

// ConfigStore persists the widget configuration.
type ConfigStore interface {
	Load(ctx context.Context) (*models.WidgetConfig, error)
	Save(ctx context.Context, cfg models.WidgetConfig) error
	Clear(ctx context.Context) error
}

// CacheStore persists the lookup cache.
type CacheStore interface {
	Load(ctx context.Context) (*models.LookupCache, error)
	Save(ctx context.Context, cache models.LookupCache) error
	Clear(ctx context.Context) error
}

type Configurator struct {
	registry *transit.Registry
	configs  ConfigStore
	cache    CacheStore
	logger   *slog.Logger
}

func NewConfigurator(registry *transit.Registry, configs ConfigStore, cache CacheStore, logger *slog.Logger) *Configurator {
	return &Configurator{
		registry: registry,
		configs:  configs,
		cache:    cache,
		logger:   logging.Component(logger, "configurator"),
	}
}

// Provider resolves id; an empty id selects the default provider.
func (c *Configurator) Provider(id string) (transit.Provider, error) {
	if id == "" {
		p, ok := c.registry.Default()
		if !ok {
			return nil, ErrNoProviders
		}
		return p, nil
	}
	p, ok := c.registry.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return p, nil
}

// loadCache returns the cache if it belongs to providerID.
func (c *Configurator) loadCache(ctx context.Context, providerID string) (*models.LookupCache, error) {
	cache, err := c.cache.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read lookup cache: %w", err)
	}
	if !cache.ValidFor(providerID) {
		return nil, nil
	}
	return cache, nil
}

// SearchStops looks stops up by name. A blank query clears the cache and
// returns nothing. Results are cached together with the query.
func (c *Configurator) SearchStops(ctx context.Context, providerID, query string) ([]transit.Stop, error) {
	provider, err := c.Provider(providerID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(query) == "" {
		return nil, c.Reset(ctx)
	}

	stops, err := provider.FindStops(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load stops: %w", err)
	}

	cache, err := c.loadCache(ctx, provider.ID())
	if err != nil {
		return nil, err
	}
	next := models.LookupCache{ProviderID: provider.ID()}
	if cache != nil {
		next = *cache
	}
	next.StopQuery = query
	next.StopResults = stops
	if err := c.cache.Save(ctx, next); err != nil {
		logging.LogWarn(c.logger, "failed to cache stop results", err, slog.String("query", query))
	}

	c.logger.Debug("stops found", slog.String("provider", provider.ID()), slog.String("query", query), slog.Int("results", len(stops)))
	return stops, nil
}

// resolveStop finds stopID among the cached stops. Unknown stops get their
// id as name and no position.
func resolveStop(cache *models.LookupCache, stopID string) transit.Stop {
	if cache != nil {
		if cache.SelectedStop != nil && cache.SelectedStop.ID == stopID {
			return *cache.SelectedStop
		}
		for _, s := range cache.StopResults {
			if s.ID == stopID {
				return s
			}
		}
	}
	return transit.Stop{
		ID:           stopID,
		Name:         stopID,
		Lat:          transit.NoCoordinate,
		Lon:          transit.NoCoordinate,
		LocationType: transit.LocationGeneric,
	}
}

// LoadRoutes lists the routes of stopID. With allowCached the cached routes
// are used when they were loaded for the same provider and stop and are
// not empty; otherwise they are fetched and cached with the stop as the
// selected one.
func (c *Configurator) LoadRoutes(ctx context.Context, providerID, stopID string, allowCached bool) ([]transit.Route, error) {
	provider, err := c.Provider(providerID)
	if err != nil {
		return nil, err
	}
	if stopID == "" {
		return nil, models.ErrMissingStop
	}

	cache, err := c.loadCache(ctx, provider.ID())
	if err != nil {
		return nil, err
	}
	if allowCached {
		if routes, ok := cache.RoutesFor(provider.ID(), stopID); ok {
			c.logger.Debug("routes served from cache", slog.String("stop_id", stopID), slog.Int("routes", len(routes)))
			return routes, nil
		}
	}

	routes, err := provider.FindRoutes(ctx, stopID)
	if err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}

	stop := resolveStop(cache, stopID)
	next := models.LookupCache{ProviderID: provider.ID(), StopQuery: stop.Name}
	if cache != nil {
		next = *cache
	}
	next.SelectedStop = &stop
	next.AvailableRoutes = routes
	if err := c.cache.Save(ctx, next); err != nil {
		logging.LogWarn(c.logger, "failed to cache routes", err, slog.String("stop_id", stopID))
	}
	return routes, nil
}

// Draft is a configuration being edited.
type Draft struct {
	ProviderID      string
	StopID          string
	StopName        string
	RouteIDs        []string
	RefreshInterval int
	AlwaysOnTop     bool
}

// Save validates d, writes it as the widget configuration and records the
// stop and its routes in the lookup cache. Route ids the stop is known not
// to serve are dropped.
func (c *Configurator) Save(ctx context.Context, d Draft) (models.WidgetConfig, error) {
	provider, err := c.Provider(d.ProviderID)
	if err != nil {
		return models.WidgetConfig{}, err
	}

	cache, err := c.loadCache(ctx, provider.ID())
	if err != nil {
		return models.WidgetConfig{}, err
	}

	routeIDs := dedupe(d.RouteIDs)
	if known, ok := cache.RoutesFor(provider.ID(), d.StopID); ok {
		routeIDs = intersect(routeIDs, known)
	}

	stop := resolveStop(cache, d.StopID)
	name := d.StopName
	if name == "" {
		name = stop.Name
	}

	cfg := models.WidgetConfig{
		ProviderID:      provider.ID(),
		StopID:          d.StopID,
		StopName:        name,
		RouteIDs:        routeIDs,
		RefreshInterval: d.RefreshInterval,
		AlwaysOnTop:     d.AlwaysOnTop,
	}
	if err := cfg.Validate(); err != nil {
		return models.WidgetConfig{}, fmt.Errorf("cannot save configuration: %w", err)
	}
	if err := c.configs.Save(ctx, cfg); err != nil {
		return models.WidgetConfig{}, fmt.Errorf("failed to save configuration: %w", err)
	}

	next := models.LookupCache{ProviderID: provider.ID()}
	if cache != nil {
		next = *cache
	}
	next.StopQuery = name
	next.SelectedStop = &stop
	if err := c.cache.Save(ctx, next); err != nil {
		logging.LogWarn(c.logger, "failed to cache lookup state", err)
	}

	logging.LogOperation(c.logger, "configuration_saved",
		slog.String("provider", cfg.ProviderID),
		slog.String("stop_id", cfg.StopID),
		slog.Any("routes", cfg.RouteIDs),
		slog.Int("interval_minutes", cfg.RefreshInterval))
	return cfg, nil
}

// State is what the workflow resumes from.
type State struct {
	ProviderID string
	Config     *models.WidgetConfig
	// Cache is set only when it belongs to ProviderID.
	Cache *models.LookupCache
}

// Restore loads the saved configuration and the lookup cache. Without a
// saved configuration the default provider is selected.
func (c *Configurator) Restore(ctx context.Context) (State, error) {
	cfg, err := c.configs.Load(ctx)
	if err != nil {
		return State{}, fmt.Errorf("failed to read configuration: %w", err)
	}

	var state State
	if cfg != nil {
		state.Config = cfg
		state.ProviderID = cfg.ProviderID
	} else if p, ok := c.registry.Default(); ok {
		state.ProviderID = p.ID()
	}

	cache, err := c.loadCache(ctx, state.ProviderID)
	if err != nil {
		return State{}, err
	}
	state.Cache = cache
	return state, nil
}

// Reset forgets the lookup cache, as when the provider changes.
func (c *Configurator) Reset(ctx context.Context) error {
	if err := c.cache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear lookup cache: %w", err)
	}
	return nil
}

// Forget removes the saved configuration and the lookup cache.
func (c *Configurator) Forget(ctx context.Context) error {
	if err := c.Reset(ctx); err != nil {
		return err
	}
	if err := c.configs.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear configuration: %w", err)
	}
	return nil
}

// NearbyStops keeps the stops within radius meters of lat/lon, nearest
// first. Stops without a position are left out.
func NearbyStops(stops []transit.Stop, lat, lon, radius float64) []utils.Located[transit.Stop] {
	idx := utils.NewSpatialIndex(stops, func(s transit.Stop) (float64, float64, bool) {
		return s.Lat, s.Lon, s.HasCoordinates()
	})
	return idx.Within(lat, lon, radius)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func intersect(ids []string, routes []transit.Route) []string {
	available := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		available[r.ID] = struct{}{}
	}
	out := ids[:0]
	for _, id := range ids {
		if _, ok := available[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
