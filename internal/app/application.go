package app

import (
	"log/slog"
	"time"

	"ikuyo.transit.dev/internal/appconf"
	"ikuyo.transit.dev/internal/clock"
	"ikuyo.transit.dev/internal/logging"
	"ikuyo.transit.dev/internal/metrics"
	"ikuyo.transit.dev/internal/refresh"
	"ikuyo.transit.dev/internal/setup"
	"ikuyo.transit.dev/internal/store"
	"ikuyo.transit.dev/internal/transit"
)

// Application holds the dependencies shared by the HTTP handlers, the
// refresh loop and the command line tools.
type Application struct {
	Config   appconf.Config
	Logger   *slog.Logger
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	Location *time.Location

	Store        *store.Store
	Configs      *store.ConfigStore
	LookupCache  *store.LookupCacheStore
	Registry     *transit.Registry
	Controller   *refresh.Controller
	Configurator *setup.Configurator
}

// ProviderName is the long name of the provider registered under id, or
// id itself when none is.
func (app *Application) ProviderName(id string) string {
	if p, ok := app.Registry.Lookup(id); ok {
		return p.LongName()
	}
	return id
}

// Close stops the refresh controller and the metrics collector and closes
// the database.
func (app *Application) Close() {
	if app.Controller != nil {
		app.Controller.Close()
	}
	app.Metrics.Shutdown()
	if app.Store != nil {
		logging.SafeCloseWithLogging(app.Store, app.Logger, "store")
	}
}

// FollowConfig restarts the refresh loop whenever the saved configuration
// is written or cleared, and starts it now.
func (app *Application) FollowConfig() {
	app.Configs.OnChange(func() {
		app.Controller.Start(app.Configs)
	})
	app.Controller.Start(app.Configs)
}
