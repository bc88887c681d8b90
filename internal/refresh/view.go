// Package refresh keeps the live departure view of the configured stop up
// to date. A single owner goroutine holds the published state; refresh
// tasks report to it by message and it discards reports from tasks that
// have been superseded.
package refresh

import (
	"slices"
	"time"

	"ikuyo.transit.dev/internal/models"
	"ikuyo.transit.dev/internal/transit"
)

// View is one published state of the controller.
type View struct {
	// Config is the configuration the latest cycle ran with.
	Config     *models.WidgetConfig
	Departures []transit.Departure
	// Err is the user-facing message of the latest failed cycle. It is
	// cleared when a cycle starts.
	Err string
	// LastRefresh is when the departures were fetched; zero when none are.
	LastRefresh time.Time
	Loading     bool
	// Generation identifies the task that published this view.
	Generation uint64
}

func (v View) clone() View {
	if v.Config != nil {
		cfg := v.Config.Clone()
		v.Config = &cfg
	}
	v.Departures = slices.Clone(v.Departures)
	return v
}

// HasResults reports whether a successful cycle has published departures.
func (v View) HasResults() bool { return !v.LastRefresh.IsZero() }
