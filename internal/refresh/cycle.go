package refresh

import (
	"context"
	"log/slog"
	"time"

	"ikuyo.transit.dev/internal/logging"
	"ikuyo.transit.dev/internal/metrics"
	"ikuyo.transit.dev/internal/models"
	"ikuyo.transit.dev/internal/transit"
)

// cycleResult is what the loop needs to schedule the next cycle.
type cycleResult struct {
	view       View
	published  bool
	completed  time.Time
	interval   time.Duration
	superseded bool
}

func (c *Controller) runTask(ctx context.Context, gen uint64, src ConfigSource, loop bool, first chan<- View) {
	firstPending := true
	deliverFirst := func(res cycleResult) {
		if !firstPending {
			return
		}
		firstPending = false
		if res.published {
			first <- res.view
		}
		close(first)
	}
	defer func() {
		if firstPending {
			close(first)
		}
	}()

	for {
		res := c.runCycle(ctx, gen, src)
		if res.superseded || ctx.Err() != nil {
			c.metrics.ObserveRefresh(metrics.OutcomeSuperseded, res.completed, 0)
			return
		}
		deliverFirst(res)
		if !loop {
			return
		}

		// The anchor is the completion of the cycle that just ran, whatever
		// its outcome.
		delay := nextDelay(res.completed, res.interval, c.clock.Now())
		c.logger.Debug("next refresh scheduled",
			slog.Uint64("generation", gen),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(delay):
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// nextDelay is max(0, anchor+interval-now).
func nextDelay(anchor time.Time, interval time.Duration, now time.Time) time.Duration {
	if anchor.IsZero() {
		anchor = now
	}
	delay := anchor.Add(interval).Sub(now)
	if delay < 0 {
		return 0
	}
	return delay
}

func (c *Controller) runCycle(ctx context.Context, gen uint64, src ConfigSource) cycleResult {
	cfg, err := src.Load(ctx)
	if ctx.Err() != nil {
		return cycleResult{superseded: true, completed: c.clock.Now()}
	}
	if err != nil {
		logging.LogError(c.logger, "failed to read configuration", err)
		now := c.clock.Now()
		view, ok := c.publish(gen, func(v *View) {
			v.Err = "Failed to load configuration. " + err.Error()
			v.Loading = false
		})
		c.metrics.ObserveRefresh(metrics.OutcomeFailure, now, 0)
		return cycleResult{view: view, published: ok, completed: now, interval: c.idleInterval, superseded: !ok}
	}

	var provider transit.Provider
	if cfg != nil {
		provider, _ = c.registry.Lookup(cfg.ProviderID)
	}
	if cfg == nil || provider == nil {
		return c.idle(gen, cfg)
	}

	return c.fetch(ctx, gen, cfg, provider)
}

// idle clears the results. It is not an error: there is simply nothing to
// show until a usable configuration appears.
func (c *Controller) idle(gen uint64, cfg *models.WidgetConfig) cycleResult {
	if cfg != nil {
		c.logger.Warn("no provider registered for configuration", slog.String("provider", cfg.ProviderID))
	}
	view, ok := c.publish(gen, func(v *View) {
		v.Config = cfg
		v.Departures = []transit.Departure{}
		v.Err = ""
		v.LastRefresh = time.Time{}
		v.Loading = false
	})
	now := c.clock.Now()
	c.metrics.ObserveRefresh(metrics.OutcomeIdle, now, 0)
	return cycleResult{view: view, published: ok, completed: now, interval: c.idleInterval, superseded: !ok}
}

func (c *Controller) fetch(ctx context.Context, gen uint64, cfg *models.WidgetConfig, provider transit.Provider) cycleResult {
	interval := cfg.Interval()
	if interval <= 0 {
		interval = c.idleInterval
	}
	if _, ok := c.publish(gen, func(v *View) {
		v.Config = cfg
		v.Err = ""
		v.Loading = true
	}); !ok {
		return cycleResult{superseded: true, completed: c.clock.Now()}
	}

	logger := c.logger.With(
		slog.Uint64("generation", gen),
		slog.String("provider", cfg.ProviderID),
		slog.String("stop_id", cfg.StopID))

	departures, err := c.loadDepartures(ctx, cfg, provider)
	completed := c.clock.Now()
	if ctx.Err() != nil {
		logger.Debug("discarding result of superseded cycle")
		return cycleResult{superseded: true, completed: completed}
	}

	if err != nil {
		message := failureMessage(err)
		logging.LogError(logger, "refresh failed", err)
		view, ok := c.publish(gen, func(v *View) {
			v.Err = message
			v.Loading = false
		})
		c.metrics.ObserveRefresh(metrics.OutcomeFailure, completed, 0)
		return cycleResult{view: view, published: ok, completed: completed, interval: interval, superseded: !ok}
	}

	transit.SortDepartures(departures, completed)
	view, ok := c.publish(gen, func(v *View) {
		v.Departures = departures
		v.LastRefresh = completed
		v.Err = ""
		v.Loading = false
	})
	if ok {
		c.metrics.ObserveRefresh(metrics.OutcomeSuccess, completed, len(departures))
		logging.LogOperation(logger, "refresh_completed", slog.Int("departures", len(departures)))
	}
	return cycleResult{view: view, published: ok, completed: completed, interval: interval, superseded: !ok}
}

// loadDepartures asks for the configured routes that the stop still
// serves. Configured ids missing from the fresh route list are dropped.
func (c *Controller) loadDepartures(ctx context.Context, cfg *models.WidgetConfig, provider transit.Provider) ([]transit.Departure, error) {
	routes, err := provider.FindRoutes(ctx, cfg.StopID)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	selected := transit.SelectRoutes(routes, cfg.RouteIDs)
	if dropped := len(cfg.RouteIDs) - len(selected.IDs()); dropped > 0 {
		c.logger.Debug("configured routes no longer served",
			slog.String("stop_id", cfg.StopID),
			slog.Int("dropped", dropped))
	}

	return provider.FindDepartures(ctx, cfg.StopID, selected, c.clock.Now(), c.departureCount)
}

// failureMessage is the text shown for a failed cycle.
func failureMessage(err error) string {
	if tf, ok := transit.AsInvalidTimeFormat(err); ok {
		return tf.Error()
	}
	return "Failed to load departures. " + err.Error()
}
