package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"ikuyo.transit.dev/internal/app"
	"ikuyo.transit.dev/internal/models"
	"ikuyo.transit.dev/internal/setup"
	"ikuyo.transit.dev/internal/transit"
)

const (
	defaultNearRadius = 1000.0
	// refreshTimeout bounds the one-shot departures command.
	refreshTimeout = 30 * time.Second
)

type commandEnv struct {
	app    *app.Application
	args   []string
	stdout io.Writer
	stderr io.Writer
}

func (e *commandEnv) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

type command func(ctx context.Context, env *commandEnv) error

var commands = map[string]command{
	"serve":      serveCommand,
	"stops":      stopsCommand,
	"routes":     routesCommand,
	"configure":  configureCommand,
	"departures": departuresCommand,
	"show":       showCommand,
	"reset":      resetCommand,
}

func serveCommand(ctx context.Context, env *commandEnv) error {
	if err := env.flags("serve").Parse(env.args); err != nil {
		return err
	}

	env.app.FollowConfig()
	srv, api := CreateServer(env.app, env.app.Config)
	defer api.Shutdown()
	return Run(ctx, srv, env.app.Logger)
}

func stopsCommand(ctx context.Context, env *commandEnv) error {
	fs := env.flags("stops")
	provider := fs.String("provider", "", "provider id")
	near := fs.String("near", "", "only stops near lat,lon")
	radius := fs.Float64("radius", defaultNearRadius, "radius in meters for --near")
	if err := fs.Parse(env.args); err != nil {
		return err
	}
	query := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: stops needs a search query", errUsage)
	}

	stops, err := env.app.Configurator.SearchStops(ctx, *provider, query)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	if *near == "" {
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tLAT\tLON")
		for _, s := range stops {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.LocationType.GTFS(), coordinate(s.Lat, s), coordinate(s.Lon, s))
		}
		return w.Flush()
	}

	lat, lon, err := parseLatLon(*near)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	fmt.Fprintln(w, "ID\tNAME\tDISTANCE")
	for _, l := range setup.NearbyStops(stops, lat, lon, *radius) {
		fmt.Fprintf(w, "%s\t%s\t%.0f m\n", l.Value.ID, l.Value.Name, l.Distance)
	}
	return w.Flush()
}

func coordinate(v float64, s transit.Stop) string {
	if !s.HasCoordinates() {
		return "-"
	}
	return fmt.Sprintf("%.5f", v)
}

func routesCommand(ctx context.Context, env *commandEnv) error {
	fs := env.flags("routes")
	provider := fs.String("provider", "", "provider id")
	stopID := fs.String("stop", "", "stop id; defaults to the last selected stop")
	noCache := fs.Bool("no-cache", false, "always ask the agency")
	if err := fs.Parse(env.args); err != nil {
		return err
	}

	if *stopID == "" {
		state, err := env.app.Configurator.Restore(ctx)
		if err != nil {
			return err
		}
		switch {
		case state.Cache != nil && state.Cache.SelectedStop != nil:
			*stopID = state.Cache.SelectedStop.ID
		case state.Config != nil:
			*stopID = state.Config.StopID
		default:
			return fmt.Errorf("%w: routes needs --stop when no stop has been selected", errUsage)
		}
	}

	routes, err := env.app.Configurator.LoadRoutes(ctx, *provider, *stopID, !*noCache)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLINE\tDIRECTION\tTYPE")
	for _, r := range routes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.ShortName, r.LongName, r.Type)
	}
	return w.Flush()
}

func configureCommand(ctx context.Context, env *commandEnv) error {
	fs := env.flags("configure")
	provider := fs.String("provider", "", "provider id")
	stopID := fs.String("stop", "", "stop id")
	name := fs.String("name", "", "display name of the stop")
	routes := fs.String("routes", "", "comma separated route ids")
	interval := fs.Int("interval", 1, "refresh interval in minutes")
	alwaysOnTop := fs.Bool("always-on-top", false, "keep the widget above other windows")
	if err := fs.Parse(env.args); err != nil {
		return err
	}

	cfg, err := env.app.Configurator.Save(ctx, setup.Draft{
		ProviderID:      *provider,
		StopID:          *stopID,
		StopName:        *name,
		RouteIDs:        ParseRouteIDs(*routes),
		RefreshInterval: *interval,
		AlwaysOnTop:     *alwaysOnTop,
	})
	if err != nil {
		return err
	}
	return writeJSON(env.stdout, cfg)
}

func departuresCommand(ctx context.Context, env *commandEnv) error {
	if err := env.flags("departures").Parse(env.args); err != nil {
		return err
	}

	cfg, err := env.app.Configs.Load(ctx)
	if err != nil {
		return err
	}
	if cfg == nil {
		return errors.New("no configuration saved; run configure first")
	}

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	var view models.LiveView
	select {
	case v, ok := <-env.app.Controller.Refresh(cfg):
		if !ok {
			return errors.New("refresh was cancelled")
		}
		view = models.NewLiveView(models.LiveViewInput{
			Config:       v.Config,
			ProviderName: env.app.ProviderName(cfg.ProviderID),
			Departures:   v.Departures,
			Err:          v.Err,
			LastRefresh:  v.LastRefresh,
			Generation:   v.Generation,
		}, env.app.Clock.Now(), env.app.Location)
	case <-ctx.Done():
		return ctx.Err()
	}

	fmt.Fprintf(env.stdout, "%s (%s)\n", cfg.StopName, view.ProviderName)
	if view.Error != "" {
		fmt.Fprintln(env.stdout, view.Error)
	}
	w := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	for _, d := range view.Departures {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Time, d.RouteShortName, d.RouteLongName, relative(d))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if view.LastRefreshText != "" {
		fmt.Fprintf(env.stdout, "Updated %s\n", view.LastRefreshText)
	}
	if view.Error != "" {
		return errors.New("refresh failed")
	}
	return nil
}

func relative(d models.DepartureEntry) string {
	s := fmt.Sprintf("in %d min", d.MinutesUntil)
	if d.MinutesUntil < 0 {
		s = fmt.Sprintf("%d min ago", -d.MinutesUntil)
	}
	if d.DelayMinutes != 0 {
		s += fmt.Sprintf(" (%+d)", d.DelayMinutes)
	}
	return s
}

func showCommand(ctx context.Context, env *commandEnv) error {
	if err := env.flags("show").Parse(env.args); err != nil {
		return err
	}
	state, err := env.app.Configurator.Restore(ctx)
	if err != nil {
		return err
	}
	return writeJSON(env.stdout, struct {
		ProviderID string               `json:"providerId"`
		Config     *models.WidgetConfig `json:"config"`
		Cache      *models.LookupCache  `json:"lookupCache"`
	}{state.ProviderID, state.Config, state.Cache})
}

func resetCommand(ctx context.Context, env *commandEnv) error {
	fs := env.flags("reset")
	all := fs.Bool("all", false, "also forget the saved configuration")
	if err := fs.Parse(env.args); err != nil {
		return err
	}
	if *all {
		return env.app.Configurator.Forget(ctx)
	}
	return env.app.Configurator.Reset(ctx)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
