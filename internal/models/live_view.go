package models

import (
	"math"
	"time"

	"ikuyo.transit.dev/internal/transit"
)

const displayTimeLayout = "15:04"

// LiveView is the display form of the refresh controller's state. Times are
// Unix milliseconds; Time and LastRefreshText are wall-clock strings in the
// service time zone.
type LiveView struct {
	Configured      bool             `json:"configured"`
	Config          *WidgetConfig    `json:"config,omitempty"`
	ProviderName    string           `json:"providerName,omitempty"`
	Departures      []DepartureEntry `json:"departures"`
	Error           string           `json:"error,omitempty"`
	Loading         bool             `json:"loading"`
	LastRefresh     int64            `json:"lastRefresh,omitempty"`
	LastRefreshText string           `json:"lastRefreshText,omitempty"`
	Generation      uint64           `json:"generation"`
}

type DepartureEntry struct {
	RouteID        string            `json:"routeId"`
	RouteShortName string            `json:"routeShortName"`
	RouteLongName  string            `json:"routeLongName,omitempty"`
	RouteType      transit.RouteType `json:"routeType"`
	GTFSRouteType  int               `json:"gtfsRouteType"`
	GTFSRouteName  string            `json:"gtfsRouteName"`
	PlannedTime    int64             `json:"plannedTime"`
	ActualTime     int64             `json:"actualTime,omitempty"`
	Time           string            `json:"time"`
	DelayMinutes   int               `json:"delayMinutes"`
	MinutesUntil   int               `json:"minutesUntil"`
}

// NewDepartureEntry renders d relative to now.
func NewDepartureEntry(d transit.Departure, now time.Time, loc *time.Location) DepartureEntry {
	if loc == nil {
		loc = time.UTC
	}
	effective := d.EffectiveTime()
	gtfsType := d.Route.Type.GTFS()
	entry := DepartureEntry{
		RouteID:        d.Route.ID,
		RouteShortName: d.Route.ShortName,
		RouteLongName:  d.Route.LongName,
		RouteType:      d.Route.Type,
		GTFSRouteType:  int(gtfsType),
		GTFSRouteName:  gtfsType.String(),
		PlannedTime:    d.PlannedTime.UnixMilli(),
		Time:           effective.In(loc).Format(displayTimeLayout),
		DelayMinutes:   roundMinutes(d.Delay()),
		MinutesUntil:   int(effective.Sub(now) / time.Minute),
	}
	if d.HasActualTime() {
		entry.ActualTime = d.ActualTime.UnixMilli()
	}
	return entry
}

func roundMinutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}

// LiveViewInput carries the controller state a LiveView is built from.
type LiveViewInput struct {
	Config       *WidgetConfig
	ProviderName string
	Departures   []transit.Departure
	Err          string
	LastRefresh  time.Time
	Loading      bool
	Generation   uint64
}

// NewLiveView renders in for display. Departures are re-sorted against now,
// since the published order was computed at fetch time.
func NewLiveView(in LiveViewInput, now time.Time, loc *time.Location) LiveView {
	if loc == nil {
		loc = time.UTC
	}
	view := LiveView{
		Configured:   in.Config != nil,
		ProviderName: in.ProviderName,
		Departures:   make([]DepartureEntry, 0, len(in.Departures)),
		Error:        in.Err,
		Loading:      in.Loading,
		Generation:   in.Generation,
	}
	if in.Config != nil {
		cfg := in.Config.Clone()
		view.Config = &cfg
		if view.ProviderName == "" {
			view.ProviderName = cfg.ProviderID
		}
	}
	for _, d := range transit.SortedDepartures(in.Departures, now) {
		view.Departures = append(view.Departures, NewDepartureEntry(d, now, loc))
	}
	if !in.LastRefresh.IsZero() {
		view.LastRefresh = in.LastRefresh.UnixMilli()
		view.LastRefreshText = in.LastRefresh.In(loc).Format(displayTimeLayout)
	}
	return view
}
