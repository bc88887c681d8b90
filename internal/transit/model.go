// Package transit defines the provider-agnostic transit model (stops,
// routes and departures), the Provider contract agencies implement and the
// registry callers use to find them.
package transit

import (
	"sort"
	"time"

	"github.com/OneBusAway/go-gtfs"
)

// NoCoordinate is the sentinel stored in Stop.Lat and Stop.Lon when the
// agency did not supply a usable position.
const NoCoordinate = -1.0

// NoSortOrder marks a Route without an explicit sort order.
const NoSortOrder = -1

type LocationType string

const (
	LocationStop         LocationType = "stop"
	LocationStation      LocationType = "station"
	LocationEntranceExit LocationType = "entranceExit"
	LocationGeneric      LocationType = "generic"
	LocationBoardingArea LocationType = "boardingArea"
)

// GTFS returns the location_type used in GTFS stops.txt.
func (l LocationType) GTFS() gtfs.StopType {
	switch l {
	case LocationStation:
		return gtfs.StopType_Station
	case LocationEntranceExit:
		return gtfs.StopType_EntranceOrExit
	case LocationGeneric:
		return gtfs.StopType_GenericNode
	case LocationBoardingArea:
		return gtfs.StopType_BoardingArea
	default:
		return gtfs.StopType_Stop
	}
}

type RouteType string

const (
	RouteTram       RouteType = "tram"
	RouteSubway     RouteType = "subway"
	RouteRail       RouteType = "rail"
	RouteBus        RouteType = "bus"
	RouteFerry      RouteType = "ferry"
	RouteCableTram  RouteType = "cableTram"
	RouteAerialLift RouteType = "aerialLift"
	RouteFunicular  RouteType = "funicular"
	RouteTrolleyBus RouteType = "trolleyBus"
	RouteMonorail   RouteType = "monorail"
	RouteMetro      RouteType = "metro"
)

// GTFS returns the route_type used in GTFS routes.txt. Metro has no basic
// type and maps to the extended "Metro Service" type; unknown types are
// buses.
func (r RouteType) GTFS() gtfs.RouteType {
	switch r {
	case RouteTram:
		return gtfs.RouteType_Tram
	case RouteSubway:
		return gtfs.RouteType_Subway
	case RouteRail:
		return gtfs.RouteType_Rail
	case RouteFerry:
		return gtfs.RouteType_Ferry
	case RouteCableTram:
		return gtfs.RouteType_CableTram
	case RouteAerialLift:
		return gtfs.RouteType_AerialLift
	case RouteFunicular:
		return gtfs.RouteType_Funicular
	case RouteTrolleyBus:
		return gtfs.RouteType_TrolleyBus
	case RouteMonorail:
		return gtfs.RouteType_Monorail
	case RouteMetro:
		return gtfs.RouteType_MetroService
	default:
		return gtfs.RouteType_Bus
	}
}

// Stop is a place where vehicles call. Optional strings are empty when the
// agency does not provide them. Stops are compared by value.
type Stop struct {
	ID           string       `json:"id"`
	Code         string       `json:"code,omitempty"`
	Name         string       `json:"name"`
	Desc         string       `json:"desc,omitempty"`
	Lat          float64      `json:"lat"`
	Lon          float64      `json:"lon"`
	URL          string       `json:"url,omitempty"`
	LocationType LocationType `json:"locationType"`
}

// HasCoordinates reports whether the stop carries a real position.
func (s Stop) HasCoordinates() bool {
	return s.Lat != NoCoordinate || s.Lon != NoCoordinate
}

// Route is a line serving a stop. Routes are comparable and used as set
// members to deduplicate selections.
type Route struct {
	ID        string    `json:"id"`
	ShortName string    `json:"shortName"`
	LongName  string    `json:"longName,omitempty"`
	Desc      string    `json:"desc,omitempty"`
	Type      RouteType `json:"type"`
	URL       string    `json:"url,omitempty"`
	Color     string    `json:"color,omitempty"`
	TextColor string    `json:"textColor,omitempty"`
	SortOrder int       `json:"sortOrder"`
}

// Departure is one scheduled call of a route at a stop.
type Departure struct {
	Route       Route
	PlannedTime time.Time
	// ActualTime is the live estimate; the zero value means none is known.
	ActualTime time.Time
}

// HasActualTime reports whether a live estimate is known.
func (d Departure) HasActualTime() bool { return !d.ActualTime.IsZero() }

// EffectiveTime is the live estimate if known, else the planned time.
func (d Departure) EffectiveTime() time.Time {
	if d.HasActualTime() {
		return d.ActualTime
	}
	return d.PlannedTime
}

// Delay is the difference between the effective and the planned time.
func (d Departure) Delay() time.Duration {
	return d.EffectiveTime().Sub(d.PlannedTime)
}

// RouteSet is a set of routes with value identity.
type RouteSet map[Route]struct{}

func NewRouteSet(routes ...Route) RouteSet {
	s := make(RouteSet, len(routes))
	for _, r := range routes {
		s[r] = struct{}{}
	}
	return s
}

func (s RouteSet) Add(r Route) { s[r] = struct{}{} }

func (s RouteSet) Contains(r Route) bool {
	_, ok := s[r]
	return ok
}

// Routes returns the members ordered by id, then short name.
func (s RouteSet) Routes() []Route {
	out := make([]Route, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].ShortName < out[j].ShortName
	})
	return out
}

// IDs returns the distinct route ids, sorted.
func (s RouteSet) IDs() []string {
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for r := range s {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r.ID)
	}
	sort.Strings(out)
	return out
}

// SelectRoutes keeps the routes whose id is in ids. Ids with no matching
// route are ignored.
func SelectRoutes(routes []Route, ids []string) RouteSet {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	set := make(RouteSet)
	for _, r := range routes {
		if _, ok := wanted[r.ID]; ok {
			set.Add(r)
		}
	}
	return set
}
