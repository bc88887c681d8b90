package mvv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"ikuyo.transit.dev/internal/transit"
)

// optionalString decodes a JSON member whose presence and type are not
// guaranteed. Present is set whenever the key exists; Valid only when its
// value is a string.
type optionalString struct {
	Value   string
	Present bool
	Valid   bool
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Present = true
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// null, numbers, objects: present but unusable
		return nil
	}
	o.Value, o.Valid = s, true
	return nil
}

// linesEnvelope is the available_lines response. Its shape varies between
// stops, so every member is decoded loosely and checked explicitly.
type linesEnvelope struct {
	Error optionalString  `json:"error"`
	Lines json.RawMessage `json:"lines"`
}

type lineEntry struct {
	Name      optionalString `json:"name"`
	Number    optionalString `json:"number"`
	Direction optionalString `json:"direction"`
	Stateless optionalString `json:"stateless"`
}

// lineNameRouteTypes maps MVV product names to route types. Unknown and
// missing names are buses.
var lineNameRouteTypes = map[string]transit.RouteType{
	"Bus":         transit.RouteBus,
	"MetroBus":    transit.RouteBus,
	"NachtBus":    transit.RouteBus,
	"RegionalBus": transit.RouteBus,
	"S-Bahn":      transit.RouteSubway,
	"U-Bahn":      transit.RouteMetro,
	"Tram":        transit.RouteTram,
}

func routeTypeForLineName(name string) transit.RouteType {
	if t, ok := lineNameRouteTypes[name]; ok {
		return t
	}
	return transit.RouteBus
}

// FindRoutes lists the lines serving stopID.
func (p *Provider) FindRoutes(ctx context.Context, stopID string) ([]transit.Route, error) {
	requestURL := p.baseURL + "/?eID=departuresFinder&action=available_lines&stop_id=" + percentEncode(stopID, ":")

	body, err := p.get(ctx, opFindRoutes, requestURL)
	if err != nil {
		return nil, err
	}

	routes, err := parseLines(body)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("routes loaded", slog.String("stop_id", stopID), slog.Int("routes", len(routes)))
	return routes, nil
}

func parseLines(body []byte) ([]transit.Route, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &transit.NetworkError{Op: opFindRoutes, Reason: "lines response is not a JSON object"}
	}

	var env linesEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, &transit.NetworkError{Op: opFindRoutes, Reason: "malformed lines response", Err: err}
	}
	if env.Error.Valid && env.Error.Value != "" {
		return nil, &transit.NetworkError{Op: opFindRoutes, Reason: env.Error.Value}
	}

	entries, ok := decodeLineEntries(env.Lines)
	if !ok {
		return []transit.Route{}, nil
	}

	routes := make([]transit.Route, 0, len(entries))
	for i, entry := range entries {
		route, err := entry.toRoute()
		if err != nil {
			return nil, &transit.NetworkError{Op: opFindRoutes, Reason: fmt.Sprintf("line %d: %v", i, err)}
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// decodeLineEntries accepts only an array whose every element is an object.
// Anything else is treated as "no lines".
func decodeLineEntries(raw json.RawMessage) ([]lineEntry, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, false
	}
	entries := make([]lineEntry, 0, len(elems))
	for _, elem := range elems {
		elem = bytes.TrimSpace(elem)
		if len(elem) == 0 || elem[0] != '{' {
			return nil, false
		}
		var entry lineEntry
		if err := json.Unmarshal(elem, &entry); err != nil {
			return nil, false
		}
		entries = append(entries, entry)
	}
	return entries, true
}

// toRoute requires a string stateless id and number; there is no sensible
// substitute for either.
func (e lineEntry) toRoute() (transit.Route, error) {
	if !e.Stateless.Valid {
		return transit.Route{}, errors.New("missing or non-string stateless id")
	}
	if !e.Number.Valid {
		return transit.Route{}, errors.New("missing or non-string number")
	}
	var longName string
	if e.Direction.Valid {
		longName = e.Direction.Value
	}
	return transit.Route{
		ID:        e.Stateless.Value,
		ShortName: e.Number.Value,
		LongName:  longName,
		Type:      routeTypeForLineName(e.Name.Value),
		SortOrder: transit.NoSortOrder,
	}, nil
}
