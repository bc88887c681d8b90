package mvv

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"ikuyo.transit.dev/internal/transit"
)

type departuresEnvelope struct {
	Error         *string           `json:"error"`
	Departures    []rawDeparture    `json:"departures"`
	Notifications []rawNotification `json:"notifications"`
}

type rawDeparture struct {
	Line             *lineEntry        `json:"line"`
	Direction        string            `json:"direction"`
	Station          rawStation        `json:"station"`
	Track            string            `json:"track"`
	DepartureDate    *string           `json:"departureDate"`
	DeparturePlanned *string           `json:"departurePlanned"`
	DepartureLive    *string           `json:"departureLive"`
	InTime           *bool             `json:"inTime"`
	Notifications    []rawNotification `json:"notifications"`
}

type rawStation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type rawNotification struct {
	Text *string `json:"text"`
	Link *string `json:"link"`
	Type *string `json:"type"`
}

// FindDepartures lists departures at stopID for the given routes. An empty
// route set returns no departures without contacting the agency.
func (p *Provider) FindDepartures(ctx context.Context, stopID string, routes transit.RouteSet, at time.Time, count int) ([]transit.Departure, error) {
	if len(routes) == 0 {
		p.logger.Debug("departure lookup skipped, no routes selected", slog.String("stop_id", stopID))
		return []transit.Departure{}, nil
	}

	requestURL := p.baseURL +
		"/?eID=departuresFinder&action=get_departures" +
		"&stop_id=" + encodeStopID(stopID) +
		"&requested_timestamp=" + strconv.FormatInt(at.Unix(), 10) +
		"&lines=" + encodeLines(routes.IDs())

	body, err := p.get(ctx, opFindDepartures, requestURL)
	if err != nil {
		return nil, err
	}

	var env departuresEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &transit.NetworkError{Op: opFindDepartures, Reason: "malformed departures response", Err: err}
	}
	if env.Error != nil && *env.Error != "" {
		p.logger.Warn("agency reported departures error", slog.String("stop_id", stopID), slog.String("error", *env.Error))
		return nil, &transit.NetworkError{Op: opFindDepartures, Reason: *env.Error}
	}
	for _, n := range env.Notifications {
		if n.Text != nil {
			p.logger.Debug("agency notification", slog.String("stop_id", stopID), slog.String("text", *n.Text))
		}
	}

	now := p.now()
	departures, dropped, err := mapDepartures(env.Departures, func(raw rawDeparture) (transit.Departure, error) {
		return raw.toDeparture(now)
	}, p.logger)
	p.metrics.AddDroppedDepartures(ProviderID, dropped)
	if err != nil {
		return nil, &transit.NetworkError{Op: opFindDepartures, Reason: "malformed departure", Err: err}
	}

	if len(departures) == 0 {
		p.logger.Debug("agency returned no departures", slog.String("stop_id", stopID), slog.Int("count", count))
	}
	return departures, nil
}

// mapDepartures converts raw records in order. A record whose mapping fails
// with an InvalidTimeFormatError is skipped and counted; any other mapping
// error fails the batch. With the fallbacks in toDeparture no record
// currently takes the skip path.
func mapDepartures(raws []rawDeparture, mapFn func(rawDeparture) (transit.Departure, error), logger *slog.Logger) ([]transit.Departure, int, error) {
	out := make([]transit.Departure, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		d, err := mapFn(raw)
		if err != nil {
			var tf *transit.InvalidTimeFormatError
			if !errors.As(err, &tf) {
				return nil, dropped, err
			}
			dropped++
			logger.Warn("skipping departure with invalid time",
				slog.String("line", raw.lineID()),
				slog.String("value", tf.Value))
			continue
		}
		out = append(out, d)
	}
	return out, dropped, nil
}

func (r rawDeparture) lineID() string {
	if r.Line == nil {
		return ""
	}
	return r.Line.Stateless.Value
}

// toDeparture maps one record. The line must carry a string stateless id
// and number. The planned time falls back to now when it cannot be parsed;
// the live time falls back to the planned time.
func (r rawDeparture) toDeparture(now time.Time) (transit.Departure, error) {
	if r.Line == nil {
		return transit.Departure{}, errors.New("departure without line")
	}
	route, err := r.Line.toRoute()
	if err != nil {
		return transit.Departure{}, err
	}

	planned, ok := parseOptionalTime(r.DepartureDate, r.DeparturePlanned, now)
	if !ok {
		planned = now
	}
	actual, ok := parseOptionalTime(r.DepartureDate, r.DepartureLive, now)
	if !ok {
		actual = planned
	}

	return transit.Departure{Route: route, PlannedTime: planned, ActualTime: actual}, nil
}

func parseOptionalTime(date, value *string, now time.Time) (time.Time, bool) {
	if value == nil {
		return time.Time{}, false
	}
	t, err := transit.ParseAgencyTime(date, *value, now)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
