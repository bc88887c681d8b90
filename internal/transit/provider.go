package transit

import (
	"context"
	"time"
)

// Provider is implemented by every agency integration.
type Provider interface {
	ID() string
	ShortName() string
	LongName() string

	// FindStops searches stops by free text.
	FindStops(ctx context.Context, query string) ([]Stop, error)
	// FindRoutes lists the routes serving stopID.
	FindRoutes(ctx context.Context, stopID string) ([]Route, error)
	// FindDepartures lists departures from stopID at or after at, restricted
	// to routes. count is a hint to the agency; results are not truncated.
	// The result is in agency order.
	FindDepartures(ctx context.Context, stopID string, routes RouteSet, at time.Time, count int) ([]Departure, error)
}
