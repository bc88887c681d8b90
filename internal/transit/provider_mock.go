package transit

import (
	"context"
	"sync"
	"time"
)

// DepartureRequest records one FindDepartures call made on a MockProvider.
type DepartureRequest struct {
	StopID   string
	RouteIDs []string
	At       time.Time
	Count    int
}

// MockProvider is an in-memory Provider for tests of code that consumes
// providers. It is safe for concurrent use.
type MockProvider struct {
	id        string
	shortName string
	longName  string

	mu             sync.Mutex
	stops          []Stop
	stopsErr       error
	routes         map[string][]Route
	routesErr      error
	departures     []Departure
	departuresErr  error
	departuresHook func(ctx context.Context, req DepartureRequest) ([]Departure, error)

	stopQueries       []string
	routeRequests     []string
	departureRequests []DepartureRequest
}

func NewMockProvider(id, shortName, longName string) *MockProvider {
	return &MockProvider{
		id:        id,
		shortName: shortName,
		longName:  longName,
		routes:    make(map[string][]Route),
	}
}

func (m *MockProvider) ID() string        { return m.id }
func (m *MockProvider) ShortName() string { return m.shortName }
func (m *MockProvider) LongName() string  { return m.longName }

func (m *MockProvider) SetStops(stops []Stop, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops, m.stopsErr = stops, err
}

func (m *MockProvider) SetRoutes(stopID string, routes []Route) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[stopID] = routes
}

func (m *MockProvider) SetRoutesError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routesErr = err
}

func (m *MockProvider) SetDepartures(departures []Departure, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.departures, m.departuresErr = departures, err
}

// SetDeparturesHook replaces the canned departures with fn.
func (m *MockProvider) SetDeparturesHook(fn func(ctx context.Context, req DepartureRequest) ([]Departure, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.departuresHook = fn
}

func (m *MockProvider) FindStops(ctx context.Context, query string) ([]Stop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopQueries = append(m.stopQueries, query)
	if m.stopsErr != nil {
		return nil, m.stopsErr
	}
	return append([]Stop(nil), m.stops...), nil
}

func (m *MockProvider) FindRoutes(ctx context.Context, stopID string) ([]Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routeRequests = append(m.routeRequests, stopID)
	if m.routesErr != nil {
		return nil, m.routesErr
	}
	return append([]Route(nil), m.routes[stopID]...), nil
}

func (m *MockProvider) FindDepartures(ctx context.Context, stopID string, routes RouteSet, at time.Time, count int) ([]Departure, error) {
	req := DepartureRequest{StopID: stopID, RouteIDs: routes.IDs(), At: at, Count: count}

	m.mu.Lock()
	m.departureRequests = append(m.departureRequests, req)
	hook, departures, err := m.departuresHook, m.departures, m.departuresErr
	m.mu.Unlock()

	if hook != nil {
		return hook(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return append([]Departure(nil), departures...), nil
}

func (m *MockProvider) StopQueries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.stopQueries...)
}

func (m *MockProvider) RouteRequests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.routeRequests...)
}

func (m *MockProvider) DepartureRequests() []DepartureRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DepartureRequest(nil), m.departureRequests...)
}
