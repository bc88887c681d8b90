package mvv

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"ikuyo.transit.dev/internal/transit"
	"ikuyo.transit.dev/internal/utils"
)

type stopFinderResponse struct {
	Success *bool             `json:"success"`
	Message string            `json:"message"`
	Results []stopFinderEntry `json:"results"`
}

type stopFinderEntry struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      *string        `json:"type"`
	Stateless *string        `json:"stateless"`
	Ref       *stopFinderRef `json:"ref"`
}

type stopFinderRef struct {
	ID     *string `json:"id"`
	Place  *string `json:"place"`
	Coords *string `json:"coords"`
}

// FindStops searches the stop finder endpoint.
func (p *Provider) FindStops(ctx context.Context, query string) ([]transit.Stop, error) {
	requestURL := p.baseURL + "/?eID=stopFinder&query=" + percentEncode(query, "")

	body, err := p.get(ctx, opFindStops, requestURL)
	if err != nil {
		return nil, err
	}

	var resp stopFinderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &transit.NetworkError{Op: opFindStops, Reason: "malformed stop finder response", Err: err}
	}
	if resp.Success == nil {
		return nil, &transit.NetworkError{Op: opFindStops, Reason: "stop finder response without success flag"}
	}
	if !*resp.Success {
		return nil, &transit.ResponseError{Message: resp.Message}
	}

	stops := make([]transit.Stop, 0, len(resp.Results))
	for _, entry := range resp.Results {
		stops = append(stops, entry.toStop())
	}
	p.logger.Debug("stop search finished", slog.String("query", query), slog.Int("results", len(stops)))
	return stops, nil
}

func (e stopFinderEntry) toStop() transit.Stop {
	lat, lon := transit.NoCoordinate, transit.NoCoordinate
	if e.Ref != nil && e.Ref.Coords != nil {
		if x, y, ok := parseCoords(*e.Ref.Coords); ok {
			lat, lon = utils.WebMercatorToLatLon(x, y)
		}
	}

	locationType := transit.LocationGeneric
	if e.Type != nil && *e.Type == "stop" {
		locationType = transit.LocationStop
	}

	return transit.Stop{
		ID:           e.ID,
		Name:         e.Name,
		Lat:          lat,
		Lon:          lon,
		LocationType: locationType,
	}
}

// parseCoords reads "x,y". Only the first and last comma separated parts
// are considered, and both must be numbers.
func parseCoords(s string) (x, y float64, ok bool) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return 0, 0, false
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(parts[len(parts)-1]), 64)
	if errX != nil || errY != nil || !finite(x) || !finite(y) {
		return 0, 0, false
	}
	return x, y, true
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
