package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// toWebMercator is the forward projection, used to check the inverse.
func toWebMercator(lat, lon float64) (x, y float64) {
	x = WebMercatorRadius * lon * math.Pi / 180
	y = WebMercatorRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

func TestWebMercatorToLatLon(t *testing.T) {
	tests := []struct {
		name string
		lat  float64
		lon  float64
	}{
		{"origin", 0, 0},
		{"Marienplatz", 48.137154, 11.576124},
		{"Hauptbahnhof", 48.140232, 11.558335},
		{"southern hemisphere", -33.8688, 151.2093},
		{"west of greenwich", 40.7128, -74.0060},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := toWebMercator(tt.lat, tt.lon)
			lat, lon := WebMercatorToLatLon(x, y)
			assert.InDelta(t, tt.lat, lat, 1e-9)
			assert.InDelta(t, tt.lon, lon, 1e-9)
		})
	}
}

func TestWebMercatorToLatLon_Fixtures(t *testing.T) {
	lat, lon := WebMercatorToLatLon(0, 0)
	assert.Equal(t, 0.0, lat)
	assert.Equal(t, 0.0, lon)

	lat, lon = WebMercatorToLatLon(1113194.9, 0)
	assert.InDelta(t, 0, lat, 1e-3)
	assert.InDelta(t, 10, lon, 1e-3)
}

func TestWebMercatorToLatLon_Total(t *testing.T) {
	for _, v := range []float64{-1e12, -2e7, 0, 2e7, 1e12} {
		lat, lon := WebMercatorToLatLon(v, v)
		assert.False(t, math.IsNaN(lat) || math.IsNaN(lon))
		assert.LessOrEqual(t, math.Abs(lat), 90.0)
	}
}

func TestWebMercatorToLatLon_XOnlyAffectsLongitude(t *testing.T) {
	lat1, lon1 := WebMercatorToLatLon(1000, 5000)
	lat2, lon2 := WebMercatorToLatLon(2000, 5000)
	assert.Equal(t, lat1, lat2)
	assert.InDelta(t, 2*lon1, lon2, 1e-12)
}

func TestCalculateBounds(t *testing.T) {
	bounds := CalculateBounds(48.137154, 11.576124, 500)

	assert.InDelta(t, 0.00899, bounds.MaxLat-bounds.MinLat, 0.0001)
	assert.InDelta(t, 0.01346, bounds.MaxLon-bounds.MinLon, 0.0002)
	assert.Less(t, bounds.MinLat, 48.137154)
	assert.Greater(t, bounds.MaxLon, 11.576124)
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lon1      float64
		lat2      float64
		lon2      float64
		expected  float64
		tolerance float64
	}{
		{"same point", 48.1372, 11.5761, 48.1372, 11.5761, 0, 0.001},
		{"Marienplatz to Hauptbahnhof", 48.137154, 11.576124, 48.140232, 11.558335, 1364, 15},
		{"Munich to Berlin", 48.1351, 11.5820, 52.5200, 13.4050, 504000, 2000},
		{"quarter meridian", 0, 0, 45, 0, 5003778, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Distance(tt.lat1, tt.lon1, tt.lat2, tt.lon2), tt.tolerance)
		})
	}
}

func TestDistance_Symmetry(t *testing.T) {
	ab := Distance(48.1351, 11.5820, 52.5200, 13.4050)
	ba := Distance(52.5200, 13.4050, 48.1351, 11.5820)
	assert.InDelta(t, ab, ba, 0.0001)
}
