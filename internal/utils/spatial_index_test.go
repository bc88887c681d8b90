package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type place struct {
	name     string
	lat, lon float64
	known    bool
}

func placePos(p place) (float64, float64, bool) { return p.lat, p.lon, p.known }

func TestSpatialIndex_Within(t *testing.T) {
	places := []place{
		{"Marienplatz", 48.137154, 11.576124, true},
		{"Odeonsplatz", 48.142732, 11.577640, true},
		{"Hauptbahnhof", 48.140232, 11.558335, true},
		{"Garching", 48.249700, 11.651200, true},
		{"Unknown", -1, -1, false},
	}
	idx := NewSpatialIndex(places, placePos)
	assert.Equal(t, 4, idx.Len())

	found := idx.Within(48.137154, 11.576124, 1000)
	require.Len(t, found, 2)
	assert.Equal(t, "Marienplatz", found[0].Value.name)
	assert.InDelta(t, 0, found[0].Distance, 0.001)
	assert.Equal(t, "Odeonsplatz", found[1].Value.name)

	found = idx.Within(48.137154, 11.576124, 2000)
	require.Len(t, found, 3)
	assert.Equal(t, "Hauptbahnhof", found[2].Value.name)
}

func TestSpatialIndex_Empty(t *testing.T) {
	idx := NewSpatialIndex[place](nil, placePos)
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Within(0, 0, 1e6))
}
