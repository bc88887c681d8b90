package utils

import (
	"sort"

	"github.com/tidwall/rtree"
)

// Located is a value with a known position.
type Located[T any] struct {
	Value    T
	Lat      float64
	Lon      float64
	Distance float64
}

// SpatialIndex answers radius queries over a fixed set of points.
type SpatialIndex[T any] struct {
	tree rtree.RTreeG[Located[T]]
	size int
}

// NewSpatialIndex indexes items by the coordinates returned from pos. Items
// for which pos reports false are skipped.
func NewSpatialIndex[T any](items []T, pos func(T) (lat, lon float64, ok bool)) *SpatialIndex[T] {
	idx := &SpatialIndex[T]{}
	for _, item := range items {
		lat, lon, ok := pos(item)
		if !ok {
			continue
		}
		point := [2]float64{lon, lat}
		idx.tree.Insert(point, point, Located[T]{Value: item, Lat: lat, Lon: lon})
		idx.size++
	}
	return idx
}

// Len returns the number of indexed points.
func (s *SpatialIndex[T]) Len() int { return s.size }

// Within returns every indexed item at most radius meters from lat/lon,
// nearest first.
func (s *SpatialIndex[T]) Within(lat, lon, radius float64) []Located[T] {
	bounds := CalculateBounds(lat, lon, radius)
	var out []Located[T]
	s.tree.Search(
		[2]float64{bounds.MinLon, bounds.MinLat},
		[2]float64{bounds.MaxLon, bounds.MaxLat},
		func(_, _ [2]float64, item Located[T]) bool {
			d := Distance(lat, lon, item.Lat, item.Lon)
			if d <= radius {
				item.Distance = d
				out = append(out, item)
			}
			return true
		},
	)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}
