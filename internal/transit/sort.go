package transit

import (
	"sort"
	"time"
)

func distanceFrom(t, now time.Time) time.Duration {
	d := t.Sub(now)
	if d < 0 {
		return -d
	}
	return d
}

// SortDepartures orders departures by how close their effective time is to
// now, nearest first. Exactly equidistant departures put the earlier one
// first. now is read once by the caller so the comparison is consistent for
// the whole pass.
func SortDepartures(departures []Departure, now time.Time) {
	sort.SliceStable(departures, func(i, j int) bool {
		ti, tj := departures[i].EffectiveTime(), departures[j].EffectiveTime()
		di, dj := distanceFrom(ti, now), distanceFrom(tj, now)
		if di != dj {
			return di < dj
		}
		return ti.Before(tj)
	})
}

// SortedDepartures is SortDepartures on a copy.
func SortedDepartures(departures []Departure, now time.Time) []Departure {
	out := make([]Departure, len(departures))
	copy(out, departures)
	SortDepartures(out, now)
	return out
}
