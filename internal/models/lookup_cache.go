package models

import "ikuyo.transit.dev/internal/transit"

// LookupCache remembers the last stop search and route lookup so the
// configuration workflow can resume without asking the agency again.
type LookupCache struct {
	ProviderID      string          `json:"providerId"`
	StopQuery       string          `json:"stopQuery"`
	StopResults     []transit.Stop  `json:"stopResults"`
	SelectedStop    *transit.Stop   `json:"selectedStop"`
	AvailableRoutes []transit.Route `json:"availableRoutes"`
}

// ValidFor reports whether the cache belongs to providerID. Only the
// provider identity is compared; the query and stop are left to the caller.
func (c *LookupCache) ValidFor(providerID string) bool {
	return c != nil && c.ProviderID == providerID
}

// RoutesFor returns the cached routes when they were loaded for stopID and
// there is at least one of them.
func (c *LookupCache) RoutesFor(providerID, stopID string) ([]transit.Route, bool) {
	if !c.ValidFor(providerID) || c.SelectedStop == nil || c.SelectedStop.ID != stopID {
		return nil, false
	}
	if len(c.AvailableRoutes) == 0 {
		return nil, false
	}
	return c.AvailableRoutes, true
}
