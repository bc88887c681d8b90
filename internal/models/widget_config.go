package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	MinRefreshInterval = 1
	MaxRefreshInterval = 1440
)

// WidgetConfig is the persisted live-view configuration: which stop to
// watch, which of its routes to show and how often to refresh, in minutes.
type WidgetConfig struct {
	ProviderID      string   `json:"providerId"`
	StopID          string   `json:"stopId"`
	StopName        string   `json:"stopName"`
	RouteIDs        []string `json:"routeIds"`
	RefreshInterval int      `json:"refreshInterval"`
	AlwaysOnTop     bool     `json:"alwaysOnTop"`
}

var (
	ErrMissingProvider = errors.New("provider is required")
	ErrMissingStop     = errors.New("stop is required")
	ErrNoRoutes        = errors.New("at least one route is required")
	ErrBadInterval     = fmt.Errorf("refresh interval must be between %d and %d minutes", MinRefreshInterval, MaxRefreshInterval)
)

// UnmarshalJSON requires every field except alwaysOnTop, which defaults to
// false when absent.
func (c *WidgetConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		ProviderID      *string   `json:"providerId"`
		StopID          *string   `json:"stopId"`
		StopName        *string   `json:"stopName"`
		RouteIDs        *[]string `json:"routeIds"`
		RefreshInterval *int      `json:"refreshInterval"`
		AlwaysOnTop     *bool     `json:"alwaysOnTop"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.ProviderID == nil:
		return missingField("providerId")
	case raw.StopID == nil:
		return missingField("stopId")
	case raw.StopName == nil:
		return missingField("stopName")
	case raw.RouteIDs == nil:
		return missingField("routeIds")
	case raw.RefreshInterval == nil:
		return missingField("refreshInterval")
	}

	*c = WidgetConfig{
		ProviderID:      *raw.ProviderID,
		StopID:          *raw.StopID,
		StopName:        *raw.StopName,
		RouteIDs:        *raw.RouteIDs,
		RefreshInterval: *raw.RefreshInterval,
	}
	if raw.AlwaysOnTop != nil {
		c.AlwaysOnTop = *raw.AlwaysOnTop
	}
	return nil
}

func missingField(name string) error {
	return fmt.Errorf("widget config: missing field %q", name)
}

// Validate reports the first reason the config cannot drive a refresh.
func (c WidgetConfig) Validate() error {
	if c.ProviderID == "" {
		return ErrMissingProvider
	}
	if c.StopID == "" {
		return ErrMissingStop
	}
	if len(c.RouteIDs) == 0 {
		return ErrNoRoutes
	}
	if c.RefreshInterval < MinRefreshInterval || c.RefreshInterval > MaxRefreshInterval {
		return ErrBadInterval
	}
	return nil
}

// Interval is RefreshInterval as a duration.
func (c WidgetConfig) Interval() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Minute
}

func (c WidgetConfig) HasRoute(id string) bool {
	return slices.Contains(c.RouteIDs, id)
}

// Clone returns a copy that shares no slices with c.
func (c WidgetConfig) Clone() WidgetConfig {
	c.RouteIDs = slices.Clone(c.RouteIDs)
	return c
}
