package restapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"

	"ikuyo.transit.dev/internal/models"
	"ikuyo.transit.dev/internal/setup"
)

const serviceID = "ikuyo"

// buildVersion is the main module version, or "devel" for local builds.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "devel"
	}
	return info.Main.Version
}

// configHandler describes the service and the saved widget configuration.
func (api *RestAPI) configHandler(w http.ResponseWriter, r *http.Request) {
	entry := models.ConfigModel{
		ID:          serviceID,
		Name:        "Ikuyo",
		Version:     buildVersion(),
		Environment: api.Config.Env.String(),
	}

	if api.Configs != nil {
		cfg, err := api.Configs.Load(r.Context())
		if err != nil {
			api.serverErrorResponse(w, r, err)
			return
		}
		entry.Widget = cfg
	}

	api.sendResponse(w, r, models.NewEntryResponse(entry, api.Clock))
}

// configRequest is the body of PUT /api/config.json. Unlike a stored
// configuration, the stop name and flags may be omitted.
type configRequest struct {
	ProviderID      string   `json:"providerId"`
	StopID          string   `json:"stopId"`
	StopName        string   `json:"stopName"`
	RouteIDs        []string `json:"routeIds"`
	RefreshInterval int      `json:"refreshInterval"`
	AlwaysOnTop     bool     `json:"alwaysOnTop"`
}

const maxConfigBody = 64 << 10

// saveConfigHandler saves a widget configuration through the setup
// workflow. Saving restarts the refresh loop when the application follows
// its configuration.
func (api *RestAPI) saveConfigHandler(w http.ResponseWriter, r *http.Request) {
	if api.Configurator == nil {
		api.sendError(w, r, http.StatusServiceUnavailable, "configuration is not available")
		return
	}

	var req configRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfigBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		api.sendError(w, r, http.StatusBadRequest, "invalid configuration body: "+err.Error())
		return
	}

	cfg, err := api.Configurator.Save(r.Context(), setup.Draft{
		ProviderID:      req.ProviderID,
		StopID:          req.StopID,
		StopName:        req.StopName,
		RouteIDs:        req.RouteIDs,
		RefreshInterval: req.RefreshInterval,
		AlwaysOnTop:     req.AlwaysOnTop,
	})
	switch {
	case errors.Is(err, setup.ErrUnknownProvider), isValidationError(err):
		api.sendError(w, r, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		api.serverErrorResponse(w, r, err)
		return
	}

	api.sendResponse(w, r, models.NewEntryResponse(cfg, api.Clock))
}

// deleteConfigHandler forgets the saved configuration and lookup cache.
func (api *RestAPI) deleteConfigHandler(w http.ResponseWriter, r *http.Request) {
	if api.Configurator == nil {
		api.sendError(w, r, http.StatusServiceUnavailable, "configuration is not available")
		return
	}
	if err := api.Configurator.Forget(r.Context()); err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	api.sendResponse(w, r, models.NewOKResponse(nil, api.Clock))
}

func isValidationError(err error) bool {
	for _, target := range []error{models.ErrMissingProvider, models.ErrMissingStop, models.ErrNoRoutes, models.ErrBadInterval} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
