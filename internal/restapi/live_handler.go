package restapi

import (
	"context"
	"log/slog"
	"net/http"

	"ikuyo.transit.dev/internal/logging"
	"ikuyo.transit.dev/internal/models"
	"ikuyo.transit.dev/internal/refresh"
)

func (api *RestAPI) liveView(v refresh.View) models.LiveView {
	in := models.LiveViewInput{
		Config:      v.Config,
		Departures:  v.Departures,
		Err:         v.Err,
		LastRefresh: v.LastRefresh,
		Loading:     v.Loading,
		Generation:  v.Generation,
	}
	if v.Config != nil {
		in.ProviderName = api.ProviderName(v.Config.ProviderID)
	}
	return models.NewLiveView(in, api.Clock.Now(), api.Location)
}

// liveHandler returns the current departures, ordered against the time of
// the request rather than the time they were fetched.
func (api *RestAPI) liveHandler(w http.ResponseWriter, r *http.Request) {
	if api.Controller == nil {
		api.sendError(w, r, http.StatusServiceUnavailable, "refresh controller not running")
		return
	}
	view := api.liveView(api.Controller.Snapshot())
	api.sendResponse(w, r, models.NewEntryResponse(view, api.Clock))
}

// refreshHandler restarts the refresh loop from the saved configuration
// and answers with the view its first cycle publishes.
func (api *RestAPI) refreshHandler(w http.ResponseWriter, r *http.Request) {
	if api.Controller == nil || api.Configs == nil {
		api.sendError(w, r, http.StatusServiceUnavailable, "refresh controller not running")
		return
	}

	done := api.Controller.Start(api.Configs)
	select {
	case v, ok := <-done:
		if !ok {
			api.sendError(w, r, http.StatusConflict, "refresh superseded by a newer request")
			return
		}
		api.sendResponse(w, r, models.NewEntryResponse(api.liveView(v), api.Clock))
	case <-r.Context().Done():
		if r.Context().Err() == context.DeadlineExceeded {
			api.sendError(w, r, http.StatusGatewayTimeout, "refresh did not finish in time")
			return
		}
		// the loop keeps running; only this response is abandoned
		logging.FromContext(r.Context()).Debug("manual refresh abandoned by client",
			slog.String("error", r.Context().Err().Error()))
	}
}
