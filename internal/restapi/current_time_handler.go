package restapi

import (
	"net/http"

	"ikuyo.transit.dev/internal/models"
)

// currentTimeHandler reports the service clock, which may be pinned for
// replay.
func (api *RestAPI) currentTimeHandler(w http.ResponseWriter, r *http.Request) {
	now := api.Clock.Now()
	if api.Location != nil {
		now = now.In(api.Location)
	}
	api.sendResponse(w, r, models.NewOKResponse(models.NewCurrentTimeData(now), api.Clock))
}
