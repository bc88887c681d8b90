package restapi

import (
	"net/http"

	"ikuyo.transit.dev/internal/models"
)

func (api *RestAPI) providersHandler(w http.ResponseWriter, r *http.Request) {
	providers := api.Registry.Providers()
	list := make([]models.ProviderModel, 0, len(providers))
	for _, p := range providers {
		list = append(list, models.ProviderModel{
			ID:        p.ID(),
			ShortName: p.ShortName(),
			LongName:  p.LongName(),
		})
	}
	api.sendResponse(w, r, models.NewListResponse(list, api.Clock))
}
