package restapi

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/davecgh/go-spew/spew"
	"ikuyo.transit.dev/internal/appconf"
)

//go:embed debug_state.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_state.html"))

type debugData struct {
	Title string
	Pre   string
}

func writeDebugData(w http.ResponseWriter, title string, data interface{}) {
	w.Header().Set("Content-Type", "text/html")
	err := debugTemplate.Execute(w, debugData{
		Title: title,
		Pre:   spew.Sdump(data),
	})
	if err != nil {
		slog.Error("failed to execute debug template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// debugStateHandler dumps internal state for troubleshooting. It does not
// exist in production.
func (api *RestAPI) debugStateHandler(w http.ResponseWriter, r *http.Request) {
	if api.Config.Env == appconf.Production {
		api.sendNotFound(w, r)
		return
	}

	ctx := r.Context()
	var (
		data  interface{}
		title string
		err   error
	)

	switch r.URL.Query().Get("dataType") {
	case "", "view":
		title = "Refresh controller - published view"
		if api.Controller != nil {
			data = api.Controller.Snapshot()
		}
	case "config":
		title = "Saved widget configuration"
		if api.Configs != nil {
			data, err = api.Configs.Load(ctx)
		}
	case "cache":
		title = "Lookup cache"
		if api.LookupCache != nil {
			data, err = api.LookupCache.Load(ctx)
		}
	case "store":
		title = "Stored documents"
		if api.Store != nil {
			data, err = api.Store.Entries(ctx)
		}
	case "providers":
		title = "Registered providers"
		data = api.Registry.Providers()
	case "settings":
		title = "Service settings"
		data = api.Config
	default:
		title = "Choose a data type"
		data = map[string]string{
			"error": "Please use one of the following: view, config, cache, store, providers, settings.",
		}
	}

	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	writeDebugData(w, title, data)
}
