package restapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ikuyo.transit.dev/internal/models"
	"ikuyo.transit.dev/internal/transit"
)

func TestProvidersHandler(t *testing.T) {
	api := createTestApi(t)

	resp, model := serveApiAndRetrieveEndpoint(t, api, "/api/providers.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", model.Text)
	assert.Equal(t, models.ResponseVersion, model.Version)
	assert.Equal(t, testNow.UnixMilli(), model.CurrentTime)

	data, ok := model.Data.(map[string]interface{})
	require.True(t, ok)
	list, ok := data["list"].([]interface{})
	require.True(t, ok)
	require.Len(t, list, 1)

	provider := list[0].(map[string]interface{})
	assert.Equal(t, "mvv", provider["id"])
	assert.Equal(t, "MVV", provider["shortName"])
	assert.Equal(t, "Münchner Verkehrsverbund", provider["longName"])
}

func TestConfigHandler(t *testing.T) {
	api := createTestApi(t)

	t.Run("without a saved configuration", func(t *testing.T) {
		resp, model := serveApiAndRetrieveEndpoint(t, api, "/api/config.json")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		entry := entryOf(t, model)
		assert.Equal(t, "ikuyo", entry["id"])
		assert.Equal(t, "Ikuyo", entry["name"])
		assert.Equal(t, "test", entry["environment"])
		assert.NotEmpty(t, entry["version"])
		assert.Nil(t, entry["widget"])
	})

	t.Run("with a saved configuration", func(t *testing.T) {
		require.NoError(t, api.Configs.Save(context.Background(), testWidgetConfig("S1", "U3")))

		_, model := serveApiAndRetrieveEndpoint(t, api, "/api/config.json")
		widget, ok := entryOf(t, model)["widget"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "mvv", widget["providerId"])
		assert.Equal(t, testStopID, widget["stopId"])
		assert.Equal(t, []interface{}{"S1", "U3"}, widget["routeIds"])
		assert.Equal(t, float64(1), widget["refreshInterval"])
	})
}

func TestCurrentTimeHandler(t *testing.T) {
	api := createTestApi(t)

	resp, model := serveApiAndRetrieveEndpoint(t, api, "/api/current-time.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	entry := entryOf(t, model)
	assert.Equal(t, float64(testNow.UnixMilli()), entry["time"])
	assert.Equal(t, "2026-03-14T08:30:00Z", entry["readableTime"])
}

func TestUnknownPathReturnsNotFound(t *testing.T) {
	api := createTestApi(t)

	resp, model := serveApiAndRetrieveEndpoint(t, api, "/api/where/stop/1_75403.json")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, http.StatusNotFound, model.Code)
	assert.Equal(t, "resource not found", model.Text)
	assert.Nil(t, model.Data)
}

func TestSaveConfigHandlerRestartsRefresh(t *testing.T) {
	api := createTestApi(t)
	api.provider.SetDepartures([]transit.Departure{
		{Route: testRouteS1, PlannedTime: testNow.Add(3 * time.Minute)},
	}, nil)

	views, cancel := api.Controller.Subscribe()
	defer cancel()
	api.FollowConfig()

	body := `{"providerId":"mvv","stopId":"de:09162:2","routeIds":["S1"," S1 "],"refreshInterval":2}`
	resp, model := requestEndpointWithBody(t, api, http.MethodPut, "/api/config.json", body)
	require.Equal(t, http.StatusOK, resp.StatusCode, model.Text)
	assert.Equal(t, noStore, resp.Header.Get("Cache-Control"))

	entry := entryOf(t, model)
	assert.Equal(t, []interface{}{"S1"}, entry["routeIds"])
	assert.Equal(t, "de:09162:2", entry["stopName"], "name falls back to the stop id without a cached stop")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-views:
			if len(v.Departures) == 1 && v.Config != nil && v.Config.RefreshInterval == 2 {
				return
			}
		case <-deadline:
			t.Fatal("refresh loop did not pick up the saved configuration")
		}
	}
}

func TestSaveConfigHandlerRejectsInvalidConfig(t *testing.T) {
	api := createTestApi(t)

	tests := []struct {
		name     string
		body     string
		contains string
	}{
		{"malformed", `{"stopId":`, "invalid configuration body"},
		{"unknown field", `{"stopId":"x","color":"red"}`, "invalid configuration body"},
		{"unknown provider", `{"providerId":"vbb","stopId":"x","routeIds":["S1"],"refreshInterval":1}`, "unknown provider"},
		{"no routes", `{"providerId":"mvv","stopId":"x","routeIds":[],"refreshInterval":1}`, "at least one route"},
		{"interval too long", `{"providerId":"mvv","stopId":"x","routeIds":["S1"],"refreshInterval":1441}`, "refresh interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, model := requestEndpointWithBody(t, api, http.MethodPut, "/api/config.json", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, model.Text, tt.contains)
		})
	}

	cfg, err := api.Configs.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestDeleteConfigHandler(t *testing.T) {
	api := createTestApi(t)
	require.NoError(t, api.Configs.Save(context.Background(), testWidgetConfig("S1")))

	resp, model := requestEndpoint(t, api, http.MethodDelete, "/api/config.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", model.Text)

	cfg, err := api.Configs.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}
