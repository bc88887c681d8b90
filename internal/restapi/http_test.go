package restapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"ikuyo.transit.dev/internal/app"
	"ikuyo.transit.dev/internal/appconf"
	"ikuyo.transit.dev/internal/clock"
	"ikuyo.transit.dev/internal/metrics"
	"ikuyo.transit.dev/internal/models"
	"ikuyo.transit.dev/internal/refresh"
	"ikuyo.transit.dev/internal/setup"
	"ikuyo.transit.dev/internal/store"
	"ikuyo.transit.dev/internal/transit"
)

var testNow = time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC)

const testStopID = "de:09162:2"

var (
	testRouteS1 = transit.Route{ID: "S1", ShortName: "S1", LongName: "Freising", Type: transit.RouteSubway, SortOrder: transit.NoSortOrder}
	testRouteU3 = transit.Route{ID: "U3", ShortName: "U3", LongName: "Moosach", Type: transit.RouteMetro, SortOrder: transit.NoSortOrder}
)

type testAPI struct {
	*RestAPI
	provider *transit.MockProvider
	clock    *clock.MockClock
}

func testSettings() appconf.Config {
	cfg := appconf.Defaults()
	cfg.Env = appconf.Test
	cfg.DBPath = ":memory:"
	cfg.Timezone = "UTC"
	return cfg
}

func createTestApi(t *testing.T) *testAPI {
	return createTestApiWithSettings(t, testSettings())
}

// createTestApiWithSettings wires a complete application around an
// in-memory store, a mock provider and a mock clock.
func createTestApiWithSettings(t *testing.T, cfg appconf.Config) *testAPI {
	t.Helper()

	s, err := store.Open(cfg.DBPath)
	require.NoError(t, err)

	clk := clock.NewMockClock(testNow)
	m := metrics.New()

	provider := transit.NewMockProvider("mvv", "MVV", "Münchner Verkehrsverbund")
	provider.SetRoutes(testStopID, []transit.Route{testRouteS1, testRouteU3})
	registry := transit.NewRegistry(provider)

	configs := store.NewConfigStore(s)
	cache := store.NewLookupCacheStore(s)

	application := &app.Application{
		Config:       cfg,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:        clk,
		Metrics:      m,
		Location:     time.UTC,
		Store:        s,
		Configs:      configs,
		LookupCache:  cache,
		Registry:     registry,
		Controller:   refresh.NewController(registry, refresh.WithClock(clk), refresh.WithMetrics(m)),
		Configurator: setup.NewConfigurator(registry, configs, cache, nil),
	}

	api := NewRestAPI(application)
	t.Cleanup(func() {
		api.Shutdown()
		application.Close()
	})
	return &testAPI{RestAPI: api, provider: provider, clock: clk}
}

func (api *testAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	api.SetRoutes(mux)
	server := httptest.NewServer(api.Handler(mux))
	t.Cleanup(server.Close)
	return server
}

func testWidgetConfig(routeIDs ...string) models.WidgetConfig {
	return models.WidgetConfig{
		ProviderID:      "mvv",
		StopID:          testStopID,
		StopName:        "Marienplatz",
		RouteIDs:        routeIDs,
		RefreshInterval: 1,
	}
}

func serveApiAndRetrieveEndpoint(t *testing.T, api *testAPI, endpoint string) (*http.Response, models.ResponseModel) {
	t.Helper()
	return requestEndpoint(t, api, http.MethodGet, endpoint)
}

func requestEndpoint(t *testing.T, api *testAPI, method, endpoint string) (*http.Response, models.ResponseModel) {
	t.Helper()
	return requestEndpointWithBody(t, api, method, endpoint, "")
}

func requestEndpointWithBody(t *testing.T, api *testAPI, method, endpoint, body string) (*http.Response, models.ResponseModel) {
	t.Helper()
	server := api.server(t)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, server.URL+endpoint, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var model models.ResponseModel
	require.NoError(t, json.Unmarshal(payload, &model), "body: %s", payload)
	return resp, model
}

func receiveView(t *testing.T, ch <-chan refresh.View) refresh.View {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "refresh was superseded")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for refresh")
		return refresh.View{}
	}
}

func entryOf(t *testing.T, model models.ResponseModel) map[string]interface{} {
	t.Helper()
	data, ok := model.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", model.Data)
	entry, ok := data["entry"].(map[string]interface{})
	require.True(t, ok, "entry is %T", data["entry"])
	return entry
}
