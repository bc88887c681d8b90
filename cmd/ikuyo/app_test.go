package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ikuyo.transit.dev/internal/appconf"
	"ikuyo.transit.dev/internal/clock"
)

const (
	stopFinderBody = `{"success":true,"results":[
		{"id":"de:09162:2","name":"Marienplatz","type":"stop","ref":{"coords":"1288575.9,6130053.5"}},
		{"id":"de:09162:6","name":"Hauptbahnhof","type":"stop"}]}`
	linesBody = `{"lines":[
		{"name":"S-Bahn","number":"S1","direction":"Freising","stateless":"mvv:01001: :H:s26"},
		{"name":"U-Bahn","number":"U3","direction":"Moosach","stateless":"mvv:01003: :R:s26"}]}`
	departuresBody = `{"departures":[
		{"line":{"number":"S1","symbol":"S1","direction":"Freising","stateless":"mvv:01001: :H:s26","name":"S-Bahn"},
		 "direction":"Freising","station":{"id":"de:09162:2","name":"Marienplatz"},"track":"1",
		 "departureDate":"20260314","departurePlanned":"08:35","departureLive":"08:36","inTime":false}]}`
)

// fakeMVV answers the three agency endpoints with canned bodies.
func fakeMVV(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case q.Get("eID") == "stopFinder":
			_, _ = io.WriteString(w, stopFinderBody)
		case q.Get("action") == "available_lines":
			_, _ = io.WriteString(w, linesBody)
		case q.Get("action") == "get_departures":
			_, _ = io.WriteString(w, departuresBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type cli struct {
	t   *testing.T
	env map[string]string
}

func newCLI(t *testing.T) *cli {
	t.Setenv("IKUYO_TEST_NOW", "2026-03-14T08:30:00Z")
	return &cli{t: t, env: map[string]string{
		appconf.EnvDBPath:            filepath.Join(t.TempDir(), "ikuyo.db"),
		appconf.EnvProviderBaseURL:   fakeMVV(t).URL,
		appconf.EnvTimezone:          "UTC",
		appconf.EnvProviderRateLimit: "0",
		appconf.EnvClockVar:          "IKUYO_TEST_NOW",
	}}
}

func (c *cli) lookup(key string) (string, bool) {
	v, ok := c.env[key]
	return v, ok
}

func (c *cli) run(args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"-env-file", ""}, args...)
	code := run(context.Background(), args, c.lookup, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestParseRouteIDs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "Single route", input: "S1", expected: []string{"S1"}},
		{name: "Multiple routes", input: "S1,U3,19", expected: []string{"S1", "U3", "19"}},
		{name: "Routes with spaces", input: " S1 , U3 ", expected: []string{"S1", "U3"}},
		{name: "Empty string", input: "", expected: []string{}},
		{name: "Only separators", input: " , ,", expected: []string{}},
		{name: "Stateless ids keep inner spaces", input: "mvv:01001: :H:s26", expected: []string{"mvv:01001: :H:s26"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseRouteIDs(tt.input))
		})
	}
}

func TestParseLatLon(t *testing.T) {
	lat, lon, err := parseLatLon("48.1374, 11.5755")
	require.NoError(t, err)
	assert.Equal(t, 48.1374, lat)
	assert.Equal(t, 11.5755, lon)

	for _, bad := range []string{"", "48.1", "48.1,11.5,3", "north,east", "91,0", "0,181"} {
		_, _, err := parseLatLon(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadConfigPriority(t *testing.T) {
	env := map[string]string{
		appconf.EnvPort:      "5000",
		appconf.EnvDBPath:    "/tmp/from-env.db",
		appconf.EnvRateLimit: "3",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, rest, err := loadConfig([]string{"-env-file", "", "-port", "6000", "-env", "production", "show"}, lookup, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"show"}, rest)
	assert.Equal(t, 6000, cfg.Port, "flag wins over environment")
	assert.Equal(t, "/tmp/from-env.db", cfg.DBPath, "environment wins over defaults")
	assert.Equal(t, 3, cfg.RateLimit)
	assert.Equal(t, appconf.Production, cfg.Env)
	assert.Equal(t, appconf.DefaultProviderBaseURL, cfg.ProviderBaseURL)

	_, _, err = loadConfig([]string{"-env-file", "", "-port", "70000"}, lookup, io.Discard)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestBuildApplicationWithMemoryDB(t *testing.T) {
	cfg := appconf.Defaults()
	cfg.Env = appconf.Test
	cfg.DBPath = ":memory:"
	cfg.Timezone = "UTC"

	coreApp, err := BuildApplication(cfg, io.Discard)
	require.NoError(t, err, "BuildApplication should not return an error")
	defer coreApp.Close()

	assert.NotNil(t, coreApp.Logger, "Logger should be initialized")
	assert.Equal(t, cfg, coreApp.Config, "Config should match input")
	assert.IsType(t, clock.RealClock{}, coreApp.Clock)
	assert.NotNil(t, coreApp.Controller)
	assert.NotNil(t, coreApp.Configurator)
	require.Len(t, coreApp.Registry.Providers(), 1)
	assert.Equal(t, "mvv", coreApp.Registry.Providers()[0].ID())
	assert.NoError(t, coreApp.Store.Ping(context.Background()))
}

func TestBuildApplicationErrorHandling(t *testing.T) {
	cfg := appconf.Defaults()
	cfg.DBPath = "   "
	_, err := BuildApplication(cfg, io.Discard)
	assert.ErrorContains(t, err, "failed to open store")

	cfg = appconf.Defaults()
	cfg.Timezone = "Mars/Olympus_Mons"
	_, err = BuildApplication(cfg, io.Discard)
	assert.ErrorContains(t, err, "unknown timezone")
}

func TestCreateServer(t *testing.T) {
	cfg := appconf.Defaults()
	cfg.Env = appconf.Test
	cfg.DBPath = ":memory:"
	cfg.Port = 8080

	coreApp, err := BuildApplication(cfg, io.Discard)
	require.NoError(t, err)
	defer coreApp.Close()

	srv, api := CreateServer(coreApp, cfg)
	defer api.Shutdown()

	assert.Equal(t, ":8080", srv.Addr, "Server address should match port")
	assert.NotNil(t, srv.Handler, "Server handler should be set")
	assert.Equal(t, time.Minute, srv.IdleTimeout, "IdleTimeout should be 1 minute")
	assert.Equal(t, 5*time.Second, srv.ReadTimeout, "ReadTimeout should be 5 seconds")
	assert.Equal(t, 10*time.Second, srv.WriteTimeout, "WriteTimeout should be 10 seconds")

	req := httptest.NewRequest(http.MethodGet, "/api/current-time.json", nil)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRunWithPortZeroAndImmediateShutdown(t *testing.T) {
	cfg := appconf.Defaults()
	cfg.Env = appconf.Test
	cfg.DBPath = ":memory:"
	cfg.Port = 0

	coreApp, err := BuildApplication(cfg, io.Discard)
	require.NoError(t, err)
	defer coreApp.Close()

	srv, api := CreateServer(coreApp, cfg)
	defer api.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, srv, coreApp.Logger) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "Server should shutdown cleanly")
	case <-time.After(10 * time.Second):
		t.Fatal("Test timeout - server did not shutdown")
	}
}

func TestCommandLineWorkflow(t *testing.T) {
	c := newCLI(t)

	code, out, errOut := c.run("stops", "Marienplatz")
	require.Equal(t, 0, code, errOut)
	assert.Regexp(t, `de:09162:2\s+Marienplatz\s+STOP\s+48\.`, out)
	assert.Regexp(t, `de:09162:6\s+Hauptbahnhof\s+STOP\s+-\s+-`, out)

	code, out, errOut = c.run("stops", "--near", "48.1374,11.5755", "--radius", "500", "Marienplatz")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Marienplatz")
	assert.NotContains(t, out, "Hauptbahnhof", "stops without coordinates are left out")

	code, out, errOut = c.run("routes", "--stop", "de:09162:2")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "mvv:01001: :H:s26")
	assert.Contains(t, out, "Moosach")

	code, out, errOut = c.run("configure", "--stop", "de:09162:2", "--routes", "mvv:01001: :H:s26,mvv:99999", "--interval", "2")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"stopName": "Marienplatz"`)
	assert.Contains(t, out, `"refreshInterval": 2`)
	assert.NotContains(t, out, "mvv:99999", "routes the stop does not serve are dropped")

	code, out, errOut = c.run("departures")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Marienplatz (Münchner Verkehrsverbund)")
	assert.Contains(t, out, "08:36")
	assert.Contains(t, out, "in 6 min (+1)")
	assert.Contains(t, out, "Updated 08:30")

	code, out, errOut = c.run("show")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"providerId": "mvv"`)
	assert.Contains(t, out, `"selectedStop"`)

	code, _, errOut = c.run("reset", "--all")
	require.Equal(t, 0, code, errOut)

	code, out, _ = c.run("show")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `"config": null`)
	assert.Contains(t, out, `"lookupCache": null`)
}

func TestCommandLineErrors(t *testing.T) {
	c := newCLI(t)

	tests := []struct {
		name     string
		args     []string
		code     int
		contains string
	}{
		{name: "no command", args: nil, code: 2, contains: "Usage: ikuyo"},
		{name: "unknown command", args: []string{"launch"}, code: 2, contains: `unknown command "launch"`},
		{name: "stops without query", args: []string{"stops"}, code: 2, contains: "needs a search query"},
		{name: "routes without a stop", args: []string{"routes"}, code: 2, contains: "needs --stop"},
		{name: "configure without routes", args: []string{"configure", "--stop", "de:09162:2"}, code: 1, contains: "at least one route"},
		{name: "departures before configure", args: []string{"departures"}, code: 1, contains: "run configure first"},
		{name: "bad flag", args: []string{"-port", "x", "show"}, code: 2, contains: "invalid value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := c.run(tt.args...)
			assert.Equal(t, tt.code, code)
			assert.True(t, strings.Contains(errOut, tt.contains), "stderr %q should contain %q", errOut, tt.contains)
		})
	}
}
