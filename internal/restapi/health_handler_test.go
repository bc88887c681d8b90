package restapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ikuyo.transit.dev/internal/app"
)

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		api := createTestApi(t)

		rec := httptest.NewRecorder()
		api.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, HealthResponse{Status: "ok"}, decodeHealth(t, rec))
	})

	t.Run("no application", func(t *testing.T) {
		api := &RestAPI{}

		rec := httptest.NewRecorder()
		api.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "unavailable", decodeHealth(t, rec).Status)
	})

	t.Run("controller not running", func(t *testing.T) {
		full := createTestApi(t)
		api := &RestAPI{Application: &app.Application{Store: full.Store, Logger: full.Logger}}

		rec := httptest.NewRecorder()
		api.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "starting", decodeHealth(t, rec).Status)
	})

	t.Run("closed database", func(t *testing.T) {
		api := createTestApi(t)
		require.NoError(t, api.Store.Close())

		rec := httptest.NewRecorder()
		api.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, HealthResponse{Status: "unavailable", Detail: "database connection failed"}, decodeHealth(t, rec))
	})
}
