package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aegisframework/aegis/config"
	"github.com/aegisframework/aegis/gateway"
)

func newTestGateway(t *testing.T) *gateway.Service {
	t.Helper()
	cfg := config.DefaultConfig().Gateway
	cfg.HealthCheckTimeout = time.Second
	cfg.RevalidateInterval = 0
	svc := gateway.NewService(cfg, zaptest.NewLogger(t))
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(svc.Stop)
	return svc
}

func newGatewayMux(t *testing.T, svc *gateway.Service) *http.ServeMux {
	t.Helper()
	h := NewGatewayHandler(svc, zaptest.NewLogger(t))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/resources", h.HandleRegister)
	mux.HandleFunc("GET /v1/resources", h.HandleListResources)
	mux.HandleFunc("GET /v1/resources/{id}", h.HandleGetResource)
	mux.HandleFunc("DELETE /v1/resources/{id}", h.HandleRemove)
	mux.HandleFunc("POST /v1/resources/{id}/activate", h.HandleActivate)
	mux.HandleFunc("POST /v1/resources/{id}/deactivate", h.HandleDeactivate)
	mux.HandleFunc("POST /v1/resources/{id}/outcome", h.HandleReportOutcome)
	mux.HandleFunc("POST /v1/discovery/query", h.HandleQuery)
	mux.HandleFunc("GET /v1/gateway/stats", h.HandleStats)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func resourceServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGatewayHandler_RegisterAndQuery(t *testing.T) {
	srv := resourceServer(t)
	mux := newGatewayMux(t, newTestGateway(t))

	rec := doJSON(t, mux, http.MethodPost, "/v1/resources", RegisterRequest{
		ID:           "res-1",
		Name:         "weather tool",
		Capabilities: []string{"weather"},
		Endpoint:     srv.URL,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)
	data := env.Data.(map[string]any)
	assert.Equal(t, "res-1", data["id"])
	assert.Equal(t, "active", data["status"])

	rec = doJSON(t, mux, http.MethodPost, "/v1/discovery/query", QueryRequest{
		Requirements: []string{"weather"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data QueryResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Data.Candidates, 1)
	assert.Equal(t, "res-1", resp.Data.Candidates[0].ID)
	assert.Equal(t, 1.0, resp.Data.Candidates[0].Score)
}

func TestGatewayHandler_ReRegisterReturnsOK(t *testing.T) {
	srv := resourceServer(t)
	mux := newGatewayMux(t, newTestGateway(t))

	body := RegisterRequest{ID: "res-1", Capabilities: []string{"weather"}, Endpoint: srv.URL}
	rec := doJSON(t, mux, http.MethodPost, "/v1/resources", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	body.Capabilities = []string{"weather", "forecast"}
	rec = doJSON(t, mux, http.MethodPost, "/v1/resources", body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGatewayHandler_DuplicateIDConflict(t *testing.T) {
	srv := resourceServer(t)
	other := resourceServer(t)
	mux := newGatewayMux(t, newTestGateway(t))

	rec := doJSON(t, mux, http.MethodPost, "/v1/resources",
		RegisterRequest{ID: "res-1", Capabilities: []string{"weather"}, Endpoint: srv.URL})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Same id, different endpoint.
	rec = doJSON(t, mux, http.MethodPost, "/v1/resources",
		RegisterRequest{ID: "res-1", Capabilities: []string{"weather"}, Endpoint: other.URL})
	assert.Equal(t, http.StatusConflict, rec.Code)

	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DUPLICATE_ID", env.Error.Code)
}

func TestGatewayHandler_RegisterValidation(t *testing.T) {
	mux := newGatewayMux(t, newTestGateway(t))

	rec := doJSON(t, mux, http.MethodPost, "/v1/resources",
		RegisterRequest{Capabilities: nil, Endpoint: "http://example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGatewayHandler_GetAndRemove(t *testing.T) {
	srv := resourceServer(t)
	mux := newGatewayMux(t, newTestGateway(t))

	doJSON(t, mux, http.MethodPost, "/v1/resources",
		RegisterRequest{ID: "res-1", Capabilities: []string{"weather"}, Endpoint: srv.URL})

	rec := doJSON(t, mux, http.MethodGet, "/v1/resources/res-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/v1/resources/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, mux, http.MethodDelete, "/v1/resources/res-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/v1/resources/res-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGatewayHandler_ActivationLifecycle(t *testing.T) {
	srv := resourceServer(t)
	mux := newGatewayMux(t, newTestGateway(t))

	doJSON(t, mux, http.MethodPost, "/v1/resources",
		RegisterRequest{ID: "res-1", Capabilities: []string{"weather"}, Endpoint: srv.URL})

	rec := doJSON(t, mux, http.MethodPost, "/v1/resources/res-1/deactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/v1/discovery/query", QueryRequest{Requirements: []string{"weather"}})
	var resp struct {
		Data QueryResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Data.Candidates)

	rec = doJSON(t, mux, http.MethodPost, "/v1/resources/res-1/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/v1/discovery/query", QueryRequest{Requirements: []string{"weather"}})
	resp.Data = QueryResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Data.Candidates, 1)
}

func TestGatewayHandler_ReportOutcome(t *testing.T) {
	srv := resourceServer(t)
	svc := newTestGateway(t)
	mux := newGatewayMux(t, svc)

	doJSON(t, mux, http.MethodPost, "/v1/resources",
		RegisterRequest{ID: "res-1", Capabilities: []string{"weather"}, Endpoint: srv.URL})

	rec := doJSON(t, mux, http.MethodPost, "/v1/resources/res-1/outcome",
		OutcomeRequest{Success: true, LatencyMS: 50})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := svc.GetResource(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.QoS.SuccessCount)
	assert.Equal(t, 50*time.Millisecond, got.QoS.AvgLatency)

	rec = doJSON(t, mux, http.MethodPost, "/v1/resources/res-1/outcome",
		OutcomeRequest{Success: true, LatencyMS: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGatewayHandler_QueryValidation(t *testing.T) {
	mux := newGatewayMux(t, newTestGateway(t))

	rec := doJSON(t, mux, http.MethodPost, "/v1/discovery/query", QueryRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGatewayHandler_Stats(t *testing.T) {
	srv := resourceServer(t)
	mux := newGatewayMux(t, newTestGateway(t))

	doJSON(t, mux, http.MethodPost, "/v1/resources",
		RegisterRequest{ID: "res-1", Capabilities: []string{"weather"}, Endpoint: srv.URL})
	doJSON(t, mux, http.MethodPost, "/v1/discovery/query", QueryRequest{Requirements: []string{"weather"}})

	rec := doJSON(t, mux, http.MethodGet, "/v1/gateway/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(1), data["total_resources"])
	assert.Equal(t, float64(1), data["active_resources"])
}
