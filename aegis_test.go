package aegis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisframework/aegis/config"
	"github.com/aegisframework/aegis/principal"
	"github.com/aegisframework/aegis/types"
)

func TestNew_Defaults(t *testing.T) {
	coord, err := New()
	require.NoError(t, err)
	require.NotNil(t, coord.Gateway)
	require.NotNil(t, coord.Principal)

	require.NoError(t, coord.Start(context.Background()))
	coord.Stop()
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gateway.QoSAlpha = 2.0

	_, err := New(WithConfig(cfg))
	assert.Error(t, err)
}

func TestCoordinator_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"temperature": 21}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	coord, err := New()
	require.NoError(t, err)
	require.NoError(t, coord.Start(context.Background()))
	defer coord.Stop()

	_, err = coord.Gateway.RegisterResource(context.Background(), &types.ResourceRecord{
		ID:           "weather-1",
		Capabilities: []string{"weather"},
		Endpoint:     srv.URL,
	})
	require.NoError(t, err)

	resp, err := coord.Principal.Process(context.Background(), &principal.Request{
		Description:  "current temperature",
		Requirements: []string{"weather"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, resp.State)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, "weather-1", resp.Tasks[0].AssignedResourceID)
	assert.EqualValues(t, 21, resp.Tasks[0].Result["temperature"])
}
