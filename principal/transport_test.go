package principal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aegisframework/aegis/types"
)

func sampleTask() *types.Task {
	return &types.Task{
		ID:           "task-1",
		Description:  "forecast",
		Requirements: []string{"weather"},
		Payload:      types.Document{"city": "São Paulo"},
	}
}

func TestHTTPInvoker_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/invoke", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var inv invocation
		require.NoError(t, json.NewDecoder(r.Body).Decode(&inv))
		assert.Equal(t, "task-1", inv.TaskID)
		assert.Equal(t, []string{"weather"}, inv.Requirements)
		assert.Equal(t, "São Paulo", inv.Payload["city"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"forecast":"sunny"}`))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(zaptest.NewLogger(t))
	result, err := inv.Invoke(context.Background(), srv.URL, sampleTask())
	require.NoError(t, err)
	assert.Equal(t, "sunny", result["forecast"])
}

func TestHTTPInvoker_RemoteErrorMapping(t *testing.T) {
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(zaptest.NewLogger(t))

	_, err := inv.Invoke(context.Background(), srv.URL, sampleTask())
	require.True(t, types.IsCode(err, types.ErrRemote))
	assert.True(t, types.IsRetryable(err)) // 5xx is retryable

	status = http.StatusBadRequest
	_, err = inv.Invoke(context.Background(), srv.URL, sampleTask())
	require.True(t, types.IsCode(err, types.ErrRemote))
	assert.False(t, types.IsRetryable(err)) // 4xx is not
}

func TestHTTPInvoker_TimeoutMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := inv.Invoke(ctx, srv.URL, sampleTask())
	require.True(t, types.IsCode(err, types.ErrTimeout))
	assert.True(t, types.IsRetryable(err))
}

func TestHTTPInvoker_UnreachableEndpoint(t *testing.T) {
	inv := NewHTTPInvoker(zaptest.NewLogger(t))
	_, err := inv.Invoke(context.Background(), "http://127.0.0.1:1", sampleTask())
	require.True(t, types.IsCode(err, types.ErrRemote))
	assert.True(t, types.IsRetryable(err))
}

func TestHTTPInvoker_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(zaptest.NewLogger(t))
	result, err := inv.Invoke(context.Background(), srv.URL, sampleTask())
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDelegationTimeoutDefault(t *testing.T) {
	assert.Equal(t, 10*time.Second, delegationTimeout(0))
	assert.Equal(t, 3*time.Second, delegationTimeout(3*time.Second))
}
