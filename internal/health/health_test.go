package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*Manager, *httptest.Server) {
	t.Helper()
	manager := NewManager(zap.NewNop())
	mux := http.NewServeMux()
	manager.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return manager, ts
}

func TestLivenessAlwaysOK(t *testing.T) {
	manager, ts := newTestManager(t)
	manager.Register("postgres", func(context.Context) error { return errors.New("down") })

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadinessReflectsCheckers(t *testing.T) {
	manager, ts := newTestManager(t)
	manager.Register("postgres", func(context.Context) error { return nil })
	manager.Register("redis", func(context.Context) error { return errors.New("connection refused") })

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not ready", body.Status)
	assert.Equal(t, "healthy", body.Checks["postgres"].Status)
	assert.Equal(t, "unhealthy", body.Checks["redis"].Status)
	assert.Contains(t, body.Checks["redis"].Error, "connection refused")
}

func TestReadinessWithNoCheckersIsReady(t *testing.T) {
	_, ts := newTestManager(t)

	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
