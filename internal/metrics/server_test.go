package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/skillswap/chainledger/pkg/config"
	"github.com/stretchr/testify/require"
)

func testMetricsConfig() *config.MetricsConfig {
	cfg := &config.MetricsConfig{Enabled: true}
	cfg.ApplyDefaults()
	return cfg
}

func TestServer_Routes(t *testing.T) {
	status := func() any {
		return map[string]any{"state": "running", "lastProcessedBlock": 42}
	}
	srv := httptest.NewServer(NewServer(testMetricsConfig(), status, nil).Handler())
	defer srv.Close()

	tests := []struct {
		path         string
		expectedCode int
		contains     string
	}{
		{path: "/health", expectedCode: http.StatusOK, contains: "OK"},
		{path: "/status", expectedCode: http.StatusOK, contains: `"lastProcessedBlock":42`},
		{path: "/metrics", expectedCode: http.StatusOK, contains: "chainledger_"},
	}

	UpdateSystemMetrics()

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			require.Equal(t, tt.expectedCode, resp.StatusCode)
			require.Contains(t, string(body), tt.contains)
		})
	}
}

func TestServer_StatusUnavailable(t *testing.T) {
	srv := httptest.NewServer(NewServer(testMetricsConfig(), nil, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_DisabledIsNoop(t *testing.T) {
	cfg := testMetricsConfig()
	cfg.Enabled = false

	s := NewServer(cfg, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestIndexerStateSet(t *testing.T) {
	states := []string{"idle", "running", "backoff", "stopped"}

	IndexerStateSet("backoff", states)
	require.InDelta(t, 1, testutil.ToFloat64(IndexerState.WithLabelValues("backoff")), 0)
	require.InDelta(t, 0, testutil.ToFloat64(IndexerState.WithLabelValues("running")), 0)

	IndexerStateSet("running", states)
	require.InDelta(t, 0, testutil.ToFloat64(IndexerState.WithLabelValues("backoff")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(IndexerState.WithLabelValues("running")), 0)
}
