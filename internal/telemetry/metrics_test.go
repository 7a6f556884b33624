package telemetry_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/authbox/internal/telemetry"
)

func TestMetricsHandler(t *testing.T) {
	m := telemetry.NewMetrics()
	m.TokenIssued("password", "ACCESS_TOKEN")
	m.ObserveAccessLog(func() int { return 3 }, func() uint64 { return 1 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, string(body), `authbox_tokens_issued_total{grant_type="password",token_type="ACCESS_TOKEN"} 1`)
	require.Contains(t, string(body), "authbox_access_log_queue_length 3")
	require.Contains(t, string(body), "authbox_access_log_dropped_total 1")

	var nilMetrics *telemetry.Metrics
	nilMetrics.TokenIssued("x", "y")
}
