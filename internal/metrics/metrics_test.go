package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotPanics(t, func() {
		ObserveTarget("succeeded")
		ObserveTarget("failed")
		ObserveRetry()
		IncHandlesInUse()
		DecHandlesInUse()
		ObserveNavigation("headless", 1200*time.Millisecond)
		ObserveNavigation("static", 80*time.Millisecond)
		ObserveExtraction(3 * time.Millisecond)
		ObserveDiscovered(4)
		SetResultSetSize(120)
	})
}

func TestRouterServesScrapeEndpoint(t *testing.T) {
	Init()
	ObserveTarget("succeeded")

	srv := httptest.NewServer(Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "curatorscan_targets_total")
	require.Contains(t, string(body), "curatorscan_handles_in_use")
}
