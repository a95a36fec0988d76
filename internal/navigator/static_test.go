package navigator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"curatorscan/internal/crawl"
)

func staticServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/curator", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div class="name"><span>Pixel Picks</span></div></body></html>`))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/curator", http.StatusFound)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStaticNavigateFetchesPage(t *testing.T) {
	t.Parallel()

	srv := staticServer(t)
	h, err := NewStatic(StaticConfig{UserAgent: "curatorscan-test"}).NewHandle(context.Background())
	require.NoError(t, err)

	page, err := h.Navigate(context.Background(), crawl.Target{ID: "c1", URL: srv.URL + "/curator"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "Pixel Picks")
	require.Equal(t, srv.URL+"/curator", page.URL)
}

func TestStaticNavigateFollowsRedirects(t *testing.T) {
	t.Parallel()

	srv := staticServer(t)
	h, err := NewStatic(StaticConfig{}).NewHandle(context.Background())
	require.NoError(t, err)

	page, err := h.Navigate(context.Background(), crawl.Target{ID: "c1", URL: srv.URL + "/moved"})
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/curator", page.FinalURL)
}

func TestStaticNavigateMapsNotFound(t *testing.T) {
	t.Parallel()

	srv := staticServer(t)
	h, err := NewStatic(StaticConfig{}).NewHandle(context.Background())
	require.NoError(t, err)

	_, err = h.Navigate(context.Background(), crawl.Target{ID: "c1", URL: srv.URL + "/gone"})
	require.ErrorIs(t, err, crawl.ErrProfileNotFound)
}

func TestStaticNavigateCancellationAbortsRequest(t *testing.T) {
	t.Parallel()

	requestDone := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			requestDone <- r.Context().Err()
		case <-time.After(5 * time.Second):
			requestDone <- nil
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	h, err := NewStatic(StaticConfig{}).NewHandle(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = h.Navigate(ctx, crawl.Target{ID: "c1", URL: srv.URL + "/slow"})
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 2*time.Second)

	// The server side must see the request abort, not just our caller.
	select {
	case srvErr := <-requestDone:
		require.ErrorIs(t, srvErr, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the aborted request")
	}
}

func TestStaticNavigateMapsUpstreamFailureAsTransient(t *testing.T) {
	t.Parallel()

	srv := staticServer(t)
	h, err := NewStatic(StaticConfig{}).NewHandle(context.Background())
	require.NoError(t, err)

	_, err = h.Navigate(context.Background(), crawl.Target{ID: "c1", URL: srv.URL + "/flaky"})
	require.Error(t, err)
	require.True(t, crawl.Retryable(err))
}
