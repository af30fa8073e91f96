package evidence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDemoFetcherRecordsLiveSiteDetails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/app", http.StatusFound)
	})
	mux.HandleFunc("/app", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "custom-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Server", "Vercel")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<!DOCTYPE html><html><head><title> Green
		Route </title><script src="/_next/static/chunks/main.js"></script></head><body class="tailwind"></body></html>`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	fetcher := NewDemoFetcher(DemoConfig{UserAgent: "custom-agent"})
	ev := fetcher.Fetch(context.Background(), server.URL)

	require.True(t, ev.IsLive)
	require.Empty(t, ev.Error)
	require.Equal(t, http.StatusOK, ev.StatusCode)
	require.Equal(t, server.URL+"/app", ev.FinalURL)
	require.Equal(t, "Green Route", ev.Title)
	require.Equal(t, "text/html", ev.ContentType)
	require.Equal(t, []string{"Next.js", "Tailwind CSS", "Vercel"}, ev.TechHints)
}

func TestDemoFetcherReportsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	ev := NewDemoFetcher(DemoConfig{}).Fetch(context.Background(), server.URL)
	require.False(t, ev.IsLive)
	require.Equal(t, http.StatusServiceUnavailable, ev.StatusCode)
	require.Contains(t, ev.Error, "HTTP 503")
}

func TestDemoFetcherDistinguishesTimeoutFromTransportErrors(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(slow.Close)

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	fetcher := NewDemoFetcher(DemoConfig{Timeout: 50 * time.Millisecond})

	start := time.Now()
	timedOut := fetcher.Fetch(context.Background(), slow.URL)
	require.Less(t, time.Since(start), time.Second)
	require.False(t, timedOut.IsLive)
	require.Equal(t, "request timed out after 50ms", timedOut.Error)

	refused := fetcher.Fetch(context.Background(), closedURL)
	require.False(t, refused.IsLive)
	require.Contains(t, refused.Error, "request failed")

	invalid := fetcher.Fetch(context.Background(), "http://[::1")
	require.False(t, invalid.IsLive)
	require.NotEmpty(t, invalid.Error)
}
