// Package collyfetcher tests the fetcher against a local test server.
package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tkoide/newswatch/internal/pipeline"
)

func newTestFetcher(maxRetries int) *Fetcher {
	return New(Config{
		UserAgent:   "newswatch-test",
		Timeout:     5 * time.Second,
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	}, nil)
}

// TestFetchSuccess returns the body and sends the configured user agent.
func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.UserAgent())
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(3).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "<html>ok</html>" {
		t.Fatalf("unexpected body %q", body)
	}
	if ua, _ := gotUA.Load().(string); ua != "newswatch-test" {
		t.Fatalf("expected configured user agent, got %q", ua)
	}
}

// TestFetchNotFoundIsAbsent maps 404 to the absent sentinel without retrying.
func TestFetchNotFoundIsAbsent(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher(3).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, pipeline.ErrAbsent) {
		t.Fatalf("expected ErrAbsent, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("a definitive 404 must not be retried, got %d hits", hits.Load())
	}
}

// TestFetchRetriesThenSucceeds recovers from transient server errors.
func TestFetchRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(4).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "recovered" {
		t.Fatalf("unexpected body %q", body)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

// TestFetchExhaustionDegradesToAbsent keeps a persistently failing page
// non-fatal for the record.
func TestFetchExhaustionDegradesToAbsent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestFetcher(2).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, pipeline.ErrAbsent) {
		t.Fatalf("expected exhaustion to degrade to ErrAbsent, got %v", err)
	}
}

// TestFetchHonorsCancellation stops waiting when the context is canceled.
func TestFetchHonorsCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestFetcher(3).Fetch(ctx, srv.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a context error, got %v", err)
	}
}
