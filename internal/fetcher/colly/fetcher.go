// Package collyfetcher implements pipeline.PageFetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/tkoide/newswatch/internal/metrics"
	"github.com/tkoide/newswatch/internal/pipeline"
)

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Fetcher fetches single pages with bounded retry and jittered backoff.
// A missing page (404/410) or retry exhaustion is reported as
// pipeline.ErrAbsent, never as a fatal error for the record.
type Fetcher struct {
	cfg           Config
	retry         *pipeline.ExponentialRetryPolicy
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
	)
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		retry:         pipeline.NewRetryPolicy(cfg.MaxRetries, cfg.BackoffBase, cfg.BackoffMax),
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch executes an HTTP GET, retrying transient failures. The returned
// error is pipeline.ErrAbsent (possibly wrapped) when the resource
// definitively does not exist or retries are exhausted.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < f.retry.MaxAttempts(); attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, f.retry.Backoff(attempt-1)); err != nil {
				return nil, err
			}
			metrics.RecordFetchRetry()
		}
		body, err := f.fetchOnce(ctx, url)
		if err == nil {
			metrics.RecordFetch("ok")
			return body, nil
		}
		if errors.Is(err, pipeline.ErrAbsent) {
			metrics.RecordFetch("absent")
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !f.retry.ShouldRetry(err, attempt+1) {
			break
		}
		f.logger.Debug("fetch retry", zap.String("url", url), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	// Exhaustion degrades to absent; the assembler treats it as
	// end-of-content rather than failing the whole record.
	metrics.RecordFetch("exhausted")
	return nil, fmt.Errorf("%w: retries exhausted: %v", pipeline.ErrAbsent, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if status == http.StatusNotFound || status == http.StatusGone {
			return nil, pipeline.ErrAbsent
		}
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", url, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		return body, nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
