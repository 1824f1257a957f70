// Package headless implements the keyword search provider by rendering the
// search results page in a headless browser. The listing is built by
// client-side scripts, so a plain GET never sees the results.
package headless

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/tkoide/newswatch/internal/pipeline"
)

// Config controls the renderer.
type Config struct {
	// SearchURL is a format string receiving the escaped keyword.
	SearchURL string
	// WaitSelector is the CSS selector whose visibility marks a loaded
	// result list.
	WaitSelector string
	UserAgent    string
	NavTimeout   time.Duration
	// SettleDelay gives late-loading result tiles time to attach.
	SettleDelay time.Duration
}

// Provider implements pipeline.SearchProvider with chromedp.
type Provider struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New creates the provider and its browser allocator.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.SearchURL == "" {
		return nil, fmt.Errorf("search URL template is required")
	}
	if cfg.WaitSelector == "" {
		cfg.WaitSelector = `li[class*="sc-1u4589e-0"]`
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Provider{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (p *Provider) Close() {
	p.allocCancel()
}

// Search renders the results page for the keyword and extracts the raw
// article tuples.
func (p *Provider) Search(ctx context.Context, keyword string) ([]pipeline.RawEntry, error) {
	taskCtx, taskCancel := chromedp.NewContext(p.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, p.cfg.NavTimeout)
	defer cancel()

	// Honor the caller's cancellation as well as the nav timeout.
	go func() {
		select {
		case <-ctx.Done():
			taskCancel()
		case <-taskCtx.Done():
		}
	}()

	target := fmt.Sprintf(p.cfg.SearchURL, url.QueryEscape(keyword))
	var html string
	if err := chromedp.Run(taskCtx, p.renderActions(target, &html)...); err != nil {
		return nil, fmt.Errorf("render search %q: %w", keyword, err)
	}

	entries, err := ParseResults(html)
	if err != nil {
		return nil, fmt.Errorf("parse search %q: %w", keyword, err)
	}
	p.logger.Debug("search rendered", zap.String("keyword", keyword), zap.Int("entries", len(entries)))
	return entries, nil
}

// renderActions builds the browser task list for one search render.
func (p *Provider) renderActions(target string, html *string) []chromedp.Action {
	actions := []chromedp.Action{
		network.Enable(),
		// Result tiles are text-only; skipping imagery keeps renders fast.
		network.SetBlockedURLs([]string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp"}),
	}
	if p.cfg.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(p.cfg.UserAgent))
	}
	return append(actions,
		chromedp.Navigate(target),
		chromedp.WaitVisible(p.cfg.WaitSelector, chromedp.ByQuery),
		chromedp.Sleep(p.cfg.SettleDelay),
		chromedp.OuterHTML("html", html, chromedp.ByQuery),
	)
}
