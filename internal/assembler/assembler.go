// Package assembler walks the paginated pages of one article and assembles
// the final body text, comment count, and posted timestamp.
package assembler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/tkoide/newswatch/internal/extract"
	"github.com/tkoide/newswatch/internal/pipeline"
)

// PageDelimiter joins text blocks of consecutive pages.
const PageDelimiter = "\n"

// Config bounds the pagination walks.
type Config struct {
	MaxPages        int
	MaxCommentPages int
}

// Assembler implements pipeline.Assembler over a PageFetcher and the
// extract heuristics.
type Assembler struct {
	fetcher pipeline.PageFetcher
	snap    pipeline.Snapshotter
	clock   pipeline.Clock
	logger  *zap.Logger
	cfg     Config
}

// New constructs an Assembler. The snapshotter is optional.
func New(cfg Config, fetcher pipeline.PageFetcher, snap pipeline.Snapshotter, clock pipeline.Clock, logger *zap.Logger) (*Assembler, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.MaxCommentPages <= 0 {
		cfg.MaxCommentPages = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		fetcher: fetcher,
		snap:    snap,
		clock:   clock,
		logger:  logger,
		cfg:     cfg,
	}, nil
}

// Assemble walks pages 1..MaxPages of the canonical article URL. The walk
// stops, without error, on: an absent page, a page indicator that does not
// match the requested index (redirect-to-first detection), an empty text
// block after the first page, or a block textually identical to page 1's
// (duplicate-content loop breaker). An empty concatenation yields the
// BodyUnavailable sentinel.
func (a *Assembler) Assemble(ctx context.Context, url string) (pipeline.Detail, error) {
	var (
		detail    pipeline.Detail
		blocks    []string
		firstText string
	)

	for page := 1; page <= a.cfg.MaxPages; page++ {
		doc, err := a.fetchDocument(ctx, pageURL(url, page), page)
		if err != nil {
			if errors.Is(err, pipeline.ErrAbsent) {
				break
			}
			return detail, err
		}

		if page == 1 {
			detail.CommentCount = extract.CommentCount(doc)
			detail.PostedAt = extract.PostedAt(doc, a.clock.Now())
		}

		if page > 1 && extract.PageIndicator(doc) != page {
			break
		}

		text := extract.ArticleText(doc)
		if page > 1 && text == "" {
			break
		}
		if page > 1 && text == firstText {
			break
		}
		if page == 1 {
			firstText = text
		}
		if text != "" {
			blocks = append(blocks, text)
		}
	}

	body := strings.TrimSpace(strings.Join(blocks, PageDelimiter))
	if body == "" {
		body = pipeline.BodyUnavailable
	}
	detail.Body = body
	return detail, nil
}

// RefreshMeta re-reads only the first page for the comment count and
// timestamp. An absent page leaves both unset.
func (a *Assembler) RefreshMeta(ctx context.Context, url string) (pipeline.Detail, error) {
	var detail pipeline.Detail
	doc, err := a.fetchDocument(ctx, url, 1)
	if err != nil {
		if errors.Is(err, pipeline.ErrAbsent) {
			return detail, nil
		}
		return detail, err
	}
	detail.CommentCount = extract.CommentCount(doc)
	detail.PostedAt = extract.PostedAt(doc, a.clock.Now())
	return detail, nil
}

// CollectComments walks the article's comment pages, deduplicating repeated
// pages, and returns the flattened comment texts.
func (a *Assembler) CollectComments(ctx context.Context, url string) ([]string, error) {
	var (
		out  []string
		seen = map[string]struct{}{}
	)
	for page := 1; page <= a.cfg.MaxCommentPages; page++ {
		doc, err := a.fetchDocument(ctx, commentPageURL(url, page), page)
		if err != nil {
			if errors.Is(err, pipeline.ErrAbsent) {
				break
			}
			return out, err
		}
		comments := extract.Comments(doc)
		if len(comments) == 0 {
			break
		}
		added := 0
		for _, c := range comments {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
			added++
		}
		// A page contributing nothing new means the pagination redirected
		// back onto content already collected.
		if added == 0 {
			break
		}
	}
	return out, nil
}

func (a *Assembler) fetchDocument(ctx context.Context, url string, page int) (*goquery.Document, error) {
	content, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if a.snap != nil {
		if serr := a.snap.Save(ctx, url, page, content); serr != nil {
			a.logger.Warn("page snapshot failed", zap.String("url", url), zap.Error(serr))
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		// Unparseable markup is a structural miss, same outcome as no
		// content.
		a.logger.Warn("unparseable page", zap.String("url", url), zap.Error(err))
		return nil, pipeline.ErrAbsent
	}
	return doc, nil
}

func pageURL(url string, page int) string {
	if page <= 1 {
		return url
	}
	return fmt.Sprintf("%s?page=%d", url, page)
}

func commentPageURL(url string, page int) string {
	base := strings.TrimSuffix(url, "/") + "/comments"
	if page <= 1 {
		return base
	}
	return fmt.Sprintf("%s?page=%d", base, page)
}
