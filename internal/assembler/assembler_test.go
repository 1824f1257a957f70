// Package assembler tests the pagination walk against scripted page fetches.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tkoide/newswatch/internal/pipeline"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// scriptedFetcher returns canned bodies per URL and records the fetch order.
type scriptedFetcher struct {
	pages   map[string]string
	fetched []string
}

func (f *scriptedFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.fetched = append(f.fetched, url)
	body, ok := f.pages[url]
	if !ok {
		return nil, pipeline.ErrAbsent
	}
	return []byte(body), nil
}

func articlePage(page int, text string) string {
	return fmt.Sprintf(`<html><head>
		<link rel="canonical" href="https://example.com/articles/a?page=%d">
	</head><body>
		<a href="/articles/a/comments">コメント25件</a>
		<article><time>8/30 14:05</time>
		<div class="article_body"><p>%s</p></div></article>
	</body></html>`, page, text)
}

func commentPage(comments ...string) string {
	var body string
	for _, c := range comments {
		body += fmt.Sprintf(`<div class="comment-item"><p class="comment-body">%s</p></div>`, c)
	}
	return "<html><body>" + body + "</body></html>"
}

func newTestAssembler(t *testing.T, fetcher pipeline.PageFetcher) *Assembler {
	t.Helper()
	a, err := New(Config{MaxPages: 10, MaxCommentPages: 10},
		fetcher, nil, fixedClock{now: time.Date(2026, 8, 31, 12, 0, 0, 0, pipeline.JST)}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

// TestAssembleMultiPage joins page texts and captures the first page's
// metadata.
func TestAssembleMultiPage(t *testing.T) {
	t.Parallel()

	base := "https://example.com/articles/a"
	fetcher := &scriptedFetcher{pages: map[string]string{
		base:             articlePage(1, "一ページ目。"),
		base + "?page=2": articlePage(2, "二ページ目。"),
	}}
	a := newTestAssembler(t, fetcher)

	detail, err := a.Assemble(context.Background(), base)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if detail.Body != "一ページ目。\n二ページ目。" {
		t.Fatalf("unexpected body %q", detail.Body)
	}
	if detail.CommentCount == nil || *detail.CommentCount != 25 {
		t.Fatalf("expected comment count 25, got %v", detail.CommentCount)
	}
	if detail.PostedAt == nil || detail.PostedAt.Precision != pipeline.PrecisionExact {
		t.Fatalf("expected an exact posted timestamp, got %+v", detail.PostedAt)
	}
	// Page 3 is absent; its fetch ends the walk without error.
	if len(fetcher.fetched) != 3 {
		t.Fatalf("expected 3 fetches, got %v", fetcher.fetched)
	}
}

// TestAssembleRedirectIndicator stops the walk when a later page resolves
// back to page 1.
func TestAssembleRedirectIndicator(t *testing.T) {
	t.Parallel()

	base := "https://example.com/articles/a"
	fetcher := &scriptedFetcher{pages: map[string]string{
		base: articlePage(1, "唯一のページ。"),
		// Requesting page 2 serves page 1 again, indicator included.
		base + "?page=2": articlePage(1, "唯一のページ。"),
	}}
	a := newTestAssembler(t, fetcher)

	detail, err := a.Assemble(context.Background(), base)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if detail.Body != "唯一のページ。" {
		t.Fatalf("expected the single page body once, got %q", detail.Body)
	}
}

// TestAssembleDuplicateContentBreaker stops when a later page repeats page
// 1's text even though its indicator looks plausible.
func TestAssembleDuplicateContentBreaker(t *testing.T) {
	t.Parallel()

	base := "https://example.com/articles/a"
	fetcher := &scriptedFetcher{pages: map[string]string{
		base:             articlePage(1, "同じ本文。"),
		base + "?page=2": articlePage(2, "同じ本文。"),
		base + "?page=3": articlePage(3, "絶対に読まない。"),
	}}
	a := newTestAssembler(t, fetcher)

	detail, err := a.Assemble(context.Background(), base)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if detail.Body != "同じ本文。" {
		t.Fatalf("expected the duplicate page to be dropped, got %q", detail.Body)
	}
	if len(fetcher.fetched) != 2 {
		t.Fatalf("expected the walk to stop after page 2, got %v", fetcher.fetched)
	}
}

// TestAssembleNoContent yields the unavailable sentinel when no page has
// article text.
func TestAssembleNoContent(t *testing.T) {
	t.Parallel()

	base := "https://example.com/articles/gone"
	fetcher := &scriptedFetcher{pages: map[string]string{
		base: `<html><body><div>お探しのページは見つかりませんでした</div></body></html>`,
	}}
	a := newTestAssembler(t, fetcher)

	detail, err := a.Assemble(context.Background(), base)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if detail.Body != pipeline.BodyUnavailable {
		t.Fatalf("expected %q, got %q", pipeline.BodyUnavailable, detail.Body)
	}
}

// TestAssembleFirstPageAbsent also yields the sentinel: attempted but gone.
func TestAssembleFirstPageAbsent(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{pages: map[string]string{}}
	a := newTestAssembler(t, fetcher)

	detail, err := a.Assemble(context.Background(), "https://example.com/articles/missing")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if detail.Body != pipeline.BodyUnavailable {
		t.Fatalf("expected %q, got %q", pipeline.BodyUnavailable, detail.Body)
	}
}

// TestAssembleFetchErrorPropagates keeps transport failures fatal: the caller
// decides whether to skip the record.
func TestAssembleFetchErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	a := newTestAssembler(t, fetchFunc(func(context.Context, string) ([]byte, error) {
		return nil, boom
	}))

	if _, err := a.Assemble(context.Background(), "https://example.com/articles/a"); !errors.Is(err, boom) {
		t.Fatalf("expected the transport error, got %v", err)
	}
}

type fetchFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// TestRefreshMeta reads only the first page.
func TestRefreshMeta(t *testing.T) {
	t.Parallel()

	base := "https://example.com/articles/a"
	fetcher := &scriptedFetcher{pages: map[string]string{
		base: articlePage(1, "本文。"),
	}}
	a := newTestAssembler(t, fetcher)

	detail, err := a.RefreshMeta(context.Background(), base)
	if err != nil {
		t.Fatalf("RefreshMeta: %v", err)
	}
	if detail.Body != "" {
		t.Fatalf("a meta refresh must not produce a body, got %q", detail.Body)
	}
	if detail.CommentCount == nil || *detail.CommentCount != 25 {
		t.Fatalf("expected comment count 25, got %v", detail.CommentCount)
	}
	if len(fetcher.fetched) != 1 {
		t.Fatalf("expected a single fetch, got %v", fetcher.fetched)
	}
}

// TestRefreshMetaAbsent treats a vanished article as no update, not an error.
func TestRefreshMetaAbsent(t *testing.T) {
	t.Parallel()

	a := newTestAssembler(t, &scriptedFetcher{pages: map[string]string{}})
	detail, err := a.RefreshMeta(context.Background(), "https://example.com/articles/gone")
	if err != nil {
		t.Fatalf("RefreshMeta: %v", err)
	}
	if detail.CommentCount != nil || detail.PostedAt != nil {
		t.Fatalf("expected an empty detail, got %+v", detail)
	}
}

// TestCollectComments walks comment pages until one repeats.
func TestCollectComments(t *testing.T) {
	t.Parallel()

	base := "https://example.com/articles/a"
	fetcher := &scriptedFetcher{pages: map[string]string{
		base + "/comments":        commentPage("c1", "c2"),
		base + "/comments?page=2": commentPage("c3"),
		// Page 3 redirects back onto page 1's content.
		base + "/comments?page=3": commentPage("c1", "c2"),
		base + "/comments?page=4": commentPage("c4"),
	}}
	a := newTestAssembler(t, fetcher)

	comments, err := a.CollectComments(context.Background(), base)
	if err != nil {
		t.Fatalf("CollectComments: %v", err)
	}
	want := []string{"c1", "c2", "c3"}
	if len(comments) != len(want) {
		t.Fatalf("expected %v, got %v", want, comments)
	}
	for i := range want {
		if comments[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, comments)
		}
	}
}

// TestCollectCommentsNone returns an empty slice when the article has no
// comment pages.
func TestCollectCommentsNone(t *testing.T) {
	t.Parallel()

	a := newTestAssembler(t, &scriptedFetcher{pages: map[string]string{}})
	comments, err := a.CollectComments(context.Background(), "https://example.com/articles/quiet")
	if err != nil {
		t.Fatalf("CollectComments: %v", err)
	}
	if len(comments) != 0 {
		t.Fatalf("expected no comments, got %v", comments)
	}
}
