// Package extract isolates the markup-dependent scraping heuristics behind
// narrow functions so extraction-site fragility does not leak into the
// pipeline's control logic.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tkoide/newswatch/internal/pipeline"
)

// reactionDenylist drops UI reaction-button labels that the article body
// selector occasionally captures.
var reactionDenylist = map[string]struct{}{
	"そう思う":   {},
	"そう思わない": {},
	"学びがある":  {},
	"わかりやすい": {},
	"新しい視点":  {},
	"agree":    {},
	"disagree": {},
}

var (
	digitsExpr    = regexp.MustCompile(`\d+`)
	canonicalPage = regexp.MustCompile(`[?&]page=(\d+)`)
)

// ArticleText extracts the article body text of one detail page. Paragraph
// blocks are joined with newlines; denylisted reaction fragments are
// dropped. A structural miss yields an empty string, never an error.
func ArticleText(doc *goquery.Document) string {
	sel := doc.Find("div.article_body p")
	if sel.Length() == 0 {
		sel = doc.Find("article p")
	}
	var blocks []string
	sel.Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if text == "" {
			return
		}
		if _, denied := reactionDenylist[strings.ToLower(text)]; denied {
			return
		}
		blocks = append(blocks, text)
	})
	return strings.Join(blocks, "\n")
}

// PageIndicator reports which page the resolved content actually represents.
// Requesting page N of a short article redirects to page 1, so the caller
// compares this against the requested index. Falls back to 1 when the
// markup carries no pagination hint.
func PageIndicator(doc *goquery.Document) int {
	if cur := strings.TrimSpace(doc.Find("li.pagination_item--current").First().Text()); cur != "" {
		if n, err := strconv.Atoi(cur); err == nil && n > 0 {
			return n
		}
	}
	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		if m := canonicalPage.FindStringSubmatch(href); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 1
}

// CommentCount extracts the comment counter from a detail page. Returns nil
// when the page has no counter; no magic value is used for "not found".
func CommentCount(doc *goquery.Document) *int {
	var count *int
	doc.Find(`a[href*="/comments"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		m := digitsExpr.FindString(strings.ReplaceAll(a.Text(), ",", ""))
		if m == "" {
			return true
		}
		if n, err := strconv.Atoi(m); err == nil {
			count = &n
			return false
		}
		return true
	})
	return count
}

// PostedAt extracts the fine-grained posted timestamp from a detail page.
// Detail pages are authoritative, so a parsed value is marked Exact.
func PostedAt(doc *goquery.Document, now time.Time) *pipeline.Timestamp {
	raw := strings.TrimSpace(doc.Find("article time").First().Text())
	if raw == "" {
		raw = strings.TrimSpace(doc.Find("time").First().Text())
	}
	ts := pipeline.ParsePostedAt(raw, now)
	if ts == nil {
		return nil
	}
	ts.Precision = pipeline.PrecisionExact
	return ts
}

// Comments extracts the comment bodies of one comment page.
func Comments(doc *goquery.Document) []string {
	var out []string
	doc.Find("div.comment-item p.comment-body").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if text == "" {
			return
		}
		if _, denied := reactionDenylist[strings.ToLower(text)]; denied {
			return
		}
		out = append(out, text)
	})
	return out
}
