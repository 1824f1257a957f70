package headless

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tkoide/newswatch/internal/pipeline"
)

var digitsRe = regexp.MustCompile(`\d+`)

// ParseResults extracts the article tuples from a rendered search results
// page. Class names on the result tiles carry styled-components hashes, so
// matching goes by the stable prefixes.
func ParseResults(html string) ([]pipeline.RawEntry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var entries []pipeline.RawEntry
	doc.Find(`li[class*="sc-1u4589e-0"]`).Each(func(_ int, item *goquery.Selection) {
		link := item.Find(`a[href^="https://news.yahoo.co.jp/articles/"]`).First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}

		entry := pipeline.RawEntry{URL: href}
		entry.Title = strings.TrimSpace(item.Find(`div[class*="sc-3ls169-0"]`).First().Text())
		if entry.Title == "" {
			entry.Title = strings.TrimSpace(link.Text())
		}
		entry.RawTimestamp = strings.TrimSpace(item.Find("time").First().Text())
		entry.Source = parseSource(item)
		entry.CommentCount = parseCommentBadge(item)

		entries = append(entries, entry)
	})
	return entries, nil
}

// parseSource pulls the publisher name out of the meta container, dropping
// the timestamp and comment badge text that share it.
func parseSource(item *goquery.Selection) string {
	meta := item.Find(`div[class*="sc-n3vj8g-0"]`).First()
	if meta.Length() == 0 {
		return ""
	}
	text := strings.TrimSpace(meta.Text())
	if t := strings.TrimSpace(meta.Find("time").First().Text()); t != "" {
		text = strings.Replace(text, t, "", 1)
	}
	for _, seg := range strings.Split(text, "\n") {
		seg = strings.TrimSpace(seg)
		if seg == "" || strings.Contains(seg, "件") {
			continue
		}
		return seg
	}
	return strings.TrimSpace(text)
}

// parseCommentBadge reads the "N件" comment counter if the tile shows one.
func parseCommentBadge(item *goquery.Selection) *int {
	var found *int
	item.Find("span, div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if !strings.HasSuffix(text, "件") || sel.Children().Length() > 0 {
			return true
		}
		m := digitsRe.FindString(text)
		if m == "" {
			return true
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			return true
		}
		found = &n
		return false
	})
	return found
}
