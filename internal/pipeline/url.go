package pipeline

import (
	"net/url"
	"strings"
)

// CanonicalURL strips query parameters and fragments so the same article
// reached via different tracking parameters dedupes to one key. Invalid
// input is returned trimmed but otherwise verbatim.
func CanonicalURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/")
}
