package pipeline

import "testing"

// TestCanonicalURL covers query/fragment stripping and trailing-slash
// normalization.
func TestCanonicalURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{"https://news.yahoo.co.jp/articles/abc123", "https://news.yahoo.co.jp/articles/abc123"},
		{"https://news.yahoo.co.jp/articles/abc123?source=rss&page=1", "https://news.yahoo.co.jp/articles/abc123"},
		{"https://news.yahoo.co.jp/articles/abc123#comments", "https://news.yahoo.co.jp/articles/abc123"},
		{"https://news.yahoo.co.jp/articles/abc123/", "https://news.yahoo.co.jp/articles/abc123"},
		{"  https://news.yahoo.co.jp/articles/abc123  ", "https://news.yahoo.co.jp/articles/abc123"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := CanonicalURL(tc.raw); got != tc.want {
			t.Fatalf("CanonicalURL(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

// TestCanonicalURLStableKey confirms tracking-parameter variants of one
// article canonicalize to the same key.
func TestCanonicalURLStableKey(t *testing.T) {
	t.Parallel()

	a := CanonicalURL("https://news.yahoo.co.jp/articles/abc123?utm_source=x")
	b := CanonicalURL("https://news.yahoo.co.jp/articles/abc123?ref=top#body")
	if a != b {
		t.Fatalf("expected identical keys, got %q and %q", a, b)
	}
}
