package gemini

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/tkoide/newswatch/internal/pipeline"
)

// TestTruncateByRunes checks truncation counts characters, not bytes, so
// multibyte article text is never cut mid-rune.
func TestTruncateByRunes(t *testing.T) {
	t.Parallel()

	c := &Classifier{cfg: Config{MaxChars: 3}}
	if got := c.truncate("あいうえお"); got != "あいう" {
		t.Fatalf("truncate = %q, want %q", got, "あいう")
	}
	if got := c.truncate("ab"); got != "ab" {
		t.Fatalf("short input must pass through, got %q", got)
	}
}

// TestParseFields decodes plain and fenced JSON payloads.
func TestParseFields(t *testing.T) {
	t.Parallel()

	fields := parseFields(`{"company_info":"A社","category":"経済","sentiment":"中立"}`)
	if fields["company_info"] != "A社" {
		t.Fatalf("unexpected fields: %v", fields)
	}

	fenced := "```json\n{\"mention\":\"あり\",\"sentiment\":\"ネガティブ\"}\n```"
	fields = parseFields(fenced)
	if fields["mention"] != "あり" || fields["sentiment"] != "ネガティブ" {
		t.Fatalf("fenced payload not decoded: %v", fields)
	}

	if fields := parseFields("not json at all"); fields != nil {
		t.Fatalf("expected nil for undecodable output, got %v", fields)
	}
}

// TestFieldOrMissingMarker fills omitted fields with the marker.
func TestFieldOrMissingMarker(t *testing.T) {
	t.Parallel()

	fields := map[string]string{"category": "経済", "sentiment": "  "}
	if got := fieldOr(fields, "category"); got != "経済" {
		t.Fatalf("present field: got %q", got)
	}
	if got := fieldOr(fields, "company_info"); got != pipeline.MarkerMissing {
		t.Fatalf("absent field: got %q, want marker", got)
	}
	if got := fieldOr(fields, "sentiment"); got != pipeline.MarkerMissing {
		t.Fatalf("blank field: got %q, want marker", got)
	}
	if got := fieldOr(nil, "anything"); got != pipeline.MarkerMissing {
		t.Fatalf("nil map: got %q, want marker", got)
	}
}

// TestCleanMarkdownFences covers the fence variants seen in model output.
func TestCleanMarkdownFences(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{`{"a":"b"}`, `{"a":"b"}`},
		{"```json\n{\"a\":\"b\"}\n```", `{"a":"b"}`},
		{"```\n{\"a\":\"b\"}\n```", `{"a":"b"}`},
		{"  ```json\n{\"a\":\"b\"}\n```  ", `{"a":"b"}`},
	}
	for _, tc := range cases {
		if got := cleanMarkdownFences(tc.in); got != tc.want {
			t.Fatalf("cleanMarkdownFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// TestIsQuotaExhausted distinguishes quota errors from other API failures.
func TestIsQuotaExhausted(t *testing.T) {
	t.Parallel()

	if !isQuotaExhausted(genai.APIError{Code: 429, Message: "rate limited"}) {
		t.Fatal("HTTP 429 must classify as quota exhaustion")
	}
	if !isQuotaExhausted(genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED"}) {
		t.Fatal("RESOURCE_EXHAUSTED status must classify as quota exhaustion")
	}
	if isQuotaExhausted(genai.APIError{Code: 500, Status: "INTERNAL"}) {
		t.Fatal("a server error is not quota exhaustion")
	}
	if isQuotaExhausted(errors.New("dial tcp: timeout")) {
		t.Fatal("a transport error is not quota exhaustion")
	}
	wrapped := fmt.Errorf("generate: %w", genai.APIError{Code: 429})
	if !isQuotaExhausted(wrapped) {
		t.Fatal("wrapped API errors must still classify")
	}
}

// TestPromptComposition spot-checks the instruction templates carry the
// entity and the article text.
func TestPromptComposition(t *testing.T) {
	t.Parallel()

	p := primaryPrompt("記事本文です。")
	if !strings.Contains(p, "記事本文です。") {
		t.Fatal("primary prompt must embed the article text")
	}

	s := secondaryPrompt("トラック社", "記事本文です。")
	if !strings.Contains(s, "トラック社") {
		t.Fatal("secondary prompt must embed the tracked entity")
	}
	if !strings.Contains(s, "記事本文です。") {
		t.Fatal("secondary prompt must embed the article text")
	}
}

// TestSchemasDeclareRequiredFields ensures the fixed output schemas name
// every field the parser expects.
func TestSchemasDeclareRequiredFields(t *testing.T) {
	t.Parallel()

	p := primarySchema()
	for _, key := range []string{"company_info", "category", "sentiment"} {
		if _, ok := p.Properties[key]; !ok {
			t.Fatalf("primary schema missing %q", key)
		}
	}

	s := secondarySchema()
	for _, key := range []string{"mention", "sentiment"} {
		if _, ok := s.Properties[key]; !ok {
			t.Fatalf("secondary schema missing %q", key)
		}
	}
}
