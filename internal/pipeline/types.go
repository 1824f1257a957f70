// Package pipeline defines the core types and orchestration logic for the
// incremental article enrichment pipeline.
package pipeline

import (
	"time"
)

// Sentinel field values persisted in the record store. BodyUnavailable marks
// an article whose detail pages were fetched but yielded no content; an empty
// body string means the fetch was never attempted. The two states are never
// conflated.
const (
	BodyUnavailable = "BODY_UNAVAILABLE"

	// MarkerNoContent fills every classification field of a record whose
	// body resolved to BodyUnavailable, without spending classifier quota.
	MarkerNoContent = "NO_CONTENT"

	// MarkerNotApplicable fills the secondary fields when the primary
	// classification already names the tracked entity.
	MarkerNotApplicable = "N/A"

	// MarkerError fills a classification field after classifier retries are
	// exhausted; a later run will not re-attempt it.
	MarkerError = "ERROR"

	// MarkerMissing fills a single field the classifier response omitted.
	MarkerMissing = "N/A"
)

// CommentChunkSize is the number of comments stored per comment-bundle row.
const CommentChunkSize = 10

// Precision describes how a posted-at timestamp was obtained.
type Precision int

// Timestamp precision levels. Coarse values come from search listings (date
// plus rough time), Exact values from the article detail page.
const (
	PrecisionCoarse Precision = iota
	PrecisionExact
)

// Timestamp is a posted-at value with its provenance. An Exact value is never
// overwritten by a Coarse re-derivation.
type Timestamp struct {
	Time      time.Time
	Precision Precision
}

// MergeTimestamp applies the non-regression rule: an incoming timestamp
// replaces the current one only if the current one is absent or the incoming
// value is at least as precise.
func MergeTimestamp(current, incoming *Timestamp) *Timestamp {
	if incoming == nil {
		return current
	}
	if current == nil || incoming.Precision >= current.Precision {
		return incoming
	}
	return current
}

// Record is one article row, keyed by canonical URL. It is created the first
// time a URL is seen in a search result, mutated in place by each enrichment
// stage, and never deleted.
type Record struct {
	URL      string
	Title    string
	PostedAt *Timestamp
	Source   string

	// Body is "" until a detail fetch is attempted, the article text once
	// captured, or BodyUnavailable when the fetch confirmed no content.
	Body string

	// CommentCount is nil until a count has been extracted. A fetch that
	// found no counter leaves it nil; no magic negative value is stored.
	CommentCount *int

	CompanyInfo string
	Category    string
	Sentiment   string

	SecondaryMention   string
	SecondarySentiment string
}

// BodyCaptured reports whether the record has usable article text.
func (r Record) BodyCaptured() bool {
	return r.Body != "" && r.Body != BodyUnavailable
}

// BodyAttempted reports whether a detail fetch has ever completed, whether or
// not it found content.
func (r Record) BodyAttempted() bool {
	return r.Body != ""
}

// RawEntry is one tuple produced by the search provider for a keyword.
type RawEntry struct {
	Title        string
	URL          string
	RawTimestamp string
	Source       string
	CommentCount *int
}

// Detail is the output of a full pagination walk over one article.
type Detail struct {
	Body         string
	CommentCount *int
	PostedAt     *Timestamp
}

// RunSummary aggregates one pipeline pass for logging and publication.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	RecordsSeen    int       `json:"records_seen"`
	RecordsAdded   int       `json:"records_added"`
	DetailFetches  int       `json:"detail_fetches"`
	Classified     int       `json:"classified"`
	SecondaryRuns  int       `json:"secondary_runs"`
	CommentBundles int       `json:"comment_bundles"`
	Skipped        int       `json:"skipped"`
	Aborted        string    `json:"aborted,omitempty"`
}
