package pipeline

import (
	"strings"
	"time"
)

// Stage identifies one enrichment step.
type Stage int

// Enrichment stages, in the fixed execution order.
const (
	StageDetailFetch Stage = iota
	StagePrimaryClassify
	StageSecondaryClassify
	StageCommentCollect
)

// String returns the stage name used in logs and metrics.
func (s Stage) String() string {
	switch s {
	case StageDetailFetch:
		return "detail_fetch"
	case StagePrimaryClassify:
		return "primary_classify"
	case StageSecondaryClassify:
		return "secondary_classify"
	case StageCommentCollect:
		return "comment_collect"
	}
	return "unknown"
}

// StageSet is the set of stages pending for one record.
type StageSet map[Stage]bool

// Has reports whether the stage is pending.
func (s StageSet) Has(stage Stage) bool { return s[stage] }

// GateConfig holds the thresholds the gate evaluates against.
type GateConfig struct {
	// RefreshWindow is the trailing window within which recent articles get
	// their comment count re-checked even after the body is captured.
	RefreshWindow time.Duration

	// CommentThreshold is the comment count above which deep comment
	// collection triggers regardless of classification.
	CommentThreshold int

	// TrackedEntity is the domain subject receiving secondary treatment.
	TrackedEntity string

	// NegativeSentiment is the sentiment label that, combined with a
	// tracked-entity match, triggers deep comment collection.
	NegativeSentiment string
}

// PendingStages derives the set of stages that must run for a record from
// its current field values. It is a pure function; stage status is never
// persisted, so a stale status flag cannot disagree with the data.
func PendingStages(rec Record, hasComments bool, now time.Time, cfg GateConfig) StageSet {
	pending := StageSet{}

	if !rec.BodyAttempted() || withinWindow(rec.PostedAt, now, cfg.RefreshWindow) {
		pending[StageDetailFetch] = true
	}

	if rec.BodyCaptured() && anyEmpty(rec.CompanyInfo, rec.Category, rec.Sentiment) {
		pending[StagePrimaryClassify] = true
	}

	// Secondary classification reads the primary result to short-circuit
	// when the tracked entity is already the primary subject, so it waits
	// until the primary stage is done or about to be done in this pass.
	if rec.BodyCaptured() &&
		rec.SecondaryMention == "" && rec.SecondarySentiment == "" &&
		!pending[StagePrimaryClassify] {
		pending[StageSecondaryClassify] = true
	}

	if !hasComments && commentCollectDue(rec, cfg) {
		pending[StageCommentCollect] = true
	}

	return pending
}

// NoContentFill returns the record with every empty classification field set
// to MarkerNoContent, plus whether anything changed. It applies only to
// records whose body resolved to BodyUnavailable; such records never reach
// the classifier.
func NoContentFill(rec Record) (Record, bool) {
	if rec.Body != BodyUnavailable {
		return rec, false
	}
	changed := false
	fields := []*string{
		&rec.CompanyInfo, &rec.Category, &rec.Sentiment,
		&rec.SecondaryMention, &rec.SecondarySentiment,
	}
	for _, f := range fields {
		if *f == "" {
			*f = MarkerNoContent
			changed = true
		}
	}
	return rec, changed
}

// MatchesTrackedEntity reports whether the primary classification already
// names the tracked entity as the article's subject.
func MatchesTrackedEntity(companyInfo, entity string) bool {
	if entity == "" || companyInfo == "" {
		return false
	}
	return strings.Contains(companyInfo, entity)
}

func commentCollectDue(rec Record, cfg GateConfig) bool {
	if rec.CommentCount != nil && *rec.CommentCount > cfg.CommentThreshold {
		return true
	}
	return MatchesTrackedEntity(rec.CompanyInfo, cfg.TrackedEntity) &&
		strings.EqualFold(rec.Sentiment, cfg.NegativeSentiment)
}

// withinWindow checks the stored timestamp against the trailing refresh
// window. The highest-precision timestamp available is always the one
// stored, so the window is evaluated against it.
func withinWindow(ts *Timestamp, now time.Time, window time.Duration) bool {
	if ts == nil || window <= 0 {
		return false
	}
	age := now.Sub(ts.Time)
	return age >= 0 && age <= window
}

func anyEmpty(vals ...string) bool {
	for _, v := range vals {
		if v == "" {
			return true
		}
	}
	return false
}
