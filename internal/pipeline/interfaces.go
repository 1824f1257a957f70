package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrAbsent signals that a fetched resource definitively does not exist
// (not-found, or retries exhausted). Callers treat it as end-of-content,
// never as a fatal error.
var ErrAbsent = errors.New("resource absent")

// ErrQuotaExhausted signals that the classifier's usage allowance is spent.
// It is never retried; the run aborts immediately so remaining quota is not
// burned on failures.
var ErrQuotaExhausted = errors.New("classifier quota exhausted")

// ErrStoreRetryable wraps server-side store errors worth retrying with a
// longer backoff. Any other store write error is logged and the record is
// skipped for the rest of the run.
var ErrStoreRetryable = errors.New("retryable store error")

// PageFetcher fetches a single network resource with bounded retry/backoff.
// A definitive missing page is reported as ErrAbsent.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Assembler walks the paginated detail pages of one article.
type Assembler interface {
	// Assemble produces the full body text, comment count, and exact posted
	// timestamp for a canonical article URL.
	Assemble(ctx context.Context, url string) (Detail, error)

	// RefreshMeta re-reads only the first page for the comment count and
	// timestamp, skipping the expensive full pagination walk.
	RefreshMeta(ctx context.Context, url string) (Detail, error)

	// CollectComments walks the article's comment pages and returns the
	// flattened comment texts.
	CollectComments(ctx context.Context, url string) ([]string, error)
}

// PrimaryResult is the fixed output schema of the primary classification.
type PrimaryResult struct {
	CompanyInfo string
	Category    string
	Sentiment   string
}

// SecondaryResult is the fixed output schema of the tracked-entity
// classification.
type SecondaryResult struct {
	Mention   string
	Sentiment string
}

// Classifier invokes the external classification service. Both methods
// return ErrQuotaExhausted (possibly wrapped) when the allowance is spent;
// any other error means retries were exhausted on transient failures.
type Classifier interface {
	ClassifyPrimary(ctx context.Context, text string) (PrimaryResult, error)
	ClassifySecondary(ctx context.Context, text string) (SecondaryResult, error)
}

// RecordStore abstracts the tabular store holding article rows. The store
// itself guarantees no dedup on append; dedup by URL is the pipeline's
// responsibility. Updates touch only the columns named by the method so a
// stage merge never clobbers unrelated fields.
type RecordStore interface {
	ReadAll(ctx context.Context) ([]Record, error)
	Append(ctx context.Context, recs []Record) error
	UpdateDetail(ctx context.Context, url, body string, commentCount *int, postedAt *Timestamp) error
	UpdateCommentCount(ctx context.Context, url string, commentCount *int, postedAt *Timestamp) error
	UpdatePrimary(ctx context.Context, url, companyInfo, category, sentiment string) error
	UpdateSecondary(ctx context.Context, url, mention, sentiment string) error
	// SortByPostedAt reorders rows for presentation, best effort.
	SortByPostedAt(ctx context.Context) error
}

// CommentStore holds collected comments, chunked and append-only, keyed by
// the same URL as the record rows.
type CommentStore interface {
	// URLs returns the set of article URLs that already have a bundle.
	URLs(ctx context.Context) (map[string]bool, error)
	Append(ctx context.Context, url string, comments []string) error
}

// SearchProvider turns a keyword into raw article tuples. The pipeline only
// relies on URL being a stable identity key.
type SearchProvider interface {
	Search(ctx context.Context, keyword string) ([]RawEntry, error)
}

// Snapshotter archives raw fetched pages out of band. Failures are logged
// and ignored.
type Snapshotter interface {
	Save(ctx context.Context, url string, page int, content []byte) error
}

// Publisher emits the run summary to an external topic.
type Publisher interface {
	Publish(ctx context.Context, summary RunSummary) (string, error)
}

// Clock abstracts time.Now for the gate's trailing-window checks.
type Clock interface {
	Now() time.Time
}
