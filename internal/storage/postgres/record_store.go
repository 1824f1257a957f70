package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/tkoide/newswatch/internal/pipeline"
)

// The articles table deliberately carries no unique constraint on url:
// dedup on append is the pipeline's responsibility, and a store already
// containing one URL twice must stay readable rather than fail a run.
const recordSchema = `
CREATE TABLE IF NOT EXISTS articles (
	position BIGINT GENERATED BY DEFAULT AS IDENTITY,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	posted_at TIMESTAMPTZ,
	posted_precision SMALLINT NOT NULL DEFAULT 0,
	source TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	comment_count INT,
	company_info TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	sentiment TEXT NOT NULL DEFAULT '',
	secondary_mention TEXT NOT NULL DEFAULT '',
	secondary_sentiment TEXT NOT NULL DEFAULT ''
)`

// RecordStore implements pipeline.RecordStore on Postgres. Each update
// touches only the columns of its stage so merges never clobber unrelated
// fields.
type RecordStore struct {
	pool db
}

// NewRecordStore constructs a store from an existing pool (pgxmock in tests).
func NewRecordStore(pool db) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RecordStore{pool: pool}, nil
}

// EnsureSchema creates the articles table when absent.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, recordSchema); err != nil {
		return fmt.Errorf("ensure articles schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// ReadAll returns every record in store order.
func (s *RecordStore) ReadAll(ctx context.Context) ([]pipeline.Record, error) {
	rows, err := s.pool.Query(ctx, `
SELECT url, title, posted_at, posted_precision, source, body, comment_count,
	company_info, category, sentiment, secondary_mention, secondary_sentiment
FROM articles
ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("read articles: %w", err)
	}
	defer rows.Close()

	var out []pipeline.Record
	for rows.Next() {
		var (
			rec       pipeline.Record
			postedAt  *time.Time
			precision int16
		)
		err := rows.Scan(
			&rec.URL, &rec.Title, &postedAt, &precision, &rec.Source, &rec.Body,
			&rec.CommentCount, &rec.CompanyInfo, &rec.Category, &rec.Sentiment,
			&rec.SecondaryMention, &rec.SecondarySentiment,
		)
		if err != nil {
			return nil, fmt.Errorf("scan article row: %w", err)
		}
		if postedAt != nil {
			rec.PostedAt = &pipeline.Timestamp{
				Time:      *postedAt,
				Precision: pipeline.Precision(precision),
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article rows: %w", err)
	}
	return out, nil
}

// Append inserts new rows. The store offers no dedup guarantee; callers
// dedup by URL first.
func (s *RecordStore) Append(ctx context.Context, recs []pipeline.Record) error {
	for _, rec := range recs {
		postedAt, precision := splitTimestamp(rec.PostedAt)
		_, err := s.pool.Exec(ctx, `
INSERT INTO articles (url, title, posted_at, posted_precision, source, body, comment_count,
	company_info, category, sentiment, secondary_mention, secondary_sentiment)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rec.URL, rec.Title, postedAt, precision, rec.Source, rec.Body, rec.CommentCount,
			rec.CompanyInfo, rec.Category, rec.Sentiment, rec.SecondaryMention, rec.SecondarySentiment,
		)
		if err != nil {
			return classifyWriteErr("append article", err)
		}
	}
	return nil
}

// UpdateDetail writes the detail-fetch outputs for all rows of the URL.
func (s *RecordStore) UpdateDetail(ctx context.Context, url, body string, commentCount *int, postedAt *pipeline.Timestamp) error {
	ts, precision := splitTimestamp(postedAt)
	var err error
	if ts != nil {
		_, err = s.pool.Exec(ctx, `
UPDATE articles SET body = $2, comment_count = $3, posted_at = $4, posted_precision = $5
WHERE url = $1`, url, body, commentCount, ts, precision)
	} else {
		_, err = s.pool.Exec(ctx, `
UPDATE articles SET body = $2, comment_count = $3
WHERE url = $1`, url, body, commentCount)
	}
	return classifyWriteErr("update detail", err)
}

// UpdateCommentCount refreshes only the comment count (and timestamp when a
// finer one was extracted).
func (s *RecordStore) UpdateCommentCount(ctx context.Context, url string, commentCount *int, postedAt *pipeline.Timestamp) error {
	ts, precision := splitTimestamp(postedAt)
	var err error
	if ts != nil {
		_, err = s.pool.Exec(ctx, `
UPDATE articles SET comment_count = $2, posted_at = $3, posted_precision = $4
WHERE url = $1`, url, commentCount, ts, precision)
	} else {
		_, err = s.pool.Exec(ctx, `
UPDATE articles SET comment_count = $2
WHERE url = $1`, url, commentCount)
	}
	return classifyWriteErr("update comment count", err)
}

// UpdatePrimary writes the primary classification fields.
func (s *RecordStore) UpdatePrimary(ctx context.Context, url, companyInfo, category, sentiment string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE articles SET company_info = $2, category = $3, sentiment = $4
WHERE url = $1`, url, companyInfo, category, sentiment)
	return classifyWriteErr("update primary classification", err)
}

// UpdateSecondary writes the tracked-entity classification fields.
func (s *RecordStore) UpdateSecondary(ctx context.Context, url, mention, sentiment string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE articles SET secondary_mention = $2, secondary_sentiment = $3
WHERE url = $1`, url, mention, sentiment)
	return classifyWriteErr("update secondary classification", err)
}

// SortByPostedAt reassigns row positions by posted time, newest first. Used
// once per run for presentation, not correctness.
func (s *RecordStore) SortByPostedAt(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
WITH ranked AS (
	SELECT position, ROW_NUMBER() OVER (ORDER BY posted_at DESC NULLS LAST, position) AS rn
	FROM articles
)
UPDATE articles a SET position = r.rn
FROM ranked r
WHERE a.position = r.position`)
	if err != nil {
		return fmt.Errorf("sort articles: %w", err)
	}
	return nil
}

func splitTimestamp(ts *pipeline.Timestamp) (*time.Time, int16) {
	if ts == nil {
		return nil, 0
	}
	t := ts.Time
	return &t, int16(ts.Precision)
}
