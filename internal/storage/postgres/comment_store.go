package postgres

import (
	"context"
	"fmt"

	"github.com/tkoide/newswatch/internal/pipeline"
)

const commentSchema = `
CREATE TABLE IF NOT EXISTS article_comments (
	url TEXT NOT NULL,
	chunk_index INT NOT NULL,
	comments TEXT[] NOT NULL,
	PRIMARY KEY (url, chunk_index)
)`

// CommentStore implements pipeline.CommentStore. Bundles are chunked into
// groups of pipeline.CommentChunkSize and never rewritten once appended;
// they live apart from the article rows to keep the hot path narrow.
type CommentStore struct {
	pool db
}

// NewCommentStore constructs a store from an existing pool.
func NewCommentStore(pool db) (*CommentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CommentStore{pool: pool}, nil
}

// EnsureSchema creates the comments table when absent.
func (s *CommentStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, commentSchema); err != nil {
		return fmt.Errorf("ensure comments schema: %w", err)
	}
	return nil
}

// URLs returns the set of article URLs that already have a bundle.
func (s *CommentStore) URLs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT url FROM article_comments`)
	if err != nil {
		return nil, fmt.Errorf("read comment urls: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan comment url: %w", err)
		}
		out[url] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comment urls: %w", err)
	}
	return out, nil
}

// Append chunks the comments and inserts them after any existing chunks for
// the URL.
func (s *CommentStore) Append(ctx context.Context, url string, comments []string) error {
	if len(comments) == 0 {
		return nil
	}
	var next int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(chunk_index) + 1, 0) FROM article_comments WHERE url = $1`, url,
	).Scan(&next)
	if err != nil {
		return classifyWriteErr("next comment chunk", err)
	}

	for start := 0; start < len(comments); start += pipeline.CommentChunkSize {
		end := start + pipeline.CommentChunkSize
		if end > len(comments) {
			end = len(comments)
		}
		_, err := s.pool.Exec(ctx,
			`INSERT INTO article_comments (url, chunk_index, comments) VALUES ($1, $2, $3)`,
			url, next, comments[start:end],
		)
		if err != nil {
			return classifyWriteErr("append comment chunk", err)
		}
		next++
	}
	return nil
}
