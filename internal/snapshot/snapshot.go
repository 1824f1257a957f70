// Package snapshot archives raw fetched pages so extraction regressions can
// be replayed against the HTML that was actually seen.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCSArchiver writes page snapshots to a Google Cloud Storage bucket.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewGCSArchiver initializes the GCS client and verifies the bucket exists.
// Authentication comes from Application Default Credentials.
func NewGCSArchiver(ctx context.Context, bucket, prefix string, logger *zap.Logger) (*GCSArchiver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	// Fail fast on startup if the bucket is misconfigured.
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("failed to close GCS client after bucket check failure", zap.Error(cerr))
		}
		return nil, fmt.Errorf("get GCS bucket %q attributes: %w", bucket, err)
	}

	return &GCSArchiver{client: client, bucket: bucket, prefix: prefix, logger: logger}, nil
}

// Save uploads one fetched page. Object names hash the URL so the layout
// stays flat and filename-safe.
func (g *GCSArchiver) Save(ctx context.Context, url string, page int, content []byte) error {
	sum := sha256.Sum256([]byte(url))
	name := path.Join(g.prefix, hex.EncodeToString(sum[:]), fmt.Sprintf("page-%d.html", page))

	wc := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	wc.ContentType = "text/html; charset=utf-8"
	if _, err := wc.Write(content); err != nil {
		if cerr := wc.Close(); cerr != nil {
			g.logger.Warn("failed to close GCS writer after write failure", zap.Error(cerr))
		}
		return fmt.Errorf("write GCS object %s: %w", name, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close GCS writer for object %s: %w", name, err)
	}
	return nil
}

// Close releases the underlying client.
func (g *GCSArchiver) Close() error {
	return g.client.Close()
}

// Noop is used when snapshot archiving is disabled.
type Noop struct{}

func (Noop) Save(context.Context, string, int, []byte) error { return nil }
