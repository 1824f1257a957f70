// Package gemini implements pipeline.Classifier on the Gemini API with fixed
// JSON output schemas, bounded retries, and quota-exhaustion escalation.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/tkoide/newswatch/internal/metrics"
	"github.com/tkoide/newswatch/internal/pipeline"
)

// Config controls the classifier.
type Config struct {
	APIKey string

	// SecondaryAPIKey, when set, is switched to after RotateAfter requests
	// in one run. The switch is one-directional.
	SecondaryAPIKey string
	RotateAfter     int

	Model      string
	MaxChars   int
	MaxRetries int
	RetryDelay time.Duration

	// TrackedEntity parameterizes the secondary instruction template.
	TrackedEntity string
}

// Classifier invokes Gemini with composed instruction templates. It carries
// run-scoped state (request count, rotation flag); construct one per run.
type Classifier struct {
	cfg      Config
	client   *genai.Client
	logger   *zap.Logger
	requests int
	rotated  bool
}

// New constructs a Classifier and its underlying client.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Classifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 15000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := newClient(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg, client: client, logger: logger}, nil
}

// ClassifyPrimary determines the subject company, category, and sentiment of
// the article text.
func (c *Classifier) ClassifyPrimary(ctx context.Context, text string) (pipeline.PrimaryResult, error) {
	raw, err := c.generate(ctx, "primary", primaryPrompt(c.truncate(text)), primarySchema())
	if err != nil {
		return pipeline.PrimaryResult{}, err
	}
	fields := parseFields(raw)
	return pipeline.PrimaryResult{
		CompanyInfo: fieldOr(fields, "company_info"),
		Category:    fieldOr(fields, "category"),
		Sentiment:   fieldOr(fields, "sentiment"),
	}, nil
}

// ClassifySecondary extracts tracked-entity mentions and negative context
// from an article whose primary subject is a different company.
func (c *Classifier) ClassifySecondary(ctx context.Context, text string) (pipeline.SecondaryResult, error) {
	raw, err := c.generate(ctx, "secondary", secondaryPrompt(c.cfg.TrackedEntity, c.truncate(text)), secondarySchema())
	if err != nil {
		return pipeline.SecondaryResult{}, err
	}
	fields := parseFields(raw)
	return pipeline.SecondaryResult{
		Mention:   fieldOr(fields, "mention"),
		Sentiment: fieldOr(fields, "sentiment"),
	}, nil
}

// generate runs one schema-constrained generation with retries. Quota
// exhaustion is surfaced immediately as pipeline.ErrQuotaExhausted so the
// caller can abort the run instead of burning the remaining allowance.
func (c *Classifier) generate(ctx context.Context, kind, prompt string, schema *genai.Schema) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{genai.NewPartFromText(prompt)},
		},
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
		Temperature:      genai.Ptr(float32(0.2)),
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(c.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}

		if err := c.maybeRotate(ctx); err != nil {
			return "", err
		}
		c.requests++
		metrics.RecordClassifierRequest(kind)

		resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
		if err != nil {
			if isQuotaExhausted(err) {
				metrics.RecordClassifierFailure(kind, "quota")
				return "", fmt.Errorf("%w: %s", pipeline.ErrQuotaExhausted, err)
			}
			metrics.RecordClassifierFailure(kind, "transient")
			lastErr = err
			c.logger.Warn("classifier call failed", zap.String("kind", kind), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		text := strings.TrimSpace(resp.Text())
		if text == "" {
			lastErr = fmt.Errorf("empty response")
			continue
		}
		return text, nil
	}
	return "", fmt.Errorf("classifier %s failed after %d attempts: %w", kind, c.cfg.MaxRetries, lastErr)
}

// maybeRotate performs the one-directional switch to the secondary
// credential once the request threshold is crossed.
func (c *Classifier) maybeRotate(ctx context.Context) error {
	if c.rotated || c.cfg.SecondaryAPIKey == "" || c.cfg.RotateAfter <= 0 {
		return nil
	}
	if c.requests < c.cfg.RotateAfter {
		return nil
	}
	client, err := newClient(ctx, c.cfg.SecondaryAPIKey)
	if err != nil {
		return fmt.Errorf("rotate classifier credential: %w", err)
	}
	c.client = client
	c.rotated = true
	metrics.RecordKeyRotation()
	c.logger.Info("classifier credential rotated", zap.Int("requests", c.requests))
	return nil
}

// Rotated reports whether the secondary credential is in use.
func (c *Classifier) Rotated() bool { return c.rotated }

func (c *Classifier) truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= c.cfg.MaxChars {
		return text
	}
	return string(runes[:c.cfg.MaxChars])
}

func newClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

func isQuotaExhausted(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED"
	}
	return false
}

// parseFields decodes the structured response, tolerating markdown fences
// some model revisions wrap around JSON output.
func parseFields(raw string) map[string]string {
	cleaned := cleanMarkdownFences(raw)
	var fields map[string]string
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil
	}
	return fields
}

// fieldOr fills a missing expected field with the marker instead of failing
// the whole call; partial structured output beats a discarded call.
func fieldOr(fields map[string]string, key string) string {
	if v := strings.TrimSpace(fields[key]); v != "" {
		return v
	}
	return pipeline.MarkerMissing
}

func cleanMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
