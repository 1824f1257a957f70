// Package config loads and validates service configuration via Viper.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Search    SearchConfig    `mapstructure:"search"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Ops       OpsConfig       `mapstructure:"ops"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StoreConfig controls access to the article database.
type StoreConfig struct {
	DSN          string `mapstructure:"dsn"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// SearchConfig governs keyword search ingestion.
type SearchConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	URLTemplate  string   `mapstructure:"url_template"`
	WaitSelector string   `mapstructure:"wait_selector"`
	KeywordsFile string   `mapstructure:"keywords_file"`
	Keywords     []string `mapstructure:"keywords"`
}

// PipelineConfig governs enrichment behavior.
type PipelineConfig struct {
	MaxPages           int    `mapstructure:"max_pages"`
	CommentPageLimit   int    `mapstructure:"comment_page_limit"`
	CommentThreshold   int    `mapstructure:"comment_threshold"`
	RefreshWindowHours int    `mapstructure:"refresh_window_hours"`
	TrackedEntity      string `mapstructure:"tracked_entity"`
	NegativeSentiment  string `mapstructure:"negative_sentiment"`
	DelayMs            int    `mapstructure:"delay_ms"`
	JitterMs           int    `mapstructure:"jitter_ms"`
}

// HTTPConfig configures fetch retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	UserAgent        string `mapstructure:"user_agent"`
}

// GeminiConfig configures the classification model client.
type GeminiConfig struct {
	APIKey            string `mapstructure:"api_key"`
	SecondaryAPIKey   string `mapstructure:"secondary_api_key"`
	Model             string `mapstructure:"model"`
	MaxChars          int    `mapstructure:"max_chars"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds"`
	RotateAfter       int    `mapstructure:"rotate_after"`
}

// SnapshotsConfig sets the page archive destination. Empty bucket disables
// archiving.
type SnapshotsConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds the run-summary notification topic. Empty project
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// OpsConfig controls the operational HTTP server.
type OpsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.ensure_schema", true)
	v.SetDefault("search.enabled", true)
	v.SetDefault("search.url_template", "https://news.yahoo.co.jp/search?p=%s&ei=utf-8")
	v.SetDefault("search.wait_selector", `li[class*="sc-1u4589e-0"]`)
	v.SetDefault("pipeline.max_pages", 10)
	v.SetDefault("pipeline.comment_page_limit", 10)
	v.SetDefault("pipeline.comment_threshold", 100)
	v.SetDefault("pipeline.refresh_window_hours", 72)
	v.SetDefault("pipeline.negative_sentiment", "ネガティブ")
	v.SetDefault("pipeline.delay_ms", 2000)
	v.SetDefault("pipeline.jitter_ms", 1000)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 8000)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.max_chars", 15000)
	v.SetDefault("gemini.max_retries", 3)
	v.SetDefault("gemini.retry_delay_seconds", 2)
	v.SetDefault("gemini.rotate_after", 0)
	v.SetDefault("snapshots.prefix", "pages")
	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn must be set")
	}
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key must be set")
	}
	if c.Pipeline.TrackedEntity == "" {
		return fmt.Errorf("pipeline.tracked_entity must be set")
	}
	if c.Pipeline.MaxPages <= 0 {
		return fmt.Errorf("pipeline.max_pages must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Search.Enabled && c.Search.URLTemplate == "" {
		return fmt.Errorf("search.url_template must be set when search is enabled")
	}
	if c.Ops.Enabled && c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0 when ops server is enabled")
	}
	return nil
}

// RefreshWindow converts the refresh window config into a duration.
func (c Config) RefreshWindow() time.Duration {
	return time.Duration(c.Pipeline.RefreshWindowHours) * time.Hour
}

// LoadKeywords merges inline keywords with a keywords file. Blank lines and
// lines starting with "#" are skipped.
func (c SearchConfig) LoadKeywords() ([]string, error) {
	keywords := make([]string, 0, len(c.Keywords))
	seen := make(map[string]bool)
	for _, kw := range c.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
	}

	if c.KeywordsFile == "" {
		return keywords, nil
	}
	f, err := os.Open(c.KeywordsFile)
	if err != nil {
		return nil, fmt.Errorf("open keywords file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		keywords = append(keywords, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read keywords file: %w", err)
	}
	return keywords, nil
}
