package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tkoide/newswatch/internal/assembler"
	"github.com/tkoide/newswatch/internal/classifier/gemini"
	"github.com/tkoide/newswatch/internal/clock/system"
	collyfetcher "github.com/tkoide/newswatch/internal/fetcher/colly"
	"github.com/tkoide/newswatch/internal/metrics"
	"github.com/tkoide/newswatch/internal/ops"
	"github.com/tkoide/newswatch/internal/pipeline"
	"github.com/tkoide/newswatch/internal/progress"
	"github.com/tkoide/newswatch/internal/progress/sinks"
	pubsubpub "github.com/tkoide/newswatch/internal/publisher/pubsub"
	"github.com/tkoide/newswatch/internal/search/headless"
	"github.com/tkoide/newswatch/internal/snapshot"
	"github.com/tkoide/newswatch/internal/storage/postgres"
)

// newRunCmd creates the 'run' subcommand, which executes one full
// enrichment pass and exits.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Executes one enrichment pass over the article store",
		Long: `Performs a single pipeline pass: search ingestion, detail fetch,
classification, and comment collection for every record with pending
stages, then publishes a run summary. Designed to be invoked on a
schedule.`,
		RunE: runPipeline,
	}
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	// Storage.
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: cfg.Store.DSN})
	if err != nil {
		return err
	}
	defer pool.Close()

	recordStore, err := postgres.NewRecordStore(pool)
	if err != nil {
		return err
	}
	commentStore, err := postgres.NewCommentStore(pool)
	if err != nil {
		return err
	}
	if cfg.Store.EnsureSchema {
		if err := recordStore.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := commentStore.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	// Page snapshots.
	var snap pipeline.Snapshotter = snapshot.Noop{}
	if cfg.Snapshots.GCSBucket != "" {
		archiver, err := snapshot.NewGCSArchiver(ctx, cfg.Snapshots.GCSBucket, cfg.Snapshots.Prefix, logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := archiver.Close(); cerr != nil {
				logger.Warn("failed to close snapshot archiver", zap.Error(cerr))
			}
		}()
		snap = archiver
	}

	// Fetch and assembly.
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.HTTP.UserAgent,
		Timeout:     time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		MaxRetries:  cfg.HTTP.MaxRetries,
		BackoffBase: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
	}, logger)

	clk := system.New()
	asm, err := assembler.New(assembler.Config{
		MaxPages:        cfg.Pipeline.MaxPages,
		MaxCommentPages: cfg.Pipeline.CommentPageLimit,
	}, fetcher, snap, clk, logger)
	if err != nil {
		return err
	}

	// Classification.
	classifier, err := gemini.New(ctx, gemini.Config{
		APIKey:          cfg.Gemini.APIKey,
		SecondaryAPIKey: cfg.Gemini.SecondaryAPIKey,
		RotateAfter:     cfg.Gemini.RotateAfter,
		Model:           cfg.Gemini.Model,
		MaxChars:        cfg.Gemini.MaxChars,
		MaxRetries:      cfg.Gemini.MaxRetries,
		RetryDelay:      time.Duration(cfg.Gemini.RetryDelaySeconds) * time.Second,
		TrackedEntity:   cfg.Pipeline.TrackedEntity,
	}, logger)
	if err != nil {
		return err
	}

	// Search ingestion.
	var search pipeline.SearchProvider
	var keywords []string
	if cfg.Search.Enabled {
		keywords, err = cfg.Search.LoadKeywords()
		if err != nil {
			return err
		}
		provider, err := headless.New(headless.Config{
			SearchURL:    cfg.Search.URLTemplate,
			WaitSelector: cfg.Search.WaitSelector,
			UserAgent:    cfg.HTTP.UserAgent,
		}, logger)
		if err != nil {
			return err
		}
		defer provider.Close()
		search = provider
	}

	// Run-summary notifications.
	var publisher pipeline.Publisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.Topic != "" {
		pub, err := pubsubpub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := pub.Close(); cerr != nil {
				logger.Warn("failed to close pubsub publisher", zap.Error(cerr))
			}
		}()
		publisher = pub
	}

	// Progress fan-out.
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	snapSink := sinks.NewSnapshotSink()
	tracker := progress.NewTracker(logger, sinks.NewLogSink(logger), promSink, snapSink)
	defer tracker.Close(context.Background())

	// Operational HTTP surface.
	if cfg.Ops.Enabled {
		srv := ops.NewServer(cfg.Ops.Port, snapSink, logger)
		go func() {
			if serr := srv.Start(); serr != nil {
				logger.Error("ops server failed", zap.Error(serr))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				logger.Warn("ops server shutdown failed", zap.Error(serr))
			}
		}()
	}

	runner, err := pipeline.NewRunner(pipeline.RunnerConfig{
		Keywords: keywords,
		Gate: pipeline.GateConfig{
			RefreshWindow:     cfg.RefreshWindow(),
			CommentThreshold:  cfg.Pipeline.CommentThreshold,
			TrackedEntity:     cfg.Pipeline.TrackedEntity,
			NegativeSentiment: cfg.Pipeline.NegativeSentiment,
		},
	}, pipeline.RunnerDeps{
		Store:      recordStore,
		Comments:   commentStore,
		Assembler:  asm,
		Classifier: classifier,
		Search:     search,
		Publisher:  publisher,
		Pacer: pipeline.NewPacer(
			time.Duration(cfg.Pipeline.DelayMs)*time.Millisecond,
			time.Duration(cfg.Pipeline.JitterMs)*time.Millisecond,
		),
		Clock:   clk,
		Tracker: tracker,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		if errors.Is(err, pipeline.ErrQuotaExhausted) {
			logger.Error("run aborted on model quota exhaustion; completed stage writes are preserved",
				zap.String("run_id", summary.RunID))
		}
		return fmt.Errorf("pipeline run: %w", err)
	}

	logger.Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("records_seen", summary.RecordsSeen),
		zap.Int("records_added", summary.RecordsAdded),
		zap.Int("skipped", summary.Skipped),
	)
	return nil
}
