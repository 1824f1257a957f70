package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tkoide/newswatch/internal/progress"
)

// RunnerConfig carries the run-scoped knobs for one pipeline pass.
type RunnerConfig struct {
	Keywords []string
	Gate     GateConfig
}

// RunnerDeps wires the collaborators into the runner. Search, Publisher and
// Tracker are optional; everything else is required.
type RunnerDeps struct {
	Store      RecordStore
	Comments   CommentStore
	Assembler  Assembler
	Classifier Classifier
	Search     SearchProvider
	Publisher  Publisher
	Pacer      *Pacer
	Clock      Clock
	Tracker    progress.Emitter
	Logger     *zap.Logger
}

// Runner executes one single-threaded enrichment pass: ingest new search
// results, then for each record derive and run the pending stages in fixed
// order, writing each stage's output back immediately so a mid-run abort
// preserves every completed stage.
type Runner struct {
	cfg        RunnerConfig
	store      RecordStore
	comments   CommentStore
	assembler  Assembler
	classifier Classifier
	search     SearchProvider
	publisher  Publisher
	pacer      *Pacer
	clock      Clock
	tracker    progress.Emitter
	logger     *zap.Logger
	writeRetry *ExponentialRetryPolicy
	runID      uuid.UUID
}

// NewRunner constructs a Runner.
func NewRunner(cfg RunnerConfig, deps RunnerDeps) (*Runner, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if deps.Comments == nil {
		return nil, fmt.Errorf("comment store is required")
	}
	if deps.Assembler == nil {
		return nil, fmt.Errorf("assembler is required")
	}
	if deps.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		store:      deps.Store,
		comments:   deps.Comments,
		assembler:  deps.Assembler,
		classifier: deps.Classifier,
		search:     deps.Search,
		publisher:  deps.Publisher,
		pacer:      deps.Pacer,
		clock:      deps.Clock,
		tracker:    deps.Tracker,
		logger:     logger,
		writeRetry: NewRetryPolicy(3, 2*time.Second, 30*time.Second),
	}, nil
}

// Run executes one full pass. A quota-exhaustion failure aborts immediately
// and is returned to the caller; everything written before it stays durable.
func (r *Runner) Run(ctx context.Context) (RunSummary, error) {
	r.runID = uuid.New()
	started := r.clock.Now()
	summary := RunSummary{RunID: r.runID.String(), StartedAt: started}
	r.emit(progress.Event{Kind: progress.KindRunStart})
	r.logger.Info("run started", zap.String("run_id", summary.RunID))

	records, err := r.store.ReadAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("read records: %w", err)
	}

	records, added := r.ingestSearchResults(ctx, records)
	summary.RecordsAdded = added

	hasComments, err := r.comments.URLs(ctx)
	if err != nil {
		return summary, fmt.Errorf("read comment bundles: %w", err)
	}

	// Pre-existing duplicate rows (store-level corruption) are tolerated:
	// the first row wins, later copies are ignored for this pass.
	processed := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.URL == "" || processed[rec.URL] {
			continue
		}
		processed[rec.URL] = true
		summary.RecordsSeen++

		if err := r.enrichRecord(ctx, rec, hasComments, &summary); err != nil {
			if errors.Is(err, ErrQuotaExhausted) {
				summary.Aborted = err.Error()
				summary.FinishedAt = r.clock.Now()
				r.emit(progress.Event{Kind: progress.KindRunAbort, Note: err.Error(), Dur: summary.FinishedAt.Sub(started)})
				r.logger.Error("run aborted: classifier quota exhausted; completed writes remain durable",
					zap.String("url", rec.URL), zap.Error(err))
				return summary, err
			}
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Skipped++
			r.emit(progress.Event{Kind: progress.KindRecordSkip, URL: rec.URL, Note: err.Error()})
			r.logger.Warn("record skipped", zap.String("url", rec.URL), zap.Error(err))
		}
	}

	if err := r.store.SortByPostedAt(ctx); err != nil {
		r.logger.Warn("presentation sort failed", zap.Error(err))
	}

	summary.FinishedAt = r.clock.Now()
	r.publishSummary(ctx, summary)
	r.emit(progress.Event{Kind: progress.KindRunDone, Dur: summary.FinishedAt.Sub(started)})
	r.logger.Info("run finished",
		zap.Int("records_seen", summary.RecordsSeen),
		zap.Int("records_added", summary.RecordsAdded),
		zap.Int("detail_fetches", summary.DetailFetches),
		zap.Int("classified", summary.Classified),
		zap.Int("secondary_runs", summary.SecondaryRuns),
		zap.Int("comment_bundles", summary.CommentBundles),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// ingestSearchResults appends unseen search hits to the store and returns
// the extended record slice. Search failures are logged per keyword; the
// store's existing rows are always processed.
func (r *Runner) ingestSearchResults(ctx context.Context, records []Record) ([]Record, int) {
	if r.search == nil || len(r.cfg.Keywords) == 0 {
		return records, 0
	}

	known := make(map[string]bool, len(records))
	for _, rec := range records {
		known[rec.URL] = true
	}

	now := r.clock.Now()
	var fresh []Record
	for _, keyword := range r.cfg.Keywords {
		entries, err := r.search.Search(ctx, keyword)
		if err != nil {
			r.logger.Warn("keyword search failed", zap.String("keyword", keyword), zap.Error(err))
			continue
		}
		r.wait(ctx)
		for _, entry := range entries {
			url := CanonicalURL(entry.URL)
			if url == "" || known[url] {
				continue
			}
			known[url] = true
			fresh = append(fresh, Record{
				URL:          url,
				Title:        entry.Title,
				Source:       entry.Source,
				PostedAt:     ParsePostedAt(entry.RawTimestamp, now),
				CommentCount: entry.CommentCount,
			})
			r.emit(progress.Event{Kind: progress.KindRecordNew, URL: url})
		}
	}

	if len(fresh) == 0 {
		return records, 0
	}
	err := r.writeWithRetry(ctx, func(ctx context.Context) error {
		return r.store.Append(ctx, fresh)
	})
	if err != nil {
		// Not fatal: the same URLs are rediscovered on the next run.
		r.logger.Error("append new records failed", zap.Int("count", len(fresh)), zap.Error(err))
		return records, 0
	}
	return append(records, fresh...), len(fresh)
}

// enrichRecord runs the pending stages for one record in fixed order,
// re-deriving the pending set from field contents after each merge.
func (r *Runner) enrichRecord(ctx context.Context, rec Record, hasComments map[string]bool, summary *RunSummary) error {
	now := r.clock.Now()

	if PendingStages(rec, hasComments[rec.URL], now, r.cfg.Gate).Has(StageDetailFetch) {
		updated, err := r.runDetailFetch(ctx, rec)
		if err != nil {
			return err
		}
		rec = updated
		summary.DetailFetches++
	}

	if rec.Body == BodyUnavailable {
		if err := r.fillNoContent(ctx, &rec); err != nil {
			return err
		}
	}

	if PendingStages(rec, hasComments[rec.URL], now, r.cfg.Gate).Has(StagePrimaryClassify) {
		updated, err := r.runPrimaryClassify(ctx, rec)
		if err != nil {
			return err
		}
		rec = updated
		summary.Classified++
	}

	if PendingStages(rec, hasComments[rec.URL], now, r.cfg.Gate).Has(StageSecondaryClassify) {
		updated, invoked, err := r.runSecondaryClassify(ctx, rec)
		if err != nil {
			return err
		}
		rec = updated
		if invoked {
			summary.SecondaryRuns++
		}
	}

	if PendingStages(rec, hasComments[rec.URL], now, r.cfg.Gate).Has(StageCommentCollect) {
		collected, err := r.runCommentCollect(ctx, rec)
		if err != nil {
			return err
		}
		if collected {
			hasComments[rec.URL] = true
			summary.CommentBundles++
		}
	}

	return nil
}

func (r *Runner) runDetailFetch(ctx context.Context, rec Record) (Record, error) {
	start := r.clock.Now()
	fullWalk := !rec.BodyAttempted()

	var (
		detail Detail
		err    error
	)
	if fullWalk {
		detail, err = r.assembler.Assemble(ctx, rec.URL)
	} else {
		// Recent article with a captured body: refresh the comment count
		// only, skipping the expensive pagination walk.
		detail, err = r.assembler.RefreshMeta(ctx, rec.URL)
	}
	r.wait(ctx)
	if err != nil {
		return rec, fmt.Errorf("detail fetch: %w", err)
	}

	if fullWalk && detail.Body != "" {
		rec.Body = detail.Body
	}
	if detail.CommentCount != nil {
		rec.CommentCount = detail.CommentCount
	}
	rec.PostedAt = MergeTimestamp(rec.PostedAt, detail.PostedAt)

	writeErr := r.writeWithRetry(ctx, func(ctx context.Context) error {
		if fullWalk {
			return r.store.UpdateDetail(ctx, rec.URL, rec.Body, rec.CommentCount, rec.PostedAt)
		}
		return r.store.UpdateCommentCount(ctx, rec.URL, rec.CommentCount, rec.PostedAt)
	})
	if writeErr != nil {
		return rec, fmt.Errorf("write detail: %w", writeErr)
	}
	r.emit(progress.Event{Kind: progress.KindStageDone, URL: rec.URL, Stage: StageDetailFetch.String(), Dur: r.clock.Now().Sub(start)})
	return rec, nil
}

// fillNoContent writes the no-content marker into every empty classification
// field of a record with no body. The classifier is never invoked for these
// records, so their quota cost is zero.
func (r *Runner) fillNoContent(ctx context.Context, rec *Record) error {
	filled, changed := NoContentFill(*rec)
	if !changed {
		return nil
	}
	*rec = filled
	err := r.writeWithRetry(ctx, func(ctx context.Context) error {
		if err := r.store.UpdatePrimary(ctx, rec.URL, rec.CompanyInfo, rec.Category, rec.Sentiment); err != nil {
			return err
		}
		return r.store.UpdateSecondary(ctx, rec.URL, rec.SecondaryMention, rec.SecondarySentiment)
	})
	if err != nil {
		return fmt.Errorf("write no-content markers: %w", err)
	}
	return nil
}

func (r *Runner) runPrimaryClassify(ctx context.Context, rec Record) (Record, error) {
	start := r.clock.Now()
	result, err := r.classifier.ClassifyPrimary(ctx, rec.Body)
	r.wait(ctx)
	if errors.Is(err, ErrQuotaExhausted) {
		return rec, err
	}
	if err != nil {
		// Transient retries exhausted: record the failure in place so a
		// later manual reset can retry, and keep the run going.
		r.logger.Warn("primary classification failed", zap.String("url", rec.URL), zap.Error(err))
		result = PrimaryResult{CompanyInfo: MarkerError, Category: MarkerError, Sentiment: MarkerError}
	}

	if rec.CompanyInfo == "" {
		rec.CompanyInfo = result.CompanyInfo
	}
	if rec.Category == "" {
		rec.Category = result.Category
	}
	if rec.Sentiment == "" {
		rec.Sentiment = result.Sentiment
	}

	writeErr := r.writeWithRetry(ctx, func(ctx context.Context) error {
		return r.store.UpdatePrimary(ctx, rec.URL, rec.CompanyInfo, rec.Category, rec.Sentiment)
	})
	if writeErr != nil {
		return rec, fmt.Errorf("write primary classification: %w", writeErr)
	}
	r.emit(progress.Event{Kind: progress.KindStageDone, URL: rec.URL, Stage: StagePrimaryClassify.String(), Dur: r.clock.Now().Sub(start)})
	return rec, nil
}

func (r *Runner) runSecondaryClassify(ctx context.Context, rec Record) (Record, bool, error) {
	start := r.clock.Now()
	invoked := false

	if MatchesTrackedEntity(rec.CompanyInfo, r.cfg.Gate.TrackedEntity) {
		// The tracked entity is already the primary subject; the secondary
		// pass would be redundant, so mark and move on without a call.
		rec.SecondaryMention = MarkerNotApplicable
		rec.SecondarySentiment = MarkerNotApplicable
	} else {
		result, err := r.classifier.ClassifySecondary(ctx, rec.Body)
		r.wait(ctx)
		if errors.Is(err, ErrQuotaExhausted) {
			return rec, false, err
		}
		if err != nil {
			r.logger.Warn("secondary classification failed", zap.String("url", rec.URL), zap.Error(err))
			result = SecondaryResult{Mention: MarkerError, Sentiment: MarkerError}
		}
		invoked = true
		rec.SecondaryMention = result.Mention
		rec.SecondarySentiment = result.Sentiment
	}

	writeErr := r.writeWithRetry(ctx, func(ctx context.Context) error {
		return r.store.UpdateSecondary(ctx, rec.URL, rec.SecondaryMention, rec.SecondarySentiment)
	})
	if writeErr != nil {
		return rec, invoked, fmt.Errorf("write secondary classification: %w", writeErr)
	}
	r.emit(progress.Event{Kind: progress.KindStageDone, URL: rec.URL, Stage: StageSecondaryClassify.String(), Dur: r.clock.Now().Sub(start)})
	return rec, invoked, nil
}

func (r *Runner) runCommentCollect(ctx context.Context, rec Record) (bool, error) {
	start := r.clock.Now()
	comments, err := r.assembler.CollectComments(ctx, rec.URL)
	r.wait(ctx)
	if err != nil {
		return false, fmt.Errorf("collect comments: %w", err)
	}
	if len(comments) == 0 {
		return false, nil
	}
	writeErr := r.writeWithRetry(ctx, func(ctx context.Context) error {
		return r.comments.Append(ctx, rec.URL, comments)
	})
	if writeErr != nil {
		return false, fmt.Errorf("write comment bundle: %w", writeErr)
	}
	r.emit(progress.Event{Kind: progress.KindStageDone, URL: rec.URL, Stage: StageCommentCollect.String(), Dur: r.clock.Now().Sub(start)})
	return true, nil
}

// writeWithRetry executes a store write, retrying with the long backoff only
// for errors the store marked as retryable.
func (r *Runner) writeWithRetry(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrStoreRetryable) || attempt >= r.writeRetry.MaxAttempts() {
			return err
		}
		delay := r.writeRetry.Backoff(attempt)
		r.logger.Warn("store write retry", zap.Int("attempt", attempt+1), zap.Duration("backoff", delay), zap.Error(err))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Runner) publishSummary(ctx context.Context, summary RunSummary) {
	if r.publisher == nil {
		return
	}
	id, err := r.publisher.Publish(ctx, summary)
	if err != nil {
		r.logger.Warn("publish run summary failed", zap.Error(err))
		return
	}
	r.logger.Info("run summary published", zap.String("message_id", id))
}

func (r *Runner) wait(ctx context.Context) {
	if r.pacer == nil {
		return
	}
	if err := r.pacer.Wait(ctx); err != nil && ctx.Err() == nil {
		r.logger.Warn("pacer wait interrupted", zap.Error(err))
	}
}

func (r *Runner) emit(evt progress.Event) {
	if r.tracker == nil {
		return
	}
	evt.RunID = r.runID
	if evt.TS.IsZero() {
		evt.TS = r.clock.Now()
	}
	r.tracker.Emit(evt)
}
