package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tkoide/newswatch/internal/progress"
)

// PrometheusSink exports pipeline progress metrics. It owns the collectors
// for run lifecycle and per-stage completions.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   prometheus.Histogram

	stagesDone    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	recordsNew    prometheus.Counter
	recordsSkip   prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newswatch_runs_started_total",
			Help: "Total pipeline passes started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newswatch_runs_completed_total",
			Help: "Total pipeline passes completed partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newswatch_run_duration_seconds",
			Help:    "Wall time per completed pass.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}),
		stagesDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newswatch_stages_completed_total",
			Help: "Enrichment stage completions partitioned by stage.",
		}, []string{"stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newswatch_stage_duration_seconds",
			Help:    "Stage duration partitioned by stage.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage"}),
		recordsNew: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newswatch_records_appended_total",
			Help: "New records appended from search results.",
		}),
		recordsSkip: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newswatch_records_skipped_total",
			Help: "Records skipped after a non-fatal per-record failure.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.stagesDone,
		s.stageDuration,
		s.recordsNew,
		s.recordsSkip,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors for the event.
func (s *PrometheusSink) Consume(_ context.Context, evt progress.Event) error {
	switch evt.Kind {
	case progress.KindRunStart:
		s.runsStarted.Inc()
	case progress.KindRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.runDuration.Observe(evt.Dur.Seconds())
	case progress.KindRunAbort:
		s.runsCompleted.WithLabelValues("aborted").Inc()
		s.runDuration.Observe(evt.Dur.Seconds())
	case progress.KindStageDone:
		s.stagesDone.WithLabelValues(evt.Stage).Inc()
		s.stageDuration.WithLabelValues(evt.Stage).Observe(evt.Dur.Seconds())
	case progress.KindRecordNew:
		s.recordsNew.Inc()
	case progress.KindRecordSkip:
		s.recordsSkip.Inc()
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
