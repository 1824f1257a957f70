package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/tkoide/newswatch/internal/progress"
)

// RunSnapshot is the current-state view served by the ops endpoint.
type RunSnapshot struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Result     string         `json:"result,omitempty"`
	Stages     map[string]int `json:"stages"`
	NewRecords int            `json:"new_records"`
	Skipped    int            `json:"skipped"`
	LastURL    string         `json:"last_url,omitempty"`
}

// SnapshotSink keeps an in-memory aggregate of the current run for the ops
// server. Safe for concurrent reads while the pipeline emits.
type SnapshotSink struct {
	mu   sync.RWMutex
	snap RunSnapshot
}

// NewSnapshotSink builds an empty snapshot sink.
func NewSnapshotSink() *SnapshotSink {
	return &SnapshotSink{snap: RunSnapshot{Stages: map[string]int{}}}
}

// Consume folds the event into the snapshot.
func (s *SnapshotSink) Consume(_ context.Context, evt progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch evt.Kind {
	case progress.KindRunStart:
		s.snap = RunSnapshot{
			RunID:     evt.RunID.String(),
			StartedAt: evt.TS,
			Stages:    map[string]int{},
		}
	case progress.KindRunDone:
		ts := evt.TS
		s.snap.FinishedAt = &ts
		s.snap.Result = "success"
	case progress.KindRunAbort:
		ts := evt.TS
		s.snap.FinishedAt = &ts
		s.snap.Result = "aborted: " + evt.Note
	case progress.KindStageDone:
		s.snap.Stages[evt.Stage]++
		s.snap.LastURL = evt.URL
	case progress.KindRecordNew:
		s.snap.NewRecords++
	case progress.KindRecordSkip:
		s.snap.Skipped++
		s.snap.LastURL = evt.URL
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (s *SnapshotSink) Snapshot() RunSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.Stages = make(map[string]int, len(s.snap.Stages))
	for k, v := range s.snap.Stages {
		out.Stages[k] = v
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *SnapshotSink) Close(context.Context) error {
	return nil
}
