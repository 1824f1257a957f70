// Package progress defines the event structures emitted during a pipeline run.
package progress

import (
	"time"

	"github.com/google/uuid"
)

// Kind denotes the type of milestone represented by an Event.
type Kind string

// Supported progress kinds.
const (
	KindRunStart   Kind = "RUN_START"
	KindRunDone    Kind = "RUN_DONE"
	KindRunAbort   Kind = "RUN_ABORT"
	KindStageDone  Kind = "STAGE_DONE"
	KindRecordSkip Kind = "RECORD_SKIP"
	KindRecordNew  Kind = "RECORD_NEW"
)

// Event captures a single milestone of pipeline progress.
type Event struct {
	// RunID uniquely identifies one pipeline pass.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Kind denotes which milestone occurred.
	Kind Kind
	// URL optionally scopes the event to one record.
	URL string
	// Stage names the enrichment stage for STAGE_DONE events.
	Stage string
	// Dur captures execution latency for stages and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}
