package progress

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Tracker fans events out to registered sinks. A sink failure is logged and
// never propagates to the pipeline.
type Tracker struct {
	sinks       []Sink
	logger      *zap.Logger
	sinkTimeout time.Duration
}

// NewTracker wires sinks behind one Emitter.
func NewTracker(logger *zap.Logger, sinks ...Sink) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		sinks:       sinks,
		logger:      logger,
		sinkTimeout: 10 * time.Second,
	}
}

// Emit delivers the event to every sink.
func (t *Tracker) Emit(evt Event) {
	if t == nil {
		return
	}
	for _, sink := range t.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), t.sinkTimeout)
		if err := sink.Consume(ctx, evt); err != nil {
			t.logger.Warn("progress sink failed", zap.Error(err), zap.String("kind", string(evt.Kind)))
		}
		cancel()
	}
}

// Close shuts down every sink.
func (t *Tracker) Close(ctx context.Context) {
	if t == nil {
		return
	}
	for _, sink := range t.sinks {
		if err := sink.Close(ctx); err != nil {
			t.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
