package progress

import "context"

// Sink consumes progress events. Implementations must tolerate repeated
// calls; the tracker invokes them synchronously from the single pipeline
// goroutine, but snapshot readers may query concurrently.
type Sink interface {
	Consume(ctx context.Context, evt Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Tracker satisfies this interface so
// the runner stays agnostic about where events land.
type Emitter interface {
	Emit(evt Event)
}
