// Package progress provides the event primitives, tracker, and emitter
// interfaces the pipeline uses to report run progress. Events fan out to
// pluggable sinks such as Prometheus metrics, structured logs, and the
// in-memory run snapshot served over HTTP.
package progress
