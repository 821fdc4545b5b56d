// Package progress carries run and window lifecycle events from workers to
// pluggable sinks without ever blocking the emitter.
package progress
