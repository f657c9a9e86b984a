package log

// Logger receives protocol trace events.
// Pass nil or NoopLogger to disable tracing.
type Logger interface {
	// Log records a protocol event. Implementations must be thread-safe
	// and must not block the caller for long: the driver's reader calls Log
	// inline for every frame.
	Log(event Event)
}

// NoopLogger discards all events.
// NoopLogger is safe for concurrent use and usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}
