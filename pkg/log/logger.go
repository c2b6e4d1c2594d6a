package log

// Logger receives the boot events of a node. A nil Logger in a node's
// configuration disables the journal.
//
// Log must not block the boot cycle for long and must not fail it; sinks
// shared by several simulated nodes must be safe for concurrent use.
type Logger interface {
	Log(event Event)
}

// NoopLogger drops every event.
type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}
