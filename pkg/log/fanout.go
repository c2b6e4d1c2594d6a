package log

// MultiLogger fans events out to several journals in order.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger returns a MultiLogger over the non-nil loggers.
// Nested MultiLoggers are flattened.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	m.add(loggers)
	return m
}

func (m *MultiLogger) add(loggers []Logger) {
	for _, l := range loggers {
		switch l := l.(type) {
		case nil:
		case *MultiLogger:
			if l != nil {
				m.add(l.sinks)
			}
		case NoopLogger:
		default:
			m.sinks = append(m.sinks, l)
		}
	}
}

// Len returns the number of sinks.
func (m *MultiLogger) Len() int { return len(m.sinks) }

func (m *MultiLogger) Log(event Event) {
	for _, l := range m.sinks {
		l.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
