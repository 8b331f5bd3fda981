// Package trace defines the structured events the scanning core emits.
// The core never logs on its own; callers decide where events go.
package trace

// Level orders events by importance.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	}
	return "unknown"
}

// Event is a single trace record. Fields holds alternating key/value pairs.
type Event struct {
	Level   Level
	Stage   string
	Message string
	Fields  []any
}

// Sink receives events.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Recorder keeps every event it receives. Useful in tests.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(e Event) {
	r.Events = append(r.Events, e)
}

// Count returns the number of recorded events at level l.
func (r *Recorder) Count(l Level) int {
	n := 0
	for _, e := range r.Events {
		if e.Level == l {
			n++
		}
	}
	return n
}

// Emitter is a small helper that stamps a stage onto events.
type Emitter struct {
	Sink  Sink
	Stage string
}

func (e Emitter) emit(l Level, msg string, kv []any) {
	if e.Sink == nil {
		return
	}
	e.Sink.Emit(Event{Level: l, Stage: e.Stage, Message: msg, Fields: kv})
}

func (e Emitter) Debug(msg string, kv ...any) { e.emit(LevelDebug, msg, kv) }
func (e Emitter) Info(msg string, kv ...any)  { e.emit(LevelInfo, msg, kv) }
func (e Emitter) Warn(msg string, kv ...any)  { e.emit(LevelWarn, msg, kv) }
