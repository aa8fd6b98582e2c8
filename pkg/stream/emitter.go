package stream

import (
	"sync"
	"time"

	"github.com/harun/shopagent/internal/observability"
	"github.com/rs/zerolog"
)

// Sink delivers events to one client
type Sink interface {
	Send(Event) error
}

// Emitter stamps events with a sequence number and forwards them to a sink.
// Nothing is sent after a terminal event. A failing sink is logged once and
// then ignored so the turn can still finish and persist.
type Emitter struct {
	mu      sync.Mutex
	sink    Sink
	catalog *Catalog
	locale  string
	runID   string
	dev     bool
	logger  zerolog.Logger
	now     func() time.Time

	seq    int64
	closed bool
	failed bool
}

// EmitterConfig configures an Emitter
type EmitterConfig struct {
	Sink    Sink
	Catalog *Catalog
	Locale  string
	RunID   string
	Dev     bool // emit dev_status events
	Logger  zerolog.Logger
}

// NewEmitter creates an emitter. A nil sink discards everything.
func NewEmitter(cfg EmitterConfig) *Emitter {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Emitter{
		sink:    cfg.Sink,
		catalog: catalog,
		locale:  cfg.Locale,
		runID:   cfg.RunID,
		dev:     cfg.Dev,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// SetRunID sets the run id stamped on later events
func (e *Emitter) SetRunID(runID string) {
	e.mu.Lock()
	e.runID = runID
	e.mu.Unlock()
}

// Status emits catalog copy for key
func (e *Emitter) Status(key string) {
	e.emit(TypeStatus, StatusData{Key: key, Text: e.catalog.Text(e.locale, key)})
}

// DevStatus emits a diagnostics line when dev events are enabled
func (e *Emitter) DevStatus(message string, fields map[string]interface{}) {
	if !e.dev {
		return
	}
	e.emit(TypeDevStatus, DevStatusData{Message: message, Fields: fields})
}

func (e *Emitter) ToolStart(callID, tool string) {
	e.emit(TypeToolStart, ToolStartData{CallID: callID, Tool: tool})
}

func (e *Emitter) ToolEnd(callID, tool string, ok bool, code string, d time.Duration) {
	e.emit(TypeToolEnd, ToolEndData{CallID: callID, Tool: tool, OK: ok, Code: code, DurationMs: d.Milliseconds()})
}

// Delta forwards a text chunk; empty chunks are skipped
func (e *Emitter) Delta(text string) {
	if text == "" {
		return
	}
	e.emit(TypeDelta, DeltaData{Text: text})
}

// Final closes the stream with the turn's reply
func (e *Emitter) Final(reply interface{}) {
	e.emit(TypeFinal, reply)
}

// Error closes the stream with a failure
func (e *Emitter) Error(code, message string) {
	e.emit(TypeError, ErrorData{Code: code, Message: message})
}

// Closed reports whether a terminal event was emitted
func (e *Emitter) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Emitter) emit(t Type, data interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if t.Terminal() {
		e.closed = true
	}
	e.seq++
	if e.sink == nil || e.failed {
		return
	}

	event := Event{Type: t, Seq: e.seq, Timestamp: e.now().UnixMilli(), RunID: e.runID, Data: data}
	if err := e.sink.Send(event); err != nil {
		e.failed = true
		e.logger.Warn().Err(err).Str("event", string(t)).Int64("seq", e.seq).Msg("Stream sink failed")
		return
	}
	observability.RecordStreamEvent(string(t))
}

// Collector is a Sink that keeps events in memory
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Send(event Event) error {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	return nil
}

// Events returns a copy of everything received
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Types returns the received event types in order
func (c *Collector) Types() []Type {
	events := c.Events()
	out := make([]Type, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}
