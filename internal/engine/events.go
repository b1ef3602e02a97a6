package engine

import (
	"sync"
	"time"
)

// EventType names an engine event.
type EventType string

const (
	EngineDebug EventType = "engine_debug"
	MacroRun    EventType = "macro_run"
	MacroError  EventType = "macro_error"
)

// Entities reported by the engine.
const (
	EntityEngine = "engine"
	EntityHotkey = "hotkey"
)

// Reasons carried in the meta of engine_debug events.
const (
	ReasonCommitKeyDisabled = "commit_key_disabled"
	ReasonEngineDisabled    = "engine_disabled"
	ReasonAppNotAllowed     = "app_not_allowed"
	ReasonPrefixNotMatched  = "prefix_not_matched"
	ReasonTriggerNotFound   = "trigger_not_found"
	ReasonTriggerMatched    = "trigger_matched"
	ReasonInputError        = "input_error"
)

// Event is a structured record emitted by the engine.
type Event struct {
	Type        EventType      `json:"type"`
	Entity      string         `json:"entity"`
	ProfileID   string         `json:"profile_id"`
	ProfileName string         `json:"profile_name"`
	Meta        map[string]any `json:"meta"`
	Time        time.Time      `json:"ts"`
}

// Reason returns the reason of an engine_debug event.
func (e Event) Reason() string {
	r, _ := e.Meta["reason"].(string)
	return r
}

// Sink receives engine events. Emit must not block for long; it is called
// from the key handling path.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) { f(ev) }

// MultiSink fans events out to several sinks.
type MultiSink []Sink

// Emit sends ev to every sink.
func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// Collector is a Sink that keeps every event in memory.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Emit records ev.
func (c *Collector) Emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Events returns a copy of the recorded events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Reasons returns the reasons of recorded engine_debug events in order.
func (c *Collector) Reasons() []string {
	var out []string
	for _, ev := range c.Events() {
		if ev.Type == EngineDebug {
			out = append(out, ev.Reason())
		}
	}
	return out
}

// Reset discards recorded events.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
