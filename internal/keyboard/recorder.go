package keyboard

import (
	"context"
	"strings"
	"sync"
	"time"

	"binderd/internal/hotkey"
)

var _ Backend = (*Recorder)(nil)

// ActionKind is the kind of output a Recorder saw.
type ActionKind string

const (
	ActionWrite ActionKind = "write"
	ActionSend  ActionKind = "send"
)

// Action is one recorded output call.
type Action struct {
	Kind  ActionKind
	Value string
}

// Recorder is an in-memory Keyboard. It records output, lets tests inject
// key events and failures, and runs hotkey callbacks synchronously.
type Recorder struct {
	Dispatcher

	mu        sync.Mutex
	actions   []Action
	fail      func(Action) error
	available bool
	reason    string
}

// NewRecorder returns an available Recorder.
func NewRecorder() *Recorder {
	r := &Recorder{available: true, reason: "recorder"}
	r.runHotkey = func(fn func()) { fn() }
	return r
}

// SetAvailable changes what Available reports.
func (r *Recorder) SetAvailable(ok bool, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.available = ok
	r.reason = reason
}

// Available implements Keyboard.
func (r *Recorder) Available() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available, r.reason
}

// FailWith installs fn to decide whether each output call fails. The call
// is recorded only when fn returns nil. fn may panic.
func (r *Recorder) FailWith(fn func(Action) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fn
}

func (r *Recorder) record(a Action) error {
	r.mu.Lock()
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		if err := fail(a); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.actions = append(r.actions, a)
	r.mu.Unlock()
	return nil
}

// Write implements Keyboard.
func (r *Recorder) Write(text string) error {
	return r.record(Action{Kind: ActionWrite, Value: text})
}

// Send implements Keyboard.
func (r *Recorder) Send(key string) error {
	return r.record(Action{Kind: ActionSend, Value: key})
}

// Start implements Backend.
func (r *Recorder) Start(context.Context) error { return nil }

// Stop implements Backend.
func (r *Recorder) Stop() error { return nil }

// Actions returns a copy of the recorded output.
func (r *Recorder) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// Reset clears the recorded output.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = nil
}

// Count returns how many recorded actions match kind and value.
func (r *Recorder) Count(kind ActionKind, value string) int {
	n := 0
	for _, a := range r.Actions() {
		if a.Kind == kind && a.Value == value {
			n++
		}
	}
	return n
}

// Written returns the concatenation of every written text.
func (r *Recorder) Written() string {
	var b strings.Builder
	for _, a := range r.Actions() {
		if a.Kind == ActionWrite {
			b.WriteString(a.Value)
		}
	}
	return b.String()
}

// Emit delivers ev to hooks and hotkeys.
func (r *Recorder) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.Dispatch(ev)
}

// Press emits a down and an up event for name.
func (r *Recorder) Press(name string) {
	r.Emit(Event{Name: name, Down: true})
	r.Emit(Event{Name: name, Down: false})
}

// Type presses one key per rune of s.
func (r *Recorder) Type(s string) {
	for _, c := range s {
		r.Press(string(c))
	}
}

// TriggerHotkey runs every callback registered for combo and reports
// whether there was one.
func (r *Recorder) TriggerHotkey(combo string) bool {
	c, err := hotkey.Parse(combo)
	if err != nil {
		return false
	}
	r.Dispatcher.mu.Lock()
	var fns []func()
	for _, e := range r.hotkeys {
		if e.combo.String() == c.String() {
			fns = append(fns, e.fn)
		}
	}
	r.Dispatcher.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns) > 0
}
