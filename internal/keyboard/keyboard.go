// Package keyboard provides the keyboard capability used by the engine:
// observing key events, typing text, pressing keys and registering global
// hotkeys.
//
// Platform support:
//   - Linux: evdev (/dev/input/event*) for input, xdotool for output
//   - Other platforms: unavailable
//
// Tests use Recorder, an in-memory implementation.
package keyboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"binderd/internal/hotkey"
)

var (
	// ErrNotAvailable is returned when no keyboard backend can be used.
	ErrNotAvailable = errors.New("keyboard: not available")

	// ErrUnknownHandle is returned when removing a handle that is not registered.
	ErrUnknownHandle = errors.New("keyboard: unknown handle")

	// ErrAlreadyRunning is returned by Start on a running backend.
	ErrAlreadyRunning = errors.New("keyboard: already running")
)

// Event is a single key transition.
type Event struct {
	// Name is the key name: a single character for printable keys
	// ("a", "A", "1", "!") or a lower-case name ("space", "enter",
	// "backspace", "shift", "alt gr").
	Name string
	Down bool
	Time time.Time
}

// Handle identifies a hook or hotkey registration.
type Handle uint64

// Keyboard is the capability the engine depends on.
type Keyboard interface {
	// Hook registers fn to receive every key event.
	Hook(fn func(Event)) (Handle, error)

	// Unhook removes a hook.
	Unhook(h Handle) error

	// Write types text.
	Write(text string) error

	// Send presses and releases a named key or "+"-joined combination.
	Send(key string) error

	// AddHotkey registers fn to run when combo is pressed.
	AddHotkey(combo string, fn func()) (Handle, error)

	// RemoveHotkey removes a hotkey registration.
	RemoveHotkey(h Handle) error

	// Available reports whether the capability works with the current
	// platform and permissions, with a human readable reason.
	Available() (bool, string)
}

// Backend is a Keyboard with a lifecycle.
type Backend interface {
	Keyboard
	Start(ctx context.Context) error
	Stop() error
}

// Options selects and configures a backend.
type Options struct {
	// Backend is "auto", "evdev" or "none".
	Backend string
	// Devices overrides device discovery.
	Devices []string
	// XdotoolPath is the xdotool binary used for output.
	XdotoolPath string
	// TypeDelay is the per-character delay used when typing.
	TypeDelay time.Duration
}

// New returns the backend selected by opts for the current platform.
func New(opts Options) Backend {
	if opts.Backend == "none" {
		return NewUnavailable("keyboard backend disabled by configuration")
	}
	return newPlatformBackend(opts)
}

type hotkeyEntry struct {
	combo hotkey.Combo
	fn    func()
}

// Dispatcher keeps hook and hotkey registrations and routes key events to
// them. Backends embed it and feed it with Dispatch.
type Dispatcher struct {
	mu      sync.Mutex
	next    Handle
	hooks   map[Handle]func(Event)
	hotkeys map[Handle]hotkeyEntry
	held    map[string]bool

	// dispatchMu serializes hook callbacks.
	dispatchMu sync.Mutex

	// runHotkey runs a matched hotkey callback. Defaults to a new goroutine.
	runHotkey func(fn func())
}

func (d *Dispatcher) init() {
	if d.hooks == nil {
		d.hooks = make(map[Handle]func(Event))
		d.hotkeys = make(map[Handle]hotkeyEntry)
		d.held = make(map[string]bool)
	}
}

// Hook registers fn to receive every key event.
func (d *Dispatcher) Hook(fn func(Event)) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.init()
	d.next++
	d.hooks[d.next] = fn
	return d.next, nil
}

// Unhook removes a hook.
func (d *Dispatcher) Unhook(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.hooks[h]; !ok {
		return ErrUnknownHandle
	}
	delete(d.hooks, h)
	return nil
}

// AddHotkey registers fn for combo. The combination must name a key in
// addition to any modifiers.
func (d *Dispatcher) AddHotkey(combo string, fn func()) (Handle, error) {
	c, err := hotkey.Parse(combo)
	if err != nil {
		return 0, err
	}
	if c.Key == "" {
		return 0, errors.New("keyboard: hotkey " + combo + " has no key")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.init()
	d.next++
	d.hotkeys[d.next] = hotkeyEntry{combo: c, fn: fn}
	return d.next, nil
}

// RemoveHotkey removes a hotkey registration.
func (d *Dispatcher) RemoveHotkey(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.hotkeys[h]; !ok {
		return ErrUnknownHandle
	}
	delete(d.hotkeys, h)
	return nil
}

// Hotkeys returns the canonical form of every registered combination.
func (d *Dispatcher) Hotkeys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.hotkeys))
	for _, e := range d.hotkeys {
		out = append(out, e.combo.String())
	}
	return out
}

// Dispatch tracks modifier state, fires matching hotkeys and delivers ev to
// every hook.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.Lock()
	d.init()
	var fire []func()
	if mod, ok := hotkey.CanonicalModifier(ev.Name); ok {
		if ev.Down {
			d.held[mod] = true
		} else {
			delete(d.held, mod)
		}
	} else if ev.Down {
		key := strings.ToLower(ev.Name)
		for _, e := range d.hotkeys {
			if e.combo.Key == key && d.heldExactly(e.combo) {
				fire = append(fire, e.fn)
			}
		}
	}
	hooks := make([]func(Event), 0, len(d.hooks))
	for _, fn := range d.hooks {
		hooks = append(hooks, fn)
	}
	run := d.runHotkey
	d.mu.Unlock()

	if run == nil {
		run = func(fn func()) { go fn() }
	}
	for _, fn := range fire {
		run(fn)
	}

	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()
	for _, fn := range hooks {
		fn(ev)
	}
}

// heldExactly reports whether the held modifiers are exactly those of c.
// Caller holds d.mu.
func (d *Dispatcher) heldExactly(c hotkey.Combo) bool {
	if len(d.held) != len(c.Modifiers) {
		return false
	}
	for _, m := range c.Modifiers {
		if !d.held[m] {
			return false
		}
	}
	return true
}
