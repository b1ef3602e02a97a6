// Package engine turns a live key stream into text expansions and runs
// hotkey macros.
//
// The engine buffers typed characters until a commit key (space, enter or
// tab) arrives, then resolves the buffered token to a bind of the active
// profile and types its content in place of the trigger. Configuration is
// swapped in atomically with UpdateConfig; events describing every decision
// are sent to a Sink.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"binderd/internal/keyboard"
	"binderd/internal/macro"
)

// AppResolver reports the foreground application's executable name.
type AppResolver interface {
	ForegroundApp() string
}

// Actions are host callbacks bound to the application hotkeys.
type Actions struct {
	Toggle        func()
	Open          func()
	ProfileSwitch func()
}

// Options configure an Engine.
type Options struct {
	Keyboard keyboard.Keyboard
	Apps     AppResolver
	Sink     Sink
	Logger   *slog.Logger
	Actions  Actions
	// Now returns the time used for {date} and {time}. Defaults to time.Now.
	Now func() time.Time
}

// Engine is the expansion and macro engine.
type Engine struct {
	kb      keyboard.Keyboard
	apps    AppResolver
	sink    Sink
	log     *slog.Logger
	actions Actions
	now     func() time.Time

	snap   atomic.Pointer[snapshot]
	runner *macro.Runner

	// mu serializes key handling and guards buf.
	mu  sync.Mutex
	buf []rune

	// ctlMu guards the hook and hotkey registrations.
	ctlMu   sync.Mutex
	hooked  bool
	hook    keyboard.Handle
	hotkeys []keyboard.Handle
	stop    chan struct{}
}

// New returns a stopped engine holding the default configuration.
func New(opts Options) *Engine {
	e := &Engine{
		kb:      opts.Keyboard,
		apps:    opts.Apps,
		sink:    opts.Sink,
		log:     opts.Logger,
		actions: opts.Actions,
		now:     opts.Now,
	}
	if e.kb == nil {
		e.kb = keyboard.NewUnavailable("no keyboard configured")
	}
	if e.sink == nil {
		e.sink = MultiSink(nil)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.snap.Store(newSnapshot(Config{Settings: DefaultSettings()}))
	e.runner = macro.NewRunner(e.kb, macro.Observer{
		Started:  e.macroStarted,
		Failed:   e.macroFailed,
		Finished: e.macroFinished,
	})
	return e
}

// Available reports whether the keyboard capability can be used.
func (e *Engine) Available() (bool, string) {
	return e.kb.Available()
}

func (e *Engine) available() bool {
	ok, _ := e.kb.Available()
	return ok
}

// Config returns the active configuration.
func (e *Engine) Config() Config {
	return e.snap.Load().cfg.clone()
}

// Enabled reports whether expansion and macros are enabled.
func (e *Engine) Enabled() bool {
	return e.snap.Load().cfg.Settings.BinderEnabled
}

// Running reports whether the engine is hooked to the keyboard.
func (e *Engine) Running() bool {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	return e.hooked
}

// MacroRunning reports whether a macro is in flight.
func (e *Engine) MacroRunning() bool {
	return e.runner.Running()
}

// Pending returns the characters typed since the last commit.
func (e *Engine) Pending() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return string(e.buf)
}

// UpdateConfig validates cfg and makes it the active configuration. An
// invalid configuration is rejected with ValidationErrors and the previous
// one stays active. Hotkeys are re-registered when the engine is running.
func (e *Engine) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	snap := newSnapshot(cfg)

	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	e.snap.Store(snap)
	if e.hooked {
		e.registerHotkeys(snap)
	}
	e.log.Debug("config updated",
		"profile_id", cfg.Profile.ID,
		"binds", len(cfg.Binds),
		"hotkeys", len(cfg.Hotkeys),
		"enabled", cfg.Settings.BinderEnabled,
	)
	return nil
}

// Start hooks the keyboard and registers hotkeys. It does nothing when the
// keyboard is unavailable or the engine is already running. The engine
// stops when ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	if ok, reason := e.kb.Available(); !ok {
		e.log.Warn("keyboard unavailable, engine not started", "reason", reason)
		return nil
	}

	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	if e.hooked {
		return nil
	}
	h, err := e.kb.Hook(e.HandleKey)
	if err != nil {
		return fmt.Errorf("engine: hook keyboard: %w", err)
	}
	e.hook = h
	e.hooked = true
	e.registerHotkeys(e.snap.Load())

	stop := make(chan struct{})
	e.stop = stop
	go func() {
		select {
		case <-ctx.Done():
			e.Stop()
		case <-stop:
		}
	}()
	e.log.Info("engine started")
	return nil
}

// Stop unhooks the keyboard and removes hotkeys. It is safe to call on a
// stopped engine.
func (e *Engine) Stop() error {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	if !e.hooked {
		return nil
	}
	close(e.stop)
	e.clearHotkeys()
	err := e.kb.Unhook(e.hook)
	e.hooked = false
	e.hook = 0

	e.mu.Lock()
	e.buf = e.buf[:0]
	e.mu.Unlock()

	e.log.Info("engine stopped")
	if err != nil {
		return fmt.Errorf("engine: unhook keyboard: %w", err)
	}
	return nil
}

// Close stops the engine and its macro worker.
func (e *Engine) Close() error {
	err := e.Stop()
	e.runner.Close()
	return err
}

var modifierNames = map[string]bool{
	"shift": true, "left shift": true, "right shift": true,
	"ctrl": true, "left ctrl": true, "right ctrl": true,
	"alt": true, "left alt": true, "right alt": true,
	"alt gr": true, "altgr": true,
	"cmd": true, "left cmd": true, "right cmd": true,
	"windows": true, "left windows": true, "right windows": true,
}

// HandleKey feeds one key event to the input state machine.
func (e *Engine) HandleKey(ev keyboard.Event) {
	if !ev.Down || modifierNames[ev.Name] {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Name {
	case "backspace":
		if n := len(e.buf); n > 0 {
			e.buf = e.buf[:n-1]
		}
	case "space", "enter", "tab":
		e.commit(ev.Name)
	default:
		if utf8.RuneCountInString(ev.Name) == 1 {
			r, _ := utf8.DecodeRuneInString(ev.Name)
			e.buf = append(e.buf, r)
		}
	}
}

func (e *Engine) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	e.sink.Emit(ev)
}

func (e *Engine) debug(snap *snapshot, reason string, meta map[string]any) {
	m := make(map[string]any, len(meta)+1)
	m["reason"] = reason
	for k, v := range meta {
		m[k] = v
	}
	e.log.Debug("engine event", "reason", reason, "profile_id", snap.cfg.Profile.ID)
	e.emit(Event{
		Type:        EngineDebug,
		Entity:      EntityEngine,
		ProfileID:   snap.cfg.Profile.ID,
		ProfileName: snap.cfg.Profile.Name,
		Meta:        m,
	})
}
