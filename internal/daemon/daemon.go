// Package daemon coordinates the profile store and the engine for the
// binderd process. It backs the IPC handler and the application hotkeys:
// every change is written to the store first and then pushed into the
// engine as a whole configuration.
package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"binderd/internal/engine"
	"binderd/internal/ipc"
	"binderd/internal/macro"
	"binderd/internal/store"
)

// NotifyTitle is the summary line of every desktop notification.
const NotifyTitle = "Binder"

// Engine is the part of *engine.Engine the controller drives.
type Engine interface {
	Config() engine.Config
	Enabled() bool
	Running() bool
	MacroRunning() bool
	Available() (bool, string)
	UpdateConfig(cfg engine.Config) error
	RunHotkey(id string) bool
	RunMacroSteps(steps []macro.Step, title string) bool
}

// Notifier shows desktop notifications.
type Notifier interface {
	Notify(summary, body string) error
}

// Recorder receives controller metrics.
type Recorder interface {
	RecordConfigUpdate(err error)
	RecordProfileSwitch()
	Snapshot() (map[string]float64, error)
}

// Broadcaster streams events to IPC subscribers.
type Broadcaster interface {
	Broadcast(ev *ipc.Event)
}

// Options configure a Controller.
type Options struct {
	Store    *store.Store
	Engine   Engine
	Notifier Notifier
	Metrics  Recorder
	Logger   *slog.Logger

	Version      string
	SocketPath   string
	DatabasePath string

	Now func() time.Time
}

// Controller implements ipc.Controller.
type Controller struct {
	store   *store.Store
	eng     Engine
	notify  Notifier
	metrics Recorder
	log     *slog.Logger
	now     func() time.Time

	version      string
	socketPath   string
	databasePath string
	startedAt    time.Time

	// mu serializes store writes with the engine update that follows.
	mu sync.Mutex

	eventsMu sync.RWMutex
	events   Broadcaster
}

var _ ipc.Controller = (*Controller)(nil)

// New returns a Controller. Call Reload once before starting the engine.
func New(opts Options) *Controller {
	c := &Controller{
		store:        opts.Store,
		eng:          opts.Engine,
		notify:       opts.Notifier,
		metrics:      opts.Metrics,
		log:          opts.Logger,
		now:          opts.Now,
		version:      opts.Version,
		socketPath:   opts.SocketPath,
		databasePath: opts.DatabasePath,
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.version == "" {
		c.version = "dev"
	}
	c.startedAt = c.now()
	return c
}

// SetBroadcaster sets where change events are sent.
func (c *Controller) SetBroadcaster(b Broadcaster) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	c.events = b
}

func (c *Controller) broadcast(ev *ipc.Event) {
	c.eventsMu.RLock()
	b := c.events
	c.eventsMu.RUnlock()
	if b == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now()
	}
	b.Broadcast(ev)
}

func (c *Controller) notifyf(format string, args ...any) {
	if c.notify == nil {
		return
	}
	if err := c.notify.Notify(NotifyTitle, fmt.Sprintf(format, args...)); err != nil {
		c.log.Debug("notification not shown", "error", err)
	}
}

// Reload pushes the active profile of the store into the engine.
func (c *Controller) Reload() (*store.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reload()
}

// reload is Reload with c.mu held.
func (c *Controller) reload() (*store.Profile, error) {
	p, err := c.store.ActiveProfile()
	if err != nil {
		return nil, fmt.Errorf("load active profile: %w", err)
	}

	err = c.eng.UpdateConfig(engineConfig(p))
	if c.metrics != nil {
		c.metrics.RecordConfigUpdate(err)
	}
	if err != nil {
		c.log.Warn("profile rejected by engine", "profile_id", p.ID, "error", err)
		return nil, fmt.Errorf("apply profile %s: %w", p.Name, err)
	}

	c.log.Info("profile loaded",
		"profile_id", p.ID,
		"name", p.Name,
		"binds", len(p.Binds),
		"hotkeys", len(p.Hotkeys),
	)
	c.broadcast(&ipc.Event{
		Type:        ipc.EventConfigChanged,
		ProfileID:   p.ID,
		ProfileName: p.Name,
	})
	return p, nil
}

func engineConfig(p *store.Profile) engine.Config {
	return engine.Config{
		Profile:   p.Ref(),
		Settings:  p.Settings,
		Binds:     p.Binds,
		Variables: p.Variables,
		Hotkeys:   p.Hotkeys,
	}
}

// SetEnabled stores the enabled flag of the active profile and applies it.
// A nil enabled toggles the current state.
func (c *Controller) SetEnabled(enabled *bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.store.ActiveProfile()
	if err != nil {
		return false, fmt.Errorf("load active profile: %w", err)
	}
	target := !p.Settings.BinderEnabled
	if enabled != nil {
		target = *enabled
	}

	settings := p.Settings
	settings.BinderEnabled = target
	candidate := engineConfig(p)
	candidate.Settings = settings
	if err := candidate.Validate(); err != nil {
		c.log.Warn("enabled change rejected", "profile_id", p.ID, "error", err)
		return false, fmt.Errorf("apply profile %s: %w", p.Name, err)
	}
	if err := c.store.UpdateSettings(p.ID, settings); err != nil {
		return false, err
	}
	if _, err := c.reload(); err != nil {
		if rerr := c.store.UpdateSettings(p.ID, p.Settings); rerr != nil {
			c.log.Error("restore settings", "profile_id", p.ID, "error", rerr)
		}
		return false, err
	}

	c.log.Info("binder enabled changed", "enabled", target)
	c.broadcast(&ipc.Event{
		Type:        ipc.EventEnabledChanged,
		ProfileID:   p.ID,
		ProfileName: p.Name,
		Enabled:     &target,
	})
	if target {
		c.notifyf("Expansion enabled")
	} else {
		c.notifyf("Expansion disabled")
	}
	return target, nil
}

// Toggle flips the enabled state. It is bound to the toggle hotkey.
func (c *Controller) Toggle() {
	if _, err := c.SetEnabled(nil); err != nil {
		c.log.Error("toggle failed", "error", err)
	}
}

// SwitchProfile activates the profile with the given id, or the next one
// in list order when id is empty.
func (c *Controller) SwitchProfile(id string) (*store.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id == "" {
		next, err := c.store.NextProfileID()
		if err != nil {
			return nil, err
		}
		id = next
	}
	if err := c.store.SetActiveProfile(id); err != nil {
		return nil, err
	}
	p, err := c.reload()
	if err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.RecordProfileSwitch()
	}
	c.log.Info("profile switched", "profile_id", p.ID, "name", p.Name)
	c.broadcast(&ipc.Event{
		Type:        ipc.EventProfileSwitched,
		ProfileID:   p.ID,
		ProfileName: p.Name,
	})
	c.notifyf("Profile: %s", p.Name)
	return p, nil
}

// NextProfile moves to the next profile. It is bound to the profile switch
// hotkey.
func (c *Controller) NextProfile() {
	if _, err := c.SwitchProfile(""); err != nil {
		c.log.Error("profile switch failed", "error", err)
	}
}

// Open shows the current state as a notification. It is bound to the open
// hotkey.
func (c *Controller) Open() {
	cfg := c.eng.Config()
	state := "disabled"
	if c.eng.Enabled() {
		state = "enabled"
	}
	c.notifyf("%s, profile %s, %d binds, %d macros",
		state, cfg.Profile.Name, len(cfg.Binds), len(cfg.Hotkeys))
}

// Status describes the daemon, the engine and the active profile.
func (c *Controller) Status() ipc.StatusResponse {
	cfg := c.eng.Config()
	available, reason := c.eng.Available()

	status := ipc.StatusResponse{
		Version:           c.version,
		PID:               os.Getpid(),
		StartedAt:         c.startedAt,
		Uptime:            c.now().Sub(c.startedAt),
		SocketPath:        c.socketPath,
		DatabasePath:      c.databasePath,
		KeyboardAvailable: available,
		KeyboardReason:    reason,
		EngineRunning:     c.eng.Running(),
		Enabled:           c.eng.Enabled(),
		MacroRunning:      c.eng.MacroRunning(),
		ProfileID:         cfg.Profile.ID,
		ProfileName:       cfg.Profile.Name,
		Binds:             len(cfg.Binds),
		Hotkeys:           len(cfg.Hotkeys),
	}
	if c.metrics != nil {
		snap, err := c.metrics.Snapshot()
		if err != nil {
			c.log.Debug("metrics snapshot failed", "error", err)
		} else {
			status.Metrics = snap
		}
	}
	return status
}

// RunHotkey runs the macro of a hotkey of the active profile. It reports
// false when the engine refused to start it.
func (c *Controller) RunHotkey(id string) (bool, error) {
	found := false
	for _, h := range c.eng.Config().Hotkeys {
		if h.ID == id {
			found = true
			break
		}
	}
	if !found {
		return false, fmt.Errorf("hotkey %s: %w", id, store.ErrNotFound)
	}
	return c.eng.RunHotkey(id), nil
}

// RunSteps runs ad-hoc macro steps.
func (c *Controller) RunSteps(title string, steps []macro.Step) bool {
	if title == "" {
		title = "test"
	}
	return c.eng.RunMacroSteps(steps, title)
}
