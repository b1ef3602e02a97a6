package engine

import (
	"binderd/internal/hotkey"
	"binderd/internal/macro"
)

// registerHotkeys replaces every registration with those of snap. Caller
// holds e.ctlMu.
func (e *Engine) registerHotkeys(snap *snapshot) {
	e.clearHotkeys()

	for _, h := range snap.cfg.Hotkeys {
		combo := hotkey.Normalize(h.Hotkey)
		if combo == "" {
			continue
		}
		e.addHotkey(combo, "macro "+h.ID, func() { e.onMacroHotkey(h) })
	}

	app := snap.cfg.Settings.Hotkeys
	for _, a := range []struct {
		name  string
		combo string
		fn    func()
	}{
		{"toggle", app.Toggle, e.actions.Toggle},
		{"open", app.Open, e.actions.Open},
		{"profile_switch", app.ProfileSwitch, e.actions.ProfileSwitch},
	} {
		combo := hotkey.Normalize(a.combo)
		if combo == "" || a.fn == nil {
			continue
		}
		if !hotkey.Valid(combo) {
			e.log.Warn("invalid application hotkey", "action", a.name, "hotkey", combo)
			continue
		}
		e.addHotkey(combo, a.name, a.fn)
	}
}

func (e *Engine) addHotkey(combo, name string, fn func()) {
	h, err := e.kb.AddHotkey(combo, fn)
	if err != nil {
		e.log.Warn("hotkey registration failed", "name", name, "hotkey", combo, "error", err)
		return
	}
	e.hotkeys = append(e.hotkeys, h)
}

// clearHotkeys removes every registration. Caller holds e.ctlMu.
func (e *Engine) clearHotkeys() {
	for _, h := range e.hotkeys {
		if err := e.kb.RemoveHotkey(h); err != nil {
			e.log.Debug("hotkey removal failed", "error", err)
		}
	}
	e.hotkeys = nil
}

// Hotkeys returns the number of active hotkey registrations.
func (e *Engine) Hotkeys() int {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	return len(e.hotkeys)
}

func (e *Engine) onMacroHotkey(h macro.Hotkey) {
	e.trigger(macro.RequestFor(h))
}

func (e *Engine) trigger(req macro.Request) bool {
	if !e.Enabled() || !e.available() {
		return false
	}
	return e.runner.Trigger(req)
}

// RunMacroSteps runs steps as a manual macro. It returns false when the
// engine is disabled, the keyboard is unavailable, the steps are empty or
// invalid, or another macro is running.
func (e *Engine) RunMacroSteps(steps []macro.Step, title string) bool {
	if errs := validateSteps("steps", steps); len(errs) > 0 {
		e.log.Warn("rejected macro steps", "error", errs)
		return false
	}
	return e.trigger(macro.Request{HotkeyID: macro.ManualID, Title: title, Steps: steps})
}

// RunHotkey runs the macro of the configured hotkey with the given id as if
// its combination had been pressed.
func (e *Engine) RunHotkey(id string) bool {
	for _, h := range e.snap.Load().cfg.Hotkeys {
		if h.ID == id {
			return e.trigger(macro.RequestFor(h))
		}
	}
	return false
}

func (e *Engine) macroStarted(req macro.Request) {
	snap := e.snap.Load()
	e.log.Info("macro started", "hotkey_id", req.HotkeyID, "steps", len(req.Steps))
	e.emit(Event{
		Type:        MacroRun,
		Entity:      EntityHotkey,
		ProfileID:   snap.cfg.Profile.ID,
		ProfileName: snap.cfg.Profile.Name,
		Meta: map[string]any{
			"hotkey_id": req.HotkeyID,
			"hotkey":    req.Hotkey,
			"title":     req.Title,
		},
	})
}

func (e *Engine) macroFailed(req macro.Request, err error) {
	snap := e.snap.Load()
	e.log.Warn("macro failed", "hotkey_id", req.HotkeyID, "error", err)
	e.emit(Event{
		Type:        MacroError,
		Entity:      EntityHotkey,
		ProfileID:   snap.cfg.Profile.ID,
		ProfileName: snap.cfg.Profile.Name,
		Meta: map[string]any{
			"hotkey_id": req.HotkeyID,
			"hotkey":    req.Hotkey,
			"error":     err.Error(),
		},
	})
}

func (e *Engine) macroFinished(req macro.Request) {
	e.log.Debug("macro finished", "hotkey_id", req.HotkeyID)
}
