package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binderd/internal/bind"
	"binderd/internal/keyboard"
	"binderd/internal/macro"
	"binderd/internal/template"
)

var testNow = time.Date(2024, time.January, 2, 15, 4, 0, 0, time.Local)

type staticApp string

func (s staticApp) ForegroundApp() string { return string(s) }

type fixture struct {
	kb     *keyboard.Recorder
	events *Collector
	engine *Engine
}

func newFixture(t *testing.T, cfg Config, opts ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{kb: keyboard.NewRecorder(), events: &Collector{}}
	o := Options{
		Keyboard: f.kb,
		Sink:     f.events,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return testNow },
	}
	for _, fn := range opts {
		fn(&o)
	}
	f.engine = New(o)
	require.NoError(t, f.engine.UpdateConfig(cfg))
	require.NoError(t, f.engine.Start(context.Background()))
	t.Cleanup(func() { f.engine.Close() })
	return f
}

func baseConfig(binds ...bind.Bind) Config {
	return Config{
		Profile:   Profile{ID: "p1", Name: "default"},
		Settings:  DefaultSettings(),
		Binds:     binds,
		Variables: template.DefaultVariables(),
	}
}

func withID(b bind.Bind, id string) bind.Bind {
	b.ID = id
	return b
}

func kuBind() bind.Bind {
	return withID(bind.New("Greeting", "Replies", "ku", bind.Text, "Привет, {me_name}"), "b1")
}

func lastEvent(t *testing.T, c *Collector) Event {
	t.Helper()
	evs := c.Events()
	require.NotEmpty(t, evs)
	return evs[len(evs)-1]
}

func TestPrefixedExpansion(t *testing.T) {
	f := newFixture(t, baseConfig(kuBind()))

	f.kb.Type(".ku")
	f.kb.Press("space")

	assert.Empty(t, f.engine.Pending())
	assert.Equal(t, []keyboard.Action{
		{Kind: keyboard.ActionSend, Value: "backspace"},
		{Kind: keyboard.ActionSend, Value: "backspace"},
		{Kind: keyboard.ActionSend, Value: "backspace"},
		{Kind: keyboard.ActionSend, Value: "backspace"},
		{Kind: keyboard.ActionWrite, Value: "Привет, AdminName"},
	}, f.kb.Actions())

	ev := lastEvent(t, f.events)
	assert.Equal(t, EngineDebug, ev.Type)
	assert.Equal(t, EntityEngine, ev.Entity)
	assert.Equal(t, "p1", ev.ProfileID)
	assert.Equal(t, "default", ev.ProfileName)
	assert.Equal(t, ReasonTriggerMatched, ev.Reason())
	assert.Equal(t, "ku", ev.Meta["trigger"])
	assert.Equal(t, "exact", ev.Meta["method"])
	assert.Equal(t, "b1", ev.Meta["bind_id"])
	assert.Equal(t, "Greeting", ev.Meta["title"])
}

func TestPrefixRequired(t *testing.T) {
	f := newFixture(t, baseConfig(kuBind()))

	f.kb.Type("ku")
	f.kb.Press("space")

	assert.Empty(t, f.kb.Actions())
	assert.Equal(t, []string{ReasonPrefixNotMatched}, f.events.Reasons())
	assert.Equal(t, "ku", lastEvent(t, f.events).Meta["token"])
}

func TestLayoutMatch(t *testing.T) {
	tp := withID(bind.New("Teleport", "", "tp", bind.Command, "/tp {id}"), "tp")
	f := newFixture(t, baseConfig(tp))

	f.kb.Type(".ез")
	f.kb.Press("space")

	ev := lastEvent(t, f.events)
	assert.Equal(t, ReasonTriggerMatched, ev.Reason())
	assert.Equal(t, "layout", ev.Meta["method"])
	assert.Equal(t, "ез", ev.Meta["trigger"])
	assert.Equal(t, "/tp {id}", f.kb.Written())
}

func TestMacroSingleFlight(t *testing.T) {
	f := newFixture(t, baseConfig())
	steps := []macro.Step{
		{Type: macro.TypeText, Value: "hi", Enter: true, Delay: 0.1},
		{Type: macro.PressEnter, Delay: 0},
	}

	assert.True(t, f.engine.RunMacroSteps(steps, "first"))
	assert.False(t, f.engine.RunMacroSteps(steps, "second"))
	require.Eventually(t, func() bool { return !f.engine.MacroRunning() }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "hi", f.kb.Written())
	var runs []Event
	for _, ev := range f.events.Events() {
		if ev.Type == MacroRun {
			runs = append(runs, ev)
		}
	}
	require.Len(t, runs, 1)
	assert.Equal(t, EntityHotkey, runs[0].Entity)
	assert.Equal(t, macro.ManualID, runs[0].Meta["hotkey_id"])
	assert.Equal(t, "first", runs[0].Meta["title"])
}

func TestMultiLineExpansion(t *testing.T) {
	m := withID(bind.New("Multi", "", "ml", bind.Multi, "line1\n\nline2"), "m")
	f := newFixture(t, baseConfig(m))

	f.kb.Type(".ml")
	f.kb.Press("space")

	var out []keyboard.Action
	for _, a := range f.kb.Actions() {
		if a.Value != "backspace" {
			out = append(out, a)
		}
	}
	assert.Equal(t, []keyboard.Action{
		{Kind: keyboard.ActionWrite, Value: "line1"},
		{Kind: keyboard.ActionSend, Value: "enter"},
		{Kind: keyboard.ActionWrite, Value: "line2"},
	}, out)
}

func TestMultiLineVariablesAndCRLF(t *testing.T) {
	m := withID(bind.New("Multi", "", "ml", bind.Multi, "a {me_name}\r\n   \r\nb {date}\r"), "m")
	f := newFixture(t, baseConfig(m))

	f.kb.Type(".ml")
	f.kb.Press("space")
	assert.Equal(t, "a AdminNameb 02.01.2024", f.kb.Written())
	assert.Equal(t, 1, f.kb.Count(keyboard.ActionSend, "enter"))
}

func TestUnauthorizedCommitKeyKeepsBuffer(t *testing.T) {
	f := newFixture(t, baseConfig(kuBind()))

	f.kb.Type(".ku")
	f.kb.Press("tab")

	assert.Equal(t, ".ku", f.engine.Pending())
	assert.Empty(t, f.kb.Actions())
	ev := lastEvent(t, f.events)
	assert.Equal(t, ReasonCommitKeyDisabled, ev.Reason())
	assert.Equal(t, "tab", ev.Meta["key"])
}

func TestEmptyCommitIsSilent(t *testing.T) {
	f := newFixture(t, baseConfig(kuBind()))
	f.kb.Press("space")
	f.kb.Press("space")
	assert.Empty(t, f.events.Events())
	assert.Empty(t, f.kb.Actions())
}

func TestBackspaceAndModifiers(t *testing.T) {
	f := newFixture(t, baseConfig(kuBind()))

	f.kb.Press("backspace")
	f.kb.Type(".kx")
	f.kb.Press("backspace")
	f.kb.Press("shift")
	f.kb.Press("alt gr")
	f.kb.Press("right ctrl")
	f.kb.Press("f5")
	f.kb.Type("u")
	assert.Equal(t, ".ku", f.engine.Pending())

	f.kb.Press("space")
	assert.Equal(t, ReasonTriggerMatched, lastEvent(t, f.events).Reason())
}

func TestKeyUpIgnored(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.engine.HandleKey(keyboard.Event{Name: "a", Down: false})
	assert.Empty(t, f.engine.Pending())
}

func TestCaseInvariantMatch(t *testing.T) {
	f := newFixture(t, baseConfig(kuBind()))
	for _, typed := range []string{".KU", ".Ku", ".kU"} {
		f.events.Reset()
		f.kb.Type(typed)
		f.kb.Press("space")
		assert.Equal(t, []string{ReasonTriggerMatched}, f.events.Reasons(), typed)
	}
}

func TestTriggerNotFound(t *testing.T) {
	f := newFixture(t, baseConfig(kuBind()))
	f.kb.Type(".zz")
	f.kb.Press("space")

	ev := lastEvent(t, f.events)
	assert.Equal(t, ReasonTriggerNotFound, ev.Reason())
	assert.Equal(t, "zz", ev.Meta["trigger"])
	assert.Equal(t, "none", ev.Meta["method"])
	assert.Equal(t, ".zz", ev.Meta["token"])
	assert.Empty(t, f.kb.Actions())
}

func TestDisabledEngine(t *testing.T) {
	cfg := baseConfig(kuBind())
	cfg.Settings.BinderEnabled = false
	f := newFixture(t, cfg)

	f.kb.Type(".ku")
	f.kb.Press("space")

	assert.Empty(t, f.engine.Pending())
	assert.Empty(t, f.kb.Actions())
	ev := lastEvent(t, f.events)
	assert.Equal(t, ReasonEngineDisabled, ev.Reason())
	assert.Equal(t, ".ku", ev.Meta["token"])

	assert.False(t, f.engine.RunMacroSteps([]macro.Step{{Type: macro.PressEnter}}, ""))
}

func TestNoPrefixAllowed(t *testing.T) {
	anywhere := kuBind()
	anywhere.Options.OnlyPrefix = false
	cfg := baseConfig(anywhere)
	cfg.Settings.AllowNoPrefix = true
	f := newFixture(t, cfg)

	f.kb.Type("ku")
	f.kb.Press("space")
	assert.Equal(t, ReasonTriggerMatched, lastEvent(t, f.events).Reason())
	assert.Equal(t, 3, f.kb.Count(keyboard.ActionSend, "backspace"))
}

func TestNoPrefixSkipsPrefixOnlyBinds(t *testing.T) {
	cfg := baseConfig(kuBind())
	cfg.Settings.AllowNoPrefix = true
	f := newFixture(t, cfg)

	f.kb.Type("ku")
	f.kb.Press("space")
	assert.Equal(t, ReasonTriggerNotFound, lastEvent(t, f.events).Reason())
}

func TestPrefixOrderAndMultiRune(t *testing.T) {
	cfg := baseConfig(kuBind())
	cfg.Settings.TriggerPrefixes = []string{"!!", "!"}
	f := newFixture(t, cfg)

	f.kb.Type("!!ku")
	f.kb.Press("space")
	assert.Equal(t, ReasonTriggerMatched, lastEvent(t, f.events).Reason())
	assert.Equal(t, 5, f.kb.Count(keyboard.ActionSend, "backspace"))
}

func TestEmptyPrefixMatchesUnprefixed(t *testing.T) {
	b := kuBind()
	b.Options.OnlyPrefix = false
	cfg := baseConfig(b)
	cfg.Settings.TriggerPrefixes = []string{""}
	f := newFixture(t, cfg)

	f.kb.Type("ku")
	f.kb.Press("space")
	assert.Equal(t, ReasonTriggerMatched, lastEvent(t, f.events).Reason())
	assert.Equal(t, 3, f.kb.Count(keyboard.ActionSend, "backspace"))
	assert.Equal(t, "Привет, AdminName", f.kb.Written())
}

func TestEmptyPrefixWinsInListOrder(t *testing.T) {
	cfg := baseConfig(kuBind())
	cfg.Settings.TriggerPrefixes = []string{"", "."}
	f := newFixture(t, cfg)

	f.kb.Type(".ku")
	f.kb.Press("space")
	ev := lastEvent(t, f.events)
	assert.Equal(t, ReasonTriggerNotFound, ev.Reason())
	assert.Equal(t, ".ku", ev.Meta["trigger"])
	assert.Zero(t, f.kb.Count(keyboard.ActionSend, "backspace"))
}

func TestEmptyPrefixListFallsBackToDot(t *testing.T) {
	cfg := baseConfig(kuBind())
	cfg.Settings.TriggerPrefixes = nil
	f := newFixture(t, cfg)

	f.kb.Type(".ku")
	f.kb.Press("space")
	assert.Equal(t, ReasonTriggerMatched, lastEvent(t, f.events).Reason())
}

func TestBackspaceCountUsesRunes(t *testing.T) {
	b := withID(bind.New("Hi", "", "привет", bind.Text, "x"), "b")
	f := newFixture(t, baseConfig(b))

	f.kb.Type(".привет")
	f.kb.Press("space")
	assert.Equal(t, 8, f.kb.Count(keyboard.ActionSend, "backspace"))
}

func TestKeepTriggerAndCursorBack(t *testing.T) {
	b := withID(bind.New("Quote", "", "q", bind.Text, `""`), "b")
	b.Options.DeleteTrigger = false
	b.CursorBack = 1
	f := newFixture(t, baseConfig(b))

	f.kb.Type(".q")
	f.kb.Press("space")
	assert.Equal(t, []keyboard.Action{
		{Kind: keyboard.ActionWrite, Value: `""`},
		{Kind: keyboard.ActionSend, Value: "left"},
	}, f.kb.Actions())
}

func TestCommitKeyConfiguration(t *testing.T) {
	cfg := baseConfig(kuBind())
	cfg.Settings.CommitKeys = []string{"enter", "tab"}
	f := newFixture(t, cfg)

	f.kb.Type(".ku")
	f.kb.Press("space")
	assert.Equal(t, ReasonCommitKeyDisabled, lastEvent(t, f.events).Reason())
	assert.Equal(t, ".ku", f.engine.Pending())

	// The space itself is not added to the buffer.
	f.kb.Press("tab")
	assert.Equal(t, ReasonTriggerMatched, lastEvent(t, f.events).Reason())
}

func TestAppsFilter(t *testing.T) {
	tests := []struct {
		name    string
		app     string
		only    string
		exclude string
		allowed bool
	}{
		{"no filter", "game.exe", "", "", true},
		{"only match", "game.exe", " Game.exe , other", "", true},
		{"only miss", "chrome", "game.exe", "", false},
		{"exclude match", "chrome", "", "CHROME", false},
		{"exclude miss", "game.exe", "", "chrome", true},
		{"unknown app allowed", "", "game.exe", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(kuBind())
			cfg.Settings.AppsFilter = AppsFilter{Only: tt.only, Exclude: tt.exclude}
			f := newFixture(t, cfg, func(o *Options) { o.Apps = staticApp(tt.app) })

			f.kb.Type(".ku")
			f.kb.Press("space")
			assert.Empty(t, f.engine.Pending())
			ev := lastEvent(t, f.events)
			if tt.allowed {
				assert.Equal(t, ReasonTriggerMatched, ev.Reason())
				return
			}
			assert.Equal(t, ReasonAppNotAllowed, ev.Reason())
			assert.Equal(t, tt.app, ev.Meta["app"])
			assert.Empty(t, f.kb.Actions())
		})
	}
}

func TestInputErrorRecovered(t *testing.T) {
	f := newFixture(t, baseConfig(kuBind()))
	f.kb.FailWith(func(a keyboard.Action) error {
		if a.Kind == keyboard.ActionWrite {
			return errors.New("xdotool: display closed")
		}
		return nil
	})

	f.kb.Type(".ku")
	f.kb.Press("space")
	ev := lastEvent(t, f.events)
	assert.Equal(t, ReasonInputError, ev.Reason())
	assert.Equal(t, "xdotool: display closed", ev.Meta["error"])
	assert.True(t, f.engine.Running())

	f.kb.FailWith(func(keyboard.Action) error { panic("hook gone") })
	f.kb.Type(".ku")
	f.kb.Press("space")
	ev = lastEvent(t, f.events)
	assert.Equal(t, ReasonInputError, ev.Reason())
	assert.Contains(t, ev.Meta["error"], "hook gone")

	f.kb.FailWith(nil)
	f.kb.Type(".ku")
	f.kb.Press("space")
	assert.Equal(t, ReasonTriggerMatched, lastEvent(t, f.events).Reason())
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	f := newFixture(t, baseConfig(kuBind()))

	bad := baseConfig(withID(bind.New("x", "", "x", bind.Type("Macro"), ""), "bad"))
	neg := withID(bind.New("y", "", "y", bind.Text, ""), "neg")
	neg.CursorBack = -1
	bad.Binds = append(bad.Binds, neg)
	bad.Hotkeys = []macro.Hotkey{{ID: "h", Hotkey: "ctrl+1", Steps: []macro.Step{{Type: "click"}, {Type: macro.Delay, Delay: -2}}}}

	err := f.engine.UpdateConfig(bad)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 4)
	assert.Equal(t, "binds[bad].type", verrs[0].Field)

	f.kb.Type(".ku")
	f.kb.Press("space")
	assert.Equal(t, ReasonTriggerMatched, lastEvent(t, f.events).Reason(), "previous config still active")
}

func TestUpdateConfigIsolatedFromCaller(t *testing.T) {
	binds := []bind.Bind{kuBind()}
	cfg := baseConfig(binds...)
	cfg.Hotkeys = []macro.Hotkey{
		{ID: "h1", Title: "Greet", Hotkey: "ctrl+1", Steps: []macro.Step{{Type: macro.TypeText, Value: "hi"}}},
	}
	cfg.Settings.TriggerPrefixes = []string{"."}
	f := newFixture(t, cfg)

	binds[0].Trigger = "changed"
	cfg.Hotkeys[0].Steps[0].Value = "changed"
	cfg.Hotkeys[0].ID = "h2"
	cfg.Settings.TriggerPrefixes[0] = "!"

	f.kb.Type(".ku")
	f.kb.Press("space")
	assert.Equal(t, ReasonTriggerMatched, lastEvent(t, f.events).Reason())

	got := f.engine.Config()
	require.Len(t, got.Hotkeys, 1)
	assert.Equal(t, "h1", got.Hotkeys[0].ID)
	assert.Equal(t, "hi", got.Hotkeys[0].Steps[0].Value)
	assert.Equal(t, []string{"."}, got.Settings.TriggerPrefixes)

	got.Hotkeys[0].Steps[0].Value = "mutated"
	assert.Equal(t, "hi", f.engine.Config().Hotkeys[0].Steps[0].Value)
}

func TestSettingsDecodeDefaults(t *testing.T) {
	var s Settings
	require.NoError(t, s.UnmarshalJSON([]byte(`{"allow_no_prefix": true, "hotkeys": {"toggle": "ctrl+t"}}`)))
	assert.True(t, s.BinderEnabled)
	assert.True(t, s.AutoLayout)
	assert.True(t, s.AllowNoPrefix)
	assert.Equal(t, []string{"."}, s.TriggerPrefixes)
	assert.Equal(t, []string{"space"}, s.CommitKeys)
	assert.Equal(t, "ctrl+t", s.Hotkeys.Toggle)
	assert.Equal(t, "ctrl+alt+m", s.Hotkeys.Open)
}

func TestMacroHotkeys(t *testing.T) {
	cfg := baseConfig()
	cfg.Hotkeys = []macro.Hotkey{
		{ID: "h1", Title: "Jail", Hotkey: "Ctrl+1", Steps: []macro.Step{{Type: macro.TypeText, Value: "/jail", Enter: true}}},
		{ID: "h2", Title: "No combo", Steps: []macro.Step{{Type: macro.PressEnter}}},
		{ID: "h3", Title: "Bad combo", Hotkey: "ctrl+ы", Steps: []macro.Step{{Type: macro.PressEnter}}},
	}
	f := newFixture(t, cfg)
	assert.Equal(t, 1, f.engine.Hotkeys())

	require.True(t, f.kb.TriggerHotkey("ctrl+1"))
	require.Eventually(t, func() bool { return f.kb.Written() == "/jail" && !f.engine.MacroRunning() }, 2*time.Second, 5*time.Millisecond)
	ev := lastEvent(t, f.events)
	assert.Equal(t, MacroRun, ev.Type)
	assert.Equal(t, "h1", ev.Meta["hotkey_id"])
	assert.Equal(t, "Ctrl+1", ev.Meta["hotkey"])

	assert.True(t, f.engine.RunHotkey("h2"))
	require.Eventually(t, func() bool { return !f.engine.MacroRunning() }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, f.engine.RunHotkey("missing"))
}

func TestMacroErrorEvent(t *testing.T) {
	f := newFixture(t, baseConfig())
	f.kb.FailWith(func(keyboard.Action) error { return errors.New("no display") })

	require.True(t, f.engine.RunMacroSteps([]macro.Step{{Type: macro.PressEnter}}, "t"))
	require.Eventually(t, func() bool {
		for _, ev := range f.events.Events() {
			if ev.Type == MacroError {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	ev := lastEvent(t, f.events)
	assert.Equal(t, MacroError, ev.Type)
	assert.Equal(t, "no display", ev.Meta["error"])
	require.Eventually(t, func() bool { return !f.engine.MacroRunning() }, time.Second, 5*time.Millisecond)
}

func TestRunMacroStepsRejectsInvalid(t *testing.T) {
	f := newFixture(t, baseConfig())
	assert.False(t, f.engine.RunMacroSteps(nil, ""))
	assert.False(t, f.engine.RunMacroSteps([]macro.Step{{Type: "click"}}, ""))
}

func TestApplicationHotkeys(t *testing.T) {
	var toggled, opened, switched atomic.Int32
	cfg := baseConfig()
	cfg.Settings.Hotkeys = Hotkeys{Toggle: "Ctrl+Alt+B", Open: "ctrl+alt+m", ProfileSwitch: ""}
	f := newFixture(t, cfg, func(o *Options) {
		o.Actions = Actions{
			Toggle:        func() { toggled.Add(1) },
			Open:          func() { opened.Add(1) },
			ProfileSwitch: func() { switched.Add(1) },
		}
	})
	assert.Equal(t, 2, f.engine.Hotkeys())

	assert.True(t, f.kb.TriggerHotkey("ctrl+alt+b"))
	assert.True(t, f.kb.TriggerHotkey("ctrl+alt+m"))
	assert.Equal(t, int32(1), toggled.Load())
	assert.Equal(t, int32(1), opened.Load())

	cfg.Settings.Hotkeys.ProfileSwitch = "ctrl+alt+p"
	require.NoError(t, f.engine.UpdateConfig(cfg))
	assert.Equal(t, 3, f.engine.Hotkeys())
	assert.ElementsMatch(t, []string{"ctrl+alt+b", "ctrl+alt+m", "ctrl+alt+p"}, f.kb.Hotkeys())
	assert.True(t, f.kb.TriggerHotkey("ctrl+alt+p"))
	assert.Equal(t, int32(1), switched.Load())
}

func TestStartStopIdempotent(t *testing.T) {
	f := newFixture(t, baseConfig(kuBind()))
	require.NoError(t, f.engine.Start(context.Background()))
	assert.True(t, f.engine.Running())

	require.NoError(t, f.engine.Stop())
	require.NoError(t, f.engine.Stop())
	assert.False(t, f.engine.Running())
	assert.Empty(t, f.kb.Hotkeys())

	f.kb.Type(".ku")
	f.kb.Press("space")
	assert.Empty(t, f.kb.Actions(), "stopped engine does not see keys")

	require.NoError(t, f.engine.Start(context.Background()))
	f.kb.Type(".ku")
	f.kb.Press("space")
	assert.Equal(t, ReasonTriggerMatched, lastEvent(t, f.events).Reason())
}

func TestStopOnContextDone(t *testing.T) {
	kb := keyboard.NewRecorder()
	e := New(Options{Keyboard: kb, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return !e.Running() }, time.Second, 5*time.Millisecond)
}

func TestUnavailableKeyboard(t *testing.T) {
	kb := keyboard.NewRecorder()
	kb.SetAvailable(false, "no access")
	e := New(Options{Keyboard: kb, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	defer e.Close()

	require.NoError(t, e.Start(context.Background()))
	assert.False(t, e.Running())
	ok, reason := e.Available()
	assert.False(t, ok)
	assert.Equal(t, "no access", reason)
	assert.False(t, e.RunMacroSteps([]macro.Step{{Type: macro.PressEnter}}, ""))
	require.NoError(t, e.Stop())
}
