package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binderd/internal/bind"
	"binderd/internal/engine"
	"binderd/internal/macro"
	"binderd/internal/schemavalidation"
	"binderd/internal/template"
)

func testClock() func() time.Time {
	var (
		mu sync.Mutex
		n  int64
	)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), WithClock(testClock()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAndClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)

	status, err := s.MigrationStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, status.CurrentVersion)
	assert.Equal(t, 2, status.LatestVersion)
	assert.Empty(t, status.Pending)
	assert.Len(t, status.Applied, 2)
	require.NoError(t, ValidateSchema(s.db))
	require.NoError(t, s.Close())

	// Reopening must not re-apply anything.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	status, err = s.MigrationStatus()
	require.NoError(t, err)
	assert.Len(t, status.Applied, 2)
}

func TestEnsureDefaultSeedsOnce(t *testing.T) {
	s := openTest(t)

	p, created, err := s.EnsureDefault()
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, DefaultProfileName, p.Name)
	require.Len(t, p.Binds, 3)
	assert.Equal(t, "ку", p.Binds[0].Trigger)
	assert.Equal(t, bind.Command, p.Binds[1].Type)
	assert.Equal(t, bind.DefaultOptions(), p.Binds[0].Options)
	assert.Equal(t, engine.DefaultSettings(), p.Settings)
	assert.Equal(t, template.DefaultVariables(), p.Variables)
	assert.Empty(t, p.Hotkeys)

	again, created, err := s.EnsureDefault()
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p.ID, again.ID)

	profiles, err := s.ListProfiles()
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}

func TestActiveProfileSeedsEmptyStore(t *testing.T) {
	s := openTest(t)

	_, err := s.GetProfile("")
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := s.ActiveProfile()
	require.NoError(t, err)
	assert.Equal(t, DefaultProfileName, p.Name)

	id, err := s.ActiveProfileID()
	require.NoError(t, err)
	assert.Equal(t, p.ID, id)
}

func TestAddAndListProfiles(t *testing.T) {
	s := openTest(t)
	def, _, err := s.EnsureDefault()
	require.NoError(t, err)

	work, err := s.AddProfile("  work ")
	require.NoError(t, err)
	assert.Equal(t, "work", work.Name)
	assert.Empty(t, work.Binds)
	assert.Equal(t, engine.DefaultSettings(), work.Settings)

	_, err = s.AddProfile(" ")
	assert.Error(t, err)

	profiles, err := s.ListProfiles()
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, def.ID, profiles[0].ID)
	assert.True(t, profiles[0].Active)
	assert.Equal(t, 3, profiles[0].Binds)
	assert.Equal(t, work.ID, profiles[1].ID)
	assert.False(t, profiles[1].Active)
	assert.Equal(t, 0, profiles[1].Binds)

	got, err := s.GetProfile(work.ID)
	require.NoError(t, err)
	assert.Equal(t, work.ID, got.ID)
	assert.True(t, got.CreatedAt.Equal(work.CreatedAt))
}

func TestRenameProfile(t *testing.T) {
	s := openTest(t)
	p, _, err := s.EnsureDefault()
	require.NoError(t, err)

	require.NoError(t, s.RenameProfile(p.ID, "main"))
	got, err := s.GetProfile(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "main", got.Name)
	assert.True(t, got.UpdatedAt.After(p.UpdatedAt))

	assert.ErrorIs(t, s.RenameProfile("missing", "x"), ErrNotFound)
	assert.Error(t, s.RenameProfile(p.ID, ""))
}

func TestSetActiveProfile(t *testing.T) {
	s := openTest(t)
	_, _, err := s.EnsureDefault()
	require.NoError(t, err)
	work, err := s.AddProfile("work")
	require.NoError(t, err)

	require.NoError(t, s.SetActiveProfile(work.ID))
	active, err := s.ActiveProfile()
	require.NoError(t, err)
	assert.Equal(t, work.ID, active.ID)

	assert.ErrorIs(t, s.SetActiveProfile("missing"), ErrNotFound)
}

func TestDeleteProfile(t *testing.T) {
	s := openTest(t)
	def, _, err := s.EnsureDefault()
	require.NoError(t, err)
	work, err := s.AddProfile("work")
	require.NoError(t, err)
	_, err = s.AddBind(work.ID, bind.New("t", "", "x", bind.Text, "y"))
	require.NoError(t, err)

	t.Run("inactive", func(t *testing.T) {
		require.NoError(t, s.DeleteProfile(work.ID))
		active, err := s.ActiveProfileID()
		require.NoError(t, err)
		assert.Equal(t, def.ID, active)

		var n int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM binds WHERE profile_id = ?", work.ID).Scan(&n))
		assert.Zero(t, n, "binds cascade with their profile")
	})

	t.Run("active falls back to first remaining", func(t *testing.T) {
		other, err := s.AddProfile("other")
		require.NoError(t, err)
		require.NoError(t, s.SetActiveProfile(def.ID))

		require.NoError(t, s.DeleteProfile(def.ID))
		active, err := s.ActiveProfileID()
		require.NoError(t, err)
		assert.Equal(t, other.ID, active)
	})

	t.Run("last profile is replaced by a fresh default", func(t *testing.T) {
		active, err := s.ActiveProfileID()
		require.NoError(t, err)
		require.NoError(t, s.DeleteProfile(active))

		p, err := s.ActiveProfile()
		require.NoError(t, err)
		assert.NotEqual(t, active, p.ID)
		assert.Equal(t, DefaultProfileName, p.Name)
		assert.Len(t, p.Binds, 3)
	})

	assert.ErrorIs(t, s.DeleteProfile("missing"), ErrNotFound)
}

func TestUpdateSettingsAndVariables(t *testing.T) {
	s := openTest(t)
	p, _, err := s.EnsureDefault()
	require.NoError(t, err)

	settings := p.Settings
	settings.BinderEnabled = false
	settings.TriggerPrefixes = []string{"!", "."}
	settings.AppsFilter.Only = "discord, telegram"
	require.NoError(t, s.UpdateSettings("", settings))

	vars := template.Variables{template.Gender: template.Female, template.MeName: "Анна"}
	require.NoError(t, s.UpdateVariables(p.ID, vars))

	got, err := s.GetProfile(p.ID)
	require.NoError(t, err)
	assert.Equal(t, settings, got.Settings)
	assert.Equal(t, vars, got.Variables)

	assert.ErrorIs(t, s.UpdateSettings("missing", settings), ErrNotFound)
}

func TestBindCRUD(t *testing.T) {
	s := openTest(t)
	p, err := s.AddProfile("binds")
	require.NoError(t, err)

	b := bind.New("Greeting", "Replies", "hi", "", "hello {me_name}")
	b.Options.CaseSensitive = true
	b.CursorBack = 2

	added, err := s.AddBind(p.ID, b)
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, bind.Text, added.Type, "empty type defaults to Text")

	second, err := s.AddBind(p.ID, bind.New("Multi", "", "ml", bind.Multi, "a\nb"))
	require.NoError(t, err)

	got, err := s.GetBind(p.ID, added.ID)
	require.NoError(t, err)
	assert.Equal(t, added, *got)

	added.Content = "changed"
	added.Options.DeleteTrigger = false
	updated, err := s.UpdateBind(p.ID, added.ID, added)
	require.NoError(t, err)
	assert.Equal(t, added.ID, updated.ID)

	list, err := s.ListBinds(p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, added.ID, list[0].ID, "update keeps position")
	assert.Equal(t, "changed", list[0].Content)
	assert.False(t, list[0].Options.DeleteTrigger)
	assert.True(t, list[0].Options.CaseSensitive)
	assert.Equal(t, 2, list[0].CursorBack)
	assert.Equal(t, second.ID, list[1].ID)

	require.NoError(t, s.DeleteBind(p.ID, added.ID))
	_, err = s.GetBind(p.ID, added.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteBind(p.ID, added.ID), ErrNotFound)

	_, err = s.UpdateBind(p.ID, "missing", added)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBindValidation(t *testing.T) {
	s := openTest(t)
	_, _, err := s.EnsureDefault()
	require.NoError(t, err)

	_, err = s.AddBind("", bind.New("t", "", "  ", bind.Text, "x"))
	assert.Error(t, err)

	_, err = s.AddBind("", bind.New("t", "", "x", bind.Type("Macro"), "x"))
	assert.Error(t, err)

	b := bind.New("t", "", "x", bind.Text, "x")
	b.CursorBack = -1
	_, err = s.AddBind("", b)
	assert.Error(t, err)

	_, err = s.AddBind("missing", bind.New("t", "", "x", bind.Text, "x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTriggerSet(t *testing.T) {
	s := openTest(t)
	p, _, err := s.EnsureDefault()
	require.NoError(t, err)

	set, err := s.TriggerSet(p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"ку": true, "ajail": true, "tp": true}, set)

	set, err = s.TriggerSet("", p.Binds[0].ID)
	require.NoError(t, err)
	assert.False(t, set["ку"])
	assert.True(t, set["tp"])
}

func TestHotkeyCRUD(t *testing.T) {
	s := openTest(t)
	p, _, err := s.EnsureDefault()
	require.NoError(t, err)

	h := macro.Hotkey{
		Title:  "Greet",
		Hotkey: "Ctrl + Alt + 1",
		Steps: []macro.Step{
			{Type: macro.TypeText, Value: "hello", Enter: true},
			{Type: macro.Delay, Delay: 0.25},
			{Type: macro.PressKey, Value: "f5"},
		},
	}
	added, err := s.AddHotkey(p.ID, h)
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, "ctrl+alt+1", added.Hotkey)

	got, err := s.GetHotkey("", added.ID)
	require.NoError(t, err)
	assert.Equal(t, added, *got)

	added.Steps = added.Steps[:1]
	_, err = s.UpdateHotkey(p.ID, added.ID, added)
	require.NoError(t, err)

	list, err := s.ListHotkeys(p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Steps, 1)

	_, err = s.AddHotkey(p.ID, macro.Hotkey{Steps: []macro.Step{{Type: "click"}}})
	assert.Error(t, err)
	_, err = s.AddHotkey(p.ID, macro.Hotkey{Hotkey: "ctrl+ü"})
	assert.Error(t, err)

	require.NoError(t, s.DeleteHotkey(p.ID, added.ID))
	_, err = s.GetHotkey(p.ID, added.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNextProfileID(t *testing.T) {
	s := openTest(t)
	def, _, err := s.EnsureDefault()
	require.NoError(t, err)
	a, err := s.AddProfile("a")
	require.NoError(t, err)
	b, err := s.AddProfile("b")
	require.NoError(t, err)

	next, err := s.NextProfileID()
	require.NoError(t, err)
	assert.Equal(t, a.ID, next)

	require.NoError(t, s.SetActiveProfile(b.ID))
	next, err = s.NextProfileID()
	require.NoError(t, err)
	assert.Equal(t, def.ID, next, "wraps around")
}

func TestEngineConfig(t *testing.T) {
	s := openTest(t)

	cfg, err := s.EngineConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfileName, cfg.Profile.Name)
	assert.NotEmpty(t, cfg.Profile.ID)
	assert.Len(t, cfg.Binds, 3)
	assert.Equal(t, "AdminName", cfg.Variables[template.MeName])
	assert.NoError(t, cfg.Validate())

	_, err = s.EngineConfig("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportImportRoundTrip(t *testing.T) {
	s := openTest(t)
	p, _, err := s.EnsureDefault()
	require.NoError(t, err)
	_, err = s.AddHotkey(p.ID, macro.Hotkey{Title: "x", Hotkey: "ctrl+2", Steps: []macro.Step{{Type: macro.PressEnter}}})
	require.NoError(t, err)

	data, err := s.ExportProfileJSON(p.ID)
	require.NoError(t, err)
	_, err = schemavalidation.ValidateJSON(schemavalidation.Profile, data)
	require.NoError(t, err, "exports satisfy the import schema")

	imported, err := s.ImportProfileJSON(data, "copy")
	require.NoError(t, err)
	assert.Equal(t, "copy", imported.Name)
	assert.NotEqual(t, p.ID, imported.ID)
	require.Len(t, imported.Binds, 3)
	require.Len(t, imported.Hotkeys, 1)
	for i, b := range imported.Binds {
		assert.NotEqual(t, p.Binds[i].ID, b.ID, "binds get fresh ids")
		assert.Equal(t, p.Binds[i].Trigger, b.Trigger)
	}

	stored, err := s.GetProfile(imported.ID)
	require.NoError(t, err)
	assert.Equal(t, imported.Binds, stored.Binds)
	assert.Equal(t, imported.Hotkeys[0].ID, stored.Hotkeys[0].ID)
	assert.Equal(t, p.Settings, stored.Settings)
}

func TestImportProfileJSONDefaults(t *testing.T) {
	s := openTest(t)

	doc := `{
		"name": "sparse",
		"settings": {"trigger_prefixes": ["!"]},
		"binds": [
			{"trigger": "a", "content": "x"},
			{"trigger": "b", "type": "Multi", "content": "y", "options": {"only_prefix": false}}
		]
	}`
	p, err := s.ImportProfileJSON([]byte(doc), "")
	require.NoError(t, err)

	assert.Equal(t, "sparse", p.Name)
	assert.Equal(t, []string{"!"}, p.Settings.TriggerPrefixes)
	assert.True(t, p.Settings.BinderEnabled, "absent settings keep defaults")
	assert.Equal(t, []string{"space"}, p.Settings.CommitKeys)
	assert.Equal(t, template.DefaultVariables(), p.Variables)

	require.Len(t, p.Binds, 2)
	assert.Equal(t, bind.Text, p.Binds[0].Type)
	assert.Equal(t, bind.DefaultOptions(), p.Binds[0].Options)
	assert.Equal(t, bind.Multi, p.Binds[1].Type)
	assert.False(t, p.Binds[1].Options.OnlyPrefix)
	assert.True(t, p.Binds[1].Options.DeleteTrigger)
}

func TestImportProfileJSONRejectsInvalid(t *testing.T) {
	s := openTest(t)

	for _, doc := range []string{
		`{"binds": []}`,
		`{"name": "x", "binds": [{"trigger": "a", "type": "Macro"}]}`,
		`{"name": "x", "hotkeys": [{"steps": [{"type": "delay", "delay": -2}]}]}`,
		`not json`,
	} {
		_, err := s.ImportProfileJSON([]byte(doc), "")
		assert.Error(t, err, doc)
	}

	profiles, err := s.ListProfiles()
	require.NoError(t, err)
	assert.Empty(t, profiles, "rejected documents leave the store untouched")
}

func TestImportLegacyFile(t *testing.T) {
	s := openTest(t)

	legacy := map[string]any{
		"active_profile_id": "old-2",
		"profiles": []any{
			map[string]any{
				"id":   "old-1",
				"name": "default",
				"settings": map[string]any{
					"trigger_prefixes": []string{"."},
					"commit_keys":      []string{"space"},
					"binder_enabled":   true,
					"hotkeys":          map[string]any{"toggle": "Ctrl+Alt+B", "open": "Ctrl+Alt+M", "profile_switch": ""},
					"apps_filter":      map[string]any{"only": "", "exclude": ""},
				},
				"variables": map[string]any{"gender": "male"},
				"hotkeys":   []any{},
				"binds": []any{
					map[string]any{"id": "b1", "title": "Hi", "category": "", "trigger": "ку", "type": "Text", "content": "Привет"},
				},
			},
			map[string]any{
				"id":   "old-2",
				"name": "rp",
				"binds": []any{
					map[string]any{"id": "b2", "trigger": "me", "type": "Command", "content": "/me waves", "cursor_back": 0},
				},
				"hotkeys": []any{
					map[string]any{"id": "h1", "title": "hi", "hotkey": "Ctrl+1", "steps": []any{
						map[string]any{"type": "type_text", "value": "hi", "enter": true, "delay": 0},
					}},
				},
			},
		},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "profiles.json")
	require.NoError(t, os.WriteFile(path, data, 0600))

	imported, err := s.ImportLegacyFile(path)
	require.NoError(t, err)
	require.Len(t, imported, 2)
	assert.Equal(t, "default", imported[0].Name)
	assert.Equal(t, "rp", imported[1].Name)
	assert.NotEqual(t, "old-2", imported[1].ID)
	assert.Equal(t, "ctrl+1", imported[1].Hotkeys[0].Hotkey)

	active, err := s.ActiveProfileID()
	require.NoError(t, err)
	assert.Equal(t, imported[1].ID, active)

	_, created, err := s.EnsureDefault()
	require.NoError(t, err)
	assert.False(t, created, "imported profiles suppress the seeded default")

	_, err = s.ImportLegacyFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestEventLog(t *testing.T) {
	s := openTest(t)

	for i := 0; i < 5; i++ {
		s.Emit(engine.Event{
			Type:        engine.EngineDebug,
			Entity:      engine.EntityEngine,
			ProfileID:   "p1",
			ProfileName: "default",
			Meta:        map[string]any{"reason": engine.ReasonTriggerNotFound, "n": i},
		})
	}
	assert.Eventually(t, func() bool {
		events, err := s.RecentEvents(0)
		return err == nil && len(events) == 5
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, s.AppendEvent(engine.Event{Type: engine.MacroRun, Entity: engine.EntityHotkey}))

	events, err := s.RecentEvents(3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, float64(3), events[0].Meta["n"], "oldest of the newest three first")
	assert.Equal(t, float64(4), events[1].Meta["n"])
	assert.Equal(t, engine.MacroRun, events[2].Type)
	assert.Nil(t, events[2].Meta)
	assert.Equal(t, engine.ReasonTriggerNotFound, events[0].Reason())
	assert.False(t, events[0].Time.IsZero())

	all, err := s.RecentEvents(0)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	removed, err := s.PruneEvents(2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)

	left, err := s.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, engine.MacroRun, left[1].Type)
}

func TestEmitDoesNotWaitForWriteLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(testClock()))
	require.NoError(t, err)
	defer s.Close()

	other, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	require.NoError(t, err)
	defer other.Close()
	conn, err := other.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(context.Background(), "BEGIN IMMEDIATE")
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 10; i++ {
		s.Emit(engine.Event{Type: engine.MacroRun, Entity: engine.EntityHotkey})
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	_, err = conn.ExecContext(context.Background(), "COMMIT")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		events, err := s.RecentEvents(0)
		return err == nil && len(events) == 10
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCloseFlushesQueuedEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		s.Emit(engine.Event{Type: engine.MacroRun, Entity: engine.EntityHotkey})
	}
	require.NoError(t, s.Close())
	s.Emit(engine.Event{Type: engine.MacroError})

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	events, err := s.RecentEvents(0)
	require.NoError(t, err)
	assert.Len(t, events, 20)
}

func TestEventTimestampPreserved(t *testing.T) {
	s := openTest(t)
	ts := time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)

	require.NoError(t, s.AppendEvent(engine.Event{Type: engine.MacroError, Time: ts}))
	events, err := s.RecentEvents(1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, ts.Equal(events[0].Time))
}
