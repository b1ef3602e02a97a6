package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binderd/internal/engine"
)

type fakeState struct {
	enabled atomic.Bool
	running atomic.Bool
}

func (f *fakeState) Enabled() bool      { return f.enabled.Load() }
func (f *fakeState) MacroRunning() bool { return f.running.Load() }

func debugEvent(reason string, meta map[string]any) engine.Event {
	m := map[string]any{"reason": reason}
	for k, v := range meta {
		m[k] = v
	}
	return engine.Event{Type: engine.EngineDebug, Entity: engine.EntityEngine, Meta: m}
}

func TestEmitCountsEvents(t *testing.T) {
	m := New(nil, nil)

	m.Emit(debugEvent(engine.ReasonTriggerMatched, map[string]any{"method": "exact"}))
	m.Emit(debugEvent(engine.ReasonTriggerMatched, map[string]any{"method": "layout"}))
	m.Emit(debugEvent(engine.ReasonTriggerMatched, map[string]any{"method": "exact"}))
	m.Emit(debugEvent(engine.ReasonTriggerNotFound, nil))
	m.Emit(engine.Event{Type: engine.MacroRun, Entity: engine.EntityHotkey})
	m.Emit(engine.Event{Type: engine.MacroError, Entity: engine.EntityHotkey})

	snap, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, float64(6), snap["binderd_engine_events_total"])
	assert.Equal(t, float64(3), snap["binderd_expansions_total"])
	assert.Equal(t, float64(1), snap["binderd_macro_runs_total"])
	assert.Equal(t, float64(1), snap["binderd_macro_errors_total"])

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	byMethod := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "binderd_expansions_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "method" {
					byMethod[l.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"exact": 2, "layout": 1}, byMethod)
}

func TestRecordConfigUpdateAndSwitch(t *testing.T) {
	m := New(nil, nil)

	m.RecordConfigUpdate(nil)
	m.RecordConfigUpdate(errors.New("bad"))
	m.RecordConfigUpdate(nil)
	m.RecordProfileSwitch()

	snap, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, float64(3), snap["binderd_config_updates_total"])
	assert.Equal(t, float64(1), snap["binderd_profile_switches_total"])
}

func TestStateGauges(t *testing.T) {
	state := &fakeState{}
	m := New(nil, state)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	assert.Zero(t, snap["binderd_enabled"])
	assert.Zero(t, snap["binderd_macro_running"])

	state.enabled.Store(true)
	state.running.Store(true)
	snap, err = m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, float64(1), snap["binderd_enabled"])
	assert.Equal(t, float64(1), snap["binderd_macro_running"])
	assert.Contains(t, snap, "binderd_uptime_seconds")
	assert.NotContains(t, snap, "go_goroutines")
}

func TestHandler(t *testing.T) {
	m := New(nil, &fakeState{})
	m.Emit(engine.Event{Type: engine.MacroRun})

	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(Handler(m.Registry(), func() error {
		if !healthy.Load() {
			return errors.New("store closed")
		}
		return nil
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "binderd_macro_runs_total 1")
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	healthy.Store(false)
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.True(t, strings.HasPrefix(string(body), "unhealthy: store closed"))

	resp, err = http.Get(srv.URL + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerLifecycle(t *testing.T) {
	m := New(nil, nil)
	s := NewServer("127.0.0.1:0", m.Registry(), nil, nil)

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	assert.NotEqual(t, "127.0.0.1:0", s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
}
