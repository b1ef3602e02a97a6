package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"binderd/internal/engine"
)

// State is the live engine state sampled by the gauges.
type State interface {
	Enabled() bool
	MacroRunning() bool
}

// BinderMetrics holds all binderd metrics. It implements engine.Sink.
type BinderMetrics struct {
	registry *prometheus.Registry

	// Counters
	EventsTotal          *prometheus.CounterVec
	ExpansionsTotal      *prometheus.CounterVec
	MacroRunsTotal       prometheus.Counter
	MacroErrorsTotal     prometheus.Counter
	ConfigUpdatesTotal   *prometheus.CounterVec
	ProfileSwitchesTotal prometheus.Counter

	// Gauges
	Enabled       prometheus.GaugeFunc
	MacroRunning  prometheus.GaugeFunc
	UptimeSeconds prometheus.GaugeFunc
}

var _ engine.Sink = (*BinderMetrics)(nil)

// New creates and registers all binderd metrics on reg. A nil reg gets a
// fresh registry from NewRegistry; a nil state reports zero gauges.
func New(reg *prometheus.Registry, state State) *BinderMetrics {
	if reg == nil {
		reg = NewRegistry()
	}
	started := time.Now()

	m := &BinderMetrics{
		registry: reg,

		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "engine_events_total",
			Help:      "Engine events by type and reason",
		}, []string{"type", "reason"}),
		ExpansionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "expansions_total",
			Help:      "Successful expansions by match method",
		}, []string{"method"}),
		MacroRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "macro_runs_total",
			Help:      "Macros started",
		}),
		MacroErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "macro_errors_total",
			Help:      "Macros aborted by an error",
		}),
		ConfigUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "config_updates_total",
			Help:      "Engine configuration updates by result",
		}, []string{"result"}),
		ProfileSwitchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "profile_switches_total",
			Help:      "Active profile changes",
		}),

		Enabled: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "enabled",
			Help:      "1 when expansion is enabled",
		}, func() float64 {
			return boolValue(state != nil && state.Enabled())
		}),
		MacroRunning: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "macro_running",
			Help:      "1 while a macro is in flight",
		}, func() float64 {
			return boolValue(state != nil && state.MacroRunning())
		}),
		UptimeSeconds: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the metrics were created",
		}, func() float64 {
			return time.Since(started).Seconds()
		}),
	}

	reg.MustRegister(
		m.EventsTotal,
		m.ExpansionsTotal,
		m.MacroRunsTotal,
		m.MacroErrorsTotal,
		m.ConfigUpdatesTotal,
		m.ProfileSwitchesTotal,
		m.Enabled,
		m.MacroRunning,
		m.UptimeSeconds,
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *BinderMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Emit implements engine.Sink.
func (m *BinderMetrics) Emit(ev engine.Event) {
	reason := ev.Reason()
	m.EventsTotal.WithLabelValues(string(ev.Type), reason).Inc()

	switch ev.Type {
	case engine.EngineDebug:
		if reason == engine.ReasonTriggerMatched {
			method, _ := ev.Meta["method"].(string)
			m.ExpansionsTotal.WithLabelValues(method).Inc()
		}
	case engine.MacroRun:
		m.MacroRunsTotal.Inc()
	case engine.MacroError:
		m.MacroErrorsTotal.Inc()
	}
}

// RecordConfigUpdate counts an engine configuration update attempt.
func (m *BinderMetrics) RecordConfigUpdate(err error) {
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.ConfigUpdatesTotal.WithLabelValues(result).Inc()
}

// RecordProfileSwitch counts a change of the active profile.
func (m *BinderMetrics) RecordProfileSwitch() {
	m.ProfileSwitchesTotal.Inc()
}

// Snapshot returns the binderd metrics summed over their labels, keyed by
// full metric name. Runtime and process metrics are left out.
func (m *BinderMetrics) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	prefix := Namespace + "_"
	for _, mf := range families {
		name := mf.GetName()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		var sum float64
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				sum += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				sum += metric.GetGauge().GetValue()
			}
		}
		out[name] = sum
	}
	return out, nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
