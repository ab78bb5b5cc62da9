// Package metrics exposes Prometheus instrumentation for the simulator and
// the control plane.
package metrics

import (
	"net/http"

	"github.com/fentz26/bioreactor/internal/models"
	"github.com/fentz26/bioreactor/internal/reactor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bioreactor"

// Metrics holds the collectors on a private registry, so several instances
// can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	ticks          prometheus.Counter
	pv             *prometheus.GaugeVec
	sp             *prometheus.GaugeVec
	setpointWrites *prometheus.CounterVec
	executions     *prometheus.CounterVec
	steps          *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_ticks_total",
			Help:      "Simulation ticks applied.",
		}),
		pv: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "parameter_pv",
			Help:      "Current process value per parameter.",
		}, []string{"parameter"}),
		sp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "parameter_sp",
			Help:      "Current setpoint per parameter.",
		}, []string{"parameter"}),
		setpointWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "setpoint_writes_total",
			Help:      "Setpoint write entries by outcome (applied, clamped, unknown).",
		}, []string{"parameter", "outcome"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_executions_total",
			Help:      "Plan executions by final status.",
		}, []string{"status"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_steps_total",
			Help:      "Executed plan steps by type and status.",
		}, []string{"type", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks, m.pv, m.sp, m.setpointWrites, m.executions, m.steps,
	)
	return m
}

// ObserveTick records one simulation tick and the resulting state.
func (m *Metrics) ObserveTick(snap map[string]models.ParameterStatus) {
	m.ticks.Inc()
	for name, st := range snap {
		m.pv.WithLabelValues(name).Set(st.PV)
		m.sp.WithLabelValues(name).Set(st.SP)
	}
}

// ObserveWrites records setpoint write outcomes. Unknown names are counted
// under a fixed label so arbitrary input cannot grow the series set.
func (m *Metrics) ObserveWrites(results []reactor.WriteResult) {
	for _, r := range results {
		switch {
		case !r.Known:
			m.setpointWrites.WithLabelValues("unknown", "unknown").Inc()
		case r.Clamped:
			m.setpointWrites.WithLabelValues(r.Name, "clamped").Inc()
			m.sp.WithLabelValues(r.Name).Set(r.Applied)
		default:
			m.setpointWrites.WithLabelValues(r.Name, "applied").Inc()
			m.sp.WithLabelValues(r.Name).Set(r.Applied)
		}
	}
}

// ObserveStep records one executed plan step.
func (m *Metrics) ObserveStep(entry models.LogEntry) {
	typ := entry.Type
	switch typ {
	case models.StepTypeRead, models.StepTypeWrite, models.StepTypeWait:
	default:
		typ = "other"
	}
	m.steps.WithLabelValues(typ, string(entry.Status)).Inc()
}

// ObserveExecution records a finished plan execution.
func (m *Metrics) ObserveExecution(status models.ExecutionStatus) {
	m.executions.WithLabelValues(string(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
