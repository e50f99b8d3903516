// Package metrics holds the Prometheus collectors for the interaction
// endpoint. A nil *Metrics is valid and records nothing, so packages can
// accept one optionally.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	callbacks    *prometheus.CounterVec
	flowActions  *prometheus.CounterVec
	hydrations   *prometheus.CounterVec
	deferred     *prometheus.CounterVec
	activeActors prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry, along
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interflow_callbacks_total",
			Help: "Interaction callbacks routed, by identifier tier and outcome.",
		}, []string{"tier", "outcome"}),
		flowActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interflow_flow_actions_total",
			Help: "Flow actions executed, by action kind and status.",
		}, []string{"action", "status"}),
		hydrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interflow_actor_hydrations_total",
			Help: "Component actor hydrations from the relational store, by result.",
		}, []string{"result"}),
		deferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interflow_deferred_tasks_total",
			Help: "Post-response continuations, by result.",
		}, []string{"result"}),
		activeActors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "interflow_active_actors",
			Help: "Component actors currently resident in memory.",
		}),
	}
	reg.MustRegister(
		m.callbacks, m.flowActions, m.hydrations, m.deferred, m.activeActors,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry. Used by tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Callback(tier, outcome string) {
	if m != nil {
		m.callbacks.WithLabelValues(tier, outcome).Inc()
	}
}

func (m *Metrics) FlowAction(action, status string) {
	if m != nil {
		m.flowActions.WithLabelValues(action, status).Inc()
	}
}

func (m *Metrics) Hydration(result string) {
	if m != nil {
		m.hydrations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Deferred(result string) {
	if m != nil {
		m.deferred.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ActorStarted() {
	if m != nil {
		m.activeActors.Inc()
	}
}

func (m *Metrics) ActorStopped() {
	if m != nil {
		m.activeActors.Dec()
	}
}
