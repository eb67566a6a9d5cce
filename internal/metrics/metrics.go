// Package metrics exposes prometheus counters for the adoption lifecycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives lifecycle observations from the engine.
type Recorder interface {
	Transition(from, to string)
	CascadeRejected(n int)
	AnimalStatus(to string)
	Denied(kind string)
}

// Noop discards everything.
type Noop struct{}

func (Noop) Transition(string, string) {}
func (Noop) CascadeRejected(int)       {}
func (Noop) AnimalStatus(string)       {}
func (Noop) Denied(string)             {}

// Prometheus is a Recorder backed by its own registry.
type Prometheus struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	cascades    prometheus.Counter
	animals     *prometheus.CounterVec
	denied      *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shelter",
			Name:      "adoption_transitions_total",
			Help:      "Adoption status transitions by source and target status.",
		}, []string{"from", "to"}),
		cascades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shelter",
			Name:      "adoption_cascade_rejections_total",
			Help:      "Pending adoptions rejected because another request for the animal was approved.",
		}),
		animals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shelter",
			Name:      "animal_status_changes_total",
			Help:      "Animal availability changes made by the lifecycle engine.",
		}, []string{"to"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shelter",
			Name:      "lifecycle_refusals_total",
			Help:      "Lifecycle operations refused, by error kind.",
		}, []string{"kind"}),
	}
	p.registry.MustRegister(p.transitions, p.cascades, p.animals, p.denied)
	return p
}

func (p *Prometheus) Transition(from, to string) { p.transitions.WithLabelValues(from, to).Inc() }
func (p *Prometheus) CascadeRejected(n int)      { p.cascades.Add(float64(n)) }
func (p *Prometheus) AnimalStatus(to string)     { p.animals.WithLabelValues(to).Inc() }
func (p *Prometheus) Denied(kind string)         { p.denied.WithLabelValues(kind).Inc() }

// Registry exposes the underlying registry for tests and extra collectors.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
