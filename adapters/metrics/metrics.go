// Package metrics provides Prometheus metrics for role composition.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artpar/traits/core/registry"
)

// Collector holds all Prometheus metrics and observes a registry.
type Collector struct {
	// Application metrics
	ApplicationsTotal *prometheus.CounterVec
	RejectionsTotal   *prometheus.CounterVec
	MethodsModified   prometheus.Counter
	RolesRecorded     prometheus.Gauge

	// Manifest metrics
	ManifestBuilds *prometheus.CounterVec

	gatherer prometheus.Gatherer

	mu    sync.Mutex
	roles map[string]bool
}

// New creates a collector registered with the default Prometheus registry.
func New() *Collector {
	return newCollector(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry creates a collector registered with reg. Used by tests
// and by servers that rebuild their registry on reload.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	return newCollector(reg, reg)
}

func newCollector(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		ApplicationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "traits",
				Name:      "applications_total",
				Help:      "Role applications, counted once per role in the applied closure",
			},
			[]string{"role"},
		),
		RejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "traits",
				Name:      "rejections_total",
				Help:      "Rejected role applications by failure kind",
			},
			[]string{"kind"},
		),
		MethodsModified: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "traits",
				Name:      "methods_modified_total",
				Help:      "Methods that received advice during role application",
			},
		),
		RolesRecorded: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "traits",
				Name:      "roles_recorded",
				Help:      "Distinct roles with at least one recorded application in the current world",
			},
		),
		ManifestBuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "traits",
				Name:      "manifest_builds_total",
				Help:      "Manifest builds by outcome",
			},
			[]string{"status"},
		),
		gatherer: gatherer,
		roles:    make(map[string]bool),
	}
}

// Applied implements registry.Observer.
func (c *Collector) Applied(app registry.Application) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range app.Applied {
		name := r.String()
		c.ApplicationsTotal.WithLabelValues(name).Inc()
		c.roles[name] = true
	}
	c.MethodsModified.Add(float64(len(app.Modified)))
	c.RolesRecorded.Set(float64(len(c.roles)))
}

// Rejected implements registry.Observer.
func (c *Collector) Rejected(rej registry.Rejection) {
	c.RejectionsTotal.WithLabelValues(string(rej.Err.Kind)).Inc()
}

// ResetRoles forgets recorded roles. Call it before building into a fresh
// registry so the gauge reflects only the current world.
func (c *Collector) ResetRoles() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.roles = make(map[string]bool)
	c.RolesRecorded.Set(0)
}

// RecordBuild counts a manifest build outcome.
func (c *Collector) RecordBuild(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.ManifestBuilds.WithLabelValues(status).Inc()
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

var _ registry.Observer = (*Collector)(nil)
