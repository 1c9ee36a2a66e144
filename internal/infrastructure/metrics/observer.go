// Package metrics exports propagation statistics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"entigraph/internal/entity"
)

const namespace = "entigraph"

var _ entity.Observer = (*Observer)(nil)

// Observer records completed and rejected entity writes.
type Observer struct {
	registry      *prometheus.Registry
	writes        *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	recomputed    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewObserver creates an observer with its own registry, which also carries
// the Go runtime and process collectors.
func NewObserver() *Observer {
	o := &Observer{
		registry: prometheus.NewRegistry(),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Completed entity writes.",
		}, []string{"entity"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_rejections_total",
			Help:      "Rejected entity writes by error code.",
		}, []string{"entity", "code"}),
		recomputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recomputations_total",
			Help:      "Derived attribute evaluations.",
		}, []string{"entity"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Change notifications delivered to listeners.",
		}, []string{"entity"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_duration_seconds",
			Help:      "Time spent propagating and delivering a write.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}, []string{"entity"}),
	}
	o.registry.MustRegister(
		o.writes, o.rejections, o.recomputed, o.notifications, o.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return o
}

// WriteCompleted implements entity.Observer.
func (o *Observer) WriteCompleted(entityType string, recomputed, notifications int, elapsed time.Duration) {
	o.writes.WithLabelValues(entityType).Inc()
	o.recomputed.WithLabelValues(entityType).Add(float64(recomputed))
	o.notifications.WithLabelValues(entityType).Add(float64(notifications))
	o.duration.WithLabelValues(entityType).Observe(elapsed.Seconds())
}

// WriteRejected implements entity.Observer.
func (o *Observer) WriteRejected(entityType, code string) {
	o.rejections.WithLabelValues(entityType, code).Inc()
}

// Registry returns the registry holding the collectors.
func (o *Observer) Registry() *prometheus.Registry { return o.registry }

// Handler serves the registry in the Prometheus exposition format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}
