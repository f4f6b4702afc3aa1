package publish

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/srg/blesoft/internal/extractor"
	"github.com/srg/blesoft/internal/poller"
)

// Metrics exports poller updates as Prometheus series. Unknown metric values are
// removed from the metric vector rather than reported as zero.
type Metrics struct {
	registry *prometheus.Registry

	value       *prometheus.GaugeVec
	polls       *prometheus.CounterVec
	failures    *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	readings    *prometheus.GaugeVec
}

var _ poller.Publisher = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "blesoft_metric_value",
			Help: "Latest extracted softener metric",
		}, []string{"device", "metric", "unit"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blesoft_polls_total",
			Help: "Poll ticks by result (success, failure)",
		}, []string{"device", "result"}),
		failures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "blesoft_consecutive_failures",
			Help: "Failed ticks since the last successful poll",
		}, []string{"device"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "blesoft_last_success_timestamp_seconds",
			Help: "Last successful poll (epoch seconds)",
		}, []string{"device"}),
		readings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "blesoft_readings",
			Help: "Characteristics read in the last successful poll",
		}, []string{"device"}),
	}
	m.registry.MustRegister(m.value, m.polls, m.failures, m.lastSuccess, m.readings)
	return m
}

// Registry exposes the registry, e.g. to add process collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Publish implements poller.Publisher.
func (m *Metrics) Publish(_ context.Context, u poller.Update) error {
	dev := u.Address
	if u.Snapshot == nil {
		m.polls.WithLabelValues(dev, "failure").Inc()
		m.failures.WithLabelValues(dev).Set(float64(u.ConsecutiveFailures))
		return nil
	}

	m.polls.WithLabelValues(dev, "success").Inc()
	m.failures.WithLabelValues(dev).Set(0)
	m.lastSuccess.WithLabelValues(dev).Set(float64(u.At.Unix()))
	m.readings.WithLabelValues(dev).Set(float64(u.Readings))
	m.setGauges(dev, u.Snapshot.Gauges())
	return nil
}

func (m *Metrics) setGauges(dev string, gauges []extractor.Gauge) {
	for _, g := range gauges {
		if g.Value == nil {
			m.value.DeleteLabelValues(dev, g.Name, g.Unit)
			continue
		}
		m.value.WithLabelValues(dev, g.Name, g.Unit).Set(*g.Value)
	}
}
