// Package metrics exposes prometheus instrumentation for applies,
// verifications and host bridge calls. A nil *Metrics records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "schsync"

type Metrics struct {
	registry *prometheus.Registry

	applyDuration   *prometheus.HistogramVec
	entityActions   *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	bridgeCalls     *prometheus.HistogramVec
	bridgeConnected prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		applyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "apply",
				Name:      "duration_seconds",
				Help:      "Schematic apply time in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"result"}, // "success" or the fault code
		),
		entityActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "apply",
				Name:      "entities_total",
				Help:      "Entities reconciled, by kind and action.",
			},
			[]string{"kind", "action"},
		),
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "verify",
				Name:      "runs_total",
				Help:      "Verification runs, by check and outcome.",
			},
			[]string{"check", "result"}, // result: ok, failed, error
		),
		bridgeCalls: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bridge",
				Name:      "call_duration_seconds",
				Help:      "Host bridge round-trip time in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"method", "result"},
		),
		bridgeConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "connected",
			Help:      "1 while a CAD host is connected to the bridge.",
		}),
	}
	m.registry.MustRegister(
		m.applyDuration,
		m.entityActions,
		m.verifications,
		m.bridgeCalls,
		m.bridgeConnected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveApply records one apply. code is empty on success.
func (m *Metrics) ObserveApply(d time.Duration, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "success"
	}
	m.applyDuration.WithLabelValues(code).Observe(d.Seconds())
}

func (m *Metrics) CountEntity(kind, action string) {
	if m == nil {
		return
	}
	m.entityActions.WithLabelValues(kind, action).Inc()
}

func (m *Metrics) CountVerification(check string, ok bool, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case !ok:
		result = "failed"
	}
	m.verifications.WithLabelValues(check, result).Inc()
}

func (m *Metrics) ObserveBridgeCall(method string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.bridgeCalls.WithLabelValues(method, result).Observe(d.Seconds())
}

func (m *Metrics) SetBridgeConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.bridgeConnected.Set(1)
		return
	}
	m.bridgeConnected.Set(0)
}
