package loop

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/crossroads/internal/ir"
)

// Metrics are the loop's Prometheus collectors.
type Metrics struct {
	dispatches *prometheus.CounterVec
	duration   prometheus.Histogram
	queueDepth prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossroads_dispatches_total",
				Help: "Inbound messages handled, by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crossroads_dispatch_duration_seconds",
				Help:    "Time spent in HandleMessage per dispatch.",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crossroads_queue_depth",
				Help: "Messages waiting for the loop.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.dispatches, m.duration, m.queueDepth)
	}
	return m
}

func (m *Metrics) observe(outcome ir.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(string(outcome)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
