// Package metrics exposes Prometheus instrumentation for experiment sessions.
//
// A nil *Metrics is valid; every method is then a no-op, so components can
// be used without a registry.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trialrun"

// Metrics holds the collectors of one registry.
type Metrics struct {
	trialsSaved     *prometheus.CounterVec
	trialRepeats    prometheus.Counter
	responses       *prometheus.CounterVec
	responseLatency prometheus.Histogram
	aborted         prometheus.Counter
	ticks           prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		trialsSaved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_saved_total",
			Help:      "Trials written to the results, by validity.",
		}, []string{"valid"}),
		trialRepeats: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trial_repeats_total",
			Help:      "Invalid trials presented again.",
		}),
		responses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Response outcomes: response, double_press or timeout.",
		}, []string{"outcome"}),
		responseLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_latency_seconds",
			Help:      "Time from trial start to the accepted response.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 1.5, 14), // 100ms to ~19s
		}),
		aborted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_aborted_total",
			Help:      "Sessions ended by the abort key.",
		}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Scheduler ticks run.",
		}),
	}
}

// Handler serves the metrics of gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveResponse counts a response outcome.
func (m *Metrics) ObserveResponse(outcome string) {
	if m == nil {
		return
	}
	m.responses.WithLabelValues(outcome).Inc()
}

// ObserveSaved counts a saved trial and, when it had a response, its latency.
func (m *Metrics) ObserveSaved(valid bool, latencySeconds float64) {
	if m == nil {
		return
	}
	m.trialsSaved.WithLabelValues(strconv.FormatBool(valid)).Inc()
	if latencySeconds > 0 {
		m.responseLatency.Observe(latencySeconds)
	}
}

// ObserveRepeat counts a repeated trial.
func (m *Metrics) ObserveRepeat() {
	if m == nil {
		return
	}
	m.trialRepeats.Inc()
}

// ObserveAbort counts an aborted session.
func (m *Metrics) ObserveAbort() {
	if m == nil {
		return
	}
	m.aborted.Inc()
}

// ObserveTick counts a scheduler tick.
func (m *Metrics) ObserveTick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}
