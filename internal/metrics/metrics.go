// Package metrics exports settle outcomes as Prometheus metrics.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cboone/settle"
)

var (
	Outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_outcomes_total", Help: "Finished polls and confirmations by outcome.",
	}, []string{"operation", "kind"})
	Attempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settle_attempts",
		Help:    "Samples taken per poll or confirmation.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"operation"})
	Duration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settle_duration_seconds",
		Help:    "Time from start to outcome.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"operation"})
	Fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_fallback_total", Help: "Confirmations that waited the fixed delay instead of a completion signal.",
	}, []string{"operation"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settle_errors_total", Help: "Runs that ended with an error other than a timeout or terminal outcome.",
	}, []string{"operation"})
)

// Kind labels for runs that ended without an outcome.
const KindError = "error"

// Recorder is a settle.Observer feeding the package metrics.
type Recorder struct{}

// Observe records r.
func (Recorder) Observe(r settle.Report) {
	kind := r.Kind.String()
	if r.Err != nil && !errors.Is(r.Err, settle.ErrTimeout) && !errors.Is(r.Err, settle.ErrTerminal) {
		kind = KindError
		Errors.WithLabelValues(r.Operation).Inc()
	}
	Outcomes.WithLabelValues(r.Operation, kind).Inc()
	Attempts.WithLabelValues(r.Operation).Observe(float64(r.Attempts))
	Duration.WithLabelValues(r.Operation).Observe(r.Elapsed.Seconds())
	if r.FellBack {
		Fallbacks.WithLabelValues(r.Operation).Inc()
	}
}

// WriteTextfile writes every registered metric to path in the text
// exposition format, for the node_exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
