// Package metrics defines the host and engine metrics.
package metrics

import (
	"errors"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "ndvm"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Frames dispatched by the host, by opcode.
	Requests metrics.Counter
	// Seconds spent dispatching a frame, by opcode.
	RequestDuration metrics.Histogram `metrics_buckettype:"exp" metrics_bucketsizes:"0.0001, 4, 10"`
	// Connections torn down by a transport failure.
	TransportErrors metrics.Counter
	// Validator votes received by the host, by agreement.
	Votes metrics.Counter
	// Terminal outcomes, by result code.
	Outcomes metrics.Counter
	// Sandboxes currently running.
	Sandboxes metrics.Gauge
	// Nondet calls finished by the engine, by role.
	NondetCalls metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) (*Metrics, error) {
	if len(labelsAndValues)%2 != 0 {
		return nil, errors.New("uneven number of labels and values; labels and values should be provided in pairs")
	}
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Requests: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "requests_total",
			Help:      "Number of guest frames dispatched by the host.",
		}, append(labels, "opcode")).With(labelsAndValues...),
		RequestDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "request_duration_seconds",
			Help:      "Time spent dispatching one guest frame.",

			Buckets: stdprometheus.ExponentialBuckets(0.0001, 4, 10),
		}, append(labels, "opcode")).With(labelsAndValues...),
		TransportErrors: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "transport_errors_total",
			Help:      "Number of guest connections torn down by a transport failure.",
		}, labels).With(labelsAndValues...),
		Votes: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "votes_total",
			Help:      "Number of validator votes received.",
		}, append(labels, "agree")).With(labelsAndValues...),
		Outcomes: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "outcomes_total",
			Help:      "Number of terminal invocation outcomes.",
		}, append(labels, "code")).With(labelsAndValues...),
		Sandboxes: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "sandboxes",
			Help:      "Number of sandboxes currently running.",
		}, labels).With(labelsAndValues...),
		NondetCalls: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "nondet_calls_total",
			Help:      "Number of nondet calls finished by the engine.",
		}, append(labels, "role")).With(labelsAndValues...),
	}, nil
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Requests:        discard.NewCounter(),
		RequestDuration: discard.NewHistogram(),
		TransportErrors: discard.NewCounter(),
		Votes:           discard.NewCounter(),
		Outcomes:        discard.NewCounter(),
		Sandboxes:       discard.NewGauge(),
		NondetCalls:     discard.NewCounter(),
	}
}

// Provider returns Metrics for a namespace.
type Provider func(namespace string) (*Metrics, error)

// DefaultProvider returns Prometheus metrics if enabled. Otherwise, it
// returns no-op Metrics.
func DefaultProvider(enabled bool) Provider {
	return func(namespace string) (*Metrics, error) {
		if enabled {
			return PrometheusMetrics(namespace)
		}
		return NopMetrics(), nil
	}
}
