package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xswap/pkg/types"
)

const namespace = "xswap"

// Metrics collects settlement and relay metrics. A nil *Metrics records
// nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	closeOutcomes *prometheus.CounterVec
	settled       *prometheus.CounterVec
	relayJobs     *prometheus.CounterVec
	registry      *prometheus.Registry
}

// New creates metrics registered on their own registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "operations_total",
				Help:      "Registry operations by result reason code",
			},
			[]string{"chain", "op", "result"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "operation_duration_seconds",
				Help:      "Registry operation latency",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"op"},
		),
		closeOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "close_outcomes_total",
				Help:      "Closed remote swaps by outcome",
			},
			[]string{"chain", "outcome"},
		),
		settled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "settled_swaps_total",
				Help:      "Source-chain swaps closed by claim, batch claim or refund",
			},
			[]string{"chain", "via"},
		),
		relayJobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "jobs_total",
				Help:      "Relay jobs by kind and final status",
			},
			[]string{"kind", "status"},
		),
	}
}

// ObserveOperation records one registry call
func (m *Metrics) ObserveOperation(chainID uint64, op string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = types.ReasonCode(err)
	}
	m.operations.WithLabelValues(chain(chainID), op, result).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// CloseOutcome records the outcome of a closeSwap or lockCloseSwap
func (m *Metrics) CloseOutcome(chainID uint64, outcome types.CloseOutcome) {
	if m == nil {
		return
	}
	m.closeOutcomes.WithLabelValues(chain(chainID), outcome.String()).Inc()
}

// Settled records n source-chain swaps closed via one of claim, batch_claim or refund
func (m *Metrics) Settled(chainID uint64, via string, n int) {
	if m == nil {
		return
	}
	m.settled.WithLabelValues(chain(chainID), via).Add(float64(n))
}

// RelayJob records a finished relay job
func (m *Metrics) RelayJob(kind, status string) {
	if m == nil {
		return
	}
	m.relayJobs.WithLabelValues(kind, status).Inc()
}

// Handler serves the metrics in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func chain(id uint64) string {
	return strconv.FormatUint(id, 10)
}
