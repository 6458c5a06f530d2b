// Package metrics exports engine request outcomes to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evvm-org/p2pswap/internal/evvm"
	"github.com/evvm-org/p2pswap/internal/nonce"
	"github.com/evvm-org/p2pswap/internal/p2pswap"
	"github.com/evvm-org/p2pswap/internal/timelock"
)

const namespace = "p2pswap"

// Recorder implements p2pswap.Observer on its own registry.
type Recorder struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	openOrders prometheus.Gauge
}

// New creates a Recorder with the Go runtime and process collectors
// registered alongside the engine metrics.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Engine requests by operation and result.",
		}, []string{"op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Engine request latency by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		openOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_orders",
			Help:      "Open orders across all markets.",
		}),
	}
	r.registry.MustRegister(
		r.requests,
		r.latency,
		r.openOrders,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveRequest counts one request and records its latency.
func (r *Recorder) ObserveRequest(op string, err error, elapsed time.Duration) {
	r.requests.WithLabelValues(op, Result(err)).Inc()
	r.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SetOpenOrders reports the current number of open orders.
func (r *Recorder) SetOpenOrders(n uint64) {
	r.openOrders.Set(float64(n))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Result maps a request error to a bounded label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, p2pswap.ErrInvalidSignature),
		errors.Is(err, evvm.ErrInvalidPaymentSignature),
		errors.Is(err, evvm.ErrExecutorMismatch):
		return "invalid_signature"
	case errors.Is(err, nonce.ErrNonceUsed), errors.Is(err, nonce.ErrNonceSequence):
		return "nonce"
	case errors.Is(err, p2pswap.ErrMarketNotFound), errors.Is(err, p2pswap.ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, p2pswap.ErrNotOrderOwner), errors.Is(err, p2pswap.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, p2pswap.ErrInsufficientFill):
		return "insufficient_fill"
	case errors.Is(err, evvm.ErrInsufficientBalance), errors.Is(err, p2pswap.ErrInsufficientReserve):
		return "insufficient_funds"
	case errors.Is(err, timelock.ErrNoProposal), errors.Is(err, timelock.ErrWindowClosed):
		return "timelock"
	default:
		return "error"
	}
}
