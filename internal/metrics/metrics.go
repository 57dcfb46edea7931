// Package metrics exposes Prometheus instrumentation for transfer and crypto
// operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all engine metrics.
type Metrics struct {
	transfersTotal    *prometheus.CounterVec
	transferErrors    *prometheus.CounterVec
	transferBytes     *prometheus.CounterVec
	transferDuration  *prometheus.HistogramVec
	cryptoOperations  *prometheus.CounterVec
	cryptoErrors      *prometheus.CounterVec
	metadataRewrites  prometheus.Counter
	multipartAborts   prometheus.Counter
}

// New creates a metrics instance registered on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a metrics instance on a custom registry. Tests use
// this to avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		transfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crabdrop_transfers_total",
			Help: "Completed transfer operations by direction and mode.",
		}, []string{"direction", "mode"}),
		transferErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crabdrop_transfer_errors_total",
			Help: "Failed transfer operations by direction.",
		}, []string{"direction"}),
		transferBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crabdrop_transfer_bytes_total",
			Help: "Bytes moved by direction.",
		}, []string{"direction"}),
		transferDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crabdrop_transfer_duration_seconds",
			Help:    "Transfer operation duration.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"direction"}),
		cryptoOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crabdrop_crypto_operations_total",
			Help: "Chunk encrypt/decrypt operations.",
		}, []string{"operation"}),
		cryptoErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crabdrop_crypto_errors_total",
			Help: "Failed crypto operations.",
		}, []string{"operation"}),
		metadataRewrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "crabdrop_metadata_rewrites_total",
			Help: "Rewrites of the metadata sidecar object.",
		}),
		multipartAborts: factory.NewCounter(prometheus.CounterOpts{
			Name: "crabdrop_multipart_aborts_total",
			Help: "Multipart uploads aborted after a failure.",
		}),
	}
}

// RecordTransfer records a completed transfer.
func (m *Metrics) RecordTransfer(direction, mode string, bytes int64, duration time.Duration) {
	m.transfersTotal.WithLabelValues(direction, mode).Inc()
	m.transferBytes.WithLabelValues(direction).Add(float64(bytes))
	m.transferDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// RecordTransferError records a failed transfer.
func (m *Metrics) RecordTransferError(direction string) {
	m.transferErrors.WithLabelValues(direction).Inc()
}

// RecordCrypto records chunk crypto operations.
func (m *Metrics) RecordCrypto(operation string, n int) {
	m.cryptoOperations.WithLabelValues(operation).Add(float64(n))
}

// RecordCryptoError records a failed crypto operation.
func (m *Metrics) RecordCryptoError(operation string) {
	m.cryptoErrors.WithLabelValues(operation).Inc()
}

// RecordMetadataRewrite records a sidecar rewrite.
func (m *Metrics) RecordMetadataRewrite() {
	m.metadataRewrites.Inc()
}

// RecordMultipartAbort records a best-effort abort.
func (m *Metrics) RecordMultipartAbort() {
	m.multipartAborts.Inc()
}
