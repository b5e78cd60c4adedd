// Package metrics holds the Prometheus collectors of the upload service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chunkstore"

// Result label values.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Metrics groups the collectors. All methods are safe on a nil receiver so
// components can be built without instrumentation.
type Metrics struct {
	chunksReceived   prometheus.Counter
	bytesReceived    prometheus.Counter
	assemblies       *prometheus.CounterVec
	assemblyDuration prometheus.Histogram
	assembledBytes   prometheus.Counter
	deletions        *prometheus.CounterVec
	retrievals       *prometheus.CounterVec
	archiveErrors    *prometheus.CounterVec
	sweptUploads     prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		chunksReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_received_total",
			Help:      "Chunks written to a submission directory.",
		}),
		bytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_received_total",
			Help:      "Bytes written as chunks.",
		}),
		assemblies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assemblies_total",
			Help:      "Assembly attempts by result.",
		}, []string{"result"}),
		assemblyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assembly_duration_seconds",
			Help:      "Time spent concatenating chunks and recording metadata.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		assembledBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assembled_bytes_total",
			Help:      "Bytes of successfully assembled files.",
		}),
		deletions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletions_total",
			Help:      "Delete requests by result.",
		}, []string{"result"}),
		retrievals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "File retrievals by result.",
		}, []string{"result"}),
		archiveErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_errors_total",
			Help:      "Failed archive mirror operations.",
		}, []string{"op"}),
		sweptUploads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_uploads_total",
			Help:      "Stale partial uploads removed by the sweeper.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) ChunkReceived(size int64) {
	if m == nil {
		return
	}
	m.chunksReceived.Inc()
	m.bytesReceived.Add(float64(size))
}

// Assembled records a finished assembly. size is ignored unless result is ResultOK.
func (m *Metrics) Assembled(result string, size int64, took time.Duration) {
	if m == nil {
		return
	}
	m.assemblies.WithLabelValues(result).Inc()
	m.assemblyDuration.Observe(took.Seconds())
	if result == ResultOK {
		m.assembledBytes.Add(float64(size))
	}
}

func (m *Metrics) Deleted(result string) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(result).Inc()
}

func (m *Metrics) Retrieved(result string) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(result).Inc()
}

func (m *Metrics) ArchiveFailed(op string) {
	if m == nil {
		return
	}
	m.archiveErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil {
		return
	}
	m.sweptUploads.Add(float64(n))
}

func (m *Metrics) ObserveHTTP(route string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(took.Seconds())
}
