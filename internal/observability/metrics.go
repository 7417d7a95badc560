package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

// Metrics is nil when metrics are disabled; every method is a no-op on nil.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	scansStarted   prometheus.Counter
	scansFinished  *prometheus.CounterVec
	scanDuration   prometheus.Histogram
	activeScans    prometheus.Gauge
	recoveries     *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	uploadLatency  prometheus.Histogram
	storeResolves  *prometheus.CounterVec
	quotaDecisions *prometheus.CounterVec
	relayMessages  *prometheus.CounterVec
}

// Init returns nil when metrics are disabled, which turns every recorder into a no-op.
func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	log.Info("metrics enabled", "endpoint", "/metrics")
	return New()
}

// New builds a metrics set on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_api_request_duration_seconds",
			Help:    "API request latency by method/route/status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		scansStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_scans_started_total",
			Help: "Scans started.",
		}),
		scansFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_scans_finished_total",
			Help: "Scans finished by outcome.",
		}, []string{"outcome"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_scan_duration_seconds",
			Help:    "Wall-clock time from scan start to terminal state.",
			Buckets: []float64{10, 30, 60, 120, 180, 300, 600},
		}),
		activeScans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_active_scans",
			Help: "Scans currently scanning or uploading in this process.",
		}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_session_recoveries_total",
			Help: "Session recoveries by reason.",
		}, []string{"reason"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_document_uploads_total",
			Help: "Per-document upload outcomes.",
		}, []string{"status"}),
		uploadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_document_upload_duration_seconds",
			Help:    "Fetch plus upload time per document.",
			Buckets: prometheus.DefBuckets,
		}),
		storeResolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_store_resolves_total",
			Help: "Course store get-or-create results.",
		}, []string{"result"}),
		quotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_quota_decisions_total",
			Help: "Usage quota decisions.",
		}, []string{"decision"}),
		relayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_published_total",
			Help: "Relay messages published by event.",
		}, []string{"event"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.scansStarted, m.scansFinished, m.scanDuration, m.activeScans, m.recoveries,
		m.uploads, m.uploadLatency, m.storeResolves, m.quotaDecisions, m.relayMessages,
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

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ScanStarted() {
	if m == nil {
		return
	}
	m.scansStarted.Inc()
	m.activeScans.Inc()
}

// ScanFinished records a terminal outcome: complete, up_to_date, failed or recovered.
func (m *Metrics) ScanFinished(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.scansFinished.WithLabelValues(outcome).Inc()
	m.activeScans.Dec()
	if dur > 0 {
		m.scanDuration.Observe(dur.Seconds())
	}
}

func (m *Metrics) ScanResumed() {
	if m == nil {
		return
	}
	m.activeScans.Inc()
}

func (m *Metrics) SessionRecovered(reason string) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveUpload(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(status).Inc()
	if dur > 0 {
		m.uploadLatency.Observe(dur.Seconds())
	}
}

func (m *Metrics) StoreResolved(alreadyExists bool) {
	if m == nil {
		return
	}
	result := "created"
	if alreadyExists {
		result = "existing"
	}
	m.storeResolves.WithLabelValues(result).Inc()
}

func (m *Metrics) QuotaDecision(allowed bool) {
	if m == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "blocked"
	}
	m.quotaDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) RelayPublished(event string) {
	if m == nil {
		return
	}
	m.relayMessages.WithLabelValues(event).Inc()
}
