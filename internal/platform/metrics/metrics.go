package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the media pipeline.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	resolutionsTotal       prometheus.Counter
	downloadsTotal         prometheus.Counter
	providerFallbacksTotal *prometheus.CounterVec
	sweeperDeletedTotal    prometheus.Counter
	activeDownloads        prometheus.Gauge
}

// New creates and registers Prometheus metrics for the media pipeline.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	resolutionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_resolutions_total",
		Help: "Total number of successful URL resolutions",
	})
	downloadsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_downloads_total",
		Help: "Total number of download streams started",
	})
	providerFallbacksTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_provider_fallbacks_total",
		Help: "Times a provider failed and control passed to the next one",
	}, []string{"provider"})
	sweeperDeletedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_sweeper_deleted_total",
		Help: "Files removed by the retention sweeper",
	})
	activeDownloads := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "media_active_downloads",
		Help: "Download streams currently in flight",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		resolutionsTotal,
		downloadsTotal,
		providerFallbacksTotal,
		sweeperDeletedTotal,
		activeDownloads,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		errorsTotal:            errorsTotal,
		resolutionsTotal:       resolutionsTotal,
		downloadsTotal:         downloadsTotal,
		providerFallbacksTotal: providerFallbacksTotal,
		sweeperDeletedTotal:    sweeperDeletedTotal,
		activeDownloads:        activeDownloads,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncResolutions increments the successful resolution counter.
func (m *Metrics) IncResolutions() {
	m.resolutionsTotal.Inc()
}

// IncDownloads increments the started download counter.
func (m *Metrics) IncDownloads() {
	m.downloadsTotal.Inc()
}

// IncProviderFallback records one fallback away from the named provider.
func (m *Metrics) IncProviderFallback(provider string) {
	m.providerFallbacksTotal.WithLabelValues(provider).Inc()
}

// AddSwept adds n to the sweeper deletion counter.
func (m *Metrics) AddSwept(n int) {
	m.sweeperDeletedTotal.Add(float64(n))
}

// DownloadStarted increments the in-flight download gauge.
func (m *Metrics) DownloadStarted() {
	m.activeDownloads.Inc()
}

// DownloadFinished decrements the in-flight download gauge.
func (m *Metrics) DownloadFinished() {
	m.activeDownloads.Dec()
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
