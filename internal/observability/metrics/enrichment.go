package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EnrichmentMetrics contains Prometheus metrics for the enrichment
// pipeline and its provider fan-out.
type EnrichmentMetrics struct {
	registry *prometheus.Registry

	enrichmentsTotal   *prometheus.CounterVec
	enrichmentDuration prometheus.Histogram

	providerStatusTotal *prometheus.CounterVec
	providerDuration    *prometheus.HistogramVec

	inputErrorsTotal *prometheus.CounterVec
}

// NewEnrichmentMetrics creates and registers new enrichment metrics
func NewEnrichmentMetrics(registry *prometheus.Registry) (*EnrichmentMetrics, error) {
	m := &EnrichmentMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *EnrichmentMetrics) initMetrics() {
	m.enrichmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichments_total",
			Help: "Total number of enrichment requests",
		},
		[]string{"status"}, // status: success, input_error
	)

	m.enrichmentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "enrichment_duration_seconds",
			Help: "Time taken to assemble one enriched result",
			// 100ms to ~100s covers a full provider fan-out including timeouts
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount10),
		},
	)

	m.providerStatusTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_provider_status_total",
			Help: "Provider consultation outcomes per provider",
		},
		[]string{"provider", "status"}, // status: ok, timeout, not_found, error
	)

	m.providerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrichment_provider_duration_seconds",
			Help:    "Time spent waiting on each provider",
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount8),
		},
		[]string{"provider"},
	)

	m.inputErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_input_errors_total",
			Help: "Total number of requests rejected for invalid input",
		},
		[]string{"reason"}, // reason: label, coordinate, language
	)
}

// Describe implements the Collector interface
func (m *EnrichmentMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.enrichmentsTotal.Describe(ch)
	m.enrichmentDuration.Describe(ch)
	m.providerStatusTotal.Describe(ch)
	m.providerDuration.Describe(ch)
	m.inputErrorsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *EnrichmentMetrics) Collect(ch chan<- prometheus.Metric) {
	m.enrichmentsTotal.Collect(ch)
	m.enrichmentDuration.Collect(ch)
	m.providerStatusTotal.Collect(ch)
	m.providerDuration.Collect(ch)
	m.inputErrorsTotal.Collect(ch)
}

// RecordEnrichment records one completed enrichment request
func (m *EnrichmentMetrics) RecordEnrichment(status string) {
	m.enrichmentsTotal.WithLabelValues(status).Inc()
}

// RecordEnrichmentDuration records the total assembly time in seconds
func (m *EnrichmentMetrics) RecordEnrichmentDuration(duration float64) {
	m.enrichmentDuration.Observe(duration)
}

// RecordProviderStatus records one provider consultation outcome
func (m *EnrichmentMetrics) RecordProviderStatus(provider, status string) {
	m.providerStatusTotal.WithLabelValues(provider, status).Inc()
}

// RecordProviderDuration records the wait time for one provider in seconds
func (m *EnrichmentMetrics) RecordProviderDuration(provider string, duration float64) {
	m.providerDuration.WithLabelValues(provider).Observe(duration)
}

// RecordInputError records a request rejected before any provider ran
func (m *EnrichmentMetrics) RecordInputError(reason string) {
	m.inputErrorsTotal.WithLabelValues(reason).Inc()
}
