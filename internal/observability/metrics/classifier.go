package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ClassifierMetrics contains Prometheus metrics for the image
// classification boundary.
type ClassifierMetrics struct {
	registry *prometheus.Registry

	classificationsTotal   *prometheus.CounterVec
	classificationDuration prometheus.Histogram
	confidenceGauge        prometheus.Gauge
	imageSizeBytes         prometheus.Histogram
}

// NewClassifierMetrics creates and registers new classifier metrics
func NewClassifierMetrics(registry *prometheus.Registry) (*ClassifierMetrics, error) {
	m := &ClassifierMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ClassifierMetrics) initMetrics() {
	m.classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifications_total",
			Help: "Total number of image classification requests",
		},
		[]string{"status"}, // status: success, error
	)

	m.classificationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "classification_duration_seconds",
			Help: "Time taken for one classification round-trip",
			// Inference endpoints cold-start, so the range reaches ~4 minutes
			Buckets: prometheus.ExponentialBuckets(BucketStart1s, BucketFactor2, BucketCount8),
		},
	)

	m.confidenceGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "classification_last_confidence",
		Help: "Confidence of the most recent classification",
	})

	m.imageSizeBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "classification_image_size_bytes",
			Help:    "Size of submitted images",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)
}

// Describe implements the Collector interface
func (m *ClassifierMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.classificationsTotal.Describe(ch)
	m.classificationDuration.Describe(ch)
	m.confidenceGauge.Describe(ch)
	m.imageSizeBytes.Describe(ch)
}

// Collect implements the Collector interface
func (m *ClassifierMetrics) Collect(ch chan<- prometheus.Metric) {
	m.classificationsTotal.Collect(ch)
	m.classificationDuration.Collect(ch)
	m.confidenceGauge.Collect(ch)
	m.imageSizeBytes.Collect(ch)
}

// RecordClassification records one classification attempt
func (m *ClassifierMetrics) RecordClassification(status string) {
	m.classificationsTotal.WithLabelValues(status).Inc()
}

// RecordClassificationDuration records the round-trip time in seconds
func (m *ClassifierMetrics) RecordClassificationDuration(duration float64) {
	m.classificationDuration.Observe(duration)
}

// UpdateConfidence records the confidence of the latest guess
func (m *ClassifierMetrics) UpdateConfidence(confidence float64) {
	m.confidenceGauge.Set(confidence)
}

// RecordImageSize records the byte size of a submitted image
func (m *ClassifierMetrics) RecordImageSize(size int) {
	m.imageSizeBytes.Observe(float64(size))
}
