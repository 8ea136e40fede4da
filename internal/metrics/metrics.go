// Package metrics holds the Prometheus collectors for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quizproc"

var (
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
	}, []string{"route"})

	ActiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_requests",
		Help:      "Requests currently holding a processing slot.",
	})

	Pages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pages_processed_total",
		Help:      "Pages processed by text source (text-layer, ocr, empty).",
	}, []string{"method"})

	OCRAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ocr_attempts_total",
		Help:      "OCR passes by outcome (ok, low_yield, error).",
	}, []string{"outcome"})

	Questions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "questions_extracted_total",
		Help:      "Questions returned to callers.",
	})

	Tables = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tables_detected_total",
		Help:      "Table regions emitted by the detector.",
	})

	Anomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "anomalies_total",
		Help:      "Recovered per-page or per-question anomalies by kind.",
	}, []string{"kind"})
)

// Anomaly kinds.
const (
	AnomalyOCRFailure        = "ocr_failure"
	AnomalyTableAmbiguous    = "table_ambiguous"
	AnomalyDanglingCorrect   = "dangling_correct"
	AnomalyEmptyBlock        = "empty_block"
	AnomalyEmbedUnavailable  = "embedding_unavailable"
	AnomalyPageExtractFailed = "page_extract_failed"
)
