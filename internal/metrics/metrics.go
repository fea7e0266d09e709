// ABOUTME: Prometheus metrics for ingestion, embedding and answering
// ABOUTME: Registered once on the default registry and served at /metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FragmentsExtracted counts fragments emitted by the extractor per kind
	FragmentsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfrag_fragments_total",
		Help: "Fragments extracted from PDFs",
	}, []string{"kind"})

	// FragmentsSkipped counts fragments dropped with a diagnostic
	FragmentsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfrag_skipped_fragments_total",
		Help: "Fragments skipped because of decode, OCR or embedding failures",
	}, []string{"kind"})

	IngestFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfrag_ingest_files_total",
		Help: "Files processed by the ingestion pipeline",
	}, []string{"status"})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pdfrag_ingest_duration_seconds",
		Help:    "Time to extract, chunk and index one file",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	Answers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfrag_answers_total",
		Help: "Questions answered",
	}, []string{"status"})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pdfrag_generation_duration_seconds",
		Help:    "Latency of the language model call including retries",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	EmbeddingCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdfrag_embedding_cache_total",
		Help: "Embedding cache lookups by result",
	}, []string{"result"})
)

// Status label values
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusEmpty = "empty_context"
)
