package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsense_query_duration_seconds",
			Help:    "Query pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsense_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	RetrievalSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docsense_retrieval_skipped_total",
			Help: "Queries answered without retrieval (casual intent)",
		},
	)

	ChunksRetrieved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docsense_chunks_retrieved_count",
			Help:    "Candidate chunks returned per retrieval",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	ValidationViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsense_validation_violations_total",
			Help: "Responses that violated their mode contract",
		},
		[]string{"mode"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsense_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsense_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsense_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docsense_documents_processed_total",
			Help: "Total documents ingested",
		},
	)

	ChunksIndexed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docsense_chunks_indexed_total",
			Help: "Total chunks currently in the vector store",
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(RetrievalSkipped)
	prometheus.MustRegister(ChunksRetrieved)
	prometheus.MustRegister(ValidationViolations)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(ChunksIndexed)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
