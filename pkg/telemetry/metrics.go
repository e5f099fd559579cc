// Package telemetry exposes the pipeline's Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PagesFetched counts remote pages retrieved, labeled by kind
	// ("history" or "replies").
	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slacklytics",
		Subsystem: "ingest",
		Name:      "pages_fetched_total",
		Help:      "Number of message pages fetched from the remote source.",
	}, []string{"kind"})

	// MessagesIngested counts messages normalized and buffered for
	// indexing.
	MessagesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "slacklytics",
		Subsystem: "ingest",
		Name:      "messages_total",
		Help:      "Number of messages normalized during ingestion.",
	})

	// MessagesSkipped counts raw records dropped because they could
	// not be normalized.
	MessagesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "slacklytics",
		Subsystem: "ingest",
		Name:      "messages_skipped_total",
		Help:      "Number of raw records skipped as malformed.",
	})

	// DocumentsIndexed / DocumentsFailed tally the store's bulk-write
	// accounting.
	DocumentsIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "slacklytics",
		Subsystem: "store",
		Name:      "documents_indexed_total",
		Help:      "Number of documents accepted by bulk writes.",
	})
	DocumentsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "slacklytics",
		Subsystem: "store",
		Name:      "documents_failed_total",
		Help:      "Number of documents rejected by bulk writes.",
	})

	// RetryAttempts counts backoff retries, labeled by operation.
	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slacklytics",
		Name:      "retry_attempts_total",
		Help:      "Number of retry attempts performed, by operation.",
	}, []string{"op"})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler { return promhttp.Handler() }
