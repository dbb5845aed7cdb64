package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	splits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfslicer",
			Name:      "documents_split_total",
			Help:      "Source documents split into pages by result",
		},
		[]string{"result"},
	)

	pagesSplit = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdfslicer",
			Name:      "pages_split_total",
			Help:      "Single-page documents produced by the splitter",
		},
	)

	renderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfslicer",
			Name:      "render_duration_seconds",
			Help:      "Page rasterization duration by purpose (preview, export)",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"purpose"},
	)

	exports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfslicer",
			Name:      "exports_total",
			Help:      "Page exports by format and result",
		},
		[]string{"format", "result"},
	)

	providerReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfslicer",
			Name:      "provider_requests_total",
			Help:      "AI provider requests by provider, model and result",
		},
		[]string{"provider", "model", "result"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfslicer",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of AI provider requests by provider and model",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)

	batchItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfslicer",
			Name:      "batch_items_total",
			Help:      "Batch items by operation and result (ok, failed, skipped)",
		},
		[]string{"op", "result"},
	)

	openDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdfslicer",
			Name:      "open_documents",
			Help:      "Workspaces currently held by the registry",
		},
	)
)

var once sync.Once

// Init registers collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(splits, pagesSplit, renderLatency, exports, providerReqs, providerLatency, batchItems, openDocuments)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncSplit(result string, pages int) {
	splits.WithLabelValues(result).Inc()
	if pages > 0 {
		pagesSplit.Add(float64(pages))
	}
}

func ObserveRender(purpose string, dur time.Duration) { renderLatency.WithLabelValues(purpose).Observe(dur.Seconds()) }

func IncExport(format, result string) { exports.WithLabelValues(format, result).Inc() }

func ObserveProvider(provider, model, result string, dur time.Duration) {
	providerReqs.WithLabelValues(provider, model, result).Inc()
	providerLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func IncBatchItem(op, result string) { batchItems.WithLabelValues(op, result).Inc() }

func SetOpenDocuments(n int) { openDocuments.Set(float64(n)) }
