package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the service's collectors on a private prometheus registry.
type Registry struct {
	reg                *prometheus.Registry
	Uploads            *prometheus.CounterVec
	ExtractionFailures *prometheus.CounterVec
	ItemsInserted      prometheus.Counter
	ItemUpdates        *prometheus.CounterVec
	ExtractionSeconds  prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quotecompare_uploads_total",
		Help: "Documents successfully extracted and stored, by extraction mode.",
	}, []string{"mode"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quotecompare_extraction_failures_total",
		Help: "Uploads rejected because no line items could be produced.",
	}, []string{"reason"})
	inserted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quotecompare_items_inserted_total",
	})
	updates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quotecompare_item_updates_total",
	}, []string{"result"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "quotecompare_extraction_seconds",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	r.MustRegister(uploads, failures, inserted, updates, latency)
	return &Registry{
		reg:                r,
		Uploads:            uploads,
		ExtractionFailures: failures,
		ItemsInserted:      inserted,
		ItemUpdates:        updates,
		ExtractionSeconds:  latency,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
