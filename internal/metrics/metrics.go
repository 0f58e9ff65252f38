// Package metrics exposes the pipeline's Prometheus counters. All
// collectors register on a package-local registry so tests can read
// them without fighting the global default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	// RecordsIngested counts records routed to sinks, by month.
	RecordsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crime_records_ingested_total",
		Help: "Normalized crime records routed to output sinks.",
	}, []string{"month"})

	// RecordsMalformed counts CSV lines dropped during parsing.
	RecordsMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crime_records_malformed_total",
		Help: "CSV lines dropped as malformed during parsing.",
	})

	// ScrapeRuns counts per-month scrape outcomes.
	ScrapeRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crime_scrape_runs_total",
		Help: "Per-month scrape runs by terminal status.",
	}, []string{"status"})

	// PostcodeLookups counts geocoding calls by outcome.
	PostcodeLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crime_postcode_lookups_total",
		Help: "Postcode geocoding lookups by outcome (ok, not_found, error).",
	}, []string{"outcome"})
)

func init() {
	registry.MustRegister(
		RecordsIngested,
		RecordsMalformed,
		ScrapeRuns,
		PostcodeLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry for GET /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
