// Package metrics holds the Prometheus collectors shared by the worklist,
// bridge and ingestion components. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "worklist"

type Metrics struct {
	registry *prometheus.Registry

	IngestFiles     *prometheus.CounterVec
	IngestStudies   prometheus.Counter
	SeriesFetches   *prometheus.CounterVec
	BridgeMessages  *prometheus.CounterVec
	GuardRejections prometheus.Counter
	StudySearches   *prometheus.CounterVec
}

// New registers every collector on a fresh registry, plus the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		IngestFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_files_total",
			Help:      "Files handed to the study loader, by outcome.",
		}, []string{"outcome"}),
		IngestStudies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_studies_total",
			Help:      "Distinct studies produced by ingestion.",
		}),
		SeriesFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_fetches_total",
			Help:      "Series lookups triggered by row expansion, by outcome.",
		}, []string{"outcome"}),
		BridgeMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_messages_total",
			Help:      "Cross-window messages received, by kind and disposition.",
		}, []string{"kind", "disposition"}),
		GuardRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_guard_rejections_total",
			Help:      "Forward page moves dropped by the paging guard.",
		}),
		StudySearches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "study_searches_total",
			Help:      "Study queries issued to the data source, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.IngestFiles, m.IngestStudies, m.SeriesFetches,
		m.BridgeMessages, m.GuardRejections, m.StudySearches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) IngestedFile(err error) {
	if m == nil {
		return
	}
	m.IngestFiles.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) IngestedStudies(n int) {
	if m == nil {
		return
	}
	m.IngestStudies.Add(float64(n))
}

func (m *Metrics) SeriesFetched(err error) {
	if m == nil {
		return
	}
	m.SeriesFetches.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) BridgeMessage(kind, disposition string) {
	if m == nil {
		return
	}
	m.BridgeMessages.WithLabelValues(kind, disposition).Inc()
}

func (m *Metrics) GuardRejected() {
	if m == nil {
		return
	}
	m.GuardRejections.Inc()
}

func (m *Metrics) StudySearch(err error) {
	if m == nil {
		return
	}
	m.StudySearches.WithLabelValues(outcome(err)).Inc()
}
