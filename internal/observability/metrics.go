// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application and implements Sink.
// Names carry no namespace.
type Metrics struct {
	// Cycle metrics
	IngestCalls    prometheus.Counter
	IngestErrors   prometheus.Counter
	IngestDuration prometheus.Summary
	LastIngest     prometheus.Gauge
	CyclesSkipped  prometheus.Counter

	// Feature stage metrics
	PreprocessDuration prometheus.Gauge
	MissingValues      prometheus.Gauge

	// Row metrics
	RawRowsInserted     prometheus.Counter
	FeatureRowsInserted prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		IngestCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: IngestCallsTotal,
			Help: "Total number of successful ingest cycles",
		}),
		IngestErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: IngestErrorsTotal,
			Help: "Total number of failed ingest cycles",
		}),
		IngestDuration: factory.NewSummary(prometheus.SummaryOpts{
			Name:       IngestDurationSeconds,
			Help:       "Wall-clock duration of ingest cycles",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}),
		LastIngest: factory.NewGauge(prometheus.GaugeOpts{
			Name: LastIngestTimestamp,
			Help: "Unix time of the last successful ingest cycle",
		}),
		CyclesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: CyclesSkippedTotal,
			Help: "Total number of cycles skipped because another cycle held the lock",
		}),
		PreprocessDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: PreprocessDurationSeconds,
			Help: "Duration of the last feature derivation stage",
		}),
		MissingValues: factory.NewGauge(prometheus.GaugeOpts{
			Name: MissingValuesCount,
			Help: "Raw rows dropped by cleaning in the last feature derivation stage",
		}),
		RawRowsInserted: factory.NewCounter(prometheus.CounterOpts{
			Name: RawRowsInsertedTotal,
			Help: "Total number of raw price rows inserted",
		}),
		FeatureRowsInserted: factory.NewCounter(prometheus.CounterOpts{
			Name: FeatureRowsInsertedTotal,
			Help: "Total number of feature rows inserted",
		}),
	}
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// IncCounter implements Sink.
func (m *Metrics) IncCounter(name string) {
	m.AddCounter(name, 1)
}

// AddCounter implements Sink.
func (m *Metrics) AddCounter(name string, delta float64) {
	if c := m.counter(name); c != nil {
		c.Add(delta)
	}
}

// Observe implements Sink.
func (m *Metrics) Observe(name string, value float64) {
	if name == IngestDurationSeconds {
		m.IngestDuration.Observe(value)
	}
}

// SetGauge implements Sink.
func (m *Metrics) SetGauge(name string, value float64) {
	switch name {
	case LastIngestTimestamp:
		m.LastIngest.Set(value)
	case PreprocessDurationSeconds:
		m.PreprocessDuration.Set(value)
	case MissingValuesCount:
		m.MissingValues.Set(value)
	}
}

func (m *Metrics) counter(name string) prometheus.Counter {
	switch name {
	case IngestCallsTotal:
		return m.IngestCalls
	case IngestErrorsTotal:
		return m.IngestErrors
	case CyclesSkippedTotal:
		return m.CyclesSkipped
	case RawRowsInsertedTotal:
		return m.RawRowsInserted
	case FeatureRowsInsertedTotal:
		return m.FeatureRowsInserted
	default:
		return nil
	}
}

var _ Sink = (*Metrics)(nil)
