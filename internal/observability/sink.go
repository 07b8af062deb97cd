package observability

import "sync"

// Metric names exposed by the pipeline.
const (
	IngestCallsTotal          = "ingest_calls_total"
	IngestErrorsTotal         = "ingest_errors_total"
	IngestDurationSeconds     = "ingest_duration_seconds"
	LastIngestTimestamp       = "last_ingest_timestamp_unixtime"
	PreprocessDurationSeconds = "preprocess_duration_seconds"
	MissingValuesCount        = "missing_values_count"
	RawRowsInsertedTotal      = "raw_rows_inserted_total"
	FeatureRowsInsertedTotal  = "feature_rows_inserted_total"
	CyclesSkippedTotal        = "cycles_skipped_total"
)

// Sink receives metric updates. Implementations must be safe for
// concurrent use and must ignore unknown names.
type Sink interface {
	IncCounter(name string)
	AddCounter(name string, delta float64)
	Observe(name string, value float64)
	SetGauge(name string, value float64)
}

// NopSink discards all updates.
type NopSink struct{}

func (NopSink) IncCounter(string)          {}
func (NopSink) AddCounter(string, float64) {}
func (NopSink) Observe(string, float64)    {}
func (NopSink) SetGauge(string, float64)   {}

// RecordingSink keeps updates in memory for inspection in tests.
type RecordingSink struct {
	mu           sync.Mutex
	counters     map[string]float64
	gauges       map[string]float64
	observations map[string][]float64
}

// NewRecordingSink creates an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{
		counters:     make(map[string]float64),
		gauges:       make(map[string]float64),
		observations: make(map[string][]float64),
	}
}

func (s *RecordingSink) IncCounter(name string) {
	s.AddCounter(name, 1)
}

func (s *RecordingSink) AddCounter(name string, delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] += delta
}

func (s *RecordingSink) Observe(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations[name] = append(s.observations[name], value)
}

func (s *RecordingSink) SetGauge(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[name] = value
}

// Counter returns the current value of a counter.
func (s *RecordingSink) Counter(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name]
}

// Gauge returns the last value set on a gauge and whether it was ever set.
func (s *RecordingSink) Gauge(name string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.gauges[name]
	return v, ok
}

// Observations returns a copy of the values observed for name.
func (s *RecordingSink) Observations(name string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.observations[name]...)
}

var (
	_ Sink = NopSink{}
	_ Sink = (*RecordingSink)(nil)
)
