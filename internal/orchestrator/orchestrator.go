// Package orchestrator runs one pipeline cycle.
// Flow: fetch → drop non-finite prices → reconcile raw points → read raw history → derive features → write new features
package orchestrator

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crypto-feature-pipeline/internal/domain"
	"crypto-feature-pipeline/internal/ingestion"
	"crypto-feature-pipeline/internal/logger"
	"crypto-feature-pipeline/internal/normalization"
	"crypto-feature-pipeline/internal/observability"
	"crypto-feature-pipeline/internal/storage"
)

// Config is the immutable per-process cycle configuration.
type Config struct {
	CoinID       string
	Symbol       string // defaults to domain.SymbolLabel(CoinID)
	LookbackDays int
	FetchTimeout time.Duration // zero disables the fetch deadline
}

// Orchestrator composes the pipeline stages. It is safe to call RunCycle
// repeatedly but not concurrently; the scheduler serializes cycles.
type Orchestrator struct {
	source       ingestion.PriceSource
	rawStore     storage.RawPointStore
	featureStore storage.FeatureStore
	dedup        *ingestion.Deduplicator
	upserter     *normalization.Upserter
	sink         observability.Sink
	log          logrus.FieldLogger
	cfg          Config
	now          func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Source       ingestion.PriceSource
	RawStore     storage.RawPointStore
	FeatureStore storage.FeatureStore
	Config       Config

	// Optional
	Sink   observability.Sink
	Logger logrus.FieldLogger
	Now    func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg.Symbol == "" {
		cfg.Symbol = domain.SymbolLabel(cfg.CoinID)
	}

	sink := opts.Sink
	if sink == nil {
		sink = observability.NopSink{}
	}

	var log logrus.FieldLogger = logger.Discard()
	if opts.Logger != nil {
		log = opts.Logger
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		source:       opts.Source,
		rawStore:     opts.RawStore,
		featureStore: opts.FeatureStore,
		dedup:        ingestion.NewDeduplicator(opts.RawStore),
		upserter:     normalization.NewUpserter(opts.FeatureStore),
		sink:         sink,
		log:          logger.WithComponent(log, "orchestrator"),
		cfg:          cfg,
		now:          now,
	}
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	CycleID          string        `json:"cycle_id"`
	Fetched          int           `json:"fetched"`
	RawInserted      int           `json:"raw_inserted"`
	FeaturesDerived  int           `json:"features_derived"`
	FeaturesInserted int           `json:"features_inserted"`
	MissingValues    int           `json:"missing_values"`
	Duration         time.Duration `json:"duration_ns"`
}

// Symbol returns the series label the orchestrator writes under.
func (o *Orchestrator) Symbol() string {
	return o.cfg.Symbol
}

// RunCycle executes one full cycle.
// Phases:
//  1. Fetch the lookback window from upstream
//  2. Reconcile fetched points against the raw store
//  3. Derive features from the full raw history and write new rows
//
// Every failure is counted once in ingest_errors_total and returned as a
// *FetchError, *DataError or *StoreError.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleResult, error) {
	start := o.now()
	result := &CycleResult{CycleID: uuid.NewString()}
	log := o.log.WithFields(logrus.Fields{
		"cycle_id": result.CycleID,
		"symbol":   o.cfg.Symbol,
	})

	res, err := o.runCycle(ctx, log, result)
	res.Duration = o.now().Sub(start)
	o.sink.Observe(observability.IngestDurationSeconds, res.Duration.Seconds())

	if err != nil {
		o.sink.IncCounter(observability.IngestErrorsTotal)
		log.WithError(err).WithFields(logrus.Fields{
			"stage":    stageOf(err),
			"duration": res.Duration,
		}).Error("cycle failed")
		return res, err
	}

	o.sink.IncCounter(observability.IngestCallsTotal)
	o.sink.SetGauge(observability.LastIngestTimestamp, float64(o.now().Unix()))
	log.WithFields(logrus.Fields{
		"fetched":           res.Fetched,
		"raw_inserted":      res.RawInserted,
		"features_derived":  res.FeaturesDerived,
		"features_inserted": res.FeaturesInserted,
		"missing_values":    res.MissingValues,
		"duration":          res.Duration,
	}).Info("cycle completed")
	return res, nil
}

func (o *Orchestrator) runCycle(ctx context.Context, log logrus.FieldLogger, result *CycleResult) (*CycleResult, error) {
	// Phase 1: Fetch
	log.Debug("phase 1: fetching prices")
	points, err := o.fetch(ctx)
	if err != nil {
		return result, &FetchError{Symbol: o.cfg.Symbol, Err: err}
	}
	result.Fetched = len(points)

	// Null or non-finite prices never reach the raw store
	points, invalid := ingestion.DropNonFinite(points)
	if invalid > 0 {
		log.WithField("dropped", invalid).Warn("dropped non-finite prices")
	}

	// Phase 2: Reconcile
	log.WithField("points", len(points)).Debug("phase 2: reconciling raw points")
	inserted, err := o.dedup.Reconcile(ctx, o.cfg.Symbol, points)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			return result, &DataError{Symbol: o.cfg.Symbol, Err: err}
		}
		return result, &StoreError{Symbol: o.cfg.Symbol, Stage: StageReconcile, Err: err}
	}
	result.RawInserted = inserted
	o.sink.AddCounter(observability.RawRowsInsertedTotal, float64(inserted))

	// Phase 3: Features
	log.Debug("phase 3: deriving features")
	since, err := o.writeFrom(ctx, points)
	if err != nil {
		return result, err
	}
	if err := o.preprocess(ctx, result, invalid, since); err != nil {
		return result, err
	}
	return result, nil
}

// writeFrom returns the earliest feature timestamp a cycle needs to write:
// everything after the newest stored feature row, and everything inside the
// fetched window, which is where newly inserted raw points can land.
// The zero time means the feature table is empty and every row is written.
func (o *Orchestrator) writeFrom(ctx context.Context, fetched []*domain.RawPoint) (time.Time, error) {
	latest, err := o.featureStore.Latest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, &StoreError{Symbol: o.cfg.Symbol, Stage: StageReadFeatures, Err: err}
	}

	since := latest.Timestamp.Add(time.Nanosecond)
	for _, p := range fetched {
		if p.Timestamp.Before(since) {
			since = p.Timestamp
		}
	}
	return since, nil
}

// RunPreprocess derives and writes features from the stored raw history
// without fetching. Used to rebuild the feature table.
func (o *Orchestrator) RunPreprocess(ctx context.Context) (*CycleResult, error) {
	start := o.now()
	result := &CycleResult{CycleID: uuid.NewString()}
	log := o.log.WithFields(logrus.Fields{
		"cycle_id": result.CycleID,
		"symbol":   o.cfg.Symbol,
	})

	err := o.preprocess(ctx, result, 0, time.Time{})
	result.Duration = o.now().Sub(start)
	if err != nil {
		log.WithError(err).WithField("stage", stageOf(err)).Error("preprocess failed")
		return result, err
	}

	log.WithFields(logrus.Fields{
		"features_derived":  result.FeaturesDerived,
		"features_inserted": result.FeaturesInserted,
		"missing_values":    result.MissingValues,
	}).Info("preprocess completed")
	return result, nil
}

func (o *Orchestrator) fetch(ctx context.Context) ([]*domain.RawPoint, error) {
	if o.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.FetchTimeout)
		defer cancel()
	}
	return o.source.Fetch(ctx, o.cfg.CoinID, o.cfg.LookbackDays)
}

// preprocess reads the post-reconciliation raw series, cleans it, derives
// features and writes the rows stamped at or after since. The zero since
// writes the full derived history. fetchDropped counts points removed
// before reconciliation and is reported with the cleaning drops.
func (o *Orchestrator) preprocess(ctx context.Context, result *CycleResult, fetchDropped int, since time.Time) error {
	start := o.now()

	raw, err := o.rawStore.ReadAll(ctx, o.cfg.Symbol)
	if err != nil {
		return &StoreError{Symbol: o.cfg.Symbol, Stage: StageReadRaw, Err: err}
	}

	series, dropped := normalization.CleanRawPoints(raw)
	rows := normalization.DeriveFeatures(series)
	missing := dropped + fetchDropped
	result.MissingValues = missing
	result.FeaturesDerived = len(rows)

	o.sink.SetGauge(observability.MissingValuesCount, float64(missing))
	o.sink.SetGauge(observability.PreprocessDurationSeconds, o.now().Sub(start).Seconds())

	inserted, err := o.upserter.Write(ctx, rowsFrom(rows, since))
	if err != nil {
		return &StoreError{Symbol: o.cfg.Symbol, Stage: StageWriteFeatures, Err: err}
	}
	result.FeaturesInserted = inserted
	o.sink.AddCounter(observability.FeatureRowsInsertedTotal, float64(inserted))
	return nil
}

// rowsFrom returns the suffix of time-ordered rows stamped at or after since.
func rowsFrom(rows []*domain.FeatureRow, since time.Time) []*domain.FeatureRow {
	if since.IsZero() {
		return rows
	}
	i := sort.Search(len(rows), func(i int) bool {
		return !rows[i].Timestamp.Before(since)
	})
	return rows[i:]
}
