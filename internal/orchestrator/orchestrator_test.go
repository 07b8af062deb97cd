package orchestrator

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-feature-pipeline/internal/domain"
	"crypto-feature-pipeline/internal/ingestion"
	"crypto-feature-pipeline/internal/ingestion/stub"
	"crypto-feature-pipeline/internal/observability"
	"crypto-feature-pipeline/internal/storage/memory"
)

var baseHour = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// hourlyPoints builds n BTC points alternating 100, 102, 101, 103, ...
func hourlyPoints(n int) []*domain.RawPoint {
	points := make([]*domain.RawPoint, n)
	for i := 0; i < n; i++ {
		price := 100.0 + float64(i/2)
		if i%2 == 1 {
			price += 2
		}
		points[i] = &domain.RawPoint{
			Symbol:     "BTC",
			Timestamp:  baseHour.Add(time.Duration(i) * time.Hour),
			Close:      price,
			Source:     domain.SourceCoinGecko,
			RawPayload: []byte(`{"prices":[]}`),
		}
	}
	return points
}

type testEnv struct {
	source   *stub.StubPriceSource
	raw      *memory.RawPointStore
	features *memory.FeatureStore
	sink     *observability.RecordingSink
	orch     *Orchestrator
}

func newTestEnv(points []*domain.RawPoint) *testEnv {
	env := &testEnv{
		source:   stub.NewStubPriceSource(points),
		raw:      memory.NewRawPointStore(),
		features: memory.NewFeatureStore(),
		sink:     observability.NewRecordingSink(),
	}
	env.orch = New(Options{
		Source:       env.source,
		RawStore:     env.raw,
		FeatureStore: env.features,
		Sink:         env.sink,
		Config:       Config{CoinID: "bitcoin", LookbackDays: 7, FetchTimeout: time.Second},
	})
	return env
}

// blockingSource waits for the context to end.
type blockingSource struct{}

func (blockingSource) Fetch(ctx context.Context, _ string, _ int) ([]*domain.RawPoint, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingRawStore struct {
	*memory.RawPointStore
	err error
}

func (s *failingRawStore) InsertBatch(context.Context, []*domain.RawPoint) (int, error) {
	return 0, s.err
}

type failingFeatureStore struct {
	*memory.FeatureStore
	err error
}

func (s *failingFeatureStore) InsertBatch(context.Context, []*domain.FeatureRow) (int, error) {
	return 0, s.err
}

// batchRecordingFeatureStore records the size of every batch it is sent.
type batchRecordingFeatureStore struct {
	*memory.FeatureStore
	batches []int
}

func (s *batchRecordingFeatureStore) InsertBatch(ctx context.Context, rows []*domain.FeatureRow) (int, error) {
	s.batches = append(s.batches, len(rows))
	return s.FeatureStore.InsertBatch(ctx, rows)
}

type latestFailingFeatureStore struct {
	*memory.FeatureStore
	err error
}

func (s *latestFailingFeatureStore) Latest(context.Context) (*domain.FeatureRow, error) {
	return nil, s.err
}

func TestOrchestrator_RunCycle_ThirtyPoints(t *testing.T) {
	env := newTestEnv(hourlyPoints(30))

	result, err := env.orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, result.CycleID)
	assert.Equal(t, 30, result.Fetched)
	assert.Equal(t, 30, result.RawInserted)
	assert.Equal(t, 5, result.FeaturesDerived)
	assert.Equal(t, 5, result.FeaturesInserted)
	assert.Equal(t, 0, result.MissingValues)

	assert.Equal(t, 30, env.raw.Len())
	assert.Equal(t, 5, env.features.Len())

	assert.Equal(t, 1.0, env.sink.Counter(observability.IngestCallsTotal))
	assert.Equal(t, 0.0, env.sink.Counter(observability.IngestErrorsTotal))
	assert.Equal(t, 30.0, env.sink.Counter(observability.RawRowsInsertedTotal))
	assert.Equal(t, 5.0, env.sink.Counter(observability.FeatureRowsInsertedTotal))
	assert.Len(t, env.sink.Observations(observability.IngestDurationSeconds), 1)

	_, ok := env.sink.Gauge(observability.LastIngestTimestamp)
	assert.True(t, ok)
	missing, ok := env.sink.Gauge(observability.MissingValuesCount)
	assert.True(t, ok)
	assert.Equal(t, 0.0, missing)
	_, ok = env.sink.Gauge(observability.PreprocessDurationSeconds)
	assert.True(t, ok)
}

func TestOrchestrator_RunCycle_Idempotent(t *testing.T) {
	env := newTestEnv(hourlyPoints(30))
	ctx := context.Background()

	_, err := env.orch.RunCycle(ctx)
	require.NoError(t, err)

	second, err := env.orch.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, second.RawInserted)
	assert.Equal(t, 5, second.FeaturesDerived)
	assert.Equal(t, 0, second.FeaturesInserted)
	assert.Equal(t, 30, env.raw.Len())
	assert.Equal(t, 5, env.features.Len())
	assert.Equal(t, 2.0, env.sink.Counter(observability.IngestCallsTotal))
}

func TestOrchestrator_RunCycle_GrowingHistory(t *testing.T) {
	points := hourlyPoints(31)
	env := newTestEnv(points[:30])
	ctx := context.Background()

	_, err := env.orch.RunCycle(ctx)
	require.NoError(t, err)

	// Next fetch overlaps the previous window by 28 hours
	env.source.SetPoints(points[2:])
	result, err := env.orch.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.RawInserted)
	assert.Equal(t, 6, result.FeaturesDerived)
	assert.Equal(t, 1, result.FeaturesInserted)

	rows, err := env.features.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i].Timestamp.After(rows[i-1].Timestamp))
	}
	assert.Equal(t, points[30].Timestamp, rows[5].Timestamp)
}

func TestOrchestrator_RunCycle_EmptyFetch(t *testing.T) {
	env := newTestEnv(nil)

	result, err := env.orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.RawInserted)
	assert.Equal(t, 0, result.FeaturesDerived)
	assert.Equal(t, 0, result.FeaturesInserted)
	assert.Equal(t, 0, env.raw.Len())
	assert.Equal(t, 0, env.features.Len())
	assert.Equal(t, 1.0, env.sink.Counter(observability.IngestCallsTotal))
}

func TestOrchestrator_RunCycle_FetchTimeout(t *testing.T) {
	ctx := context.Background()
	raw := memory.NewRawPointStore()
	features := memory.NewFeatureStore()
	sink := observability.NewRecordingSink()

	// Seed history so "unchanged" is observable
	_, err := raw.InsertBatch(ctx, hourlyPoints(30))
	require.NoError(t, err)
	before, err := raw.ReadAll(ctx, "BTC")
	require.NoError(t, err)

	orch := New(Options{
		Source:       blockingSource{},
		RawStore:     raw,
		FeatureStore: features,
		Sink:         sink,
		Config:       Config{CoinID: "bitcoin", LookbackDays: 7, FetchTimeout: 20 * time.Millisecond},
	})

	_, err = orch.RunCycle(ctx)
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, fetchErr.Timeout())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	after, err := raw.ReadAll(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 0, features.Len())

	assert.Equal(t, 1.0, sink.Counter(observability.IngestErrorsTotal))
	assert.Equal(t, 0.0, sink.Counter(observability.IngestCallsTotal))
	_, ok := sink.Gauge(observability.LastIngestTimestamp)
	assert.False(t, ok)
}

func TestOrchestrator_RunCycle_FetchError(t *testing.T) {
	env := newTestEnv(nil)
	upstream := errors.New("status 503")
	env.orch.source = stub.NewFailingPriceSource(upstream)

	_, err := env.orch.RunCycle(context.Background())

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.False(t, fetchErr.Timeout())
	assert.ErrorIs(t, err, upstream)
	assert.Equal(t, "BTC", fetchErr.Symbol)
	assert.Equal(t, 0, env.raw.Len())
	assert.Equal(t, 1.0, env.sink.Counter(observability.IngestErrorsTotal))
}

func TestOrchestrator_RunCycle_RawStoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	features := memory.NewFeatureStore()
	sink := observability.NewRecordingSink()

	orch := New(Options{
		Source:       stub.NewStubPriceSource(hourlyPoints(30)),
		RawStore:     &failingRawStore{RawPointStore: memory.NewRawPointStore(), err: storeErr},
		FeatureStore: features,
		Sink:         sink,
		Config:       Config{CoinID: "bitcoin", LookbackDays: 7},
	})

	_, err := orch.RunCycle(context.Background())

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageReconcile, se.Stage)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, 0, features.Len())
	assert.Equal(t, 1.0, sink.Counter(observability.IngestErrorsTotal))
}

func TestOrchestrator_RunCycle_FeatureStoreErrorRecovers(t *testing.T) {
	ctx := context.Background()
	raw := memory.NewRawPointStore()
	good := memory.NewFeatureStore()
	sink := observability.NewRecordingSink()
	source := stub.NewStubPriceSource(hourlyPoints(30))

	failing := New(Options{
		Source:       source,
		RawStore:     raw,
		FeatureStore: &failingFeatureStore{FeatureStore: good, err: errors.New("disk full")},
		Sink:         sink,
		Config:       Config{CoinID: "bitcoin"},
	})

	_, err := failing.RunCycle(ctx)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageWriteFeatures, se.Stage)
	assert.Equal(t, 30, raw.Len())
	assert.Equal(t, 0, good.Len())

	// Next cycle derives the features the failed one could not write
	recovered := New(Options{
		Source:       source,
		RawStore:     raw,
		FeatureStore: good,
		Sink:         sink,
		Config:       Config{CoinID: "bitcoin"},
	})
	result, err := recovered.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RawInserted)
	assert.Equal(t, 5, result.FeaturesInserted)
	assert.Equal(t, 1.0, sink.Counter(observability.IngestErrorsTotal))
	assert.Equal(t, 1.0, sink.Counter(observability.IngestCallsTotal))
}

func TestOrchestrator_RunPreprocess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(nil)

	_, err := env.raw.InsertBatch(ctx, hourlyPoints(40))
	require.NoError(t, err)

	result, err := env.orch.RunPreprocess(ctx)
	require.NoError(t, err)

	assert.Equal(t, 15, result.FeaturesInserted)
	assert.Equal(t, 0, env.source.Calls())
	assert.Equal(t, 0.0, env.sink.Counter(observability.IngestCallsTotal))
	assert.Equal(t, 15.0, env.sink.Counter(observability.FeatureRowsInsertedTotal))
}

func TestOrchestrator_SymbolDefaultsFromCoinID(t *testing.T) {
	orch := New(Options{Config: Config{CoinID: "ethereum"}})
	assert.Equal(t, "ETHEREUM", orch.Symbol())

	orch = New(Options{Config: Config{CoinID: "bitcoin", Symbol: "XBT"}})
	assert.Equal(t, "XBT", orch.Symbol())
}

func TestOrchestrator_RunCycle_NonFinitePricesDropped(t *testing.T) {
	ctx := context.Background()
	points := hourlyPoints(31)
	points[10].Close = math.NaN()
	points[20].Close = math.Inf(1)
	env := newTestEnv(points)

	result, err := env.orch.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 31, result.Fetched)
	assert.Equal(t, 29, result.RawInserted)
	assert.Equal(t, 2, result.MissingValues)
	missing, ok := env.sink.Gauge(observability.MissingValuesCount)
	require.True(t, ok)
	assert.Equal(t, 2.0, missing)

	stored, err := env.raw.ReadAll(ctx, "BTC")
	require.NoError(t, err)
	require.Len(t, stored, 29)
	for _, p := range stored {
		assert.False(t, math.IsNaN(p.Close) || math.IsInf(p.Close, 0), "non-finite close stored at %v", p.Timestamp)
	}
}

func TestOrchestrator_RunCycle_WritesOnlyRecentFeatures(t *testing.T) {
	ctx := context.Background()
	points := hourlyPoints(61)
	raw := memory.NewRawPointStore()
	features := &batchRecordingFeatureStore{FeatureStore: memory.NewFeatureStore()}
	source := stub.NewStubPriceSource(points[50:])

	_, err := raw.InsertBatch(ctx, points[:60])
	require.NoError(t, err)

	orch := New(Options{
		Source:       source,
		RawStore:     raw,
		FeatureStore: features,
		Config:       Config{CoinID: "bitcoin", LookbackDays: 7},
	})

	rebuilt, err := orch.RunPreprocess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 35, rebuilt.FeaturesInserted)
	require.Equal(t, []int{35}, features.batches)

	result, err := orch.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.RawInserted)
	assert.Equal(t, 36, result.FeaturesDerived)
	assert.Equal(t, 1, result.FeaturesInserted)
	// Only rows inside the fetched window (hours 50..60) are sent
	require.Len(t, features.batches, 2)
	assert.Equal(t, 11, features.batches[1])
	assert.Equal(t, 36, features.Len())
}

func TestOrchestrator_RunCycle_LatestFeatureError(t *testing.T) {
	readErr := errors.New("timeout reading features")
	env := newTestEnv(hourlyPoints(30))
	env.orch.featureStore = &latestFailingFeatureStore{FeatureStore: env.features, err: readErr}

	_, err := env.orch.RunCycle(context.Background())

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageReadFeatures, se.Stage)
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, 30, env.raw.Len())
	assert.Equal(t, 0, env.features.Len())
}

func TestOrchestrator_RunCycle_SymbolMismatch(t *testing.T) {
	points := hourlyPoints(30)
	for _, p := range points {
		p.Symbol = "ETH"
	}
	env := newTestEnv(points)

	_, err := env.orch.RunCycle(context.Background())

	var de *DataError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "BTC", de.Symbol)
	assert.ErrorIs(t, err, ingestion.ErrSymbolMismatch)

	var se *StoreError
	assert.False(t, errors.As(err, &se), "mismatch reported as store error")
	assert.Equal(t, 0, env.raw.Len())
	assert.Equal(t, 1.0, env.sink.Counter(observability.IngestErrorsTotal))
}

func TestOrchestrator_RunCycle_FailureLogsStage(t *testing.T) {
	tests := []struct {
		name      string
		configure func(env *testEnv)
		stage     string
	}{
		{
			name: "fetch",
			configure: func(env *testEnv) {
				env.orch.source = stub.NewFailingPriceSource(errors.New("status 503"))
			},
			stage: StageFetch,
		},
		{
			name: "reconcile",
			configure: func(env *testEnv) {
				env.orch.rawStore = &failingRawStore{RawPointStore: env.raw, err: errors.New("connection refused")}
				env.orch.dedup = ingestion.NewDeduplicator(env.orch.rawStore)
			},
			stage: StageReconcile,
		},
		{
			name: "write features",
			configure: func(env *testEnv) {
				failing := &failingFeatureStore{FeatureStore: env.features, err: errors.New("disk full")}
				env.orch = New(Options{
					Source:       env.source,
					RawStore:     env.raw,
					FeatureStore: failing,
					Logger:       env.orch.log,
					Config:       Config{CoinID: "bitcoin"},
				})
			},
			stage: StageWriteFeatures,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, hook := logrustest.NewNullLogger()
			env := newTestEnv(hourlyPoints(30))
			env.orch.log = log
			tt.configure(env)

			_, err := env.orch.RunCycle(context.Background())
			require.Error(t, err)

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, logrus.ErrorLevel, entry.Level)
			assert.Equal(t, "cycle failed", entry.Message)
			assert.Equal(t, tt.stage, entry.Data["stage"])
			assert.NotEmpty(t, entry.Data["cycle_id"])
			assert.Equal(t, "BTC", entry.Data["symbol"])
		})
	}
}
