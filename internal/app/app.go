// Package app wires configuration into the pipeline components shared by
// the command-line entry points.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"crypto-feature-pipeline/internal/coingecko"
	"crypto-feature-pipeline/internal/config"
	"crypto-feature-pipeline/internal/ingestion"
	"crypto-feature-pipeline/internal/lock"
	"crypto-feature-pipeline/internal/logger"
	"crypto-feature-pipeline/internal/observability"
	"crypto-feature-pipeline/internal/orchestrator"
	"crypto-feature-pipeline/internal/scheduler"
)

// App holds the wired components of one process.
type App struct {
	Config       config.Config
	Log          *logrus.Logger
	Registry     *prometheus.Registry
	Metrics      *observability.Metrics
	Stores       *Stores
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *scheduler.Scheduler

	closers []func()
}

// Options overrides parts of the default wiring, mainly for tests.
type Options struct {
	Source ingestion.PriceSource // defaults to the CoinGecko source
	Locker lock.Locker           // defaults to Redis when configured, else local
}

// New builds an App from cfg. Close must be called to release connections.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger, opts Options) (*App, error) {
	a := &App{
		Config:   cfg,
		Log:      log,
		Registry: observability.NewRegistry(),
	}
	a.Metrics = observability.NewMetrics(a.Registry)

	stores, closeStores, err := OpenStores(ctx, cfg.Storage, logger.WithComponent(log, "storage"))
	if err != nil {
		return nil, err
	}
	a.Stores = stores
	a.closers = append(a.closers, closeStores)

	source := opts.Source
	if source == nil {
		source = NewCoinGeckoSource(cfg)
	}

	a.Orchestrator = orchestrator.New(orchestrator.Options{
		Source:       source,
		RawStore:     stores.Raw,
		FeatureStore: stores.Features,
		Sink:         a.Metrics,
		Logger:       log,
		Config: orchestrator.Config{
			CoinID:       cfg.CoinID,
			LookbackDays: cfg.LookbackDays,
			FetchTimeout: cfg.FetchTimeout,
		},
	})

	locker := opts.Locker
	if locker == nil {
		locker, err = a.newLocker(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Scheduler = scheduler.New(scheduler.Options{
		Runner: a.Orchestrator,
		Policy: RetryPolicy(cfg),
		Locker: locker,
		Sink:   a.Metrics,
		Logger: log,
	})

	return a, nil
}

// NewCoinGeckoSource builds the upstream source from cfg.
func NewCoinGeckoSource(cfg config.Config) *ingestion.CoinGeckoSource {
	client := coingecko.NewClient(
		coingecko.WithBaseURL(cfg.CoinGecko.BaseURL),
		coingecko.WithAPIKey(cfg.CoinGecko.APIKey),
		coingecko.WithTimeout(cfg.FetchTimeout),
		coingecko.WithRateLimit(cfg.CoinGecko.RatePerMinute),
	)
	return ingestion.NewCoinGeckoSource(client, cfg.VSCurrency)
}

// RetryPolicy maps the configured policy name to a scheduler.RetryPolicy.
func RetryPolicy(cfg config.Config) scheduler.RetryPolicy {
	if cfg.Retry.Policy == config.RetryBackoff {
		return scheduler.NewBackoffPolicy(cfg.Interval, cfg.Retry.MaxDelay)
	}
	return scheduler.IntervalPolicy{Interval: cfg.Interval}
}

func (a *App) newLocker(ctx context.Context) (lock.Locker, error) {
	if a.Config.Lock.RedisAddr == "" {
		return lock.NewLocal(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Lock.RedisAddr,
		Password: a.Config.Lock.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.closers = append(a.closers, func() { client.Close() })

	return lock.NewRedis(client, a.Config.Lock.Key, a.Config.Lock.TTL), nil
}

// Close releases every connection opened by New, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
