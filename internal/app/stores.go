package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"crypto-feature-pipeline/internal/config"
	"crypto-feature-pipeline/internal/storage"
	chstore "crypto-feature-pipeline/internal/storage/clickhouse"
	"crypto-feature-pipeline/internal/storage/memory"
	"crypto-feature-pipeline/internal/storage/migrations"
	pgstore "crypto-feature-pipeline/internal/storage/postgres"
	sqlitestore "crypto-feature-pipeline/internal/storage/sqlite"
)

// Stores holds the selected raw and feature backends.
type Stores struct {
	Raw      storage.RawPointStore
	Features storage.FeatureStore
}

// connections lazily opens each backend at most once so raw and feature
// stores on the same backend share it.
type connections struct {
	cfg config.StorageConfig
	log logrus.FieldLogger

	pool   *pgstore.Pool
	sqlite *gorm.DB
	ch     *chstore.Conn
}

// OpenStores connects the configured backends, applying migrations when
// cfg.Migrate is set. The returned cleanup closes every connection.
func OpenStores(ctx context.Context, cfg config.StorageConfig, log logrus.FieldLogger) (*Stores, func(), error) {
	c := &connections{cfg: cfg, log: log}

	raw, err := c.rawStore(ctx)
	if err != nil {
		c.close()
		return nil, nil, err
	}
	features, err := c.featureStore(ctx)
	if err != nil {
		c.close()
		return nil, nil, err
	}

	return &Stores{Raw: raw, Features: features}, c.close, nil
}

func (c *connections) rawStore(ctx context.Context) (storage.RawPointStore, error) {
	switch c.cfg.RawBackend {
	case config.BackendMemory:
		return memory.NewRawPointStore(), nil
	case config.BackendPostgres:
		pool, err := c.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return pgstore.NewRawPointStore(pool), nil
	case config.BackendSQLite:
		db, err := c.openSQLite()
		if err != nil {
			return nil, err
		}
		return sqlitestore.NewRawPointStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported raw backend %q", c.cfg.RawBackend)
	}
}

func (c *connections) featureStore(ctx context.Context) (storage.FeatureStore, error) {
	switch c.cfg.FeatureBackend {
	case config.BackendMemory:
		return memory.NewFeatureStore(), nil
	case config.BackendPostgres:
		pool, err := c.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return pgstore.NewFeatureStore(pool), nil
	case config.BackendSQLite:
		db, err := c.openSQLite()
		if err != nil {
			return nil, err
		}
		return sqlitestore.NewFeatureStore(db), nil
	case config.BackendClickHouse:
		conn, err := c.clickhouse(ctx)
		if err != nil {
			return nil, err
		}
		return chstore.NewFeatureStore(conn), nil
	default:
		return nil, fmt.Errorf("unsupported feature backend %q", c.cfg.FeatureBackend)
	}
}

func (c *connections) postgres(ctx context.Context) (*pgstore.Pool, error) {
	if c.pool != nil {
		return c.pool, nil
	}

	pool, err := pgstore.NewPool(ctx, c.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if c.cfg.Migrate {
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		c.log.WithField("applied", applied).Info("postgres migrations done")
	}

	c.pool = pool
	return pool, nil
}

func (c *connections) openSQLite() (*gorm.DB, error) {
	if c.sqlite != nil {
		return c.sqlite, nil
	}

	db, err := sqlitestore.Open(c.cfg.SQLitePath, c.cfg.Migrate)
	if err != nil {
		return nil, err
	}

	c.sqlite = db
	return db, nil
}

func (c *connections) clickhouse(ctx context.Context) (*chstore.Conn, error) {
	if c.ch != nil {
		return c.ch, nil
	}

	var (
		conn *chstore.Conn
		err  error
	)
	if c.cfg.Migrate {
		conn, err = migrations.RunClickhouseMigrations(ctx, c.cfg.ClickHouseDSN)
	} else {
		conn, err = chstore.NewConn(ctx, c.cfg.ClickHouseDSN)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	c.ch = conn
	return conn, nil
}

func (c *connections) close() {
	var errs []error
	if c.ch != nil {
		errs = append(errs, c.ch.Close())
	}
	if c.sqlite != nil {
		errs = append(errs, sqlitestore.Close(c.sqlite))
	}
	if c.pool != nil {
		c.pool.Close()
	}
	if err := errors.Join(errs...); err != nil {
		c.log.WithError(err).Warn("close stores")
	}
}
