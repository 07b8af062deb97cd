// Package sqlite stores raw prices and derived features in a local SQLite
// file through gorm. Used for single-node deployments and development.
package sqlite

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PriceModel is a prices_hourly row.
type PriceModel struct {
	ID         uint    `gorm:"primaryKey"`
	Symbol     string  `gorm:"size:32;not null;uniqueIndex:prices_sym_ts,priority:1"`
	TsMs       int64   `gorm:"column:ts_ms;not null;uniqueIndex:prices_sym_ts,priority:2"`
	Close      float64 `gorm:"not null"`
	Source     string  `gorm:"size:32;not null"`
	RawPayload []byte
	CreatedAt  time.Time
}

func (PriceModel) TableName() string {
	return "prices_hourly"
}

// FeatureModel is a crypto_features row.
type FeatureModel struct {
	TsMs           int64   `gorm:"column:ts_ms;primaryKey;autoIncrement:false"`
	Close          float64 `gorm:"not null"`
	Lag1h          float64 `gorm:"column:lag_1h;not null"`
	Lag2h          float64 `gorm:"column:lag_2h;not null"`
	Lag3h          float64 `gorm:"column:lag_3h;not null"`
	Lag6h          float64 `gorm:"column:lag_6h;not null"`
	Lag12h         float64 `gorm:"column:lag_12h;not null"`
	Lag24h         float64 `gorm:"column:lag_24h;not null"`
	MA6h           float64 `gorm:"column:ma_6h;not null"`
	MA12h          float64 `gorm:"column:ma_12h;not null"`
	RSI            float64 `gorm:"column:rsi;not null"`
	MACD           float64 `gorm:"column:macd;not null"`
	MACDSignal     float64 `gorm:"column:macd_signal;not null"`
	BollingerHBand float64 `gorm:"column:bollinger_hband;not null"`
	BollingerLBand float64 `gorm:"column:bollinger_lband;not null"`
	CreatedAt      time.Time
}

func (FeatureModel) TableName() string {
	return "crypto_features"
}

// insertBatchSize bounds rows per INSERT statement. Feature rows bind 16
// variables each and SQLite rejects statements above 32766.
const insertBatchSize = 500

// Open opens the database at path (":memory:" for a private in-memory
// database) and, when migrate is set, creates the tables.
func Open(path string, migrate bool) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers
	sqlDB.SetMaxOpenConns(1)

	if migrate {
		if err := db.AutoMigrate(&PriceModel{}, &FeatureModel{}); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return db, nil
}

// Close releases the underlying connection.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
