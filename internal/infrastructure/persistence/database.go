package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerflow/backend/internal/infrastructure/config"
	"github.com/ledgerflow/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrPoolExhausted is reported by Health when every connection is busy and callers are queueing.
var ErrPoolExhausted = errors.New("database connection pool exhausted")

// Database owns the GORM handle shared by the credential, policy, review and audit repositories.
type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the Postgres connection pool and verifies it within connectTimeout.
// A nil gormLogger silences GORM.
func NewDatabase(ctx context.Context, cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ledger database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	d := &Database{DB: db}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := d.Ping(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return d, nil
}

const connectTimeout = 10 * time.Second

// Close closes the connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("ledger database handle: %w", err)
	}
	return sqlDB.Close()
}

// Ping round-trips to the server.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("ledger database handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping ledger database: %w", err)
	}
	return nil
}

// Health pings the server and fails when the pool is saturated with waiters.
func (d *Database) Health(ctx context.Context) error {
	if err := d.Ping(ctx); err != nil {
		return err
	}
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("ledger database handle: %w", err)
	}
	stats := sqlDB.Stats()
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections && stats.WaitCount > 0 {
		return fmt.Errorf("%w: %d in use, %d waits", ErrPoolExhausted, stats.InUse, stats.WaitCount)
	}
	return nil
}

// openReviewIndexSQL mirrors migration 000002: one open review item per event.
const openReviewIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS uq_review_items_open_event
	ON review_items (event_id) WHERE status IN ('pending', 'approved', 'failed')`

// Migrate creates the tables of all persistence models.
// Production schemas come from the SQL migrations; this is for tests and local tooling.
func (d *Database) Migrate() error {
	if err := d.DB.AutoMigrate(models.All()...); err != nil {
		return err
	}
	return d.DB.Exec(openReviewIndexSQL).Error
}
