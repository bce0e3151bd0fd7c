// Package database manages the SQL connection pool behind the durable
// registry store: sizing, liveness probing, and transaction retry for
// transient failures.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aegisframework/aegis/types"
)

// pingTimeout bounds each liveness probe issued by the watch loop.
const pingTimeout = 5 * time.Second

// PoolConfig tunes the connection pool. HealthCheckInterval <= 0 disables
// the liveness loop.
type PoolConfig struct {
	MaxIdleConns        int
	MaxOpenConns        int
	ConnMaxLifetime     time.Duration
	ConnMaxIdleTime     time.Duration
	HealthCheckInterval time.Duration
}

// DefaultPoolConfig returns the documented pool defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
	}
}

// PoolManager owns the pool settings and lifecycle of an open gorm handle.
// Closing it closes the underlying connection pool.
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	cfg    PoolConfig
	logger *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewPoolManager applies cfg to db's connection pool and starts the
// liveness loop when an interval is configured.
func NewPoolManager(db *gorm.DB, cfg PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "database handle is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "db_pool")),
		done:   make(chan struct{}),
	}
	if cfg.HealthCheckInterval > 0 {
		go pm.watch()
	}

	pm.logger.Info("database pool initialized",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
		zap.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
	)
	return pm, nil
}

// DB returns the managed gorm handle.
func (pm *PoolManager) DB() *gorm.DB {
	return pm.db
}

// Ping probes connectivity. A closed pool fails with STORE_CLOSED.
func (pm *PoolManager) Ping(ctx context.Context) error {
	select {
	case <-pm.done:
		return types.NewError(types.ErrStoreClosed, "connection pool is closed")
	default:
	}
	return pm.sqlDB.PingContext(ctx)
}

// Close stops the liveness loop and closes the pool. Idempotent.
func (pm *PoolManager) Close() error {
	var err error
	pm.closeOnce.Do(func() {
		close(pm.done)
		pm.logger.Info("closing database pool")
		err = pm.sqlDB.Close()
	})
	return err
}

// watch pings the database on the configured interval so connection loss
// shows up in the logs before a request trips over it.
func (pm *PoolManager) watch() {
	ticker := time.NewTicker(pm.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
			if err := pm.Ping(ctx); err != nil {
				pm.logger.Error("database liveness probe failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// Transact runs fn inside one transaction.
func (pm *PoolManager) Transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	select {
	case <-pm.done:
		return types.NewError(types.ErrStoreClosed, "connection pool is closed")
	default:
	}
	return pm.db.WithContext(ctx).Transaction(fn)
}

// TransactWithRetry runs fn inside a transaction, retrying transient
// failures (deadlocks, serialization conflicts, dropped connections) with
// doubling backoff. attempts is the total number of tries.
func (pm *PoolManager) TransactWithRetry(ctx context.Context, attempts int, fn func(tx *gorm.DB) error) error {
	var lastErr error
	backoff := 100 * time.Millisecond

	for i := 0; i < attempts; i++ {
		err := pm.Transact(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryableError(err) {
			return err
		}
		lastErr = err

		pm.logger.Warn("transient transaction failure",
			zap.Int("attempt", i+1),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return fmt.Errorf("transaction failed after %d attempts: %w", attempts, lastErr)
}

// transientMarkers are the error-message fragments treated as retryable:
// engine-level conflicts and dropped connections, across postgres and mysql.
var transientMarkers = []string{
	"deadlock",
	"serialization failure",
	"40001", // postgres serialization SQLSTATE
	"lock timeout",
	"lock wait timeout",
	"connection reset",
	"connection refused",
	"broken pipe",
	"bad connection",
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
