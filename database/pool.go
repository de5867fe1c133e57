// Package database owns the PostgreSQL connection pool shared by migrations and the registry
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amirphl/token-registry/config"
	"github.com/amirphl/token-registry/utils"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrConnectionUnavailable is returned when the store is unreachable, the pool is exhausted
// past the acquire timeout, or the pool has been closed
var ErrConnectionUnavailable = errors.New("database connection unavailable")

// Pool is an explicitly opened and closed set of connections to PostgreSQL.
// It never retries a failed connect; callers decide (see RetryWithBackoff).
type Pool struct {
	db             *gorm.DB
	sqlDB          *sql.DB
	target         string
	acquireTimeout time.Duration

	closed atomic.Bool

	mu          sync.Mutex
	stopMonitor context.CancelFunc
}

// Open builds the pool from configuration and verifies connectivity with a single ping
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	cfg = withDefaults(cfg)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:               newGormLogger(cfg),
		TranslateError:       true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrConnectionUnavailable, cfg.Target(), err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pool := &Pool{
		db:             db,
		sqlDB:          sqlDB,
		target:         cfg.Target(),
		acquireTimeout: cfg.AcquireTimeout,
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: failed to ping %s: %w", ErrConnectionUnavailable, pool.target, err)
	}

	log.Printf("Connected to PostgreSQL database %s (%d max open connections, %d max idle connections)",
		pool.target, cfg.MaxOpenConns, cfg.MaxIdleConns)

	return pool, nil
}

// DB returns the gorm handle backed by the pool
func (p *Pool) DB() *gorm.DB {
	return p.db
}

// SQLDB exposes the underlying database/sql pool, e.g. for stats collection
func (p *Pool) SQLDB() *sql.DB {
	return p.sqlDB
}

// Acquire reserves one connection, waiting at most the configured acquire timeout
func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("%w: pool is closed", ErrConnectionUnavailable)
	}

	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	conn, err := p.sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionUnavailable, err)
	}
	return conn, nil
}

// Release hands a connection obtained from Acquire back to the pool
func (p *Pool) Release(conn *sql.Conn) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		log.Printf("Failed to release database connection: %v", err)
	}
}

// WithConn pins a single connection for the duration of fn and exposes it as a gorm session.
// Acquiring the connection is bounded by the acquire timeout; fn itself runs under ctx.
func (p *Pool) WithConn(ctx context.Context, fn func(db *gorm.DB) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)

	session := p.db.WithContext(ctx)
	session.Statement.ConnPool = conn

	return fn(session)
}

// Ping checks that a connection can be obtained and the server answers
func (p *Pool) Ping(ctx context.Context) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(conn)

	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionUnavailable, err)
	}
	return nil
}

// Close rejects new acquisitions, stops the monitor and closes every connection
func (p *Pool) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.mu.Lock()
	if p.stopMonitor != nil {
		p.stopMonitor()
		p.stopMonitor = nil
	}
	p.mu.Unlock()

	log.Printf("Closing database connections to %s", p.target)
	return p.sqlDB.Close()
}

// Closed reports whether Close has been called
func (p *Pool) Closed() bool {
	return p.closed.Load()
}

// withDefaults fills limits left at zero, e.g. by configs built in code rather than from the environment
func withDefaults(cfg config.DatabaseConfig) config.DatabaseConfig {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = utils.DefaultMaxOpenConns
	}
	if cfg.MaxIdleConns < 0 || cfg.MaxIdleConns > cfg.MaxOpenConns {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = utils.DefaultConnMaxIdleTime
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = utils.DefaultConnectTimeout
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = utils.DefaultAcquireTimeout
	}
	return cfg
}

func newGormLogger(cfg config.DatabaseConfig) logger.Interface {
	slow := cfg.SlowQueryTime
	if !cfg.SlowQueryLog {
		slow = 0
	}
	return logger.New(log.Default(), logger.Config{
		SlowThreshold:             slow,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
