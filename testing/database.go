// Package testing provides test utilities and throwaway PostgreSQL databases for the token registry
package testing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/token-registry/config"
	"github.com/amirphl/token-registry/database"
	"github.com/amirphl/token-registry/migrations"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver for out-of-band database/sql access
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrTestDBUnavailable is returned when no PostgreSQL server is reachable for tests
var ErrTestDBUnavailable = errors.New("test database server unavailable")

// TestDBConfig holds configuration for test database connections
type TestDBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	SSLMode  string
}

// GetTestDBConfig loads test database configuration from environment variables
func GetTestDBConfig() *TestDBConfig {
	return &TestDBConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		SSLMode:  getEnv("TEST_DB_SSL_MODE", "disable"),
	}
}

func (c *TestDBConfig) dsn(dbName string) string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s connect_timeout=2",
		c.Host, c.Port, c.User, c.Password, c.SSLMode)
	if dbName != "" {
		dsn += " dbname=" + dbName
	}
	return dsn
}

// DatabaseConfig returns a pool configuration pointing at the named database
func (c *TestDBConfig) DatabaseConfig(dbName string) config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Name:            dbName,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 30 * time.Second,
		ConnectTimeout:  2 * time.Second,
		AcquireTimeout:  5 * time.Second,
		ConnectRetries:  1,
	}
}

// TestDB represents a test database instance
type TestDB struct {
	Pool   *database.Pool
	DB     *gorm.DB
	Name   string
	config *TestDBConfig
}

// SetupTestDB creates a new, empty test database with a unique name
func SetupTestDB() (*TestDB, error) {
	cfg := GetTestDBConfig()
	dbName := "token_registry_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	adminDB, err := openAdmin(cfg)
	if err != nil {
		return nil, err
	}
	defer closeGorm(adminDB)

	if err := adminDB.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName)).Error; err != nil {
		return nil, fmt.Errorf("failed to create test database %s: %w", dbName, err)
	}

	pool, err := database.Open(context.Background(), cfg.DatabaseConfig(dbName))
	if err != nil {
		adminDB.Exec("DROP DATABASE IF EXISTS " + dbName)
		return nil, fmt.Errorf("failed to connect to test database %s: %w", dbName, err)
	}

	return &TestDB{
		Pool:   pool,
		DB:     pool.DB(),
		Name:   dbName,
		config: cfg,
	}, nil
}

// DatabaseConfig returns the connection settings of the test database, e.g. to open a second, smaller pool
func (tdb *TestDB) DatabaseConfig() config.DatabaseConfig {
	return tdb.config.DatabaseConfig(tdb.Name)
}

// Migrate runs the full migration catalog against the test database
func (tdb *TestDB) Migrate(ctx context.Context) error {
	_, err := migrations.NewRunner(tdb.Pool, migrations.DefaultSteps()).Run(ctx)
	return err
}

// ExecOutOfBand runs SQL through a separate database/sql connection, bypassing the pool,
// the way an operator or another tool would change the schema
func (tdb *TestDB) ExecOutOfBand(query string, args ...any) error {
	db, err := sql.Open("postgres", tdb.config.dsn(tdb.Name))
	if err != nil {
		return fmt.Errorf("failed to open out-of-band connection: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(query, args...); err != nil {
		return fmt.Errorf("out-of-band statement failed: %w", err)
	}
	return nil
}

// TeardownTestDB drops the test database and closes connections
func (tdb *TestDB) TeardownTestDB() error {
	if tdb.Pool != nil {
		_ = tdb.Pool.Close()
	}

	adminDB, err := openAdmin(tdb.config)
	if err != nil {
		log.Printf("Warning: failed to connect to PostgreSQL for cleanup: %v", err)
		return err
	}
	defer closeGorm(adminDB)

	// Force disconnect all connections to the test database
	err = adminDB.Exec(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = ? AND pid <> pg_backend_pid()",
		tdb.Name).Error
	if err != nil {
		log.Printf("Warning: failed to terminate connections to test database %s: %v", tdb.Name, err)
	}

	if err := adminDB.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", tdb.Name)).Error; err != nil {
		log.Printf("Warning: failed to drop test database %s: %v", tdb.Name, err)
		return err
	}

	return nil
}

// TestWithDB sets up an empty test database, runs the test function, and cleans up
func TestWithDB(testFunc func(*TestDB) error) error {
	testDB, err := SetupTestDB()
	if err != nil {
		return err
	}
	defer func() {
		if cleanupErr := testDB.TeardownTestDB(); cleanupErr != nil {
			log.Printf("Warning: failed to cleanup test database: %v", cleanupErr)
		}
	}()

	return testFunc(testDB)
}

// TestWithMigratedDB is TestWithDB with the migration catalog already applied
func TestWithMigratedDB(testFunc func(*TestDB) error) error {
	return TestWithDB(func(testDB *TestDB) error {
		if err := testDB.Migrate(context.Background()); err != nil {
			return fmt.Errorf("failed to migrate test database %s: %w", testDB.Name, err)
		}
		return testFunc(testDB)
	})
}

// SkipIfUnavailable skips the test when err says no PostgreSQL server could be reached
func SkipIfUnavailable(t *testing.T, err error) {
	t.Helper()
	if errors.Is(err, ErrTestDBUnavailable) {
		t.Skipf("skipping: %v", err)
	}
}

// CreateTestContext creates a context for testing
func CreateTestContext() context.Context {
	return context.Background()
}

func openAdmin(cfg *TestDBConfig) (*gorm.DB, error) {
	adminDB, err := gorm.Open(postgres.Open(cfg.dsn("postgres")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTestDBUnavailable, err)
	}
	return adminDB, nil
}

func closeGorm(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
