package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/amirphl/token-registry/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func unreachableConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:           "127.0.0.1",
		Port:           1,
		User:           "nobody",
		Password:       "nothing",
		Name:           "nowhere",
		SSLMode:        "disable",
		MaxOpenConns:   2,
		MaxIdleConns:   1,
		ConnectTimeout: time.Second,
		AcquireTimeout: time.Second,
	}
}

func TestOpenUnreachable(t *testing.T) {
	pool, err := Open(context.Background(), unreachableConfig())
	require.Error(t, err)
	assert.Nil(t, pool)
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.NotContains(t, err.Error(), "nothing", "password must not leak into errors")
}

func TestPoolClose(t *testing.T) {
	sqlDB, err := sql.Open("pgx", unreachableConfig().DSN())
	require.NoError(t, err)

	pool := &Pool{sqlDB: sqlDB, target: "nowhere", acquireTimeout: time.Second}
	stop := pool.StartMonitor(context.Background(), time.Hour)
	defer stop()

	require.NoError(t, pool.Close())
	assert.True(t, pool.Closed())

	conn, err := pool.Acquire(context.Background())
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, ErrConnectionUnavailable)

	called := false
	err = pool.WithConn(context.Background(), func(db *gorm.DB) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.False(t, called)

	// closing twice is a no-op
	assert.NoError(t, pool.Close())
}
