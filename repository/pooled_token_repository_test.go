package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/amirphl/token-registry/models"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

var errNoConnection = errors.New("no connection within acquire timeout")

// refusingConns fails every acquisition the way an exhausted pool does
type refusingConns struct {
	calls int
}

func (c *refusingConns) WithConn(ctx context.Context, fn func(db *gorm.DB) error) error {
	c.calls++
	return errNoConnection
}

func TestPooledTokenRepositoryAcquireFailure(t *testing.T) {
	conns := &refusingConns{}
	repo := NewPooledTokenRepository(conns)
	ctx := context.Background()

	tokens, err := repo.ListAll(ctx)
	assert.ErrorIs(t, err, errNoConnection)
	assert.Nil(t, tokens)

	_, err = repo.ListByCreator(ctx, "0xabc")
	assert.ErrorIs(t, err, errNoConnection)

	_, err = repo.ListRecent(ctx, 5)
	assert.ErrorIs(t, err, errNoConnection)

	_, err = repo.ByFilter(ctx, models.TokenFilter{}, 0, 0)
	assert.ErrorIs(t, err, errNoConnection)

	count, err := repo.Count(ctx, models.TokenFilter{})
	assert.ErrorIs(t, err, errNoConnection)
	assert.Zero(t, count)

	token, err := repo.Create(ctx, models.NewToken{Name: "N", Symbol: "S", TotalSupply: "1", Creator: "c"})
	assert.ErrorIs(t, err, errNoConnection)
	assert.Nil(t, token)

	_, err = repo.InsertIgnoringConflicts(ctx, []models.NewToken{{Name: "N", Symbol: "S", TotalSupply: "1", Creator: "c"}})
	assert.ErrorIs(t, err, errNoConnection)

	assert.Equal(t, 7, conns.calls, "every operation goes through the pool")
}
