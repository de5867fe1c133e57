package repository

import (
	"context"

	"github.com/amirphl/token-registry/models"
	"gorm.io/gorm"
)

// ConnProvider hands out one pinned connection per call; *database.Pool satisfies it
type ConnProvider interface {
	WithConn(ctx context.Context, fn func(db *gorm.DB) error) error
}

// PooledTokenRepository acquires a connection from the pool for every operation,
// so an exhausted pool fails after the acquire timeout instead of waiting on ctx
type PooledTokenRepository struct {
	conns ConnProvider
}

// NewPooledTokenRepository creates a token repository that goes through the pool's Acquire
func NewPooledTokenRepository(conns ConnProvider) TokenRepository {
	return &PooledTokenRepository{conns: conns}
}

func withTokenRepository[T any](ctx context.Context, conns ConnProvider, fn func(repo TokenRepository) (T, error)) (T, error) {
	var out T
	err := conns.WithConn(ctx, func(db *gorm.DB) error {
		var err error
		out, err = fn(NewTokenRepository(db))
		return err
	})
	return out, err
}

func (r *PooledTokenRepository) ByFilter(ctx context.Context, filter models.TokenFilter, limit, offset int) ([]*models.Token, error) {
	return withTokenRepository(ctx, r.conns, func(repo TokenRepository) ([]*models.Token, error) {
		return repo.ByFilter(ctx, filter, limit, offset)
	})
}

func (r *PooledTokenRepository) ListAll(ctx context.Context) ([]*models.Token, error) {
	return withTokenRepository(ctx, r.conns, func(repo TokenRepository) ([]*models.Token, error) {
		return repo.ListAll(ctx)
	})
}

func (r *PooledTokenRepository) ListByCreator(ctx context.Context, creator string) ([]*models.Token, error) {
	return withTokenRepository(ctx, r.conns, func(repo TokenRepository) ([]*models.Token, error) {
		return repo.ListByCreator(ctx, creator)
	})
}

func (r *PooledTokenRepository) ListRecent(ctx context.Context, limit int) ([]*models.Token, error) {
	return withTokenRepository(ctx, r.conns, func(repo TokenRepository) ([]*models.Token, error) {
		return repo.ListRecent(ctx, limit)
	})
}

func (r *PooledTokenRepository) Count(ctx context.Context, filter models.TokenFilter) (int64, error) {
	return withTokenRepository(ctx, r.conns, func(repo TokenRepository) (int64, error) {
		return repo.Count(ctx, filter)
	})
}

func (r *PooledTokenRepository) Create(ctx context.Context, token models.NewToken) (*models.Token, error) {
	return withTokenRepository(ctx, r.conns, func(repo TokenRepository) (*models.Token, error) {
		return repo.Create(ctx, token)
	})
}

func (r *PooledTokenRepository) InsertIgnoringConflicts(ctx context.Context, tokens []models.NewToken) (int64, error) {
	return withTokenRepository(ctx, r.conns, func(repo TokenRepository) (int64, error) {
		return repo.InsertIgnoringConflicts(ctx, tokens)
	})
}
