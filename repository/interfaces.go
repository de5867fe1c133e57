package repository

import (
	"context"

	"github.com/amirphl/token-registry/models"
)

// TokenRepository defines operations on the tokens table
type TokenRepository interface {
	ByFilter(ctx context.Context, filter models.TokenFilter, limit, offset int) ([]*models.Token, error)
	ListAll(ctx context.Context) ([]*models.Token, error)
	ListByCreator(ctx context.Context, creator string) ([]*models.Token, error)
	ListRecent(ctx context.Context, limit int) ([]*models.Token, error)
	Count(ctx context.Context, filter models.TokenFilter) (int64, error)
	Create(ctx context.Context, token models.NewToken) (*models.Token, error)
	InsertIgnoringConflicts(ctx context.Context, tokens []models.NewToken) (int64, error)
}

// SchemaMigrationRepository is the migration ledger
type SchemaMigrationRepository interface {
	EnsureTable(ctx context.Context) error
	HasApplied(ctx context.Context, version string) (bool, error)
	MarkApplied(ctx context.Context, version string) error
	ListApplied(ctx context.Context) ([]*models.SchemaMigration, error)
}
