package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amirphl/token-registry/models"
	"github.com/amirphl/token-registry/utils"
	"gorm.io/gorm"
)

// tokenColumns reads total_supply as text so the decimal never leaves string form
const tokenColumns = "id, name, symbol, total_supply::text AS total_supply, creator, created_at, updated_at"

// newestFirst breaks created_at ties by id so insertion order is still honoured
const newestFirst = "created_at DESC, id DESC"

// TokenRepositoryImpl implements TokenRepository interface
type TokenRepositoryImpl struct {
	*BaseRepository[models.Token, models.TokenFilter]
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &TokenRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Token, models.TokenFilter](db),
	}
}

// applyFilter applies filter criteria to a GORM query
func (r *TokenRepositoryImpl) applyFilter(query *gorm.DB, filter models.TokenFilter) *gorm.DB {
	if filter.Creator != nil {
		query = query.Where("LOWER(creator) = LOWER(?)", *filter.Creator)
	}
	if len(filter.Symbols) > 0 {
		symbols := make([]string, 0, len(filter.Symbols))
		for _, s := range filter.Symbols {
			symbols = append(symbols, strings.ToUpper(s))
		}
		query = query.Where("UPPER(symbol) IN ?", symbols)
	}
	return query
}

// ByFilter retrieves tokens based on filter criteria, newest first
func (r *TokenRepositoryImpl) ByFilter(ctx context.Context, filter models.TokenFilter, limit, offset int) ([]*models.Token, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Token{}).Select(tokenColumns)

	query = r.applyFilter(query, filter)

	query = query.Order(newestFirst)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	rows := make([]*models.Token, 0)
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAll returns every token, newest first
func (r *TokenRepositoryImpl) ListAll(ctx context.Context) ([]*models.Token, error) {
	return r.ByFilter(ctx, models.TokenFilter{}, 0, 0)
}

// ListByCreator returns the tokens of one creator, matched case-insensitively, newest first
func (r *TokenRepositoryImpl) ListByCreator(ctx context.Context, creator string) ([]*models.Token, error) {
	return r.ByFilter(ctx, models.TokenFilter{Creator: utils.ToPtr(creator)}, 0, 0)
}

// ListRecent returns at most limit tokens, newest first
func (r *TokenRepositoryImpl) ListRecent(ctx context.Context, limit int) ([]*models.Token, error) {
	return r.ByFilter(ctx, models.TokenFilter{}, limit, 0)
}

// Count returns the number of tokens matching the filter
func (r *TokenRepositoryImpl) Count(ctx context.Context, filter models.TokenFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Token{}), filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Create inserts one token and returns the stored row, including the store-assigned id and timestamps.
// A symbol collision surfaces as an error satisfying IsUniqueViolation.
func (r *TokenRepositoryImpl) Create(ctx context.Context, token models.NewToken) (*models.Token, error) {
	db := r.getDB(ctx)

	var row models.Token
	err := db.Raw(`
		INSERT INTO tokens (name, symbol, total_supply, creator)
		VALUES (?, ?, CAST(? AS NUMERIC(78, 0)), ?)
		RETURNING `+tokenColumns,
		token.Name, token.Symbol, token.TotalSupply, token.Creator,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, errors.New("insert returned no row")
	}

	return &row, nil
}

// InsertIgnoringConflicts inserts tokens, silently skipping any that violate a uniqueness constraint.
// It returns the number of rows actually inserted.
func (r *TokenRepositoryImpl) InsertIgnoringConflicts(ctx context.Context, tokens []models.NewToken) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	db := r.getDB(ctx)

	placeholders := make([]string, 0, len(tokens))
	args := make([]any, 0, len(tokens)*4)
	for _, t := range tokens {
		placeholders = append(placeholders, "(?, ?, CAST(? AS NUMERIC(78, 0)), ?)")
		args = append(args, t.Name, t.Symbol, t.TotalSupply, t.Creator)
	}

	result := db.Exec(fmt.Sprintf(
		"INSERT INTO tokens (name, symbol, total_supply, creator) VALUES %s ON CONFLICT DO NOTHING",
		strings.Join(placeholders, ", "),
	), args...)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
