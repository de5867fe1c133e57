package migrations

import (
	"context"
	"fmt"
	"log"

	"github.com/amirphl/token-registry/models"
	"github.com/amirphl/token-registry/repository"
	"gorm.io/gorm"
)

// Step is one versioned, idempotent schema or data change
type Step struct {
	Version     string
	Description string
	Apply       func(ctx context.Context, db *gorm.DB) error
	// Satisfied, when set, reports that the effect of the step is already present.
	// A pending step that is satisfied is not applied but is still recorded in the ledger.
	Satisfied func(ctx context.Context, db *gorm.DB) (bool, error)
}

const (
	VersionCreateTokensTable        = "001_create_tokens_table"
	VersionCreateIndexes            = "002_create_indexes"
	VersionInsertSampleData         = "003_insert_sample_data"
	VersionSymbolCaseInsensitiveKey = "004_symbol_case_insensitive_unique"
)

const createTokensTable = `
CREATE TABLE IF NOT EXISTS tokens (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    symbol VARCHAR(10) NOT NULL UNIQUE,
    total_supply NUMERIC(78, 0) NOT NULL,
    creator VARCHAR(255) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
)`

var createIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_tokens_creator ON tokens (creator)`,
	`CREATE INDEX IF NOT EXISTS idx_tokens_created_at ON tokens (created_at DESC)`,
}

// Two symbols differing only in case would otherwise both pass the column constraint
const createSymbolUpperIndex = `CREATE UNIQUE INDEX IF NOT EXISTS uk_tokens_symbol_upper ON tokens (UPPER(symbol))`

// SampleTokens is the seed data inserted on a fresh database
var SampleTokens = []models.NewToken{
	{
		Name:        "Bitcoin Sample",
		Symbol:      "BTCS",
		TotalSupply: "21000000000000000000000000",
		Creator:     "0x1234567890123456789012345678901234567890",
	},
	{
		Name:        "Ethereum Sample",
		Symbol:      "ETHS",
		TotalSupply: "1000000000000000000000000000",
		Creator:     "0x2345678901234567890123456789012345678901",
	},
	{
		Name:        "Tokenization Coin",
		Symbol:      "TOKEN",
		TotalSupply: "100000000000000000000000000",
		Creator:     "0x3456789012345678901234567890123456789012",
	},
}

// DefaultSteps returns the registry catalog in application order
func DefaultSteps() []Step {
	return []Step{
		{
			Version:     VersionCreateTokensTable,
			Description: "create tokens table",
			Apply:       execAll(createTokensTable),
		},
		{
			Version:     VersionCreateIndexes,
			Description: "create creator and created_at indexes",
			Apply:       execAll(createIndexes...),
		},
		{
			Version:     VersionInsertSampleData,
			Description: "insert sample tokens",
			Apply:       insertSampleTokens,
			Satisfied:   sampleTokensPresent,
		},
		{
			Version:     VersionSymbolCaseInsensitiveKey,
			Description: "enforce case-insensitive symbol uniqueness",
			Apply:       execAll(createSymbolUpperIndex),
		},
	}
}

func execAll(statements ...string) func(ctx context.Context, db *gorm.DB) error {
	return func(ctx context.Context, db *gorm.DB) error {
		for _, stmt := range statements {
			if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to execute statement: %w", err)
			}
		}
		return nil
	}
}

func sampleSymbols() []string {
	symbols := make([]string, 0, len(SampleTokens))
	for _, t := range SampleTokens {
		symbols = append(symbols, t.Symbol)
	}
	return symbols
}

// sampleTokensPresent is true when any of the seed symbols already exists
func sampleTokensPresent(ctx context.Context, db *gorm.DB) (bool, error) {
	count, err := repository.NewTokenRepository(db).Count(ctx, models.TokenFilter{Symbols: sampleSymbols()})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// insertSampleTokens relies on ON CONFLICT DO NOTHING for rows that appear between the check and the insert
func insertSampleTokens(ctx context.Context, db *gorm.DB) error {
	inserted, err := repository.NewTokenRepository(db).InsertIgnoringConflicts(ctx, SampleTokens)
	if err != nil {
		return fmt.Errorf("failed to insert sample tokens: %w", err)
	}
	log.Printf("Inserted %d sample tokens", inserted)
	return nil
}
