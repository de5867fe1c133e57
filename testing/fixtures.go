package testing

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/amirphl/token-registry/models"
	"github.com/amirphl/token-registry/repository"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// RandomSymbol returns an upper-case symbol unlikely to collide with seed data
func RandomSymbol() string {
	return fmt.Sprintf("T%07d", rand.Intn(10000000))
}

// CreateTestToken inserts a token with a random symbol for the given creator
func (tf *TestFixtures) CreateTestToken(ctx context.Context, creator string) (*models.Token, error) {
	repo := repository.NewTokenRepository(tf.DB.DB)
	token, err := repo.Create(ctx, models.NewToken{
		Name:        "Test Token",
		Symbol:      RandomSymbol(),
		TotalSupply: "1000000000000000000",
		Creator:     creator,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test token: %w", err)
	}
	return token, nil
}
