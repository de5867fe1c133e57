package repository_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/token-registry/models"
	"github.com/amirphl/token-registry/repository"
	testingutil "github.com/amirphl/token-registry/testing"
	"github.com/amirphl/token-registry/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRepository(t *testing.T) {
	err := testingutil.TestWithMigratedDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewTokenRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		t.Run("CreateReturnsStoredRow", func(t *testing.T) {
			before := time.Now().Add(-time.Minute)
			token, err := repo.Create(ctx, models.NewToken{
				Name:        "Precise",
				Symbol:      "PRCS",
				TotalSupply: "123456789012345678901234567890123456789012345678901234567890123456789012345",
				Creator:     "0xabc",
			})
			require.NoError(t, err)
			require.NotNil(t, token)

			assert.NotZero(t, token.ID)
			assert.Equal(t, "PRCS", token.Symbol)
			assert.Equal(t, "123456789012345678901234567890123456789012345678901234567890123456789012345", token.TotalSupply)
			assert.True(t, token.CreatedAt.After(before))
		})

		t.Run("SupplyRoundTripsThroughList", func(t *testing.T) {
			supply := strings.Repeat("9", 78)
			_, err := repo.Create(ctx, models.NewToken{Name: "Max", Symbol: "MAX78", TotalSupply: supply, Creator: "0xmax"})
			require.NoError(t, err)

			tokens, err := repo.ListByCreator(ctx, "0xmax")
			require.NoError(t, err)
			require.Len(t, tokens, 1)
			assert.Equal(t, supply, tokens[0].TotalSupply)
		})

		t.Run("DuplicateSymbolIsUniqueViolation", func(t *testing.T) {
			_, err := repo.Create(ctx, models.NewToken{Name: "Dup", Symbol: "BTCS", TotalSupply: "1", Creator: "0xdup"})
			require.Error(t, err)
			assert.True(t, repository.IsUniqueViolation(err))
		})

		t.Run("SymbolsDifferingOnlyInCaseCollide", func(t *testing.T) {
			_, err := repo.Create(ctx, models.NewToken{Name: "Lower", Symbol: "casex", TotalSupply: "1", Creator: "0xcase"})
			require.NoError(t, err)

			_, err = repo.Create(ctx, models.NewToken{Name: "Upper", Symbol: "CASEX", TotalSupply: "1", Creator: "0xcase"})
			require.Error(t, err)
			assert.True(t, repository.IsUniqueViolation(err))
		})

		t.Run("ListByCreatorIgnoresCase", func(t *testing.T) {
			creator := "0xAbCdEf0000000000000000000000000000000001"
			_, err := repo.Create(ctx, models.NewToken{Name: "Mixed", Symbol: "MIXD", TotalSupply: "5", Creator: creator})
			require.NoError(t, err)

			for _, query := range []string{creator, strings.ToLower(creator), strings.ToUpper(creator)} {
				tokens, err := repo.ListByCreator(ctx, query)
				require.NoError(t, err)
				require.Len(t, tokens, 1, query)
				assert.Equal(t, "MIXD", tokens[0].Symbol)
				assert.Equal(t, creator, tokens[0].Creator, "stored creator keeps its case")
			}
		})

		t.Run("ListByCreatorUnknown", func(t *testing.T) {
			tokens, err := repo.ListByCreator(ctx, "0xnobody")
			require.NoError(t, err)
			assert.NotNil(t, tokens)
			assert.Empty(t, tokens)
		})

		t.Run("Count", func(t *testing.T) {
			count, err := repo.Count(ctx, models.TokenFilter{Symbols: []string{"btcs", "eths", "nope"}})
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)
		})

		t.Run("InsertIgnoringConflicts", func(t *testing.T) {
			inserted, err := repo.InsertIgnoringConflicts(ctx, []models.NewToken{
				{Name: "Again", Symbol: "BTCS", TotalSupply: "1", Creator: "0x1"},
				{Name: "Fresh", Symbol: "FRSH", TotalSupply: "2", Creator: "0x1"},
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), inserted)

			inserted, err = repo.InsertIgnoringConflicts(ctx, nil)
			require.NoError(t, err)
			assert.Zero(t, inserted)
		})

		return nil
	})
	testingutil.SkipIfUnavailable(t, err)
	require.NoError(t, err)
}

func TestTokenRepositoryOrdering(t *testing.T) {
	err := testingutil.TestWithMigratedDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewTokenRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		first, err := fixtures.CreateTestToken(ctx, "0xorder")
		require.NoError(t, err)
		second, err := fixtures.CreateTestToken(ctx, "0xorder")
		require.NoError(t, err)

		// Same timestamp for both rows; id must break the tie
		require.NoError(t, testDB.DB.Exec(
			"UPDATE tokens SET created_at = NOW() WHERE id IN (?, ?)", first.ID, second.ID).Error)

		t.Run("ListByCreatorNewestFirst", func(t *testing.T) {
			tokens, err := repo.ListByCreator(ctx, "0xorder")
			require.NoError(t, err)
			require.Len(t, tokens, 2)
			assert.Equal(t, second.ID, tokens[0].ID)
			assert.Equal(t, first.ID, tokens[1].ID)
		})

		t.Run("ListAllNonIncreasingCreatedAt", func(t *testing.T) {
			tokens, err := repo.ListAll(ctx)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(tokens), 5)
			for i := 1; i < len(tokens); i++ {
				assert.False(t, tokens[i].CreatedAt.After(tokens[i-1].CreatedAt), "row %d out of order", i)
			}
		})

		t.Run("ListRecentLimit", func(t *testing.T) {
			tokens, err := repo.ListRecent(ctx, 2)
			require.NoError(t, err)
			assert.Len(t, tokens, 2)
		})

		t.Run("ByFilterAlwaysNewestFirst", func(t *testing.T) {
			tokens, err := repo.ByFilter(ctx, models.TokenFilter{Creator: utils.ToPtr("0XORDER")}, 0, 0)
			require.NoError(t, err)
			require.Len(t, tokens, 2)
			assert.Equal(t, second.ID, tokens[0].ID)

			page, err := repo.ByFilter(ctx, models.TokenFilter{Creator: utils.ToPtr("0xorder")}, 1, 1)
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, first.ID, page[0].ID)
		})

		return nil
	})
	testingutil.SkipIfUnavailable(t, err)
	require.NoError(t, err)
}

func TestTokenRepositoryConcurrentDuplicate(t *testing.T) {
	err := testingutil.TestWithMigratedDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewTokenRepository(testDB.DB)
		ctx := context.Background()

		const workers = 8
		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			successes  int
			violations int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Create(ctx, models.NewToken{Name: "Race", Symbol: "RACE", TotalSupply: "1", Creator: "0xrace"})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
				} else if repository.IsUniqueViolation(err) {
					violations++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, workers-1, violations)

		count, err := repo.Count(ctx, models.TokenFilter{Symbols: []string{"RACE"}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		return nil
	})
	testingutil.SkipIfUnavailable(t, err)
	require.NoError(t, err)
}
