package businessflow_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/token-registry/app/dto"
	businessflow "github.com/amirphl/token-registry/business_flow"
	"github.com/amirphl/token-registry/database"
	"github.com/amirphl/token-registry/repository"
	testingutil "github.com/amirphl/token-registry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenFlowAgainstStore(t *testing.T) {
	err := testingutil.TestWithMigratedDB(func(testDB *testingutil.TestDB) error {
		flow := businessflow.NewTokenFlow(repository.NewPooledTokenRepository(testDB.Pool), nil, "", 0)
		ctx := testingutil.CreateTestContext()

		t.Run("CreateThenList", func(t *testing.T) {
			supply := "123456789012345678901234567890123456789012345678901234567890123456789012345"
			created, err := flow.Create(ctx, &dto.CreateTokenRequest{
				Name:        "Precision",
				Symbol:      "prec",
				TotalSupply: supply,
				Creator:     "0xPrecision",
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, "PREC", created.Symbol)
			assert.NotEmpty(t, created.ID)
			assert.NotEmpty(t, created.CreatedAt)

			all, err := flow.ListAll(ctx, nil)
			require.NoError(t, err)
			require.NotEmpty(t, all)
			assert.Equal(t, created.ID, all[0].ID, "newest token comes first")
			assert.Equal(t, supply, all[0].TotalSupply)

			mine, err := flow.ListByCreator(ctx, "0XPRECISION", nil)
			require.NoError(t, err)
			require.Len(t, mine, 1)
			assert.Equal(t, *created, mine[0])
		})

		t.Run("SeedSymbolIsTaken", func(t *testing.T) {
			_, err := flow.Create(ctx, &dto.CreateTokenRequest{
				Name: "Copy", Symbol: "btcs", TotalSupply: "1", Creator: "0xcopy",
			}, nil)
			assert.True(t, businessflow.IsDuplicateSymbol(err))
		})

		t.Run("ConcurrentCaseVariants", func(t *testing.T) {
			symbols := []string{"x", "X", "x", "X"}
			errs := make([]error, len(symbols))

			var wg sync.WaitGroup
			for i, s := range symbols {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = flow.Create(context.Background(), &dto.CreateTokenRequest{
						Name: "Racer", Symbol: s, TotalSupply: "1", Creator: "0xracer",
					}, nil)
				}()
			}
			wg.Wait()

			successes, duplicates := 0, 0
			for _, err := range errs {
				switch {
				case err == nil:
					successes++
				case businessflow.IsDuplicateSymbol(err):
					duplicates++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}
			assert.Equal(t, 1, successes)
			assert.Equal(t, len(symbols)-1, duplicates)

			mine, err := flow.ListByCreator(ctx, "0xracer", nil)
			require.NoError(t, err)
			require.Len(t, mine, 1)
			assert.Equal(t, "X", mine[0].Symbol)
		})

		t.Run("CreatedAtIsISO8601", func(t *testing.T) {
			all, err := flow.ListAll(ctx, nil)
			require.NoError(t, err)
			for _, tok := range all {
				assert.True(t, strings.HasSuffix(tok.CreatedAt, "Z"), tok.CreatedAt)
			}
		})

		return nil
	})
	testingutil.SkipIfUnavailable(t, err)
	require.NoError(t, err)
}

func TestTokenFlowExhaustedPool(t *testing.T) {
	err := testingutil.TestWithMigratedDB(func(testDB *testingutil.TestDB) error {
		cfg := testDB.DatabaseConfig()
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.AcquireTimeout = 300 * time.Millisecond

		pool, err := database.Open(context.Background(), cfg)
		require.NoError(t, err)
		defer pool.Close()

		held, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		defer pool.Release(held)

		t.Run("AcquireFailsAfterTimeout", func(t *testing.T) {
			start := time.Now()
			conn, err := pool.Acquire(context.Background())
			assert.Nil(t, conn)
			assert.ErrorIs(t, err, database.ErrConnectionUnavailable)
			assert.Less(t, time.Since(start), 3*time.Second)
		})

		t.Run("FlowCallFailsAfterTimeout", func(t *testing.T) {
			flow := businessflow.NewTokenFlow(repository.NewPooledTokenRepository(pool), nil, "", 0)

			// no deadline on ctx; only the acquire timeout can end the wait
			start := time.Now()
			_, err := flow.ListAll(context.Background(), nil)
			assert.True(t, businessflow.IsQueryFailed(err))
			assert.Less(t, time.Since(start), 3*time.Second)

			start = time.Now()
			_, err = flow.Create(context.Background(), &dto.CreateTokenRequest{
				Name: "Blocked", Symbol: "BLCK", TotalSupply: "1", Creator: "0xblocked",
			}, nil)
			assert.True(t, businessflow.IsCreateFailed(err))
			assert.Less(t, time.Since(start), 3*time.Second)
		})

		t.Run("ReleasedConnectionIsReusable", func(t *testing.T) {
			pool.Release(held)

			tokens, err := repository.NewPooledTokenRepository(pool).ListAll(context.Background())
			require.NoError(t, err)
			assert.NotEmpty(t, tokens)
		})

		return nil
	})
	testingutil.SkipIfUnavailable(t, err)
	require.NoError(t, err)
}
