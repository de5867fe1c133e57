package migrations

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/amirphl/token-registry/database"
	"github.com/amirphl/token-registry/models"
	"github.com/amirphl/token-registry/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeConns struct {
	err   error
	calls int
}

func (f *fakeConns) WithConn(ctx context.Context, fn func(db *gorm.DB) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type fakeLedger struct {
	applied   map[string]bool
	marks     []string
	ensured   int
	readErr   error
	markErr   error
	ensureErr error
}

func newFakeLedger(applied ...string) *fakeLedger {
	l := &fakeLedger{applied: map[string]bool{}}
	for _, v := range applied {
		l.applied[v] = true
	}
	return l
}

func (l *fakeLedger) EnsureTable(ctx context.Context) error {
	l.ensured++
	return l.ensureErr
}

func (l *fakeLedger) HasApplied(ctx context.Context, version string) (bool, error) {
	if l.readErr != nil {
		return false, l.readErr
	}
	return l.applied[version], nil
}

func (l *fakeLedger) MarkApplied(ctx context.Context, version string) error {
	if l.markErr != nil {
		return l.markErr
	}
	l.marks = append(l.marks, version)
	l.applied[version] = true
	return nil
}

func (l *fakeLedger) ListApplied(ctx context.Context) ([]*models.SchemaMigration, error) {
	versions := make([]string, 0, len(l.applied))
	for v := range l.applied {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	rows := make([]*models.SchemaMigration, 0, len(versions))
	for _, v := range versions {
		rows = append(rows, &models.SchemaMigration{Version: v})
	}
	return rows, nil
}

func newTestRunner(conns ConnProvider, ledger *fakeLedger, steps []Step) *Runner {
	r := NewRunner(conns, steps)
	r.newLedger = func(*gorm.DB) repository.SchemaMigrationRepository { return ledger }
	r.recentLimit = 0
	return r
}

// recordingSteps returns steps that append their version to *ran when applied
func recordingSteps(ran *[]string, versions ...string) []Step {
	steps := make([]Step, 0, len(versions))
	for _, v := range versions {
		steps = append(steps, Step{
			Version: v,
			Apply: func(ctx context.Context, db *gorm.DB) error {
				*ran = append(*ran, v)
				return nil
			},
		})
	}
	return steps
}

func TestDefaultSteps(t *testing.T) {
	steps := DefaultSteps()
	require.Len(t, steps, 4)

	assert.Equal(t, VersionCreateTokensTable, steps[0].Version)
	assert.Equal(t, VersionCreateIndexes, steps[1].Version)
	assert.Equal(t, VersionInsertSampleData, steps[2].Version)
	assert.Equal(t, VersionSymbolCaseInsensitiveKey, steps[3].Version)

	assert.NoError(t, validateCatalog(steps))
	assert.NotNil(t, steps[2].Satisfied, "seed step must check for existing data")

	for _, s := range steps {
		assert.LessOrEqual(t, len(s.Version), 50, "version must fit the ledger column")
	}
}

func TestSampleTokens(t *testing.T) {
	assert.Equal(t, []string{"BTCS", "ETHS", "TOKEN"}, sampleSymbols())
	for _, tok := range SampleTokens {
		assert.Regexp(t, `^[0-9]+$`, tok.TotalSupply)
		assert.LessOrEqual(t, len(tok.TotalSupply), 78)
	}
}

func TestRunnerAppliesInOrder(t *testing.T) {
	var ran []string
	ledger := newFakeLedger()
	runner := newTestRunner(&fakeConns{}, ledger, recordingSteps(&ran, "001_a", "002_b", "003_c"))

	results, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"001_a", "002_b", "003_c"}, ran)
	assert.Equal(t, []string{"001_a", "002_b", "003_c"}, ledger.marks)
	assert.Equal(t, 1, ledger.ensured)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, OutcomeApplied, r.Outcome)
	}
}

func TestRunnerSkipsAppliedSteps(t *testing.T) {
	var ran []string
	ledger := newFakeLedger("001_a")
	runner := newTestRunner(&fakeConns{}, ledger, recordingSteps(&ran, "001_a", "002_b"))

	results, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"002_b"}, ran)
	assert.Equal(t, OutcomeAlreadyApplied, results[0].Outcome)
	assert.Equal(t, OutcomeApplied, results[1].Outcome)

	t.Run("second run is a no-op", func(t *testing.T) {
		ran = nil
		results, err := runner.Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, ran)
		for _, r := range results {
			assert.Equal(t, OutcomeAlreadyApplied, r.Outcome)
		}
	})
}

func TestRunnerReconcilesSatisfiedStep(t *testing.T) {
	applied := false
	steps := []Step{{
		Version: "003_seed",
		Apply: func(ctx context.Context, db *gorm.DB) error {
			applied = true
			return nil
		},
		Satisfied: func(ctx context.Context, db *gorm.DB) (bool, error) { return true, nil },
	}}
	ledger := newFakeLedger()

	results, err := newTestRunner(&fakeConns{}, ledger, steps).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, applied)
	assert.Equal(t, []string{"003_seed"}, ledger.marks)
	assert.Equal(t, OutcomeReconciled, results[0].Outcome)
}

func TestRunnerAppliesUnsatisfiedStep(t *testing.T) {
	applied := false
	steps := []Step{{
		Version: "003_seed",
		Apply: func(ctx context.Context, db *gorm.DB) error {
			applied = true
			return nil
		},
		Satisfied: func(ctx context.Context, db *gorm.DB) (bool, error) { return false, nil },
	}}

	results, err := newTestRunner(&fakeConns{}, newFakeLedger(), steps).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, OutcomeApplied, results[0].Outcome)
}

func TestRunnerStopsOnFailure(t *testing.T) {
	var ran []string
	boom := errors.New("syntax error at or near")
	steps := recordingSteps(&ran, "001_a")
	steps = append(steps, Step{
		Version: "002_broken",
		Apply:   func(ctx context.Context, db *gorm.DB) error { return boom },
	})
	steps = append(steps, recordingSteps(&ran, "003_c")...)
	ledger := newFakeLedger()

	results, err := newTestRunner(&fakeConns{}, ledger, steps).Run(context.Background())
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrMigrationFailed)
	assert.ErrorIs(t, err, boom)
	var migErr *MigrationError
	require.ErrorAs(t, err, &migErr)
	assert.Equal(t, "002_broken", migErr.Version)

	assert.Equal(t, []string{"001_a"}, ran, "later steps must not run")
	assert.Equal(t, []string{"001_a"}, ledger.marks, "failed step must not be marked")
	require.Len(t, results, 2)
	assert.Equal(t, OutcomeFailed, results[1].Outcome)
}

func TestRunnerLedgerFailures(t *testing.T) {
	t.Run("ensure table", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.ensureErr = errors.New("permission denied")
		var ran []string

		_, err := newTestRunner(&fakeConns{}, ledger, recordingSteps(&ran, "001_a")).Run(context.Background())
		assert.ErrorIs(t, err, ErrMigrationFailed)
		assert.Empty(t, ran)
	})

	t.Run("mark", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.markErr = errors.New("connection reset")
		var ran []string

		_, err := newTestRunner(&fakeConns{}, ledger, recordingSteps(&ran, "001_a", "002_b")).Run(context.Background())
		assert.ErrorIs(t, err, ErrMigrationFailed)
		assert.Equal(t, []string{"001_a"}, ran)
	})

	t.Run("read", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.readErr = errors.New("relation does not exist")
		var ran []string

		_, err := newTestRunner(&fakeConns{}, ledger, recordingSteps(&ran, "001_a")).Run(context.Background())
		assert.ErrorIs(t, err, ErrMigrationFailed)
		assert.Empty(t, ran)
	})
}

func TestRunnerConnectionUnavailable(t *testing.T) {
	conns := &fakeConns{err: database.ErrConnectionUnavailable}
	var ran []string

	_, err := newTestRunner(conns, newFakeLedger(), recordingSteps(&ran, "001_a")).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMigrationFailed)
	assert.ErrorIs(t, err, database.ErrConnectionUnavailable)
	assert.Empty(t, ran)
}

func TestValidateCatalog(t *testing.T) {
	noop := func(ctx context.Context, db *gorm.DB) error { return nil }

	tests := []struct {
		name    string
		steps   []Step
		wantErr string
	}{
		{"empty catalog", nil, ""},
		{"ordered", []Step{{Version: "001", Apply: noop}, {Version: "002", Apply: noop}}, ""},
		{"missing version", []Step{{Apply: noop}}, "has no version"},
		{"missing apply", []Step{{Version: "001"}}, "has no apply action"},
		{"duplicate", []Step{{Version: "001", Apply: noop}, {Version: "001", Apply: noop}}, "duplicate"},
		{"out of order", []Step{{Version: "002", Apply: noop}, {Version: "001", Apply: noop}}, "out of order"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCatalog(tt.steps)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("runner refuses invalid catalog", func(t *testing.T) {
		conns := &fakeConns{}
		_, err := newTestRunner(conns, newFakeLedger(), []Step{{Version: "001"}}).Run(context.Background())
		assert.ErrorIs(t, err, ErrMigrationFailed)
		assert.Zero(t, conns.calls)
	})
}
