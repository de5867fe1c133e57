// Package migrations brings the registry schema to its expected shape, once per database,
// tracking every applied step in the schema_migrations ledger
package migrations

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/token-registry/repository"
	"github.com/amirphl/token-registry/utils"
	"gorm.io/gorm"
)

// ErrMigrationFailed marks any failure of the migration run; callers treat it as fatal
var ErrMigrationFailed = errors.New("migration failed")

// MigrationError carries the version of the step that failed
type MigrationError struct {
	Version string
	Err     error
}

func (e *MigrationError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("migration failed: %v", e.Err)
	}
	return fmt.Sprintf("migration %s failed: %v", e.Version, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

func (e *MigrationError) Is(target error) bool {
	return target == ErrMigrationFailed
}

// Outcome is the terminal state of one step in a run
type Outcome string

const (
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeApplied        Outcome = "applied"
	OutcomeReconciled     Outcome = "reconciled"
	OutcomeFailed         Outcome = "failed"
)

// StepResult reports what happened to a step
type StepResult struct {
	Version  string
	Outcome  Outcome
	Duration time.Duration
}

// ConnProvider pins a connection for the whole run; *database.Pool satisfies it
type ConnProvider interface {
	WithConn(ctx context.Context, fn func(db *gorm.DB) error) error
}

// Runner applies the step catalog strictly in order, one step at a time
type Runner struct {
	conns       ConnProvider
	steps       []Step
	newLedger   func(db *gorm.DB) repository.SchemaMigrationRepository
	recentLimit int
}

// NewRunner creates a runner for the given catalog. Steps keep the order they are given in.
func NewRunner(conns ConnProvider, steps []Step) *Runner {
	return &Runner{
		conns:       conns,
		steps:       steps,
		newLedger:   repository.NewSchemaMigrationRepository,
		recentLimit: utils.RecentTokensLogLimit,
	}
}

// Run executes every pending step. On failure the failing step is left unmarked and
// a *MigrationError matching ErrMigrationFailed is returned with the results so far.
func (r *Runner) Run(ctx context.Context) ([]StepResult, error) {
	if err := validateCatalog(r.steps); err != nil {
		return nil, &MigrationError{Err: err}
	}

	log.Println("Checking and initializing database schema...")

	results := make([]StepResult, 0, len(r.steps))
	err := r.conns.WithConn(ctx, func(db *gorm.DB) error {
		ledger := r.newLedger(db)
		if err := ledger.EnsureTable(ctx); err != nil {
			return &MigrationError{Version: "schema_migrations", Err: err}
		}

		for _, step := range r.steps {
			result, err := r.runStep(ctx, db, ledger, step)
			results = append(results, result)
			stepOutcomes.WithLabelValues(step.Version, string(result.Outcome)).Inc()
			if err != nil {
				return &MigrationError{Version: step.Version, Err: err}
			}
		}

		r.logRecentTokens(ctx, db)
		return nil
	})
	if err != nil {
		var migErr *MigrationError
		if !errors.As(err, &migErr) {
			err = &MigrationError{Err: err}
		}
		log.Printf("Database initialization failed: %v", err)
		return results, err
	}

	log.Println("Database initialization completed successfully")
	return results, nil
}

// runStep drives one step: PENDING -> ALREADY_APPLIED | APPLYING -> APPLIED
func (r *Runner) runStep(ctx context.Context, db *gorm.DB, ledger repository.SchemaMigrationRepository, step Step) (StepResult, error) {
	start := time.Now()
	result := StepResult{Version: step.Version, Outcome: OutcomeFailed}

	applied, err := ledger.HasApplied(ctx, step.Version)
	if err != nil {
		return result, fmt.Errorf("failed to read ledger: %w", err)
	}
	if applied {
		log.Printf("Migration %s already applied, skipping", step.Version)
		result.Outcome = OutcomeAlreadyApplied
		result.Duration = time.Since(start)
		return result, nil
	}

	// The ledger may be behind reality, e.g. when the schema was created out-of-band
	if step.Satisfied != nil {
		present, err := step.Satisfied(ctx, db)
		if err != nil {
			return result, fmt.Errorf("failed to check existing data: %w", err)
		}
		if present {
			if err := ledger.MarkApplied(ctx, step.Version); err != nil {
				return result, fmt.Errorf("failed to mark ledger: %w", err)
			}
			log.Printf("Migration %s already satisfied by existing data, ledger reconciled", step.Version)
			result.Outcome = OutcomeReconciled
			result.Duration = time.Since(start)
			return result, nil
		}
	}

	log.Printf("Applying migration %s: %s", step.Version, step.Description)
	if err := step.Apply(ctx, db); err != nil {
		return result, err
	}
	if err := ledger.MarkApplied(ctx, step.Version); err != nil {
		return result, fmt.Errorf("failed to mark ledger: %w", err)
	}

	result.Outcome = OutcomeApplied
	result.Duration = time.Since(start)
	log.Printf("Migration %s applied in %s", step.Version, result.Duration)
	return result, nil
}

// logRecentTokens is a startup sanity check; it never fails the run
func (r *Runner) logRecentTokens(ctx context.Context, db *gorm.DB) {
	if r.recentLimit <= 0 {
		return
	}
	tokens, err := repository.NewTokenRepository(db).ListRecent(ctx, r.recentLimit)
	if err != nil {
		log.Printf("Warning: failed to list recent tokens: %v", err)
		return
	}
	log.Printf("Recent tokens in database: %d", len(tokens))
	for _, t := range tokens {
		log.Printf("  id=%d symbol=%s name=%q creator=%s", t.ID, t.Symbol, t.Name, t.Creator)
	}
}

// validateCatalog rejects empty, duplicated or out-of-order versions
func validateCatalog(steps []Step) error {
	seen := make(map[string]struct{}, len(steps))
	for i, step := range steps {
		if step.Version == "" {
			return fmt.Errorf("step %d has no version", i)
		}
		if step.Apply == nil {
			return fmt.Errorf("step %s has no apply action", step.Version)
		}
		if _, dup := seen[step.Version]; dup {
			return fmt.Errorf("duplicate migration version %s", step.Version)
		}
		seen[step.Version] = struct{}{}
		if i > 0 && step.Version <= steps[i-1].Version {
			return fmt.Errorf("migration %s is out of order after %s", step.Version, steps[i-1].Version)
		}
	}
	return nil
}
