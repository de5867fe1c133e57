package repository

import (
	"context"

	"github.com/amirphl/token-registry/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const createSchemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version VARCHAR(50) PRIMARY KEY,
    applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
)`

// SchemaMigrationRepositoryImpl implements SchemaMigrationRepository interface
type SchemaMigrationRepositoryImpl struct {
	*BaseRepository[models.SchemaMigration, struct{}]
}

// NewSchemaMigrationRepository creates a new migration ledger repository
func NewSchemaMigrationRepository(db *gorm.DB) SchemaMigrationRepository {
	return &SchemaMigrationRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SchemaMigration, struct{}](db),
	}
}

// EnsureTable creates the ledger table if it is absent, so first and Nth runs behave the same
func (r *SchemaMigrationRepositoryImpl) EnsureTable(ctx context.Context) error {
	return r.getDB(ctx).Exec(createSchemaMigrationsTable).Error
}

// HasApplied reports whether a ledger entry exists for version
func (r *SchemaMigrationRepositoryImpl) HasApplied(ctx context.Context, version string) (bool, error) {
	var count int64
	err := r.getDB(ctx).
		Model(&models.SchemaMigration{}).
		Where("version = ?", version).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkApplied records version as applied. An entry written concurrently by another
// process is treated as success; calling it twice never errors or duplicates.
func (r *SchemaMigrationRepositoryImpl) MarkApplied(ctx context.Context, version string) error {
	return r.getDB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "version"}},
			DoNothing: true,
		}).
		Create(&models.SchemaMigration{Version: version}).Error
}

// ListApplied returns all ledger entries ordered by version
func (r *SchemaMigrationRepositoryImpl) ListApplied(ctx context.Context) ([]*models.SchemaMigration, error) {
	rows := make([]*models.SchemaMigration, 0)
	if err := r.getDB(ctx).Order("version ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
