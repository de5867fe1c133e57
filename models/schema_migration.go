package models

import "time"

// SchemaMigration is one migration ledger entry
// Table: schema_migrations
// Existence of a row means the step with that version must never run again
type SchemaMigration struct {
	Version   string    `gorm:"primaryKey;size:50" json:"version"`
	AppliedAt time.Time `gorm:"autoCreateTime:false;default:CURRENT_TIMESTAMP" json:"applied_at"`
}

func (SchemaMigration) TableName() string {
	return "schema_migrations"
}
