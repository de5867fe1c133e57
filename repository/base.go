// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"gorm.io/gorm"
)

// BaseRepository provides common repository functionality
type BaseRepository[T any, F any] struct {
	DB *gorm.DB
}

// NewBaseRepository creates a new base repository instance
func NewBaseRepository[T any, F any](db *gorm.DB) *BaseRepository[T, F] {
	return &BaseRepository[T, F]{
		DB: db,
	}
}

// getDB returns the session bound to ctx. Migrations hand in a session pinned to one connection.
func (r *BaseRepository[T, F]) getDB(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx)
}
