package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"translated by gorm", gorm.ErrDuplicatedKey, true},
		{"wrapped gorm", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"pgx unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "tokens_symbol_key"}, true},
		{"wrapped pgx", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"pgx not null violation", &pgconn.PgError{Code: "23502"}, false},
		{"lib/pq unique violation", &pq.Error{Code: "23505"}, true},
		{"lib/pq foreign key violation", &pq.Error{Code: "23503"}, false},
		{"record not found", gorm.ErrRecordNotFound, false},
		{"plain error mentioning duplicate", errors.New("duplicate key value"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}
