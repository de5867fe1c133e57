// Package models contains domain entities for the token registry
package models

import "time"

// Token represents a registered token
// Table: tokens
// Unique by symbol (column constraint plus UPPER(symbol) index)
// Indices on creator and created_at DESC
// TotalSupply is NUMERIC(78,0) in storage and a canonical decimal string everywhere else
type Token struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Symbol      string    `gorm:"size:10;not null;uniqueIndex:tokens_symbol_key" json:"symbol"`
	TotalSupply string    `gorm:"type:numeric(78,0);not null" json:"total_supply"`
	Creator     string    `gorm:"size:255;not null;index:idx_tokens_creator" json:"creator"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false;default:CURRENT_TIMESTAMP;index:idx_tokens_created_at,sort:desc" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Token) TableName() string {
	return "tokens"
}

// NewToken holds the normalized values written by a create
type NewToken struct {
	Name        string
	Symbol      string
	TotalSupply string
	Creator     string
}

// TokenFilter represents filter criteria for token queries
type TokenFilter struct {
	Creator *string // matched case-insensitively
	Symbols []string
}
