package utils

import (
	"time"
)

// Registry storage limits, mirrored by the tokens table definition
const (
	// TokenNameMaxLength is the storage bound of tokens.name
	TokenNameMaxLength = 255

	// TokenSymbolMaxLength is the storage bound of tokens.symbol
	TokenSymbolMaxLength = 10

	// TokenCreatorMaxLength is the storage bound of tokens.creator
	TokenCreatorMaxLength = 255

	// TotalSupplyMaxDigits is the precision of tokens.total_supply (NUMERIC(78,0)),
	// enough for any unsigned 256-bit value
	TotalSupplyMaxDigits = 78
)

// Connection pool defaults
const (
	DefaultMaxOpenConns    = 20
	DefaultConnMaxIdleTime = 30 * time.Second
	DefaultConnectTimeout  = 2 * time.Second
	DefaultAcquireTimeout  = 5 * time.Second
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// ISO8601Layout is the timestamp layout used on the wire
const ISO8601Layout = "2006-01-02T15:04:05.000Z07:00"

// RecentTokensLogLimit bounds the startup sanity listing
const RecentTokensLogLimit = 5
