// Package businessflow contains the registry use cases: validation, normalization and store error translation
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Store outcomes. Raw store errors are logged and never returned.
	ErrDuplicateSymbol = errors.New("token symbol already exists")
	ErrQueryFailed     = errors.New("failed to fetch tokens")
	ErrCreateFailed    = errors.New("failed to add token")
	ErrExportFailed    = errors.New("failed to export tokens")

	// Input validation errors
	ErrNameRequired        = errors.New("name is required")
	ErrSymbolRequired      = errors.New("symbol is required")
	ErrTotalSupplyRequired = errors.New("total supply is required")
	ErrCreatorRequired     = errors.New("creator is required")
	ErrNameTooLong         = errors.New("name is too long")
	ErrSymbolTooLong       = errors.New("symbol is too long")
	ErrCreatorTooLong      = errors.New("creator is too long")
	ErrInvalidTotalSupply  = errors.New("total supply must be a non-negative integer")
	ErrTotalSupplyTooLarge = errors.New("total supply has too many digits")
)

var validationErrors = []error{
	ErrNameRequired,
	ErrSymbolRequired,
	ErrTotalSupplyRequired,
	ErrCreatorRequired,
	ErrNameTooLong,
	ErrSymbolTooLong,
	ErrCreatorTooLong,
	ErrInvalidTotalSupply,
	ErrTotalSupplyTooLarge,
}

// Error codes carried by BusinessError and surfaced to API clients
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeDuplicateSymbol = "DUPLICATE_SYMBOL"
	CodeQueryFailed     = "TOKEN_QUERY_FAILED"
	CodeCreateFailed    = "TOKEN_CREATE_FAILED"
	CodeExportFailed    = "TOKEN_EXPORT_FAILED"
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// ErrorCode returns the code of the BusinessError in err's chain, or "" if there is none
func ErrorCode(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

func IsDuplicateSymbol(err error) bool {
	return errors.Is(err, ErrDuplicateSymbol)
}

func IsQueryFailed(err error) bool {
	return errors.Is(err, ErrQueryFailed)
}

func IsCreateFailed(err error) bool {
	return errors.Is(err, ErrCreateFailed)
}

func IsExportFailed(err error) bool {
	return errors.Is(err, ErrExportFailed)
}

// IsValidationError reports whether err was caused by bad input
func IsValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
