package promotion

import "errors"

// Sentinel errors for the promotion service layer.
var (
	ErrNotFound          = errors.New("promotion not found")
	ErrInvalidDateRange  = errors.New("end date must not precede start date")
	ErrInvalidStatus     = errors.New("invalid promotion status")
	ErrNameRequired      = errors.New("promotion name is required")
	ErrNegativeDiscount  = errors.New("discount must not be negative")
	ErrReferenceNotFound = errors.New("referenced category or user not found")
	ErrRestoreExpired    = errors.New("promotion was deleted too long ago to restore")
)
