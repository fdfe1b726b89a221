package domain

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotFound            = errors.New("record not found")
	ErrForbidden           = errors.New("access forbidden: you don't own this resource")
	ErrInvalidState        = errors.New("action not permitted in current invoice state")
	ErrConflict            = errors.New("invoice modified concurrently")
	ErrProviderUnavailable = errors.New("payment provider not configured")
	ErrAlreadyPaid         = fmt.Errorf("invoice is already paid: %w", ErrInvalidState)
	ErrInvoiceCancelled    = fmt.Errorf("invoice is cancelled: %w", ErrInvalidState)
)
