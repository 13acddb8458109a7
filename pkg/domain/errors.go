package domain

import (
	"errors"
	"fmt"
)

// Error kinds returned by the content core. Callers match with errors.Is;
// operations wrap these with context.
var (
	ErrNotFound         = errors.New("not found")
	ErrInsufficientData = errors.New("insufficient data")
	ErrConflict         = errors.New("conflict")
	ErrInvalidInput     = errors.New("invalid input")

	ErrAlreadyClaimed = fmt.Errorf("friend battle already claimed: %w", ErrConflict)
)
