package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPeriodClosed is returned when writing to a period that is already closed.
	ErrPeriodClosed = errors.New("period already closed")
	// ErrOpenPeriodExists indicates a second open period was about to be created for a group.
	ErrOpenPeriodExists = errors.New("an open period already exists for this group")
	// ErrCloseInProgress indicates another close for the same group holds the lock.
	ErrCloseInProgress = errors.New("a period close is already in progress for this group")
	// ErrNegativeStanding indicates closing would drive a group balance below zero.
	ErrNegativeStanding = errors.New("close would drive group standing negative")
	// ErrOverRepayment indicates a repayment exceeds the member's outstanding loan balance.
	ErrOverRepayment = errors.New("repayment exceeds outstanding loan balance")
)

// ConfigError reports an invalid schedule or fine-rule configuration,
// naming the offending field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// ValidationError reports an invalid input value, naming the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
