/*
errors.go - Centralized error types for the compliance engine

PURPOSE:
  All business-rule errors in one place. Each structured error unwraps to
  a sentinel so callers can branch with errors.Is and still render the
  context with errors.As.

ERROR CATEGORIES:
  1. Client errors - InvalidAmount, NoSurplus, ExceedsAvailable,
     PoolValidationFailed, NoBaselineSet
  2. Lookup errors - NotFound
  3. Internal errors - AllocationInvariant (an allocator bug, never the
     caller's fault)

  Storage failures are NOT part of this taxonomy. Stores wrap them with
  fmt.Errorf so they stay opaque and map to 500 in the HTTP layer.

SEE ALSO:
  - banking/ledger.go: Raises InvalidAmount, NoSurplus, ExceedsAvailable
  - usecase/service.go: Raises PoolValidationFailed, NoBaselineSet
  - api/errors.go: Maps these to HTTP status codes
*/
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a strictly positive amount was zero or negative.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNotFound is returned when a compliance record, route or pool does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoSurplus is returned when banking against a non-positive CB.
	ErrNoSurplus = errors.New("no surplus to bank")

	// ErrExceedsAvailable is returned when a bank or apply amount is larger
	// than what the ledger allows.
	ErrExceedsAvailable = errors.New("amount exceeds available")

	// ErrPoolValidationFailed is returned when a pool request is not poolable.
	ErrPoolValidationFailed = errors.New("pool validation failed")

	// ErrNoBaselineSet is returned when a comparison is requested before any
	// route was designated as baseline.
	ErrNoBaselineSet = errors.New("no baseline route set")

	// ErrAllocationInvariant is returned when an allocation does not conserve
	// the pool total.
	ErrAllocationInvariant = errors.New("allocation invariant violated")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidAmountError names the operation that rejected the amount.
type InvalidAmountError struct {
	Operation string
	Amount    decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("%s amount must be positive, got %s", e.Operation, e.Amount)
}

func (e *InvalidAmountError) Unwrap() error {
	return ErrInvalidAmount
}

// NotFoundError identifies the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RecordNotFound builds the NotFoundError for a missing compliance record.
func RecordNotFound(shipID ShipID, year int) *NotFoundError {
	return &NotFoundError{Resource: "compliance record", ID: fmt.Sprintf("%s/%d", shipID, year)}
}

// NoSurplusError reports the CB that could not be banked.
type NoSurplusError struct {
	ShipID ShipID
	Year   int
	CB     decimal.Decimal
}

func (e *NoSurplusError) Error() string {
	return fmt.Sprintf("cannot bank for %s/%d: compliance balance %s is not positive",
		e.ShipID, e.Year, e.CB)
}

func (e *NoSurplusError) Unwrap() error {
	return ErrNoSurplus
}

// ExceedsAvailableError provides details about the shortfall.
type ExceedsAvailableError struct {
	ShipID    ShipID
	Year      int
	Kind      EntryKind
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *ExceedsAvailableError) Error() string {
	return fmt.Sprintf("cannot %s %s for %s/%d: only %s available",
		e.Kind, e.Requested, e.ShipID, e.Year, e.Available)
}

func (e *ExceedsAvailableError) Unwrap() error {
	return ErrExceedsAvailable
}

// PoolValidationError carries every rule violation and the computed total
// so clients can display them together.
type PoolValidationError struct {
	Errors  []string
	TotalCB decimal.Decimal
}

func (e *PoolValidationError) Error() string {
	return fmt.Sprintf("pool validation failed: %s", strings.Join(e.Errors, "; "))
}

func (e *PoolValidationError) Unwrap() error {
	return ErrPoolValidationFailed
}

// AllocationInvariantError reports a pool whose allocation broke conservation.
type AllocationInvariantError struct {
	Before decimal.Decimal
	After  decimal.Decimal
}

func (e *AllocationInvariantError) Error() string {
	return fmt.Sprintf("allocation changed pool total from %s to %s", e.Before, e.After)
}

func (e *AllocationInvariantError) Unwrap() error {
	return ErrAllocationInvariant
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrNoSurplus) ||
		errors.Is(err, ErrExceedsAvailable) ||
		errors.Is(err, ErrPoolValidationFailed) ||
		errors.Is(err, ErrNoBaselineSet)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
