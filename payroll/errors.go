/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps these onto status codes via the classification
  helpers at the bottom.

ERROR CATEGORIES:
  1. Rate configuration defects - NoRateTable / AmbiguousRateTable (fatal,
     surfaced to an operator, never silently defaulted)
  2. Trip data defects - MissingDistance (blocks payroll generation for the
     affected driver/period, reported with enough context to fix at source)
  3. Workflow misuse - InvalidTransition / Unauthorized (rejected, no state change)
  4. Contention - ConcurrentModification (caller should retry)

USAGE:
  Callers should test with errors.Is():

    if errors.Is(err, payroll.ErrMissingDistance) {
        var missing *payroll.MissingDistanceError
        errors.As(err, &missing)
        ...
    }
*/
package payroll

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoRateTable is returned when no rate table covers a trip date.
	// This is a configuration defect, not a calculation fallback.
	ErrNoRateTable = errors.New("no rate table covers date")

	// ErrAmbiguousRateTable is returned when more than one rate table
	// covers a trip date. Overlapping validity windows are a data defect.
	ErrAmbiguousRateTable = errors.New("multiple rate tables cover date")

	// ErrInvalidRateTable is returned when a rate table fails validation
	// (brackets not strictly ascending, wrong band count, multiplier < 1).
	ErrInvalidRateTable = errors.New("invalid rate table")

	// ErrMissingDistance is returned when a trip lacks distance data.
	// A nil or negative distance never resolves to band 1.
	ErrMissingDistance = errors.New("trip missing distance")

	// ErrInvalidTransition is returned when a workflow transition is
	// attempted from a non-source state.
	ErrInvalidTransition = errors.New("invalid payroll transition")

	// ErrUnauthorized is returned when the caller's role does not permit
	// the attempted transition.
	ErrUnauthorized = errors.New("role not authorized for transition")

	// ErrConcurrentModification is returned when a generate or transition
	// loses the per-(driver, period) lock. Safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrPayrollFinalized is returned when regenerating a payroll that has
	// already left DRAFT. Regenerating paid history is forbidden.
	ErrPayrollFinalized = errors.New("payroll already submitted")

	// ErrPayrollNotFound is returned when a referenced payroll doesn't exist.
	ErrPayrollNotFound = errors.New("payroll not found")

	// ErrTripNotFound is returned when a referenced trip doesn't exist.
	ErrTripNotFound = errors.New("trip not found")

	// ErrDriverNotFound is returned when a referenced driver doesn't exist.
	ErrDriverNotFound = errors.New("driver not found")

	// ErrDuplicateRecord is returned on unique-constraint violations.
	ErrDuplicateRecord = errors.New("duplicate record")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RateResolutionError reports a zero-or-many rate table resolution failure.
type RateResolutionError struct {
	Date    time.Time
	Matches []RateTableID // empty for no match
}

func (e *RateResolutionError) Error() string {
	if len(e.Matches) == 0 {
		return fmt.Sprintf("no rate table covers %s", e.Date.Format("2006-01-02"))
	}
	ids := make([]string, len(e.Matches))
	for i, id := range e.Matches {
		ids[i] = string(id)
	}
	return fmt.Sprintf("%d rate tables cover %s: %s",
		len(e.Matches), e.Date.Format("2006-01-02"), strings.Join(ids, ", "))
}

func (e *RateResolutionError) Unwrap() error {
	if len(e.Matches) == 0 {
		return ErrNoRateTable
	}
	return ErrAmbiguousRateTable
}

// MissingTrip identifies one trip that blocks payroll generation, with
// enough context for the back office to fix it at the source.
type MissingTrip struct {
	TripID       TripID    `json:"trip_id"`
	OrderCode    string    `json:"order_code"`
	PickupSite   string    `json:"pickup_site"`
	DeliverySite string    `json:"delivery_site"`
	DeliveryDate time.Time `json:"delivery_date"`
}

// DriverMissingTrips groups a driver's incomplete trips for one period.
type DriverMissingTrips struct {
	DriverID DriverID      `json:"driver_id"`
	Trips    []MissingTrip `json:"trips"`
}

// MissingDistanceError enumerates, per driver, every trip that lacks
// distance data for the period. Bulk generation collects all drivers in a
// single pass rather than failing on the first one.
type MissingDistanceError struct {
	Period  Period
	Drivers []DriverMissingTrips
}

func (e *MissingDistanceError) Error() string {
	trips := 0
	for _, d := range e.Drivers {
		trips += len(d.Trips)
	}
	return fmt.Sprintf("%s: %d trips missing distance across %d drivers",
		e.Period, trips, len(e.Drivers))
}

func (e *MissingDistanceError) Unwrap() error { return ErrMissingDistance }

// TransitionError reports a workflow transition attempted from a state
// that is not its source.
type TransitionError struct {
	PayrollID PayrollID
	Action    string
	From      PayrollStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s payroll %s from status %s", e.Action, e.PayrollID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// UnauthorizedError reports a role guard failure. Distinguishable from a
// bad-state rejection so the API can return 403 instead of 409.
type UnauthorizedError struct {
	Action string
	Role   Role
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("role %q may not %s", e.Role, e.Action)
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input
// or a precondition the client can fix.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingDistance) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidRateTable) ||
		errors.Is(err, ErrPayrollFinalized) ||
		errors.Is(err, ErrDuplicateRecord)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPayrollNotFound) ||
		errors.Is(err, ErrTripNotFound) ||
		errors.Is(err, ErrDriverNotFound) ||
		errors.Is(err, ErrNoRateTable)
}
