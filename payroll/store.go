/*
store.go - Persistence interfaces for the payroll engine

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite or in-memory storage; the engine never
  touches SQL directly.

KEY INTERFACES:
  TripStore:      Delivered trips (read from the order system, flags and
                  cached calculations written back)
  RateStore:      Rate table history (create-only; the engine never mutates
                  rate history, only resolves against it)
  PayrollStore:   Monthly payroll records, unique per (driver, year, month)
  DriverStore:    Driver registry
  ReportProvider: External payroll/tax collaborator supplying base salary,
                  seniority bonus, and deduction figures

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - payroll/store/memory.go: In-memory for testing
*/
package payroll

import (
	"context"
	"time"
)

// =============================================================================
// TRIP STORE
// =============================================================================

type TripStore interface {
	// SaveTrip inserts or updates a trip.
	SaveTrip(ctx context.Context, trip Trip) error

	// SaveTrips persists a batch atomically. Used after a re-sequencing
	// pass rewrites a whole driver-month.
	SaveTrips(ctx context.Context, trips []Trip) error

	// GetTrip returns a trip or ErrTripNotFound.
	GetTrip(ctx context.Context, id TripID) (*Trip, error)

	// ListTripsForMonth returns one driver's trips in the calendar month,
	// ordered by delivery date then creation time.
	ListTripsForMonth(ctx context.Context, driverID DriverID, period Period) ([]Trip, error)

	// ListDriversWithTrips returns every driver that has at least one trip
	// in the period. Drives bulk generation fan-out.
	ListDriversWithTrips(ctx context.Context, period Period) ([]DriverID, error)
}

// =============================================================================
// RATE STORE
// =============================================================================

type RateStore interface {
	// SaveRateTable appends a table to the rate history after validating
	// it against the existing tables (ValidateHistory).
	SaveRateTable(ctx context.Context, rt RateTable) error

	// ListRateTables returns the full rate history, newest first.
	ListRateTables(ctx context.Context) ([]RateTable, error)

	// ResolveRateTable returns the single table in force on date.
	ResolveRateTable(ctx context.Context, date time.Time) (*RateTable, error)
}

// =============================================================================
// PAYROLL STORE
// =============================================================================

type PayrollStore interface {
	// SavePayroll inserts or replaces a payroll. At most one payroll may
	// exist per (driver, year, month); implementations enforce this with a
	// unique constraint.
	SavePayroll(ctx context.Context, p *Payroll) error

	// GetPayroll returns a payroll by ID or ErrPayrollNotFound.
	GetPayroll(ctx context.Context, id PayrollID) (*Payroll, error)

	// GetPayrollForPeriod returns the driver's payroll for the period, or
	// ErrPayrollNotFound.
	GetPayrollForPeriod(ctx context.Context, driverID DriverID, period Period) (*Payroll, error)

	// ListPayrollsForPeriod returns all payrolls for the period.
	ListPayrollsForPeriod(ctx context.Context, period Period) ([]*Payroll, error)

	// DeletePayroll removes a payroll. The workflow only permits this in
	// DRAFT.
	DeletePayroll(ctx context.Context, id PayrollID) error
}

// =============================================================================
// DRIVER STORE
// =============================================================================

type DriverStore interface {
	SaveDriver(ctx context.Context, d Driver) error
	GetDriver(ctx context.Context, id DriverID) (*Driver, error)
	ListDrivers(ctx context.Context) ([]Driver, error)
}

// =============================================================================
// REPORT PROVIDER - External payroll/tax collaborator
// =============================================================================

// ReportProvider supplies the externally computed payroll figures for a
// driver and period. The engine treats them as opaque inputs; a provider
// that has no figures for the driver returns the zero value, not an error.
type ReportProvider interface {
	Figures(ctx context.Context, driverID DriverID, period Period) (ReportFigures, error)
}

// NoReports is a ReportProvider for deployments without the external
// payroll system wired up. All figures are zero.
type NoReports struct{}

func (NoReports) Figures(context.Context, DriverID, Period) (ReportFigures, error) {
	return ReportFigures{}, nil
}
