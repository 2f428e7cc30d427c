/*
Package payroll implements the driver trip compensation and payroll engine.

PURPOSE:
  This package contains the domain types and algorithms that convert raw
  delivery trips into money: effective-dated rate tables, the per-trip
  salary calculation, daily/monthly trip sequencing, month-end payroll
  aggregation, and the approval workflow that gates payment.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A monetary amount backed by decimal.Decimal
  - Trip: One delivered leg, with origin/cargo flags and cached results
  - SalaryBreakdown: Itemized result of the per-trip calculation
  - Payroll: One driver's month, with a frozen trip snapshot
  - Actor/Role: Who is driving a workflow transition

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all money, never float64
  2. Determinism: identical inputs always produce identical breakdowns
  3. Auditability: every intermediate amount is retained in the breakdown
  4. Type Safety: strong typing for IDs prevents mixing driver/trip/payroll IDs

SEE ALSO:
  - rates.go: RateTable and distance bracket lookup
  - calculator.go: Per-trip salary computation
  - aggregate.go: Month-end payroll generation
  - workflow.go: Approval state machine
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Monetary amount (single currency, minor-unit free)
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

func NewMoneyFromFloat(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(o Money) Money             { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money             { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(s decimal.Decimal) Money   { return Money{Value: m.Value.Mul(s)} }
func (m Money) Neg() Money                    { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool                  { return m.Value.IsZero() }
func (m Money) IsNegative() bool              { return m.Value.IsNegative() }
func (m Money) Equal(o Money) bool            { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool      { return m.Value.GreaterThan(o.Value) }
func (m Money) String() string                { return m.Value.String() }

// Money serializes as a plain decimal string so breakdown snapshots stay
// byte-stable across marshal/unmarshal round trips.
func (m Money) MarshalJSON() ([]byte, error) { return m.Value.MarshalJSON() }

func (m *Money) UnmarshalJSON(data []byte) error { return m.Value.UnmarshalJSON(data) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DriverID string
type TripID string
type PayrollID string
type RateTableID string

// =============================================================================
// ROLES - Workflow authorization context
// =============================================================================

// Role is the caller's role for workflow transitions. The engine enforces
// role guards server-side; the HTTP layer only extracts the role.
type Role string

const (
	RoleDriver     Role = "driver"
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
)

// Actor identifies who is performing a workflow transition.
type Actor struct {
	ID   string
	Role Role
}

// =============================================================================
// DRIVER
// =============================================================================

type Driver struct {
	ID        DriverID
	Name      string
	HiredAt   time.Time
	CreatedAt time.Time
}

// =============================================================================
// TRIP - One delivered leg
// =============================================================================

// Trip is one delivery leg for a driver. DistanceKm is nullable: a nil
// distance is the "missing km" defect state that blocks payroll generation.
type Trip struct {
	ID       TripID
	DriverID DriverID

	// Source fields supplied by the order/shipment system
	OrderCode    string
	PickupSite   string
	DeliverySite string
	DistanceKm   *decimal.Decimal
	DeliveryDate time.Time // date-granularity; used for bracket/day/month bucketing

	// Compensation flags (independently togglable)
	IsFromPort      bool
	IsFlatbed       bool
	IsInternalCargo bool // warehouse-to-customer bonus eligibility
	IsHoliday       bool

	// Derived, cached fields. Recomputed whenever flags, distance, or date
	// change. TripNumberInDay and TripCountInMonth come from the sequencer;
	// Salary from the calculator.
	TripNumberInDay  int
	TripCountInMonth int
	Salary           *SalaryBreakdown

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasDistance reports whether the trip carries usable distance data.
func (t *Trip) HasDistance() bool {
	return t.DistanceKm != nil && !t.DistanceKm.IsNegative()
}

// Day returns the trip's delivery date truncated to day granularity (UTC).
func (t *Trip) Day() time.Time {
	return time.Date(t.DeliveryDate.Year(), t.DeliveryDate.Month(), t.DeliveryDate.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// SALARY BREAKDOWN - Itemized per-trip calculation result
// =============================================================================

// SalaryBreakdown records every contributing component of a trip's salary.
// It is retained verbatim inside payroll snapshots for auditability, so the
// same inputs must always reproduce the same breakdown.
type SalaryBreakdown struct {
	BandIndex         int             `json:"band_index"` // 1..13
	DistanceAmount    Money           `json:"distance_amount"`
	PortGateFee       Money           `json:"port_gate_fee"`
	FlatbedFee        Money           `json:"flatbed_fee"`
	WarehouseBonus    Money           `json:"warehouse_bonus"`
	DailyBonus        Money           `json:"daily_bonus"`
	Subtotal          Money           `json:"subtotal"`
	HolidayApplied    bool            `json:"holiday_applied"`
	HolidayMultiplier decimal.Decimal `json:"holiday_multiplier"`
	Total             Money           `json:"total"`
}

// =============================================================================
// PAYROLL - One driver, one calendar month
// =============================================================================

type PayrollStatus string

const (
	StatusDraft         PayrollStatus = "draft"
	StatusPendingReview PayrollStatus = "pending_review"
	StatusConfirmed     PayrollStatus = "confirmed"
	StatusPaid          PayrollStatus = "paid"
	StatusDisputed      PayrollStatus = "disputed"
)

// Adjustment is a manual correction merged into a draft payroll.
// Amount may be negative.
type Adjustment struct {
	Reason string `json:"reason"`
	Amount Money  `json:"amount"`
}

// ReportFigures are supplied by the external payroll/tax collaborator.
// The engine merges them for display and net-salary totals only; it never
// computes tax or insurance itself.
type ReportFigures struct {
	BaseSalary         Money `json:"base_salary"`
	SeniorityBonus     Money `json:"seniority_bonus"`
	InsuranceDeduction Money `json:"insurance_deduction"`
	IncomeTaxDeduction Money `json:"income_tax_deduction"`
	AdvanceDeduction   Money `json:"advance_deduction"`
}

// Deductions returns the sum of all deduction figures.
func (f ReportFigures) Deductions() Money {
	return f.InsuranceDeduction.Add(f.IncomeTaxDeduction).Add(f.AdvanceDeduction)
}

// Payroll is the monthly pay record for one driver. TripSnapshot is an
// immutable copy frozen at generation time: later edits to the underlying
// trips never change a generated payroll.
type Payroll struct {
	ID       PayrollID
	DriverID DriverID
	Year     int
	Month    time.Month
	Status   PayrollStatus

	TripSnapshot []Trip
	Adjustments  []Adjustment

	TotalTrips       int
	TotalDistanceKm  decimal.Decimal
	TotalTripSalary  Money
	TotalBonuses     Money // monthly count bonus (at most one per driver per month)
	TotalAdjustments Money

	Figures   ReportFigures
	NetSalary Money

	Notes         string
	DisputeReason string

	// Transition timestamps
	GeneratedAt         time.Time
	SubmittedAt         *time.Time
	ConfirmedByDriverAt *time.Time
	ConfirmedByHRAt     *time.Time
	PaidAt              *time.Time
	DisputedAt          *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Period returns the calendar month this payroll covers.
func (p *Payroll) Period() Period {
	return Period{Year: p.Year, Month: p.Month}
}

// RecomputeTotals re-derives NetSalary and TotalAdjustments from the
// payroll's own components. Called after adjustments change or external
// figures are merged.
//
//	net = trip salary + bonuses + adjustments + base + seniority - deductions
func (p *Payroll) RecomputeTotals() {
	total := ZeroMoney()
	for _, a := range p.Adjustments {
		total = total.Add(a.Amount)
	}
	p.TotalAdjustments = total

	p.NetSalary = p.TotalTripSalary.
		Add(p.TotalBonuses).
		Add(p.TotalAdjustments).
		Add(p.Figures.BaseSalary).
		Add(p.Figures.SeniorityBonus).
		Sub(p.Figures.Deductions())
}
