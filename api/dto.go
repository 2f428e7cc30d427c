/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the factory, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rates.go: RateTableJSON type (rate payloads pass through as-is)
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/haulmark/payroll-engine/payroll"
)

// =============================================================================
// DRIVERS
// =============================================================================

type DriverDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	HiredAt string `json:"hired_at"`
}

type CreateDriverRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	HiredAt string `json:"hired_at"` // YYYY-MM-DD
}

// =============================================================================
// TRIPS
// =============================================================================

type TripDTO struct {
	ID               string                   `json:"id"`
	DriverID         string                   `json:"driver_id"`
	OrderCode        string                   `json:"order_code"`
	PickupSite       string                   `json:"pickup_site"`
	DeliverySite     string                   `json:"delivery_site"`
	DistanceKm       *decimal.Decimal         `json:"distance_km"`
	DeliveryDate     string                   `json:"delivery_date"`
	IsFromPort       bool                     `json:"is_from_port"`
	IsFlatbed        bool                     `json:"is_flatbed"`
	IsInternalCargo  bool                     `json:"is_internal_cargo"`
	IsHoliday        bool                     `json:"is_holiday"`
	TripNumberInDay  int                      `json:"trip_number_in_day"`
	TripCountInMonth int                      `json:"trip_count_in_month"`
	Salary           *payroll.SalaryBreakdown `json:"salary_breakdown,omitempty"`
}

type CreateTripRequest struct {
	ID              string           `json:"id,omitempty"`
	DriverID        string           `json:"driver_id"`
	OrderCode       string           `json:"order_code"`
	PickupSite      string           `json:"pickup_site"`
	DeliverySite    string           `json:"delivery_site"`
	DistanceKm      *decimal.Decimal `json:"distance_km"`
	DeliveryDate    string           `json:"delivery_date"` // YYYY-MM-DD
	IsFromPort      bool             `json:"is_from_port"`
	IsFlatbed       bool             `json:"is_flatbed"`
	IsInternalCargo bool             `json:"is_internal_cargo"`
	IsHoliday       bool             `json:"is_holiday"`
}

// UpdateTripRequest carries partial edits. Nil fields are left unchanged;
// any accepted edit re-sequences the whole affected driver-month.
type UpdateTripRequest struct {
	DistanceKm      *decimal.Decimal `json:"distance_km,omitempty"`
	DeliveryDate    *string          `json:"delivery_date,omitempty"`
	IsFromPort      *bool            `json:"is_from_port,omitempty"`
	IsFlatbed       *bool            `json:"is_flatbed,omitempty"`
	IsInternalCargo *bool            `json:"is_internal_cargo,omitempty"`
	IsHoliday       *bool            `json:"is_holiday,omitempty"`
}

// =============================================================================
// PAYROLLS
// =============================================================================

type PayrollDTO struct {
	ID       string `json:"id"`
	DriverID string `json:"driver_id"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Status   string `json:"status"`

	TripSnapshot []TripDTO            `json:"trip_snapshot,omitempty"`
	Adjustments  []payroll.Adjustment `json:"adjustments"`

	TotalTrips       int             `json:"total_trips"`
	TotalDistanceKm  decimal.Decimal `json:"total_distance_km"`
	TotalTripSalary  payroll.Money   `json:"total_trip_salary"`
	TotalBonuses     payroll.Money   `json:"total_bonuses"`
	TotalAdjustments payroll.Money   `json:"total_adjustments"`

	BaseSalary         payroll.Money `json:"base_salary"`
	SeniorityBonus     payroll.Money `json:"seniority_bonus"`
	InsuranceDeduction payroll.Money `json:"insurance_deduction"`
	IncomeTaxDeduction payroll.Money `json:"income_tax_deduction"`
	AdvanceDeduction   payroll.Money `json:"advance_deduction"`
	NetSalary          payroll.Money `json:"net_salary"`

	Notes         string `json:"notes,omitempty"`
	DisputeReason string `json:"dispute_reason,omitempty"`

	GeneratedAt         string  `json:"generated_at"`
	SubmittedAt         *string `json:"submitted_at,omitempty"`
	ConfirmedByDriverAt *string `json:"confirmed_by_driver_at,omitempty"`
	ConfirmedByHRAt     *string `json:"confirmed_by_hr_at,omitempty"`
	PaidAt              *string `json:"paid_at,omitempty"`
	DisputedAt          *string `json:"disputed_at,omitempty"`
}

type GenerateRequest struct {
	DriverID string `json:"driver_id"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
}

type GenerateAllRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type BulkResultDTO struct {
	Generated []PayrollDTO                 `json:"generated"`
	Missing   []payroll.DriverMissingTrips `json:"missing,omitempty"`
}

type AdjustmentRequest struct {
	Reason string        `json:"reason"`
	Amount payroll.Money `json:"amount"`
}

type DisputeRequest struct {
	Reason string `json:"reason"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	// MissingTrips carries the structured missing-distance payload so the
	// back office can fix offending trips at the source.
	MissingTrips []payroll.DriverMissingTrips `json:"missing_trips,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTripDTO(t *payroll.Trip) TripDTO {
	return TripDTO{
		ID:               string(t.ID),
		DriverID:         string(t.DriverID),
		OrderCode:        t.OrderCode,
		PickupSite:       t.PickupSite,
		DeliverySite:     t.DeliverySite,
		DistanceKm:       t.DistanceKm,
		DeliveryDate:     t.Day().Format("2006-01-02"),
		IsFromPort:       t.IsFromPort,
		IsFlatbed:        t.IsFlatbed,
		IsInternalCargo:  t.IsInternalCargo,
		IsHoliday:        t.IsHoliday,
		TripNumberInDay:  t.TripNumberInDay,
		TripCountInMonth: t.TripCountInMonth,
		Salary:           t.Salary,
	}
}

func toPayrollDTO(p *payroll.Payroll, includeSnapshot bool) PayrollDTO {
	dto := PayrollDTO{
		ID:                  string(p.ID),
		DriverID:            string(p.DriverID),
		Year:                p.Year,
		Month:               int(p.Month),
		Status:              string(p.Status),
		Adjustments:         p.Adjustments,
		TotalTrips:          p.TotalTrips,
		TotalDistanceKm:     p.TotalDistanceKm,
		TotalTripSalary:     p.TotalTripSalary,
		TotalBonuses:        p.TotalBonuses,
		TotalAdjustments:    p.TotalAdjustments,
		BaseSalary:          p.Figures.BaseSalary,
		SeniorityBonus:      p.Figures.SeniorityBonus,
		InsuranceDeduction:  p.Figures.InsuranceDeduction,
		IncomeTaxDeduction:  p.Figures.IncomeTaxDeduction,
		AdvanceDeduction:    p.Figures.AdvanceDeduction,
		NetSalary:           p.NetSalary,
		Notes:               p.Notes,
		DisputeReason:       p.DisputeReason,
		GeneratedAt:         p.GeneratedAt.Format(time.RFC3339),
		SubmittedAt:         formatTimePtr(p.SubmittedAt),
		ConfirmedByDriverAt: formatTimePtr(p.ConfirmedByDriverAt),
		ConfirmedByHRAt:     formatTimePtr(p.ConfirmedByHRAt),
		PaidAt:              formatTimePtr(p.PaidAt),
		DisputedAt:          formatTimePtr(p.DisputedAt),
	}
	if includeSnapshot {
		dto.TripSnapshot = make([]TripDTO, len(p.TripSnapshot))
		for i := range p.TripSnapshot {
			dto.TripSnapshot[i] = toTripDTO(&p.TripSnapshot[i])
		}
	}
	return dto
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
