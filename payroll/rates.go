/*
rates.go - Effective-dated rate tables and distance bracket lookup

PURPOSE:
  A RateTable is a snapshot of every tunable compensation parameter, valid
  only within its [EffectiveStart, EffectiveEnd) window. Historical payrolls
  are reproduced exactly by resolving the table that was in force on each
  trip's delivery date.

BRACKETS AND BANDS:
  12 strictly ascending distance thresholds define 13 half-open bands:

    band 1:  [0, b1]
    band k:  (b[k-1], b[k]]   for k in 2..12
    band 13: (b12, +inf)

  Each band has its own amount per origin category (from-port vs
  from-warehouse). The thresholds live in one ordered slice, not in flat
  enumerated fields, so BracketIndex is a single search with the length
  invariants checked once at validation time.

RESOLUTION:
  Resolve(tables, date) must find exactly one matching table. Zero or many
  matches are configuration defects and hard stops - the calculator never
  silently falls back to a default table.

SEE ALSO:
  - calculator.go: Consumes the resolved table
  - factory/rates.go: JSON rate configuration parsing
*/
package payroll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE TABLE
// =============================================================================

const (
	// NumBrackets is the number of distance thresholds.
	NumBrackets = 12
	// NumBands is the number of distance bands (NumBrackets + 1).
	NumBands = 13
)

// MonthlyBonusTier awards a once-per-month bonus when a driver's total trip
// count for the calendar month falls in [MinTrips, MaxTrips]. MaxTrips = 0
// means open-ended (MinTrips and beyond).
type MonthlyBonusTier struct {
	MinTrips int   `json:"min_trips"`
	MaxTrips int   `json:"max_trips"`
	Amount   Money `json:"amount"`
}

// Matches reports whether tripCount falls inside the tier's range.
func (t MonthlyBonusTier) Matches(tripCount int) bool {
	if tripCount < t.MinTrips {
		return false
	}
	return t.MaxTrips == 0 || tripCount <= t.MaxTrips
}

// RateTable is one effective-dated snapshot of all compensation parameters.
type RateTable struct {
	ID             RateTableID
	EffectiveStart time.Time
	EffectiveEnd   *time.Time // nil = currently open-ended

	// 12 ascending km thresholds defining 13 bands.
	DistanceBrackets []decimal.Decimal

	// Amount per band, selected by trip origin category.
	PortBandAmounts      []Money
	WarehouseBandAmounts []Money

	// Fixed add-ons
	PortGateFee              Money
	FlatbedTarpFee           Money
	WarehouseToCustomerBonus Money

	// Daily bonuses (2nd trip, 3rd-and-beyond trip of the same day)
	SecondTripBonus Money
	ThirdTripBonus  Money

	// Monthly trip-count bonus tiers (at most one applies per driver per month)
	MonthlyBonusTiers []MonthlyBonusTier

	HolidayMultiplier decimal.Decimal

	CreatedAt time.Time
}

// Contains reports whether date falls inside [EffectiveStart, EffectiveEnd).
// An open-ended table matches everything from its start onward.
func (rt *RateTable) Contains(date time.Time) bool {
	if date.Before(rt.EffectiveStart) {
		return false
	}
	return rt.EffectiveEnd == nil || date.Before(*rt.EffectiveEnd)
}

// BandAmount returns the amount for a band index (1..13) and origin category.
func (rt *RateTable) BandAmount(fromPort bool, index int) Money {
	if fromPort {
		return rt.PortBandAmounts[index-1]
	}
	return rt.WarehouseBandAmounts[index-1]
}

// MonthlyBonus returns the bonus for a driver's final monthly trip count,
// or zero if no tier matches. Tiers are checked in order; the first match
// wins, so validation requires them to be non-overlapping and ascending.
func (rt *RateTable) MonthlyBonus(tripCount int) Money {
	for _, tier := range rt.MonthlyBonusTiers {
		if tier.Matches(tripCount) {
			return tier.Amount
		}
	}
	return ZeroMoney()
}

// Validate checks the table's structural invariants.
func (rt *RateTable) Validate() error {
	if len(rt.DistanceBrackets) != NumBrackets {
		return fmt.Errorf("%w: expected %d distance brackets, got %d",
			ErrInvalidRateTable, NumBrackets, len(rt.DistanceBrackets))
	}
	for i := 1; i < len(rt.DistanceBrackets); i++ {
		if !rt.DistanceBrackets[i].GreaterThan(rt.DistanceBrackets[i-1]) {
			return fmt.Errorf("%w: brackets must be strictly ascending (index %d)",
				ErrInvalidRateTable, i)
		}
	}
	if rt.DistanceBrackets[0].IsNegative() {
		return fmt.Errorf("%w: brackets must be non-negative", ErrInvalidRateTable)
	}
	if len(rt.PortBandAmounts) != NumBands {
		return fmt.Errorf("%w: expected %d port band amounts, got %d",
			ErrInvalidRateTable, NumBands, len(rt.PortBandAmounts))
	}
	if len(rt.WarehouseBandAmounts) != NumBands {
		return fmt.Errorf("%w: expected %d warehouse band amounts, got %d",
			ErrInvalidRateTable, NumBands, len(rt.WarehouseBandAmounts))
	}
	if rt.HolidayMultiplier.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: holiday multiplier must be >= 1.0, got %s",
			ErrInvalidRateTable, rt.HolidayMultiplier)
	}
	for i, tier := range rt.MonthlyBonusTiers {
		if tier.MinTrips <= 0 {
			return fmt.Errorf("%w: tier %d: min trips must be positive", ErrInvalidRateTable, i)
		}
		if tier.MaxTrips != 0 && tier.MaxTrips < tier.MinTrips {
			return fmt.Errorf("%w: tier %d: max trips below min trips", ErrInvalidRateTable, i)
		}
		if i > 0 {
			prev := rt.MonthlyBonusTiers[i-1]
			if prev.MaxTrips == 0 || tier.MinTrips <= prev.MaxTrips {
				return fmt.Errorf("%w: tier %d overlaps tier %d", ErrInvalidRateTable, i, i-1)
			}
		}
	}
	if rt.EffectiveEnd != nil && !rt.EffectiveEnd.After(rt.EffectiveStart) {
		return fmt.Errorf("%w: effective end before start", ErrInvalidRateTable)
	}
	return nil
}

// =============================================================================
// BRACKET LOOKUP
// =============================================================================

// BracketIndex maps a distance onto a band index in 1..13.
// A negative distance is a precondition violation, never band 1.
// The index is monotonic in distance: larger distance never yields a
// smaller index.
func BracketIndex(distanceKm decimal.Decimal, brackets []decimal.Decimal) (int, error) {
	if distanceKm.IsNegative() {
		return 0, fmt.Errorf("%w: negative distance %s", ErrMissingDistance, distanceKm)
	}
	if len(brackets) != NumBrackets {
		return 0, fmt.Errorf("%w: expected %d brackets, got %d",
			ErrInvalidRateTable, NumBrackets, len(brackets))
	}
	for i, threshold := range brackets {
		if distanceKm.LessThanOrEqual(threshold) {
			return i + 1, nil
		}
	}
	return NumBands, nil
}

// =============================================================================
// RESOLUTION
// =============================================================================

// Resolve selects the single rate table whose validity window contains date.
// Zero matches or multiple matches are hard stops: both indicate a
// configuration defect that an operator must repair.
func Resolve(tables []RateTable, date time.Time) (*RateTable, error) {
	var matches []*RateTable
	for i := range tables {
		if tables[i].Contains(date) {
			matches = append(matches, &tables[i])
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, &RateResolutionError{Date: date}
	default:
		ids := make([]RateTableID, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return nil, &RateResolutionError{Date: date, Matches: ids}
	}
}

// ValidateHistory checks cross-table invariants over a full rate history:
// at most one open-ended table, and no overlapping validity windows.
// Stores run this before accepting a new table.
func ValidateHistory(tables []RateTable) error {
	openEnded := 0
	for i := range tables {
		if tables[i].EffectiveEnd == nil {
			openEnded++
		}
	}
	if openEnded > 1 {
		return fmt.Errorf("%w: %d open-ended tables, want at most one",
			ErrInvalidRateTable, openEnded)
	}
	for i := range tables {
		for j := i + 1; j < len(tables); j++ {
			if overlaps(&tables[i], &tables[j]) {
				return fmt.Errorf("%w: tables %s and %s overlap",
					ErrInvalidRateTable, tables[i].ID, tables[j].ID)
			}
		}
	}
	return nil
}

func overlaps(a, b *RateTable) bool {
	// [aStart, aEnd) intersects [bStart, bEnd), nil end = +inf
	if a.EffectiveEnd != nil && !b.EffectiveStart.Before(*a.EffectiveEnd) {
		return false
	}
	if b.EffectiveEnd != nil && !a.EffectiveStart.Before(*b.EffectiveEnd) {
		return false
	}
	return true
}
