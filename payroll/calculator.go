/*
calculator.go - Per-trip salary computation

PURPOSE:
  Compute maps one trip + the applicable rate table + the trip's position in
  the driver's day and month onto an itemized SalaryBreakdown. It is a pure
  function: no I/O, no clock, no randomness. Identical inputs always yield
  an identical breakdown, which is what lets payroll snapshots be
  reproduced byte-for-byte for audit.

CALCULATION STEPS (all additive unless stated):
  1. distance amount: band amount by origin category and bracket index
  2. port gate fee when the trip originates from a port
  3. flatbed/tarp fee when the cargo needs a flatbed
  4. warehouse-to-customer bonus for internal cargo
  5. daily bonus from the trip's number within the day (2nd / 3rd+)
  6. subtotal = 1 + 2 + 3 + 4 + 5
  7. total = subtotal * holiday multiplier (applies to the WHOLE subtotal)

  The monthly trip-count bonus is deliberately NOT part of the per-trip
  total. It is a once-per-driver-per-month amount added by the aggregator.

SEE ALSO:
  - sequence.go: Supplies dailySeq / monthlySeq
  - aggregate.go: Adds the monthly bonus and sums trips into a payroll
*/
package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Compute calculates the salary breakdown for one trip.
//
// dailySeq is the trip's 1-based number within the driver's delivery day;
// monthlySeq is the driver's total trip count for the calendar month. Given
// a resolvable rate table and a non-nil distance, Compute never fails.
func Compute(trip *Trip, rt *RateTable, dailySeq, monthlySeq int) (SalaryBreakdown, error) {
	if trip.DistanceKm == nil {
		return SalaryBreakdown{}, fmt.Errorf("%w: trip %s (order %s)",
			ErrMissingDistance, trip.ID, trip.OrderCode)
	}
	if dailySeq < 1 {
		return SalaryBreakdown{}, fmt.Errorf("daily sequence must be >= 1, got %d", dailySeq)
	}
	_ = monthlySeq // not part of the per-trip total; see package comment

	band, err := BracketIndex(*trip.DistanceKm, rt.DistanceBrackets)
	if err != nil {
		return SalaryBreakdown{}, err
	}

	b := SalaryBreakdown{
		BandIndex:         band,
		DistanceAmount:    rt.BandAmount(trip.IsFromPort, band),
		PortGateFee:       ZeroMoney(),
		FlatbedFee:        ZeroMoney(),
		WarehouseBonus:    ZeroMoney(),
		DailyBonus:        ZeroMoney(),
		HolidayMultiplier: decimal.NewFromInt(1),
	}

	if trip.IsFromPort {
		b.PortGateFee = rt.PortGateFee
	}
	if trip.IsFlatbed {
		b.FlatbedFee = rt.FlatbedTarpFee
	}
	if trip.IsInternalCargo {
		b.WarehouseBonus = rt.WarehouseToCustomerBonus
	}

	switch {
	case dailySeq == 2:
		b.DailyBonus = rt.SecondTripBonus
	case dailySeq >= 3:
		b.DailyBonus = rt.ThirdTripBonus
	}

	b.Subtotal = b.DistanceAmount.
		Add(b.PortGateFee).
		Add(b.FlatbedFee).
		Add(b.WarehouseBonus).
		Add(b.DailyBonus)

	if trip.IsHoliday {
		b.HolidayApplied = true
		b.HolidayMultiplier = rt.HolidayMultiplier
	}
	b.Total = b.Subtotal.Mul(b.HolidayMultiplier)

	return b, nil
}
