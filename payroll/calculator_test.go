package payroll_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulmark/payroll-engine/payroll"
)

// =============================================================================
// SHARED FIXTURES
// =============================================================================
// These helpers are used across the package's test files.

func km(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func money(v int64) payroll.Money {
	return payroll.NewMoney(v)
}

func moneys(values ...int64) []payroll.Money {
	out := make([]payroll.Money, len(values))
	for i, v := range values {
		out[i] = money(v)
	}
	return out
}

func brackets(values ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

// testRateTable builds the standard fixture table, open-ended from 2025-01-01.
func testRateTable() *payroll.RateTable {
	return &payroll.RateTable{
		ID:             "rates-2025",
		EffectiveStart: payroll.Date(2025, time.January, 1),

		DistanceBrackets: brackets(10, 20, 30, 40, 50, 60, 80, 100, 120, 150, 200, 250),

		PortBandAmounts: moneys(
			200000, 300000, 400000, 450000, 500000, 550000, 600000,
			650000, 700000, 750000, 800000, 900000, 1000000),
		WarehouseBandAmounts: moneys(
			100000, 120000, 150000, 180000, 210000, 240000, 280000,
			320000, 360000, 420000, 500000, 600000, 700000),

		PortGateFee:              money(50000),
		FlatbedTarpFee:           money(80000),
		WarehouseToCustomerBonus: money(30000),

		SecondTripBonus: money(400000),
		ThirdTripBonus:  money(700000),

		MonthlyBonusTiers: []payroll.MonthlyBonusTier{
			{MinTrips: 45, MaxTrips: 50, Amount: money(500000)},
			{MinTrips: 51, MaxTrips: 54, Amount: money(800000)},
			{MinTrips: 55, MaxTrips: 0, Amount: money(1200000)},
		},

		HolidayMultiplier: decimal.NewFromFloat(2.0),
	}
}

func warehouseTrip(distance float64) payroll.Trip {
	return payroll.Trip{
		ID:           "trip-1",
		DriverID:     "driver-1",
		OrderCode:    "ORD-001",
		DistanceKm:   km(distance),
		DeliveryDate: payroll.Date(2025, time.March, 10),
	}
}

// =============================================================================
// CALCULATION STEP TESTS
// =============================================================================

func TestCompute_WarehouseBandAmount(t *testing.T) {
	// GIVEN: A 25km warehouse-origin trip, no flags, first of the day
	// WHEN: Computing its salary
	// THEN: Only the band 3 amount (150000) contributes

	trip := warehouseTrip(25)
	b, err := payroll.Compute(&trip, testRateTable(), 1, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, b.BandIndex)
	assert.True(t, b.DistanceAmount.Equal(money(150000)), "distance amount: %s", b.DistanceAmount)
	assert.True(t, b.PortGateFee.IsZero())
	assert.True(t, b.FlatbedFee.IsZero())
	assert.True(t, b.WarehouseBonus.IsZero())
	assert.True(t, b.DailyBonus.IsZero())
	assert.True(t, b.Total.Equal(money(150000)), "total: %s", b.Total)
}

func TestCompute_HolidayMultipliesWholeSubtotal(t *testing.T) {
	// GIVEN: The same 25km warehouse trip on a holiday, multiplier 2.0
	// WHEN: Computing its salary
	// THEN: The whole subtotal doubles

	trip := warehouseTrip(25)
	trip.IsHoliday = true

	b, err := payroll.Compute(&trip, testRateTable(), 1, 1)
	require.NoError(t, err)

	assert.True(t, b.HolidayApplied)
	assert.True(t, b.Total.Equal(money(300000)), "total: %s", b.Total)

	// With fees and a daily bonus in play, the multiplier still covers
	// everything, not just the distance amount.
	trip.IsFromPort = true
	trip.IsFlatbed = true
	b, err = payroll.Compute(&trip, testRateTable(), 2, 5)
	require.NoError(t, err)

	// port band 3 + gate fee + tarp fee + second trip bonus, all doubled
	subtotal := int64(400000 + 50000 + 80000 + 400000)
	assert.True(t, b.Subtotal.Equal(money(subtotal)), "subtotal: %s", b.Subtotal)
	assert.True(t, b.Total.Equal(money(2*subtotal)), "total: %s", b.Total)
}

func TestCompute_ThirdTripFromPort(t *testing.T) {
	// GIVEN: A driver's third trip of the day, from port, 25km, no holiday
	// WHEN: Computing its salary
	// THEN: total = 400000 (band) + 50000 (gate fee) + 700000 (3rd trip) = 1150000

	trip := warehouseTrip(25)
	trip.IsFromPort = true

	b, err := payroll.Compute(&trip, testRateTable(), 3, 10)
	require.NoError(t, err)

	assert.True(t, b.DistanceAmount.Equal(money(400000)))
	assert.True(t, b.PortGateFee.Equal(money(50000)))
	assert.True(t, b.DailyBonus.Equal(money(700000)))
	assert.True(t, b.Total.Equal(money(1150000)), "total: %s", b.Total)
}

func TestCompute_FirstTripNeverGetsDailyBonus(t *testing.T) {
	trip := warehouseTrip(25)

	b, err := payroll.Compute(&trip, testRateTable(), 1, 40)
	require.NoError(t, err)

	assert.True(t, b.DailyBonus.IsZero(), "first trip of the day earned a daily bonus")
}

func TestCompute_FourthTripGetsThirdTripBonus(t *testing.T) {
	// The 3rd-trip bonus covers every trip from the third onward.
	trip := warehouseTrip(25)

	b, err := payroll.Compute(&trip, testRateTable(), 4, 4)
	require.NoError(t, err)
	assert.True(t, b.DailyBonus.Equal(money(700000)))
}

func TestCompute_AllAddOnsStack(t *testing.T) {
	// GIVEN: A flatbed internal-cargo trip from port, second of the day
	// WHEN: Computing its salary
	// THEN: Every fee and bonus contributes once

	trip := warehouseTrip(55) // band 6
	trip.IsFromPort = true
	trip.IsFlatbed = true
	trip.IsInternalCargo = true

	b, err := payroll.Compute(&trip, testRateTable(), 2, 1)
	require.NoError(t, err)

	assert.Equal(t, 6, b.BandIndex)
	want := int64(550000 + 50000 + 80000 + 30000 + 400000)
	assert.True(t, b.Total.Equal(money(want)), "total: %s", b.Total)
}

func TestCompute_MissingDistanceRejected(t *testing.T) {
	trip := warehouseTrip(25)
	trip.DistanceKm = nil

	_, err := payroll.Compute(&trip, testRateTable(), 1, 1)
	assert.ErrorIs(t, err, payroll.ErrMissingDistance)
}

func TestCompute_Deterministic(t *testing.T) {
	// Identical inputs must reproduce identical breakdowns call after call.
	trip := warehouseTrip(42)
	trip.IsFromPort = true
	trip.IsHoliday = true
	rt := testRateTable()

	first, err := payroll.Compute(&trip, rt, 3, 17)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		again, err := payroll.Compute(&trip, rt, 3, 17)
		require.NoError(t, err)
		assert.Equal(t, first, again, "call %d diverged", i)
	}
}
