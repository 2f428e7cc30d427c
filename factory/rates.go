/*
Package factory provides JSON to Go rate table conversion.

PURPOSE:
  Converts JSON rate definitions into payroll.RateTable values. This
  enables rate configuration without code changes - the back office posts
  a JSON document, and the factory validates it and creates the proper Go
  struct. The engine itself never mutates rate history, only resolves
  against it.

JSON SCHEMA:
  {
    "id": "rates-2025",
    "effective_start": "2025-01-01",
    "effective_end": null,
    "distance_brackets": [10, 20, 30, 40, 50, 60, 80, 100, 120, 150, 200, 250],
    "port_band_amounts": ["120000", "..."],        // 13 amounts
    "warehouse_band_amounts": ["100000", "..."],   // 13 amounts
    "port_gate_fee": "50000",
    "flatbed_tarp_fee": "80000",
    "warehouse_to_customer_bonus": "30000",
    "second_trip_bonus": "400000",
    "third_trip_bonus": "700000",
    "monthly_bonus_tiers": [
      {"min_trips": 45, "max_trips": 50, "amount": "500000"},
      {"min_trips": 51, "max_trips": 54, "amount": "800000"},
      {"min_trips": 55, "max_trips": 0,  "amount": "1200000"}
    ],
    "holiday_multiplier": "2.0"
  }

KEY FEATURES:
  - Validates structure before any persistence (12 brackets, 13 bands,
    strictly ascending thresholds, multiplier >= 1)
  - Round-trips: Render produces JSON that Parse accepts

SEE ALSO:
  - payroll/rates.go: RateTable type and structural validation
  - api/handlers.go: Rate configuration endpoints
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/haulmark/payroll-engine/payroll"
)

const dateFormat = "2006-01-02"

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RateTableJSON is the JSON representation of a rate table.
type RateTableJSON struct {
	ID             string `json:"id"`
	EffectiveStart string `json:"effective_start"`
	EffectiveEnd   string `json:"effective_end,omitempty"` // empty = open-ended

	DistanceBrackets []decimal.Decimal `json:"distance_brackets"`

	PortBandAmounts      []payroll.Money `json:"port_band_amounts"`
	WarehouseBandAmounts []payroll.Money `json:"warehouse_band_amounts"`

	PortGateFee              payroll.Money `json:"port_gate_fee"`
	FlatbedTarpFee           payroll.Money `json:"flatbed_tarp_fee"`
	WarehouseToCustomerBonus payroll.Money `json:"warehouse_to_customer_bonus"`

	SecondTripBonus payroll.Money `json:"second_trip_bonus"`
	ThirdTripBonus  payroll.Money `json:"third_trip_bonus"`

	MonthlyBonusTiers []payroll.MonthlyBonusTier `json:"monthly_bonus_tiers"`

	HolidayMultiplier decimal.Decimal `json:"holiday_multiplier"`
}

// =============================================================================
// RATE FACTORY
// =============================================================================

type RateFactory struct{}

func NewRateFactory() *RateFactory {
	return &RateFactory{}
}

// ParseRateTable converts a JSON document into a validated RateTable.
func (f *RateFactory) ParseRateTable(jsonStr string) (*payroll.RateTable, error) {
	var doc RateTableJSON
	if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
		return nil, fmt.Errorf("invalid rate table JSON: %w", err)
	}
	return f.FromJSON(doc)
}

// FromJSON converts an already-decoded document into a validated RateTable.
func (f *RateFactory) FromJSON(doc RateTableJSON) (*payroll.RateTable, error) {
	if doc.ID == "" {
		return nil, fmt.Errorf("%w: id is required", payroll.ErrInvalidRateTable)
	}

	start, err := time.Parse(dateFormat, doc.EffectiveStart)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid effective_start %q (use YYYY-MM-DD)",
			payroll.ErrInvalidRateTable, doc.EffectiveStart)
	}

	var end *time.Time
	if doc.EffectiveEnd != "" {
		t, err := time.Parse(dateFormat, doc.EffectiveEnd)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid effective_end %q (use YYYY-MM-DD)",
				payroll.ErrInvalidRateTable, doc.EffectiveEnd)
		}
		end = &t
	}

	rt := &payroll.RateTable{
		ID:                       payroll.RateTableID(doc.ID),
		EffectiveStart:           start,
		EffectiveEnd:             end,
		DistanceBrackets:         doc.DistanceBrackets,
		PortBandAmounts:          doc.PortBandAmounts,
		WarehouseBandAmounts:     doc.WarehouseBandAmounts,
		PortGateFee:              doc.PortGateFee,
		FlatbedTarpFee:           doc.FlatbedTarpFee,
		WarehouseToCustomerBonus: doc.WarehouseToCustomerBonus,
		SecondTripBonus:          doc.SecondTripBonus,
		ThirdTripBonus:           doc.ThirdTripBonus,
		MonthlyBonusTiers:        doc.MonthlyBonusTiers,
		HolidayMultiplier:        doc.HolidayMultiplier,
	}

	if err := rt.Validate(); err != nil {
		return nil, err
	}
	return rt, nil
}

// Render converts a RateTable back into its JSON document form.
func (f *RateFactory) Render(rt *payroll.RateTable) RateTableJSON {
	doc := RateTableJSON{
		ID:                       string(rt.ID),
		EffectiveStart:           rt.EffectiveStart.Format(dateFormat),
		DistanceBrackets:         rt.DistanceBrackets,
		PortBandAmounts:          rt.PortBandAmounts,
		WarehouseBandAmounts:     rt.WarehouseBandAmounts,
		PortGateFee:              rt.PortGateFee,
		FlatbedTarpFee:           rt.FlatbedTarpFee,
		WarehouseToCustomerBonus: rt.WarehouseToCustomerBonus,
		SecondTripBonus:          rt.SecondTripBonus,
		ThirdTripBonus:           rt.ThirdTripBonus,
		MonthlyBonusTiers:        rt.MonthlyBonusTiers,
		HolidayMultiplier:        rt.HolidayMultiplier,
	}
	if rt.EffectiveEnd != nil {
		doc.EffectiveEnd = rt.EffectiveEnd.Format(dateFormat)
	}
	return doc
}
