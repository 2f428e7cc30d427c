/*
sequence.go - Daily and monthly trip sequencing

PURPOSE:
  The daily bonus depends on a trip's position within the driver's delivery
  day, and the monthly bonus on the driver's total trip count for the
  calendar month. Neither is a property of a single trip: editing one
  trip's date can ripple into siblings' bonuses. Sequencing is therefore an
  explicit pass over a driver's whole month, re-run after any add, remove,
  or date change, so the numbering invariant always holds.

ORDERING:
  Within a day, trips are ordered by creation time with the trip ID as a
  stable tiebreak. The sequencer never mutates its input; it returns an
  annotated copy.
*/
package payroll

import (
	"sort"
	"time"
)

// Sequence annotates one driver's trips with TripNumberInDay (1..n within
// each delivery day) and TripCountInMonth (total per calendar month, same
// value on every trip of that month). The input slice is not modified.
func Sequence(trips []Trip) []Trip {
	out := make([]Trip, len(trips))
	copy(out, trips)

	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Day(), out[j].Day()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	monthCounts := make(map[Period]int, 2)
	for i := range out {
		monthCounts[PeriodOf(out[i].Day())]++
	}

	var (
		currentDay time.Time
		dayNumber  int
	)
	for i := range out {
		day := out[i].Day()
		if !day.Equal(currentDay) {
			currentDay = day
			dayNumber = 0
		}
		dayNumber++
		out[i].TripNumberInDay = dayNumber
		out[i].TripCountInMonth = monthCounts[PeriodOf(day)]
	}

	return out
}

// SequenceAndCompute runs the full recomputation pass for one driver's
// trips: sequencing plus per-trip salary calculation against the rate
// table in force on each delivery date. This is the single entry point for
// the edit ripple - callers pass every trip in the affected month, not
// just the edited one.
//
// Trips without distance data keep a nil Salary; generation later rejects
// them, but a flag edit on a sibling must not fail the whole pass.
func SequenceAndCompute(trips []Trip, tables []RateTable) ([]Trip, error) {
	annotated := Sequence(trips)
	for i := range annotated {
		t := &annotated[i]
		if t.DistanceKm == nil {
			t.Salary = nil
			continue
		}
		rt, err := Resolve(tables, t.Day())
		if err != nil {
			return nil, err
		}
		breakdown, err := Compute(t, rt, t.TripNumberInDay, t.TripCountInMonth)
		if err != nil {
			return nil, err
		}
		t.Salary = &breakdown
	}
	return annotated, nil
}
