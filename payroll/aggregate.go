/*
aggregate.go - Month-end payroll generation

PURPOSE:
  The Aggregator turns one driver's month of trips into a Payroll: it runs
  the sequencing and calculation passes, sums the per-trip totals, adds the
  once-per-month trip-count bonus, freezes the annotated trips into an
  immutable snapshot, and merges the externally supplied payroll figures.

COMPLETENESS PRECONDITION:
  Every trip in the period must carry distance data. A payroll with
  silently-zero trips undermines trust in pay, so a missing distance is a
  hard block: no payroll is written, the existing draft is untouched, and
  the error lists every offending trip with enough context to fix it at
  the source.

BULK GENERATION:
  GenerateAll fans out independent per-driver generations. Semantics are
  partial-success: clean drivers get payrolls, dirty drivers are collected
  into a single MissingDistanceError covering every affected driver and
  trip in one pass. A driver is never half-generated.

SERIALIZATION:
  A PeriodGuard provides exclusive locking per (driver, year, month).
  Two simultaneous generations, or a generation racing a workflow
  transition, for the same key never interleave: the loser gets
  ErrConcurrentModification and should retry.

SEE ALSO:
  - sequence.go: SequenceAndCompute, the shared recomputation pass
  - workflow.go: Transitions over the generated payroll
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD GUARD - Per-(driver, period) mutual exclusion
// =============================================================================

type guardKey struct {
	DriverID DriverID
	Period   Period
}

// PeriodGuard serializes writes per (driver, year, month). Acquire is
// non-blocking: the engine's computations are short, so contention means a
// concurrent generate/transition is in flight and the caller should retry.
type PeriodGuard struct {
	mu   sync.Mutex
	held map[guardKey]struct{}
}

func NewPeriodGuard() *PeriodGuard {
	return &PeriodGuard{held: make(map[guardKey]struct{})}
}

// Acquire takes the lock for (driverID, period) or fails with
// ErrConcurrentModification if it is already held.
func (g *PeriodGuard) Acquire(driverID DriverID, period Period) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := guardKey{DriverID: driverID, Period: period}
	if _, taken := g.held[k]; taken {
		return fmt.Errorf("%w: driver %s period %s", ErrConcurrentModification, driverID, period)
	}
	g.held[k] = struct{}{}
	return nil
}

// Release frees the lock for (driverID, period).
func (g *PeriodGuard) Release(driverID DriverID, period Period) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, guardKey{DriverID: driverID, Period: period})
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// bulkWorkers bounds the per-driver fan-out in GenerateAll.
const bulkWorkers = 8

type Aggregator struct {
	Trips    TripStore
	Rates    RateStore
	Payrolls PayrollStore
	Drivers  DriverStore
	Reports  ReportProvider
	Guard    *PeriodGuard
}

func NewAggregator(trips TripStore, rates RateStore, payrolls PayrollStore, drivers DriverStore, reports ReportProvider, guard *PeriodGuard) *Aggregator {
	if reports == nil {
		reports = NoReports{}
	}
	if guard == nil {
		guard = NewPeriodGuard()
	}
	return &Aggregator{
		Trips:    trips,
		Rates:    rates,
		Payrolls: payrolls,
		Drivers:  drivers,
		Reports:  reports,
		Guard:    guard,
	}
}

// Generate builds the payroll for one driver and period.
//
// Re-generating an existing DRAFT (or DISPUTED) payroll replaces it; a
// payroll that has been submitted, confirmed, or paid is history and is
// never regenerated. The precondition check runs before any write, so a
// failure leaves prior state untouched.
func (a *Aggregator) Generate(ctx context.Context, driverID DriverID, period Period) (*Payroll, error) {
	if err := a.Guard.Acquire(driverID, period); err != nil {
		return nil, err
	}
	defer a.Guard.Release(driverID, period)

	return a.generateLocked(ctx, driverID, period)
}

func (a *Aggregator) generateLocked(ctx context.Context, driverID DriverID, period Period) (*Payroll, error) {
	if _, err := a.Drivers.GetDriver(ctx, driverID); err != nil {
		return nil, err
	}

	existing, err := a.Payrolls.GetPayrollForPeriod(ctx, driverID, period)
	if err != nil && !errors.Is(err, ErrPayrollNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status != StatusDraft && existing.Status != StatusDisputed {
		return nil, fmt.Errorf("%w: driver %s period %s status %s",
			ErrPayrollFinalized, driverID, period, existing.Status)
	}

	trips, err := a.Trips.ListTripsForMonth(ctx, driverID, period)
	if err != nil {
		return nil, err
	}

	if missing := collectMissing(driverID, trips); missing != nil {
		return nil, &MissingDistanceError{Period: period, Drivers: []DriverMissingTrips{*missing}}
	}

	tables, err := a.Rates.ListRateTables(ctx)
	if err != nil {
		return nil, err
	}

	annotated, err := SequenceAndCompute(trips, tables)
	if err != nil {
		return nil, err
	}

	figures, err := a.Reports.Figures(ctx, driverID, period)
	if err != nil {
		return nil, fmt.Errorf("report figures for driver %s: %w", driverID, err)
	}

	now := time.Now().UTC()
	p := &Payroll{
		ID:           PayrollID(uuid.NewString()),
		DriverID:     driverID,
		Year:         period.Year,
		Month:        period.Month,
		Status:       StatusDraft,
		TripSnapshot: annotated,
		Adjustments:  []Adjustment{},
		Figures:      figures,
		GeneratedAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing != nil {
		// Replacing a draft keeps its identity stable for clients.
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	}

	p.TotalTrips = len(annotated)
	p.TotalDistanceKm = decimal.Zero
	p.TotalTripSalary = ZeroMoney()
	for i := range annotated {
		p.TotalDistanceKm = p.TotalDistanceKm.Add(*annotated[i].DistanceKm)
		p.TotalTripSalary = p.TotalTripSalary.Add(annotated[i].Salary.Total)
	}

	p.TotalBonuses = ZeroMoney()
	if len(annotated) > 0 {
		// The monthly count bonus is keyed against the table in force on
		// the driver's last trip date of the month.
		last := annotated[len(annotated)-1]
		rt, err := Resolve(tables, last.Day())
		if err != nil {
			return nil, err
		}
		p.TotalBonuses = rt.MonthlyBonus(last.TripCountInMonth)
	}

	p.RecomputeTotals()

	if err := a.Payrolls.SavePayroll(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func collectMissing(driverID DriverID, trips []Trip) *DriverMissingTrips {
	var missing []MissingTrip
	for i := range trips {
		if trips[i].HasDistance() {
			continue
		}
		missing = append(missing, MissingTrip{
			TripID:       trips[i].ID,
			OrderCode:    trips[i].OrderCode,
			PickupSite:   trips[i].PickupSite,
			DeliverySite: trips[i].DeliverySite,
			DeliveryDate: trips[i].Day(),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &DriverMissingTrips{DriverID: driverID, Trips: missing}
}

// =============================================================================
// BULK GENERATION
// =============================================================================

// BulkResult reports the outcome of GenerateAll. Missing is nil when every
// driver generated cleanly.
type BulkResult struct {
	Generated []*Payroll
	Missing   *MissingDistanceError
}

// GenerateAll generates payrolls for every driver with trips in the period.
// Per-driver computations run in parallel (no shared mutable state between
// drivers); writes stay serialized per driver through the period guard.
//
// Semantics are partial-success: drivers with complete data get payrolls,
// drivers with missing distances are reported in BulkResult.Missing. Any
// other per-driver failure aborts with an error.
func (a *Aggregator) GenerateAll(ctx context.Context, period Period) (*BulkResult, error) {
	driverIDs, err := a.Trips.ListDriversWithTrips(ctx, period)
	if err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		generated []*Payroll
		missing   []DriverMissingTrips
		failures  []error
	)

	sem := make(chan struct{}, bulkWorkers)
	var wg sync.WaitGroup

	for _, driverID := range driverIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(driverID DriverID) {
			defer wg.Done()
			defer func() { <-sem }()

			p, err := a.Generate(ctx, driverID, period)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				generated = append(generated, p)
			case errors.Is(err, ErrMissingDistance):
				var mde *MissingDistanceError
				if errors.As(err, &mde) {
					missing = append(missing, mde.Drivers...)
				}
			case errors.Is(err, ErrPayrollFinalized):
				// Already submitted/confirmed/paid: month-end re-runs skip
				// finalized drivers instead of failing the batch.
			default:
				failures = append(failures, fmt.Errorf("driver %s: %w", driverID, err))
			}
		}(driverID)
	}
	wg.Wait()

	if len(failures) > 0 {
		return nil, errors.Join(failures...)
	}

	sort.Slice(generated, func(i, j int) bool { return generated[i].DriverID < generated[j].DriverID })
	sort.Slice(missing, func(i, j int) bool { return missing[i].DriverID < missing[j].DriverID })

	result := &BulkResult{Generated: generated}
	if len(missing) > 0 {
		result.Missing = &MissingDistanceError{Period: period, Drivers: missing}
	}
	return result, nil
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// AddAdjustment appends a manual {reason, amount} correction to a DRAFT
// payroll and recomputes its totals. Adjustments freeze at submission.
func (a *Aggregator) AddAdjustment(ctx context.Context, id PayrollID, adj Adjustment) (*Payroll, error) {
	p, err := a.Payrolls.GetPayroll(ctx, id)
	if err != nil {
		return nil, err
	}

	period := p.Period()
	if err := a.Guard.Acquire(p.DriverID, period); err != nil {
		return nil, err
	}
	defer a.Guard.Release(p.DriverID, period)

	// Re-read under the lock.
	p, err = a.Payrolls.GetPayroll(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusDraft {
		return nil, &TransitionError{PayrollID: p.ID, Action: "adjust", From: p.Status}
	}

	p.Adjustments = append(p.Adjustments, adj)
	p.RecomputeTotals()
	p.UpdatedAt = time.Now().UTC()

	if err := a.Payrolls.SavePayroll(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// =============================================================================
// EDIT RIPPLE
// =============================================================================

// RecalculateDriverMonth re-runs sequencing and per-trip calculation over a
// whole driver-month and persists the refreshed cached fields. Call after
// any trip in the month is added, removed, or edited - the daily/monthly
// bonus terms of sibling trips depend on sequence, not just the edited
// trip. Generated payroll snapshots are unaffected by design.
func (a *Aggregator) RecalculateDriverMonth(ctx context.Context, driverID DriverID, period Period) ([]Trip, error) {
	trips, err := a.Trips.ListTripsForMonth(ctx, driverID, period)
	if err != nil {
		return nil, err
	}
	if len(trips) == 0 {
		return nil, nil
	}

	tables, err := a.Rates.ListRateTables(ctx)
	if err != nil {
		return nil, err
	}

	annotated, err := SequenceAndCompute(trips, tables)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range annotated {
		annotated[i].UpdatedAt = now
	}

	if err := a.Trips.SaveTrips(ctx, annotated); err != nil {
		return nil, err
	}
	return annotated, nil
}
