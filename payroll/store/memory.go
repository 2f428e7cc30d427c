// Package store provides in-memory implementations of the payroll
// persistence interfaces, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haulmark/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - Implements every payroll store interface
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	drivers  map[payroll.DriverID]payroll.Driver
	trips    map[payroll.TripID]payroll.Trip
	rates    []payroll.RateTable
	payrolls map[payroll.PayrollID]*payroll.Payroll
}

func NewMemory() *Memory {
	return &Memory{
		drivers:  make(map[payroll.DriverID]payroll.Driver),
		trips:    make(map[payroll.TripID]payroll.Trip),
		payrolls: make(map[payroll.PayrollID]*payroll.Payroll),
	}
}

// =============================================================================
// DRIVER STORE
// =============================================================================

func (m *Memory) SaveDriver(_ context.Context, d payroll.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	m.drivers[d.ID] = d
	return nil
}

func (m *Memory) GetDriver(_ context.Context, id payroll.DriverID) (*payroll.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, payroll.ErrDriverNotFound
	}
	return &d, nil
}

func (m *Memory) ListDrivers(_ context.Context) ([]payroll.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payroll.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// TRIP STORE
// =============================================================================

func (m *Memory) SaveTrip(_ context.Context, t payroll.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveTripLocked(t)
	return nil
}

func (m *Memory) SaveTrips(_ context.Context, trips []payroll.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range trips {
		m.saveTripLocked(t)
	}
	return nil
}

func (m *Memory) saveTripLocked(t payroll.Trip) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.trips[t.ID] = cloneTrip(t)
}

func (m *Memory) GetTrip(_ context.Context, id payroll.TripID) (*payroll.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, payroll.ErrTripNotFound
	}
	c := cloneTrip(t)
	return &c, nil
}

func (m *Memory) ListTripsForMonth(_ context.Context, driverID payroll.DriverID, period payroll.Period) ([]payroll.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []payroll.Trip
	for _, t := range m.trips {
		if t.DriverID == driverID && period.Contains(t.Day()) {
			out = append(out, cloneTrip(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day().Equal(out[j].Day()) {
			return out[i].Day().Before(out[j].Day())
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ListDriversWithTrips(_ context.Context, period payroll.Period) ([]payroll.DriverID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[payroll.DriverID]struct{})
	for _, t := range m.trips {
		if period.Contains(t.Day()) {
			seen[t.DriverID] = struct{}{}
		}
	}
	out := make([]payroll.DriverID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// =============================================================================
// RATE STORE
// =============================================================================

func (m *Memory) SaveRateTable(_ context.Context, rt payroll.RateTable) error {
	if err := rt.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]payroll.RateTable, 0, len(m.rates)+1)
	for _, existing := range m.rates {
		if existing.ID != rt.ID {
			next = append(next, existing)
		}
	}
	next = append(next, rt)

	if err := payroll.ValidateHistory(next); err != nil {
		return err
	}
	m.rates = next
	return nil
}

func (m *Memory) ListRateTables(_ context.Context) ([]payroll.RateTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payroll.RateTable, len(m.rates))
	copy(out, m.rates)
	sort.Slice(out, func(i, j int) bool {
		return out[i].EffectiveStart.After(out[j].EffectiveStart)
	})
	return out, nil
}

func (m *Memory) ResolveRateTable(ctx context.Context, date time.Time) (*payroll.RateTable, error) {
	tables, err := m.ListRateTables(ctx)
	if err != nil {
		return nil, err
	}
	return payroll.Resolve(tables, date)
}

// =============================================================================
// PAYROLL STORE
// =============================================================================

func (m *Memory) SavePayroll(_ context.Context, p *payroll.Payroll) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Enforce (driver, year, month) uniqueness the way a database unique
	// index would.
	for _, existing := range m.payrolls {
		if existing.DriverID == p.DriverID &&
			existing.Year == p.Year && existing.Month == p.Month &&
			existing.ID != p.ID {
			return payroll.ErrDuplicateRecord
		}
	}
	m.payrolls[p.ID] = clonePayroll(p)
	return nil
}

func (m *Memory) GetPayroll(_ context.Context, id payroll.PayrollID) (*payroll.Payroll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payrolls[id]
	if !ok {
		return nil, payroll.ErrPayrollNotFound
	}
	return clonePayroll(p), nil
}

func (m *Memory) GetPayrollForPeriod(_ context.Context, driverID payroll.DriverID, period payroll.Period) (*payroll.Payroll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payrolls {
		if p.DriverID == driverID && p.Year == period.Year && p.Month == period.Month {
			return clonePayroll(p), nil
		}
	}
	return nil, payroll.ErrPayrollNotFound
}

func (m *Memory) ListPayrollsForPeriod(_ context.Context, period payroll.Period) ([]*payroll.Payroll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*payroll.Payroll
	for _, p := range m.payrolls {
		if p.Year == period.Year && p.Month == period.Month {
			out = append(out, clonePayroll(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out, nil
}

func (m *Memory) DeletePayroll(_ context.Context, id payroll.PayrollID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payrolls[id]; !ok {
		return payroll.ErrPayrollNotFound
	}
	delete(m.payrolls, id)
	return nil
}

// =============================================================================
// FIXED REPORTS - Static ReportProvider for tests/dev
// =============================================================================

// FixedReports serves pre-seeded external payroll figures keyed by driver.
// Drivers without an entry get zero figures, matching the provider
// contract.
type FixedReports struct {
	mu      sync.RWMutex
	figures map[payroll.DriverID]payroll.ReportFigures
}

func NewFixedReports() *FixedReports {
	return &FixedReports{figures: make(map[payroll.DriverID]payroll.ReportFigures)}
}

func (f *FixedReports) Set(driverID payroll.DriverID, figures payroll.ReportFigures) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.figures[driverID] = figures
}

func (f *FixedReports) Figures(_ context.Context, driverID payroll.DriverID, _ payroll.Period) (payroll.ReportFigures, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.figures[driverID], nil
}

// =============================================================================
// CLONING - Stored records never alias caller memory
// =============================================================================

func cloneTrip(t payroll.Trip) payroll.Trip {
	c := t
	if t.DistanceKm != nil {
		d := *t.DistanceKm
		c.DistanceKm = &d
	}
	if t.Salary != nil {
		s := *t.Salary
		c.Salary = &s
	}
	return c
}

func clonePayroll(p *payroll.Payroll) *payroll.Payroll {
	c := *p
	c.TripSnapshot = make([]payroll.Trip, len(p.TripSnapshot))
	for i := range p.TripSnapshot {
		c.TripSnapshot[i] = cloneTrip(p.TripSnapshot[i])
	}
	c.Adjustments = append([]payroll.Adjustment{}, p.Adjustments...)
	return &c
}
