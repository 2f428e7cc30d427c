/*
Package sqlite provides a SQLite-backed implementation of the payroll
storage interfaces.

PURPOSE:
  Implements TripStore, RateStore, PayrollStore, and DriverStore using
  SQLite. In production the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

KEY TABLES:
  drivers:      Driver registry
  rate_tables:  Effective-dated rate snapshots (numeric payload as JSON)
  trips:        Delivered trips with cached sequencing/salary fields
  payrolls:     Monthly payroll records; trip snapshot and adjustments as
                JSON blobs (denormalized, immutable copies by design)

UNIQUENESS:
  idx_payrolls_driver_period enforces at most one payroll per
  (driver, year, month). Violations surface as ErrDuplicateRecord.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): multiple readers don't
  block, single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/haulmark/payroll-engine/payroll"
)

const (
	dateFormat = "2006-01-02"
	timeFormat = time.RFC3339Nano
)

// Store implements all payroll storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS drivers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		hired_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rate_tables (
		id TEXT PRIMARY KEY,
		effective_start TEXT NOT NULL,
		effective_end TEXT,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rate_tables_window
		ON rate_tables(effective_start, effective_end);

	CREATE TABLE IF NOT EXISTS trips (
		id TEXT PRIMARY KEY,
		driver_id TEXT NOT NULL,
		order_code TEXT NOT NULL,
		pickup_site TEXT,
		delivery_site TEXT,
		distance_km TEXT,
		delivery_date TEXT NOT NULL,
		is_from_port BOOLEAN NOT NULL DEFAULT FALSE,
		is_flatbed BOOLEAN NOT NULL DEFAULT FALSE,
		is_internal_cargo BOOLEAN NOT NULL DEFAULT FALSE,
		is_holiday BOOLEAN NOT NULL DEFAULT FALSE,
		trip_number_in_day INTEGER NOT NULL DEFAULT 0,
		trip_count_in_month INTEGER NOT NULL DEFAULT 0,
		salary_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: one driver's month, ordered
	CREATE INDEX IF NOT EXISTS idx_trips_driver_date
		ON trips(driver_id, delivery_date);
	CREATE INDEX IF NOT EXISTS idx_trips_date
		ON trips(delivery_date);

	CREATE TABLE IF NOT EXISTS payrolls (
		id TEXT PRIMARY KEY,
		driver_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		status TEXT NOT NULL,
		snapshot_json TEXT NOT NULL,
		adjustments_json TEXT NOT NULL,
		total_trips INTEGER NOT NULL,
		total_distance_km TEXT NOT NULL,
		total_trip_salary TEXT NOT NULL,
		total_bonuses TEXT NOT NULL,
		total_adjustments TEXT NOT NULL,
		base_salary TEXT NOT NULL,
		seniority_bonus TEXT NOT NULL,
		insurance_deduction TEXT NOT NULL,
		income_tax_deduction TEXT NOT NULL,
		advance_deduction TEXT NOT NULL,
		net_salary TEXT NOT NULL,
		notes TEXT,
		dispute_reason TEXT,
		generated_at TEXT NOT NULL,
		submitted_at TEXT,
		confirmed_by_driver_at TEXT,
		confirmed_by_hr_at TEXT,
		paid_at TEXT,
		disputed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: at most one payroll per (driver, year, month)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payrolls_driver_period
		ON payrolls(driver_id, year, month);
	CREATE INDEX IF NOT EXISTS idx_payrolls_period
		ON payrolls(year, month);
	CREATE INDEX IF NOT EXISTS idx_payrolls_status
		ON payrolls(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DRIVER STORE
// =============================================================================

func (s *Store) SaveDriver(ctx context.Context, d payroll.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drivers (id, name, hired_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, hired_at = excluded.hired_at
	`, d.ID, d.Name, d.HiredAt.Format(dateFormat), d.CreatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to save driver: %w", err)
	}
	return nil
}

func (s *Store) GetDriver(ctx context.Context, id payroll.DriverID) (*payroll.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, hired_at, created_at FROM drivers WHERE id = ?`, id)
	d, err := scanDriver(row)
	if err == sql.ErrNoRows {
		return nil, payroll.ErrDriverNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}
	return d, nil
}

func (s *Store) ListDrivers(ctx context.Context) ([]payroll.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, hired_at, created_at FROM drivers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	defer rows.Close()

	var out []payroll.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDriver(row rowScanner) (*payroll.Driver, error) {
	var (
		d                  payroll.Driver
		hiredAt, createdAt string
	)
	if err := row.Scan(&d.ID, &d.Name, &hiredAt, &createdAt); err != nil {
		return nil, err
	}
	d.HiredAt, _ = time.Parse(dateFormat, hiredAt)
	d.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &d, nil
}

// =============================================================================
// RATE STORE
// =============================================================================

// rateConfig is the JSON payload of a rate table's numeric parameters.
// Effective dates live in their own columns for window queries.
type rateConfig struct {
	DistanceBrackets         []decimal.Decimal          `json:"distance_brackets"`
	PortBandAmounts          []payroll.Money            `json:"port_band_amounts"`
	WarehouseBandAmounts     []payroll.Money            `json:"warehouse_band_amounts"`
	PortGateFee              payroll.Money              `json:"port_gate_fee"`
	FlatbedTarpFee           payroll.Money              `json:"flatbed_tarp_fee"`
	WarehouseToCustomerBonus payroll.Money              `json:"warehouse_to_customer_bonus"`
	SecondTripBonus          payroll.Money              `json:"second_trip_bonus"`
	ThirdTripBonus           payroll.Money              `json:"third_trip_bonus"`
	MonthlyBonusTiers        []payroll.MonthlyBonusTier `json:"monthly_bonus_tiers"`
	HolidayMultiplier        decimal.Decimal            `json:"holiday_multiplier"`
}

func (s *Store) SaveRateTable(ctx context.Context, rt payroll.RateTable) error {
	if err := rt.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.listRateTablesLocked(ctx)
	if err != nil {
		return err
	}
	next := make([]payroll.RateTable, 0, len(existing)+1)
	for _, t := range existing {
		if t.ID != rt.ID {
			next = append(next, t)
		}
	}
	next = append(next, rt)
	if err := payroll.ValidateHistory(next); err != nil {
		return err
	}

	configJSON, err := json.Marshal(rateConfig{
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
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rate config: %w", err)
	}

	createdAt := rt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rate_tables (id, effective_start, effective_end, config_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			effective_start = excluded.effective_start,
			effective_end = excluded.effective_end,
			config_json = excluded.config_json
	`, rt.ID,
		rt.EffectiveStart.Format(dateFormat),
		nullDate(rt.EffectiveEnd),
		string(configJSON),
		createdAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to save rate table: %w", err)
	}
	return nil
}

func (s *Store) ListRateTables(ctx context.Context) ([]payroll.RateTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRateTablesLocked(ctx)
}

func (s *Store) listRateTablesLocked(ctx context.Context) ([]payroll.RateTable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, effective_start, effective_end, config_json, created_at
		FROM rate_tables
		ORDER BY effective_start DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate tables: %w", err)
	}
	defer rows.Close()

	var out []payroll.RateTable
	for rows.Next() {
		var (
			rt                     payroll.RateTable
			start, conf, createdAt string
			end                    sql.NullString
		)
		if err := rows.Scan(&rt.ID, &start, &end, &conf, &createdAt); err != nil {
			return nil, err
		}
		rt.EffectiveStart, _ = time.Parse(dateFormat, start)
		if end.Valid {
			t, _ := time.Parse(dateFormat, end.String)
			rt.EffectiveEnd = &t
		}
		rt.CreatedAt, _ = time.Parse(timeFormat, createdAt)

		var c rateConfig
		if err := json.Unmarshal([]byte(conf), &c); err != nil {
			return nil, fmt.Errorf("failed to parse rate config %s: %w", rt.ID, err)
		}
		rt.DistanceBrackets = c.DistanceBrackets
		rt.PortBandAmounts = c.PortBandAmounts
		rt.WarehouseBandAmounts = c.WarehouseBandAmounts
		rt.PortGateFee = c.PortGateFee
		rt.FlatbedTarpFee = c.FlatbedTarpFee
		rt.WarehouseToCustomerBonus = c.WarehouseToCustomerBonus
		rt.SecondTripBonus = c.SecondTripBonus
		rt.ThirdTripBonus = c.ThirdTripBonus
		rt.MonthlyBonusTiers = c.MonthlyBonusTiers
		rt.HolidayMultiplier = c.HolidayMultiplier

		out = append(out, rt)
	}
	return out, rows.Err()
}

func (s *Store) ResolveRateTable(ctx context.Context, date time.Time) (*payroll.RateTable, error) {
	tables, err := s.ListRateTables(ctx)
	if err != nil {
		return nil, err
	}
	return payroll.Resolve(tables, date)
}

// =============================================================================
// TRIP STORE
// =============================================================================

func (s *Store) SaveTrip(ctx context.Context, t payroll.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveTrip(ctx, s.db, t)
}

func (s *Store) SaveTrips(ctx context.Context, trips []payroll.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, t := range trips {
		if err := s.saveTrip(ctx, sqlTx, t); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) saveTrip(ctx context.Context, db execer, t payroll.Trip) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	var salaryJSON sql.NullString
	if t.Salary != nil {
		b, err := json.Marshal(t.Salary)
		if err != nil {
			return fmt.Errorf("failed to marshal salary breakdown: %w", err)
		}
		salaryJSON = sql.NullString{String: string(b), Valid: true}
	}

	var distance sql.NullString
	if t.DistanceKm != nil {
		distance = sql.NullString{String: t.DistanceKm.String(), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO trips
		(id, driver_id, order_code, pickup_site, delivery_site, distance_km, delivery_date,
		 is_from_port, is_flatbed, is_internal_cargo, is_holiday,
		 trip_number_in_day, trip_count_in_month, salary_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			order_code = excluded.order_code,
			pickup_site = excluded.pickup_site,
			delivery_site = excluded.delivery_site,
			distance_km = excluded.distance_km,
			delivery_date = excluded.delivery_date,
			is_from_port = excluded.is_from_port,
			is_flatbed = excluded.is_flatbed,
			is_internal_cargo = excluded.is_internal_cargo,
			is_holiday = excluded.is_holiday,
			trip_number_in_day = excluded.trip_number_in_day,
			trip_count_in_month = excluded.trip_count_in_month,
			salary_json = excluded.salary_json,
			updated_at = excluded.updated_at
	`, t.ID, t.DriverID, t.OrderCode, t.PickupSite, t.DeliverySite, distance,
		t.Day().Format(dateFormat),
		t.IsFromPort, t.IsFlatbed, t.IsInternalCargo, t.IsHoliday,
		t.TripNumberInDay, t.TripCountInMonth, salaryJSON,
		t.CreatedAt.Format(timeFormat), t.UpdatedAt.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to save trip: %w", err)
	}
	return nil
}

const tripColumns = `id, driver_id, order_code, pickup_site, delivery_site, distance_km,
	delivery_date, is_from_port, is_flatbed, is_internal_cargo, is_holiday,
	trip_number_in_day, trip_count_in_month, salary_json, created_at, updated_at`

func (s *Store) GetTrip(ctx context.Context, id payroll.TripID) (*payroll.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE id = ?`, id)
	t, err := scanTrip(row)
	if err == sql.ErrNoRows {
		return nil, payroll.ErrTripNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return t, nil
}

func (s *Store) ListTripsForMonth(ctx context.Context, driverID payroll.DriverID, period payroll.Period) ([]payroll.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE driver_id = ? AND delivery_date >= ? AND delivery_date <= ?
		ORDER BY delivery_date ASC, created_at ASC, id ASC
	`, driverID, period.Start().Format(dateFormat), period.End().Format(dateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	var out []payroll.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) ListDriversWithTrips(ctx context.Context, period payroll.Period) ([]payroll.DriverID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT driver_id FROM trips
		WHERE delivery_date >= ? AND delivery_date <= ?
		ORDER BY driver_id
	`, period.Start().Format(dateFormat), period.End().Format(dateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers with trips: %w", err)
	}
	defer rows.Close()

	var out []payroll.DriverID
	for rows.Next() {
		var id payroll.DriverID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanTrip(row rowScanner) (*payroll.Trip, error) {
	var (
		t                              payroll.Trip
		distance, salaryJSON           sql.NullString
		deliveryDate, created, updated string
	)
	if err := row.Scan(
		&t.ID, &t.DriverID, &t.OrderCode, &t.PickupSite, &t.DeliverySite, &distance,
		&deliveryDate, &t.IsFromPort, &t.IsFlatbed, &t.IsInternalCargo, &t.IsHoliday,
		&t.TripNumberInDay, &t.TripCountInMonth, &salaryJSON, &created, &updated,
	); err != nil {
		return nil, err
	}
	if distance.Valid {
		d, err := decimal.NewFromString(distance.String)
		if err != nil {
			return nil, fmt.Errorf("bad distance for trip %s: %w", t.ID, err)
		}
		t.DistanceKm = &d
	}
	if salaryJSON.Valid {
		var b payroll.SalaryBreakdown
		if err := json.Unmarshal([]byte(salaryJSON.String), &b); err != nil {
			return nil, fmt.Errorf("bad salary breakdown for trip %s: %w", t.ID, err)
		}
		t.Salary = &b
	}
	t.DeliveryDate, _ = time.Parse(dateFormat, deliveryDate)
	t.CreatedAt, _ = time.Parse(timeFormat, created)
	t.UpdatedAt, _ = time.Parse(timeFormat, updated)
	return &t, nil
}

// =============================================================================
// PAYROLL STORE
// =============================================================================

func (s *Store) SavePayroll(ctx context.Context, p *payroll.Payroll) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshotJSON, err := json.Marshal(p.TripSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal trip snapshot: %w", err)
	}
	adjustmentsJSON, err := json.Marshal(p.Adjustments)
	if err != nil {
		return fmt.Errorf("failed to marshal adjustments: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO payrolls
		(id, driver_id, year, month, status, snapshot_json, adjustments_json,
		 total_trips, total_distance_km, total_trip_salary, total_bonuses, total_adjustments,
		 base_salary, seniority_bonus, insurance_deduction, income_tax_deduction, advance_deduction,
		 net_salary, notes, dispute_reason,
		 generated_at, submitted_at, confirmed_by_driver_at, confirmed_by_hr_at, paid_at, disputed_at,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			snapshot_json = excluded.snapshot_json,
			adjustments_json = excluded.adjustments_json,
			total_trips = excluded.total_trips,
			total_distance_km = excluded.total_distance_km,
			total_trip_salary = excluded.total_trip_salary,
			total_bonuses = excluded.total_bonuses,
			total_adjustments = excluded.total_adjustments,
			base_salary = excluded.base_salary,
			seniority_bonus = excluded.seniority_bonus,
			insurance_deduction = excluded.insurance_deduction,
			income_tax_deduction = excluded.income_tax_deduction,
			advance_deduction = excluded.advance_deduction,
			net_salary = excluded.net_salary,
			notes = excluded.notes,
			dispute_reason = excluded.dispute_reason,
			generated_at = excluded.generated_at,
			submitted_at = excluded.submitted_at,
			confirmed_by_driver_at = excluded.confirmed_by_driver_at,
			confirmed_by_hr_at = excluded.confirmed_by_hr_at,
			paid_at = excluded.paid_at,
			disputed_at = excluded.disputed_at,
			updated_at = excluded.updated_at
	`, p.ID, p.DriverID, p.Year, int(p.Month), p.Status,
		string(snapshotJSON), string(adjustmentsJSON),
		p.TotalTrips, p.TotalDistanceKm.String(),
		p.TotalTripSalary.String(), p.TotalBonuses.String(), p.TotalAdjustments.String(),
		p.Figures.BaseSalary.String(), p.Figures.SeniorityBonus.String(),
		p.Figures.InsuranceDeduction.String(), p.Figures.IncomeTaxDeduction.String(),
		p.Figures.AdvanceDeduction.String(),
		p.NetSalary.String(), p.Notes, p.DisputeReason,
		p.GeneratedAt.Format(timeFormat),
		nullTime(p.SubmittedAt), nullTime(p.ConfirmedByDriverAt), nullTime(p.ConfirmedByHRAt),
		nullTime(p.PaidAt), nullTime(p.DisputedAt),
		p.CreatedAt.Format(timeFormat), p.UpdatedAt.Format(timeFormat))
	if err != nil {
		if isUniqueConstraintError(err) {
			return payroll.ErrDuplicateRecord
		}
		return fmt.Errorf("failed to save payroll: %w", err)
	}
	return nil
}

const payrollColumns = `id, driver_id, year, month, status, snapshot_json, adjustments_json,
	total_trips, total_distance_km, total_trip_salary, total_bonuses, total_adjustments,
	base_salary, seniority_bonus, insurance_deduction, income_tax_deduction, advance_deduction,
	net_salary, notes, dispute_reason,
	generated_at, submitted_at, confirmed_by_driver_at, confirmed_by_hr_at, paid_at, disputed_at,
	created_at, updated_at`

func (s *Store) GetPayroll(ctx context.Context, id payroll.PayrollID) (*payroll.Payroll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+payrollColumns+` FROM payrolls WHERE id = ?`, id)
	p, err := scanPayroll(row)
	if err == sql.ErrNoRows {
		return nil, payroll.ErrPayrollNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payroll: %w", err)
	}
	return p, nil
}

func (s *Store) GetPayrollForPeriod(ctx context.Context, driverID payroll.DriverID, period payroll.Period) (*payroll.Payroll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+payrollColumns+` FROM payrolls WHERE driver_id = ? AND year = ? AND month = ?`,
		driverID, period.Year, int(period.Month))
	p, err := scanPayroll(row)
	if err == sql.ErrNoRows {
		return nil, payroll.ErrPayrollNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payroll: %w", err)
	}
	return p, nil
}

func (s *Store) ListPayrollsForPeriod(ctx context.Context, period payroll.Period) ([]*payroll.Payroll, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+payrollColumns+` FROM payrolls WHERE year = ? AND month = ? ORDER BY driver_id`,
		period.Year, int(period.Month))
	if err != nil {
		return nil, fmt.Errorf("failed to list payrolls: %w", err)
	}
	defer rows.Close()

	var out []*payroll.Payroll
	for rows.Next() {
		p, err := scanPayroll(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) DeletePayroll(ctx context.Context, id payroll.PayrollID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM payrolls WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payroll: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return payroll.ErrPayrollNotFound
	}
	return nil
}

func scanPayroll(row rowScanner) (*payroll.Payroll, error) {
	var (
		p                              payroll.Payroll
		month                          int
		snapshotJSON, adjustmentsJSON  string
		totalDistance, totalTripSalary string
		totalBonuses, totalAdjustments string
		baseSalary, seniorityBonus     string
		insurance, incomeTax, advance  string
		netSalary                      string
		notes, disputeReason           sql.NullString
		generated, created, updated    string
		submitted, confDriver, confHR  sql.NullString
		paid, disputed                 sql.NullString
	)
	if err := row.Scan(
		&p.ID, &p.DriverID, &p.Year, &month, &p.Status, &snapshotJSON, &adjustmentsJSON,
		&p.TotalTrips, &totalDistance, &totalTripSalary, &totalBonuses, &totalAdjustments,
		&baseSalary, &seniorityBonus, &insurance, &incomeTax, &advance,
		&netSalary, &notes, &disputeReason,
		&generated, &submitted, &confDriver, &confHR, &paid, &disputed,
		&created, &updated,
	); err != nil {
		return nil, err
	}
	p.Month = time.Month(month)
	p.Notes = notes.String
	p.DisputeReason = disputeReason.String

	if err := json.Unmarshal([]byte(snapshotJSON), &p.TripSnapshot); err != nil {
		return nil, fmt.Errorf("bad trip snapshot for payroll %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(adjustmentsJSON), &p.Adjustments); err != nil {
		return nil, fmt.Errorf("bad adjustments for payroll %s: %w", p.ID, err)
	}

	var err error
	if p.TotalDistanceKm, err = decimal.NewFromString(totalDistance); err != nil {
		return nil, fmt.Errorf("bad total distance for payroll %s: %w", p.ID, err)
	}
	p.TotalTripSalary = payroll.MustParseMoney(totalTripSalary)
	p.TotalBonuses = payroll.MustParseMoney(totalBonuses)
	p.TotalAdjustments = payroll.MustParseMoney(totalAdjustments)
	p.Figures = payroll.ReportFigures{
		BaseSalary:         payroll.MustParseMoney(baseSalary),
		SeniorityBonus:     payroll.MustParseMoney(seniorityBonus),
		InsuranceDeduction: payroll.MustParseMoney(insurance),
		IncomeTaxDeduction: payroll.MustParseMoney(incomeTax),
		AdvanceDeduction:   payroll.MustParseMoney(advance),
	}
	p.NetSalary = payroll.MustParseMoney(netSalary)

	p.GeneratedAt, _ = time.Parse(timeFormat, generated)
	p.SubmittedAt = parseNullTime(submitted)
	p.ConfirmedByDriverAt = parseNullTime(confDriver)
	p.ConfirmedByHRAt = parseNullTime(confHR)
	p.PaidAt = parseNullTime(paid)
	p.DisputedAt = parseNullTime(disputed)
	p.CreatedAt, _ = time.Parse(timeFormat, created)
	p.UpdatedAt, _ = time.Parse(timeFormat, updated)
	return &p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateFormat)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(timeFormat)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeFormat, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
