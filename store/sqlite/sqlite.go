/*
Package sqlite provides a SQLite-backed implementation of core.TxStore.

PURPOSE:
  Durable storage for routes, compliance records, the banking ledger and
  pools. The same SQL runs on PostgreSQL with minor dialect changes
  (ON CONFLICT upserts, TEXT decimals).

APPEND-ONLY ENFORCEMENT:
  bank_entries is never updated or deleted outside Reset. Available banked
  surplus is always derived by summing entries.

KEY TABLES:
  routes:          Voyage telemetry, one row may carry is_baseline = 1
  ship_compliance: Latest CB per (ship_id, year), upserted on recompute
  bank_entries:    Immutable bank/apply ledger
  pools:           Pool headers
  pool_members:    Allocation rows, position keeps request order

DECIMALS:
  Every quantity is stored as TEXT and summed in Go with shopspring/decimal,
  so no value ever passes through a float.

CONCURRENCY:
  sync.RWMutex serializes writers. WithTx holds the write lock for the whole
  unit, which makes the ledger's read-check-append sequence atomic. Every
  statement inside a unit runs on the *sql.Tx.

USAGE:
  store, err := sqlite.New("./data/compliance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := banking.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). NewWithDB skips migration and is meant
  for tests that drive a mock connection.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/compliance-engine/core"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements core.TxStore using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	store := NewWithDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewWithDB wraps an existing connection without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS routes (
		id TEXT PRIMARY KEY,
		ship_id TEXT NOT NULL,
		vessel_type TEXT NOT NULL,
		fuel_type TEXT NOT NULL,
		year INTEGER NOT NULL,
		ghg_intensity TEXT NOT NULL,
		fuel_consumption TEXT NOT NULL,
		distance TEXT NOT NULL,
		total_emissions TEXT NOT NULL,
		is_baseline INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_routes_ship_year
		ON routes(ship_id, year DESC);

	-- at most one baseline
	CREATE UNIQUE INDEX IF NOT EXISTS idx_routes_single_baseline
		ON routes(is_baseline) WHERE is_baseline = 1;

	CREATE TABLE IF NOT EXISTS ship_compliance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ship_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		cb TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(ship_id, year)
	);

	-- Append-only ledger
	CREATE TABLE IF NOT EXISTS bank_entries (
		id TEXT PRIMARY KEY,
		ship_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		amount TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('bank', 'apply')),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bank_entries_ship_year_kind
		ON bank_entries(ship_id, year, kind);

	CREATE TABLE IF NOT EXISTS pools (
		id TEXT PRIMARY KEY,
		year INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pool_members (
		pool_id TEXT NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		ship_id TEXT NOT NULL,
		cb_before TEXT NOT NULL,
		cb_after TEXT NOT NULL,
		PRIMARY KEY (pool_id, position)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// UNITS OF WORK
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// view runs every core.Store method against one querier.
type view struct {
	q   querier
	now func() time.Time
}

// WithTx executes fn within a database transaction. The transaction commits
// only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(core.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(v *view) error { return fn(v) })
}

// inTx expects the write lock to be held.
func (s *Store) inTx(ctx context.Context, fn func(v *view) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&view{q: sqlTx, now: s.now}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) reader() *view {
	return &view{q: s.db, now: s.now}
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(v *view) error {
		for _, table := range []string{"pool_members", "pools", "bank_entries", "ship_compliance", "routes"} {
			if _, err := v.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// =============================================================================
// COMPLIANCE STORE
// =============================================================================

func (s *Store) FindCompliance(ctx context.Context, shipID core.ShipID, year int) (*core.ComplianceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().FindCompliance(ctx, shipID, year)
}

func (s *Store) UpsertCompliance(ctx context.Context, shipID core.ShipID, year int, cb decimal.Decimal) (core.ComplianceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().UpsertCompliance(ctx, shipID, year, cb)
}

func (v *view) FindCompliance(ctx context.Context, shipID core.ShipID, year int) (*core.ComplianceRecord, error) {
	var (
		rec                  core.ComplianceRecord
		createdAt, updatedAt string
	)
	err := v.q.QueryRowContext(ctx, `
		SELECT ship_id, year, cb, created_at, updated_at
		FROM ship_compliance
		WHERE ship_id = ? AND year = ?
	`, shipID, year).Scan(&rec.ShipID, &rec.Year, &rec.CB, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query compliance record: %w", err)
	}

	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func (v *view) UpsertCompliance(ctx context.Context, shipID core.ShipID, year int, cb decimal.Decimal) (core.ComplianceRecord, error) {
	now := formatTime(v.now())
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO ship_compliance (ship_id, year, cb, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ship_id, year) DO UPDATE SET
			cb = excluded.cb,
			updated_at = excluded.updated_at
	`, shipID, year, cb.String(), now, now)
	if err != nil {
		return core.ComplianceRecord{}, fmt.Errorf("failed to upsert compliance record: %w", err)
	}

	rec, err := v.FindCompliance(ctx, shipID, year)
	if err != nil {
		return core.ComplianceRecord{}, err
	}
	if rec == nil {
		return core.ComplianceRecord{}, core.RecordNotFound(shipID, year)
	}
	return *rec, nil
}

// =============================================================================
// BANKING STORE
// =============================================================================

func (s *Store) CreateBankEntry(ctx context.Context, entry core.BankEntry) (core.BankEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().CreateBankEntry(ctx, entry)
}

func (s *Store) SumByKind(ctx context.Context, shipID core.ShipID, year int, kind core.EntryKind) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().SumByKind(ctx, shipID, year, kind)
}

func (s *Store) ListBankEntries(ctx context.Context, shipID core.ShipID, year int) ([]core.BankEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().ListBankEntries(ctx, shipID, year)
}

func (v *view) CreateBankEntry(ctx context.Context, entry core.BankEntry) (core.BankEntry, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = v.now()
	}

	_, err := v.q.ExecContext(ctx, `
		INSERT INTO bank_entries (id, ship_id, year, amount, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.ShipID, entry.Year, entry.Amount.String(), entry.Kind, formatTime(entry.CreatedAt))
	if err != nil {
		return core.BankEntry{}, fmt.Errorf("failed to append bank entry: %w", err)
	}
	return entry, nil
}

func (v *view) SumByKind(ctx context.Context, shipID core.ShipID, year int, kind core.EntryKind) (decimal.Decimal, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT amount FROM bank_entries
		WHERE ship_id = ? AND year = ? AND kind = ?
	`, shipID, year, kind)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query bank entries: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan bank entry: %w", err)
		}
		sum = sum.Add(amount)
	}
	return sum, rows.Err()
}

func (v *view) ListBankEntries(ctx context.Context, shipID core.ShipID, year int) ([]core.BankEntry, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, ship_id, year, amount, kind, created_at
		FROM bank_entries
		WHERE ship_id = ? AND year = ?
		ORDER BY created_at ASC, rowid ASC
	`, shipID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank entries: %w", err)
	}
	defer rows.Close()

	entries := []core.BankEntry{}
	for rows.Next() {
		var (
			e         core.BankEntry
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ShipID, &e.Year, &e.Amount, &e.Kind, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan bank entry: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// ROUTE STORE
// =============================================================================

const routeColumns = `id, ship_id, vessel_type, fuel_type, year, ghg_intensity,
	fuel_consumption, distance, total_emissions, is_baseline`

func (s *Store) SaveRoute(ctx context.Context, route core.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader().SaveRoute(ctx, route)
}

func (s *Store) ListRoutes(ctx context.Context, filter core.RouteFilter) ([]core.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().ListRoutes(ctx, filter)
}

func (s *Store) FindRoute(ctx context.Context, id core.RouteID) (*core.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().FindRoute(ctx, id)
}

func (s *Store) FindRouteByShip(ctx context.Context, shipID core.ShipID) (*core.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().FindRouteByShip(ctx, shipID)
}

func (s *Store) FindBaseline(ctx context.Context) (*core.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().FindBaseline(ctx)
}

// SetBaseline clears the previous baseline and sets id in one transaction.
func (s *Store) SetBaseline(ctx context.Context, id core.RouteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(v *view) error { return v.SetBaseline(ctx, id) })
}

func (v *view) SaveRoute(ctx context.Context, r core.Route) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO routes (`+routeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ship_id = excluded.ship_id,
			vessel_type = excluded.vessel_type,
			fuel_type = excluded.fuel_type,
			year = excluded.year,
			ghg_intensity = excluded.ghg_intensity,
			fuel_consumption = excluded.fuel_consumption,
			distance = excluded.distance,
			total_emissions = excluded.total_emissions,
			is_baseline = excluded.is_baseline
	`,
		r.ID, r.ShipID, r.VesselType, r.FuelType, r.Year,
		r.GHGIntensity.String(), r.FuelConsumption.String(), r.Distance.String(), r.TotalEmissions.String(),
		r.IsBaseline,
	)
	if err != nil {
		return fmt.Errorf("failed to save route: %w", err)
	}
	return nil
}

func (v *view) ListRoutes(ctx context.Context, filter core.RouteFilter) ([]core.Route, error) {
	var (
		where []string
		args  []any
	)
	if filter.VesselType != "" {
		where = append(where, "vessel_type = ?")
		args = append(args, filter.VesselType)
	}
	if filter.FuelType != "" {
		where = append(where, "fuel_type = ?")
		args = append(args, filter.FuelType)
	}
	if filter.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, filter.Year)
	}

	query := "SELECT " + routeColumns + " FROM routes"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	return v.queryRoutes(ctx, query, args...)
}

func (v *view) FindRoute(ctx context.Context, id core.RouteID) (*core.Route, error) {
	return v.queryOneRoute(ctx, "SELECT "+routeColumns+" FROM routes WHERE id = ?", id)
}

func (v *view) FindRouteByShip(ctx context.Context, shipID core.ShipID) (*core.Route, error) {
	return v.queryOneRoute(ctx, "SELECT "+routeColumns+` FROM routes
		WHERE ship_id = ?
		ORDER BY year DESC, id ASC
		LIMIT 1`, shipID)
}

func (v *view) FindBaseline(ctx context.Context) (*core.Route, error) {
	return v.queryOneRoute(ctx, "SELECT "+routeColumns+" FROM routes WHERE is_baseline = 1 LIMIT 1")
}

func (v *view) SetBaseline(ctx context.Context, id core.RouteID) error {
	if _, err := v.q.ExecContext(ctx, "UPDATE routes SET is_baseline = 0 WHERE is_baseline = 1"); err != nil {
		return fmt.Errorf("failed to clear baseline: %w", err)
	}

	res, err := v.q.ExecContext(ctx, "UPDATE routes SET is_baseline = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to set baseline: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &core.NotFoundError{Resource: "route", ID: string(id)}
	}
	return nil
}

func (v *view) queryOneRoute(ctx context.Context, query string, args ...any) (*core.Route, error) {
	routes, err := v.queryRoutes(ctx, query, args...)
	if err != nil || len(routes) == 0 {
		return nil, err
	}
	return &routes[0], nil
}

func (v *view) queryRoutes(ctx context.Context, query string, args ...any) ([]core.Route, error) {
	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	routes := []core.Route{}
	for rows.Next() {
		var r core.Route
		if err := rows.Scan(
			&r.ID, &r.ShipID, &r.VesselType, &r.FuelType, &r.Year,
			&r.GHGIntensity, &r.FuelConsumption, &r.Distance, &r.TotalEmissions,
			&r.IsBaseline,
		); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// =============================================================================
// POOL STORE
// =============================================================================

// CreatePool writes the header and members in one transaction.
func (s *Store) CreatePool(ctx context.Context, pool core.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(v *view) error { return v.CreatePool(ctx, pool) })
}

func (s *Store) FindPool(ctx context.Context, id core.PoolID) (*core.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().FindPool(ctx, id)
}

func (s *Store) ListPools(ctx context.Context) ([]core.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader().ListPools(ctx)
}

func (v *view) CreatePool(ctx context.Context, pool core.Pool) error {
	if pool.CreatedAt.IsZero() {
		pool.CreatedAt = v.now()
	}

	if _, err := v.q.ExecContext(ctx,
		"INSERT INTO pools (id, year, created_at) VALUES (?, ?, ?)",
		pool.ID, pool.Year, formatTime(pool.CreatedAt),
	); err != nil {
		return fmt.Errorf("failed to insert pool: %w", err)
	}

	for i, m := range pool.Members {
		if _, err := v.q.ExecContext(ctx, `
			INSERT INTO pool_members (pool_id, position, ship_id, cb_before, cb_after)
			VALUES (?, ?, ?, ?, ?)
		`, pool.ID, i, m.ShipID, m.CBBefore.String(), m.CBAfter.String()); err != nil {
			return fmt.Errorf("failed to insert pool member: %w", err)
		}
	}
	return nil
}

func (v *view) FindPool(ctx context.Context, id core.PoolID) (*core.Pool, error) {
	pools, err := v.queryPools(ctx, "SELECT id, year, created_at FROM pools WHERE id = ?", id)
	if err != nil || len(pools) == 0 {
		return nil, err
	}
	return &pools[0], nil
}

func (v *view) ListPools(ctx context.Context) ([]core.Pool, error) {
	return v.queryPools(ctx, "SELECT id, year, created_at FROM pools ORDER BY created_at DESC, rowid DESC")
}

func (v *view) queryPools(ctx context.Context, query string, args ...any) ([]core.Pool, error) {
	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pools: %w", err)
	}

	pools := []core.Pool{}
	for rows.Next() {
		var (
			p         core.Pool
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Year, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan pool: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		pools = append(pools, p)
	}
	// release the connection before loading members
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range pools {
		members, err := v.poolMembers(ctx, pools[i].ID)
		if err != nil {
			return nil, err
		}
		pools[i].Members = members
	}
	return pools, nil
}

func (v *view) poolMembers(ctx context.Context, id core.PoolID) ([]core.PoolMember, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT ship_id, cb_before, cb_after
		FROM pool_members
		WHERE pool_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query pool members: %w", err)
	}
	defer rows.Close()

	members := []core.PoolMember{}
	for rows.Next() {
		var m core.PoolMember
		if err := rows.Scan(&m.ShipID, &m.CBBefore, &m.CBAfter); err != nil {
			return nil, fmt.Errorf("failed to scan pool member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}
