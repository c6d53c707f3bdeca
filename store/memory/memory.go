// Package memory provides an in-memory core.TxStore (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/compliance-engine/core"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	data state
	now  func() time.Time
}

type key struct {
	ShipID core.ShipID
	Year   int
}

type state struct {
	compliance map[key]core.ComplianceRecord
	entries    map[key][]core.BankEntry
	routes     map[core.RouteID]core.Route
	pools      []core.Pool
}

func newState() state {
	return state{
		compliance: make(map[key]core.ComplianceRecord),
		entries:    make(map[key][]core.BankEntry),
		routes:     make(map[core.RouteID]core.Route),
	}
}

func New() *Memory {
	return &Memory{data: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = newState()
	return nil
}

// WithTx executes fn within a transaction.
// Simulated with a snapshot + rollback on error; the write lock is held
// for the whole unit so read-check-append sequences are serialized.
func (m *Memory) WithTx(_ context.Context, fn func(core.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&view{m: m}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.compliance {
		c.compliance[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = append([]core.BankEntry{}, v...)
	}
	for k, v := range s.routes {
		c.routes[k] = v
	}
	for _, p := range s.pools {
		p.Members = append([]core.PoolMember{}, p.Members...)
		c.pools = append(c.pools, p)
	}
	return c
}

// Every public method takes the lock and delegates to an unlocked view.

func (m *Memory) read(fn func(v *view)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(&view{m: m})
}

func (m *Memory) write(fn func(v *view)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&view{m: m})
}

func (m *Memory) FindCompliance(ctx context.Context, shipID core.ShipID, year int) (rec *core.ComplianceRecord, err error) {
	m.read(func(v *view) { rec, err = v.FindCompliance(ctx, shipID, year) })
	return
}

func (m *Memory) UpsertCompliance(ctx context.Context, shipID core.ShipID, year int, cb decimal.Decimal) (rec core.ComplianceRecord, err error) {
	m.write(func(v *view) { rec, err = v.UpsertCompliance(ctx, shipID, year, cb) })
	return
}

func (m *Memory) CreateBankEntry(ctx context.Context, entry core.BankEntry) (out core.BankEntry, err error) {
	m.write(func(v *view) { out, err = v.CreateBankEntry(ctx, entry) })
	return
}

func (m *Memory) SumByKind(ctx context.Context, shipID core.ShipID, year int, kind core.EntryKind) (sum decimal.Decimal, err error) {
	m.read(func(v *view) { sum, err = v.SumByKind(ctx, shipID, year, kind) })
	return
}

func (m *Memory) ListBankEntries(ctx context.Context, shipID core.ShipID, year int) (entries []core.BankEntry, err error) {
	m.read(func(v *view) { entries, err = v.ListBankEntries(ctx, shipID, year) })
	return
}

func (m *Memory) SaveRoute(ctx context.Context, route core.Route) (err error) {
	m.write(func(v *view) { err = v.SaveRoute(ctx, route) })
	return
}

func (m *Memory) ListRoutes(ctx context.Context, filter core.RouteFilter) (routes []core.Route, err error) {
	m.read(func(v *view) { routes, err = v.ListRoutes(ctx, filter) })
	return
}

func (m *Memory) FindRoute(ctx context.Context, id core.RouteID) (route *core.Route, err error) {
	m.read(func(v *view) { route, err = v.FindRoute(ctx, id) })
	return
}

func (m *Memory) FindRouteByShip(ctx context.Context, shipID core.ShipID) (route *core.Route, err error) {
	m.read(func(v *view) { route, err = v.FindRouteByShip(ctx, shipID) })
	return
}

func (m *Memory) FindBaseline(ctx context.Context) (route *core.Route, err error) {
	m.read(func(v *view) { route, err = v.FindBaseline(ctx) })
	return
}

func (m *Memory) SetBaseline(ctx context.Context, id core.RouteID) (err error) {
	m.write(func(v *view) { err = v.SetBaseline(ctx, id) })
	return
}

func (m *Memory) CreatePool(ctx context.Context, pool core.Pool) (err error) {
	m.write(func(v *view) { err = v.CreatePool(ctx, pool) })
	return
}

func (m *Memory) FindPool(ctx context.Context, id core.PoolID) (pool *core.Pool, err error) {
	m.read(func(v *view) { pool, err = v.FindPool(ctx, id) })
	return
}

func (m *Memory) ListPools(ctx context.Context) (pools []core.Pool, err error) {
	m.read(func(v *view) { pools, err = v.ListPools(ctx) })
	return
}

// =============================================================================
// UNLOCKED VIEW - Shared by public methods and WithTx
// =============================================================================

type view struct {
	m *Memory
}

func (v *view) FindCompliance(_ context.Context, shipID core.ShipID, year int) (*core.ComplianceRecord, error) {
	rec, ok := v.m.data.compliance[key{shipID, year}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (v *view) UpsertCompliance(_ context.Context, shipID core.ShipID, year int, cb decimal.Decimal) (core.ComplianceRecord, error) {
	now := v.m.now()
	k := key{shipID, year}
	rec, ok := v.m.data.compliance[k]
	if !ok {
		rec = core.ComplianceRecord{ShipID: shipID, Year: year, CreatedAt: now}
	}
	rec.CB = cb
	rec.UpdatedAt = now
	v.m.data.compliance[k] = rec
	return rec, nil
}

func (v *view) CreateBankEntry(_ context.Context, entry core.BankEntry) (core.BankEntry, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = v.m.now()
	}
	k := key{entry.ShipID, entry.Year}
	v.m.data.entries[k] = append(v.m.data.entries[k], entry)
	return entry, nil
}

func (v *view) SumByKind(_ context.Context, shipID core.ShipID, year int, kind core.EntryKind) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range v.m.data.entries[key{shipID, year}] {
		if e.Kind == kind {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (v *view) ListBankEntries(_ context.Context, shipID core.ShipID, year int) ([]core.BankEntry, error) {
	entries := v.m.data.entries[key{shipID, year}]
	result := make([]core.BankEntry, len(entries))
	copy(result, entries)
	return result, nil
}

func (v *view) SaveRoute(_ context.Context, route core.Route) error {
	v.m.data.routes[route.ID] = route
	return nil
}

func (v *view) ListRoutes(_ context.Context, filter core.RouteFilter) ([]core.Route, error) {
	routes := []core.Route{}
	for _, r := range v.m.data.routes {
		if filter.Matches(r) {
			routes = append(routes, r)
		}
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].ID < routes[j].ID })
	return routes, nil
}

func (v *view) FindRoute(_ context.Context, id core.RouteID) (*core.Route, error) {
	r, ok := v.m.data.routes[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (v *view) FindRouteByShip(_ context.Context, shipID core.ShipID) (*core.Route, error) {
	var found *core.Route
	for _, r := range v.m.data.routes {
		if r.ShipID != shipID {
			continue
		}
		if found == nil || r.Year > found.Year || (r.Year == found.Year && r.ID < found.ID) {
			r := r
			found = &r
		}
	}
	return found, nil
}

func (v *view) FindBaseline(_ context.Context) (*core.Route, error) {
	for _, r := range v.m.data.routes {
		if r.IsBaseline {
			return &r, nil
		}
	}
	return nil, nil
}

func (v *view) SetBaseline(_ context.Context, id core.RouteID) error {
	if _, ok := v.m.data.routes[id]; !ok {
		return &core.NotFoundError{Resource: "route", ID: string(id)}
	}
	for rid, r := range v.m.data.routes {
		r.IsBaseline = rid == id
		v.m.data.routes[rid] = r
	}
	return nil
}

func (v *view) CreatePool(_ context.Context, pool core.Pool) error {
	if pool.CreatedAt.IsZero() {
		pool.CreatedAt = v.m.now()
	}
	pool.Members = append([]core.PoolMember{}, pool.Members...)
	v.m.data.pools = append(v.m.data.pools, pool)
	return nil
}

func (v *view) FindPool(_ context.Context, id core.PoolID) (*core.Pool, error) {
	for _, p := range v.m.data.pools {
		if p.ID == id {
			p.Members = append([]core.PoolMember{}, p.Members...)
			return &p, nil
		}
	}
	return nil, nil
}

func (v *view) ListPools(_ context.Context) ([]core.Pool, error) {
	pools := make([]core.Pool, 0, len(v.m.data.pools))
	for i := len(v.m.data.pools) - 1; i >= 0; i-- {
		p := v.m.data.pools[i]
		p.Members = append([]core.PoolMember{}, p.Members...)
		pools = append(pools, p)
	}
	return pools, nil
}
