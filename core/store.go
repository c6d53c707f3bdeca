/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  Defines the boundary between the rules and the database. The engine
  never reaches past these interfaces; SQLite and in-memory stores
  implement them.

KEY INTERFACES:
  ComplianceStore: Raw CB per ship/year (upsert)
  BankingStore:    Append-only bank/apply ledger
  RouteStore:      Voyage telemetry and baseline flag
  PoolStore:       Pool headers and membership rows
  TxStore:         All of the above plus atomic units of work

APPEND-ONLY CONTRACT:
  BankingStore has a create and read methods only. There is no update
  or delete. Available balance is always a fold over entries.

ATOMICITY:
  The ledger performs read-check-append for a (ship, year). TxStore.WithTx
  must serialize those units so two concurrent applies cannot both read
  the same available balance and over-draw it.

LOOKUPS:
  Find* methods return (nil, nil) when nothing matches. Callers decide
  whether absence is an error.

SEE ALSO:
  - store/sqlite/sqlite.go: Production implementation
  - store/memory/memory.go: In-memory implementation for tests
*/
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

type ComplianceStore interface {
	// FindCompliance returns the record for (shipID, year), or nil.
	FindCompliance(ctx context.Context, shipID ShipID, year int) (*ComplianceRecord, error)

	// UpsertCompliance creates or overwrites the record for (shipID, year).
	UpsertCompliance(ctx context.Context, shipID ShipID, year int, cb decimal.Decimal) (ComplianceRecord, error)
}

type BankingStore interface {
	// CreateBankEntry appends an entry. This is the ONLY ledger write.
	CreateBankEntry(ctx context.Context, entry BankEntry) (BankEntry, error)

	// SumByKind totals every entry of kind for (shipID, year). Zero when none.
	SumByKind(ctx context.Context, shipID ShipID, year int, kind EntryKind) (decimal.Decimal, error)

	// ListBankEntries returns entries for (shipID, year) in creation order.
	ListBankEntries(ctx context.Context, shipID ShipID, year int) ([]BankEntry, error)
}

type RouteStore interface {
	SaveRoute(ctx context.Context, route Route) error
	ListRoutes(ctx context.Context, filter RouteFilter) ([]Route, error)
	FindRoute(ctx context.Context, id RouteID) (*Route, error)

	// FindRouteByShip returns the ship's most recent route by year, or nil.
	FindRouteByShip(ctx context.Context, shipID ShipID) (*Route, error)

	FindBaseline(ctx context.Context) (*Route, error)

	// SetBaseline clears any existing baseline flag and sets it on id.
	SetBaseline(ctx context.Context, id RouteID) error
}

type PoolStore interface {
	// CreatePool persists the header and one membership row per member.
	CreatePool(ctx context.Context, pool Pool) error
	FindPool(ctx context.Context, id PoolID) (*Pool, error)

	// ListPools returns pools newest first, members included.
	ListPools(ctx context.Context) ([]Pool, error)
}

// Store is the full persistence surface.
type Store interface {
	ComplianceStore
	BankingStore
	RouteStore
	PoolStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
