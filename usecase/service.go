/*
Package usecase orchestrates the calculator, ledger and allocator against
storage.

PURPOSE:
  Each method is one request/response unit: load what it needs, apply the
  pure rules, persist, return plain data or a typed error from core. There
  is no background work and no retry; storage failures propagate wrapped.

OPERATIONS:
  Compliance: ComputeCB, AdjustedCB
  Banking:    BankSurplus, ApplyBanked, BankingRecords
  Pooling:    CreatePool, GetPool, ListPools
  Routes:     ListRoutes, SetBaseline, Comparison

POLICY KNOBS:
  MinPoolMembers is enforced here, not in pooling.Validate, so the
  validator stays a pure statement of the regulatory rule.

SEE ALSO:
  - api/handlers.go: HTTP binding for every operation
  - banking/ledger.go, pooling/allocator.go, calculator/calculator.go
*/
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/compliance-engine/banking"
	"github.com/warp/compliance-engine/calculator"
	"github.com/warp/compliance-engine/core"
	"github.com/warp/compliance-engine/metrics"
	"github.com/warp/compliance-engine/pooling"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

type ComplianceResult struct {
	ShipID          core.ShipID
	Year            int
	CB              decimal.Decimal
	EnergyInScope   decimal.Decimal
	TargetIntensity decimal.Decimal
	ActualIntensity decimal.Decimal
}

type AdjustedResult struct {
	ComplianceResult
	Banked     decimal.Decimal
	Applied    decimal.Decimal
	AdjustedCB decimal.Decimal
}

type PoolRequest struct {
	Year    int
	Members []pooling.Member
}

type PoolResult struct {
	PoolID  core.PoolID
	Year    int
	Members []core.PoolMember
	TotalCB decimal.Decimal
}

type RouteComparison struct {
	Baseline    core.Route
	Comparison  core.Route
	PercentDiff decimal.Decimal
	Compliant   bool
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store  core.TxStore
	Ledger *banking.Ledger
	Log    logrus.FieldLogger

	// MinPoolMembers is the smallest pool CreatePool accepts.
	MinPoolMembers int

	now       func() time.Time
	newPoolID func() core.PoolID
}

func NewService(store core.TxStore, log logrus.FieldLogger) *Service {
	return &Service{
		Store:          store,
		Ledger:         banking.NewLedger(store),
		Log:            log,
		MinPoolMembers: 1,
		now:            func() time.Time { return time.Now().UTC() },
		newPoolID:      func() core.PoolID { return core.PoolID(uuid.NewString()) },
	}
}

// =============================================================================
// COMPLIANCE
// =============================================================================

// ComputeCB recomputes the ship's CB for year from its route and upserts
// the compliance record.
func (s *Service) ComputeCB(ctx context.Context, shipID core.ShipID, year int) (ComplianceResult, error) {
	log := s.Log.WithFields(logrus.Fields{"ship_id": shipID, "year": year})

	result, err := s.assess(ctx, shipID, year)
	if err == nil {
		if _, uerr := s.Store.UpsertCompliance(ctx, shipID, year, result.CB); uerr != nil {
			err = fmt.Errorf("failed to store compliance record: %w", uerr)
		}
	}
	metrics.RecordComputation(err)
	if err != nil {
		logFailure(log, "compute cb", err)
		return ComplianceResult{}, err
	}

	log.WithField("cb", result.CB.String()).Debug("computed compliance balance")
	return result, nil
}

// AdjustedCB recomputes the raw CB (without storing it) and layers the
// banking ledger on top: cb - banked + applied.
func (s *Service) AdjustedCB(ctx context.Context, shipID core.ShipID, year int) (AdjustedResult, error) {
	raw, err := s.assess(ctx, shipID, year)
	if err != nil {
		return AdjustedResult{}, err
	}

	totals, err := s.Ledger.Totals(ctx, shipID, year)
	if err != nil {
		return AdjustedResult{}, err
	}

	return AdjustedResult{
		ComplianceResult: raw,
		Banked:           totals.Banked,
		Applied:          totals.Applied,
		AdjustedCB:       totals.Adjust(raw.CB),
	}, nil
}

func (s *Service) assess(ctx context.Context, shipID core.ShipID, year int) (ComplianceResult, error) {
	route, err := s.Store.FindRouteByShip(ctx, shipID)
	if err != nil {
		return ComplianceResult{}, fmt.Errorf("failed to load route: %w", err)
	}
	if route == nil {
		return ComplianceResult{}, &core.NotFoundError{Resource: "route for ship", ID: string(shipID)}
	}

	a := calculator.Assess(route.GHGIntensity, route.FuelConsumption, year)
	return ComplianceResult{
		ShipID:          shipID,
		Year:            year,
		CB:              a.CB,
		EnergyInScope:   a.EnergyInScope,
		TargetIntensity: a.TargetIntensity,
		ActualIntensity: a.ActualIntensity,
	}, nil
}

// =============================================================================
// BANKING
// =============================================================================

func (s *Service) BankSurplus(ctx context.Context, shipID core.ShipID, year int, amount decimal.Decimal) (core.BankEntry, error) {
	log := s.Log.WithFields(logrus.Fields{"ship_id": shipID, "year": year, "amount": amount.String()})

	entry, err := s.Ledger.BankSurplus(ctx, shipID, year, amount)
	metrics.RecordBanking(core.KindBank, err)
	if err != nil {
		logFailure(log, "bank surplus", err)
		return core.BankEntry{}, err
	}

	log.WithField("entry_id", entry.ID).Info("banked surplus")
	return entry, nil
}

func (s *Service) ApplyBanked(ctx context.Context, shipID core.ShipID, year int, amount decimal.Decimal) (banking.ApplyResult, error) {
	log := s.Log.WithFields(logrus.Fields{"ship_id": shipID, "year": year, "amount": amount.String()})

	result, err := s.Ledger.ApplyBanked(ctx, shipID, year, amount)
	metrics.RecordBanking(core.KindApply, err)
	if err != nil {
		logFailure(log, "apply banked", err)
		return banking.ApplyResult{}, err
	}

	log.WithField("cb_after", result.CBAfter.String()).Info("applied banked surplus")
	return result, nil
}

func (s *Service) BankingRecords(ctx context.Context, shipID core.ShipID, year int) (banking.Record, error) {
	return s.Ledger.Record(ctx, shipID, year)
}

// =============================================================================
// POOLING
// =============================================================================

// CreatePool validates, allocates and persists a pool.
func (s *Service) CreatePool(ctx context.Context, req PoolRequest) (PoolResult, error) {
	log := s.Log.WithFields(logrus.Fields{"year": req.Year, "members": len(req.Members)})

	result, err := s.createPool(ctx, req)
	metrics.RecordPool(err)
	if err != nil {
		logFailure(log, "create pool", err)
		return PoolResult{}, err
	}

	log.WithFields(logrus.Fields{"pool_id": result.PoolID, "total_cb": result.TotalCB.String()}).Info("created pool")
	return result, nil
}

func (s *Service) createPool(ctx context.Context, req PoolRequest) (PoolResult, error) {
	v := pooling.Validate(req.Members)
	v.Errors = append(v.Errors, s.poolPolicyErrors(req.Members)...)
	v.Valid = len(v.Errors) == 0
	if err := v.Err(); err != nil {
		return PoolResult{}, err
	}

	allocated := pooling.Allocate(req.Members)
	if err := pooling.CheckConservation(allocated); err != nil {
		return PoolResult{}, err
	}

	pool := core.Pool{
		ID:        s.newPoolID(),
		Year:      req.Year,
		Members:   allocated,
		CreatedAt: s.now(),
	}
	if err := s.Store.CreatePool(ctx, pool); err != nil {
		return PoolResult{}, fmt.Errorf("failed to store pool: %w", err)
	}

	return PoolResult{
		PoolID:  pool.ID,
		Year:    pool.Year,
		Members: allocated,
		TotalCB: v.TotalCB,
	}, nil
}

// poolPolicyErrors are the orchestration rules layered on pooling.Validate.
func (s *Service) poolPolicyErrors(members []pooling.Member) []string {
	var errs []string
	if len(members) > 0 && len(members) < s.MinPoolMembers {
		errs = append(errs, fmt.Sprintf("pool needs at least %d members, got %d", s.MinPoolMembers, len(members)))
	}

	seen := make(map[core.ShipID]bool, len(members))
	for _, m := range members {
		if m.ShipID == "" {
			errs = append(errs, "every member needs a ship id")
			continue
		}
		if seen[m.ShipID] {
			errs = append(errs, fmt.Sprintf("ship %s appears more than once", m.ShipID))
		}
		seen[m.ShipID] = true
	}
	return errs
}

func (s *Service) GetPool(ctx context.Context, id core.PoolID) (core.Pool, error) {
	pool, err := s.Store.FindPool(ctx, id)
	if err != nil {
		return core.Pool{}, fmt.Errorf("failed to load pool: %w", err)
	}
	if pool == nil {
		return core.Pool{}, &core.NotFoundError{Resource: "pool", ID: string(id)}
	}
	return *pool, nil
}

func (s *Service) ListPools(ctx context.Context) ([]core.Pool, error) {
	pools, err := s.Store.ListPools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	return pools, nil
}

// =============================================================================
// ROUTES
// =============================================================================

func (s *Service) ListRoutes(ctx context.Context, filter core.RouteFilter) ([]core.Route, error) {
	routes, err := s.Store.ListRoutes(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	return routes, nil
}

// SetBaseline makes id the only baseline route.
func (s *Service) SetBaseline(ctx context.Context, id core.RouteID) (core.Route, error) {
	route, err := s.Store.FindRoute(ctx, id)
	if err != nil {
		return core.Route{}, fmt.Errorf("failed to load route: %w", err)
	}
	if route == nil {
		return core.Route{}, &core.NotFoundError{Resource: "route", ID: string(id)}
	}

	if err := s.Store.SetBaseline(ctx, id); err != nil {
		return core.Route{}, fmt.Errorf("failed to set baseline: %w", err)
	}

	route.IsBaseline = true
	s.Log.WithField("route_id", id).Info("baseline route set")
	return *route, nil
}

// Comparison compares every non-baseline route's intensity to the baseline.
func (s *Service) Comparison(ctx context.Context) ([]RouteComparison, error) {
	baseline, err := s.Store.FindBaseline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline: %w", err)
	}
	if baseline == nil {
		return nil, core.ErrNoBaselineSet
	}

	routes, err := s.ListRoutes(ctx, core.RouteFilter{})
	if err != nil {
		return nil, err
	}

	comparisons := []RouteComparison{}
	for _, r := range routes {
		if r.ID == baseline.ID {
			continue
		}
		comparisons = append(comparisons, RouteComparison{
			Baseline:    *baseline,
			Comparison:  r,
			PercentDiff: calculator.PercentDifference(r.GHGIntensity, baseline.GHGIntensity),
			Compliant:   calculator.IsCompliant(r.GHGIntensity, r.Year),
		})
	}
	return comparisons, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// logFailure logs business-rule rejections at Info and anything else at Error.
func logFailure(log logrus.FieldLogger, op string, err error) {
	if core.IsClientError(err) || core.IsNotFound(err) {
		log.WithError(err).Infof("%s rejected", op)
		return
	}
	log.WithError(err).Errorf("%s failed", op)
}
