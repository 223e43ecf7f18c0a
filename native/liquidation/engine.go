package liquidation

import (
	"math/big"

	"cdpcore/core/events"
	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
	"cdpcore/native/troves"
)

var (
	errNilCollaborator       = nativecommon.NewError(nativecommon.ErrValidation, "liquidation engine: collaborator not configured")
	ErrTroveManagerNotListed = nativecommon.NewError(nativecommon.ErrValidation, "liquidation engine: trove manager not enabled")
	ErrTroveNotActive        = nativecommon.NewError(nativecommon.ErrValidation, "liquidation engine: trove does not exist or is closed")
	ErrEmptyBatch            = nativecommon.NewError(nativecommon.ErrValidation, "liquidation engine: calldata address array must not be empty")
	ErrNothingToLiquidate    = nativecommon.NewError(nativecommon.ErrInvariant, "liquidation engine: nothing to liquidate")
)

// TroveManager is the slice of a collateral ledger the engine drives.
type TroveManager interface {
	Collateral() crypto.Address
	Sorted() troves.SortedTroves
	UpdateBalances() error
	FetchPrice() (*big.Int, error)
	Params() (troves.Parameters, error)
	Sunsetting() (bool, error)
	GetTroveOwnersCount() (uint64, error)
	GetTroveStatus(owner crypto.Address) (troves.Status, error)
	GetCurrentICR(owner crypto.Address, price *big.Int) (*big.Int, error)
	GetEntireDebtAndColl(owner crypto.Address) (*troves.EntireDebtAndColl, error)
	MovePendingTroveRewardsToActiveBalances(debt, coll *big.Int) error
	CloseTroveByLiquidation(owner crypto.Address) error
	AddCollateralSurplus(owner crypto.Address, amount *big.Int) error
	DecreaseDebtAndSendCollateral(account crypto.Address, debt, coll *big.Int) error
	FinalizeLiquidation(liquidator crypto.Address, debt, coll, collSurplus, debtGasComp, collGasComp *big.Int) error
}

type stabilityPool interface {
	Account() crypto.Address
	GetTotalDebtTokenDeposits() (*big.Int, error)
	Offset(collateral crypto.Address, debtToOffset, collGained *big.Int) error
}

// SystemView reports the priced collateral (sum of coll*price) and debt
// across every enabled ledger.
type SystemView interface {
	GetGlobalSystemBalances() (*big.Int, *big.Int, error)
}

// Engine liquidates positions of any enabled ledger against the stability
// pool, redistributing whatever the pool cannot absorb.
type Engine struct {
	pool    stabilityPool
	system  SystemView
	emitter events.Emitter
	enabled map[string]bool
}

func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, enabled: make(map[string]bool)}
}

func (e *Engine) SetStabilityPool(pool stabilityPool) {
	if e == nil {
		return
	}
	e.pool = pool
}

func (e *Engine) SetSystemView(view SystemView) {
	if e == nil {
		return
	}
	e.system = view
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// EnableTroveManager allows positions of tm's collateral to be liquidated.
func (e *Engine) EnableTroveManager(tm TroveManager) {
	if e == nil || tm == nil {
		return
	}
	e.enabled[tm.Collateral().Key()] = true
}

// IsEnabled reports whether collateral's ledger was enabled.
func (e *Engine) IsEnabled(collateral crypto.Address) bool {
	return e != nil && e.enabled[collateral.Key()]
}

func (e *Engine) ready(tm TroveManager) error {
	if e == nil || e.pool == nil || e.system == nil || tm == nil {
		return errNilCollaborator
	}
	if !e.enabled[tm.Collateral().Key()] {
		return ErrTroveManagerNotListed
	}
	return nil
}

// ledgerValues is the per-call snapshot of ledger parameters.
type ledgerValues struct {
	price      *big.Int
	mcr        *big.Int
	gasComp    *big.Int
	sunsetting bool
	collateral crypto.Address
	sorted     troves.SortedTroves
}

func (e *Engine) loadValues(tm TroveManager) (*ledgerValues, error) {
	if err := tm.UpdateBalances(); err != nil {
		return nil, err
	}
	price, err := tm.FetchPrice()
	if err != nil {
		return nil, err
	}
	params, err := tm.Params()
	if err != nil {
		return nil, err
	}
	sunsetting, err := tm.Sunsetting()
	if err != nil {
		return nil, err
	}
	return &ledgerValues{
		price:      price,
		mcr:        params.MCR,
		gasComp:    params.DebtGasCompensation,
		sunsetting: sunsetting,
		collateral: tm.Collateral(),
		sorted:     tm.Sorted(),
	}, nil
}

// Liquidate closes a single position.
func (e *Engine) Liquidate(tm TroveManager, liquidator, borrower crypto.Address) (*Totals, error) {
	if err := e.ready(tm); err != nil {
		return nil, err
	}
	status, err := tm.GetTroveStatus(borrower)
	if err != nil {
		return nil, err
	}
	if status != troves.StatusActive {
		return nil, ErrTroveNotActive
	}
	return e.BatchLiquidateTroves(tm, liquidator, []crypto.Address{borrower})
}

// LiquidateTroves walks the sorted list from the riskiest position, closing
// up to maxTroves positions whose ICR is at most maxICR. A zero maxTroves
// means no limit. A first pass handles positions below MCR; a second pass
// then liquidates, with the collateral cap, positions the pool can fully
// absorb while the system stays below CCR.
func (e *Engine) LiquidateTroves(tm TroveManager, liquidator crypto.Address, maxTroves uint64, maxICR *big.Int) (*Totals, error) {
	if err := e.ready(tm); err != nil {
		return nil, err
	}
	v, err := e.loadValues(tm)
	if err != nil {
		return nil, err
	}
	troveCount, err := tm.GetTroveOwnersCount()
	if err != nil {
		return nil, err
	}
	debtInPool, err := e.pool.GetTotalDebtTokenDeposits()
	if err != nil {
		return nil, err
	}
	if maxICR == nil {
		maxICR = nativecommon.MaxUint256
	}
	remaining := maxTroves
	if remaining == 0 {
		remaining = ^uint64(0)
	}
	totals := NewTotals()

	for remaining > 0 && troveCount > 1 {
		account, err := v.sorted.Last()
		if err != nil {
			return nil, err
		}
		icr, err := tm.GetCurrentICR(account, v.price)
		if err != nil {
			return nil, err
		}
		if icr.Cmp(maxICR) > 0 {
			remaining = 0
			break
		}
		var single *SingleLiquidation
		switch {
		case icr.Cmp(nativecommon.DecimalPrecision) <= 0:
			single, err = e.liquidateWithoutSP(tm, v, account)
		case icr.Cmp(v.mcr) < 0:
			single, err = e.liquidateNormalMode(tm, v, account, debtInPool)
		}
		if err != nil {
			return nil, err
		}
		if single == nil {
			break
		}
		debtInPool.Sub(debtInPool, single.DebtToOffset)
		totals.Add(single)
		remaining--
		troveCount--
	}

	if remaining > 0 && !v.sunsetting && troveCount > 1 {
		systemColl, systemDebt, err := e.systemAfter(totals, v.price)
		if err != nil {
			return nil, err
		}
		next, err := v.sorted.Last()
		if err != nil {
			return nil, err
		}
		for remaining > 0 && troveCount > 1 && !next.IsZero() {
			account := next
			if next, err = v.sorted.Prev(account); err != nil {
				return nil, err
			}
			icr, err := tm.GetCurrentICR(account, v.price)
			if err != nil {
				return nil, err
			}
			if icr.Cmp(maxICR) > 0 {
				break
			}
			tcr := nativecommon.ComputeCR(systemColl, systemDebt, big.NewInt(1))
			if tcr.Cmp(troves.CCR) >= 0 || icr.Cmp(tcr) >= 0 {
				break
			}
			single, err := e.tryLiquidateWithCap(tm, v, account, debtInPool)
			if err != nil {
				return nil, err
			}
			if single.DebtToOffset.Sign() == 0 {
				continue
			}
			debtInPool.Sub(debtInPool, single.DebtToOffset)
			reduceSystem(systemColl, systemDebt, single, v.price)
			totals.Add(single)
			remaining--
			troveCount--
		}
	}
	return e.apply(tm, v, liquidator, totals)
}

// BatchLiquidateTroves liquidates the listed positions in order. Closed or
// unknown positions are skipped. Once a position at or above MCR is met the
// remainder is evaluated against the running system TCR.
func (e *Engine) BatchLiquidateTroves(tm TroveManager, liquidator crypto.Address, borrowers []crypto.Address) (*Totals, error) {
	if err := e.ready(tm); err != nil {
		return nil, err
	}
	if len(borrowers) == 0 {
		return nil, ErrEmptyBatch
	}
	v, err := e.loadValues(tm)
	if err != nil {
		return nil, err
	}
	troveCount, err := tm.GetTroveOwnersCount()
	if err != nil {
		return nil, err
	}
	debtInPool, err := e.pool.GetTotalDebtTokenDeposits()
	if err != nil {
		return nil, err
	}
	totals := NewTotals()
	iter := 0

	for iter < len(borrowers) && troveCount > 1 {
		account := borrowers[iter]
		icr, err := tm.GetCurrentICR(account, v.price)
		if err != nil {
			return nil, err
		}
		var single *SingleLiquidation
		switch {
		case icr.Cmp(nativecommon.DecimalPrecision) <= 0:
			single, err = e.liquidateWithoutSP(tm, v, account)
		case icr.Cmp(v.mcr) < 0:
			single, err = e.liquidateNormalMode(tm, v, account, debtInPool)
		}
		if err != nil {
			return nil, err
		}
		if single == nil {
			break
		}
		debtInPool.Sub(debtInPool, single.DebtToOffset)
		totals.Add(single)
		iter++
		troveCount--
	}

	if iter < len(borrowers) && troveCount > 1 {
		systemColl, systemDebt, err := e.systemAfter(totals, v.price)
		if err != nil {
			return nil, err
		}
		for iter < len(borrowers) && troveCount > 1 {
			account := borrowers[iter]
			iter++
			icr, err := tm.GetCurrentICR(account, v.price)
			if err != nil {
				return nil, err
			}
			var single *SingleLiquidation
			switch {
			case icr.Cmp(nativecommon.DecimalPrecision) <= 0:
				single, err = e.liquidateWithoutSP(tm, v, account)
			case icr.Cmp(v.mcr) < 0:
				single, err = e.liquidateNormalMode(tm, v, account, debtInPool)
			default:
				if v.sunsetting {
					continue
				}
				tcr := nativecommon.ComputeCR(systemColl, systemDebt, big.NewInt(1))
				if tcr.Cmp(troves.CCR) >= 0 || icr.Cmp(tcr) >= 0 {
					continue
				}
				single, err = e.tryLiquidateWithCap(tm, v, account, debtInPool)
				if err == nil && single.DebtToOffset.Sign() == 0 {
					continue
				}
			}
			if err != nil {
				return nil, err
			}
			debtInPool.Sub(debtInPool, single.DebtToOffset)
			reduceSystem(systemColl, systemDebt, single, v.price)
			totals.Add(single)
			troveCount--
		}
	}
	return e.apply(tm, v, liquidator, totals)
}

// systemAfter returns the global priced collateral and debt with the pool's
// share of the first pass already removed.
func (e *Engine) systemAfter(totals *Totals, price *big.Int) (*big.Int, *big.Int, error) {
	coll, debt, err := e.system.GetGlobalSystemBalances()
	if err != nil {
		return nil, nil, err
	}
	coll = new(big.Int).Sub(coll, new(big.Int).Mul(totals.CollToSendToSP, price))
	debt = new(big.Int).Sub(debt, totals.DebtToOffset)
	return coll, debt, nil
}

func reduceSystem(coll, debt *big.Int, single *SingleLiquidation, price *big.Int) {
	removed := new(big.Int).Add(single.CollToSendToSP, single.CollSurplus)
	coll.Sub(coll, removed.Mul(removed, price))
	debt.Sub(debt, single.DebtToOffset)
}

// apply flushes the accumulated totals: one offset against the pool, one
// finalisation on the ledger and one aggregated event.
func (e *Engine) apply(tm TroveManager, v *ledgerValues, liquidator crypto.Address, totals *Totals) (*Totals, error) {
	if totals.DebtInSequence.Sign() == 0 {
		return nil, ErrNothingToLiquidate
	}
	if totals.DebtToOffset.Sign() > 0 || totals.CollToSendToSP.Sign() > 0 {
		if err := e.pool.Offset(v.collateral, totals.DebtToOffset, totals.CollToSendToSP); err != nil {
			return nil, err
		}
		if err := tm.DecreaseDebtAndSendCollateral(e.pool.Account(), totals.DebtToOffset, totals.CollToSendToSP); err != nil {
			return nil, err
		}
	}
	if err := tm.FinalizeLiquidation(liquidator, totals.DebtToRedistribute, totals.CollToRedistribute, totals.CollSurplus, totals.DebtGasCompensation, totals.CollGasCompensation); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Liquidation{
		Collateral:        v.collateral,
		Liquidator:        liquidator,
		Liquidated:        totals.Liquidated,
		DebtInSequence:    new(big.Int).Set(totals.DebtInSequence),
		CollInSequence:    new(big.Int).Set(totals.CollInSequence),
		DebtOffset:        new(big.Int).Set(totals.DebtToOffset),
		CollToSP:          new(big.Int).Set(totals.CollToSendToSP),
		DebtRedistributed: new(big.Int).Set(totals.DebtToRedistribute),
		CollRedistributed: new(big.Int).Set(totals.CollToRedistribute),
		CollSurplus:       new(big.Int).Set(totals.CollSurplus),
		DebtGasComp:       new(big.Int).Set(totals.DebtGasCompensation),
		CollGasComp:       new(big.Int).Set(totals.CollGasCompensation),
	})
	return totals, nil
}
