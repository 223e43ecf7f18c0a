package troves

import (
	"math"
	"math/big"

	"cdpcore/core/events"
	"cdpcore/crypto"
	"cdpcore/native/bank"
	nativecommon "cdpcore/native/common"
)

// RedemptionHints lets callers skip the walk to the first redeemable position
// and the reinsert search for a partially redeemed one. Every hint is optional.
type RedemptionHints struct {
	First crypto.Address
	Upper crypto.Address
	Lower crypto.Address
}

// RedemptionResult summarises a completed redemption.
type RedemptionResult struct {
	DebtRedeemed     *big.Int
	CollateralDrawn  *big.Int
	CollateralFee    *big.Int
	CollateralToUser *big.Int
	TrovesTouched    uint64
	BaseRate         *big.Int
}

type singleRedemption struct {
	debtLot   *big.Int
	collLot   *big.Int
	cancelled bool
}

// RedeemCollateral swaps debtAmount of the redeemer's debt tokens for
// collateral at face value, drawing from the least collateralised positions
// at or above MCR first. maxIterations of zero means no limit.
func (m *Manager) RedeemCollateral(redeemer crypto.Address, debtAmount *big.Int, hints RedemptionHints, maxIterations uint64, maxFeePercentage *big.Int) (*RedemptionResult, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if debtAmount == nil || debtAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	if maxFeePercentage == nil || maxFeePercentage.Cmp(l.Params.RedemptionFeeFloor) < 0 || maxFeePercentage.Cmp(l.Params.MaxRedemptionFee) > 0 {
		return nil, ErrInvalidMaxFee
	}
	start, err := m.core.StartTime()
	if err != nil {
		return nil, err
	}
	if m.now < start+BootstrapPeriod {
		return nil, ErrBootstrapPeriod
	}
	price, err := m.FetchPrice()
	if err != nil {
		return nil, err
	}
	tcr, err := m.systemTCR(l, price)
	if err != nil {
		return nil, err
	}
	if tcr.Cmp(l.Params.MCR) < 0 {
		return nil, ErrTCRBelowMCR
	}
	balance, err := m.bank.BalanceOf(m.debtToken, redeemer)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(debtAmount) < 0 {
		return nil, ErrInsufficientBalance
	}

	m.accrueActiveInterests(l)
	totalDebtAtStart := new(big.Int).Add(l.ActiveDebt, l.DefaultedDebt)
	remaining := new(big.Int).Set(debtAmount)
	totalDebt := big.NewInt(0)
	totalColl := big.NewInt(0)
	var touched uint64

	current, err := m.firstRedemptionCandidate(l, hints.First, price)
	if err != nil {
		return nil, err
	}
	if maxIterations == 0 {
		maxIterations = math.MaxUint64
	}
	for !current.IsZero() && remaining.Sign() > 0 && maxIterations > 0 {
		maxIterations--
		next, err := m.sorted.Prev(current)
		if err != nil {
			return nil, err
		}
		t, err := m.loadTrove(current)
		if err != nil {
			return nil, err
		}
		if err := m.applyPendingRewards(l, t); err != nil {
			return nil, err
		}
		if err := m.storeTrove(t); err != nil {
			return nil, err
		}
		single, err := m.redeemFromTrove(l, t, remaining, price, hints)
		if err != nil {
			return nil, err
		}
		if single.cancelled {
			break
		}
		totalDebt.Add(totalDebt, single.debtLot)
		totalColl.Add(totalColl, single.collLot)
		remaining.Sub(remaining, single.debtLot)
		touched++
		current = next
	}
	if totalColl.Sign() == 0 {
		return nil, ErrUnableToRedeem
	}

	baseRate := m.updateBaseRateFromRedemption(l, totalColl, price, totalDebtAtStart)
	fee, err := calcRedemptionFee(calcRedemptionRate(l.Params, l.BaseRate), totalColl)
	if err != nil {
		return nil, err
	}
	if err := RequireUserAcceptsFee(fee, totalColl, maxFeePercentage); err != nil {
		return nil, err
	}
	receiver, err := m.core.FeeReceiver()
	if err != nil {
		return nil, err
	}
	toUser := new(big.Int).Sub(totalColl, fee)
	if err := sub(l.ActiveDebt, totalDebt); err != nil {
		return nil, err
	}
	if err := m.sendCollateral(l, receiver, fee); err != nil {
		return nil, err
	}
	if err := m.sendCollateral(l, redeemer, toUser); err != nil {
		return nil, err
	}
	m.resetState(l)
	if err := m.storeLedger(l); err != nil {
		return nil, err
	}
	if err := m.bank.Burn(m.debtToken, redeemer, totalDebt); err != nil {
		return nil, err
	}
	m.emitter.Emit(events.Redemption{
		Collateral:      m.collateral,
		Redeemer:        redeemer,
		AttemptedDebt:   new(big.Int).Set(debtAmount),
		ActualDebt:      new(big.Int).Set(totalDebt),
		CollateralSent:  new(big.Int).Set(toUser),
		CollateralFee:   new(big.Int).Set(fee),
		TrovesRedeemed:  touched,
		ResultingBaseRt: new(big.Int).Set(baseRate),
	})
	return &RedemptionResult{
		DebtRedeemed:     totalDebt,
		CollateralDrawn:  totalColl,
		CollateralFee:    fee,
		CollateralToUser: toUser,
		TrovesTouched:    touched,
		BaseRate:         baseRate,
	}, nil
}

// systemTCR prefers the gateway's cross-collateral ratio and falls back to
// this ledger alone when no gateway is wired.
func (m *Manager) systemTCR(l *Ledger, price *big.Int) (*big.Int, error) {
	if m.system != nil {
		return m.system.GetTCR()
	}
	coll := new(big.Int).Add(l.ActiveCollateral, l.DefaultedCollateral)
	debt := new(big.Int).Add(m.pendingActiveDebt(l), l.DefaultedDebt)
	return nativecommon.ComputeCR(coll, debt, price), nil
}

func (m *Manager) firstRedemptionCandidate(l *Ledger, hint crypto.Address, price *big.Int) (crypto.Address, error) {
	if ok, err := m.isValidFirstRedemptionHint(l, hint, price); err != nil {
		return crypto.Address{}, err
	} else if ok {
		return hint, nil
	}
	current, err := m.sorted.Last()
	if err != nil {
		return crypto.Address{}, err
	}
	for !current.IsZero() {
		icr, err := m.currentICR(l, current, price)
		if err != nil {
			return crypto.Address{}, err
		}
		if icr.Cmp(l.Params.MCR) >= 0 {
			break
		}
		if current, err = m.sorted.Prev(current); err != nil {
			return crypto.Address{}, err
		}
	}
	return current, nil
}

// isValidFirstRedemptionHint accepts a hint at or above MCR whose riskier
// neighbour is below MCR (or absent).
func (m *Manager) isValidFirstRedemptionHint(l *Ledger, hint crypto.Address, price *big.Int) (bool, error) {
	if hint.IsZero() {
		return false, nil
	}
	ok, err := m.sorted.Contains(hint)
	if err != nil || !ok {
		return false, err
	}
	icr, err := m.currentICR(l, hint, price)
	if err != nil {
		return false, err
	}
	if icr.Cmp(l.Params.MCR) < 0 {
		return false, nil
	}
	next, err := m.sorted.Next(hint)
	if err != nil {
		return false, err
	}
	if next.IsZero() {
		return true, nil
	}
	nextICR, err := m.currentICR(l, next, price)
	if err != nil {
		return false, err
	}
	return nextICR.Cmp(l.Params.MCR) < 0, nil
}

// redeemFromTrove draws up to maxDebt from t, leaving the gas compensation in
// place. A position drained to exactly the gas compensation is closed and its
// remaining collateral credited as surplus.
func (m *Manager) redeemFromTrove(l *Ledger, t *Trove, maxDebt, price *big.Int, hints RedemptionHints) (*singleRedemption, error) {
	gasComp := l.Params.DebtGasCompensation
	redeemable := new(big.Int).Sub(t.Debt, gasComp)
	if redeemable.Sign() < 0 {
		redeemable.SetInt64(0)
	}
	debtLot := nativecommon.Min(maxDebt, redeemable)
	collLot := nativecommon.MulDiv(debtLot, nativecommon.DecimalPrecision, price)
	newDebt := new(big.Int).Sub(t.Debt, debtLot)
	newColl := new(big.Int).Sub(t.Coll, collLot)
	if newColl.Sign() < 0 {
		return nil, ErrUnderflow
	}

	if newDebt.Cmp(gasComp) == 0 {
		if err := removeStake(l, t); err != nil {
			return nil, err
		}
		if err := m.closeTrove(l, t, StatusClosedByRedemption); err != nil {
			return nil, err
		}
		if err := m.redeemCloseTrove(l, t.Owner, gasComp, newColl); err != nil {
			return nil, err
		}
		m.emitTroveUpdated(t, events.OperationRedeem)
		return &singleRedemption{debtLot: debtLot, collLot: collLot}, nil
	}

	if new(big.Int).Sub(newDebt, gasComp).Cmp(l.Params.MinNetDebt) < 0 {
		return &singleRedemption{cancelled: true}, nil
	}
	nicr := nativecommon.ComputeNominalCR(newColl, newDebt)
	if err := m.sorted.ReInsert(t.Owner, nicr, hints.Upper, hints.Lower); err != nil {
		return nil, err
	}
	t.Debt = newDebt
	t.Coll = newColl
	if err := updateStakeAndTotalStakes(l, t); err != nil {
		return nil, err
	}
	if err := m.storeTrove(t); err != nil {
		return nil, err
	}
	m.emitTroveUpdated(t, events.OperationRedeem)
	return &singleRedemption{debtLot: debtLot, collLot: collLot}, nil
}

// redeemCloseTrove burns the gas compensation held for the position and books
// its leftover collateral as surplus.
func (m *Manager) redeemCloseTrove(l *Ledger, owner crypto.Address, debt, coll *big.Int) error {
	if err := sub(l.ActiveDebt, debt); err != nil {
		return err
	}
	if err := sub(l.ActiveCollateral, coll); err != nil {
		return err
	}
	if err := m.AddCollateralSurplus(owner, coll); err != nil {
		return err
	}
	return m.bank.Burn(m.debtToken, bank.GasPool, debt)
}
