package troves

import (
	"math/big"

	"cdpcore/core/events"
	"cdpcore/crypto"
	"cdpcore/native/bank"
	nativecommon "cdpcore/native/common"
)

// OpenTrove records a new active position with the given collateral and
// composite debt (net debt plus gas compensation). Collateral must already sit
// in the ledger account.
func (m *Manager) OpenTrove(borrower crypto.Address, coll, compositeDebt, nicr *big.Int, upperHint, lowerHint crypto.Address) (*big.Int, uint64, error) {
	if err := m.ready(); err != nil {
		return nil, 0, err
	}
	l, err := m.loadLedger()
	if err != nil {
		return nil, 0, err
	}
	if l.Sunsetting {
		return nil, 0, ErrSunsetting
	}
	t, err := m.loadTrove(borrower)
	if err != nil {
		return nil, 0, err
	}
	if t.Status == StatusActive {
		return nil, 0, ErrTroveActive
	}
	t.Status = StatusActive
	t.Coll = new(big.Int).Set(coll)
	t.Debt = new(big.Int).Set(compositeDebt)
	t.Stake = big.NewInt(0)
	t.ActiveInterestIndex = m.accrueActiveInterests(l)
	if err := m.updateRewardSnapshot(l, borrower); err != nil {
		return nil, 0, err
	}
	if err := updateStakeAndTotalStakes(l, t); err != nil {
		return nil, 0, err
	}
	if err := m.sorted.Insert(borrower, nicr, upperHint, lowerHint); err != nil {
		return nil, 0, err
	}
	t.ArrayIndex = l.OwnerCount
	if err := m.state.PutTroveOwner(m.collateral, t.ArrayIndex, borrower); err != nil {
		return nil, 0, err
	}
	l.OwnerCount++

	l.ActiveCollateral.Add(l.ActiveCollateral, coll)
	newTotal := new(big.Int).Add(l.ActiveDebt, compositeDebt)
	if new(big.Int).Add(newTotal, l.DefaultedDebt).Cmp(l.Params.MaxSystemDebt) > 0 {
		return nil, 0, ErrDebtLimit
	}
	l.ActiveDebt = newTotal

	if err := m.storeTrove(t); err != nil {
		return nil, 0, err
	}
	if err := m.storeLedger(l); err != nil {
		return nil, 0, err
	}
	m.emitter.Emit(events.TroveOpened{Collateral: m.collateral, Borrower: borrower, ArrayIndex: t.ArrayIndex})
	m.emitTroveUpdated(t, events.OperationOpen)
	return new(big.Int).Set(t.Stake), t.ArrayIndex, nil
}

// Adjustment describes a gateway-validated change to an existing position.
type Adjustment struct {
	Borrower       crypto.Address
	Receiver       crypto.Address
	IsDebtIncrease bool
	// DebtChange is minted to or burned from the receiver.
	DebtChange *big.Int
	// NetDebtChange is the change to the recorded debt; it includes the
	// borrowing fee on increases.
	NetDebtChange  *big.Int
	IsCollIncrease bool
	CollChange     *big.Int
	UpperHint      crypto.Address
	LowerHint      crypto.Address
}

// UpdateTroveFromAdjustment applies a validated adjustment and returns the new
// collateral, debt and stake. Deposited collateral must already be in the
// ledger account; withdrawn collateral is sent to the receiver.
func (m *Manager) UpdateTroveFromAdjustment(adj Adjustment) (*big.Int, *big.Int, *big.Int, error) {
	if err := m.ready(); err != nil {
		return nil, nil, nil, err
	}
	debtChange := nativecommon.Clone(adj.DebtChange)
	netDebtChange := nativecommon.Clone(adj.NetDebtChange)
	collChange := nativecommon.Clone(adj.CollChange)
	l, err := m.loadLedger()
	if err != nil {
		return nil, nil, nil, err
	}
	if (adj.IsCollIncrease && collChange.Sign() > 0) || (adj.IsDebtIncrease && debtChange.Sign() > 0) {
		if l.Sunsetting {
			return nil, nil, nil, ErrSunsetting
		}
	}
	t, err := m.loadTrove(adj.Borrower)
	if err != nil {
		return nil, nil, nil, err
	}
	if t.Status != StatusActive {
		return nil, nil, nil, ErrTroveNotActive
	}
	if debtChange.Sign() > 0 {
		if adj.IsDebtIncrease {
			t.Debt.Add(t.Debt, netDebtChange)
			newTotal := new(big.Int).Add(l.ActiveDebt, netDebtChange)
			if new(big.Int).Add(newTotal, l.DefaultedDebt).Cmp(l.Params.MaxSystemDebt) > 0 {
				return nil, nil, nil, ErrDebtLimit
			}
			l.ActiveDebt = newTotal
			if err := m.bank.Mint(m.debtToken, adj.Receiver, debtChange); err != nil {
				return nil, nil, nil, err
			}
		} else {
			if err := sub(t.Debt, netDebtChange); err != nil {
				return nil, nil, nil, err
			}
			if err := sub(l.ActiveDebt, debtChange); err != nil {
				return nil, nil, nil, err
			}
			if err := m.bank.Burn(m.debtToken, adj.Receiver, debtChange); err != nil {
				return nil, nil, nil, err
			}
		}
	}
	if collChange.Sign() > 0 {
		if adj.IsCollIncrease {
			t.Coll.Add(t.Coll, collChange)
			l.ActiveCollateral.Add(l.ActiveCollateral, collChange)
		} else {
			if err := sub(t.Coll, collChange); err != nil {
				return nil, nil, nil, err
			}
			if err := m.sendCollateral(l, adj.Receiver, collChange); err != nil {
				return nil, nil, nil, err
			}
		}
	}
	nicr := nativecommon.ComputeNominalCR(t.Coll, t.Debt)
	if err := m.sorted.ReInsert(t.Owner, nicr, adj.UpperHint, adj.LowerHint); err != nil {
		return nil, nil, nil, err
	}
	if err := updateStakeAndTotalStakes(l, t); err != nil {
		return nil, nil, nil, err
	}
	if err := m.storeTrove(t); err != nil {
		return nil, nil, nil, err
	}
	if err := m.storeLedger(l); err != nil {
		return nil, nil, nil, err
	}
	m.emitTroveUpdated(t, events.OperationAdjust)
	return new(big.Int).Set(t.Coll), new(big.Int).Set(t.Debt), new(big.Int).Set(t.Stake), nil
}

// CloseTrove closes borrower's position at the owner's request, sending coll
// to receiver and removing debt from the active total. Burning the repaid debt
// is the gateway's job.
func (m *Manager) CloseTrove(borrower, receiver crypto.Address, coll, debt *big.Int) error {
	if err := m.ready(); err != nil {
		return err
	}
	l, err := m.loadLedger()
	if err != nil {
		return err
	}
	t, err := m.loadTrove(borrower)
	if err != nil {
		return err
	}
	if t.Status != StatusActive {
		return ErrTroveNotActive
	}
	if err := removeStake(l, t); err != nil {
		return err
	}
	if err := m.closeTrove(l, t, StatusClosedByOwner); err != nil {
		return err
	}
	if err := sub(l.ActiveDebt, debt); err != nil {
		return err
	}
	if err := m.sendCollateral(l, receiver, coll); err != nil {
		return err
	}
	m.resetState(l)
	if err := m.storeLedger(l); err != nil {
		return err
	}
	m.emitTroveUpdated(t, events.OperationClose)
	return nil
}

// CloseTroveByLiquidation marks borrower liquidated. The engine has already
// captured the position's balances.
func (m *Manager) CloseTroveByLiquidation(borrower crypto.Address) error {
	if err := m.ready(); err != nil {
		return err
	}
	l, err := m.loadLedger()
	if err != nil {
		return err
	}
	t, err := m.loadTrove(borrower)
	if err != nil {
		return err
	}
	if t.Status != StatusActive {
		return ErrTroveNotActive
	}
	if err := removeStake(l, t); err != nil {
		return err
	}
	if err := m.closeTrove(l, t, StatusClosedByLiquidation); err != nil {
		return err
	}
	if err := m.storeLedger(l); err != nil {
		return err
	}
	m.emitTroveUpdated(t, events.OperationLiquidate)
	return nil
}

// closeTrove zeroes the position, drops it from the sorted index and
// swap-removes it from the owners array. The trove is persisted here.
func (m *Manager) closeTrove(l *Ledger, t *Trove, status Status) error {
	count := l.OwnerCount
	t.Status = status
	t.Coll = big.NewInt(0)
	t.Debt = big.NewInt(0)
	t.ActiveInterestIndex = big.NewInt(0)
	if err := m.state.PutRewardSnapshot(m.collateral, t.Owner, &RewardSnapshot{Collateral: big.NewInt(0), Debt: big.NewInt(0)}); err != nil {
		return err
	}
	if count == 0 {
		return ErrTroveNotActive
	}
	lastIndex := count - 1
	if count > 1 && t.ArrayIndex != lastIndex {
		moved, err := m.state.GetTroveOwner(m.collateral, lastIndex)
		if err != nil {
			return err
		}
		movedTrove, err := m.loadTrove(moved)
		if err != nil {
			return err
		}
		movedTrove.ArrayIndex = t.ArrayIndex
		if err := m.state.PutTroveOwner(m.collateral, t.ArrayIndex, moved); err != nil {
			return err
		}
		if err := m.storeTrove(movedTrove); err != nil {
			return err
		}
	}
	if err := m.state.DeleteTroveOwner(m.collateral, lastIndex); err != nil {
		return err
	}
	l.OwnerCount = lastIndex
	if err := m.sorted.Remove(t.Owner); err != nil {
		return err
	}
	t.ArrayIndex = 0
	return m.storeTrove(t)
}

// resetState restores a pristine ledger once the last position is gone.
func (m *Manager) resetState(l *Ledger) {
	if l.OwnerCount != 0 {
		return
	}
	l.ActiveInterestIndex = new(big.Int).Set(nativecommon.Ray)
	l.LastActiveIndexUpdate = m.now
	for _, f := range []*big.Int{
		l.TotalStakes, l.TotalStakesSnapshot, l.TotalCollateralSnapshot,
		l.LCollateral, l.LDebt, l.LastCollateralError, l.LastDebtError,
		l.ActiveCollateral, l.ActiveDebt, l.DefaultedCollateral, l.DefaultedDebt,
	} {
		f.SetInt64(0)
	}
}

// AddCollateralSurplus credits collateral a borrower may claim later.
func (m *Manager) AddCollateralSurplus(borrower crypto.Address, amount *big.Int) error {
	if m == nil || m.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	cur, err := m.state.GetSurplus(m.collateral, borrower)
	if err != nil {
		return err
	}
	return m.state.PutSurplus(m.collateral, borrower, new(big.Int).Add(nativecommon.Clone(cur), amount))
}

// SurplusBalance returns the claimable collateral surplus of borrower.
func (m *Manager) SurplusBalance(borrower crypto.Address) (*big.Int, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	cur, err := m.state.GetSurplus(m.collateral, borrower)
	if err != nil {
		return nil, err
	}
	return nativecommon.Clone(cur), nil
}

// ClaimCollateral pays borrower's whole surplus to receiver.
func (m *Manager) ClaimCollateral(borrower, receiver crypto.Address) (*big.Int, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	amount, err := m.SurplusBalance(borrower)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, ErrNoSurplus
	}
	if err := m.state.PutSurplus(m.collateral, borrower, big.NewInt(0)); err != nil {
		return nil, err
	}
	if err := m.bank.Transfer(m.collateral, m.account, receiver, amount); err != nil {
		return nil, err
	}
	m.emitter.Emit(events.CollateralSurplusClaimed{
		Collateral: m.collateral,
		Borrower:   borrower,
		Receiver:   receiver,
		Amount:     new(big.Int).Set(amount),
	})
	return amount, nil
}

// DecreaseDebtAndSendCollateral burns debt held by account (the stability
// pool) and hands it coll in exchange.
func (m *Manager) DecreaseDebtAndSendCollateral(account crypto.Address, debt, coll *big.Int) error {
	if err := m.ready(); err != nil {
		return err
	}
	l, err := m.loadLedger()
	if err != nil {
		return err
	}
	if err := sub(l.ActiveDebt, debt); err != nil {
		return err
	}
	if err := m.sendCollateral(l, account, coll); err != nil {
		return err
	}
	if err := m.storeLedger(l); err != nil {
		return err
	}
	return m.bank.Burn(m.debtToken, account, debt)
}

// FinalizeLiquidation redistributes what the pool did not absorb, books the
// surplus, refreshes the stake snapshots and pays gas compensation.
func (m *Manager) FinalizeLiquidation(liquidator crypto.Address, debt, coll, collSurplus, debtGasComp, collGasComp *big.Int) error {
	if err := m.ready(); err != nil {
		return err
	}
	l, err := m.loadLedger()
	if err != nil {
		return err
	}
	if err := m.redistributeDebtAndColl(l, debt, coll); err != nil {
		return err
	}
	if collSurplus.Sign() > 0 {
		if err := sub(l.ActiveCollateral, collSurplus); err != nil {
			return err
		}
	}
	l.TotalStakesSnapshot = new(big.Int).Set(l.TotalStakes)
	snapshot := new(big.Int).Sub(l.ActiveCollateral, collGasComp)
	if snapshot.Sign() < 0 {
		return ErrUnderflow
	}
	l.TotalCollateralSnapshot = snapshot.Add(snapshot, l.DefaultedCollateral)
	if err := m.sendCollateral(l, liquidator, collGasComp); err != nil {
		return err
	}
	if err := m.storeLedger(l); err != nil {
		return err
	}
	return m.bank.Transfer(m.debtToken, bank.GasPool, liquidator, debtGasComp)
}
