package troves

import (
	"math/big"

	"cdpcore/core/events"
	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

// pendingRewards returns stake*(L-snapshot)/1e18 for collateral and debt.
func pendingRewards(l *Ledger, t *Trove, snap *RewardSnapshot) (*big.Int, *big.Int) {
	if t.Status != StatusActive {
		return big.NewInt(0), big.NewInt(0)
	}
	collDelta := new(big.Int).Sub(l.LCollateral, snap.Collateral)
	debtDelta := new(big.Int).Sub(l.LDebt, snap.Debt)
	if collDelta.Sign() <= 0 && debtDelta.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	coll := nativecommon.MulDiv(t.Stake, collDelta, nativecommon.DecimalPrecision)
	debt := nativecommon.MulDiv(t.Stake, debtDelta, nativecommon.DecimalPrecision)
	return coll, debt
}

// GetPendingCollAndDebtRewards returns the redistribution rewards owner has not yet absorbed.
func (m *Manager) GetPendingCollAndDebtRewards(owner crypto.Address) (*big.Int, *big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, nil, err
	}
	t, err := m.loadTrove(owner)
	if err != nil {
		return nil, nil, err
	}
	snap, err := m.loadSnapshot(owner)
	if err != nil {
		return nil, nil, err
	}
	coll, debt := pendingRewards(l, t, snap)
	return coll, debt, nil
}

func (m *Manager) updateRewardSnapshot(l *Ledger, owner crypto.Address) error {
	return m.state.PutRewardSnapshot(m.collateral, owner, &RewardSnapshot{
		Collateral: new(big.Int).Set(l.LCollateral),
		Debt:       new(big.Int).Set(l.LDebt),
	})
}

// applyPendingRewards brings t up to date with the interest index and the
// redistribution accumulators. The trove is persisted by the caller.
func (m *Manager) applyPendingRewards(l *Ledger, t *Trove) error {
	if t.Status != StatusActive {
		return nil
	}
	index := m.accrueActiveInterests(l)
	if t.ActiveInterestIndex.Sign() > 0 && t.ActiveInterestIndex.Cmp(index) < 0 {
		t.Debt = nativecommon.MulDiv(t.Debt, index, t.ActiveInterestIndex)
		t.ActiveInterestIndex = new(big.Int).Set(index)
	}
	snap, err := m.loadSnapshot(t.Owner)
	if err != nil {
		return err
	}
	if snap.Collateral.Cmp(l.LCollateral) < 0 || snap.Debt.Cmp(l.LDebt) < 0 {
		collReward, debtReward := pendingRewards(l, t, snap)
		t.Coll.Add(t.Coll, collReward)
		t.Debt.Add(t.Debt, debtReward)
		if err := m.updateRewardSnapshot(l, t.Owner); err != nil {
			return err
		}
		if err := movePendingToActive(l, debtReward, collReward); err != nil {
			return err
		}
	}
	return nil
}

// ApplyPendingRewards syncs owner's position and returns its collateral and debt.
func (m *Manager) ApplyPendingRewards(owner crypto.Address) (*big.Int, *big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, nil, err
	}
	t, err := m.loadTrove(owner)
	if err != nil {
		return nil, nil, err
	}
	if t.Status != StatusActive {
		return big.NewInt(0), big.NewInt(0), nil
	}
	if err := m.applyPendingRewards(l, t); err != nil {
		return nil, nil, err
	}
	if err := m.storeTrove(t); err != nil {
		return nil, nil, err
	}
	if err := m.storeLedger(l); err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(t.Coll), new(big.Int).Set(t.Debt), nil
}

func movePendingToActive(l *Ledger, debt, coll *big.Int) error {
	if err := sub(l.DefaultedDebt, debt); err != nil {
		return err
	}
	if err := sub(l.DefaultedCollateral, coll); err != nil {
		return err
	}
	l.ActiveDebt.Add(l.ActiveDebt, debt)
	l.ActiveCollateral.Add(l.ActiveCollateral, coll)
	return nil
}

// MovePendingTroveRewardsToActiveBalances shifts a liquidated position's
// unabsorbed rewards from the defaulted to the active totals.
func (m *Manager) MovePendingTroveRewardsToActiveBalances(debt, coll *big.Int) error {
	l, err := m.loadLedger()
	if err != nil {
		return err
	}
	if err := movePendingToActive(l, debt, coll); err != nil {
		return err
	}
	return m.storeLedger(l)
}

// redistributeDebtAndColl spreads debt and coll over every active stake,
// carrying the division remainder into the next redistribution.
func (m *Manager) redistributeDebtAndColl(l *Ledger, debt, coll *big.Int) error {
	if debt.Sign() == 0 {
		return nil
	}
	if l.TotalStakes.Sign() == 0 {
		return errZeroTotalStakes
	}
	collNum := new(big.Int).Mul(coll, nativecommon.DecimalPrecision)
	collNum.Add(collNum, l.LastCollateralError)
	debtNum := new(big.Int).Mul(debt, nativecommon.DecimalPrecision)
	debtNum.Add(debtNum, l.LastDebtError)

	collPerStake, collErr := new(big.Int).QuoRem(collNum, l.TotalStakes, new(big.Int))
	debtPerStake, debtErr := new(big.Int).QuoRem(debtNum, l.TotalStakes, new(big.Int))
	l.LastCollateralError = collErr
	l.LastDebtError = debtErr
	l.LCollateral.Add(l.LCollateral, collPerStake)
	l.LDebt.Add(l.LDebt, debtPerStake)

	if err := sub(l.ActiveDebt, debt); err != nil {
		return err
	}
	if err := sub(l.ActiveCollateral, coll); err != nil {
		return err
	}
	l.DefaultedDebt.Add(l.DefaultedDebt, debt)
	l.DefaultedCollateral.Add(l.DefaultedCollateral, coll)

	m.emitter.Emit(events.Redistribution{
		Collateral:  m.collateral,
		Debt:        new(big.Int).Set(debt),
		Coll:        new(big.Int).Set(coll),
		LCollateral: new(big.Int).Set(l.LCollateral),
		LDebt:       new(big.Int).Set(l.LDebt),
		TotalStakes: new(big.Int).Set(l.TotalStakes),
	})
	return nil
}

// computeNewStake is coll scaled by the stake/collateral ratio of the last
// liquidation snapshot, so that positions opened after a redistribution do not
// share in rewards earned before them.
func computeNewStake(l *Ledger, coll *big.Int) (*big.Int, error) {
	if l.TotalCollateralSnapshot.Sign() == 0 {
		return new(big.Int).Set(coll), nil
	}
	if l.TotalStakesSnapshot.Sign() == 0 {
		return nil, errZeroStakeSnapshot
	}
	return nativecommon.MulDiv(coll, l.TotalStakesSnapshot, l.TotalCollateralSnapshot), nil
}

func updateStakeAndTotalStakes(l *Ledger, t *Trove) error {
	stake, err := computeNewStake(l, t.Coll)
	if err != nil {
		return err
	}
	if err := sub(l.TotalStakes, t.Stake); err != nil {
		return err
	}
	l.TotalStakes.Add(l.TotalStakes, stake)
	t.Stake = stake
	return nil
}

func removeStake(l *Ledger, t *Trove) error {
	if err := sub(l.TotalStakes, t.Stake); err != nil {
		return err
	}
	t.Stake = big.NewInt(0)
	return nil
}
