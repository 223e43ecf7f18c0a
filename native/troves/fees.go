package troves

import (
	"math/big"

	nativecommon "cdpcore/native/common"
)

// calcDecayedBaseRate decays the base rate by the minute decay factor for
// every whole minute since the last fee operation.
func (m *Manager) calcDecayedBaseRate(l *Ledger) *big.Int {
	var minutes uint64
	if m.now > l.LastFeeOperationTime {
		minutes = (m.now - l.LastFeeOperationTime) / secondsInOneMinute
	}
	factor := nativecommon.DecPow(l.Params.MinuteDecayFactor, minutes)
	return nativecommon.MulDiv(l.BaseRate, factor, nativecommon.DecimalPrecision)
}

// updateLastFeeOpTime only advances in whole minutes so frequent operations
// cannot stall the decay.
func (m *Manager) updateLastFeeOpTime(l *Ledger) {
	if m.now >= l.LastFeeOperationTime+secondsInOneMinute {
		l.LastFeeOperationTime = m.now
	}
}

func (m *Manager) decayBaseRate(l *Ledger) *big.Int {
	decayed := m.calcDecayedBaseRate(l)
	l.BaseRate = new(big.Int).Set(decayed)
	m.updateLastFeeOpTime(l)
	return decayed
}

// updateBaseRateFromRedemption adds collDrawn*price/totalDebt/Beta to the
// decayed base rate, capped at 100%.
func (m *Manager) updateBaseRateFromRedemption(l *Ledger, collDrawn, price, totalDebt *big.Int) *big.Int {
	decayed := m.calcDecayedBaseRate(l)
	fraction := nativecommon.MulDiv(collDrawn, price, totalDebt)
	next := new(big.Int).Quo(fraction, big.NewInt(Beta))
	next.Add(next, decayed)
	if next.Cmp(OneHundredPercent) > 0 {
		next.Set(OneHundredPercent)
	}
	l.BaseRate = next
	m.updateLastFeeOpTime(l)
	return new(big.Int).Set(next)
}

func calcRedemptionRate(p Parameters, baseRate *big.Int) *big.Int {
	return nativecommon.Min(new(big.Int).Add(p.RedemptionFeeFloor, baseRate), p.MaxRedemptionFee)
}

func calcBorrowingRate(p Parameters, baseRate *big.Int) *big.Int {
	return nativecommon.Min(new(big.Int).Add(p.BorrowingFeeFloor, baseRate), p.MaxBorrowingFee)
}

func calcRedemptionFee(rate, collDrawn *big.Int) (*big.Int, error) {
	fee := nativecommon.MulDiv(rate, collDrawn, nativecommon.DecimalPrecision)
	if fee.Cmp(collDrawn) >= 0 {
		return nil, ErrFeeExceedsCollateral
	}
	return fee, nil
}

// RequireUserAcceptsFee fails when fee/amount exceeds maxFeePercentage.
func RequireUserAcceptsFee(fee, amount, maxFeePercentage *big.Int) error {
	pct := nativecommon.MulDiv(fee, nativecommon.DecimalPrecision, amount)
	if pct.Cmp(maxFeePercentage) > 0 {
		return ErrFeeExceedsMax
	}
	return nil
}

// GetRedemptionRate returns the redemption rate at the stored base rate.
func (m *Manager) GetRedemptionRate() (*big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	return calcRedemptionRate(l.Params, l.BaseRate), nil
}

// GetRedemptionRateWithDecay returns the redemption rate after decaying the
// base rate to the current block time.
func (m *Manager) GetRedemptionRateWithDecay() (*big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	return calcRedemptionRate(l.Params, m.calcDecayedBaseRate(l)), nil
}

// GetRedemptionFeeWithDecay quotes the fee on collDrawn at the decayed rate.
func (m *Manager) GetRedemptionFeeWithDecay(collDrawn *big.Int) (*big.Int, error) {
	rate, err := m.GetRedemptionRateWithDecay()
	if err != nil {
		return nil, err
	}
	return calcRedemptionFee(rate, collDrawn)
}

// GetBorrowingRate returns the borrowing rate at the stored base rate.
func (m *Manager) GetBorrowingRate() (*big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	return calcBorrowingRate(l.Params, l.BaseRate), nil
}

func (m *Manager) GetBorrowingRateWithDecay() (*big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	return calcBorrowingRate(l.Params, m.calcDecayedBaseRate(l)), nil
}

// GetBorrowingFeeWithDecay quotes the fee charged on a debt increase of debt.
func (m *Manager) GetBorrowingFeeWithDecay(debt *big.Int) (*big.Int, error) {
	rate, err := m.GetBorrowingRateWithDecay()
	if err != nil {
		return nil, err
	}
	return nativecommon.MulDiv(rate, debt, nativecommon.DecimalPrecision), nil
}

// DecayBaseRateAndGetBorrowingFee persists the decayed base rate and returns
// the fee owed on a debt increase of debt.
func (m *Manager) DecayBaseRateAndGetBorrowingFee(debt *big.Int) (*big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	rate := calcBorrowingRate(l.Params, m.decayBaseRate(l))
	if err := m.storeLedger(l); err != nil {
		return nil, err
	}
	return nativecommon.MulDiv(rate, debt, nativecommon.DecimalPrecision), nil
}
