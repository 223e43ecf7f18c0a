package liquidation

import (
	"math/big"

	"cdpcore/core/events"
	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
	"cdpcore/native/troves"
)

const (
	modeWithoutSP = "withoutStabilityPool"
	modeNormal    = "normal"
	modeCapped    = "capped"
)

// SingleLiquidation is the outcome for one position. EntireColl always
// equals CollGasCompensation + CollToSendToSP + CollToRedistribute +
// CollSurplus.
type SingleLiquidation struct {
	EntireDebt          *big.Int
	EntireColl          *big.Int
	CollGasCompensation *big.Int
	DebtGasCompensation *big.Int
	DebtToOffset        *big.Int
	CollToSendToSP      *big.Int
	DebtToRedistribute  *big.Int
	CollToRedistribute  *big.Int
	CollSurplus         *big.Int
}

func newSingle() *SingleLiquidation {
	return &SingleLiquidation{
		EntireDebt:          big.NewInt(0),
		EntireColl:          big.NewInt(0),
		CollGasCompensation: big.NewInt(0),
		DebtGasCompensation: big.NewInt(0),
		DebtToOffset:        big.NewInt(0),
		CollToSendToSP:      big.NewInt(0),
		DebtToRedistribute:  big.NewInt(0),
		CollToRedistribute:  big.NewInt(0),
		CollSurplus:         big.NewInt(0),
	}
}

// Totals accumulates every SingleLiquidation of a call before it is applied.
type Totals struct {
	Liquidated          uint64
	CollInSequence      *big.Int
	DebtInSequence      *big.Int
	CollGasCompensation *big.Int
	DebtGasCompensation *big.Int
	DebtToOffset        *big.Int
	CollToSendToSP      *big.Int
	DebtToRedistribute  *big.Int
	CollToRedistribute  *big.Int
	CollSurplus         *big.Int
}

func NewTotals() *Totals {
	return &Totals{
		CollInSequence:      big.NewInt(0),
		DebtInSequence:      big.NewInt(0),
		CollGasCompensation: big.NewInt(0),
		DebtGasCompensation: big.NewInt(0),
		DebtToOffset:        big.NewInt(0),
		CollToSendToSP:      big.NewInt(0),
		DebtToRedistribute:  big.NewInt(0),
		CollToRedistribute:  big.NewInt(0),
		CollSurplus:         big.NewInt(0),
	}
}

// Add folds s into the running totals.
func (t *Totals) Add(s *SingleLiquidation) {
	t.Liquidated++
	t.CollInSequence.Add(t.CollInSequence, s.EntireColl)
	t.DebtInSequence.Add(t.DebtInSequence, s.EntireDebt)
	t.CollGasCompensation.Add(t.CollGasCompensation, s.CollGasCompensation)
	t.DebtGasCompensation.Add(t.DebtGasCompensation, s.DebtGasCompensation)
	t.DebtToOffset.Add(t.DebtToOffset, s.DebtToOffset)
	t.CollToSendToSP.Add(t.CollToSendToSP, s.CollToSendToSP)
	t.DebtToRedistribute.Add(t.DebtToRedistribute, s.DebtToRedistribute)
	t.CollToRedistribute.Add(t.CollToRedistribute, s.CollToRedistribute)
	t.CollSurplus.Add(t.CollSurplus, s.CollSurplus)
}

func collGasCompensation(coll *big.Int) *big.Int {
	return new(big.Int).Quo(coll, big.NewInt(troves.PercentDivisor))
}

// offsetAndRedistribution splits debt and coll between the pool and
// redistribution. A sunsetting ledger or an empty pool redistributes all.
func offsetAndRedistribution(s *SingleLiquidation, debt, coll, debtInPool *big.Int, sunsetting bool) {
	if debtInPool.Sign() > 0 && !sunsetting {
		s.DebtToOffset = nativecommon.Min(debt, debtInPool)
		s.CollToSendToSP = nativecommon.MulDiv(coll, s.DebtToOffset, debt)
		s.DebtToRedistribute = new(big.Int).Sub(debt, s.DebtToOffset)
		s.CollToRedistribute = new(big.Int).Sub(coll, s.CollToSendToSP)
		return
	}
	s.DebtToRedistribute = new(big.Int).Set(debt)
	s.CollToRedistribute = new(big.Int).Set(coll)
}

// begin captures the position's full balances and folds its pending rewards
// into the active totals.
func begin(tm TroveManager, v *ledgerValues, borrower crypto.Address) (*SingleLiquidation, error) {
	entire, err := tm.GetEntireDebtAndColl(borrower)
	if err != nil {
		return nil, err
	}
	if err := tm.MovePendingTroveRewardsToActiveBalances(entire.PendingDebtReward, entire.PendingCollReward); err != nil {
		return nil, err
	}
	s := newSingle()
	s.EntireDebt = entire.Debt
	s.EntireColl = entire.Coll
	s.DebtGasCompensation = new(big.Int).Set(v.gasComp)
	return s, nil
}

func (e *Engine) closePosition(tm TroveManager, v *ledgerValues, borrower crypto.Address, s *SingleLiquidation, mode string) error {
	if err := tm.CloseTroveByLiquidation(borrower); err != nil {
		return err
	}
	e.emitter.Emit(events.TroveLiquidated{
		Collateral: v.collateral,
		Borrower:   borrower,
		Debt:       new(big.Int).Set(s.EntireDebt),
		Coll:       new(big.Int).Set(s.EntireColl),
		Mode:       mode,
	})
	return nil
}

// liquidateWithoutSP redistributes an insolvent (ICR <= 100%) position.
func (e *Engine) liquidateWithoutSP(tm TroveManager, v *ledgerValues, borrower crypto.Address) (*SingleLiquidation, error) {
	s, err := begin(tm, v, borrower)
	if err != nil {
		return nil, err
	}
	s.CollGasCompensation = collGasCompensation(s.EntireColl)
	s.DebtToRedistribute = new(big.Int).Set(s.EntireDebt)
	s.CollToRedistribute = new(big.Int).Sub(s.EntireColl, s.CollGasCompensation)
	if err := e.closePosition(tm, v, borrower, s, modeWithoutSP); err != nil {
		return nil, err
	}
	return s, nil
}

// liquidateNormalMode offsets as much debt as the pool holds and
// redistributes the rest.
func (e *Engine) liquidateNormalMode(tm TroveManager, v *ledgerValues, borrower crypto.Address, debtInPool *big.Int) (*SingleLiquidation, error) {
	s, err := begin(tm, v, borrower)
	if err != nil {
		return nil, err
	}
	s.CollGasCompensation = collGasCompensation(s.EntireColl)
	collToLiquidate := new(big.Int).Sub(s.EntireColl, s.CollGasCompensation)
	offsetAndRedistribution(s, s.EntireDebt, collToLiquidate, debtInPool, v.sunsetting)
	if err := e.closePosition(tm, v, borrower, s, modeNormal); err != nil {
		return nil, err
	}
	return s, nil
}

// tryLiquidateWithCap fully offsets a position at or above MCR, seizing only
// debt*MCR/price of its collateral and crediting the rest to the borrower as
// surplus. Positions whose debt exceeds the pool are left untouched.
func (e *Engine) tryLiquidateWithCap(tm TroveManager, v *ledgerValues, borrower crypto.Address, debtInPool *big.Int) (*SingleLiquidation, error) {
	entire, err := tm.GetEntireDebtAndColl(borrower)
	if err != nil {
		return nil, err
	}
	if entire.Debt.Sign() == 0 || entire.Debt.Cmp(debtInPool) > 0 {
		return newSingle(), nil
	}
	s, err := begin(tm, v, borrower)
	if err != nil {
		return nil, err
	}
	collToOffset := nativecommon.MulDiv(s.EntireDebt, v.mcr, v.price)
	if collToOffset.Cmp(s.EntireColl) > 0 {
		collToOffset = new(big.Int).Set(s.EntireColl)
	}
	s.CollGasCompensation = collGasCompensation(collToOffset)
	s.DebtToOffset = new(big.Int).Set(s.EntireDebt)
	s.CollToSendToSP = new(big.Int).Sub(collToOffset, s.CollGasCompensation)
	if err := e.closePosition(tm, v, borrower, s, modeCapped); err != nil {
		return nil, err
	}
	s.CollSurplus = new(big.Int).Sub(s.EntireColl, collToOffset)
	if s.CollSurplus.Sign() > 0 {
		if err := tm.AddCollateralSurplus(borrower, s.CollSurplus); err != nil {
			return nil, err
		}
	}
	return s, nil
}
