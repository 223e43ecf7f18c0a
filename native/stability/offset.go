package stability

import (
	"math/big"

	"cdpcore/core/events"
	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

// Offset cancels debtToOffset of pooled deposits against liquidated debt and
// credits collGained of collateral to depositors pro rata. The collateral
// itself is delivered to the pool account by the ledger. An empty pool or a
// zero amount is a no-op.
func (e *Engine) Offset(collateral crypto.Address, debtToOffset, collGained *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	p, err := e.loadPool()
	if err != nil {
		return err
	}
	if p.TotalDeposits.Sign() == 0 || debtToOffset == nil || debtToOffset.Sign() == 0 {
		return nil
	}
	idx, ok := p.indexOf(collateral)
	if !ok {
		return ErrCollateralNotListed
	}
	if debtToOffset.Cmp(p.TotalDeposits) > 0 {
		return errOffsetExceedsPool
	}
	if err := e.triggerRewardIssuance(p); err != nil {
		return err
	}
	collPerUnit, debtLossPerUnit := computeRewardsPerUnitStaked(p, idx, nativecommon.Clone(collGained), debtToOffset)
	if err := e.updateRewardSumAndProduct(p, idx, collPerUnit, debtLossPerUnit); err != nil {
		return err
	}
	p.TotalDeposits.Sub(p.TotalDeposits, debtToOffset)
	if err := e.storePool(p); err != nil {
		return err
	}
	e.emitter.Emit(events.StabilityOffset{
		Collateral: collateral,
		Index:      uint64(idx),
		DebtLoss:   new(big.Int).Set(debtToOffset),
		CollGain:   nativecommon.Clone(collGained),
		Remaining:  new(big.Int).Set(p.TotalDeposits),
	})
	return nil
}

// computeRewardsPerUnitStaked divides the gain and the loss by total
// deposits. The loss is rounded up so compounded deposits never overstate the
// pool; both remainders carry into the next offset.
func computeRewardsPerUnitStaked(p *Pool, idx int, collGained, debtToOffset *big.Int) (*big.Int, *big.Int) {
	total := p.TotalDeposits
	collNumerator := new(big.Int).Mul(collGained, nativecommon.DecimalPrecision)
	collNumerator.Add(collNumerator, p.LastCollateralErrors[idx])

	var debtLossPerUnit *big.Int
	if debtToOffset.Cmp(total) == 0 {
		debtLossPerUnit = new(big.Int).Set(nativecommon.DecimalPrecision)
		p.LastDebtLossError = big.NewInt(0)
	} else {
		lossNumerator := new(big.Int).Mul(debtToOffset, nativecommon.DecimalPrecision)
		lossNumerator.Sub(lossNumerator, p.LastDebtLossError)
		debtLossPerUnit = new(big.Int).Quo(lossNumerator, total)
		debtLossPerUnit.Add(debtLossPerUnit, big.NewInt(1))
		carry := new(big.Int).Mul(debtLossPerUnit, total)
		p.LastDebtLossError = carry.Sub(carry, lossNumerator)
	}

	collPerUnit, rem := new(big.Int).QuoRem(collNumerator, total, new(big.Int))
	p.LastCollateralErrors[idx] = rem
	return collPerUnit, debtLossPerUnit
}

// updateRewardSumAndProduct advances S for the slot and shrinks P. A total
// wipe-out starts a new epoch; a P that would fall below ScaleFactor is
// multiplied up and the scale advances.
func (e *Engine) updateRewardSumAndProduct(p *Pool, idx int, collPerUnit, debtLossPerUnit *big.Int) error {
	current, err := e.sum(p.Epoch, p.Scale, idx)
	if err != nil {
		return err
	}
	current.Add(current, new(big.Int).Mul(collPerUnit, p.P))
	if err := e.state.PutEpochScaleSum(p.Epoch, p.Scale, uint64(idx), current); err != nil {
		return err
	}

	factor := new(big.Int).Sub(nativecommon.DecimalPrecision, debtLossPerUnit)
	var next *big.Int
	switch {
	case factor.Sign() <= 0:
		p.Epoch++
		p.Scale = 0
		next = new(big.Int).Set(nativecommon.DecimalPrecision)
	default:
		next = new(big.Int).Mul(p.P, factor)
		if scaled := new(big.Int).Quo(next, nativecommon.DecimalPrecision); scaled.Cmp(ScaleFactor) < 0 {
			next.Mul(next, ScaleFactor)
			p.Scale++
		}
		next.Quo(next, nativecommon.DecimalPrecision)
	}
	if next.Sign() == 0 {
		return errZeroProduct
	}
	p.P = next
	e.emitter.Emit(events.StabilityProductUpdated{P: new(big.Int).Set(next), Epoch: p.Epoch, Scale: p.Scale})
	return nil
}
