package stability

import (
	"math/big"

	nativecommon "cdpcore/native/common"
)

// vestedEmissions is the emission vested since the last update.
func (e *Engine) vestedEmissions(p *Pool) *big.Int {
	updated := p.PeriodFinish
	if updated > e.now {
		updated = e.now
	}
	if p.LastUpdate >= updated {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(updated-p.LastUpdate), p.RewardRate)
}

// triggerRewardIssuance folds vested emissions into G and, once per week,
// pulls a fresh allocation from the vault and restarts the vesting period.
func (e *Engine) triggerRewardIssuance(p *Pool) error {
	if err := e.updateG(p, e.vestedEmissions(p)); err != nil {
		return err
	}
	if e.vault != nil {
		var lastUpdateWeek uint64
		if start := e.vault.StartTime(); p.PeriodFinish > start {
			lastUpdateWeek = (p.PeriodFinish - start) / RewardDuration
		}
		if e.vault.Week() >= lastUpdateWeek {
			amount, err := e.vault.AllocateNewEmissions(EmissionID)
			if err != nil {
				return err
			}
			if amount.Sign() > 0 {
				if e.now < p.PeriodFinish {
					remaining := new(big.Int).SetUint64(p.PeriodFinish - e.now)
					amount.Add(amount, remaining.Mul(remaining, p.RewardRate))
				}
				p.RewardRate = amount.Quo(amount, new(big.Int).SetUint64(RewardDuration))
				p.PeriodFinish = e.now + RewardDuration
			}
		}
	}
	p.LastUpdate = e.now
	return nil
}

// updateG adds issuance per unit deposited, scaled by P, to the current G sum.
// Issuance while the pool is empty is dropped.
func (e *Engine) updateG(p *Pool, issuance *big.Int) error {
	if p.TotalDeposits.Sign() == 0 || issuance.Sign() == 0 {
		return nil
	}
	numerator := new(big.Int).Mul(issuance, nativecommon.DecimalPrecision)
	numerator.Add(numerator, p.LastRewardError)
	perUnit, rem := new(big.Int).QuoRem(numerator, p.TotalDeposits, new(big.Int))
	p.LastRewardError = rem
	g, err := e.g(p.Epoch, p.Scale)
	if err != nil {
		return err
	}
	g.Add(g, perUnit.Mul(perUnit, p.P))
	return e.state.PutEpochScaleG(p.Epoch, p.Scale, g)
}
