package stability

import (
	"math/big"

	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

// GetTotalDebtTokenDeposits returns the pooled debt tokens.
func (e *Engine) GetTotalDebtTokenDeposits() (*big.Int, error) {
	p, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(p.TotalDeposits), nil
}

// Snapshot returns a copy of the global pool state.
func (e *Engine) Snapshot() (*Pool, error) {
	return e.loadPool()
}

// CollateralTokens lists the collateral assigned to each slot.
func (e *Engine) CollateralTokens() ([]crypto.Address, error) {
	p, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	out := make([]crypto.Address, len(p.Slots))
	for i, slot := range p.Slots {
		out[i] = slot.Collateral
	}
	return out, nil
}

// CollateralIndex returns the enrolled slot of collateral.
func (e *Engine) CollateralIndex(collateral crypto.Address) (uint64, bool, error) {
	p, err := e.loadPool()
	if err != nil {
		return 0, false, err
	}
	idx, ok := p.indexOf(collateral)
	return uint64(idx), ok, nil
}

// Deposit returns account's stored deposit record.
func (e *Engine) Deposit(account crypto.Address) (*Depositor, error) {
	p, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	return e.loadDepositor(p, account)
}

// GetCompoundedDebtDeposit returns what remains of account's deposit after
// the losses absorbed since its snapshot.
func (e *Engine) GetCompoundedDebtDeposit(account crypto.Address) (*big.Int, error) {
	p, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	d, err := e.loadDepositor(p, account)
	if err != nil {
		return nil, err
	}
	return compoundedDeposit(p, d), nil
}

// GetDepositorCollateralGain returns stored plus accrued gains per slot.
func (e *Engine) GetDepositorCollateralGain(account crypto.Address) ([]*big.Int, error) {
	p, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	d, err := e.loadDepositor(p, account)
	if err != nil {
		return nil, err
	}
	forfeitReassigned(p, d)
	gains, _, err := e.collateralGains(p, d)
	if err != nil {
		return nil, err
	}
	for i := range gains {
		gains[i].Add(gains[i], d.Gains[i])
	}
	return gains, nil
}

// ClaimableReward returns account's unclaimed emissions including what has
// vested since the last issuance.
func (e *Engine) ClaimableReward(account crypto.Address) (*big.Int, error) {
	p, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	d, err := e.loadDepositor(p, account)
	if err != nil {
		return nil, err
	}
	pending := new(big.Int).Set(d.PendingReward)
	if p.TotalDeposits.Sign() == 0 || d.Amount.Sign() == 0 || d.P.Sign() == 0 {
		return pending, nil
	}
	numerator := new(big.Int).Mul(e.vestedEmissions(p), nativecommon.DecimalPrecision)
	numerator.Add(numerator, p.LastRewardError)
	marginal := numerator.Quo(numerator, p.TotalDeposits)
	marginal.Mul(marginal, p.P)

	g, err := e.g(d.Epoch, d.Scale)
	if err != nil {
		return nil, err
	}
	next, err := e.g(d.Epoch, d.Scale+1)
	if err != nil {
		return nil, err
	}
	if d.Epoch == p.Epoch {
		switch p.Scale {
		case d.Scale:
			g.Add(g, marginal)
		case d.Scale + 1:
			next.Add(next, marginal)
		}
	}
	first := g.Sub(g, d.G)
	if first.Sign() < 0 {
		first.SetInt64(0)
	}
	portion := first.Add(first, next.Quo(next, ScaleFactor))
	gain := new(big.Int).Mul(d.Amount, portion)
	gain.Quo(gain, d.P)
	gain.Quo(gain, nativecommon.DecimalPrecision)
	return pending.Add(pending, gain), nil
}
