package stability

import (
	"math/big"

	"cdpcore/core/events"
	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

// ProvideToSP adds amount of account's debt tokens to its compounded deposit.
func (e *Engine) ProvideToSP(account crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.core, ModuleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	p, err := e.loadPool()
	if err != nil {
		return err
	}
	if err := e.triggerRewardIssuance(p); err != nil {
		return err
	}
	d, err := e.loadDepositor(p, account)
	if err != nil {
		return err
	}
	compounded, _, err := e.settle(p, d)
	if err != nil {
		return err
	}
	p.TotalDeposits.Add(p.TotalDeposits, amount)
	deposit := new(big.Int).Add(compounded, amount)
	d.Amount = deposit
	d.Timestamp = e.now
	if err := e.updateSnapshots(p, account, d, deposit); err != nil {
		return err
	}
	if err := e.state.PutDepositor(account, d); err != nil {
		return err
	}
	if err := e.storePool(p); err != nil {
		return err
	}
	return e.bank.Transfer(e.debtToken, account, e.account, amount)
}

// WithdrawFromSP returns up to amount of account's compounded deposit. An
// amount of zero only settles gains and rewards.
func (e *Engine) WithdrawFromSP(account crypto.Address, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	p, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	d, err := e.loadDepositor(p, account)
	if err != nil {
		return nil, err
	}
	if d.Amount.Sign() == 0 {
		return nil, ErrNoDeposit
	}
	if d.Timestamp >= e.now {
		return nil, ErrSameBlockWithdraw
	}
	if err := e.triggerRewardIssuance(p); err != nil {
		return nil, err
	}
	compounded, _, err := e.settle(p, d)
	if err != nil {
		return nil, err
	}
	withdraw := nativecommon.Min(nativecommon.Clone(amount), compounded)
	if p.TotalDeposits.Cmp(withdraw) < 0 {
		return nil, ErrUnderflow
	}
	p.TotalDeposits.Sub(p.TotalDeposits, withdraw)
	remaining := new(big.Int).Sub(compounded, withdraw)
	d.Amount = remaining
	if err := e.updateSnapshots(p, account, d, remaining); err != nil {
		return nil, err
	}
	if err := e.state.PutDepositor(account, d); err != nil {
		return nil, err
	}
	if err := e.storePool(p); err != nil {
		return nil, err
	}
	if withdraw.Sign() > 0 {
		if err := e.bank.Transfer(e.debtToken, e.account, account, withdraw); err != nil {
			return nil, err
		}
	}
	return withdraw, nil
}

// ClaimCollateralGains settles account and pays its gains in the listed slots
// to receiver.
func (e *Engine) ClaimCollateralGains(account, receiver crypto.Address, indexes []uint64) ([]*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	p, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		if idx >= uint64(len(p.Slots)) {
			return nil, errSlotOutOfRange
		}
	}
	if err := e.triggerRewardIssuance(p); err != nil {
		return nil, err
	}
	d, err := e.loadDepositor(p, account)
	if err != nil {
		return nil, err
	}
	if err := e.resettle(p, account, d); err != nil {
		return nil, err
	}
	paid := make([]*big.Int, len(p.Slots))
	for i := range paid {
		paid[i] = big.NewInt(0)
	}
	for _, idx := range indexes {
		if d.Gains[idx].Sign() == 0 {
			continue
		}
		paid[idx] = d.Gains[idx]
		d.Gains[idx] = big.NewInt(0)
	}
	if err := e.state.PutDepositor(account, d); err != nil {
		return nil, err
	}
	if err := e.storePool(p); err != nil {
		return nil, err
	}
	collaterals := make([]crypto.Address, len(p.Slots))
	for i, slot := range p.Slots {
		collaterals[i] = slot.Collateral
		if paid[i].Sign() == 0 {
			continue
		}
		if err := e.bank.Transfer(slot.Collateral, e.account, receiver, paid[i]); err != nil {
			return nil, err
		}
	}
	e.emitter.Emit(events.StabilityCollateralGains{
		Depositor:   account,
		Receiver:    receiver,
		Collaterals: collaterals,
		Amounts:     cloneAmounts(paid),
	})
	return paid, nil
}

// ClaimReward settles account and pays its accrued emissions to receiver.
func (e *Engine) ClaimReward(account, receiver crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.vault == nil {
		return nil, errNilCollaborator
	}
	p, err := e.loadPool()
	if err != nil {
		return nil, err
	}
	if err := e.triggerRewardIssuance(p); err != nil {
		return nil, err
	}
	d, err := e.loadDepositor(p, account)
	if err != nil {
		return nil, err
	}
	if err := e.resettle(p, account, d); err != nil {
		return nil, err
	}
	amount := d.PendingReward
	d.PendingReward = big.NewInt(0)
	if err := e.state.PutDepositor(account, d); err != nil {
		return nil, err
	}
	if err := e.storePool(p); err != nil {
		return nil, err
	}
	if amount.Sign() > 0 {
		if err := e.vault.TransferAllocatedTokens(EmissionID, receiver, amount); err != nil {
			return nil, err
		}
	}
	e.emitter.Emit(events.StabilityRewardClaimed{Depositor: account, Receiver: receiver, Amount: new(big.Int).Set(amount)})
	return amount, nil
}

// resettle books gains for an existing deposit and restarts its snapshot at
// the compounded value, keeping the original deposit timestamp.
func (e *Engine) resettle(p *Pool, account crypto.Address, d *Depositor) error {
	if d.Amount.Sign() == 0 {
		forfeitReassigned(p, d)
		return nil
	}
	compounded, _, err := e.settle(p, d)
	if err != nil {
		return err
	}
	d.Amount = compounded
	return e.updateSnapshots(p, account, d, compounded)
}
