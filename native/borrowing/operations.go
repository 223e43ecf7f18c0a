package borrowing

import (
	"math/big"

	"cdpcore/core/events"
	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
	"cdpcore/native/troves"
)

// OpenRequest opens a position for Account. Coll is pulled from the caller and
// Debt (excluding fee and gas compensation) is minted to the caller.
type OpenRequest struct {
	Account          crypto.Address
	MaxFeePercentage *big.Int
	Coll             *big.Int
	Debt             *big.Int
	UpperHint        crypto.Address
	LowerHint        crypto.Address
}

// AdjustRequest changes an existing position. At most one of CollDeposit and
// CollWithdrawal may be non-zero.
type AdjustRequest struct {
	Account          crypto.Address
	MaxFeePercentage *big.Int
	CollDeposit      *big.Int
	CollWithdrawal   *big.Int
	DebtChange       *big.Int
	IsDebtIncrease   bool
	UpperHint        crypto.Address
	LowerHint        crypto.Address
}

// balances is the system snapshot every operation validates against.
type balances struct {
	priced   *big.Int
	debt     *big.Int
	price    *big.Int
	recovery bool
}

func (g *Gateway) snapshot(tm TroveManager) (*balances, error) {
	price, err := tm.FetchPrice()
	if err != nil {
		return nil, err
	}
	priced, debt, err := g.GetGlobalSystemBalances()
	if err != nil {
		return nil, err
	}
	tcr := nativecommon.ComputeCR(priced, debt, big.NewInt(1))
	return &balances{priced: priced, debt: debt, price: price, recovery: CheckRecoveryMode(tcr)}, nil
}

// newTCR applies a position change to the system totals. collChange is
// already priced.
func (b *balances) newTCR(collChange *big.Int, isCollIncrease bool, debtChange *big.Int, isDebtIncrease bool) *big.Int {
	priced := new(big.Int).Set(b.priced)
	if isCollIncrease {
		priced.Add(priced, collChange)
	} else {
		priced.Sub(priced, collChange)
	}
	debt := new(big.Int).Set(b.debt)
	if isDebtIncrease {
		debt.Add(debt, debtChange)
	} else {
		debt.Sub(debt, debtChange)
	}
	return nativecommon.ComputeCR(priced, debt, big.NewInt(1))
}

func newICR(coll, debt, collChange *big.Int, isCollIncrease bool, debtChange *big.Int, isDebtIncrease bool, price *big.Int) *big.Int {
	c := new(big.Int).Set(coll)
	if isCollIncrease {
		c.Add(c, collChange)
	} else {
		c.Sub(c, collChange)
	}
	d := new(big.Int).Set(debt)
	if isDebtIncrease {
		d.Add(d, debtChange)
	} else {
		d.Sub(d, debtChange)
	}
	return nativecommon.ComputeCR(c, d, price)
}

func requireValidMaxFee(maxFee *big.Int, params troves.Parameters, recovery bool) error {
	if maxFee.Sign() < 0 || maxFee.Cmp(nativecommon.DecimalPrecision) > 0 {
		return ErrInvalidMaxFee
	}
	if !recovery && maxFee.Cmp(params.BorrowingFeeFloor) < 0 {
		return ErrInvalidMaxFee
	}
	return nil
}

// triggerBorrowingFee charges the decayed borrowing fee on debt and mints it
// to the fee receiver.
func (g *Gateway) triggerBorrowingFee(tm TroveManager, account crypto.Address, debt, maxFee *big.Int) (*big.Int, error) {
	fee, err := tm.DecayBaseRateAndGetBorrowingFee(debt)
	if err != nil {
		return nil, err
	}
	if err := troves.RequireUserAcceptsFee(fee, debt, maxFee); err != nil {
		return nil, err
	}
	if fee.Sign() == 0 {
		return fee, nil
	}
	receiver, err := g.core.FeeReceiver()
	if err != nil {
		return nil, err
	}
	if err := g.bank.Mint(g.debtToken, receiver, fee); err != nil {
		return nil, err
	}
	g.emitter.Emit(events.BorrowingFeePaid{Collateral: tm.Collateral(), Borrower: account, Fee: new(big.Int).Set(fee)})
	return fee, nil
}

// OpenTrove opens req.Account's position on the collateral's ledger. The
// caller must be the account or an approved delegate; the caller funds the
// collateral and receives the debt.
func (g *Gateway) OpenTrove(caller, collateral crypto.Address, req OpenRequest) error {
	if err := g.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(g.core, ModuleName); err != nil {
		return err
	}
	if err := g.requireCallerOrDelegate(caller, req.Account); err != nil {
		return err
	}
	tm, err := g.manager(collateral)
	if err != nil {
		return err
	}
	coll := nativecommon.Clone(req.Coll)
	debt := nativecommon.Clone(req.Debt)
	maxFee := nativecommon.Clone(req.MaxFeePercentage)
	if coll.Sign() <= 0 || debt.Sign() <= 0 {
		return troves.ErrInvalidAmount
	}
	params, err := tm.Params()
	if err != nil {
		return err
	}
	b, err := g.snapshot(tm)
	if err != nil {
		return err
	}
	if err := requireValidMaxFee(maxFee, params, b.recovery); err != nil {
		return err
	}

	netDebt := new(big.Int).Set(debt)
	if !b.recovery {
		fee, err := g.triggerBorrowingFee(tm, req.Account, debt, maxFee)
		if err != nil {
			return err
		}
		netDebt.Add(netDebt, fee)
	}
	if netDebt.Cmp(params.MinNetDebt) < 0 {
		return ErrNetDebtBelowMin
	}
	compositeDebt := new(big.Int).Add(netDebt, params.DebtGasCompensation)
	icr := nativecommon.ComputeCR(coll, compositeDebt, b.price)
	nicr := nativecommon.ComputeNominalCR(coll, compositeDebt)

	if b.recovery {
		if icr.Cmp(troves.CCR) < 0 {
			return ErrICRBelowCCR
		}
	} else {
		if icr.Cmp(params.MCR) < 0 {
			return ErrICRBelowMCR
		}
		priced := new(big.Int).Mul(coll, b.price)
		if b.newTCR(priced, true, compositeDebt, true).Cmp(troves.CCR) < 0 {
			return ErrTCRBelowCCR
		}
	}

	if err := g.bank.Transfer(collateral, caller, tm.Account(), coll); err != nil {
		return err
	}
	if _, _, err := tm.OpenTrove(req.Account, coll, compositeDebt, nicr, req.UpperHint, req.LowerHint); err != nil {
		return err
	}
	return g.bank.MintWithGasCompensation(g.debtToken, caller, debt, params.DebtGasCompensation)
}

// AdjustTrove changes collateral and/or debt of req.Account's position.
// Withdrawn collateral and drawn debt go to the caller; repayments are burned
// from the caller.
func (g *Gateway) AdjustTrove(caller, collateral crypto.Address, req AdjustRequest) error {
	if err := g.ready(); err != nil {
		return err
	}
	deposit := nativecommon.Clone(req.CollDeposit)
	withdrawal := nativecommon.Clone(req.CollWithdrawal)
	debtChange := nativecommon.Clone(req.DebtChange)
	maxFee := nativecommon.Clone(req.MaxFeePercentage)
	if deposit.Sign() < 0 || withdrawal.Sign() < 0 || debtChange.Sign() < 0 {
		return troves.ErrInvalidAmount
	}
	if deposit.Sign() > 0 || req.IsDebtIncrease {
		if err := nativecommon.Guard(g.core, ModuleName); err != nil {
			return err
		}
	}
	if deposit.Sign() > 0 && withdrawal.Sign() > 0 {
		return ErrCollDepositAndWithdraw
	}
	if err := g.requireCallerOrDelegate(caller, req.Account); err != nil {
		return err
	}
	tm, err := g.manager(collateral)
	if err != nil {
		return err
	}
	params, err := tm.Params()
	if err != nil {
		return err
	}
	b, err := g.snapshot(tm)
	if err != nil {
		return err
	}
	if req.IsDebtIncrease {
		if debtChange.Sign() == 0 {
			return ErrZeroDebtChange
		}
		if err := requireValidMaxFee(maxFee, params, b.recovery); err != nil {
			return err
		}
	}
	if deposit.Sign() == 0 && withdrawal.Sign() == 0 && debtChange.Sign() == 0 {
		return ErrZeroAdjustment
	}
	status, err := tm.GetTroveStatus(req.Account)
	if err != nil {
		return err
	}
	if status != troves.StatusActive {
		return ErrTroveNotActive
	}

	coll, debt, err := tm.ApplyPendingRewards(req.Account)
	if err != nil {
		return err
	}
	netDebtChange := new(big.Int).Set(debtChange)
	if req.IsDebtIncrease && !b.recovery {
		fee, err := g.triggerBorrowingFee(tm, req.Account, debtChange, maxFee)
		if err != nil {
			return err
		}
		netDebtChange.Add(netDebtChange, fee)
	}
	isRepay := !req.IsDebtIncrease && debtChange.Sign() > 0
	if isRepay {
		if netDebtChange.Cmp(new(big.Int).Sub(debt, params.DebtGasCompensation)) > 0 {
			return ErrRepaymentExceedsNetDebt
		}
	}

	collChange, isCollIncrease := withdrawal, false
	if deposit.Sign() > 0 {
		collChange, isCollIncrease = deposit, true
	}
	if withdrawal.Cmp(coll) > 0 {
		return ErrCollWithdrawalExceeds
	}
	oldICR := nativecommon.ComputeCR(coll, debt, b.price)
	icr := newICR(coll, debt, collChange, isCollIncrease, netDebtChange, req.IsDebtIncrease, b.price)

	if b.recovery {
		if withdrawal.Sign() > 0 {
			return ErrCollWithdrawalRecovery
		}
		if req.IsDebtIncrease {
			if icr.Cmp(troves.CCR) < 0 {
				return ErrICRBelowCCR
			}
			if icr.Cmp(oldICR) < 0 {
				return ErrICRDecreased
			}
		}
	} else {
		if icr.Cmp(params.MCR) < 0 {
			return ErrICRBelowMCR
		}
		priced := new(big.Int).Mul(collChange, b.price)
		if b.newTCR(priced, isCollIncrease, netDebtChange, req.IsDebtIncrease).Cmp(troves.CCR) < 0 {
			return ErrTCRBelowCCR
		}
	}
	if isRepay {
		remaining := new(big.Int).Sub(debt, params.DebtGasCompensation)
		remaining.Sub(remaining, netDebtChange)
		if remaining.Cmp(params.MinNetDebt) < 0 {
			return ErrNetDebtBelowMin
		}
	}

	if deposit.Sign() > 0 {
		if err := g.bank.Transfer(collateral, caller, tm.Account(), deposit); err != nil {
			return err
		}
	}
	_, _, _, err = tm.UpdateTroveFromAdjustment(troves.Adjustment{
		Borrower:       req.Account,
		Receiver:       caller,
		IsDebtIncrease: req.IsDebtIncrease,
		DebtChange:     debtChange,
		NetDebtChange:  netDebtChange,
		IsCollIncrease: isCollIncrease,
		CollChange:     collChange,
		UpperHint:      req.UpperHint,
		LowerHint:      req.LowerHint,
	})
	return err
}

// AddColl deposits amount of collateral into account's position.
func (g *Gateway) AddColl(caller, collateral, account crypto.Address, amount *big.Int, upperHint, lowerHint crypto.Address) error {
	return g.AdjustTrove(caller, collateral, AdjustRequest{Account: account, CollDeposit: amount, UpperHint: upperHint, LowerHint: lowerHint})
}

// WithdrawColl sends amount of collateral from account's position to the caller.
func (g *Gateway) WithdrawColl(caller, collateral, account crypto.Address, amount *big.Int, upperHint, lowerHint crypto.Address) error {
	return g.AdjustTrove(caller, collateral, AdjustRequest{Account: account, CollWithdrawal: amount, UpperHint: upperHint, LowerHint: lowerHint})
}

// WithdrawDebt draws amount of new debt against account's position.
func (g *Gateway) WithdrawDebt(caller, collateral, account crypto.Address, maxFeePercentage, amount *big.Int, upperHint, lowerHint crypto.Address) error {
	return g.AdjustTrove(caller, collateral, AdjustRequest{
		Account:          account,
		MaxFeePercentage: maxFeePercentage,
		DebtChange:       amount,
		IsDebtIncrease:   true,
		UpperHint:        upperHint,
		LowerHint:        lowerHint,
	})
}

// RepayDebt burns amount of the caller's debt tokens against account's position.
func (g *Gateway) RepayDebt(caller, collateral, account crypto.Address, amount *big.Int, upperHint, lowerHint crypto.Address) error {
	return g.AdjustTrove(caller, collateral, AdjustRequest{Account: account, DebtChange: amount, UpperHint: upperHint, LowerHint: lowerHint})
}

// CloseTrove repays account's whole debt from the caller's balance and sends
// the collateral to the caller. Not allowed in recovery mode.
func (g *Gateway) CloseTrove(caller, collateral, account crypto.Address) error {
	if err := g.ready(); err != nil {
		return err
	}
	if err := g.requireCallerOrDelegate(caller, account); err != nil {
		return err
	}
	tm, err := g.manager(collateral)
	if err != nil {
		return err
	}
	params, err := tm.Params()
	if err != nil {
		return err
	}
	b, err := g.snapshot(tm)
	if err != nil {
		return err
	}
	status, err := tm.GetTroveStatus(account)
	if err != nil {
		return err
	}
	if status != troves.StatusActive {
		return ErrTroveNotActive
	}
	coll, debt, err := tm.ApplyPendingRewards(account)
	if err != nil {
		return err
	}
	if b.recovery {
		return ErrRecoveryMode
	}
	priced := new(big.Int).Mul(coll, b.price)
	if b.newTCR(priced, false, debt, false).Cmp(troves.CCR) < 0 {
		return ErrTCRBelowCCR
	}
	if err := tm.CloseTrove(account, caller, coll, debt); err != nil {
		return err
	}
	return g.bank.BurnWithGasCompensation(g.debtToken, caller, new(big.Int).Sub(debt, params.DebtGasCompensation), params.DebtGasCompensation)
}
