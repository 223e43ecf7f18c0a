package system

import (
	"math/big"

	"cdpcore/crypto"
	"cdpcore/native/borrowing"
	"cdpcore/native/troves"
)

// SystemStatus is the cross-collateral health summary.
type SystemStatus struct {
	TotalPricedCollateral *big.Int
	TotalDebt             *big.Int
	TCR                   *big.Int
	RecoveryMode          bool
}

// TroveView is a position with its pending redistribution applied.
type TroveView struct {
	Collateral string
	Owner      crypto.Address
	Status     string
	Debt       *big.Int
	Coll       *big.Int
	ICR        *big.Int
	NICR       *big.Int
}

// LedgerView summarises a collateral ledger.
type LedgerView struct {
	Collateral    string
	Token         crypto.Address
	Price         *big.Int
	Coll          *big.Int
	Debt          *big.Int
	Positions     uint64
	Sunsetting    bool
	BorrowingRate *big.Int
	RedeemRate    *big.Int
}

// DepositView is a stability pool deposit with its pending gains. Gains are
// indexed by pool slot.
type DepositView struct {
	Account         crypto.Address
	Compounded      *big.Int
	CollateralGains []*big.Int
	Reward          *big.Int
}

// Status reports the system TCR and recovery mode flag.
func (s *System) Status() (*SystemStatus, error) {
	var out *SystemStatus
	err := s.view(func() error {
		priced, debt, err := s.gateway.GetGlobalSystemBalances()
		if err != nil {
			return err
		}
		tcr, err := s.gateway.GetTCR()
		if err != nil {
			return err
		}
		out = &SystemStatus{
			TotalPricedCollateral: priced,
			TotalDebt:             debt,
			TCR:                   tcr,
			RecoveryMode:          borrowing.CheckRecoveryMode(tcr),
		}
		return nil
	})
	return out, err
}

// Trove returns the account's position on the named collateral.
func (s *System) Trove(collateral string, owner crypto.Address) (*TroveView, error) {
	var out *TroveView
	err := s.view(func() error {
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		t, err := l.manager.GetTrove(owner)
		if err != nil {
			return err
		}
		entire, err := l.manager.GetEntireDebtAndColl(owner)
		if err != nil {
			return err
		}
		out = &TroveView{
			Collateral: collateral,
			Owner:      owner,
			Status:     t.Status.String(),
			Debt:       entire.Debt,
			Coll:       entire.Coll,
		}
		if t.Status != troves.StatusActive {
			return nil
		}
		price, err := l.manager.FetchPrice()
		if err != nil {
			return err
		}
		if out.ICR, err = l.manager.GetCurrentICR(owner, price); err != nil {
			return err
		}
		out.NICR, err = l.manager.GetNominalICR(owner)
		return err
	})
	return out, err
}

// Ledger summarises the named collateral ledger.
func (s *System) Ledger(collateral string) (*LedgerView, error) {
	var out *LedgerView
	err := s.view(func() error {
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		price, err := l.manager.FetchPrice()
		if err != nil {
			return err
		}
		balances, err := l.manager.GetEntireSystemBalances()
		if err != nil {
			return err
		}
		count, err := l.manager.GetTroveOwnersCount()
		if err != nil {
			return err
		}
		sunsetting, err := l.manager.Sunsetting()
		if err != nil {
			return err
		}
		borrowRate, err := l.manager.GetBorrowingRateWithDecay()
		if err != nil {
			return err
		}
		redeemRate, err := l.manager.GetRedemptionRateWithDecay()
		if err != nil {
			return err
		}
		out = &LedgerView{
			Collateral:    collateral,
			Token:         l.token,
			Price:         price,
			Coll:          balances.Collateral,
			Debt:          balances.Debt,
			Positions:     count,
			Sunsetting:    sunsetting,
			BorrowingRate: borrowRate,
			RedeemRate:    redeemRate,
		}
		return nil
	})
	return out, err
}

// Deposit returns the account's stability pool position.
func (s *System) Deposit(account crypto.Address) (*DepositView, error) {
	var out *DepositView
	err := s.view(func() error {
		compounded, err := s.pool.GetCompoundedDebtDeposit(account)
		if err != nil {
			return err
		}
		gains, err := s.pool.GetDepositorCollateralGain(account)
		if err != nil {
			return err
		}
		reward, err := s.pool.ClaimableReward(account)
		if err != nil {
			return err
		}
		out = &DepositView{Account: account, Compounded: compounded, CollateralGains: gains, Reward: reward}
		return nil
	})
	return out, err
}

// PoolCollaterals lists the stability pool slots in index order.
func (s *System) PoolCollaterals() ([]crypto.Address, error) {
	var out []crypto.Address
	err := s.view(func() error {
		var err error
		out, err = s.pool.CollateralTokens()
		return err
	})
	return out, err
}

// Surplus returns the collateral the account may claim after a capped
// liquidation or redemption close.
func (s *System) Surplus(collateral string, account crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(func() error {
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		out, err = l.manager.SurplusBalance(account)
		return err
	})
	return out, err
}

// Balance returns the account's balance of token.
func (s *System) Balance(token, account crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(func() error {
		bal, err := s.bank.BalanceOf(token, account)
		if err != nil {
			return err
		}
		out = clone(bal)
		return nil
	})
	return out, err
}

// Parameters returns the risk parameters of the named collateral ledger.
func (s *System) Parameters(collateral string) (troves.Parameters, error) {
	var out troves.Parameters
	err := s.view(func() error {
		l, err := s.ledger(collateral)
		if err != nil {
			return err
		}
		out, err = l.manager.Params()
		return err
	})
	return out, err
}
