package troves

import (
	"math/big"

	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

// FetchPrice reads the collateral price from the oracle.
func (m *Manager) FetchPrice() (*big.Int, error) {
	if m == nil || m.oracle == nil {
		return nil, errNilCollaborator
	}
	return m.oracle.FetchPrice(m.collateral)
}

// Snapshot returns a copy of the ledger record.
func (m *Manager) Snapshot() (*Ledger, error) {
	return m.loadLedger()
}

// Params returns the active governance parameters.
func (m *Manager) Params() (Parameters, error) {
	l, err := m.loadLedger()
	if err != nil {
		return Parameters{}, err
	}
	return l.Params.Clone(), nil
}

func (m *Manager) MCR() (*big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(l.Params.MCR), nil
}

func (m *Manager) Sunsetting() (bool, error) {
	l, err := m.loadLedger()
	if err != nil {
		return false, err
	}
	return l.Sunsetting, nil
}

// GetTrove returns the stored position without pending interest or rewards.
func (m *Manager) GetTrove(owner crypto.Address) (*Trove, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	return m.loadTrove(owner)
}

// entireDebtAndColl folds interest and pending redistribution rewards into
// the stored position without persisting anything.
func (m *Manager) entireDebtAndColl(l *Ledger, owner crypto.Address) (*EntireDebtAndColl, error) {
	t, err := m.loadTrove(owner)
	if err != nil {
		return nil, err
	}
	snap, err := m.loadSnapshot(owner)
	if err != nil {
		return nil, err
	}
	pendingColl, pendingDebt := pendingRewards(l, t, snap)
	debt := new(big.Int).Set(t.Debt)
	if t.ActiveInterestIndex.Sign() > 0 {
		index, _ := m.calculateInterestIndex(l)
		debt = nativecommon.MulDiv(debt, index, t.ActiveInterestIndex)
	}
	return &EntireDebtAndColl{
		Debt:              debt.Add(debt, pendingDebt),
		Coll:              new(big.Int).Add(t.Coll, pendingColl),
		PendingDebtReward: pendingDebt,
		PendingCollReward: pendingColl,
	}, nil
}

// GetEntireDebtAndColl returns owner's debt and collateral as a liquidation would see them.
func (m *Manager) GetEntireDebtAndColl(owner crypto.Address) (*EntireDebtAndColl, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	return m.entireDebtAndColl(l, owner)
}

func (m *Manager) currentICR(l *Ledger, owner crypto.Address, price *big.Int) (*big.Int, error) {
	entire, err := m.entireDebtAndColl(l, owner)
	if err != nil {
		return nil, err
	}
	return nativecommon.ComputeCR(entire.Coll, entire.Debt, price), nil
}

// GetCurrentICR returns owner's collateral ratio at price.
func (m *Manager) GetCurrentICR(owner crypto.Address, price *big.Int) (*big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	return m.currentICR(l, owner, price)
}

// GetNominalICR returns owner's price-independent collateral ratio.
func (m *Manager) GetNominalICR(owner crypto.Address) (*big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	entire, err := m.entireDebtAndColl(l, owner)
	if err != nil {
		return nil, err
	}
	return nativecommon.ComputeNominalCR(entire.Coll, entire.Debt), nil
}

// pendingActiveDebt is the active debt including interest not yet accrued.
func (m *Manager) pendingActiveDebt(l *Ledger) *big.Int {
	debt := new(big.Int).Set(l.ActiveDebt)
	if _, factor := m.calculateInterestIndex(l); factor.Sign() > 0 {
		debt.Add(debt, nativecommon.MulDiv(debt, factor, nativecommon.Ray))
	}
	return debt
}

// GetTotalActiveDebt includes interest accrued since the last index update.
func (m *Manager) GetTotalActiveDebt() (*big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	return m.pendingActiveDebt(l), nil
}

func (m *Manager) GetTotalActiveCollateral() (*big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(l.ActiveCollateral), nil
}

// GetEntireSystemColl is active plus defaulted collateral.
func (m *Manager) GetEntireSystemColl() (*big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(l.ActiveCollateral, l.DefaultedCollateral), nil
}

// GetEntireSystemDebt is active debt with pending interest plus defaulted debt.
func (m *Manager) GetEntireSystemDebt() (*big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(m.pendingActiveDebt(l), l.DefaultedDebt), nil
}

// GetEntireSystemBalances returns the ledger's total collateral and debt with
// the current oracle price.
func (m *Manager) GetEntireSystemBalances() (*SystemBalances, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	price, err := m.FetchPrice()
	if err != nil {
		return nil, err
	}
	return &SystemBalances{
		Collateral: new(big.Int).Add(l.ActiveCollateral, l.DefaultedCollateral),
		Debt:       new(big.Int).Add(m.pendingActiveDebt(l), l.DefaultedDebt),
		Price:      price,
	}, nil
}

func (m *Manager) GetTroveOwnersCount() (uint64, error) {
	l, err := m.loadLedger()
	if err != nil {
		return 0, err
	}
	return l.OwnerCount, nil
}

// GetTroveFromTroveOwnersArray returns the owner stored at index.
func (m *Manager) GetTroveFromTroveOwnersArray(index uint64) (crypto.Address, error) {
	l, err := m.loadLedger()
	if err != nil {
		return crypto.Address{}, err
	}
	if index >= l.OwnerCount {
		return crypto.Address{}, ErrTroveNotActive
	}
	return m.state.GetTroveOwner(m.collateral, index)
}

// GetTroveStatus returns the lifecycle status of owner's position.
func (m *Manager) GetTroveStatus(owner crypto.Address) (Status, error) {
	t, err := m.GetTrove(owner)
	if err != nil {
		return StatusNonExistent, err
	}
	return t.Status, nil
}
