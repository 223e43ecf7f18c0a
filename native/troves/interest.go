package troves

import (
	"math/big"

	"cdpcore/core/events"
	nativecommon "cdpcore/native/common"
)

// calculateInterestIndex returns the index as of now and the interest factor
// applied since the last update. Equal timestamps leave the index untouched.
func (m *Manager) calculateInterestIndex(l *Ledger) (*big.Int, *big.Int) {
	if l.LastActiveIndexUpdate >= m.now {
		return new(big.Int).Set(l.ActiveInterestIndex), big.NewInt(0)
	}
	index := new(big.Int).Set(l.ActiveInterestIndex)
	factor := big.NewInt(0)
	if l.InterestRate.Sign() > 0 {
		factor.SetUint64(m.now - l.LastActiveIndexUpdate)
		factor.Mul(factor, l.InterestRate)
		index.Add(index, nativecommon.MulDiv(index, factor, nativecommon.Ray))
	}
	return index, factor
}

// CalculateInterestIndex reports the ledger's compounding index as of the current block time.
func (m *Manager) CalculateInterestIndex() (*big.Int, error) {
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	index, _ := m.calculateInterestIndex(l)
	return index, nil
}

// accrueActiveInterests scales the active debt by the elapsed interest and
// books the growth as payable. Positions catch up lazily.
func (m *Manager) accrueActiveInterests(l *Ledger) *big.Int {
	index, factor := m.calculateInterestIndex(l)
	if factor.Sign() > 0 {
		interest := nativecommon.MulDiv(l.ActiveDebt, factor, nativecommon.Ray)
		l.ActiveDebt.Add(l.ActiveDebt, interest)
		l.InterestPayable.Add(l.InterestPayable, interest)
		l.ActiveInterestIndex = new(big.Int).Set(index)
		l.LastActiveIndexUpdate = m.now
	}
	return index
}

// UpdateBalances accrues interest up to the current block time.
func (m *Manager) UpdateBalances() error {
	l, err := m.loadLedger()
	if err != nil {
		return err
	}
	m.accrueActiveInterests(l)
	return m.storeLedger(l)
}

// CollectInterests mints all accrued interest to the fee receiver.
func (m *Manager) CollectInterests() (*big.Int, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	l, err := m.loadLedger()
	if err != nil {
		return nil, err
	}
	m.accrueActiveInterests(l)
	if l.InterestPayable.Sign() == 0 {
		return nil, ErrNothingToCollect
	}
	receiver, err := m.core.FeeReceiver()
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Set(l.InterestPayable)
	l.InterestPayable.SetInt64(0)
	if err := m.storeLedger(l); err != nil {
		return nil, err
	}
	if err := m.bank.Mint(m.debtToken, receiver, amount); err != nil {
		return nil, err
	}
	m.emitter.Emit(events.InterestCollected{Collateral: m.collateral, Receiver: receiver, Amount: new(big.Int).Set(amount)})
	return amount, nil
}
