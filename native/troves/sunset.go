package troves

import (
	"math/big"

	"cdpcore/core/events"
	"cdpcore/crypto"
)

// StartSunset winds the ledger down: the interest rate is fixed at the
// sunsetting rate, the redemption floor and debt ceiling drop to zero and no
// new debt may be taken. It cannot be undone.
func (m *Manager) StartSunset(caller crypto.Address) error {
	if err := m.ready(); err != nil {
		return err
	}
	if err := m.core.RequireOwner(caller); err != nil {
		return err
	}
	l, err := m.loadLedger()
	if err != nil {
		return err
	}
	if l.Sunsetting {
		return ErrSunsetting
	}
	l.Sunsetting = true
	m.accrueActiveInterests(l)
	l.InterestRate = interestRatePerSecond(SunsettingInterestRateBps)
	l.LastActiveIndexUpdate = m.now
	l.Params.RedemptionFeeFloor = big.NewInt(0)
	l.Params.MaxSystemDebt = big.NewInt(0)
	if err := m.storeLedger(l); err != nil {
		return err
	}
	m.emitter.Emit(events.SunsetStarted{Collateral: m.collateral, Timestamp: m.now})
	return nil
}

// SetParameters replaces the governance parameters. Gas compensation and the
// minimum net debt are fixed at listing and carried over unchanged. A changed
// interest rate takes effect from the current block.
func (m *Manager) SetParameters(caller crypto.Address, params Parameters) error {
	if err := m.ready(); err != nil {
		return err
	}
	if err := m.core.RequireOwner(caller); err != nil {
		return err
	}
	l, err := m.loadLedger()
	if err != nil {
		return err
	}
	if l.Sunsetting {
		return ErrSunsetting
	}
	next := params.Clone()
	next.normalize()
	next.DebtGasCompensation = new(big.Int).Set(l.Params.DebtGasCompensation)
	next.MinNetDebt = new(big.Int).Set(l.Params.MinNetDebt)
	if err := next.Validate(); err != nil {
		return err
	}
	m.decayBaseRate(l)
	rate := interestRatePerSecond(next.InterestRateBps)
	if rate.Cmp(l.InterestRate) != 0 {
		m.accrueActiveInterests(l)
		l.LastActiveIndexUpdate = m.now
		l.InterestRate = rate
	}
	l.Params = next
	return m.storeLedger(l)
}
