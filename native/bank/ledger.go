package bank

import (
	"math/big"

	"cdpcore/core/events"
	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

var (
	errNilState            = nativecommon.NewError(nativecommon.ErrValidation, "bank: state not configured")
	errInvalidAmount       = nativecommon.NewError(nativecommon.ErrValidation, "bank: amount must not be negative")
	errZeroToken           = nativecommon.NewError(nativecommon.ErrValidation, "bank: token required")
	ErrInsufficientBalance = nativecommon.NewError(nativecommon.ErrInvariant, "bank: insufficient balance")
)

var (
	// GasPool holds the debt-token gas compensation minted for every open position.
	GasPool = crypto.ModuleAddress("gas-pool")
)

type bankState interface {
	GetBalance(token, account crypto.Address) (*big.Int, error)
	PutBalance(token, account crypto.Address, amount *big.Int) error
	GetSupply(token crypto.Address) (*big.Int, error)
	PutSupply(token crypto.Address, amount *big.Int) error
}

// Ledger keeps balances and supply for every token the protocol touches: the
// debt token, collateral tokens and the emission token. Movements are purely
// internal, there are no callbacks into user code.
type Ledger struct {
	state   bankState
	emitter events.Emitter
}

func NewLedger() *Ledger { return &Ledger{emitter: events.NoopEmitter{}} }

func (l *Ledger) SetState(state bankState) {
	if l == nil {
		return
	}
	l.state = state
}

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

func (l *Ledger) check(token crypto.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if token.IsZero() {
		return errZeroToken
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	return nil
}

func (l *Ledger) balance(token, account crypto.Address) (*big.Int, error) {
	bal, err := l.state.GetBalance(token, account)
	if err != nil {
		return nil, err
	}
	return nativecommon.Clone(bal), nil
}

func (l *Ledger) supply(token crypto.Address) (*big.Int, error) {
	total, err := l.state.GetSupply(token)
	if err != nil {
		return nil, err
	}
	return nativecommon.Clone(total), nil
}

// BalanceOf returns the account's balance of token.
func (l *Ledger) BalanceOf(token, account crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.balance(token, account)
}

// TotalSupply returns the circulating amount of token.
func (l *Ledger) TotalSupply(token crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.supply(token)
}

// Mint credits amount to account and grows the supply.
func (l *Ledger) Mint(token, account crypto.Address, amount *big.Int) error {
	if err := l.check(token, amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	bal, err := l.balance(token, account)
	if err != nil {
		return err
	}
	total, err := l.supply(token)
	if err != nil {
		return err
	}
	bal.Add(bal, amount)
	total.Add(total, amount)
	if err := l.state.PutBalance(token, account, bal); err != nil {
		return err
	}
	if err := l.state.PutSupply(token, total); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{
		Token:   token,
		Account: account,
		Total:   total,
		Delta:   new(big.Int).Set(amount),
		Reason:  events.SupplyReasonMint,
	})
	return nil
}

// Burn removes amount from account and shrinks the supply.
func (l *Ledger) Burn(token, account crypto.Address, amount *big.Int) error {
	if err := l.check(token, amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	bal, err := l.balance(token, account)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	total, err := l.supply(token)
	if err != nil {
		return err
	}
	bal.Sub(bal, amount)
	total.Sub(total, amount)
	if total.Sign() < 0 {
		total.SetInt64(0)
	}
	if err := l.state.PutBalance(token, account, bal); err != nil {
		return err
	}
	if err := l.state.PutSupply(token, total); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{
		Token:   token,
		Account: account,
		Total:   total,
		Delta:   new(big.Int).Neg(amount),
		Reason:  events.SupplyReasonBurn,
	})
	return nil
}

// Transfer moves amount of token between two accounts.
func (l *Ledger) Transfer(token, from, to crypto.Address, amount *big.Int) error {
	if err := l.check(token, amount); err != nil {
		return err
	}
	if amount.Sign() == 0 || from.Equal(to) {
		return nil
	}
	src, err := l.balance(token, from)
	if err != nil {
		return err
	}
	if src.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	dst, err := l.balance(token, to)
	if err != nil {
		return err
	}
	src.Sub(src, amount)
	dst.Add(dst, amount)
	if err := l.state.PutBalance(token, from, src); err != nil {
		return err
	}
	if err := l.state.PutBalance(token, to, dst); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{Token: token, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// MintWithGasCompensation mints amount to account and gasComp to the gas pool.
func (l *Ledger) MintWithGasCompensation(token, account crypto.Address, amount, gasComp *big.Int) error {
	if err := l.Mint(token, account, amount); err != nil {
		return err
	}
	return l.Mint(token, GasPool, gasComp)
}

// BurnWithGasCompensation burns amount from account and gasComp from the gas pool.
func (l *Ledger) BurnWithGasCompensation(token, account crypto.Address, amount, gasComp *big.Int) error {
	if err := l.Burn(token, account, amount); err != nil {
		return err
	}
	return l.Burn(token, GasPool, gasComp)
}
