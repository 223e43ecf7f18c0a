package troves

import (
	"fmt"
	"math/big"

	"cdpcore/core/events"
	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

var (
	errNilState           = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: state not configured")
	errNilCollaborator    = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: collaborator not configured")
	errNotInitialised     = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: ledger not initialised")
	errInvalidMCR         = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: MCR must be between 110% and CCR")
	errInvalidDecayFactor = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: minute decay factor out of range")
	errInvalidFeeBounds   = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: fee floor above maximum or maximum above 100%")
	errInvalidDebtBounds  = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: gas compensation and minimum net debt must be positive")
	errZeroTotalStakes    = nativecommon.NewError(nativecommon.ErrArithmetic, "troves engine: total stakes is zero")
	errZeroStakeSnapshot  = nativecommon.NewError(nativecommon.ErrArithmetic, "troves engine: zero total stakes snapshot")

	ErrSunsetting           = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: ledger is sunsetting")
	ErrTroveActive          = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: trove is active")
	ErrTroveNotActive       = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: trove closed or does not exist")
	ErrInvalidAmount        = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: amount must be greater than zero")
	ErrNoSurplus            = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: no collateral available to claim")
	ErrNothingToCollect     = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: no interest to collect")
	ErrInvalidMaxFee        = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: max fee outside redemption fee bounds")
	ErrBootstrapPeriod      = nativecommon.NewError(nativecommon.ErrValidation, "troves engine: redemptions disabled during bootstrap period")
	ErrDebtLimit            = nativecommon.NewError(nativecommon.ErrInvariant, "troves engine: collateral debt limit reached")
	ErrTCRBelowMCR          = nativecommon.NewError(nativecommon.ErrInvariant, "troves engine: cannot redeem when TCR < MCR")
	ErrInsufficientBalance  = nativecommon.NewError(nativecommon.ErrInvariant, "troves engine: insufficient debt balance")
	ErrUnableToRedeem       = nativecommon.NewError(nativecommon.ErrInvariant, "troves engine: unable to redeem any amount")
	ErrFeeExceedsCollateral = nativecommon.NewError(nativecommon.ErrInvariant, "troves engine: fee would eat up all returned collateral")
	ErrFeeExceedsMax        = nativecommon.NewError(nativecommon.ErrInvariant, "troves engine: fee exceeded provided maximum")
	ErrUnderflow            = nativecommon.NewError(nativecommon.ErrArithmetic, "troves engine: balance underflow")
)

// State is the persistence surface the manager needs.
type State interface {
	GetLedger(collateral crypto.Address) (*Ledger, error)
	PutLedger(collateral crypto.Address, ledger *Ledger) error
	GetTrove(collateral, owner crypto.Address) (*Trove, error)
	PutTrove(collateral crypto.Address, trove *Trove) error
	GetRewardSnapshot(collateral, owner crypto.Address) (*RewardSnapshot, error)
	PutRewardSnapshot(collateral, owner crypto.Address, snap *RewardSnapshot) error
	GetTroveOwner(collateral crypto.Address, index uint64) (crypto.Address, error)
	PutTroveOwner(collateral crypto.Address, index uint64, owner crypto.Address) error
	DeleteTroveOwner(collateral crypto.Address, index uint64) error
	GetSurplus(collateral, owner crypto.Address) (*big.Int, error)
	PutSurplus(collateral, owner crypto.Address, amount *big.Int) error
}

type tokenLedger interface {
	Mint(token, account crypto.Address, amount *big.Int) error
	Burn(token, account crypto.Address, amount *big.Int) error
	Transfer(token, from, to crypto.Address, amount *big.Int) error
	BalanceOf(token, account crypto.Address) (*big.Int, error)
}

type priceSource interface {
	FetchPrice(token crypto.Address) (*big.Int, error)
}

type coreView interface {
	FeeReceiver() (crypto.Address, error)
	StartTime() (uint64, error)
	RequireOwner(caller crypto.Address) error
}

// SystemView reports the cross-collateral TCR maintained by the gateway.
type SystemView interface {
	GetTCR() (*big.Int, error)
}

// Manager is the ledger of all positions backed by one collateral token.
type Manager struct {
	collateral crypto.Address
	debtToken  crypto.Address
	defaults   Parameters
	account    crypto.Address

	state   State
	sorted  SortedTroves
	bank    tokenLedger
	oracle  priceSource
	core    coreView
	system  SystemView
	emitter events.Emitter
	now     uint64
}

// NewManager constructs the ledger for collateral. params seed the ledger on
// first Init; afterwards the persisted parameters win.
func NewManager(collateral crypto.Address, params Parameters) *Manager {
	return &Manager{
		collateral: collateral,
		defaults:   params.Clone(),
		account:    crypto.ModuleAddress(fmt.Sprintf("troves/%x", collateral.Bytes())),
		emitter:    events.NoopEmitter{},
	}
}

func (m *Manager) SetState(state State) {
	if m == nil {
		return
	}
	m.state = state
}

func (m *Manager) SetSorted(sorted SortedTroves) {
	if m == nil {
		return
	}
	m.sorted = sorted
}

func (m *Manager) SetBank(bank tokenLedger) {
	if m == nil {
		return
	}
	m.bank = bank
}

func (m *Manager) SetDebtToken(token crypto.Address) {
	if m == nil {
		return
	}
	m.debtToken = token
}

func (m *Manager) SetOracle(oracle priceSource) {
	if m == nil {
		return
	}
	m.oracle = oracle
}

func (m *Manager) SetAdmin(core coreView) {
	if m == nil {
		return
	}
	m.core = core
}

// SetSystemView wires the gateway used for the redemption TCR check.
func (m *Manager) SetSystemView(view SystemView) {
	if m == nil {
		return
	}
	m.system = view
}

func (m *Manager) SetEmitter(emitter events.Emitter) {
	if m == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	m.emitter = emitter
}

// SetBlockTime records the timestamp used for interest and fee decay.
func (m *Manager) SetBlockTime(ts uint64) {
	if m == nil {
		return
	}
	m.now = ts
}

// Collateral returns the collateral token address.
func (m *Manager) Collateral() crypto.Address { return m.collateral }

// Account is the module account holding the ledger's collateral.
func (m *Manager) Account() crypto.Address { return m.account }

// Sorted exposes the risk-ordered index.
func (m *Manager) Sorted() SortedTroves { return m.sorted }

// Init creates the ledger record when it does not exist yet.
func (m *Manager) Init() error {
	if m == nil || m.state == nil {
		return errNilState
	}
	existing, err := m.state.GetLedger(m.collateral)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if err := m.defaults.Validate(); err != nil {
		return err
	}
	return m.state.PutLedger(m.collateral, newLedger(m.defaults, m.now))
}

func (m *Manager) ready() error {
	if m == nil || m.state == nil {
		return errNilState
	}
	if m.sorted == nil || m.bank == nil || m.oracle == nil || m.core == nil {
		return errNilCollaborator
	}
	return nil
}

func (m *Manager) loadLedger() (*Ledger, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	l, err := m.state.GetLedger(m.collateral)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, errNotInitialised
	}
	l = l.Clone()
	l.normalize()
	return l, nil
}

func (m *Manager) storeLedger(l *Ledger) error {
	return m.state.PutLedger(m.collateral, l)
}

func (m *Manager) loadTrove(owner crypto.Address) (*Trove, error) {
	t, err := m.state.GetTrove(m.collateral, owner)
	if err != nil {
		return nil, err
	}
	if t == nil {
		t = &Trove{}
	} else {
		t = t.Clone()
	}
	t.Owner = owner
	t.normalize()
	return t, nil
}

func (m *Manager) storeTrove(t *Trove) error {
	return m.state.PutTrove(m.collateral, t)
}

func (m *Manager) loadSnapshot(owner crypto.Address) (*RewardSnapshot, error) {
	snap, err := m.state.GetRewardSnapshot(m.collateral, owner)
	if err != nil {
		return nil, err
	}
	out := &RewardSnapshot{Collateral: big.NewInt(0), Debt: big.NewInt(0)}
	if snap != nil {
		out.Collateral = nativecommon.Clone(snap.Collateral)
		out.Debt = nativecommon.Clone(snap.Debt)
	}
	return out, nil
}

func (m *Manager) emitTroveUpdated(t *Trove, op string) {
	m.emitter.Emit(events.TroveUpdated{
		Collateral: m.collateral,
		Borrower:   t.Owner,
		Debt:       nativecommon.Clone(t.Debt),
		Coll:       nativecommon.Clone(t.Coll),
		Stake:      nativecommon.Clone(t.Stake),
		Operation:  op,
	})
}

// sub subtracts b from a in place, refusing to go negative.
func sub(a, b *big.Int) error {
	if a.Cmp(b) < 0 {
		return ErrUnderflow
	}
	a.Sub(a, b)
	return nil
}

// sendCollateral lowers active collateral and pays amount out of the ledger.
func (m *Manager) sendCollateral(l *Ledger, to crypto.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := sub(l.ActiveCollateral, amount); err != nil {
		return err
	}
	return m.bank.Transfer(m.collateral, m.account, to, amount)
}
