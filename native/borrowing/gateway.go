package borrowing

import (
	"math/big"

	"cdpcore/core/events"
	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
	"cdpcore/native/troves"
)

// ModuleName is the pause key guarding opens, deposits and debt increases.
const ModuleName = "borrowing"

var (
	errNilState                = nativecommon.NewError(nativecommon.ErrValidation, "borrowing gateway: state not configured")
	errNilCollaborator         = nativecommon.NewError(nativecommon.ErrValidation, "borrowing gateway: collaborator not configured")
	errManagerUnavailable      = nativecommon.NewError(nativecommon.ErrValidation, "borrowing gateway: listed ledger has no live manager")
	ErrNotDelegate             = nativecommon.NewError(nativecommon.ErrValidation, "borrowing gateway: caller is not the account or an approved delegate")
	ErrTroveManagerNotListed   = nativecommon.NewError(nativecommon.ErrValidation, "borrowing gateway: collateral not configured")
	ErrAlreadyListed           = nativecommon.NewError(nativecommon.ErrValidation, "borrowing gateway: collateral already configured")
	ErrCannotRemove            = nativecommon.NewError(nativecommon.ErrValidation, "borrowing gateway: ledger must be sunsetting with zero debt")
	ErrInvalidMaxFee           = nativecommon.NewError(nativecommon.ErrValidation, "borrowing gateway: max fee percentage out of range")
	ErrZeroAdjustment          = nativecommon.NewError(nativecommon.ErrValidation, "borrowing gateway: there must be either a collateral change or a debt change")
	ErrZeroDebtChange          = nativecommon.NewError(nativecommon.ErrValidation, "borrowing gateway: debt increase requires non-zero debt change")
	ErrCollDepositAndWithdraw  = nativecommon.NewError(nativecommon.ErrValidation, "borrowing gateway: cannot withdraw and add collateral")
	ErrTroveNotActive          = nativecommon.NewError(nativecommon.ErrValidation, "borrowing gateway: trove does not exist or is closed")
	ErrRecoveryMode            = nativecommon.NewError(nativecommon.ErrInvariant, "borrowing gateway: operation not permitted during recovery mode")
	ErrNetDebtBelowMin         = nativecommon.NewError(nativecommon.ErrInvariant, "borrowing gateway: net debt must be greater than minimum")
	ErrICRBelowMCR             = nativecommon.NewError(nativecommon.ErrInvariant, "borrowing gateway: an operation that would result in ICR < MCR is not permitted")
	ErrICRBelowCCR             = nativecommon.NewError(nativecommon.ErrInvariant, "borrowing gateway: operation must leave trove with ICR >= CCR")
	ErrTCRBelowCCR             = nativecommon.NewError(nativecommon.ErrInvariant, "borrowing gateway: an operation that would result in TCR < CCR is not permitted")
	ErrICRDecreased            = nativecommon.NewError(nativecommon.ErrInvariant, "borrowing gateway: cannot decrease your trove's ICR in recovery mode")
	ErrCollWithdrawalRecovery  = nativecommon.NewError(nativecommon.ErrInvariant, "borrowing gateway: collateral withdrawal not permitted in recovery mode")
	ErrCollWithdrawalExceeds   = nativecommon.NewError(nativecommon.ErrInvariant, "borrowing gateway: collateral withdrawal exceeds trove collateral")
	ErrRepaymentExceedsNetDebt = nativecommon.NewError(nativecommon.ErrInvariant, "borrowing gateway: amount repaid must not be larger than the trove's debt")
)

// TroveManager is the slice of a collateral ledger the gateway drives.
type TroveManager interface {
	Collateral() crypto.Address
	Account() crypto.Address
	FetchPrice() (*big.Int, error)
	Params() (troves.Parameters, error)
	Sunsetting() (bool, error)
	GetTroveStatus(owner crypto.Address) (troves.Status, error)
	GetEntireSystemBalances() (*troves.SystemBalances, error)
	GetEntireSystemDebt() (*big.Int, error)
	DecayBaseRateAndGetBorrowingFee(debt *big.Int) (*big.Int, error)
	ApplyPendingRewards(owner crypto.Address) (*big.Int, *big.Int, error)
	OpenTrove(borrower crypto.Address, coll, compositeDebt, nicr *big.Int, upperHint, lowerHint crypto.Address) (*big.Int, uint64, error)
	UpdateTroveFromAdjustment(adj troves.Adjustment) (*big.Int, *big.Int, *big.Int, error)
	CloseTrove(borrower, receiver crypto.Address, coll, debt *big.Int) error
}

// State persists delegate approvals and the set of ledgers counted in TCR.
type State interface {
	GetDelegateApproval(account, delegate crypto.Address) (bool, error)
	PutDelegateApproval(account, delegate crypto.Address, approved bool) error
	GetTroveManagers() ([]crypto.Address, error)
	PutTroveManagers(collaterals []crypto.Address) error
}

type tokenLedger interface {
	Mint(token, account crypto.Address, amount *big.Int) error
	Transfer(token, from, to crypto.Address, amount *big.Int) error
	MintWithGasCompensation(token, account crypto.Address, amount, gasComp *big.Int) error
	BurnWithGasCompensation(token, account crypto.Address, amount, gasComp *big.Int) error
}

type coreView interface {
	nativecommon.PauseView
	FeeReceiver() (crypto.Address, error)
	RequireOwner(caller crypto.Address) error
}

// Gateway is the validated entry point for every position change. It owns the
// system-wide checks so the ledgers stay low-level.
type Gateway struct {
	debtToken crypto.Address
	managers  map[string]TroveManager

	state   State
	bank    tokenLedger
	core    coreView
	emitter events.Emitter
}

func NewGateway(debtToken crypto.Address) *Gateway {
	return &Gateway{
		debtToken: debtToken,
		managers:  make(map[string]TroveManager),
		emitter:   events.NoopEmitter{},
	}
}

func (g *Gateway) SetState(state State) {
	if g == nil {
		return
	}
	g.state = state
}

func (g *Gateway) SetBank(bank tokenLedger) {
	if g == nil {
		return
	}
	g.bank = bank
}

func (g *Gateway) SetAdmin(core coreView) {
	if g == nil {
		return
	}
	g.core = core
}

func (g *Gateway) SetEmitter(emitter events.Emitter) {
	if g == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	g.emitter = emitter
}

// Register attaches the live manager for tm's collateral. It does not list
// the ledger; see ConfigureCollateral.
func (g *Gateway) Register(tm TroveManager) {
	if g == nil || tm == nil {
		return
	}
	g.managers[tm.Collateral().Key()] = tm
}

func (g *Gateway) ready() error {
	if g == nil || g.state == nil {
		return errNilState
	}
	if g.bank == nil || g.core == nil {
		return errNilCollaborator
	}
	return nil
}

func (g *Gateway) listed() ([]crypto.Address, error) {
	list, err := g.state.GetTroveManagers()
	if err != nil {
		return nil, err
	}
	return list, nil
}

func indexOf(list []crypto.Address, collateral crypto.Address) int {
	for i, c := range list {
		if c.Equal(collateral) {
			return i
		}
	}
	return -1
}

// manager resolves a listed ledger.
func (g *Gateway) manager(collateral crypto.Address) (TroveManager, error) {
	list, err := g.listed()
	if err != nil {
		return nil, err
	}
	if indexOf(list, collateral) < 0 {
		return nil, ErrTroveManagerNotListed
	}
	tm, ok := g.managers[collateral.Key()]
	if !ok {
		return nil, errManagerUnavailable
	}
	return tm, nil
}

// ConfigureCollateral lists tm so it can be borrowed against and counts in the
// system TCR. Owner only.
func (g *Gateway) ConfigureCollateral(caller crypto.Address, tm TroveManager) error {
	if err := g.ready(); err != nil {
		return err
	}
	if tm == nil {
		return errNilCollaborator
	}
	if err := g.core.RequireOwner(caller); err != nil {
		return err
	}
	list, err := g.listed()
	if err != nil {
		return err
	}
	collateral := tm.Collateral()
	if indexOf(list, collateral) >= 0 {
		return ErrAlreadyListed
	}
	params, err := tm.Params()
	if err != nil {
		return err
	}
	if err := g.state.PutTroveManagers(append(list, collateral)); err != nil {
		return err
	}
	g.Register(tm)
	g.emitter.Emit(events.CollateralConfigured{Collateral: collateral, MCR: params.MCR})
	return nil
}

// RemoveTroveManager drops a sunset ledger whose debt is fully repaid from the
// TCR set. Anyone may call it once the conditions hold.
func (g *Gateway) RemoveTroveManager(collateral crypto.Address) error {
	if err := g.ready(); err != nil {
		return err
	}
	tm, err := g.manager(collateral)
	if err != nil {
		return err
	}
	sunsetting, err := tm.Sunsetting()
	if err != nil {
		return err
	}
	debt, err := tm.GetEntireSystemDebt()
	if err != nil {
		return err
	}
	if !sunsetting || debt.Sign() != 0 {
		return ErrCannotRemove
	}
	list, err := g.listed()
	if err != nil {
		return err
	}
	idx := indexOf(list, collateral)
	list = append(list[:idx], list[idx+1:]...)
	if err := g.state.PutTroveManagers(list); err != nil {
		return err
	}
	g.emitter.Emit(events.TroveManagerRemoved{Collateral: collateral})
	return nil
}

// TroveManagers returns the listed collaterals in listing order.
func (g *Gateway) TroveManagers() ([]crypto.Address, error) {
	if g == nil || g.state == nil {
		return nil, errNilState
	}
	return g.listed()
}

// SetDelegateApproval lets delegate act on caller's positions.
func (g *Gateway) SetDelegateApproval(caller, delegate crypto.Address, approved bool) error {
	if g == nil || g.state == nil {
		return errNilState
	}
	if err := g.state.PutDelegateApproval(caller, delegate, approved); err != nil {
		return err
	}
	g.emitter.Emit(events.DelegateApproval{Account: caller, Delegate: delegate, Approved: approved})
	return nil
}

func (g *Gateway) IsApprovedDelegate(account, delegate crypto.Address) (bool, error) {
	if g == nil || g.state == nil {
		return false, errNilState
	}
	return g.state.GetDelegateApproval(account, delegate)
}

func (g *Gateway) requireCallerOrDelegate(caller, account crypto.Address) error {
	if caller.Equal(account) {
		return nil
	}
	ok, err := g.state.GetDelegateApproval(account, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotDelegate
	}
	return nil
}

// GetGlobalSystemBalances returns the priced collateral (sum of coll*price,
// 36 decimals) and the debt of every listed ledger.
func (g *Gateway) GetGlobalSystemBalances() (*big.Int, *big.Int, error) {
	if g == nil || g.state == nil {
		return nil, nil, errNilState
	}
	list, err := g.listed()
	if err != nil {
		return nil, nil, err
	}
	priced := big.NewInt(0)
	debt := big.NewInt(0)
	for _, collateral := range list {
		tm, ok := g.managers[collateral.Key()]
		if !ok {
			return nil, nil, errManagerUnavailable
		}
		b, err := tm.GetEntireSystemBalances()
		if err != nil {
			return nil, nil, err
		}
		priced.Add(priced, new(big.Int).Mul(b.Collateral, b.Price))
		debt.Add(debt, b.Debt)
	}
	return priced, debt, nil
}

// GetTCR returns the system-wide total collateral ratio.
func (g *Gateway) GetTCR() (*big.Int, error) {
	priced, debt, err := g.GetGlobalSystemBalances()
	if err != nil {
		return nil, err
	}
	return nativecommon.ComputeCR(priced, debt, big.NewInt(1)), nil
}

// CheckRecoveryMode reports whether tcr is below CCR.
func CheckRecoveryMode(tcr *big.Int) bool {
	return tcr.Cmp(troves.CCR) < 0
}

// IsRecoveryMode evaluates CheckRecoveryMode at the current system TCR.
func (g *Gateway) IsRecoveryMode() (bool, error) {
	tcr, err := g.GetTCR()
	if err != nil {
		return false, err
	}
	return CheckRecoveryMode(tcr), nil
}
