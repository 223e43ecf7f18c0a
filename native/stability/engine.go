package stability

import (
	"math/big"

	"cdpcore/core/events"
	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

// ModuleName is the pause key guarding deposits.
const ModuleName = "stability"

var (
	errNilState            = nativecommon.NewError(nativecommon.ErrValidation, "stability engine: state not configured")
	errNilCollaborator     = nativecommon.NewError(nativecommon.ErrValidation, "stability engine: collaborator not configured")
	errSlotOutOfRange      = nativecommon.NewError(nativecommon.ErrValidation, "stability engine: collateral index out of range")
	errOffsetExceedsPool   = nativecommon.NewError(nativecommon.ErrInvariant, "stability engine: offset exceeds total deposits")
	errZeroProduct         = nativecommon.NewError(nativecommon.ErrArithmetic, "stability engine: product underflowed to zero")
	ErrInvalidAmount       = nativecommon.NewError(nativecommon.ErrValidation, "stability engine: amount must be non-zero")
	ErrNoDeposit           = nativecommon.NewError(nativecommon.ErrValidation, "stability engine: user must have a non-zero deposit")
	ErrSameBlockWithdraw   = nativecommon.NewError(nativecommon.ErrValidation, "stability engine: deposit and withdraw in the same block")
	ErrCollateralNotListed = nativecommon.NewError(nativecommon.ErrValidation, "stability engine: collateral not enabled")
	ErrCollateralSunset    = nativecommon.NewError(nativecommon.ErrValidation, "stability engine: collateral is sunsetting")
	ErrTooManyCollaterals  = nativecommon.NewError(nativecommon.ErrInvariant, "stability engine: collateral arena is full")
	ErrUnderflow           = nativecommon.NewError(nativecommon.ErrArithmetic, "stability engine: balance underflow")
)

// State persists the pool, depositors and the per-(epoch, scale) sums.
type State interface {
	GetPool() (*Pool, error)
	PutPool(pool *Pool) error
	GetDepositor(account crypto.Address) (*Depositor, error)
	PutDepositor(account crypto.Address, d *Depositor) error
	GetEpochScaleSum(epoch, scale, index uint64) (*big.Int, error)
	PutEpochScaleSum(epoch, scale, index uint64, sum *big.Int) error
	GetEpochScaleG(epoch, scale uint64) (*big.Int, error)
	PutEpochScaleG(epoch, scale uint64, g *big.Int) error
}

type tokenLedger interface {
	Transfer(token, from, to crypto.Address, amount *big.Int) error
}

type rewardVault interface {
	AllocateNewEmissions(receiver string) (*big.Int, error)
	TransferAllocatedTokens(receiver string, account crypto.Address, amount *big.Int) error
	Week() uint64
	StartTime() uint64
}

type coreView interface {
	nativecommon.PauseView
	RequireOwner(caller crypto.Address) error
}

// Engine is the stability pool.
type Engine struct {
	debtToken crypto.Address
	account   crypto.Address

	state   State
	bank    tokenLedger
	vault   rewardVault
	core    coreView
	emitter events.Emitter
	now     uint64
}

// NewEngine returns a pool holding deposits of debtToken.
func NewEngine(debtToken crypto.Address) *Engine {
	return &Engine{
		debtToken: debtToken,
		account:   crypto.ModuleAddress("stability-pool"),
		emitter:   events.NoopEmitter{},
	}
}

func (e *Engine) SetState(state State) {
	if e == nil {
		return
	}
	e.state = state
}

func (e *Engine) SetBank(bank tokenLedger) {
	if e == nil {
		return
	}
	e.bank = bank
}

func (e *Engine) SetVault(vault rewardVault) {
	if e == nil {
		return
	}
	e.vault = vault
}

func (e *Engine) SetAdmin(core coreView) {
	if e == nil {
		return
	}
	e.core = core
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetBlockTime(ts uint64) {
	if e == nil {
		return
	}
	e.now = ts
}

// Account is the module account holding deposits and collateral gains.
func (e *Engine) Account() crypto.Address { return e.account }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.bank == nil || e.core == nil {
		return errNilCollaborator
	}
	return nil
}

func (e *Engine) loadPool() (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, err := e.state.GetPool()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return newPool(), nil
	}
	p = p.Clone()
	p.normalize()
	return p, nil
}

func (e *Engine) storePool(p *Pool) error {
	return e.state.PutPool(p)
}

// loadDepositor returns account's record sized to the arena.
func (e *Engine) loadDepositor(p *Pool, account crypto.Address) (*Depositor, error) {
	d, err := e.state.GetDepositor(account)
	if err != nil {
		return nil, err
	}
	if d == nil {
		d = &Depositor{}
	} else {
		d = d.Clone()
	}
	d.normalize(len(p.Slots))
	return d, nil
}

func (e *Engine) sum(epoch, scale uint64, index int) (*big.Int, error) {
	v, err := e.state.GetEpochScaleSum(epoch, scale, uint64(index))
	if err != nil {
		return nil, err
	}
	return nativecommon.Clone(v), nil
}

func (e *Engine) g(epoch, scale uint64) (*big.Int, error) {
	v, err := e.state.GetEpochScaleG(epoch, scale)
	if err != nil {
		return nil, err
	}
	return nativecommon.Clone(v), nil
}

// slotCurrent reports whether the depositor's snapshot of slot i refers to
// the collateral currently assigned to it.
func slotCurrent(p *Pool, d *Depositor, i int) bool {
	return d.Generations[i] == p.Slots[i].Generation
}

func forfeitReassigned(p *Pool, d *Depositor) {
	for i := range p.Slots {
		if !slotCurrent(p, d, i) {
			d.Gains[i] = big.NewInt(0)
		}
	}
}

// compoundedDeposit returns amount*P/P_snapshot, rescaled across at most one
// scale change. Deposits from an earlier epoch were wiped out.
func compoundedDeposit(p *Pool, d *Depositor) *big.Int {
	if d.Amount.Sign() == 0 || d.P.Sign() == 0 {
		return big.NewInt(0)
	}
	if d.Epoch < p.Epoch {
		return big.NewInt(0)
	}
	var out *big.Int
	switch p.Scale - d.Scale {
	case 0:
		out = nativecommon.MulDiv(d.Amount, p.P, d.P)
	case 1:
		out = nativecommon.MulDiv(d.Amount, p.P, d.P)
		out.Quo(out, ScaleFactor)
	default:
		return big.NewInt(0)
	}
	if out.Cmp(new(big.Int).Quo(d.Amount, ScaleFactor)) < 0 {
		return big.NewInt(0)
	}
	return out
}

// collateralGains computes the gains accrued since d's snapshot, per slot,
// without touching stored gains. The flag reports whether any slot has a
// non-zero sum at the snapshot's (epoch, scale).
func (e *Engine) collateralGains(p *Pool, d *Depositor) ([]*big.Int, bool, error) {
	out := make([]*big.Int, len(p.Slots))
	for i := range out {
		out[i] = big.NewInt(0)
	}
	if d.Amount.Sign() == 0 || d.P.Sign() == 0 {
		return out, false, nil
	}
	hasGains := false
	for i := range p.Slots {
		if !slotCurrent(p, d, i) {
			continue
		}
		s, err := e.sum(d.Epoch, d.Scale, i)
		if err != nil {
			return nil, false, err
		}
		if s.Sign() == 0 {
			continue
		}
		hasGains = true
		next, err := e.sum(d.Epoch, d.Scale+1, i)
		if err != nil {
			return nil, false, err
		}
		first := new(big.Int).Sub(s, d.Sums[i])
		if first.Sign() < 0 {
			first.SetInt64(0)
		}
		portion := first.Add(first, next.Quo(next, ScaleFactor))
		gain := new(big.Int).Mul(d.Amount, portion)
		gain.Quo(gain, d.P)
		out[i] = gain.Quo(gain, nativecommon.DecimalPrecision)
	}
	return out, hasGains, nil
}

// rewardGain is the emission share accrued since d's snapshot.
func (e *Engine) rewardGain(d *Depositor) (*big.Int, error) {
	if d.Amount.Sign() == 0 || d.P.Sign() == 0 {
		return big.NewInt(0), nil
	}
	g, err := e.g(d.Epoch, d.Scale)
	if err != nil {
		return nil, err
	}
	next, err := e.g(d.Epoch, d.Scale+1)
	if err != nil {
		return nil, err
	}
	first := new(big.Int).Sub(g, d.G)
	if first.Sign() < 0 {
		first.SetInt64(0)
	}
	portion := first.Add(first, next.Quo(next, ScaleFactor))
	gain := new(big.Int).Mul(d.Amount, portion)
	gain.Quo(gain, d.P)
	return gain.Quo(gain, nativecommon.DecimalPrecision), nil
}

// settle books d's collateral gains and emission rewards and returns the
// compounded deposit. The caller must refresh the snapshot afterwards. Gains
// held in a slot that was reassigned since the snapshot are forfeited, and the
// slot accrues again only from the next snapshot.
func (e *Engine) settle(p *Pool, d *Depositor) (*big.Int, bool, error) {
	forfeitReassigned(p, d)
	gains, hasGains, err := e.collateralGains(p, d)
	if err != nil {
		return nil, false, err
	}
	for i, gain := range gains {
		d.Gains[i].Add(d.Gains[i], gain)
	}
	reward, err := e.rewardGain(d)
	if err != nil {
		return nil, false, err
	}
	d.PendingReward.Add(d.PendingReward, reward)
	return compoundedDeposit(p, d), hasGains, nil
}

// updateSnapshots records the current accumulators against a deposit of
// value, or clears them when the deposit is empty.
func (e *Engine) updateSnapshots(p *Pool, account crypto.Address, d *Depositor, value *big.Int) error {
	if value.Sign() == 0 {
		d.P = big.NewInt(0)
		d.G = big.NewInt(0)
		d.Scale = 0
		d.Epoch = 0
		for i := range d.Sums {
			d.Sums[i] = big.NewInt(0)
			d.Generations[i] = p.Slots[i].Generation
		}
	} else {
		g, err := e.g(p.Epoch, p.Scale)
		if err != nil {
			return err
		}
		d.P = new(big.Int).Set(p.P)
		d.G = g
		d.Scale = p.Scale
		d.Epoch = p.Epoch
		for i := range p.Slots {
			s, err := e.sum(p.Epoch, p.Scale, i)
			if err != nil {
				return err
			}
			d.Sums[i] = s
			d.Generations[i] = p.Slots[i].Generation
		}
	}
	e.emitter.Emit(events.StabilityDepositUpdated{
		Depositor: account,
		Deposit:   new(big.Int).Set(value),
		P:         new(big.Int).Set(d.P),
		G:         new(big.Int).Set(d.G),
	})
	return nil
}
