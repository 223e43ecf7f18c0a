package rewards

import (
	"math/big"

	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

// WeekSeconds is the emission period length.
const WeekSeconds uint64 = 7 * 24 * 60 * 60

var (
	errNilState         = nativecommon.NewError(nativecommon.ErrValidation, "reward vault: state not configured")
	errNilBank          = nativecommon.NewError(nativecommon.ErrValidation, "reward vault: bank not configured")
	errUnknownReceiver  = nativecommon.NewError(nativecommon.ErrValidation, "reward vault: receiver not registered")
	ErrAllocationExceed = nativecommon.NewError(nativecommon.ErrInvariant, "reward vault: transfer exceeds allocation")
)

// Allocation tracks the tokens a receiver may still hand out.
type Allocation struct {
	Allocated *big.Int
	LastWeek  uint64
}

type vaultState interface {
	GetAllocation(receiver string) (*Allocation, error)
	PutAllocation(receiver string, alloc *Allocation) error
}

type minter interface {
	Mint(token, account crypto.Address, amount *big.Int) error
}

// Vault hands out a fixed weekly emission to registered receivers such as the
// stability pool. Receivers pull their allocation once per week and transfer
// from it when users claim.
type Vault struct {
	state     vaultState
	bank      minter
	token     crypto.Address
	weekly    map[string]*big.Int
	startTime uint64
	now       uint64
}

func NewVault(token crypto.Address, startTime uint64) *Vault {
	return &Vault{token: token, startTime: startTime, weekly: make(map[string]*big.Int)}
}

func (v *Vault) SetState(state vaultState) {
	if v == nil {
		return
	}
	v.state = state
}

func (v *Vault) SetBank(bank minter) {
	if v == nil {
		return
	}
	v.bank = bank
}

func (v *Vault) SetBlockTime(ts uint64) {
	if v == nil {
		return
	}
	v.now = ts
}

// SetWeeklyEmission registers receiver with the amount it earns per week.
func (v *Vault) SetWeeklyEmission(receiver string, amount *big.Int) {
	if v == nil {
		return
	}
	v.weekly[receiver] = nativecommon.Clone(amount)
}

// StartTime is the timestamp week zero begins at.
func (v *Vault) StartTime() uint64 { return v.startTime }

// Token is the emission token address.
func (v *Vault) Token() crypto.Address { return v.token }

// Week returns the number of whole weeks since the vault started.
func (v *Vault) Week() uint64 {
	if v == nil || v.now <= v.startTime {
		return 0
	}
	return (v.now - v.startTime) / WeekSeconds
}

// AllocateNewEmissions credits the weeks elapsed since the receiver's last
// allocation and returns the newly allocated amount.
func (v *Vault) AllocateNewEmissions(receiver string) (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	weekly, ok := v.weekly[receiver]
	if !ok {
		return nil, errUnknownReceiver
	}
	alloc, err := v.load(receiver)
	if err != nil {
		return nil, err
	}
	week := v.Week()
	if week <= alloc.LastWeek {
		return big.NewInt(0), nil
	}
	amount := new(big.Int).Mul(weekly, new(big.Int).SetUint64(week-alloc.LastWeek))
	alloc.Allocated.Add(alloc.Allocated, amount)
	alloc.LastWeek = week
	if err := v.state.PutAllocation(receiver, alloc); err != nil {
		return nil, err
	}
	return amount, nil
}

// TransferAllocatedTokens pays amount to account out of receiver's allocation.
func (v *Vault) TransferAllocatedTokens(receiver string, account crypto.Address, amount *big.Int) error {
	if v == nil || v.state == nil {
		return errNilState
	}
	if v.bank == nil {
		return errNilBank
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	alloc, err := v.load(receiver)
	if err != nil {
		return err
	}
	if alloc.Allocated.Cmp(amount) < 0 {
		return ErrAllocationExceed
	}
	alloc.Allocated.Sub(alloc.Allocated, amount)
	if err := v.state.PutAllocation(receiver, alloc); err != nil {
		return err
	}
	return v.bank.Mint(v.token, account, amount)
}

// Allocated returns the unspent allocation of receiver.
func (v *Vault) Allocated(receiver string) (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	alloc, err := v.load(receiver)
	if err != nil {
		return nil, err
	}
	return alloc.Allocated, nil
}

func (v *Vault) load(receiver string) (*Allocation, error) {
	alloc, err := v.state.GetAllocation(receiver)
	if err != nil {
		return nil, err
	}
	if alloc == nil {
		return &Allocation{Allocated: big.NewInt(0)}, nil
	}
	alloc.Allocated = nativecommon.Clone(alloc.Allocated)
	return alloc, nil
}
