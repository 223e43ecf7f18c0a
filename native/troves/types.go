package troves

import (
	"math/big"

	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

// Status is the lifecycle stage of a position.
type Status uint8

const (
	StatusNonExistent Status = iota
	StatusActive
	StatusClosedByOwner
	StatusClosedByLiquidation
	StatusClosedByRedemption
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusClosedByOwner:
		return "closedByOwner"
	case StatusClosedByLiquidation:
		return "closedByLiquidation"
	case StatusClosedByRedemption:
		return "closedByRedemption"
	default:
		return "nonExistent"
	}
}

// Trove is a single borrower position. Debt is stored as of
// ActiveInterestIndex and grows lazily with the ledger index.
type Trove struct {
	Owner               crypto.Address
	Debt                *big.Int
	Coll                *big.Int
	Stake               *big.Int
	Status              Status
	ArrayIndex          uint64
	ActiveInterestIndex *big.Int
}

// Clone returns a deep copy of the trove.
func (t *Trove) Clone() *Trove {
	if t == nil {
		return nil
	}
	out := *t
	out.Debt = nativecommon.Clone(t.Debt)
	out.Coll = nativecommon.Clone(t.Coll)
	out.Stake = nativecommon.Clone(t.Stake)
	out.ActiveInterestIndex = nativecommon.Clone(t.ActiveInterestIndex)
	return &out
}

// RewardSnapshot holds the redistribution accumulators observed at the last sync.
type RewardSnapshot struct {
	Collateral *big.Int
	Debt       *big.Int
}

// Ledger is the per-collateral aggregate record.
type Ledger struct {
	Params Parameters

	ActiveCollateral    *big.Int
	ActiveDebt          *big.Int
	DefaultedCollateral *big.Int
	DefaultedDebt       *big.Int

	TotalStakes             *big.Int
	TotalStakesSnapshot     *big.Int
	TotalCollateralSnapshot *big.Int

	LCollateral         *big.Int
	LDebt               *big.Int
	LastCollateralError *big.Int
	LastDebtError       *big.Int

	InterestRate          *big.Int
	ActiveInterestIndex   *big.Int
	LastActiveIndexUpdate uint64
	InterestPayable       *big.Int

	BaseRate             *big.Int
	LastFeeOperationTime uint64

	Sunsetting bool
	OwnerCount uint64
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	out := *l
	out.Params = l.Params.Clone()
	for _, field := range []struct {
		dst **big.Int
		src *big.Int
	}{
		{&out.ActiveCollateral, l.ActiveCollateral},
		{&out.ActiveDebt, l.ActiveDebt},
		{&out.DefaultedCollateral, l.DefaultedCollateral},
		{&out.DefaultedDebt, l.DefaultedDebt},
		{&out.TotalStakes, l.TotalStakes},
		{&out.TotalStakesSnapshot, l.TotalStakesSnapshot},
		{&out.TotalCollateralSnapshot, l.TotalCollateralSnapshot},
		{&out.LCollateral, l.LCollateral},
		{&out.LDebt, l.LDebt},
		{&out.LastCollateralError, l.LastCollateralError},
		{&out.LastDebtError, l.LastDebtError},
		{&out.InterestRate, l.InterestRate},
		{&out.ActiveInterestIndex, l.ActiveInterestIndex},
		{&out.InterestPayable, l.InterestPayable},
		{&out.BaseRate, l.BaseRate},
	} {
		*field.dst = nativecommon.Clone(field.src)
	}
	return &out
}

func newLedger(params Parameters, now uint64) *Ledger {
	l := &Ledger{
		Params:                params.Clone(),
		InterestRate:          interestRatePerSecond(params.InterestRateBps),
		ActiveInterestIndex:   new(big.Int).Set(nativecommon.Ray),
		LastActiveIndexUpdate: now,
		LastFeeOperationTime:  now,
	}
	l.normalize()
	return l
}

// normalize replaces nil amounts with zero so arithmetic never dereferences nil.
func (l *Ledger) normalize() {
	for _, f := range []**big.Int{
		&l.ActiveCollateral, &l.ActiveDebt, &l.DefaultedCollateral, &l.DefaultedDebt,
		&l.TotalStakes, &l.TotalStakesSnapshot, &l.TotalCollateralSnapshot,
		&l.LCollateral, &l.LDebt, &l.LastCollateralError, &l.LastDebtError,
		&l.InterestRate, &l.InterestPayable, &l.BaseRate,
	} {
		if *f == nil {
			*f = big.NewInt(0)
		}
	}
	if l.ActiveInterestIndex == nil || l.ActiveInterestIndex.Sign() == 0 {
		l.ActiveInterestIndex = new(big.Int).Set(nativecommon.Ray)
	}
	l.Params.normalize()
}

func (t *Trove) normalize() {
	for _, f := range []**big.Int{&t.Debt, &t.Coll, &t.Stake, &t.ActiveInterestIndex} {
		if *f == nil {
			*f = big.NewInt(0)
		}
	}
}

// SystemBalances is the ledger-wide view consumed by the gateway.
type SystemBalances struct {
	Collateral *big.Int
	Debt       *big.Int
	Price      *big.Int
}

// EntireDebtAndColl includes accrued interest and pending redistribution rewards.
type EntireDebtAndColl struct {
	Debt              *big.Int
	Coll              *big.Int
	PendingDebtReward *big.Int
	PendingCollReward *big.Int
}
