package stability

import (
	"math/big"

	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

const (
	// MaxCollaterals bounds the number of collateral slots.
	MaxCollaterals = 256
	// SunsetDuration is how long a sunset slot stays reserved before reuse.
	SunsetDuration uint64 = 180 * 24 * 60 * 60
	// RewardDuration is the period each weekly allocation vests over.
	RewardDuration uint64 = 7 * 24 * 60 * 60
	// EmissionID names the pool's receiver slot in the reward vault.
	EmissionID = "stability-pool"
)

var (
	// ScaleFactor is the rescale applied to P when it would drop below 1e9.
	ScaleFactor = big.NewInt(1_000_000_000)
)

// Slot is one entry of the fixed collateral arena. Generation changes each
// time the slot is handed to a new collateral.
type Slot struct {
	Collateral crypto.Address
	Generation uint64
	Sunset     bool
}

// SunsetEntry queues a sunset slot until Expiry.
type SunsetEntry struct {
	Index  uint64
	Expiry uint64
}

// Pool holds the global compounding state.
type Pool struct {
	TotalDeposits *big.Int
	P             *big.Int
	Scale         uint64
	Epoch         uint64

	LastRewardError      *big.Int
	LastDebtLossError    *big.Int
	LastCollateralErrors []*big.Int

	RewardRate   *big.Int
	LastUpdate   uint64
	PeriodFinish uint64

	Slots       []Slot
	SunsetQueue []SunsetEntry
}

// Depositor is a single account's deposit and the accumulators observed at
// its last snapshot. Slot-indexed slices grow with the arena.
type Depositor struct {
	Amount    *big.Int
	Timestamp uint64

	P     *big.Int
	G     *big.Int
	Scale uint64
	Epoch uint64

	Sums        []*big.Int
	Gains       []*big.Int
	Generations []uint64

	PendingReward *big.Int
}

func newPool() *Pool {
	p := &Pool{P: new(big.Int).Set(nativecommon.DecimalPrecision)}
	p.normalize()
	return p
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	out := *p
	out.TotalDeposits = nativecommon.Clone(p.TotalDeposits)
	out.P = nativecommon.Clone(p.P)
	out.LastRewardError = nativecommon.Clone(p.LastRewardError)
	out.LastDebtLossError = nativecommon.Clone(p.LastDebtLossError)
	out.RewardRate = nativecommon.Clone(p.RewardRate)
	out.LastCollateralErrors = cloneAmounts(p.LastCollateralErrors)
	out.Slots = append([]Slot(nil), p.Slots...)
	out.SunsetQueue = append([]SunsetEntry(nil), p.SunsetQueue...)
	return &out
}

func (p *Pool) normalize() {
	for _, f := range []**big.Int{&p.TotalDeposits, &p.LastRewardError, &p.LastDebtLossError, &p.RewardRate} {
		if *f == nil {
			*f = big.NewInt(0)
		}
	}
	if p.P == nil || p.P.Sign() == 0 {
		p.P = new(big.Int).Set(nativecommon.DecimalPrecision)
	}
	for len(p.LastCollateralErrors) < len(p.Slots) {
		p.LastCollateralErrors = append(p.LastCollateralErrors, big.NewInt(0))
	}
	for i, v := range p.LastCollateralErrors {
		if v == nil {
			p.LastCollateralErrors[i] = big.NewInt(0)
		}
	}
}

// indexOf returns the enrolled (non-sunset) slot of collateral.
func (p *Pool) indexOf(collateral crypto.Address) (int, bool) {
	for i, slot := range p.Slots {
		if !slot.Sunset && slot.Collateral.Equal(collateral) {
			return i, true
		}
	}
	return 0, false
}

// Clone returns a deep copy of the depositor record.
func (d *Depositor) Clone() *Depositor {
	if d == nil {
		return nil
	}
	out := *d
	out.Amount = nativecommon.Clone(d.Amount)
	out.P = nativecommon.Clone(d.P)
	out.G = nativecommon.Clone(d.G)
	out.PendingReward = nativecommon.Clone(d.PendingReward)
	out.Sums = cloneAmounts(d.Sums)
	out.Gains = cloneAmounts(d.Gains)
	out.Generations = append([]uint64(nil), d.Generations...)
	return &out
}

// normalize sizes the slot slices to n and fills nil amounts.
func (d *Depositor) normalize(n int) {
	for _, f := range []**big.Int{&d.Amount, &d.P, &d.G, &d.PendingReward} {
		if *f == nil {
			*f = big.NewInt(0)
		}
	}
	for len(d.Sums) < n {
		d.Sums = append(d.Sums, big.NewInt(0))
	}
	for len(d.Gains) < n {
		d.Gains = append(d.Gains, big.NewInt(0))
	}
	for len(d.Generations) < n {
		d.Generations = append(d.Generations, 0)
	}
	for i := range d.Sums {
		if d.Sums[i] == nil {
			d.Sums[i] = big.NewInt(0)
		}
	}
	for i := range d.Gains {
		if d.Gains[i] == nil {
			d.Gains[i] = big.NewInt(0)
		}
	}
}

func cloneAmounts(in []*big.Int) []*big.Int {
	if in == nil {
		return nil
	}
	out := make([]*big.Int, len(in))
	for i, v := range in {
		out[i] = nativecommon.Clone(v)
	}
	return out
}
