package state

import (
	"math/big"

	"github.com/holiman/uint256"

	"cdpcore/crypto"
	"cdpcore/native/stability"
)

const (
	prefixStabilityPool      = "stability/pool"
	prefixStabilityDepositor = "stability/depositor"
	prefixStabilitySum       = "stability/sum"
	prefixStabilityG         = "stability/g"
)

type slotRecord struct {
	Collateral string
	Generation uint64
	Sunset     bool
}

type sunsetRecord struct {
	Index  uint64
	Expiry uint64
}

type poolRecord struct {
	TotalDeposits *uint256.Int
	P             *uint256.Int
	Scale         uint64
	Epoch         uint64

	LastRewardError      *uint256.Int
	LastDebtLossError    *uint256.Int
	LastCollateralErrors []*uint256.Int

	RewardRate   *uint256.Int
	LastUpdate   uint64
	PeriodFinish uint64

	Slots       []slotRecord
	SunsetQueue []sunsetRecord
}

type depositorRecord struct {
	Amount    *uint256.Int
	Timestamp uint64

	P     *uint256.Int
	G     *uint256.Int
	Scale uint64
	Epoch uint64

	Sums        []*uint256.Int
	Gains       []*uint256.Int
	Generations []uint64

	PendingReward *uint256.Int
}

// GetPool returns nil before the first deposit or listing.
func (m *Manager) GetPool() (*stability.Pool, error) {
	var rec poolRecord
	ok, err := m.KVGet(kvKey(prefixStabilityPool), &rec)
	if err != nil || !ok {
		return nil, err
	}
	var c addrCodec
	slots := make([]stability.Slot, len(rec.Slots))
	for i, s := range rec.Slots {
		slots[i] = stability.Slot{Collateral: c.dec(s.Collateral), Generation: s.Generation, Sunset: s.Sunset}
	}
	if c.err != nil {
		return nil, c.err
	}
	queue := make([]stability.SunsetEntry, len(rec.SunsetQueue))
	for i, q := range rec.SunsetQueue {
		queue[i] = stability.SunsetEntry{Index: q.Index, Expiry: q.Expiry}
	}
	return &stability.Pool{
		TotalDeposits:        fromU256(rec.TotalDeposits),
		P:                    fromU256(rec.P),
		Scale:                rec.Scale,
		Epoch:                rec.Epoch,
		LastRewardError:      fromU256(rec.LastRewardError),
		LastDebtLossError:    fromU256(rec.LastDebtLossError),
		LastCollateralErrors: decList(rec.LastCollateralErrors),
		RewardRate:           fromU256(rec.RewardRate),
		LastUpdate:           rec.LastUpdate,
		PeriodFinish:         rec.PeriodFinish,
		Slots:                slots,
		SunsetQueue:          queue,
	}, nil
}

func (m *Manager) PutPool(pool *stability.Pool) error {
	var c amountCodec
	rec := poolRecord{
		TotalDeposits:        c.enc(pool.TotalDeposits),
		P:                    c.enc(pool.P),
		Scale:                pool.Scale,
		Epoch:                pool.Epoch,
		LastRewardError:      c.enc(pool.LastRewardError),
		LastDebtLossError:    c.enc(pool.LastDebtLossError),
		LastCollateralErrors: c.encList(pool.LastCollateralErrors),
		RewardRate:           c.enc(pool.RewardRate),
		LastUpdate:           pool.LastUpdate,
		PeriodFinish:         pool.PeriodFinish,
		Slots:                make([]slotRecord, len(pool.Slots)),
		SunsetQueue:          make([]sunsetRecord, len(pool.SunsetQueue)),
	}
	if c.err != nil {
		return c.err
	}
	for i, s := range pool.Slots {
		rec.Slots[i] = slotRecord{Collateral: addrString(s.Collateral), Generation: s.Generation, Sunset: s.Sunset}
	}
	for i, q := range pool.SunsetQueue {
		rec.SunsetQueue[i] = sunsetRecord{Index: q.Index, Expiry: q.Expiry}
	}
	return m.KVPut(kvKey(prefixStabilityPool), &rec)
}

func (m *Manager) GetDepositor(account crypto.Address) (*stability.Depositor, error) {
	var rec depositorRecord
	ok, err := m.KVGet(kvKey(prefixStabilityDepositor, account.Bytes()), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &stability.Depositor{
		Amount:        fromU256(rec.Amount),
		Timestamp:     rec.Timestamp,
		P:             fromU256(rec.P),
		G:             fromU256(rec.G),
		Scale:         rec.Scale,
		Epoch:         rec.Epoch,
		Sums:          decList(rec.Sums),
		Gains:         decList(rec.Gains),
		Generations:   append([]uint64(nil), rec.Generations...),
		PendingReward: fromU256(rec.PendingReward),
	}, nil
}

func (m *Manager) PutDepositor(account crypto.Address, d *stability.Depositor) error {
	var c amountCodec
	rec := depositorRecord{
		Amount:        c.enc(d.Amount),
		Timestamp:     d.Timestamp,
		P:             c.enc(d.P),
		G:             c.enc(d.G),
		Scale:         d.Scale,
		Epoch:         d.Epoch,
		Sums:          c.encList(d.Sums),
		Gains:         c.encList(d.Gains),
		Generations:   append([]uint64{}, d.Generations...),
		PendingReward: c.enc(d.PendingReward),
	}
	if c.err != nil {
		return c.err
	}
	return m.KVPut(kvKey(prefixStabilityDepositor, account.Bytes()), &rec)
}

func (m *Manager) GetEpochScaleSum(epoch, scale, index uint64) (*big.Int, error) {
	return m.getAmount(kvKey(prefixStabilitySum, uintBytes(epoch), uintBytes(scale), uintBytes(index)))
}

func (m *Manager) PutEpochScaleSum(epoch, scale, index uint64, sum *big.Int) error {
	return m.putAmount(kvKey(prefixStabilitySum, uintBytes(epoch), uintBytes(scale), uintBytes(index)), sum)
}

func (m *Manager) GetEpochScaleG(epoch, scale uint64) (*big.Int, error) {
	return m.getAmount(kvKey(prefixStabilityG, uintBytes(epoch), uintBytes(scale)))
}

func (m *Manager) PutEpochScaleG(epoch, scale uint64, g *big.Int) error {
	return m.putAmount(kvKey(prefixStabilityG, uintBytes(epoch), uintBytes(scale)), g)
}
