package state

import (
	"math/big"

	"github.com/holiman/uint256"

	"cdpcore/crypto"
	"cdpcore/native/troves"
)

const (
	prefixLedger     = "troves/ledger"
	prefixTrove      = "troves/trove"
	prefixSnapshot   = "troves/snapshot"
	prefixOwner      = "troves/owner"
	prefixSurplus    = "troves/surplus"
	prefixSortedHead = "troves/sorted/head"
	prefixSortedNode = "troves/sorted/node"
)

type ledgerRecord struct {
	MCR                 *uint256.Int
	MinuteDecayFactor   *uint256.Int
	RedemptionFeeFloor  *uint256.Int
	MaxRedemptionFee    *uint256.Int
	BorrowingFeeFloor   *uint256.Int
	MaxBorrowingFee     *uint256.Int
	InterestRateBps     uint64
	MaxSystemDebt       *uint256.Int
	DebtGasCompensation *uint256.Int
	MinNetDebt          *uint256.Int

	ActiveCollateral    *uint256.Int
	ActiveDebt          *uint256.Int
	DefaultedCollateral *uint256.Int
	DefaultedDebt       *uint256.Int

	TotalStakes             *uint256.Int
	TotalStakesSnapshot     *uint256.Int
	TotalCollateralSnapshot *uint256.Int

	LCollateral         *uint256.Int
	LDebt               *uint256.Int
	LastCollateralError *uint256.Int
	LastDebtError       *uint256.Int

	InterestRate          *uint256.Int
	ActiveInterestIndex   *uint256.Int
	LastActiveIndexUpdate uint64
	InterestPayable       *uint256.Int

	BaseRate             *uint256.Int
	LastFeeOperationTime uint64

	Sunsetting bool
	OwnerCount uint64
}

type troveRecord struct {
	Owner               string
	Debt                *uint256.Int
	Coll                *uint256.Int
	Stake               *uint256.Int
	Status              uint8
	ArrayIndex          uint64
	ActiveInterestIndex *uint256.Int
}

type snapshotRecord struct {
	Collateral *uint256.Int
	Debt       *uint256.Int
}

type sortedHeadRecord struct {
	Head string
	Tail string
	Size uint64
}

type sortedNodeRecord struct {
	Prev string
	Next string
	NICR *uint256.Int
}

// GetLedger returns nil when collateral has no ledger yet.
func (m *Manager) GetLedger(collateral crypto.Address) (*troves.Ledger, error) {
	var rec ledgerRecord
	ok, err := m.KVGet(kvKey(prefixLedger, collateral.Bytes()), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &troves.Ledger{
		Params: troves.Parameters{
			MCR:                 fromU256(rec.MCR),
			MinuteDecayFactor:   fromU256(rec.MinuteDecayFactor),
			RedemptionFeeFloor:  fromU256(rec.RedemptionFeeFloor),
			MaxRedemptionFee:    fromU256(rec.MaxRedemptionFee),
			BorrowingFeeFloor:   fromU256(rec.BorrowingFeeFloor),
			MaxBorrowingFee:     fromU256(rec.MaxBorrowingFee),
			InterestRateBps:     rec.InterestRateBps,
			MaxSystemDebt:       fromU256(rec.MaxSystemDebt),
			DebtGasCompensation: fromU256(rec.DebtGasCompensation),
			MinNetDebt:          fromU256(rec.MinNetDebt),
		},
		ActiveCollateral:        fromU256(rec.ActiveCollateral),
		ActiveDebt:              fromU256(rec.ActiveDebt),
		DefaultedCollateral:     fromU256(rec.DefaultedCollateral),
		DefaultedDebt:           fromU256(rec.DefaultedDebt),
		TotalStakes:             fromU256(rec.TotalStakes),
		TotalStakesSnapshot:     fromU256(rec.TotalStakesSnapshot),
		TotalCollateralSnapshot: fromU256(rec.TotalCollateralSnapshot),
		LCollateral:             fromU256(rec.LCollateral),
		LDebt:                   fromU256(rec.LDebt),
		LastCollateralError:     fromU256(rec.LastCollateralError),
		LastDebtError:           fromU256(rec.LastDebtError),
		InterestRate:            fromU256(rec.InterestRate),
		ActiveInterestIndex:     fromU256(rec.ActiveInterestIndex),
		LastActiveIndexUpdate:   rec.LastActiveIndexUpdate,
		InterestPayable:         fromU256(rec.InterestPayable),
		BaseRate:                fromU256(rec.BaseRate),
		LastFeeOperationTime:    rec.LastFeeOperationTime,
		Sunsetting:              rec.Sunsetting,
		OwnerCount:              rec.OwnerCount,
	}, nil
}

func (m *Manager) PutLedger(collateral crypto.Address, l *troves.Ledger) error {
	var c amountCodec
	rec := ledgerRecord{
		MCR:                     c.enc(l.Params.MCR),
		MinuteDecayFactor:       c.enc(l.Params.MinuteDecayFactor),
		RedemptionFeeFloor:      c.enc(l.Params.RedemptionFeeFloor),
		MaxRedemptionFee:        c.enc(l.Params.MaxRedemptionFee),
		BorrowingFeeFloor:       c.enc(l.Params.BorrowingFeeFloor),
		MaxBorrowingFee:         c.enc(l.Params.MaxBorrowingFee),
		InterestRateBps:         l.Params.InterestRateBps,
		MaxSystemDebt:           c.enc(l.Params.MaxSystemDebt),
		DebtGasCompensation:     c.enc(l.Params.DebtGasCompensation),
		MinNetDebt:              c.enc(l.Params.MinNetDebt),
		ActiveCollateral:        c.enc(l.ActiveCollateral),
		ActiveDebt:              c.enc(l.ActiveDebt),
		DefaultedCollateral:     c.enc(l.DefaultedCollateral),
		DefaultedDebt:           c.enc(l.DefaultedDebt),
		TotalStakes:             c.enc(l.TotalStakes),
		TotalStakesSnapshot:     c.enc(l.TotalStakesSnapshot),
		TotalCollateralSnapshot: c.enc(l.TotalCollateralSnapshot),
		LCollateral:             c.enc(l.LCollateral),
		LDebt:                   c.enc(l.LDebt),
		LastCollateralError:     c.enc(l.LastCollateralError),
		LastDebtError:           c.enc(l.LastDebtError),
		InterestRate:            c.enc(l.InterestRate),
		ActiveInterestIndex:     c.enc(l.ActiveInterestIndex),
		LastActiveIndexUpdate:   l.LastActiveIndexUpdate,
		InterestPayable:         c.enc(l.InterestPayable),
		BaseRate:                c.enc(l.BaseRate),
		LastFeeOperationTime:    l.LastFeeOperationTime,
		Sunsetting:              l.Sunsetting,
		OwnerCount:              l.OwnerCount,
	}
	if c.err != nil {
		return c.err
	}
	return m.KVPut(kvKey(prefixLedger, collateral.Bytes()), &rec)
}

// GetTrove returns nil for an owner that never opened a position.
func (m *Manager) GetTrove(collateral, owner crypto.Address) (*troves.Trove, error) {
	var rec troveRecord
	ok, err := m.KVGet(kvKey(prefixTrove, collateral.Bytes(), owner.Bytes()), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &troves.Trove{
		Owner:               owner,
		Debt:                fromU256(rec.Debt),
		Coll:                fromU256(rec.Coll),
		Stake:               fromU256(rec.Stake),
		Status:              troves.Status(rec.Status),
		ArrayIndex:          rec.ArrayIndex,
		ActiveInterestIndex: fromU256(rec.ActiveInterestIndex),
	}, nil
}

func (m *Manager) PutTrove(collateral crypto.Address, t *troves.Trove) error {
	var c amountCodec
	rec := troveRecord{
		Owner:               addrString(t.Owner),
		Debt:                c.enc(t.Debt),
		Coll:                c.enc(t.Coll),
		Stake:               c.enc(t.Stake),
		Status:              uint8(t.Status),
		ArrayIndex:          t.ArrayIndex,
		ActiveInterestIndex: c.enc(t.ActiveInterestIndex),
	}
	if c.err != nil {
		return c.err
	}
	return m.KVPut(kvKey(prefixTrove, collateral.Bytes(), t.Owner.Bytes()), &rec)
}

func (m *Manager) GetRewardSnapshot(collateral, owner crypto.Address) (*troves.RewardSnapshot, error) {
	var rec snapshotRecord
	ok, err := m.KVGet(kvKey(prefixSnapshot, collateral.Bytes(), owner.Bytes()), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &troves.RewardSnapshot{Collateral: fromU256(rec.Collateral), Debt: fromU256(rec.Debt)}, nil
}

func (m *Manager) PutRewardSnapshot(collateral, owner crypto.Address, snap *troves.RewardSnapshot) error {
	var c amountCodec
	rec := snapshotRecord{Collateral: c.enc(snap.Collateral), Debt: c.enc(snap.Debt)}
	if c.err != nil {
		return c.err
	}
	return m.KVPut(kvKey(prefixSnapshot, collateral.Bytes(), owner.Bytes()), &rec)
}

func (m *Manager) GetTroveOwner(collateral crypto.Address, index uint64) (crypto.Address, error) {
	var encoded string
	ok, err := m.KVGet(kvKey(prefixOwner, collateral.Bytes(), uintBytes(index)), &encoded)
	if err != nil || !ok {
		return crypto.Address{}, err
	}
	var c addrCodec
	owner := c.dec(encoded)
	return owner, c.err
}

func (m *Manager) PutTroveOwner(collateral crypto.Address, index uint64, owner crypto.Address) error {
	return m.KVPut(kvKey(prefixOwner, collateral.Bytes(), uintBytes(index)), addrString(owner))
}

func (m *Manager) DeleteTroveOwner(collateral crypto.Address, index uint64) error {
	return m.KVDelete(kvKey(prefixOwner, collateral.Bytes(), uintBytes(index)))
}

func (m *Manager) GetSurplus(collateral, owner crypto.Address) (*big.Int, error) {
	return m.getAmount(kvKey(prefixSurplus, collateral.Bytes(), owner.Bytes()))
}

func (m *Manager) PutSurplus(collateral, owner crypto.Address, amount *big.Int) error {
	return m.putAmount(kvKey(prefixSurplus, collateral.Bytes(), owner.Bytes()), amount)
}

func (m *Manager) GetSortedHead(collateral crypto.Address) (*troves.SortedListHead, error) {
	var rec sortedHeadRecord
	ok, err := m.KVGet(kvKey(prefixSortedHead, collateral.Bytes()), &rec)
	if err != nil || !ok {
		return nil, err
	}
	var c addrCodec
	head := &troves.SortedListHead{Head: c.dec(rec.Head), Tail: c.dec(rec.Tail), Size: rec.Size}
	return head, c.err
}

func (m *Manager) PutSortedHead(collateral crypto.Address, head *troves.SortedListHead) error {
	return m.KVPut(kvKey(prefixSortedHead, collateral.Bytes()), &sortedHeadRecord{
		Head: addrString(head.Head),
		Tail: addrString(head.Tail),
		Size: head.Size,
	})
}

func (m *Manager) GetSortedNode(collateral, id crypto.Address) (*troves.SortedNode, error) {
	var rec sortedNodeRecord
	ok, err := m.KVGet(kvKey(prefixSortedNode, collateral.Bytes(), id.Bytes()), &rec)
	if err != nil || !ok {
		return nil, err
	}
	var c addrCodec
	node := &troves.SortedNode{Prev: c.dec(rec.Prev), Next: c.dec(rec.Next), NICR: fromU256(rec.NICR)}
	return node, c.err
}

func (m *Manager) PutSortedNode(collateral, id crypto.Address, node *troves.SortedNode) error {
	var c amountCodec
	rec := sortedNodeRecord{Prev: addrString(node.Prev), Next: addrString(node.Next), NICR: c.enc(node.NICR)}
	if c.err != nil {
		return c.err
	}
	return m.KVPut(kvKey(prefixSortedNode, collateral.Bytes(), id.Bytes()), &rec)
}

func (m *Manager) DeleteSortedNode(collateral, id crypto.Address) error {
	return m.KVDelete(kvKey(prefixSortedNode, collateral.Bytes(), id.Bytes()))
}

func (m *Manager) getAmount(key []byte) (*big.Int, error) {
	var v uint256.Int
	ok, err := m.KVGet(key, &v)
	if err != nil || !ok {
		return nil, err
	}
	return v.ToBig(), nil
}

func (m *Manager) putAmount(key []byte, amount *big.Int) error {
	v, err := toU256(amount)
	if err != nil {
		return err
	}
	return m.KVPut(key, v)
}
