package troves

import (
	"math/big"

	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

var (
	errSortedZeroID   = nativecommon.NewError(nativecommon.ErrValidation, "sorted troves: id must not be zero")
	errSortedZeroNICR = nativecommon.NewError(nativecommon.ErrValidation, "sorted troves: NICR must be positive")
	errSortedContains = nativecommon.NewError(nativecommon.ErrInvariant, "sorted troves: list already contains the node")
	errSortedMissing  = nativecommon.NewError(nativecommon.ErrInvariant, "sorted troves: list does not contain the node")
)

// SortedTroves orders active positions by nominal collateral ratio, highest
// first. Head is the safest position and tail the riskiest.
type SortedTroves interface {
	Insert(id crypto.Address, nicr *big.Int, upperHint, lowerHint crypto.Address) error
	ReInsert(id crypto.Address, nicr *big.Int, upperHint, lowerHint crypto.Address) error
	Remove(id crypto.Address) error
	Contains(id crypto.Address) (bool, error)
	First() (crypto.Address, error)
	Last() (crypto.Address, error)
	Next(id crypto.Address) (crypto.Address, error)
	Prev(id crypto.Address) (crypto.Address, error)
	Size() (uint64, error)
}

// SortedListHead is the persisted list header.
type SortedListHead struct {
	Head crypto.Address
	Tail crypto.Address
	Size uint64
}

// SortedNode is a persisted list entry. NICR is the key the node was last
// inserted with.
type SortedNode struct {
	Prev crypto.Address
	Next crypto.Address
	NICR *big.Int
}

// SortedState persists one list per collateral.
type SortedState interface {
	GetSortedHead(collateral crypto.Address) (*SortedListHead, error)
	PutSortedHead(collateral crypto.Address, head *SortedListHead) error
	GetSortedNode(collateral, id crypto.Address) (*SortedNode, error)
	PutSortedNode(collateral, id crypto.Address, node *SortedNode) error
	DeleteSortedNode(collateral, id crypto.Address) error
}

// SortedList is a persisted doubly linked list in descending NICR order. A
// node whose NICR equals existing nodes is placed after all of them, so
// among equals the oldest insert is the safest.
type SortedList struct {
	collateral crypto.Address
	state      SortedState
}

// NewSortedList returns the list for collateral backed by state.
func NewSortedList(collateral crypto.Address, state SortedState) *SortedList {
	return &SortedList{collateral: collateral, state: state}
}

func (s *SortedList) head() (*SortedListHead, error) {
	if s == nil || s.state == nil {
		return nil, errNilState
	}
	h, err := s.state.GetSortedHead(s.collateral)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return &SortedListHead{}, nil
	}
	out := *h
	return &out, nil
}

func (s *SortedList) node(id crypto.Address) (*SortedNode, error) {
	if id.IsZero() {
		return nil, nil
	}
	n, err := s.state.GetSortedNode(s.collateral, id)
	if err != nil || n == nil {
		return nil, err
	}
	out := *n
	out.NICR = nativecommon.Clone(n.NICR)
	return &out, nil
}

func (s *SortedList) Contains(id crypto.Address) (bool, error) {
	if _, err := s.head(); err != nil {
		return false, err
	}
	n, err := s.node(id)
	return n != nil, err
}

func (s *SortedList) Size() (uint64, error) {
	h, err := s.head()
	if err != nil {
		return 0, err
	}
	return h.Size, nil
}

func (s *SortedList) First() (crypto.Address, error) {
	h, err := s.head()
	if err != nil {
		return crypto.Address{}, err
	}
	return h.Head, nil
}

func (s *SortedList) Last() (crypto.Address, error) {
	h, err := s.head()
	if err != nil {
		return crypto.Address{}, err
	}
	return h.Tail, nil
}

// Next returns the neighbour with the next lower NICR.
func (s *SortedList) Next(id crypto.Address) (crypto.Address, error) {
	if _, err := s.head(); err != nil {
		return crypto.Address{}, err
	}
	n, err := s.node(id)
	if err != nil || n == nil {
		return crypto.Address{}, err
	}
	return n.Next, nil
}

// Prev returns the neighbour with the next higher NICR.
func (s *SortedList) Prev(id crypto.Address) (crypto.Address, error) {
	if _, err := s.head(); err != nil {
		return crypto.Address{}, err
	}
	n, err := s.node(id)
	if err != nil || n == nil {
		return crypto.Address{}, err
	}
	return n.Prev, nil
}

// validInsertPosition reports whether nicr belongs between prev and next.
func (s *SortedList) validInsertPosition(h *SortedListHead, nicr *big.Int, prev, next crypto.Address) (bool, error) {
	switch {
	case prev.IsZero() && next.IsZero():
		return h.Size == 0, nil
	case prev.IsZero():
		if !h.Head.Equal(next) {
			return false, nil
		}
		n, err := s.node(next)
		if err != nil || n == nil {
			return false, err
		}
		return nicr.Cmp(n.NICR) > 0, nil
	case next.IsZero():
		if !h.Tail.Equal(prev) {
			return false, nil
		}
		p, err := s.node(prev)
		if err != nil || p == nil {
			return false, err
		}
		return p.NICR.Cmp(nicr) >= 0, nil
	default:
		p, err := s.node(prev)
		if err != nil || p == nil {
			return false, err
		}
		if !p.Next.Equal(next) {
			return false, nil
		}
		n, err := s.node(next)
		if err != nil || n == nil {
			return false, err
		}
		return p.NICR.Cmp(nicr) >= 0 && nicr.Cmp(n.NICR) > 0, nil
	}
}

// FindInsertPosition returns the neighbours nicr should be linked between.
// Valid hints are used as is; a hint that is merely on the correct side of
// the slot shortens the walk; otherwise the list is walked from the head.
func (s *SortedList) FindInsertPosition(nicr *big.Int, upperHint, lowerHint crypto.Address) (crypto.Address, crypto.Address, error) {
	h, err := s.head()
	if err != nil {
		return crypto.Address{}, crypto.Address{}, err
	}
	if ok, err := s.validInsertPosition(h, nicr, upperHint, lowerHint); err != nil {
		return crypto.Address{}, crypto.Address{}, err
	} else if ok {
		return upperHint, lowerHint, nil
	}
	if upper, err := s.node(upperHint); err != nil {
		return crypto.Address{}, crypto.Address{}, err
	} else if upper != nil && upper.NICR.Cmp(nicr) >= 0 {
		return s.descend(nicr, upperHint, upper.Next)
	}
	if lower, err := s.node(lowerHint); err != nil {
		return crypto.Address{}, crypto.Address{}, err
	} else if lower != nil && nicr.Cmp(lower.NICR) > 0 {
		return s.ascend(nicr, lower.Prev, lowerHint)
	}
	return s.descend(nicr, crypto.Address{}, h.Head)
}

// descend walks towards the tail until the next node has a lower NICR.
func (s *SortedList) descend(nicr *big.Int, prev, cur crypto.Address) (crypto.Address, crypto.Address, error) {
	for !cur.IsZero() {
		n, err := s.node(cur)
		if err != nil {
			return crypto.Address{}, crypto.Address{}, err
		}
		if n == nil {
			return crypto.Address{}, crypto.Address{}, errSortedMissing
		}
		if nicr.Cmp(n.NICR) > 0 {
			break
		}
		prev, cur = cur, n.Next
	}
	return prev, cur, nil
}

// ascend walks towards the head until the previous node's NICR is at least nicr.
func (s *SortedList) ascend(nicr *big.Int, prev, cur crypto.Address) (crypto.Address, crypto.Address, error) {
	for !prev.IsZero() {
		p, err := s.node(prev)
		if err != nil {
			return crypto.Address{}, crypto.Address{}, err
		}
		if p == nil {
			return crypto.Address{}, crypto.Address{}, errSortedMissing
		}
		if p.NICR.Cmp(nicr) >= 0 {
			break
		}
		prev, cur = p.Prev, prev
	}
	return prev, cur, nil
}

// Insert links id into its NICR slot.
func (s *SortedList) Insert(id crypto.Address, nicr *big.Int, upperHint, lowerHint crypto.Address) error {
	if id.IsZero() {
		return errSortedZeroID
	}
	if nicr == nil || nicr.Sign() <= 0 {
		return errSortedZeroNICR
	}
	if ok, err := s.Contains(id); err != nil {
		return err
	} else if ok {
		return errSortedContains
	}
	prev, next, err := s.FindInsertPosition(nicr, upperHint, lowerHint)
	if err != nil {
		return err
	}
	h, err := s.head()
	if err != nil {
		return err
	}
	if prev.IsZero() {
		h.Head = id
	} else {
		p, err := s.node(prev)
		if err != nil {
			return err
		}
		p.Next = id
		if err := s.state.PutSortedNode(s.collateral, prev, p); err != nil {
			return err
		}
	}
	if next.IsZero() {
		h.Tail = id
	} else {
		n, err := s.node(next)
		if err != nil {
			return err
		}
		n.Prev = id
		if err := s.state.PutSortedNode(s.collateral, next, n); err != nil {
			return err
		}
	}
	h.Size++
	if err := s.state.PutSortedNode(s.collateral, id, &SortedNode{Prev: prev, Next: next, NICR: new(big.Int).Set(nicr)}); err != nil {
		return err
	}
	return s.state.PutSortedHead(s.collateral, h)
}

// Remove unlinks id.
func (s *SortedList) Remove(id crypto.Address) error {
	h, err := s.head()
	if err != nil {
		return err
	}
	n, err := s.node(id)
	if err != nil {
		return err
	}
	if n == nil {
		return errSortedMissing
	}
	if n.Prev.IsZero() {
		h.Head = n.Next
	} else {
		p, err := s.node(n.Prev)
		if err != nil {
			return err
		}
		p.Next = n.Next
		if err := s.state.PutSortedNode(s.collateral, n.Prev, p); err != nil {
			return err
		}
	}
	if n.Next.IsZero() {
		h.Tail = n.Prev
	} else {
		nx, err := s.node(n.Next)
		if err != nil {
			return err
		}
		nx.Prev = n.Prev
		if err := s.state.PutSortedNode(s.collateral, n.Next, nx); err != nil {
			return err
		}
	}
	h.Size--
	if err := s.state.DeleteSortedNode(s.collateral, id); err != nil {
		return err
	}
	return s.state.PutSortedHead(s.collateral, h)
}

// ReInsert moves id to the slot for its new NICR.
func (s *SortedList) ReInsert(id crypto.Address, nicr *big.Int, upperHint, lowerHint crypto.Address) error {
	if nicr == nil || nicr.Sign() <= 0 {
		return errSortedZeroNICR
	}
	if err := s.Remove(id); err != nil {
		return err
	}
	return s.Insert(id, nicr, upperHint, lowerHint)
}
