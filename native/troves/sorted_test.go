package troves

import (
	"errors"
	"math/big"
	"testing"

	"cdpcore/crypto"
)

func listOrder(t *testing.T, s *SortedList) []crypto.Address {
	t.Helper()
	var out []crypto.Address
	cur, err := s.First()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	for !cur.IsZero() {
		out = append(out, cur)
		if cur, err = s.Next(cur); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	return out
}

func requireOrder(t *testing.T, s *SortedList, want ...crypto.Address) {
	t.Helper()
	got := listOrder(t, s)
	if len(got) != len(want) {
		t.Fatalf("expected %d nodes, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("position %d: got %s want %s", i, got[i], want[i])
		}
	}
	if size, _ := s.Size(); size != uint64(len(want)) {
		t.Fatalf("size %d, want %d", size, len(want))
	}
}

func TestSortedListOrdersDescendingWithTiesLast(t *testing.T) {
	s := NewSortedList(crypto.ModuleAddress("collateral/test"), newMockState())
	a, b, c, d := makeAddress(1), makeAddress(2), makeAddress(3), makeAddress(4)
	none := crypto.Address{}
	for _, step := range []struct {
		id   crypto.Address
		nicr int64
	}{{a, 5}, {b, 5}, {c, 7}, {d, 3}} {
		if err := s.Insert(step.id, big.NewInt(step.nicr), none, none); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	requireOrder(t, s, c, a, b, d)
	if last, _ := s.Last(); !last.Equal(d) {
		t.Fatalf("tail should be the riskiest node")
	}
	if err := s.Insert(a, big.NewInt(1), none, none); !errors.Is(err, errSortedContains) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if err := s.Remove(b); err != nil {
		t.Fatalf("remove: %v", err)
	}
	requireOrder(t, s, c, a, d)
	if err := s.ReInsert(d, big.NewInt(9), none, none); err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	requireOrder(t, s, d, c, a)
}

func TestSortedListHints(t *testing.T) {
	s := NewSortedList(crypto.ModuleAddress("collateral/test"), newMockState())
	ids := []crypto.Address{makeAddress(1), makeAddress(2), makeAddress(3), makeAddress(4)}
	none := crypto.Address{}
	for i, id := range ids {
		if err := s.Insert(id, big.NewInt(int64(40-10*i)), none, none); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	prev, next, err := s.FindInsertPosition(big.NewInt(25), ids[1], ids[2])
	if err != nil || !prev.Equal(ids[1]) || !next.Equal(ids[2]) {
		t.Fatalf("valid hints not used: %s %s %v", prev, next, err)
	}
	// A stale upper hint still bounds the walk from above.
	prev, next, err = s.FindInsertPosition(big.NewInt(15), ids[0], ids[0])
	if err != nil || !prev.Equal(ids[2]) || !next.Equal(ids[3]) {
		t.Fatalf("upper hint walk: %s %s %v", prev, next, err)
	}
	// A lower hint on the wrong side is ignored.
	prev, next, err = s.FindInsertPosition(big.NewInt(35), none, ids[0])
	if err != nil || !prev.Equal(ids[0]) || !next.Equal(ids[1]) {
		t.Fatalf("fallback walk: %s %s %v", prev, next, err)
	}
	prev, next, err = s.FindInsertPosition(big.NewInt(5), none, ids[3])
	if err != nil || !prev.Equal(ids[3]) || !next.IsZero() {
		t.Fatalf("tail position: %s %s %v", prev, next, err)
	}
}
