package oracle

import (
	"errors"
	"math/big"
	"testing"

	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

type mapRoundState struct {
	latest map[string]uint64
	rounds map[string]map[uint64]Round
}

func newMapRoundState() *mapRoundState {
	return &mapRoundState{latest: make(map[string]uint64), rounds: make(map[string]map[uint64]Round)}
}

func (m *mapRoundState) LatestRoundID(token crypto.Address) (uint64, error) {
	return m.latest[token.Key()], nil
}

func (m *mapRoundState) GetRound(token crypto.Address, id uint64) (*Round, error) {
	r, ok := m.rounds[token.Key()][id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *mapRoundState) PutRound(token crypto.Address, r Round) error {
	if m.rounds[token.Key()] == nil {
		m.rounds[token.Key()] = make(map[uint64]Round)
	}
	m.rounds[token.Key()][r.ID] = r
	if r.ID > m.latest[token.Key()] {
		m.latest[token.Key()] = r.ID
	}
	return nil
}

type testSource struct {
	*StoredSource
	t     *testing.T
	state *mapRoundState
}

func (s *testSource) Push(token crypto.Address, answer *big.Int, decimals uint8, updatedAt uint64) uint64 {
	s.t.Helper()
	id, err := s.StoredSource.Push(token, answer, decimals, updatedAt)
	if err != nil {
		s.t.Fatalf("push: %v", err)
	}
	return id
}

func setupFeed(t *testing.T) (*PriceFeed, *testSource, crypto.Address) {
	t.Helper()
	token := crypto.ModuleAddress("weth")
	state := newMapRoundState()
	src := &testSource{StoredSource: NewStoredSource(state), t: t, state: state}
	feed := NewPriceFeed(src)
	if err := feed.SetFeed(token, FeedConfig{Heartbeat: 3600}); err != nil {
		t.Fatalf("set feed: %v", err)
	}
	return feed, src, token
}

func TestFetchPriceScalesDecimals(t *testing.T) {
	feed, src, token := setupFeed(t)
	src.Push(token, big.NewInt(2000_00000000), 8, 1000)
	feed.SetBlockTime(1000)
	price, err := feed.FetchPrice(token)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(2000), nativecommon.DecimalPrecision)
	if price.Cmp(want) != 0 {
		t.Fatalf("unexpected price %s", price)
	}
}

func TestFetchPriceStale(t *testing.T) {
	feed, src, token := setupFeed(t)
	src.Push(token, big.NewInt(1), 0, 1000)
	feed.SetBlockTime(1000 + 3600 + ResponseTimeoutBuffer + 1)
	_, err := feed.FetchPrice(token)
	if !errors.Is(err, ErrStaleFeed) || !errors.Is(err, nativecommon.ErrStaleData) {
		t.Fatalf("expected stale feed, got %v", err)
	}
}

func TestFetchPriceRejectsLargeDeviation(t *testing.T) {
	feed, src, token := setupFeed(t)
	src.Push(token, big.NewInt(100), 0, 1000)
	src.Push(token, big.NewInt(40), 0, 1010)
	feed.SetBlockTime(1020)
	if _, err := feed.FetchPrice(token); !errors.Is(err, ErrInvalidFeed) {
		t.Fatalf("expected invalid feed, got %v", err)
	}
	src.Push(token, big.NewInt(60), 0, 1030)
	feed.SetBlockTime(1040)
	if _, err := feed.FetchPrice(token); err != nil {
		t.Fatalf("40 -> 60 is within bounds: %v", err)
	}
}

func TestFetchPriceRejectsNonPositive(t *testing.T) {
	feed, src, token := setupFeed(t)
	if _, err := src.StoredSource.Push(token, big.NewInt(0), 0, 1000); err == nil {
		t.Fatalf("zero answer accepted by source")
	}
	// A round written around the source still fails validation.
	if err := src.state.PutRound(token, Round{ID: 1, Answer: big.NewInt(0), UpdatedAt: 1000}); err != nil {
		t.Fatalf("put round: %v", err)
	}
	feed.SetBlockTime(1000)
	if _, err := feed.FetchPrice(token); !errors.Is(err, ErrInvalidFeed) {
		t.Fatalf("expected invalid feed, got %v", err)
	}
}

func TestFetchPriceRejectsZeroAfterScaling(t *testing.T) {
	feed, src, token := setupFeed(t)
	src.Push(token, big.NewInt(5), 20, 1000)
	feed.SetBlockTime(1000)
	price, err := feed.FetchPrice(token)
	if !errors.Is(err, ErrInvalidFeed) {
		t.Fatalf("expected invalid feed, got price=%v err=%v", price, err)
	}

	// A previous round that truncates to zero cannot anchor the deviation check.
	src.Push(token, new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil), 20, 1010)
	feed.SetBlockTime(1010)
	if _, err := feed.FetchPrice(token); !errors.Is(err, ErrInvalidFeed) {
		t.Fatalf("expected invalid feed after zero previous round, got %v", err)
	}
}

func TestFetchPriceCachesWithinBlock(t *testing.T) {
	feed, src, token := setupFeed(t)
	src.Push(token, big.NewInt(100), 0, 1000)
	feed.SetBlockTime(1000)
	first, err := feed.FetchPrice(token)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	src.Push(token, big.NewInt(120), 0, 1000)
	second, err := feed.FetchPrice(token)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if first.Cmp(second) != 0 {
		t.Fatalf("price changed within one block: %s vs %s", first, second)
	}
}

func TestStoredSourceRounds(t *testing.T) {
	_, src, token := setupFeed(t)
	if _, err := src.LatestRound(token); !errors.Is(err, errNoRound) {
		t.Fatalf("expected no round, got %v", err)
	}
	first := src.Push(token, big.NewInt(100), 8, 1000)
	second := src.Push(token, big.NewInt(110), 8, 1010)
	if first != 1 || second != 2 {
		t.Fatalf("unexpected round ids %d %d", first, second)
	}
	latest, err := src.LatestRound(token)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != 2 || latest.Answer.Cmp(big.NewInt(110)) != 0 || latest.Decimals != 8 {
		t.Fatalf("unexpected latest round %+v", latest)
	}
	latest.Answer.SetInt64(1)
	prev, err := src.RoundData(token, 1)
	if err != nil {
		t.Fatalf("round 1: %v", err)
	}
	if prev.Answer.Cmp(big.NewInt(100)) != 0 || prev.UpdatedAt != 1000 {
		t.Fatalf("unexpected round 1 %+v", prev)
	}
	if _, err := src.RoundData(token, 3); !errors.Is(err, errNoRound) {
		t.Fatalf("expected missing round, got %v", err)
	}
}
