package troves

import (
	"errors"
	"math/big"
	"testing"

	"cdpcore/core/events"
	"cdpcore/crypto"
	"cdpcore/native/bank"
	nativecommon "cdpcore/native/common"
)

type mockState struct {
	ledgers   map[string]*Ledger
	troves    map[string]*Trove
	snapshots map[string]*RewardSnapshot
	owners    map[string]crypto.Address
	surplus   map[string]*big.Int
	heads     map[string]*SortedListHead
	nodes     map[string]*SortedNode
}

func newMockState() *mockState {
	return &mockState{
		ledgers:   map[string]*Ledger{},
		troves:    map[string]*Trove{},
		snapshots: map[string]*RewardSnapshot{},
		owners:    map[string]crypto.Address{},
		surplus:   map[string]*big.Int{},
		heads:     map[string]*SortedListHead{},
		nodes:     map[string]*SortedNode{},
	}
}

func indexKey(collateral crypto.Address, index uint64) string {
	return collateral.Key() + new(big.Int).SetUint64(index).String()
}

func (m *mockState) GetLedger(collateral crypto.Address) (*Ledger, error) {
	return m.ledgers[collateral.Key()].Clone(), nil
}

func (m *mockState) PutLedger(collateral crypto.Address, l *Ledger) error {
	m.ledgers[collateral.Key()] = l.Clone()
	return nil
}

func (m *mockState) GetTrove(collateral, owner crypto.Address) (*Trove, error) {
	return m.troves[collateral.Key()+owner.Key()].Clone(), nil
}

func (m *mockState) PutTrove(collateral crypto.Address, t *Trove) error {
	m.troves[collateral.Key()+t.Owner.Key()] = t.Clone()
	return nil
}

func (m *mockState) GetRewardSnapshot(collateral, owner crypto.Address) (*RewardSnapshot, error) {
	return m.snapshots[collateral.Key()+owner.Key()], nil
}

func (m *mockState) PutRewardSnapshot(collateral, owner crypto.Address, snap *RewardSnapshot) error {
	m.snapshots[collateral.Key()+owner.Key()] = &RewardSnapshot{
		Collateral: new(big.Int).Set(snap.Collateral),
		Debt:       new(big.Int).Set(snap.Debt),
	}
	return nil
}

func (m *mockState) GetTroveOwner(collateral crypto.Address, index uint64) (crypto.Address, error) {
	return m.owners[indexKey(collateral, index)], nil
}

func (m *mockState) PutTroveOwner(collateral crypto.Address, index uint64, owner crypto.Address) error {
	m.owners[indexKey(collateral, index)] = owner
	return nil
}

func (m *mockState) DeleteTroveOwner(collateral crypto.Address, index uint64) error {
	delete(m.owners, indexKey(collateral, index))
	return nil
}

func (m *mockState) GetSurplus(collateral, owner crypto.Address) (*big.Int, error) {
	return m.surplus[collateral.Key()+owner.Key()], nil
}

func (m *mockState) PutSurplus(collateral, owner crypto.Address, amount *big.Int) error {
	m.surplus[collateral.Key()+owner.Key()] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) GetSortedHead(collateral crypto.Address) (*SortedListHead, error) {
	return m.heads[collateral.Key()], nil
}

func (m *mockState) PutSortedHead(collateral crypto.Address, head *SortedListHead) error {
	h := *head
	m.heads[collateral.Key()] = &h
	return nil
}

func (m *mockState) GetSortedNode(collateral, id crypto.Address) (*SortedNode, error) {
	return m.nodes[collateral.Key()+id.Key()], nil
}

func (m *mockState) PutSortedNode(collateral, id crypto.Address, node *SortedNode) error {
	n := *node
	n.NICR = new(big.Int).Set(node.NICR)
	m.nodes[collateral.Key()+id.Key()] = &n
	return nil
}

func (m *mockState) DeleteSortedNode(collateral, id crypto.Address) error {
	delete(m.nodes, collateral.Key()+id.Key())
	return nil
}

type mockBankState struct {
	balances map[string]*big.Int
	supply   map[string]*big.Int
}

func (m *mockBankState) GetBalance(token, account crypto.Address) (*big.Int, error) {
	return m.balances[token.Key()+account.Key()], nil
}

func (m *mockBankState) PutBalance(token, account crypto.Address, amount *big.Int) error {
	m.balances[token.Key()+account.Key()] = new(big.Int).Set(amount)
	return nil
}

func (m *mockBankState) GetSupply(token crypto.Address) (*big.Int, error) {
	return m.supply[token.Key()], nil
}

func (m *mockBankState) PutSupply(token crypto.Address, amount *big.Int) error {
	m.supply[token.Key()] = new(big.Int).Set(amount)
	return nil
}

type fixedPrice struct{ price *big.Int }

func (f *fixedPrice) FetchPrice(crypto.Address) (*big.Int, error) {
	return new(big.Int).Set(f.price), nil
}

type mockCore struct {
	owner    crypto.Address
	receiver crypto.Address
	start    uint64
}

func (c *mockCore) FeeReceiver() (crypto.Address, error) { return c.receiver, nil }
func (c *mockCore) StartTime() (uint64, error)           { return c.start, nil }
func (c *mockCore) RequireOwner(caller crypto.Address) error {
	if !caller.Equal(c.owner) {
		return errNotOwner
	}
	return nil
}

var errNotOwner = errors.New("not owner")

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.CDPPrefix, raw)
}

func e18(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1_000_000_000_000_000_000))
}

type fixture struct {
	manager   *Manager
	state     *mockState
	bank      *bank.Ledger
	price     *fixedPrice
	core      *mockCore
	buf       *events.Buffer
	debtToken crypto.Address
	coll      crypto.Address
}

func newFixture(t *testing.T, params Parameters) *fixture {
	t.Helper()
	coll := crypto.ModuleAddress("collateral/test")
	f := &fixture{
		state:     newMockState(),
		bank:      bank.NewLedger(),
		price:     &fixedPrice{price: e18(1)},
		core:      &mockCore{owner: makeAddress(0xF0), receiver: makeAddress(0xFE)},
		buf:       &events.Buffer{},
		debtToken: crypto.ModuleAddress("debt-token"),
		coll:      coll,
	}
	f.bank.SetState(&mockBankState{balances: map[string]*big.Int{}, supply: map[string]*big.Int{}})
	m := NewManager(coll, params)
	m.SetState(f.state)
	m.SetSorted(NewSortedList(coll, f.state))
	m.SetBank(f.bank)
	m.SetDebtToken(f.debtToken)
	m.SetOracle(f.price)
	m.SetAdmin(f.core)
	m.SetEmitter(f.buf)
	if err := m.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	f.manager = m
	return f
}

// open deposits coll into the ledger account, mints the gas compensation and
// records the position the way the gateway does.
func (f *fixture) open(t *testing.T, owner crypto.Address, coll, debt *big.Int) {
	t.Helper()
	if err := f.bank.Mint(f.coll, f.manager.Account(), coll); err != nil {
		t.Fatalf("mint collateral: %v", err)
	}
	params, err := f.manager.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if err := f.bank.Mint(f.debtToken, bank.GasPool, params.DebtGasCompensation); err != nil {
		t.Fatalf("mint gas comp: %v", err)
	}
	if err := f.bank.Mint(f.debtToken, owner, new(big.Int).Sub(debt, params.DebtGasCompensation)); err != nil {
		t.Fatalf("mint debt: %v", err)
	}
	nicr := nativecommon.ComputeNominalCR(coll, debt)
	if _, _, err := f.manager.OpenTrove(owner, coll, debt, nicr, crypto.Address{}, crypto.Address{}); err != nil {
		t.Fatalf("open trove: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, token, account crypto.Address) *big.Int {
	t.Helper()
	bal, err := f.bank.BalanceOf(token, account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}
