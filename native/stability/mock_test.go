package stability

import (
	"fmt"
	"math/big"
	"testing"

	"cdpcore/core/events"
	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
	"cdpcore/native/rewards"
)

type mockState struct {
	pool       *Pool
	depositors map[string]*Depositor
	sums       map[string]*big.Int
	gs         map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{depositors: map[string]*Depositor{}, sums: map[string]*big.Int{}, gs: map[string]*big.Int{}}
}

func (m *mockState) GetPool() (*Pool, error)  { return m.pool.Clone(), nil }
func (m *mockState) PutPool(p *Pool) error    { m.pool = p.Clone(); return nil }
func (m *mockState) GetDepositor(a crypto.Address) (*Depositor, error) {
	return m.depositors[a.Key()].Clone(), nil
}
func (m *mockState) PutDepositor(a crypto.Address, d *Depositor) error {
	m.depositors[a.Key()] = d.Clone()
	return nil
}
func (m *mockState) GetEpochScaleSum(epoch, scale, index uint64) (*big.Int, error) {
	return m.sums[fmt.Sprintf("%d/%d/%d", epoch, scale, index)], nil
}
func (m *mockState) PutEpochScaleSum(epoch, scale, index uint64, sum *big.Int) error {
	m.sums[fmt.Sprintf("%d/%d/%d", epoch, scale, index)] = new(big.Int).Set(sum)
	return nil
}
func (m *mockState) GetEpochScaleG(epoch, scale uint64) (*big.Int, error) {
	return m.gs[fmt.Sprintf("%d/%d", epoch, scale)], nil
}
func (m *mockState) PutEpochScaleG(epoch, scale uint64, g *big.Int) error {
	m.gs[fmt.Sprintf("%d/%d", epoch, scale)] = new(big.Int).Set(g)
	return nil
}

type mockBank struct {
	balances map[string]*big.Int
}

func (b *mockBank) key(token, account crypto.Address) string { return token.Key() + account.Key() }

func (b *mockBank) BalanceOf(token, account crypto.Address) *big.Int {
	return nativecommon.Clone(b.balances[b.key(token, account)])
}

func (b *mockBank) Mint(token, account crypto.Address, amount *big.Int) error {
	b.balances[b.key(token, account)] = new(big.Int).Add(b.BalanceOf(token, account), amount)
	return nil
}

func (b *mockBank) Transfer(token, from, to crypto.Address, amount *big.Int) error {
	bal := b.BalanceOf(token, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: %s < %s", bal, amount)
	}
	b.balances[b.key(token, from)] = bal.Sub(bal, amount)
	b.balances[b.key(token, to)] = new(big.Int).Add(b.BalanceOf(token, to), amount)
	return nil
}

type mockCore struct {
	owner  crypto.Address
	paused bool
}

func (c *mockCore) IsPaused(string) bool { return c.paused }
func (c *mockCore) RequireOwner(caller crypto.Address) error {
	if !caller.Equal(c.owner) {
		return fmt.Errorf("not owner")
	}
	return nil
}

type mockAllocations map[string]*rewards.Allocation

func (m mockAllocations) GetAllocation(receiver string) (*rewards.Allocation, error) {
	a, ok := m[receiver]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

func (m mockAllocations) PutAllocation(receiver string, a *rewards.Allocation) error {
	out := *a
	out.Allocated = new(big.Int).Set(a.Allocated)
	m[receiver] = &out
	return nil
}

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.CDPPrefix, raw)
}

func e18(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), nativecommon.DecimalPrecision)
}

type fixture struct {
	engine    *Engine
	state     *mockState
	bank      *mockBank
	core      *mockCore
	vault     *rewards.Vault
	buf       *events.Buffer
	debtToken crypto.Address
	coll      crypto.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:     newMockState(),
		bank:      &mockBank{balances: map[string]*big.Int{}},
		core:      &mockCore{owner: makeAddress(0xF0)},
		debtToken: crypto.ModuleAddress("debt-token"),
		coll:      crypto.ModuleAddress("collateral/test"),
		buf:       &events.Buffer{},
	}
	f.vault = rewards.NewVault(crypto.ModuleAddress("reward-token"), 0)
	f.vault.SetState(mockAllocations{})
	f.vault.SetBank(f.bank)
	f.vault.SetWeeklyEmission(EmissionID, big.NewInt(0))
	e := NewEngine(f.debtToken)
	e.SetState(f.state)
	e.SetBank(f.bank)
	e.SetAdmin(f.core)
	e.SetVault(f.vault)
	e.SetEmitter(f.buf)
	f.engine = e
	if _, err := e.EnableCollateral(f.coll); err != nil {
		t.Fatalf("enable collateral: %v", err)
	}
	return f
}

func (f *fixture) at(ts uint64) {
	f.engine.SetBlockTime(ts)
	f.vault.SetBlockTime(ts)
}

func (f *fixture) deposit(t *testing.T, account crypto.Address, amount *big.Int) {
	t.Helper()
	if err := f.bank.Mint(f.debtToken, account, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.engine.ProvideToSP(account, amount); err != nil {
		t.Fatalf("provide: %v", err)
	}
}

// offset mirrors the ledger side of a liquidation: the absorbed debt is burned
// from the pool account and the collateral delivered to it.
func (f *fixture) offset(t *testing.T, debt, coll *big.Int) {
	t.Helper()
	if err := f.engine.Offset(f.coll, debt, coll); err != nil {
		t.Fatalf("offset: %v", err)
	}
	if err := f.bank.Transfer(f.debtToken, f.engine.Account(), crypto.ModuleAddress("burn"), debt); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := f.bank.Mint(f.coll, f.engine.Account(), coll); err != nil {
		t.Fatalf("collateral: %v", err)
	}
}

func (f *fixture) compounded(t *testing.T, account crypto.Address) *big.Int {
	t.Helper()
	v, err := f.engine.GetCompoundedDebtDeposit(account)
	if err != nil {
		t.Fatalf("compounded: %v", err)
	}
	return v
}
