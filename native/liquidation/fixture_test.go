package liquidation

import (
	"math/big"
	"testing"

	"cdpcore/core/events"
	"cdpcore/core/state"
	"cdpcore/crypto"
	"cdpcore/native/admin"
	"cdpcore/native/bank"
	nativecommon "cdpcore/native/common"
	"cdpcore/native/rewards"
	"cdpcore/native/stability"
	"cdpcore/native/troves"
	"cdpcore/storage"
)

type fixedPrice struct{ price *big.Int }

func (f *fixedPrice) FetchPrice(crypto.Address) (*big.Int, error) {
	return new(big.Int).Set(f.price), nil
}

// ledgerSystem prices a single ledger the way the gateway prices all of them.
type ledgerSystem struct{ tm *troves.Manager }

func (s ledgerSystem) GetGlobalSystemBalances() (*big.Int, *big.Int, error) {
	b, err := s.tm.GetEntireSystemBalances()
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).Mul(b.Collateral, b.Price), b.Debt, nil
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
	engine     *Engine
	manager    *troves.Manager
	pool       *stability.Engine
	bank       *bank.Ledger
	price      *fixedPrice
	buf        *events.Buffer
	owner      crypto.Address
	liquidator crypto.Address
	debtToken  crypto.Address
	coll       crypto.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	f := &fixture{
		bank:       bank.NewLedger(),
		price:      &fixedPrice{price: e18(1)},
		buf:        &events.Buffer{},
		owner:      makeAddress(0xF0),
		liquidator: makeAddress(0xEE),
		debtToken:  crypto.ModuleAddress("debt-token"),
		coll:       crypto.ModuleAddress("collateral/test"),
	}
	f.bank.SetState(st)

	core := admin.NewCore()
	core.SetState(st)
	if err := core.Init(admin.Config{Owner: f.owner, FeeReceiver: makeAddress(0xFE)}); err != nil {
		t.Fatalf("admin init: %v", err)
	}

	vault := rewards.NewVault(crypto.ModuleAddress("reward-token"), 0)
	vault.SetState(st)
	vault.SetBank(f.bank)
	vault.SetWeeklyEmission(stability.EmissionID, big.NewInt(0))

	f.pool = stability.NewEngine(f.debtToken)
	f.pool.SetState(st)
	f.pool.SetBank(f.bank)
	f.pool.SetAdmin(core)
	f.pool.SetVault(vault)
	f.pool.SetEmitter(f.buf)
	f.pool.SetBlockTime(100)
	if _, err := f.pool.EnableCollateral(f.coll); err != nil {
		t.Fatalf("enable collateral: %v", err)
	}

	m := troves.NewManager(f.coll, troves.DefaultParameters())
	m.SetState(st)
	m.SetSorted(troves.NewSortedList(f.coll, st))
	m.SetBank(f.bank)
	m.SetDebtToken(f.debtToken)
	m.SetOracle(f.price)
	m.SetAdmin(core)
	m.SetEmitter(f.buf)
	m.SetBlockTime(100)
	if err := m.Init(); err != nil {
		t.Fatalf("troves init: %v", err)
	}
	f.manager = m

	f.engine = NewEngine()
	f.engine.SetStabilityPool(f.pool)
	f.engine.SetSystemView(ledgerSystem{tm: m})
	f.engine.SetEmitter(f.buf)
	f.engine.EnableTroveManager(m)
	return f
}

// open records a position the way the gateway does: collateral sits in the
// ledger account and the gas compensation in the gas pool.
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

func (f *fixture) deposit(t *testing.T, account crypto.Address, amount *big.Int) {
	t.Helper()
	if err := f.bank.Mint(f.debtToken, account, amount); err != nil {
		t.Fatalf("mint deposit: %v", err)
	}
	if err := f.pool.ProvideToSP(account, amount); err != nil {
		t.Fatalf("provide: %v", err)
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

func (f *fixture) count(eventType string) int {
	n := 0
	for _, evt := range f.buf.Events() {
		if evt.EventType() == eventType {
			n++
		}
	}
	return n
}
