package borrowing

import (
	"math/big"
	"testing"

	"cdpcore/core/events"
	"cdpcore/core/state"
	"cdpcore/crypto"
	"cdpcore/native/admin"
	"cdpcore/native/bank"
	nativecommon "cdpcore/native/common"
	"cdpcore/native/troves"
	"cdpcore/storage"
)

type priceBook map[string]*big.Int

func (p priceBook) FetchPrice(token crypto.Address) (*big.Int, error) {
	return new(big.Int).Set(p[token.Key()]), nil
}

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.CDPPrefix, raw)
}

func e18(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), nativecommon.DecimalPrecision)
}

// tenths returns v/10 as an 18-decimal value.
func tenths(v int64) *big.Int {
	return new(big.Int).Quo(e18(v), big.NewInt(10))
}

type fixture struct {
	gateway     *Gateway
	st          *state.Manager
	bank        *bank.Ledger
	core        *admin.Core
	prices      priceBook
	buf         *events.Buffer
	owner       crypto.Address
	feeReceiver crypto.Address
	debtToken   crypto.Address
	coll        crypto.Address
	manager     *troves.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		st:          state.NewManager(storage.NewMemDB()),
		bank:        bank.NewLedger(),
		core:        admin.NewCore(),
		prices:      priceBook{},
		buf:         &events.Buffer{},
		owner:       makeAddress(0xF0),
		feeReceiver: makeAddress(0xFE),
		debtToken:   crypto.ModuleAddress("debt-token"),
		coll:        crypto.ModuleAddress("collateral/test"),
	}
	f.bank.SetState(f.st)
	f.core.SetState(f.st)
	if err := f.core.Init(admin.Config{Owner: f.owner, FeeReceiver: f.feeReceiver}); err != nil {
		t.Fatalf("admin init: %v", err)
	}
	f.gateway = NewGateway(f.debtToken)
	f.gateway.SetState(f.st)
	f.gateway.SetBank(f.bank)
	f.gateway.SetAdmin(f.core)
	f.gateway.SetEmitter(f.buf)
	f.manager = f.addLedger(t, f.coll, e18(1))
	f.commit(t)
	return f
}

// addLedger lists a fresh collateral ledger priced at price.
func (f *fixture) addLedger(t *testing.T, coll crypto.Address, price *big.Int) *troves.Manager {
	t.Helper()
	f.prices[coll.Key()] = price
	m := troves.NewManager(coll, troves.DefaultParameters())
	m.SetState(f.st)
	m.SetSorted(troves.NewSortedList(coll, f.st))
	m.SetBank(f.bank)
	m.SetDebtToken(f.debtToken)
	m.SetOracle(f.prices)
	m.SetAdmin(f.core)
	m.SetSystemView(f.gateway)
	m.SetEmitter(f.buf)
	m.SetBlockTime(100)
	if err := m.Init(); err != nil {
		t.Fatalf("troves init: %v", err)
	}
	if err := f.gateway.ConfigureCollateral(f.owner, m); err != nil {
		t.Fatalf("configure collateral: %v", err)
	}
	return m
}

func (f *fixture) commit(t *testing.T) {
	t.Helper()
	if err := f.st.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func (f *fixture) mint(t *testing.T, token, account crypto.Address, amount *big.Int) {
	t.Helper()
	if err := f.bank.Mint(token, account, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

// open funds account with coll and opens a position accepting any fee.
func (f *fixture) open(t *testing.T, collateral, account crypto.Address, coll, debt *big.Int) {
	t.Helper()
	f.mint(t, collateral, account, coll)
	err := f.gateway.OpenTrove(account, collateral, OpenRequest{
		Account:          account,
		MaxFeePercentage: e18(1),
		Coll:             coll,
		Debt:             debt,
	})
	if err != nil {
		t.Fatalf("open trove: %v", err)
	}
	f.commit(t)
}

func (f *fixture) balance(t *testing.T, token, account crypto.Address) *big.Int {
	t.Helper()
	bal, err := f.bank.BalanceOf(token, account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func (f *fixture) trove(t *testing.T, account crypto.Address) *troves.Trove {
	t.Helper()
	tr, err := f.manager.GetTrove(account)
	if err != nil {
		t.Fatalf("get trove: %v", err)
	}
	return tr
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
