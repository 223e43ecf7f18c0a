package borrowing

import (
	"errors"
	"math/big"
	"testing"

	"cdpcore/core/events"
	"cdpcore/crypto"
	"cdpcore/native/admin"
	"cdpcore/native/bank"
	nativecommon "cdpcore/native/common"
	"cdpcore/native/troves"
)

func TestOpenChargesFeeAndGasCompensation(t *testing.T) {
	f := newFixture(t)
	alice := makeAddress(1)
	f.open(t, f.coll, alice, e18(4000), e18(2000))

	if got := f.balance(t, f.debtToken, alice); got.Cmp(e18(2000)) != 0 {
		t.Fatalf("borrower balance %s, want 2000e18", got)
	}
	if got := f.balance(t, f.debtToken, f.feeReceiver); got.Cmp(e18(10)) != 0 {
		t.Fatalf("fee receiver balance %s, want 10e18", got)
	}
	if got := f.balance(t, f.debtToken, bank.GasPool); got.Cmp(e18(200)) != 0 {
		t.Fatalf("gas pool balance %s, want 200e18", got)
	}
	if got := f.balance(t, f.coll, f.manager.Account()); got.Cmp(e18(4000)) != 0 {
		t.Fatalf("ledger collateral %s, want 4000e18", got)
	}
	tr := f.trove(t, alice)
	if tr.Status != troves.StatusActive || tr.Debt.Cmp(e18(2210)) != 0 || tr.Coll.Cmp(e18(4000)) != 0 {
		t.Fatalf("unexpected trove: status=%s coll=%s debt=%s", tr.Status, tr.Coll, tr.Debt)
	}
	if n := f.count(events.TypeBorrowingFeePaid); n != 1 {
		t.Fatalf("expected one fee event, got %d", n)
	}

	f.mint(t, f.coll, alice, e18(4000))
	err := f.gateway.OpenTrove(alice, f.coll, OpenRequest{Account: alice, MaxFeePercentage: e18(1), Coll: e18(4000), Debt: e18(2000)})
	if !errors.Is(err, troves.ErrTroveActive) {
		t.Fatalf("expected ErrTroveActive, got %v", err)
	}
}

func TestOpenValidation(t *testing.T) {
	f := newFixture(t)
	bob := makeAddress(2)
	f.mint(t, f.coll, bob, e18(10000))
	f.commit(t)

	cases := []struct {
		name   string
		coll   *big.Int
		debt   *big.Int
		maxFee *big.Int
		want   error
	}{
		{"net debt below minimum", e18(4000), e18(1700), e18(1), ErrNetDebtBelowMin},
		{"icr below mcr", e18(2300), e18(2000), e18(1), ErrICRBelowMCR},
		{"tcr below ccr", e18(3000), e18(2000), e18(1), ErrTCRBelowCCR},
		{"max fee below floor", e18(4000), e18(2000), big.NewInt(1_000_000_000_000_000), ErrInvalidMaxFee},
		{"max fee above 100%", e18(4000), e18(2000), e18(2), ErrInvalidMaxFee},
		{"zero collateral", big.NewInt(0), e18(2000), e18(1), troves.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.gateway.OpenTrove(bob, f.coll, OpenRequest{Account: bob, MaxFeePercentage: tc.maxFee, Coll: tc.coll, Debt: tc.debt})
			f.st.Rollback()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if status, _ := f.manager.GetTroveStatus(bob); status != troves.StatusNonExistent {
		t.Fatalf("failed opens left a position behind: %s", status)
	}
	if got := f.balance(t, f.debtToken, f.feeReceiver); got.Sign() != 0 {
		t.Fatalf("rolled back fees leaked: %s", got)
	}

	err := f.gateway.OpenTrove(bob, crypto.ModuleAddress("collateral/unknown"), OpenRequest{Account: bob, MaxFeePercentage: e18(1), Coll: e18(4000), Debt: e18(2000)})
	if !errors.Is(err, ErrTroveManagerNotListed) {
		t.Fatalf("expected ErrTroveManagerNotListed, got %v", err)
	}
}

func TestAdjustInNormalMode(t *testing.T) {
	f := newFixture(t)
	alice, bob := makeAddress(1), makeAddress(2)
	f.open(t, f.coll, alice, e18(4000), e18(2000))

	if err := f.gateway.WithdrawDebt(alice, f.coll, alice, e18(1), e18(500), crypto.Address{}, crypto.Address{}); !errors.Is(err, ErrTCRBelowCCR) {
		t.Fatalf("expected ErrTCRBelowCCR, got %v", err)
	}
	f.st.Rollback()

	if err := f.gateway.WithdrawDebt(alice, f.coll, alice, e18(1), e18(300), crypto.Address{}, crypto.Address{}); err != nil {
		t.Fatalf("withdraw debt: %v", err)
	}
	f.commit(t)
	if got := f.trove(t, alice).Debt; got.Cmp(tenths(25115)) != 0 {
		t.Fatalf("debt after draw %s, want 2511.5e18", got)
	}
	if got := f.balance(t, f.debtToken, alice); got.Cmp(e18(2300)) != 0 {
		t.Fatalf("borrower balance %s, want 2300e18", got)
	}
	if got := f.balance(t, f.debtToken, f.feeReceiver); got.Cmp(tenths(115)) != 0 {
		t.Fatalf("fee receiver balance %s, want 11.5e18", got)
	}

	for _, tc := range []struct {
		amount *big.Int
		want   error
	}{
		{e18(2400), ErrRepaymentExceedsNetDebt},
		{e18(600), ErrNetDebtBelowMin},
	} {
		err := f.gateway.RepayDebt(alice, f.coll, alice, tc.amount, crypto.Address{}, crypto.Address{})
		f.st.Rollback()
		if !errors.Is(err, tc.want) {
			t.Fatalf("repay %s: expected %v, got %v", tc.amount, tc.want, err)
		}
	}
	if err := f.gateway.RepayDebt(alice, f.coll, alice, e18(300), crypto.Address{}, crypto.Address{}); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if got := f.trove(t, alice).Debt; got.Cmp(tenths(22115)) != 0 {
		t.Fatalf("debt after repay %s, want 2211.5e18", got)
	}
	if got := f.balance(t, f.debtToken, alice); got.Cmp(e18(2000)) != 0 {
		t.Fatalf("borrower balance %s, want 2000e18", got)
	}

	if err := f.gateway.WithdrawColl(alice, f.coll, alice, e18(500), crypto.Address{}, crypto.Address{}); err != nil {
		t.Fatalf("withdraw coll: %v", err)
	}
	if got := f.balance(t, f.coll, alice); got.Cmp(e18(500)) != 0 {
		t.Fatalf("withdrawn collateral %s, want 500e18", got)
	}
	if got := f.trove(t, alice).Coll; got.Cmp(e18(3500)) != 0 {
		t.Fatalf("trove collateral %s, want 3500e18", got)
	}
	f.commit(t)

	err := f.gateway.AdjustTrove(alice, f.coll, AdjustRequest{Account: alice, CollDeposit: e18(1), CollWithdrawal: e18(1)})
	if !errors.Is(err, ErrCollDepositAndWithdraw) {
		t.Fatalf("expected ErrCollDepositAndWithdraw, got %v", err)
	}
	if err := f.gateway.AdjustTrove(alice, f.coll, AdjustRequest{Account: alice}); !errors.Is(err, ErrZeroAdjustment) {
		t.Fatalf("expected ErrZeroAdjustment, got %v", err)
	}
	err = f.gateway.AdjustTrove(alice, f.coll, AdjustRequest{Account: alice, IsDebtIncrease: true, MaxFeePercentage: e18(1)})
	if !errors.Is(err, ErrZeroDebtChange) {
		t.Fatalf("expected ErrZeroDebtChange, got %v", err)
	}
	if err := f.gateway.WithdrawColl(alice, f.coll, alice, e18(5000), crypto.Address{}, crypto.Address{}); !errors.Is(err, ErrCollWithdrawalExceeds) {
		t.Fatalf("expected ErrCollWithdrawalExceeds, got %v", err)
	}
	if err := f.gateway.AddColl(bob, f.coll, bob, e18(1), crypto.Address{}, crypto.Address{}); !errors.Is(err, ErrTroveNotActive) {
		t.Fatalf("expected ErrTroveNotActive, got %v", err)
	}
}

func TestRecoveryModeRestrictions(t *testing.T) {
	f := newFixture(t)
	alice, bob := makeAddress(1), makeAddress(2)
	f.open(t, f.coll, alice, e18(4000), e18(2000))
	f.mint(t, f.coll, bob, e18(5000))
	f.commit(t)
	f.prices[f.coll.Key()] = tenths(8)

	recovery, err := f.gateway.IsRecoveryMode()
	if err != nil || !recovery {
		t.Fatalf("expected recovery mode, got %v err=%v", recovery, err)
	}

	attempts := []struct {
		name string
		run  func() error
		want error
	}{
		{"open below ccr", func() error {
			return f.gateway.OpenTrove(bob, f.coll, OpenRequest{Account: bob, MaxFeePercentage: big.NewInt(0), Coll: e18(3000), Debt: e18(2000)})
		}, ErrICRBelowCCR},
		{"max fee above 100%", func() error {
			return f.gateway.OpenTrove(bob, f.coll, OpenRequest{Account: bob, MaxFeePercentage: e18(2), Coll: e18(5000), Debt: e18(2000)})
		}, ErrInvalidMaxFee},
		{"collateral withdrawal", func() error {
			return f.gateway.WithdrawColl(alice, f.coll, alice, e18(1), crypto.Address{}, crypto.Address{})
		}, ErrCollWithdrawalRecovery},
		{"debt increase below ccr", func() error {
			return f.gateway.WithdrawDebt(alice, f.coll, alice, big.NewInt(0), e18(100), crypto.Address{}, crypto.Address{})
		}, ErrICRBelowCCR},
		{"close", func() error {
			return f.gateway.CloseTrove(alice, f.coll, alice)
		}, ErrRecoveryMode},
	}
	for _, tc := range attempts {
		err := tc.run()
		f.st.Rollback()
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	err = f.gateway.OpenTrove(bob, f.coll, OpenRequest{Account: bob, MaxFeePercentage: big.NewInt(0), Coll: e18(5000), Debt: e18(2000)})
	if err != nil {
		t.Fatalf("open in recovery: %v", err)
	}
	if got := f.trove(t, bob).Debt; got.Cmp(e18(2200)) != 0 {
		t.Fatalf("recovery open should skip the fee, debt %s", got)
	}
	if got := f.balance(t, f.debtToken, f.feeReceiver); got.Cmp(e18(10)) != 0 {
		t.Fatalf("fee receiver balance %s, want 10e18", got)
	}
	if recovery, _ := f.gateway.IsRecoveryMode(); recovery {
		t.Fatalf("healthy open should lift the system out of recovery")
	}
}

func TestDelegateApproval(t *testing.T) {
	f := newFixture(t)
	alice, bob := makeAddress(1), makeAddress(2)
	f.mint(t, f.coll, bob, e18(4000))
	req := OpenRequest{Account: alice, MaxFeePercentage: e18(1), Coll: e18(4000), Debt: e18(2000)}

	if err := f.gateway.OpenTrove(bob, f.coll, req); !errors.Is(err, ErrNotDelegate) {
		t.Fatalf("expected ErrNotDelegate, got %v", err)
	}
	if err := f.gateway.SetDelegateApproval(alice, bob, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if ok, err := f.gateway.IsApprovedDelegate(alice, bob); err != nil || !ok {
		t.Fatalf("approval not visible: %v %v", ok, err)
	}
	if err := f.gateway.OpenTrove(bob, f.coll, req); err != nil {
		t.Fatalf("delegate open: %v", err)
	}
	if tr := f.trove(t, alice); tr.Status != troves.StatusActive {
		t.Fatalf("position should belong to the account, status %s", tr.Status)
	}
	if got := f.balance(t, f.debtToken, bob); got.Cmp(e18(2000)) != 0 {
		t.Fatalf("delegate should receive the debt, got %s", got)
	}
	if got := f.balance(t, f.debtToken, alice); got.Sign() != 0 {
		t.Fatalf("account should receive nothing, got %s", got)
	}

	if err := f.gateway.SetDelegateApproval(alice, bob, false); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := f.gateway.RepayDebt(bob, f.coll, alice, e18(100), crypto.Address{}, crypto.Address{}); !errors.Is(err, ErrNotDelegate) {
		t.Fatalf("expected ErrNotDelegate after revoke, got %v", err)
	}
	if n := f.count(events.TypeDelegateApproval); n != 2 {
		t.Fatalf("expected two approval events, got %d", n)
	}
}

func TestPauseBlocksOnlyNewRisk(t *testing.T) {
	f := newFixture(t)
	alice, bob := makeAddress(1), makeAddress(2)
	f.open(t, f.coll, alice, e18(4000), e18(2000))
	f.mint(t, f.coll, alice, e18(100))
	f.mint(t, f.coll, bob, e18(4000))
	if err := f.core.SetModulePaused(f.owner, ModuleName, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	f.commit(t)

	if err := f.gateway.OpenTrove(bob, f.coll, OpenRequest{Account: bob, MaxFeePercentage: e18(1), Coll: e18(4000), Debt: e18(2000)}); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("open: expected ErrModulePaused, got %v", err)
	}
	if err := f.gateway.AddColl(alice, f.coll, alice, e18(100), crypto.Address{}, crypto.Address{}); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("deposit: expected ErrModulePaused, got %v", err)
	}
	if err := f.gateway.WithdrawDebt(alice, f.coll, alice, e18(1), e18(100), crypto.Address{}, crypto.Address{}); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("draw: expected ErrModulePaused, got %v", err)
	}
	if err := f.gateway.RepayDebt(alice, f.coll, alice, e18(100), crypto.Address{}, crypto.Address{}); err != nil {
		t.Fatalf("repay while paused: %v", err)
	}
	if err := f.gateway.WithdrawColl(alice, f.coll, alice, e18(100), crypto.Address{}, crypto.Address{}); err != nil {
		t.Fatalf("withdraw while paused: %v", err)
	}
	if got := f.trove(t, alice); got.Debt.Cmp(e18(2110)) != 0 || got.Coll.Cmp(e18(3900)) != 0 {
		t.Fatalf("unexpected trove: coll=%s debt=%s", got.Coll, got.Debt)
	}
}

func TestCloseRestoresBalances(t *testing.T) {
	f := newFixture(t)
	alice, bob := makeAddress(1), makeAddress(2)
	f.open(t, f.coll, bob, e18(3400), e18(2000))
	f.open(t, f.coll, alice, e18(4000), e18(2000))

	f.prices[f.coll.Key()] = tenths(9)
	if err := f.gateway.CloseTrove(alice, f.coll, alice); !errors.Is(err, ErrTCRBelowCCR) {
		t.Fatalf("expected ErrTCRBelowCCR, got %v", err)
	}
	f.st.Rollback()
	f.prices[f.coll.Key()] = e18(1)

	// The borrowing fee leaves the borrower 10e18 short of the recorded net debt.
	if err := f.gateway.CloseTrove(alice, f.coll, alice); !errors.Is(err, bank.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	f.st.Rollback()

	f.mint(t, f.debtToken, alice, e18(10))
	if err := f.gateway.CloseTrove(alice, f.coll, alice); err != nil {
		t.Fatalf("close: %v", err)
	}
	f.commit(t)
	if got := f.balance(t, f.coll, alice); got.Cmp(e18(4000)) != 0 {
		t.Fatalf("collateral not returned: %s", got)
	}
	if got := f.balance(t, f.debtToken, alice); got.Sign() != 0 {
		t.Fatalf("debt not burned: %s", got)
	}
	if got := f.balance(t, f.debtToken, bank.GasPool); got.Cmp(e18(200)) != 0 {
		t.Fatalf("gas pool %s, want 200e18", got)
	}
	l, err := f.manager.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if l.ActiveDebt.Cmp(e18(2210)) != 0 || l.ActiveCollateral.Cmp(e18(3400)) != 0 || l.OwnerCount != 1 {
		t.Fatalf("ledger totals: debt=%s coll=%s owners=%d", l.ActiveDebt, l.ActiveCollateral, l.OwnerCount)
	}
	if status, _ := f.manager.GetTroveStatus(alice); status != troves.StatusClosedByOwner {
		t.Fatalf("unexpected status %s", status)
	}
	if err := f.gateway.CloseTrove(alice, f.coll, alice); !errors.Is(err, ErrTroveNotActive) {
		t.Fatalf("expected ErrTroveNotActive, got %v", err)
	}
}

func TestTCRSpansAllListedLedgers(t *testing.T) {
	f := newFixture(t)
	alice, bob := makeAddress(1), makeAddress(2)
	second := crypto.ModuleAddress("collateral/second")
	f.addLedger(t, second, e18(2))
	f.commit(t)

	f.open(t, f.coll, alice, e18(4000), e18(2000))
	f.open(t, second, bob, e18(2000), e18(2000))

	priced, debt, err := f.gateway.GetGlobalSystemBalances()
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	wantPriced := new(big.Int).Mul(e18(8000), nativecommon.DecimalPrecision)
	if priced.Cmp(wantPriced) != 0 || debt.Cmp(e18(4420)) != 0 {
		t.Fatalf("system balances priced=%s debt=%s", priced, debt)
	}
	tcr, err := f.gateway.GetTCR()
	if err != nil {
		t.Fatalf("tcr: %v", err)
	}
	if want := nativecommon.ComputeCR(e18(8000), e18(4420), e18(1)); tcr.Cmp(want) != 0 {
		t.Fatalf("tcr %s, want %s", tcr, want)
	}
	list, err := f.gateway.TroveManagers()
	if err != nil || len(list) != 2 || !list[0].Equal(f.coll) || !list[1].Equal(second) {
		t.Fatalf("listing order: %v %v", list, err)
	}

	if !CheckRecoveryMode(new(big.Int).Sub(troves.CCR, big.NewInt(1))) || CheckRecoveryMode(troves.CCR) {
		t.Fatalf("recovery threshold must be strictly below CCR")
	}
}

func TestRemoveTroveManager(t *testing.T) {
	f := newFixture(t)
	alice := makeAddress(1)

	if err := f.gateway.ConfigureCollateral(f.owner, f.manager); !errors.Is(err, ErrAlreadyListed) {
		t.Fatalf("expected ErrAlreadyListed, got %v", err)
	}
	other := troves.NewManager(crypto.ModuleAddress("collateral/other"), troves.DefaultParameters())
	if err := f.gateway.ConfigureCollateral(alice, other); !errors.Is(err, admin.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.gateway.RemoveTroveManager(f.coll); !errors.Is(err, ErrCannotRemove) {
		t.Fatalf("active ledger: expected ErrCannotRemove, got %v", err)
	}

	f.open(t, f.coll, alice, e18(4000), e18(2000))
	if err := f.manager.StartSunset(f.owner); err != nil {
		t.Fatalf("sunset: %v", err)
	}
	if err := f.gateway.RemoveTroveManager(f.coll); !errors.Is(err, ErrCannotRemove) {
		t.Fatalf("indebted ledger: expected ErrCannotRemove, got %v", err)
	}

	f.mint(t, f.debtToken, alice, e18(10))
	if err := f.gateway.CloseTrove(alice, f.coll, alice); err != nil {
		t.Fatalf("close while sunsetting: %v", err)
	}
	f.buf.Reset()
	if err := f.gateway.RemoveTroveManager(f.coll); err != nil {
		t.Fatalf("remove: %v", err)
	}
	f.commit(t)
	if list, _ := f.gateway.TroveManagers(); len(list) != 0 {
		t.Fatalf("ledger still listed: %v", list)
	}
	if n := f.count(events.TypeTroveManagerRemoved); n != 1 {
		t.Fatalf("expected one removal event, got %d", n)
	}
	if err := f.gateway.RemoveTroveManager(f.coll); !errors.Is(err, ErrTroveManagerNotListed) {
		t.Fatalf("expected ErrTroveManagerNotListed, got %v", err)
	}
	f.mint(t, f.coll, alice, e18(4000))
	err := f.gateway.OpenTrove(alice, f.coll, OpenRequest{Account: alice, MaxFeePercentage: e18(1), Coll: e18(4000), Debt: e18(2000)})
	if !errors.Is(err, ErrTroveManagerNotListed) {
		t.Fatalf("expected ErrTroveManagerNotListed, got %v", err)
	}
}
