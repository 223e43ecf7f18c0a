package troves

import (
	"errors"
	"math/big"
	"testing"

	"cdpcore/crypto"
	nativecommon "cdpcore/native/common"
)

func TestOpenCloseRestoresTotals(t *testing.T) {
	f := newFixture(t, DefaultParameters())
	owner := makeAddress(1)
	coll := big.NewInt(1000)
	debt := big.NewInt(100)
	if err := f.bank.Mint(f.coll, f.manager.Account(), coll); err != nil {
		t.Fatalf("mint: %v", err)
	}
	nicr := nativecommon.ComputeNominalCR(coll, debt)
	if _, idx, err := f.manager.OpenTrove(owner, coll, debt, nicr, crypto.Address{}, crypto.Address{}); err != nil || idx != 0 {
		t.Fatalf("open: idx=%d err=%v", idx, err)
	}
	if _, _, err := f.manager.OpenTrove(owner, coll, debt, nicr, crypto.Address{}, crypto.Address{}); !errors.Is(err, ErrTroveActive) {
		t.Fatalf("expected ErrTroveActive, got %v", err)
	}
	if err := f.manager.CloseTrove(owner, owner, coll, debt); err != nil {
		t.Fatalf("close: %v", err)
	}
	l, err := f.manager.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if l.ActiveDebt.Sign() != 0 || l.ActiveCollateral.Sign() != 0 || l.TotalStakes.Sign() != 0 || l.OwnerCount != 0 {
		t.Fatalf("ledger not restored: debt=%s coll=%s stakes=%s owners=%d", l.ActiveDebt, l.ActiveCollateral, l.TotalStakes, l.OwnerCount)
	}
	if got := f.balance(t, f.coll, owner); got.Cmp(coll) != 0 {
		t.Fatalf("collateral not returned: %s", got)
	}
	status, err := f.manager.GetTroveStatus(owner)
	if err != nil || status != StatusClosedByOwner {
		t.Fatalf("unexpected status %s err=%v", status, err)
	}
	if size, _ := f.manager.Sorted().Size(); size != 0 {
		t.Fatalf("sorted list not empty: %d", size)
	}
}

func TestCloseSwapsLastOwnerIntoSlot(t *testing.T) {
	f := newFixture(t, DefaultParameters())
	a, b, c := makeAddress(1), makeAddress(2), makeAddress(3)
	f.open(t, a, e18(3000), e18(2000))
	f.open(t, b, e18(4000), e18(2000))
	f.open(t, c, e18(5000), e18(2000))
	if err := f.manager.CloseTrove(a, a, e18(3000), e18(2000)); err != nil {
		t.Fatalf("close: %v", err)
	}
	owner, err := f.manager.GetTroveFromTroveOwnersArray(0)
	if err != nil {
		t.Fatalf("owners array: %v", err)
	}
	if !owner.Equal(c) {
		t.Fatalf("expected last owner moved into slot 0, got %s", owner)
	}
	moved, _ := f.manager.GetTrove(c)
	if moved.ArrayIndex != 0 {
		t.Fatalf("moved trove index not updated: %d", moved.ArrayIndex)
	}
	if count, _ := f.manager.GetTroveOwnersCount(); count != 2 {
		t.Fatalf("expected 2 owners, got %d", count)
	}
}

func TestApplyPendingRewardsIsIdempotent(t *testing.T) {
	f := newFixture(t, DefaultParameters())
	a, b := makeAddress(1), makeAddress(2)
	f.open(t, a, e18(3000), e18(2000))
	f.open(t, b, e18(4000), e18(2000))

	l, err := f.manager.loadLedger()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := f.manager.redistributeDebtAndColl(l, e18(300), e18(600)); err != nil {
		t.Fatalf("redistribute: %v", err)
	}
	if err := f.manager.storeLedger(l); err != nil {
		t.Fatalf("store: %v", err)
	}

	pendingColl, pendingDebt, err := f.manager.GetPendingCollAndDebtRewards(a)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pendingColl.Sign() <= 0 || pendingDebt.Sign() <= 0 {
		t.Fatalf("expected pending rewards, got coll=%s debt=%s", pendingColl, pendingDebt)
	}
	coll1, debt1, err := f.manager.ApplyPendingRewards(a)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if want := new(big.Int).Add(e18(3000), pendingColl); coll1.Cmp(want) != 0 {
		t.Fatalf("coll after apply = %s, want %s", coll1, want)
	}
	before, _ := f.manager.Snapshot()
	coll2, debt2, err := f.manager.ApplyPendingRewards(a)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	after, _ := f.manager.Snapshot()
	if coll1.Cmp(coll2) != 0 || debt1.Cmp(debt2) != 0 {
		t.Fatalf("second apply changed position: %s/%s vs %s/%s", coll1, debt1, coll2, debt2)
	}
	if before.ActiveDebt.Cmp(after.ActiveDebt) != 0 || before.DefaultedCollateral.Cmp(after.DefaultedCollateral) != 0 {
		t.Fatalf("second apply moved ledger totals")
	}
	if pc, pd, _ := f.manager.GetPendingCollAndDebtRewards(a); pc.Sign() != 0 || pd.Sign() != 0 {
		t.Fatalf("pending rewards not cleared: %s/%s", pc, pd)
	}
}

func redemptionFixture(t *testing.T) (*fixture, crypto.Address, crypto.Address, crypto.Address, crypto.Address) {
	t.Helper()
	f := newFixture(t, DefaultParameters())
	a, b, c := makeAddress(1), makeAddress(2), makeAddress(3)
	f.open(t, a, e18(3000), e18(2000))
	f.open(t, b, e18(8000), e18(4000))
	f.open(t, c, e18(5000), e18(2000))
	redeemer := makeAddress(9)
	if err := f.bank.Mint(f.debtToken, redeemer, e18(2500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.manager.SetBlockTime(BootstrapPeriod)
	return f, a, b, c, redeemer
}

func TestRedemptionWalksRiskiestFirst(t *testing.T) {
	f, a, b, c, redeemer := redemptionFixture(t)
	res, err := f.manager.RedeemCollateral(redeemer, e18(2500), RedemptionHints{}, 0, OneHundredPercent)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if res.TrovesTouched != 2 || res.DebtRedeemed.Cmp(e18(2500)) != 0 || res.CollateralDrawn.Cmp(e18(2500)) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if status, _ := f.manager.GetTroveStatus(a); status != StatusClosedByRedemption {
		t.Fatalf("riskiest trove should be closed by redemption, got %s", status)
	}
	if surplus, _ := f.manager.SurplusBalance(a); surplus.Cmp(e18(1200)) != 0 {
		t.Fatalf("surplus = %s", surplus)
	}
	tb, _ := f.manager.GetTrove(b)
	if tb.Debt.Cmp(e18(3300)) != 0 || tb.Coll.Cmp(e18(7300)) != 0 {
		t.Fatalf("partial redemption mismatch: debt=%s coll=%s", tb.Debt, tb.Coll)
	}
	tc, _ := f.manager.GetTrove(c)
	if tc.Debt.Cmp(e18(2000)) != 0 || tc.Coll.Cmp(e18(5000)) != 0 {
		t.Fatalf("safest trove should be untouched")
	}
	fee := nativecommon.MustBigInt("403125000000000000000")
	if res.CollateralFee.Cmp(fee) != 0 {
		t.Fatalf("fee = %s, want %s", res.CollateralFee, fee)
	}
	if got := f.balance(t, f.coll, redeemer); got.Cmp(new(big.Int).Sub(e18(2500), fee)) != 0 {
		t.Fatalf("redeemer collateral = %s", got)
	}
	if got := f.balance(t, f.coll, f.core.receiver); got.Cmp(fee) != 0 {
		t.Fatalf("fee receiver collateral = %s", got)
	}
	if got := f.balance(t, f.debtToken, redeemer); got.Sign() != 0 {
		t.Fatalf("redeemer debt tokens not burned: %s", got)
	}
	l, _ := f.manager.Snapshot()
	if l.ActiveDebt.Cmp(e18(5300)) != 0 || l.ActiveCollateral.Cmp(e18(12300)) != 0 {
		t.Fatalf("ledger totals debt=%s coll=%s", l.ActiveDebt, l.ActiveCollateral)
	}
	if l.BaseRate.Cmp(nativecommon.MustBigInt("156250000000000000")) != 0 {
		t.Fatalf("base rate = %s", l.BaseRate)
	}

	claimed, err := f.manager.ClaimCollateral(a, a)
	if err != nil || claimed.Cmp(e18(1200)) != 0 {
		t.Fatalf("claim: %s %v", claimed, err)
	}
	if _, err := f.manager.ClaimCollateral(a, a); !errors.Is(err, ErrNoSurplus) {
		t.Fatalf("expected ErrNoSurplus, got %v", err)
	}
}

func TestRedemptionRejectsFeeAboveMax(t *testing.T) {
	f, _, _, _, redeemer := redemptionFixture(t)
	maxFee := nativecommon.MustBigInt("100000000000000000")
	if _, err := f.manager.RedeemCollateral(redeemer, e18(2500), RedemptionHints{}, 0, maxFee); !errors.Is(err, ErrFeeExceedsMax) {
		t.Fatalf("expected ErrFeeExceedsMax, got %v", err)
	}
}

func TestRedemptionBootstrapAndBounds(t *testing.T) {
	f, _, _, _, redeemer := redemptionFixture(t)
	f.manager.SetBlockTime(BootstrapPeriod - 1)
	if _, err := f.manager.RedeemCollateral(redeemer, e18(100), RedemptionHints{}, 0, OneHundredPercent); !errors.Is(err, ErrBootstrapPeriod) {
		t.Fatalf("expected ErrBootstrapPeriod, got %v", err)
	}
	f.manager.SetBlockTime(BootstrapPeriod)
	if _, err := f.manager.RedeemCollateral(redeemer, e18(100), RedemptionHints{}, 0, big.NewInt(1)); !errors.Is(err, ErrInvalidMaxFee) {
		t.Fatalf("expected ErrInvalidMaxFee, got %v", err)
	}
	if _, err := f.manager.RedeemCollateral(redeemer, e18(5000), RedemptionHints{}, 0, OneHundredPercent); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestInterestAccruesLazily(t *testing.T) {
	params := DefaultParameters()
	params.InterestRateBps = 1000
	f := newFixture(t, params)
	a := makeAddress(1)
	f.open(t, a, e18(5000), e18(2000))

	f.manager.SetBlockTime(SecondsInYear)
	stored, _ := f.manager.GetTrove(a)
	if stored.Debt.Cmp(e18(2000)) != 0 {
		t.Fatalf("stored debt should not move until touched: %s", stored.Debt)
	}
	entire, err := f.manager.GetEntireDebtAndColl(a)
	if err != nil {
		t.Fatalf("entire: %v", err)
	}
	if entire.Debt.Cmp(e18(2199)) <= 0 || entire.Debt.Cmp(e18(2200)) > 0 {
		t.Fatalf("debt after a year at 10%% = %s", entire.Debt)
	}
	amount, err := f.manager.CollectInterests()
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if amount.Cmp(e18(199)) <= 0 || amount.Cmp(e18(200)) > 0 {
		t.Fatalf("collected %s", amount)
	}
	if got := f.balance(t, f.debtToken, f.core.receiver); got.Cmp(amount) != 0 {
		t.Fatalf("receiver balance %s", got)
	}
	if _, err := f.manager.CollectInterests(); !errors.Is(err, ErrNothingToCollect) {
		t.Fatalf("expected ErrNothingToCollect, got %v", err)
	}
}

func TestSunsetBlocksNewDebt(t *testing.T) {
	f := newFixture(t, DefaultParameters())
	if err := f.manager.StartSunset(makeAddress(1)); !errors.Is(err, errNotOwner) {
		t.Fatalf("expected owner check, got %v", err)
	}
	if err := f.manager.StartSunset(f.core.owner); err != nil {
		t.Fatalf("sunset: %v", err)
	}
	l, _ := f.manager.Snapshot()
	if !l.Sunsetting || l.InterestRate.Cmp(interestRatePerSecond(SunsettingInterestRateBps)) != 0 || l.Params.MaxSystemDebt.Sign() != 0 {
		t.Fatalf("sunset not applied: %+v", l)
	}
	nicr := nativecommon.ComputeNominalCR(e18(10), e18(1))
	if _, _, err := f.manager.OpenTrove(makeAddress(2), e18(10), e18(1), nicr, crypto.Address{}, crypto.Address{}); !errors.Is(err, ErrSunsetting) {
		t.Fatalf("expected ErrSunsetting, got %v", err)
	}
	if err := f.manager.SetParameters(f.core.owner, DefaultParameters()); !errors.Is(err, ErrSunsetting) {
		t.Fatalf("expected ErrSunsetting, got %v", err)
	}
}

func TestBorrowingFeeDecays(t *testing.T) {
	f := newFixture(t, DefaultParameters())
	l, _ := f.manager.loadLedger()
	l.BaseRate = nativecommon.MustBigInt("40000000000000000")
	_ = f.manager.storeLedger(l)

	rate, err := f.manager.GetBorrowingRate()
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if want := nativecommon.MustBigInt("45000000000000000"); rate.Cmp(want) != 0 {
		t.Fatalf("borrowing rate = %s, want %s", rate, want)
	}
	f.manager.SetBlockTime(12 * 60 * 60)
	decayed, _ := f.manager.GetBorrowingRateWithDecay()
	lo := nativecommon.MustBigInt("24990000000000000")
	hi := nativecommon.MustBigInt("25010000000000000")
	if decayed.Cmp(lo) < 0 || decayed.Cmp(hi) > 0 {
		t.Fatalf("half-life decay gave %s", decayed)
	}
	fee, err := f.manager.DecayBaseRateAndGetBorrowingFee(e18(1000))
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	if want := nativecommon.MulDiv(decayed, e18(1000), nativecommon.DecimalPrecision); fee.Cmp(want) != 0 {
		t.Fatalf("fee = %s, want %s", fee, want)
	}
	l, _ = f.manager.Snapshot()
	if l.LastFeeOperationTime != 12*60*60 {
		t.Fatalf("fee operation time not advanced: %d", l.LastFeeOperationTime)
	}
}
