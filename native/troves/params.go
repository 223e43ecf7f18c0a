package troves

import (
	"math/big"

	nativecommon "cdpcore/native/common"
)

const (
	// SecondsInYear is the denominator turning annual basis points into a per-second rate.
	SecondsInYear uint64 = 365 * 24 * 60 * 60
	// BootstrapPeriod blocks redemptions right after deployment.
	BootstrapPeriod uint64 = 14 * 24 * 60 * 60
	// SunsettingInterestRateBps is the fixed annual rate of a sunset ledger.
	SunsettingInterestRateBps uint64 = 5000
	// PercentDivisor carves 0.5% of liquidated collateral out as gas compensation.
	PercentDivisor int64 = 200
	// Beta divides the redeemed fraction before it is added to the base rate.
	Beta int64 = 2

	secondsInOneMinute uint64 = 60
	basisPoints        uint64 = 10_000
)

var (
	// CCR is the system-wide critical collateral ratio (150%).
	CCR = nativecommon.MustBigInt("1500000000000000000")
	// MinMCR is the lowest accepted minimum collateral ratio (110%).
	MinMCR = nativecommon.MustBigInt("1100000000000000000")
	// OneHundredPercent is 1e18.
	OneHundredPercent = nativecommon.DecimalPrecision

	minMinuteDecayFactor = nativecommon.MustBigInt("977159968434245000")
	maxMinuteDecayFactor = nativecommon.MustBigInt("999931237762985000")
)

// Parameters are the governance-tunable knobs of a single ledger.
type Parameters struct {
	MCR                 *big.Int
	MinuteDecayFactor   *big.Int
	RedemptionFeeFloor  *big.Int
	MaxRedemptionFee    *big.Int
	BorrowingFeeFloor   *big.Int
	MaxBorrowingFee     *big.Int
	InterestRateBps     uint64
	MaxSystemDebt       *big.Int
	DebtGasCompensation *big.Int
	MinNetDebt          *big.Int
}

// DefaultParameters mirrors a conservative collateral listing.
func DefaultParameters() Parameters {
	return Parameters{
		MCR:                 new(big.Int).Set(MinMCR),
		MinuteDecayFactor:   nativecommon.MustBigInt("999037758833783000"),
		RedemptionFeeFloor:  nativecommon.MustBigInt("5000000000000000"),
		MaxRedemptionFee:    new(big.Int).Set(nativecommon.DecimalPrecision),
		BorrowingFeeFloor:   nativecommon.MustBigInt("5000000000000000"),
		MaxBorrowingFee:     nativecommon.MustBigInt("50000000000000000"),
		InterestRateBps:     0,
		MaxSystemDebt:       nativecommon.MustBigInt("1000000000000000000000000000"),
		DebtGasCompensation: nativecommon.MustBigInt("200000000000000000000"),
		MinNetDebt:          nativecommon.MustBigInt("1800000000000000000000"),
	}
}

// Clone returns a deep copy of the parameters.
func (p Parameters) Clone() Parameters {
	out := p
	out.MCR = nativecommon.Clone(p.MCR)
	out.MinuteDecayFactor = nativecommon.Clone(p.MinuteDecayFactor)
	out.RedemptionFeeFloor = nativecommon.Clone(p.RedemptionFeeFloor)
	out.MaxRedemptionFee = nativecommon.Clone(p.MaxRedemptionFee)
	out.BorrowingFeeFloor = nativecommon.Clone(p.BorrowingFeeFloor)
	out.MaxBorrowingFee = nativecommon.Clone(p.MaxBorrowingFee)
	out.MaxSystemDebt = nativecommon.Clone(p.MaxSystemDebt)
	out.DebtGasCompensation = nativecommon.Clone(p.DebtGasCompensation)
	out.MinNetDebt = nativecommon.Clone(p.MinNetDebt)
	return out
}

func (p *Parameters) normalize() {
	for _, f := range []**big.Int{
		&p.MCR, &p.MinuteDecayFactor, &p.RedemptionFeeFloor, &p.MaxRedemptionFee,
		&p.BorrowingFeeFloor, &p.MaxBorrowingFee, &p.MaxSystemDebt,
		&p.DebtGasCompensation, &p.MinNetDebt,
	} {
		if *f == nil {
			*f = big.NewInt(0)
		}
	}
}

// Validate enforces the bounds governance may choose from.
func (p Parameters) Validate() error {
	p = p.Clone()
	p.normalize()
	if p.MCR.Cmp(MinMCR) < 0 || p.MCR.Cmp(CCR) > 0 {
		return errInvalidMCR
	}
	if p.MinuteDecayFactor.Cmp(minMinuteDecayFactor) < 0 || p.MinuteDecayFactor.Cmp(maxMinuteDecayFactor) > 0 {
		return errInvalidDecayFactor
	}
	if p.RedemptionFeeFloor.Cmp(p.MaxRedemptionFee) > 0 || p.MaxRedemptionFee.Cmp(nativecommon.DecimalPrecision) > 0 {
		return errInvalidFeeBounds
	}
	if p.BorrowingFeeFloor.Cmp(p.MaxBorrowingFee) > 0 || p.MaxBorrowingFee.Cmp(nativecommon.DecimalPrecision) > 0 {
		return errInvalidFeeBounds
	}
	if p.DebtGasCompensation.Sign() <= 0 || p.MinNetDebt.Sign() <= 0 {
		return errInvalidDebtBounds
	}
	return nil
}

// interestRatePerSecond converts annual basis points to a per-second ray rate.
func interestRatePerSecond(bps uint64) *big.Int {
	rate := new(big.Int).Mul(nativecommon.Ray, new(big.Int).SetUint64(bps))
	return rate.Quo(rate, new(big.Int).SetUint64(basisPoints*SecondsInYear))
}
