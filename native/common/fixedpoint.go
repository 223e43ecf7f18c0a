package common

import "math/big"

// Minutes cap for DecPow. Larger exponents are clamped so a base rate that has
// not been touched for a millennium still decays in bounded time.
const maxDecPowMinutes = 525_600_000

var (
	// DecimalPrecision is the 1e18 fixed-point unit used for prices and ratios.
	DecimalPrecision = MustBigInt("1000000000000000000")
	// NICRPrecision scales nominal collateral ratios.
	NICRPrecision = MustBigInt("100000000000000000000")
	// Ray is the 1e27 unit used by interest indexes.
	Ray = MustBigInt("1000000000000000000000000000")
	// MaxUint256 stands in for an infinite ratio when debt is zero.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	halfDecimal = new(big.Int).Rsh(DecimalPrecision, 1)
)

func MustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// Clone returns a copy of v, treating nil as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Min returns a copy of the smaller operand.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Max returns a copy of the larger operand.
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// MulDiv computes a*b/c with truncation. It panics with ErrDivisionByZero
// when c is nil or zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	if c == nil || c.Sign() == 0 {
		panic(ErrDivisionByZero)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// DecMul multiplies two 1e18 fixed-point values rounding half up.
func DecMul(x, y *big.Int) *big.Int {
	prod := new(big.Int).Mul(x, y)
	prod.Add(prod, halfDecimal)
	return prod.Quo(prod, DecimalPrecision)
}

// DecPow raises a 1e18 fixed-point base to an integer power by squaring.
func DecPow(base *big.Int, minutes uint64) *big.Int {
	if minutes > maxDecPowMinutes {
		minutes = maxDecPowMinutes
	}
	if minutes == 0 {
		return new(big.Int).Set(DecimalPrecision)
	}
	y := new(big.Int).Set(DecimalPrecision)
	x := new(big.Int).Set(base)
	n := minutes
	for n > 1 {
		if n%2 == 0 {
			x = DecMul(x, x)
			n /= 2
		} else {
			y = DecMul(x, y)
			x = DecMul(x, x)
			n = (n - 1) / 2
		}
	}
	return DecMul(x, y)
}

// ComputeCR returns coll*price/debt, or MaxUint256 when debt is zero.
func ComputeCR(coll, debt, price *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(MaxUint256)
	}
	out := new(big.Int).Mul(coll, price)
	return out.Quo(out, debt)
}

// ComputeNominalCR returns coll*1e20/debt, the price-independent ordering key.
func ComputeNominalCR(coll, debt *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(MaxUint256)
	}
	out := new(big.Int).Mul(coll, NICRPrecision)
	return out.Quo(out, debt)
}
