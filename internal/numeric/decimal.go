package numeric

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Precision is the number of significant digits kept after a multiplication or
// division. It matches the 34-digit decimal128 context subgraph BigDecimals use, so
// long chains of price products stay bounded.
const Precision = 34

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
	Two  = decimal.NewFromInt(2)
)

// ExponentToDecimal returns 10^decimals.
func ExponentToDecimal(decimals int32) decimal.Decimal {
	return decimal.New(1, decimals)
}

// ConvertTokenToDecimal scales a raw on-chain amount by the token decimals.
// A token with zero decimals is returned unscaled.
func ConvertTokenToDecimal(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return Zero
	}
	if decimals == 0 {
		return decimal.NewFromBigInt(amount, 0)
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// Mul multiplies and rounds the product to Precision significant digits.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return Normalize(a.Mul(b))
}

// Add sums and rounds to Precision significant digits.
func Add(a, b decimal.Decimal) decimal.Decimal {
	return Normalize(a.Add(b))
}

// Sub subtracts and rounds to Precision significant digits.
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return Normalize(a.Sub(b))
}

// Div divides a by b and returns zero when b is zero.
func Div(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return Zero
	}
	if a.IsZero() {
		return Zero
	}
	// one guard digit past Precision for the final rounding
	places := Precision - (adjusted(a) - adjusted(b)) + 1
	if places < 0 {
		places = 0
	}
	return Normalize(a.DivRound(b, places))
}

// adjusted is the exponent of the most significant digit of d.
func adjusted(d decimal.Decimal) int32 {
	return digitCount(d) + d.Exponent() - 1
}

func digitCount(d decimal.Decimal) int32 {
	return int32(len(new(big.Int).Abs(d.Coefficient()).String()))
}

// Normalize rounds d half-away-from-zero to Precision significant digits and strips
// trailing zeros, so equal values always encode to the same string.
func Normalize(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return Zero
	}
	if digits := digitCount(d); digits > Precision {
		places := -d.Exponent() - (digits - Precision)
		d = d.Round(places)
	}
	return trim(d)
}

func trim(d decimal.Decimal) decimal.Decimal {
	c := d.Coefficient()
	exp := d.Exponent()
	if c.Sign() == 0 {
		return Zero
	}
	ten := big.NewInt(10)
	q, r := new(big.Int), new(big.Int)
	for {
		q.QuoRem(c, ten, r)
		if r.Sign() != 0 {
			break
		}
		c = new(big.Int).Set(q)
		exp++
	}
	return decimal.NewFromBigInt(c, exp)
}

// OrZero unwraps an optional decimal, substituting zero when it is unresolved.
func OrZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return Zero
	}
	return d.Decimal
}

// Some wraps a resolved value.
func Some(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
