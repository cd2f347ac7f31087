// Package fixedpoint implements the integer arithmetic used for pricing.
// Every amount is a uint256 count of base units and every division states
// its rounding direction.
package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrDivisionByZero     = errors.New("division by zero")
)

// Rounding selects the direction of an inexact division.
type Rounding int

const (
	RoundDown Rounding = iota
	RoundUp
)

func (r Rounding) String() string {
	if r == RoundUp {
		return "up"
	}
	return "down"
}

// MaxReserve bounds every reserve and share supply (2^112 - 1). A product of
// two bounded values always fits in 256 bits.
var MaxReserve = func() uint256.Int {
	var v uint256.Int
	v.Lsh(uint256.NewInt(1), 112)
	v.SubUint64(&v, 1)
	return v
}()

// Zero returns the zero amount.
func Zero() uint256.Int {
	return uint256.Int{}
}

// FromUint64 converts a uint64 to an amount.
func FromUint64(v uint64) uint256.Int {
	var out uint256.Int
	out.SetUint64(v)
	return out
}

// MulDiv returns a*b/d rounded as requested, using a 512-bit intermediate.
func MulDiv(a, b, d uint256.Int, rounding Rounding) (uint256.Int, error) {
	if d.IsZero() {
		return uint256.Int{}, ErrDivisionByZero
	}

	var q uint256.Int
	if _, overflow := q.MulDivOverflow(&a, &b, &d); overflow {
		return uint256.Int{}, fmt.Errorf("%w: %s*%s/%s", ErrArithmeticOverflow, a.Dec(), b.Dec(), d.Dec())
	}

	if rounding == RoundUp {
		var rem uint256.Int
		rem.MulMod(&a, &b, &d)
		if !rem.IsZero() {
			if _, overflow := q.AddOverflow(&q, uint256.NewInt(1)); overflow {
				return uint256.Int{}, fmt.Errorf("%w: ceiling of %s*%s/%s", ErrArithmeticOverflow, a.Dec(), b.Dec(), d.Dec())
			}
		}
	}
	return q, nil
}

// Add returns a+b, failing on 256-bit overflow.
func Add(a, b uint256.Int) (uint256.Int, error) {
	var out uint256.Int
	if _, overflow := out.AddOverflow(&a, &b); overflow {
		return uint256.Int{}, fmt.Errorf("%w: %s+%s", ErrArithmeticOverflow, a.Dec(), b.Dec())
	}
	return out, nil
}

// Sub returns a-b, failing when b > a.
func Sub(a, b uint256.Int) (uint256.Int, error) {
	var out uint256.Int
	if _, underflow := out.SubOverflow(&a, &b); underflow {
		return uint256.Int{}, fmt.Errorf("%w: %s-%s", ErrArithmeticOverflow, a.Dec(), b.Dec())
	}
	return out, nil
}

// Mul returns a*b, failing on 256-bit overflow.
func Mul(a, b uint256.Int) (uint256.Int, error) {
	var out uint256.Int
	if _, overflow := out.MulOverflow(&a, &b); overflow {
		return uint256.Int{}, fmt.Errorf("%w: %s*%s", ErrArithmeticOverflow, a.Dec(), b.Dec())
	}
	return out, nil
}

// Sqrt returns floor(sqrt(a)).
func Sqrt(a uint256.Int) uint256.Int {
	var out uint256.Int
	out.Sqrt(&a)
	return out
}

// CheckBound fails when v exceeds MaxReserve.
func CheckBound(v uint256.Int) error {
	if v.Gt(&MaxReserve) {
		return fmt.Errorf("%w: %s exceeds reserve bound", ErrArithmeticOverflow, v.Dec())
	}
	return nil
}

// Min returns the smaller of a and b.
func Min(a, b uint256.Int) uint256.Int {
	if a.Lt(&b) {
		return a
	}
	return b
}

// Parse reads a base-10 amount.
func Parse(s string) (uint256.Int, error) {
	var out uint256.Int
	if s == "" {
		return out, nil
	}
	if s[0] == '-' {
		return uint256.Int{}, fmt.Errorf("parse amount %q: negative", s)
	}
	if err := out.SetFromDecimal(s); err != nil {
		return uint256.Int{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return out, nil
}
