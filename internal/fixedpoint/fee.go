package fixedpoint

import (
	"fmt"

	"github.com/holiman/uint256"
)

// FeeDenominator is the fee scale: fees are expressed in hundredths of a basis
// point, so 3000 is 0.3%.
const FeeDenominator uint32 = 1_000_000

// FeeRate is a fee numerator over FeeDenominator.
type FeeRate uint32

// Validate requires 0 <= fee < 1.
func (f FeeRate) Validate() error {
	if uint32(f) >= FeeDenominator {
		return fmt.Errorf("fee %d must be below %d", uint32(f), FeeDenominator)
	}
	return nil
}

// Complement returns FeeDenominator - f as an amount.
func (f FeeRate) Complement() uint256.Int {
	return FromUint64(uint64(FeeDenominator - uint32(f)))
}

// Denominator returns FeeDenominator as an amount.
func (f FeeRate) Denominator() uint256.Int {
	return FromUint64(uint64(FeeDenominator))
}

// String renders the fee as a percentage, e.g. "0.3%".
func (f FeeRate) String() string {
	whole := uint32(f) / 10_000
	frac := uint32(f) % 10_000
	if frac == 0 {
		return fmt.Sprintf("%d%%", whole)
	}
	s := fmt.Sprintf("%d.%04d", whole, frac)
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s + "%"
}

// ApplyFee returns floor(amountIn * (D - f) / D), the part of an input that
// reaches the curve.
func ApplyFee(amountIn uint256.Int, fee FeeRate) (uint256.Int, error) {
	return MulDiv(amountIn, fee.Complement(), fee.Denominator(), RoundDown)
}

// FeeAmount returns the part of amountIn kept as a fee, rounded up.
func FeeAmount(amountIn uint256.Int, fee FeeRate) (uint256.Int, error) {
	net, err := ApplyFee(amountIn, fee)
	if err != nil {
		return uint256.Int{}, err
	}
	return Sub(amountIn, net)
}
