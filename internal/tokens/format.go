package tokens

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
)

// Format renders base units with the token's decimals, e.g. 1500000 with 6
// decimals is "1.500000".
func Format(amount model.Amount, decimals uint8) string {
	if decimals == 0 {
		return amount.Dec()
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).StringFixed(int32(decimals))
}

// ParseUnits converts a display amount such as "1.5" into base units.
func ParseUnits(text string, decimals uint8) (model.Amount, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return model.Amount{}, fmt.Errorf("%w: %q: %v", model.ErrInvalidAmount, text, err)
	}
	if d.IsNegative() {
		return model.Amount{}, fmt.Errorf("%w: %q is negative", model.ErrInvalidAmount, text)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return model.Amount{}, fmt.Errorf("%w: %q has more than %d decimals", model.ErrInvalidAmount, text, decimals)
	}
	return fixedpoint.Parse(scaled.BigInt().String())
}
