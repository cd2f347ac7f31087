package model

import (
	"errors"
	"fmt"

	"ammSettle/internal/fixedpoint"
)

// Error kinds. Every error returned by the engines and the coordinator wraps
// exactly one of these; use errors.Is to classify.
var (
	ErrInvalidAmount                = errors.New("invalid amount")
	ErrInvalidToken                 = errors.New("invalid token")
	ErrInvalidFee                   = errors.New("invalid fee")
	ErrPoolNotFound                 = errors.New("pool not found")
	ErrPoolEmpty                    = errors.New("pool empty")
	ErrInsufficientLiquidity        = errors.New("insufficient liquidity")
	ErrInsufficientInitialLiquidity = errors.New("insufficient initial liquidity")
	ErrSlippageExceeded             = errors.New("slippage exceeded")
	ErrExcessiveInput               = errors.New("excessive input")
	ErrProportionMismatch           = errors.New("proportion mismatch")
	ErrInvalidShareAmount           = errors.New("invalid share amount")
	ErrStaleQuote                   = errors.New("stale quote")
	ErrAlreadyApplied               = errors.New("instruction already applied")
	ErrInvalidInstruction           = errors.New("invalid instruction")
	ErrInsufficientBalance          = errors.New("insufficient balance")
	ErrInvariantViolation           = errors.New("invariant violation")

	ErrArithmeticOverflow = fixedpoint.ErrArithmeticOverflow
	ErrDivisionByZero     = fixedpoint.ErrDivisionByZero
)

// InvariantViolation is a fatal internal-consistency fault. It is never a
// user error: it means the pricing math or the write discipline is broken.
type InvariantViolation struct {
	Pool   string
	Rule   string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in pool %s (%s): %s", e.Pool, e.Rule, e.Detail)
}

func (e *InvariantViolation) Unwrap() error {
	return ErrInvariantViolation
}

// IsFatal reports whether err is a system-level fault rather than a
// recoverable user error.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// Kind returns the short name of the taxonomy kind wrapped by err, or
// "internal" when err carries none. Used for metrics labels and CLI output.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrInvalidFee):
		return "invalid_fee"
	case errors.Is(err, ErrPoolNotFound):
		return "pool_not_found"
	case errors.Is(err, ErrPoolEmpty):
		return "pool_empty"
	case errors.Is(err, ErrInsufficientInitialLiquidity):
		return "insufficient_initial_liquidity"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, ErrExcessiveInput):
		return "excessive_input"
	case errors.Is(err, ErrProportionMismatch):
		return "proportion_mismatch"
	case errors.Is(err, ErrInvalidShareAmount):
		return "invalid_share_amount"
	case errors.Is(err, ErrStaleQuote):
		return "stale_quote"
	case errors.Is(err, ErrAlreadyApplied):
		return "already_applied"
	case errors.Is(err, ErrInvalidInstruction):
		return "invalid_instruction"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrArithmeticOverflow):
		return "arithmetic_overflow"
	case errors.Is(err, ErrDivisionByZero):
		return "division_by_zero"
	default:
		return "internal"
	}
}
