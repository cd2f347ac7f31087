package model

import "strings"

// TokenID identifies a fungible token, e.g. "56:0x55d398326f99059ff775485246999027b3197955"
// or "brc20:ordi". It is compared as an opaque string.
type TokenID string

// Token pairs an identity with its display decimals.
type Token struct {
	ID       TokenID `json:"id"`
	Decimals uint8   `json:"decimals"`
	Symbol   string  `json:"symbol,omitempty"`
}

// Holder names an account in the external ledger.
type Holder string

// NormalizeTokenID trims whitespace and lowercases hex contract references so
// that the same EVM token always maps to one identity.
func NormalizeTokenID(raw string) TokenID {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, ":0x"); i >= 0 {
		raw = raw[:i] + strings.ToLower(raw[i:])
	}
	return TokenID(raw)
}
