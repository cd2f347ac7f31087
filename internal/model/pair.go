package model

import (
	"fmt"
	"strings"
)

const pairSeparator = "/"

// Pair is a canonical token pair: A sorts before B, so a pair and its reverse
// are the same value.
type Pair struct {
	A TokenID `json:"token_a"`
	B TokenID `json:"token_b"`
}

// NewPair canonicalizes x and y.
func NewPair(x, y TokenID) (Pair, error) {
	if x == "" || y == "" {
		return Pair{}, fmt.Errorf("%w: token id is empty", ErrInvalidToken)
	}
	if strings.Contains(string(x), pairSeparator) || strings.Contains(string(y), pairSeparator) {
		return Pair{}, fmt.Errorf("%w: token id must not contain %q", ErrInvalidToken, pairSeparator)
	}
	for _, t := range []TokenID{x, y} {
		if IsReservedToken(t) {
			return Pair{}, fmt.Errorf("%w: token id %s is reserved", ErrInvalidToken, t)
		}
	}
	if x == y {
		return Pair{}, fmt.Errorf("%w: pair of identical tokens %s", ErrInvalidToken, x)
	}
	if x > y {
		x, y = y, x
	}
	return Pair{A: x, B: y}, nil
}

// ParsePairKey is the inverse of Key.
func ParsePairKey(key string) (Pair, error) {
	parts := strings.SplitN(key, pairSeparator, 2)
	if len(parts) != 2 {
		return Pair{}, fmt.Errorf("%w: malformed pair key %q", ErrInvalidToken, key)
	}
	pair, err := NewPair(TokenID(parts[0]), TokenID(parts[1]))
	if err != nil {
		return Pair{}, err
	}
	if pair.Key() != key {
		return Pair{}, fmt.Errorf("%w: pair key %q is not canonical", ErrInvalidToken, key)
	}
	return pair, nil
}

// Key is the registry key of the pair.
func (p Pair) Key() string {
	return string(p.A) + pairSeparator + string(p.B)
}

func (p Pair) String() string {
	return p.Key()
}

// Contains reports whether t is one of the pair's tokens.
func (p Pair) Contains(t TokenID) bool {
	return t == p.A || t == p.B
}

// Other returns the counterpart of t. t must be in the pair.
func (p Pair) Other(t TokenID) TokenID {
	if t == p.A {
		return p.B
	}
	return p.A
}
