// Package tokens resolves display metadata for token ids. Nothing here is
// used for pricing: amounts are always base units.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ammSettle/internal/model"
)

var ErrUnknownToken = errors.New("unknown token")

// Directory resolves token metadata.
type Directory interface {
	DecimalsOf(ctx context.Context, token model.TokenID) (uint8, error)
	Lookup(ctx context.Context, token model.TokenID) (model.Token, error)
}

// Static is a fixed directory, usually built from configuration.
type Static struct {
	tokens map[model.TokenID]model.Token
}

// NewStatic builds a directory from id -> "decimals[,symbol]" entries.
func NewStatic(entries map[string]string) (*Static, error) {
	s := &Static{tokens: make(map[model.TokenID]model.Token, len(entries))}
	for rawID, entry := range entries {
		id := model.NormalizeTokenID(rawID)
		if id == "" {
			return nil, fmt.Errorf("%w: empty token id", model.ErrInvalidToken)
		}
		decimalsText, symbol, _ := strings.Cut(strings.TrimSpace(entry), ",")
		decimals, err := strconv.ParseUint(strings.TrimSpace(decimalsText), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("token %s: decimals %q: %w", id, decimalsText, err)
		}
		s.tokens[id] = model.Token{ID: id, Decimals: uint8(decimals), Symbol: strings.TrimSpace(symbol)}
	}
	return s, nil
}

// Add registers or replaces a token.
func (s *Static) Add(token model.Token) {
	s.tokens[token.ID] = token
}

func (s *Static) DecimalsOf(ctx context.Context, token model.TokenID) (uint8, error) {
	t, err := s.Lookup(ctx, token)
	return t.Decimals, err
}

func (s *Static) Lookup(ctx context.Context, token model.TokenID) (model.Token, error) {
	t, ok := s.tokens[token]
	if !ok {
		return model.Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return t, nil
}

// Tokens returns every registered token sorted by id.
func (s *Static) Tokens() []model.Token {
	out := make([]model.Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Chain asks each directory in turn; the first that knows the token wins.
type Chain []Directory

func (c Chain) DecimalsOf(ctx context.Context, token model.TokenID) (uint8, error) {
	t, err := c.Lookup(ctx, token)
	return t.Decimals, err
}

func (c Chain) Lookup(ctx context.Context, token model.TokenID) (model.Token, error) {
	for _, d := range c {
		t, err := d.Lookup(ctx, token)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrUnknownToken) {
			return model.Token{}, err
		}
	}
	return model.Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, token)
}
