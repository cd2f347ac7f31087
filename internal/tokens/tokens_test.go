package tokens

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"ammSettle/internal/fixedpoint"
	"ammSettle/internal/model"
)

const usdt = "56:0x55d398326f99059ff775485246999027b3197955"

// fakeERC20 answers decimals() and symbol() with ABI-encoded values.
type fakeERC20 struct {
	decimals uint8
	symbol   string
	calls    atomic.Int32
	fail     bool
}

func (f *fakeERC20) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.calls.Add(1)
	if f.fail {
		return nil, errors.New("connection refused")
	}
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(f.decimals)
	case "symbol":
		return method.Outputs.Pack(f.symbol)
	}
	return nil, errors.New("unexpected method")
}

func TestStatic(t *testing.T) {
	s, err := NewStatic(map[string]string{
		"brc20:ordi": "18,ORDI",
		usdt:         "18",
	})
	require.NoError(t, err)

	d, err := s.DecimalsOf(context.Background(), "brc20:ordi")
	require.NoError(t, err)
	require.Equal(t, uint8(18), d)

	tok, err := s.Lookup(context.Background(), "brc20:ordi")
	require.NoError(t, err)
	require.Equal(t, "ORDI", tok.Symbol)

	_, err = s.DecimalsOf(context.Background(), "brc20:sats")
	require.ErrorIs(t, err, ErrUnknownToken)

	_, err = NewStatic(map[string]string{"x": "300"})
	require.Error(t, err)
}

func TestParseEVMID(t *testing.T) {
	chainID, addr, ok := ParseEVMID(usdt)
	require.True(t, ok)
	require.Equal(t, uint64(56), chainID)
	require.Equal(t, common.HexToAddress("0x55d398326f99059ff775485246999027b3197955"), addr)

	_, _, ok = ParseEVMID("brc20:ordi")
	require.False(t, ok)
	_, _, ok = ParseEVMID("eth:0x55d398326f99059ff775485246999027b3197955")
	require.False(t, ok)
}

func TestEVMCachesDecimals(t *testing.T) {
	fake := &fakeERC20{decimals: 18, symbol: "USDT"}
	e, err := NewEVM(56, fake, 16, nil)
	require.NoError(t, err)

	tok, err := e.Lookup(context.Background(), usdt)
	require.NoError(t, err)
	require.Equal(t, uint8(18), tok.Decimals)
	require.Equal(t, "USDT", tok.Symbol)
	calls := fake.calls.Load()

	d, err := e.DecimalsOf(context.Background(), usdt)
	require.NoError(t, err)
	require.Equal(t, uint8(18), d)
	require.Equal(t, calls, fake.calls.Load(), "second lookup is served from cache")

	_, err = e.DecimalsOf(context.Background(), "1:0x55d398326f99059ff775485246999027b3197955")
	require.ErrorIs(t, err, ErrUnknownToken)
}

func TestChain(t *testing.T) {
	static, err := NewStatic(map[string]string{"brc20:ordi": "18"})
	require.NoError(t, err)
	evm, err := NewEVM(56, &fakeERC20{decimals: 6, symbol: "USDC"}, 0, nil)
	require.NoError(t, err)
	dir := Chain{static, evm}

	d, err := dir.DecimalsOf(context.Background(), "brc20:ordi")
	require.NoError(t, err)
	require.Equal(t, uint8(18), d)

	d, err = dir.DecimalsOf(context.Background(), usdt)
	require.NoError(t, err)
	require.Equal(t, uint8(6), d)

	_, err = dir.DecimalsOf(context.Background(), "brc20:sats")
	require.ErrorIs(t, err, ErrUnknownToken)

	broken, err := NewEVM(56, &fakeERC20{fail: true}, 0, nil)
	require.NoError(t, err)
	_, err = Chain{broken}.DecimalsOf(context.Background(), usdt)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnknownToken)
}

func TestFormat(t *testing.T) {
	require.Equal(t, "1.500000", Format(fixedpoint.FromUint64(1_500_000), 6))
	require.Equal(t, "0.000001", Format(fixedpoint.FromUint64(1), 6))
	require.Equal(t, "42", Format(fixedpoint.FromUint64(42), 0))
}

func TestParseUnits(t *testing.T) {
	v, err := ParseUnits("1.5", 6)
	require.NoError(t, err)
	require.Equal(t, uint64(1_500_000), v.Uint64())

	v, err = ParseUnits("100000", 0)
	require.NoError(t, err)
	require.Equal(t, uint64(100000), v.Uint64())

	_, err = ParseUnits("0.0000001", 6)
	require.ErrorIs(t, err, model.ErrInvalidAmount)
	_, err = ParseUnits("-1", 6)
	require.ErrorIs(t, err, model.ErrInvalidAmount)
	_, err = ParseUnits("abc", 6)
	require.ErrorIs(t, err, model.ErrInvalidAmount)
}
