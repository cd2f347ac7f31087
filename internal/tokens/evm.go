package tokens

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"ammSettle/internal/model"
)

const defaultCacheSize = 1024

// EVM resolves "<chainID>:0x<address>" ids by calling the ERC20 contract.
// Results are cached; decimals never change for a deployed token.
type EVM struct {
	chainID uint64
	caller  Caller
	cache   *lru.Cache[common.Address, erc20Meta]
	logger  *zap.Logger
}

func NewEVM(chainID uint64, caller Caller, cacheSize int, logger *zap.Logger) (*EVM, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[common.Address, erc20Meta](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("token cache: %w", err)
	}
	return &EVM{chainID: chainID, caller: caller, cache: cache, logger: logger}, nil
}

// ParseEVMID splits an id of the form "<chainID>:0x<address>".
func ParseEVMID(token model.TokenID) (uint64, common.Address, bool) {
	chainText, addrText, ok := strings.Cut(string(token), ":")
	if !ok || !common.IsHexAddress(addrText) || !strings.HasPrefix(addrText, "0x") {
		return 0, common.Address{}, false
	}
	chainID, err := strconv.ParseUint(chainText, 10, 64)
	if err != nil {
		return 0, common.Address{}, false
	}
	return chainID, common.HexToAddress(addrText), true
}

func (e *EVM) DecimalsOf(ctx context.Context, token model.TokenID) (uint8, error) {
	t, err := e.Lookup(ctx, token)
	return t.Decimals, err
}

func (e *EVM) Lookup(ctx context.Context, token model.TokenID) (model.Token, error) {
	chainID, address, ok := ParseEVMID(token)
	if !ok || chainID != e.chainID {
		return model.Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}

	meta, ok := e.cache.Get(address)
	if !ok {
		var err error
		meta, err = fetchERC20(ctx, e.caller, address)
		if err != nil {
			e.logger.Warn("token metadata fetch failed", zap.String("token", string(token)), zap.Error(err))
			return model.Token{}, fmt.Errorf("fetch %s: %w", token, err)
		}
		e.cache.Add(address, meta)
		e.logger.Debug("token metadata fetched",
			zap.String("token", string(token)),
			zap.Uint8("decimals", meta.Decimals),
			zap.String("symbol", meta.Symbol),
		)
	}
	return model.Token{ID: token, Decimals: meta.Decimals, Symbol: meta.Symbol}, nil
}
