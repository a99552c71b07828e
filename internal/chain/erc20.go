package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABIString      abi.ABI
	erc20ABIStringOnce  sync.Once
	erc20ABIStringErr   error
	erc20ABIBytes32     abi.ABI
	erc20ABIBytes32Once sync.Once
	erc20ABIBytes32Err  error
)

func erc20ABIStringInstance() (abi.ABI, error) {
	erc20ABIStringOnce.Do(func() {
		erc20ABIString, erc20ABIStringErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
	})
	return erc20ABIString, erc20ABIStringErr
}

func erc20ABIBytes32Instance() (abi.ABI, error) {
	erc20ABIBytes32Once.Do(func() {
		erc20ABIBytes32, erc20ABIBytes32Err = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20ABIBytes32, erc20ABIBytes32Err
}

// TokenMeta is the ERC20 metadata resolved for a token contract.
type TokenMeta struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int32  `json:"decimals"`
}

// DefaultDecimals is substituted when the decimals call reverts.
const DefaultDecimals int32 = 18

// TokenReader resolves ERC20 metadata and balances with a reverted call
// treated as "value unknown" rather than an error. Results are cached by
// address.
type TokenReader struct {
	client *Client
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[common.Address]TokenMeta
}

func NewTokenReader(client *Client, logger *zap.Logger) *TokenReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenReader{
		client: client,
		logger: logger,
		cache:  make(map[common.Address]TokenMeta),
	}
}

// TokenMeta resolves symbol, name and decimals for a token. Each reverted
// call is replaced by its default (empty string, 18 decimals); ok is false
// only when the address is malformed or there is no client to ask.
func (r *TokenReader) TokenMeta(ctx context.Context, token string) (TokenMeta, bool) {
	if !common.IsHexAddress(token) || r.client == nil {
		return TokenMeta{Address: token, Decimals: DefaultDecimals}, false
	}
	addr := common.HexToAddress(token)

	r.mu.RLock()
	meta, ok := r.cache[addr]
	r.mu.RUnlock()
	if ok {
		return meta, true
	}

	meta = r.fetchMeta(ctx, addr)
	r.mu.Lock()
	r.cache[addr] = meta
	r.mu.Unlock()
	return meta, true
}

func (r *TokenReader) fetchMeta(ctx context.Context, token common.Address) TokenMeta {
	meta := TokenMeta{Address: token.Hex(), Decimals: DefaultDecimals}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		r.logger.Warn("erc20 string abi", zap.Error(err))
		return meta
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		r.logger.Warn("erc20 bytes32 abi", zap.Error(err))
		return meta
	}

	if values, err := r.call(ctx, token, stringABI, "decimals", nil); err == nil {
		if decimals, err := asUint8(values[0]); err == nil {
			meta.Decimals = int32(decimals)
		}
	} else {
		r.logger.Debug("decimals call reverted", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := r.call(ctx, token, stringABI, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := r.call(ctx, token, bytes32ABI, "symbol", nil); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		r.logger.Debug("symbol call reverted", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := r.call(ctx, token, stringABI, "name", nil); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := r.call(ctx, token, bytes32ABI, "name", nil); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else {
		r.logger.Debug("name call reverted", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta
}

// Balance reads balanceOf(owner) on the token contract. A revert yields
// (zero, false): the caller substitutes zero and continues.
func (r *TokenReader) Balance(ctx context.Context, token, owner string) (*big.Int, bool) {
	if !common.IsHexAddress(token) || !common.IsHexAddress(owner) || r.client == nil {
		return big.NewInt(0), false
	}
	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return big.NewInt(0), false
	}

	values, err := r.call(ctx, common.HexToAddress(token), stringABI, "balanceOf", []interface{}{common.HexToAddress(owner)})
	if err != nil {
		r.logger.Debug("balanceOf reverted",
			zap.String("token", token),
			zap.String("owner", owner),
			zap.Error(err),
		)
		return big.NewInt(0), false
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return big.NewInt(0), false
	}
	return bal, true
}

func (r *TokenReader) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args []interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}

	var resp []byte
	err = withRetry(ctx, 2, 0, func(ctx context.Context) error {
		var callErr error
		resp, callErr = r.client.CallContract(ctx, msg, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
