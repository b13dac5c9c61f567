package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20JSON = `[
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
 {"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
 {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"wad","type":"uint256"}],"outputs":[]}
]`

const routerJSON = `[
 {"type":"function","name":"mixSwap","stateMutability":"payable","inputs":[
  {"name":"fromToken","type":"address"},
  {"name":"toToken","type":"address"},
  {"name":"fromTokenAmount","type":"uint256"},
  {"name":"minReturnAmount","type":"uint256"},
  {"name":"mixAdapters","type":"address[]"},
  {"name":"mixPairs","type":"address[]"},
  {"name":"assetTo","type":"address[]"},
  {"name":"directions","type":"uint256"},
  {"name":"moreInfos","type":"bytes[]"},
  {"name":"deadLine","type":"uint256"}
 ],"outputs":[{"name":"returnAmount","type":"uint256"}]},
 {"type":"function","name":"addDVMLiquidity","stateMutability":"payable","inputs":[
  {"name":"pool","type":"address"},
  {"name":"baseInAmount","type":"uint256"},
  {"name":"quoteInAmount","type":"uint256"},
  {"name":"baseMinAmount","type":"uint256"},
  {"name":"quoteMinAmount","type":"uint256"},
  {"name":"flag","type":"uint8"},
  {"name":"deadLine","type":"uint256"}
 ],"outputs":[{"name":"shares","type":"uint256"},{"name":"baseAdjustedIn","type":"uint256"},{"name":"quoteAdjustedIn","type":"uint256"}]}
]`

var (
	erc20ABI  = mustParseABI(erc20JSON)
	routerABI = mustParseABI(routerJSON)
)

// MaxUint256 is the allowance granted by approvals.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: invalid ABI: %v", err))
	}
	return parsed
}

// EncodeApprove builds calldata for approve(spender, amount).
func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

// EncodeDeposit builds calldata for the wrapped-native deposit().
func EncodeDeposit() ([]byte, error) {
	return erc20ABI.Pack("deposit")
}

// MixSwap holds the arguments of a single-hop router swap.
type MixSwap struct {
	FromToken common.Address
	ToToken   common.Address
	Amount    *big.Int
	MinReturn *big.Int
	Pool      common.Address
	Recipient common.Address
	Direction uint64
	Deadline  *big.Int
}

// EncodeMixSwap builds calldata for mixSwap through one pool with the default
// adapter.
func EncodeMixSwap(s MixSwap) ([]byte, error) {
	return routerABI.Pack("mixSwap",
		s.FromToken,
		s.ToToken,
		s.Amount,
		s.MinReturn,
		[]common.Address{{}},
		[]common.Address{s.Pool},
		[]common.Address{s.Recipient},
		new(big.Int).SetUint64(s.Direction),
		[][]byte{{}},
		s.Deadline,
	)
}

// AddLiquidity holds the arguments of addDVMLiquidity.
type AddLiquidity struct {
	Pool     common.Address
	BaseIn   *big.Int
	QuoteIn  *big.Int
	BaseMin  *big.Int
	QuoteMin *big.Int
	Deadline *big.Int
}

// EncodeAddLiquidity builds calldata for addDVMLiquidity with flag 0.
func EncodeAddLiquidity(a AddLiquidity) ([]byte, error) {
	return routerABI.Pack("addDVMLiquidity",
		a.Pool, a.BaseIn, a.QuoteIn, a.BaseMin, a.QuoteMin, uint8(0), a.Deadline)
}

// MethodName returns the contract method a calldata payload invokes, or
// "transfer" for a plain value transfer.
func MethodName(data []byte) string {
	if len(data) == 0 {
		return "transfer"
	}
	if len(data) < 4 {
		return "unknown"
	}
	for _, parsed := range []abi.ABI{erc20ABI, routerABI} {
		if m, err := parsed.MethodById(data[:4]); err == nil {
			return m.Name
		}
	}
	return "unknown"
}

func unpackBig(method string, out []byte) (*big.Int, error) {
	vals, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", method, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("decoding %s: expected 1 value, got %d", method, len(vals))
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decoding %s: unexpected type %T", method, vals[0])
	}
	return v, nil
}
