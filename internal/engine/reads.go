package engine

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// NativeDecimals is the decimals of the chain's native asset, addressed as the zero address.
const NativeDecimals = 18

const erc20ABIJSON = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

func isNative(asset common.Address) bool {
	return asset == (common.Address{})
}

// ReadContract performs an eth_call against to at the given block (nil = latest).
func (a *Aggregator) ReadContract(ctx context.Context, to common.Address, data []byte, block *big.Int) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	return Execute(ctx, a, "read_contract", false, func(ctx context.Context, c EndpointClient) ([]byte, error) {
		return c.CallContract(ctx, msg, block)
	})
}

// Balance returns account's balance of asset; the zero address means the native asset.
func (a *Aggregator) Balance(ctx context.Context, account, asset common.Address) (*big.Int, error) {
	if isNative(asset) {
		return Execute(ctx, a, "balance", false, func(ctx context.Context, c EndpointClient) (*big.Int, error) {
			return c.BalanceAt(ctx, account, nil)
		})
	}

	input, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := a.ReadContract(ctx, asset, input, nil)
	if err != nil {
		return nil, err
	}
	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf from %s: %w", asset.Hex(), err)
	}
	return values[0].(*big.Int), nil
}

// Decimals returns the asset's decimals. Answers are cached for the process lifetime.
func (a *Aggregator) Decimals(ctx context.Context, asset common.Address) (uint8, error) {
	if isNative(asset) {
		return NativeDecimals, nil
	}
	if d, ok := a.cache.Decimals(asset); ok {
		return d, nil
	}

	input, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}
	out, err := a.ReadContract(ctx, asset, input, nil)
	if err != nil {
		return 0, err
	}
	values, err := erc20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals from %s: %w", asset.Hex(), err)
	}
	d := values[0].(uint8)
	a.cache.SetDecimals(asset, d)
	return d, nil
}

// Block returns the header at number, or the latest header for nil.
func (a *Aggregator) Block(ctx context.Context, number *big.Int) (*types.Header, error) {
	return Execute(ctx, a, "block", false, func(ctx context.Context, c EndpointClient) (*types.Header, error) {
		return c.HeaderByNumber(ctx, number)
	})
}

// BlockTime is the timestamp of the latest block.
func (a *Aggregator) BlockTime(ctx context.Context) (time.Time, error) {
	h, err := a.Block(ctx, nil)
	if err != nil {
		return time.Time{}, err
	}
	if h == nil {
		return time.Time{}, fmt.Errorf("latest block not found")
	}
	return time.Unix(int64(h.Time), 0).UTC(), nil
}

func (a *Aggregator) BlockNumber(ctx context.Context) (uint64, error) {
	return Execute(ctx, a, "block_number", false, func(ctx context.Context, c EndpointClient) (uint64, error) {
		return c.BlockNumber(ctx)
	})
}

// TransactionReceipt returns nil with no error while the transaction is pending.
func (a *Aggregator) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return Execute(ctx, a, "transaction_receipt", false, func(ctx context.Context, c EndpointClient) (*types.Receipt, error) {
		return c.TransactionReceipt(ctx, hash)
	})
}

func (a *Aggregator) Transaction(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	return Execute(ctx, a, "transaction", false, func(ctx context.Context, c EndpointClient) (*types.Transaction, error) {
		return c.TransactionByHash(ctx, hash)
	})
}

func (a *Aggregator) Code(ctx context.Context, account common.Address) ([]byte, error) {
	return Execute(ctx, a, "code", false, func(ctx context.Context, c EndpointClient) ([]byte, error) {
		return c.CodeAt(ctx, account, nil)
	})
}

// EstimateGas adds the domain's GasLimitInflation on top of the node estimate.
func (a *Aggregator) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := Execute(ctx, a, "estimate_gas", false, func(ctx context.Context, c EndpointClient) (uint64, error) {
		return c.EstimateGas(ctx, msg)
	})
	if err != nil {
		return 0, err
	}
	return gas + a.cfg.GasLimitInflation, nil
}

// TransactionCount returns the account nonce, cached for TransactionCountTTL.
func (a *Aggregator) TransactionCount(ctx context.Context, account common.Address, pending bool) (uint64, error) {
	if n, ok := a.cache.TransactionCount(account, pending); ok {
		return n, nil
	}
	n, err := Execute(ctx, a, "transaction_count", false, func(ctx context.Context, c EndpointClient) (uint64, error) {
		return c.TransactionCount(ctx, account, pending)
	})
	if err != nil {
		return 0, err
	}
	a.cache.SetTransactionCount(account, pending, n)
	return n, nil
}
