package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"settlement-rpc-go/internal/config"
	"settlement-rpc-go/internal/limiter"
)

// DefaultStallTimeout bounds a single call when the provider config sets none.
const DefaultStallTimeout = 10 * time.Second

// JSON-RPC error code for "execution reverted".
const revertErrorCode = 3

// Messages a node returns for transactions that no other node would accept either.
var deterministicMessages = []string{
	"revert",
	"nonce too low",
	"insufficient funds",
	"already known",
	"replacement transaction underpriced",
	"intrinsic gas too low",
	"exceeds block gas limit",
	"gas required exceeds allowance",
}

// RPCNode is an EndpointClient backed by go-ethereum's ethclient.
type RPCNode struct {
	url     string
	name    string
	client  ethBackend
	budget  *limiter.CallBudget
	health  *NodeHealth
	metrics *Metrics
}

// Dialer builds the endpoint client for one configured provider.
type Dialer func(ctx context.Context, p config.ProviderConfig, maxCPS float64) (EndpointClient, error)

// DialRPCNode is the production Dialer. For http(s) URLs ethclient does not
// connect until the first call, so this does not block on the network.
func DialRPCNode(ctx context.Context, p config.ProviderConfig, maxCPS float64) (EndpointClient, error) {
	client, err := ethclient.DialContext(ctx, p.URL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", maskURL(p.URL), err)
	}
	stall := p.StallTimeout
	if stall <= 0 {
		stall = DefaultStallTimeout
	}
	return NewRPCNode(p.URL, client, limiter.NewCallBudget(maxCPS, p.Weight), NewNodeHealth(p.Priority, p.Weight, stall)), nil
}

func NewRPCNode(rawURL string, client ethBackend, budget *limiter.CallBudget, health *NodeHealth) *RPCNode {
	if budget == nil {
		budget = limiter.Unlimited()
	}
	return &RPCNode{
		url:     rawURL,
		name:    maskURL(rawURL),
		client:  client,
		budget:  budget,
		health:  health,
		metrics: GetMetrics(),
	}
}

func (n *RPCNode) Name() string        { return n.name }
func (n *RPCNode) Health() *NodeHealth { return n.health }

func (n *RPCNode) Sync(ctx context.Context) error {
	height, err := n.BlockNumber(ctx)
	if err != nil {
		return err
	}
	n.health.SetSyncedBlockNumber(height)
	return nil
}

func (n *RPCNode) ChainID(ctx context.Context) (*big.Int, error) {
	return nodeCall(ctx, n, "eth_chainId", n.client.ChainID)
}

func (n *RPCNode) BlockNumber(ctx context.Context) (uint64, error) {
	return nodeCall(ctx, n, "eth_blockNumber", n.client.BlockNumber)
}

func (n *RPCNode) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return nodeCall(ctx, n, "eth_getBlockByNumber", func(ctx context.Context) (*types.Header, error) {
		h, err := n.client.HeaderByNumber(ctx, number)
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return h, err
	})
}

func (n *RPCNode) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nodeCall(ctx, n, "eth_call", func(ctx context.Context) ([]byte, error) {
		return n.client.CallContract(ctx, msg, blockNumber)
	})
}

func (n *RPCNode) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return nodeCall(ctx, n, "eth_getBalance", func(ctx context.Context) (*big.Int, error) {
		return n.client.BalanceAt(ctx, account, blockNumber)
	})
}

func (n *RPCNode) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return nodeCall(ctx, n, "eth_getCode", func(ctx context.Context) ([]byte, error) {
		return n.client.CodeAt(ctx, account, blockNumber)
	})
}

func (n *RPCNode) TransactionCount(ctx context.Context, account common.Address, pending bool) (uint64, error) {
	return nodeCall(ctx, n, "eth_getTransactionCount", func(ctx context.Context) (uint64, error) {
		if pending {
			return n.client.PendingNonceAt(ctx, account)
		}
		return n.client.NonceAt(ctx, account, nil)
	})
}

func (n *RPCNode) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return nodeCall(ctx, n, "eth_gasPrice", n.client.SuggestGasPrice)
}

func (n *RPCNode) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return nodeCall(ctx, n, "eth_estimateGas", func(ctx context.Context) (uint64, error) {
		return n.client.EstimateGas(ctx, msg)
	})
}

func (n *RPCNode) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nodeCall(ctx, n, "eth_getTransactionReceipt", func(ctx context.Context) (*types.Receipt, error) {
		r, err := n.client.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return r, err
	})
}

func (n *RPCNode) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	return nodeCall(ctx, n, "eth_getTransactionByHash", func(ctx context.Context) (*types.Transaction, error) {
		tx, _, err := n.client.TransactionByHash(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return tx, err
	})
}

func (n *RPCNode) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := nodeCall(ctx, n, "eth_sendRawTransaction", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.client.SendTransaction(ctx, tx)
	})
	return err
}

func (n *RPCNode) Close() {
	n.client.Close()
}

// nodeCall wraps one backend call with the call budget, the stall timeout,
// health bookkeeping and error normalization.
func nodeCall[T any](ctx context.Context, n *RPCNode, method string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := n.budget.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &ProviderFault{Kind: FaultStallTimeout, Provider: n.name, Method: method, Err: fmt.Errorf("call budget: %w", err)}
	}

	n.health.RecordCall()
	callCtx, cancel := context.WithTimeout(ctx, n.health.StallTimeout())
	defer cancel()

	start := time.Now()
	out, err := fn(callCtx)
	elapsed := time.Since(start)
	if err != nil {
		err = n.normalizeError(ctx, method, err)
	}

	n.health.RecordResult(elapsed, IsProviderFault(err))
	n.metrics.RecordRPCRequest(n.name, method, elapsed, err == nil)
	if err != nil {
		return zero, err
	}
	return out, nil
}

// normalizeError maps a raw backend error onto the engine's taxonomy. The
// caller's own cancellation is returned untouched.
func (n *RPCNode) normalizeError(parent context.Context, method string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	fault := func(kind FaultKind) error {
		return &ProviderFault{Kind: kind, Provider: n.name, Method: method, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fault(FaultStallTimeout)
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if isDeterministic(rpcErr) {
			return err
		}
		return fault(FaultRPCError)
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return fault(FaultServerError)
	}
	if isDeterministicMessage(err.Error()) {
		return err
	}
	return fault(FaultServerError)
}

func isDeterministic(err rpc.Error) bool {
	return err.ErrorCode() == revertErrorCode || isDeterministicMessage(err.Error())
}

func isDeterministicMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range deterministicMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// maskURL keeps scheme and host and hides credentials, query strings and most
// of the path, where providers usually embed API keys.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if len(raw) > 20 {
			return raw[:10] + "..." + raw[len(raw)-4:]
		}
		return raw
	}
	masked := u.Scheme + "://" + u.Host
	if p := strings.Trim(u.Path, "/"); p != "" {
		if len(p) > 4 {
			masked += "/..." + p[len(p)-4:]
		} else {
			masked += "/" + p
		}
	}
	return masked
}
