package network

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// Well-known chain IDs.
const (
	MainnetChainID  = 1
	OptimismChainID = 10
	GnosisChainID   = 100
	PolygonChainID  = 137
	BaseChainID     = 8453
	HoleskyChainID  = 17000
	AnvilChainID    = 31337
	ArbitrumChainID = 42161
	SepoliaChainID  = 11155111
)

var ErrChainIDMismatch = errors.New("chain id mismatch")

// Name returns a human-readable network name for chainID.
func Name(chainID int64) string {
	switch chainID {
	case MainnetChainID:
		return "Ethereum Mainnet"
	case OptimismChainID:
		return "OP Mainnet"
	case GnosisChainID:
		return "Gnosis"
	case PolygonChainID:
		return "Polygon PoS"
	case BaseChainID:
		return "Base"
	case HoleskyChainID:
		return "Holesky Testnet"
	case AnvilChainID:
		return "Anvil Local"
	case ArbitrumChainID:
		return "Arbitrum One"
	case SepoliaChainID:
		return "Sepolia Testnet"
	default:
		return fmt.Sprintf("Unknown Network (Chain ID: %d)", chainID)
	}
}

// ChainIDReader is satisfied by *ethclient.Client and engine.RPCNode.
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// VerifyChainID fails when the endpoint serves a different chain than expected.
func VerifyChainID(ctx context.Context, client ChainIDReader, expected int64) error {
	actual, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", err)
	}
	if actual == nil || actual.Cmp(big.NewInt(expected)) != 0 {
		got := "unknown"
		if actual != nil {
			got = fmt.Sprintf("%s (ID: %s)", Name(actual.Int64()), actual)
		}
		return fmt.Errorf("%w: expected %s (ID: %d), got %s", ErrChainIDMismatch, Name(expected), expected, got)
	}
	return nil
}
