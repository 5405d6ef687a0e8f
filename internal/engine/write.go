package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"settlement-rpc-go/internal/models"
)

// SendTransaction signs tx once with the aggregator's signer and broadcasts it
// through the single-provider path regardless of the domain quorum, so one
// signed payload is never fanned out. The broadcast is appended to tx.Responses.
// Nonce and gas are the caller's responsibility.
func (a *Aggregator) SendTransaction(ctx context.Context, tx *models.OnchainTransaction) (*types.Transaction, error) {
	if a.signer == nil {
		return nil, ErrMissingSigner
	}
	if a.cfg.ChainID == nil || a.cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("domain %s: chain id not configured", a.cfg.Domain)
	}

	signed, err := a.signer.SignTx(tx.Unsigned(a.cfg.ChainID), a.cfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("sign transaction %s: %w", tx.ID, err)
	}

	_, err = execute(ctx, a, "send_transaction", true, 1, func(ctx context.Context, c EndpointClient) (struct{}, error) {
		return struct{}{}, c.SendTransaction(ctx, signed)
	})
	if err != nil {
		return nil, err
	}

	tx.AddResponse(signed)
	LogTransactionBroadcast(a.cfg.Domain, tx.ID.String(), signed)
	return signed, nil
}
