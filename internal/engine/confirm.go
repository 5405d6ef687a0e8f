package engine

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"settlement-rpc-go/internal/models"
	"settlement-rpc-go/internal/telemetry"
)

// ErrNothingToConfirm is returned for a transaction that was never broadcast.
var ErrNothingToConfirm = errors.New("transaction has no broadcast responses")

const (
	outcomeConfirmed = "confirmed"
	outcomeReverted  = "reverted"
	outcomeErrored   = "errored"
	outcomeTimedOut  = "timed_out"
)

// ConfirmOptions overrides the domain defaults for one confirmation. Zero
// values fall back to the domain's confirmations and confirmationTimeout.
type ConfirmOptions struct {
	Confirmations int
	Timeout       time.Duration
}

// ConfirmTransaction polls the receipts of every broadcast of tx until one of
// them has the required confirmations.
//
// A successful receipt anywhere in a round outweighs reverted siblings. With
// no success, a revert fails the call, and so does a receipt fetch error.
// Once mined, a failed head lookup only costs the round. Otherwise the loop sleeps about remaining*blockPeriod and polls again until
// the timeout, always polling at least once.
func (a *Aggregator) ConfirmTransaction(ctx context.Context, tx *models.OnchainTransaction, opts ConfirmOptions) (receipt *types.Receipt, err error) {
	required := opts.Confirmations
	if required <= 0 {
		required = a.cfg.Confirmations
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = a.cfg.ConfirmationTimeout
	}

	ctx, span := telemetry.StartSpan(ctx, "engine.ConfirmTransaction", a.cfg.Domain,
		attribute.String("tx.id", tx.ID.String()),
		attribute.Int("tx.confirmations", required))
	defer func() { telemetry.EndSpan(span, err) }()

	hashes := tx.Hashes()
	if len(hashes) == 0 {
		return nil, ErrNothingToConfirm
	}

	start := a.now()
	mined := false
	remaining := required
	for {
		receipts, errs := a.fetchReceipts(ctx, hashes)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			success  *types.Receipt
			reverted []common.Hash
		)
		for _, r := range receipts {
			if r == nil {
				continue
			}
			if r.Status == types.ReceiptStatusSuccessful {
				if success == nil {
					success = r
				}
			} else {
				reverted = append(reverted, r.TxHash)
			}
		}

		if success != nil {
			mined = true
			head, err := a.chainHead(ctx)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				errs = append(errs, err)
			} else {
				remaining = required - confirmationsAt(success, head)
				if remaining <= 0 {
					tx.Receipt = success
					a.metrics.RecordConfirmation(a.cfg.Domain, outcomeConfirmed)
					return success, nil
				}
			}
		} else {
			remaining = required
			if len(reverted) > 0 {
				a.metrics.RecordConfirmation(a.cfg.Domain, outcomeReverted)
				return nil, &TransactionRevertedError{Hashes: reverted}
			}
			if len(errs) > 0 {
				a.metrics.RecordConfirmation(a.cfg.Domain, outcomeErrored)
				return nil, errs[0]
			}
		}

		elapsed := a.now().Sub(start)
		if elapsed >= timeout {
			a.metrics.RecordConfirmation(a.cfg.Domain, outcomeTimedOut)
			return nil, &OperationTimeoutError{
				Confirmations: required,
				Remaining:     remaining,
				Reverted:      reverted,
				Errors:        errs,
				TimedOut:      true,
				Mined:         mined,
				Elapsed:       elapsed,
				Timeout:       timeout,
			}
		}

		if err := a.sleep(ctx, time.Duration(max(remaining, 1))*a.BlockPeriod()); err != nil {
			return nil, err
		}
	}
}

// fetchReceipts looks up every hash concurrently. Receipts line up with
// hashes; a pending transaction yields a nil receipt.
func (a *Aggregator) fetchReceipts(ctx context.Context, hashes []common.Hash) ([]*types.Receipt, []error) {
	receipts := make([]*types.Receipt, len(hashes))
	errs := make([]error, len(hashes))

	var g errgroup.Group
	for i, h := range hashes {
		g.Go(func() error {
			receipts[i], errs[i] = a.TransactionReceipt(ctx, h)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	return receipts, failed
}

// chainHead reads the head from the best provider alone. Healthy providers
// routinely disagree by a block or two, so a quorum read would fail here.
func (a *Aggregator) chainHead(ctx context.Context) (uint64, error) {
	return execute(ctx, a, "block_number", false, 1, func(ctx context.Context, c EndpointClient) (uint64, error) {
		return c.BlockNumber(ctx)
	})
}

// confirmationsAt counts the receipt's own block as the first confirmation.
func confirmationsAt(r *types.Receipt, head uint64) int {
	if r.BlockNumber == nil {
		return 0
	}
	mined := r.BlockNumber.Uint64()
	if head < mined {
		return 0
	}
	return int(head-mined) + 1
}
