package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// EstimateBlockPeriod sets the block period from the timestamps of the latest
// block and its parent. It is pacing only: any failure keeps the previous value.
func (a *Aggregator) EstimateBlockPeriod(ctx context.Context) {
	period, err := a.measureBlockPeriod(ctx)
	if err != nil {
		LogBlockPeriodEstimateFailed(a.cfg.Domain, err)
		return
	}
	a.blockPeriod.Store(int64(period))
}

func (a *Aggregator) measureBlockPeriod(ctx context.Context) (time.Duration, error) {
	latest, err := a.Block(ctx, nil)
	if err != nil {
		return 0, err
	}
	if latest == nil || latest.Number == nil || latest.Number.Sign() == 0 {
		return 0, errors.New("latest block has no parent")
	}
	parent, err := a.Block(ctx, new(big.Int).Sub(latest.Number, big.NewInt(1)))
	if err != nil {
		return 0, err
	}
	if parent == nil {
		return 0, errors.New("parent block not found")
	}
	return headerDelta(latest, parent)
}

func headerDelta(latest, parent *types.Header) (time.Duration, error) {
	if latest.Time <= parent.Time {
		return 0, fmt.Errorf("non-increasing block timestamps %d -> %d", parent.Time, latest.Time)
	}
	return time.Duration(latest.Time-parent.Time) * time.Second, nil
}
