package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"settlement-rpc-go/internal/recovery"
	"settlement-rpc-go/internal/telemetry"
)

// Sync asks every client for its height, recomputes lag and synced flags
// relative to the highest answer, and re-elects the lead. A client that fails
// to answer only drops out of this round. An error is returned only when no
// client answered at all.
func (a *Aggregator) Sync(ctx context.Context) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.Sync", a.cfg.Domain,
		attribute.Int("rpc.providers", len(a.clients)))
	defer func() { telemetry.EndSpan(span, err) }()

	answered := make([]bool, len(a.clients))
	errs := make([]error, len(a.clients))

	var g errgroup.Group
	for i, c := range a.clients {
		g.Go(func() error {
			if err := recovery.Run(c.Name(), func() error { return c.Sync(ctx) }); err != nil {
				errs[i] = err
				LogProviderSyncFailed(a.cfg.Domain, c.Name(), err)
				return nil
			}
			answered[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var highest uint64
	gotAnswer := false
	for i, c := range a.clients {
		if !answered[i] {
			continue
		}
		gotAnswer = true
		if bn := c.Health().SyncedBlockNumber(); bn > highest {
			highest = bn
		}
	}
	if !gotAnswer {
		failed := make([]error, 0, len(errs))
		for _, e := range errs {
			if e != nil {
				failed = append(failed, e)
			}
		}
		return &RPCError{Method: "sync", Errors: failed}
	}

	synced := 0
	for _, c := range a.clients {
		h := c.Health()
		var lag uint64
		if bn := h.SyncedBlockNumber(); highest > bn {
			lag = highest - bn
		}
		was := h.Synced()
		now := lag < MaxLag
		h.SetLag(lag)
		h.SetSynced(now)
		if now {
			synced++
		}
		if was && !now {
			LogProviderUnsynced(a.cfg.Domain, c.Name(), lag, highest)
			a.metrics.RecordProviderUnsynced(a.cfg.Domain, c.Name())
		}
	}

	ordered := a.orderedClients()

	a.mu.Lock()
	a.lead = ordered[0]
	a.highest = highest
	a.mu.Unlock()

	a.metrics.RecordSync(a.cfg.Domain, synced, highest)
	return nil
}
