package engine

import (
	"context"
	"errors"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"settlement-rpc-go/internal/recovery"
	"settlement-rpc-go/internal/telemetry"
)

// Execute runs method against the domain's providers under the configured quorum.
//
// With quorum 1 providers are tried one at a time in priority order until one
// succeeds. With a larger quorum every provider is called concurrently and the
// largest group of identical results wins if it reaches the quorum. Provider
// faults move on to the next provider; any other error is returned at once.
func Execute[T any](ctx context.Context, a *Aggregator, method string, needsSigner bool, fn func(context.Context, EndpointClient) (T, error)) (T, error) {
	return execute(ctx, a, method, needsSigner, a.cfg.Quorum, fn)
}

func execute[T any](ctx context.Context, a *Aggregator, method string, needsSigner bool, quorum int, fn func(context.Context, EndpointClient) (T, error)) (out T, err error) {
	if needsSigner && a.signer == nil {
		return out, ErrMissingSigner
	}

	ctx, span := telemetry.StartSpan(ctx, "engine.Execute", a.cfg.Domain,
		attribute.String("rpc.method", method),
		attribute.Int("rpc.quorum", quorum))
	defer func() { telemetry.EndSpan(span, err) }()

	clients := a.orderedClients()
	if quorum <= 1 {
		return executeFirst(ctx, a, method, clients, fn)
	}
	return executeQuorum(ctx, a, method, quorum, clients, fn)
}

func executeFirst[T any](ctx context.Context, a *Aggregator, method string, clients []EndpointClient, fn func(context.Context, EndpointClient) (T, error)) (T, error) {
	var zero T
	var faults []error
	for _, c := range clients {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := callClient(ctx, c, method, fn)
		if err == nil {
			return out, nil
		}
		if !a.recordFault(method, err) {
			return zero, err
		}
		faults = append(faults, err)
	}
	return zero, &RPCError{Method: method, Errors: faults}
}

func executeQuorum[T any](ctx context.Context, a *Aggregator, method string, quorum int, clients []EndpointClient, fn func(context.Context, EndpointClient) (T, error)) (T, error) {
	var zero T
	results := make([]T, len(clients))
	errs := make([]error, len(clients))

	var eg errgroup.Group
	for i, c := range clients {
		eg.Go(func() error {
			results[i], errs[i] = callClient(ctx, c, method, fn)
			return nil
		})
	}
	_ = eg.Wait()

	var (
		groups []*resultGroup[T]
		faults []error
	)
	// clients are in priority order, so groups are ordered by their best member
	for i := range clients {
		if errs[i] != nil {
			if !a.recordFault(method, errs[i]) {
				return zero, errs[i]
			}
			faults = append(faults, errs[i])
			continue
		}
		matched := false
		for _, g := range groups {
			if sameResult(g.value, results[i]) {
				g.count++
				matched = true
				break
			}
		}
		if !matched {
			groups = append(groups, &resultGroup[T]{value: results[i], count: 1})
		}
	}

	var best *resultGroup[T]
	tied := 0
	for _, g := range groups {
		switch {
		case best == nil || g.count > best.count:
			best, tied = g, 1
		case g.count == best.count:
			tied++
		}
	}

	if best == nil || best.count < quorum {
		largest := 0
		if best != nil {
			largest = best.count
		}
		a.metrics.RecordQuorumFailure(a.cfg.Domain)
		return zero, &QuorumNotMetError{
			Method:       method,
			Quorum:       quorum,
			Providers:    len(clients),
			Responses:    len(clients) - len(faults),
			LargestGroup: largest,
			Errors:       faults,
		}
	}
	if tied > 1 {
		LogQuorumConflict(a.cfg.Domain, method, tied, best.count)
		a.metrics.RecordQuorumConflict(a.cfg.Domain)
	}
	return best.value, nil
}

type resultGroup[T any] struct {
	value T
	count int
}

// callClient runs fn on one client. A panic is charged to the provider as a
// server fault.
func callClient[T any](ctx context.Context, c EndpointClient, method string, fn func(context.Context, EndpointClient) (T, error)) (T, error) {
	var out T
	err := recovery.Run(c.Name(), func() error {
		var err error
		out, err = fn(ctx, c)
		return err
	})
	var pe *recovery.PanicError
	if errors.As(err, &pe) {
		return out, &ProviderFault{Kind: FaultServerError, Provider: c.Name(), Method: method, Err: err}
	}
	return out, err
}

// recordFault logs and counts err if it is a provider fault and reports
// whether execution may continue with the next provider.
func (a *Aggregator) recordFault(method string, err error) bool {
	var pf *ProviderFault
	if !errors.As(err, &pf) {
		return false
	}
	LogProviderFault(a.cfg.Domain, method, pf)
	a.metrics.RecordExecuteFault(a.cfg.Domain, pf.Kind)
	return true
}

// sameResult is deep equality with value semantics for big integers and
// transactions, whose go-ethereum types carry internal caches.
func sameResult(x, y any) bool {
	switch xv := x.(type) {
	case *big.Int:
		yv, ok := y.(*big.Int)
		if !ok || (xv == nil) != (yv == nil) {
			return false
		}
		return xv == nil || xv.Cmp(yv) == 0
	case *types.Transaction:
		yv, ok := y.(*types.Transaction)
		if !ok || (xv == nil) != (yv == nil) {
			return false
		}
		return xv == nil || xv.Hash() == yv.Hash()
	}
	return reflect.DeepEqual(x, y)
}
