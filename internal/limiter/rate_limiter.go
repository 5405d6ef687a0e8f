package limiter

import (
	"context"
	"log/slog"
	"math"

	"golang.org/x/time/rate"
)

// MinBudgetRPS keeps a misconfigured endpoint from stalling forever.
const MinBudgetRPS = 0.1

// CallBudget caps the request rate of a single RPC endpoint.
type CallBudget struct {
	limiter *rate.Limiter
	rps     float64
}

// NewCallBudget sizes the budget to maxCPS scaled by the endpoint weight.
// Burst follows the rounded-up rate so short fan-outs do not queue.
func NewCallBudget(maxCPS, weight float64) *CallBudget {
	if weight <= 0 {
		weight = 1
	}
	rps := maxCPS * weight
	if rps < MinBudgetRPS {
		slog.Warn("call_budget_floor_applied",
			slog.Float64("requested_rps", rps),
			slog.Float64("forced_rps", MinBudgetRPS))
		rps = MinBudgetRPS
	}
	burst := int(math.Ceil(rps))
	if burst < 1 {
		burst = 1
	}
	return &CallBudget{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		rps:     rps,
	}
}

// Unlimited is used by tests and by endpoints that opt out of throttling.
func Unlimited() *CallBudget {
	return &CallBudget{limiter: rate.NewLimiter(rate.Inf, 1), rps: math.Inf(1)}
}

// Wait blocks until a token is available or ctx is done.
func (b *CallBudget) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

func (b *CallBudget) Allow() bool {
	return b.limiter.Allow()
}

func (b *CallBudget) RPS() float64 {
	return b.rps
}
