package engine

import (
	"context"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	boundIncreaseScalar = "increase_scalar"
	boundMaximum        = "maximum"
	boundMinimum        = "minimum"
)

// GasPrice quotes a gas price for the domain. Sources, first hit wins:
// the hardcoded price, the 30s cache, the configured gas stations in order,
// and finally the selected provider's eth_gasPrice plus the initial boost.
// Station and provider quotes are curbed against the last used price and
// clamped to [minimum, maximum]; a clamped quote is never cached.
func (a *Aggregator) GasPrice(ctx context.Context) (*big.Int, error) {
	gp := a.cfg.GasPrice
	if gp.Hardcoded != nil {
		return new(big.Int).Set(gp.Hardcoded), nil
	}

	a.gasMu.Lock()
	defer a.gasMu.Unlock()

	if cached, ok := a.cache.GasPrice(); ok {
		return cached, nil
	}

	quote := a.stationGasPrice(ctx)
	if quote == nil {
		price, err := Execute(ctx, a, "gas_price", false, func(ctx context.Context, c EndpointClient) (*big.Int, error) {
			return c.SuggestGasPrice(ctx)
		})
		if err != nil {
			return nil, err
		}
		quote = applyBoost(price, gp.InitialBoostPercent)
	}

	final, bound := a.curbGasPrice(quote)
	a.lastUsedGasPrice = new(big.Int).Set(final)
	if bound == "" {
		a.cache.SetGasPrice(final)
	} else {
		LogGasPriceClamped(a.cfg.Domain, bound, quote, final)
		a.metrics.RecordGasPriceClamped(a.cfg.Domain, bound)
	}
	a.metrics.RecordGasPrice(a.cfg.Domain, final)
	return final, nil
}

// LastUsedGasPrice is the baseline the next quote is curbed against.
func (a *Aggregator) LastUsedGasPrice() *big.Int {
	a.gasMu.Lock()
	defer a.gasMu.Unlock()
	if a.lastUsedGasPrice == nil {
		return nil
	}
	return new(big.Int).Set(a.lastUsedGasPrice)
}

// stationGasPrice returns the first usable station quote, or nil.
func (a *Aggregator) stationGasPrice(ctx context.Context) *big.Int {
	for _, s := range a.stations {
		price, err := s.GasPrice(ctx)
		if err != nil {
			LogGasStationSkipped(a.cfg.Domain, s.URL(), err)
			continue
		}
		return price
	}
	return nil
}

func applyBoost(price *big.Int, percent int64) *big.Int {
	if percent <= 0 {
		return price
	}
	out := new(big.Int).Mul(price, big.NewInt(100+percent))
	return out.Quo(out, big.NewInt(100))
}

// curbGasPrice applies the increase scalar and the [minimum, maximum] bounds
// and reports which bound fired last, or "" if none did.
func (a *Aggregator) curbGasPrice(quote *big.Int) (*big.Int, string) {
	gp := a.cfg.GasPrice
	price, overflow := uint256.FromBig(quote)
	if overflow {
		price = new(uint256.Int).SetAllOne()
	}
	bound := ""

	if gp.MaxIncreaseScalar > 100 && a.lastUsedGasPrice != nil {
		last, _ := uint256.FromBig(a.lastUsedGasPrice)
		limit, overflow := new(uint256.Int).MulDivOverflow(last, uint256.NewInt(uint64(gp.MaxIncreaseScalar)), uint256.NewInt(100))
		if !overflow && price.Gt(limit) {
			price = limit
			bound = boundIncreaseScalar
		}
	}
	if gp.Maximum != nil {
		if maximum, _ := uint256.FromBig(gp.Maximum); price.Gt(maximum) {
			price = maximum
			bound = boundMaximum
		}
	}
	if gp.Minimum != nil && !gp.SkipMinimum {
		if minimum, _ := uint256.FromBig(gp.Minimum); price.Lt(minimum) {
			price = minimum
			bound = boundMinimum
		}
	}
	return price.ToBig(), bound
}
