package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"settlement-rpc-go/internal/config"
	"settlement-rpc-go/internal/recovery"
	"settlement-rpc-go/pkg/network"
)

// DefaultBlockPeriod paces confirmation polling until the first estimate lands.
const DefaultBlockPeriod = 2000 * time.Millisecond

// GasPriceConfig holds the oracle's bounds. Nil bounds are disabled.
type GasPriceConfig struct {
	Minimum             *big.Int
	Maximum             *big.Int
	InitialBoostPercent int64
	MaxIncreaseScalar   int64
	Hardcoded           *big.Int
	SkipMinimum         bool
}

// AggregatorConfig is the per-domain configuration of an Aggregator.
type AggregatorConfig struct {
	Domain              string
	ChainID             *big.Int
	Quorum              int
	MaxProviderCPS      float64
	Confirmations       int
	ConfirmationTimeout time.Duration
	GasPrice            GasPriceConfig
	GasLimitInflation   uint64
	GasStations         []string
	SyncInterval        time.Duration
}

// ConfigFromDomain converts a validated domain entry into an AggregatorConfig.
func ConfigFromDomain(domain string, d config.DomainConfig, syncInterval time.Duration) AggregatorConfig {
	return AggregatorConfig{
		Domain:              domain,
		ChainID:             big.NewInt(d.ChainID),
		Quorum:              d.Quorum,
		MaxProviderCPS:      d.MaxProviderCPS,
		Confirmations:       d.Confirmations,
		ConfirmationTimeout: d.ConfirmationTimeout,
		GasPrice: GasPriceConfig{
			Minimum:             d.GasPriceMinimum.Int,
			Maximum:             d.GasPriceMaximum.Int,
			InitialBoostPercent: d.GasPriceInitialBoostPercent,
			MaxIncreaseScalar:   d.GasPriceMaxIncreaseScalar,
			Hardcoded:           d.HardcodedGasPrice.Int,
			SkipMinimum:         d.SkipGasPriceMinimum,
		},
		GasLimitInflation: d.GasLimitInflation,
		GasStations:       d.GasStations,
		SyncInterval:      syncInterval,
	}
}

// Aggregator presents one reliable chain API over a fixed set of endpoint
// clients for a single domain.
type Aggregator struct {
	cfg      AggregatorConfig
	clients  []EndpointClient
	signer   Signer
	cache    *ProviderCache
	stations []*GasStationClient
	metrics  *Metrics

	mu      sync.RWMutex
	lead    EndpointClient
	highest uint64

	// gasMu serializes the oracle so two callers never curb against the same stale baseline
	gasMu            sync.Mutex
	lastUsedGasPrice *big.Int

	blockPeriod atomic.Int64

	randFloat func() float64
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	cancel  context.CancelFunc
	stopped sync.WaitGroup
}

// Option configures an Aggregator at construction.
type Option func(*Aggregator)

// WithSigner enables calls that need to sign.
func WithSigner(s Signer) Option {
	return func(a *Aggregator) { a.signer = s }
}

// WithGasStations replaces the feed clients built from the config.
func WithGasStations(stations ...*GasStationClient) Option {
	return func(a *Aggregator) { a.stations = stations }
}

// NewAggregator validates the provider set and builds an idle aggregator.
// Call Start to run the first sync.
func NewAggregator(cfg AggregatorConfig, clients []EndpointClient, opts ...Option) (*Aggregator, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("domain %s: %w", cfg.Domain, config.ErrNoProviders)
	}
	if cfg.Quorum < 1 {
		cfg.Quorum = 1
	}
	if cfg.Quorum > len(clients) {
		return nil, fmt.Errorf("domain %s: %w (quorum %d, providers %d)", cfg.Domain, config.ErrQuorumTooLarge, cfg.Quorum, len(clients))
	}
	if cfg.Confirmations <= 0 {
		cfg.Confirmations = config.DefaultConfirmations
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = config.DefaultConfirmationTimeout
	}

	a := &Aggregator{
		cfg:       cfg,
		clients:   clients,
		cache:     NewProviderCache(),
		metrics:   GetMetrics(),
		lead:      clients[0],
		randFloat: rand.Float64,
		sleep:     sleepCtx,
		now:       time.Now,
	}
	for _, url := range cfg.GasStations {
		a.stations = append(a.stations, NewGasStationClient(url))
	}
	a.blockPeriod.Store(int64(DefaultBlockPeriod))

	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Aggregator) Domain() string { return a.cfg.Domain }

// Clients returns the provider set in configuration order.
func (a *Aggregator) Clients() []EndpointClient {
	return a.clients
}

// Lead is the client elected by the last sync pass.
func (a *Aggregator) Lead() EndpointClient {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lead
}

// HighestBlock is the highest block number seen in the last sync pass.
func (a *Aggregator) HighestBlock() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.highest
}

func (a *Aggregator) BlockPeriod() time.Duration {
	return time.Duration(a.blockPeriod.Load())
}

// Start runs the first sync synchronously, estimates the block period in the
// background, and keeps re-syncing every SyncInterval until ctx ends or Close.
func (a *Aggregator) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	if err := a.Sync(ctx); err != nil {
		Logger.Warn("initial_sync_failed",
			slog.String("domain", a.cfg.Domain),
			slog.String("error", err.Error()))
	}

	a.stopped.Add(1)
	recovery.Go("block-period-"+a.cfg.Domain, func() {
		defer a.stopped.Done()
		a.EstimateBlockPeriod(ctx)
	})

	if a.cfg.SyncInterval <= 0 {
		return
	}
	a.stopped.Add(1)
	recovery.Go("sync-loop-"+a.cfg.Domain, func() {
		defer a.stopped.Done()
		ticker := time.NewTicker(a.cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.Sync(ctx); err != nil && ctx.Err() == nil {
					Logger.Warn("periodic_sync_failed",
						slog.String("domain", a.cfg.Domain),
						slog.String("error", err.Error()))
				}
			}
		}
	})
}

// Close stops background work and closes every client.
func (a *Aggregator) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	a.stopped.Wait()
	for _, c := range a.clients {
		c.Close()
	}
}

// DomainStatus is the status view of one aggregator.
type DomainStatus struct {
	Domain        string           `json:"domain"`
	Network       string           `json:"network,omitempty"`
	HighestBlock  uint64           `json:"highest_block"`
	BlockPeriodMs int64            `json:"block_period_ms"`
	Quorum        int              `json:"quorum"`
	Providers     []HealthSnapshot `json:"providers"`
}

func (a *Aggregator) Snapshot() DomainStatus {
	lead := a.Lead()
	out := DomainStatus{
		Domain:        a.cfg.Domain,
		HighestBlock:  a.HighestBlock(),
		BlockPeriodMs: a.BlockPeriod().Milliseconds(),
		Quorum:        a.cfg.Quorum,
		Providers:     make([]HealthSnapshot, 0, len(a.clients)),
	}
	if a.cfg.ChainID != nil && a.cfg.ChainID.Sign() > 0 {
		out.Network = network.Name(a.cfg.ChainID.Int64())
	}
	for _, c := range a.clients {
		s := c.Health().Snapshot(c.Name())
		s.Lead = c == lead
		out.Providers = append(out.Providers, s)
	}
	return out
}

// VerifyChainIDs checks every client that can report its chain id against
// the domain's. The result maps client name to its failure.
func (a *Aggregator) VerifyChainIDs(ctx context.Context) map[string]error {
	if a.cfg.ChainID == nil || a.cfg.ChainID.Sign() <= 0 {
		return nil
	}
	errs := make([]error, len(a.clients))
	var g errgroup.Group
	for i, c := range a.clients {
		reader, ok := c.(network.ChainIDReader)
		if !ok {
			continue
		}
		g.Go(func() error {
			errs[i] = network.VerifyChainID(ctx, reader, a.cfg.ChainID.Int64())
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]error)
	for i, err := range errs {
		if err != nil {
			out[a.clients[i].Name()] = err
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
