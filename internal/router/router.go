package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"settlement-rpc-go/internal/config"
	"settlement-rpc-go/internal/engine"
	"settlement-rpc-go/internal/recovery"
)

var ErrUnknownDomain = errors.New("unknown domain")

// Router owns one Aggregator per configured domain.
type Router struct {
	aggregators map[string]*engine.Aggregator
	names       []string
}

type options struct {
	dialer       engine.Dialer
	signer       engine.Signer
	syncInterval time.Duration
	stallTimeout time.Duration
}

type Option func(*options)

// WithDialer replaces the ethclient dialer, mainly for tests.
func WithDialer(d engine.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

func WithSigner(s engine.Signer) Option {
	return func(o *options) { o.signer = s }
}

func WithSyncInterval(d time.Duration) Option {
	return func(o *options) { o.syncInterval = d }
}

// WithStallTimeout sets the stall timeout of providers that configure none.
func WithStallTimeout(d time.Duration) Option {
	return func(o *options) { o.stallTimeout = d }
}

// New validates every domain and dials its providers. Nothing is synced
// until Start.
func New(ctx context.Context, domains map[string]config.DomainConfig, opts ...Option) (*Router, error) {
	if len(domains) == 0 {
		return nil, config.ErrNoDomains
	}
	o := options{dialer: engine.DialRPCNode}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Router{aggregators: make(map[string]*engine.Aggregator, len(domains))}
	for name, d := range domains {
		d.ApplyDefaults()
		if err := d.Validate(name); err != nil {
			r.Close()
			return nil, err
		}

		clients := make([]engine.EndpointClient, 0, len(d.Providers))
		for _, p := range d.Providers {
			if p.StallTimeout <= 0 {
				p.StallTimeout = o.stallTimeout
			}
			c, err := o.dialer(ctx, p, d.MaxProviderCPS)
			if err != nil {
				for _, opened := range clients {
					opened.Close()
				}
				r.Close()
				return nil, fmt.Errorf("domain %s: %w", name, err)
			}
			clients = append(clients, c)
		}

		aggOpts := []engine.Option{}
		if o.signer != nil {
			aggOpts = append(aggOpts, engine.WithSigner(o.signer))
		}
		if len(d.GasStations) > 0 {
			stations := make([]*engine.GasStationClient, 0, len(d.GasStations))
			for _, u := range d.GasStations {
				stations = append(stations, engine.NewGasStationClient(u))
			}
			aggOpts = append(aggOpts, engine.WithGasStations(stations...))
		}

		agg, err := engine.NewAggregator(engine.ConfigFromDomain(name, d, o.syncInterval), clients, aggOpts...)
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			r.Close()
			return nil, err
		}
		r.aggregators[name] = agg
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Start runs the first sync of every domain in parallel and starts their
// background loops. A domain whose providers are all down still starts.
func (r *Router) Start(ctx context.Context) {
	var g errgroup.Group
	for _, name := range r.names {
		agg := r.aggregators[name]
		g.Go(func() error {
			return recovery.Run("start-"+name, func() error {
				agg.Start(ctx)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		engine.Logger.Error("domain_start_failed", slog.String("error", err.Error()))
	}
	engine.Logger.Info("router_started", slog.Int("domains", len(r.names)))
}

// VerifyChainIDs logs every provider serving a different chain than its
// domain is configured for and returns how many were found.
func (r *Router) VerifyChainIDs(ctx context.Context) int {
	mismatched := 0
	for _, name := range r.names {
		for provider, err := range r.aggregators[name].VerifyChainIDs(ctx) {
			mismatched++
			engine.Logger.Error("provider_chain_check_failed",
				slog.String("domain", name),
				slog.String("provider", provider),
				slog.String("error", err.Error()))
		}
	}
	return mismatched
}

func (r *Router) Get(domain string) (*engine.Aggregator, error) {
	agg, ok := r.aggregators[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	return agg, nil
}

// Domains lists the configured domain names, sorted.
func (r *Router) Domains() []string {
	return append([]string(nil), r.names...)
}

func (r *Router) Snapshot() []engine.DomainStatus {
	out := make([]engine.DomainStatus, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.aggregators[name].Snapshot())
	}
	return out
}

func (r *Router) GasPrice(ctx context.Context, domain string) (*big.Int, error) {
	agg, err := r.Get(domain)
	if err != nil {
		return nil, err
	}
	return agg.GasPrice(ctx)
}

func (r *Router) BlockNumber(ctx context.Context, domain string) (uint64, error) {
	agg, err := r.Get(domain)
	if err != nil {
		return 0, err
	}
	return agg.BlockNumber(ctx)
}

func (r *Router) Close() {
	for _, agg := range r.aggregators {
		agg.Close()
	}
}
