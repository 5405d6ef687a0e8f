package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"settlement-rpc-go/internal/api"
	"settlement-rpc-go/internal/config"
	"settlement-rpc-go/internal/engine"
	"settlement-rpc-go/internal/recovery"
	"settlement-rpc-go/internal/router"
	"settlement-rpc-go/internal/telemetry"
	"settlement-rpc-go/internal/web"
)

const (
	flagDomains  = "domains"
	flagAddr     = "addr"
	flagURLs     = "urls"
	flagChainID  = "chain-id"
	flagQuorum   = "quorum"
	flagInterval = "stream-interval"

	adhocDomain = "adhoc"
)

// ServeCmd runs every configured domain and the HTTP API until SIGINT/SIGTERM.
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Sync all domains and serve the status API.",
		Args:  cobra.NoArgs,
		RunE:  serveRunE,
	}
	cmd.Flags().String(flagAddr, "", "listen address (default $API_ADDR or :8080)")
	cmd.Flags().Duration(flagInterval, 5*time.Second, "how often /ws subscribers receive domain status")
	return cmd
}

// StatusCmd syncs once and prints the provider table as JSON.
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Sync once and print per-provider health.",
		Args:  cobra.NoArgs,
		RunE:  statusRunE,
	}
	cmd.Flags().StringSlice(flagURLs, nil, "probe these RPC URLs as one ad-hoc domain instead of the domains file (default $RPC_URLS)")
	cmd.Flags().Int64(flagChainID, 1, "chain id of the ad-hoc domain")
	cmd.Flags().Int(flagQuorum, 1, "quorum of the ad-hoc domain")
	return cmd
}

func serveRunE(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	engine.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OtelEndpoint)
	if err != nil {
		engine.Logger.Warn("tracer_init_failed", slog.String("error", err.Error()))
	}
	defer shutdownTracer()

	domains, err := loadDomains(cmd, cfg)
	if err != nil {
		return err
	}

	r, err := newRouter(ctx, cfg, domains)
	if err != nil {
		return err
	}
	defer r.Close()
	r.VerifyChainIDs(ctx)
	r.Start(ctx)

	hub := web.NewHub()
	recovery.Go("status-hub", func() { hub.Run(ctx) })
	interval, _ := cmd.Flags().GetDuration(flagInterval)
	recovery.Go("status-feed", func() {
		hub.Publish(ctx, interval, func() interface{} { return r.Snapshot() })
	})

	addr, _ := cmd.Flags().GetString(flagAddr)
	if addr == "" {
		addr = cfg.APIAddr
	}
	if err := api.NewServer(r, hub, addr).ListenAndServe(ctx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	engine.Logger.Info("shutdown_complete")
	return nil
}

func statusRunE(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	engine.InitLogger(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	var domains map[string]config.DomainConfig
	urls, _ := cmd.Flags().GetStringSlice(flagURLs)
	if len(urls) == 0 {
		urls = cfg.RPCURLs
	}
	if len(urls) > 0 {
		chainID, _ := cmd.Flags().GetInt64(flagChainID)
		quorum, _ := cmd.Flags().GetInt(flagQuorum)
		domains = adhocDomains(urls, chainID, quorum)
	} else {
		var err error
		if domains, err = loadDomains(cmd, cfg); err != nil {
			return err
		}
	}

	r, err := newRouter(ctx, cfg, domains)
	if err != nil {
		return err
	}
	defer r.Close()

	r.VerifyChainIDs(ctx)
	for _, name := range r.Domains() {
		agg, _ := r.Get(name)
		if err := agg.Sync(ctx); err != nil {
			engine.Logger.Warn("status_sync_failed", slog.String("domain", name), slog.String("error", err.Error()))
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(r.Snapshot())
}

func loadDomains(cmd *cobra.Command, cfg *config.Config) (map[string]config.DomainConfig, error) {
	path, _ := cmd.Flags().GetString(flagDomains)
	if path == "" {
		path = cfg.DomainsFile
	}
	domains, err := config.LoadDomains(path)
	if err != nil {
		return nil, fmt.Errorf("load domains from %s: %w", path, err)
	}
	return domains, nil
}

func newRouter(ctx context.Context, cfg *config.Config, domains map[string]config.DomainConfig) (*router.Router, error) {
	opts := []router.Option{
		router.WithSyncInterval(cfg.SyncInterval),
		router.WithStallTimeout(cfg.StallTimeout),
	}
	if cfg.SignerPrivateKey != "" {
		signer, err := engine.NewKeySigner(cfg.SignerPrivateKey)
		if err != nil {
			return nil, err
		}
		engine.Logger.Info("signer_loaded", slog.String("address", signer.Address().Hex()))
		opts = append(opts, router.WithSigner(signer))
	}
	return router.New(ctx, domains, opts...)
}

func adhocDomains(urls []string, chainID int64, quorum int) map[string]config.DomainConfig {
	providers := make([]config.ProviderConfig, 0, len(urls))
	for _, u := range urls {
		providers = append(providers, config.ProviderConfig{URL: u})
	}
	return map[string]config.DomainConfig{
		adhocDomain: {ChainID: chainID, Providers: providers, Quorum: quorum},
	}
}
