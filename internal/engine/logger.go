package engine

import (
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
)

// Logger is the package-wide structured logger. It starts as slog.Default so
// tests and library callers never see a nil logger before InitLogger runs.
var Logger = slog.Default()

// InitLogger configures the structured logger
func InitLogger(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	if os.Getenv("LOG_FORMAT") == "text" {
		Logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
	} else {
		Logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}

	slog.SetDefault(Logger)
}

// LogProviderUnsynced records a provider falling MaxLag or more blocks behind
func LogProviderUnsynced(domain, provider string, lag, highest uint64) {
	Logger.Warn("provider_unsynced",
		slog.String("domain", domain),
		slog.String("provider", provider),
		slog.Uint64("lag", lag),
		slog.Uint64("highest_block", highest),
	)
}

// LogProviderSyncFailed records a provider excluded from a sync round
func LogProviderSyncFailed(domain, provider string, err error) {
	Logger.Warn("provider_sync_failed",
		slog.String("domain", domain),
		slog.String("provider", provider),
		slog.String("error", err.Error()),
	)
}

// LogProviderFault records a fault that moves execution to the next provider
func LogProviderFault(domain, method string, fault *ProviderFault) {
	Logger.Debug("provider_fault",
		slog.String("domain", domain),
		slog.String("method", method),
		slog.String("provider", fault.Provider),
		slog.String("kind", fault.Kind.String()),
		slog.String("error", fault.Err.Error()),
	)
}

// LogQuorumConflict records tied result groups in a quorum read
func LogQuorumConflict(domain, method string, groups, size int) {
	Logger.Warn("quorum_conflict",
		slog.String("domain", domain),
		slog.String("method", method),
		slog.Int("tied_groups", groups),
		slog.Int("group_size", size),
	)
}

// LogGasPriceClamped records a quote that hit a configured bound
func LogGasPriceClamped(domain, bound string, quoted, final *big.Int) {
	Logger.Info("gas_price_clamped",
		slog.String("domain", domain),
		slog.String("bound", bound),
		slog.String("quoted_wei", quoted.String()),
		slog.String("final_wei", final.String()),
	)
}

// LogGasStationSkipped records an unusable price feed
func LogGasStationSkipped(domain, station string, err error) {
	Logger.Warn("gas_station_skipped",
		slog.String("domain", domain),
		slog.String("station", station),
		slog.String("error", err.Error()),
	)
}

// LogTransactionBroadcast records a signed payload accepted by a provider
func LogTransactionBroadcast(domain, txID string, signed *types.Transaction) {
	Logger.Info("transaction_broadcast",
		slog.String("domain", domain),
		slog.String("tx_id", txID),
		slog.String("hash", signed.Hash().Hex()),
		slog.Uint64("nonce", signed.Nonce()),
	)
}

// LogBlockPeriodEstimateFailed records a failed block period estimate
func LogBlockPeriodEstimateFailed(domain string, err error) {
	Logger.Debug("block_period_estimate_failed",
		slog.String("domain", domain),
		slog.String("error", err.Error()),
	)
}
