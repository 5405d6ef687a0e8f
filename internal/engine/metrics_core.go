package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the aggregation engine
type Metrics struct {
	// Endpoint client metrics
	RPCRequestsTotal  *prometheus.CounterVec
	RPCRequestsFailed *prometheus.CounterVec
	RPCLatency        *prometheus.HistogramVec

	// Sync metrics
	SyncedProviders  *prometheus.GaugeVec
	HighestBlock     *prometheus.GaugeVec
	ProviderUnsynced *prometheus.CounterVec

	// Execute engine metrics
	ExecuteFaults   *prometheus.CounterVec
	QuorumFailures  *prometheus.CounterVec
	QuorumConflicts *prometheus.CounterVec

	// Gas oracle metrics
	GasPrice        *prometheus.GaugeVec
	GasPriceClamped *prometheus.CounterVec

	// Confirmation metrics
	Confirmations *prometheus.CounterVec
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics returns the singleton Metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics()
	})
	return metrics
}

// NewMetrics registers every collector with the default registry. Call it
// once per process; use GetMetrics everywhere else.
func NewMetrics() *Metrics {
	return &Metrics{
		RPCRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcagg_rpc_requests_total",
			Help: "Total number of RPC requests by node and method",
		}, []string{"node", "method"}),
		RPCRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcagg_rpc_requests_failed_total",
			Help: "Total number of failed RPC requests by node and method",
		}, []string{"node", "method"}),
		RPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rpcagg_rpc_request_duration_seconds",
			Help:    "RPC request latency by node and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"node", "method"}),

		SyncedProviders: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rpcagg_synced_providers",
			Help: "Number of providers within MaxLag of the highest known block",
		}, []string{"domain"}),
		HighestBlock: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rpcagg_highest_block",
			Help: "Highest block number reported by any provider in the last sync",
		}, []string{"domain"}),
		ProviderUnsynced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcagg_provider_unsynced_total",
			Help: "Number of synced to unsynced transitions by provider",
		}, []string{"domain", "node"}),

		ExecuteFaults: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcagg_execute_faults_total",
			Help: "Provider-level faults observed by the execute engine",
		}, []string{"domain", "kind"}),
		QuorumFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcagg_quorum_failures_total",
			Help: "Quorum reads where no result group reached the quorum",
		}, []string{"domain"}),
		QuorumConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcagg_quorum_conflicts_total",
			Help: "Quorum reads resolved by tie-break between equally sized groups",
		}, []string{"domain"}),

		GasPrice: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rpcagg_gas_price_wei",
			Help: "Last gas price returned by the oracle",
		}, []string{"domain"}),
		GasPriceClamped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcagg_gas_price_clamped_total",
			Help: "Gas price quotes clamped by a configured bound",
		}, []string{"domain", "bound"}),

		Confirmations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rpcagg_confirmations_total",
			Help: "Confirmation polling outcomes",
		}, []string{"domain", "outcome"}),
	}
}
