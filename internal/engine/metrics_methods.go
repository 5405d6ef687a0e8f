package engine

import (
	"math/big"
	"time"
)

// RecordRPCRequest records an RPC request
func (m *Metrics) RecordRPCRequest(node, method string, duration time.Duration, success bool) {
	labels := map[string]string{"node": node, "method": method}
	m.RPCRequestsTotal.With(labels).Inc()
	m.RPCLatency.With(labels).Observe(duration.Seconds())
	if !success {
		m.RPCRequestsFailed.With(labels).Inc()
	}
}

// RecordSync updates the per-domain sync gauges
func (m *Metrics) RecordSync(domain string, synced int, highest uint64) {
	m.SyncedProviders.WithLabelValues(domain).Set(float64(synced))
	m.HighestBlock.WithLabelValues(domain).Set(float64(highest))
}

func (m *Metrics) RecordProviderUnsynced(domain, node string) {
	m.ProviderUnsynced.WithLabelValues(domain, node).Inc()
}

func (m *Metrics) RecordExecuteFault(domain string, kind FaultKind) {
	m.ExecuteFaults.WithLabelValues(domain, kind.String()).Inc()
}

func (m *Metrics) RecordQuorumFailure(domain string) {
	m.QuorumFailures.WithLabelValues(domain).Inc()
}

func (m *Metrics) RecordQuorumConflict(domain string) {
	m.QuorumConflicts.WithLabelValues(domain).Inc()
}

// RecordGasPrice exports the quoted price in wei; float precision is fine for a gauge
func (m *Metrics) RecordGasPrice(domain string, price *big.Int) {
	f, _ := new(big.Float).SetInt(price).Float64()
	m.GasPrice.WithLabelValues(domain).Set(f)
}

func (m *Metrics) RecordGasPriceClamped(domain, bound string) {
	m.GasPriceClamped.WithLabelValues(domain, bound).Inc()
}

// RecordConfirmation counts a terminal confirmation outcome
func (m *Metrics) RecordConfirmation(domain, outcome string) {
	m.Confirmations.WithLabelValues(domain, outcome).Inc()
}
