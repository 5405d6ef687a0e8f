package engine

import (
	"sync"
	"time"

	"settlement-rpc-go/internal/limiter"
)

const (
	reliabilityGain    = 0.1
	reliabilityPenalty = 0.2
	latencyAlpha       = 0.2
)

// NodeHealth is the self-reported state of one endpoint. The client updates
// reliability, latency and cps after each call; lag, synced and priority are
// written only by the aggregator.
type NodeHealth struct {
	mu sync.RWMutex

	weight       float64
	stallTimeout time.Duration

	priority          float64
	lag               uint64
	synced            bool
	syncedBlockNumber uint64
	reliability       float64
	latencyMs         float64

	calls *limiter.CallWindow
}

func NewNodeHealth(priority, weight float64, stallTimeout time.Duration) *NodeHealth {
	if weight <= 0 {
		weight = 1
	}
	return &NodeHealth{
		weight:       weight,
		stallTimeout: stallTimeout,
		priority:     priority,
		synced:       true,
		reliability:  1,
		calls:        limiter.NewCallWindow(time.Second),
	}
}

func (h *NodeHealth) Weight() float64             { return h.weight }
func (h *NodeHealth) StallTimeout() time.Duration { return h.stallTimeout }

func (h *NodeHealth) Priority() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.priority
}

func (h *NodeHealth) SetPriority(p float64) {
	h.mu.Lock()
	h.priority = p
	h.mu.Unlock()
}

func (h *NodeHealth) Lag() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lag
}

func (h *NodeHealth) SetLag(lag uint64) {
	h.mu.Lock()
	h.lag = lag
	h.mu.Unlock()
}

func (h *NodeHealth) Synced() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.synced
}

func (h *NodeHealth) SetSynced(synced bool) {
	h.mu.Lock()
	h.synced = synced
	h.mu.Unlock()
}

func (h *NodeHealth) SyncedBlockNumber() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.syncedBlockNumber
}

func (h *NodeHealth) SetSyncedBlockNumber(n uint64) {
	h.mu.Lock()
	h.syncedBlockNumber = n
	h.mu.Unlock()
}

func (h *NodeHealth) Reliability() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.reliability
}

// SetReliability clamps r into [0, 1].
func (h *NodeHealth) SetReliability(r float64) {
	if r < 0 {
		r = 0
	} else if r > 1 {
		r = 1
	}
	h.mu.Lock()
	h.reliability = r
	h.mu.Unlock()
}

// Latency is the rolling average call duration in milliseconds.
func (h *NodeHealth) Latency() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latencyMs
}

// CPS is the number of calls started during the last second.
func (h *NodeHealth) CPS() float64 {
	return h.calls.Rate()
}

// RecordCall notes that a call is about to be sent.
func (h *NodeHealth) RecordCall() {
	h.calls.Record()
}

// RecordResult folds one finished call into latency and reliability.
func (h *NodeHealth) RecordResult(elapsed time.Duration, fault bool) {
	ms := float64(elapsed) / float64(time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latencyMs == 0 {
		h.latencyMs = ms
	} else {
		h.latencyMs += latencyAlpha * (ms - h.latencyMs)
	}
	if fault {
		h.reliability -= h.reliability * reliabilityPenalty
	} else {
		h.reliability += (1 - h.reliability) * reliabilityGain
	}
}

// HealthSnapshot is a point-in-time copy of NodeHealth for status output.
type HealthSnapshot struct {
	Name              string  `json:"name"`
	Lead              bool    `json:"lead"`
	Priority          float64 `json:"priority"`
	Weight            float64 `json:"weight"`
	Lag               uint64  `json:"lag"`
	Synced            bool    `json:"synced"`
	SyncedBlockNumber uint64  `json:"synced_block_number"`
	Reliability       float64 `json:"reliability"`
	LatencyMs         float64 `json:"latency_ms"`
	CPS               float64 `json:"cps"`
}

func (h *NodeHealth) Snapshot(name string) HealthSnapshot {
	cps := h.CPS()
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HealthSnapshot{
		Name:              name,
		Priority:          h.priority,
		Weight:            h.weight,
		Lag:               h.lag,
		Synced:            h.synced,
		SyncedBlockNumber: h.syncedBlockNumber,
		Reliability:       h.reliability,
		LatencyMs:         h.latencyMs,
		CPS:               cps,
	}
}
