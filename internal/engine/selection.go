package engine

import (
	"sort"
)

// MaxLag is how many blocks a provider may trail the highest peer and still count as synced.
const MaxLag = 30

// reliabilityWeight scales reliability against lag and latency in the priority score.
const reliabilityWeight = 10

// orderedClients recomputes every client's priority and returns synced clients
// by ascending priority followed by unsynced ones in the same order.
//
//	priority = lag - tie - cps/maxProviderCPS - reliability*10 + latency(ms)
//
// tie is a fixed 1 for the lead and rand[0,1) for everyone else, so the lead
// stays first whenever it qualifies while equal peers share the load. Latency
// is in milliseconds, so a slow provider sinks below faster peers that lag a
// few blocks.
func (a *Aggregator) orderedClients() []EndpointClient {
	lead := a.Lead()

	type scored struct {
		client   EndpointClient
		priority float64
		synced   bool
	}
	all := make([]scored, len(a.clients))
	for i, c := range a.clients {
		h := c.Health()

		tie := 1.0
		if c != lead {
			tie = a.randFloat()
		}
		load := 0.0
		if a.cfg.MaxProviderCPS > 0 {
			load = h.CPS() / a.cfg.MaxProviderCPS
		}
		p := float64(h.Lag()) - tie - load - h.Reliability()*reliabilityWeight + h.Latency()

		h.SetPriority(p)
		all[i] = scored{client: c, priority: p, synced: h.Synced()}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].synced != all[j].synced {
			return all[i].synced
		}
		return all[i].priority < all[j].priority
	})

	out := make([]EndpointClient, len(all))
	for i, s := range all {
		out[i] = s.client
	}
	return out
}
