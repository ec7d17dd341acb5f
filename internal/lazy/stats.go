package lazy

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dedupHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexstream_lazy_dedup_hits_total",
		Help: "Calls resolved to an existing node by structural key",
	})

	unkeyableCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexstream_lazy_unkeyable_calls_total",
		Help: "Calls whose arguments have no stable identity",
	})

	memoHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexstream_lazy_memo_hits_total",
		Help: "Forces answered from a memoized value",
	})

	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flexstream_lazy_evaluations_total",
		Help: "Operations dispatched to the engine one node at a time",
	}, []string{"op"})

	fusedPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flexstream_lazy_fused_passes_total",
		Help: "Engine passes shared by several sibling operations",
	}, []string{"kind"})
)

// Stats is a snapshot of a graph's optimizer activity.
type Stats struct {
	Nodes       int   `json:"nodes"`
	DedupHits   int64 `json:"dedup_hits"`
	Unkeyable   int64 `json:"unkeyable"`
	MemoHits    int64 `json:"memo_hits"`
	Evaluations int64 `json:"evaluations"`

	FusedMaps       int64 `json:"fused_maps"`
	FusedFilters    int64 `json:"fused_filters"`
	FusedAggregates int64 `json:"fused_aggregates"`
}

// FusedPasses returns the total number of fused passes of every kind.
func (s Stats) FusedPasses() int64 {
	return s.FusedMaps + s.FusedFilters + s.FusedAggregates
}

type counters struct {
	dedupHits   atomic.Int64
	unkeyable   atomic.Int64
	memoHits    atomic.Int64
	evaluations atomic.Int64

	fusedMaps       atomic.Int64
	fusedFilters    atomic.Int64
	fusedAggregates atomic.Int64
}

// Stats returns a snapshot of the graph's counters.
func (g *Graph) Stats() Stats {
	return Stats{
		Nodes:           g.Len(),
		DedupHits:       g.stats.dedupHits.Load(),
		Unkeyable:       g.stats.unkeyable.Load(),
		MemoHits:        g.stats.memoHits.Load(),
		Evaluations:     g.stats.evaluations.Load(),
		FusedMaps:       g.stats.fusedMaps.Load(),
		FusedFilters:    g.stats.fusedFilters.Load(),
		FusedAggregates: g.stats.fusedAggregates.Load(),
	}
}

func (g *Graph) recordDedupHit() {
	g.stats.dedupHits.Add(1)
	dedupHitsTotal.Inc()
}

func (g *Graph) recordUnkeyable() {
	g.stats.unkeyable.Add(1)
	unkeyableCallsTotal.Inc()
}

func (g *Graph) recordMemoHit() {
	g.stats.memoHits.Add(1)
	memoHitsTotal.Inc()
}

func (g *Graph) recordEvaluation(op string) {
	g.stats.evaluations.Add(1)
	evaluationsTotal.WithLabelValues(op).Inc()
}

func (g *Graph) recordFusedPass(kind fuseKind) {
	switch kind {
	case kindMap:
		g.stats.fusedMaps.Add(1)
	case kindFilter:
		g.stats.fusedFilters.Add(1)
	case kindAggregate:
		g.stats.fusedAggregates.Add(1)
	}
	fusedPassesTotal.WithLabelValues(string(kind)).Inc()
}
