package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resource and slot manager counters.

var (
	SlotEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tas",
		Subsystem: "slots",
		Name:      "evictions_total",
		Help:      "Snapshots evicted to stay inside the slot byte budget",
	})

	SlotsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tas",
		Subsystem: "slots",
		Name:      "created_total",
		Help:      "Snapshots admitted into a slot manager",
	})

	ResourceOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tas",
		Subsystem: "resource",
		Name:      "ops_total",
		Help:      "Resource operations by kind (advance, load, save)",
	}, []string{"op"})

	// Scattershot

	ScriptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tas",
		Subsystem: "scattershot",
		Name:      "scripts_total",
		Help:      "Exploration steps by outcome (failed, redundant, novel)",
	}, []string{"result"})

	ShotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tas",
		Subsystem: "scattershot",
		Name:      "shots_total",
		Help:      "Shots fired from a base block",
	})

	MergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tas",
		Subsystem: "scattershot",
		Name:      "merges_total",
		Help:      "Thread-local state merges into the shared pool",
	})

	MergeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tas",
		Subsystem: "scattershot",
		Name:      "merge_duration_seconds",
		Help:      "Time spent inside the exclusive merge step",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	SegmentsCollected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tas",
		Subsystem: "scattershot",
		Name:      "segments_collected_total",
		Help:      "Segments freed by reference-count garbage collection",
	})

	SharedBlocks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tas",
		Subsystem: "scattershot",
		Name:      "shared_blocks",
		Help:      "Blocks in the shared pool after the latest merge",
	})

	SharedSegments = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tas",
		Subsystem: "scattershot",
		Name:      "shared_segments",
		Help:      "Live segments after the latest merge",
	})

	SolutionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tas",
		Subsystem: "scattershot",
		Name:      "solutions_total",
		Help:      "Solution blocks recorded",
	})
)
