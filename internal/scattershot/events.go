package scattershot

import (
	"time"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

// Stats are cumulative counters over all workers.
type Stats struct {
	Shots     int64 `json:"shots"`
	Scripts   int64 `json:"scripts"`
	Failed    int64 `json:"failed"`
	Redundant int64 `json:"redundant"`
	Novel     int64 `json:"novel"`
	Dropped   int64 `json:"dropped"`
}

func (s *Stats) add(o Stats) {
	s.Shots += o.Shots
	s.Scripts += o.Scripts
	s.Failed += o.Failed
	s.Redundant += o.Redundant
	s.Novel += o.Novel
	s.Dropped += o.Dropped
}

// Percent returns failed, redundant and novel scripts as shares of all scripts.
func (s Stats) Percent() (futility, redundancy, discovery float64) {
	if s.Scripts == 0 {
		return 0, 0, 0
	}
	n := float64(s.Scripts)
	return 100 * float64(s.Failed) / n, 100 * float64(s.Redundant) / n, 100 * float64(s.Novel) / n
}

type MergeEvent struct {
	RunID          string        `json:"run_id"`
	Merge          int64         `json:"merge"`
	SharedBlocks   int           `json:"shared_blocks"`
	SharedSegments int           `json:"shared_segments"`
	Collected      int           `json:"collected"`
	Solutions      int           `json:"solutions"`
	Stats          Stats         `json:"stats"`
	Duration       time.Duration `json:"duration_ns"`
}

type SolutionEvent struct {
	RunID   string        `json:"run_id"`
	Block   int32         `json:"block"`
	Fitness float32       `json:"fitness"`
	Bin     string        `json:"bin"`
	Diff    timeline.Diff `json:"diff"`
}

type SampleEvent struct {
	RunID   string  `json:"run_id"`
	Worker  int     `json:"worker"`
	Shot    int64   `json:"shot"`
	Frame   int64   `json:"frame"`
	Bin     string  `json:"bin"`
	Fitness float32 `json:"fitness"`
	Depth   uint32  `json:"depth"`
}

// Sink receives engine events. Calls are serialized: they happen while every
// worker waits at the merge barrier or after the run.
type Sink interface {
	RecordMerge(MergeEvent)
	RecordSolution(SolutionEvent)
	RecordSample(SampleEvent)
}

// Sinks fans events out in order.
type Sinks []Sink

func (s Sinks) RecordMerge(e MergeEvent) {
	for _, k := range s {
		k.RecordMerge(e)
	}
}

func (s Sinks) RecordSolution(e SolutionEvent) {
	for _, k := range s {
		k.RecordSolution(e)
	}
}

func (s Sinks) RecordSample(e SampleEvent) {
	for _, k := range s {
		k.RecordSample(e)
	}
}
