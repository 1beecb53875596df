package scattershot

import (
	"fmt"
	"sort"
	"time"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/metrics"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

// Solution is a shared block whose state finished the route, with the inputs
// that reach it from the start frame.
type Solution[B Bin] struct {
	Block   int32         `json:"block"`
	Bin     B             `json:"bin"`
	Fitness float32       `json:"fitness"`
	Diff    timeline.Diff `json:"diff"`
}

// merge folds every worker's local tables into the shared ones, in worker id
// order. It runs at the barrier with all workers parked.
func (e *Engine[S, B]) merge() error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	pending := 0
	pinned := make([][]Segment, len(e.workers))
	for i, w := range e.workers {
		pending += len(w.segs)
		pinned[i] = w.segs
	}
	collected := 0
	if e.segs.len()+pending > e.segs.max {
		n, err := collectSegments(&e.segs, e.shared.blocks, pinned...)
		if err != nil {
			return err
		}
		collected += n
	}

	remaps := make([][]SegmentRef, len(e.workers))
	for i, w := range e.workers {
		remap, err := e.mergeSegments(w)
		if err != nil {
			return err
		}
		remaps[i] = remap
	}

	var found []int32
	for i, w := range e.workers {
		if err := e.mergeBlocks(w, remaps[i], &found); err != nil {
			return err
		}
	}

	var samples []SampleEvent
	for _, w := range e.workers {
		e.stats.add(w.stats)
		samples = append(samples, w.samples...)
		w.resetLocal()
	}

	e.merges++
	if e.merges%int64(e.cfg.MergesPerSegmentGC) == 0 {
		n, err := collectSegments(&e.segs, e.shared.blocks)
		if err != nil {
			return err
		}
		collected += n
	}

	if e.ctx != nil && e.ctx.Err() != nil {
		e.stopping = true
	}
	if e.cfg.MaxSolutions > 0 && len(e.solutions) >= e.cfg.MaxSolutions {
		e.stopping = true
	}

	elapsed := time.Since(start)
	metrics.MergesTotal.Inc()
	metrics.MergeLatency.Observe(elapsed.Seconds())
	metrics.SegmentsCollected.Add(float64(collected))
	metrics.SharedBlocks.Set(float64(e.shared.len()))
	metrics.SharedSegments.Set(float64(e.segs.len()))

	for i := range samples {
		samples[i].RunID = e.runID
		e.sink.RecordSample(samples[i])
	}
	sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
	for _, idx := range found {
		s := e.solutions[idx]
		metrics.SolutionsTotal.Inc()
		e.sink.RecordSolution(SolutionEvent{
			RunID:   e.runID,
			Block:   s.Block,
			Fitness: s.Fitness,
			Bin:     fmt.Sprint(s.Bin),
			Diff:    s.Diff,
		})
	}
	e.sink.RecordMerge(MergeEvent{
		RunID:          e.runID,
		Merge:          e.merges,
		SharedBlocks:   e.shared.len(),
		SharedSegments: e.segs.len(),
		Collected:      collected,
		Solutions:      len(e.solutions),
		Stats:          e.stats,
		Duration:       elapsed,
	})
	if e.checkpoint != nil && e.checkpointEvery > 0 && e.merges%e.checkpointEvery == 0 {
		e.checkpoint(e.exportLocked())
	}
	return nil
}

// mergeSegments moves w's segments into the shared arena and returns where
// each one landed. Local parents are always shared base tails.
func (e *Engine[S, B]) mergeSegments(w *worker[S, B]) ([]SegmentRef, error) {
	remap := make([]SegmentRef, len(w.segs))
	for i, s := range w.segs {
		if !s.Parent.IsNil() {
			p, err := e.segs.get(s.Parent)
			if err != nil {
				return nil, fmt.Errorf("worker %d segment %d: %w", w.id, i, err)
			}
			p.RefCount++
		}
		s.RefCount = 0
		ref, err := e.segs.add(s)
		if err != nil {
			return nil, err
		}
		remap[i] = ref
	}
	return remap, nil
}

// mergeBlocks offers w's blocks to the shared table. A strictly fitter block
// replaces the shared one, ties keep the incumbent and a solution is never
// replaced by a non-solution.
func (e *Engine[S, B]) mergeBlocks(w *worker[S, B], remap []SegmentRef, found *[]int32) error {
	for li, lb := range w.blocks.blocks {
		if lb.Tail.Shared() || int(lb.Tail.Index) >= len(remap) {
			return fmt.Errorf("%w: worker %d block %d has tail %s", ErrMalformedSegment, w.id, li, lb.Tail)
		}
		lb.Tail = remap[lb.Tail.Index]
		solutionsFull := e.cfg.MaxSolutions > 0 && len(e.solutions) >= e.cfg.MaxSolutions

		idx, ok := e.shared.find(lb.Bin)
		if !ok {
			if lb.Solution && solutionsFull {
				continue
			}
			if idx, ok = e.shared.add(lb); !ok {
				e.stats.Dropped++
				continue
			}
		} else {
			sb := &e.shared.blocks[idx]
			if lb.Fitness <= sb.Fitness || (sb.Solution && !lb.Solution) {
				continue
			}
			if lb.Solution && !sb.Solution && solutionsFull {
				continue
			}
			if old, err := e.segs.get(sb.Tail); err == nil && old.RefCount > 0 {
				old.RefCount--
			}
			*sb = lb
		}

		if t, err := e.segs.get(lb.Tail); err == nil {
			t.RefCount++
		}
		if lb.Solution {
			if _, seen := e.solutions[idx]; !seen {
				*found = append(*found, idx)
			}
			e.solutions[idx] = Solution[B]{Block: idx, Bin: lb.Bin, Fitness: lb.Fitness, Diff: w.solutions[int32(li)]}
		}
	}
	return nil
}
