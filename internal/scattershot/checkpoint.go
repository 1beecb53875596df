package scattershot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/persistence/snapshot"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/resource"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/script"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

// Export captures the shared tables. Sinks must not call it; use
// SetCheckpointHook to checkpoint during a run.
func (e *Engine[S, B]) Export() snapshot.CheckpointV1[B] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.exportLocked()
}

func (e *Engine[S, B]) exportLocked() snapshot.CheckpointV1[B] {
	cfg, _ := json.Marshal(e.cfg)
	cp := snapshot.CheckpointV1[B]{
		Header: snapshot.Header{
			Version:    snapshot.Version,
			RunID:      e.runID,
			StartFrame: e.cfg.StartFrame,
			Merges:     e.merges,
			Blocks:     e.shared.len(),
			Segments:   e.segs.len(),
			Solutions:  len(e.solutions),
			CreatedAt:  time.Now().Unix(),
		},
		Config:   cfg,
		Blocks:   make([]snapshot.BlockV1[B], 0, e.shared.len()),
		Segments: make([]snapshot.SegmentV1, 0, e.segs.len()),
		Original: e.original.Entries(),
	}
	for _, b := range e.shared.blocks {
		cp.Blocks = append(cp.Blocks, snapshot.BlockV1[B]{Fitness: b.Fitness, Bin: b.Bin, Tail: b.Tail.Index, Solution: b.Solution})
	}
	for _, s := range e.segs.segs {
		cp.Segments = append(cp.Segments, snapshot.SegmentV1{
			Parent:  s.Parent.Index,
			Seed:    s.Seed,
			Scripts: s.Scripts,
			Depth:   s.Depth,
			Piped:   s.Piped,
		})
	}
	for _, s := range e.solutionsLocked() {
		cp.Solutions = append(cp.Solutions, snapshot.SolutionV1{Block: s.Block, Fitness: s.Fitness, Inputs: s.Diff.Entries()})
	}
	for _, d := range e.seeds {
		cp.Seeds = append(cp.Seeds, d.Entries())
	}
	return cp
}

// restoreArena rebuilds the shared tables of cp and checks every chain.
func restoreArena[B Bin](cp snapshot.CheckpointV1[B], maxSegments int) (arena, []Block[B], error) {
	a := arena{max: max(maxSegments, len(cp.Segments))}
	for i, s := range cp.Segments {
		parent := NoSegment
		if s.Parent >= 0 {
			if int(s.Parent) >= len(cp.Segments) {
				return a, nil, fmt.Errorf("%w: segment %d parent %d out of range", ErrMalformedSegment, i, s.Parent)
			}
			parent = a.ref(int(s.Parent))
		}
		if s.Piped > 0 && int(s.Piped) > len(cp.Seeds) {
			return a, nil, fmt.Errorf("%w: segment %d pipes seed %d of %d", ErrMalformedSegment, i, s.Piped, len(cp.Seeds))
		}
		if _, err := a.add(Segment{Parent: parent, Seed: s.Seed, Scripts: s.Scripts, Depth: s.Depth, Piped: s.Piped}); err != nil {
			return a, nil, err
		}
	}
	blocks := make([]Block[B], 0, len(cp.Blocks))
	for i, b := range cp.Blocks {
		if b.Tail < 0 || int(b.Tail) >= len(cp.Segments) {
			return a, nil, fmt.Errorf("%w: block %d tail %d out of range", ErrMalformedSegment, i, b.Tail)
		}
		tail := a.ref(int(b.Tail))
		if _, err := chainOf(&a, tail); err != nil {
			return a, nil, fmt.Errorf("block %d: %w", i, err)
		}
		blocks = append(blocks, Block[B]{Fitness: b.Fitness, Bin: b.Bin, Tail: tail, Solution: b.Solution})
	}
	return a, blocks, nil
}

// Restore replaces the shared tables with cp so the next Run continues from
// it. The checkpoint must share the engine's start frame.
func (e *Engine[S, B]) Restore(cp snapshot.CheckpointV1[B]) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("scattershot: restore while running")
	}
	if cp.Header.StartFrame != e.cfg.StartFrame {
		return fmt.Errorf("scattershot: checkpoint starts at frame %d, engine at %d", cp.Header.StartFrame, e.cfg.StartFrame)
	}
	a, blocks, err := restoreArena(cp, e.cfg.MaxSharedSegments)
	if err != nil {
		return err
	}
	table := newBlockTable[B](max(e.cfg.MaxSharedBlocks, len(blocks)), max(e.cfg.MaxSharedHashes, 2*len(blocks)))
	for i, b := range blocks {
		if _, dup := table.find(b.Bin); dup {
			return fmt.Errorf("%w: block %d duplicates bin %v", ErrMalformedSegment, i, b.Bin)
		}
		table.add(b)
	}
	solutions := map[int32]Solution[B]{}
	for _, s := range cp.Solutions {
		if s.Block < 0 || int(s.Block) >= len(blocks) {
			return fmt.Errorf("%w: solution block %d out of range", ErrMalformedSegment, s.Block)
		}
		solutions[s.Block] = Solution[B]{Block: s.Block, Bin: blocks[s.Block].Bin, Fitness: s.Fitness, Diff: timeline.FromEntries(s.Inputs)}
	}
	seeds := make([]timeline.Diff, 0, len(cp.Seeds))
	for _, s := range cp.Seeds {
		seeds = append(seeds, timeline.FromEntries(s))
	}

	e.segs = a
	e.shared = table
	e.solutions = solutions
	e.seeds = seeds
	e.original = timeline.FromEntries(cp.Original)
	e.merges = cp.Header.Merges
	if cp.Header.RunID != "" {
		e.runID = cp.Header.RunID
	}
	return nil
}

func (e *Engine[S, B]) solutionsLocked() []Solution[B] {
	out := make([]Solution[B], 0, len(e.solutions))
	for i := int32(0); i < int32(e.shared.len()); i++ {
		if s, ok := e.solutions[i]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Mismatch is a block whose replayed state bin differs from the stored one.
type Mismatch struct {
	Block int32  `json:"block"`
	Want  string `json:"want"`
	Got   string `json:"got"`
}

type VerifyReport struct {
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// verifier replays every block of a checkpoint on a single simulation.
type verifier[S any, B Bin] struct {
	script.Base[S]
	rp     replayer[S, B]
	a      *arena
	blocks []Block[B]
	only   int32
	report VerifyReport
	inputs timeline.Diff
}

func (v *verifier[S, B]) Validation() bool { return true }
func (v *verifier[S, B]) Assertion() bool  { return true }

func (v *verifier[S, B]) Execution() bool {
	v.LongLoad(v.rp.start)
	for i, b := range v.blocks {
		if v.only >= 0 && int32(i) != v.only {
			continue
		}
		chain, err := chainOf(v.a, b.Tail)
		if err != nil {
			script.Fatal(fmt.Errorf("block %d: %w", i, err))
		}
		v.ExecuteAdhoc(func() bool {
			v.rp.decode(chain)
			got := v.rp.stateBin()
			v.report.Checked++
			if got != b.Bin {
				v.report.Mismatches = append(v.report.Mismatches, Mismatch{Block: int32(i), Want: fmt.Sprint(b.Bin), Got: fmt.Sprint(got)})
			}
			if v.only >= 0 {
				v.inputs = v.InputsRange(v.rp.start, v.CurrentFrame()-1)
			}
			return true
		})
	}
	return true
}

func runVerifier[S any, B Bin](cp snapshot.CheckpointV1[B], d Domain[S, B], sim resource.Sim[S], budget int64, only int32) (*verifier[S, B], error) {
	a, blocks, err := restoreArena(cp, len(cp.Segments))
	if err != nil {
		return nil, err
	}
	seeds := make([]timeline.Diff, 0, len(cp.Seeds))
	for _, s := range cp.Seeds {
		seeds = append(seeds, timeline.FromEntries(s))
	}
	v := &verifier[S, B]{a: &a, blocks: blocks, only: only}
	v.rp = newReplayer(&v.Base, d, seeds, cp.Header.StartFrame)
	if _, err := script.Main(resource.New(sim, budget), timeline.FromEntries(cp.Original), v); err != nil {
		return nil, err
	}
	return v, nil
}

// Verify replays every block of cp from the start frame and compares state
// bins. sim must be in the same start state the search used.
func Verify[S any, B Bin](cp snapshot.CheckpointV1[B], d Domain[S, B], sim resource.Sim[S], budget int64) (VerifyReport, error) {
	v, err := runVerifier(cp, d, sim, budget, -1)
	if err != nil {
		return VerifyReport{}, err
	}
	return v.report, nil
}

// BlockInputs replays one block and returns the inputs from the start frame
// to the block's state.
func BlockInputs[S any, B Bin](cp snapshot.CheckpointV1[B], d Domain[S, B], sim resource.Sim[S], budget int64, block int32) (timeline.Diff, error) {
	if block < 0 || int(block) >= len(cp.Blocks) {
		return timeline.Diff{}, fmt.Errorf("block %d out of range", block)
	}
	v, err := runVerifier(cp, d, sim, budget, block)
	if err != nil {
		return timeline.Diff{}, err
	}
	if len(v.report.Mismatches) > 0 {
		m := v.report.Mismatches[0]
		return timeline.Diff{}, fmt.Errorf("%w: block %d got %s want %s", ErrBlockDesync, m.Block, m.Got, m.Want)
	}
	return v.inputs, nil
}
