package scattershot

import (
	"fmt"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/resource"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/script"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

const (
	maxSelectAttempts = 100000
	maxPipedSeeds     = 65534
)

// baseBlock is the shared block a shot explores from.
type baseBlock[B Bin] struct {
	index int32
	bin   B
	tail  SegmentRef
	depth uint32
}

// worker is the root script of one search thread. Between merges it only
// reads the shared tables and writes its own.
type worker[S any, B Bin] struct {
	script.Base[S]

	e   *Engine[S, B]
	id  int
	res *resource.Resource[S]
	rp  replayer[S, B]
	rng uint64

	blocks    blockTable[B]
	segs      []Segment
	solutions map[int32]timeline.Diff // local block -> inputs from the start frame
	samples   []SampleEvent
	stats     Stats
	novel     int64

	err error
}

func newWorker[S any, B Bin](e *Engine[S, B], id int, sim resource.Sim[S]) *worker[S, B] {
	w := &worker[S, B]{
		e:         e,
		id:        id,
		res:       resource.New(sim, e.cfg.SlotBudgetBytes),
		rng:       ThreadSeed(id),
		blocks:    newBlockTable[B](e.cfg.MaxBlocks, e.cfg.MaxHashes),
		solutions: map[int32]timeline.Diff{},
	}
	w.rp = newReplayer(&w.Base, e.domain, e.seeds, e.cfg.StartFrame)
	return w
}

func (w *worker[S, B]) run() error {
	if _, err := script.Main(w.res, w.e.original, w); err != nil {
		return fmt.Errorf("worker %d: %w", w.id, err)
	}
	return w.err
}

func (w *worker[S, B]) Validation() bool { return true }
func (w *worker[S, B]) Assertion() bool  { return true }

func (w *worker[S, B]) Execution() bool {
	cfg := w.e.cfg
	w.initialize()
	for shot := int64(0); cfg.MaxShots == 0 || shot < cfg.MaxShots; shot++ {
		if shot%int64(cfg.ShotsPerMerge) == 0 {
			if err := w.e.barrier.Arrive(w.e.merge); err != nil {
				w.err = err
				return false
			}
			if w.e.stopping {
				return true
			}
		}
		base, ok := w.selectBaseBlock(shot)
		if !ok {
			w.e.logger.Printf("worker %d: no eligible base block at shot %d", w.id, shot)
			return true
		}
		w.stats.Shots++
		w.shoot(shot, base)
	}
	return true
}

// initialize seeds the local table with the root block and this worker's
// share of the piped seed solutions.
func (w *worker[S, B]) initialize() {
	w.LongLoad(w.e.cfg.StartFrame)
	root := Segment{Parent: NoSegment, Seed: w.rng, Depth: 1}
	w.addLocal(root, w.rp.stateBin(), w.rp.fitness(), false, timeline.Diff{})

	for i := w.id; i < len(w.e.seeds) && i < maxPipedSeeds; i += w.e.cfg.Threads {
		w.ExecuteAdhoc(func() bool {
			w.rp.applySeed(uint16(i + 1))
			seg := Segment{Parent: NoSegment, Seed: w.rng, Scripts: 1, Depth: 1, Piped: uint16(i + 1)}
			bin := w.rp.stateBin()
			sol := w.rp.isSolution()
			var diff timeline.Diff
			if sol {
				diff = w.InputsRange(w.e.cfg.StartFrame, w.CurrentFrame()-1)
			}
			w.addLocal(seg, bin, w.rp.fitness(), sol, diff)
			return true
		})
	}
}

// addLocal records a block at seg unless the local table already holds the
// bin with higher fitness. Ties go to the newer segment.
func (w *worker[S, B]) addLocal(seg Segment, bin B, fitness float32, solution bool, diff timeline.Diff) bool {
	idx, found := w.blocks.find(bin)
	if found {
		lb := w.blocks.blocks[idx]
		if fitness < lb.Fitness || (lb.Solution && !solution) {
			return false
		}
	} else if w.blocks.full() {
		return false
	}
	if len(w.segs) >= w.e.cfg.MaxLocalSegments {
		return false
	}
	seg.RefCount = 1
	w.segs = append(w.segs, seg)
	blk := Block[B]{
		Fitness:  fitness,
		Bin:      bin,
		Tail:     SegmentRef{Owner: int16(w.id), Index: int32(len(w.segs) - 1)},
		Solution: solution,
	}
	if found {
		w.blocks.blocks[idx] = blk
	} else {
		idx, _ = w.blocks.add(blk)
	}
	if solution {
		w.solutions[idx] = diff
	} else {
		delete(w.solutions, idx)
	}
	return true
}

// selectBaseBlock picks the shared block to explore from. Every
// StartFromRootEveryNShots shots it returns the root.
func (w *worker[S, B]) selectBaseBlock(shot int64) (baseBlock[B], bool) {
	cfg := w.e.cfg
	shared := w.e.shared.blocks
	if len(shared) == 0 {
		return baseBlock[B]{}, false
	}
	pick := func(idx int32) (baseBlock[B], bool) {
		blk := &shared[idx]
		if blk.Tail.IsNil() {
			return baseBlock[B]{}, false
		}
		seg, err := w.e.segs.get(blk.Tail)
		if err != nil {
			script.Fatal(fmt.Errorf("block %d: %w", idx, err))
		}
		if seg.Depth == 0 {
			return baseBlock[B]{}, false
		}
		return baseBlock[B]{index: idx, bin: blk.Bin, tail: blk.Tail, depth: seg.Depth}, true
	}

	if shot%int64(cfg.StartFromRootEveryNShots) == 0 {
		return pick(0)
	}
	for i := 0; i < maxSelectAttempts; i++ {
		w.rng = Mix64(w.rng)
		idx := int32(w.rng % uint64(len(shared)))
		if shared[idx].Solution {
			continue
		}
		b, ok := pick(idx)
		if ok && int(b.depth) < cfg.MaxSegments {
			return b, true
		}
	}
	return baseBlock[B]{}, false
}

// shoot replays base and explores SegmentsPerShot segments from it. Nothing
// it does survives on the timeline; discoveries are kept as segments.
func (w *worker[S, B]) shoot(shot int64, base baseBlock[B]) {
	chain, err := chainOf(&w.e.segs, base.tail)
	if err != nil {
		script.Fatal(fmt.Errorf("block %d: %w", base.index, err))
	}
	w.ExecuteAdhoc(func() bool {
		w.rp.decode(chain)
		w.validateBaseBlock(shot, base)
		w.Save()
		for s := 0; s < w.e.cfg.SegmentsPerShot; s++ {
			w.explore(shot, base)
		}
		return true
	})
}

func (w *worker[S, B]) validateBaseBlock(shot int64, base baseBlock[B]) {
	if bin := w.rp.stateBin(); bin != base.bin {
		script.Fatal(fmt.Errorf("%w: worker %d shot %d block %d: got %v want %v",
			ErrBlockDesync, w.id, shot, base.index, bin, base.bin))
	}
}

// explore applies up to SegmentLength movements from the base block and
// offers every new state bin as a block. It reports whether any was kept.
func (w *worker[S, B]) explore(shot int64, base baseBlock[B]) bool {
	novel := false
	w.ExecuteAdhoc(func() bool {
		prev := base.bin
		seed := w.rng
		for n := 0; n < w.e.cfg.SegmentLength; n++ {
			var applied bool
			w.rng, applied = w.rp.chooseScriptAndApply(w.rng)
			w.stats.Scripts++
			if !w.rp.validate() {
				w.stats.Failed++
				break
			}

			// A movement that wrote nothing still moves the rng on; the
			// segment keeps going from the unchanged state.
			bin := w.rp.stateBin()
			kept := false
			if bin != prev && bin != base.bin {
				kept = w.processNewBlock(shot, base, n+1, seed, bin)
			}
			switch {
			case kept:
				w.stats.Novel++
				novel = true
			case !applied:
				w.stats.Failed++
			default:
				w.stats.Redundant++
			}
			prev = bin
		}
		return novel
	})
	return novel
}

// processNewBlock keeps bin as a local block if it beats what the shared
// table and this worker already know about it.
func (w *worker[S, B]) processNewBlock(shot int64, base baseBlock[B], scripts int, seed uint64, bin B) bool {
	fitness := w.rp.fitness()
	solution := w.rp.isSolution()
	if idx, ok := w.e.shared.find(bin); ok {
		sb := &w.e.shared.blocks[idx]
		if fitness <= sb.Fitness || (sb.Solution && !solution) {
			return false
		}
	}

	var diff timeline.Diff
	if solution {
		diff = w.InputsRange(w.e.cfg.StartFrame, w.CurrentFrame()-1)
	}
	seg := Segment{Parent: base.tail, Seed: seed, Scripts: uint8(scripts), Depth: base.depth + 1}
	if !w.addLocal(seg, bin, fitness, solution, diff) {
		return false
	}

	if p := int64(w.e.cfg.SamplePeriod); p > 0 {
		if w.novel%p == 0 {
			w.samples = append(w.samples, SampleEvent{
				Worker:  w.id,
				Shot:    shot,
				Frame:   w.CurrentFrame(),
				Bin:     fmt.Sprint(bin),
				Fitness: fitness,
				Depth:   seg.Depth,
			})
		}
	}
	w.novel++
	return true
}

// resetLocal drops everything merged into the shared tables.
func (w *worker[S, B]) resetLocal() {
	w.blocks.reset()
	w.segs = w.segs[:0]
	clear(w.solutions)
	w.samples = w.samples[:0]
	w.stats = Stats{}
}
