package scattershot

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/metrics"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/persistence/snapshot"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/resource"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

// Engine runs a parallel search over one domain. Workers explore on private
// tables and meet at a barrier every ShotsPerMerge shots, where the last one
// to arrive merges all tables in worker order. A run with a fixed thread
// count is reproducible.
type Engine[S any, B Bin] struct {
	cfg    Config
	domain Domain[S, B]
	logger *log.Logger
	sink   Sink
	runID  string

	original timeline.Diff
	seeds    []timeline.Diff

	checkpointEvery int64
	checkpoint      func(snapshot.CheckpointV1[B])

	// mu guards the shared state against readers outside the run.
	mu        sync.RWMutex
	ctx       context.Context
	barrier   *rendezvous
	workers   []*worker[S, B]
	shared    blockTable[B]
	segs      arena
	solutions map[int32]Solution[B]
	stats     Stats
	merges    int64
	stopping  bool
	running   bool
}

func New[S any, B Bin](cfg Config, domain Domain[S, B]) (*Engine[S, B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if domain == nil {
		return nil, fmt.Errorf("scattershot: nil domain")
	}
	return &Engine[S, B]{
		cfg:       cfg,
		domain:    domain,
		logger:    log.New(io.Discard, "", 0),
		sink:      Sinks(nil),
		runID:     uuid.NewString(),
		shared:    newBlockTable[B](cfg.MaxSharedBlocks, cfg.MaxSharedHashes),
		segs:      arena{max: cfg.MaxSharedSegments},
		solutions: map[int32]Solution[B]{},
	}, nil
}

func (e *Engine[S, B]) SetLogger(l *log.Logger) {
	if l == nil {
		l = log.New(io.Discard, "", 0)
	}
	e.logger = l
}

func (e *Engine[S, B]) SetSink(s Sink) {
	if s == nil {
		s = Sinks(nil)
	}
	e.sink = s
}

// SetCheckpointHook calls fn with the shared tables every n merges. fn runs
// at the barrier and must not call back into the engine.
func (e *Engine[S, B]) SetCheckpointHook(n int64, fn func(snapshot.CheckpointV1[B])) {
	e.checkpointEvery = n
	e.checkpoint = fn
}

func (e *Engine[S, B]) SetRunID(id string) { e.runID = id }
func (e *Engine[S, B]) RunID() string      { return e.runID }
func (e *Engine[S, B]) Config() Config     { return e.cfg }

// SetOriginal sets the inputs used wherever no script overrides a frame.
func (e *Engine[S, B]) SetOriginal(d timeline.Diff) { e.original = d.Clone() }

// SetSeeds pipes known solutions in as extra root blocks. Inputs before the
// start frame are dropped. It replaces the seed list, so it must not follow
// Restore: restored piped segments index the checkpoint's seeds.
func (e *Engine[S, B]) SetSeeds(seeds []timeline.Diff) {
	e.seeds = e.seeds[:0]
	for _, s := range seeds {
		d := s.Clone()
		d.EraseBefore(e.cfg.StartFrame)
		e.seeds = append(e.seeds, d)
	}
}

// Run searches until every worker has taken MaxShots shots, MaxSolutions
// solutions are known or ctx is done. newSim is called once per worker and
// must return simulations in identical start states.
func (e *Engine[S, B]) Run(ctx context.Context, newSim func(id int) (resource.Sim[S], error)) error {
	if e.running {
		return fmt.Errorf("scattershot: engine already running")
	}
	workers := make([]*worker[S, B], e.cfg.Threads)
	for id := range workers {
		sim, err := newSim(id)
		if err != nil {
			return fmt.Errorf("worker %d sim: %w", id, err)
		}
		workers[id] = newWorker(e, id, sim)
	}

	g, gctx := errgroup.WithContext(ctx)
	e.mu.Lock()
	e.ctx = gctx
	e.workers = workers
	e.barrier = newRendezvous(len(workers))
	e.stopping = false
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.logger.Printf("run %s: %d workers, start frame %d", e.runID, len(workers), e.cfg.StartFrame)
	start := time.Now()
	for _, w := range workers {
		w := w
		g.Go(func() error {
			defer e.barrier.Leave()
			return w.run()
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Printf("run %s: %v", e.runID, err)
		return err
	}
	if err := e.merge(); err != nil {
		return fmt.Errorf("final merge: %w", err)
	}

	st := e.Stats()
	futility, redundancy, discovery := st.Percent()
	e.logger.Printf("run %s: %d shots, %d blocks, %d solutions in %s (futility %.0f%% redundancy %.0f%% discovery %.0f%%)",
		e.runID, st.Shots, e.shared.len(), len(e.solutions), time.Since(start).Round(time.Millisecond),
		futility, redundancy, discovery)
	metrics.ShotsTotal.Add(float64(st.Shots))
	return nil
}

func (e *Engine[S, B]) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Blocks returns a copy of the shared block table.
func (e *Engine[S, B]) Blocks() []Block[B] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Block[B](nil), e.shared.blocks...)
}

// Solutions returns the known solutions ordered by block index.
func (e *Engine[S, B]) Solutions() []Solution[B] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Solution[B], 0, len(e.solutions))
	for _, s := range e.solutions {
		s.Diff = s.Diff.Clone()
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Block < out[j].Block })
	return out
}
