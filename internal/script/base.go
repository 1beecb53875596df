package script

import (
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/resource"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

// Script is a transactional unit of work. Implementations embed Base[S]
// and must be used through a pointer.
type Script[S any] interface {
	Validation() bool
	Execution() bool
	Assertion() bool
	Engine() *Base[S]
}

// Base holds the transaction state of one script: a stack of levels, one per
// nested ad-hoc block, each with its own diff, save bank and caches.
type Base[S any] struct {
	parent *Base[S]
	root   *Base[S]
	res    *resource.Resource[S]

	// Root only: inputs used where no diff overrides a frame.
	original timeline.Diff
	nextGen  uint64

	initialFrame int64
	levels       []*level[S]
	closed       bool
}

type level[S any] struct {
	gen    uint64
	status Status

	saves       timeline.FrameMap[int64] // frame -> slot id
	counters    timeline.FrameMap[int64] // frame -> times replayed
	saveCache   timeline.FrameMap[saveRef[S]]
	inputsCache timeline.FrameMap[inputsMeta[S]]
	loads       timeline.FrameMap[struct{}]
}

// saveRef points at a save in some script level. The generation guards
// against the level having been popped and pushed again.
type saveRef[S any] struct {
	owner *Base[S]
	level int
	gen   uint64
	frame int64
	start bool
}

type inputsMeta[S any] struct {
	inputs     timeline.Inputs
	frame      int64
	owner      *Base[S]
	ownerLevel int
	source     InputsSource
}

func (b *Base[S]) Engine() *Base[S] { return b }

// Resource exposes the simulation for read access.
func (b *Base[S]) Resource() *resource.Resource[S] { return b.res }

func (b *Base[S]) CurrentFrame() int64 { return b.res.CurrentFrame() }

// InitialFrame is the frame the script started at.
func (b *Base[S]) InitialFrame() int64 { return b.initialFrame }

// Depth is the current ad-hoc nesting depth (0 outside any ad-hoc block).
func (b *Base[S]) Depth() int { return len(b.levels) - 1 }

func (b *Base[S]) initRoot(res *resource.Resource[S], original timeline.Diff) {
	b.parent = nil
	b.root = b
	b.res = res
	b.original = original
	b.closed = false
	b.levels = nil
	b.pushLevel()
	b.initialFrame = res.CurrentFrame()
}

func (b *Base[S]) initChild(parent *Base[S]) {
	b.parent = parent
	b.root = parent.root
	b.res = parent.res
	b.closed = false
	b.levels = nil
	b.pushLevel()
	b.initialFrame = b.CurrentFrame()
}

func (b *Base[S]) mustBeRunning() {
	if b.res == nil || b.closed || len(b.levels) == 0 {
		fatalf("script used outside of Main/Execute")
	}
}

func (b *Base[S]) top() *level[S] { return b.levels[len(b.levels)-1] }

func (b *Base[S]) pushLevel() *level[S] {
	b.root.nextGen++
	l := &level[S]{gen: b.root.nextGen}
	b.levels = append(b.levels, l)
	return l
}

func (b *Base[S]) popLevel() *level[S] {
	l := b.top()
	b.levels[len(b.levels)-1] = nil
	b.levels = b.levels[:len(b.levels)-1]
	return l
}

// unwind drops levels above depth, freeing their snapshots.
func (b *Base[S]) unwind(depth int) {
	for len(b.levels) > depth {
		l := b.popLevel()
		b.freeSlots(l.saves.Clear())
	}
}

// release frees every snapshot still held and marks the script finished.
func (b *Base[S]) release() {
	b.unwind(0)
	b.closed = true
}

func (b *Base[S]) freeSlots(ids []int64) {
	for _, id := range ids {
		b.res.EraseSlot(id)
	}
}

// invalidate drops everything at l that depends on inputs at or after frame.
// Entries at exactly frame survive except cached inputs.
func (b *Base[S]) invalidate(l *level[S], frame int64) {
	l.inputsCache.EraseFrom(frame)
	l.counters.EraseAfter(frame)
	b.freeSlots(l.saves.EraseAfter(frame))
	l.saveCache.EraseAfter(frame)
}

// adoptSaves moves snapshots into l. Frames l already holds keep their slot.
func (b *Base[S]) adoptSaves(l *level[S], frame int64, slot int64) {
	if existing, ok := l.saves.Get(frame); ok && b.res.IsValid(existing) {
		b.res.EraseSlot(slot)
		return
	}
	l.saves.Set(frame, slot)
}

// IsDiffEmpty reports whether the script's committed diff is empty.
func (b *Base[S]) IsDiffEmpty() bool { return b.levels[0].status.Diff.Empty() }

// Diff returns a copy of the innermost level's diff.
func (b *Base[S]) Diff() timeline.Diff { return b.top().status.Diff.Clone() }

// BaseDiff returns a copy of the script's outermost diff.
func (b *Base[S]) BaseDiff() timeline.Diff { return b.levels[0].status.Diff.Clone() }

// TotalDiff merges the overrides of every ancestor and level, innermost winning.
func (b *Base[S]) TotalDiff() timeline.Diff {
	var d timeline.Diff
	if b.parent != nil {
		d = b.parent.TotalDiff()
	}
	for _, l := range b.levels {
		d.Merge(&l.status.Diff)
	}
	return d
}
