package script

import (
	"fmt"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/resource"
)

func (r saveRef[S]) slot() (int64, bool) {
	if r.start {
		return resource.StartSlot, true
	}
	b := r.owner
	if b == nil || b.closed || r.level >= len(b.levels) {
		return 0, false
	}
	l := b.levels[r.level]
	if l.gen != r.gen {
		return 0, false
	}
	id, ok := l.saves.Get(r.frame)
	if !ok {
		return 0, false
	}
	if !b.res.IsValid(id) {
		l.saves.Delete(r.frame)
		return 0, false
	}
	return id, true
}

func (r saveRef[S]) valid() bool {
	_, ok := r.slot()
	return ok
}

// latestSave finds the most recent usable snapshot at or before frame,
// searching own levels innermost first, then ancestors, then the start save.
// A level is never searched past the start of the diffs above it.
func (b *Base[S]) latestSave(frame int64) saveRef[S] {
	if frame < b.res.InitialFrame() {
		fatal(fmt.Errorf("%w: frame %d, initial %d", ErrLoadBeforeStart, frame, b.res.InitialFrame()))
	}

	early := frame
	var best saveRef[S]
	hasBest := false

	for lv := len(b.levels) - 1; lv >= 0; lv-- {
		l := b.levels[lv]

		if f, id, ok := l.saves.Floor(early); ok {
			if !b.res.IsValid(id) {
				l.saves.Delete(f)
			} else if !hasBest || f >= best.frame {
				best = saveRef[S]{owner: b, level: lv, gen: l.gen, frame: f}
				hasBest = true
			}
		}

		if f, cached, ok := l.saveCache.Floor(early); ok {
			if !cached.valid() {
				l.saveCache.Delete(f)
			} else if !hasBest || f >= best.frame {
				// A load between the cached save and frame means a closer save may exist.
				if lf, _, ok := l.loads.Ceil(f); ok && lf < frame {
					best = cached
					hasBest = true
				} else {
					return cached
				}
			}
		}

		if first, ok := l.status.Diff.First(); ok && first < early {
			early = first
		}
		if hasBest && best.frame >= early {
			return best
		}
	}

	if b.parent != nil {
		anc := b.parent.latestSave(early)
		if !hasBest || anc.frame >= best.frame {
			return anc
		}
	}
	if hasBest {
		return best
	}
	return saveRef[S]{owner: b, frame: b.res.InitialFrame(), start: true}
}

func (b *Base[S]) latestSaveAndCache(frame int64) saveRef[S] {
	ref := b.latestSave(frame)
	l := b.top()
	l.saveCache.Set(ref.frame, ref)
	l.loads.Set(frame, struct{}{})
	return ref
}

func (b *Base[S]) loadRef(ref saveRef[S]) {
	id, ok := ref.slot()
	if !ok {
		fatalf("snapshot for frame %d vanished before load", ref.frame)
	}
	if err := b.res.LoadState(id); err != nil {
		fatal(err)
	}
	if got := b.CurrentFrame(); got != ref.frame {
		fatalf("snapshot frame mismatch: slot %d holds frame %d, want %d", id, got, ref.frame)
	}
}

// saveAt snapshots the current frame into level lv. A valid existing save
// at this frame is reused.
func (b *Base[S]) saveAt(lv int) saveRef[S] {
	cur := b.CurrentFrame()
	l := b.levels[lv]
	if id, ok := l.saves.Get(cur); !ok || !b.res.IsValid(id) {
		id, err := b.res.SaveState()
		if err != nil {
			fatal(err)
		}
		l.saves.Set(cur, id)
		l.status.Saves++
	}
	return saveRef[S]{owner: b, level: lv, gen: l.gen, frame: cur}
}

// Save snapshots the current frame into the level that owns its state.
func (b *Base[S]) Save() {
	b.mustBeRunning()
	cur := b.CurrentFrame()
	m := b.inputsMeta(cur)
	b.top().saveCache.Set(cur, m.owner.saveAt(m.ownerLevel))
}

// OptionalSave snapshots the current frame only when the frames since the
// latest save have been replayed often enough to pay for it.
func (b *Base[S]) OptionalSave() {
	b.mustBeRunning()
	cur := b.CurrentFrame()
	latest := b.latestSaveAndCache(cur).frame
	var counter int64
	for f := latest + 1; f <= cur; f++ {
		m := b.inputsMetaAndCache(f)
		counter += m.owner.frameCounter(m.ownerLevel, f)
		if b.res.ShouldSave(counter / 2) {
			owner := b.inputsMeta(cur)
			b.top().saveCache.Set(cur, owner.owner.saveAt(owner.ownerLevel))
			return
		}
	}
}
