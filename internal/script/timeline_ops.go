package script

import "github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"

// AdvanceFrameWrite records in at the current frame, drops every cached
// result that depended on the old input and steps the simulation.
func (b *Base[S]) AdvanceFrameWrite(in timeline.Inputs) {
	b.mustBeRunning()
	cur := b.CurrentFrame()
	l := b.top()
	l.status.Diff.Set(cur, in)
	b.invalidate(l, cur)

	b.res.SetInputs(in)
	b.res.FrameAdvance()
	l.status.FrameAdvances++
}

// AdvanceFrameRead steps the simulation with the effective inputs.
func (b *Base[S]) AdvanceFrameRead() {
	b.mustBeRunning()
	cur := b.CurrentFrame()
	b.res.SetInputs(b.GetInputs(cur))
	b.res.FrameAdvance()
	b.top().status.FrameAdvances++
}

// Load moves the simulation to frame on the current timeline.
func (b *Base[S]) Load(frame int64) {
	b.mustBeRunning()
	b.loadBase(frame, false)
}

func (b *Base[S]) loadBase(frame int64, desync bool) {
	cur := b.CurrentFrame()
	if !desync && cur == frame {
		return
	}

	l := b.top()
	latest := b.latestSaveAndCache(frame)
	if desync || frame < cur {
		b.loadRef(latest)
		l.status.Loads++
	} else if latest.frame > cur && b.res.ShouldLoad(latest.frame-cur) {
		b.loadRef(latest)
		l.status.Loads++
	}

	var counter int64
	for cur = b.CurrentFrame(); cur < frame; {
		b.AdvanceFrameRead()
		cur++

		m := b.inputsMetaAndCache(cur)
		counter += m.owner.incrementFrameCounter(m.ownerLevel, cur)
		// Frames that keep being replayed earn a snapshot in the level owning them.
		if b.res.ShouldSave(counter) {
			l.saveCache.Set(cur, m.owner.saveAt(m.ownerLevel))
			counter = 0
		}
	}
}

// LongLoad is Load for distant targets: no save caching along the way and a
// snapshot at the destination.
func (b *Base[S]) LongLoad(frame int64) {
	b.mustBeRunning()
	cur := b.CurrentFrame()
	if cur == frame {
		return
	}

	l := b.top()
	latest := b.latestSave(frame)
	if frame < cur {
		b.loadRef(latest)
		l.status.Loads++
	} else if latest.frame > cur && b.res.ShouldLoad(latest.frame-cur) {
		b.loadRef(latest)
		l.status.Loads++
	}

	for cur = b.CurrentFrame(); cur < frame; cur++ {
		b.res.SetInputs(b.inputsMeta(cur).inputs)
		b.res.FrameAdvance()
		l.status.FrameAdvances++
	}
	b.Save()
}

// revert returns to frame after a child finished without committing.
// Child saves taken before its diff began still match this timeline and are
// kept; the rest are freed.
func (b *Base[S]) revert(frame int64, childDiff *timeline.Diff, childSaves *timeline.FrameMap[int64], tainted bool) {
	first, hasDiff := childDiff.First()
	desync := tainted || (hasDiff && first < b.CurrentFrame())

	l := b.top()
	childSaves.Range(func(f int64, id int64) bool {
		if !hasDiff || f <= first {
			b.adoptSaves(l, f, id)
		} else {
			b.res.EraseSlot(id)
		}
		return true
	})
	childSaves.Clear()

	b.loadBase(frame, desync)
}

// applyChildDiff commits a successful child's diff into the current level and
// moves to the frame after it. Unsuccessful children are reverted.
func (b *Base[S]) applyChildDiff(st *Status, childSaves *timeline.FrameMap[int64], initialFrame int64) {
	if !st.Asserted {
		b.revert(initialFrame, &st.Diff, childSaves, st.Err != nil)
		return
	}

	l := b.top()
	first, hasDiff := st.Diff.First()
	if hasDiff {
		b.invalidate(l, first)
		l.status.Diff.Merge(&st.Diff)
	}

	childSaves.Range(func(f int64, id int64) bool {
		b.adoptSaves(l, f, id)
		return true
	})
	childSaves.Clear()

	if hasDiff {
		last, _ := st.Diff.Last()
		b.loadBase(last+1, false)
	} else {
		b.loadBase(initialFrame, false)
	}
}

// Rollback drops own inputs at or after frame and loads frame.
func (b *Base[S]) Rollback(frame int64) {
	b.mustBeRunning()
	l := b.top()
	if first, ok := l.status.Diff.Ceil(frame); ok {
		l.status.Diff.EraseFrom(frame)
		b.invalidate(l, first)
	}
	b.loadBase(frame, false)
}

// Restore drops own inputs at or after frame, discards every cached result
// derived from the diff and reloads frame, from a snapshot if the simulation
// may have diverged.
func (b *Base[S]) Restore(frame int64) {
	b.mustBeRunning()
	l := b.top()
	first, hasDiff := l.status.Diff.First()
	desync := hasDiff && first < b.CurrentFrame()
	if hasDiff {
		l.status.Diff.EraseFrom(frame)
		b.invalidate(l, first)
	}
	b.loadBase(frame, desync)
}

// RollForward keeps the diff but discards every cached result derived from
// it, then moves to frame. Used after editing frames behind the current one.
func (b *Base[S]) RollForward(frame int64) {
	b.mustBeRunning()
	l := b.top()
	first, hasDiff := l.status.Diff.First()
	desync := hasDiff && first < b.CurrentFrame()
	if hasDiff {
		b.invalidate(l, first)
	}
	b.loadBase(frame, desync)
}

// Apply replays diff onto the current level, copying its overrides into the
// level's own diff, and leaves the simulation just past its last frame.
func (b *Base[S]) Apply(diff *timeline.Diff) {
	b.mustBeRunning()
	first, ok := diff.First()
	if !ok {
		return
	}
	last, _ := diff.Last()

	b.Load(first)
	cur := b.CurrentFrame()
	l := b.top()
	b.invalidate(l, cur)

	for ; cur <= last; cur++ {
		in, override := diff.Get(cur)
		if override {
			l.status.Diff.Set(cur, in)
		} else {
			in = b.GetInputs(cur)
		}
		b.res.SetInputs(in)
		b.res.FrameAdvance()
		l.status.FrameAdvances++
	}
}
