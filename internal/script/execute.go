package script

import (
	"errors"
	"fmt"
	"time"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/metrics"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/resource"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

// guard runs fn and turns a panic into a failed result, dropping any levels
// pushed above depth. Engine faults keep unwinding.
func (b *Base[S]) guard(depth int, st *Status, fn func() bool) (ok bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if fe, isFatal := r.(*FatalError); isFatal {
			panic(fe)
		}
		b.unwind(depth)
		if err, isErr := r.(error); isErr {
			st.Err = err
		} else {
			st.Err = fmt.Errorf("panic: %v", r)
		}
		ok = false
	}()
	return fn()
}

type costMark struct {
	start   time.Time
	load    time.Duration
	save    time.Duration
	advance time.Duration
}

func (b *Base[S]) markCosts() costMark {
	return costMark{
		start:   time.Now(),
		load:    b.res.TotalLoadTime(),
		save:    b.res.TotalSaveTime(),
		advance: b.res.TotalAdvanceTime(),
	}
}

func (b *Base[S]) fillCosts(st *Status, m costMark) {
	st.LoadDuration = b.res.TotalLoadTime() - m.load
	st.SaveDuration = b.res.TotalSaveTime() - m.save
	st.AdvanceDuration = b.res.TotalAdvanceTime() - m.advance
}

func addCounters(dst *Status, src *Status) {
	dst.Loads += src.Loads
	dst.Saves += src.Saves
	dst.FrameAdvances += src.FrameAdvances
}

// executeAdhocBase runs fn on a fresh level. The popped level is returned so
// the caller can move or free its saves.
func (b *Base[S]) executeAdhocBase(fn func() bool) (Status, *level[S]) {
	b.mustBeRunning()
	depth := len(b.levels)
	l := b.pushLevel()
	l.status.Validated = true

	m := b.markCosts()
	l.status.Executed = b.guard(depth+1, &l.status, fn)
	l.status.ExecutionDuration = time.Since(m.start)
	l.status.TotalDuration = l.status.ExecutionDuration
	b.fillCosts(&l.status, m)
	l.status.Asserted = l.status.Executed

	b.unwind(depth + 1)
	b.levels = b.levels[:depth]
	addCounters(&b.top().status, &l.status)
	return l.status, l
}

// ExecuteAdhoc runs fn as a nested transaction and always discards its effect.
func (b *Base[S]) ExecuteAdhoc(fn func() bool) Status {
	initial := b.CurrentFrame()
	st, l := b.executeAdhocBase(fn)
	b.revert(initial, &st.Diff, &l.saves, st.Err != nil)
	return st
}

// ModifyAdhoc runs fn as a nested transaction and commits its diff on success.
func (b *Base[S]) ModifyAdhoc(fn func() bool) Status {
	initial := b.CurrentFrame()
	st, l := b.executeAdhocBase(fn)
	b.applyChildDiff(&st, &l.saves, initial)
	return st
}

// TestAdhoc is ExecuteAdhoc without reporting the diff.
func (b *Base[S]) TestAdhoc(fn func() bool) Status {
	st := b.ExecuteAdhoc(fn)
	st.Diff = timeline.Diff{}
	return st
}

// phase runs one user phase of s as a discarded or committed ad-hoc block.
func (b *Base[S]) phase(fn func() bool, commit bool) Status {
	if commit {
		return b.ModifyAdhoc(fn)
	}
	return b.ExecuteAdhoc(fn)
}

// run drives the validation, execution and assertion phases of s. Only the
// execution phase may change the timeline.
func run[S any](s Script[S]) {
	b := s.Engine()
	l := b.levels[0]
	m := b.markCosts()

	fail := func(st Status) {
		if st.Err != nil {
			l.status.Err = st.Err
		}
	}

	v := b.phase(s.Validation, false)
	l.status.ValidationDuration = v.ExecutionDuration
	l.status.Validated = v.Asserted
	fail(v)
	if l.status.Validated {
		e := b.phase(s.Execution, true)
		l.status.ExecutionDuration = e.ExecutionDuration
		l.status.Executed = e.Asserted
		fail(e)
		if l.status.Executed {
			a := b.phase(s.Assertion, false)
			l.status.AssertionDuration = a.ExecutionDuration
			l.status.Asserted = a.Asserted
			fail(a)
		}
	}

	l.status.TotalDuration = time.Since(m.start)
	b.fillCosts(&l.status, m)
	if l.status.Asserted {
		metrics.ScriptsTotal.WithLabelValues("asserted").Inc()
	} else {
		metrics.ScriptsTotal.WithLabelValues("failed").Inc()
	}
}

func (b *Base[S]) runChild(child Script[S], commit bool) Status {
	b.mustBeRunning()
	b.OptionalSave()
	initial := b.CurrentFrame()

	c := child.Engine()
	c.initChild(b)
	run(child)

	cl := c.levels[0]
	st := cl.status
	if commit {
		b.applyChildDiff(&st, &cl.saves, initial)
	} else {
		b.revert(initial, &st.Diff, &cl.saves, st.Err != nil)
	}
	c.release()

	addCounters(&b.top().status, &st)
	return st
}

// Execute runs child against the current timeline and discards its diff.
func (b *Base[S]) Execute(child Script[S]) Status {
	return b.runChild(child, false)
}

// Modify runs child and commits its diff if it asserted.
func (b *Base[S]) Modify(child Script[S]) Status {
	return b.runChild(child, true)
}

// Test is Execute without reporting the diff.
func (b *Base[S]) Test(child Script[S]) Status {
	st := b.runChild(child, false)
	st.Diff = timeline.Diff{}
	return st
}

// Main runs top as the root script from the start snapshot, using original
// wherever no diff overrides a frame. Engine faults are returned as errors.
func Main[S any](res *resource.Resource[S], original timeline.Diff, top Script[S]) (st Status, err error) {
	b := top.Engine()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		var fe *FatalError
		if e, isErr := r.(error); isErr && errors.As(e, &fe) {
			b.release()
			err = fe
			return
		}
		panic(r)
	}()

	if err := res.LoadState(resource.StartSlot); err != nil {
		return Status{}, err
	}
	b.initRoot(res, original)
	run(top)
	st = b.levels[0].status
	b.release()
	return st, nil
}
