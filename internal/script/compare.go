package script

// Outcome is the result of one candidate: its status plus the finished
// script (script forms) or the value filled in by the closure (ad-hoc forms).
type Outcome[R any] struct {
	Status
	Value R
}

// Generator yields the parameters for the given iteration, or false when
// there are no more.
type Generator[P any] func(iteration int) (P, bool)

// FromList iterates ps in order.
func FromList[P any](ps []P) Generator[P] {
	return func(i int) (P, bool) {
		if i < 0 || i >= len(ps) {
			var zero P
			return zero, false
		}
		return ps[i], true
	}
}

// Comparator returns whichever of the two outcomes is better. Both have
// asserted when it is called.
type Comparator[R any] func(incumbent, challenger *Outcome[R]) *Outcome[R]

// Terminator reports whether an outcome is good enough to stop searching.
type Terminator[R any] func(*Outcome[R]) bool

// NeverTerminate searches every candidate.
func NeverTerminate[R any](*Outcome[R]) bool { return false }

// runner executes one candidate, committing its diff into the current level
// when commit is set and it asserted.
type runner[P, R any] func(p P, commit bool) Outcome[R]

func scriptRunner[S, P any, T Script[S]](b *Base[S], newScript func(P) T) runner[P, T] {
	return func(p P, commit bool) Outcome[T] {
		s := newScript(p)
		var st Status
		if commit {
			st = b.Modify(s)
		} else {
			st = b.Execute(s)
		}
		return Outcome[T]{Status: st, Value: s}
	}
}

func adhocRunner[S, P, R any](b *Base[S], fn func(P, *R) bool) runner[P, R] {
	return func(p P, commit bool) Outcome[R] {
		var r R
		body := func() bool { return fn(p, &r) }
		var st Status
		if commit {
			st = b.ModifyAdhoc(body)
		} else {
			st = b.ExecuteAdhoc(body)
		}
		return Outcome[R]{Status: st, Value: r}
	}
}

// generate calls gen without letting it touch the timeline.
func generate[S, P any](b *Base[S], gen Generator[P], i int) (P, bool) {
	var p P
	var ok bool
	b.ExecuteAdhoc(func() bool {
		p, ok = gen(i)
		return true
	})
	return p, ok
}

func terminates[S, R any](b *Base[S], term Terminator[R], o *Outcome[R]) bool {
	if term == nil {
		return false
	}
	var stop bool
	b.ExecuteAdhoc(func() bool {
		stop = term(o)
		return true
	})
	return stop
}

// selectStatus picks between the incumbent and a challenger. A failed
// challenger never wins, and any success beats no success.
func selectStatus[S, R any](b *Base[S], cmp Comparator[R], inc, ch *Outcome[R], hasInc bool) *Outcome[R] {
	if !hasInc {
		return ch
	}
	if !ch.Asserted {
		return inc
	}
	if !inc.Asserted {
		return ch
	}
	var w *Outcome[R]
	b.ExecuteAdhoc(func() bool {
		w = cmp(inc, ch)
		return true
	})
	if w != ch {
		return inc
	}
	return ch
}

func compare[S, P, R any](b *Base[S], gen Generator[P], run runner[P, R], cmp Comparator[R], term Terminator[R], commit bool) Outcome[R] {
	b.mustBeRunning()
	var best Outcome[R]
	hasBest := false

	p, ok := generate(b, gen, 0)
	for i := 0; ok; i++ {
		next, hasNext := generate(b, gen, i+1)
		done := false

		candidate := func() bool {
			o := run(p, commit)
			if o.Asserted && terminates(b, term, &o) {
				best, hasBest, done = o, true, true
				return true
			}
			won := selectStatus(b, cmp, &best, &o, hasBest) == &o
			hasBest = true
			if !won {
				return false
			}
			best = o
			// The last candidate is kept in place when it wins.
			return !hasNext && o.Asserted
		}

		if commit {
			if b.ModifyAdhoc(candidate).Asserted {
				return best
			}
		} else {
			candidate()
		}
		if done {
			return best
		}
		p, ok = next, hasNext
	}

	if commit && best.Asserted {
		b.Apply(&best.Diff)
	}
	return best
}

// Compare executes one child per generated parameter set and returns the
// best outcome. The timeline is left untouched.
func Compare[S, P any, T Script[S]](b *Base[S], gen Generator[P], newScript func(P) T, cmp Comparator[T], term Terminator[T]) Outcome[T] {
	return compare(b, gen, scriptRunner[S](b, newScript), cmp, term, false)
}

// ModifyCompare is Compare that commits the winner's diff.
func ModifyCompare[S, P any, T Script[S]](b *Base[S], gen Generator[P], newScript func(P) T, cmp Comparator[T], term Terminator[T]) Outcome[T] {
	return compare(b, gen, scriptRunner[S](b, newScript), cmp, term, true)
}

// CompareAdhoc is Compare over a closure. fn fills in the outcome value.
func CompareAdhoc[S, P, R any](b *Base[S], gen Generator[P], fn func(P, *R) bool, cmp Comparator[R], term Terminator[R]) Outcome[R] {
	return compare(b, gen, adhocRunner(b, fn), cmp, term, false)
}

// ModifyCompareAdhoc is CompareAdhoc that commits the winner's diff.
func ModifyCompareAdhoc[S, P, R any](b *Base[S], gen Generator[P], fn func(P, *R) bool, cmp Comparator[R], term Terminator[R]) Outcome[R] {
	return compare(b, gen, adhocRunner(b, fn), cmp, term, true)
}
