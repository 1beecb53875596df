package script

import "github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"

// DynamicOutcome is the result of a dynamic comparison. Mutations counts the
// mutator steps applied before the winning candidate ran. Status.Diff holds
// those mutations merged with the winner's diff.
type DynamicOutcome[R any] struct {
	Status
	Mutations int64
	Best      Outcome[R]
}

func dynamicCompare[S, P, R any](b *Base[S], gen Generator[P], run runner[P, R], mutate func() bool, cmp Comparator[R], term Terminator[R], commit bool) DynamicOutcome[R] {
	b.mustBeRunning()
	var (
		out      DynamicOutcome[R]
		hasBest  bool
		incDiff  timeline.Diff
		nMutated int64
	)

	body := func() bool {
		cmpLevel := b.top()
		adopt := func(o Outcome[R]) {
			out.Best = o
			hasBest = true
			out.Mutations = nMutated
			incDiff = timeline.Merged(&cmpLevel.status.Diff, &o.Diff)
		}

		p, ok := generate(b, gen, 0)
		for i := 0; ok; i++ {
			if i > 0 {
				// The mutator advances shared state between candidates.
				if !b.ModifyAdhoc(mutate).Executed {
					break
				}
				nMutated++
			}
			next, hasNext := generate(b, gen, i+1)
			done := false

			candidate := func() bool {
				o := run(p, commit)
				if o.Asserted && terminates(b, term, &o) {
					adopt(o)
					done = true
					return true
				}
				if selectStatus(b, cmp, &out.Best, &o, hasBest) != &o {
					return false
				}
				adopt(o)
				return !hasNext && o.Asserted
			}

			if commit {
				if b.ModifyAdhoc(candidate).Asserted {
					return true
				}
			} else {
				candidate()
			}
			if done {
				return true
			}
			p, ok = next, hasNext
		}
		// Committing here would also keep mutations made after the winner.
		return !commit && out.Best.Asserted
	}

	var st Status
	if commit {
		st = b.ModifyAdhoc(body)
		if !st.Asserted && out.Best.Asserted {
			b.Apply(&incDiff)
		}
	} else {
		st = b.ExecuteAdhoc(body)
	}

	out.Status = st
	out.Executed = hasBest && out.Best.Asserted
	out.Asserted = out.Executed
	out.Diff = incDiff
	return out
}

// DynamicCompare is Compare with mutate run as a committed ad-hoc step
// between candidates. A failed mutation ends the search.
func DynamicCompare[S, P any, T Script[S]](b *Base[S], gen Generator[P], newScript func(P) T, mutate func() bool, cmp Comparator[T], term Terminator[T]) DynamicOutcome[T] {
	return dynamicCompare(b, gen, scriptRunner[S](b, newScript), mutate, cmp, term, false)
}

// DynamicModifyCompare commits the mutations leading up to the winner
// together with the winner's diff.
func DynamicModifyCompare[S, P any, T Script[S]](b *Base[S], gen Generator[P], newScript func(P) T, mutate func() bool, cmp Comparator[T], term Terminator[T]) DynamicOutcome[T] {
	return dynamicCompare(b, gen, scriptRunner[S](b, newScript), mutate, cmp, term, true)
}

func DynamicCompareAdhoc[S, P, R any](b *Base[S], gen Generator[P], fn func(P, *R) bool, mutate func() bool, cmp Comparator[R], term Terminator[R]) DynamicOutcome[R] {
	return dynamicCompare(b, gen, adhocRunner(b, fn), mutate, cmp, term, false)
}

func DynamicModifyCompareAdhoc[S, P, R any](b *Base[S], gen Generator[P], fn func(P, *R) bool, mutate func() bool, cmp Comparator[R], term Terminator[R]) DynamicOutcome[R] {
	return dynamicCompare(b, gen, adhocRunner(b, fn), mutate, cmp, term, true)
}
