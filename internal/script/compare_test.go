package script

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

func larger(a, c *Outcome[int64]) *Outcome[int64] {
	if c.Value > a.Value {
		return c
	}
	return a
}

func smaller(a, c *Outcome[int64]) *Outcome[int64] {
	if c.Value < a.Value {
		return c
	}
	return a
}

// walkTwice holds the stick at p for two frames and reports X.
func walkTwice(b *Base[walkState]) func(p int8, r *int64) bool {
	return func(p int8, r *int64) bool {
		if p < 0 {
			return false
		}
		b.AdvanceFrameWrite(timeline.Inputs{StickX: p})
		b.AdvanceFrameWrite(timeline.Inputs{StickX: p})
		*r = b.Resource().Underlying().Save().X
		return true
	}
}

func requireStick(t *testing.T, d *timeline.Diff, frame int64, want int8) {
	t.Helper()
	in, ok := d.Get(frame)
	require.True(t, ok, "frame %d missing", frame)
	require.Equal(t, want, in.StickX, "frame %d", frame)
}

func TestCompareAdhoc_PicksBestAndLeavesTimeline(t *testing.T) {
	runRoot(t, func(b *Base[walkState]) bool {
		out := CompareAdhoc(b, FromList([]int8{1, 3, 2}), walkTwice(b), larger, nil)
		require.True(t, out.Asserted)
		require.Equal(t, int64(6), out.Value)
		requireStick(t, &out.Diff, 0, 3)

		d := b.Diff()
		require.True(t, d.Empty())
		require.Equal(t, int64(0), b.CurrentFrame())
		return true
	})
}

func TestCompareAdhoc_FailedCandidateNeverWins(t *testing.T) {
	runRoot(t, func(b *Base[walkState]) bool {
		out := CompareAdhoc(b, FromList([]int8{-1, 2, -5}), walkTwice(b), smaller, nil)
		require.True(t, out.Asserted)
		require.Equal(t, int64(4), out.Value)
		return true
	})
}

func TestCompareAdhoc_NoCandidates(t *testing.T) {
	runRoot(t, func(b *Base[walkState]) bool {
		out := CompareAdhoc(b, FromList[int8](nil), walkTwice(b), larger, nil)
		require.False(t, out.Asserted)
		return true
	})
}

func TestCompareAdhoc_TerminatorStopsEarly(t *testing.T) {
	runRoot(t, func(b *Base[walkState]) bool {
		calls := 0
		fn := walkTwice(b)
		out := CompareAdhoc(b, FromList([]int8{1, 2, 3, 4}), func(p int8, r *int64) bool {
			calls++
			return fn(p, r)
		}, larger, func(o *Outcome[int64]) bool { return o.Value >= 4 })
		require.Equal(t, 2, calls)
		require.Equal(t, int64(4), out.Value)
		return true
	})
}

func TestModifyCompareAdhoc_AppliesEarlierWinner(t *testing.T) {
	runRoot(t, func(b *Base[walkState]) bool {
		out := ModifyCompareAdhoc(b, FromList([]int8{1, 3, 2}), walkTwice(b), larger, nil)
		require.True(t, out.Asserted)

		d := b.Diff()
		require.Equal(t, 2, d.Len())
		requireStick(t, &d, 0, 3)
		requireStick(t, &d, 1, 3)
		require.Equal(t, int64(2), b.CurrentFrame())
		require.Equal(t, int64(6), b.Resource().Underlying().Save().X)
		return true
	})
}

func TestModifyCompareAdhoc_KeepsLastWinnerInPlace(t *testing.T) {
	runRoot(t, func(b *Base[walkState]) bool {
		advances := b.Resource().Advances()
		ModifyCompareAdhoc(b, FromList([]int8{1, 2, 3}), walkTwice(b), larger, nil)
		d := b.Diff()
		requireStick(t, &d, 1, 3)
		require.Equal(t, int64(6), b.Resource().Underlying().Save().X)
		// The winner is not replayed.
		require.LessOrEqual(t, b.Resource().Advances()-advances, int64(6))
		return true
	})
}

func TestCompare_ScriptForm(t *testing.T) {
	runRoot(t, func(b *Base[walkState]) bool {
		byStick := func(a, c *Outcome[*holdScript]) *Outcome[*holdScript] {
			if c.Value.x > a.Value.x {
				return c
			}
			return a
		}
		out := Compare(b, FromList([]int8{1, 4, 2}), func(x int8) *holdScript { return hold(2, x) }, byStick, nil)
		require.True(t, out.Asserted)
		require.Equal(t, int8(4), out.Value.x)
		d := b.Diff()
		require.True(t, d.Empty())

		mod := ModifyCompare(b, FromList([]int8{1, 4, 2}), func(x int8) *holdScript { return hold(2, x) }, byStick, nil)
		require.Equal(t, int8(4), mod.Value.x)
		d = b.Diff()
		requireStick(t, &d, 1, 4)
		require.Equal(t, int64(2), b.CurrentFrame())
		return true
	})
}

// stepper mutates by holding the stick at 10 for one frame; candidates hold p for one frame.
func stepper(b *Base[walkState]) (func() bool, func(p int8, r *int64) bool) {
	mutate := func() bool {
		b.AdvanceFrameWrite(timeline.Inputs{StickX: 10})
		return true
	}
	fn := func(p int8, r *int64) bool {
		b.AdvanceFrameWrite(timeline.Inputs{StickX: p})
		*r = b.Resource().Underlying().Save().X
		return true
	}
	return mutate, fn
}

func TestDynamicModifyCompareAdhoc_LastWinnerKeepsMutations(t *testing.T) {
	runRoot(t, func(b *Base[walkState]) bool {
		mutate, fn := stepper(b)
		out := DynamicModifyCompareAdhoc(b, FromList([]int8{5, 1, 1}), fn, mutate, larger, nil)
		require.True(t, out.Asserted)
		require.Equal(t, int64(2), out.Mutations)
		require.Equal(t, int64(21), out.Best.Value)

		d := b.Diff()
		require.Equal(t, 3, d.Len())
		requireStick(t, &d, 0, 10)
		requireStick(t, &d, 1, 10)
		requireStick(t, &d, 2, 1)
		require.True(t, out.Diff.Equal(&d))
		require.Equal(t, int64(21), b.Resource().Underlying().Save().X)
		return true
	})
}

func TestDynamicModifyCompareAdhoc_EarlyWinnerDropsLaterMutations(t *testing.T) {
	runRoot(t, func(b *Base[walkState]) bool {
		mutate, fn := stepper(b)
		out := DynamicModifyCompareAdhoc(b, FromList([]int8{5, 1, 1}), fn, mutate, smaller, nil)
		require.True(t, out.Asserted)
		require.Equal(t, int64(0), out.Mutations)
		require.Equal(t, int64(5), out.Best.Value)

		d := b.Diff()
		require.Equal(t, 1, d.Len())
		requireStick(t, &d, 0, 5)
		require.Equal(t, int64(1), b.CurrentFrame())
		require.Equal(t, int64(5), b.Resource().Underlying().Save().X)
		return true
	})
}

func TestDynamicCompareAdhoc_ReportsDiffWithoutCommitting(t *testing.T) {
	runRoot(t, func(b *Base[walkState]) bool {
		mutate, fn := stepper(b)
		out := DynamicCompareAdhoc(b, FromList([]int8{5, 1, 1}), fn, mutate, larger, nil)
		require.True(t, out.Asserted)
		require.Equal(t, 3, out.Diff.Len())
		requireStick(t, &out.Diff, 2, 1)

		d := b.Diff()
		require.True(t, d.Empty())
		require.Equal(t, int64(0), b.CurrentFrame())
		return true
	})
}

func TestDynamicCompareAdhoc_FailedMutationStops(t *testing.T) {
	runRoot(t, func(b *Base[walkState]) bool {
		_, fn := stepper(b)
		calls := 0
		out := DynamicCompareAdhoc(b, FromList([]int8{5, 1, 1}), func(p int8, r *int64) bool {
			calls++
			return fn(p, r)
		}, func() bool { return false }, larger, nil)
		require.Equal(t, 1, calls)
		require.Equal(t, int64(5), out.Best.Value)
		require.Equal(t, int64(0), out.Mutations)
		return true
	})
}
