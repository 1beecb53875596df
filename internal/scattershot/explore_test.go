package scattershot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/resource"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/script"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

type lineState struct {
	Frame int64
	X     int64
}

// lineSim moves X by the stick every frame.
type lineSim struct {
	st lineState
	in timeline.Inputs
}

func (s *lineSim) Advance() {
	s.st.X += int64(s.in.StickX)
	s.st.Frame++
}
func (s *lineSim) Save() lineState              { return s.st }
func (s *lineSim) Load(st lineState)            { s.st = st }
func (s *lineSim) StateSize(lineState) int64    { return 16 }
func (s *lineSim) SetInputs(in timeline.Inputs) { s.in = in }
func (s *lineSim) Frame() int64                 { return s.st.Frame }

// stutterDomain refuses every movement drawn with an even rng.
type stutterDomain struct{}

func (stutterDomain) MovementOptions(*script.Base[lineState], uint64) Options { return 0 }

func (stutterDomain) ApplyMovement(b *script.Base[lineState], _ Options, rng uint64) bool {
	if rng%2 == 0 {
		return false
	}
	b.AdvanceFrameWrite(timeline.Inputs{StickX: int8(rng%3) + 1})
	return true
}

func (stutterDomain) StateBin(b *script.Base[lineState]) testBin {
	return testBin(b.Resource().Underlying().Save().X)
}

func (stutterDomain) ValidateBlock(*script.Base[lineState]) bool { return true }

func (stutterDomain) Fitness(b *script.Base[lineState]) float32 {
	return float32(b.Resource().Underlying().Save().X)
}

func TestExplore_FailedMovementDoesNotEndSegment(t *testing.T) {
	cfg := smallConfig()
	cfg.Threads = 1
	cfg.MaxShots = 20
	cfg.ShotsPerMerge = 5
	cfg.SegmentsPerShot = 2
	cfg.SegmentLength = 6
	cfg.MaxSegments = 8
	cfg.MaxBlocks = 512
	cfg.MaxHashes = 2048
	cfg.MaxSharedBlocks = 4096
	cfg.MaxSharedHashes = 16384
	cfg.MaxLocalSegments = 2048
	cfg.MaxSharedSegments = 1 << 14
	cfg.SlotBudgetBytes = 1 << 16

	e, err := New[lineState, testBin](cfg, stutterDomain{})
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background(), func(int) (resource.Sim[lineState], error) {
		return &lineSim{}, nil
	}))

	st := e.Stats()
	require.Positive(t, st.Shots)
	require.Equal(t, st.Shots*int64(cfg.SegmentsPerShot*cfg.SegmentLength), st.Scripts)
	require.Positive(t, st.Failed)
	require.Positive(t, st.Novel)
	require.Equal(t, st.Scripts, st.Failed+st.Redundant+st.Novel)

	rep, err := Verify[lineState, testBin](e.Export(), stutterDomain{}, &lineSim{}, 1<<16)
	require.NoError(t, err)
	require.Equal(t, len(e.Blocks()), rep.Checked)
	require.Empty(t, rep.Mismatches)
}

func TestAddLocal_TieTakesNewerSegment(t *testing.T) {
	e, root := newTestEngine(t, smallConfig())
	w := e.workers[0]
	discover(t, w, root, 100, 7, 1.0, false)
	discover(t, w, root, 200, 7, 1.0, false)
	require.False(t, w.addLocal(Segment{Parent: root, Seed: 300, Scripts: 1, Depth: 2}, 7, 0.5, false, timeline.Diff{}))

	idx, ok := w.blocks.find(7)
	require.True(t, ok)
	tail := w.blocks.blocks[idx].Tail
	require.Equal(t, uint64(200), w.segs[tail.Index].Seed)
}
