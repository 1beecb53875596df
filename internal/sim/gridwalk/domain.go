package gridwalk

import (
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/scattershot"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/script"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/statebin"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

// Domain searches for the fastest walk to the goal.
type Domain struct {
	Terrain Terrain
	// MaxFrames bounds how far a movement may run past the start frame.
	MaxFrames int64
}

var (
	magnitudeWeights = []scattershot.Weighted{
		{Option: scattershot.MaxMagnitude, Weight: 6},
		{Option: scattershot.ZeroMagnitude, Weight: 0.5},
		{Option: scattershot.SameMagnitude, Weight: 2},
		{Option: scattershot.RandomMagnitude, Weight: 1.5},
	}
	yawWeights = []scattershot.Weighted{
		{Option: scattershot.MatchFacingYaw, Weight: 3},
		{Option: scattershot.AntiFacingYaw, Weight: 0.5},
		{Option: scattershot.SameYaw, Weight: 2},
		{Option: scattershot.RandomYaw, Weight: 4},
	}
	buttonWeights = []scattershot.Weighted{
		{Option: scattershot.SameButtons, Weight: 2},
		{Option: scattershot.NoButtons, Weight: 5},
		{Option: scattershot.RandomButtons, Weight: 3},
	}
)

func state(b *script.Base[State]) State {
	return b.Resource().Underlying().Save()
}

func (d Domain) MovementOptions(b *script.Base[State], rng uint64) scattershot.Options {
	var opts scattershot.Options
	for i, w := range [][]scattershot.Weighted{magnitudeWeights, yawWeights, buttonWeights} {
		if o, ok := scattershot.ChooseMovementOption(scattershot.Mix64(rng+uint64(i)), w); ok {
			opts = opts.With(o)
		}
	}
	return opts
}

// ApplyMovement holds one stick position and button set for 1 to 4 frames.
func (d Domain) ApplyMovement(b *script.Base[State], opts scattershot.Options, rng uint64) bool {
	cur := b.CurrentFrame()
	if d.MaxFrames > 0 && cur-b.Resource().InitialFrame() >= d.MaxFrames {
		return false
	}
	st := state(b)
	var prev timeline.Inputs
	if cur > b.Resource().InitialFrame() {
		prev = b.GetInputs(cur - 1)
	}
	prevDir, prevMag, prevMoving := StickOctant(prev.StickX, prev.StickY)

	var mag int32
	switch {
	case opts.Has(scattershot.MaxMagnitude):
		mag = 127
	case opts.Has(scattershot.SameMagnitude):
		mag = prevMag
	case opts.Has(scattershot.RandomMagnitude):
		mag = int32((rng >> 8) % 128)
	}

	dir := st.Facing
	switch {
	case opts.Has(scattershot.AntiFacingYaw):
		dir = (st.Facing + 4) % 8
	case opts.Has(scattershot.SameYaw) && prevMoving:
		dir = prevDir
	case opts.Has(scattershot.RandomYaw):
		dir = uint8((rng >> 16) % 8)
	}

	var in timeline.Inputs
	in.StickX, in.StickY = Stick(dir, mag)
	switch {
	case opts.Has(scattershot.SameButtons):
		in.Buttons = prev.Buttons
	case opts.Has(scattershot.RandomButtons):
		if (rng>>24)&1 == 1 {
			in.Buttons = timeline.A
		}
	}

	frames := 1 + int(rng%4)
	for i := 0; i < frames; i++ {
		b.AdvanceFrameWrite(in)
	}
	return true
}

func (d Domain) StateBin(b *script.Base[State]) statebin.Bin8 {
	st := state(b)
	sb := statebin.NewBuilder(8)
	check := func(err error) {
		if err != nil {
			script.Fatal(err)
		}
	}
	check(statebin.AddRegionBitsByRegionSize(sb, 10, st.X, 0, d.Terrain.Width, 1))
	check(statebin.AddRegionBitsByRegionSize(sb, 10, st.Y, 0, d.Terrain.Height, 1))
	check(sb.AddValueBits(3, uint64(st.Facing)))
	dead := uint64(0)
	if st.Dead {
		dead = 1
	}
	check(sb.AddValueBits(1, dead))
	return sb.Bin8()
}

func (d Domain) ValidateBlock(b *script.Base[State]) bool {
	return !state(b).Dead
}

// Fitness prefers states closer to the goal, then earlier frames.
func (d Domain) Fitness(b *script.Base[State]) float32 {
	st := state(b)
	return -float32(d.Terrain.Distance(st.X, st.Y)) - float32(st.Frame)/1024
}

func (d Domain) IsSolution(b *script.Base[State]) bool {
	st := state(b)
	return !st.Dead && st.X == d.Terrain.GoalX && st.Y == d.Terrain.GoalY
}
