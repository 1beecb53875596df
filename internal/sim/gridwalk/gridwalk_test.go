package gridwalk

import (
	"testing"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/resource"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/scattershot"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/script"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

// openField has no walls or pits inside the border.
func openField() Terrain {
	t := DefaultTerrain()
	t.WallPermille = 0
	t.PitPermille = 0
	return t
}

func TestTerrain_DeterministicAndClearAroundEndpoints(t *testing.T) {
	a, b := DefaultTerrain(), DefaultTerrain()
	for x := int32(0); x < a.Width; x++ {
		for y := int32(0); y < a.Height; y++ {
			if a.Tile(x, y) != b.Tile(x, y) {
				t.Fatalf("tile (%d,%d) differs", x, y)
			}
		}
	}
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			if got := a.Tile(a.StartX+dx, a.StartY+dy); got != Floor {
				t.Fatalf("start neighbourhood (%d,%d): %v", dx, dy, got)
			}
			if got := a.Tile(a.GoalX+dx, a.GoalY+dy); got != Floor {
				t.Fatalf("goal neighbourhood (%d,%d): %v", dx, dy, got)
			}
		}
	}
	if a.Tile(0, 5) != Wall || a.Tile(a.Width-1, 5) != Wall {
		t.Fatalf("border must be wall")
	}
}

func TestStickOctant_RoundTrip(t *testing.T) {
	for dir := uint8(0); dir < 8; dir++ {
		x, y := Stick(dir, 100)
		got, mag, ok := StickOctant(x, y)
		if !ok || got != dir || mag != 100 {
			t.Fatalf("dir %d: got %d mag %d ok %v", dir, got, mag, ok)
		}
	}
	if _, _, ok := StickOctant(3, -7); ok {
		t.Fatalf("deadzone must not move")
	}
}

func TestSim_WalksAndStopsAtWall(t *testing.T) {
	s := New(openField())
	x, y := Stick(0, 127)
	s.SetInputs(timeline.Inputs{StickX: x, StickY: y})
	s.Advance()
	if st := s.State(); st.X != 4 || st.Y != 2 || st.Frame != 1 {
		t.Fatalf("after full stick: %+v", st)
	}

	x, y = Stick(4, 30)
	s.SetInputs(timeline.Inputs{StickX: x, StickY: y})
	for i := 0; i < 10; i++ {
		s.Advance()
	}
	if st := s.State(); st.X != 1 || st.Facing != 4 {
		t.Fatalf("expected stop at border, got %+v", st)
	}
}

func TestSim_PitKillsUnlessJumping(t *testing.T) {
	ter := openField()
	ter.PitPermille = 1000
	x, y := Stick(0, 127)

	s := New(ter)
	s.SetInputs(timeline.Inputs{StickX: x, StickY: y})
	s.Advance() // (3,2) is forced floor, (4,2) is a pit
	if st := s.State(); !st.Dead || st.X != 4 {
		t.Fatalf("expected death in pit: %+v", st)
	}
	s.Advance()
	if st := s.State(); st.X != 4 || st.Frame != 2 {
		t.Fatalf("dead walker must not move: %+v", st)
	}

	s = New(ter)
	s.SetInputs(timeline.Inputs{Buttons: timeline.A, StickX: x, StickY: y})
	s.Advance()
	if st := s.State(); st.Dead || st.X != 4 || st.Jumps != 1 {
		t.Fatalf("expected jump over pit: %+v", st)
	}
}

type bodyScript struct {
	script.Base[State]
	body func(b *script.Base[State]) bool
}

func (p *bodyScript) Validation() bool { return true }
func (p *bodyScript) Execution() bool  { return p.body(&p.Base) }
func (p *bodyScript) Assertion() bool  { return true }

func TestDomain_ApplyMovementWritesFrames(t *testing.T) {
	d := Domain{Terrain: openField()}
	res := resource.New[State](New(d.Terrain), 1<<20)
	var bins [2]any
	_, err := script.Main(res, timeline.Diff{}, &bodyScript{body: func(b *script.Base[State]) bool {
		bins[0] = d.StateBin(b)
		opts := scattershot.Options(0).With(scattershot.MaxMagnitude).With(scattershot.MatchFacingYaw).With(scattershot.NoButtons)
		st := b.ModifyAdhoc(func() bool { return d.ApplyMovement(b, opts, 2) })
		if !st.Executed || st.Diff.Len() != 3 {
			t.Errorf("expected three frames written, got %v", st.Diff)
		}
		bins[1] = d.StateBin(b)
		if got := state(b); got.X != 2+6 || got.Frame != 3 {
			t.Errorf("unexpected state %+v", got)
		}
		if got, want := d.Fitness(b), -float32(d.Terrain.Distance(8, 2))-float32(3)/1024; got != want {
			t.Errorf("fitness = %v, want %v", got, want)
		}
		return true
	}})
	if err != nil {
		t.Fatalf("main: %v", err)
	}
	if bins[0] == bins[1] {
		t.Fatalf("bins must differ after moving")
	}
}

func TestDomain_MovementOptionsPickOnePerGroup(t *testing.T) {
	d := Domain{Terrain: openField()}
	for rng := uint64(0); rng < 50; rng++ {
		opts := d.MovementOptions(nil, rng)
		if n := len(opts.List()); n != 3 {
			t.Fatalf("rng %d: want 3 options, got %v", rng, opts.List())
		}
	}
}
