package gridwalk

import "github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"

// State is the complete simulation state. It is a value so saves are copies.
type State struct {
	Frame  int64
	X, Y   int32
	Facing uint8 // octant, 0 is +x, counter-clockwise
	Dead   bool
	Jumps  int32
}

const stateSize = 32

// octants maps a facing to its unit step.
var octants = [8][2]int32{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

// Sim walks a single point over a Terrain. Each frame the stick picks an
// octant; magnitude below 8 stands still, below 64 moves one cell, otherwise
// two. Walking onto a pit kills unless A is held, which jumps it.
type Sim struct {
	terrain Terrain
	state   State
	in      timeline.Inputs
}

func New(t Terrain) *Sim {
	return &Sim{terrain: t, state: State{X: t.StartX, Y: t.StartY}}
}

func (s *Sim) Terrain() Terrain { return s.terrain }
func (s *Sim) State() State     { return s.state }

func (s *Sim) Save() State                  { return s.state }
func (s *Sim) Load(st State)                { s.state = st }
func (s *Sim) StateSize(State) int64        { return stateSize }
func (s *Sim) SetInputs(in timeline.Inputs) { s.in = in }
func (s *Sim) Frame() int64                 { return s.state.Frame }

func (s *Sim) Advance() {
	st := &s.state
	st.Frame++
	if st.Dead {
		return
	}
	dir, mag, ok := StickOctant(s.in.StickX, s.in.StickY)
	if !ok {
		return
	}
	st.Facing = dir
	steps := 1
	if mag >= 64 {
		steps = 2
	}
	jump := s.in.Has(timeline.A)
	d := octants[dir]
	for i := 0; i < steps; i++ {
		nx, ny := st.X+d[0], st.Y+d[1]
		tile := s.terrain.Tile(nx, ny)
		if tile == Wall {
			return
		}
		st.X, st.Y = nx, ny
		if tile == Pit {
			if !jump {
				st.Dead = true
				return
			}
			st.Jumps++
		}
	}
}

// StickOctant quantizes a stick position to an octant and its magnitude.
// It reports false inside the deadzone.
func StickOctant(x, y int8) (uint8, int32, bool) {
	ax, ay := absInt32(int32(x)), absInt32(int32(y))
	mag := max(ax, ay)
	if mag < 8 {
		return 0, mag, false
	}
	var dx, dy int32
	if 2*ax >= ay {
		dx = sign(int32(x))
	}
	if 2*ay >= ax {
		dy = sign(int32(y))
	}
	for i, o := range octants {
		if o[0] == dx && o[1] == dy {
			return uint8(i), mag, true
		}
	}
	return 0, mag, false
}

// Stick returns the stick position for moving toward octant dir.
func Stick(dir uint8, mag int32) (int8, int8) {
	o := octants[dir%8]
	mag = min(max(mag, 0), 127)
	return int8(o[0] * mag), int8(o[1] * mag)
}

func sign(v int32) int32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
