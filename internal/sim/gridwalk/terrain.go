package gridwalk

// Tile is the kind of one grid cell.
type Tile uint8

const (
	Floor Tile = iota
	Wall
	Pit
)

func (t Tile) String() string {
	switch t {
	case Floor:
		return "FLOOR"
	case Wall:
		return "WALL"
	case Pit:
		return "PIT"
	default:
		return "UNKNOWN"
	}
}

// Terrain is a procedurally generated bounded grid. Cells near the start and
// the goal are always floor.
type Terrain struct {
	Seed         int64 `yaml:"seed" json:"seed"`
	Width        int32 `yaml:"width" json:"width"`
	Height       int32 `yaml:"height" json:"height"`
	WallPermille int   `yaml:"wall_permille" json:"wall_permille"`
	PitPermille  int   `yaml:"pit_permille" json:"pit_permille"`
	StartX       int32 `yaml:"start_x" json:"start_x"`
	StartY       int32 `yaml:"start_y" json:"start_y"`
	GoalX        int32 `yaml:"goal_x" json:"goal_x"`
	GoalY        int32 `yaml:"goal_y" json:"goal_y"`
}

func DefaultTerrain() Terrain {
	return Terrain{
		Seed:         1337,
		Width:        48,
		Height:       48,
		WallPermille: 120,
		PitPermille:  40,
		StartX:       2,
		StartY:       2,
		GoalX:        45,
		GoalY:        45,
	}
}

func (t Terrain) Tile(x, y int32) Tile {
	if x <= 0 || y <= 0 || x >= t.Width-1 || y >= t.Height-1 {
		return Wall
	}
	if chebyshev(x, y, t.StartX, t.StartY) <= 1 || chebyshev(x, y, t.GoalX, t.GoalY) <= 1 {
		return Floor
	}
	h := int(hash2(t.Seed, int(x), int(y)) % 1000)
	switch {
	case h < t.WallPermille:
		return Wall
	case h < t.WallPermille+t.PitPermille:
		return Pit
	default:
		return Floor
	}
}

// Distance is the number of king moves from (x, y) to the goal.
func (t Terrain) Distance(x, y int32) int32 {
	return chebyshev(x, y, t.GoalX, t.GoalY)
}

func chebyshev(x0, y0, x1, y1 int32) int32 {
	return max(absInt32(x0-x1), absInt32(y0-y1))
}

func absInt32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash2(seed int64, x, y int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xbf58476d1ce4e5b9)
	return mix64(v)
}
