package scattershot

// Mix64 advances an exploration hash. Replaying from a stored seed yields
// the same sequence.
func Mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// ThreadSeed is the initial hash for worker id.
func ThreadSeed(id int) uint64 {
	return uint64(id+173) * 5786766484692217813
}

// MovementOption is one knob a domain can turn when picking the next input.
type MovementOption uint8

const (
	MaxMagnitude MovementOption = iota
	ZeroMagnitude
	SameMagnitude
	RandomMagnitude

	MatchFacingYaw
	AntiFacingYaw
	SameYaw
	RandomYaw

	SameButtons
	NoButtons
	RandomButtons

	NoScript
	PBD
	RunDownhill
	Rewind
	TurnUphill
	TurnAround

	numMovementOptions
)

var movementOptionNames = [...]string{
	"MAX_MAGNITUDE", "ZERO_MAGNITUDE", "SAME_MAGNITUDE", "RANDOM_MAGNITUDE",
	"MATCH_FACING_YAW", "ANTI_FACING_YAW", "SAME_YAW", "RANDOM_YAW",
	"SAME_BUTTONS", "NO_BUTTONS", "RANDOM_BUTTONS",
	"NO_SCRIPT", "PBD", "RUN_DOWNHILL", "REWIND", "TURN_UPHILL", "TURN_AROUND",
}

func (o MovementOption) String() string {
	if o < numMovementOptions {
		return movementOptionNames[o]
	}
	return "UNKNOWN"
}

// Options is a set of movement options.
type Options uint32

func (s Options) Has(o MovementOption) bool     { return s&(1<<o) != 0 }
func (s Options) With(o MovementOption) Options { return s | 1<<o }

func (s Options) List() []MovementOption {
	var out []MovementOption
	for o := MovementOption(0); o < numMovementOptions; o++ {
		if s.Has(o) {
			out = append(out, o)
		}
	}
	return out
}

// Weighted pairs an option with its relative weight.
type Weighted struct {
	Option MovementOption
	Weight float64
}

const rngRange = 10000

// ChooseMovementOption picks one option with probability proportional to its
// weight, using rng modulo 10000. Options with weight <= 0 are never picked.
// It reports false when no option has positive weight.
func ChooseMovementOption(rng uint64, weights []Weighted) (MovementOption, bool) {
	var total float64
	last := -1
	for i, w := range weights {
		if w.Weight > 0 {
			total += w.Weight
			last = i
		}
	}
	if last < 0 {
		return 0, false
	}

	r := float64(rng % rngRange)
	lo := 0.0
	for _, w := range weights {
		if w.Weight <= 0 {
			continue
		}
		hi := lo + w.Weight*rngRange/total
		if r >= lo && r < hi {
			return w.Option, true
		}
		lo = hi
	}
	return weights[last].Option, true
}
