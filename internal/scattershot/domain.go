package scattershot

import "github.com/TylerKehne/sm64-tas-scripting-sub001/internal/script"

// Domain supplies the search policy for one simulation. Every method runs
// inside an ad-hoc block on the worker's script, so reads never leak and
// only ApplyMovement's writes are kept.
type Domain[S any, B Bin] interface {
	// MovementOptions picks the options for the next movement. It must be a
	// pure function of the current state and rng.
	MovementOptions(b *script.Base[S], rng uint64) Options
	// ApplyMovement writes inputs for one movement.
	ApplyMovement(b *script.Base[S], opts Options, rng uint64) bool
	StateBin(b *script.Base[S]) B
	// ValidateBlock rejects states that must not become blocks.
	ValidateBlock(b *script.Base[S]) bool
	Fitness(b *script.Base[S]) float32
}

// SolutionChecker is implemented by domains that can recognize a finished route.
type SolutionChecker[S any] interface {
	IsSolution(b *script.Base[S]) bool
}
