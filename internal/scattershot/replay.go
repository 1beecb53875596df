package scattershot

import (
	"errors"
	"fmt"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/script"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

var (
	ErrBlockDesync      = errors.New("scattershot: replayed block does not match its state bin")
	ErrMalformedSegment = errors.New("scattershot: malformed segment chain")
)

// chainOf returns the segments from the root down to tail.
func chainOf(a *arena, tail SegmentRef) ([]Segment, error) {
	var chain []Segment
	for r := tail; !r.IsNil(); {
		s, err := a.get(r)
		if err != nil {
			return nil, err
		}
		chain = append(chain, *s)
		if len(chain) > int(chain[0].Depth) {
			return nil, fmt.Errorf("%w: %s is deeper than its depth %d", ErrMalformedSegment, tail, chain[0].Depth)
		}
		r = s.Parent
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: nil tail", ErrMalformedSegment)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	for i, s := range chain {
		if int(s.Depth) != i+1 {
			return nil, fmt.Errorf("%w: segment at position %d has depth %d", ErrMalformedSegment, i, s.Depth)
		}
	}
	return chain, nil
}

// replayer runs domain callbacks against a script, each inside its own
// ad-hoc block. Exploration and replay share it so both walk the same path.
type replayer[S any, B Bin] struct {
	b       *script.Base[S]
	domain  Domain[S, B]
	checker SolutionChecker[S]
	seeds   []timeline.Diff
	start   int64
}

func newReplayer[S any, B Bin](b *script.Base[S], d Domain[S, B], seeds []timeline.Diff, start int64) replayer[S, B] {
	r := replayer[S, B]{b: b, domain: d, seeds: seeds, start: start}
	if c, ok := any(d).(SolutionChecker[S]); ok {
		r.checker = c
	}
	return r
}

// chooseScriptAndApply picks movement options, applies one movement and
// returns the next rng. It reports whether the movement changed any input.
func (r *replayer[S, B]) chooseScriptAndApply(rng uint64) (uint64, bool) {
	var opts Options
	r.b.ExecuteAdhoc(func() bool {
		opts = r.domain.MovementOptions(r.b, rng)
		return true
	})
	rng = Mix64(rng)
	st := r.b.ModifyAdhoc(func() bool { return r.domain.ApplyMovement(r.b, opts, rng) })
	return Mix64(rng), st.Executed && !st.Diff.Empty()
}

func (r *replayer[S, B]) stateBin() (bin B) {
	r.b.ExecuteAdhoc(func() bool {
		bin = r.domain.StateBin(r.b)
		return true
	})
	return bin
}

func (r *replayer[S, B]) fitness() (f float32) {
	r.b.ExecuteAdhoc(func() bool {
		f = r.domain.Fitness(r.b)
		return true
	})
	return f
}

func (r *replayer[S, B]) validate() bool {
	return r.b.ExecuteAdhoc(func() bool { return r.domain.ValidateBlock(r.b) }).Executed
}

func (r *replayer[S, B]) isSolution() bool {
	if r.checker == nil {
		return false
	}
	return r.b.ExecuteAdhoc(func() bool { return r.checker.IsSolution(r.b) }).Executed
}

func (r *replayer[S, B]) applySeed(piped uint16) {
	if int(piped) > len(r.seeds) {
		script.Fatal(fmt.Errorf("%w: piped seed %d of %d", ErrMalformedSegment, piped, len(r.seeds)))
	}
	d := r.seeds[piped-1].Clone()
	if !d.Empty() {
		r.b.Apply(&d)
	}
}

// decode replays chain from the start frame and leaves the script at the
// frame the tail ended on.
func (r *replayer[S, B]) decode(chain []Segment) {
	post := int64(-1)
	st := r.b.ModifyAdhoc(func() bool {
		r.b.Load(r.start)
		for _, seg := range chain {
			if seg.Piped > 0 {
				r.applySeed(seg.Piped)
				continue
			}
			rng := seg.Seed
			for k := 0; k < int(seg.Scripts); k++ {
				rng, _ = r.chooseScriptAndApply(rng)
			}
		}
		post = r.b.CurrentFrame()
		return true
	})
	if !st.Executed {
		script.Fatal(fmt.Errorf("%w: replay failed: %v", ErrBlockDesync, st.Err))
	}
	r.b.Load(post)
}
