package scattershot

import (
	"errors"
	"fmt"
)

var (
	ErrStaleSegment      = errors.New("scattershot: stale segment reference")
	ErrCorruptSegments   = errors.New("scattershot: corrupt segment tree")
	ErrSegmentsExhausted = errors.New("scattershot: shared segment arena full")
)

const sharedOwner int16 = -1

// SegmentRef addresses a segment. Shared refs carry the arena generation and
// go stale when the arena is compacted. Worker-owned refs are valid until the
// next merge.
type SegmentRef struct {
	Owner int16
	Index int32
	Gen   uint32
}

var NoSegment = SegmentRef{Owner: sharedOwner, Index: -1}

func (r SegmentRef) IsNil() bool  { return r.Index < 0 }
func (r SegmentRef) Shared() bool { return r.Owner == sharedOwner }

func (r SegmentRef) String() string {
	if r.IsNil() {
		return "nil"
	}
	if r.Shared() {
		return fmt.Sprintf("shared#%d@%d", r.Index, r.Gen)
	}
	return fmt.Sprintf("w%d#%d", r.Owner, r.Index)
}

// Segment is one run of chosen movements. Replaying Scripts movements from
// Seed on top of the parent's end state reproduces the segment's end state.
// Piped root segments replay a seed solution instead.
type Segment struct {
	Parent   SegmentRef
	Seed     uint64
	Scripts  uint8
	Depth    uint32
	RefCount uint32
	Piped    uint16
}

// arena holds the shared segments.
type arena struct {
	segs []Segment
	gen  uint32
	max  int
}

func (a *arena) len() int { return len(a.segs) }

func (a *arena) ref(i int) SegmentRef {
	return SegmentRef{Owner: sharedOwner, Index: int32(i), Gen: a.gen}
}

func (a *arena) get(r SegmentRef) (*Segment, error) {
	if !r.Shared() || r.Index < 0 || int(r.Index) >= len(a.segs) {
		return nil, fmt.Errorf("%w: %s of %d", ErrStaleSegment, r, len(a.segs))
	}
	if r.Gen != a.gen {
		return nil, fmt.Errorf("%w: %s, arena generation %d", ErrStaleSegment, r, a.gen)
	}
	return &a.segs[r.Index], nil
}

func (a *arena) add(s Segment) (SegmentRef, error) {
	if len(a.segs) >= a.max {
		return NoSegment, fmt.Errorf("%w: %d segments", ErrSegmentsExhausted, a.max)
	}
	a.segs = append(a.segs, s)
	return a.ref(len(a.segs) - 1), nil
}

// collectSegments recomputes reference counts from scratch, frees every
// segment nothing reaches and compacts the arena. Block tails and the shared
// parents of pinned (not yet merged) segments count as references and are
// rewritten in place. It returns the number of segments freed.
func collectSegments[B Bin](a *arena, blocks []Block[B], pinned ...[]Segment) (int, error) {
	segs := a.segs
	for i := range segs {
		segs[i].RefCount = 0
	}
	for i := range segs {
		if p := segs[i].Parent; !p.IsNil() {
			ps, err := a.get(p)
			if err != nil {
				return 0, fmt.Errorf("segment %d parent: %w", i, err)
			}
			ps.RefCount++
		}
	}
	for i := range blocks {
		s, err := a.get(blocks[i].Tail)
		if err != nil {
			return 0, fmt.Errorf("block %d tail: %w", i, err)
		}
		s.RefCount++
	}
	for _, local := range pinned {
		for i := range local {
			if p := local[i].Parent; !p.IsNil() {
				ps, err := a.get(p)
				if err != nil {
					return 0, fmt.Errorf("pinned segment %d parent: %w", i, err)
				}
				ps.RefCount++
			}
		}
	}

	dead := make([]bool, len(segs))
	var stack []int32
	for i := range segs {
		if segs[i].RefCount == 0 {
			stack = append(stack, int32(i))
		}
	}
	freed := 0
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		dead[i] = true
		freed++

		p := segs[i].Parent
		if p.IsNil() {
			continue
		}
		ps := &segs[p.Index]
		if ps.RefCount == 0 {
			return 0, fmt.Errorf("%w: segment %d refcount underflow", ErrCorruptSegments, p.Index)
		}
		ps.RefCount--
		if ps.RefCount == 0 {
			stack = append(stack, p.Index)
		}
	}
	if freed == 0 {
		return 0, nil
	}

	remap := make([]int32, len(segs))
	j := 0
	for i := range segs {
		if dead[i] {
			remap[i] = -1
			continue
		}
		remap[i] = int32(j)
		segs[j] = segs[i]
		j++
	}
	a.segs = segs[:j]
	a.gen++

	for i := range a.segs {
		p := &a.segs[i].Parent
		if p.IsNil() {
			continue
		}
		if remap[p.Index] < 0 {
			return 0, fmt.Errorf("%w: live segment %d has freed parent", ErrCorruptSegments, i)
		}
		*p = a.ref(int(remap[p.Index]))
	}
	for i := range blocks {
		blocks[i].Tail = a.ref(int(remap[blocks[i].Tail.Index]))
	}
	for _, local := range pinned {
		for i := range local {
			if p := &local[i].Parent; !p.IsNil() {
				*p = a.ref(int(remap[p.Index]))
			}
		}
	}
	return freed, nil
}
