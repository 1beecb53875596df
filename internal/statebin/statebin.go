// Package statebin packs coarse-grained simulation state into fixed-size,
// comparable bins used to deduplicate visited states.
package statebin

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/constraints"
)

var (
	ErrCursorRange     = errors.New("statebin: bit cursor out of range")
	ErrValueTooLarge   = errors.New("statebin: value too large for bits allocated")
	ErrValueOutOfRange = errors.New("statebin: value out of range")
	ErrInvalidRegions  = errors.New("statebin: invalid region count")
)

type Number interface {
	constraints.Integer | constraints.Float
}

// Builder writes bit fields LSB-first into a zeroed byte buffer.
type Builder struct {
	buf    []byte
	cursor int
}

func NewBuilder(nBytes int) *Builder {
	return &Builder{buf: make([]byte, nBytes)}
}

func (b *Builder) Cursor() int   { return b.cursor }
func (b *Builder) Bytes() []byte { return b.buf }

func (b *Builder) checkRoom(bits int) error {
	if bits < 0 || bits > 64 {
		return fmt.Errorf("%w: %d bits", ErrCursorRange, bits)
	}
	if b.cursor < 0 || b.cursor+bits > len(b.buf)*8 {
		return fmt.Errorf("%w: cursor %d + %d bits > %d", ErrCursorRange, b.cursor, bits, len(b.buf)*8)
	}
	return nil
}

// AddValueBits stores value in the next bits bits.
func (b *Builder) AddValueBits(bits int, value uint64) error {
	if err := b.checkRoom(bits); err != nil {
		return err
	}
	if bits < 64 && value >= uint64(1)<<uint(bits) {
		return fmt.Errorf("%w: %d in %d bits", ErrValueTooLarge, value, bits)
	}
	b.put(bits, value)
	return nil
}

// AddRegionBitsByNRegions splits [min, max] into nRegions equal regions and
// stores the index of the region holding value. nRegions is capped at what
// bits can address.
func AddRegionBitsByNRegions[T Number](b *Builder, bits int, value, min, max T, nRegions uint64) error {
	if err := b.checkRoom(bits); err != nil {
		return err
	}
	if value < min || value > max {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrValueOutOfRange, value, min, max)
	}
	if nRegions == 0 {
		return ErrInvalidRegions
	}
	nRegions = capRegions(nRegions, bits)

	size := (float64(max) - float64(min)) / float64(nRegions)
	return b.putRegion(bits, float64(value)-float64(min), size, nRegions)
}

// AddRegionBitsByRegionSize splits [min, max] into regions of the given size
// and stores the index of the region holding value.
func AddRegionBitsByRegionSize[T Number](b *Builder, bits int, value, min, max, size T) error {
	if err := b.checkRoom(bits); err != nil {
		return err
	}
	if value < min || value > max {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrValueOutOfRange, value, min, max)
	}
	if size <= 0 {
		return fmt.Errorf("%w: region size %v", ErrInvalidRegions, size)
	}
	nRegions := uint64(math.Ceil((float64(max) - float64(min)) / float64(size)))
	if nRegions == 0 {
		nRegions = 1
	}
	nRegions = capRegions(nRegions, bits)
	return b.putRegion(bits, float64(value)-float64(min), float64(size), nRegions)
}

func capRegions(n uint64, bits int) uint64 {
	if bits < 64 && n > uint64(1)<<uint(bits) {
		return uint64(1) << uint(bits)
	}
	return n
}

func (b *Builder) putRegion(bits int, offset, size float64, nRegions uint64) error {
	var region uint64
	if size > 0 {
		region = uint64(offset / size)
	}
	// value == max lands one past the last region.
	if region == nRegions {
		region--
	}
	if region >= nRegions {
		return fmt.Errorf("%w: region %d of %d", ErrValueOutOfRange, region, nRegions)
	}
	b.put(bits, region)
	return nil
}

func (b *Builder) put(bits int, value uint64) {
	for bit := 0; bit < bits; bit++ {
		if value&(uint64(1)<<uint(bit)) != 0 {
			pos := b.cursor + bit
			b.buf[pos>>3] |= 1 << uint(pos&7)
		}
	}
	b.cursor += bits
}

// Bin8 is an 8-byte state bin.
type Bin8 [8]byte

// Bin16 is a 16-byte state bin.
type Bin16 [16]byte

// Bin32 is a 32-byte state bin.
type Bin32 [32]byte

func (b *Builder) Bin8() Bin8 {
	var out Bin8
	copy(out[:], b.buf)
	return out
}

func (b *Builder) Bin16() Bin16 {
	var out Bin16
	copy(out[:], b.buf)
	return out
}

func (b *Builder) Bin32() Bin32 {
	var out Bin32
	copy(out[:], b.buf)
	return out
}

func (s Bin8) Hash() uint64  { return xxhash.Sum64(s[:]) }
func (s Bin16) Hash() uint64 { return xxhash.Sum64(s[:]) }
func (s Bin32) Hash() uint64 { return xxhash.Sum64(s[:]) }

func (s Bin8) String() string  { return hex.EncodeToString(s[:]) }
func (s Bin16) String() string { return hex.EncodeToString(s[:]) }
func (s Bin32) String() string { return hex.EncodeToString(s[:]) }
