package scattershot

import (
	"errors"
	"fmt"
)

// Config sizes every table up front. Per-thread limits apply to each
// worker's private arrays between merges.
type Config struct {
	StartFrame      int64 `yaml:"start_frame" json:"start_frame"`
	SegmentLength   int   `yaml:"segment_length" json:"segment_length"`
	SegmentsPerShot int   `yaml:"segments_per_shot" json:"segments_per_shot"`
	MaxSegments     int   `yaml:"max_segments" json:"max_segments"`

	MaxBlocks         int `yaml:"max_blocks" json:"max_blocks"`
	MaxSharedBlocks   int `yaml:"max_shared_blocks" json:"max_shared_blocks"`
	MaxHashes         int `yaml:"max_hashes" json:"max_hashes"`
	MaxSharedHashes   int `yaml:"max_shared_hashes" json:"max_shared_hashes"`
	MaxLocalSegments  int `yaml:"max_local_segments" json:"max_local_segments"`
	MaxSharedSegments int `yaml:"max_shared_segments" json:"max_shared_segments"`

	Threads                  int   `yaml:"threads" json:"threads"`
	MaxShots                 int64 `yaml:"max_shots" json:"max_shots"`
	ShotsPerMerge            int   `yaml:"shots_per_merge" json:"shots_per_merge"`
	MergesPerSegmentGC       int   `yaml:"merges_per_segment_gc" json:"merges_per_segment_gc"`
	StartFromRootEveryNShots int   `yaml:"start_from_root_every_n_shots" json:"start_from_root_every_n_shots"`

	MaxSolutions    int   `yaml:"max_solutions" json:"max_solutions"`
	SamplePeriod    int   `yaml:"sample_period" json:"sample_period"`
	SlotBudgetBytes int64 `yaml:"slot_budget_bytes" json:"slot_budget_bytes"`
}

func Defaults() Config {
	return Config{
		StartFrame:               0,
		SegmentLength:            8,
		SegmentsPerShot:          16,
		MaxSegments:              64,
		MaxBlocks:                4096,
		MaxSharedBlocks:          1 << 18,
		MaxHashes:                4096 * 4,
		MaxSharedHashes:          1 << 20,
		MaxLocalSegments:         4096,
		MaxSharedSegments:        1 << 20,
		Threads:                  4,
		MaxShots:                 10000,
		ShotsPerMerge:            50,
		MergesPerSegmentGC:       10,
		StartFromRootEveryNShots: 15,
		MaxSolutions:             0,
		SamplePeriod:             0,
		SlotBudgetBytes:          256 << 20,
	}
}

var ErrInvalidConfig = errors.New("scattershot: invalid config")

func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	switch {
	case c.StartFrame < 0:
		return bad("start_frame must be >= 0")
	case c.SegmentLength <= 0 || c.SegmentLength > 255:
		return bad("segment_length must be in [1, 255]")
	case c.SegmentsPerShot <= 0:
		return bad("segments_per_shot must be > 0")
	case c.MaxSegments <= 1:
		return bad("max_segments must be > 1")
	case c.Threads <= 0:
		return bad("threads must be > 0")
	case c.MaxBlocks <= 0 || c.MaxSharedBlocks <= 0:
		return bad("block limits must be > 0")
	case c.MaxHashes <= c.MaxBlocks:
		return bad("max_hashes (%d) must exceed max_blocks (%d)", c.MaxHashes, c.MaxBlocks)
	case c.MaxSharedHashes <= c.MaxSharedBlocks:
		return bad("max_shared_hashes (%d) must exceed max_shared_blocks (%d)", c.MaxSharedHashes, c.MaxSharedBlocks)
	case c.MaxLocalSegments <= 0 || c.MaxSharedSegments <= 0:
		return bad("segment limits must be > 0")
	case c.MaxShots < 0:
		return bad("max_shots must be >= 0")
	case c.ShotsPerMerge <= 0:
		return bad("shots_per_merge must be > 0")
	case c.MergesPerSegmentGC <= 0:
		return bad("merges_per_segment_gc must be > 0")
	case c.StartFromRootEveryNShots <= 0:
		return bad("start_from_root_every_n_shots must be > 0")
	case c.MaxSolutions < 0 || c.SamplePeriod < 0:
		return bad("max_solutions and sample_period must be >= 0")
	case c.SlotBudgetBytes <= 0:
		return bad("slot_budget_bytes must be > 0")
	}
	return nil
}
