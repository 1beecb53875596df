package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

func TestCheckpoint_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt", "run.ckpt.zst")
	cp := CheckpointV1[[8]byte]{
		Header: Header{Version: Version, RunID: "r1", StartFrame: 3, Blocks: 2, Segments: 2, Solutions: 1},
		Config: []byte(`{"threads":2}`),
		Blocks: []BlockV1[[8]byte]{
			{Fitness: 0, Bin: [8]byte{1}, Tail: 0},
			{Fitness: 2.5, Bin: [8]byte{2}, Tail: 1, Solution: true},
		},
		Segments: []SegmentV1{
			{Parent: -1, Seed: 7, Depth: 1},
			{Parent: 0, Seed: 9, Scripts: 3, Depth: 2},
		},
		Solutions: []SolutionV1{{Block: 1, Fitness: 2.5, Inputs: []timeline.Entry{{Frame: 3, Inputs: timeline.Inputs{StickX: 64}}}}},
	}
	if err := WriteCheckpoint(path, cp); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.RunID != "r1" || h.Blocks != 2 || h.StartFrame != 3 {
		t.Fatalf("header mismatch: %+v", h)
	}

	got, err := ReadCheckpoint[[8]byte](path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Blocks) != 2 || got.Blocks[1].Bin != [8]byte{2} || !got.Blocks[1].Solution {
		t.Fatalf("blocks mismatch: %+v", got.Blocks)
	}
	if got.Segments[1].Parent != 0 || got.Segments[1].Scripts != 3 {
		t.Fatalf("segments mismatch: %+v", got.Segments)
	}
	if len(got.Solutions) != 1 || got.Solutions[0].Inputs[0].Inputs.StickX != 64 {
		t.Fatalf("solutions mismatch: %+v", got.Solutions)
	}
	if string(got.Config) != `{"threads":2}` {
		t.Fatalf("config mismatch: %s", got.Config)
	}
}

func TestCheckpoint_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v9.ckpt.zst")
	if err := WriteCheckpoint(path, CheckpointV1[[8]byte]{Header: Header{Version: 9}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadCheckpoint[[8]byte](path); err == nil {
		t.Fatalf("expected version error")
	}
}
