package tuning

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_RepoConfig(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "gridwalk.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.Search.Threads != 4 || tu.Search.MaxSolutions != 8 || tu.Search.SamplePeriod != 64 {
		t.Fatalf("unexpected search config: %+v", tu.Search)
	}
	if tu.Terrain.GoalX != 45 || tu.MaxFrames != 600 {
		t.Fatalf("unexpected domain config: %+v", tu)
	}
	d := tu.Domain()
	if d.Terrain != tu.Terrain || d.MaxFrames != 600 {
		t.Fatalf("domain mismatch: %+v", d)
	}
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	tu, err := Parse([]byte("search:\n  threads: 2\nmax_frames: 90\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	def := Defaults()
	if tu.Search.Threads != 2 || tu.MaxFrames != 90 {
		t.Fatalf("overrides not applied: %+v", tu)
	}
	if tu.Search.ShotsPerMerge != def.Search.ShotsPerMerge || tu.Terrain != def.Terrain {
		t.Fatalf("defaults lost: %+v", tu)
	}
}

func TestParse_Empty(t *testing.T) {
	tu, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tu != Defaults() {
		t.Fatalf("empty document should yield defaults")
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "search:\n  thread: 2\n", "schema"},
		{"wrong type", "max_frames: soon\n", "schema"},
		{"schema range", "search:\n  segment_length: 300\n", "schema"},
		{"hash capacity", "search:\n  max_blocks: 100\n  max_hashes: 100\n", "max_hashes"},
		{"goal on border", "terrain:\n  goal_x: 47\n", "goal"},
		{"too crowded", "terrain:\n  wall_permille: 700\n  pit_permille: 400\n", "permille"},
		{"bad yaml", "search: [\n", "yaml"},
	}
	for _, tc := range cases {
		_, err := Parse([]byte(tc.doc))
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}
