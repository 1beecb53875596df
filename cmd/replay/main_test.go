package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

func TestWriteSeeds_CreatesDirAndWritesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "seeds.json")
	seqs := [][]timeline.Entry{
		{{Frame: 3, Inputs: timeline.Inputs{Buttons: timeline.A, StickX: 10}}},
		{},
	}
	if err := writeSeeds(path, seqs); err != nil {
		t.Fatalf("writeSeeds: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got [][]timeline.Entry
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 || len(got[0]) != 1 || got[0][0].Frame != 3 || got[0][0].Inputs.StickX != 10 {
		t.Fatalf("got %+v", got)
	}
}

func TestListEventFiles_OnlyMergeLogsSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"merges-2026-01-02T03.jsonl.zst", "solutions-2026-01-02T03.jsonl.zst", "merges-2026-01-02T01.jsonl.zst"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	files, err := listEventFiles(dir)
	if err != nil {
		t.Fatalf("listEventFiles: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "merges-2026-01-02T01.jsonl.zst" {
		t.Fatalf("files=%v", files)
	}
}
