package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/persistence/snapshot"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/scattershot"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqMerge}

	s.RecordMerge(scattershot.MergeEvent{Merge: 2})
	s.RecordSolution(scattershot.SolutionEvent{Block: 3})
	s.RecordCheckpoint(2, "/tmp/2.ckpt.zst", snapshot.Header{})
	s.RecordSample(scattershot.SampleEvent{})

	st := s.Stats()
	if st.DropMergeTotal != 1 {
		t.Fatalf("DropMergeTotal=%d want=1", st.DropMergeTotal)
	}
	if st.DropSolutionTotal != 1 {
		t.Fatalf("DropSolutionTotal=%d want=1", st.DropSolutionTotal)
	}
	if st.DropCheckpointTotal != 1 {
		t.Fatalf("DropCheckpointTotal=%d want=1", st.DropCheckpointTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_RunLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "runs.sqlite")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.RecordRun("run-1", 100, 4, map[string]int{"threads": 4}); err != nil {
		t.Fatalf("record run: %v", err)
	}
	for i := int64(1); i <= 3; i++ {
		s.RecordMerge(scattershot.MergeEvent{
			RunID:        "run-1",
			Merge:        i,
			SharedBlocks: int(10 * i),
			Stats:        scattershot.Stats{Shots: 5 * i, Scripts: 20 * i, Novel: i},
			Duration:     time.Millisecond,
		})
	}
	var slow, fast timeline.Diff
	slow.Set(100, timeline.Inputs{StickX: 64})
	slow.Set(101, timeline.Inputs{StickX: 64})
	fast.Set(100, timeline.Inputs{Buttons: timeline.A})
	s.RecordSolution(scattershot.SolutionEvent{RunID: "run-1", Block: 4, Fitness: -2, Bin: "04", Diff: slow})
	s.RecordSolution(scattershot.SolutionEvent{RunID: "run-1", Block: 9, Fitness: -1, Bin: "09", Diff: fast})
	s.RecordCheckpoint(3, "/data/run-1/ckpt-3.zst", snapshot.Header{RunID: "run-1", Blocks: 30, Segments: 40, Solutions: 2, CreatedAt: 1})
	s.FinishRun("run-1", scattershot.Stats{Shots: 15, Scripts: 60, Novel: 3})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Writes after close are ignored.
	s.RecordMerge(scattershot.MergeEvent{RunID: "run-1", Merge: 4})

	db, err := OpenReader(path)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	runs, err := ListRuns(ctx, db, 10)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-1" || runs[0].Threads != 4 || runs[0].StartFrame != 100 {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[0].FinishedAt == "" || runs[0].Shots != 15 || runs[0].Novel != 3 {
		t.Fatalf("run not finished: %+v", runs[0])
	}

	merges, err := RunMerges(ctx, db, "run-1", 2)
	if err != nil {
		t.Fatalf("merges: %v", err)
	}
	if len(merges) != 2 || merges[0].Merge != 3 || merges[0].SharedBlocks != 30 || merges[1].Merge != 2 {
		t.Fatalf("unexpected merges: %+v", merges)
	}

	sols, err := RunSolutions(ctx, db, "run-1", 10)
	if err != nil {
		t.Fatalf("solutions: %v", err)
	}
	if len(sols) != 2 || sols[0].Block != 9 || sols[1].Block != 4 {
		t.Fatalf("unexpected solution order: %+v", sols)
	}
	if sols[1].Frames != 2 || len(sols[1].Inputs) != 2 || sols[1].Inputs[1].Frame != 101 {
		t.Fatalf("unexpected inputs: %+v", sols[1])
	}

	cps, err := RunCheckpoints(ctx, db, "run-1")
	if err != nil {
		t.Fatalf("checkpoints: %v", err)
	}
	if len(cps) != 1 || cps[0].Path != "/data/run-1/ckpt-3.zst" || cps[0].Blocks != 30 {
		t.Fatalf("unexpected checkpoints: %+v", cps)
	}
}

func TestOpenReader_MissingFile(t *testing.T) {
	if _, err := OpenReader(filepath.Join(t.TempDir(), "nope.sqlite")); err == nil {
		t.Fatalf("expected error for missing index")
	}
}
