package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

type RunRow struct {
	RunID      string `json:"run_id"`
	StartFrame int64  `json:"start_frame"`
	Threads    int    `json:"threads"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Shots      int64  `json:"shots"`
	Scripts    int64  `json:"scripts"`
	Novel      int64  `json:"novel"`
	Config     string `json:"config,omitempty"`
}

type MergeRow struct {
	Merge          int64 `json:"merge"`
	SharedBlocks   int   `json:"shared_blocks"`
	SharedSegments int   `json:"shared_segments"`
	Collected      int   `json:"collected"`
	Solutions      int   `json:"solutions"`
	Shots          int64 `json:"shots"`
	Scripts        int64 `json:"scripts"`
	Novel          int64 `json:"novel"`
	DurationNS     int64 `json:"duration_ns"`
}

type SolutionRow struct {
	Block   int32            `json:"block"`
	Fitness float64          `json:"fitness"`
	Bin     string           `json:"bin"`
	Frames  int              `json:"frames"`
	Inputs  []timeline.Entry `json:"inputs"`
}

type CheckpointRow struct {
	Merge     int64  `json:"merge"`
	Path      string `json:"path"`
	Blocks    int    `json:"blocks"`
	Segments  int    `json:"segments"`
	Solutions int    `json:"solutions"`
	CreatedAt string `json:"created_at"`
}

// OpenReader opens an existing index for queries.
func OpenReader(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ListRuns(ctx context.Context, db *sql.DB, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `SELECT run_id,start_frame,threads,started_at,COALESCE(finished_at,''),shots,scripts,novel,config_json FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.RunID, &r.StartFrame, &r.Threads, &r.StartedAt, &r.FinishedAt, &r.Shots, &r.Scripts, &r.Novel, &r.Config); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunMerges returns the latest merges of a run, newest first.
func RunMerges(ctx context.Context, db *sql.DB, runID string, limit int) ([]MergeRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `SELECT merge,shared_blocks,shared_segments,collected,solutions,shots,scripts,novel,duration_ns FROM merges WHERE run_id=? ORDER BY merge DESC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MergeRow
	for rows.Next() {
		var r MergeRow
		if err := rows.Scan(&r.Merge, &r.SharedBlocks, &r.SharedSegments, &r.Collected, &r.Solutions, &r.Shots, &r.Scripts, &r.Novel, &r.DurationNS); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunSolutions returns a run's solutions, fittest first.
func RunSolutions(ctx context.Context, db *sql.DB, runID string, limit int) ([]SolutionRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `SELECT block,fitness,bin,frames,inputs_json FROM solutions WHERE run_id=? ORDER BY fitness DESC, block ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SolutionRow
	for rows.Next() {
		var (
			r   SolutionRow
			raw string
		)
		if err := rows.Scan(&r.Block, &r.Fitness, &r.Bin, &r.Frames, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &r.Inputs); err != nil {
			return nil, fmt.Errorf("solution %d inputs: %w", r.Block, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func RunCheckpoints(ctx context.Context, db *sql.DB, runID string) ([]CheckpointRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT merge,path,blocks,segments,solutions,created_at FROM checkpoints WHERE run_id=? ORDER BY merge DESC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CheckpointRow
	for rows.Next() {
		var r CheckpointRow
		if err := rows.Scan(&r.Merge, &r.Path, &r.Blocks, &r.Segments, &r.Solutions, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
