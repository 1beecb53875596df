package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/persistence/snapshot"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/scattershot"
)

// SQLiteIndex is a queryable secondary index over runs, merges, solutions
// and checkpoints. Writes are queued to a single writer goroutine and
// batched into transactions; the JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropMerge      atomic.Uint64
	dropSolution   atomic.Uint64
	dropCheckpoint atomic.Uint64
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqMerge
	reqSolution
	reqCheckpoint
	reqFinish
)

type req struct {
	kind reqKind

	run        runRow
	merge      scattershot.MergeEvent
	solution   scattershot.SolutionEvent
	checkpoint checkpointRow
	finish     finishRow
}

type runRow struct {
	RunID      string
	StartFrame int64
	Threads    int
	Config     string
	StartedAt  string
}

type checkpointRow struct {
	RunID     string
	Merge     int64
	Path      string
	Blocks    int
	Segments  int
	Solutions int
	CreatedAt string
}

type finishRow struct {
	RunID      string
	Stats      scattershot.Stats
	FinishedAt string
}

// QueueStats reports writer backlog and dropped requests.
type QueueStats struct {
	QueueDepth          int    `json:"queue_depth"`
	QueueCapacity       int    `json:"queue_capacity"`
	DropMergeTotal      uint64 `json:"drop_merge_total"`
	DropSolutionTotal   uint64 `json:"drop_solution_total"`
	DropCheckpointTotal uint64 `json:"drop_checkpoint_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			start_frame INTEGER NOT NULL,
			threads INTEGER NOT NULL,
			config_json TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			shots INTEGER NOT NULL DEFAULT 0,
			scripts INTEGER NOT NULL DEFAULT 0,
			novel INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS merges (
			run_id TEXT NOT NULL,
			merge INTEGER NOT NULL,
			shared_blocks INTEGER NOT NULL,
			shared_segments INTEGER NOT NULL,
			collected INTEGER NOT NULL,
			solutions INTEGER NOT NULL,
			shots INTEGER NOT NULL,
			scripts INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			redundant INTEGER NOT NULL,
			novel INTEGER NOT NULL,
			dropped INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			PRIMARY KEY (run_id, merge)
		);`,
		`CREATE TABLE IF NOT EXISTS solutions (
			run_id TEXT NOT NULL,
			block INTEGER NOT NULL,
			fitness REAL NOT NULL,
			bin TEXT NOT NULL,
			frames INTEGER NOT NULL,
			inputs_json TEXT NOT NULL,
			PRIMARY KEY (run_id, block)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_solutions_fitness ON solutions(run_id, fitness);`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT NOT NULL,
			merge INTEGER NOT NULL,
			path TEXT NOT NULL,
			blocks INTEGER NOT NULL,
			segments INTEGER NOT NULL,
			solutions INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (run_id, merge)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`)
	return err
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:          len(s.ch),
		QueueCapacity:       cap(s.ch),
		DropMergeTotal:      s.dropMerge.Load(),
		DropSolutionTotal:   s.dropSolution.Load(),
		DropCheckpointTotal: s.dropCheckpoint.Load(),
	}
}

// RecordRun registers a run. Like FinishRun it blocks rather than drop, so
// the run row always precedes its merges.
func (s *SQLiteIndex) RecordRun(runID string, startFrame int64, threads int, config any) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	if runID == "" {
		return fmt.Errorf("empty run id")
	}
	b, err := json.Marshal(config)
	if err != nil {
		return err
	}
	s.ch <- req{kind: reqRun, run: runRow{
		RunID:      runID,
		StartFrame: startFrame,
		Threads:    threads,
		Config:     string(b),
		StartedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}}
	return nil
}

// FinishRun stamps the run's final counters.
func (s *SQLiteIndex) FinishRun(runID string, st scattershot.Stats) {
	if s == nil || s.closed.Load() {
		return
	}
	s.ch <- req{kind: reqFinish, finish: finishRow{
		RunID:      runID,
		Stats:      st,
		FinishedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}}
}

func (s *SQLiteIndex) RecordMerge(e scattershot.MergeEvent) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqMerge, merge: e}:
	default:
		s.dropMerge.Add(1)
	}
}

func (s *SQLiteIndex) RecordSolution(e scattershot.SolutionEvent) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSolution, solution: e}:
	default:
		s.dropSolution.Add(1)
	}
}

// RecordSample is a no-op; samples only go to the JSONL logs.
func (s *SQLiteIndex) RecordSample(scattershot.SampleEvent) {}

func (s *SQLiteIndex) RecordCheckpoint(merge int64, path string, h snapshot.Header) {
	if s == nil || s.closed.Load() {
		return
	}
	r := checkpointRow{
		RunID:     h.RunID,
		Merge:     merge,
		Path:      path,
		Blocks:    h.Blocks,
		Segments:  h.Segments,
		Solutions: h.Solutions,
		CreatedAt: time.Unix(h.CreatedAt, 0).UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqCheckpoint, checkpoint: r}:
	default:
		s.dropCheckpoint.Add(1)
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,start_frame,threads,config_json,started_at) VALUES(?,?,?,?,?)`)
	insertMerge, _ := s.db.Prepare(`INSERT OR REPLACE INTO merges(run_id,merge,shared_blocks,shared_segments,collected,solutions,shots,scripts,failed,redundant,novel,dropped,duration_ns) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSolution, _ := s.db.Prepare(`INSERT OR REPLACE INTO solutions(run_id,block,fitness,bin,frames,inputs_json) VALUES(?,?,?,?,?,?)`)
	insertCheckpoint, _ := s.db.Prepare(`INSERT OR REPLACE INTO checkpoints(run_id,merge,path,blocks,segments,solutions,created_at) VALUES(?,?,?,?,?,?,?)`)
	updateRun, _ := s.db.Prepare(`UPDATE runs SET finished_at=?, shots=?, scripts=?, novel=? WHERE run_id=?`)
	defer func() {
		for _, st := range []*sql.Stmt{insertRun, insertMerge, insertSolution, insertCheckpoint, updateRun} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRun:
			ru := r.run
			exec(insertRun, ru.RunID, ru.StartFrame, ru.Threads, ru.Config, ru.StartedAt)
			commit()
			continue
		case reqMerge:
			m := r.merge
			exec(insertMerge,
				m.RunID, m.Merge,
				m.SharedBlocks, m.SharedSegments, m.Collected, m.Solutions,
				m.Stats.Shots, m.Stats.Scripts, m.Stats.Failed, m.Stats.Redundant, m.Stats.Novel, m.Stats.Dropped,
				int64(m.Duration),
			)
		case reqSolution:
			so := r.solution
			inputs, _ := json.Marshal(so.Diff)
			exec(insertSolution, so.RunID, so.Block, float64(so.Fitness), so.Bin, so.Diff.Len(), string(inputs))
		case reqCheckpoint:
			c := r.checkpoint
			exec(insertCheckpoint, c.RunID, c.Merge, c.Path, c.Blocks, c.Segments, c.Solutions, c.CreatedAt)
		case reqFinish:
			f := r.finish
			exec(updateRun, f.FinishedAt, f.Stats.Shots, f.Stats.Scripts, f.Stats.Novel, f.RunID)
			commit()
			continue
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
