package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/runs.sqlite)")
	runID := fs.String("run", "", "run id (defaults to the latest run)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "runs.sqlite")
	}
	db, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()
	ctx := context.Background()

	if q != "runs" && strings.TrimSpace(*runID) == "" {
		runs, err := indexdb.ListRuns(ctx, db, 1)
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest run:", err)
			os.Exit(1)
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "no runs found")
			os.Exit(2)
		}
		*runID = runs[0].RunID
	}

	var out any
	switch q {
	case "runs":
		out, err = indexdb.ListRuns(ctx, db, *limit)
	case "merges":
		out, err = indexdb.RunMerges(ctx, db, *runID, *limit)
	case "solutions":
		out, err = indexdb.RunSolutions(ctx, db, *runID, *limit)
	case "checkpoints":
		out, err = indexdb.RunCheckpoints(ctx, db, *runID)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want runs|merges|solutions|checkpoints)")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
