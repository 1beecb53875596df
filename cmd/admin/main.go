package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "status":
			statusCmd(os.Args[2:])
			return
		case "checkpoint":
			checkpointCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "runs"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

func checkpointCmd(args []string) {
	fs := flag.NewFlagSet("checkpoint", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id (required unless -path)")
	path := fs.String("path", "", "checkpoint path (optional; defaults to the run's latest)")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" {
		if strings.TrimSpace(*runID) == "" {
			fmt.Fprintln(os.Stderr, "missing -run or -path")
			os.Exit(2)
		}
		p = latestCheckpoint(filepath.Join(*dataDir, "runs", *runID))
		if p == "" {
			fmt.Fprintln(os.Stderr, "no checkpoints found")
			os.Exit(2)
		}
	}
	h, err := snapshot.ReadHeader(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read header:", err)
		os.Exit(1)
	}
	out := struct {
		Path   string          `json:"path"`
		Header snapshot.Header `json:"header"`
	}{p, h}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

// latestCheckpoint returns the checkpoint with the highest merge number.
func latestCheckpoint(runDir string) string {
	dir := filepath.Join(runDir, "checkpoints")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	type ck struct {
		merge int64
		name  string
	}
	var cks []ck
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".ckpt.zst") {
			continue
		}
		m, err := strconv.ParseInt(strings.TrimSuffix(name, ".ckpt.zst"), 10, 64)
		if err != nil {
			continue
		}
		cks = append(cks, ck{merge: m, name: name})
	}
	if len(cks) == 0 {
		return ""
	}
	sort.Slice(cks, func(i, j int) bool { return cks[i].merge < cks[j].merge })
	return filepath.Join(dir, cks[len(cks)-1].name)
}
