package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/persistence/snapshot"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/scattershot"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/sim/gridwalk"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/sim/tuning"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/statebin"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

func main() {
	var (
		ckptPath   = flag.String("checkpoint", "", "path to .ckpt.zst")
		configPath = flag.String("config", "./configs/gridwalk.yaml", "run config the checkpoint was produced with")
		block      = flag.Int("block", -1, "replay a single block and print its inputs (default: verify all blocks)")
		outPath    = flag.String("out", "", "write solution (or -block) inputs as a seeds file (optional)")
		eventsDir  = flag.String("events", "", "merges dir containing merges-*.jsonl.zst to summarize (optional)")
		budget     = flag.Int64("budget", 64<<20, "slot budget in bytes for replay")
	)
	flag.Parse()

	if *ckptPath == "" {
		fmt.Fprintln(os.Stderr, "missing -checkpoint")
		os.Exit(2)
	}

	cp, err := snapshot.ReadCheckpoint[statebin.Bin8](*ckptPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read checkpoint:", err)
		os.Exit(1)
	}
	fmt.Printf("checkpoint v%d run=%s start_frame=%d merges=%d blocks=%d segments=%d solutions=%d\n",
		cp.Header.Version, cp.Header.RunID, cp.Header.StartFrame, cp.Header.Merges,
		len(cp.Blocks), len(cp.Segments), len(cp.Solutions))

	tune, err := tuning.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	domain := tune.Domain()
	sim := gridwalk.New(tune.Terrain)

	var seqs [][]timeline.Entry
	if *block >= 0 {
		inputs, err := scattershot.BlockInputs[gridwalk.State, statebin.Bin8](cp, domain, sim, *budget, int32(*block))
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay block:", err)
			os.Exit(1)
		}
		fmt.Printf("block %d: %d input frames\n", *block, inputs.Len())
		inputs.Range(func(frame int64, in timeline.Inputs) bool {
			fmt.Printf("  %d %s\n", frame, in)
			return true
		})
		seqs = append(seqs, inputs.Entries())
	} else {
		rep, err := scattershot.Verify[gridwalk.State, statebin.Bin8](cp, domain, sim, *budget)
		if err != nil {
			fmt.Fprintln(os.Stderr, "verify:", err)
			os.Exit(1)
		}
		for _, m := range rep.Mismatches {
			fmt.Printf("mismatch block=%d want=%s got=%s\n", m.Block, m.Want, m.Got)
		}
		if len(rep.Mismatches) > 0 {
			fmt.Fprintf(os.Stderr, "verify failed: %d of %d blocks desynced\n", len(rep.Mismatches), rep.Checked)
			os.Exit(1)
		}
		fmt.Printf("verify ok: checked=%d blocks\n", rep.Checked)
		for _, s := range cp.Solutions {
			seqs = append(seqs, s.Inputs)
		}
	}

	if *outPath != "" {
		if err := writeSeeds(*outPath, seqs); err != nil {
			fmt.Fprintln(os.Stderr, "write seeds:", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %d sequences to %s\n", len(seqs), *outPath)
	}

	if *eventsDir != "" {
		if err := summarizeMerges(*eventsDir); err != nil {
			fmt.Fprintln(os.Stderr, "events:", err)
			os.Exit(1)
		}
	}
}

func writeSeeds(path string, seqs [][]timeline.Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(seqs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func listEventFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "merges-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func summarizeMerges(dir string) error {
	files, err := listEventFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no merge logs found in %s", dir)
	}
	var (
		n    int
		last scattershot.MergeEvent
	)
	for _, path := range files {
		if err := readMerges(path, func(e scattershot.MergeEvent) {
			if n > 0 && e.Merge <= last.Merge {
				fmt.Printf("warning: merge %d logged after %d\n", e.Merge, last.Merge)
			}
			n++
			last = e
		}); err != nil {
			return err
		}
	}
	f, r, d := last.Stats.Percent()
	fmt.Printf("merges logged=%d last=%d blocks=%d segments=%d solutions=%d shots=%d futility=%.1f%% redundancy=%.1f%% discovery=%.1f%%\n",
		n, last.Merge, last.SharedBlocks, last.SharedSegments, last.Solutions, last.Stats.Shots, f, r, d)
	return nil
}

func readMerges(path string, fn func(scattershot.MergeEvent)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e scattershot.MergeEvent
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		fn(e)
	}
	return sc.Err()
}
