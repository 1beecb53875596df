package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/persistence/archive"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/persistence/indexdb"
	persistlog "github.com/TylerKehne/sm64-tas-scripting-sub001/internal/persistence/log"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/persistence/snapshot"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/resource"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/scattershot"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/sim/gridwalk"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/sim/tuning"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/statebin"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/transport/observer"
)

type engine = scattershot.Engine[gridwalk.State, statebin.Bin8]

func main() {
	var (
		configPath   = flag.String("config", "./configs/gridwalk.yaml", "run config (yaml)")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		threads      = flag.Int("threads", 0, "worker count (overrides config when > 0)")
		maxShots     = flag.Int64("max_shots", -1, "shots per worker (overrides config when >= 0; 0 is unlimited)")
		runID        = flag.String("run_id", "", "run id (default: random uuid, or the checkpoint's when resuming)")
		resumePath   = flag.String("resume", "", "checkpoint to continue from (optional)")
		seedsPath    = flag.String("seeds", "", "json file of known input sequences to pipe in as root blocks (optional)")
		metricsAddr  = flag.String("metrics_addr", "", "prometheus listen address (empty to disable)")
		observerAddr = flag.String("observer_addr", "127.0.0.1:8091", "progress websocket listen address (empty to disable)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite run index")
	)
	flag.Parse()
	if err := checkResumeSeeds(*resumePath, *seedsPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := log.New(os.Stdout, "[scattershot] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(2)
	}
	if *threads > 0 {
		tune.Search.Threads = *threads
	}
	if *maxShots >= 0 {
		tune.Search.MaxShots = *maxShots
	}
	if err := tune.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	eng, err := scattershot.New[gridwalk.State, statebin.Bin8](tune.Search, tune.Domain())
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	eng.SetLogger(logger)
	if p := strings.TrimSpace(*resumePath); p != "" {
		cp, err := snapshot.ReadCheckpoint[statebin.Bin8](p)
		if err != nil {
			logger.Fatalf("read checkpoint: %v", err)
		}
		if err := eng.Restore(cp); err != nil {
			logger.Fatalf("restore checkpoint: %v", err)
		}
		logger.Printf("resumed run %s from %s (%d blocks, %d merges)", cp.Header.RunID, filepath.Base(p), cp.Header.Blocks, cp.Header.Merges)
	}
	if id := strings.TrimSpace(*runID); id != "" {
		eng.SetRunID(id)
	}
	if p := strings.TrimSpace(*seedsPath); p != "" {
		seeds, err := readSeeds(p)
		if err != nil {
			logger.Fatalf("read seeds: %v", err)
		}
		eng.SetSeeds(seeds)
		logger.Printf("piping %d seed sequences", len(seeds))
	}

	id := eng.RunID()
	runDir := filepath.Join(*dataDir, "runs", id)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Fatalf("run dir: %v", err)
	}

	events := persistlog.NewEventLog(runDir)
	sinks := scattershot.Sinks{events}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "runs.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		if err := idx.RecordRun(id, tune.Search.StartFrame, tune.Search.Threads, tune); err != nil {
			logger.Printf("index: record run: %v", err)
		}
		sinks = append(sinks, idx)
	}

	var obs *observer.Server
	if strings.TrimSpace(*observerAddr) != "" {
		obs = observer.NewServer(id, tune.Search, logger)
		sinks = append(sinks, obs)
	}
	eng.SetSink(sinks)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	// Checkpoints are handed off from the merge barrier; a busy writer drops
	// intermediate ones since the final checkpoint is always written.
	ckpt := &checkpointer{logger: logger, idx: idx, runDir: runDir}
	ckptCh := make(chan snapshot.CheckpointV1[statebin.Bin8], 1)
	if tune.CheckpointEveryMerges > 0 {
		eng.SetCheckpointHook(int64(tune.CheckpointEveryMerges), func(cp snapshot.CheckpointV1[statebin.Bin8]) {
			select {
			case ckptCh <- cp:
			default:
				logger.Printf("checkpoint writer busy; skipped merge %d", cp.Header.Merges)
			}
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case cp := <-ckptCh:
				ckpt.write(cp)
			}
		}
	})

	muxes := map[string]*http.ServeMux{}
	muxFor := func(addr string) *http.ServeMux {
		if m, ok := muxes[addr]; ok {
			return m
		}
		m := http.NewServeMux()
		m.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(200)
			_, _ = rw.Write([]byte("ok"))
		})
		muxes[addr] = m
		return m
	}
	if addr := strings.TrimSpace(*metricsAddr); addr != "" {
		muxFor(addr).Handle("/metrics", promhttp.Handler())
	}
	if obs != nil {
		m := muxFor(strings.TrimSpace(*observerAddr))
		m.HandleFunc("/v1/progress", obs.WSHandler())
		m.HandleFunc("/v1/status", obs.StatusHandler())
	}
	for addr, mux := range muxes {
		addr := addr
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			logger.Printf("listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http %s: %w", addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer cancelRun()
		return eng.Run(gctx, func(int) (resource.Sim[gridwalk.State], error) {
			return gridwalk.New(tune.Terrain), nil
		})
	})
	runErr := g.Wait()
	if obs != nil {
		obs.Close()
	}

	ckpt.write(eng.Export())
	report(logger, eng)

	if idx != nil {
		idx.FinishRun(id, eng.Stats())
		if err := idx.Close(); err != nil {
			logger.Printf("index close: %v", err)
		}
	}
	if err := events.Close(); err != nil {
		logger.Printf("event log: %v", err)
	}
	if runErr != nil {
		logger.Fatalf("run: %v", runErr)
	}
}

// checkpointer writes checkpoints and archives those that bring new
// solutions. Calls must not overlap.
type checkpointer struct {
	logger   *log.Logger
	idx      *indexdb.SQLiteIndex
	runDir   string
	archived int
}

func (c *checkpointer) write(cp snapshot.CheckpointV1[statebin.Bin8]) {
	path := filepath.Join(c.runDir, "checkpoints", fmt.Sprintf("%d.ckpt.zst", cp.Header.Merges))
	if err := snapshot.WriteCheckpoint(path, cp); err != nil {
		c.logger.Printf("checkpoint write: %v", err)
		return
	}
	if c.idx != nil {
		c.idx.RecordCheckpoint(cp.Header.Merges, path, cp.Header)
	}
	dst, ok, err := archive.ArchiveSolutionCheckpoint(c.runDir, path, cp.Header, c.archived)
	if err != nil {
		c.logger.Printf("archive checkpoint: %v", err)
		return
	}
	if ok {
		c.archived = cp.Header.Solutions
		c.logger.Printf("archived %d solutions to %s", cp.Header.Solutions, dst)
	}
}

func report(logger *log.Logger, eng *engine) {
	sols := eng.Solutions()
	if len(sols) == 0 {
		logger.Printf("no solutions")
		return
	}
	for _, s := range sols {
		first, _ := s.Diff.First()
		last, _ := s.Diff.Last()
		logger.Printf("solution block=%d fitness=%.3f bin=%s frames=%d..%d", s.Block, s.Fitness, s.Bin, first, last)
	}
}

// checkResumeSeeds rejects -seeds on a resumed run: restored piped root
// segments index the checkpoint's seed list.
func checkResumeSeeds(resumePath, seedsPath string) error {
	if strings.TrimSpace(resumePath) != "" && strings.TrimSpace(seedsPath) != "" {
		return fmt.Errorf("-seeds cannot be combined with -resume; the checkpoint already carries its seeds")
	}
	return nil
}

func readSeeds(path string) ([]timeline.Diff, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seqs [][]timeline.Entry
	if err := json.Unmarshal(raw, &seqs); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := make([]timeline.Diff, 0, len(seqs))
	for _, s := range seqs {
		out = append(out, timeline.FromEntries(s))
	}
	return out, nil
}
