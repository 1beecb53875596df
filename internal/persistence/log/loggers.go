package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/scattershot"
)

// JSONLZstdWriter appends one JSON document per line to hourly zstd files
// named <prefix>-YYYY-MM-DD-HH.jsonl.zst.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// MergeLogger writes one entry per merge.
type MergeLogger struct{ w *JSONLZstdWriter }

func NewMergeLogger(runDir string) *MergeLogger {
	return &MergeLogger{w: NewJSONLZstdWriter(filepath.Join(runDir, "merges"), "merges")}
}

func (l *MergeLogger) WriteMerge(v scattershot.MergeEvent) error { return l.w.Write(v) }
func (l *MergeLogger) Close() error                              { return l.w.Close() }

// SolutionLogger writes solutions with their inputs.
type SolutionLogger struct{ w *JSONLZstdWriter }

func NewSolutionLogger(runDir string) *SolutionLogger {
	return &SolutionLogger{w: NewJSONLZstdWriter(filepath.Join(runDir, "solutions"), "solutions")}
}

func (l *SolutionLogger) WriteSolution(v scattershot.SolutionEvent) error { return l.w.Write(v) }
func (l *SolutionLogger) Close() error                                    { return l.w.Close() }

// SampleLogger writes sampled blocks.
type SampleLogger struct{ w *JSONLZstdWriter }

func NewSampleLogger(runDir string) *SampleLogger {
	return &SampleLogger{w: NewJSONLZstdWriter(filepath.Join(runDir, "samples"), "samples")}
}

func (l *SampleLogger) WriteSample(v scattershot.SampleEvent) error { return l.w.Write(v) }
func (l *SampleLogger) Close() error                                { return l.w.Close() }

// EventLog is a scattershot.Sink over the three loggers. Write errors are
// kept until Close since sinks cannot fail a merge.
type EventLog struct {
	merges    *MergeLogger
	solutions *SolutionLogger
	samples   *SampleLogger

	mu  sync.Mutex
	err error
}

func NewEventLog(runDir string) *EventLog {
	return &EventLog{
		merges:    NewMergeLogger(runDir),
		solutions: NewSolutionLogger(runDir),
		samples:   NewSampleLogger(runDir),
	}
}

func (l *EventLog) keep(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.mu.Unlock()
}

func (l *EventLog) RecordMerge(e scattershot.MergeEvent)       { l.keep(l.merges.WriteMerge(e)) }
func (l *EventLog) RecordSolution(e scattershot.SolutionEvent) { l.keep(l.solutions.WriteSolution(e)) }
func (l *EventLog) RecordSample(e scattershot.SampleEvent)     { l.keep(l.samples.WriteSample(e)) }

func (l *EventLog) Close() error {
	l.keep(l.merges.Close())
	l.keep(l.solutions.Close())
	l.keep(l.samples.Close())
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
