package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

const Version = 1

// Header is written as a plain JSON line ahead of the gob body so tools can
// describe a checkpoint without decoding it.
type Header struct {
	Version    int    `json:"version"`
	RunID      string `json:"run_id"`
	StartFrame int64  `json:"start_frame"`
	Merges     int64  `json:"merges"`
	Blocks     int    `json:"blocks"`
	Segments   int    `json:"segments"`
	Solutions  int    `json:"solutions"`
	CreatedAt  int64  `json:"created_at_unix"`
}

// CheckpointV1 is the shared search state. Segment parents and block tails
// are indices into Segments; -1 is none.
type CheckpointV1[B any] struct {
	Header Header `json:"header"`

	// Config is the engine config as JSON.
	Config []byte `json:"config"`

	Blocks    []BlockV1[B]       `json:"blocks"`
	Segments  []SegmentV1        `json:"segments"`
	Solutions []SolutionV1       `json:"solutions,omitempty"`
	Original  []timeline.Entry   `json:"original,omitempty"`
	Seeds     [][]timeline.Entry `json:"seeds,omitempty"`
}

type BlockV1[B any] struct {
	Fitness  float32 `json:"fitness"`
	Bin      B       `json:"bin"`
	Tail     int32   `json:"tail"`
	Solution bool    `json:"solution,omitempty"`
}

type SegmentV1 struct {
	Parent  int32  `json:"parent"`
	Seed    uint64 `json:"seed"`
	Scripts uint8  `json:"scripts"`
	Depth   uint32 `json:"depth"`
	Piped   uint16 `json:"piped,omitempty"`
}

type SolutionV1 struct {
	Block   int32            `json:"block"`
	Fitness float32          `json:"fitness"`
	Inputs  []timeline.Entry `json:"inputs"`
}

func WriteCheckpoint[B any](path string, cp CheckpointV1[B]) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(cp.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&cp); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadCheckpoint[B any](path string) (CheckpointV1[B], error) {
	var cp CheckpointV1[B]
	f, err := os.Open(path)
	if err != nil {
		return cp, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return cp, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line; gob carries its own copy.
	if _, err := br.ReadBytes('\n'); err != nil {
		return cp, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&cp); err != nil {
		return cp, fmt.Errorf("gob decode: %w", err)
	}
	if cp.Header.Version != Version {
		return cp, fmt.Errorf("unsupported checkpoint version %d", cp.Header.Version)
	}
	return cp, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
