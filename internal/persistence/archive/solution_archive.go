package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/persistence/snapshot"
)

type SolutionArchiveMeta struct {
	RunID      string `json:"run_id"`
	Merges     int64  `json:"merges"`
	Solutions  int    `json:"solutions"`
	Blocks     int    `json:"blocks"`
	StartFrame int64  `json:"start_frame"`
	Checkpoint string `json:"checkpoint"`
	CreatedAt  string `json:"created_at"`
}

// ArchiveSolutionCheckpoint copies a checkpoint into
// `runDir/archives/solutions_<NNN>/` when it holds more solutions than seen
// (prevSolutions). Periodic checkpoints may be pruned; archived ones are kept.
func ArchiveSolutionCheckpoint(runDir, checkpointPath string, h snapshot.Header, prevSolutions int) (archivedPath string, archived bool, err error) {
	if h.Solutions <= prevSolutions || h.Solutions <= 0 {
		return "", false, nil
	}

	archiveDir := filepath.Join(runDir, "archives", fmt.Sprintf("solutions_%03d", h.Solutions))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(checkpointPath))
	if err := copyFile(checkpointPath, dst); err != nil {
		return "", false, err
	}

	meta := SolutionArchiveMeta{
		RunID:      h.RunID,
		Merges:     h.Merges,
		Solutions:  h.Solutions,
		Blocks:     h.Blocks,
		StartFrame: h.StartFrame,
		Checkpoint: filepath.Base(dst),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
