package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"tilegarden.ai/internal/persistence/snapshot"
	"tilegarden.ai/internal/sim/events"
)

type SessionArchiveMeta struct {
	SessionID   string `json:"session_id"`
	Rank        int    `json:"rank"`
	TotalScore  int    `json:"total_score"`
	TotalPlaced int    `json:"total_placed"`
	Perfect     bool   `json:"perfect"`
	Snapshot    string `json:"snapshot"`
	CreatedAt   string `json:"created_at"`
}

// ArchiveFinishedSession copies the final snapshot of a scored session into
// `dataDir/archives/rank_<NN>/` next to a `<id>.meta.json`.
// Tutorial sessions are not archived and return archived=false.
func ArchiveFinishedSession(dataDir, snapshotPath string, h snapshot.Header, res events.Results) (archivedPath string, archived bool, err error) {
	if res.Tutorial {
		return "", false, nil
	}
	if h.SessionID == "" {
		return "", false, fmt.Errorf("archive: missing session id")
	}

	archiveDir := filepath.Join(dataDir, "archives", fmt.Sprintf("rank_%02d", res.Rank))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := SessionArchiveMeta{
		SessionID:   h.SessionID,
		Rank:        res.Rank,
		TotalScore:  res.TotalScore,
		TotalPlaced: res.TotalPlaced,
		Perfect:     res.Perfect,
		Snapshot:    filepath.Base(dst),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, h.SessionID+".meta.json"), b, 0o644)
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
