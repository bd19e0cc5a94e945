package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"tilegarden.ai/internal/persistence/snapshot"
	"tilegarden.ai/internal/sim/events"
)

func TestArchiveFinishedSession_CopiesSnapshot(t *testing.T) {
	dir := t.TempDir()

	src := filepath.Join(dir, "snapshots", "s1.snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	h := snapshot.Header{Version: snapshot.Version, SessionID: "s1", Placed: 12}
	res := events.Results{TotalScore: 40, Rank: 3, TotalPlaced: 12}

	archivedPath, ok, err := ArchiveFinishedSession(dir, src, h, res)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !ok {
		t.Fatalf("expected archived=true")
	}
	if got := filepath.Base(filepath.Dir(archivedPath)); got != "rank_03" {
		t.Fatalf("archive dir=%q want rank_03", got)
	}

	got, err := os.ReadFile(archivedPath)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("archived content mismatch: got=%q want=%q", string(got), string(want))
	}

	b, err := os.ReadFile(filepath.Join(filepath.Dir(archivedPath), "s1.meta.json"))
	if err != nil {
		t.Fatalf("expected meta.json to exist: %v", err)
	}
	var meta SessionArchiveMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.SessionID != "s1" || meta.TotalScore != 40 || meta.Snapshot != "s1.snap.zst" {
		t.Fatalf("meta=%+v", meta)
	}
}

func TestArchiveFinishedSession_SkipsTutorial(t *testing.T) {
	dir := t.TempDir()
	h := snapshot.Header{Version: snapshot.Version, SessionID: "s1"}

	_, ok, err := ArchiveFinishedSession(dir, filepath.Join(dir, "missing.snap.zst"), h, events.Results{Tutorial: true})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if ok {
		t.Fatalf("tutorial session archived")
	}
	if _, err := os.Stat(filepath.Join(dir, "archives")); !os.IsNotExist(err) {
		t.Fatalf("archives dir created: %v", err)
	}
}
