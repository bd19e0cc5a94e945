package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"tilegarden.ai/internal/persistence/snapshot"
	"tilegarden.ai/internal/sim/catalogs"
	"tilegarden.ai/internal/sim/events"
	"tilegarden.ai/internal/sim/tuning"
)

func finished(score int, tutorial bool) events.SessionFinished {
	return events.SessionFinished{
		Results:   events.Results{TotalScore: score, Rank: 1, TotalPlaced: 10, Tutorial: tutorial},
		MaxPath:   3,
		MaxForest: 4,
	}
}

func TestSQLiteIndex_TopResults(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	idx.RecordResult("low", finished(10, false))
	idx.Sink("high").Emit(finished(90, false))
	idx.Sink("ignored").Emit(events.ScoresUpdated{})
	idx.RecordResult("tut", finished(500, true))
	idx.RecordResult("mid", finished(40, false))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := idx.TopResults(ctx, 2)
	if err != nil {
		t.Fatalf("TopResults: %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "high" || got[1].SessionID != "mid" {
		t.Fatalf("top results: %+v", got)
	}
	if got[0].TotalScore != 90 || got[0].MaxForest != 4 || got[0].Tutorial {
		t.Fatalf("row mismatch: %+v", got[0])
	}
	if got[0].FinishedAt.IsZero() {
		t.Fatalf("finished_at not parsed")
	}
}

func TestSQLiteIndex_RecordSnapshotAndCatalogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.UpsertCatalogs(catalogs.Builtin(), tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	snap := snapshot.SnapshotV1{WaitingTiles: []int{1, 2, 3}, RemainingTime: 12.5}
	idx.RecordSnapshot("s1", "/data/s1.snap.zst", snapshot.Header{Placed: 7}, snap)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		placed, waiting int
		remaining       float64
	)
	row := db.QueryRow(`SELECT placed,waiting,remaining_time FROM snapshots WHERE session_id='s1'`)
	if err := row.Scan(&placed, &waiting, &remaining); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if placed != 7 || waiting != 3 || remaining != 12.5 {
		t.Fatalf("row mismatch: placed=%d waiting=%d remaining=%v", placed, waiting, remaining)
	}

	var digest string
	if err := db.QueryRow(`SELECT digest FROM catalogs WHERE name='panels'`).Scan(&digest); err != nil {
		t.Fatalf("Scan catalogs: %v", err)
	}
	if digest != catalogs.Builtin().Digest {
		t.Fatalf("digest=%q", digest)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqResult}

	s.RecordResult("a", events.SessionFinished{})
	s.RecordSnapshot("a", "/tmp/a.snap.zst", snapshot.Header{}, snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropResultTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drops: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
