package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"tilegarden.ai/internal/persistence/snapshot"
	"tilegarden.ai/internal/sim/catalogs"
	"tilegarden.ai/internal/sim/events"
	"tilegarden.ai/internal/sim/tuning"
)

// SQLiteIndex is a secondary, queryable index of finished sessions and saved
// snapshots. Writes go through a buffered channel to one writer goroutine and
// are dropped when it falls behind; the snapshot files stay authoritative.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropResult   atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqResult reqKind = iota + 1
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	result   resultRow
	snapshot snapshotRow
	done     chan struct{}
}

type resultRow struct {
	SessionID  string
	FinishedAt string
	Finished   events.SessionFinished
}

type snapshotRow struct {
	SessionID     string
	Path          string
	Placed        int
	Waiting       int
	RemainingTime float64
	Tutorial      bool
	RecordedAt    string
}

// Result is one row of the results table.
type Result struct {
	SessionID   string
	FinishedAt  time.Time
	TotalScore  int
	Rank        int
	TotalPlaced int
	Perfect     bool
	Tutorial    bool
	MaxForest   int
	MaxPath     int
}

type Stats struct {
	DropResultTotal   uint64
	DropSnapshotTotal uint64
	QueueDepth        int
	QueueCapacity     int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			session_id TEXT PRIMARY KEY,
			finished_at TEXT NOT NULL,
			total_score INTEGER NOT NULL,
			rank INTEGER NOT NULL,
			total_placed INTEGER NOT NULL,
			perfect INTEGER NOT NULL,
			tutorial INTEGER NOT NULL,
			rotation_count INTEGER NOT NULL,
			move_count INTEGER NOT NULL,
			max_forest INTEGER NOT NULL,
			max_path INTEGER NOT NULL,
			counters_json TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_results_score ON results(tutorial, total_score DESC);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			session_id TEXT NOT NULL,
			path TEXT NOT NULL,
			placed INTEGER NOT NULL,
			waiting INTEGER NOT NULL,
			remaining_time REAL NOT NULL,
			tutorial INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (session_id, path)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropResultTotal:   s.dropResult.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
	}
}

// RecordResult queues the final results of a session.
func (s *SQLiteIndex) RecordResult(sessionID string, fin events.SessionFinished) {
	if s == nil || s.closed.Load() || sessionID == "" {
		return
	}
	r := resultRow{
		SessionID:  sessionID,
		FinishedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Finished:   fin,
	}
	select {
	case s.ch <- req{kind: reqResult, result: r}:
	default:
		s.dropResult.Add(1)
	}
}

// RecordSnapshot queues a row describing a snapshot file written at path.
func (s *SQLiteIndex) RecordSnapshot(sessionID, path string, h snapshot.Header, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() || path == "" {
		return
	}
	r := snapshotRow{
		SessionID:     sessionID,
		Path:          path,
		Placed:        h.Placed,
		Waiting:       len(snap.WaitingTiles),
		RemainingTime: snap.RemainingTime,
		Tutorial:      snap.TutorialFlag,
		RecordedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Sink returns an events.Sink that records SessionFinished for sessionID and
// ignores everything else.
func (s *SQLiteIndex) Sink(sessionID string) events.Sink {
	return events.SinkFunc(func(ev events.Event) {
		if fin, ok := ev.(events.SessionFinished); ok {
			s.RecordResult(sessionID, fin)
		}
	})
}

// Flush waits until everything queued so far is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TopResults lists the best non-tutorial sessions, highest score first.
func (s *SQLiteIndex) TopResults(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `SELECT session_id,finished_at,total_score,rank,total_placed,perfect,tutorial,max_forest,max_path
		FROM results WHERE tutorial=0 ORDER BY total_score DESC, finished_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var (
			r        Result
			finished string
		)
		if err := rows.Scan(&r.SessionID, &finished, &r.TotalScore, &r.Rank, &r.TotalPlaced, &r.Perfect, &r.Tutorial, &r.MaxForest, &r.MaxPath); err != nil {
			return nil, err
		}
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SnapshotPaths lists snapshot files recorded for sessionID, oldest first.
func (s *SQLiteIndex) SnapshotPaths(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM snapshots WHERE session_id=? ORDER BY recorded_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertCatalogs stores the panel catalog and the applied tuning.
func (s *SQLiteIndex) UpsertCatalogs(panels *catalogs.Panels, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b, _ := json.Marshal(panels.ByID); len(b) > 0 {
		rows = append(rows, kv{name: "panels", digest: panels.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertResult, _ := s.db.Prepare(`INSERT OR REPLACE INTO results(session_id,finished_at,total_score,rank,total_placed,perfect,tutorial,rotation_count,move_count,max_forest,max_path,counters_json,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(session_id,path,placed,waiting,remaining_time,tutorial,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertResult != nil {
			_ = insertResult.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqResult:
			fin := r.result.Finished
			counters, _ := json.Marshal(fin.Counters)
			raw, _ := json.Marshal(fin)
			if insertResult != nil {
				if _, err := tx.Stmt(insertResult).Exec(
					r.result.SessionID,
					r.result.FinishedAt,
					fin.TotalScore,
					fin.Rank,
					fin.TotalPlaced,
					fin.Perfect,
					fin.Tutorial,
					fin.RotationCount,
					fin.MoveCount,
					fin.MaxForest,
					fin.MaxPath,
					string(counters),
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					sn.SessionID,
					sn.Path,
					sn.Placed,
					sn.Waiting,
					sn.RemainingTime,
					sn.Tutorial,
					sn.RecordedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
