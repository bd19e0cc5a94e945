package snapshot

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Version is written in the file header line.
const Version = 1

// ErrCorrupt wraps every decode and schema failure.
var ErrCorrupt = errors.New("corrupt snapshot")

//go:embed snapshot.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("snapshot.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

type Header struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id,omitempty"`
	Placed    int    `json:"placed"`
}

// SnapshotV1 is the persisted form of a session. Positions are [x, y].
type SnapshotV1 struct {
	HandTile     int   `json:"hand_tile"`
	HandRotation int   `json:"hand_rotation"`
	WaitingTiles []int `json:"waiting_tiles"`

	// Grid is owned by the grid engine's own serialization.
	Grid json.RawMessage `json:"grid"`

	RemainingTime float64 `json:"remaining_time"`

	CompletedForests [][][2]int `json:"completed_forests"`
	DeepForest       []int      `json:"deep_forest"`
	CompletedPaths   [][][2]int `json:"completed_paths"`
	CompletedChurch  [][2]int   `json:"completed_church"`

	RotationCount int  `json:"rotation_count"`
	MoveCount     int  `json:"move_count"`
	TutorialFlag  bool `json:"tutorial_flag"`
}

func Encode(snap SnapshotV1) ([]byte, error) {
	return json.Marshal(snap)
}

// Decode validates b against the snapshot schema before decoding, so missing
// fields and wrong types are reported as ErrCorrupt rather than zero values.
func Decode(b []byte) (SnapshotV1, error) {
	var snap SnapshotV1
	s, err := compiledSchema()
	if err != nil {
		return snap, fmt.Errorf("compile schema: %w", err)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return snap, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := s.Validate(doc); err != nil {
		return snap, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return snap, nil
}

// WriteFile stores a JSON header line followed by the encoded snapshot, all
// zstd compressed.
func WriteFile(path string, h Header, snap SnapshotV1) error {
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

	bw := bufio.NewWriterSize(enc, 64*1024)
	if h.Version == 0 {
		h.Version = Version
	}
	hb, _ := json.Marshal(h)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	body, err := Encode(snap)
	if err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if _, err := bw.Write(body); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadFile(path string) (Header, SnapshotV1, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, SnapshotV1{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, SnapshotV1{}, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, SnapshotV1{}, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, SnapshotV1{}, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if h.Version != Version {
		return h, SnapshotV1{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.Version)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return h, SnapshotV1{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	snap, err := Decode(body)
	return h, snap, err
}
