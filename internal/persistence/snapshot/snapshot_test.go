package snapshot

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func sample() SnapshotV1 {
	return SnapshotV1{
		HandTile:         7,
		HandRotation:     2,
		WaitingTiles:     []int{3, 9, 12},
		Grid:             json.RawMessage(`{"panels":[{"panel":0,"pos":[0,0],"rotation":1,"edge":0}]}`),
		RemainingTime:    42.25,
		CompletedForests: [][][2]int{{{1, 0}, {2, 0}}},
		DeepForest:       []int{1},
		CompletedPaths:   [][][2]int{},
		CompletedChurch:  [][2]int{{0, 1}},
		RotationCount:    5,
		MoveCount:        11,
	}
}

func TestWriteReadFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap", "abc.snap.zst")
	in := sample()
	if err := WriteFile(path, Header{SessionID: "abc", Placed: 1}, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	h, out, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if h.Version != Version || h.SessionID != "abc" || h.Placed != 1 {
		t.Fatalf("header: %+v", h)
	}
	a, _ := Encode(in)
	b, _ := Encode(out)
	if string(a) != string(b) {
		t.Fatalf("round trip mismatch:\n%s\n%s", a, b)
	}
}

func TestDecode_RejectsMissingField(t *testing.T) {
	b, _ := Encode(sample())
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	delete(m, "waiting_tiles")
	b, _ = json.Marshal(m)

	if _, err := Decode(b); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("want ErrCorrupt, got %v", err)
	}
}

func TestDecode_RejectsBadValues(t *testing.T) {
	cases := map[string]func(s *SnapshotV1){
		"rotation": func(s *SnapshotV1) { s.HandRotation = 4 },
		"negative": func(s *SnapshotV1) { s.MoveCount = -1 },
		"nulls":    func(s *SnapshotV1) { s.DeepForest = nil },
	}
	for name, mutate := range cases {
		s := sample()
		mutate(&s)
		b, _ := Encode(s)
		if _, err := Decode(b); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("%s: want ErrCorrupt, got %v", name, err)
		}
	}
	if _, err := Decode([]byte("{not json")); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("garbage: want ErrCorrupt, got %v", err)
	}
}

func TestReadFile_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v9.snap.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc, _ := zstd.NewWriter(f)
	_, _ = enc.Write([]byte("{\"version\":9}\n{}"))
	_ = enc.Close()
	_ = f.Close()

	if _, _, err := ReadFile(path); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("want ErrCorrupt, got %v", err)
	}
}
