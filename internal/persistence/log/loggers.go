package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"tilegarden.ai/internal/sim/events"
)

// JSONLZstdWriter appends one JSON value per line to a zstd stream. The file
// is opened on the first write.
type JSONLZstdWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) *JSONLZstdWriter {
	return &JSONLZstdWriter{path: path}
}

func (w *JSONLZstdWriter) Path() string { return w.path }

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil {
		if err := w.openLocked(); err != nil {
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

func (w *JSONLZstdWriter) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
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

// EventsPath is where a session's event log lives under dataDir.
func EventsPath(dataDir, sessionID string) string {
	return filepath.Join(dataDir, "events", sessionID+".jsonl.zst")
}

// EventLogger is an events.Sink writing every event as a numbered envelope.
// Write failures are kept; the first one is returned by Err and Close.
type EventLogger struct {
	w   *JSONLZstdWriter
	seq uint64

	mu  sync.Mutex
	err error
}

func NewEventLogger(dataDir, sessionID string) *EventLogger {
	return &EventLogger{w: NewJSONLZstdWriter(EventsPath(dataDir, sessionID))}
}

var _ events.Sink = (*EventLogger)(nil)

func (l *EventLogger) Emit(ev events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return
	}
	l.seq++
	env, err := events.Wrap(l.seq, ev)
	if err == nil {
		err = l.w.Write(env)
	}
	if err != nil {
		l.err = fmt.Errorf("event %d (%s): %w", l.seq, ev.Kind(), err)
	}
}

func (l *EventLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *EventLogger) Close() error {
	cerr := l.w.Close()
	if err := l.Err(); err != nil {
		return err
	}
	return cerr
}

// ReadEvents decodes every envelope in an event log.
func ReadEvents(path string) ([]events.Envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []events.Envelope
	jd := json.NewDecoder(bufio.NewReader(dec))
	for {
		var env events.Envelope
		err := jd.Decode(&env)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("%s: entry %d: %w", path, len(out)+1, err)
		}
		out = append(out, env)
	}
}
