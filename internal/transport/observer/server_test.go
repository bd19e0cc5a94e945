package observer

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tilegarden.ai/internal/observerproto"
	"tilegarden.ai/internal/sim/events"
	"tilegarden.ai/internal/sim/scoring"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("sess-1", func() observerproto.SessionStatus {
		return observerproto.SessionStatus{State: "playing", TotalPlaced: 3}
	}, log.New(io.Discard, "", 0))
	mux := http.NewServeMux()
	mux.HandleFunc("/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/observer/ws", s.WSHandler())
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)
	return s, hs
}

func dial(t *testing.T, hs *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.Clients() == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("clients=%d want %d", s.Clients(), n)
}

func TestWSHandler_FiltersByKind(t *testing.T) {
	s, hs := newTestServer(t)
	conn := dial(t, hs)

	sub := observerproto.SubscribeMsg{
		Type:            "SUBSCRIBE",
		ProtocolVersion: observerproto.Version,
		Kinds:           []events.Kind{events.KindScoresUpdated},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitClients(t, s, 1)

	var c scoring.Counters
	c[scoring.ChurchCount] = 2
	s.Emit(events.PlacementOccurred{Tile: 1})
	s.Emit(events.ScoresUpdated{Counters: c})

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg observerproto.EventMsg
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "EVENT" || msg.Kind != events.KindScoresUpdated || msg.Seq != 2 {
		t.Fatalf("unexpected message: %+v", msg)
	}
	ev, err := events.Unwrap(events.Envelope{Seq: msg.Seq, Type: msg.Kind, Payload: msg.Payload})
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if got := ev.(events.ScoresUpdated).Counters; got != c {
		t.Fatalf("counters=%v", got)
	}

	_ = conn.Close()
	waitClients(t, s, 0)
}

func TestWSHandler_RejectsBadHandshake(t *testing.T) {
	s, hs := newTestServer(t)
	conn := dial(t, hs)

	if err := conn.WriteJSON(map[string]any{"type": "HELLO"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("want policy violation close, got %v", err)
	}
	if s.Clients() != 0 {
		t.Fatalf("clients=%d", s.Clients())
	}
}

func TestBootstrapHandler(t *testing.T) {
	_, hs := newTestServer(t)
	resp, err := http.Get(hs.URL + "/observer/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var body observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SessionID != "sess-1" || body.Status.TotalPlaced != 3 || len(body.Kinds) != len(events.Kinds) {
		t.Fatalf("bootstrap: %+v", body)
	}
}

func TestEmit_DropsWhenClientIsFull(t *testing.T) {
	s := NewServer("x", nil, log.New(io.Discard, "", 0))
	s.clients["slow"] = &client{out: make(chan []byte, 1)}
	s.Emit(events.SessionAborted{})
	s.Emit(events.SessionAborted{})
	if s.Dropped() != 1 {
		t.Fatalf("dropped=%d want 1", s.Dropped())
	}
}
