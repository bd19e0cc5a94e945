package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tilegarden.ai/internal/observerproto"
	"tilegarden.ai/internal/sim/events"
)

// StatusFunc reports the current session status. It is called from HTTP
// handler goroutines and must be safe for that.
type StatusFunc func() observerproto.SessionStatus

// Server fans session events out to websocket observers. It is an
// events.Sink; Emit never blocks on a slow client, which loses messages
// instead.
type Server struct {
	sessionID string
	status    StatusFunc
	log       *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	seq      atomic.Uint64
	dropped  atomic.Uint64

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	out   chan []byte
	kinds map[events.Kind]bool
}

func (c *client) wants(k events.Kind) bool {
	return len(c.kinds) == 0 || c.kinds[k]
}

func NewServer(sessionID string, status StatusFunc, logger *log.Logger) *Server {
	return &Server{
		sessionID: sessionID,
		status:    status,
		log:       logger,
		clients:   map[string]*client{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

var _ events.Sink = (*Server)(nil)

// Emit encodes ev once and queues it for every interested observer.
func (s *Server) Emit(ev events.Event) {
	env, err := events.Wrap(s.seq.Add(1), ev)
	if err != nil {
		s.log.Printf("observer: %v", err)
		return
	}
	b, err := json.Marshal(observerproto.EventMsg{
		Type:            "EVENT",
		ProtocolVersion: observerproto.Version,
		Seq:             env.Seq,
		Kind:            env.Type,
		Payload:         env.Payload,
	})
	if err != nil {
		s.log.Printf("observer: encode %s: %v", ev.Kind(), err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if !c.wants(ev.Kind()) {
			continue
		}
		select {
		case c.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

// Clients is the number of connected observers.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			SessionID:       s.sessionID,
			Kinds:           events.Kinds,
		}
		if s.status != nil {
			resp.Status = s.status()
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, err := parseSubscribe(msg)
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		c := &client{out: make(chan []byte, 1024), kinds: kindSet(sub.Kinds)}
		s.mu.Lock()
		s.clients[sid] = c
		s.mu.Unlock()
		s.log.Printf("observer %s: joined kinds=%v", sid, sub.Kinds)
		defer func() {
			s.mu.Lock()
			delete(s.clients, sid)
			s.mu.Unlock()
			s.log.Printf("observer %s: left", sid)
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, err := parseSubscribe(msg)
			if err != nil {
				continue
			}
			s.mu.Lock()
			c.kinds = kindSet(sub.Kinds)
			s.mu.Unlock()
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, error) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, fmt.Errorf("bad subscribe")
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
		return sub, fmt.Errorf("expected SUBSCRIBE")
	}
	for _, k := range sub.Kinds {
		if !knownKind(k) {
			return sub, fmt.Errorf("unknown kind %q", k)
		}
	}
	return sub, nil
}

func knownKind(k events.Kind) bool {
	for _, x := range events.Kinds {
		if x == k {
			return true
		}
	}
	return false
}

func kindSet(kinds []events.Kind) map[events.Kind]bool {
	if len(kinds) == 0 {
		return nil
	}
	m := make(map[events.Kind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
