package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/observerproto"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/scattershot"
)

// Server streams search progress to WebSocket subscribers. It is a
// scattershot.Sink; broadcasts never block the merge, slow subscribers lose
// messages instead.
type Server struct {
	log   *log.Logger
	runID string
	cfg   scattershot.Config

	// AllowRemote accepts non-loopback clients.
	AllowRemote bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu     sync.Mutex
	subs   map[string]*subscriber
	last   *observerproto.ProgressMsg
	closed bool
}

type subscriber struct {
	out       chan []byte
	solutions bool
	everyN    int
}

func NewServer(runID string, cfg scattershot.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		log:   logger,
		runID: runID,
		cfg:   cfg,
		subs:  map[string]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Subscribers returns the number of connected sessions.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Dropped counts messages discarded for slow subscribers.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) RecordMerge(e scattershot.MergeEvent) {
	msg := observerproto.NewProgress(e)
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &msg
	for _, sub := range s.subs {
		if e.Merge%int64(sub.everyN) != 0 {
			continue
		}
		s.sendLocked(sub, b)
	}
}

func (s *Server) RecordSolution(e scattershot.SolutionEvent) {
	b, err := json.Marshal(observerproto.NewSolution(e))
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.solutions {
			s.sendLocked(sub, b)
		}
	}
}

func (s *Server) RecordSample(scattershot.SampleEvent) {}

func (s *Server) sendLocked(sub *subscriber, b []byte) {
	select {
	case sub.out <- b:
	default:
		s.dropped.Add(1)
	}
}

// Close disconnects every subscriber and rejects new ones.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subs {
		close(sub.out)
		delete(s.subs, id)
	}
}

func (s *Server) join(sub *subscriber) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false
	}
	sid := fmt.Sprintf("O%d", s.nextID.Add(1))
	s.subs[sid] = sub
	return sid, true
}

func (s *Server) leave(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[sid]; ok {
		close(sub.out)
		delete(s.subs, sid)
	}
}

func (s *Server) update(sid string, sub observerproto.SubscribeMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.subs[sid]; ok {
		cur.solutions = sub.Solutions
		cur.everyN = sub.EveryN
	}
}

// StatusHandler serves the run id, config and latest progress as JSON.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		s.mu.Lock()
		resp := struct {
			ProtocolVersion string                     `json:"protocol_version"`
			RunID           string                     `json:"run_id"`
			Config          scattershot.Config         `json:"config"`
			Subscribers     int                        `json:"subscribers"`
			Last            *observerproto.ProgressMsg `json:"last,omitempty"`
		}{observerproto.Version, s.runID, s.cfg, len(s.subs), s.last}
		s.mu.Unlock()

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
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
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		out := make(chan []byte, 256)
		sid, ok := s.join(&subscriber{out: out, solutions: sub.Solutions, everyN: sub.EveryN})
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return
		}
		defer s.leave(sid)
		s.log.Printf("observer %s subscribed from %s", sid, r.RemoteAddr)

		hello, _ := json.Marshal(observerproto.HelloMsg{
			Type:            "HELLO",
			ProtocolVersion: observerproto.Version,
			SessionID:       sid,
			RunID:           s.runID,
			Config:          s.cfg,
		})
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
			return
		}

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
				case b, ok := <-out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "run finished"), time.Now().Add(time.Second))
						writeErr <- nil
						return
					}
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
			if sub, ok := parseSubscribe(msg); ok {
				s.update(sid, sub)
			}
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

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	if sub.EveryN <= 0 {
		sub.EveryN = 1
	}
	if sub.EveryN > 10000 {
		sub.EveryN = 10000
	}
	return sub, true
}

func (s *Server) allowed(r *http.Request) bool {
	return s.AllowRemote || isLoopbackRemote(r.RemoteAddr)
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
