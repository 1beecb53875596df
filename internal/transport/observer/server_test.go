package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/observerproto"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/scattershot"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %q: %v", b, err)
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("run-7", scattershot.Defaults(), nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/progress", s.WSHandler())
	mux.HandleFunc("/v1/status", s.StatusHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return s, srv
}

func TestServer_SubscribeThenProgress(t *testing.T) {
	s, srv := newTestServer(t)
	conn := dial(t, srv)

	if err := conn.WriteJSON(observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: observerproto.Version, Solutions: true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var hello observerproto.HelloMsg
	readJSON(t, conn, &hello)
	if hello.Type != "HELLO" || hello.RunID != "run-7" || hello.SessionID == "" {
		t.Fatalf("unexpected hello: %+v", hello)
	}
	if hello.Config.Threads != scattershot.Defaults().Threads {
		t.Fatalf("hello config threads=%d", hello.Config.Threads)
	}

	s.RecordMerge(scattershot.MergeEvent{
		RunID:        "run-7",
		Merge:        3,
		SharedBlocks: 42,
		Stats:        scattershot.Stats{Scripts: 10, Failed: 5, Novel: 2},
	})
	var p observerproto.ProgressMsg
	readJSON(t, conn, &p)
	if p.Type != "PROGRESS" || p.Merge != 3 || p.SharedBlocks != 42 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if p.Futility != 50 || p.Discovery != 20 {
		t.Fatalf("unexpected percentages: %+v", p)
	}

	var d timeline.Diff
	d.Set(12, timeline.Inputs{StickX: 127})
	s.RecordSolution(scattershot.SolutionEvent{RunID: "run-7", Block: 5, Fitness: -1, Diff: d})
	var sol observerproto.SolutionMsg
	readJSON(t, conn, &sol)
	if sol.Type != "SOLUTION" || sol.Block != 5 || len(sol.Inputs) != 1 || sol.Inputs[0].Frame != 12 || sol.Inputs[0].StickX != 127 {
		t.Fatalf("unexpected solution: %+v", sol)
	}
}

func TestServer_EveryNThinsProgress(t *testing.T) {
	s, srv := newTestServer(t)
	conn := dial(t, srv)
	if err := conn.WriteJSON(observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: observerproto.Version, EveryN: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var hello observerproto.HelloMsg
	readJSON(t, conn, &hello)

	for m := int64(1); m <= 4; m++ {
		s.RecordMerge(scattershot.MergeEvent{Merge: m})
	}
	// Solutions were not requested.
	s.RecordSolution(scattershot.SolutionEvent{Block: 1})

	var p observerproto.ProgressMsg
	readJSON(t, conn, &p)
	if p.Merge != 2 {
		t.Fatalf("first progress merge=%d want=2", p.Merge)
	}
	readJSON(t, conn, &p)
	if p.Merge != 4 {
		t.Fatalf("second progress merge=%d want=4", p.Merge)
	}
}

func TestServer_RejectsBadHandshake(t *testing.T) {
	s, srv := newTestServer(t)
	conn := dial(t, srv)
	if err := conn.WriteJSON(map[string]string{"type": "HELLO"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	if s.Subscribers() != 0 {
		t.Fatalf("subscribers=%d want=0", s.Subscribers())
	}
}

func TestServer_CloseDisconnects(t *testing.T) {
	s, srv := newTestServer(t)
	conn := dial(t, srv)
	if err := conn.WriteJSON(observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: observerproto.Version}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var hello observerproto.HelloMsg
	readJSON(t, conn, &hello)

	s.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
	// Broadcasting after close is a no-op.
	s.RecordMerge(scattershot.MergeEvent{Merge: 1})
}

func TestServer_Status(t *testing.T) {
	s, srv := newTestServer(t)
	s.RecordMerge(scattershot.MergeEvent{RunID: "run-7", Merge: 9})

	resp, err := http.Get(srv.URL + "/v1/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		RunID string                     `json:"run_id"`
		Last  *observerproto.ProgressMsg `json:"last"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RunID != "run-7" || body.Last == nil || body.Last.Merge != 9 {
		t.Fatalf("unexpected status: %+v", body)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:1234": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}
