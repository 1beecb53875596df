package observerproto_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/observerproto"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/scattershot"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

func TestSchemas_ValidateMessages(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		s, err := jsonschema.Compile(filepath.Join("schemas", name))
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, msg any) {
		t.Helper()
		b, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate %s: %v", b, err)
		}
	}

	validate(compile("subscribe.schema.json"), observerproto.SubscribeMsg{
		Type:            "SUBSCRIBE",
		ProtocolVersion: observerproto.Version,
		EveryN:          5,
	})

	validate(compile("hello.schema.json"), observerproto.HelloMsg{
		Type:            "HELLO",
		ProtocolVersion: observerproto.Version,
		SessionID:       "O1",
		RunID:           "r",
		Config:          scattershot.Defaults(),
	})

	validate(compile("progress.schema.json"), observerproto.NewProgress(scattershot.MergeEvent{
		RunID:        "r",
		Merge:        12,
		SharedBlocks: 100,
		Solutions:    1,
		Stats:        scattershot.Stats{Shots: 5, Scripts: 80, Failed: 20, Redundant: 30, Novel: 30},
		Duration:     1500 * time.Microsecond,
	}))

	var d timeline.Diff
	d.Set(3, timeline.Inputs{Buttons: timeline.A | timeline.B, StickX: -128, StickY: 127})
	d.Set(4, timeline.Inputs{})
	validate(compile("solution.schema.json"), observerproto.NewSolution(scattershot.SolutionEvent{
		RunID: "r", Block: 9, Fitness: -3.5, Bin: "0a0b", Diff: d,
	}))
}

func TestSchemas_RejectBadSubscribe(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("schemas", "subscribe.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var v any
	_ = json.Unmarshal([]byte(`{"type":"SUBSCRIBE","protocol_version":"0.1","every_n":-1}`), &v)
	if err := s.Validate(v); err == nil {
		t.Fatalf("expected negative every_n to be rejected")
	}
}

func TestNewProgress_Percentages(t *testing.T) {
	p := observerproto.NewProgress(scattershot.MergeEvent{
		Stats:    scattershot.Stats{Scripts: 4, Failed: 1, Redundant: 1, Novel: 2},
		Duration: 2 * time.Millisecond,
	})
	if p.Futility != 25 || p.Redundancy != 25 || p.Discovery != 50 || p.MergeMS != 2 {
		t.Fatalf("unexpected progress: %+v", p)
	}
}
