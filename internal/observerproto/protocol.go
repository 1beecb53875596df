package observerproto

import "github.com/TylerKehne/sm64-tas-scripting-sub001/internal/scattershot"

// Version is the progress stream protocol version.
const Version = "0.1"

// Client -> Server. First message on the progress WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Solutions asks for SOLUTION messages with full inputs.
	Solutions bool `json:"solutions,omitempty"`
	// EveryN thins PROGRESS messages to every Nth merge (>=1).
	EveryN int `json:"every_n,omitempty"`
}

// Server -> Client. Sent once after a valid SUBSCRIBE.
type HelloMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	SessionID       string             `json:"session_id"`
	RunID           string             `json:"run_id"`
	Config          scattershot.Config `json:"config"`
}

// Server -> Client. Sent after merges.
type ProgressMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	RunID           string            `json:"run_id"`
	Merge           int64             `json:"merge"`
	SharedBlocks    int               `json:"shared_blocks"`
	SharedSegments  int               `json:"shared_segments"`
	Collected       int               `json:"collected"`
	Solutions       int               `json:"solutions"`
	Stats           scattershot.Stats `json:"stats"`

	Futility   float64 `json:"futility_pct"`
	Redundancy float64 `json:"redundancy_pct"`
	Discovery  float64 `json:"discovery_pct"`
	MergeMS    float64 `json:"merge_ms"`
}

// Server -> Client. Sent per new solution to subscribers that asked for them.
type SolutionMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	RunID           string       `json:"run_id"`
	Block           int32        `json:"block"`
	Fitness         float32      `json:"fitness"`
	Bin             string       `json:"bin"`
	Inputs          []InputFrame `json:"inputs"`
}

type InputFrame struct {
	Frame   int64  `json:"frame"`
	Buttons uint16 `json:"buttons"`
	StickX  int8   `json:"stick_x"`
	StickY  int8   `json:"stick_y"`
}

func NewProgress(e scattershot.MergeEvent) ProgressMsg {
	f, r, d := e.Stats.Percent()
	return ProgressMsg{
		Type:            "PROGRESS",
		ProtocolVersion: Version,
		RunID:           e.RunID,
		Merge:           e.Merge,
		SharedBlocks:    e.SharedBlocks,
		SharedSegments:  e.SharedSegments,
		Collected:       e.Collected,
		Solutions:       e.Solutions,
		Stats:           e.Stats,
		Futility:        f,
		Redundancy:      r,
		Discovery:       d,
		MergeMS:         float64(e.Duration.Microseconds()) / 1000,
	}
}

func NewSolution(e scattershot.SolutionEvent) SolutionMsg {
	entries := e.Diff.Entries()
	inputs := make([]InputFrame, 0, len(entries))
	for _, en := range entries {
		inputs = append(inputs, InputFrame{
			Frame:   en.Frame,
			Buttons: en.Inputs.Buttons,
			StickX:  en.Inputs.StickX,
			StickY:  en.Inputs.StickY,
		})
	}
	return SolutionMsg{
		Type:            "SOLUTION",
		ProtocolVersion: Version,
		RunID:           e.RunID,
		Block:           e.Block,
		Fitness:         e.Fitness,
		Bin:             e.Bin,
		Inputs:          inputs,
	}
}
