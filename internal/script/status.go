package script

import (
	"errors"
	"fmt"
	"time"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

// Status is the outcome of a script or ad-hoc block.
// Asserted implies Executed implies Validated.
type Status struct {
	Validated bool
	Executed  bool
	Asserted  bool

	// Err holds a recovered panic from a user phase, if any.
	Err error

	Loads         int64
	Saves         int64
	FrameAdvances int64

	ValidationDuration time.Duration
	ExecutionDuration  time.Duration
	AssertionDuration  time.Duration
	TotalDuration      time.Duration
	LoadDuration       time.Duration
	SaveDuration       time.Duration
	AdvanceDuration    time.Duration

	Diff timeline.Diff
}

// FatalError marks an engine invariant violation. It unwinds every script
// level and is returned by Main.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

var ErrLoadBeforeStart = errors.New("load before initial frame")

func fatal(err error) {
	panic(&FatalError{Err: err})
}

func fatalf(format string, args ...any) {
	fatal(fmt.Errorf(format, args...))
}

// Fatal aborts the running script tree. Domain code uses it for
// consistency violations that must not be treated as a failed attempt.
func Fatal(err error) {
	fatal(err)
}

// InputsSource tells where the inputs for a frame came from.
type InputsSource int8

const (
	SourceDiff InputsSource = iota
	SourceOriginal
	SourceDefault
)

func (s InputsSource) String() string {
	switch s {
	case SourceDiff:
		return "diff"
	case SourceOriginal:
		return "original"
	case SourceDefault:
		return "default"
	}
	return "unknown"
}
