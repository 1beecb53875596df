package timeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Diff is a sparse set of input overrides against the default timeline.
// A diff fully determines behaviour from its first frame onward.
type Diff struct {
	frames FrameMap[Inputs]
}

// Entry is one frame override, used for serialization.
type Entry struct {
	Frame  int64  `json:"frame"`
	Inputs Inputs `json:"inputs"`
}

func (d *Diff) Set(frame int64, in Inputs) { d.frames.Set(frame, in) }

func (d *Diff) Get(frame int64) (Inputs, bool) {
	if d == nil {
		return Inputs{}, false
	}
	return d.frames.Get(frame)
}

func (d *Diff) Has(frame int64) bool { return d != nil && d.frames.Has(frame) }

func (d *Diff) Len() int {
	if d == nil {
		return 0
	}
	return d.frames.Len()
}

func (d *Diff) Empty() bool { return d.Len() == 0 }

// First returns the earliest overridden frame.
func (d *Diff) First() (int64, bool) {
	if d == nil {
		return 0, false
	}
	f, _, ok := d.frames.First()
	return f, ok
}

// Last returns the latest overridden frame.
func (d *Diff) Last() (int64, bool) {
	if d == nil {
		return 0, false
	}
	f, _, ok := d.frames.Last()
	return f, ok
}

// Ceil returns the earliest overridden frame at or after frame.
func (d *Diff) Ceil(frame int64) (int64, bool) {
	if d == nil {
		return 0, false
	}
	f, _, ok := d.frames.Ceil(frame)
	return f, ok
}

// EraseFrom drops overrides at or after frame.
func (d *Diff) EraseFrom(frame int64) { d.frames.EraseFrom(frame) }

// EraseBefore drops overrides strictly before frame.
func (d *Diff) EraseBefore(frame int64) {
	kept := FrameMap[Inputs]{}
	d.frames.Range(func(f int64, in Inputs) bool {
		if f >= frame {
			kept.Set(f, in)
		}
		return true
	})
	d.frames = kept
}

func (d *Diff) Clear() { d.frames.Clear() }

func (d *Diff) Range(fn func(frame int64, in Inputs) bool) {
	if d == nil {
		return
	}
	d.frames.Range(fn)
}

func (d *Diff) Clone() Diff {
	if d == nil {
		return Diff{}
	}
	return Diff{frames: d.frames.Clone()}
}

// Merge copies every override of over into d. Entries of over win.
func (d *Diff) Merge(over *Diff) {
	over.Range(func(f int64, in Inputs) bool {
		d.frames.Set(f, in)
		return true
	})
}

// Merged returns base with over layered on top, leaving both untouched.
func Merged(base, over *Diff) Diff {
	out := base.Clone()
	out.Merge(over)
	return out
}

func (d *Diff) Equal(o *Diff) bool {
	if d.Len() != o.Len() {
		return false
	}
	eq := true
	d.Range(func(f int64, in Inputs) bool {
		other, ok := o.Get(f)
		if !ok || other != in {
			eq = false
		}
		return eq
	})
	return eq
}

func (d *Diff) Entries() []Entry {
	out := make([]Entry, 0, d.Len())
	d.Range(func(f int64, in Inputs) bool {
		out = append(out, Entry{Frame: f, Inputs: in})
		return true
	})
	return out
}

func FromEntries(entries []Entry) Diff {
	var d Diff
	for _, e := range entries {
		d.Set(e.Frame, e.Inputs)
	}
	return d
}

func (d Diff) MarshalJSON() ([]byte, error) { return json.Marshal(d.Entries()) }

func (d *Diff) UnmarshalJSON(b []byte) error {
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	*d = FromEntries(entries)
	return nil
}

func (d Diff) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	d.Range(func(f int64, in Inputs) bool {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&sb, "%d: %s", f, in)
		return true
	})
	sb.WriteByte('}')
	return sb.String()
}
