package timeline

import "sort"

// FrameMap is an ordered map keyed by frame index.
// Keys are kept sorted so range erasure and floor lookups are cheap.
type FrameMap[V any] struct {
	keys []int64
	vals []V
}

func (m *FrameMap[V]) search(frame int64) int {
	return sort.Search(len(m.keys), func(i int) bool { return m.keys[i] >= frame })
}

func (m *FrameMap[V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *FrameMap[V]) Get(frame int64) (V, bool) {
	var zero V
	if m == nil {
		return zero, false
	}
	i := m.search(frame)
	if i < len(m.keys) && m.keys[i] == frame {
		return m.vals[i], true
	}
	return zero, false
}

func (m *FrameMap[V]) Has(frame int64) bool {
	_, ok := m.Get(frame)
	return ok
}

// Set inserts or overwrites the value at frame.
func (m *FrameMap[V]) Set(frame int64, v V) {
	i := m.search(frame)
	if i < len(m.keys) && m.keys[i] == frame {
		m.vals[i] = v
		return
	}
	m.keys = append(m.keys, 0)
	m.vals = append(m.vals, v)
	copy(m.keys[i+1:], m.keys[i:])
	copy(m.vals[i+1:], m.vals[i:])
	m.keys[i] = frame
	m.vals[i] = v
}

// Insert sets v only when frame is absent. Reports whether it inserted.
func (m *FrameMap[V]) Insert(frame int64, v V) bool {
	if m.Has(frame) {
		return false
	}
	m.Set(frame, v)
	return true
}

func (m *FrameMap[V]) Delete(frame int64) (V, bool) {
	var zero V
	i := m.search(frame)
	if i >= len(m.keys) || m.keys[i] != frame {
		return zero, false
	}
	v := m.vals[i]
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.vals = append(m.vals[:i], m.vals[i+1:]...)
	return v, true
}

// EraseFrom removes every key >= frame and returns the removed values.
func (m *FrameMap[V]) EraseFrom(frame int64) []V {
	return m.truncate(m.search(frame))
}

// EraseAfter removes every key > frame and returns the removed values.
func (m *FrameMap[V]) EraseAfter(frame int64) []V {
	if frame == maxFrame {
		return nil
	}
	return m.truncate(m.search(frame + 1))
}

const maxFrame = int64(^uint64(0) >> 1)

func (m *FrameMap[V]) truncate(i int) []V {
	if i >= len(m.keys) {
		return nil
	}
	removed := make([]V, len(m.vals)-i)
	copy(removed, m.vals[i:])
	var zero V
	for j := i; j < len(m.vals); j++ {
		m.vals[j] = zero
	}
	m.keys = m.keys[:i]
	m.vals = m.vals[:i]
	return removed
}

// Floor returns the entry with the greatest key <= frame.
func (m *FrameMap[V]) Floor(frame int64) (int64, V, bool) {
	var zero V
	if m.Len() == 0 {
		return 0, zero, false
	}
	i := m.search(frame)
	if i < len(m.keys) && m.keys[i] == frame {
		return frame, m.vals[i], true
	}
	if i == 0 {
		return 0, zero, false
	}
	return m.keys[i-1], m.vals[i-1], true
}

// Ceil returns the entry with the smallest key >= frame.
func (m *FrameMap[V]) Ceil(frame int64) (int64, V, bool) {
	var zero V
	if m.Len() == 0 {
		return 0, zero, false
	}
	i := m.search(frame)
	if i >= len(m.keys) {
		return 0, zero, false
	}
	return m.keys[i], m.vals[i], true
}

func (m *FrameMap[V]) First() (int64, V, bool) {
	var zero V
	if m.Len() == 0 {
		return 0, zero, false
	}
	return m.keys[0], m.vals[0], true
}

func (m *FrameMap[V]) Last() (int64, V, bool) {
	var zero V
	if m.Len() == 0 {
		return 0, zero, false
	}
	n := len(m.keys) - 1
	return m.keys[n], m.vals[n], true
}

// Range visits entries in ascending frame order until fn returns false.
func (m *FrameMap[V]) Range(fn func(frame int64, v V) bool) {
	if m == nil {
		return
	}
	for i := range m.keys {
		if !fn(m.keys[i], m.vals[i]) {
			return
		}
	}
}

func (m *FrameMap[V]) Keys() []int64 {
	if m == nil {
		return nil
	}
	out := make([]int64, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *FrameMap[V]) Clone() FrameMap[V] {
	if m == nil {
		return FrameMap[V]{}
	}
	return FrameMap[V]{
		keys: append([]int64(nil), m.keys...),
		vals: append([]V(nil), m.vals...),
	}
}

// Clear removes every entry and returns the removed values.
func (m *FrameMap[V]) Clear() []V {
	return m.truncate(0)
}
