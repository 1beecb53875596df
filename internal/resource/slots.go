package resource

import (
	"container/list"
	"errors"
	"fmt"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/metrics"
)

var (
	ErrBudgetTooSmall       = errors.New("slot budget cannot hold a single state")
	ErrSlotIDsExhausted     = errors.New("slot ids exhausted")
	ErrAccessOrderExhausted = errors.New("slot access order exhausted")
)

// SlotManager is a byte-budgeted LRU store of simulation snapshots.
// Not safe for concurrent use: each Resource owns one.
type SlotManager[S any] struct {
	capacity int64
	used     int64

	nextID      int64
	accessOrder uint64

	slots map[int64]*list.Element
	order *list.List // front = most recently accessed

	evictions int64
}

type slot[S any] struct {
	id              int64
	state           S
	size            int64
	lastAccessOrder uint64
}

func NewSlotManager[S any](capacityBytes int64) *SlotManager[S] {
	return &SlotManager[S]{
		capacity: capacityBytes,
		nextID:   1,
		slots:    make(map[int64]*list.Element),
		order:    list.New(),
	}
}

// CreateSlot stores state, evicting least recently accessed slots until it fits.
func (m *SlotManager[S]) CreateSlot(state S, size int64) (int64, error) {
	if m.nextID <= 0 {
		return -1, ErrSlotIDsExhausted
	}
	for m.used+size > m.capacity {
		if m.order.Len() == 0 {
			return -1, fmt.Errorf("%w: state=%d bytes budget=%d bytes", ErrBudgetTooSmall, size, m.capacity)
		}
		m.evictOldest()
	}
	order, err := m.touch()
	if err != nil {
		return -1, err
	}

	id := m.nextID
	m.nextID++
	s := &slot[S]{id: id, state: state, size: size, lastAccessOrder: order}
	m.slots[id] = m.order.PushFront(s)
	m.used += size
	metrics.SlotsCreated.Inc()
	return id, nil
}

// LoadSlot returns the state of a live slot and marks it most recently used.
func (m *SlotManager[S]) LoadSlot(id int64) (S, bool, error) {
	elem, ok := m.slots[id]
	if !ok {
		var zero S
		return zero, false, nil
	}
	order, err := m.touch()
	if err != nil {
		var zero S
		return zero, false, err
	}
	s := elem.Value.(*slot[S])
	s.lastAccessOrder = order
	m.order.MoveToFront(elem)
	return s.state, true, nil
}

func (m *SlotManager[S]) EraseSlot(id int64) {
	if elem, ok := m.slots[id]; ok {
		m.removeElement(elem)
	}
}

func (m *SlotManager[S]) IsValid(id int64) bool {
	_, ok := m.slots[id]
	return ok
}

func (m *SlotManager[S]) Len() int         { return m.order.Len() }
func (m *SlotManager[S]) Bytes() int64     { return m.used }
func (m *SlotManager[S]) Capacity() int64  { return m.capacity }
func (m *SlotManager[S]) Evictions() int64 { return m.evictions }

func (m *SlotManager[S]) touch() (uint64, error) {
	if m.accessOrder == ^uint64(0) {
		return 0, ErrAccessOrderExhausted
	}
	m.accessOrder++
	return m.accessOrder, nil
}

func (m *SlotManager[S]) evictOldest() {
	elem := m.order.Back()
	if elem == nil {
		return
	}
	m.removeElement(elem)
	m.evictions++
	metrics.SlotEvictions.Inc()
}

func (m *SlotManager[S]) removeElement(elem *list.Element) {
	s := elem.Value.(*slot[S])
	m.order.Remove(elem)
	delete(m.slots, s.id)
	m.used -= s.size
}
