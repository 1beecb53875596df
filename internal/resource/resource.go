package resource

import (
	"fmt"
	"time"

	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/metrics"
	"github.com/TylerKehne/sm64-tas-scripting-sub001/internal/timeline"
)

// Sim is the deterministic simulation driven by the engine.
// Frame must be part of the saved state: Load restores it.
type Sim[S any] interface {
	Advance()
	Save() S
	Load(S)
	StateSize(S) int64
	SetInputs(timeline.Inputs)
	Frame() int64
}

// StartSlot addresses the start snapshot, which is never evicted.
const StartSlot int64 = -1

// Resource wraps a Sim with a snapshot store and running cost counters
// used to decide between loading a snapshot and replaying frames.
type Resource[S any] struct {
	sim   Sim[S]
	slots *SlotManager[S]

	startSave    S
	initialFrame int64

	totalAdvance time.Duration
	totalLoad    time.Duration
	totalSave    time.Duration
	nAdvances    int64
	nLoads       int64
	nSaves       int64
}

// New snapshots the simulation's current state as the start save.
func New[S any](sim Sim[S], slotBudgetBytes int64) *Resource[S] {
	return &Resource[S]{
		sim:          sim,
		slots:        NewSlotManager[S](slotBudgetBytes),
		startSave:    sim.Save(),
		initialFrame: sim.Frame(),
	}
}

func (r *Resource[S]) Slots() *SlotManager[S]       { return r.slots }
func (r *Resource[S]) InitialFrame() int64          { return r.initialFrame }
func (r *Resource[S]) CurrentFrame() int64          { return r.sim.Frame() }
func (r *Resource[S]) SetInputs(in timeline.Inputs) { r.sim.SetInputs(in) }

// Underlying returns the wrapped simulation for read access by scripts.
func (r *Resource[S]) Underlying() Sim[S] { return r.sim }

// Reset reloads the start snapshot and drops every slot.
func (r *Resource[S]) Reset() {
	r.sim.Load(r.startSave)
	r.slots = NewSlotManager[S](r.slots.Capacity())
}

func (r *Resource[S]) FrameAdvance() {
	start := time.Now()
	r.sim.Advance()
	r.totalAdvance += time.Since(start)
	r.nAdvances++
	metrics.ResourceOps.WithLabelValues("advance").Inc()
}

// SaveState snapshots the current state into a new slot.
func (r *Resource[S]) SaveState() (int64, error) {
	start := time.Now()
	state := r.sim.Save()
	id, err := r.slots.CreateSlot(state, r.sim.StateSize(state))
	r.totalSave += time.Since(start)
	r.nSaves++
	metrics.ResourceOps.WithLabelValues("save").Inc()
	return id, err
}

// LoadState restores a slot. StartSlot loads the start snapshot.
func (r *Resource[S]) LoadState(id int64) error {
	start := time.Now()
	defer func() {
		r.totalLoad += time.Since(start)
		r.nLoads++
		metrics.ResourceOps.WithLabelValues("load").Inc()
	}()

	if id == StartSlot {
		r.sim.Load(r.startSave)
		return nil
	}
	state, ok, err := r.slots.LoadSlot(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("load slot %d: slot not found", id)
	}
	r.sim.Load(state)
	return nil
}

func (r *Resource[S]) EraseSlot(id int64) {
	if id != StartSlot {
		r.slots.EraseSlot(id)
	}
}

func (r *Resource[S]) IsValid(id int64) bool {
	return id == StartSlot || r.slots.IsValid(id)
}

// ShouldSave reports whether a snapshot is cheaper than replaying n frames.
func (r *Resource[S]) ShouldSave(n int64) bool {
	if n == 0 {
		return false
	}
	if r.nSaves == 0 || r.nAdvances == 0 || n < 0 {
		return true
	}
	avgSave := float64(r.totalSave) / float64(r.nSaves)
	avgAdvance := float64(r.totalAdvance) / float64(r.nAdvances)
	return avgSave < avgAdvance*float64(n)
}

// ShouldLoad reports whether loading is cheaper than advancing framesAhead frames.
func (r *Resource[S]) ShouldLoad(framesAhead int64) bool {
	if framesAhead == 0 {
		return false
	}
	if r.nLoads == 0 || r.nAdvances == 0 || framesAhead < 0 {
		return true
	}
	avgLoad := float64(r.totalLoad) / float64(r.nLoads)
	avgAdvance := float64(r.totalAdvance) / float64(r.nAdvances)
	return avgLoad < avgAdvance*float64(framesAhead)
}

func (r *Resource[S]) TotalAdvanceTime() time.Duration { return r.totalAdvance }
func (r *Resource[S]) TotalLoadTime() time.Duration    { return r.totalLoad }
func (r *Resource[S]) TotalSaveTime() time.Duration    { return r.totalSave }
func (r *Resource[S]) Advances() int64                 { return r.nAdvances }
func (r *Resource[S]) Loads() int64                    { return r.nLoads }
func (r *Resource[S]) Saves() int64                    { return r.nSaves }
