package scattershot

import "sync"

// rendezvous is a reusable barrier. The last member to arrive runs the
// round's function while every other member is parked, so the function may
// touch all workers' state. Members that finish early leave; if the rest
// are already waiting, the leaver runs the pending function for them.
type rendezvous struct {
	mu      sync.Mutex
	cond    *sync.Cond
	members int
	arrived int
	round   uint64
	fn      func() error
	err     error
}

func newRendezvous(members int) *rendezvous {
	r := &rendezvous{members: members}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Arrive blocks until the round completes and returns the round function's
// error. Once a round fails every later call fails with the same error.
func (r *rendezvous) Arrive(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.arrived++
	r.fn = fn
	if r.arrived >= r.members {
		r.release()
		return r.err
	}
	round := r.round
	for round == r.round {
		r.cond.Wait()
	}
	return r.err
}

// Leave removes the caller from the barrier for good.
func (r *rendezvous) Leave() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members--
	if r.arrived > 0 && r.arrived >= r.members {
		r.release()
	}
}

// release runs with mu held.
func (r *rendezvous) release() {
	fn := r.fn
	r.fn = nil
	r.arrived = 0
	if fn != nil && r.err == nil {
		r.err = fn()
	}
	r.round++
	r.cond.Broadcast()
}
