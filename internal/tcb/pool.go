package tcb

import "sync"

// Pool is the append-only registry of every TCB the runtime has ever
// created, keyed by thread id. It never removes entries: a terminated
// thread's TCB stays lookupable (for Join and diagnostics) until the whole
// runtime is discarded, mirroring the fixed-capacity, never-compacted thread
// table of the system this runtime is modeled on.
type Pool struct {
	mu      sync.Mutex
	nextTID int64
	byTID   map[int64]*TCB
}

// NewPool constructs an empty Pool.
func NewPool() *Pool {
	return &Pool{byTID: make(map[int64]*TCB)}
}

// Register allocates a new tid, assigns it to t, and adds t to the pool.
func (p *Pool) Register(t *TCB) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextTID++
	tid := p.nextTID
	t.TID = tid
	p.byTID[tid] = t
	return tid
}

// Lookup returns the TCB for tid, or nil if no such thread was ever
// created.
func (p *Pool) Lookup(tid int64) *TCB {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byTID[tid]
}

// AliveCount returns the number of registered threads that have not yet
// reached StateTerminated.
func (p *Pool) AliveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.byTID {
		if t.State != StateTerminated {
			n++
		}
	}
	return n
}

// Len returns the total number of threads ever registered, alive or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byTID)
}
