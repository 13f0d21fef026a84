// Package canvaslock implements the blocking mutex every collaborator
// thread uses to serialize access to the shared canvas, plus the occupancy
// map that tracks which (x, y) cells are claimed by which thread.
//
// Grounded on my_pthread.c's my_mutex_init/lock/trylock/unlock and
// animator.c's CanvasPosition bookkeeping, with the owning thread's
// suspend-and-resume realized through the same carrier baton the runtime
// package uses for every other blocking point.
package canvaslock

import (
	"errors"
	"sync"

	"github.com/nullcoop/cothread/internal/obslog"
	"github.com/nullcoop/cothread/internal/tcb"
)

var (
	// ErrMutexBusy is returned by TryLock when the mutex is already held.
	ErrMutexBusy = errors.New("canvaslock: mutex busy")
	// ErrRecursiveLock is returned when the owning thread tries to lock
	// its own mutex again.
	ErrRecursiveLock = errors.New("canvaslock: recursive lock by owner")
	// ErrNotOwner is returned by Unlock when the caller does not hold the
	// mutex.
	ErrNotOwner = errors.New("canvaslock: unlock by non-owner")
	// ErrMutexHasWaiters is returned by Destroy when threads are still
	// parked on the mutex.
	ErrMutexHasWaiters = errors.New("canvaslock: destroy with waiters present")
)

// Dispatcher is the capability Mutex needs from whatever runtime owns the
// calling thread: the ability to block the caller away from the logical
// CPU, and to resume a specific thread that was waiting.
type Dispatcher interface {
	// Current returns the thread currently holding the logical CPU.
	Current() *tcb.TCB
	// BlockCurrent marks the current thread StateBlocked and dispatches
	// away from it, returning only once that thread is resumed again.
	BlockCurrent()
	// Resume re-admits a previously blocked thread to its own scheduler,
	// making it eligible to run again.
	Resume(t *tcb.TCB)
}

type position struct {
	x, y     int
	ownerTID int64
}

// Mutex is a FIFO-fair blocking mutex with an attached 2D occupancy map.
type Mutex struct {
	dispatcher Dispatcher
	log        *obslog.Logger
	metrics    *obslog.Metrics

	mu        sync.Mutex
	locked    bool
	owner     *tcb.TCB
	waitHead  *tcb.TCB
	waitTail  *tcb.TCB
	occupied  []position
	destroyed bool
}

// Option configures a Mutex at construction.
type Option interface {
	apply(*Mutex)
}

type optionFunc func(*Mutex)

func (f optionFunc) apply(m *Mutex) { f(m) }

// WithObserver attaches a logger and/or metrics sink that Lock and Unlock
// report through on the contended path: a block on enqueue-as-waiter, a
// mutex event on both the eventual hand-off and the uncontended unlock.
// Either argument may be nil to skip that sink.
func WithObserver(log *obslog.Logger, metrics *obslog.Metrics) Option {
	return optionFunc(func(m *Mutex) {
		m.log = log
		m.metrics = metrics
	})
}

// New constructs an unlocked Mutex driven by the given Dispatcher.
func New(dispatcher Dispatcher, opts ...Option) *Mutex {
	m := &Mutex{dispatcher: dispatcher}
	for _, o := range opts {
		if o != nil {
			o.apply(m)
		}
	}
	return m
}

func (m *Mutex) enqueueWaiter(t *tcb.TCB) {
	t.MutexWaitNext = nil
	if m.waitTail == nil {
		m.waitHead = t
	} else {
		m.waitTail.MutexWaitNext = t
	}
	m.waitTail = t
}

func (m *Mutex) dequeueWaiter() *tcb.TCB {
	if m.waitHead == nil {
		return nil
	}
	t := m.waitHead
	m.waitHead = t.MutexWaitNext
	if m.waitHead == nil {
		m.waitTail = nil
	}
	t.MutexWaitNext = nil
	return t
}

// Lock acquires the mutex, blocking the calling thread through the
// dispatcher if it is already held by another thread. Returns
// ErrRecursiveLock if the caller already owns it.
func (m *Mutex) Lock() error {
	self := m.dispatcher.Current()

	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.owner = self
		m.mu.Unlock()
		return nil
	}
	if m.owner == self {
		m.mu.Unlock()
		return ErrRecursiveLock
	}
	self.State = tcb.StateBlocked
	m.enqueueWaiter(self)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordMutexContention()
	}
	if m.log != nil {
		m.log.MutexEvent("block", self.TID)
	}

	m.dispatcher.BlockCurrent()
	return nil
}

// TryLock acquires the mutex only if it is immediately available, never
// blocking and never joining the waiter queue.
func (m *Mutex) TryLock() error {
	self := m.dispatcher.Current()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.locked {
		m.locked = true
		m.owner = self
		return nil
	}
	return ErrMutexBusy
}

// Unlock releases the mutex. If threads are waiting, ownership transfers
// directly to the longest-waiting one, which is handed back to its
// scheduler without the mutex ever appearing unlocked.
func (m *Mutex) Unlock() error {
	self := m.dispatcher.Current()

	m.mu.Lock()
	if !m.locked || m.owner != self {
		m.mu.Unlock()
		return ErrNotOwner
	}

	next := m.dequeueWaiter()
	if next == nil {
		m.locked = false
		m.owner = nil
		m.mu.Unlock()
		if m.log != nil {
			m.log.MutexEvent("unlock", self.TID)
		}
		return nil
	}

	m.owner = next
	m.mu.Unlock()

	if m.log != nil {
		m.log.MutexEvent("handoff", next.TID)
	}

	next.State = tcb.StateReady
	m.dispatcher.Resume(next)
	return nil
}

// Destroy tears down the mutex, refusing to do so while threads are parked
// waiting on it (per spec, favoring explicit failure over draining waiters
// behind the caller's back).
func (m *Mutex) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.waitHead != nil {
		return ErrMutexHasWaiters
	}
	m.destroyed = true
	m.locked = false
	m.owner = nil
	m.occupied = nil
	return nil
}

// MarkOccupied claims canvas cell (x, y) for ownerTID. Collaborators are
// expected to hold the mutex for the duration of the claim.
func (m *Mutex) MarkOccupied(x, y int, ownerTID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.occupied = append(m.occupied, position{x: x, y: y, ownerTID: ownerTID})
}

// ReleaseOccupied releases a cell previously claimed by ownerTID. A no-op
// if the cell was not held by that thread.
func (m *Mutex) ReleaseOccupied(x, y int, ownerTID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.occupied {
		if p.x == x && p.y == y && p.ownerTID == ownerTID {
			m.occupied = append(m.occupied[:i], m.occupied[i+1:]...)
			return
		}
	}
}

// IsOccupied reports whether (x, y) is claimed by a thread other than
// currentTID. Positions outside [0, width) x [0, height) count as occupied.
func (m *Mutex) IsOccupied(x, y, width, height int, currentTID int64) bool {
	if x < 0 || x >= width || y < 0 || y >= height {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.occupied {
		if p.x == x && p.y == y {
			return p.ownerTID != currentTID
		}
	}
	return false
}
