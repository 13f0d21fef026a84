package sched

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nullcoop/cothread/internal/tcb"
)

// RoundRobin is the classic FIFO policy: a thread goes to the back of the
// line when it yields, or when a Runtime.Checkpoint call finds that a
// quantum has elapsed; a thread that does neither keeps running. Grounded
// on scheduler.c's
// rr_encolar_hilo/rr_siguiente_hilo/rr_remover_hilo, generalized so the
// running-thread requeue is handled once, uniformly, by the runtime's
// dispatch loop rather than duplicated in every policy's PickNext.
type RoundRobin struct {
	mu         sync.Mutex
	head, tail *tcb.TCB

	quantum  time.Duration
	preempt  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
}

var (
	_ tcb.Scheduler = (*RoundRobin)(nil)
	_ Preemptible   = (*RoundRobin)(nil)
)

// NewRoundRobin constructs a RoundRobin policy and, if quantum is positive,
// arms a periodic timer that requests a preemption once per quantum. A
// non-positive quantum disables time-slicing, leaving yield-driven
// scheduling as the only way threads change.
func NewRoundRobin(quantum time.Duration) *RoundRobin {
	rr := &RoundRobin{quantum: quantum, stop: make(chan struct{})}
	if quantum > 0 {
		go rr.tick()
	}
	return rr
}

func (rr *RoundRobin) tick() {
	t := time.NewTicker(rr.quantum)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			rr.preempt.Store(true)
		case <-rr.stop:
			return
		}
	}
}

// Close stops the quantum timer. Safe to call more than once.
func (rr *RoundRobin) Close() {
	rr.stopOnce.Do(func() { close(rr.stop) })
}

// TakePreemptionRequest implements Preemptible.
func (rr *RoundRobin) TakePreemptionRequest() bool {
	return rr.preempt.CompareAndSwap(true, false)
}

// Tag implements tcb.Scheduler.
func (rr *RoundRobin) Tag() tcb.PolicyTag { return tcb.PolicyRoundRobin }

// Enqueue implements tcb.Scheduler.
func (rr *RoundRobin) Enqueue(t *tcb.TCB) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	t.Scheduler = rr
	t.State = tcb.StateReady
	rr.head, rr.tail = appendTail(rr.head, rr.tail, t)
}

// PickNext implements tcb.Scheduler: pops the head of the FIFO.
func (rr *RoundRobin) PickNext() *tcb.TCB {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if rr.head == nil {
		return nil
	}
	chosen := rr.head
	rr.head = chosen.Next
	if rr.head == nil {
		rr.tail = nil
	}
	chosen.Next = nil
	chosen.State = tcb.StateRunning
	return chosen
}

// Remove implements tcb.Scheduler.
func (rr *RoundRobin) Remove(t *tcb.TCB) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.head, rr.tail, _ = removeMatch(rr.head, rr.tail, t)
}
