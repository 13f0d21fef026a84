package sched

import (
	"sync"

	"github.com/nullcoop/cothread/internal/tcb"
)

// EDF is earliest-deadline-first: the ready thread with the smallest
// absolute deadline always runs next. Grounded on scheduler.c's
// edf_encolar_hilo/edf_siguiente_hilo, including the one behavior no other
// policy has: admitting a thread with a strictly earlier deadline than the
// one currently running preempts immediately, from inside Enqueue itself,
// rather than waiting for the running thread to yield.
//
// Unlike RoundRobin and Lottery, a PickNext here does not unlink the
// winner: per spec, EDF keeps every admitted TCB resident in its list
// across Ready/Running cycles, and only Remove changes membership of a TCB
// once it is admitted. Enqueue is therefore
// idempotent for a TCB already resident - re-admitting it after a yield
// just flips it back to Ready in place, preserving its original list
// position for tie-breaking.
type EDF struct {
	mu         sync.Mutex
	head, tail *tcb.TCB
	members    map[*tcb.TCB]struct{}
	hooks      Hooks
}

var _ tcb.Scheduler = (*EDF)(nil)

// NewEDF constructs an EDF policy. hooks gives it the narrow capability it
// needs to preempt: asking who is running, and forcing a switch into an
// already-chosen thread. EDF arms no periodic timer; admission is its only
// trigger for a context switch.
func NewEDF(hooks Hooks) *EDF {
	return &EDF{hooks: hooks, members: make(map[*tcb.TCB]struct{})}
}

// Tag implements tcb.Scheduler.
func (e *EDF) Tag() tcb.PolicyTag { return tcb.PolicyEDF }

// Enqueue implements tcb.Scheduler. A TCB already resident in this list
// (e.g. re-admitted after a yield) is only flipped back to Ready, not
// relinked, keeping its original admission order for tie-breaking.
func (e *EDF) Enqueue(t *tcb.TCB) {
	e.mu.Lock()
	t.Scheduler = e
	t.State = tcb.StateReady
	if _, resident := e.members[t]; !resident {
		e.members[t] = struct{}{}
		e.head, e.tail = appendTail(e.head, e.tail, t)
	}

	var preemptNext *tcb.TCB
	if cur := e.hooks.Current(); cur != nil && cur != t && cur.State == tcb.StateRunning && t.Deadline < cur.Deadline {
		cur.State = tcb.StateReady
		preemptNext = e.pickNextLocked()
	}
	e.mu.Unlock()

	if preemptNext != nil {
		e.hooks.Preempt(preemptNext)
	}
}

// PickNext implements tcb.Scheduler: the Ready entry with the smallest
// Deadline wins; ties favor whichever was admitted first. The winner stays
// linked in the list, only its State changes to Running.
func (e *EDF) PickNext() *tcb.TCB {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pickNextLocked()
}

func (e *EDF) pickNextLocked() *tcb.TCB {
	var best *tcb.TCB
	for it := e.head; it != nil; it = it.Next {
		if it.State == tcb.StateReady && (best == nil || it.Deadline < best.Deadline) {
			best = it
		}
	}
	if best == nil {
		return nil
	}
	best.State = tcb.StateRunning
	return best
}

// Remove implements tcb.Scheduler: the only way a resident TCB leaves the
// list before termination.
func (e *EDF) Remove(t *tcb.TCB) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var found bool
	e.head, e.tail, found = removeMatch(e.head, e.tail, t)
	if found {
		delete(e.members, t)
	}
}
