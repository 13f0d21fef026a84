// Package sched implements the three pluggable scheduling policies: round
// robin, lottery and earliest-deadline-first. Each policy satisfies
// tcb.Scheduler; none of them import the runtime package that drives them,
// avoiding a dependency cycle. EDF instead depends on a small Hooks
// interface, injected at construction, that lets it reach back into
// whichever runtime owns it for the one behavior a pluggable policy cannot
// implement alone: preempting the currently running thread from inside its
// own Enqueue.
package sched

import "github.com/nullcoop/cothread/internal/tcb"

// Hooks is the capability EDF needs from its owning runtime: knowing who is
// currently running, and being able to force an immediate context switch
// into a specific, already-chosen thread.
type Hooks interface {
	// Current returns the TCB presently holding the logical CPU, or nil if
	// none is running yet.
	Current() *tcb.TCB
	// Preempt context-switches away from whatever Current returns and into
	// next. Called with next already selected; Preempt does not consult
	// any scheduler itself.
	Preempt(next *tcb.TCB)
}

// Preemptible is implemented by policies that arm a periodic quantum timer.
// The runtime's cooperative checkpoint consults it to decide whether a
// time-sliced dispatch is due. See RoundRobin and Lottery.
type Preemptible interface {
	// TakePreemptionRequest reports whether a quantum elapsed since the
	// last call, clearing the request atomically.
	TakePreemptionRequest() bool
}

// appendTail appends t to the singly linked ready list identified by head
// and tail, returning the (possibly updated) head and tail.
func appendTail(head, tail *tcb.TCB, t *tcb.TCB) (*tcb.TCB, *tcb.TCB) {
	t.Next = nil
	if tail == nil {
		return t, t
	}
	tail.Next = t
	return head, t
}

// removeMatch unlinks t from the singly linked ready list, returning the
// (possibly updated) head and tail and whether t was found.
func removeMatch(head, tail *tcb.TCB, t *tcb.TCB) (*tcb.TCB, *tcb.TCB, bool) {
	var prev *tcb.TCB
	cur := head
	for cur != nil {
		if cur == t {
			if prev == nil {
				head = cur.Next
			} else {
				prev.Next = cur.Next
			}
			if cur == tail {
				tail = prev
			}
			cur.Next = nil
			return head, tail, true
		}
		prev = cur
		cur = cur.Next
	}
	return head, tail, false
}
