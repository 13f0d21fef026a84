package tcb

import (
	"github.com/nullcoop/cothread/internal/carrier"
)

// Scheduler is the contract every scheduling policy implements. A TCB is
// owned by at most one Scheduler at a time, tracked in its Scheduler field;
// ChangeScheduler moves it between them.
//
// The runtime calls Enqueue, PickNext and Remove without holding its own
// dispatch lock, so each implementation guards its ready list with a lock of
// its own; a policy that preempts from inside Enqueue (EDF) releases that
// lock before calling back into the runtime.
type Scheduler interface {
	// Enqueue admits t as StateReady, appending it to whatever ordering the
	// policy maintains. Some policies (EDF) may react to admission by
	// preempting the currently running thread.
	Enqueue(t *TCB)
	// PickNext selects the next thread to run from the ready set and marks
	// it StateRunning. Returns nil if nothing is ready. It does not re-admit
	// the previously running thread: the runtime enqueues that thread again
	// before asking. RoundRobin and Lottery unlink the chosen thread from
	// their list; EDF keeps it resident.
	PickNext() *TCB
	// Remove drops t from the ready set if present. A no-op if t is not
	// currently tracked by this scheduler.
	Remove(t *TCB)
	// Tag identifies the policy for diagnostics and the active-policy
	// accessor.
	Tag() PolicyTag
}

// PolicyTag names a scheduling policy.
type PolicyTag int

const (
	PolicyRoundRobin PolicyTag = iota
	PolicyLottery
	PolicyEDF
)

func (p PolicyTag) String() string {
	switch p {
	case PolicyRoundRobin:
		return "round-robin"
	case PolicyLottery:
		return "lottery"
	case PolicyEDF:
		return "edf"
	default:
		return "unknown"
	}
}

// TCB is a thread control block: everything the runtime needs to track,
// schedule and resume one cooperative thread.
type TCB struct {
	TID   int64
	State State

	// Scheduler is the policy this TCB is currently admitted to.
	Scheduler Scheduler

	// Tickets is the lottery-policy weight; ignored by other policies.
	Tickets int
	// Priority is reserved for policies that want a static priority; the
	// shipped policies don't use it, but collaborators may read it.
	Priority int
	// Deadline is the EDF absolute deadline, in milliseconds relative to
	// runtime construction. Ignored by other policies.
	Deadline int64

	// StackSize is accounting/validation only: the actual execution
	// context is a goroutine stack, grown and shrunk by the Go runtime.
	// A non-positive value is rejected at creation time so the field still
	// carries its original validation role.
	StackSize int

	// Carrier is this thread's execution context.
	Carrier *carrier.Carrier

	// Next links TCBs into whatever singly-linked ready list the owning
	// scheduler maintains. It belongs to the scheduler, not to general
	// callers.
	Next *TCB

	// Detached marks a thread whose exit status nobody will collect.
	Detached bool

	// Waiters holds the TCBs parked in Join against this thread. They are
	// woken (re-admitted to their own scheduler) when this thread
	// terminates. Blocking here is cooperative: a joiner is marked
	// StateBlocked and dispatched away, not parked on a raw channel, so
	// the logical CPU keeps making progress on other ready threads.
	Waiters []*TCB

	// MutexWaitNext links this TCB into a canvaslock.Mutex's FIFO waiter
	// list while StateBlocked on that mutex.
	MutexWaitNext *TCB
}
