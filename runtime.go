package cothread

import (
	"fmt"
	"sync"
	"time"

	"github.com/nullcoop/cothread/internal/canvaslock"
	"github.com/nullcoop/cothread/internal/carrier"
	"github.com/nullcoop/cothread/internal/obslog"
	"github.com/nullcoop/cothread/internal/sched"
	"github.com/nullcoop/cothread/internal/tcb"
)

// Runtime is the single logical CPU: it owns the thread pool, performs
// every context switch, and arbitrates between whichever scheduling
// policies its threads are currently admitted to.
//
// A Runtime implements sched.Hooks (so an EDF policy can ask who is
// running and force an admission preemption) and canvaslock.Dispatcher (so
// a Mutex can block and resume threads), without either of those packages
// importing this one - the dependency runs the other way, avoiding a
// cycle.
type Runtime struct {
	pool       *tcb.Pool
	log        *obslog.Logger
	maxThreads int

	metricsEnabled bool
	metrics        *obslog.Metrics

	startedAt time.Time

	dispatchMu sync.Mutex
	current    *tcb.TCB

	// idle is signalled once, non-blocking, the moment the last thread
	// terminates and no other is ready - the handoff back to whichever
	// goroutine called Run, mirroring main()'s swapcontext(&scheduler_ctx, ...)
	// in the system this runtime is modeled on.
	idle chan struct{}
}

// New constructs a Runtime. Threads are admitted to it only once Spawn is
// called with a scheduler they should run under.
func New(opts ...RuntimeOption) *Runtime {
	cfg := resolveRuntimeOptions(opts)
	r := &Runtime{
		pool:           tcb.NewPool(),
		log:            obslog.New(cfg.logWriter),
		maxThreads:     cfg.maxThreads,
		metricsEnabled: cfg.metricsEnabled,
		startedAt:      time.Now(),
		idle:           make(chan struct{}, 1),
	}
	if r.metricsEnabled {
		r.metrics = &obslog.Metrics{}
	}
	return r
}

// Metrics returns a snapshot of the runtime's counters. Returns the zero
// Snapshot if metrics were not enabled via WithMetrics.
func (r *Runtime) Metrics() obslog.Snapshot {
	if r.metrics == nil {
		return obslog.Snapshot{}
	}
	return r.metrics.Snapshot()
}

// AliveCount returns the number of created threads that have not yet
// terminated.
func (r *Runtime) AliveCount() int {
	return r.pool.AliveCount()
}

// ThreadCount returns the total number of threads Spawn has ever admitted,
// alive or terminated - the high-water mark WithMaxThreads checks against.
func (r *Runtime) ThreadCount() int {
	return r.pool.Len()
}

// NewMutex constructs a canvaslock.Mutex driven by this Runtime, wired to
// the same logger and metrics Spawn and the dispatcher already report
// through, so contended locks and hand-offs show up in Metrics and in the
// structured log alongside everything else.
func (r *Runtime) NewMutex() *canvaslock.Mutex {
	return canvaslock.New(r, canvaslock.WithObserver(r.log, r.metrics))
}

// ActivePolicy reports the scheduling policy of whichever thread currently
// holds the logical CPU. ok is false if no thread is running.
func (r *Runtime) ActivePolicy() (tag tcb.PolicyTag, ok bool) {
	self := r.Current()
	if self == nil || self.Scheduler == nil {
		return 0, false
	}
	return self.Scheduler.Tag(), true
}

// Current implements sched.Hooks and canvaslock.Dispatcher.
func (r *Runtime) Current() *tcb.TCB {
	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()
	return r.current
}

// Preempt implements sched.Hooks: EDF calls this, with next already chosen,
// to force an immediate admission-preemption context switch.
func (r *Runtime) Preempt(next *tcb.TCB) {
	r.dispatchMu.Lock()
	prev := r.current
	r.dispatchMu.Unlock()
	r.swap(prev, next)
}

// BlockCurrent implements canvaslock.Dispatcher: the caller has already set
// the current thread's state to StateBlocked and linked it into a mutex's
// waiter list; this dispatches away from it.
func (r *Runtime) BlockCurrent() {
	r.dispatchFrom(r.Current())
}

// Resume implements canvaslock.Dispatcher: re-admits a previously blocked
// thread to its own scheduler.
func (r *Runtime) Resume(t *tcb.TCB) {
	t.Scheduler.Enqueue(t)
}

// Run bootstraps the dispatcher: it hands the logical CPU to the first
// ready thread in initial and blocks until the whole runtime goes idle (the
// last thread has terminated and none is ready), mirroring main()'s
// swapcontext(&scheduler_ctx, &first->context) in the original program this
// runtime generalizes.
func (r *Runtime) Run(initial tcb.Scheduler) error {
	first := initial.PickNext()
	if first == nil {
		return ErrNoScheduler
	}

	r.dispatchMu.Lock()
	r.current = first
	first.State = tcb.StateRunning
	if r.metrics != nil {
		r.metrics.RecordDispatch()
	}
	r.log.Dispatch(0, first.TID, first.Scheduler.Tag().String())
	first.Carrier.Signal()
	r.dispatchMu.Unlock()

	<-r.idle
	return nil
}

// Spawn creates a new thread running fn(arg) under sch, and admits it as
// StateReady. stackSize is accounting/validation only (the real execution
// context is a goroutine stack the Go runtime manages); it is rejected if
// non-positive, preserving the original stack-size validation role.
// tickets matters only to a Lottery scheduler; deadline (relative to the
// call to Spawn) matters only to an EDF scheduler. Spawn stores a positive
// deadline as an absolute one, in milliseconds since the Runtime was
// constructed.
//
// Enqueueing onto an EDF scheduler may immediately preempt the calling
// thread if the new thread's deadline is earlier; Spawn then does not
// return to its caller until that caller is rescheduled.
func (r *Runtime) Spawn(fn func(arg any), arg any, sch tcb.Scheduler, stackSize, tickets, priority int, deadline time.Duration) (int64, error) {
	if fn == nil || sch == nil {
		return 0, ErrInvalidArgument
	}
	if stackSize <= 0 {
		return 0, ErrInvalidArgument
	}
	if tickets < 0 {
		return 0, ErrInvalidArgument
	}
	if r.maxThreads > 0 && r.pool.Len() >= r.maxThreads {
		return 0, ErrAllocationFailed
	}

	t := &tcb.TCB{
		State:     tcb.StateReady,
		Tickets:   tickets,
		Priority:  priority,
		StackSize: stackSize,
		Carrier:   carrier.New(),
	}
	if deadline > 0 {
		t.Deadline = time.Since(r.startedAt).Milliseconds() + deadline.Milliseconds()
	}

	tid := r.pool.Register(t)

	t.Carrier.Start(func() {
		defer r.End()
		fn(arg)
	})

	if r.metrics != nil {
		r.metrics.RecordThreadCreated()
	}
	r.log.ThreadEvent("create", tid)

	sch.Enqueue(t)
	return tid, nil
}

// Yield voluntarily gives up the logical CPU: the calling thread is
// re-admitted to its scheduler (at the back of the queue under RoundRobin
// and Lottery; EDF keeps its list position) and a new thread, if any is
// ready, is dispatched.
func (r *Runtime) Yield() {
	self := r.Current()
	if self == nil {
		return
	}
	self.State = tcb.StateReady
	r.log.ThreadEvent("yield", self.TID)
	r.dispatchFrom(self)
}

// Checkpoint is the cooperative stand-in for asynchronous timer-driven
// preemption: a thread body calls it at a safe point (a loop iteration
// boundary) and, if a quantum has elapsed since the last checkpoint, it
// behaves exactly like Yield. Forcibly interrupting a goroutine that never
// calls Checkpoint is not possible without unsafe runtime hacks, so
// RoundRobin and Lottery's periodic timers only request a dispatch here;
// they cannot compel one.
func (r *Runtime) Checkpoint() {
	self := r.Current()
	if self == nil || self.Scheduler == nil {
		return
	}
	if p, ok := self.Scheduler.(sched.Preemptible); ok && p.TakePreemptionRequest() {
		r.Yield()
	}
}

// End terminates the calling thread: it is marked StateTerminated, every
// thread parked in Join against it is woken, and the logical CPU is handed
// to whatever runs next. End never returns to its caller; the thread's
// carrier goroutine exits once the final dispatch away from it completes.
func (r *Runtime) End() {
	self := r.Current()
	if self == nil {
		return
	}
	self.State = tcb.StateTerminated
	if r.metrics != nil {
		r.metrics.RecordThreadEnded()
	}
	r.log.ThreadEvent("end", self.TID)

	waiters := self.Waiters
	self.Waiters = nil
	for _, w := range waiters {
		w.State = tcb.StateReady
		w.Scheduler.Enqueue(w)
	}

	r.dispatchFrom(self)
}

// Join blocks the calling thread until the thread identified by tid
// terminates, returning immediately if it already has. Returns
// ErrJoinSelf, ErrUnknownThread or ErrAlreadyDetached as appropriate.
func (r *Runtime) Join(tid int64) error {
	self := r.Current()
	if self == nil {
		return ErrNoCurrentThread
	}
	if self.TID == tid {
		return ErrJoinSelf
	}
	target := r.pool.Lookup(tid)
	if target == nil {
		return wrapError(fmt.Sprintf("join tid %d", tid), ErrUnknownThread)
	}
	if target.Detached {
		return ErrAlreadyDetached
	}
	if target.State == tcb.StateTerminated {
		return nil
	}

	self.State = tcb.StateBlocked
	target.Waiters = append(target.Waiters, self)
	r.log.ThreadEvent("join-block", self.TID)
	r.dispatchFrom(self)
	return nil
}

// Detach marks tid as detached: no future Join against it will block, and
// its terminated TCB may be reused for diagnostics but will never wake a
// waiter. Returns ErrUnknownThread or ErrAlreadyDetached as appropriate.
func (r *Runtime) Detach(tid int64) error {
	target := r.pool.Lookup(tid)
	if target == nil {
		return ErrUnknownThread
	}
	if target.Detached {
		return ErrAlreadyDetached
	}
	target.Detached = true
	r.log.ThreadEvent("detach", tid)
	return nil
}

// ChangeScheduler moves tid from whatever scheduler it is currently
// admitted to onto sch, re-admitting it as StateReady. Calling this on the
// currently running thread does not interrupt it: the new policy only
// takes effect at the thread's next suspension, matching
// my_thread_chsched's behavior in the original program this runtime
// generalizes.
func (r *Runtime) ChangeScheduler(tid int64, sch tcb.Scheduler) error {
	if sch == nil {
		return ErrInvalidArgument
	}
	target := r.pool.Lookup(tid)
	if target == nil {
		return ErrUnknownThread
	}
	if target.Scheduler != nil {
		target.Scheduler.Remove(target)
	}
	if target == r.Current() {
		// dispatchFrom re-admits the running thread to sch at its next
		// suspension; enqueueing it now would link it into sch's ready list
		// while it still holds the CPU.
		target.Scheduler = sch
	} else {
		sch.Enqueue(target)
	}
	r.log.ThreadEvent("chsched", tid)
	return nil
}

// dispatchFrom is the generic, policy-agnostic half of the dispatcher: it
// re-admits prev to its own scheduler if prev is still Ready, asks that
// scheduler for what runs next, and performs the swap. Yield, End, Join and
// Mutex blocking all fund through here; only EDF's admission preemption
// (Preempt, above) bypasses it, since that path already knows which thread
// runs next without asking a scheduler.
func (r *Runtime) dispatchFrom(prev *tcb.TCB) {
	if prev == nil {
		return
	}
	if prev.State == tcb.StateReady {
		prev.Scheduler.Enqueue(prev)
	}
	next := prev.Scheduler.PickNext()
	r.swap(prev, next)
}

// swap performs the dispatchMu-guarded half of a context switch: updating
// r.current and signalling next's carrier happen atomically with respect to
// any other goroutine reading r.current (Current, and the admission
// preemption path), the same "mask the timer signal" discipline the
// original program applies around schedule() and policy mutation. The
// actual suspension of prev happens outside the lock, since parking can
// take arbitrarily long and must not block anyone else's dispatch.
func (r *Runtime) swap(prev, next *tcb.TCB) {
	r.dispatchMu.Lock()

	if next == nil {
		if prev != nil && prev.State == tcb.StateTerminated {
			r.current = nil
			select {
			case r.idle <- struct{}{}:
			default:
			}
		}
		r.dispatchMu.Unlock()
		return
	}

	if next == prev {
		r.current = next
		r.dispatchMu.Unlock()
		return
	}

	r.current = next
	next.State = tcb.StateRunning
	if r.metrics != nil {
		r.metrics.RecordDispatch()
	}
	r.log.Dispatch(tidOrZero(prev), next.TID, next.Scheduler.Tag().String())
	next.Carrier.Signal()
	r.dispatchMu.Unlock()

	// A terminated prev's carrier goroutine simply returns; parking it
	// would leak the goroutine forever, since nothing will ever resume a
	// terminated thread.
	if prev != nil && prev.State != tcb.StateTerminated {
		prev.Carrier.Park()
	}
}

func tidOrZero(t *tcb.TCB) int64 {
	if t == nil {
		return 0
	}
	return t.TID
}
