// Package cothread implements a user-space cooperative threading runtime: a
// single logical CPU multiplexed across any number of goroutine-backed
// "threads" by one of three pluggable scheduling policies.
//
// # Architecture
//
// A Runtime owns a thread pool (internal/tcb), a dispatcher that performs
// every context switch, and a preemption checkpoint threads can poll in
// long-running loops. Each thread's execution context is a carrier
// (internal/carrier): a goroutine parked on an unbuffered channel, resumed
// by a channel send and suspended by a channel receive on its own channel.
// That send/receive pair is this runtime's swap(from, to) - the safe-Go
// stand-in for swapping a raw machine context.
//
// Three scheduling policies live in internal/sched: RoundRobin (FIFO,
// time-sliced), Lottery (ticket-weighted random selection) and EDF
// (earliest-deadline-first, the only policy that can preempt immediately on
// admission rather than waiting for the running thread to yield). A thread
// is bound to exactly one policy at a time; ChangeScheduler moves it.
//
// internal/canvaslock provides the blocking, FIFO-fair mutex collaborator
// threads use to serialize access to a shared resource, plus an occupancy
// map for tracking which cells of a 2D canvas are claimed by which thread.
//
// # Thread-safety
//
// A Runtime's public methods are safe to call concurrently from multiple
// goroutines, but the model they implement has exactly one logical CPU:
// at most one thread is ever StateRunning. Every suspension point (Yield,
// End, Join, a blocking Mutex.Lock) hands the CPU to the dispatcher before
// returning control to user code, and the dispatcher's own critical
// section - updating which thread is current, and signalling its carrier -
// is held only long enough to perform that handoff, never for the
// duration of the thread it switches to.
//
// # Preemption
//
// RoundRobin and Lottery each arm a periodic quantum timer. Because Go
// provides no safe way to halt an arbitrary goroutine's execution from the
// outside, a timer tick does not itself force a context switch: it sets a
// flag that Runtime.Checkpoint consults. Collaborator thread bodies that
// want time-sliced fairness are expected to call Checkpoint periodically
// inside any loop that does not otherwise suspend. Yield and End always
// dispatch, and Join dispatches whenever it has to wait; none of them
// checks the timer flag. A thread that loops without ever calling
// Checkpoint or one of them keeps the CPU until it returns.
//
// # Example
//
//	rt := cothread.New(cothread.WithMetrics(true))
//	rr := sched.NewRoundRobin(50 * time.Millisecond)
//	defer rr.Close()
//
//	tid, err := rt.Spawn(func(arg any) {
//		for i := 0; i < 10; i++ {
//			rt.Checkpoint()
//		}
//	}, nil, rr, 64*1024, 0, 0, 0)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := rt.Run(rr); err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(rt.AliveCount()) // 0, everything spawned has terminated
//	_ = tid
package cothread
