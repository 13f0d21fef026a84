// Command asciicanvas is a minimal, deterministic demonstration of the
// cothread runtime: a handful of named shapes cooperate over a shared grid,
// claiming and releasing cells through canvaslock's occupancy map while the
// runtime dispatches them under RoundRobin. One additional shape is admitted
// under EDF and then live-migrated onto the shared RR queue, exercising
// ChangeScheduler the way a collaborator folding a one-off urgent task into
// steady-state scheduling would.
//
// This is a collaborator exercising the runtime end to end, not a rendering
// engine: no ncurses, no terminal escape sequences, no TCP, no config-file
// parsing - all out of scope per spec. Output is a deterministic trace of
// what each shape did, in the order the runtime actually dispatched them,
// followed by a metrics summary.
package main

import (
	"fmt"
	"os"
	"time"

	cothread "github.com/nullcoop/cothread"
	"github.com/nullcoop/cothread/internal/canvaslock"
	"github.com/nullcoop/cothread/internal/sched"
)

const (
	gridWidth  = 10
	gridHeight = 4
	stackSize  = 64 * 1024
)

// shape is one cooperating thread's claim on a single grid cell.
type shape struct {
	name string
	x, y int
}

func main() {
	rt := cothread.New(cothread.WithMetrics(true))
	rr := sched.NewRoundRobin(0)
	defer rr.Close()
	canvas := rt.NewMutex()

	var trace []string
	logf := func(format string, args ...any) {
		trace = append(trace, fmt.Sprintf(format, args...))
	}

	// tank wants the same cell as glider, so the second of the two to run
	// finds it already claimed; scout's cell never contends.
	shapes := []shape{
		{name: "glider", x: 1, y: 1},
		{name: "tank", x: 1, y: 1},
		{name: "scout", x: 2, y: 1},
	}

	for _, s := range shapes {
		s := s
		var tid int64
		spawned, err := rt.Spawn(func(any) {
			runShape(rt, canvas, s, tid, logf)
		}, nil, rr, stackSize, 0, 0, 0)
		if err != nil {
			fatalf("spawn %s: %v", s.name, err)
		}
		tid = spawned
	}

	// siren is admitted under EDF ahead of Run, so no preemption fires (no
	// thread is running yet); ChangeScheduler then folds it onto the same
	// RR queue as everything else before the runtime starts, demonstrating
	// live migration rather than admission preemption.
	edf := sched.NewEDF(rt)
	sirenTID, err := rt.Spawn(func(any) {
		logf("siren: urgent pass, no cell claimed")
	}, nil, edf, stackSize, 0, 0, 10*time.Millisecond)
	if err != nil {
		fatalf("spawn siren: %v", err)
	}
	if err := rt.ChangeScheduler(sirenTID, rr); err != nil {
		fatalf("migrate siren: %v", err)
	}

	if err := rt.Run(rr); err != nil {
		fatalf("run: %v", err)
	}

	for _, line := range trace {
		fmt.Println(line)
	}
	snap := rt.Metrics()
	fmt.Printf(
		"dispatches=%d threads_created=%d threads_ended=%d mutex_contends=%d thread_count=%d\n",
		snap.Dispatches, snap.ThreadsCreated, snap.ThreadsEnded, snap.MutexContends, rt.ThreadCount(),
	)
}

// runShape claims s's cell if free, yields once, then releases it if this
// thread was the one holding it. Claim and release each happen under the
// canvas lock, matching spec.md's rule that the occupancy map is only ever
// mutated while holding the mutex. tid is this shape's own thread id, the
// key IsOccupied uses to tell "I already own this cell" from "someone else
// does".
func runShape(rt *cothread.Runtime, canvas *canvaslock.Mutex, s shape, tid int64, logf func(string, ...any)) {
	claimed := lockAndClaim(canvas, s, tid, logf)
	rt.Yield()
	if claimed {
		lockAndRelease(canvas, s, tid, logf)
	}
}

func lockAndClaim(canvas *canvaslock.Mutex, s shape, tid int64, logf func(string, ...any)) bool {
	if err := canvas.Lock(); err != nil {
		fatalf("%s: lock: %v", s.name, err)
	}
	defer func() { _ = canvas.Unlock() }()

	if canvas.IsOccupied(s.x, s.y, gridWidth, gridHeight, tid) {
		logf("%s: (%d,%d) already occupied, skipping", s.name, s.x, s.y)
		return false
	}
	canvas.MarkOccupied(s.x, s.y, tid)
	logf("%s: claimed (%d,%d)", s.name, s.x, s.y)
	return true
}

func lockAndRelease(canvas *canvaslock.Mutex, s shape, tid int64, logf func(string, ...any)) {
	if err := canvas.Lock(); err != nil {
		fatalf("%s: lock: %v", s.name, err)
	}
	defer func() { _ = canvas.Unlock() }()
	canvas.ReleaseOccupied(s.x, s.y, tid)
	logf("%s: released (%d,%d)", s.name, s.x, s.y)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
