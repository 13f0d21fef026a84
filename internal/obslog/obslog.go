// Package obslog is the runtime's structured-logging and metrics surface.
// Logging goes through github.com/joeycumines/logiface, the same
// generics-based logging facade the teacher module exposes, using
// github.com/joeycumines/stumpy as the concrete JSON-writing backend - the
// "model" logger of that ecosystem. Metrics are a handful of atomic
// counters, the same shape as the teacher's own FastState-adjacent
// bookkeeping, scaled down to what a single-CPU scheduler needs to report.
package obslog

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger wraps a logiface.Logger[*stumpy.Event], giving the rest of the
// runtime a small, domain-named surface instead of spreading logiface
// construction calls throughout the scheduler and dispatcher.
type Logger struct {
	base *logiface.Logger[*stumpy.Event]
}

// New constructs a Logger writing newline-delimited JSON to w. A nil w
// defaults to os.Stderr.
//
// The io.Writer goes in through stumpy's own package-level WithWriter
// option, nested inside WithStumpy: stumpy.L.WithWriter is the *promoted*
// logiface.LoggerFactory.WithWriter, which wants a logiface.Writer[*Event]
// (one whose Write takes a *stumpy.Event), not an io.Writer - passing w
// there directly does not satisfy that interface.
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		base: stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		),
	}
}

// Dispatch logs a context switch at debug level.
func (l *Logger) Dispatch(fromTID, toTID int64, policy string) {
	l.base.Debug().
		Int64("from_tid", fromTID).
		Int64("to_tid", toTID).
		Str("policy", policy).
		Log("dispatch")
}

// ThreadEvent logs a lifecycle transition (create, end, join, detach,
// chsched) at info level.
func (l *Logger) ThreadEvent(event string, tid int64) {
	l.base.Info().
		Str("event", event).
		Int64("tid", tid).
		Log("thread event")
}

// MutexEvent logs a mutex operation at debug level.
func (l *Logger) MutexEvent(event string, tid int64) {
	l.base.Debug().
		Str("event", event).
		Int64("tid", tid).
		Log("mutex event")
}

// Error logs err at error level with a message.
func (l *Logger) Error(msg string, err error) {
	l.base.Err().
		Err(err).
		Log(msg)
}

// Metrics is a small set of atomic counters the runtime updates as threads
// move through the dispatcher. Safe for concurrent use.
type Metrics struct {
	dispatches     atomic.Int64
	threadsCreated atomic.Int64
	threadsEnded   atomic.Int64
	mutexContends  atomic.Int64
}

// RecordDispatch increments the dispatch counter.
func (m *Metrics) RecordDispatch() { m.dispatches.Add(1) }

// RecordThreadCreated increments the created-thread counter.
func (m *Metrics) RecordThreadCreated() { m.threadsCreated.Add(1) }

// RecordThreadEnded increments the terminated-thread counter.
func (m *Metrics) RecordThreadEnded() { m.threadsEnded.Add(1) }

// RecordMutexContention increments the mutex-contention counter.
func (m *Metrics) RecordMutexContention() { m.mutexContends.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Dispatches     int64
	ThreadsCreated int64
	ThreadsEnded   int64
	MutexContends  int64
}

// Snapshot reads all counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Dispatches:     m.dispatches.Load(),
		ThreadsCreated: m.threadsCreated.Load(),
		ThreadsEnded:   m.threadsEnded.Load(),
		MutexContends:  m.mutexContends.Load(),
	}
}
