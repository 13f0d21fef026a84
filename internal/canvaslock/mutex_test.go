package canvaslock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullcoop/cothread/internal/canvaslock"
	"github.com/nullcoop/cothread/internal/obslog"
	"github.com/nullcoop/cothread/internal/tcb"
)

// fakeDispatcher drives a Mutex in tests without a real runtime: instead of
// parking goroutines, BlockCurrent just records that blocking happened so
// assertions can check FIFO hand-off order without a real carrier swap.
type fakeDispatcher struct {
	current *tcb.TCB
	blocked []int64
	resumed []int64
}

func (f *fakeDispatcher) Current() *tcb.TCB { return f.current }

func (f *fakeDispatcher) BlockCurrent() {
	f.blocked = append(f.blocked, f.current.TID)
}

func (f *fakeDispatcher) Resume(t *tcb.TCB) {
	f.resumed = append(f.resumed, t.TID)
}

func TestMutex_LockUnlockUncontended(t *testing.T) {
	d := &fakeDispatcher{current: &tcb.TCB{TID: 1}}
	m := canvaslock.New(d)

	require.NoError(t, m.Lock())
	require.NoError(t, m.Unlock())
	assert.Empty(t, d.blocked)
}

func TestMutex_RecursiveLockRejected(t *testing.T) {
	d := &fakeDispatcher{current: &tcb.TCB{TID: 1}}
	m := canvaslock.New(d)

	require.NoError(t, m.Lock())
	assert.ErrorIs(t, m.Lock(), canvaslock.ErrRecursiveLock)
}

func TestMutex_UnlockByNonOwnerRejected(t *testing.T) {
	owner := &tcb.TCB{TID: 1}
	d := &fakeDispatcher{current: owner}
	m := canvaslock.New(d)
	require.NoError(t, m.Lock())

	d.current = &tcb.TCB{TID: 2}
	assert.ErrorIs(t, m.Unlock(), canvaslock.ErrNotOwner)
}

func TestMutex_ContentionBlocksAndHandsOffFIFO(t *testing.T) {
	a := &tcb.TCB{TID: 1}
	b := &tcb.TCB{TID: 2}
	c := &tcb.TCB{TID: 3}

	d := &fakeDispatcher{current: a}
	m := canvaslock.New(d)
	require.NoError(t, m.Lock())

	d.current = b
	require.NoError(t, m.Lock())
	assert.Equal(t, tcb.StateBlocked, b.State)

	d.current = c
	require.NoError(t, m.Lock())
	assert.Equal(t, tcb.StateBlocked, c.State)

	assert.Equal(t, []int64{2, 3}, d.blocked)

	d.current = a
	require.NoError(t, m.Unlock())
	require.Equal(t, []int64{2}, d.resumed)
	assert.Equal(t, tcb.StateReady, b.State)

	d.current = b
	require.NoError(t, m.Unlock())
	require.Equal(t, []int64{2, 3}, d.resumed)
	assert.Equal(t, tcb.StateReady, c.State)

	d.current = c
	require.NoError(t, m.Unlock())
	assert.Equal(t, []int64{2, 3}, d.resumed)
}

func TestMutex_TryLockDoesNotBlock(t *testing.T) {
	a := &tcb.TCB{TID: 1}
	b := &tcb.TCB{TID: 2}
	d := &fakeDispatcher{current: a}
	m := canvaslock.New(d)
	require.NoError(t, m.Lock())

	d.current = b
	assert.ErrorIs(t, m.TryLock(), canvaslock.ErrMutexBusy)
	assert.Empty(t, d.blocked)
}

func TestMutex_DestroyRejectsWithWaiters(t *testing.T) {
	a := &tcb.TCB{TID: 1}
	b := &tcb.TCB{TID: 2}
	d := &fakeDispatcher{current: a}
	m := canvaslock.New(d)
	require.NoError(t, m.Lock())

	d.current = b
	require.NoError(t, m.Lock())

	assert.ErrorIs(t, m.Destroy(), canvaslock.ErrMutexHasWaiters)
}

func TestMutex_ObserverRecordsContentionAndHandoff(t *testing.T) {
	a := &tcb.TCB{TID: 1}
	b := &tcb.TCB{TID: 2}
	d := &fakeDispatcher{current: a}

	metrics := &obslog.Metrics{}
	m := canvaslock.New(d, canvaslock.WithObserver(nil, metrics))
	require.NoError(t, m.Lock())

	assert.Zero(t, metrics.Snapshot().MutexContends)

	d.current = b
	require.NoError(t, m.Lock())
	assert.Equal(t, int64(1), metrics.Snapshot().MutexContends)

	d.current = a
	require.NoError(t, m.Unlock())
	assert.Equal(t, int64(1), metrics.Snapshot().MutexContends, "unlock itself does not record a new contention")
}

func TestMutex_OccupancyMap(t *testing.T) {
	d := &fakeDispatcher{current: &tcb.TCB{TID: 1}}
	m := canvaslock.New(d)

	assert.False(t, m.IsOccupied(2, 2, 10, 10, 1))
	m.MarkOccupied(2, 2, 1)
	assert.False(t, m.IsOccupied(2, 2, 10, 10, 1), "owner sees its own claim as free")
	assert.True(t, m.IsOccupied(2, 2, 10, 10, 2), "another thread sees it as occupied")
	assert.True(t, m.IsOccupied(-1, 0, 10, 10, 1), "out of bounds counts as occupied")

	m.ReleaseOccupied(2, 2, 1)
	assert.False(t, m.IsOccupied(2, 2, 10, 10, 2))
}
