package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oskern/oskern/uthread/internal/vtimer"
)

// newTestScheduler uses a real, short-quantum timer: without a timer firing
// periodically, thread 0 would never be checkpointed away, and spawned
// threads would never be dispatched at all. A 2ms quantum keeps tests fast
// while still exercising the same preemption path production code uses.
//
// A timer firing only sets preemptPending; the actual handoff happens on
// the next checkpoint() call made by whichever goroutine is currently
// running. A test goroutine that blocks on a plain channel receive (rather
// than calling back into the scheduler) never makes that call, so nothing
// would ever pick thread 0 back up. Real callers don't have this problem —
// they're always back in a library call within a quantum or two — so tests
// stand a pump goroutine in for that: it calls GetTID() in a tight loop,
// standing in for thread 0's own checkpoint duty whenever thread 0 is
// parked waiting on a result rather than actively computing.
func newTestScheduler(t *testing.T, maxThreads int) *Scheduler {
	t.Helper()
	s := New(Config{MaxThreads: maxThreads, StackSize: 4096}, vtimer.NewPosixTimer(), nil, nil)
	require.NoError(t, s.Init(2000))

	pumpDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-pumpDone:
				return
			default:
			}
			s.GetTID()
			time.Sleep(time.Millisecond)
		}
	}()

	t.Cleanup(func() {
		close(pumpDone)
		s.Shutdown()
	})
	return s
}

func TestInitInstallsThreadZero(t *testing.T) {
	s := newTestScheduler(t, 8)
	assert.Equal(t, ThreadID(0), s.GetTID())
	assert.Equal(t, 1, s.GetTotalQuantums())
	n, err := s.GetQuantums(0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSpawnAssignsSequentialIDs(t *testing.T) {
	s := newTestScheduler(t, 8)
	// A real timer can actually dispatch to these threads once spawned, so
	// their bodies must yield back through the scheduler (Block) rather
	// than park on a bare channel the scheduler knows nothing about -
	// otherwise a goroutine holding the scheduler's "running" slot would
	// never call back in, and nothing could ever dispatch away from it.
	id1, err := s.Spawn(func() { s.Block(s.GetTID()) })
	require.NoError(t, err)
	id2, err := s.Spawn(func() { s.Block(s.GetTID()) })
	require.NoError(t, err)
	assert.Equal(t, ThreadID(1), id1)
	assert.Equal(t, ThreadID(2), id2)
}

func TestSpawnResourceExhausted(t *testing.T) {
	s := newTestScheduler(t, 1)
	_, err := s.Spawn(func() {})
	require.Error(t, err)
	var schedErr *Error
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, ErrCodeResourceExhausted, schedErr.Code)
}

func TestPingPongQuantumAccounting(t *testing.T) {
	s := newTestScheduler(t, 8)

	var counter int64
	stop := make(chan struct{})
	ready := make(chan struct{})
	go func() {
		<-ready
	}()

	_, err := s.Spawn(func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			counter++
			s.GetTID() // checkpoints every iteration, matching P-A2/P-A3 expectations
		}
	})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for s.GetTotalQuantums() < 10 && time.Now().Before(deadline) {
		s.GetTID()
		time.Sleep(time.Millisecond)
	}
	close(stop)

	total := s.GetTotalQuantums()
	assert.GreaterOrEqual(t, total, 10)

	q0, err := s.GetQuantums(0)
	require.NoError(t, err)
	q1, err := s.GetQuantums(1)
	require.NoError(t, err)
	assert.Equal(t, total, q0+q1)
}

func TestBlockSelfDoesNotRunUntilResumed(t *testing.T) {
	s := newTestScheduler(t, 8)

	ran := make(chan ThreadID, 1)
	_, err := s.Spawn(func() {
		s.Block(1)
		ran <- s.GetTID()
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	select {
	case <-ran:
		t.Fatal("blocked thread resumed before Resume was called")
	default:
	}

	require.NoError(t, s.Resume(1))

	select {
	case id := <-ran:
		assert.Equal(t, ThreadID(1), id)
	case <-time.After(2 * time.Second):
		t.Fatal("thread never resumed")
	}
}

func TestTerminateFreesLowestID(t *testing.T) {
	s := newTestScheduler(t, 8)

	id1, err := s.Spawn(func() { s.Block(s.GetTID()) })
	require.NoError(t, err)
	id2, err := s.Spawn(func() { s.Block(s.GetTID()) })
	require.NoError(t, err)
	require.Equal(t, ThreadID(1), id1)
	require.Equal(t, ThreadID(2), id2)

	require.NoError(t, s.Terminate(id1))

	id3, err := s.Spawn(func() { s.Block(s.GetTID()) })
	require.NoError(t, err)
	assert.Equal(t, ThreadID(1), id3)
}

func TestMutexHandoffToWaiter(t *testing.T) {
	s := newTestScheduler(t, 8)

	acquired := make(chan ThreadID, 2)
	release := make(chan struct{})
	_, err := s.Spawn(func() {
		require.NoError(t, s.MutexLock())
		acquired <- s.GetTID()
		<-release
		require.NoError(t, s.MutexUnlock())
	})
	require.NoError(t, err)

	_, err = s.Spawn(func() {
		require.NoError(t, s.MutexLock())
		acquired <- s.GetTID()
		require.NoError(t, s.MutexUnlock())
	})
	require.NoError(t, err)

	first := <-acquired
	assert.Equal(t, ThreadID(1), first)
	close(release)

	second := <-acquired
	assert.Equal(t, ThreadID(2), second)
}

// A waiter that is Blocked while still in the mutex wait set (legal per
// spec.md §3.1: a thread may be Blocked and WaitingForMutex at once) must be
// skipped by unlock rather than handed the mutex; the mutex stays released
// until the waiter is resumed and reconsidered on a later unlock.
func TestMutexUnlockSkipsBlockedWaiter(t *testing.T) {
	s := newTestScheduler(t, 8)

	holderReady := make(chan struct{})
	release := make(chan struct{})
	unlocked := make(chan struct{})
	_, err := s.Spawn(func() {
		require.NoError(t, s.MutexLock())
		close(holderReady)
		<-release
		require.NoError(t, s.MutexUnlock())
		close(unlocked)
	})
	require.NoError(t, err)

	<-holderReady

	_, err = s.Spawn(func() {
		_ = s.MutexLock() // contends; this test never lets it proceed further
	})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		waiting := s.waits.has(2)
		s.mu.Unlock()
		if waiting {
			break
		}
		require.False(t, time.Now().After(deadline), "thread 2 never joined the mutex wait set")
		time.Sleep(time.Millisecond)
	}

	require.NoError(t, s.Block(2))
	s.mu.Lock()
	require.True(t, s.threads[2].blocked)
	s.mu.Unlock()

	close(release)
	select {
	case <-unlocked:
	case <-time.After(2 * time.Second):
		t.Fatal("holder never finished unlocking")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.False(t, s.mutexLocked, "mutex must stay released when every waiter is blocked")
	assert.False(t, s.mutexHasHolder)
	assert.True(t, s.waits.has(2), "blocked waiter must remain in the wait set")
	assert.False(t, s.ready.contains(2), "a blocked thread must never be pushed to the ready queue (P-A4)")
}

func TestMutexDoubleLockErrors(t *testing.T) {
	s := newTestScheduler(t, 8)
	done := make(chan error, 1)
	_, err := s.Spawn(func() {
		require.NoError(t, s.MutexLock())
		done <- s.MutexLock()
	})
	require.NoError(t, err)

	select {
	case err := <-done:
		require.Error(t, err)
		var schedErr *Error
		require.ErrorAs(t, err, &schedErr)
		assert.Equal(t, ErrCodeMutexProtocol, schedErr.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("thread never reported double-lock result")
	}
}
