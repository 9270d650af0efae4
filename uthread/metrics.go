package uthread

import "sync/atomic"

// Metrics accumulates scheduler activity counters, grounded in the
// teacher's atomic-counter metrics.go: every field is updated with
// sync/atomic rather than under the scheduler's own lock, so reading
// metrics never contends with dispatch.
type Metrics struct {
	dispatches    atomic.Int64
	spawns        atomic.Int64
	terminations  atomic.Int64
	blocks        atomic.Int64
	resumes       atomic.Int64
	mutexContends atomic.Int64
	mutexHandoffs atomic.Int64
}

// NewMetrics returns a zeroed Metrics, ready to be passed as a
// sched.Observer.
func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) ObserveDispatch(from, to ThreadID, totalQuantums int) { m.dispatches.Add(1) }
func (m *Metrics) ObserveSpawn(id ThreadID)                             { m.spawns.Add(1) }
func (m *Metrics) ObserveTerminate(id ThreadID)                         { m.terminations.Add(1) }
func (m *Metrics) ObserveBlock(id ThreadID)                             { m.blocks.Add(1) }
func (m *Metrics) ObserveResume(id ThreadID)                            { m.resumes.Add(1) }
func (m *Metrics) ObserveMutexContend(id ThreadID)                      { m.mutexContends.Add(1) }
func (m *Metrics) ObserveMutexHandoff(id ThreadID)                      { m.mutexHandoffs.Add(1) }

// Dispatches reports the total number of scheduler dispatch events.
func (m *Metrics) Dispatches() int64 { return m.dispatches.Load() }

// Spawns reports the total number of threads ever spawned.
func (m *Metrics) Spawns() int64 { return m.spawns.Load() }

// Terminations reports the total number of threads ever terminated.
func (m *Metrics) Terminations() int64 { return m.terminations.Load() }

// Blocks reports the total number of Block calls that actually blocked a
// thread.
func (m *Metrics) Blocks() int64 { return m.blocks.Load() }

// Resumes reports the total number of Resume calls that actually resumed a
// blocked thread.
func (m *Metrics) Resumes() int64 { return m.resumes.Load() }

// MutexContends reports how many times a thread had to wait for the mutex.
func (m *Metrics) MutexContends() int64 { return m.mutexContends.Load() }

// MutexHandoffs reports how many times mutex ownership passed directly from
// one thread to a waiter.
func (m *Metrics) MutexHandoffs() int64 { return m.mutexHandoffs.Load() }

// CurrentMetrics returns the Metrics instance backing the currently
// initialized scheduler, or nil if uthread.Init has not been called.
func CurrentMetrics() *Metrics {
	mu.Lock()
	defer mu.Unlock()
	return metrics
}
