// Package uthread implements the user-level cooperative/preemptive thread
// library: a single global scheduler multiplexing logical threads onto
// goroutines, matching the external surface of the original C uthreads.h
// (init/spawn/terminate/block/resume/mutex, all returning 0 or -1) while
// realizing its internals with Go-native primitives. See SPEC_FULL.md and
// DESIGN.md for the design rationale.
package uthread

import (
	"sync"

	"github.com/oskern/oskern/uthread/internal/logging"
	"github.com/oskern/oskern/uthread/internal/sched"
	"github.com/oskern/oskern/uthread/internal/vtimer"
)

// ThreadID identifies a logical thread; 0 is always the initial thread.
type ThreadID = sched.ThreadID

var (
	mu        sync.Mutex
	scheduler *sched.Scheduler
	metrics   *Metrics
	lastErr   struct {
		sync.Mutex
		err error
	}
)

func setLastError(err error) {
	lastErr.Lock()
	lastErr.err = err
	lastErr.Unlock()
}

// LastError returns the structured diagnostic for the most recent failed
// call on the global scheduler, from whichever goroutine made it, or nil if
// the last call succeeded. An additive extension over the original int-returning API: the
// int result alone (spec.md §6) remains authoritative for control flow.
func LastError() error {
	lastErr.Lock()
	defer lastErr.Unlock()
	return lastErr.err
}

func logAndFail(err error) int {
	if se, ok := err.(*sched.Error); ok {
		err = &Error{Op: se.Op, TID: se.TID, HasTID: se.HasTID, Code: ErrorCode(se.Code), Msg: se.Msg}
	}
	setLastError(err)
	logging.Library().Println(err.Error())
	return -1
}

// Init installs the calling goroutine as thread 0 and starts the quantum
// timer, using DefaultConfig. Must be called exactly once before any other
// uthread function.
func Init(quantumUsecs int) int {
	return InitConfig(DefaultConfig(), quantumUsecs)
}

// InitConfig is Init with an explicit Config, an additive extension for
// tests and embedders that need a non-default MaxThreads; spec.md's
// original signature never needed this because MAX_THREADS was a
// compile-time constant.
func InitConfig(cfg Config, quantumUsecs int) int {
	mu.Lock()
	defer mu.Unlock()

	m := NewMetrics()
	s := sched.New(sched.Config{MaxThreads: cfg.MaxThreads, StackSize: cfg.StackSize}, vtimer.NewPosixTimer(), m, logging.System())

	if err := s.Init(quantumUsecs); err != nil {
		// Leave the library uninitialized on failure (spec.md §4.A.3: init
		// "fails on non-positive quantum") so a subsequent call still sees
		// scheduler == nil instead of a half-initialized Scheduler whose
		// zero-value state (e.g. nextNew == 0) would let Spawn silently
		// collide with the reserved thread-0 id.
		return logAndFail(err)
	}
	scheduler = s
	metrics = m
	setLastError(nil)
	return 0
}

// Spawn creates a new thread running entry and returns its id, or -1 on
// failure (e.g. the configured thread limit is reached).
func Spawn(entry func()) int {
	mu.Lock()
	s := scheduler
	mu.Unlock()
	if s == nil {
		return logAndFail(newError("spawn", ErrCodeInvalidArgument, "uthread library not initialized"))
	}
	id, err := s.Spawn(entry)
	if err != nil {
		return logAndFail(err)
	}
	setLastError(nil)
	return int(id)
}

// Terminate destroys the thread named by tid. If tid is the running thread,
// this call does not return: it hands off to the next scheduled thread (or,
// for tid 0, terminates the whole process) exactly as spec.md §4.A.3
// describes.
func Terminate(tid ThreadID) int {
	mu.Lock()
	s := scheduler
	mu.Unlock()
	if s == nil {
		return logAndFail(newError("terminate", ErrCodeInvalidArgument, "uthread library not initialized"))
	}
	if err := s.Terminate(tid); err != nil {
		return logAndFail(err)
	}
	setLastError(nil)
	return 0
}

// Block moves tid out of contention for the CPU until a matching Resume.
func Block(tid ThreadID) int {
	mu.Lock()
	s := scheduler
	mu.Unlock()
	if s == nil {
		return logAndFail(newError("block", ErrCodeInvalidArgument, "uthread library not initialized"))
	}
	if err := s.Block(tid); err != nil {
		return logAndFail(err)
	}
	setLastError(nil)
	return 0
}

// Resume makes a Blocked thread Ready again; a no-op if tid was not Blocked.
func Resume(tid ThreadID) int {
	mu.Lock()
	s := scheduler
	mu.Unlock()
	if s == nil {
		return logAndFail(newError("resume", ErrCodeInvalidArgument, "uthread library not initialized"))
	}
	if err := s.Resume(tid); err != nil {
		return logAndFail(err)
	}
	setLastError(nil)
	return 0
}

// MutexLock acquires the library's single mutex, blocking the calling
// thread if it is already held.
func MutexLock() int {
	mu.Lock()
	s := scheduler
	mu.Unlock()
	if s == nil {
		return logAndFail(newError("mutex_lock", ErrCodeInvalidArgument, "uthread library not initialized"))
	}
	if err := s.MutexLock(); err != nil {
		return logAndFail(err)
	}
	setLastError(nil)
	return 0
}

// MutexUnlock releases the mutex, handing it straight to the
// longest-waiting contender that is not Blocked, if any.
func MutexUnlock() int {
	mu.Lock()
	s := scheduler
	mu.Unlock()
	if s == nil {
		return logAndFail(newError("mutex_unlock", ErrCodeInvalidArgument, "uthread library not initialized"))
	}
	if err := s.MutexUnlock(); err != nil {
		return logAndFail(err)
	}
	setLastError(nil)
	return 0
}

// GetTID returns the id of the currently running thread.
func GetTID() ThreadID {
	mu.Lock()
	s := scheduler
	mu.Unlock()
	if s == nil {
		return 0
	}
	return s.GetTID()
}

// GetTotalQuantums returns the number of quantums elapsed since Init.
func GetTotalQuantums() int {
	mu.Lock()
	s := scheduler
	mu.Unlock()
	if s == nil {
		return 0
	}
	return s.GetTotalQuantums()
}

// GetQuantums returns the number of quantums tid has been Running,
// including any quantum currently in progress, or -1 if tid is unknown.
func GetQuantums(tid ThreadID) int {
	mu.Lock()
	s := scheduler
	mu.Unlock()
	if s == nil {
		return logAndFail(newError("get_quantums", ErrCodeInvalidArgument, "uthread library not initialized"))
	}
	n, err := s.GetQuantums(tid)
	if err != nil {
		return logAndFail(err)
	}
	setLastError(nil)
	return n
}

// Shutdown stops the quantum timer without terminating any thread. Intended
// for tests that run multiple independent simulations in one process; the
// original C library has no equivalent since it only ever runs once per
// process.
func Shutdown() {
	mu.Lock()
	s := scheduler
	scheduler = nil
	mu.Unlock()
	if s != nil {
		s.Shutdown()
	}
}
