// Package vtimer programs the periodic preemption signal spec.md §4.A.2
// requires: a timer driven by process *virtual* time, not wall-clock, "so
// blocked system calls do not consume quantums". On Linux this is a real
// ITIMER_VIRTUAL interval timer delivering SIGVTALRM, grounded in the
// teacher's use of golang.org/x/sys/unix for raw syscalls (internal/ctrl,
// internal/uring). Non-Linux builds fall back to a wall-clock time.Ticker
// (vtimer_stub.go), the same //go:build fallback pattern the teacher uses
// for internal/uring/iouring_stub.go.
package vtimer

import "time"

// Timer fires onFire every quantum until Stop is called. Implementations
// must tolerate onFire blocking briefly (it takes the scheduler lock).
type Timer interface {
	// Start begins delivering onFire every quantum. Returns a non-nil error
	// only to report a diagnostic; per spec.md §6 this is never fatal.
	Start(quantum time.Duration, onFire func()) error
	Stop()
}
