// Package sched implements the Core A ready/blocked/running state machine:
// the Thread Record, the dispatcher, and the mutex subsystem (spec.md §4.A).
package sched

// ThreadID identifies a logical thread. 0 is always the implicit initial
// thread (spec.md §3.1).
type ThreadID uint32

// Thread is the Thread Record of spec.md §3.1/§4.A.1. Its execution context
// is a goroutine parked on turn between quantums rather than a manually
// managed stack buffer — see DESIGN.md, Open Question OQ-1, for why a
// caller-supplied stack buffer has no portable equivalent in Go.
type Thread struct {
	ID          ThreadID
	entry       func()
	blocked     bool
	quantumsRun int
	stackSize   int

	// turn is the rendezvous channel that stands in for the C original's
	// sigsetjmp/siglongjmp machine-context buffer: parking on <-turn is
	// "snapshot taken", a send on turn is "install snapshot and resume".
	turn    chan struct{}
	started bool
}

func newThread(id ThreadID, entry func(), stackSize int) *Thread {
	return &Thread{
		ID:        id,
		entry:     entry,
		stackSize: stackSize,
		turn:      make(chan struct{}),
	}
}

// StackSize reports the configured stack size, retained for API parity with
// the C original (spec.md §4.A.1); Go manages the actual goroutine stack.
func (t *Thread) StackSize() int { return t.stackSize }

// QuantumsRun returns the number of quantums this thread has been Running,
// inclusive of a quantum currently in progress.
func (t *Thread) QuantumsRun() int { return t.quantumsRun }

// Blocked reports the thread's Blocked predicate (spec.md §3.1).
func (t *Thread) Blocked() bool { return t.blocked }
