//go:build linux

package vtimer

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// PosixTimer programs ITIMER_VIRTUAL via setitimer(2) and catches the
// resulting SIGVTALRM with os/signal, the closest portable Go analogue of
// the C original's sigaction(SIGVTALRM, ...) + setitimer(ITIMER_VIRTUAL, ...).
type PosixTimer struct {
	mu     sync.Mutex
	sigCh  chan syscall.Signal
	stopCh chan struct{}
	active bool
}

// NewPosixTimer returns a Timer backed by the host's virtual interval timer.
func NewPosixTimer() *PosixTimer {
	return &PosixTimer{}
}

func (t *PosixTimer) Start(quantum time.Duration, onFire func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		t.stopLocked()
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGVTALRM)

	usecs := quantum.Microseconds()
	it := unix.Itimerval{
		Value:    unix.Timeval{Sec: usecs / 1_000_000, Usec: usecs % 1_000_000},
		Interval: unix.Timeval{Sec: usecs / 1_000_000, Usec: usecs % 1_000_000},
	}

	var startErr error
	if err := unix.Setitimer(unix.ITIMER_VIRTUAL, &it, nil); err != nil {
		startErr = err
	}

	stop := make(chan struct{})
	t.stopCh = stop
	t.active = true

	go func() {
		for {
			select {
			case <-stop:
				signal.Stop(ch)
				return
			case <-ch:
				onFire()
			}
		}
	}()

	return startErr
}

func (t *PosixTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *PosixTimer) stopLocked() {
	if !t.active {
		return
	}
	close(t.stopCh)
	zero := unix.Itimerval{}
	_ = unix.Setitimer(unix.ITIMER_VIRTUAL, &zero, nil)
	t.active = false
}
