package sched

import (
	"runtime"
	"sync"
	"time"

	"github.com/oskern/oskern/uthread/internal/vtimer"
)

// Config carries the compile-time parameters spec.md treats as host-given.
type Config struct {
	MaxThreads int
	StackSize  int
}

// Scheduler owns every piece of shared state spec.md §3.1/§5 lists: the
// ready queue, thread table, free-id pool, mutex, wait set and global
// quantum counters. Scheduler.mu is the sole concurrency primitive (spec.md
// §4.A.2's "signal masking discipline" translated to Go: taking mu is
// "blocking the timer signal", releasing it is "unblocking").
//
// Preemption: Go has no supported way for one goroutine to suspend another
// goroutine's in-flight execution at an arbitrary instruction, so the
// virtual timer never mutates scheduler state directly. It only raises
// preemptPending; the actual dispatch happens lazily, the next time the
// running thread's own goroutine calls back into the scheduler via
// checkpoint — which is every public uthread entry point, matching
// spec.md's "every public entry point... begins by blocking the timer
// signal" almost word for word. Because dispatch only ever runs on the
// currently-running thread's own call stack (here, or via an explicit
// voluntary yield), `running` always correctly names "the caller" with no
// need for goroutine-local identity tracking. See DESIGN.md OQ-2.
type Scheduler struct {
	mu sync.Mutex

	cfg Config

	threads map[ThreadID]*Thread
	ready   readyQueue
	free    freeIDPool
	nextNew ThreadID

	running    ThreadID
	hasRunning bool

	mutexLocked    bool
	mutexHolder    ThreadID
	mutexHasHolder bool
	waits          *waitSet

	totalQuantums   int
	preemptPending  bool
	selfTerminating bool

	initialized bool
	quantum     time.Duration
	timer       vtimer.Timer

	observer Observer
	sysLog   Logger

	// Exit is called (instead of os.Exit directly) when thread 0 terminates;
	// New sets it to os.Exit, and a caller may substitute a non-exiting
	// stand-in.
	Exit func(code int)
}

// New constructs a Scheduler. timer/observer/sysLog may be nil; sensible
// no-ops are substituted.
func New(cfg Config, timer vtimer.Timer, observer Observer, sysLog Logger) *Scheduler {
	if observer == nil {
		observer = noopObserver{}
	}
	if sysLog == nil {
		sysLog = noopLogger{}
	}
	return &Scheduler{
		cfg:      cfg,
		threads:  make(map[ThreadID]*Thread),
		waits:    newWaitSet(),
		timer:    timer,
		observer: observer,
		sysLog:   sysLog,
		Exit:     defaultExit,
	}
}

// Init installs thread 0 (the calling goroutine itself) as Running and
// starts the quantum timer. Spec.md §4.A.3.
func (s *Scheduler) Init(quantumUsecs int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if quantumUsecs <= 0 {
		return newError("init", ErrCodeInvalidArgument, "quantum_usecs must be positive")
	}

	t0 := newThread(0, nil, s.cfg.StackSize)
	t0.started = true // thread 0 *is* the calling goroutine; no wrapper needed
	t0.quantumsRun = 1
	s.threads[0] = t0
	s.nextNew = 1
	s.running = 0
	s.hasRunning = true
	s.totalQuantums = 1
	s.initialized = true
	s.quantum = time.Duration(quantumUsecs) * time.Microsecond

	if s.timer != nil {
		if err := s.timer.Start(s.quantum, s.onTimerFire); err != nil {
			s.sysLog.Println("timer error: " + err.Error())
		}
	}
	return nil
}

// onTimerFire runs on the timer's own delivery goroutine (spec.md's SIGVTALRM
// handler, minus the ability to truly interrupt the running thread). It only
// raises a flag; see the type doc for why.
func (s *Scheduler) onTimerFire() {
	s.mu.Lock()
	s.preemptPending = true
	s.mu.Unlock()
}

// checkpoint is called by every public entry point before doing its own
// work. If a quantum expired since the calling (= currently running)
// thread's last checkpoint, it performs the deferred dispatch now.
func (s *Scheduler) checkpoint() {
	s.mu.Lock()
	if !s.preemptPending {
		s.mu.Unlock()
		return
	}
	s.preemptPending = false
	s.dispatchLocked(false)
}

// dispatchLocked implements spec.md §4.A.2 steps 1-3, 5 and 6; step 4 (mutex
// ownership transfer) is done by MutexUnlock and Resume instead, before the
// waiter reaches the ready queue (DESIGN.md OQ-5). Requires mu held on
// entry; always returns with mu released. The caller's own goroutine is the
// outgoing thread: unless selfTerminating, it blocks here until it is next
// dispatched, exactly mirroring sigsetjmp's "returns again on resume".
func (s *Scheduler) dispatchLocked(selfTerminating bool) {
	prev := s.running
	prevThread := s.threads[prev]
	prevEligible := !selfTerminating && prevThread != nil && !prevThread.blocked && !s.waits.has(prev)

	nextID, ok := s.ready.popBack()
	switch {
	case ok && prevEligible:
		s.ready.pushFront(prev)
	case !ok && prevEligible:
		// No other ready candidate; prev just keeps running rather than
		// deadlock the bookkeeping (a genuine starvation scenario here
		// would hang the real library too).
		nextID, ok = prev, true
	}

	if !ok {
		// prev just blocked, terminated, or started waiting on the mutex,
		// and nothing else is ready either: there is no running thread.
		// Park prev's own goroutine on its turn channel; whatever later
		// makes some thread ready again will pick it up from there via a
		// fresh dispatch, or close it if prev was the one terminating.
		s.hasRunning = false
		if selfTerminating {
			s.mu.Unlock()
			runtime.Goexit()
		}
		parkCh := prevThread.turn
		s.mu.Unlock()
		if _, alive := <-parkCh; !alive {
			runtime.Goexit()
		}
		return
	}

	s.running = nextID
	s.hasRunning = true
	nextThread := s.threads[nextID]

	nextThread.quantumsRun++
	s.totalQuantums++
	s.observer.ObserveDispatch(prev, nextID, s.totalQuantums)

	needStart := !nextThread.started
	nextThread.started = true
	wakeCh := nextThread.turn

	var parkCh chan struct{}
	if !selfTerminating && nextID != prev {
		parkCh = prevThread.turn
	}

	s.mu.Unlock()

	switch {
	case needStart:
		entry := nextThread.entry
		id := nextThread.ID
		go s.runEntry(id, entry)
	case nextID != prev:
		wakeCh <- struct{}{}
	}

	if parkCh != nil {
		if _, alive := <-parkCh; !alive {
			// Someone terminated us while we were parked; Terminate already
			// did all the bookkeeping, we just need to stop running.
			runtime.Goexit()
		}
	}
}

// runEntry is the goroutine body for a spawned thread: dispatch starts it on
// the thread's first turn, it runs the user entry function, and
// self-terminates if the function returns normally instead of calling
// Terminate explicitly.
func (s *Scheduler) runEntry(id ThreadID, entry func()) {
	if entry != nil {
		entry()
	}
	_ = s.Terminate(id)
}

func defaultExit(code int) { osExit(code) }

// Spawn implements spec.md §4.A.3 uthread_spawn.
func (s *Scheduler) Spawn(entry func()) (ThreadID, error) {
	s.checkpoint()
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.threads) >= s.cfg.MaxThreads {
		return 0, newError("spawn", ErrCodeResourceExhausted, "maximum thread count reached")
	}

	id, ok := s.free.popSmallest()
	if !ok {
		id = s.nextNew
		s.nextNew++
	}

	t := newThread(id, entry, s.cfg.StackSize)
	s.threads[id] = t
	s.ready.pushFront(id)
	s.observer.ObserveSpawn(id)
	return id, nil
}

// Terminate implements spec.md §4.A.3 uthread_terminate.
func (s *Scheduler) Terminate(tid ThreadID) error {
	s.checkpoint()
	s.mu.Lock()

	t, ok := s.threads[tid]
	if !ok {
		s.mu.Unlock()
		return newThreadError("terminate", tid, ErrCodeUnknownThread, "invalid thread id")
	}

	if tid == 0 {
		for _, other := range s.threads {
			if other.turn != nil {
				close(other.turn)
			}
		}
		s.threads = nil
		s.mu.Unlock()
		s.Exit(0)
		return nil
	}

	s.ready.remove(tid)
	s.waits.remove(tid)
	if s.mutexLocked && s.mutexHasHolder && s.mutexHolder == tid {
		s.mutexLocked = false
		s.mutexHasHolder = false
	}

	isRunning := s.running == tid && s.hasRunning
	delete(s.threads, tid)
	s.free.push(tid)
	s.observer.ObserveTerminate(tid)

	if isRunning {
		s.selfTerminating = true
		s.dispatchLocked(true)
		s.selfTerminating = false
		runtime.Goexit()
	}

	if t.started && !isRunning {
		// Thread exists as a parked (blocked-or-ready) goroutine; wake it
		// with a termination signal so it doesn't leak forever.
		close(t.turn)
	}
	s.mu.Unlock()
	return nil
}

// Block implements spec.md §4.A.3 uthread_block.
func (s *Scheduler) Block(tid ThreadID) error {
	s.checkpoint()
	s.mu.Lock()

	t, ok := s.threads[tid]
	if !ok {
		s.mu.Unlock()
		return newThreadError("block", tid, ErrCodeUnknownThread, "invalid thread id")
	}
	if tid == 0 {
		s.mu.Unlock()
		return newThreadError("block", tid, ErrCodeInvalidArgument, "cannot block the main thread")
	}

	wasBlocked := t.blocked
	t.blocked = true
	s.ready.remove(tid)
	if !wasBlocked {
		s.observer.ObserveBlock(tid)
	}

	if s.running == tid {
		s.dispatchLocked(false)
		return nil
	}
	s.mu.Unlock()
	return nil
}

// Resume implements spec.md §4.A.3 uthread_resume.
func (s *Scheduler) Resume(tid ThreadID) error {
	s.checkpoint()
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[tid]
	if !ok {
		return newThreadError("resume", tid, ErrCodeUnknownThread, "invalid thread id")
	}
	if t.blocked {
		t.blocked = false
		switch {
		case !s.waits.has(tid):
			s.ready.pushFront(tid)
		case !s.mutexLocked:
			// A mutex waiter only becomes ready holding the mutex; while the
			// mutex is held it stays off the ready queue until an unlock.
			s.waits.remove(tid)
			s.mutexLocked = true
			s.mutexHolder = tid
			s.mutexHasHolder = true
			s.ready.pushFront(tid)
			s.observer.ObserveMutexHandoff(tid)
		}
		s.observer.ObserveResume(tid)
	}
	return nil
}

// GetTID implements spec.md §4.A.3 uthread_get_tid.
func (s *Scheduler) GetTID() ThreadID {
	s.checkpoint()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// GetTotalQuantums implements spec.md §4.A.3 uthread_get_total_quantums.
func (s *Scheduler) GetTotalQuantums() int {
	s.checkpoint()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalQuantums
}

// GetQuantums implements spec.md §4.A.3 uthread_get_quantums.
func (s *Scheduler) GetQuantums(tid ThreadID) (int, error) {
	s.checkpoint()
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[tid]
	if !ok {
		return 0, newThreadError("get_quantums", tid, ErrCodeUnknownThread, "invalid thread id")
	}
	return t.quantumsRun, nil
}

// Shutdown stops the quantum timer. Intended for tests that create and
// discard many Scheduler instances.
func (s *Scheduler) Shutdown() {
	if s.timer != nil {
		s.timer.Stop()
	}
}
