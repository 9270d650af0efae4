package sched

// MutexLock implements spec.md §4.A.4 uthread_mutex_lock. There is exactly
// one mutex in the library (as in the original uthreads.cpp); callers never
// name it.
func (s *Scheduler) MutexLock() error {
	s.checkpoint()
	s.mu.Lock()

	self := s.running

	if s.mutexHasHolder && s.mutexHolder == self {
		s.mu.Unlock()
		return newThreadError("mutex_lock", self, ErrCodeMutexProtocol, "thread already holds the mutex")
	}

	if !s.mutexLocked {
		s.mutexLocked = true
		s.mutexHolder = self
		s.mutexHasHolder = true
		s.mu.Unlock()
		return nil
	}

	// Contended: block self and hand off, exactly the third suspension
	// point spec.md §4.A.2 names.
	s.waits.add(self)
	s.observer.ObserveMutexContend(self)
	s.dispatchLocked(false)
	return nil
}

// MutexUnlock implements spec.md §4.A.4 uthread_mutex_unlock.
func (s *Scheduler) MutexUnlock() error {
	s.checkpoint()
	s.mu.Lock()
	defer s.mu.Unlock()

	self := s.running

	if !s.mutexLocked || !s.mutexHasHolder || s.mutexHolder != self {
		return newThreadError("mutex_unlock", self, ErrCodeMutexProtocol, "thread does not hold the mutex")
	}

	s.mutexLocked = false
	s.mutexHasHolder = false

	// Hand the mutex to the longest-waiting non-blocked contender, FIFO, the
	// deterministic strengthening spec.md §4.A.4 sanctions in place of the
	// original's unspecified wakeup order among eligible waiters. A waiter
	// that is itself Blocked (spec.md §3.1 explicitly allows Blocked AND
	// WaitingForMutex simultaneously) is skipped, matching the original's
	// isBlocked() check in its unlock loop; it stays in the wait set and is
	// reconsidered on a later unlock once resumed (or handed the mutex by
	// Resume, if the mutex is free by then). If every waiter is blocked, the
	// mutex simply stays released.
	for _, id := range s.waits.ordered() {
		if s.threads[id] == nil || s.threads[id].blocked {
			continue
		}
		s.waits.remove(id)
		s.mutexLocked = true
		s.mutexHolder = id
		s.mutexHasHolder = true
		s.ready.pushFront(id)
		s.observer.ObserveMutexHandoff(id)
		break
	}
	return nil
}
