package scheduler

import (
	"context"
	"time"

	"murmur/internal/logging"
)

// idleWait bounds how long the loop sleeps when nothing is runnable.
const idleWait = 30 * time.Second

// Run drives the runnable ring until ctx is cancelled, then waits for cycles
// already in flight.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.cycles.Wait()
	s.logger.Debug("scheduler loop started", logging.Int("workers", s.cfg.Workers))

	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		e, wait := s.claimDue()
		if e == nil {
			s.sem.Release(1)
			if !s.sleep(ctx, wait) {
				return
			}
			continue
		}

		s.cycles.Add(1)
		go func() {
			defer s.cycles.Done()
			defer s.sem.Release(1)
			s.runCycle(ctx, e)
		}()
	}
}

func (s *Scheduler) sleep(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.wake:
		return true
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// enqueue adds id to the ring, or reschedules it if already present.
func (s *Scheduler) enqueue(id int64, dueAt time.Time) {
	s.mu.Lock()
	if e, ok := s.entries[id]; ok {
		e.stopping = false
		if !e.inFlight {
			e.dueAt = dueAt
		}
	} else {
		s.entries[id] = &entry{id: id, dueAt: dueAt}
		s.ring = append(s.ring, id)
	}
	s.mu.Unlock()
	s.signal()
}

// claimDue takes the next due entry round-robin from the cursor and marks it
// in flight. When nothing is due it returns how long to wait.
func (s *Scheduler) claimDue() (*entry, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	wait := idleWait
	n := len(s.ring)
	for i := 0; i < n; i++ {
		idx := (s.cursor + i) % n
		e := s.entries[s.ring[idx]]
		if e == nil || e.inFlight || e.stopping {
			continue
		}
		if until := e.dueAt.Sub(now); until > 0 {
			wait = min(wait, until)
			continue
		}
		s.cursor = (idx + 1) % n
		e.inFlight = true
		e.done = make(chan struct{})
		return e, 0
	}
	return nil, wait
}

// finish releases an in-flight entry. A nil next removes the task from the
// ring; otherwise it becomes due again after next. The done channel closes
// last so a waiting Stop observes every write the cycle made.
func (s *Scheduler) finish(ctx context.Context, e *entry, next *time.Duration) {
	s.mu.Lock()
	stopping := e.stopping
	s.mu.Unlock()

	if stopping {
		// Stop may have given up waiting; make sure the status lands.
		if err := s.markStopped(context.WithoutCancel(ctx), e.id); err != nil {
			s.logger.Warn("persist stopped status failed",
				logging.Int64(logging.FieldTaskID, e.id),
				logging.Error(err),
			)
		}
	}

	s.mu.Lock()
	e.inFlight = false
	if e.stopping || next == nil {
		s.removeLocked(e.id)
	} else {
		e.dueAt = s.now().Add(*next)
	}
	close(e.done)
	s.mu.Unlock()
	s.signal()
}

// detach takes id off the ring. If a cycle is in flight the entry is flagged
// so the cycle does not reschedule it and the returned channel closes when
// the cycle finishes.
func (s *Scheduler) detach(id int64) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	if e.inFlight {
		e.stopping = true
		return e.done
	}
	s.removeLocked(id)
	return nil
}

func (s *Scheduler) remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Scheduler) removeLocked(id int64) {
	if _, ok := s.entries[id]; !ok {
		return
	}
	delete(s.entries, id)
	for i, v := range s.ring {
		if v != id {
			continue
		}
		s.ring = append(s.ring[:i], s.ring[i+1:]...)
		if s.cursor > i {
			s.cursor--
		}
		if len(s.ring) == 0 || s.cursor >= len(s.ring) {
			s.cursor = 0
		}
		break
	}
}
