// Package worker provides the two single-threaded executors the rest of
// this module relies on to serialize session/manager/socket state mutation
// onto one logical thread, generalized into a reusable run-loop: a general
// executor for codec and I/O-callback dispatch, and a scheduler for
// ping/ping-timeout/reconnect delays.
package worker

import (
	"sync"
	"time"
)

// Task is a unit of work submitted to an executor.
type Task func()

// Executor is a single-threaded FIFO task queue. Its single goroutine is
// the serialization point: anything that mutates shared session state
// must run as a Task submitted here rather than touching that state from
// whatever goroutine observed the triggering event (an HTTP round trip,
// a WebSocket read, a timer fire).
type Executor struct {
	tasks chan Task
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewExecutor starts the executor's run loop. queueSize bounds how many
// pending tasks may be buffered before Submit blocks.
func NewExecutor(queueSize int) *Executor {
	e := &Executor{
		tasks: make(chan Task, queueSize),
		done:  make(chan struct{}),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

func (e *Executor) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			for {
				select {
				case t := <-e.tasks:
					t()
				default:
					return
				}
			}
		case t := <-e.tasks:
			t()
		}
	}
}

// Submit enqueues t for execution on the executor's goroutine. It returns
// false without running t if the executor has already been shut down.
func (e *Executor) Submit(t Task) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.tasks <- t:
		return true
	case <-e.done:
		return false
	}
}

// Shutdown stops accepting new tasks and waits up to timeout for the
// in-flight and already-queued tasks to finish draining.
func (e *Executor) Shutdown(timeout time.Duration) {
	e.once.Do(func() { close(e.done) })
	wait := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(wait)
	}()
	select {
	case <-wait:
	case <-time.After(timeout):
	}
}

// timer is a scheduled, cancellable one-shot task.
type timer struct {
	t *time.Timer
}

// Scheduler runs delayed Tasks, each on its own standard-library timer, and
// submits the fired task onward to a target Executor so the task body
// still runs on the single logical thread. Used for ping/ping-timeout and
// reconnect delays.
type Scheduler struct {
	mu     sync.Mutex
	target *Executor
	timers map[*timer]struct{}
	closed bool
}

// NewScheduler returns a Scheduler whose fired tasks are submitted to target.
func NewScheduler(target *Executor) *Scheduler {
	return &Scheduler{target: target, timers: make(map[*timer]struct{})}
}

// Handle cancels a scheduled task if it has not fired yet.
type Handle struct {
	s *Scheduler
	t *timer
}

// Cancel prevents the scheduled task from running, if it hasn't already.
// Safe to call more than once.
func (h *Handle) Cancel() {
	if h == nil || h.t == nil {
		return
	}
	h.t.t.Stop()
	h.s.mu.Lock()
	delete(h.s.timers, h.t)
	h.s.mu.Unlock()
}

// Schedule runs task on the target executor after delay elapses.
func (s *Scheduler) Schedule(task Task, delay time.Duration) *Handle {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &Handle{}
	}
	tm := &timer{}
	s.timers[tm] = struct{}{}
	s.mu.Unlock()

	tm.t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.timers[tm]
		delete(s.timers, tm)
		s.mu.Unlock()
		if live {
			s.target.Submit(task)
		}
	})
	return &Handle{s: s, t: tm}
}

// Shutdown cancels every outstanding timer and joins the target executor.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.mu.Lock()
	s.closed = true
	for tm := range s.timers {
		tm.t.Stop()
	}
	s.timers = make(map[*timer]struct{})
	s.mu.Unlock()
	s.target.Shutdown(timeout)
}
