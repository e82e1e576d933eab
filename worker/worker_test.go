package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutorRunsTasksInOrder(t *testing.T) {
	e := NewExecutor(8)
	defer e.Shutdown(time.Second)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		e.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("tasks ran out of order: %v", order)
		}
	}
}

func TestExecutorSubmitAfterShutdownFails(t *testing.T) {
	e := NewExecutor(1)
	e.Shutdown(time.Second)
	if ok := e.Submit(func() {}); ok {
		t.Fatal("Submit should return false after Shutdown")
	}
}

func TestSchedulerFiresOnTarget(t *testing.T) {
	e := NewExecutor(4)
	defer e.Shutdown(time.Second)
	sched := NewScheduler(e)
	defer sched.Shutdown(time.Second)

	done := make(chan struct{})
	sched.Schedule(func() { close(done) }, 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled task never fired")
	}
}

func TestSchedulerCancelPreventsFire(t *testing.T) {
	e := NewExecutor(4)
	defer e.Shutdown(time.Second)
	sched := NewScheduler(e)
	defer sched.Shutdown(time.Second)

	var fired atomic.Bool
	h := sched.Schedule(func() { fired.Store(true) }, 30*time.Millisecond)
	h.Cancel()
	h.Cancel() // idempotent

	time.Sleep(80 * time.Millisecond)
	if fired.Load() {
		t.Fatal("cancelled task fired anyway")
	}
}

func TestSchedulerShutdownCancelsOutstanding(t *testing.T) {
	e := NewExecutor(4)
	sched := NewScheduler(e)

	var fired atomic.Bool
	sched.Schedule(func() { fired.Store(true) }, 100*time.Millisecond)
	sched.Shutdown(time.Second)

	time.Sleep(150 * time.Millisecond)
	if fired.Load() {
		t.Fatal("task scheduled before Shutdown fired after it")
	}
}
