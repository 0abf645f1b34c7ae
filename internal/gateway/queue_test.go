package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/composablestudio/internal/types"
)

func queuedRun(composition string, marker int) *Run {
	return &Run{
		ID:            types.NewRunID(),
		CompositionID: types.CompositionID(composition),
		Status:        RunStatusQueued,
		Attempts:      marker,
	}
}

func TestQueueConcurrency(t *testing.T) {
	queue := NewQueue(2)

	var running int32
	var maxSeen int32
	var wg sync.WaitGroup

	queue.SetProcessor(func(run *Run) error {
		defer wg.Done()
		current := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	})
	queue.Start(context.Background())
	defer queue.Stop()

	for i := 0; i < 5; i++ {
		wg.Add(1)
		if err := queue.Enqueue(queuedRun(fmt.Sprintf("composition-%d", i), 0)); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	if m := atomic.LoadInt32(&maxSeen); m > 2 {
		t.Errorf("expected max 2 concurrent, saw %d", m)
	}
}

func TestQueueSameCompositionOrdering(t *testing.T) {
	queue := NewQueue(4)

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	queue.SetProcessor(func(run *Run) error {
		mu.Lock()
		order = append(order, run.Attempts) // Attempts doubles as a sequence marker
		n := len(order)
		mu.Unlock()
		if n == 5 {
			close(done)
		}
		return nil
	})
	queue.Start(context.Background())
	defer queue.Stop()

	for i := 0; i < 5; i++ {
		if err := queue.Enqueue(queuedRun("same", i)); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for runs to process")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Errorf("expected order[%d] = %d, got %d", i, i, v)
		}
	}
}

func TestQueueRunStatusAndCallback(t *testing.T) {
	queue := NewQueue(1)
	queue.SetProcessor(func(run *Run) error {
		if run.Attempts == 1 {
			return fmt.Errorf("boom")
		}
		return nil
	})
	queue.Start(context.Background())
	defer queue.Stop()

	results := make(chan *Run, 2)
	for i := 0; i < 2; i++ {
		run := queuedRun("c", i)
		run.OnComplete = func(r *Run) { results <- r }
		if err := queue.Enqueue(run); err != nil {
			t.Fatal(err)
		}
	}

	ok := <-results
	failed := <-results
	if ok.Status != RunStatusComplete || ok.StartedAt == nil || ok.EndedAt == nil {
		t.Errorf("expected completed run with timestamps, got %+v", ok)
	}
	if failed.Status != RunStatusFailed || failed.Error == nil {
		t.Errorf("expected failed run with error, got %+v", failed)
	}
}

func TestQueueNoProcessor(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	defer queue.Stop()

	done := make(chan *Run, 1)
	run := queuedRun("no-proc", 0)
	run.OnComplete = func(r *Run) { done <- r }
	if err := queue.Enqueue(run); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-done:
		if r.Status != RunStatusComplete {
			t.Errorf("expected complete, got %s", r.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("run was never completed")
	}
}

func TestQueueEnqueueAfterStop(t *testing.T) {
	queue := NewQueue(1)
	queue.Start(context.Background())
	queue.Stop()

	if err := queue.Enqueue(queuedRun("late", 0)); err != ErrQueueStopped {
		t.Fatalf("expected ErrQueueStopped, got %v", err)
	}
	// Stop is idempotent.
	queue.Stop()
}
