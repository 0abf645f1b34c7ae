package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/user/composablestudio/internal/types"
)

// laneSize bounds the number of runs waiting on one composition.
const laneSize = 100

// ErrQueueStopped is returned by Enqueue after Stop.
var ErrQueueStopped = errors.New("queue stopped")

// Queue manages per-composition lanes with a global concurrency semaphore.
// Each composition gets its own FIFO channel (lane) so that runs within a
// composition are processed sequentially, while the semaphore limits the
// total number of concurrent run processors across all compositions.
type Queue struct {
	lanes     map[types.CompositionID]chan *Run
	semaphore *semaphore.Weighted
	processor func(*Run) error
	active    atomic.Int64
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
}

// NewQueue creates a Queue that allows up to maxConcurrent runs to execute
// simultaneously across all composition lanes.
func NewQueue(maxConcurrent int64) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Queue{
		lanes:     make(map[types.CompositionID]chan *Run),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// processors to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		for _, lane := range q.lanes {
			close(lane)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Run to the composition's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full.
func (q *Queue) Enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped || q.ctx == nil {
		return ErrQueueStopped
	}

	lane, exists := q.lanes[run.CompositionID]
	if !exists {
		lane = make(chan *Run, laneSize)
		q.lanes[run.CompositionID] = lane
		q.wg.Add(1)
		go q.processLane(lane)
	}

	select {
	case lane <- run:
		return nil
	default:
		return errors.Errorf("queue full for composition %s", run.CompositionID)
	}
}

// processLane drains a single composition lane, acquiring a semaphore slot
// before running the processor synchronously. This keeps strict FIFO
// ordering within a composition while the semaphore limits
// cross-composition parallelism.
func (q *Queue) processLane(lane chan *Run) {
	defer q.wg.Done()
	for {
		select {
		case run, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				run.finish(err)
				if run.OnComplete != nil {
					run.OnComplete(run)
				}
				return
			}
			q.process(run)
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) process(run *Run) {
	q.active.Add(1)
	defer q.active.Add(-1)

	run.Ctx = q.ctx
	run.start()
	var err error
	if q.processor != nil {
		err = q.processor(run)
	}
	run.finish(err)
	if err != nil {
		log.Error().Err(err).
			Str("run_id", string(run.ID)).
			Str("composition_id", string(run.CompositionID)).
			Str("command", run.Invocation.Action.Command).
			Msg("run failed")
	}
	if run.OnComplete != nil {
		run.OnComplete(run)
	}
}

// Active returns the number of runs currently being processed.
func (q *Queue) Active() int64 {
	return q.active.Load()
}

// WaitIdle blocks until no runs are actively being processed, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued Run. Must be
// called before Start.
func (q *Queue) SetProcessor(fn func(*Run) error) {
	q.processor = fn
}
