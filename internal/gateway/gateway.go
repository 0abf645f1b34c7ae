package gateway

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/user/composablestudio/internal/dispatch"
	"github.com/user/composablestudio/internal/metrics"
)

// Gateway turns invoked message actions into runs. Runs for one
// composition execute in order; transient failures are retried.
type Gateway struct {
	registry *dispatch.Registry
	Queue    *Queue
	retry    *RetryPolicy
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(g *Gateway) { g.retry = p }
}

// WithMetrics reports run counts to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New creates a Gateway dispatching through registry with the given
// concurrency limit for simultaneous run processing.
func New(registry *dispatch.Registry, maxConcurrent int64, opts ...Option) *Gateway {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	g := &Gateway{
		registry: registry,
		Queue:    NewQueue(maxConcurrent),
		retry:    DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.Queue.SetProcessor(g.process)
	return g
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context and stops the queue. It returns once
// every run already handed to a handler has finished.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked when the run finishes, successfully or not.
func WithOnComplete(fn func(*Run)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// Invoke wraps the invocation in a Run and enqueues it for processing.
func (g *Gateway) Invoke(_ context.Context, inv dispatch.Invocation, opts ...RunOption) (*Run, error) {
	if inv.CompositionID == "" {
		return nil, errors.New("invoke: empty composition id")
	}
	run := NewRun(inv)
	for _, opt := range opts {
		opt(run)
	}
	if err := g.Queue.Enqueue(run); err != nil {
		return nil, err
	}
	return run, nil
}

// InvokeAndWait enqueues the invocation and blocks until its run finishes
// or ctx is done. The returned error is the run's own error.
func (g *Gateway) InvokeAndWait(ctx context.Context, inv dispatch.Invocation) (*Run, error) {
	done := make(chan *Run, 1)
	run, err := g.Invoke(ctx, inv, WithOnComplete(func(r *Run) { done <- r }))
	if err != nil {
		return nil, err
	}
	var stopped <-chan struct{}
	if g.ctx != nil {
		stopped = g.ctx.Done()
	}
	select {
	case r := <-done:
		return r, r.Error
	case <-ctx.Done():
		return run, ctx.Err()
	case <-stopped:
		return run, ErrQueueStopped
	}
}

func (g *Gateway) process(run *Run) error {
	if g.metrics != nil {
		g.metrics.RunsInFlight.Inc()
		defer g.metrics.RunsInFlight.Dec()
	}
	return g.retry.Execute(run.Ctx,
		func(attempt int) error {
			run.Attempts = attempt
			return g.registry.Dispatch(run.Ctx, run.Invocation)
		},
		func(attempt int, err error) {
			if g.metrics != nil {
				g.metrics.RunRetriesTotal.Inc()
			}
			log.Warn().Err(err).
				Str("run_id", string(run.ID)).
				Int("attempt", attempt).
				Msg("retrying run")
		},
	)
}
