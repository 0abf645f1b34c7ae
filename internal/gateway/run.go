package gateway

import (
	"context"
	"time"

	"github.com/user/composablestudio/internal/dispatch"
	"github.com/user/composablestudio/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run tracks a single execution of an invoked action against a composition.
type Run struct {
	ID            types.RunID
	CompositionID types.CompositionID
	Invocation    dispatch.Invocation
	Status        RunStatus
	Attempts      int
	CreatedAt     time.Time
	StartedAt     *time.Time
	EndedAt       *time.Time
	Error         error
	Ctx           context.Context
	OnComplete    func(*Run)
}

// NewRun creates a Run in the Queued state for the given invocation.
func NewRun(inv dispatch.Invocation) *Run {
	return &Run{
		ID:            types.NewRunID(),
		CompositionID: inv.CompositionID,
		Invocation:    inv,
		Status:        RunStatusQueued,
		CreatedAt:     time.Now(),
	}
}

func (r *Run) start() {
	now := time.Now()
	r.StartedAt = &now
	r.Status = RunStatusRunning
}

func (r *Run) finish(err error) {
	now := time.Now()
	r.EndedAt = &now
	r.Error = err
	if err != nil {
		r.Status = RunStatusFailed
	} else {
		r.Status = RunStatusComplete
	}
}
