package studio

import (
	"context"

	"github.com/user/composablestudio/internal/logger"
	"github.com/user/composablestudio/internal/types"
)

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// undoLog collects compensating store writes made while a change runs.
// Steps run newest first, unless the change was committed.
type undoLog struct {
	steps []undoStep
}

func (u *undoLog) push(name string, fn func(ctx context.Context) error) {
	u.steps = append(u.steps, undoStep{name: name, fn: fn})
}

func (u *undoLog) commit() {
	u.steps = nil
}

// rollback keeps going past failures; each one is logged.
func (u *undoLog) rollback(ctx context.Context, id types.CompositionID) {
	ctx = context.WithoutCancel(ctx)
	for i := len(u.steps) - 1; i >= 0; i-- {
		step := u.steps[i]
		if err := step.fn(ctx); err != nil {
			logger.For("studio").Error().Err(err).
				Str("composition", string(id)).
				Str("undo", step.name).
				Msg("compensating write failed")
		}
	}
	u.steps = nil
}
