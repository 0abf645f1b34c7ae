package scheduler

import (
	"context"
	"time"

	"github.com/user/composablestudio/internal/logger"
	"github.com/user/composablestudio/internal/state"
)

// staleTempAge is how old a *.tmp file must be before the sweep removes it.
const staleTempAge = time.Hour

// Checkpointer folds a database's write-ahead log into its main file.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// CheckpointJob checkpoints the content database.
func CheckpointJob(schedule string, db Checkpointer) Job {
	return Job{
		Name:     "content-checkpoint",
		Schedule: schedule,
		Run:      db.Checkpoint,
	}
}

// SweepJob removes temp files orphaned by interrupted atomic writes under
// dataDir.
func SweepJob(schedule, dataDir string) Job {
	return Job{
		Name:     "tmp-sweep",
		Schedule: schedule,
		Run: func(context.Context) error {
			n, err := state.SweepTempFiles(dataDir, staleTempAge)
			if n > 0 {
				logger.For("scheduler").Info().Int("removed", n).Str("dir", dataDir).Msg("swept stale temp files")
			}
			return err
		},
	}
}
