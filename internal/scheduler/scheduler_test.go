package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatal("condition not met within 2.5s")
		case <-ticker.C:
			if cond() {
				return
			}
		}
	}
}

func TestSchedulerFiresJob(t *testing.T) {
	var fires atomic.Int32
	sched := New(Job{
		Name:     "every-second",
		Schedule: "* * * * * *",
		Run: func(context.Context) error {
			fires.Add(1)
			return nil
		},
	})
	require.NoError(t, sched.Start())
	defer sched.Stop()

	waitFor(t, func() bool { return fires.Load() > 0 })
}

func TestSchedulerSkipsUnscheduled(t *testing.T) {
	sched := New(
		Job{Name: "off", Run: func(context.Context) error { return nil }},
		Job{Name: "broken", Schedule: "not a schedule", Run: func(context.Context) error { return nil }},
		Job{Name: "on", Schedule: "@every 1h", Run: func(context.Context) error { return nil }},
	)
	require.NoError(t, sched.Start())
	defer sched.Stop()

	require.Equal(t, 1, sched.Entries())
}

func TestSchedulerReload(t *testing.T) {
	sched := New(Job{Name: "a", Schedule: "@every 1h", Run: func(context.Context) error { return nil }})
	require.NoError(t, sched.Start())
	require.Equal(t, 1, sched.Entries())

	sched.Add(Job{Name: "b", Schedule: "@daily", Run: func(context.Context) error { return nil }})
	require.NoError(t, sched.Reload())
	defer sched.Stop()
	require.Equal(t, 2, sched.Entries())
}

func TestValidSchedule(t *testing.T) {
	require.True(t, ValidSchedule("0 4 * * *"))
	require.True(t, ValidSchedule("@every 1h"))
	require.True(t, ValidSchedule("*/5 * * * * *"))
	require.False(t, ValidSchedule("whenever"))
}

type fakeCheckpointer struct{ calls atomic.Int32 }

func (f *fakeCheckpointer) Checkpoint(context.Context) error {
	f.calls.Add(1)
	return nil
}

func TestCheckpointJob(t *testing.T) {
	db := &fakeCheckpointer{}
	job := CheckpointJob("@every 1h", db)
	require.Equal(t, "content-checkpoint", job.Name)
	require.NoError(t, job.Run(context.Background()))
	require.EqualValues(t, 1, db.calls.Load())
}

func TestSweepJob(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "index.json.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0o644))
	old := time.Now().Add(-2 * staleTempAge)
	require.NoError(t, os.Chtimes(stale, old, old))

	job := SweepJob("0 4 * * *", dir)
	require.NoError(t, job.Run(context.Background()))
	require.NoFileExists(t, stale)
}
