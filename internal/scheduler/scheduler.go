package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/composablestudio/internal/logger"
)

// Job is a maintenance task fired on a cron schedule.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler fires registered jobs on their cron schedules.
type Scheduler struct {
	mu     sync.Mutex
	jobs   []Job
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a scheduler for the given jobs. Nothing fires until Start.
func New(jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs: jobs,
		cron: cron.New(cron.WithParser(cronParser)),
	}
}

// ValidSchedule reports whether expr parses as a cron schedule.
func ValidSchedule(expr string) bool {
	_, err := cronParser.Parse(expr)
	return err == nil
}

// Add registers another job. It takes effect on the next Start or Reload.
func (s *Scheduler) Add(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// Start registers every job that has a schedule as a cron entry and starts
// the cron ticker. Jobs with an invalid schedule are logged and skipped.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger.For("scheduler")
	s.ctx, s.cancel = context.WithCancel(context.Background())
	ctx := s.ctx

	for _, job := range s.jobs {
		if job.Schedule == "" || job.Run == nil {
			continue
		}
		job := job
		_, err := s.cron.AddFunc(job.Schedule, func() {
			start := time.Now()
			if err := job.Run(ctx); err != nil {
				log.Error().Err(err).Str("job", job.Name).Msg("maintenance job failed")
				return
			}
			log.Debug().Str("job", job.Name).Dur("took", time.Since(start)).Msg("maintenance job done")
		})
		if err != nil {
			log.Error().Err(err).Str("job", job.Name).Str("schedule", job.Schedule).Msg("invalid cron schedule")
			continue
		}
		log.Info().Str("job", job.Name).Str("schedule", job.Schedule).Msg("scheduled job")
	}

	s.cron.Start()
	return nil
}

// Entries returns the number of jobs currently registered with cron.
func (s *Scheduler) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cron.Entries())
}

// Reload stops the existing cron, creates a new one, and calls Start again.
func (s *Scheduler) Reload() error {
	s.Stop()
	s.mu.Lock()
	s.cron = cron.New(cron.WithParser(cronParser))
	s.mu.Unlock()
	return s.Start()
}

// Stop stops the cron ticker and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-c.Stop().Done()
}
