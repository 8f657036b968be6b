package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Scheduler runs a named function once after a delay
type Scheduler interface {
	Schedule(name string, delay time.Duration, fn func(ctx context.Context)) error
}

// GocronScheduler schedules one-time gocron jobs tagged with the processor name
type GocronScheduler struct {
	ctx       context.Context
	scheduler gocron.Scheduler
}

// NewGocronScheduler creates a scheduler whose tasks receive ctx
func NewGocronScheduler(ctx context.Context) (*GocronScheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scheduler")
	}
	return &GocronScheduler{ctx: ctx, scheduler: s}, nil
}

// Schedule arms fn to run once after delay
func (s *GocronScheduler) Schedule(name string, delay time.Duration, fn func(ctx context.Context)) error {
	start := gocron.OneTimeJobStartImmediately()
	if delay > time.Second {
		start = gocron.OneTimeJobStartDateTime(time.Now().Add(delay))
	}

	_, err := s.scheduler.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(func() {
			if s.ctx.Err() != nil {
				return
			}
			fn(s.ctx)
		}),
		gocron.WithName(name),
		gocron.WithTags(name),
		gocron.WithEventListeners(
			gocron.AfterJobRuns(func(jobID uuid.UUID, jobName string) {
				// Finished one-time jobs are dropped so the job list only holds armed ticks
				go s.remove(jobID)
			}),
		),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to schedule %s", name)
	}
	return nil
}

func (s *GocronScheduler) remove(id uuid.UUID) {
	if err := s.scheduler.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		log.Debug().Err(err).Str("job_id", id.String()).Msg("failed to remove finished job")
	}
}

// Start starts running armed jobs
func (s *GocronScheduler) Start() {
	s.scheduler.Start()
}

// Shutdown stops the scheduler and waits for running jobs
func (s *GocronScheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}
