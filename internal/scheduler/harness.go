package scheduler

import (
	"context"
	"time"

	"example.com/backstage/allegro/internal/marketplace"
	"example.com/backstage/allegro/internal/metrics"
	"example.com/backstage/allegro/internal/models"
	"example.com/backstage/allegro/internal/repositories"
	"example.com/backstage/allegro/internal/tracing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Processor is one periodic unit of work
type Processor struct {
	Name     string
	Interval time.Duration
	// Delay before the first tick
	Delay time.Duration
	Work  func(ctx context.Context) error
}

// JobStore persists processor schedule state
type JobStore interface {
	Get(ctx context.Context, name string) (*models.ProcessorJob, error)
	MarkPending(ctx context.Context, name, owner string, next time.Time) error
	MarkRunning(ctx context.Context, name, owner string, at time.Time) error
	MarkFinished(ctx context.Context, name string, state models.JobState, lastError string) error
}

// Harness runs processors tick by tick, re-arming after success or a recoverable failure
type Harness struct {
	scheduler   Scheduler
	jobs        JobStore
	tracer      tracing.Tracer
	prom        *metrics.ProcessorMetrics
	stats       *metrics.Metrics
	owner       string
	isTransient func(error) bool
	now         func() time.Time
}

// NewHarness creates a harness owned by this process instance
func NewHarness(s Scheduler, jobs JobStore, tracer tracing.Tracer, prom *metrics.ProcessorMetrics, stats *metrics.Metrics, owner string) *Harness {
	if tracer == nil {
		tracer = tracing.Noop()
	}
	if owner == "" {
		owner = uuid.NewString()
	}
	return &Harness{
		scheduler:   s,
		jobs:        jobs,
		tracer:      tracer,
		prom:        prom,
		stats:       stats,
		owner:       owner,
		isTransient: marketplace.IsTransient,
		now:         time.Now,
	}
}

// Owner returns the instance id recorded on armed jobs
func (h *Harness) Owner() string {
	return h.owner
}

// Start arms the first tick of p after p.Delay
func (h *Harness) Start(ctx context.Context, p Processor) error {
	return h.arm(ctx, p, p.Delay)
}

// Bootstrap arms every processor not already armed by another live instance
func (h *Harness) Bootstrap(ctx context.Context, processors []Processor) error {
	for _, p := range processors {
		job, err := h.jobs.Get(ctx, p.Name)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return errors.Wrapf(err, "loading job %s", p.Name)
		}

		if job != nil && h.ownedElsewhere(job, p) {
			log.Info().
				Str("processor", p.Name).
				Str("owner", job.Owner).
				Str("state", string(job.State)).
				Msg("processor already armed by another instance, skipping")
			continue
		}

		if err := h.Start(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// ownedElsewhere reports whether job is active under another owner and was touched recently
func (h *Harness) ownedElsewhere(job *models.ProcessorJob, p Processor) bool {
	if job.Owner == h.owner || !job.State.Active() {
		return false
	}
	window := 2*p.Interval + p.Delay
	return h.now().Sub(job.UpdatedAt) < window
}

func (h *Harness) arm(ctx context.Context, p Processor, delay time.Duration) error {
	next := h.now().Add(delay)
	if err := h.jobs.MarkPending(ctx, p.Name, h.owner, next); err != nil {
		log.Warn().Err(err).Str("processor", p.Name).Msg("failed to persist job state")
	}

	if err := h.scheduler.Schedule(p.Name, delay, func(ctx context.Context) { h.tick(ctx, p) }); err != nil {
		return errors.Wrapf(err, "arming processor %s", p.Name)
	}

	log.Debug().Str("processor", p.Name).Time("next_run_at", next).Msg("processor armed")
	return nil
}

func (h *Harness) tick(ctx context.Context, p Processor) {
	if err := h.Run(ctx, p); err != nil {
		return
	}
	if ctx.Err() != nil {
		return
	}
	if err := h.arm(ctx, p, p.Interval); err != nil {
		log.Error().Err(err).Str("processor", p.Name).Msg("failed to re-arm processor")
	}
}

// Run executes one tick of p. Recoverable failures are logged and swallowed;
// any other failure is returned and the processor is left unarmed.
func (h *Harness) Run(ctx context.Context, p Processor) error {
	start := h.now()
	runID := uuid.NewString()
	logger := log.With().Str("processor", p.Name).Str("run_id", runID).Logger()

	txnCtx, txn := h.tracer.StartTransaction(ctx, "processor/"+p.Name)
	defer h.tracer.EndTransaction(txn)
	h.tracer.AddAttribute(txn, "run_id", runID)

	if err := h.jobs.MarkRunning(ctx, p.Name, h.owner, start); err != nil {
		logger.Warn().Err(err).Msg("failed to persist job state")
	}

	logger.Debug().Msg("processor tick started")
	err := h.guard(txnCtx, p)

	outcome, state, returned := h.classify(ctx, logger, err)
	if err != nil {
		h.tracer.RecordError(txn, err)
	}

	lastError := ""
	if err != nil {
		lastError = err.Error()
	}
	if err := h.jobs.MarkFinished(context.WithoutCancel(ctx), p.Name, state, lastError); err != nil {
		logger.Warn().Err(err).Msg("failed to persist job state")
	}

	h.record(p.Name, outcome, time.Since(start))
	return returned
}

func (h *Harness) classify(ctx context.Context, logger zerolog.Logger, err error) (string, models.JobState, error) {
	switch {
	case err == nil:
		logger.Debug().Msg("processor tick finished")
		return metrics.OutcomeSuccess, models.JobStateIdle, nil
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		logger.Info().Msg("processor tick interrupted by shutdown")
		return metrics.OutcomeRecoverable, models.JobStateIdle, nil
	case h.isTransient(err):
		logger.Warn().Err(err).Msg("processor tick failed, retrying next interval")
		return metrics.OutcomeRecoverable, models.JobStateIdle, nil
	default:
		logger.Error().Err(err).Msg("processor tick failed")
		return metrics.OutcomeFatal, models.JobStateFailed, err
	}
}

// guard runs the work, turning a panic into an error
func (h *Harness) guard(ctx context.Context, p Processor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("processor %s panicked: %v", p.Name, r)
		}
	}()
	return p.Work(ctx)
}

func (h *Harness) record(name, outcome string, d time.Duration) {
	if h.prom != nil {
		h.prom.ObserveTick(name, outcome, d)
	}
	if h.stats != nil {
		h.stats.IncrementCounter("processor." + name + "." + outcome)
		h.stats.RecordTimer("processor."+name, d)
		h.stats.SetHealth("processor:"+name, outcome != metrics.OutcomeFatal)
	}
}
