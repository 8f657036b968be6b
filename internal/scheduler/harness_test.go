package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"example.com/backstage/allegro/internal/database/dbtest"
	"example.com/backstage/allegro/internal/marketplace"
	"example.com/backstage/allegro/internal/metrics"
	"example.com/backstage/allegro/internal/models"
	"example.com/backstage/allegro/internal/repositories"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type scheduled struct {
	name  string
	delay time.Duration
	fn    func(ctx context.Context)
}

// fakeScheduler records armed ticks and fires them on demand
type fakeScheduler struct {
	mu    sync.Mutex
	armed []scheduled
}

func (s *fakeScheduler) Schedule(name string, delay time.Duration, fn func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = append(s.armed, scheduled{name: name, delay: delay, fn: fn})
	return nil
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.armed)
}

// fireLast runs the most recently armed tick
func (s *fakeScheduler) fireLast(ctx context.Context) {
	s.mu.Lock()
	next := s.armed[len(s.armed)-1]
	s.mu.Unlock()
	next.fn(ctx)
}

func newTestHarness(t *testing.T) (*Harness, *fakeScheduler, *repositories.JobRepository, *metrics.ProcessorMetrics) {
	t.Helper()
	jobs := repositories.NewJobRepository(dbtest.New(t))
	sched := &fakeScheduler{}
	prom := metrics.NewProcessorMetrics()
	return NewHarness(sched, jobs, nil, prom, metrics.NewMetrics(), "instance-a"), sched, jobs, prom
}

func TestStartArmsAfterDelay(t *testing.T) {
	h, sched, jobs, _ := newTestHarness(t)
	ctx := context.Background()

	p := Processor{Name: "virtual_item", Interval: time.Minute, Delay: time.Minute, Work: func(context.Context) error { return nil }}
	require.NoError(t, h.Start(ctx, p))

	require.Equal(t, 1, sched.count())
	require.Equal(t, time.Minute, sched.armed[0].delay)

	job, err := jobs.Get(ctx, "virtual_item")
	require.NoError(t, err)
	require.Equal(t, models.JobStatePending, job.State)
	require.Equal(t, "instance-a", job.Owner)
}

func TestSuccessReArms(t *testing.T) {
	h, sched, jobs, prom := newTestHarness(t)
	ctx := context.Background()

	runs := 0
	p := Processor{Name: "journal", Interval: 30 * time.Second, Work: func(context.Context) error {
		runs++
		return nil
	}}
	require.NoError(t, h.Start(ctx, p))
	sched.fireLast(ctx)
	sched.fireLast(ctx)

	require.Equal(t, 2, runs)
	require.Equal(t, 3, sched.count())
	require.Equal(t, 30*time.Second, sched.armed[2].delay)
	require.Equal(t, 2.0, tickCount(t, prom, "journal", metrics.OutcomeSuccess))

	job, err := jobs.Get(ctx, "journal")
	require.NoError(t, err)
	require.Equal(t, models.JobStatePending, job.State)
	require.NotNil(t, job.LastRunAt)
}

func TestRecoverableFaultsReArm(t *testing.T) {
	h, sched, jobs, prom := newTestHarness(t)
	ctx := context.Background()

	faults := []error{
		errors.Wrap(marketplace.ErrTimeout, "doGetSiteJournalDeals"),
		&marketplace.CommunicationError{Op: "doGetPostBuyData", Err: errors.New("connection reset")},
		&marketplace.AggregateError{Errors: []error{
			&marketplace.Fault{Code: marketplace.FaultNoSession},
			&marketplace.Fault{Code: marketplace.FaultInvalidItemID},
		}},
	}
	tick := 0
	p := Processor{Name: "journal", Interval: 30 * time.Second, Work: func(context.Context) error {
		err := faults[tick]
		tick++
		return err
	}}

	require.NoError(t, h.Start(ctx, p))
	for range faults {
		sched.fireLast(ctx)
	}

	require.Equal(t, 3, tick)
	require.Equal(t, 1+3, sched.count())
	require.Equal(t, 3.0, tickCount(t, prom, "journal", metrics.OutcomeRecoverable))
	require.Equal(t, 0.0, tickCount(t, prom, "journal", metrics.OutcomeFatal))

	job, err := jobs.Get(ctx, "journal")
	require.NoError(t, err)
	require.Equal(t, models.JobStatePending, job.State)
	require.Contains(t, job.LastError, "multiple faults")
}

func TestFatalErrorStopsProcessor(t *testing.T) {
	h, sched, jobs, _ := newTestHarness(t)
	ctx := context.Background()

	p := Processor{Name: "refund", Interval: time.Hour, Work: func(context.Context) error {
		return errors.New("constraint violation")
	}}
	require.NoError(t, h.Start(ctx, p))
	sched.fireLast(ctx)

	require.Equal(t, 1, sched.count())

	job, err := jobs.Get(ctx, "refund")
	require.NoError(t, err)
	require.Equal(t, models.JobStateFailed, job.State)
	require.Equal(t, "constraint violation", job.LastError)
	require.False(t, h.stats.Healthy())
}

func TestRunReturnsOnlyFatalErrors(t *testing.T) {
	h, _, _, _ := newTestHarness(t)
	ctx := context.Background()

	require.NoError(t, h.Run(ctx, Processor{Name: "p", Work: func(context.Context) error {
		return marketplace.ErrTimeout
	}}))
	require.NoError(t, h.Run(ctx, Processor{Name: "p", Work: func(context.Context) error {
		return context.DeadlineExceeded
	}}))
	require.NoError(t, h.Run(ctx, Processor{Name: "p", Work: func(context.Context) error {
		return &marketplace.Fault{Code: marketplace.FaultWebapiKeyInvalid}
	}}))
	require.Error(t, h.Run(ctx, Processor{Name: "p", Work: func(context.Context) error {
		return errors.Wrap(errors.New("relation \"orders\" does not exist"), "listing refundable orders")
	}}))
}

func TestRemoteFaultsReArm(t *testing.T) {
	for _, code := range []marketplace.FaultCode{
		marketplace.FaultSessionExpired,
		marketplace.FaultInvalidItemID,
		marketplace.FaultUserPasswdInvalid,
	} {
		t.Run(string(code), func(t *testing.T) {
			h, sched, jobs, prom := newTestHarness(t)
			ctx := context.Background()

			p := Processor{Name: "journal", Interval: 30 * time.Second, Work: func(context.Context) error {
				return errors.Wrap(&marketplace.Fault{Code: code}, "fetching buyer 7")
			}}
			require.NoError(t, h.Start(ctx, p))
			sched.fireLast(ctx)

			require.Equal(t, 2, sched.count())
			require.Equal(t, 1.0, tickCount(t, prom, "journal", metrics.OutcomeRecoverable))
			require.Zero(t, tickCount(t, prom, "journal", metrics.OutcomeFatal))

			job, err := jobs.Get(ctx, "journal")
			require.NoError(t, err)
			require.Equal(t, models.JobStatePending, job.State)
		})
	}
}

func TestPanicIsFatal(t *testing.T) {
	h, sched, _, _ := newTestHarness(t)
	ctx := context.Background()

	p := Processor{Name: "feedback", Interval: time.Hour, Work: func(context.Context) error {
		panic("nil map")
	}}
	require.NoError(t, h.Start(ctx, p))
	require.NotPanics(t, func() { sched.fireLast(ctx) })
	require.Equal(t, 1, sched.count())

	err := h.Run(ctx, p)
	require.ErrorContains(t, err, "panicked: nil map")
}

func TestShutdownDoesNotReArm(t *testing.T) {
	h, sched, _, _ := newTestHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	p := Processor{Name: "journal", Interval: 30 * time.Second, Work: func(ctx context.Context) error {
		cancel()
		return errors.Wrap(ctx.Err(), "fetching journal")
	}}
	require.NoError(t, h.Start(context.Background(), p))
	sched.fireLast(ctx)

	require.Equal(t, 1, sched.count())
}

func TestBootstrap(t *testing.T) {
	h, sched, jobs, _ := newTestHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()

	noop := func(context.Context) error { return nil }
	processors := []Processor{
		{Name: "fresh_elsewhere", Interval: time.Minute, Work: noop},
		{Name: "failed_elsewhere", Interval: time.Minute, Work: noop},
		{Name: "mine", Interval: time.Minute, Work: noop},
		{Name: "new", Interval: time.Minute, Work: noop},
	}

	require.NoError(t, jobs.MarkPending(ctx, "fresh_elsewhere", "instance-b", now.Add(time.Minute)))
	require.NoError(t, jobs.MarkPending(ctx, "failed_elsewhere", "instance-b", now))
	require.NoError(t, jobs.MarkFinished(ctx, "failed_elsewhere", models.JobStateFailed, "boom"))
	require.NoError(t, jobs.MarkPending(ctx, "mine", "instance-a", now.Add(time.Minute)))

	require.NoError(t, h.Bootstrap(ctx, processors))

	var names []string
	for _, s := range sched.armed {
		names = append(names, s.name)
	}
	require.ElementsMatch(t, []string{"failed_elsewhere", "mine", "new"}, names)
}

func TestOwnedElsewhere(t *testing.T) {
	h, _, _, _ := newTestHarness(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	p := Processor{Name: "journal", Interval: 30 * time.Second, Delay: time.Minute}

	tests := []struct {
		name string
		job  models.ProcessorJob
		want bool
	}{
		{"fresh pending elsewhere", models.ProcessorJob{Owner: "b", State: models.JobStatePending, UpdatedAt: now.Add(-time.Minute)}, true},
		{"fresh running elsewhere", models.ProcessorJob{Owner: "b", State: models.JobStateRunning, UpdatedAt: now}, true},
		{"stale pending elsewhere", models.ProcessorJob{Owner: "b", State: models.JobStatePending, UpdatedAt: now.Add(-3 * time.Minute)}, false},
		{"idle elsewhere", models.ProcessorJob{Owner: "b", State: models.JobStateIdle, UpdatedAt: now}, false},
		{"own job", models.ProcessorJob{Owner: "instance-a", State: models.JobStateRunning, UpdatedAt: now}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, h.ownedElsewhere(&tt.job, p))
		})
	}
}

// tickCount reads the processor tick counter from the exported registry
func tickCount(t *testing.T, prom *metrics.ProcessorMetrics, processor, outcome string) float64 {
	t.Helper()

	families, err := prom.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "allegro_processor_ticks_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			labels := make(map[string]string)
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["processor"] == processor && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
