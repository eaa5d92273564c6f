package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/tenantgate/internal/billing/domain"
	"github.com/smallbiznis/tenantgate/internal/clock"
	"github.com/smallbiznis/tenantgate/internal/config"
	"github.com/smallbiznis/tenantgate/internal/lock"
	obsmetrics "github.com/smallbiznis/tenantgate/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobMonthlyBilling = "monthly_billing"
	JobOverdueSweep   = "overdue_sweep"

	triggerTimer  = "timer"
	triggerManual = "manual"
)

// Runner is the slice of the billing engine the scheduler drives.
type Runner interface {
	ProcessMonthlyBilling(ctx context.Context) (*billingdomain.BillingRunResult, error)
	CheckOverdueInvoices(ctx context.Context) (int, error)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Billing  billingdomain.Service
	GenID    *snowflake.Node
	Clock    clock.Clock
	Schedule *config.BillingConfigHolder
	Config   Config                       `optional:"true"`
	Locker   lock.Locker                  `optional:"true"`
	Metrics  *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	runner   Runner
	genID    *snowflake.Node
	clock    clock.Clock
	schedule *config.BillingConfigHolder
	locker   lock.Locker
	metrics  *obsmetrics.SchedulerMetrics

	// after returns a channel that fires once d has elapsed.
	after func(d time.Duration) <-chan time.Time

	monthlyRunning atomic.Bool
	sweepRunning   atomic.Bool
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Billing == nil || p.GenID == nil || p.Clock == nil || p.Schedule == nil {
		return nil, ErrInvalidConfig
	}
	return newScheduler(p.Log, p.Billing, p.GenID, p.Clock, p.Schedule, p.Config, p.Locker, p.Metrics), nil
}

func newScheduler(
	log *zap.Logger,
	runner Runner,
	genID *snowflake.Node,
	c clock.Clock,
	schedule *config.BillingConfigHolder,
	cfg Config,
	locker lock.Locker,
	m *obsmetrics.SchedulerMetrics,
) *Scheduler {
	return &Scheduler{
		log:      log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      cfg.withDefaults(),
		runner:   runner,
		genID:    genID,
		clock:    c,
		schedule: schedule,
		locker:   locker,
		metrics:  m,
		after:    time.After,
	}
}

// TriggerMonthlyBilling runs the monthly pass now. It returns
// ErrRunInProgress when a pass is already running here or on another replica.
func (s *Scheduler) TriggerMonthlyBilling(ctx context.Context) (*billingdomain.BillingRunResult, error) {
	return s.runMonthly(ctx, triggerManual)
}

// TriggerOverdueSweep runs the overdue sweep now, with the same guard.
func (s *Scheduler) TriggerOverdueSweep(ctx context.Context) (int, error) {
	return s.runSweep(ctx, triggerManual)
}

func (s *Scheduler) runMonthly(parent context.Context, trigger string) (*billingdomain.BillingRunResult, error) {
	if !s.monthlyRunning.CompareAndSwap(false, true) {
		s.skip(JobMonthlyBilling, trigger, obsmetrics.SchedulerSkipReasonOverlap)
		return nil, ErrRunInProgress
	}
	defer s.monthlyRunning.Store(false)

	release, ok, err := s.acquire(parent)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.skip(JobMonthlyBilling, trigger, obsmetrics.SchedulerSkipReasonLocked)
		return nil, ErrRunInProgress
	}
	defer release()

	var result *billingdomain.BillingRunResult
	err = s.runJob(parent, JobMonthlyBilling, trigger, s.cfg.MonthlyTimeout, func(ctx context.Context, run *jobRun) error {
		res, err := s.runner.ProcessMonthlyBilling(ctx)
		result = res
		if res != nil {
			run.processed = res.Processed
			run.errors = res.Errors
			s.metrics.AddTenants(JobMonthlyBilling, obsmetrics.TenantOutcomeInvoiced, res.Processed)
			s.metrics.AddTenants(JobMonthlyBilling, obsmetrics.TenantOutcomeFailed, res.Errors)
			s.metrics.AddTenants(JobMonthlyBilling, obsmetrics.TenantOutcomeOverdue, res.Overdue)
		}
		return err
	})
	return result, err
}

func (s *Scheduler) runSweep(parent context.Context, trigger string) (int, error) {
	if !s.sweepRunning.CompareAndSwap(false, true) {
		s.skip(JobOverdueSweep, trigger, obsmetrics.SchedulerSkipReasonOverlap)
		return 0, ErrRunInProgress
	}
	defer s.sweepRunning.Store(false)

	var swept int
	err := s.runJob(parent, JobOverdueSweep, trigger, s.cfg.SweepTimeout, func(ctx context.Context, run *jobRun) error {
		n, err := s.runner.CheckOverdueInvoices(ctx)
		swept = n
		run.processed = n
		s.metrics.AddTenants(JobOverdueSweep, obsmetrics.TenantOutcomeOverdue, n)
		return err
	})
	return swept, err
}

// acquire takes the cross-replica lock when redis is configured. Without a
// locker the in-process guard is the only protection.
func (s *Scheduler) acquire(ctx context.Context) (func(), bool, error) {
	if s.locker == nil {
		return func() {}, true, nil
	}
	token, ok, err := s.locker.TryLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
	if err != nil {
		return nil, false, fmt.Errorf("acquire scheduler lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, s.cfg.LockKey, token); err != nil {
			s.log.Warn("scheduler lock release failed", zap.Error(err))
		}
	}, true, nil
}

func (s *Scheduler) skip(job, trigger, reason string) {
	s.metrics.IncJobSkipped(job, reason)
	s.logJobSkipped(job, trigger, reason)
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	trigger string,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, name, trigger)
	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	err := fn(ctx, run)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(run.startedAt))
	s.logJobFinish(ctx, run, err)
	if err == nil {
		s.metrics.MarkSuccess(name, s.clock.Now())
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

// RunForever drives both triggers until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.monthlyLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.sweepLoop(ctx)
	}()
	wg.Wait()
}

func (s *Scheduler) monthlyLoop(ctx context.Context) {
	from := s.clock.Now()
	for {
		next, err := s.nextMonthly(from)
		if err != nil {
			s.log.Error("monthly schedule invalid, retrying in a minute", zap.Error(err))
			next = s.clock.Now().Add(time.Minute)
		}
		s.metrics.SetNextMonthlyRun(next)
		s.log.Info("monthly billing armed", zap.Time("next_run", next))

		wait := next.Sub(s.clock.Now())
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-s.after(wait):
		}
		if err != nil {
			from = s.clock.Now()
			continue
		}

		if _, err := s.runMonthly(ctx, triggerTimer); err != nil && !errors.Is(err, ErrRunInProgress) {
			s.log.Warn("monthly billing run failed", zap.Error(err))
		}

		// A timer that fires a hair early must not re-arm for the same slot.
		from = s.clock.Now()
		if !from.After(next) {
			from = next
		}
	}
}

func (s *Scheduler) nextMonthly(from time.Time) (time.Time, error) {
	cfg := s.schedule.Get()
	hour, minute, err := cfg.CutoffClock()
	if err != nil {
		return time.Time{}, err
	}
	loc, err := cfg.TimeLocation()
	if err != nil {
		return time.Time{}, err
	}
	return NextMonthlyRun(from, hour, minute, loc), nil
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	for {
		interval := s.schedule.Get().OverdueSweepInterval
		if interval <= 0 {
			interval = time.Hour
		}
		select {
		case <-ctx.Done():
			return
		case <-s.after(interval):
		}
		if _, err := s.runSweep(ctx, triggerTimer); err != nil && !errors.Is(err, ErrRunInProgress) {
			s.log.Warn("overdue sweep failed", zap.Error(err))
		}
	}
}
