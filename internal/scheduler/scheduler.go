// Package scheduler invokes pipeline cycles on a wall-clock interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"crypto-feature-pipeline/internal/lock"
	"crypto-feature-pipeline/internal/logger"
	"crypto-feature-pipeline/internal/observability"
	"crypto-feature-pipeline/internal/orchestrator"
)

// Runner runs a single cycle.
type Runner interface {
	RunCycle(ctx context.Context) (*orchestrator.CycleResult, error)
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Running             bool                      `json:"running"`
	Runs                int                       `json:"runs"`
	Failures            int                       `json:"failures"`
	Skipped             int                       `json:"skipped"`
	ConsecutiveFailures int                       `json:"consecutive_failures"`
	LastRun             time.Time                 `json:"last_run,omitempty"`
	LastSuccess         time.Time                 `json:"last_success,omitempty"`
	LastError           string                    `json:"last_error,omitempty"`
	NextRun             time.Time                 `json:"next_run,omitempty"`
	LastResult          *orchestrator.CycleResult `json:"last_result,omitempty"`
}

// Scheduler runs cycles one at a time. A failed cycle never stops the loop;
// the policy decides how long to wait before the next one.
type Scheduler struct {
	runner Runner
	policy RetryPolicy
	locker lock.Locker
	sink   observability.Sink
	log    logrus.FieldLogger
	now    func() time.Time

	mu     sync.Mutex
	status Status
}

// Options for creating Scheduler.
type Options struct {
	Runner Runner      // required
	Policy RetryPolicy // required

	Locker lock.Locker // defaults to a process-local lock
	Sink   observability.Sink
	Logger logrus.FieldLogger
	Now    func() time.Time
}

// New creates a new Scheduler.
func New(opts Options) *Scheduler {
	s := &Scheduler{
		runner: opts.Runner,
		policy: opts.Policy,
		locker: opts.Locker,
		sink:   opts.Sink,
		now:    opts.Now,
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.sink == nil {
		s.sink = observability.NopSink{}
	}
	if s.now == nil {
		s.now = time.Now
	}

	var log logrus.FieldLogger = logger.Discard()
	if opts.Logger != nil {
		log = opts.Logger
	}
	s.log = logger.WithComponent(log, "scheduler")
	return s
}

// Run executes a cycle immediately and then after each policy delay until
// ctx is cancelled. It returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started")

	for {
		if err := ctx.Err(); err != nil {
			s.log.Info("scheduler stopped")
			return err
		}
		s.RunOnce(ctx)

		delay := s.policy.Next(s.Status().ConsecutiveFailures)
		s.mu.Lock()
		s.status.NextRun = s.now().Add(delay)
		s.mu.Unlock()
		s.log.WithField("delay", delay).Debug("waiting for next cycle")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// RunOnce runs one cycle under the lock. It reports false when the cycle
// was skipped because the lock is held elsewhere or could not be acquired.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	release, ok, err := s.locker.TryLock(ctx)
	if err != nil {
		s.skip()
		s.log.WithError(err).Warn("cycle lock unavailable, skipping")
		return false, nil
	}
	if !ok {
		s.skip()
		s.log.Info("cycle already running, skipping")
		return false, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.WithError(err).Warn("release cycle lock")
		}
	}()

	s.mu.Lock()
	s.status.Running = true
	s.mu.Unlock()

	result, err := s.runner.RunCycle(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = false
	s.status.Runs++
	s.status.LastRun = s.now()
	s.status.LastResult = result
	if err != nil {
		s.status.Failures++
		s.status.ConsecutiveFailures++
		s.status.LastError = err.Error()
		return true, err
	}
	s.status.ConsecutiveFailures = 0
	s.status.LastSuccess = s.status.LastRun
	s.status.LastError = ""
	return true, nil
}

func (s *Scheduler) skip() {
	s.sink.IncCounter(observability.CyclesSkippedTotal)
	s.mu.Lock()
	s.status.Skipped++
	s.mu.Unlock()
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
