// Package worker runs the engine's sweeps on fixed intervals.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/deadline-engine/internal/persistence"
	"github.com/spec-kit/deadline-engine/internal/service"
)

const (
	leaseKeyPrefix  = "deadline-engine:sweep:"
	defaultLeaseTTL = 5 * time.Minute
)

// ErrUnknownJob is returned by RunNamed for a name no job carries.
var ErrUnknownJob = errors.New("unknown sweep")

// SweepFunc is one stateless pass of a sweep.
type SweepFunc func(ctx context.Context) (service.SweepReport, error)

// Job pairs a sweep with how often it runs.
type Job struct {
	Name     string
	Interval time.Duration
	Run      SweepFunc
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases so only one instance runs a sweep at a time.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

type redisLocker struct {
	redis *persistence.Redis
}

// NewRedisLocker adapts the redis client. A nil client yields a nil Locker.
func NewRedisLocker(r *persistence.Redis) Locker {
	if r == nil {
		return nil
	}
	return &redisLocker{redis: r}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	lease, err := l.redis.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// Scheduler drives a set of jobs until stopped.
type Scheduler struct {
	jobs     []Job
	locker   Locker
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler builds a scheduler. locker may be nil.
func NewScheduler(logger *zap.Logger, locker Locker, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		locker:   locker,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start launches one loop per job and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			s.logger.Warn("sweep disabled", zap.String("sweep", job.Name))
			continue
		}
		job := job
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, job)
		}()
	}
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop ends every loop and waits for running sweeps to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		s.logger.Info("scheduler stopped")
	})
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	s.RunOnce(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunOnce(ctx, job)
		}
	}
}

// RunOnce runs a job under its lease. A panic inside the sweep is logged and
// reported as an error.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) (report service.SweepReport, err error) {
	if s.locker != nil {
		ttl := job.Interval
		if ttl <= 0 {
			ttl = defaultLeaseTTL
		}
		lease, lockErr := s.locker.Acquire(ctx, leaseKeyPrefix+job.Name, ttl)
		switch {
		case errors.Is(lockErr, persistence.ErrLeaseHeld):
			s.logger.Debug("sweep skipped; lease held elsewhere", zap.String("sweep", job.Name))
			return service.SweepReport{Sweep: job.Name}, nil
		case lockErr != nil:
			s.logger.Warn("lease unavailable; running sweep anyway", zap.String("sweep", job.Name), zap.Error(lockErr))
		default:
			defer func() {
				if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
					s.logger.Warn("unable to release lease", zap.String("sweep", job.Name), zap.Error(relErr))
				}
			}()
		}
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sweep panicked",
				zap.String("sweep", job.Name),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.String("stack", string(debug.Stack())))
			err = fmt.Errorf("sweep %s panicked: %v", job.Name, r)
		}
	}()

	report, err = job.Run(ctx)
	if err != nil {
		s.logger.Error("sweep failed", zap.String("sweep", job.Name), zap.Error(err))
	}
	return report, err
}

// RunNamed runs the job with the given name once, under its lease.
func (s *Scheduler) RunNamed(ctx context.Context, name string) (service.SweepReport, error) {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.RunOnce(ctx, job)
		}
	}
	return service.SweepReport{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

// JobNames lists the registered jobs in registration order.
func (s *Scheduler) JobNames() []string {
	names := make([]string, 0, len(s.jobs))
	for _, job := range s.jobs {
		names = append(names, job.Name)
	}
	return names
}

// SafeGo launches fn in a goroutine that logs instead of crashing on panic.
func SafeGo(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panicked",
					zap.String("goroutine", name),
					zap.String("panic", fmt.Sprintf("%v", r)),
					zap.String("stack", string(debug.Stack())))
			}
		}()
		fn()
	}()
}
