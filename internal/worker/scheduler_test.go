package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/deadline-engine/internal/persistence"
	"github.com/spec-kit/deadline-engine/internal/service"
)

type fakeLease struct{ released *atomic.Int32 }

func (l fakeLease) Release(context.Context) error {
	l.released.Add(1)
	return nil
}

type fakeLocker struct {
	mu       sync.Mutex
	err      error
	keys     []string
	released atomic.Int32
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, l.err
	}
	return fakeLease{released: &l.released}, nil
}

func countingJob(name string, interval time.Duration, calls *atomic.Int32) Job {
	return Job{
		Name:     name,
		Interval: interval,
		Run: func(context.Context) (service.SweepReport, error) {
			calls.Add(1)
			return service.SweepReport{Sweep: name, Processed: 1}, nil
		},
	}
}

func TestRunOnce_HoldsLeaseAroundSweep(t *testing.T) {
	locker := &fakeLocker{}
	var calls atomic.Int32
	s := NewScheduler(zap.NewNop(), locker)

	report, err := s.RunOnce(context.Background(), countingJob("expiry", time.Minute, &calls))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"deadline-engine:sweep:expiry"}, locker.keys)
	assert.Equal(t, int32(1), locker.released.Load())
}

func TestRunOnce_SkipsWhenLeaseHeld(t *testing.T) {
	locker := &fakeLocker{err: persistence.ErrLeaseHeld}
	var calls atomic.Int32
	s := NewScheduler(zap.NewNop(), locker)

	_, err := s.RunOnce(context.Background(), countingJob("expiry", time.Minute, &calls))
	require.NoError(t, err)
	assert.Zero(t, calls.Load())
}

func TestRunOnce_RunsWhenLockerUnreachable(t *testing.T) {
	locker := &fakeLocker{err: errors.New("dial tcp: connection refused")}
	var calls atomic.Int32
	s := NewScheduler(zap.NewNop(), locker)

	_, err := s.RunOnce(context.Background(), countingJob("expiry", time.Minute, &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunOnce_RecoversPanics(t *testing.T) {
	s := NewScheduler(zap.NewNop(), nil)
	job := Job{Name: "escalation", Interval: time.Minute, Run: func(context.Context) (service.SweepReport, error) {
		panic("nil map")
	}}

	_, err := s.RunOnce(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil map")
}

func TestScheduler_RunsImmediatelyThenOnInterval(t *testing.T) {
	var fast, disabled atomic.Int32
	s := NewScheduler(zap.NewNop(), nil,
		countingJob("outbox", 10*time.Millisecond, &fast),
		countingJob("auto-close", 0, &disabled),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	assert.Eventually(t, func() bool { return fast.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()

	stopped := fast.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, fast.Load())
	assert.Zero(t, disabled.Load())
}

func TestRunNamed(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(zap.NewNop(), nil, countingJob("expiry", time.Minute, &calls))

	report, err := s.RunNamed(context.Background(), "expiry")
	require.NoError(t, err)
	assert.Equal(t, "expiry", report.Sweep)
	assert.Equal(t, int32(1), calls.Load())

	_, err = s.RunNamed(context.Background(), "vacuum")
	assert.ErrorIs(t, err, ErrUnknownJob)
	assert.Equal(t, []string{"expiry"}, s.JobNames())
}
