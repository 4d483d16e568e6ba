package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const DefaultInterval = 20 * time.Second

// Task is one unit of scheduled work.
type Task func(ctx context.Context) error

// Scheduler runs a task on a fixed interval. A tick that arrives while the previous run is still
// in flight is dropped, never queued.
type Scheduler struct {
	name     string
	interval time.Duration
	task     Task
	logger   ectologger.Logger

	inFlight atomic.Bool
	wg       sync.WaitGroup

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.Mutex
}

func NewScheduler(name string, interval time.Duration, task Task, logger ectologger.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger,
	}
}

func (s *Scheduler) GetName() string     { return s.name }
func (s *Scheduler) DependsOn() []string { return nil }

// Start begins ticking. The first run happens immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stoppedC = make(chan struct{})

	// runs outlive the startup context
	loopCtx := context.WithoutCancel(ctx)
	s.logger.WithContext(ctx).Infof("Starting scheduler %s: interval=%s", s.name, s.interval)
	go s.loop(loopCtx, s.stopCh, s.stoppedC)
	return nil
}

// Stop halts ticking and waits for an in-flight run to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	stopped := s.stoppedC
	s.mu.Unlock()

	select {
	case <-stopped:
		s.logger.WithContext(ctx).Infof("Scheduler %s stopped gracefully", s.name)
		return nil
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warnf("Scheduler %s shutdown timed out", s.name)
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Busy reports whether a run is in flight.
func (s *Scheduler) Busy() bool {
	return s.inFlight.Load()
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}, stoppedC chan<- struct{}) {
	defer close(stoppedC)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Trigger(ctx)
	for {
		select {
		case <-stopCh:
			s.wg.Wait()
			return
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

// Trigger starts a run unless one is in flight. It reports whether a run was started.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		metrics.SchedulerTicksSkipped.Inc()
		s.logger.WithContext(ctx).Debugf("Scheduler %s tick skipped, previous run still in flight", s.name)
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)

		ctx, span := tracing.StartSpan(ctx, "Scheduler.run")
		defer span.End()

		start := time.Now()
		if err := s.task(ctx); err != nil {
			span.RecordError(err)
			s.logger.WithContext(ctx).WithError(err).Warnf("Scheduler %s run failed", s.name)
			return
		}
		s.logger.WithContext(ctx).Debugf("Scheduler %s run completed in %s", s.name, time.Since(start))
	}()
	return true
}
