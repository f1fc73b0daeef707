package scheduler

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs a task periodically while started. It backs the auto-refetch
// of views that stay open, such as the order list.
// Runs never overlap: a tick that arrives while the task is still running is
// dropped.
type Scheduler struct {
	task func(context.Context)

	mu       sync.Mutex
	interval time.Duration
	running  bool
	cancel   context.CancelFunc
	trigger  chan struct{}
	reset    chan time.Duration
	done     chan struct{}
	runs     int
}

// New creates a stopped scheduler
func New(interval time.Duration, task func(context.Context)) *Scheduler {
	return &Scheduler{
		interval: interval,
		task:     task,
	}
}

// Start begins executing the task every interval until ctx ends or Stop is
// called. Starting a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context, firstRunImmediately bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		select {
		case <-s.done:
			// the previous loop ended with its context
			s.cancel()
		default:
			return
		}
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.trigger = make(chan struct{}, 1)
	s.reset = make(chan time.Duration, 1)
	s.done = make(chan struct{})

	go s.loop(ctx, s.interval, firstRunImmediately, s.trigger, s.reset, s.done)
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, runNow bool, trigger <-chan struct{}, reset <-chan time.Duration, done chan<- struct{}) {
	defer close(done)

	if runNow {
		s.run(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx)
		case <-trigger:
			s.run(ctx)
			ticker.Reset(interval)
		case next := <-reset:
			interval = next
			ticker.Reset(interval)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.task(ctx)

	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
}

// Trigger runs the task now and restarts the interval. Ignored when stopped.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// SetInterval changes the interval, effective from the next tick
func (s *Scheduler) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.interval = interval
	if !s.running {
		return
	}
	// drop an unapplied value so the latest wins
	select {
	case <-s.reset:
	default:
	}
	s.reset <- interval
}

// Stop terminates the periodic execution and waits for a running task
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// IsRunning returns true between Start and Stop
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Runs returns how many times the task ran
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}
