package knowledge

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternbank/internal/logging"
)

// ErrSchedulerRunning is returned by Start on an already running scheduler.
var ErrSchedulerRunning = errors.New("decay scheduler is already running")

// Scheduler runs the service's decay pass on a fixed interval in the
// background. Start and Stop are safe to call concurrently; a stopped
// scheduler can be started again.
type Scheduler struct {
	interval time.Duration
	svc      *Service
	logger   *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval overrides the decay interval. Defaults to the service's
// configured decay interval.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.interval = interval }
}

// NewScheduler creates a scheduler for the service's decay pass. It does not
// start automatically; call Start.
func NewScheduler(svc *Service, logger *logging.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if svc == nil {
		return nil, errors.New("service cannot be nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	s := &Scheduler{
		interval: time.Duration(svc.cfg.Decay.Interval),
		svc:      svc,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		s.interval = 24 * time.Hour
	}
	return s, nil
}

// Start launches the background decay loop. Starting a running scheduler
// fails with ErrSchedulerRunning.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info("decay scheduler started", zap.Duration("interval", s.interval))
	go s.run(s.stopCh, s.done)
	return nil
}

// Stop signals the loop to exit and waits for it to finish. Stopping a
// stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("decay scheduler stopped")
}

// run is the scheduler loop. Each tick runs one decay pass; pass failures
// are logged and the loop keeps going.
func (s *Scheduler) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeDecay()
		case <-stopCh:
			return
		}
	}
}

// safeDecay isolates panics so one bad pass cannot kill the scheduler.
func (s *Scheduler) safeDecay() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("decay pass panicked",
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	affected, err := s.svc.Decay(time.Now())
	if err != nil {
		s.logger.Error("scheduled decay failed", zap.Error(err))
		return
	}
	if len(affected) > 0 {
		s.logger.Info("scheduled decay completed", zap.Int("affected", len(affected)))
	}
}
