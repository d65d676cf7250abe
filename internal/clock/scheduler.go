package clock

import (
	"context"
	"sync"
	"time"

	"github.com/quizdeck/quiz-service/internal/utils"
)

// TimeoutFunc force-closes an attempt whose deadline has passed.
type TimeoutFunc func(ctx context.Context, attemptID uint)

// Scheduler keeps one deadline watcher per in-progress timed attempt and
// invokes the timeout callback when an attempt's deadline passes. It is the
// authoritative timer: clients render their own countdowns, but the attempt
// is closed server side whether or not a client is still connected.
type Scheduler struct {
	onTimeout TimeoutFunc
	logger    utils.Logger
	opts      []Option

	mu      sync.Mutex
	cancels map[uint]func()
}

// NewScheduler creates a scheduler that calls onTimeout for expired attempts.
func NewScheduler(onTimeout TimeoutFunc, logger utils.Logger, opts ...Option) *Scheduler {
	return &Scheduler{
		onTimeout: onTimeout,
		logger:    logger,
		opts:      opts,
		cancels:   make(map[uint]func()),
	}
}

// Arm registers a watcher for the attempt. Untimed attempts (nil deadline)
// are ignored. Re-arming an attempt replaces its existing watcher, so Arm is
// safe to call again after a restart or on resume.
func (s *Scheduler) Arm(attemptID uint, deadline *time.Time) {
	if deadline == nil {
		return
	}

	s.mu.Lock()
	if cancel, ok := s.cancels[attemptID]; ok {
		cancel()
		delete(s.cancels, attemptID)
	}
	s.mu.Unlock()

	// Start outside the lock: an already expired deadline fires the
	// timeout callback synchronously, and expire takes the lock itself.
	countdown := New(s.opts...)
	cancel := countdown.Start(deadline, func() {
		s.expire(attemptID)
	})

	s.mu.Lock()
	if !countdown.Fired() {
		s.cancels[attemptID] = cancel
	}
	s.mu.Unlock()

	s.logger.Debug("armed attempt deadline", "attempt_id", attemptID, "deadline", deadline)
}

// Disarm stops the attempt's watcher. Called when the attempt is submitted
// before its deadline. Unknown ids are a no-op.
func (s *Scheduler) Disarm(attemptID uint) {
	s.mu.Lock()
	cancel, ok := s.cancels[attemptID]
	if ok {
		delete(s.cancels, attemptID)
	}
	s.mu.Unlock()

	if ok {
		cancel()
		s.logger.Debug("disarmed attempt deadline", "attempt_id", attemptID)
	}
}

// Shutdown cancels every watcher. Pending timeouts are left for the next
// service start to re-arm and close.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
}

func (s *Scheduler) expire(attemptID uint) {
	s.mu.Lock()
	delete(s.cancels, attemptID)
	s.mu.Unlock()

	s.logger.Info("attempt deadline passed, forcing submission", "attempt_id", attemptID)
	if s.onTimeout != nil {
		s.onTimeout(context.Background(), attemptID)
	}
}
