package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quizdeck/quiz-service/internal/clock"
	"github.com/quizdeck/quiz-service/internal/utils"
)

// State is the lifecycle state of a taking session.
type State int

const (
	StateNotStarted State = iota
	StateInProgress
	StateSubmitting
	StateGraded
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateInProgress:
		return "in_progress"
	case StateSubmitting:
		return "submitting"
	case StateGraded:
		return "graded"
	default:
		return "unknown"
	}
}

var (
	// ErrNotInProgress is returned for actions that require an open session.
	ErrNotInProgress = errors.New("session is not in progress")

	// ErrUnanswered is returned by Submit when questions remain unanswered
	// and the submission was not forced.
	ErrUnanswered = errors.New("not all questions are answered")

	// ErrClosed is returned by Begin when the session was closed while the
	// resolve was in flight. The stale attempt is discarded and no
	// countdown is started.
	ErrClosed = errors.New("session is closed")
)

// TakingSession drives one student's pass through a quiz: it resolves the
// attempt, tracks selections, keeps the countdown against the server
// deadline, and coordinates the single submission. All methods are safe for
// concurrent use.
type TakingSession struct {
	quizID   uint
	gateway  Gateway
	resolver *Resolver
	tracker  *AnswerTracker
	clock    *clock.Countdown
	logger   utils.Logger

	submitGroup singleflight.Group

	mu          sync.Mutex
	state       State
	closed      bool
	attempt     *Attempt
	result      *Result
	cancelClock func()
	questionIDs []uint
}

// New builds an idle session for the quiz. Begin starts it.
func New(quizID uint, gateway Gateway, logger utils.Logger, clockOpts ...clock.Option) *TakingSession {
	return &TakingSession{
		quizID:   quizID,
		gateway:  gateway,
		resolver: NewResolver(gateway, logger),
		tracker:  NewAnswerTracker(),
		clock:    clock.New(clockOpts...),
		logger:   logger,
	}
}

// Begin resolves the attempt and moves the session to InProgress, or
// straight to Graded when the latest attempt was already submitted. For a
// timed attempt the countdown is started against the server deadline; when
// it passes, the session force-submits whatever is answered.
func (s *TakingSession) Begin(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateNotStarted {
		s.mu.Unlock()
		return fmt.Errorf("session already started (state %s)", s.state)
	}
	s.mu.Unlock()

	resolution, err := s.resolver.Resolve(ctx, s.quizID)
	if err != nil {
		return err
	}
	attempt := resolution.Attempt

	if resolution.ShowResults {
		result, err := s.gateway.Result(ctx, attempt.ID)
		if err != nil {
			return fmt.Errorf("failed to load results for attempt %d: %w", attempt.ID, err)
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		s.attempt = attempt
		s.result = result
		s.state = StateGraded
		s.mu.Unlock()
		return nil
	}

	questionIDs := make([]uint, 0, len(attempt.Quiz.Questions))
	for _, q := range attempt.Quiz.Questions {
		questionIDs = append(questionIDs, q.ID)
	}
	s.tracker.MergeServer(attempt.Answers)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.attempt = attempt
	s.questionIDs = questionIDs
	s.state = StateInProgress
	s.mu.Unlock()

	// Started outside the lock: an already expired deadline fires the
	// forced submission synchronously.
	cancel := s.clock.Start(attempt.Deadline, func() {
		s.onDeadline()
	})
	s.mu.Lock()
	if s.closed {
		// Close arrived between committing the state and arming the
		// countdown. Roll the session back and drop the timer.
		s.state = StateNotStarted
		s.attempt = nil
		s.questionIDs = nil
		s.mu.Unlock()
		cancel()
		return ErrClosed
	}
	s.cancelClock = cancel
	s.mu.Unlock()

	s.logger.Info("taking session started",
		"quiz_id", s.quizID,
		"attempt_id", attempt.ID,
		"attempt_number", attempt.AttemptNumber,
		"timed", attempt.Deadline != nil,
	)
	return nil
}

// State returns the current lifecycle state.
func (s *TakingSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempt returns the resolved attempt, nil before Begin.
func (s *TakingSession) Attempt() *Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Result returns the graded result, nil until the session reaches Graded.
func (s *TakingSession) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Remaining reports the time left on a timed attempt.
func (s *TakingSession) Remaining() (time.Duration, bool) {
	s.mu.Lock()
	attempt := s.attempt
	s.mu.Unlock()
	if attempt == nil {
		return 0, false
	}
	return s.clock.Remaining(attempt.Deadline)
}

// SelectAnswer records a selection locally and persists it to the server.
// The local value is authoritative the moment it is recorded: a save racing
// with a newer selection cannot roll the answer back. Save failures are
// logged and tolerated since the full payload travels with the submission.
func (s *TakingSession) SelectAnswer(ctx context.Context, questionID uint, selectedOptionID *uint) error {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return ErrNotInProgress
	}
	attemptID := s.attempt.ID
	s.mu.Unlock()

	seq := s.tracker.Select(questionID, selectedOptionID)

	if err := s.gateway.SaveAnswer(ctx, attemptID, questionID, selectedOptionID); err != nil {
		s.logger.Warn("answer save failed, selection kept locally",
			"attempt_id", attemptID, "question_id", questionID, "error", err)
		return nil
	}
	s.tracker.MarkSaved(questionID, seq)
	return nil
}

// Answer returns the current selection for a question.
func (s *TakingSession) Answer(questionID uint) (*uint, bool) {
	return s.tracker.Answer(questionID)
}

// Progress reports answered and total question counts.
func (s *TakingSession) Progress() (answered, total int) {
	s.mu.Lock()
	ids := s.questionIDs
	s.mu.Unlock()
	return s.tracker.AnsweredCount(ids), len(ids)
}

// CanSubmit reports whether every question has a selection.
func (s *TakingSession) CanSubmit() bool {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return false
	}
	ids := s.questionIDs
	s.mu.Unlock()
	return s.tracker.AllAnswered(ids)
}

// Submit closes the attempt. Unanswered questions block a voluntary submit;
// concurrent calls coalesce into a single server request and all receive the
// same result. After a successful submit the session is Graded and the
// countdown is stopped.
func (s *TakingSession) Submit(ctx context.Context) (*Result, error) {
	return s.submit(ctx, false)
}

func (s *TakingSession) submit(ctx context.Context, forced bool) (*Result, error) {
	s.mu.Lock()
	switch s.state {
	case StateGraded:
		result := s.result
		s.mu.Unlock()
		return result, nil
	case StateNotStarted:
		s.mu.Unlock()
		return nil, ErrNotInProgress
	}
	attemptID := s.attempt.ID
	ids := s.questionIDs
	s.mu.Unlock()

	if !forced && !s.tracker.AllAnswered(ids) {
		return nil, ErrUnanswered
	}

	v, err, _ := s.submitGroup.Do("submit", func() (any, error) {
		s.setState(StateSubmitting)

		result, err := s.gateway.Submit(ctx, attemptID, s.tracker.Payload(ids))
		if err != nil {
			s.setState(StateInProgress)
			return nil, fmt.Errorf("failed to submit attempt %d: %w", attemptID, err)
		}

		s.mu.Lock()
		s.result = result
		s.state = StateGraded
		cancel := s.cancelClock
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		s.logger.Info("attempt submitted",
			"attempt_id", attemptID,
			"score", result.Score,
			"max_score", result.MaxScore,
			"forced", forced,
		)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Close stops the countdown without submitting. The attempt stays open on
// the server and can be resumed by a new session. A resolve still in flight
// when Close is called is discarded when it lands.
func (s *TakingSession) Close() {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancelClock
	s.cancelClock = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *TakingSession) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// onDeadline force-submits when the countdown fires. The server enforces the
// deadline too, so a failure here only means the server already closed the
// attempt or will on its own timer.
func (s *TakingSession) onDeadline() {
	s.logger.Info("deadline reached, force submitting", "quiz_id", s.quizID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.submit(ctx, true); err != nil {
		s.logger.Error("forced submission failed", "quiz_id", s.quizID, "error", err)
	}
}
