package session

import (
	"context"
	"time"

	"github.com/quizdeck/quiz-service/internal/models"
)

// Attempt is the server's view of a taking attempt as seen by the client
// engine. The quiz inside is already sanitized and ordered by the server.
type Attempt struct {
	ID            uint                `json:"id"`
	QuizID        uint                `json:"quiz_id"`
	AttemptNumber int                 `json:"attempt_number"`
	Quiz          *models.StudentQuiz `json:"quiz"`
	StartedAt     time.Time           `json:"started_at"`
	Deadline      *time.Time          `json:"deadline,omitempty"`
	SubmittedAt   *time.Time          `json:"submitted_at,omitempty"`
	Answers       []SavedAnswer       `json:"answers,omitempty"`
}

// SavedAnswer is a previously persisted selection, returned when an
// in-progress attempt is resumed.
type SavedAnswer struct {
	QuestionID       uint  `json:"question_id"`
	SelectedOptionID *uint `json:"selected_option_id,omitempty"`
}

// SubmittedAnswer is one row of the submission payload. Every question of
// the quiz appears exactly once; unanswered questions carry a nil option.
type SubmittedAnswer struct {
	QuestionID       uint  `json:"question_id"`
	SelectedOptionID *uint `json:"selected_option_id"`
}

// Result is the graded outcome of a submitted attempt.
type Result struct {
	AttemptID    uint      `json:"attempt_id"`
	QuizID       uint      `json:"quiz_id"`
	QuizTitle    string    `json:"quiz_title"`
	Score        int       `json:"score"`
	MaxScore     int       `json:"max_score"`
	SubmittedAt  time.Time `json:"submitted_at"`
	TimeSpent    int       `json:"time_spent"`
	EndReason    string    `json:"end_reason"`
	QuizActive   bool      `json:"quiz_active"`
	MaxAttempts  *int      `json:"max_attempts,omitempty"`
	AttemptsMade int       `json:"attempts_made"`
}

// Percentage returns the score as a percentage of the maximum, zero when the
// quiz carries no marks.
func (r *Result) Percentage() float64 {
	if r.MaxScore == 0 {
		return 0
	}
	return float64(r.Score) / float64(r.MaxScore) * 100
}

// CanRetake reports whether the student may start another attempt: the quiz
// must still be active and the attempt count must be under the limit. A nil
// limit means unlimited attempts.
func (r *Result) CanRetake() bool {
	if !r.QuizActive {
		return false
	}
	if r.MaxAttempts == nil {
		return true
	}
	return r.AttemptsMade < *r.MaxAttempts
}

// Gateway is the server boundary the taking engine drives. Implementations
// talk to the quiz service; tests substitute an in-memory fake.
type Gateway interface {
	// ResolveAttempt returns the caller's open attempt for the quiz,
	// creating one if none exists. When the latest attempt is already
	// submitted it is returned as-is with SubmittedAt set.
	ResolveAttempt(ctx context.Context, quizID uint) (*Attempt, error)

	// SaveAnswer persists a single selection for an in-progress attempt.
	SaveAnswer(ctx context.Context, attemptID, questionID uint, selectedOptionID *uint) error

	// Submit closes the attempt with the full answer payload and returns
	// the graded result.
	Submit(ctx context.Context, attemptID uint, answers []SubmittedAnswer) (*Result, error)

	// Result fetches the graded result of a submitted attempt.
	Result(ctx context.Context, attemptID uint) (*Result, error)
}
