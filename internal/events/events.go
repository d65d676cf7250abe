package events

import (
	"time"
)

// Topic names, one stream per lifecycle transition.
const (
	TopicAttemptStarted   = "quiz.attempt.started"
	TopicAttemptSubmitted = "quiz.attempt.submitted"
	TopicQuizUpdated      = "quiz.updated"
)

// AttemptStarted is published when a new attempt row is created. Resumed
// attempts do not re-publish it.
type AttemptStarted struct {
	AttemptID     uint       `json:"attempt_id"`
	QuizID        uint       `json:"quiz_id"`
	UserID        string     `json:"user_id"`
	AttemptNumber int        `json:"attempt_number"`
	StartedAt     time.Time  `json:"started_at"`
	Deadline      *time.Time `json:"deadline,omitempty"`
}

// AttemptSubmitted is published after grading, for both voluntary and
// timeout submissions.
type AttemptSubmitted struct {
	AttemptID   uint      `json:"attempt_id"`
	QuizID      uint      `json:"quiz_id"`
	UserID      string    `json:"user_id"`
	Score       int       `json:"score"`
	MaxScore    int       `json:"max_score"`
	TimeSpent   int       `json:"time_spent"`
	EndReason   string    `json:"end_reason"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// QuizUpdated is published when a quiz definition or its active flag changes.
type QuizUpdated struct {
	QuizID    uint      `json:"quiz_id"`
	IsActive  bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`
}
