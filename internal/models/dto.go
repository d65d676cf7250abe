package models

import "time"

// ===== STUDENT-FACING VIEWS =====

// StudentQuiz is the sanitized, shuffled view of a quiz served to a student
// with an in-progress attempt: same shape as Quiz, correctness stripped from
// every option, question/option order replaced by the attempt's shuffle data.
type StudentQuiz struct {
	ID          uint              `json:"id"`
	Title       string            `json:"title"`
	Description *string           `json:"description"`
	TotalTime   int               `json:"total_time"`
	MaxAttempts *int              `json:"max_attempts"`
	IsActive    bool              `json:"is_active"`
	Questions   []StudentQuestion `json:"questions"`
}

type StudentQuestion struct {
	ID      uint            `json:"id"`
	Text    string          `json:"text"`
	Marks   int             `json:"marks"`
	Options []StudentOption `json:"options"`
}

type StudentOption struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

// ===== SUMMARY DTOs =====

type QuizSummary struct {
	ID            uint       `json:"id"`
	Title         string     `json:"title"`
	Description   *string    `json:"description"`
	TotalTime     int        `json:"total_time"`
	MaxAttempts   *int       `json:"max_attempts"`
	IsActive      bool       `json:"is_active"`
	QuestionCount int        `json:"question_count"`
	AttemptsMade  int        `json:"attempts_made"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAttempted *time.Time `json:"last_attempted,omitempty"`
}

type AttemptSummary struct {
	ID            uint       `json:"id"`
	QuizID        uint       `json:"quiz_id"`
	AttemptNumber int        `json:"attempt_number"`
	Score         int        `json:"score"`
	MaxScore      int        `json:"max_score"`
	TimeSpent     int        `json:"time_spent"`
	StartedAt     time.Time  `json:"started_at"`
	SubmittedAt   *time.Time `json:"submitted_at"`
}

// ===== HTTP RESPONSES =====

type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
