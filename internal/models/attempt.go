package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
)

const (
	AttemptEndReasonTimeout   = "time_out"
	AttemptEndReasonSubmitted = "submitted"
)

// ShuffleData is the per-attempt display-order mapping, fixed at attempt
// creation and reused verbatim on every resume. Questions lists question ids
// in display order; Options maps each question id to its option ids in
// display order.
type ShuffleData struct {
	Questions []uint          `json:"questions"`
	Options   map[uint][]uint `json:"options"`
}

type QuizAttempt struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	QuizID        uint          `json:"quiz_id" gorm:"not null;index:idx_attempt_quiz_user"`
	UserID        string        `json:"user_id" gorm:"not null;index:idx_attempt_quiz_user;size:255"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null"`
	Status        AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	// Timing. Deadline is fixed at creation (started_at + total_time) and is
	// never extended; nil for untimed quizzes. SubmittedAt is nil while the
	// attempt is in progress.
	StartedAt   time.Time  `json:"started_at"`
	Deadline    *time.Time `json:"deadline"`
	SubmittedAt *time.Time `json:"submitted_at"`
	TimeSpent   int        `json:"time_spent"` // seconds
	EndReason   *string    `json:"end_reason" gorm:"size:32"`

	// Scoring, populated by grading on submission.
	Score    int `json:"score"`
	MaxScore int `json:"max_score"`

	// Per-attempt display order, serialized ShuffleData.
	ShuffleData datatypes.JSON `json:"shuffle_data" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Quiz    Quiz     `json:"-" gorm:"foreignKey:QuizID"`
	Student User     `json:"-" gorm:"foreignKey:UserID"`
	Answers []Answer `json:"answers" gorm:"foreignKey:AttemptID"`
}

// Answer is unique per (attempt, question): saving is an upsert, never an
// append. SelectedOptionID is nil for questions the student never answered.
type Answer struct {
	ID               uint  `json:"id" gorm:"primaryKey"`
	AttemptID        uint  `json:"attempt_id" gorm:"not null;uniqueIndex:idx_answer_attempt_question"`
	QuestionID       uint  `json:"question_id" gorm:"not null;uniqueIndex:idx_answer_attempt_question"`
	SelectedOptionID *uint `json:"selected_option_id"`

	// IsCorrect is populated only after grading.
	IsCorrect *bool `json:"is_correct"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Attempt  QuizAttempt `json:"-" gorm:"foreignKey:AttemptID"`
	Question Question    `json:"-" gorm:"foreignKey:QuestionID"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

func (Answer) TableName() string {
	return "quiz_answers"
}

// IsSubmitted reports whether the attempt has reached its terminal state.
func (a *QuizAttempt) IsSubmitted() bool {
	return a.SubmittedAt != nil || a.Status == AttemptSubmitted
}

// IsExpired reports whether the attempt's deadline has passed. Untimed
// attempts never expire.
func (a *QuizAttempt) IsExpired(now time.Time) bool {
	return a.Deadline != nil && now.After(*a.Deadline)
}

// Shuffle decodes the stored shuffle data. Returns nil for attempts created
// without one (untimed/no-shuffle configurations keep authoring order).
func (a *QuizAttempt) Shuffle() (*ShuffleData, error) {
	if len(a.ShuffleData) == 0 {
		return nil, nil
	}
	var sd ShuffleData
	if err := json.Unmarshal(a.ShuffleData, &sd); err != nil {
		return nil, fmt.Errorf("failed to decode shuffle data: %w", err)
	}
	return &sd, nil
}

// SetShuffle serializes and stores the shuffle data on the attempt.
func (a *QuizAttempt) SetShuffle(sd *ShuffleData) error {
	if sd == nil {
		a.ShuffleData = nil
		return nil
	}
	data, err := json.Marshal(sd)
	if err != nil {
		return fmt.Errorf("failed to encode shuffle data: %w", err)
	}
	a.ShuffleData = data
	return nil
}
