package services

import (
	"context"
	"io"
	"time"

	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
)

// ===== REQUEST DTOS =====

type CreateQuizRequest struct {
	Title       string                  `json:"title" validate:"required,min=3,max=255"`
	Description *string                 `json:"description" validate:"omitempty,max=2000"`
	TotalTime   int                     `json:"total_time" validate:"min=0"`
	MaxAttempts *int                    `json:"max_attempts" validate:"omitempty,min=1"`
	IsActive    bool                    `json:"is_active"`
	Questions   []CreateQuestionRequest `json:"questions" validate:"required,min=1,dive"`
}

type CreateQuestionRequest struct {
	Text    string                `json:"text" validate:"required,min=1,max=2000"`
	Marks   int                   `json:"marks" validate:"required,min=1"`
	Options []CreateOptionRequest `json:"options" validate:"required,min=2,dive"`
}

type CreateOptionRequest struct {
	Text      string `json:"text" validate:"required,min=1,max=1000"`
	IsCorrect bool   `json:"is_correct"`
}

type UpdateQuizRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=3,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	TotalTime   *int    `json:"total_time" validate:"omitempty,min=0"`
	MaxAttempts *int    `json:"max_attempts" validate:"omitempty,min=1"`
}

type SaveAnswerRequest struct {
	QuestionID       uint  `json:"question_id" validate:"required"`
	SelectedOptionID *uint `json:"selected_option_id"`
}

type SubmitAttemptRequest struct {
	Answers []SubmittedAnswerInput `json:"answers" validate:"required,dive"`
}

type SubmittedAnswerInput struct {
	QuestionID       uint  `json:"question_id" validate:"required"`
	SelectedOptionID *uint `json:"selected_option_id"`
}

type ListQuizzesRequest struct {
	IsActive  *bool   `json:"is_active"`
	Search    *string `json:"search"`
	Limit     int     `json:"limit" validate:"min=0,max=100"`
	Offset    int     `json:"offset" validate:"min=0"`
	SortBy    string  `json:"sort_by" validate:"sortable"`
	SortOrder string  `json:"sort_order" validate:"omitempty,oneof=asc desc"`
}

// ===== RESPONSE DTOS =====

// AttemptResponse is the taking view of an attempt: the quiz inside carries
// no correctness data and is ordered by the attempt's stored shuffle.
type AttemptResponse struct {
	ID            uint                `json:"id"`
	QuizID        uint                `json:"quiz_id"`
	AttemptNumber int                 `json:"attempt_number"`
	Status        string              `json:"status"`
	StartedAt     time.Time           `json:"started_at"`
	Deadline      *time.Time          `json:"deadline,omitempty"`
	SubmittedAt   *time.Time          `json:"submitted_at,omitempty"`
	TimeRemaining *int                `json:"time_remaining,omitempty"` // seconds
	Quiz          *models.StudentQuiz `json:"quiz"`
	Answers       []AnswerState       `json:"answers,omitempty"`
}

// AnswerState is a saved selection echoed back on resume.
type AnswerState struct {
	QuestionID       uint  `json:"question_id"`
	SelectedOptionID *uint `json:"selected_option_id,omitempty"`
}

// ResultResponse is the graded outcome including per-question review.
type ResultResponse struct {
	AttemptID    uint             `json:"attempt_id"`
	QuizID       uint             `json:"quiz_id"`
	QuizTitle    string           `json:"quiz_title"`
	Score        int              `json:"score"`
	MaxScore     int              `json:"max_score"`
	Percentage   float64          `json:"percentage"`
	SubmittedAt  time.Time        `json:"submitted_at"`
	TimeSpent    int              `json:"time_spent"` // seconds
	EndReason    string           `json:"end_reason"`
	QuizActive   bool             `json:"quiz_active"`
	MaxAttempts  *int             `json:"max_attempts,omitempty"`
	AttemptsMade int              `json:"attempts_made"`
	CanRetake    bool             `json:"can_retake"`
	Review       []QuestionResult `json:"review"`
}

// QuestionResult shows one question's outcome, correct answer included.
type QuestionResult struct {
	QuestionID       uint   `json:"question_id"`
	Text             string `json:"text"`
	Marks            int    `json:"marks"`
	CorrectOptionID  uint   `json:"correct_option_id"`
	SelectedOptionID *uint  `json:"selected_option_id,omitempty"`
	IsCorrect        bool   `json:"is_correct"`
	Earned           int    `json:"earned"`
}

// QuizResponse is the authoring view, correct answers included.
type QuizResponse struct {
	Quiz          *models.Quiz `json:"quiz"`
	QuestionCount int          `json:"question_count"`
	MaxScore      int          `json:"max_score"`
}

type QuizListResponse struct {
	Quizzes []*models.QuizSummary `json:"quizzes"`
	Total   int64                 `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// EligibilityResponse answers "can this user take this quiz right now".
type EligibilityResponse struct {
	CanTake        bool   `json:"can_take"`
	Reason         string `json:"reason,omitempty"`
	AttemptsMade   int    `json:"attempts_made"`
	MaxAttempts    *int   `json:"max_attempts,omitempty"`
	HasOpenAttempt bool   `json:"has_open_attempt"`
}

type AttemptHistoryResponse struct {
	Attempts []*models.AttemptSummary `json:"attempts"`
	Total    int64                    `json:"total"`
}

// StudentStatsResponse aggregates a user's results.
type StudentStatsResponse struct {
	TotalAttempts    int     `json:"total_attempts"`
	CompletedQuizzes int     `json:"completed_quizzes"`
	AverageScore     float64 `json:"average_score"` // percentage
	BestScore        float64 `json:"best_score"`    // percentage
	TotalTimeSpent   int     `json:"total_time_spent"`
}

type ImportQuizResponse struct {
	Quiz          *models.Quiz `json:"quiz"`
	QuestionCount int          `json:"question_count"`
	Warnings      []string     `json:"warnings,omitempty"`
}

// ===== SERVICE INTERFACES =====

// AttemptService owns the taking lifecycle of a quiz attempt.
type AttemptService interface {
	// GetOrCreate returns the user's open attempt for the quiz, creating
	// one when the user has none. A latest attempt that is already
	// submitted is returned as-is so the caller can redirect to results;
	// forceNew starts a fresh attempt instead when eligibility allows.
	// Concurrent calls for the same user and quiz resolve to the same
	// attempt.
	GetOrCreate(ctx context.Context, quizID uint, userID string, forceNew bool) (*AttemptResponse, error)

	// GetByID returns the taking view of an attempt.
	GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error)

	// SaveAnswer upserts one selection on an open attempt.
	SaveAnswer(ctx context.Context, attemptID uint, userID string, req *SaveAnswerRequest) error

	// Submit grades and closes the attempt. An already submitted attempt
	// is a conflict.
	Submit(ctx context.Context, attemptID uint, userID string, req *SubmitAttemptRequest) (*ResultResponse, error)

	// StopTimers cancels all armed deadline timers, for shutdown.
	StopTimers()

	// GetResult returns the graded result of a submitted attempt.
	GetResult(ctx context.Context, attemptID uint, userID string) (*ResultResponse, error)

	// HandleTimeout force-submits an expired attempt with its saved
	// answers. Invoked by the deadline scheduler, not by users.
	HandleTimeout(ctx context.Context, attemptID uint) error

	// RearmDeadlines closes already expired attempts and re-arms timers
	// for open timed ones. Called on service start.
	RearmDeadlines(ctx context.Context) error
}

// QuizService owns quiz authoring and eligibility.
type QuizService interface {
	Create(ctx context.Context, req *CreateQuizRequest, creatorID string) (*QuizResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*QuizResponse, error)

	// GetSummary returns the student detail view. It carries quiz metadata
	// and the user's attempt counts but no questions or answer data.
	GetSummary(ctx context.Context, id uint, userID string) (*models.QuizSummary, error)
	Update(ctx context.Context, id uint, req *UpdateQuizRequest, userID string) (*QuizResponse, error)
	Delete(ctx context.Context, id uint, userID string) error
	List(ctx context.Context, req *ListQuizzesRequest, userID string) (*QuizListResponse, error)
	SetActive(ctx context.Context, id uint, active bool, userID string) error

	// CanTake checks retake eligibility for a student.
	CanTake(ctx context.Context, quizID uint, userID string) (*EligibilityResponse, error)
}

// StudentService surfaces a student's own data.
type StudentService interface {
	GetAvailableQuizzes(ctx context.Context, userID string, limit, offset int) (*QuizListResponse, error)
	GetAttemptHistory(ctx context.Context, userID string, filters repositories.AttemptFilters) (*AttemptHistoryResponse, error)
	GetStats(ctx context.Context, userID string) (*StudentStatsResponse, error)
}

// ImportService loads quizzes from spreadsheet files.
type ImportService interface {
	ImportQuizFromExcel(ctx context.Context, r io.Reader, creatorID string) (*ImportQuizResponse, error)
}

// ServiceManager wires up and hands out service instances.
type ServiceManager interface {
	Attempt() AttemptService
	Quiz() QuizService
	Student() StudentService
	Import() ImportService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
