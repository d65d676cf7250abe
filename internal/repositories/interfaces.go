package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type QuizFilters struct {
	IsActive  *bool   `json:"is_active"`
	CreatedBy *string `json:"created_by"`
	Search    *string `json:"search"`
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
	SortBy    string  `json:"sort_by"`    // "created_at", "title"
	SortOrder string  `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	Status    *models.AttemptStatus `json:"status"`
	UserID    *string               `json:"user_id"`
	QuizID    *uint                 `json:"quiz_id"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

// ===== REPOSITORY INTERFACES =====

type QuizRepository interface {
	Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	List(ctx context.Context, tx *gorm.DB, filters QuizFilters) ([]*models.Quiz, int64, error)
	SetActive(ctx context.Context, tx *gorm.DB, id uint, active bool) error
}

type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)
	GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)

	// GetLatest returns the user's most recent attempt for the quiz
	// regardless of status, nil when the user never attempted it.
	GetLatest(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (*models.QuizAttempt, error)

	// GetInProgress returns the user's open attempt for the quiz, nil when
	// none is open.
	GetInProgress(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (*models.QuizAttempt, error)

	// CountByUser counts the user's attempts for the quiz.
	CountByUser(ctx context.Context, tx *gorm.DB, quizID uint, userID string) (int64, error)

	// ListExpiredInProgress returns open attempts whose deadline has passed.
	ListExpiredInProgress(ctx context.Context, tx *gorm.DB, now time.Time) ([]*models.QuizAttempt, error)

	// ListOpenTimed returns open attempts with a deadline, used to re-arm
	// server timers after a restart.
	ListOpenTimed(ctx context.Context, tx *gorm.DB) ([]*models.QuizAttempt, error)
}

type AnswerRepository interface {
	Upsert(ctx context.Context, tx *gorm.DB, answer *models.Answer) error
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.Answer, error)
	GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.Answer, error)
	BulkUpsert(ctx context.Context, tx *gorm.DB, answers []*models.Answer) error
}

// UserRepository is read-only: user identity lives in Casdoor.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	ExistsUser(ctx context.Context, id string) (bool, error)
}
