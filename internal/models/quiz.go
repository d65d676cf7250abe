package models

import (
	"time"

	"gorm.io/gorm"
)

// Quiz is the authored definition: questions, options and the taking rules.
// TotalTime is in minutes, zero means untimed. MaxAttempts nil means
// unlimited retakes.
type Quiz struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Title       string  `json:"title" gorm:"not null;size:255"`
	Description *string `json:"description" gorm:"type:text"`
	TotalTime   int     `json:"total_time" gorm:"not null;default:0"`
	MaxAttempts *int    `json:"max_attempts"`
	IsActive    bool    `json:"is_active" gorm:"default:true;index"`
	CreatedBy   string  `json:"created_by" gorm:"not null;size:255;index"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:QuizID"`

	// Computed, not persisted.
	QuestionCount int `json:"question_count,omitempty" gorm:"-"`
	AttemptsMade  int `json:"attempts_made,omitempty" gorm:"-"`
}

// Question always has exactly one correct option; Order is the authoring
// position, display order comes from the attempt's shuffle data.
type Question struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	QuizID uint   `json:"quiz_id" gorm:"not null;index"`
	Text   string `json:"text" gorm:"not null;type:text"`
	Marks  int    `json:"marks" gorm:"not null;default:1"`
	Order  int    `json:"order" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Options []Option `json:"options,omitempty" gorm:"foreignKey:QuestionID"`
}

type Option struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Text       string `json:"text" gorm:"not null;type:text"`
	IsCorrect  bool   `json:"is_correct" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

func (Question) TableName() string {
	return "questions"
}

func (Option) TableName() string {
	return "options"
}

// CorrectOptionID returns the id of the question's correct option, zero when
// the question has none (malformed authoring data).
func (q *Question) CorrectOptionID() uint {
	for i := range q.Options {
		if q.Options[i].IsCorrect {
			return q.Options[i].ID
		}
	}
	return 0
}
