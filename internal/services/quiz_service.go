package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/events"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/validator"
)

type quizService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.Publisher
}

func NewQuizService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.Publisher) QuizService {
	return &quizService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
	}
}

// ===== AUTHORING OPERATIONS =====

func (s *quizService) Create(ctx context.Context, req *CreateQuizRequest, creatorID string) (*QuizResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if errs := validateQuizStructure(req); len(errs) > 0 {
		return nil, errs
	}

	s.logger.Info("Creating quiz", "title", req.Title, "creator_id", creatorID)

	quiz := &models.Quiz{
		Title:       req.Title,
		Description: req.Description,
		TotalTime:   req.TotalTime,
		MaxAttempts: req.MaxAttempts,
		IsActive:    req.IsActive,
		CreatedBy:   creatorID,
	}
	for i, q := range req.Questions {
		question := models.Question{
			Text:  q.Text,
			Marks: q.Marks,
			Order: i,
		}
		for _, o := range q.Options {
			question.Options = append(question.Options, models.Option{
				Text:      o.Text,
				IsCorrect: o.IsCorrect,
			})
		}
		quiz.Questions = append(quiz.Questions, question)
	}

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		return txRepo.Quiz().Create(ctx, nil, quiz)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create quiz: %w", err)
	}

	s.logger.Info("Quiz created", "quiz_id", quiz.ID, "questions", len(quiz.Questions))
	return s.buildQuizResponse(quiz), nil
}

func (s *quizService) GetByID(ctx context.Context, id uint, userID string) (*QuizResponse, error) {
	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return s.buildQuizResponse(quiz), nil
}

// GetSummary loads the student-facing quiz detail. Questions and options
// stay server-side; students receive them only through an open attempt.
func (s *quizService) GetSummary(ctx context.Context, id uint, userID string) (*models.QuizSummary, error) {
	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	summary := quizSummary(quiz)
	summary.QuestionCount = len(quiz.Questions)
	count, err := s.repo.Attempt().CountByUser(ctx, nil, quiz.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	summary.AttemptsMade = int(count)

	if latest, err := s.repo.Attempt().GetLatest(ctx, nil, quiz.ID, userID); err == nil && latest != nil {
		summary.LastAttempted = latest.SubmittedAt
	}
	return summary, nil
}

func (s *quizService) Update(ctx context.Context, id uint, req *UpdateQuizRequest, userID string) (*QuizResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var quiz *models.Quiz
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		var err error
		quiz, err = txRepo.Quiz().GetByIDWithQuestions(ctx, nil, id)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrQuizNotFound
			}
			return err
		}
		if quiz.CreatedBy != userID {
			return NewPermissionError(userID, id, "quiz", "update", "not the quiz owner")
		}

		if req.Title != nil {
			quiz.Title = *req.Title
		}
		if req.Description != nil {
			quiz.Description = req.Description
		}
		if req.TotalTime != nil {
			quiz.TotalTime = *req.TotalTime
		}
		if req.MaxAttempts != nil {
			quiz.MaxAttempts = req.MaxAttempts
		}
		return txRepo.Quiz().Update(ctx, nil, quiz)
	})
	if err != nil {
		return nil, err
	}

	s.publishQuizUpdated(ctx, quiz)
	return s.buildQuizResponse(quiz), nil
}

func (s *quizService) Delete(ctx context.Context, id uint, userID string) error {
	return s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		quiz, err := txRepo.Quiz().GetByID(ctx, nil, id)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrQuizNotFound
			}
			return err
		}
		if quiz.CreatedBy != userID {
			return NewPermissionError(userID, id, "quiz", "delete", "not the quiz owner")
		}
		return txRepo.Quiz().Delete(ctx, nil, id)
	})
}

func (s *quizService) List(ctx context.Context, req *ListQuizzesRequest, userID string) (*QuizListResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	filters := repositories.QuizFilters{
		IsActive:  req.IsActive,
		Search:    req.Search,
		Limit:     req.Limit,
		Offset:    req.Offset,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}
	quizzes, total, err := s.repo.Quiz().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}

	summaries := make([]*models.QuizSummary, 0, len(quizzes))
	for _, quiz := range quizzes {
		summaries = append(summaries, quizSummary(quiz))
	}
	return &QuizListResponse{
		Quizzes: summaries,
		Total:   total,
		Limit:   req.Limit,
		Offset:  req.Offset,
	}, nil
}

func (s *quizService) SetActive(ctx context.Context, id uint, active bool, userID string) error {
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		quiz, err := txRepo.Quiz().GetByID(ctx, nil, id)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrQuizNotFound
			}
			return err
		}
		if quiz.CreatedBy != userID {
			return NewPermissionError(userID, id, "quiz", "set_active", "not the quiz owner")
		}
		return txRepo.Quiz().SetActive(ctx, nil, id, active)
	})
	if err != nil {
		return err
	}

	s.publishQuizUpdated(ctx, &models.Quiz{ID: id, IsActive: active})
	s.logger.Info("Quiz active state changed", "quiz_id", id, "is_active", active)
	return nil
}

// ===== ELIGIBILITY =====

func (s *quizService) CanTake(ctx context.Context, quizID uint, userID string) (*EligibilityResponse, error) {
	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	count, err := s.repo.Attempt().CountByUser(ctx, nil, quizID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	open, err := s.repo.Attempt().GetInProgress(ctx, nil, quizID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up open attempt: %w", err)
	}

	resp := &EligibilityResponse{
		AttemptsMade:   int(count),
		MaxAttempts:    quiz.MaxAttempts,
		HasOpenAttempt: open != nil,
	}

	switch {
	case open != nil:
		// Resuming is always allowed while the attempt is open.
		resp.CanTake = true
	case !quiz.IsActive:
		resp.Reason = "quiz is not active"
	case quiz.MaxAttempts != nil && count >= int64(*quiz.MaxAttempts):
		resp.Reason = "maximum attempts reached"
	default:
		resp.CanTake = true
	}
	return resp, nil
}

// ===== HELPERS =====

func (s *quizService) buildQuizResponse(quiz *models.Quiz) *QuizResponse {
	return &QuizResponse{
		Quiz:          quiz,
		QuestionCount: len(quiz.Questions),
		MaxScore:      quizMaxScore(quiz),
	}
}

func (s *quizService) publishQuizUpdated(ctx context.Context, quiz *models.Quiz) {
	err := s.publisher.Publish(ctx, events.TopicQuizUpdated, events.QuizUpdated{
		QuizID:    quiz.ID,
		IsActive:  quiz.IsActive,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		s.logger.Error("Failed to publish quiz updated event", "quiz_id", quiz.ID, "error", err)
	}
}

func quizSummary(quiz *models.Quiz) *models.QuizSummary {
	return &models.QuizSummary{
		ID:            quiz.ID,
		Title:         quiz.Title,
		Description:   quiz.Description,
		TotalTime:     quiz.TotalTime,
		MaxAttempts:   quiz.MaxAttempts,
		IsActive:      quiz.IsActive,
		QuestionCount: quiz.QuestionCount,
		CreatedAt:     quiz.CreatedAt,
	}
}

// validateQuizStructure enforces the rules struct tags cannot express:
// every question needs exactly one correct option.
func validateQuizStructure(req *CreateQuizRequest) ValidationErrors {
	var errs ValidationErrors
	for i, q := range req.Questions {
		correct := 0
		for _, o := range q.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			errs = append(errs, *NewValidationError(
				fmt.Sprintf("questions[%d].options", i),
				"exactly one option must be marked correct",
				correct))
		}
	}
	return errs
}
