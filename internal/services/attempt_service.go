package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/clock"
	"github.com/quizdeck/quiz-service/internal/events"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/shuffle"
	"github.com/quizdeck/quiz-service/internal/utils"
	"github.com/quizdeck/quiz-service/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.Publisher
	scheduler *clock.Scheduler
	flight    singleflight.Group
	now       func() time.Time
	seed      func() int64
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.Publisher) AttemptService {
	s := &attemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		now:       time.Now,
		seed:      func() int64 { return time.Now().UnixNano() },
	}
	s.scheduler = clock.NewScheduler(func(ctx context.Context, attemptID uint) {
		if err := s.HandleTimeout(ctx, attemptID); err != nil {
			logger.Error("Failed to handle attempt timeout", "attempt_id", attemptID, "error", err)
		}
	}, utils.NewSlogLogger(logger))
	return s
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) GetOrCreate(ctx context.Context, quizID uint, userID string, forceNew bool) (*AttemptResponse, error) {
	// Coalesce concurrent resolves from the same user (double-clicks,
	// parallel tabs) into one database round trip.
	key := fmt.Sprintf("%d:%s:%t", quizID, userID, forceNew)
	v, err, _ := s.flight.Do(key, func() (any, error) {
		return s.getOrCreate(ctx, quizID, userID, forceNew)
	})
	if err != nil {
		return nil, err
	}
	return v.(*AttemptResponse), nil
}

func (s *attemptService) getOrCreate(ctx context.Context, quizID uint, userID string, forceNew bool) (*AttemptResponse, error) {
	s.logger.Info("Resolving quiz attempt",
		"quiz_id", quizID,
		"user_id", userID,
		"force_new", forceNew)

	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	open, err := s.repo.Attempt().GetInProgress(ctx, nil, quizID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up open attempt: %w", err)
	}
	if open != nil {
		if open.IsExpired(s.now()) {
			// The deadline passed while nobody was looking, close it
			// now and hand back the submitted attempt.
			if err := s.HandleTimeout(ctx, open.ID); err != nil {
				return nil, err
			}
			closed, err := s.repo.Attempt().GetByIDWithAnswers(ctx, nil, open.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to reload timed-out attempt: %w", err)
			}
			return s.buildAttemptResponse(quiz, closed)
		}

		s.logger.Info("Resuming open attempt", "attempt_id", open.ID)
		s.scheduler.Arm(open.ID, open.Deadline)
		withAnswers, err := s.repo.Attempt().GetByIDWithAnswers(ctx, nil, open.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load attempt answers: %w", err)
		}
		return s.buildAttemptResponse(quiz, withAnswers)
	}

	latest, err := s.repo.Attempt().GetLatest(ctx, nil, quizID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up latest attempt: %w", err)
	}
	if latest != nil && !forceNew {
		// Already submitted and no retake requested, the caller
		// redirects to results.
		return s.buildAttemptResponse(quiz, latest)
	}

	return s.createAttempt(ctx, quiz, userID)
}

func (s *attemptService) createAttempt(ctx context.Context, quiz *models.Quiz, userID string) (*AttemptResponse, error) {
	if !quiz.IsActive {
		return nil, ErrQuizNotActive
	}
	if len(quiz.Questions) == 0 {
		return nil, ErrQuizHasNoQuestions
	}

	var attempt *models.QuizAttempt
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		// Re-check inside the transaction: another instance may have
		// created an attempt between the lookup and here.
		if open, err := txRepo.Attempt().GetInProgress(ctx, nil, quiz.ID, userID); err != nil {
			return err
		} else if open != nil {
			attempt = open
			return nil
		}

		count, err := txRepo.Attempt().CountByUser(ctx, nil, quiz.ID, userID)
		if err != nil {
			return fmt.Errorf("failed to count attempts: %w", err)
		}
		if quiz.MaxAttempts != nil && count >= int64(*quiz.MaxAttempts) {
			return ErrAttemptLimitReached
		}

		startedAt := s.now()
		attempt = &models.QuizAttempt{
			QuizID:        quiz.ID,
			UserID:        userID,
			AttemptNumber: int(count) + 1,
			Status:        models.AttemptInProgress,
			StartedAt:     startedAt,
			MaxScore:      quizMaxScore(quiz),
		}
		if quiz.TotalTime > 0 {
			deadline := startedAt.Add(time.Duration(quiz.TotalTime) * time.Minute)
			attempt.Deadline = &deadline
		}
		if err := attempt.SetShuffle(shuffle.Generate(quiz, s.seed())); err != nil {
			return fmt.Errorf("failed to store shuffle data: %w", err)
		}

		return txRepo.Attempt().Create(ctx, nil, attempt)
	})
	if err != nil {
		return nil, err
	}

	s.scheduler.Arm(attempt.ID, attempt.Deadline)

	if publishErr := s.publisher.Publish(ctx, events.TopicAttemptStarted, events.AttemptStarted{
		AttemptID:     attempt.ID,
		QuizID:        quiz.ID,
		UserID:        userID,
		AttemptNumber: attempt.AttemptNumber,
		StartedAt:     attempt.StartedAt,
		Deadline:      attempt.Deadline,
	}); publishErr != nil {
		s.logger.Error("Failed to publish attempt started event",
			"attempt_id", attempt.ID, "error", publishErr)
	}

	s.logger.Info("Quiz attempt created",
		"attempt_id", attempt.ID,
		"quiz_id", quiz.ID,
		"user_id", userID,
		"attempt_number", attempt.AttemptNumber,
		"deadline", attempt.Deadline)

	return s.buildAttemptResponse(quiz, attempt)
}

func (s *attemptService) GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetByIDWithAnswers(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, NewPermissionError(userID, attemptID, "attempt", "read", "not owned by user")
	}

	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, nil, attempt.QuizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return s.buildAttemptResponse(quiz, attempt)
}

func (s *attemptService) SaveAnswer(ctx context.Context, attemptID uint, userID string, req *SaveAnswerRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}

	s.logger.Info("Saving answer",
		"attempt_id", attemptID,
		"question_id", req.QuestionID,
		"user_id", userID)

	return s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		attempt, err := txRepo.Attempt().GetByID(ctx, nil, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return err
		}
		if attempt.UserID != userID {
			return NewPermissionError(userID, attemptID, "attempt", "save_answer", "not owned by user")
		}
		if attempt.IsSubmitted() {
			return ErrAttemptAlreadySubmitted
		}
		if attempt.IsExpired(s.now()) {
			return ErrAttemptTimeExpired
		}

		quiz, err := txRepo.Quiz().GetByIDWithQuestions(ctx, nil, attempt.QuizID)
		if err != nil {
			return fmt.Errorf("failed to get quiz: %w", err)
		}
		question := findQuestion(quiz, req.QuestionID)
		if question == nil {
			return ErrQuestionNotInQuiz
		}
		if req.SelectedOptionID != nil && findOption(question, *req.SelectedOptionID) == nil {
			return ErrOptionNotInQuestion
		}

		return txRepo.Answer().Upsert(ctx, nil, &models.Answer{
			AttemptID:        attemptID,
			QuestionID:       req.QuestionID,
			SelectedOptionID: req.SelectedOptionID,
		})
	})
}

func (s *attemptService) Submit(ctx context.Context, attemptID uint, userID string, req *SubmitAttemptRequest) (*ResultResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	s.logger.Info("Submitting attempt", "attempt_id", attemptID, "user_id", userID)

	var submitted *models.QuizAttempt
	var quiz *models.Quiz
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		attempt, err := txRepo.Attempt().GetByID(ctx, nil, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return err
		}
		if attempt.UserID != userID {
			return NewPermissionError(userID, attemptID, "attempt", "submit", "not owned by user")
		}
		if attempt.IsSubmitted() {
			return ErrAttemptAlreadySubmitted
		}

		quiz, err = txRepo.Quiz().GetByIDWithQuestions(ctx, nil, attempt.QuizID)
		if err != nil {
			return fmt.Errorf("failed to get quiz: %w", err)
		}

		answers := make([]*models.Answer, 0, len(req.Answers))
		for _, input := range req.Answers {
			question := findQuestion(quiz, input.QuestionID)
			if question == nil {
				return ErrQuestionNotInQuiz
			}
			if input.SelectedOptionID != nil && findOption(question, *input.SelectedOptionID) == nil {
				return ErrOptionNotInQuestion
			}
			answers = append(answers, &models.Answer{
				AttemptID:        attemptID,
				QuestionID:       input.QuestionID,
				SelectedOptionID: input.SelectedOptionID,
			})
		}
		if err := txRepo.Answer().BulkUpsert(ctx, nil, answers); err != nil {
			return err
		}

		submitted, err = s.closeAttempt(ctx, txRepo, attempt, quiz, models.AttemptEndReasonSubmitted)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.scheduler.Disarm(attemptID)
	s.publishSubmitted(ctx, submitted)

	s.logger.Info("Attempt submitted",
		"attempt_id", attemptID,
		"score", submitted.Score,
		"max_score", submitted.MaxScore)

	return s.buildResultResponse(ctx, quiz, submitted)
}

func (s *attemptService) GetResult(ctx context.Context, attemptID uint, userID string) (*ResultResponse, error) {
	attempt, err := s.repo.Attempt().GetByIDWithAnswers(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, NewPermissionError(userID, attemptID, "attempt", "read_result", "not owned by user")
	}
	if !attempt.IsSubmitted() {
		return nil, ErrAttemptNotSubmitted
	}

	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, nil, attempt.QuizID)
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return s.buildResultResponse(ctx, quiz, attempt)
}

// ===== TIMEOUT HANDLING =====

// HandleTimeout closes an expired attempt with whatever answers were saved.
// Racing with a manual submit is safe: whoever marks the attempt submitted
// first wins and the loser becomes a no-op.
func (s *attemptService) HandleTimeout(ctx context.Context, attemptID uint) error {
	s.logger.Info("Handling attempt timeout", "attempt_id", attemptID)

	var closed *models.QuizAttempt
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		attempt, err := txRepo.Attempt().GetByID(ctx, nil, attemptID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAttemptNotFound
			}
			return err
		}
		if attempt.IsSubmitted() {
			return nil
		}

		quiz, err := txRepo.Quiz().GetByIDWithQuestions(ctx, nil, attempt.QuizID)
		if err != nil {
			return fmt.Errorf("failed to get quiz: %w", err)
		}

		closed, err = s.closeAttempt(ctx, txRepo, attempt, quiz, models.AttemptEndReasonTimeout)
		return err
	})
	if err != nil {
		return err
	}
	if closed == nil {
		return nil
	}

	s.publishSubmitted(ctx, closed)
	return nil
}

func (s *attemptService) RearmDeadlines(ctx context.Context) error {
	expired, err := s.repo.Attempt().ListExpiredInProgress(ctx, nil, s.now())
	if err != nil {
		return err
	}
	for _, attempt := range expired {
		if err := s.HandleTimeout(ctx, attempt.ID); err != nil {
			s.logger.Error("Failed to close expired attempt on startup",
				"attempt_id", attempt.ID, "error", err)
		}
	}

	open, err := s.repo.Attempt().ListOpenTimed(ctx, nil)
	if err != nil {
		return err
	}
	for _, attempt := range open {
		s.scheduler.Arm(attempt.ID, attempt.Deadline)
	}

	s.logger.Info("Deadline timers re-armed",
		"closed_expired", len(expired),
		"armed", len(open))
	return nil
}

func (s *attemptService) StopTimers() {
	s.scheduler.Shutdown()
}
