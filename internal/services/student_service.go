package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
)

type studentService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewStudentService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) StudentService {
	return &studentService{repo: repo, db: db, logger: logger}
}

// GetAvailableQuizzes lists active quizzes with the user's attempt counts
// folded in, so the caller can render retake availability directly.
func (s *studentService) GetAvailableQuizzes(ctx context.Context, userID string, limit, offset int) (*QuizListResponse, error) {
	active := true
	quizzes, total, err := s.repo.Quiz().List(ctx, nil, repositories.QuizFilters{
		IsActive: &active,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}

	summaries := make([]*models.QuizSummary, 0, len(quizzes))
	for _, quiz := range quizzes {
		summary := quizSummary(quiz)
		count, err := s.repo.Attempt().CountByUser(ctx, nil, quiz.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to count attempts: %w", err)
		}
		summary.AttemptsMade = int(count)

		if latest, err := s.repo.Attempt().GetLatest(ctx, nil, quiz.ID, userID); err == nil && latest != nil {
			summary.LastAttempted = latest.SubmittedAt
		}
		summaries = append(summaries, summary)
	}

	return &QuizListResponse{
		Quizzes: summaries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

func (s *studentService) GetAttemptHistory(ctx context.Context, userID string, filters repositories.AttemptFilters) (*AttemptHistoryResponse, error) {
	filters.UserID = &userID
	submitted := models.AttemptSubmitted
	filters.Status = &submitted

	attempts, total, err := s.repo.Attempt().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	summaries := make([]*models.AttemptSummary, 0, len(attempts))
	for _, attempt := range attempts {
		summaries = append(summaries, &models.AttemptSummary{
			ID:            attempt.ID,
			QuizID:        attempt.QuizID,
			AttemptNumber: attempt.AttemptNumber,
			Score:         attempt.Score,
			MaxScore:      attempt.MaxScore,
			TimeSpent:     attempt.TimeSpent,
			StartedAt:     attempt.StartedAt,
			SubmittedAt:   attempt.SubmittedAt,
		})
	}
	return &AttemptHistoryResponse{Attempts: summaries, Total: total}, nil
}

func (s *studentService) GetStats(ctx context.Context, userID string) (*StudentStatsResponse, error) {
	submitted := models.AttemptSubmitted
	attempts, _, err := s.repo.Attempt().List(ctx, nil, repositories.AttemptFilters{
		UserID: &userID,
		Status: &submitted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	stats := &StudentStatsResponse{TotalAttempts: len(attempts)}
	if len(attempts) == 0 {
		return stats, nil
	}

	quizzes := make(map[uint]bool)
	var percentSum float64
	for _, attempt := range attempts {
		quizzes[attempt.QuizID] = true
		stats.TotalTimeSpent += attempt.TimeSpent

		var percent float64
		if attempt.MaxScore > 0 {
			percent = float64(attempt.Score) / float64(attempt.MaxScore) * 100
		}
		percentSum += percent
		if percent > stats.BestScore {
			stats.BestScore = percent
		}
	}
	stats.CompletedQuizzes = len(quizzes)
	stats.AverageScore = percentSum / float64(len(attempts))
	return stats, nil
}
