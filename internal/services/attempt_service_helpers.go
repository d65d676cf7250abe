package services

import (
	"context"
	"fmt"

	"github.com/quizdeck/quiz-service/internal/events"
	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
	"github.com/quizdeck/quiz-service/internal/shuffle"
)

// ===== GRADING =====

// closeAttempt grades the attempt's saved answers and marks it submitted.
// Runs inside the caller's transaction.
func (s *attemptService) closeAttempt(ctx context.Context, txRepo repositories.Repository, attempt *models.QuizAttempt, quiz *models.Quiz, endReason string) (*models.QuizAttempt, error) {
	saved, err := txRepo.Answer().GetByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		return nil, err
	}
	byQuestion := make(map[uint]*models.Answer, len(saved))
	for _, answer := range saved {
		byQuestion[answer.QuestionID] = answer
	}

	score := 0
	graded := make([]*models.Answer, 0, len(quiz.Questions))
	for i := range quiz.Questions {
		question := &quiz.Questions[i]
		answer := byQuestion[question.ID]
		if answer == nil {
			answer = &models.Answer{
				AttemptID:  attempt.ID,
				QuestionID: question.ID,
			}
		}

		correct := answer.SelectedOptionID != nil && *answer.SelectedOptionID == question.CorrectOptionID()
		answer.IsCorrect = &correct
		if correct {
			score += question.Marks
		}
		graded = append(graded, answer)
	}
	if err := txRepo.Answer().BulkUpsert(ctx, nil, graded); err != nil {
		return nil, err
	}

	submittedAt := s.now()
	timeSpent := int(submittedAt.Sub(attempt.StartedAt).Seconds())
	if attempt.Deadline != nil && submittedAt.After(*attempt.Deadline) {
		// Timed out while unattended, clamp to the allotted time.
		timeSpent = int(attempt.Deadline.Sub(attempt.StartedAt).Seconds())
	}

	attempt.Status = models.AttemptSubmitted
	attempt.SubmittedAt = &submittedAt
	attempt.TimeSpent = timeSpent
	attempt.EndReason = &endReason
	attempt.Score = score
	attempt.MaxScore = quizMaxScore(quiz)
	if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
		return nil, err
	}

	attempt.Answers = make([]models.Answer, 0, len(graded))
	for _, answer := range graded {
		attempt.Answers = append(attempt.Answers, *answer)
	}
	return attempt, nil
}

// ===== RESPONSE BUILDING =====

// buildAttemptResponse builds the taking view: quiz questions projected
// through the attempt's stored shuffle with all correctness data stripped.
func (s *attemptService) buildAttemptResponse(quiz *models.Quiz, attempt *models.QuizAttempt) (*AttemptResponse, error) {
	sd, err := attempt.Shuffle()
	if err != nil {
		return nil, fmt.Errorf("failed to decode shuffle data: %w", err)
	}
	studentQuiz, err := shuffle.Project(quiz, sd)
	if err != nil {
		return nil, err
	}

	resp := &AttemptResponse{
		ID:            attempt.ID,
		QuizID:        attempt.QuizID,
		AttemptNumber: attempt.AttemptNumber,
		Status:        string(attempt.Status),
		StartedAt:     attempt.StartedAt,
		Deadline:      attempt.Deadline,
		SubmittedAt:   attempt.SubmittedAt,
		Quiz:          studentQuiz,
	}

	if attempt.Deadline != nil && !attempt.IsSubmitted() {
		remaining := int(attempt.Deadline.Sub(s.now()).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		resp.TimeRemaining = &remaining
	}

	for _, answer := range attempt.Answers {
		resp.Answers = append(resp.Answers, AnswerState{
			QuestionID:       answer.QuestionID,
			SelectedOptionID: answer.SelectedOptionID,
		})
	}
	return resp, nil
}

// buildResultResponse builds the graded view with per-question review in
// the order the student saw the questions.
func (s *attemptService) buildResultResponse(ctx context.Context, quiz *models.Quiz, attempt *models.QuizAttempt) (*ResultResponse, error) {
	sd, err := attempt.Shuffle()
	if err != nil {
		return nil, fmt.Errorf("failed to decode shuffle data: %w", err)
	}

	byQuestion := make(map[uint]*models.Answer, len(attempt.Answers))
	for i := range attempt.Answers {
		byQuestion[attempt.Answers[i].QuestionID] = &attempt.Answers[i]
	}

	questions := orderedQuestions(quiz, sd)
	review := make([]QuestionResult, 0, len(questions))
	for _, question := range questions {
		row := QuestionResult{
			QuestionID:      question.ID,
			Text:            question.Text,
			Marks:           question.Marks,
			CorrectOptionID: question.CorrectOptionID(),
		}
		if answer := byQuestion[question.ID]; answer != nil {
			row.SelectedOptionID = answer.SelectedOptionID
			if answer.IsCorrect != nil {
				row.IsCorrect = *answer.IsCorrect
			}
			if row.IsCorrect {
				row.Earned = question.Marks
			}
		}
		review = append(review, row)
	}

	attemptsMade, err := s.repo.Attempt().CountByUser(ctx, nil, quiz.ID, attempt.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}

	resp := &ResultResponse{
		AttemptID:    attempt.ID,
		QuizID:       quiz.ID,
		QuizTitle:    quiz.Title,
		Score:        attempt.Score,
		MaxScore:     attempt.MaxScore,
		SubmittedAt:  *attempt.SubmittedAt,
		TimeSpent:    attempt.TimeSpent,
		QuizActive:   quiz.IsActive,
		MaxAttempts:  quiz.MaxAttempts,
		AttemptsMade: int(attemptsMade),
		Review:       review,
	}
	if attempt.EndReason != nil {
		resp.EndReason = *attempt.EndReason
	}
	if resp.MaxScore > 0 {
		resp.Percentage = float64(resp.Score) / float64(resp.MaxScore) * 100
	}
	resp.CanRetake = quiz.IsActive &&
		(quiz.MaxAttempts == nil || resp.AttemptsMade < *quiz.MaxAttempts)
	return resp, nil
}

func (s *attemptService) publishSubmitted(ctx context.Context, attempt *models.QuizAttempt) {
	endReason := ""
	if attempt.EndReason != nil {
		endReason = *attempt.EndReason
	}
	err := s.publisher.Publish(ctx, events.TopicAttemptSubmitted, events.AttemptSubmitted{
		AttemptID:   attempt.ID,
		QuizID:      attempt.QuizID,
		UserID:      attempt.UserID,
		Score:       attempt.Score,
		MaxScore:    attempt.MaxScore,
		TimeSpent:   attempt.TimeSpent,
		EndReason:   endReason,
		SubmittedAt: *attempt.SubmittedAt,
	})
	if err != nil {
		s.logger.Error("Failed to publish attempt submitted event",
			"attempt_id", attempt.ID, "error", err)
	}
}

// ===== LOOKUP HELPERS =====

func findQuestion(quiz *models.Quiz, questionID uint) *models.Question {
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == questionID {
			return &quiz.Questions[i]
		}
	}
	return nil
}

func findOption(question *models.Question, optionID uint) *models.Option {
	for i := range question.Options {
		if question.Options[i].ID == optionID {
			return &question.Options[i]
		}
	}
	return nil
}

func quizMaxScore(quiz *models.Quiz) int {
	total := 0
	for i := range quiz.Questions {
		total += quiz.Questions[i].Marks
	}
	return total
}

// orderedQuestions returns the quiz questions in shuffle order, authoring
// order when the attempt carries no shuffle data.
func orderedQuestions(quiz *models.Quiz, sd *models.ShuffleData) []*models.Question {
	ordered := make([]*models.Question, 0, len(quiz.Questions))
	if sd == nil || len(sd.Questions) == 0 {
		for i := range quiz.Questions {
			ordered = append(ordered, &quiz.Questions[i])
		}
		return ordered
	}

	byID := make(map[uint]*models.Question, len(quiz.Questions))
	for i := range quiz.Questions {
		byID[quiz.Questions[i].ID] = &quiz.Questions[i]
	}
	for _, id := range sd.Questions {
		if question, ok := byID[id]; ok {
			ordered = append(ordered, question)
			delete(byID, id)
		}
	}
	// Questions added after the attempt started keep authoring order at
	// the end.
	for i := range quiz.Questions {
		if _, ok := byID[quiz.Questions[i].ID]; ok {
			ordered = append(ordered, &quiz.Questions[i])
		}
	}
	return ordered
}
