package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/quizdeck/quiz-service/internal/models"
	"github.com/quizdeck/quiz-service/internal/repositories"
)

// importService loads quizzes from xlsx workbooks. Expected layout on the
// first sheet, one question per row after the header:
//
//	Question | Marks | Correct | Option 1 | Option 2 | ... Option N
//
// Correct is the 1-based index of the right option. The quiz title is the
// sheet name. Rows that cannot be parsed are skipped with a warning rather
// than failing the whole import.
type importService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewImportService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) ImportService {
	return &importService{repo: repo, db: db, logger: logger}
}

func (s *importService) ImportQuizFromExcel(ctx context.Context, r io.Reader, creatorID string) (*ImportQuizResponse, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, NewValidationError("workbook", "workbook has no sheets", nil)
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, NewValidationError("workbook", "sheet has no question rows", sheet)
	}

	quiz := &models.Quiz{
		Title:     sheet,
		IsActive:  false, // imported quizzes start inactive for review
		CreatedBy: creatorID,
	}

	var warnings []string
	for i, row := range rows[1:] {
		rowNum := i + 2

		question, warning := parseQuestionRow(row, len(quiz.Questions))
		if warning != "" {
			warnings = append(warnings, fmt.Sprintf("row %d: %s", rowNum, warning))
			continue
		}
		quiz.Questions = append(quiz.Questions, *question)
	}
	if len(quiz.Questions) == 0 {
		return nil, NewValidationError("workbook", "no valid question rows found", sheet)
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		return txRepo.Quiz().Create(ctx, nil, quiz)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save imported quiz: %w", err)
	}

	s.logger.Info("Quiz imported from workbook",
		"quiz_id", quiz.ID,
		"sheet", sheet,
		"questions", len(quiz.Questions),
		"skipped_rows", len(warnings))

	return &ImportQuizResponse{
		Quiz:          quiz,
		QuestionCount: len(quiz.Questions),
		Warnings:      warnings,
	}, nil
}

func parseQuestionRow(row []string, order int) (*models.Question, string) {
	if len(row) < 5 {
		return nil, "expected at least 5 columns: question, marks, correct, two options"
	}

	text := strings.TrimSpace(row[0])
	if text == "" {
		return nil, "question text is empty"
	}

	marks, err := strconv.Atoi(strings.TrimSpace(row[1]))
	if err != nil || marks < 1 {
		return nil, fmt.Sprintf("invalid marks %q", row[1])
	}

	correct, err := strconv.Atoi(strings.TrimSpace(row[2]))
	if err != nil {
		return nil, fmt.Sprintf("invalid correct option index %q", row[2])
	}

	question := &models.Question{
		Text:  text,
		Marks: marks,
		Order: order,
	}
	for _, cell := range row[3:] {
		optionText := strings.TrimSpace(cell)
		if optionText == "" {
			continue
		}
		question.Options = append(question.Options, models.Option{Text: optionText})
	}
	if len(question.Options) < 2 {
		return nil, "question needs at least two options"
	}
	if correct < 1 || correct > len(question.Options) {
		return nil, fmt.Sprintf("correct option index %d out of range", correct)
	}
	question.Options[correct-1].IsCorrect = true

	return question, ""
}
