package services

import (
	"errors"
	"fmt"
)

// ===== SENTINEL ERRORS =====

var (
	// Quiz errors
	ErrQuizNotFound       = errors.New("quiz not found")
	ErrQuizNotActive      = errors.New("quiz is not active")
	ErrQuizHasNoQuestions = errors.New("quiz has no questions")

	// Attempt errors
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptNotActive        = errors.New("attempt is not in progress")
	ErrAttemptAlreadySubmitted = errors.New("attempt has already been submitted")
	ErrAttemptTimeExpired      = errors.New("attempt time has expired")
	ErrAttemptLimitReached     = errors.New("maximum attempts reached")
	ErrAttemptNotSubmitted     = errors.New("attempt has not been submitted")

	// Answer errors
	ErrQuestionNotInQuiz   = errors.New("question does not belong to this quiz")
	ErrOptionNotInQuestion = errors.New("selected option does not belong to this question")

	// User errors
	ErrUserNotFound = errors.New("user not found")
)

// ===== TYPED ERRORS =====

// PermissionError describes an authorization failure on a resource.
type PermissionError struct {
	UserID   string
	ID       uint
	Resource string
	Action   string
	Reason   string
}

func NewPermissionError(userID string, id uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:   userID,
		ID:       id,
		Resource: resource,
		Action:   action,
		Reason:   reason,
	}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ID, e.Reason)
}

// BusinessRuleError describes a domain rule violation.
type BusinessRuleError struct {
	Rule    string
	Message string
	Context map[string]any
}

func NewBusinessRuleError(rule, message string, context map[string]any) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message, Context: context}
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s violated: %s", e.Rule, e.Message)
}

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func NewValidationError(field, message string, value any) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates field errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s: %s", e[0].Field, e[0].Message)
}
