package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository aggregates the per-entity repositories and transaction support.
type Repository interface {
	Quiz() QuizRepository
	Attempt() AttemptRepository
	Answer() AnswerRepository

	// User domain (read-only, backed by Casdoor)
	User() UserRepository

	// WithTransaction runs fn inside a database transaction; fn receives a
	// Repository whose operations share that transaction.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Ping verifies the database connection.
	Ping(ctx context.Context) error

	// Close releases database connections.
	Close() error
}

// IsNotFoundError reports whether err means the record does not exist.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
