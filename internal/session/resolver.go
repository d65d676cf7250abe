package session

import (
	"context"
	"fmt"
	"time"

	"github.com/quizdeck/quiz-service/internal/utils"
)

// DefaultRetryDelay is the pause before the resolver's single retry.
const DefaultRetryDelay = 300 * time.Millisecond

// Resolution tells the caller what to do with the resolved attempt.
type Resolution struct {
	Attempt *Attempt

	// ShowResults is set when the latest attempt is already submitted and
	// the caller should present results instead of the taking view.
	ShowResults bool
}

// Resolver obtains the attempt for a quiz, tolerating one transient failure.
// A failed resolve is retried exactly once after a short delay; a second
// failure is surfaced to the caller.
type Resolver struct {
	gateway    Gateway
	retryDelay time.Duration
	logger     utils.Logger
}

func NewResolver(gateway Gateway, logger utils.Logger) *Resolver {
	return &Resolver{
		gateway:    gateway,
		retryDelay: DefaultRetryDelay,
		logger:     logger,
	}
}

// NewResolverWithDelay is like NewResolver with a custom retry delay.
func NewResolverWithDelay(gateway Gateway, delay time.Duration, logger utils.Logger) *Resolver {
	r := NewResolver(gateway, logger)
	r.retryDelay = delay
	return r
}

// Resolve returns the open attempt for the quiz, creating one server side if
// needed. Context cancellation aborts both the retry wait and the retry
// itself, so an abandoned session never fires a late request.
func (r *Resolver) Resolve(ctx context.Context, quizID uint) (*Resolution, error) {
	attempt, err := r.gateway.ResolveAttempt(ctx, quizID)
	if err != nil {
		r.logger.Warn("attempt resolution failed, retrying once",
			"quiz_id", quizID, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryDelay):
		}

		attempt, err = r.gateway.ResolveAttempt(ctx, quizID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve attempt for quiz %d: %w", quizID, err)
		}
	}

	return &Resolution{
		Attempt:     attempt,
		ShowResults: attempt.SubmittedAt != nil,
	}, nil
}
