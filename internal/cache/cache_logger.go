package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeDelete deletes cache keys and logs instead of propagating failures.
// Cache invalidation must never fail a write path.
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// SafeInvalidatePattern invalidates a pattern with logging.
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// InvalidateQuizCache drops every cached view of a quiz after it changes.
func InvalidateQuizCache(ctx context.Context, cm *CacheManager, quizID uint) {
	SafeDelete(ctx, cm.Quiz,
		fmt.Sprintf("id:%d", quizID),
		fmt.Sprintf("details:%d", quizID))
	SafeInvalidatePattern(ctx, cm.Quiz, "list:*")
	SafeInvalidatePattern(ctx, cm.Exists, fmt.Sprintf("quiz:%d*", quizID))
}

// InvalidateAttemptCache drops cached attempt state after answers change or
// the attempt is submitted.
func InvalidateAttemptCache(ctx context.Context, cm *CacheManager, attemptID uint, quizID uint, userID string) {
	SafeDelete(ctx, cm.Attempt, fmt.Sprintf("id:%d", attemptID))
	SafeDelete(ctx, cm.Attempt, fmt.Sprintf("active:%d:%s", quizID, userID))
	SafeInvalidatePattern(ctx, cm.Exists, fmt.Sprintf("attempt:%d*", attemptID))
}
