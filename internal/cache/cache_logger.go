package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern invalidates cache pattern and logs errors without failing the operation
func (c *CacheHelper) SafeInvalidatePattern(ctx context.Context, pattern string, operation string) {
	if err := c.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Cache invalidation failed",
			"operation", operation,
			"pattern", pattern,
			"error", err)
	}
}

// SafeDelete deletes cache keys and logs errors without failing the operation
func (c *CacheHelper) SafeDelete(ctx context.Context, operation string, keys ...string) {
	if err := c.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Cache delete failed",
			"operation", operation,
			"keys", keys,
			"error", err)
	}
}

// BatchInvalidate invalidates multiple cache patterns efficiently
func (cm *CacheManager) BatchInvalidate(ctx context.Context, operation string, patterns map[*CacheHelper][]string) {
	for helper, patternList := range patterns {
		for _, pattern := range patternList {
			helper.SafeInvalidatePattern(ctx, pattern, operation)
		}
	}
}

// InvalidateExamCache invalidates everything derived from one exam definition
func (cm *CacheManager) InvalidateExamCache(ctx context.Context, examID uint, operation string) {
	patterns := map[*CacheHelper][]string{
		cm.Exam:     {fmt.Sprintf("%d", examID), fmt.Sprintf("%d:*", examID), "list:*"},
		cm.Question: {fmt.Sprintf("exam:%d:*", examID)},
		cm.Exists:   {fmt.Sprintf("exam:%d", examID)},
		cm.Fast:     {fmt.Sprintf("exam:%d:*", examID)},
	}

	cm.BatchInvalidate(ctx, operation, patterns)
}

// InvalidateSessionCache drops the cached view of a session after any mutation.
// Answer and violation writes go through here so reads never serve stale counters
// for longer than the session TTL.
func (cm *CacheManager) InvalidateSessionCache(ctx context.Context, sessionID uint, userID string, operation string) {
	patterns := map[*CacheHelper][]string{
		cm.Session: {fmt.Sprintf("%d", sessionID), fmt.Sprintf("%d:*", sessionID)},
		cm.Fast:    {fmt.Sprintf("user:%s:sessions*", userID)},
	}

	cm.BatchInvalidate(ctx, operation, patterns)
}
