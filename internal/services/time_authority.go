package services

import (
	"time"

	"github.com/examforge/exam-session-service/internal/models"
)

// Time authority: these functions are the only place expiry is decided.
// All timing derives from the session's server-assigned StartedAt and
// TimeLimit; client clocks are never consulted.

// Deadline returns the instant the session expires, or false for untimed
// sessions.
func Deadline(session *models.ExamSession) (time.Time, bool) {
	if session.TimeLimit == nil {
		return time.Time{}, false
	}
	return session.StartedAt.Add(time.Duration(*session.TimeLimit) * time.Minute), true
}

// RemainingSeconds returns the whole seconds left before expiry, clamped at
// zero, or nil for untimed sessions. The value is monotonically non-increasing
// across successive calls with a monotonic clock.
func RemainingSeconds(session *models.ExamSession, now time.Time) *int {
	deadline, ok := Deadline(session)
	if !ok {
		return nil
	}

	remaining := int(deadline.Sub(now) / time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// IsExpired reports whether the session's time limit has elapsed as of now.
// A session is expired the instant its remaining time reaches zero, so the
// exact deadline counts as expired. Untimed sessions never expire.
func IsExpired(session *models.ExamSession, now time.Time) bool {
	deadline, ok := Deadline(session)
	if !ok {
		return false
	}
	return !now.Before(deadline)
}
