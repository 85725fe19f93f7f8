package services

import (
	"testing"
	"time"

	"github.com/examforge/exam-session-service/internal/models"
)

func timedSession(start time.Time, minutes int) *models.ExamSession {
	return &models.ExamSession{
		ID:        1,
		StartedAt: start,
		TimeLimit: &minutes,
		Status:    models.SessionActive,
	}
}

func TestDeadline(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("timed session", func(t *testing.T) {
		deadline, ok := Deadline(timedSession(start, 30))
		if !ok {
			t.Fatal("expected a deadline for a timed session")
		}
		want := start.Add(30 * time.Minute)
		if !deadline.Equal(want) {
			t.Errorf("expected deadline %v, got %v", want, deadline)
		}
	})

	t.Run("untimed session has no deadline", func(t *testing.T) {
		session := &models.ExamSession{StartedAt: start}
		if _, ok := Deadline(session); ok {
			t.Error("untimed session should not have a deadline")
		}
	})
}

func TestRemainingSeconds(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	session := timedSession(start, 30)

	t.Run("counts down", func(t *testing.T) {
		remaining := RemainingSeconds(session, start.Add(10*time.Minute))
		if remaining == nil || *remaining != 20*60 {
			t.Fatalf("expected 1200 seconds remaining, got %v", remaining)
		}
	})

	t.Run("monotonically non-increasing", func(t *testing.T) {
		prev := RemainingSeconds(session, start)
		for _, offset := range []time.Duration{time.Second, time.Minute, 29 * time.Minute, 31 * time.Minute} {
			cur := RemainingSeconds(session, start.Add(offset))
			if *cur > *prev {
				t.Fatalf("remaining increased from %d to %d at offset %v", *prev, *cur, offset)
			}
			prev = cur
		}
	})

	t.Run("clamped at zero after deadline", func(t *testing.T) {
		remaining := RemainingSeconds(session, start.Add(45*time.Minute))
		if remaining == nil || *remaining != 0 {
			t.Fatalf("expected 0 after the deadline, got %v", remaining)
		}
	})

	t.Run("nil for untimed session", func(t *testing.T) {
		untimed := &models.ExamSession{StartedAt: start}
		if RemainingSeconds(untimed, start) != nil {
			t.Error("untimed session should report nil remaining")
		}
	})
}

func TestIsExpired(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("one minute limit expires at 60 seconds", func(t *testing.T) {
		session := timedSession(start, 1)

		if IsExpired(session, start.Add(59*time.Second)) {
			t.Error("should not be expired at 59s")
		}
		if !IsExpired(session, start.Add(60*time.Second)) {
			t.Error("remaining hits zero exactly at the deadline, which is expired")
		}
		if !IsExpired(session, start.Add(61*time.Second)) {
			t.Error("should be expired at 61s")
		}
	})

	t.Run("untimed session never expires", func(t *testing.T) {
		session := &models.ExamSession{StartedAt: start}
		if IsExpired(session, start.Add(1000*time.Hour)) {
			t.Error("untimed session must never expire")
		}
	})
}
