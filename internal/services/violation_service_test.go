package services

import (
	"context"
	"testing"

	"github.com/examforge/exam-session-service/internal/events"
	"github.com/examforge/exam-session-service/internal/models"
)

func TestTrackViolation(t *testing.T) {
	ctx := context.Background()

	t.Run("counts violations and reports the remaining budget", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 2)
		resp := env.startSession(t, 1, "student-1")

		v, err := env.violations.Track(ctx, resp.ID, &TrackViolationRequest{Type: models.ViolationTabSwitch}, "student-1")
		if err != nil {
			t.Fatalf("failed to track: %v", err)
		}
		if !v.Recorded || v.ViolationCount != 1 || v.Remaining != 9 {
			t.Errorf("expected count 1, remaining 9, got %+v", v)
		}
		if v.AutoSubmitted {
			t.Error("first violation should not auto-submit")
		}
	})

	t.Run("the threshold violation force-submits the session", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 2)
		resp := env.startSession(t, 1, "student-1")

		var last *ViolationResponse
		for i := 0; i < 10; i++ {
			var err error
			last, err = env.violations.Track(ctx, resp.ID, &TrackViolationRequest{Type: models.ViolationWindowBlur}, "student-1")
			if err != nil {
				t.Fatalf("violation %d failed: %v", i+1, err)
			}
		}

		if !last.AutoSubmitted {
			t.Fatal("tenth violation should auto-submit")
		}
		if last.Remaining != 0 {
			t.Errorf("expected remaining 0, got %d", last.Remaining)
		}

		session := env.repo.sessions[resp.ID]
		if session.Status != models.SessionCompleted {
			t.Fatalf("expected completed, got %s", session.Status)
		}
		if session.EndReason == nil || *session.EndReason != models.SessionEndReasonViolationLimit {
			t.Errorf("expected violation_limit end reason, got %v", session.EndReason)
		}
		if session.Score == nil {
			t.Error("a force-submitted session is still scored")
		}

		// The finalize path emits the violation-limit event.
		found := false
		for _, e := range env.publisher.GetPublishedEvents() {
			if e.Type == events.EventSessionViolationLimit {
				found = true
			}
		}
		if !found {
			t.Error("expected a session.violation_limit event")
		}
	})

	t.Run("violations after the session ends are acknowledged, not recorded", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 2)
		resp := env.startSession(t, 1, "student-1")

		if _, err := env.sessions.Complete(ctx, resp.ID, "student-1"); err != nil {
			t.Fatalf("failed to complete: %v", err)
		}

		v, err := env.violations.Track(ctx, resp.ID, &TrackViolationRequest{Type: models.ViolationCopyAttempt}, "student-1")
		if err != nil {
			t.Fatalf("post-terminal track should not error: %v", err)
		}
		if v.Recorded {
			t.Error("post-terminal violation must not be recorded")
		}
		if n, _ := env.repo.Violation().CountBySession(ctx, nil, resp.ID); n != 0 {
			t.Errorf("expected no stored violations, got %d", n)
		}
	})

	t.Run("missing and foreign sessions get the same soft acknowledgement", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedUser("student-2", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 2)
		resp := env.startSession(t, 1, "student-1")

		missing, err := env.violations.Track(ctx, 9999, &TrackViolationRequest{Type: models.ViolationTabSwitch}, "student-2")
		if err != nil {
			t.Fatalf("missing session should not error: %v", err)
		}
		foreign, err := env.violations.Track(ctx, resp.ID, &TrackViolationRequest{Type: models.ViolationTabSwitch}, "student-2")
		if err != nil {
			t.Fatalf("foreign session should not error: %v", err)
		}

		// Identical responses, so the caller cannot tell the cases apart.
		if missing.Recorded || foreign.Recorded {
			t.Error("neither report may be recorded")
		}
		if missing.ViolationCount != foreign.ViolationCount || missing.Remaining != foreign.Remaining {
			t.Errorf("responses differ: %+v vs %+v", missing, foreign)
		}

		if n, _ := env.repo.Violation().CountBySession(ctx, nil, resp.ID); n != 0 {
			t.Errorf("expected no stored violations, got %d", n)
		}
	})

	t.Run("violation log is append-only and readable by the owner", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 2)
		resp := env.startSession(t, 1, "student-1")

		types := []models.ViolationType{models.ViolationTabSwitch, models.ViolationPasteAttempt, models.ViolationFullscreenExit}
		for _, vt := range types {
			if _, err := env.violations.Track(ctx, resp.ID, &TrackViolationRequest{Type: vt}, "student-1"); err != nil {
				t.Fatalf("failed to track %s: %v", vt, err)
			}
		}

		log, err := env.violations.ListBySession(ctx, resp.ID, "student-1")
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(log) != len(types) {
			t.Fatalf("expected %d entries, got %d", len(types), len(log))
		}
	})
}
