package services

import (
	"context"
	"testing"
	"time"

	"github.com/examforge/exam-session-service/internal/models"
)

func checkDenied(t *testing.T, env *testEnv, examID uint, userID, token, wantReason string) {
	t.Helper()
	decision, err := env.access.CheckAccess(context.Background(), examID, userID, token)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected denial %q, got allowed", wantReason)
	}
	if decision.DenialReason != wantReason {
		t.Fatalf("expected denial %q, got %q", wantReason, decision.DenialReason)
	}
}

func TestCheckAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("allows a published exam within its window", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 3)

		decision, err := env.access.CheckAccess(ctx, 1, "student-1", "")
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("expected allowed, got denial %q", decision.DenialReason)
		}
		if decision.Exam == nil || decision.Exam.ID != 1 {
			t.Error("allowed decision should carry the exam summary")
		}
	})

	t.Run("denial reasons follow the check order", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedUser("banned-1", models.RoleStudent, true)

		// Missing exam
		checkDenied(t, env, 99, "student-1", "", DenialExamNotFound)

		// Draft exam
		env.seedExam(2, models.CategoryTest, intPtr(30), 3)
		env.repo.exams[2].Status = models.ExamDraft
		checkDenied(t, env, 2, "student-1", "", DenialNotPublished)

		// Window not open yet
		env.seedExam(3, models.CategoryTest, intPtr(30), 3)
		future := env.clock.Now().Add(time.Hour)
		env.repo.exams[3].StartDate = &future
		checkDenied(t, env, 3, "student-1", "", DenialNotStartedYet)

		// Window closed
		env.seedExam(4, models.CategoryTest, intPtr(30), 3)
		past := env.clock.Now().Add(-time.Hour)
		env.repo.exams[4].EndDate = &past
		checkDenied(t, env, 4, "student-1", "", DenialWindowClosed)

		// Banned user
		env.seedExam(5, models.CategoryTest, intPtr(30), 3)
		checkDenied(t, env, 5, "banned-1", "", DenialUserBanned)
	})

	t.Run("gated categories require an invitation", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryCompetition, intPtr(30), 3)

		checkDenied(t, env, 1, "student-1", "", DenialInvitationRequired)
		checkDenied(t, env, 1, "student-1", "no-such-token", DenialInvitationInvalid)

		// Expired invitation
		env.repo.invitations[1] = &models.ExamInvitation{
			ID: 1, Token: "expired-tok", ExamID: 1,
			ExpiresAt: env.clock.Now().Add(-time.Minute),
		}
		checkDenied(t, env, 1, "student-1", "expired-tok", DenialInvitationExpired)

		// Used invitation
		used := env.clock.Now()
		env.repo.invitations[2] = &models.ExamInvitation{
			ID: 2, Token: "used-tok", ExamID: 1,
			ExpiresAt: env.clock.Now().Add(time.Hour),
			UsedAt:    &used,
		}
		checkDenied(t, env, 1, "student-1", "used-tok", DenialInvitationUsed)

		// Invitation scoped to someone else
		other := "someone-else"
		env.repo.invitations[3] = &models.ExamInvitation{
			ID: 3, Token: "scoped-tok", ExamID: 1,
			UserID:    &other,
			ExpiresAt: env.clock.Now().Add(time.Hour),
		}
		checkDenied(t, env, 1, "student-1", "scoped-tok", DenialInvitationMismatch)

		// Invitation issued for a different exam
		env.seedExam(2, models.CategoryCompetition, intPtr(30), 3)
		env.repo.invitations[5] = &models.ExamInvitation{
			ID: 5, Token: "other-exam-tok", ExamID: 2,
			ExpiresAt: env.clock.Now().Add(time.Hour),
		}
		checkDenied(t, env, 1, "student-1", "other-exam-tok", DenialInvitationInvalid)

		// Valid invitation
		env.repo.invitations[4] = &models.ExamInvitation{
			ID: 4, Token: "good-tok", ExamID: 1,
			ExpiresAt: env.clock.Now().Add(time.Hour),
		}
		decision, err := env.access.CheckAccess(ctx, 1, "student-1", "good-tok")
		if err != nil || !decision.Allowed {
			t.Fatalf("expected allowed with valid token, got %v / %+v", err, decision)
		}
	})

	t.Run("the exam creator bypasses invitation gating", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("teacher-1", models.RoleTeacher, false)
		env.seedExam(1, models.CategoryCompetition, intPtr(30), 3)

		decision, err := env.access.CheckAccess(ctx, 1, "teacher-1", "")
		if err != nil || !decision.Allowed {
			t.Fatalf("expected creator to bypass gating, got %v / %+v", err, decision)
		}
	})

	t.Run("challenge exams require a token from everyone", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("teacher-1", models.RoleTeacher, false)
		env.seedUser("admin-1", models.RoleAdmin, false)
		env.seedExam(1, models.CategoryChallenge, intPtr(30), 3)

		// Neither the creator nor an administrator is exempt here.
		checkDenied(t, env, 1, "teacher-1", "", DenialInvitationRequired)
		checkDenied(t, env, 1, "admin-1", "", DenialInvitationRequired)

		env.repo.invitations[1] = &models.ExamInvitation{
			ID: 1, Token: "challenge-tok", ExamID: 1,
			ExpiresAt: env.clock.Now().Add(time.Hour),
		}
		decision, err := env.access.CheckAccess(ctx, 1, "teacher-1", "challenge-tok")
		if err != nil || !decision.Allowed {
			t.Fatalf("expected allowed with a valid token, got %v / %+v", err, decision)
		}
	})

	t.Run("checking never consumes the invitation", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryCompetition, intPtr(30), 3)
		env.repo.invitations[1] = &models.ExamInvitation{
			ID: 1, Token: "tok", ExamID: 1,
			ExpiresAt: env.clock.Now().Add(time.Hour),
		}

		for i := 0; i < 3; i++ {
			decision, err := env.access.CheckAccess(ctx, 1, "student-1", "tok")
			if err != nil || !decision.Allowed {
				t.Fatalf("repeated check %d should stay allowed: %v / %+v", i, err, decision)
			}
		}
		if env.repo.invitations[1].UsedAt != nil {
			t.Error("access check must not consume the invitation")
		}
	})
}
