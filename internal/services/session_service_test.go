package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/examforge/exam-session-service/internal/config"
	"github.com/examforge/exam-session-service/internal/events"
	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/security"
	"github.com/examforge/exam-session-service/internal/validator"
)

type testEnv struct {
	repo      *mockRepository
	clock     *fakeClock
	publisher *events.MockEventPublisher

	access     AccessService
	sessions   SessionService
	answers    AnswerService
	violations ViolationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	repo := newMockRepository()
	clock := newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	publisher := events.NewMockEventPublisher(logger)
	v := validator.New()

	cfg := config.SessionConfig{
		MaxConcurrentSessions:      1,
		ViolationThreshold:         10,
		AutoSubmitOnViolationLimit: true,
		SyncInterval:               30 * time.Second,
	}

	sessions := NewSessionService(repo, nil, logger, v, publisher, clock, cfg, security.AllowAll{})

	return &testEnv{
		repo:       repo,
		clock:      clock,
		publisher:  publisher,
		access:     NewAccessService(repo, nil, logger, clock),
		sessions:   sessions,
		answers:    NewAnswerService(repo, logger, v, clock, sessions),
		violations: NewViolationService(repo, logger, v, clock, cfg, sessions),
	}
}

func (e *testEnv) seedUser(id string, role models.UserRole, banned bool) {
	e.repo.users[id] = &models.User{
		ID:       id,
		FullName: "Test User " + id,
		Email:    id + "@example.com",
		Role:     role,
		IsBanned: banned,
	}
}

// seedExam creates a published exam with n auto-gradable questions; option 1
// of each question is the correct one.
func (e *testEnv) seedExam(examID uint, category models.ExamCategory, durationMinutes *int, n int) {
	exam := &models.Exam{
		ID:        examID,
		Title:     "Seeded Exam",
		Category:  category,
		Duration:  durationMinutes,
		Status:    models.ExamPublished,
		CreatedBy: "teacher-1",
	}
	e.repo.exams[examID] = exam

	for i := 0; i < n; i++ {
		qid := examID*100 + uint(i) + 1
		e.repo.questions[qid] = &models.Question{
			ID:     qid,
			Type:   models.MultipleChoice,
			Text:   "What is the answer?",
			Points: 10,
			Options: []models.QuestionOption{
				{ID: qid*10 + 1, QuestionID: qid, Text: "Right", IsCorrect: true},
				{ID: qid*10 + 2, QuestionID: qid, Text: "Wrong"},
			},
		}
		e.repo.questionIDs[examID] = append(e.repo.questionIDs[examID], qid)
	}
}

func (e *testEnv) startSession(t *testing.T, examID uint, userID string) *SessionResponse {
	t.Helper()
	resp, err := e.sessions.Start(context.Background(), &StartSessionRequest{ExamID: examID}, userID)
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	return resp
}

func intPtr(n int) *int { return &n }

func TestSessionStart(t *testing.T) {
	ctx := context.Background()

	t.Run("pins the question order at creation", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 5)

		resp := env.startSession(t, 1, "student-1")

		order, err := resp.PinnedOrder()
		if err != nil {
			t.Fatalf("failed to decode pinned order: %v", err)
		}
		if len(order) != 5 {
			t.Fatalf("expected 5 pinned questions, got %d", len(order))
		}
		if resp.QuestionCount != 5 {
			t.Errorf("expected question count 5, got %d", resp.QuestionCount)
		}
		if resp.RemainingSeconds == nil || *resp.RemainingSeconds != 30*60 {
			t.Errorf("expected 1800 seconds remaining, got %v", resp.RemainingSeconds)
		}
	})

	t.Run("requested count is clamped to the pool", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 3)

		resp, err := env.sessions.Start(ctx, &StartSessionRequest{
			ExamID:        1,
			QuestionCount: intPtr(10),
		}, "student-1")
		if err != nil {
			t.Fatalf("failed to start session: %v", err)
		}
		if resp.QuestionCount != 3 {
			t.Errorf("expected count clamped to 3, got %d", resp.QuestionCount)
		}
	})

	t.Run("enforces the concurrent session limit", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 3)
		env.seedExam(2, models.CategoryTest, intPtr(30), 3)

		env.startSession(t, 1, "student-1")

		_, err := env.sessions.Start(ctx, &StartSessionRequest{ExamID: 2}, "student-1")
		if !errors.Is(err, ErrConcurrentSessionLimit) {
			t.Fatalf("expected ErrConcurrentSessionLimit, got %v", err)
		}
	})

	t.Run("rejects an exam with no questions", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 0)

		_, err := env.sessions.Start(ctx, &StartSessionRequest{ExamID: 1}, "student-1")
		if !errors.Is(err, ErrNoQuestionsAvailable) {
			t.Fatalf("expected ErrNoQuestionsAvailable, got %v", err)
		}
	})

	t.Run("consumes the invitation exactly once", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedUser("student-2", models.RoleStudent, false)
		env.seedExam(1, models.CategoryCompetition, intPtr(30), 3)
		env.repo.invitations[1] = &models.ExamInvitation{
			ID:        1,
			Token:     "tok-1",
			ExamID:    1,
			ExpiresAt: env.clock.Now().Add(time.Hour),
		}

		token := "tok-1"
		if _, err := env.sessions.Start(ctx, &StartSessionRequest{ExamID: 1, InvitationToken: &token}, "student-1"); err != nil {
			t.Fatalf("first start should succeed: %v", err)
		}

		_, err := env.sessions.Start(ctx, &StartSessionRequest{ExamID: 1, InvitationToken: &token}, "student-2")
		if !errors.Is(err, ErrInvitationUsed) {
			t.Fatalf("expected ErrInvitationUsed on reuse, got %v", err)
		}
	})

	t.Run("publishes a started event", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 3)

		env.startSession(t, 1, "student-1")

		published := env.publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.EventSessionStarted {
			t.Fatalf("expected one session.started event, got %+v", published)
		}
	})
}

func TestSessionStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("remaining time follows the server clock", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 3)
		resp := env.startSession(t, 1, "student-1")

		env.clock.Advance(10 * time.Minute)

		status, err := env.sessions.GetStatus(ctx, resp.ID, "student-1")
		if err != nil {
			t.Fatalf("failed to get status: %v", err)
		}
		if status.RemainingSeconds == nil || *status.RemainingSeconds != 20*60 {
			t.Errorf("expected 1200 seconds remaining, got %v", status.RemainingSeconds)
		}
	})

	t.Run("status read finalizes an overdue session", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 3)
		resp := env.startSession(t, 1, "student-1")

		env.clock.Advance(31 * time.Minute)

		status, err := env.sessions.GetStatus(ctx, resp.ID, "student-1")
		if err != nil {
			t.Fatalf("failed to get status: %v", err)
		}
		if status.Status != models.SessionExpired {
			t.Fatalf("expected expired status, got %s", status.Status)
		}
		if status.EndReason == nil || *status.EndReason != models.SessionEndReasonTimeout {
			t.Errorf("expected time_out end reason, got %v", status.EndReason)
		}
		if status.RemainingSeconds == nil || *status.RemainingSeconds != 0 {
			t.Errorf("expected remaining 0 for an expired session, got %v", status.RemainingSeconds)
		}
	})

	t.Run("foreign session is indistinguishable from missing", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedUser("student-2", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 3)
		resp := env.startSession(t, 1, "student-1")

		_, errForeign := env.sessions.GetStatus(ctx, resp.ID, "student-2")
		_, errMissing := env.sessions.GetStatus(ctx, 9999, "student-2")
		if !errors.Is(errForeign, ErrSessionAccessDenied) || !errors.Is(errMissing, ErrSessionAccessDenied) {
			t.Fatalf("expected ErrSessionAccessDenied for both, got %v and %v", errForeign, errMissing)
		}
	})
}

func TestGetQuestion(t *testing.T) {
	ctx := context.Background()

	t.Run("serves sanitized questions from the pinned order", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 3)
		resp := env.startSession(t, 1, "student-1")

		q, err := env.sessions.GetQuestion(ctx, resp.ID, 0, "student-1")
		if err != nil {
			t.Fatalf("failed to get question: %v", err)
		}
		if !q.IsFirst || q.IsLast {
			t.Errorf("index 0 of 3 should be first and not last")
		}
		if len(q.Options) != 2 {
			t.Fatalf("expected 2 options, got %d", len(q.Options))
		}

		last, err := env.sessions.GetQuestion(ctx, resp.ID, 2, "student-1")
		if err != nil {
			t.Fatalf("failed to get last question: %v", err)
		}
		if !last.IsLast {
			t.Error("index 2 of 3 should be last")
		}
	})

	t.Run("rejects an out-of-range index", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 3)
		resp := env.startSession(t, 1, "student-1")

		_, err := env.sessions.GetQuestion(ctx, resp.ID, 3, "student-1")
		if !errors.Is(err, ErrQuestionIndexOutOfRange) {
			t.Fatalf("expected ErrQuestionIndexOutOfRange, got %v", err)
		}
	})

	t.Run("expired session yields ErrSessionExpired", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 3)
		resp := env.startSession(t, 1, "student-1")

		env.clock.Advance(time.Hour)

		_, err := env.sessions.GetQuestion(ctx, resp.ID, 0, "student-1")
		if !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
	})
}

func TestCompleteSession(t *testing.T) {
	ctx := context.Background()

	t.Run("scores answered questions against the pinned count", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 4)
		resp := env.startSession(t, 1, "student-1")

		order, _ := resp.PinnedOrder()
		// Answer the first two correctly, leave the rest unanswered.
		for _, qid := range order[:2] {
			correctID := env.repo.questions[qid].CorrectOption().ID
			if _, err := env.answers.Submit(ctx, resp.ID, &SubmitAnswerRequest{
				QuestionID:       qid,
				SelectedOptionID: &correctID,
			}, "student-1"); err != nil {
				t.Fatalf("failed to submit answer: %v", err)
			}
		}

		results, err := env.sessions.Complete(ctx, resp.ID, "student-1")
		if err != nil {
			t.Fatalf("failed to complete: %v", err)
		}
		if results.Status != models.SessionCompleted {
			t.Fatalf("expected completed, got %s", results.Status)
		}
		if results.Score == nil || *results.Score != 50 {
			t.Errorf("expected score 50, got %v", results.Score)
		}
		if results.CorrectCount != 2 {
			t.Errorf("expected 2 correct, got %d", results.CorrectCount)
		}
	})

	t.Run("a second completion is rejected without re-scoring", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 2)
		resp := env.startSession(t, 1, "student-1")

		first, err := env.sessions.Complete(ctx, resp.ID, "student-1")
		if err != nil {
			t.Fatalf("first complete failed: %v", err)
		}

		if _, err := env.sessions.Complete(ctx, resp.ID, "student-1"); !errors.Is(err, ErrSessionAlreadyTerminal) {
			t.Fatalf("expected ErrSessionAlreadyTerminal, got %v", err)
		}

		// The stored score is untouched and still readable.
		results, err := env.sessions.GetResults(ctx, resp.ID, "student-1")
		if err != nil {
			t.Fatalf("failed to get results: %v", err)
		}
		if *results.Score != *first.Score {
			t.Errorf("score changed from %v to %v", *first.Score, *results.Score)
		}
	})

	t.Run("late completion expires the session instead", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 2)
		resp := env.startSession(t, 1, "student-1")

		env.clock.Advance(time.Hour)

		if _, err := env.sessions.Complete(ctx, resp.ID, "student-1"); !errors.Is(err, ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}

		results, err := env.sessions.GetResults(ctx, resp.ID, "student-1")
		if err != nil {
			t.Fatalf("failed to get results: %v", err)
		}
		if results.Status != models.SessionExpired {
			t.Fatalf("expected expired, got %s", results.Status)
		}
		if results.Score == nil {
			t.Error("expired sessions are still scored")
		}
	})
}

func TestAbandonSession(t *testing.T) {
	ctx := context.Background()

	t.Run("abandoned session has no score", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 2)
		resp := env.startSession(t, 1, "student-1")

		if err := env.sessions.Abandon(ctx, resp.ID, "student-1"); err != nil {
			t.Fatalf("failed to abandon: %v", err)
		}

		session := env.repo.sessions[resp.ID]
		if session.Status != models.SessionAbandoned {
			t.Fatalf("expected abandoned, got %s", session.Status)
		}
		if session.Score != nil {
			t.Error("abandoned sessions must not be scored")
		}

		// Results stay unavailable.
		if _, err := env.sessions.GetResults(ctx, resp.ID, "student-1"); !errors.Is(err, ErrSessionNotCompleted) {
			t.Fatalf("expected ErrSessionNotCompleted, got %v", err)
		}
	})

	t.Run("abandoning after completion is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedUser("student-1", models.RoleStudent, false)
		env.seedExam(1, models.CategoryTest, intPtr(30), 2)
		resp := env.startSession(t, 1, "student-1")

		if _, err := env.sessions.Complete(ctx, resp.ID, "student-1"); err != nil {
			t.Fatalf("failed to complete: %v", err)
		}
		if err := env.sessions.Abandon(ctx, resp.ID, "student-1"); !errors.Is(err, ErrSessionAlreadyTerminal) {
			t.Fatalf("expected ErrSessionAlreadyTerminal, got %v", err)
		}
	})
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()

	env := newTestEnv(t)
	env.seedUser("student-1", models.RoleStudent, false)
	env.seedUser("student-2", models.RoleStudent, false)
	env.seedExam(1, models.CategoryTest, intPtr(30), 2)

	a := env.startSession(t, 1, "student-1")
	b := env.startSession(t, 1, "student-2")

	env.clock.Advance(31 * time.Minute)

	n, err := env.sessions.SweepExpired(ctx, 100)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 finalized sessions, got %d", n)
	}

	for _, id := range []uint{a.ID, b.ID} {
		if env.repo.sessions[id].Status != models.SessionExpired {
			t.Errorf("session %d should be expired", id)
		}
	}

	// A second sweep finds nothing.
	n, err = env.sessions.SweepExpired(ctx, 100)
	if err != nil || n != 0 {
		t.Fatalf("expected idle second sweep, got n=%d err=%v", n, err)
	}
}
