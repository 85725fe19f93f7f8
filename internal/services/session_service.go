package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/examforge/exam-session-service/internal/config"
	"github.com/examforge/exam-session-service/internal/events"
	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
	"github.com/examforge/exam-session-service/internal/security"
	"github.com/examforge/exam-session-service/internal/validator"
)

type sessionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	clock     Clock
	cfg       config.SessionConfig
	verifier  security.Verifier

	access *accessService
}

func NewSessionService(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	validator *validator.Validator,
	publisher events.EventPublisher,
	clock Clock,
	cfg config.SessionConfig,
	verifier security.Verifier,
) SessionService {
	return &sessionService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		verifier:  verifier,
		access:    &accessService{repo: repo, db: db, logger: logger, clock: clock},
	}
}

// ===== SESSION START =====

func (s *sessionService) Start(ctx context.Context, req *StartSessionRequest, userID string) (*SessionResponse, error) {
	s.logger.Info("Starting exam session",
		"exam_id", req.ExamID,
		"user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if s.verifier != nil {
		ok, err := s.verifier.Verify(ctx, req.BotToken)
		if err != nil {
			return nil, fmt.Errorf("bot verification error: %w", err)
		}
		if !ok {
			return nil, ErrBotVerificationFailed
		}
	}

	var session *models.ExamSession
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		// Re-run the access checks inside the transaction; the earlier
		// read-only check may be stale by now.
		token := ""
		if req.InvitationToken != nil {
			token = *req.InvitationToken
		}
		decision, invitation, err := s.access.evaluate(ctx, txRepo, req.ExamID, userID, token)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return denialToError(decision.DenialReason)
		}

		activeCount, err := txRepo.Session().CountActiveByUser(ctx, nil, userID)
		if err != nil {
			return fmt.Errorf("failed to count active sessions: %w", err)
		}
		if activeCount >= int64(s.cfg.MaxConcurrentSessions) {
			return ErrConcurrentSessionLimit
		}

		exam, err := txRepo.Exam().GetByID(ctx, nil, req.ExamID)
		if err != nil {
			return fmt.Errorf("failed to get exam: %w", err)
		}

		session, err = s.buildSession(ctx, txRepo, exam, req, userID)
		if err != nil {
			return err
		}

		if err := txRepo.Session().Create(ctx, nil, session); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		// Spend the invitation inside the same transaction so a competing
		// start cannot reuse it.
		if invitation != nil {
			consumed, err := txRepo.Invitation().ConsumeIfUnused(ctx, nil, invitation.ID, s.clock.Now())
			if err != nil {
				return fmt.Errorf("failed to consume invitation: %w", err)
			}
			if !consumed {
				return ErrInvitationUsed
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Exam session started",
		"session_id", session.ID,
		"exam_id", session.ExamID,
		"user_id", userID,
		"question_count", session.QuestionCount)

	s.publishSessionEvent(ctx, events.EventSessionStarted, session)

	return s.buildSessionResponse(session), nil
}

// buildSession assembles the new session row: pinned question order, copied
// category, and the server-stamped start time.
func (s *sessionService) buildSession(ctx context.Context, repo repositories.Repository, exam *models.Exam, req *StartSessionRequest, userID string) (*models.ExamSession, error) {
	questionIDs, err := repo.Exam().GetQuestionIDs(ctx, nil, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get exam questions: %w", err)
	}
	if len(questionIDs) == 0 {
		return nil, ErrNoQuestionsAvailable
	}

	shuffleQuestions := exam.ShuffleQuestions
	if req.ShuffleQuestions != nil {
		shuffleQuestions = *req.ShuffleQuestions
	}
	shuffleOptions := exam.ShuffleOptions
	if req.ShuffleOptions != nil {
		shuffleOptions = *req.ShuffleOptions
	}

	order := make([]uint, len(questionIDs))
	copy(order, questionIDs)
	if shuffleQuestions {
		shuffleIDs(order)
	}

	// Requested count is clamped to the pool size, never an error.
	if req.QuestionCount != nil && *req.QuestionCount < len(order) {
		order = order[:*req.QuestionCount]
	}

	timeLimit := exam.Duration
	if req.TimeLimit != nil {
		timeLimit = req.TimeLimit
	}

	session := &models.ExamSession{
		ExamID:           exam.ID,
		UserID:           userID,
		Category:         exam.Category,
		StartedAt:        s.clock.Now(),
		TimeLimit:        timeLimit,
		ShuffleQuestions: shuffleQuestions,
		ShuffleOptions:   shuffleOptions,
		Status:           models.SessionActive,
	}
	if err := session.SetPinnedOrder(order); err != nil {
		return nil, fmt.Errorf("failed to pin question order: %w", err)
	}

	return session, nil
}

// ===== STATUS =====

func (s *sessionService) GetStatus(ctx context.Context, sessionID uint, userID string) (*StatusResponse, error) {
	session, err := s.getOwnedSession(ctx, sessionID, userID, true)
	if err != nil {
		return nil, err
	}

	// Status reads are the expiry checkpoint: an overdue active session is
	// finalized here before the response is built.
	session, err = s.finalizeIfExpired(ctx, session)
	if err != nil {
		return nil, err
	}

	return s.buildStatusResponse(session), nil
}

// ===== QUESTION DELIVERY =====

func (s *sessionService) GetQuestion(ctx context.Context, sessionID uint, index int, userID string) (*QuestionForSession, error) {
	session, err := s.getOwnedSession(ctx, sessionID, userID, false)
	if err != nil {
		return nil, err
	}

	session, err = s.finalizeIfExpired(ctx, session)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		if session.Status == models.SessionExpired {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionNotActive
	}

	order, err := session.PinnedOrder()
	if err != nil {
		return nil, fmt.Errorf("failed to decode question order: %w", err)
	}
	if index < 0 || index >= len(order) {
		return nil, ErrQuestionIndexOutOfRange
	}

	question, err := s.repo.Question().GetByID(ctx, nil, order[index])
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	return s.buildQuestionForSession(session, question, index, len(order)), nil
}

// ===== FINALIZATION PATHS =====

func (s *sessionService) Complete(ctx context.Context, sessionID uint, userID string) (*ResultsResponse, error) {
	session, err := s.getOwnedSession(ctx, sessionID, userID, false)
	if err != nil {
		return nil, err
	}

	// A second complete finds the session already terminal and is rejected;
	// it never re-scores. Results stay available through GetResults.
	if session.Status.IsTerminal() {
		return nil, ErrSessionAlreadyTerminal
	}

	if IsExpired(session, s.clock.Now()) {
		// Too late to count as a voluntary submit: the session expires
		// instead, scored from whatever was answered in time.
		if _, err := s.finalizeIfExpired(ctx, session); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}

	won, err := s.finalize(ctx, session, models.SessionCompleted, models.SessionEndReasonCompleted)
	if err != nil {
		return nil, err
	}
	if !won {
		s.logger.Info("Session finalized by a concurrent caller", "session_id", sessionID)
	}

	session, err = s.repo.Session().GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload session: %w", err)
	}
	return s.buildResultsResponse(ctx, session, userID)
}

func (s *sessionService) Abandon(ctx context.Context, sessionID uint, userID string) error {
	session, err := s.getOwnedSession(ctx, sessionID, userID, false)
	if err != nil {
		return err
	}

	if session.Status == models.SessionAbandoned {
		return nil // Idempotent
	}
	if session.Status.IsTerminal() {
		return ErrSessionAlreadyTerminal
	}

	// An overdue session expires rather than abandons, regardless of what
	// the client asked for.
	if IsExpired(session, s.clock.Now()) {
		_, err = s.finalizeIfExpired(ctx, session)
		return err
	}

	won, err := s.finalize(ctx, session, models.SessionAbandoned, models.SessionEndReasonAbandoned)
	if err != nil {
		return err
	}
	if !won {
		return ErrSessionAlreadyTerminal
	}
	return nil
}

func (s *sessionService) HandleTimeout(ctx context.Context, sessionID uint) error {
	session, err := s.repo.Session().GetByID(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrSessionAccessDenied
		}
		return fmt.Errorf("failed to get session: %w", err)
	}

	if session.Status != models.SessionActive {
		return nil
	}
	if !IsExpired(session, s.clock.Now()) {
		return nil
	}

	_, err = s.finalize(ctx, session, models.SessionExpired, models.SessionEndReasonTimeout)
	return err
}

func (s *sessionService) ForceSubmit(ctx context.Context, sessionID uint, endReason string) error {
	session, err := s.repo.Session().GetByID(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrSessionAccessDenied
		}
		return fmt.Errorf("failed to get session: %w", err)
	}

	if session.Status != models.SessionActive {
		return nil
	}

	_, err = s.finalize(ctx, session, models.SessionCompleted, endReason)
	return err
}

func (s *sessionService) SweepExpired(ctx context.Context, limit int) (int, error) {
	sessions, err := s.repo.Session().GetExpiredActive(ctx, nil, s.clock.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	finalized := 0
	for _, session := range sessions {
		won, err := s.finalize(ctx, session, models.SessionExpired, models.SessionEndReasonTimeout)
		if err != nil {
			s.logger.Error("Failed to finalize expired session",
				"session_id", session.ID,
				"error", err)
			continue
		}
		if won {
			finalized++
		}
	}
	return finalized, nil
}

// ===== RESULTS =====

func (s *sessionService) GetResults(ctx context.Context, sessionID uint, userID string) (*ResultsResponse, error) {
	session, err := s.getOwnedSession(ctx, sessionID, userID, true)
	if err != nil {
		return nil, err
	}

	// A session that timed out but was never observed still needs finalizing
	// before results can exist.
	session, err = s.finalizeIfExpired(ctx, session)
	if err != nil {
		return nil, err
	}

	if session.Status != models.SessionCompleted && session.Status != models.SessionExpired {
		return nil, ErrSessionNotCompleted
	}

	return s.buildResultsResponse(ctx, session, userID)
}

func (s *sessionService) List(ctx context.Context, filters repositories.SessionFilters, userID string) ([]*models.ExamSession, int64, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get user: %w", err)
	}

	// Students only ever see their own sessions.
	if !user.IsPrivileged() {
		filters.UserID = &userID
	}

	return s.repo.Session().List(ctx, nil, filters)
}

// ===== SINGLE FINALIZE PATH =====

// finalize is the only transition out of the active state. It computes the
// score, attempts the conditional status update, and reports whether this
// caller won the transition. Losing is normal under concurrency.
func (s *sessionService) finalize(ctx context.Context, session *models.ExamSession, status models.SessionStatus, endReason string) (bool, error) {
	now := s.clock.Now()

	updates := map[string]interface{}{
		"status":       status,
		"completed_at": now,
		"end_reason":   endReason,
	}

	// Abandoned sessions are not scored; completed and expired ones are
	// graded from whatever was answered.
	if status != models.SessionAbandoned {
		score, err := s.computeScore(ctx, session)
		if err != nil {
			return false, err
		}
		updates["score"] = score
	}

	won, err := s.repo.Session().UpdateStatusIf(ctx, nil, session.ID, models.SessionActive, updates)
	if err != nil {
		return false, fmt.Errorf("failed to finalize session: %w", err)
	}
	if !won {
		return false, nil
	}

	session.Status = status
	session.CompletedAt = &now
	session.EndReason = &endReason
	if scoreVal, ok := updates["score"].(float64); ok {
		session.Score = &scoreVal
	}

	s.logger.Info("Session finalized",
		"session_id", session.ID,
		"status", status,
		"end_reason", endReason)

	s.publishSessionEvent(ctx, eventTypeFor(status, endReason), session)

	return true, nil
}

// computeScore grades from recorded answers: unanswered and ungradable
// questions count as not correct.
func (s *sessionService) computeScore(ctx context.Context, session *models.ExamSession) (float64, error) {
	if session.QuestionCount == 0 {
		return 0, nil
	}

	correct, err := s.repo.Answer().CountCorrectBySession(ctx, nil, session.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to count correct answers: %w", err)
	}

	return float64(correct) / float64(session.QuestionCount) * 100, nil
}

// finalizeIfExpired transitions an overdue active session to expired and
// returns the fresh row. Non-expired sessions pass through untouched.
func (s *sessionService) finalizeIfExpired(ctx context.Context, session *models.ExamSession) (*models.ExamSession, error) {
	if session.Status != models.SessionActive || !IsExpired(session, s.clock.Now()) {
		return session, nil
	}

	if _, err := s.finalize(ctx, session, models.SessionExpired, models.SessionEndReasonTimeout); err != nil {
		return nil, err
	}

	fresh, err := s.repo.Session().GetByID(ctx, nil, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload session: %w", err)
	}
	return fresh, nil
}

// denialToError maps an access denial reason to its sentinel error for the
// session start path, where a denial must abort the transaction.
func denialToError(reason string) error {
	switch reason {
	case DenialExamNotFound:
		return ErrExamNotFound
	case DenialNotPublished:
		return ErrExamNotPublished
	case DenialNotStartedYet:
		return ErrExamNotStarted
	case DenialWindowClosed:
		return ErrExamWindowClosed
	case DenialUserBanned:
		return ErrUserBanned
	case DenialInvitationRequired:
		return ErrInvitationRequired
	case DenialInvitationInvalid:
		return ErrInvitationInvalid
	case DenialInvitationExpired:
		return ErrInvitationExpired
	case DenialInvitationUsed:
		return ErrInvitationUsed
	case DenialInvitationMismatch:
		return ErrInvitationMismatch
	default:
		return errors.New("access denied")
	}
}

func eventTypeFor(status models.SessionStatus, endReason string) string {
	switch {
	case endReason == models.SessionEndReasonViolationLimit:
		return events.EventSessionViolationLimit
	case status == models.SessionExpired:
		return events.EventSessionExpired
	case status == models.SessionAbandoned:
		return events.EventSessionAbandoned
	default:
		return events.EventSessionCompleted
	}
}

func (s *sessionService) publishSessionEvent(ctx context.Context, eventType string, session *models.ExamSession) {
	if s.publisher == nil {
		return
	}

	data := events.SessionEventData{
		SessionID:      session.ID,
		ExamID:         session.ExamID,
		UserID:         session.UserID,
		Status:         string(session.Status),
		Score:          session.Score,
		ViolationCount: session.ViolationCount,
	}
	if session.EndReason != nil {
		data.EndReason = *session.EndReason
	}

	if err := s.publisher.Publish(ctx, events.NewEvent(eventType, data)); err != nil {
		s.logger.Error("Failed to publish session event",
			"event_type", eventType,
			"session_id", session.ID,
			"error", err)
	}
}
