package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
	"github.com/examforge/exam-session-service/internal/validator"
)

// answerService records answers. Duplicate protection lives in the store
// (unique index on session_id, question_id); this layer only translates the
// conflict into a domain error.
type answerService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	clock     Clock
	sessions  SessionService
}

func NewAnswerService(
	repo repositories.Repository,
	logger *slog.Logger,
	validator *validator.Validator,
	clock Clock,
	sessions SessionService,
) AnswerService {
	return &answerService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		clock:     clock,
		sessions:  sessions,
	}
}

func (s *answerService) Submit(ctx context.Context, sessionID uint, req *SubmitAnswerRequest, userID string) (*AnswerFeedback, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	session, err := s.repo.Session().GetByID(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionAccessDenied
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session.UserID != userID {
		return nil, ErrSessionAccessDenied
	}

	if session.Status != models.SessionActive {
		return nil, ErrSessionAlreadyTerminal
	}

	// Check the clock before recording: answers after the deadline are
	// rejected and the session is finalized as expired.
	if IsExpired(session, s.clock.Now()) {
		if err := s.sessions.HandleTimeout(ctx, sessionID); err != nil {
			s.logger.Error("Failed to finalize expired session on answer submit",
				"session_id", sessionID,
				"error", err)
		}
		return nil, ErrSessionExpired
	}

	order, err := session.PinnedOrder()
	if err != nil {
		return nil, fmt.Errorf("failed to decode question order: %w", err)
	}
	if !containsID(order, req.QuestionID) {
		return nil, ErrQuestionNotInSession
	}

	question, err := s.repo.Question().GetByID(ctx, nil, req.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	answer := &models.ExamAnswer{
		SessionID:        sessionID,
		QuestionID:       req.QuestionID,
		SelectedOptionID: req.SelectedOptionID,
		TextAnswer:       req.TextAnswer,
		IsCorrect:        gradeAnswer(question, req.SelectedOptionID),
		AnsweredAt:       s.clock.Now(),
	}
	if req.TimeSpent != nil {
		answer.TimeSpent = *req.TimeSpent
	}

	if err := s.repo.Answer().Create(ctx, nil, answer); err != nil {
		if repositories.IsDuplicateError(err) {
			return nil, ErrAnswerAlreadySubmitted
		}
		return nil, fmt.Errorf("failed to record answer: %w", err)
	}

	answeredCount, err := s.repo.Session().IncrementAnsweredCount(ctx, nil, sessionID)
	if err != nil {
		// The answer row is already committed; the counter will be read back
		// from the answers table at finalize time, so log and continue.
		s.logger.Error("Failed to increment answered count",
			"session_id", sessionID,
			"error", err)
		answeredCount = session.AnsweredCount + 1
	}

	s.logger.Info("Answer recorded",
		"session_id", sessionID,
		"question_id", req.QuestionID,
		"answered_count", answeredCount)

	feedback := &AnswerFeedback{
		Recorded:      true,
		AnsweredCount: answeredCount,
	}

	// Immediate feedback is a practice-mode feature only; real exams reveal
	// nothing until results.
	if session.Category == models.CategoryPractice {
		feedback.IsCorrect = answer.IsCorrect
		feedback.Explanation = question.Explanation
		if correct := question.CorrectOption(); correct != nil {
			feedback.CorrectOptionID = &correct.ID
		}
	}

	return feedback, nil
}

// gradeAnswer computes correctness for auto-gradable question types; essay
// and fill-in-blank answers stay ungraded (nil).
func gradeAnswer(question *models.Question, selectedOptionID *uint) *bool {
	if !question.Type.IsAutoGradable() {
		return nil
	}

	correct := false
	if selectedOptionID != nil {
		if correctOption := question.CorrectOption(); correctOption != nil {
			correct = *selectedOptionID == correctOption.ID
		}
	}
	return &correct
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
