package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/examforge/exam-session-service/internal/config"
	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
	"github.com/examforge/exam-session-service/internal/validator"
)

// violationService tracks proctoring events. Reporting is deliberately
// forgiving: a violation against a session that already ended, does not
// exist, or belongs to someone else is acknowledged as not-recorded rather
// than rejected, since clients flush queued events after the session closes
// and the response must not confirm session existence.
type violationService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	clock     Clock
	cfg       config.SessionConfig
	sessions  SessionService
}

func NewViolationService(
	repo repositories.Repository,
	logger *slog.Logger,
	validator *validator.Validator,
	clock Clock,
	cfg config.SessionConfig,
	sessions SessionService,
) ViolationService {
	return &violationService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		clock:     clock,
		cfg:       cfg,
		sessions:  sessions,
	}
}

func (s *violationService) Track(ctx context.Context, sessionID uint, req *TrackViolationRequest, userID string) (*ViolationResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	session, err := s.repo.Session().GetByID(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			// Same soft acknowledgement as a foreign session: the response
			// never confirms whether the session exists.
			return &ViolationResponse{
				Recorded:  false,
				Remaining: remainingViolations(s.cfg.ViolationThreshold, 0),
			}, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session.UserID != userID {
		return &ViolationResponse{
			Recorded:  false,
			Remaining: remainingViolations(s.cfg.ViolationThreshold, 0),
		}, nil
	}

	if session.Status != models.SessionActive {
		return &ViolationResponse{
			Recorded:       false,
			ViolationCount: session.ViolationCount,
			Remaining:      remainingViolations(s.cfg.ViolationThreshold, session.ViolationCount),
		}, nil
	}

	occurredAt := s.clock.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	violation := &models.ExamViolation{
		SessionID:  sessionID,
		Type:       req.Type,
		OccurredAt: occurredAt,
	}
	if len(req.Metadata) > 0 {
		data, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode violation metadata: %w", err)
		}
		violation.Metadata = data
	}

	if err := s.repo.Violation().Create(ctx, nil, violation); err != nil {
		return nil, fmt.Errorf("failed to record violation: %w", err)
	}

	count, err := s.repo.Session().IncrementViolationCount(ctx, nil, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to increment violation count: %w", err)
	}

	s.logger.Warn("Violation recorded",
		"session_id", sessionID,
		"type", req.Type,
		"violation_count", count)

	resp := &ViolationResponse{
		Recorded:       true,
		ViolationCount: count,
		Remaining:      remainingViolations(s.cfg.ViolationThreshold, count),
	}

	if count >= s.cfg.ViolationThreshold && s.cfg.AutoSubmitOnViolationLimit {
		// ForceSubmit is CAS-guarded, so concurrent threshold hits finalize
		// the session exactly once.
		if err := s.sessions.ForceSubmit(ctx, sessionID, models.SessionEndReasonViolationLimit); err != nil {
			return nil, fmt.Errorf("failed to auto-submit session: %w", err)
		}
		resp.AutoSubmitted = true

		s.logger.Warn("Session auto-submitted at violation threshold",
			"session_id", sessionID,
			"threshold", s.cfg.ViolationThreshold)
	}

	return resp, nil
}

func (s *violationService) ListBySession(ctx context.Context, sessionID uint, userID string) ([]*models.ExamViolation, error) {
	session, err := s.repo.Session().GetByID(ctx, nil, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionAccessDenied
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.UserID != userID {
		user, err := s.repo.User().GetByID(ctx, userID)
		if err != nil || !user.IsPrivileged() {
			return nil, ErrSessionAccessDenied
		}
	}

	return s.repo.Violation().GetBySession(ctx, nil, sessionID)
}

func remainingViolations(threshold, count int) int {
	remaining := threshold - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
