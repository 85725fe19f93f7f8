package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
)

// accessService is the access gate. Every check here is read-only: tokens are
// inspected but never consumed, and nothing is written. Session start re-runs
// the same checks inside its transaction before committing anything.
type accessService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
	clock  Clock
}

func NewAccessService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, clock Clock) AccessService {
	return &accessService{
		repo:   repo,
		db:     db,
		logger: logger,
		clock:  clock,
	}
}

func (s *accessService) CheckAccess(ctx context.Context, examID uint, userID string, invitationToken string) (*AccessDecision, error) {
	decision, _, err := s.evaluate(ctx, s.repo, examID, userID, invitationToken)
	return decision, err
}

// evaluate runs the ordered access checks against the given repository (which
// may be transaction-bound) and returns the decision plus the matched
// invitation (when one was presented and valid) so the session start path can
// consume it in the same transaction.
func (s *accessService) evaluate(ctx context.Context, repo repositories.Repository, examID uint, userID string, invitationToken string) (*AccessDecision, *models.ExamInvitation, error) {
	deny := func(reason string) (*AccessDecision, *models.ExamInvitation, error) {
		return &AccessDecision{Allowed: false, DenialReason: reason}, nil, nil
	}

	exam, err := repo.Exam().GetByID(ctx, nil, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return deny(DenialExamNotFound)
		}
		return nil, nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if exam.Status != models.ExamPublished {
		return deny(DenialNotPublished)
	}

	now := s.clock.Now()
	if exam.StartDate != nil && now.Before(*exam.StartDate) {
		return deny(DenialNotStartedYet)
	}
	if exam.EndDate != nil && now.After(*exam.EndDate) {
		return deny(DenialWindowClosed)
	}

	user, err := repo.User().GetByID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.IsBanned {
		return deny(DenialUserBanned)
	}

	// Gated categories need an invitation. The exam's creator and privileged
	// roles are exempt, except for challenge exams where the token is
	// mandatory for everyone.
	gated := exam.Category.RequiresInvitation()
	if gated && exam.Category != models.CategoryChallenge && (exam.CreatedBy == userID || user.IsPrivileged()) {
		gated = false
	}

	var invitation *models.ExamInvitation
	if gated {
		if invitationToken == "" {
			return deny(DenialInvitationRequired)
		}

		invitation, err = repo.Invitation().GetByToken(ctx, nil, invitationToken)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return deny(DenialInvitationInvalid)
			}
			return nil, nil, fmt.Errorf("failed to get invitation: %w", err)
		}

		if invitation.ExamID != exam.ID {
			return deny(DenialInvitationInvalid)
		}
		if !invitation.MatchesUser(userID, user.Email) {
			return deny(DenialInvitationMismatch)
		}
		if invitation.IsExpired(now) {
			return deny(DenialInvitationExpired)
		}
		if invitation.IsUsed() {
			return deny(DenialInvitationUsed)
		}
	}

	decision := &AccessDecision{
		Allowed: true,
		Exam:    models.SummaryOf(exam),
	}
	return decision, invitation, nil
}
