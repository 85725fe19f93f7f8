package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/examforge/exam-session-service/internal/events"
	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
	"github.com/examforge/exam-session-service/internal/validator"
)

// Invitations without an explicit expiry stay redeemable for a week.
const defaultInvitationTTL = 7 * 24 * time.Hour

// examService is the authoring surface: creating, publishing, and populating
// the exams that sessions run against.
type examService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	clock     Clock
}

func NewExamService(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	validator *validator.Validator,
	publisher events.EventPublisher,
	clock Clock,
) ExamService {
	return &examService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		clock:     clock,
	}
}

func (s *examService) Create(ctx context.Context, req *CreateExamRequest, creatorID string) (*ExamResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	exam := &models.Exam{
		Title:     strings.TrimSpace(req.Title),
		Category:  req.Category,
		Duration:  req.Duration,
		Status:    models.ExamDraft,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		CreatedBy: creatorID,
	}
	if req.Description != "" {
		exam.Description = &req.Description
	}
	if req.ShuffleQuestions != nil {
		exam.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.ShuffleOptions != nil {
		exam.ShuffleOptions = *req.ShuffleOptions
	}

	if err := s.repo.Exam().Create(ctx, nil, exam); err != nil {
		return nil, fmt.Errorf("failed to create exam: %w", err)
	}

	s.logger.Info("Exam created",
		"exam_id", exam.ID,
		"title", exam.Title,
		"category", exam.Category,
		"created_by", creatorID)

	return &ExamResponse{Exam: exam, CanEdit: true}, nil
}

func (s *examService) GetByID(ctx context.Context, id uint, userID string) (*ExamResponse, error) {
	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	canEdit := exam.CreatedBy == userID
	if !canEdit {
		user, err := s.repo.User().GetByID(ctx, userID)
		canEdit = err == nil && user.IsPrivileged()
	}

	// Drafts are visible to their editors only.
	if exam.Status == models.ExamDraft && !canEdit {
		return nil, ErrExamNotFound
	}

	return &ExamResponse{Exam: exam, CanEdit: canEdit}, nil
}

func (s *examService) Update(ctx context.Context, id uint, req *UpdateExamRequest, userID string) (*ExamResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	exam, err := s.getEditableExam(ctx, id, userID, "update")
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		exam.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		exam.Description = req.Description
	}
	if req.Duration != nil {
		exam.Duration = req.Duration
	}
	if req.StartDate != nil {
		exam.StartDate = req.StartDate
	}
	if req.EndDate != nil {
		exam.EndDate = req.EndDate
	}
	if req.ShuffleQuestions != nil {
		exam.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.ShuffleOptions != nil {
		exam.ShuffleOptions = *req.ShuffleOptions
	}

	if err := s.repo.Exam().Update(ctx, nil, exam); err != nil {
		return nil, fmt.Errorf("failed to update exam: %w", err)
	}

	s.logger.Info("Exam updated", "exam_id", id, "user_id", userID)

	return &ExamResponse{Exam: exam, CanEdit: true}, nil
}

func (s *examService) Delete(ctx context.Context, id uint, userID string) error {
	if _, err := s.getEditableExam(ctx, id, userID, "delete"); err != nil {
		return err
	}

	if err := s.repo.Exam().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete exam: %w", err)
	}

	s.logger.Info("Exam deleted", "exam_id", id, "user_id", userID)
	return nil
}

func (s *examService) List(ctx context.Context, filters repositories.ExamFilters, userID string) (*ExamListResponse, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	// Non-privileged callers see published exams plus their own drafts. The
	// simple cut: restrict the listing to published unless they filter to
	// their own.
	if !user.IsPrivileged() {
		if filters.CreatedBy == nil || *filters.CreatedBy != userID {
			published := models.ExamPublished
			filters.Status = &published
		}
	}

	exams, total, err := s.repo.Exam().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}

	responses := make([]*ExamResponse, len(exams))
	for i, exam := range exams {
		responses[i] = &ExamResponse{
			Exam:    exam,
			CanEdit: user.IsPrivileged() || exam.CreatedBy == userID,
		}
	}

	page := 1
	size := filters.Limit
	if size > 0 {
		page = filters.Offset/size + 1
	}
	return &ExamListResponse{Exams: responses, Total: total, Page: page, Size: size}, nil
}

func (s *examService) Publish(ctx context.Context, id uint, userID string) error {
	exam, err := s.getEditableExam(ctx, id, userID, "publish")
	if err != nil {
		return err
	}

	// An exam with no questions cannot produce a session.
	count, err := s.repo.Exam().CountQuestions(ctx, nil, id)
	if err != nil {
		return fmt.Errorf("failed to count questions: %w", err)
	}
	if count == 0 {
		return validator.NewBusinessRuleError("exam_empty", "exam has no questions")
	}

	if err := s.repo.Exam().UpdateStatus(ctx, nil, id, models.ExamPublished); err != nil {
		return fmt.Errorf("failed to publish exam: %w", err)
	}

	s.logger.Info("Exam published", "exam_id", id, "user_id", userID)

	if s.publisher != nil {
		event := events.NewEvent(events.EventExamPublished, events.ExamEventData{
			ExamID:    exam.ID,
			Title:     exam.Title,
			Category:  string(exam.Category),
			CreatedBy: exam.CreatedBy,
		})
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Error("Failed to publish exam event", "exam_id", id, "error", err)
		}
	}
	return nil
}

func (s *examService) Archive(ctx context.Context, id uint, userID string) error {
	if _, err := s.getEditableExam(ctx, id, userID, "archive"); err != nil {
		return err
	}

	if err := s.repo.Exam().UpdateStatus(ctx, nil, id, models.ExamArchived); err != nil {
		return fmt.Errorf("failed to archive exam: %w", err)
	}

	s.logger.Info("Exam archived", "exam_id", id, "user_id", userID)
	return nil
}

func (s *examService) AddQuestion(ctx context.Context, examID uint, req *AddQuestionRequest, userID string) error {
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if _, err := s.getEditableExam(ctx, examID, userID, "add question"); err != nil {
		return err
	}

	if _, err := s.repo.Question().GetByID(ctx, nil, req.QuestionID); err != nil {
		if repositories.IsNotFoundError(err) {
			return validator.NewBusinessRuleError("question_not_found", "question does not exist")
		}
		return fmt.Errorf("failed to get question: %w", err)
	}

	link := &models.ExamQuestion{
		ExamID:     examID,
		QuestionID: req.QuestionID,
		Order:      req.Order,
	}
	if err := s.repo.Exam().AddQuestion(ctx, nil, link); err != nil {
		if repositories.IsDuplicateError(err) {
			return validator.NewBusinessRuleError("question_already_added", "question is already part of this exam")
		}
		return fmt.Errorf("failed to add question: %w", err)
	}
	return nil
}

func (s *examService) RemoveQuestion(ctx context.Context, examID, questionID uint, userID string) error {
	if _, err := s.getEditableExam(ctx, examID, userID, "remove question"); err != nil {
		return err
	}

	if err := s.repo.Exam().RemoveQuestion(ctx, nil, examID, questionID); err != nil {
		return fmt.Errorf("failed to remove question: %w", err)
	}
	return nil
}

func (s *examService) CreateInvitations(ctx context.Context, examID uint, req *CreateInvitationsRequest, userID string) ([]*models.ExamInvitation, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if _, err := s.getEditableExam(ctx, examID, userID, "create invitations"); err != nil {
		return nil, err
	}

	count := req.Count
	if count == 0 {
		count = 1
	}

	expiresAt := s.clock.Now().Add(defaultInvitationTTL)
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}

	invitations := make([]*models.ExamInvitation, count)
	for i := range invitations {
		inv := &models.ExamInvitation{
			Token:     strings.ReplaceAll(uuid.NewString(), "-", ""),
			ExamID:    examID,
			ExpiresAt: expiresAt,
			CreatedBy: userID,
		}
		if req.UserID != "" {
			inv.UserID = &req.UserID
		}
		if req.Email != "" {
			inv.Email = &req.Email
		}
		invitations[i] = inv
	}

	if err := s.repo.Invitation().CreateBatch(ctx, nil, invitations); err != nil {
		return nil, fmt.Errorf("failed to create invitations: %w", err)
	}

	s.logger.Info("Invitations created",
		"exam_id", examID,
		"count", count,
		"created_by", userID)

	return invitations, nil
}

func (s *examService) GetStats(ctx context.Context, examID uint, userID string) (*repositories.ExamStats, error) {
	if _, err := s.getEditableExam(ctx, examID, userID, "view stats"); err != nil {
		return nil, err
	}
	return s.repo.Exam().GetStats(ctx, nil, examID)
}

// getEditableExam loads the exam and verifies the caller may modify it:
// the creator or a privileged role.
func (s *examService) getEditableExam(ctx context.Context, id uint, userID, action string) (*models.Exam, error) {
	exam, err := s.repo.Exam().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if exam.CreatedBy == userID {
		return exam, nil
	}

	user, err := s.repo.User().GetByID(ctx, userID)
	if err == nil && user.IsPrivileged() {
		return exam, nil
	}

	return nil, NewPermissionError(userID, id, "exam", action, "not the exam creator")
}
