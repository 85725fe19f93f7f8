package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
	"github.com/examforge/exam-session-service/internal/validator"
)

type questionService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
}

func NewQuestionService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator) QuestionService {
	return &questionService{
		repo:      repo,
		logger:    logger,
		validator: validator,
	}
}

func (s *questionService) Create(ctx context.Context, req *CreateQuestionRequest, creatorID string) (*models.Question, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if req.Type.IsAutoGradable() && countCorrectOptions(req.Options) != 1 {
		return nil, validator.NewBusinessRuleError("invalid_options", "gradable questions need exactly one correct option")
	}

	question := &models.Question{
		Type:      req.Type,
		Text:      req.Text,
		Points:    req.Points,
		TimeLimit: req.TimeLimit,
		CreatedBy: creatorID,
	}
	if req.ImageURL != "" {
		question.ImageURL = &req.ImageURL
	}
	if req.Explanation != "" {
		question.Explanation = &req.Explanation
	}
	for _, opt := range req.Options {
		question.Options = append(question.Options, models.QuestionOption{
			Text:      opt.Text,
			IsCorrect: opt.IsCorrect,
			Order:     opt.Order,
		})
	}

	if err := s.repo.Question().Create(ctx, nil, question); err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	s.logger.Info("Question created",
		"question_id", question.ID,
		"type", question.Type,
		"created_by", creatorID)

	return question, nil
}

func (s *questionService) GetByID(ctx context.Context, id uint, userID string) (*models.Question, error) {
	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	// Full question rows carry answers; only editors may read them.
	if question.CreatedBy != userID {
		user, err := s.repo.User().GetByID(ctx, userID)
		if err != nil || !user.IsPrivileged() {
			return nil, NewPermissionError(userID, id, "question", "read", "not the question creator")
		}
	}

	return question, nil
}

func (s *questionService) Delete(ctx context.Context, id uint, userID string) error {
	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to get question: %w", err)
	}

	if question.CreatedBy != userID {
		user, err := s.repo.User().GetByID(ctx, userID)
		if err != nil || !user.IsPrivileged() {
			return NewPermissionError(userID, id, "question", "delete", "not the question creator")
		}
	}

	if err := s.repo.Question().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}

	s.logger.Info("Question deleted", "question_id", id, "user_id", userID)
	return nil
}

func countCorrectOptions(options []validator.QuestionOptionRequest) int {
	n := 0
	for _, opt := range options {
		if opt.IsCorrect {
			n++
		}
	}
	return n
}
