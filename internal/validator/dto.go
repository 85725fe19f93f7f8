package validator

import (
	"time"

	"github.com/examforge/exam-session-service/internal/models"
)

// ExamCreateRequest is the admin-facing payload for creating an exam
type ExamCreateRequest struct {
	Title            string              `json:"title" validate:"required,exam_title"`
	Description      string              `json:"description" validate:"omitempty,max=2000"`
	Category         models.ExamCategory `json:"category" validate:"required,exam_category"`
	Duration         *int                `json:"duration" validate:"omitempty,exam_duration"`
	StartDate        *time.Time          `json:"start_date"`
	EndDate          *time.Time          `json:"end_date" validate:"omitempty,future_date"`
	ShuffleQuestions *bool               `json:"shuffle_questions"`
	ShuffleOptions   *bool               `json:"shuffle_options"`
}

// ExamUpdateRequest is the admin-facing payload for updating a draft exam
type ExamUpdateRequest struct {
	Title            *string    `json:"title" validate:"omitempty,exam_title"`
	Description      *string    `json:"description" validate:"omitempty,max=2000"`
	Duration         *int       `json:"duration" validate:"omitempty,exam_duration"`
	StartDate        *time.Time `json:"start_date"`
	EndDate          *time.Time `json:"end_date" validate:"omitempty,future_date"`
	ShuffleQuestions *bool      `json:"shuffle_questions"`
	ShuffleOptions   *bool      `json:"shuffle_options"`
}

// QuestionOptionRequest is one choice of a new question
type QuestionOptionRequest struct {
	Text      string `json:"text" validate:"required,min=1,max=1000"`
	IsCorrect bool   `json:"is_correct"`
	Order     int    `json:"order" validate:"min=0"`
}

// QuestionCreateRequest is the admin-facing payload for creating a question
type QuestionCreateRequest struct {
	Type        models.QuestionType     `json:"type" validate:"required,question_type"`
	Text        string                  `json:"text" validate:"required,min=1,max=4000"`
	ImageURL    string                  `json:"image_url" validate:"omitempty,url,max=500"`
	Points      int                     `json:"points" validate:"required,points_range"`
	TimeLimit   *int                    `json:"time_limit" validate:"omitempty,min=5,max=3600"`
	Explanation string                  `json:"explanation" validate:"omitempty,max=2000"`
	Options     []QuestionOptionRequest `json:"options" validate:"omitempty,max=10,dive"`
}

// ExamQuestionRequest attaches an existing question to an exam
type ExamQuestionRequest struct {
	QuestionID uint `json:"question_id" validate:"required"`
	Order      int  `json:"order" validate:"required,min=1"`
}

// InvitationCreateRequest mints invitation tokens for a restricted exam
type InvitationCreateRequest struct {
	UserID    string     `json:"user_id" validate:"omitempty,max=100"`
	Email     string     `json:"email" validate:"omitempty,email"`
	ExpiresAt *time.Time `json:"expires_at" validate:"omitempty,future_date"`
	Count     int        `json:"count" validate:"omitempty,min=1,max=100"`
}
