package models

import (
	"time"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	Essay          QuestionType = "essay"
	FillInBlank    QuestionType = "fill_in_blank"
)

// IsAutoGradable reports whether correctness can be computed from stored options.
func (t QuestionType) IsAutoGradable() bool {
	return t == MultipleChoice || t == TrueFalse
}

type Question struct {
	ID   uint         `json:"id" gorm:"primaryKey"`
	Type QuestionType `json:"type" gorm:"not null;index" validate:"required,oneof=multiple_choice true_false essay fill_in_blank"`

	// Text may be stored encrypted at rest (codec-prefixed); repositories always
	// hand the decoded plaintext to callers.
	Text     string  `json:"text" gorm:"type:text;not null" validate:"required"`
	ImageURL *string `json:"image_url" gorm:"size:500"`

	Points    int  `json:"points" gorm:"default:10" validate:"min=1,max=100"`
	TimeLimit *int `json:"time_limit" validate:"omitempty,min=5,max=3600"` // per-question limit in seconds, optional

	Explanation *string `json:"explanation" gorm:"type:text" validate:"omitempty,max=1000"`

	// Metadata
	CreatedBy string    `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Options []QuestionOption `json:"options" gorm:"foreignKey:QuestionID"`
	Creator User             `json:"creator" gorm:"foreignKey:CreatedBy"`
}

type QuestionOption struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Text       string `json:"text" gorm:"type:text;not null" validate:"required"`
	IsCorrect  bool   `json:"is_correct" gorm:"not null;default:false"`
	Order      int    `json:"order" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}

func (Question) TableName() string {
	return "questions"
}

func (QuestionOption) TableName() string {
	return "question_options"
}

// CorrectOption returns the first option flagged correct, or nil.
// Correctness evaluation assumes a single correct option for gradable types.
func (q *Question) CorrectOption() *QuestionOption {
	for i := range q.Options {
		if q.Options[i].IsCorrect {
			return &q.Options[i]
		}
	}
	return nil
}
