package models

import (
	"time"

	"gorm.io/gorm"
)

type ExamStatus string

const (
	ExamDraft     ExamStatus = "draft"
	ExamPublished ExamStatus = "published"
	ExamArchived  ExamStatus = "archived"
)

type ExamCategory string

const (
	CategoryPractice    ExamCategory = "practice"
	CategoryTest        ExamCategory = "test"
	CategoryRecruitment ExamCategory = "recruitment"
	CategoryCompetition ExamCategory = "competition"
	CategoryChallenge   ExamCategory = "challenge"
)

// RequiresInvitation reports whether the category is invitation-gated.
// Recruitment and competition exams exempt the creator and administrators;
// challenge exams require a token from everyone.
func (c ExamCategory) RequiresInvitation() bool {
	return c == CategoryRecruitment || c == CategoryCompetition || c == CategoryChallenge
}

type Exam struct {
	ID          uint         `json:"id" gorm:"primaryKey"`
	Title       string       `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string      `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	Category    ExamCategory `json:"category" gorm:"not null;index" validate:"required,oneof=practice test recruitment competition challenge"`
	Subject     *string      `json:"subject" gorm:"size:100" validate:"omitempty,max=100"`
	Year        *int         `json:"year" validate:"omitempty,min=1900,max=2200"`

	// Duration in minutes; nil means untimed.
	Duration *int       `json:"duration" validate:"omitempty,min=1,max=600"`
	Status   ExamStatus `json:"status" gorm:"default:draft;index" validate:"omitempty,oneof=draft published archived"`

	// Visibility window, both optional.
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`

	// Default presentation settings for new sessions.
	ShuffleQuestions bool `json:"shuffle_questions" gorm:"not null;default:false"`
	ShuffleOptions   bool `json:"shuffle_options" gorm:"not null;default:false"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Questions   []ExamQuestion   `json:"questions" gorm:"foreignKey:ExamID"`
	Sessions    []ExamSession    `json:"sessions" gorm:"foreignKey:ExamID"`
	Invitations []ExamInvitation `json:"invitations" gorm:"foreignKey:ExamID"`
	Creator     User             `json:"creator" gorm:"foreignKey:CreatedBy"`

	// Computed fields (not stored)
	QuestionCount int `json:"question_count" gorm:"-"`
}

// ExamQuestion links a question into an exam's ordered pool.
type ExamQuestion struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	ExamID     uint `json:"exam_id" gorm:"not null;index;uniqueIndex:idx_exam_question"`
	QuestionID uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_exam_question"`
	Order      int  `json:"order" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Exam     Exam     `json:"exam" gorm:"foreignKey:ExamID"`
	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}

func (Exam) TableName() string {
	return "exams"
}

func (ExamQuestion) TableName() string {
	return "exam_questions"
}
