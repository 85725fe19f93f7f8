package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
	SessionAbandoned SessionStatus = "abandoned"
)

// IsTerminal reports whether no further transition may leave the status.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionExpired || s == SessionAbandoned
}

const (
	SessionEndReasonCompleted      = "completed"
	SessionEndReasonTimeout        = "time_out"
	SessionEndReasonViolationLimit = "violation_limit"
	SessionEndReasonAbandoned      = "abandoned"
)

// ExamSession is one user's attempt at an exam. The question order is pinned
// at creation and never re-derived; StartedAt is the server clock at creation
// and is the sole basis for expiry together with TimeLimit.
type ExamSession struct {
	ID       uint         `json:"id" gorm:"primaryKey"`
	ExamID   uint         `json:"exam_id" gorm:"not null;index"`
	UserID   string       `json:"user_id" gorm:"not null;index;size:255"`
	Category ExamCategory `json:"category" gorm:"not null;size:32"` // copied from the exam at creation

	// Timing
	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	CompletedAt *time.Time `json:"completed_at"`
	TimeLimit   *int       `json:"time_limit"` // minutes; nil means untimed

	// Attempt shape
	QuestionCount    int  `json:"question_count" gorm:"not null"`
	ShuffleQuestions bool `json:"shuffle_questions" gorm:"not null;default:false"`
	ShuffleOptions   bool `json:"shuffle_options" gorm:"not null;default:false"`

	// Pinned question order: JSON array of question ids, length = QuestionCount.
	QuestionOrder datatypes.JSON `json:"question_order" gorm:"type:jsonb;not null"`

	// Progress counters, updated only via atomic increments.
	AnsweredCount  int `json:"answered_count" gorm:"not null;default:0"`
	ViolationCount int `json:"violation_count" gorm:"not null;default:0"`

	Status    SessionStatus `json:"status" gorm:"default:active;index"`
	Score     *float64      `json:"score"`
	EndReason *string       `json:"end_reason" gorm:"size:32"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam       Exam            `json:"exam" gorm:"foreignKey:ExamID"`
	User       User            `json:"user" gorm:"foreignKey:UserID"`
	Answers    []ExamAnswer    `json:"answers" gorm:"foreignKey:SessionID"`
	Violations []ExamViolation `json:"violations" gorm:"foreignKey:SessionID"`
}

// PinnedOrder decodes the immutable question id sequence fixed at creation.
func (s *ExamSession) PinnedOrder() ([]uint, error) {
	var order []uint
	if err := json.Unmarshal(s.QuestionOrder, &order); err != nil {
		return nil, err
	}
	return order, nil
}

// SetPinnedOrder encodes the question id sequence. Called only at creation.
func (s *ExamSession) SetPinnedOrder(order []uint) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	s.QuestionOrder = data
	s.QuestionCount = len(order)
	return nil
}

// ExamAnswer is the single answer recorded for a (session, question) pair.
// The composite unique index is the store-level duplicate guard; rows are
// never mutated after creation.
type ExamAnswer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	SessionID  uint `json:"session_id" gorm:"not null;index;uniqueIndex:idx_session_question"`
	QuestionID uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_session_question"`

	SelectedOptionID *uint   `json:"selected_option_id"`
	TextAnswer       *string `json:"text_answer" gorm:"type:text"`

	// nil when the question type is not machine-gradable.
	IsCorrect *bool `json:"is_correct"`

	TimeSpent  int       `json:"time_spent"` // seconds, client-reported, informational only
	AnsweredAt time.Time `json:"answered_at" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Session  ExamSession `json:"session" gorm:"foreignKey:SessionID"`
	Question Question    `json:"question" gorm:"foreignKey:QuestionID"`
}

type ViolationType string

const (
	ViolationTabSwitch      ViolationType = "tab_switch"
	ViolationWindowBlur     ViolationType = "window_blur"
	ViolationCopyAttempt    ViolationType = "copy_attempt"
	ViolationPasteAttempt   ViolationType = "paste_attempt"
	ViolationFullscreenExit ViolationType = "fullscreen_exit"
)

// ExamViolation is an append-only integrity event record.
type ExamViolation struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	SessionID uint          `json:"session_id" gorm:"not null;index"`
	Type      ViolationType `json:"type" gorm:"not null;index;size:32"`

	// Client-reported timestamp; informational, never used for expiry.
	OccurredAt time.Time      `json:"occurred_at" gorm:"not null"`
	Metadata   datatypes.JSON `json:"metadata" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Session ExamSession `json:"session" gorm:"foreignKey:SessionID"`
}

func (ExamSession) TableName() string {
	return "exam_sessions"
}

func (ExamAnswer) TableName() string {
	return "exam_answers"
}

func (ExamViolation) TableName() string {
	return "exam_violations"
}
