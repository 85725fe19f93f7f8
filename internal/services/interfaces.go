package services

import (
	"context"
	"time"

	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
	"github.com/examforge/exam-session-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use validator request types for the admin surface
type CreateExamRequest = validator.ExamCreateRequest
type UpdateExamRequest = validator.ExamUpdateRequest
type CreateQuestionRequest = validator.QuestionCreateRequest
type AddQuestionRequest = validator.ExamQuestionRequest
type CreateInvitationsRequest = validator.InvitationCreateRequest

// ===== ACCESS GATE DTOs =====

// Access denial reason codes returned to clients.
const (
	DenialExamNotFound       = "exam_not_found"
	DenialNotPublished       = "not_published"
	DenialNotStartedYet      = "not_started_yet"
	DenialWindowClosed       = "window_closed"
	DenialUserBanned         = "user_banned"
	DenialInvitationRequired = "invitation_required"
	DenialInvitationInvalid  = "invitation_invalid"
	DenialInvitationExpired  = "invitation_expired"
	DenialInvitationUsed     = "invitation_used"
	DenialInvitationMismatch = "invitation_mismatch"
)

// AccessDecision is the outcome of the side-effect-free access check.
type AccessDecision struct {
	Allowed      bool                `json:"allowed"`
	DenialReason string              `json:"denial_reason,omitempty"`
	Exam         *models.ExamSummary `json:"exam,omitempty"`
}

// ===== SESSION DTOs =====

type StartSessionRequest struct {
	ExamID          uint    `json:"exam_id" validate:"required"`
	InvitationToken *string `json:"invitation_token" validate:"omitempty,max=64"`

	// Optional overrides; defaults come from the exam definition.
	QuestionCount    *int  `json:"question_count" validate:"omitempty,min=1,max=500"`
	TimeLimit        *int  `json:"time_limit" validate:"omitempty,exam_duration"` // minutes
	ShuffleQuestions *bool `json:"shuffle_questions"`
	ShuffleOptions   *bool `json:"shuffle_options"`

	// Bot-verification challenge response, required when verification is enabled.
	BotToken string `json:"bot_token" validate:"omitempty,max=2048"`
}

type SessionResponse struct {
	*models.ExamSession
	RemainingSeconds    *int `json:"remaining_seconds"`
	SyncIntervalSeconds int  `json:"sync_interval_seconds"`
}

// StatusResponse is the polled session view. RemainingSeconds is nil for
// untimed sessions.
type StatusResponse struct {
	SessionID           uint                 `json:"session_id"`
	Status              models.SessionStatus `json:"status"`
	EndReason           *string              `json:"end_reason,omitempty"`
	RemainingSeconds    *int                 `json:"remaining_seconds"`
	AnsweredCount       int                  `json:"answered_count"`
	QuestionCount       int                  `json:"question_count"`
	ViolationCount      int                  `json:"violation_count"`
	SyncIntervalSeconds int                  `json:"sync_interval_seconds"`
}

// OptionForSession is an answer choice with the correctness flag stripped.
type OptionForSession struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

// QuestionForSession is the sanitized per-question view served during an
// active session. It never carries IsCorrect flags or explanations.
type QuestionForSession struct {
	Index      int                 `json:"index"`
	Total      int                 `json:"total"`
	QuestionID uint                `json:"question_id"`
	Type       models.QuestionType `json:"type"`
	Text       string              `json:"text"`
	ImageURL   *string             `json:"image_url,omitempty"`
	Points     int                 `json:"points"`
	TimeLimit  *int                `json:"time_limit,omitempty"` // seconds
	Options    []OptionForSession  `json:"options"`
	IsFirst    bool                `json:"is_first"`
	IsLast     bool                `json:"is_last"`
}

// ===== ANSWER DTOs =====

type SubmitAnswerRequest struct {
	QuestionID       uint    `json:"question_id" validate:"required"`
	SelectedOptionID *uint   `json:"selected_option_id"`
	TextAnswer       *string `json:"text_answer" validate:"omitempty,max=10000"`
	TimeSpent        *int    `json:"time_spent" validate:"omitempty,min=0"`
}

// AnswerFeedback acknowledges a recorded answer. Correctness fields are
// populated only for practice sessions; otherwise they stay nil.
type AnswerFeedback struct {
	Recorded        bool    `json:"recorded"`
	AnsweredCount   int     `json:"answered_count"`
	IsCorrect       *bool   `json:"is_correct,omitempty"`
	CorrectOptionID *uint   `json:"correct_option_id,omitempty"`
	Explanation     *string `json:"explanation,omitempty"`
}

// ===== VIOLATION DTOs =====

type TrackViolationRequest struct {
	Type       models.ViolationType   `json:"type" validate:"required,violation_type"`
	OccurredAt *time.Time             `json:"occurred_at"`
	Metadata   map[string]interface{} `json:"metadata" validate:"omitempty,max=20"`
}

type ViolationResponse struct {
	Recorded       bool `json:"recorded"`
	ViolationCount int  `json:"violation_count"`
	Remaining      int  `json:"remaining"`
	AutoSubmitted  bool `json:"auto_submitted"`
}

// ===== RESULTS DTOs =====

// AnswerResult is one graded question in the results breakdown.
type AnswerResult struct {
	QuestionID       uint                `json:"question_id"`
	Type             models.QuestionType `json:"type"`
	Text             string              `json:"text"`
	Points           int                 `json:"points"`
	SelectedOptionID *uint               `json:"selected_option_id"`
	TextAnswer       *string             `json:"text_answer,omitempty"`
	CorrectOptionID  *uint               `json:"correct_option_id,omitempty"`
	IsCorrect        *bool               `json:"is_correct"`
	Explanation      *string             `json:"explanation,omitempty"`
}

type ResultsResponse struct {
	SessionID      uint                 `json:"session_id"`
	ExamID         uint                 `json:"exam_id"`
	Status         models.SessionStatus `json:"status"`
	EndReason      *string              `json:"end_reason,omitempty"`
	Score          *float64             `json:"score"`
	CorrectCount   int                  `json:"correct_count"`
	AnsweredCount  int                  `json:"answered_count"`
	QuestionCount  int                  `json:"question_count"`
	ViolationCount int                  `json:"violation_count"`
	StartedAt      time.Time            `json:"started_at"`
	CompletedAt    *time.Time           `json:"completed_at"`

	// Per-question breakdown; included for practice sessions and privileged
	// viewers only.
	Breakdown []AnswerResult `json:"breakdown,omitempty"`
}

// ===== EXAM ADMIN DTOs =====

type ExamResponse struct {
	*models.Exam
	CanEdit bool `json:"can_edit"`
}

type ExamListResponse struct {
	Exams []*ExamResponse `json:"exams"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Size  int             `json:"size"`
}

// ===== SERVICE INTERFACES =====

// AccessService implements the access gate: read-only precondition checks.
type AccessService interface {
	// CheckAccess evaluates the access rules in order and returns the first
	// failure as a denial. It never mutates anything; tokens are not consumed.
	CheckAccess(ctx context.Context, examID uint, userID string, invitationToken string) (*AccessDecision, error)
}

// SessionService owns the session lifecycle: creation, status, questions,
// and every path that finalizes a session.
type SessionService interface {
	Start(ctx context.Context, req *StartSessionRequest, userID string) (*SessionResponse, error)
	GetStatus(ctx context.Context, sessionID uint, userID string) (*StatusResponse, error)
	GetQuestion(ctx context.Context, sessionID uint, index int, userID string) (*QuestionForSession, error)
	Complete(ctx context.Context, sessionID uint, userID string) (*ResultsResponse, error)
	Abandon(ctx context.Context, sessionID uint, userID string) error
	GetResults(ctx context.Context, sessionID uint, userID string) (*ResultsResponse, error)

	// List returns sessions visible to the caller; students see only their own.
	List(ctx context.Context, filters repositories.SessionFilters, userID string) ([]*models.ExamSession, int64, error)

	// HandleTimeout finalizes an expired session. Safe to call repeatedly;
	// only the first caller transitions it.
	HandleTimeout(ctx context.Context, sessionID uint) error

	// ForceSubmit completes an active session on the caller's behalf, e.g.
	// when the violation threshold is reached.
	ForceSubmit(ctx context.Context, sessionID uint, endReason string) error

	// SweepExpired finalizes up to limit expired sessions and returns how
	// many it transitioned.
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// AnswerService records answers.
type AnswerService interface {
	Submit(ctx context.Context, sessionID uint, req *SubmitAnswerRequest, userID string) (*AnswerFeedback, error)
}

// ViolationService tracks proctoring events and enforces the threshold.
type ViolationService interface {
	Track(ctx context.Context, sessionID uint, req *TrackViolationRequest, userID string) (*ViolationResponse, error)
	ListBySession(ctx context.Context, sessionID uint, userID string) ([]*models.ExamViolation, error)
}

// ExamService is the minimal authoring surface: enough to create and publish
// the exams sessions run against.
type ExamService interface {
	Create(ctx context.Context, req *CreateExamRequest, creatorID string) (*ExamResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*ExamResponse, error)
	Update(ctx context.Context, id uint, req *UpdateExamRequest, userID string) (*ExamResponse, error)
	Delete(ctx context.Context, id uint, userID string) error
	List(ctx context.Context, filters repositories.ExamFilters, userID string) (*ExamListResponse, error)

	Publish(ctx context.Context, id uint, userID string) error
	Archive(ctx context.Context, id uint, userID string) error

	AddQuestion(ctx context.Context, examID uint, req *AddQuestionRequest, userID string) error
	RemoveQuestion(ctx context.Context, examID, questionID uint, userID string) error

	CreateInvitations(ctx context.Context, examID uint, req *CreateInvitationsRequest, userID string) ([]*models.ExamInvitation, error)

	GetStats(ctx context.Context, examID uint, userID string) (*repositories.ExamStats, error)
}

// QuestionService manages the question pool.
type QuestionService interface {
	Create(ctx context.Context, req *CreateQuestionRequest, creatorID string) (*models.Question, error)
	GetByID(ctx context.Context, id uint, userID string) (*models.Question, error)
	Delete(ctx context.Context, id uint, userID string) error
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Access() AccessService
	Session() SessionService
	Answer() AnswerService
	Violation() ViolationService
	Exam() ExamService
	Question() QuestionService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
