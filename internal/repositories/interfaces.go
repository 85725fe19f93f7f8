package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/examforge/exam-session-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type ExamFilters struct {
	Status    *models.ExamStatus   `json:"status"`
	Category  *models.ExamCategory `json:"category"`
	CreatedBy *string              `json:"created_by"`
	DateFrom  *time.Time           `json:"date_from"`
	DateTo    *time.Time           `json:"date_to"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
	SortBy    string               `json:"sort_by"`
	SortOrder string               `json:"sort_order"`
}

type SessionFilters struct {
	Status   *models.SessionStatus `json:"status"`
	UserID   *string               `json:"user_id"`
	ExamID   *uint                 `json:"exam_id"`
	DateFrom *time.Time            `json:"date_from"`
	DateTo   *time.Time            `json:"date_to"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
	SortBy   string                `json:"sort_by"`
	SortOrder string               `json:"sort_order"`
}

// ===== STATISTICS STRUCTS =====

type ExamStats struct {
	TotalSessions     int     `json:"total_sessions"`
	CompletedSessions int     `json:"completed_sessions"`
	AverageScore      float64 `json:"average_score"`
	QuestionCount     int     `json:"question_count"`
}

// ===== ENTITY REPOSITORIES =====

// ExamRepository persists exam definitions and their question assignments.
type ExamRepository interface {
	Create(ctx context.Context, tx *gorm.DB, exam *models.Exam) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error)
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error)
	Update(ctx context.Context, tx *gorm.DB, exam *models.Exam) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	List(ctx context.Context, tx *gorm.DB, filters ExamFilters) ([]*models.Exam, int64, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.ExamStatus) error

	AddQuestion(ctx context.Context, tx *gorm.DB, link *models.ExamQuestion) error
	RemoveQuestion(ctx context.Context, tx *gorm.DB, examID, questionID uint) error
	GetQuestionIDs(ctx context.Context, tx *gorm.DB, examID uint) ([]uint, error)
	CountQuestions(ctx context.Context, tx *gorm.DB, examID uint) (int64, error)

	GetStats(ctx context.Context, tx *gorm.DB, examID uint) (*ExamStats, error)
}

// QuestionRepository persists questions and options. Implementations decode
// at-rest encrypted text transparently on reads.
type QuestionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	GetByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.Question, error)
}

// SessionRepository persists exam sessions. The conditional and atomic
// operations are the storage half of the engine's concurrency guarantees.
type SessionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, session *models.ExamSession) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamSession, error)
	GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamSession, error)
	Update(ctx context.Context, tx *gorm.DB, session *models.ExamSession) error

	List(ctx context.Context, tx *gorm.DB, filters SessionFilters) ([]*models.ExamSession, int64, error)

	// UpdateStatusIf applies updates only when the session still has the
	// expected status. Returns false when another writer finalized first.
	UpdateStatusIf(ctx context.Context, tx *gorm.DB, id uint, expected models.SessionStatus, updates map[string]interface{}) (bool, error)

	// IncrementAnsweredCount and IncrementViolationCount atomically bump the
	// counter and return the post-increment value.
	IncrementAnsweredCount(ctx context.Context, tx *gorm.DB, id uint) (int, error)
	IncrementViolationCount(ctx context.Context, tx *gorm.DB, id uint) (int, error)

	CountActiveByUser(ctx context.Context, tx *gorm.DB, userID string) (int64, error)
	GetActiveByUserAndExam(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamSession, error)

	// GetExpiredActive returns active sessions whose deadline has passed,
	// for the background sweeper.
	GetExpiredActive(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.ExamSession, error)
}

// AnswerRepository persists submitted answers. Create surfaces
// gorm.ErrDuplicatedKey when the (session, question) pair already exists.
type AnswerRepository interface {
	Create(ctx context.Context, tx *gorm.DB, answer *models.ExamAnswer) error
	GetBySession(ctx context.Context, tx *gorm.DB, sessionID uint) ([]*models.ExamAnswer, error)
	GetBySessionAndQuestion(ctx context.Context, tx *gorm.DB, sessionID, questionID uint) (*models.ExamAnswer, error)
	CountBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (int64, error)
	CountCorrectBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (int64, error)
}

// ViolationRepository persists the append-only proctoring log.
type ViolationRepository interface {
	Create(ctx context.Context, tx *gorm.DB, violation *models.ExamViolation) error
	GetBySession(ctx context.Context, tx *gorm.DB, sessionID uint) ([]*models.ExamViolation, error)
	CountBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (int64, error)
}

// InvitationRepository persists single-use invitation tokens.
type InvitationRepository interface {
	Create(ctx context.Context, tx *gorm.DB, invitation *models.ExamInvitation) error
	CreateBatch(ctx context.Context, tx *gorm.DB, invitations []*models.ExamInvitation) error
	GetByToken(ctx context.Context, tx *gorm.DB, token string) (*models.ExamInvitation, error)
	ListByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.ExamInvitation, error)

	// ConsumeIfUnused marks the invitation used only when no other session
	// consumed it first. Returns false when the token was already spent.
	ConsumeIfUnused(ctx context.Context, tx *gorm.DB, id uint, usedAt time.Time) (bool, error)
}
