package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/examforge/exam-session-service/internal/cache"
	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
)

type SessionPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewSessionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.SessionRepository {
	return &SessionPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (s *SessionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *SessionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, session *models.ExamSession) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Create(session).Error
}

func (s *SessionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamSession, error) {
	db := s.getDB(tx)
	var session models.ExamSession
	if err := db.WithContext(ctx).First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionPostgreSQL) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamSession, error) {
	db := s.getDB(tx)
	var session models.ExamSession
	if err := db.WithContext(ctx).
		Preload("Answers").
		First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SessionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, session *models.ExamSession) error {
	db := s.getDB(tx)
	if err := db.WithContext(ctx).Save(session).Error; err != nil {
		return err
	}
	s.cacheManager.InvalidateSessionCache(ctx, session.ID, session.UserID, "session_update")
	return nil
}

func (s *SessionPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.SessionFilters) ([]*models.ExamSession, int64, error) {
	db := s.getDB(tx)
	var sessions []*models.ExamSession
	var total int64

	query := db.WithContext(ctx).Model(&models.ExamSession{})
	query = s.helpers.ApplySessionFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = s.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&sessions).Error; err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

// UpdateStatusIf is the single-winner finalize primitive: a conditional UPDATE
// whose row count tells the caller whether it won the transition.
func (s *SessionPostgreSQL) UpdateStatusIf(ctx context.Context, tx *gorm.DB, id uint, expected models.SessionStatus, updates map[string]interface{}) (bool, error) {
	db := s.getDB(tx)

	result := db.WithContext(ctx).
		Model(&models.ExamSession{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}

	won := result.RowsAffected > 0
	if won {
		s.invalidate(ctx, id)
	}
	return won, nil
}

func (s *SessionPostgreSQL) IncrementAnsweredCount(ctx context.Context, tx *gorm.DB, id uint) (int, error) {
	return s.incrementCounter(ctx, tx, id, "answered_count")
}

func (s *SessionPostgreSQL) IncrementViolationCount(ctx context.Context, tx *gorm.DB, id uint) (int, error) {
	return s.incrementCounter(ctx, tx, id, "violation_count")
}

// incrementCounter bumps the column atomically and reads the new value back
// in one round trip via RETURNING.
func (s *SessionPostgreSQL) incrementCounter(ctx context.Context, tx *gorm.DB, id uint, column string) (int, error) {
	db := s.getDB(tx)

	var session models.ExamSession
	result := db.WithContext(ctx).
		Model(&session).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: column}}}).
		Where("id = ?", id).
		Update(column, gorm.Expr(column+" + 1"))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}

	s.invalidate(ctx, id)

	switch column {
	case "answered_count":
		return session.AnsweredCount, nil
	case "violation_count":
		return session.ViolationCount, nil
	default:
		return 0, fmt.Errorf("unknown counter column %q", column)
	}
}

func (s *SessionPostgreSQL) CountActiveByUser(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	db := s.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ExamSession{}).
		Where("user_id = ? AND status = ?", userID, models.SessionActive).
		Count(&count).Error
	return count, err
}

func (s *SessionPostgreSQL) GetActiveByUserAndExam(ctx context.Context, tx *gorm.DB, userID string, examID uint) (*models.ExamSession, error) {
	db := s.getDB(tx)
	var session models.ExamSession
	if err := db.WithContext(ctx).
		Where("user_id = ? AND exam_id = ? AND status = ?", userID, examID, models.SessionActive).
		First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// GetExpiredActive finds timed sessions whose deadline has been reached.
// Untimed sessions (time_limit IS NULL) never match.
func (s *SessionPostgreSQL) GetExpiredActive(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.ExamSession, error) {
	db := s.getDB(tx)
	var sessions []*models.ExamSession
	query := db.WithContext(ctx).
		Where("status = ? AND time_limit IS NOT NULL", models.SessionActive).
		Where("started_at + (time_limit * interval '1 minute') <= ?", now).
		Order("started_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *SessionPostgreSQL) invalidate(ctx context.Context, id uint) {
	// UserID is not always at hand on counter paths; pattern covers the session keys.
	s.cacheManager.Session.SafeInvalidatePattern(ctx, fmt.Sprintf("%d*", id), "session_mutation")
}
