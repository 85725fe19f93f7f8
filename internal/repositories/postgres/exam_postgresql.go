package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/examforge/exam-session-service/internal/cache"
	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
)

type ExamPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewExamPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.ExamRepository {
	return &ExamPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (e *ExamPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return e.db
}

func (e *ExamPostgreSQL) Create(ctx context.Context, tx *gorm.DB, exam *models.Exam) error {
	db := e.getDB(tx)
	return db.WithContext(ctx).Create(exam).Error
}

func (e *ExamPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	db := e.getDB(tx)
	cacheKey := fmt.Sprintf("%d", id)
	var exam models.Exam

	err := e.cacheManager.Exam.CacheOrExecute(ctx, cacheKey, &exam, cache.ExamCacheConfig.TTL, func() (interface{}, error) {
		var dbExam models.Exam
		if err := db.WithContext(ctx).First(&dbExam, id).Error; err != nil {
			return nil, err
		}
		return &dbExam, nil
	})

	if err != nil {
		return nil, err
	}
	return &exam, nil
}

func (e *ExamPostgreSQL) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Exam, error) {
	db := e.getDB(tx)
	var exam models.Exam
	if err := db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("exam_questions.\"order\" ASC")
		}).
		Preload("Questions.Question").
		Preload("Questions.Question.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_options.\"order\" ASC")
		}).
		First(&exam, id).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

func (e *ExamPostgreSQL) Update(ctx context.Context, tx *gorm.DB, exam *models.Exam) error {
	db := e.getDB(tx)
	if err := db.WithContext(ctx).Save(exam).Error; err != nil {
		return err
	}
	e.cacheManager.InvalidateExamCache(ctx, exam.ID, "exam_update")
	return nil
}

func (e *ExamPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := e.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.Exam{}, id).Error; err != nil {
		return err
	}
	e.cacheManager.InvalidateExamCache(ctx, id, "exam_delete")
	return nil
}

func (e *ExamPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	db := e.getDB(tx)
	var exams []*models.Exam
	var total int64

	query := db.WithContext(ctx).Model(&models.Exam{})
	query = e.helpers.ApplyExamFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = e.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&exams).Error; err != nil {
		return nil, 0, err
	}

	return exams, total, nil
}

func (e *ExamPostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.ExamStatus) error {
	db := e.getDB(tx)
	if err := db.WithContext(ctx).
		Model(&models.Exam{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return err
	}
	e.cacheManager.InvalidateExamCache(ctx, id, "exam_status_update")
	return nil
}

func (e *ExamPostgreSQL) AddQuestion(ctx context.Context, tx *gorm.DB, link *models.ExamQuestion) error {
	db := e.getDB(tx)
	if err := db.WithContext(ctx).Create(link).Error; err != nil {
		return err
	}
	e.cacheManager.InvalidateExamCache(ctx, link.ExamID, "exam_question_add")
	return nil
}

func (e *ExamPostgreSQL) RemoveQuestion(ctx context.Context, tx *gorm.DB, examID, questionID uint) error {
	db := e.getDB(tx)
	if err := db.WithContext(ctx).
		Where("exam_id = ? AND question_id = ?", examID, questionID).
		Delete(&models.ExamQuestion{}).Error; err != nil {
		return err
	}
	e.cacheManager.InvalidateExamCache(ctx, examID, "exam_question_remove")
	return nil
}

func (e *ExamPostgreSQL) GetQuestionIDs(ctx context.Context, tx *gorm.DB, examID uint) ([]uint, error) {
	db := e.getDB(tx)
	var ids []uint
	if err := db.WithContext(ctx).
		Model(&models.ExamQuestion{}).
		Where("exam_id = ?", examID).
		Order("\"order\" ASC").
		Pluck("question_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (e *ExamPostgreSQL) CountQuestions(ctx context.Context, tx *gorm.DB, examID uint) (int64, error) {
	db := e.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ExamQuestion{}).
		Where("exam_id = ?", examID).
		Count(&count).Error
	return count, err
}

func (e *ExamPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, examID uint) (*repositories.ExamStats, error) {
	db := e.getDB(tx)
	stats := &repositories.ExamStats{}

	var totals struct {
		Total     int64
		Completed int64
		AvgScore  *float64
	}
	if err := db.WithContext(ctx).
		Model(&models.ExamSession{}).
		Select("COUNT(*) as total, COUNT(*) FILTER (WHERE status = ?) as completed, AVG(score) as avg_score", models.SessionCompleted).
		Where("exam_id = ?", examID).
		Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("failed to get exam stats: %w", err)
	}

	stats.TotalSessions = int(totals.Total)
	stats.CompletedSessions = int(totals.Completed)
	if totals.AvgScore != nil {
		stats.AverageScore = *totals.AvgScore
	}

	questionCount, err := e.CountQuestions(ctx, tx, examID)
	if err != nil {
		return nil, err
	}
	stats.QuestionCount = int(questionCount)

	return stats, nil
}
