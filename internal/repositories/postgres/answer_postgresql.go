package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
)

type AnswerPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

func (a *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// Create inserts the answer row. The unique (session_id, question_id) index
// makes concurrent duplicates surface as gorm.ErrDuplicatedKey.
func (a *AnswerPostgreSQL) Create(ctx context.Context, tx *gorm.DB, answer *models.ExamAnswer) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(answer).Error
}

func (a *AnswerPostgreSQL) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uint) ([]*models.ExamAnswer, error) {
	db := a.getDB(tx)
	var answers []*models.ExamAnswer
	if err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("answered_at ASC").
		Find(&answers).Error; err != nil {
		return nil, err
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) GetBySessionAndQuestion(ctx context.Context, tx *gorm.DB, sessionID, questionID uint) (*models.ExamAnswer, error) {
	db := a.getDB(tx)
	var answer models.ExamAnswer
	if err := db.WithContext(ctx).
		Where("session_id = ? AND question_id = ?", sessionID, questionID).
		First(&answer).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) CountBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (int64, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ExamAnswer{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

func (a *AnswerPostgreSQL) CountCorrectBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (int64, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ExamAnswer{}).
		Where("session_id = ? AND is_correct = ?", sessionID, true).
		Count(&count).Error
	return count, err
}
