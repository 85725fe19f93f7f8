package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
)

type ViolationPostgreSQL struct {
	db *gorm.DB
}

func NewViolationPostgreSQL(db *gorm.DB) repositories.ViolationRepository {
	return &ViolationPostgreSQL{db: db}
}

func (v *ViolationPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return v.db
}

func (v *ViolationPostgreSQL) Create(ctx context.Context, tx *gorm.DB, violation *models.ExamViolation) error {
	db := v.getDB(tx)
	return db.WithContext(ctx).Create(violation).Error
}

func (v *ViolationPostgreSQL) GetBySession(ctx context.Context, tx *gorm.DB, sessionID uint) ([]*models.ExamViolation, error) {
	db := v.getDB(tx)
	var violations []*models.ExamViolation
	if err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&violations).Error; err != nil {
		return nil, err
	}
	return violations, nil
}

func (v *ViolationPostgreSQL) CountBySession(ctx context.Context, tx *gorm.DB, sessionID uint) (int64, error) {
	db := v.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.ExamViolation{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}
