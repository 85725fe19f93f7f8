package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
)

type InvitationPostgreSQL struct {
	db *gorm.DB
}

func NewInvitationPostgreSQL(db *gorm.DB) repositories.InvitationRepository {
	return &InvitationPostgreSQL{db: db}
}

func (i *InvitationPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return i.db
}

func (i *InvitationPostgreSQL) Create(ctx context.Context, tx *gorm.DB, invitation *models.ExamInvitation) error {
	db := i.getDB(tx)
	return db.WithContext(ctx).Create(invitation).Error
}

func (i *InvitationPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, invitations []*models.ExamInvitation) error {
	if len(invitations) == 0 {
		return nil
	}
	db := i.getDB(tx)
	return db.WithContext(ctx).CreateInBatches(invitations, 100).Error
}

func (i *InvitationPostgreSQL) GetByToken(ctx context.Context, tx *gorm.DB, token string) (*models.ExamInvitation, error) {
	db := i.getDB(tx)
	var invitation models.ExamInvitation
	if err := db.WithContext(ctx).
		Where("token = ?", token).
		First(&invitation).Error; err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (i *InvitationPostgreSQL) ListByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.ExamInvitation, error) {
	db := i.getDB(tx)
	var invitations []*models.ExamInvitation
	if err := db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("created_at DESC").
		Find(&invitations).Error; err != nil {
		return nil, err
	}
	return invitations, nil
}

// ConsumeIfUnused spends the token with a conditional UPDATE so two racing
// session starts cannot both redeem it.
func (i *InvitationPostgreSQL) ConsumeIfUnused(ctx context.Context, tx *gorm.DB, id uint, usedAt time.Time) (bool, error) {
	db := i.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.ExamInvitation{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", usedAt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
