package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/examforge/exam-session-service/internal/codec"
	"github.com/examforge/exam-session-service/internal/models"
	"github.com/examforge/exam-session-service/internal/repositories"
)

// QuestionPostgreSQL persists questions. Question and option text pass through
// the codec so rows can be encrypted at rest; callers only ever see plaintext.
type QuestionPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
	codec   codec.Codec
}

func NewQuestionPostgreSQL(db *gorm.DB, textCodec codec.Codec) repositories.QuestionRepository {
	if textCodec == nil {
		textCodec = codec.Noop{}
	}
	return &QuestionPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
		codec:   textCodec,
	}
}

func (q *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

func (q *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := q.getDB(tx)

	encoded := *question
	var err error
	if encoded.Text, err = q.codec.Encode(question.Text); err != nil {
		return fmt.Errorf("failed to encode question text: %w", err)
	}
	encoded.Options = make([]models.QuestionOption, len(question.Options))
	for i, opt := range question.Options {
		encoded.Options[i] = opt
		if encoded.Options[i].Text, err = q.codec.Encode(opt.Text); err != nil {
			return fmt.Errorf("failed to encode option text: %w", err)
		}
	}

	if err := db.WithContext(ctx).Create(&encoded).Error; err != nil {
		return err
	}

	// Hand back generated ids without exposing the stored form.
	question.ID = encoded.ID
	question.CreatedAt = encoded.CreatedAt
	for i := range encoded.Options {
		question.Options[i].ID = encoded.Options[i].ID
		question.Options[i].QuestionID = encoded.Options[i].QuestionID
	}
	return nil
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	db := q.getDB(tx)
	var question models.Question
	if err := db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_options.\"order\" ASC")
		}).
		First(&question, id).Error; err != nil {
		return nil, err
	}
	if err := q.decode(&question); err != nil {
		return nil, err
	}
	return &question, nil
}

func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	if len(ids) == 0 {
		return []*models.Question{}, nil
	}

	db := q.getDB(tx)
	var questions []*models.Question
	if err := db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_options.\"order\" ASC")
		}).
		Where("id IN ?", ids).
		Find(&questions).Error; err != nil {
		return nil, err
	}

	for _, question := range questions {
		if err := q.decode(question); err != nil {
			return nil, err
		}
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := q.getDB(tx)

	encodedText, err := q.codec.Encode(question.Text)
	if err != nil {
		return fmt.Errorf("failed to encode question text: %w", err)
	}

	return db.WithContext(ctx).
		Model(&models.Question{}).
		Where("id = ?", question.ID).
		Updates(map[string]interface{}{
			"text":        encodedText,
			"image_url":   question.ImageURL,
			"points":      question.Points,
			"time_limit":  question.TimeLimit,
			"explanation": question.Explanation,
		}).Error
}

func (q *QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.getDB(tx)
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", id).Delete(&models.QuestionOption{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Question{}, id).Error
	})
}

// GetByExam returns the exam's questions in pool order.
func (q *QuestionPostgreSQL) GetByExam(ctx context.Context, tx *gorm.DB, examID uint) ([]*models.Question, error) {
	db := q.getDB(tx)
	var questions []*models.Question
	if err := db.WithContext(ctx).
		Joins("JOIN exam_questions ON exam_questions.question_id = questions.id").
		Where("exam_questions.exam_id = ?", examID).
		Order("exam_questions.\"order\" ASC").
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_options.\"order\" ASC")
		}).
		Find(&questions).Error; err != nil {
		return nil, err
	}

	for _, question := range questions {
		if err := q.decode(question); err != nil {
			return nil, err
		}
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) decode(question *models.Question) error {
	text, err := q.codec.Decode(question.Text)
	if err != nil {
		return fmt.Errorf("failed to decode question %d: %w", question.ID, err)
	}
	question.Text = text

	for i := range question.Options {
		optText, err := q.codec.Decode(question.Options[i].Text)
		if err != nil {
			return fmt.Errorf("failed to decode option %d: %w", question.Options[i].ID, err)
		}
		question.Options[i].Text = optText
	}
	return nil
}
