package pkg

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/examforge/exam-session-service/internal/models"
)

// InitDatabase opens the Postgres connection and migrates the schema.
// TranslateError is required: the answer recorder relies on
// gorm.ErrDuplicatedKey to detect double submissions.
func InitDatabase(databaseURL string, logLevel slog.Level) (*gorm.DB, error) {
	gormLogLevel := logger.Warn
	if logLevel == slog.LevelDebug {
		gormLogLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(
		&models.Exam{},
		&models.Question{},
		&models.QuestionOption{},
		&models.ExamQuestion{},
		&models.ExamSession{},
		&models.ExamAnswer{},
		&models.ExamViolation{},
		&models.ExamInvitation{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}
