package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gorm.io/gorm"

	"github.com/examforge/exam-session-service/internal/config"
	"github.com/examforge/exam-session-service/internal/events"
	"github.com/examforge/exam-session-service/internal/repositories"
	"github.com/examforge/exam-session-service/internal/security"
	"github.com/examforge/exam-session-service/internal/validator"
)

// serviceManager wires the service layer together and owns its lifecycle.
type serviceManager struct {
	mu          sync.RWMutex
	initialized bool
	shutdown    bool

	repo      repositories.Repository
	logger    *slog.Logger
	publisher events.EventPublisher

	access    AccessService
	session   SessionService
	answer    AnswerService
	violation ViolationService
	exam      ExamService
	question  QuestionService
}

// ServiceManagerConfig collects everything the service layer depends on.
type ServiceManagerConfig struct {
	Repository repositories.Repository
	DB         *gorm.DB
	Logger     *slog.Logger
	Validator  *validator.Validator
	Publisher  events.EventPublisher
	Clock      Clock
	Session    config.SessionConfig
	Verifier   security.Verifier
}

// NewServiceManager builds the full service graph. Clock defaults to the
// system clock and Verifier to allow-all when unset.
func NewServiceManager(cfg ServiceManagerConfig) ServiceManager {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Verifier == nil {
		cfg.Verifier = security.AllowAll{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NoopEventPublisher{}
	}

	sessionSvc := NewSessionService(
		cfg.Repository, cfg.DB, cfg.Logger, cfg.Validator,
		cfg.Publisher, cfg.Clock, cfg.Session, cfg.Verifier,
	)

	return &serviceManager{
		repo:      cfg.Repository,
		logger:    cfg.Logger,
		publisher: cfg.Publisher,

		access:    NewAccessService(cfg.Repository, cfg.DB, cfg.Logger, cfg.Clock),
		session:   sessionSvc,
		answer:    NewAnswerService(cfg.Repository, cfg.Logger, cfg.Validator, cfg.Clock, sessionSvc),
		violation: NewViolationService(cfg.Repository, cfg.Logger, cfg.Validator, cfg.Clock, cfg.Session, sessionSvc),
		exam:      NewExamService(cfg.Repository, cfg.DB, cfg.Logger, cfg.Validator, cfg.Publisher, cfg.Clock),
		question:  NewQuestionService(cfg.Repository, cfg.Logger, cfg.Validator),
	}
}

func (m *serviceManager) Access() AccessService {
	m.ensureReady()
	return m.access
}

func (m *serviceManager) Session() SessionService {
	m.ensureReady()
	return m.session
}

func (m *serviceManager) Answer() AnswerService {
	m.ensureReady()
	return m.answer
}

func (m *serviceManager) Violation() ViolationService {
	m.ensureReady()
	return m.violation
}

func (m *serviceManager) Exam() ExamService {
	m.ensureReady()
	return m.exam
}

func (m *serviceManager) Question() QuestionService {
	m.ensureReady()
	return m.question
}

func (m *serviceManager) ensureReady() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized || m.shutdown {
		panic("service manager is not initialized")
	}
}

func (m *serviceManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	if err := m.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository not reachable: %w", err)
	}

	m.initialized = true
	m.logger.Info("Service manager initialized")
	return nil
}

func (m *serviceManager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.initialized || m.shutdown {
		return fmt.Errorf("service manager is not running")
	}
	return m.repo.Ping(ctx)
}

func (m *serviceManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil
	}
	m.shutdown = true

	if err := m.publisher.Close(); err != nil {
		m.logger.Error("Failed to close event publisher", "error", err)
	}

	m.logger.Info("Service manager shut down")
	return nil
}
