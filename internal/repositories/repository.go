package repositories

import "context"

// Repository aggregates the per-entity repositories behind one interface so
// services depend on a single collaborator and transactions can rebind every
// sub-repository at once.
type Repository interface {
	// Exam domain
	Exam() ExamRepository
	Question() QuestionRepository

	// Session domain
	Session() SessionRepository
	Answer() AnswerRepository
	Violation() ViolationRepository
	Invitation() InvitationRepository

	// User domain (read-only, owned by the identity provider)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
