package repositories

import "context"

// Repository aggregates all repository interfaces. Sub-repositories are
// bound to a single database handle; WithTransaction yields a Repository
// whose sub-repositories share one transaction.
type Repository interface {
	// Course domain
	Course() CourseRepository
	Enrollment() EnrollmentRepository

	// Content domain
	Unit() UnitRepository
	Topic() TopicRepository
	Question() QuestionRepository

	// Grade domain
	Grade() GradeRepository
	Workbook() WorkbookRepository
	Override() OverrideRepository

	// User domain (read-only for this service)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager manages repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
