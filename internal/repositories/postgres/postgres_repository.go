package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/openedu/course-service/internal/repositories"
	"github.com/openedu/course-service/internal/repositories/casdoor"
)

// RepositoryConfig carries the external handles every sub-repository may need.
type RepositoryConfig struct {
	DB          *gorm.DB
	RedisClient *redis.Client
	Casdoor     casdoor.Config
	Logger      *slog.Logger
}

// PostgreSQLRepository is the production repositories.Repository. All
// sub-repositories share one *gorm.DB so WithTransaction can rebind them to
// a transaction handle.
type PostgreSQLRepository struct {
	db     *gorm.DB
	config *RepositoryConfig

	courseRepo     *PostgreSQLCourseRepository
	enrollmentRepo *PostgreSQLEnrollmentRepository
	unitRepo       *PostgreSQLUnitRepository
	topicRepo      *PostgreSQLTopicRepository
	questionRepo   *PostgreSQLQuestionRepository
	gradeRepo      *PostgreSQLGradeRepository
	workbookRepo   *PostgreSQLWorkbookRepository
	overrideRepo   *PostgreSQLOverrideRepository
	userRepo       repositories.UserRepository
}

func NewPostgreSQLRepository(config *RepositoryConfig) (*PostgreSQLRepository, error) {
	if config == nil || config.DB == nil {
		return nil, fmt.Errorf("repository config requires a database handle")
	}
	return newPostgreSQLRepository(config.DB, config), nil
}

func newPostgreSQLRepository(db *gorm.DB, config *RepositoryConfig) *PostgreSQLRepository {
	helpers := NewSharedHelpers(db)
	return &PostgreSQLRepository{
		db:             db,
		config:         config,
		courseRepo:     NewPostgreSQLCourseRepository(db),
		enrollmentRepo: NewPostgreSQLEnrollmentRepository(db),
		unitRepo:       NewPostgreSQLUnitRepository(db, helpers),
		topicRepo:      NewPostgreSQLTopicRepository(db, helpers),
		questionRepo:   NewPostgreSQLQuestionRepository(db, helpers),
		gradeRepo:      NewPostgreSQLGradeRepository(db),
		workbookRepo:   NewPostgreSQLWorkbookRepository(db),
		overrideRepo:   NewPostgreSQLOverrideRepository(db),
		userRepo:       casdoor.NewUserCasdoor(config.Casdoor, db, config.RedisClient),
	}
}

func (r *PostgreSQLRepository) Course() repositories.CourseRepository         { return r.courseRepo }
func (r *PostgreSQLRepository) Enrollment() repositories.EnrollmentRepository { return r.enrollmentRepo }
func (r *PostgreSQLRepository) Unit() repositories.UnitRepository             { return r.unitRepo }
func (r *PostgreSQLRepository) Topic() repositories.TopicRepository           { return r.topicRepo }
func (r *PostgreSQLRepository) Question() repositories.QuestionRepository     { return r.questionRepo }
func (r *PostgreSQLRepository) Grade() repositories.GradeRepository           { return r.gradeRepo }
func (r *PostgreSQLRepository) Workbook() repositories.WorkbookRepository     { return r.workbookRepo }
func (r *PostgreSQLRepository) Override() repositories.OverrideRepository     { return r.overrideRepo }
func (r *PostgreSQLRepository) User() repositories.UserRepository             { return r.userRepo }

// WithTransaction runs fn against a Repository whose sub-repositories are all
// bound to the same database transaction. A non-nil error rolls back.
func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newPostgreSQLRepository(tx, r.config))
	})
}

func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access database handle: %w", err)
	}
	return sqlDB.Close()
}

// DefaultRepositoryManager owns the repository lifecycle for main.
type DefaultRepositoryManager struct {
	config     *RepositoryConfig
	repository *PostgreSQLRepository
	logger     *slog.Logger
}

func NewRepositoryManager(config *RepositoryConfig, logger *slog.Logger) *DefaultRepositoryManager {
	if config != nil && config.Logger == nil {
		config.Logger = logger
	}
	return &DefaultRepositoryManager{config: config, logger: logger}
}

func (m *DefaultRepositoryManager) Initialize() error {
	repo, err := NewPostgreSQLRepository(m.config)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	if err := repo.Ping(context.Background()); err != nil {
		return fmt.Errorf("database is unreachable: %w", err)
	}
	m.repository = repo
	m.logger.Info("repository initialized")
	return nil
}

func (m *DefaultRepositoryManager) GetRepository() repositories.Repository {
	return m.repository
}

func (m *DefaultRepositoryManager) HealthCheck(ctx context.Context) error {
	if m.repository == nil {
		return fmt.Errorf("repository is not initialized")
	}
	return m.repository.Ping(ctx)
}

func (m *DefaultRepositoryManager) Shutdown(ctx context.Context) error {
	if m.repository == nil {
		return nil
	}
	m.logger.Info("shutting down repository")
	return m.repository.Close()
}
