package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openedu/course-service/internal/cache"
	"github.com/openedu/course-service/internal/events"
	"github.com/openedu/course-service/internal/renderer"
	"github.com/openedu/course-service/internal/repositories"
	"github.com/openedu/course-service/internal/validator"
)

// ServiceManagerConfig carries the cross-service settings.
type ServiceManagerConfig struct {
	// ShowSolutionsDelay is how long after a topic's dead date practice
	// submissions are still tracked.
	ShowSolutionsDelay time.Duration
}

// serviceManager implements ServiceManager.
type serviceManager struct {
	repo     repositories.Repository
	renderer renderer.Client
	events   events.EventPublisher
	cache    *cache.CacheManager
	logger   *slog.Logger

	courseService  CourseService
	contentService ContentService
	gradeService   GradeService

	shutdown bool
	mu       sync.RWMutex
}

// NewServiceManager wires all services onto shared dependencies.
func NewServiceManager(
	repo repositories.Repository,
	rendererClient renderer.Client,
	publisher events.EventPublisher,
	cacheManager *cache.CacheManager,
	logger *slog.Logger,
	v *validator.Validator,
	config ServiceManagerConfig,
) ServiceManager {
	sm := &serviceManager{
		repo:     repo,
		renderer: rendererClient,
		events:   publisher,
		cache:    cacheManager,
		logger:   logger,
	}

	sm.courseService = NewCourseService(repo, cacheManager, publisher, logger, v)
	sm.contentService = NewContentService(repo, cacheManager, publisher, logger, v)
	sm.gradeService = NewGradeService(repo, rendererClient, publisher, cacheManager, logger, v, config.ShowSolutionsDelay)

	return sm
}

func (sm *serviceManager) Course() CourseService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.courseService
}

func (sm *serviceManager) Content() ContentService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.contentService
}

func (sm *serviceManager) Grade() GradeService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.gradeService
}

// HealthCheck verifies the dependencies every service shares. The cache is
// optional: an unavailable cache is logged, not fatal.
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if err := sm.renderer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("renderer health check failed: %w", err)
	}
	if err := sm.cache.HealthCheck(ctx); err != nil {
		sm.logger.WarnContext(ctx, "cache unavailable, running without it", "error", err)
	}
	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}
	sm.logger.InfoContext(ctx, "shutting down service manager")

	if err := sm.events.Close(); err != nil {
		sm.logger.ErrorContext(ctx, "failed to close event publisher", "error", err)
	}

	sm.shutdown = true
	return nil
}
