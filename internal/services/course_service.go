package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openedu/course-service/internal/cache"
	"github.com/openedu/course-service/internal/events"
	"github.com/openedu/course-service/internal/export"
	"github.com/openedu/course-service/internal/models"
	"github.com/openedu/course-service/internal/repositories"
	"github.com/openedu/course-service/internal/validator"
)

type courseService struct {
	repo      repositories.Repository
	cache     *cache.CacheManager
	events    events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewCourseService(
	repo repositories.Repository,
	cacheManager *cache.CacheManager,
	publisher events.EventPublisher,
	logger *slog.Logger,
	v *validator.Validator,
) CourseService {
	return &courseService{
		repo:      repo,
		cache:     cacheManager,
		events:    publisher,
		logger:    logger,
		validator: v,
	}
}

// ===== COURSE CRUD =====

func (s *courseService) CreateCourse(ctx context.Context, req *CreateCourseRequest, instructorID string) (*models.Course, error) {
	if errs := s.validator.ValidateCourseCreate(req); len(errs) > 0 {
		return nil, errs
	}

	role, err := s.repo.User().GetRole(ctx, instructorID)
	if err != nil {
		return nil, translateRepositoryError(err, "user", instructorID)
	}
	if role.PermissionLevel() < models.RoleProfessor.PermissionLevel() {
		return nil, NewPermissionError(instructorID, "course", "create", "requires professor role")
	}

	course := &models.Course{
		Name:         req.Name,
		Code:         req.Code,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		InstructorID: instructorID,
		SectionCode:  req.SectionCode,
		Semester:     req.Semester,
	}
	if err := s.repo.Course().Create(ctx, course); err != nil {
		return nil, translateRepositoryError(err, "course", req.Code)
	}

	s.publishEvent(ctx, events.NewEvent(events.EventTypeCourseCreated, events.CourseCreatedEvent{
		CourseID:     course.ID,
		Name:         course.Name,
		Code:         course.Code,
		InstructorID: instructorID,
	}))
	cache.SafeInvalidatePattern(ctx, s.cache.Course, "list:*")

	s.logger.InfoContext(ctx, "course created",
		"course_id", course.ID,
		"code", course.Code,
		"instructor_id", instructorID)
	return course, nil
}

func (s *courseService) GetCourseByID(ctx context.Context, id uint) (*models.Course, error) {
	var course models.Course
	key := s.cache.Course.GetCacheKey(fmt.Sprintf("tree:%d", id))
	err := s.cache.Course.CacheOrExecute(ctx, key, &course, cache.CourseCacheConfig.TTL, func() (interface{}, error) {
		c, err := s.repo.Course().GetByIDWithContent(ctx, id)
		if err != nil {
			return nil, translateRepositoryError(err, "course", id)
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (s *courseService) GetCourseByCode(ctx context.Context, code string) (*models.Course, error) {
	course, err := s.repo.Course().GetByCode(ctx, code)
	if err != nil {
		return nil, translateRepositoryError(err, "course", code)
	}
	return course, nil
}

func (s *courseService) GetCourses(ctx context.Context, filters repositories.CourseFilters) (*CourseListResponse, error) {
	courses, total, err := s.repo.Course().List(ctx, filters)
	if err != nil {
		return nil, translateRepositoryError(err, "course", "list")
	}
	return &CourseListResponse{Courses: courses, Total: total}, nil
}

func (s *courseService) UpdateCourse(ctx context.Context, id uint, req *UpdateCourseRequest, requestorID string) (*models.Course, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	course, err := s.repo.Course().GetByID(ctx, id)
	if err != nil {
		return nil, translateRepositoryError(err, "course", id)
	}

	if err := s.requireCourseAccess(ctx, course, requestorID, "update"); err != nil {
		return nil, err
	}

	if req.Name != nil {
		course.Name = *req.Name
	}
	if req.StartDate != nil {
		course.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		course.EndDate = *req.EndDate
	}
	if req.SectionCode != nil {
		course.SectionCode = req.SectionCode
	}
	if req.Semester != nil {
		course.Semester = req.Semester
	}
	if course.EndDate.Before(course.StartDate) {
		return nil, NewValidationError("end_date", "end date must not be before start date", course.EndDate)
	}

	if err := s.repo.Course().Update(ctx, course); err != nil {
		return nil, translateRepositoryError(err, "course", id)
	}

	cache.InvalidateCourseCache(ctx, s.cache, id)
	return course, nil
}

// requireCourseAccess allows the course's instructor and admins through.
func (s *courseService) requireCourseAccess(ctx context.Context, course *models.Course, requestorID, action string) error {
	if course.InstructorID == requestorID {
		return nil
	}
	role, err := s.repo.User().GetRole(ctx, requestorID)
	if err != nil {
		return translateRepositoryError(err, "user", requestorID)
	}
	if role != models.RoleAdmin {
		return NewPermissionError(requestorID, "course", action, "not the course instructor")
	}
	return nil
}

// ===== ENROLLMENT =====

func (s *courseService) Enroll(ctx context.Context, req *EnrollRequest) (*EnrollResponse, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}
	return s.enroll(ctx, req.UserID, req.CourseID)
}

func (s *courseService) EnrollByCode(ctx context.Context, req *EnrollByCodeRequest) (*EnrollResponse, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}
	course, err := s.repo.Course().GetByCode(ctx, req.Code)
	if err != nil {
		return nil, translateRepositoryError(err, "course", req.Code)
	}
	return s.enroll(ctx, req.UserID, course.ID)
}

// enroll creates (or reactivates) the enrollment and backfills grade rows
// for every active question in the course, all in one transaction.
func (s *courseService) enroll(ctx context.Context, userID string, courseID uint) (*EnrollResponse, error) {
	if _, err := s.repo.Course().GetByID(ctx, courseID); err != nil {
		return nil, translateRepositoryError(err, "course", courseID)
	}
	exists, err := s.repo.User().ExistsByID(ctx, userID)
	if err != nil {
		return nil, translateRepositoryError(err, "user", userID)
	}
	if !exists {
		return nil, NewNotFoundError("user", userID)
	}

	result := &EnrollResponse{}
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		enrollment, err := txRepo.Enrollment().GetByUserAndCourse(ctx, userID, courseID)
		switch {
		case err == nil && enrollment.Active():
			return NewAlreadyExistsError("enrollment", "user_id", userID)
		case err == nil:
			// Re-enrolling a dropped student keeps the original row and
			// its grades.
			enrollment.DropDate = nil
			if err := txRepo.Enrollment().Update(ctx, enrollment); err != nil {
				return translateRepositoryError(err, "enrollment", enrollment.ID)
			}
		case repositories.IsNotFoundError(err):
			enrollment = &models.StudentEnrollment{
				CourseID:   courseID,
				UserID:     userID,
				EnrollDate: time.Now(),
			}
			if err := txRepo.Enrollment().Create(ctx, enrollment); err != nil {
				return translateRepositoryError(err, "enrollment", userID)
			}
		default:
			return translateRepositoryError(err, "enrollment", courseID)
		}

		created, err := createMissingGradesForUser(ctx, txRepo, courseID, userID)
		if err != nil {
			return err
		}
		result.Enrollment = enrollment
		result.GradesCreated = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.NewEvent(events.EventTypeEnrollmentCreated, events.EnrollmentCreatedEvent{
		CourseID:      courseID,
		UserID:        userID,
		GradesCreated: result.GradesCreated,
	}))

	s.logger.InfoContext(ctx, "student enrolled",
		"course_id", courseID,
		"user_id", userID,
		"grades_created", result.GradesCreated)
	return result, nil
}

func (s *courseService) DropStudent(ctx context.Context, userID string, courseID uint) error {
	enrollment, err := s.repo.Enrollment().GetByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return translateRepositoryError(err, "enrollment", courseID)
	}
	if !enrollment.Active() {
		return NewNotFoundError("enrollment", enrollment.ID)
	}

	now := time.Now()
	enrollment.DropDate = &now
	if err := s.repo.Enrollment().Update(ctx, enrollment); err != nil {
		return translateRepositoryError(err, "enrollment", enrollment.ID)
	}

	s.logger.InfoContext(ctx, "student dropped",
		"course_id", courseID,
		"user_id", userID)
	return nil
}

// ===== REPORTING =====

func (s *courseService) GetGrades(ctx context.Context, req *GetGradesRequest) ([]*repositories.GradeAggregate, error) {
	if errs := s.validator.ValidateGradeFilters(req); len(errs) > 0 {
		return nil, errs
	}
	aggregates, err := s.repo.Grade().Aggregates(ctx, repositories.GradeFilters{
		CourseID:   req.CourseID,
		UnitID:     req.UnitID,
		TopicID:    req.TopicID,
		QuestionID: req.QuestionID,
	})
	if err != nil {
		return nil, translateRepositoryError(err, "grade", "aggregates")
	}
	return aggregates, nil
}

func (s *courseService) GetUnitStats(ctx context.Context, courseID uint) ([]*repositories.ContentStats, error) {
	var stats []*repositories.ContentStats
	key := s.cache.Stats.GetCacheKey(fmt.Sprintf("course:%d:units", courseID))
	err := s.cache.Stats.CacheOrExecute(ctx, key, &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		rows, err := s.repo.Unit().Stats(ctx, courseID)
		if err != nil {
			return nil, translateRepositoryError(err, "unit", courseID)
		}
		return rows, nil
	})
	return stats, err
}

func (s *courseService) GetTopicStats(ctx context.Context, unitID *uint, courseID *uint) ([]*repositories.ContentStats, error) {
	stats, err := s.repo.Topic().Stats(ctx, unitID, courseID)
	if err != nil {
		return nil, translateRepositoryError(err, "topic", "stats")
	}
	return stats, nil
}

func (s *courseService) GetQuestionStats(ctx context.Context, topicID *uint, courseID *uint) ([]*repositories.ContentStats, error) {
	stats, err := s.repo.Question().Stats(ctx, topicID, courseID)
	if err != nil {
		return nil, translateRepositoryError(err, "question", "stats")
	}
	return stats, nil
}

func (s *courseService) ExportGradebook(ctx context.Context, courseID uint) ([]byte, error) {
	course, err := s.repo.Course().GetByID(ctx, courseID)
	if err != nil {
		return nil, translateRepositoryError(err, "course", courseID)
	}
	rows, err := s.repo.Course().Gradebook(ctx, courseID)
	if err != nil {
		return nil, translateRepositoryError(err, "course", courseID)
	}

	data, err := export.GradebookXLSX(course.Name, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to build gradebook export: %w", err)
	}

	s.logger.InfoContext(ctx, "gradebook exported",
		"course_id", courseID,
		"rows", len(rows))
	return data, nil
}

func (s *courseService) publishEvent(ctx context.Context, event *events.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			"error", err,
			"event_type", event.Type)
	}
}
