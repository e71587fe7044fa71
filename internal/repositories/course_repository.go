package repositories

import (
	"context"

	"github.com/openedu/course-service/internal/models"
)

// CourseRepository covers course CRUD and the aggregate reads the content
// tree is served from.
type CourseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	GetByID(ctx context.Context, id uint) (*models.Course, error)
	// GetByIDWithContent eager-loads active units, topics and questions
	// ordered by contentOrder / problemNumber.
	GetByIDWithContent(ctx context.Context, id uint) (*models.Course, error)
	GetByCode(ctx context.Context, code string) (*models.Course, error)
	Update(ctx context.Context, course *models.Course) error

	List(ctx context.Context, filters CourseFilters) ([]*models.Course, int64, error)

	// Gradebook feeds the XLSX export with one row per (student, question).
	Gradebook(ctx context.Context, courseID uint) ([]*GradebookRow, error)
}

// EnrollmentRepository manages (user, course) membership.
type EnrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.StudentEnrollment) error
	GetByUserAndCourse(ctx context.Context, userID string, courseID uint) (*models.StudentEnrollment, error)
	GetByCourse(ctx context.Context, courseID uint) ([]*models.StudentEnrollment, error)
	Update(ctx context.Context, enrollment *models.StudentEnrollment) error
}
