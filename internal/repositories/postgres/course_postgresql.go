package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/openedu/course-service/internal/models"
	"github.com/openedu/course-service/internal/repositories"
)

type PostgreSQLCourseRepository struct {
	db *gorm.DB
}

func NewPostgreSQLCourseRepository(db *gorm.DB) *PostgreSQLCourseRepository {
	return &PostgreSQLCourseRepository{db: db}
}

func (r *PostgreSQLCourseRepository) Create(ctx context.Context, course *models.Course) error {
	if err := r.db.WithContext(ctx).Create(course).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (r *PostgreSQLCourseRepository) GetByID(ctx context.Context, id uint) (*models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

// GetByIDWithContent loads the full active content tree in display order.
func (r *PostgreSQLCourseRepository) GetByIDWithContent(ctx context.Context, id uint) (*models.Course, error) {
	var course models.Course
	err := r.db.WithContext(ctx).
		Preload("Units", func(db *gorm.DB) *gorm.DB {
			return db.Where("active = ?", true).Order("content_order ASC")
		}).
		Preload("Units.Topics", func(db *gorm.DB) *gorm.DB {
			return db.Where("active = ?", true).Order("content_order ASC")
		}).
		Preload("Units.Topics.Questions", func(db *gorm.DB) *gorm.DB {
			return db.Where("active = ?", true).Order("problem_number ASC")
		}).
		First(&course, id).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *PostgreSQLCourseRepository) GetByCode(ctx context.Context, code string) (*models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&course).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *PostgreSQLCourseRepository) Update(ctx context.Context, course *models.Course) error {
	if err := r.db.WithContext(ctx).Save(course).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (r *PostgreSQLCourseRepository) List(ctx context.Context, filters repositories.CourseFilters) ([]*models.Course, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Course{})

	if filters.InstructorID != nil {
		query = query.Where("instructor_id = ?", *filters.InstructorID)
	}
	if filters.EnrolledUserID != nil {
		query = query.
			Joins("JOIN student_enrollments ON student_enrollments.course_id = courses.id").
			Where("student_enrollments.user_id = ? AND student_enrollments.drop_date IS NULL", *filters.EnrolledUserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count courses: %w", err)
	}

	sortBy := filters.SortBy
	switch sortBy {
	case "name", "start_date", "created_at":
	default:
		sortBy = "created_at"
	}
	order := "DESC"
	if filters.SortOrder == "asc" {
		order = "ASC"
	}
	query = query.Order(fmt.Sprintf("courses.%s %s", sortBy, order))

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var courses []*models.Course
	if err := query.Find(&courses).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list courses: %w", err)
	}
	return courses, total, nil
}

func (r *PostgreSQLCourseRepository) Gradebook(ctx context.Context, courseID uint) ([]*repositories.GradebookRow, error) {
	var rows []*repositories.GradebookRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			e.user_id,
			COALESCE(users.full_name, e.user_id) AS full_name,
			u.name AS unit_name,
			t.name AS topic_name,
			q.problem_number,
			q.weight,
			COALESCE(g.effective_score, 0) AS effective_score,
			COALESCE(g.num_attempts, 0) AS num_attempts
		FROM student_enrollments e
		LEFT JOIN users ON users.id = e.user_id
		JOIN course_unit_contents u ON u.course_id = e.course_id AND u.active
		JOIN course_topic_contents t ON t.unit_id = u.id AND t.active
		JOIN course_topic_questions q ON q.topic_id = t.id AND q.active
		LEFT JOIN student_grades g ON g.question_id = q.id AND g.user_id = e.user_id
		WHERE e.course_id = ? AND e.drop_date IS NULL
		ORDER BY full_name, u.content_order, t.content_order, q.problem_number`,
		courseID).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to build gradebook for course %d: %w", courseID, err)
	}
	return rows, nil
}

type PostgreSQLEnrollmentRepository struct {
	db *gorm.DB
}

func NewPostgreSQLEnrollmentRepository(db *gorm.DB) *PostgreSQLEnrollmentRepository {
	return &PostgreSQLEnrollmentRepository{db: db}
}

func (r *PostgreSQLEnrollmentRepository) Create(ctx context.Context, enrollment *models.StudentEnrollment) error {
	if err := r.db.WithContext(ctx).Create(enrollment).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (r *PostgreSQLEnrollmentRepository) GetByUserAndCourse(ctx context.Context, userID string, courseID uint) (*models.StudentEnrollment, error) {
	var enrollment models.StudentEnrollment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (r *PostgreSQLEnrollmentRepository) GetByCourse(ctx context.Context, courseID uint) ([]*models.StudentEnrollment, error) {
	var enrollments []*models.StudentEnrollment
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND drop_date IS NULL", courseID).
		Order("enroll_date ASC").
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (r *PostgreSQLEnrollmentRepository) Update(ctx context.Context, enrollment *models.StudentEnrollment) error {
	if err := r.db.WithContext(ctx).Save(enrollment).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}
