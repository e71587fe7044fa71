package repositories

import (
	"context"

	"github.com/openedu/course-service/internal/models"
)

type GradeRepository interface {
	Create(ctx context.Context, grade *models.StudentGrade) error
	GetByID(ctx context.Context, id uint) (*models.StudentGrade, error)
	GetByUserAndQuestion(ctx context.Context, userID string, questionID uint) (*models.StudentGrade, error)
	Update(ctx context.Context, grade *models.StudentGrade) error

	// GetByQuestion lists all grades on one question.
	GetByQuestion(ctx context.Context, questionID uint) ([]*models.StudentGrade, error)

	// Aggregates groups grades by student for the single content scope set
	// in filters.
	Aggregates(ctx context.Context, filters GradeFilters) ([]*GradeAggregate, error)

	// Reconciliation queries. All three walk the active content tree
	// through to enrollments and left-join grades to find missing rows.
	QuestionsMissingGradeForUser(ctx context.Context, courseID uint, userID string) ([]uint, error)
	UsersMissingGradeForQuestion(ctx context.Context, questionID uint) ([]string, error)
	FindMissingGrades(ctx context.Context) ([]*MissingGrade, error)
}

type WorkbookRepository interface {
	Create(ctx context.Context, workbook *models.StudentWorkbook) error
	GetByGrade(ctx context.Context, gradeID uint) ([]*models.StudentWorkbook, error)
}

type OverrideRepository interface {
	// ActiveTopicOverrides returns every active override for the pair. The
	// resolver expects at most one; extras are its problem to flag.
	ActiveTopicOverrides(ctx context.Context, userID string, topicID uint) ([]*models.StudentTopicOverride, error)
	ActiveQuestionOverrides(ctx context.Context, userID string, questionID uint) ([]*models.StudentTopicQuestionOverride, error)

	CreateTopicOverride(ctx context.Context, override *models.StudentTopicOverride) error
	CreateQuestionOverride(ctx context.Context, override *models.StudentTopicQuestionOverride) error
}
