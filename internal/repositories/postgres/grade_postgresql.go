package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/openedu/course-service/internal/models"
	"github.com/openedu/course-service/internal/repositories"
)

type PostgreSQLGradeRepository struct {
	db *gorm.DB
}

func NewPostgreSQLGradeRepository(db *gorm.DB) *PostgreSQLGradeRepository {
	return &PostgreSQLGradeRepository{db: db}
}

func (r *PostgreSQLGradeRepository) Create(ctx context.Context, grade *models.StudentGrade) error {
	if err := r.db.WithContext(ctx).Create(grade).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (r *PostgreSQLGradeRepository) GetByID(ctx context.Context, id uint) (*models.StudentGrade, error) {
	var grade models.StudentGrade
	if err := r.db.WithContext(ctx).First(&grade, id).Error; err != nil {
		return nil, err
	}
	return &grade, nil
}

func (r *PostgreSQLGradeRepository) GetByUserAndQuestion(ctx context.Context, userID string, questionID uint) (*models.StudentGrade, error) {
	var grade models.StudentGrade
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND question_id = ?", userID, questionID).
		First(&grade).Error
	if err != nil {
		return nil, err
	}
	return &grade, nil
}

func (r *PostgreSQLGradeRepository) Update(ctx context.Context, grade *models.StudentGrade) error {
	if err := r.db.WithContext(ctx).Save(grade).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (r *PostgreSQLGradeRepository) GetByQuestion(ctx context.Context, questionID uint) ([]*models.StudentGrade, error) {
	var grades []*models.StudentGrade
	err := r.db.WithContext(ctx).
		Where("question_id = ?", questionID).
		Order("user_id ASC").
		Find(&grades).Error
	if err != nil {
		return nil, err
	}
	return grades, nil
}

func (r *PostgreSQLGradeRepository) Aggregates(ctx context.Context, filters repositories.GradeFilters) ([]*repositories.GradeAggregate, error) {
	query := `
		SELECT
			g.user_id,
			COALESCE(users.full_name, g.user_id) AS full_name,
			COALESCE(AVG(g.best_score), 0) AS average,
			COUNT(CASE WHEN g.num_attempts = 0 THEN 1 END) AS pending_problem_count,
			COUNT(CASE WHEN g.overall_best_score >= 1 THEN 1 END) AS mastered_problem_count,
			COUNT(CASE WHEN g.num_attempts > 0 AND g.overall_best_score < 1 THEN 1 END) AS in_progress_problem_count
		FROM student_grades g
		LEFT JOIN users ON users.id = g.user_id
		JOIN course_topic_questions q ON q.id = g.question_id AND q.active
		JOIN course_topic_contents t ON t.id = q.topic_id AND t.active
		JOIN course_unit_contents u ON u.id = t.unit_id AND u.active
		WHERE %s
		GROUP BY g.user_id, users.full_name
		ORDER BY full_name`

	var (
		scope string
		arg   interface{}
	)
	switch {
	case filters.CourseID != nil:
		scope, arg = "u.course_id = ?", *filters.CourseID
	case filters.UnitID != nil:
		scope, arg = "t.unit_id = ?", *filters.UnitID
	case filters.TopicID != nil:
		scope, arg = "q.topic_id = ?", *filters.TopicID
	case filters.QuestionID != nil:
		scope, arg = "g.question_id = ?", *filters.QuestionID
	default:
		return nil, fmt.Errorf("grade aggregates require a content scope")
	}

	var rows []*repositories.GradeAggregate
	if err := r.db.WithContext(ctx).Raw(fmt.Sprintf(query, scope), arg).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate grades: %w", err)
	}
	return rows, nil
}

// QuestionsMissingGradeForUser finds every active question in the course the
// user has no grade row for yet.
func (r *PostgreSQLGradeRepository) QuestionsMissingGradeForUser(ctx context.Context, courseID uint, userID string) ([]uint, error) {
	var questionIDs []uint
	err := r.db.WithContext(ctx).Raw(`
		SELECT q.id
		FROM course_topic_questions q
		JOIN course_topic_contents t ON t.id = q.topic_id AND t.active
		JOIN course_unit_contents u ON u.id = t.unit_id AND u.active
		LEFT JOIN student_grades g ON g.question_id = q.id AND g.user_id = ?
		WHERE u.course_id = ? AND q.active AND g.id IS NULL
		ORDER BY q.id`,
		userID, courseID).Scan(&questionIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find questions missing a grade for user %s: %w", userID, err)
	}
	return questionIDs, nil
}

// UsersMissingGradeForQuestion finds every actively enrolled student in the
// question's course who has no grade row on the question yet.
func (r *PostgreSQLGradeRepository) UsersMissingGradeForQuestion(ctx context.Context, questionID uint) ([]string, error) {
	var userIDs []string
	err := r.db.WithContext(ctx).Raw(`
		SELECT e.user_id
		FROM course_topic_questions q
		JOIN course_topic_contents t ON t.id = q.topic_id
		JOIN course_unit_contents u ON u.id = t.unit_id
		JOIN student_enrollments e ON e.course_id = u.course_id AND e.drop_date IS NULL
		LEFT JOIN student_grades g ON g.question_id = q.id AND g.user_id = e.user_id
		WHERE q.id = ? AND g.id IS NULL
		ORDER BY e.user_id`,
		questionID).Scan(&userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find users missing a grade for question %d: %w", questionID, err)
	}
	return userIDs, nil
}

// FindMissingGrades scans every course for (enrolled student, active
// question) pairs with no grade row.
func (r *PostgreSQLGradeRepository) FindMissingGrades(ctx context.Context) ([]*repositories.MissingGrade, error) {
	var missing []*repositories.MissingGrade
	err := r.db.WithContext(ctx).Raw(`
		SELECT e.user_id, q.id AS question_id
		FROM student_enrollments e
		JOIN course_unit_contents u ON u.course_id = e.course_id AND u.active
		JOIN course_topic_contents t ON t.unit_id = u.id AND t.active
		JOIN course_topic_questions q ON q.topic_id = t.id AND q.active
		LEFT JOIN student_grades g ON g.question_id = q.id AND g.user_id = e.user_id
		WHERE e.drop_date IS NULL AND g.id IS NULL
		ORDER BY e.user_id, q.id`).Scan(&missing).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find missing grades: %w", err)
	}
	return missing, nil
}

type PostgreSQLWorkbookRepository struct {
	db *gorm.DB
}

func NewPostgreSQLWorkbookRepository(db *gorm.DB) *PostgreSQLWorkbookRepository {
	return &PostgreSQLWorkbookRepository{db: db}
}

func (r *PostgreSQLWorkbookRepository) Create(ctx context.Context, workbook *models.StudentWorkbook) error {
	if err := r.db.WithContext(ctx).Create(workbook).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (r *PostgreSQLWorkbookRepository) GetByGrade(ctx context.Context, gradeID uint) ([]*models.StudentWorkbook, error) {
	var workbooks []*models.StudentWorkbook
	err := r.db.WithContext(ctx).
		Where("grade_id = ?", gradeID).
		Order("time ASC").
		Find(&workbooks).Error
	if err != nil {
		return nil, err
	}
	return workbooks, nil
}

type PostgreSQLOverrideRepository struct {
	db *gorm.DB
}

func NewPostgreSQLOverrideRepository(db *gorm.DB) *PostgreSQLOverrideRepository {
	return &PostgreSQLOverrideRepository{db: db}
}

func (r *PostgreSQLOverrideRepository) ActiveTopicOverrides(ctx context.Context, userID string, topicID uint) ([]*models.StudentTopicOverride, error) {
	var overrides []*models.StudentTopicOverride
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND topic_id = ? AND active = ?", userID, topicID, true).
		Order("created_at ASC").
		Find(&overrides).Error
	if err != nil {
		return nil, err
	}
	return overrides, nil
}

func (r *PostgreSQLOverrideRepository) ActiveQuestionOverrides(ctx context.Context, userID string, questionID uint) ([]*models.StudentTopicQuestionOverride, error) {
	var overrides []*models.StudentTopicQuestionOverride
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND question_id = ? AND active = ?", userID, questionID, true).
		Order("created_at ASC").
		Find(&overrides).Error
	if err != nil {
		return nil, err
	}
	return overrides, nil
}

func (r *PostgreSQLOverrideRepository) CreateTopicOverride(ctx context.Context, override *models.StudentTopicOverride) error {
	if err := r.db.WithContext(ctx).Create(override).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (r *PostgreSQLOverrideRepository) CreateQuestionOverride(ctx context.Context, override *models.StudentTopicQuestionOverride) error {
	if err := r.db.WithContext(ctx).Create(override).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}
