package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openedu/course-service/internal/models"
	"github.com/openedu/course-service/internal/repositories"
)

// statsRow is the scan target shared by the per-level statistics queries.
type statsRow struct {
	ID                    uint
	Name                  string
	AverageAttemptedCount float64
	AverageScore          float64
	TotalGrades           int
	CompletedCount        int
}

func toContentStats(rows []statsRow) []*repositories.ContentStats {
	out := make([]*repositories.ContentStats, 0, len(rows))
	for _, row := range rows {
		stats := &repositories.ContentStats{
			ID:                    row.ID,
			Name:                  row.Name,
			AverageAttemptedCount: row.AverageAttemptedCount,
			AverageScore:          row.AverageScore,
			TotalGrades:           row.TotalGrades,
			CompletedCount:        row.CompletedCount,
		}
		if row.TotalGrades > 0 {
			percent := float64(row.CompletedCount) / float64(row.TotalGrades) * 100
			stats.CompletionPercent = &percent
		}
		out = append(out, stats)
	}
	return out
}

// ===== UNITS =====

type PostgreSQLUnitRepository struct {
	db      *gorm.DB
	helpers *SharedHelpers
	columns sequenceColumns
}

func NewPostgreSQLUnitRepository(db *gorm.DB, helpers *SharedHelpers) *PostgreSQLUnitRepository {
	return &PostgreSQLUnitRepository{
		db:      db,
		helpers: helpers,
		columns: sequenceColumns{
			model:       &models.CourseUnitContent{},
			scopeColumn: "course_id",
			orderColumn: "content_order",
			nameColumn:  "name",
		},
	}
}

func (r *PostgreSQLUnitRepository) Create(ctx context.Context, unit *models.CourseUnitContent) error {
	if err := r.db.WithContext(ctx).Create(unit).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (r *PostgreSQLUnitRepository) GetByID(ctx context.Context, id uint) (*models.CourseUnitContent, error) {
	var unit models.CourseUnitContent
	if err := r.db.WithContext(ctx).First(&unit, id).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *PostgreSQLUnitRepository) GetByIDWithTopics(ctx context.Context, id uint) (*models.CourseUnitContent, error) {
	var unit models.CourseUnitContent
	err := r.db.WithContext(ctx).
		Preload("Topics", func(db *gorm.DB) *gorm.DB {
			return db.Where("active = ?", true).Order("content_order ASC")
		}).
		First(&unit, id).Error
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *PostgreSQLUnitRepository) Update(ctx context.Context, unit *models.CourseUnitContent) error {
	if err := r.db.WithContext(ctx).Save(unit).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (r *PostgreSQLUnitRepository) UpdateFields(ctx context.Context, id uint, updates map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CourseUnitContent{}).
		Where("id = ? AND active = ?", id, true).
		Updates(updates)
	if res.Error != nil {
		return 0, translateConstraint(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *PostgreSQLUnitRepository) GetByCourse(ctx context.Context, courseID uint) ([]*models.CourseUnitContent, error) {
	var units []*models.CourseUnitContent
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND active = ?", courseID, true).
		Order("content_order ASC").
		Find(&units).Error
	if err != nil {
		return nil, err
	}
	return units, nil
}

func (r *PostgreSQLUnitRepository) Park(ctx context.Context, id uint) error {
	return r.helpers.park(ctx, r.columns, id)
}

func (r *PostgreSQLUnitRepository) Place(ctx context.Context, id uint, scopeID uint, order int) error {
	return r.helpers.place(ctx, r.columns, id, scopeID, order)
}

func (r *PostgreSQLUnitRepository) ShiftDown(ctx context.Context, scopeID uint, after int) error {
	return r.helpers.shiftDown(ctx, r.columns, scopeID, after)
}

func (r *PostgreSQLUnitRepository) ShiftUp(ctx context.Context, scopeID uint, from int) error {
	return r.helpers.shiftUp(ctx, r.columns, scopeID, from)
}

func (r *PostgreSQLUnitRepository) MaxOrder(ctx context.Context, scopeID uint) (int, error) {
	return r.helpers.maxOrder(ctx, r.columns, scopeID)
}

func (r *PostgreSQLUnitRepository) NextDeletedOffset(ctx context.Context, scopeID uint) (int, error) {
	return r.helpers.nextDeletedOffset(ctx, r.columns, scopeID)
}

func (r *PostgreSQLUnitRepository) Deactivate(ctx context.Context, id uint, offset int) (int64, error) {
	return r.helpers.deactivate(ctx, r.columns, id, offset)
}

func (r *PostgreSQLUnitRepository) Stats(ctx context.Context, courseID uint) ([]*repositories.ContentStats, error) {
	var rows []statsRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			u.id,
			u.name,
			COALESCE(AVG(g.num_attempts), 0) AS average_attempted_count,
			COALESCE(AVG(g.best_score), 0) AS average_score,
			COUNT(g.id) AS total_grades,
			COUNT(CASE WHEN g.overall_best_score >= 1 THEN 1 END) AS completed_count
		FROM course_unit_contents u
		LEFT JOIN course_topic_contents t ON t.unit_id = u.id AND t.active
		LEFT JOIN course_topic_questions q ON q.topic_id = t.id AND q.active
		LEFT JOIN student_grades g ON g.question_id = q.id
		WHERE u.course_id = ? AND u.active
		GROUP BY u.id, u.name, u.content_order
		ORDER BY u.content_order`,
		courseID).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute unit statistics: %w", err)
	}
	return toContentStats(rows), nil
}

// ===== TOPICS =====

type PostgreSQLTopicRepository struct {
	db      *gorm.DB
	helpers *SharedHelpers
	columns sequenceColumns
}

func NewPostgreSQLTopicRepository(db *gorm.DB, helpers *SharedHelpers) *PostgreSQLTopicRepository {
	return &PostgreSQLTopicRepository{
		db:      db,
		helpers: helpers,
		columns: sequenceColumns{
			model:       &models.CourseTopicContent{},
			scopeColumn: "unit_id",
			orderColumn: "content_order",
			nameColumn:  "name",
		},
	}
}

func (r *PostgreSQLTopicRepository) Create(ctx context.Context, topic *models.CourseTopicContent) error {
	if err := r.db.WithContext(ctx).Create(topic).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (r *PostgreSQLTopicRepository) GetByID(ctx context.Context, id uint) (*models.CourseTopicContent, error) {
	var topic models.CourseTopicContent
	if err := r.db.WithContext(ctx).First(&topic, id).Error; err != nil {
		return nil, err
	}
	return &topic, nil
}

func (r *PostgreSQLTopicRepository) GetByIDWithQuestions(ctx context.Context, id uint) (*models.CourseTopicContent, error) {
	var topic models.CourseTopicContent
	err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Where("active = ?", true).Order("problem_number ASC")
		}).
		First(&topic, id).Error
	if err != nil {
		return nil, err
	}
	return &topic, nil
}

func (r *PostgreSQLTopicRepository) Update(ctx context.Context, topic *models.CourseTopicContent) error {
	if err := r.db.WithContext(ctx).Save(topic).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (r *PostgreSQLTopicRepository) UpdateFields(ctx context.Context, id uint, updates map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CourseTopicContent{}).
		Where("id = ? AND active = ?", id, true).
		Updates(updates)
	if res.Error != nil {
		return 0, translateConstraint(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *PostgreSQLTopicRepository) GetByUnit(ctx context.Context, unitID uint) ([]*models.CourseTopicContent, error) {
	var topics []*models.CourseTopicContent
	err := r.db.WithContext(ctx).
		Where("unit_id = ? AND active = ?", unitID, true).
		Order("content_order ASC").
		Find(&topics).Error
	if err != nil {
		return nil, err
	}
	return topics, nil
}

func (r *PostgreSQLTopicRepository) List(ctx context.Context, filters repositories.TopicFilters) ([]*models.CourseTopicContent, error) {
	query := r.db.WithContext(ctx).
		Model(&models.CourseTopicContent{}).
		Where("course_topic_contents.active = ?", true)

	if filters.UnitID != nil {
		query = query.Where("course_topic_contents.unit_id = ?", *filters.UnitID)
	}
	if filters.CourseID != nil {
		query = query.
			Joins("JOIN course_unit_contents ON course_unit_contents.id = course_topic_contents.unit_id").
			Where("course_unit_contents.course_id = ? AND course_unit_contents.active", *filters.CourseID)
	}
	if filters.IsOpen != nil {
		now := time.Now()
		if filters.Now != nil {
			now = *filters.Now
		}
		if *filters.IsOpen {
			query = query.Where("course_topic_contents.start_date <= ? AND course_topic_contents.dead_date >= ?", now, now)
		} else {
			query = query.Where("course_topic_contents.start_date > ? OR course_topic_contents.dead_date < ?", now, now)
		}
	}

	query = query.Order("course_topic_contents.unit_id ASC, course_topic_contents.content_order ASC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var topics []*models.CourseTopicContent
	if err := query.Find(&topics).Error; err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return topics, nil
}

func (r *PostgreSQLTopicRepository) Park(ctx context.Context, id uint) error {
	return r.helpers.park(ctx, r.columns, id)
}

func (r *PostgreSQLTopicRepository) Place(ctx context.Context, id uint, scopeID uint, order int) error {
	return r.helpers.place(ctx, r.columns, id, scopeID, order)
}

func (r *PostgreSQLTopicRepository) ShiftDown(ctx context.Context, scopeID uint, after int) error {
	return r.helpers.shiftDown(ctx, r.columns, scopeID, after)
}

func (r *PostgreSQLTopicRepository) ShiftUp(ctx context.Context, scopeID uint, from int) error {
	return r.helpers.shiftUp(ctx, r.columns, scopeID, from)
}

func (r *PostgreSQLTopicRepository) MaxOrder(ctx context.Context, scopeID uint) (int, error) {
	return r.helpers.maxOrder(ctx, r.columns, scopeID)
}

func (r *PostgreSQLTopicRepository) NextDeletedOffset(ctx context.Context, scopeID uint) (int, error) {
	return r.helpers.nextDeletedOffset(ctx, r.columns, scopeID)
}

func (r *PostgreSQLTopicRepository) Deactivate(ctx context.Context, id uint, offset int) (int64, error) {
	return r.helpers.deactivate(ctx, r.columns, id, offset)
}

func (r *PostgreSQLTopicRepository) Stats(ctx context.Context, unitID *uint, courseID *uint) ([]*repositories.ContentStats, error) {
	query := `
		SELECT
			t.id,
			t.name,
			COALESCE(AVG(g.num_attempts), 0) AS average_attempted_count,
			COALESCE(AVG(g.best_score), 0) AS average_score,
			COUNT(g.id) AS total_grades,
			COUNT(CASE WHEN g.overall_best_score >= 1 THEN 1 END) AS completed_count
		FROM course_topic_contents t
		JOIN course_unit_contents u ON u.id = t.unit_id AND u.active
		LEFT JOIN course_topic_questions q ON q.topic_id = t.id AND q.active
		LEFT JOIN student_grades g ON g.question_id = q.id
		WHERE t.active AND %s
		GROUP BY t.id, t.name, u.content_order, t.content_order
		ORDER BY u.content_order, t.content_order`

	var rows []statsRow
	var err error
	switch {
	case unitID != nil:
		err = r.db.WithContext(ctx).Raw(fmt.Sprintf(query, "t.unit_id = ?"), *unitID).Scan(&rows).Error
	case courseID != nil:
		err = r.db.WithContext(ctx).Raw(fmt.Sprintf(query, "u.course_id = ?"), *courseID).Scan(&rows).Error
	default:
		return nil, fmt.Errorf("topic statistics require a unit or course scope")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compute topic statistics: %w", err)
	}
	return toContentStats(rows), nil
}

// ===== QUESTIONS =====

type PostgreSQLQuestionRepository struct {
	db      *gorm.DB
	helpers *SharedHelpers
	columns sequenceColumns
}

func NewPostgreSQLQuestionRepository(db *gorm.DB, helpers *SharedHelpers) *PostgreSQLQuestionRepository {
	return &PostgreSQLQuestionRepository{
		db:      db,
		helpers: helpers,
		columns: sequenceColumns{
			model:       &models.CourseTopicQuestion{},
			scopeColumn: "topic_id",
			orderColumn: "problem_number",
			// questions have no name to tag on soft delete
		},
	}
}

func (r *PostgreSQLQuestionRepository) Create(ctx context.Context, question *models.CourseTopicQuestion) error {
	if err := r.db.WithContext(ctx).Create(question).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (r *PostgreSQLQuestionRepository) GetByID(ctx context.Context, id uint) (*models.CourseTopicQuestion, error) {
	var question models.CourseTopicQuestion
	if err := r.db.WithContext(ctx).First(&question, id).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *PostgreSQLQuestionRepository) GetByIDWithTopic(ctx context.Context, id uint) (*models.CourseTopicQuestion, error) {
	var question models.CourseTopicQuestion
	err := r.db.WithContext(ctx).
		Preload("Topic").
		Preload("Topic.Unit").
		First(&question, id).Error
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *PostgreSQLQuestionRepository) Update(ctx context.Context, question *models.CourseTopicQuestion) error {
	if err := r.db.WithContext(ctx).Save(question).Error; err != nil {
		return translateConstraint(err)
	}
	return nil
}

func (r *PostgreSQLQuestionRepository) GetByTopic(ctx context.Context, filters repositories.QuestionFilters) ([]*models.CourseTopicQuestion, error) {
	if filters.TopicID == nil {
		return nil, fmt.Errorf("question query requires a topic scope")
	}
	query := r.db.WithContext(ctx).
		Where("topic_id = ? AND active = ?", *filters.TopicID, true)
	if !filters.IncludeHidden {
		query = query.Where("hidden = ?", false)
	}
	if filters.UserID != nil {
		userID := *filters.UserID
		query = query.Preload("Grades", func(db *gorm.DB) *gorm.DB {
			return db.Where("user_id = ?", userID)
		})
	}
	query = query.Order("problem_number ASC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var questions []*models.CourseTopicQuestion
	if err := query.Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, nil
}

func (r *PostgreSQLQuestionRepository) Park(ctx context.Context, id uint) error {
	return r.helpers.park(ctx, r.columns, id)
}

func (r *PostgreSQLQuestionRepository) Place(ctx context.Context, id uint, scopeID uint, order int) error {
	return r.helpers.place(ctx, r.columns, id, scopeID, order)
}

func (r *PostgreSQLQuestionRepository) ShiftDown(ctx context.Context, scopeID uint, after int) error {
	return r.helpers.shiftDown(ctx, r.columns, scopeID, after)
}

func (r *PostgreSQLQuestionRepository) ShiftUp(ctx context.Context, scopeID uint, from int) error {
	return r.helpers.shiftUp(ctx, r.columns, scopeID, from)
}

func (r *PostgreSQLQuestionRepository) MaxOrder(ctx context.Context, scopeID uint) (int, error) {
	return r.helpers.maxOrder(ctx, r.columns, scopeID)
}

func (r *PostgreSQLQuestionRepository) NextDeletedOffset(ctx context.Context, scopeID uint) (int, error) {
	return r.helpers.nextDeletedOffset(ctx, r.columns, scopeID)
}

func (r *PostgreSQLQuestionRepository) Deactivate(ctx context.Context, id uint, offset int) (int64, error) {
	return r.helpers.deactivate(ctx, r.columns, id, offset)
}

func (r *PostgreSQLQuestionRepository) Stats(ctx context.Context, topicID *uint, courseID *uint) ([]*repositories.ContentStats, error) {
	query := `
		SELECT
			q.id,
			'Problem ' || q.problem_number AS name,
			COALESCE(AVG(g.num_attempts), 0) AS average_attempted_count,
			COALESCE(AVG(g.best_score), 0) AS average_score,
			COUNT(g.id) AS total_grades,
			COUNT(CASE WHEN g.overall_best_score >= 1 THEN 1 END) AS completed_count
		FROM course_topic_questions q
		JOIN course_topic_contents t ON t.id = q.topic_id AND t.active
		JOIN course_unit_contents u ON u.id = t.unit_id AND u.active
		LEFT JOIN student_grades g ON g.question_id = q.id
		WHERE q.active AND %s
		GROUP BY q.id, q.problem_number
		ORDER BY q.problem_number`

	var rows []statsRow
	var err error
	switch {
	case topicID != nil:
		err = r.db.WithContext(ctx).Raw(fmt.Sprintf(query, "q.topic_id = ?"), *topicID).Scan(&rows).Error
	case courseID != nil:
		err = r.db.WithContext(ctx).Raw(fmt.Sprintf(query, "u.course_id = ?"), *courseID).Scan(&rows).Error
	default:
		return nil, fmt.Errorf("question statistics require a topic or course scope")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compute question statistics: %w", err)
	}
	return toContentStats(rows), nil
}
