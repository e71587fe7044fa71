package services

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/openedu/course-service/internal/models"
	"github.com/openedu/course-service/internal/renderer"
	"github.com/openedu/course-service/internal/repositories"
)

// mockRepository is an in-memory repositories.Repository. Sequence
// operations mirror the postgres semantics: dense 1-based orders among
// active rows, sentinel parking, monotonic soft-delete offsets.
type mockRepository struct {
	courses     map[uint]*models.Course
	enrollments []*models.StudentEnrollment
	units       map[uint]*models.CourseUnitContent
	topics      map[uint]*models.CourseTopicContent
	questions   map[uint]*models.CourseTopicQuestion
	grades      map[string]*models.StudentGrade
	workbooks   []*models.StudentWorkbook

	topicOverrides    []*models.StudentTopicOverride
	questionOverrides []*models.StudentTopicQuestionOverride

	roles map[string]models.UserRole

	nextID uint
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		courses:   map[uint]*models.Course{},
		units:     map[uint]*models.CourseUnitContent{},
		topics:    map[uint]*models.CourseTopicContent{},
		questions: map[uint]*models.CourseTopicQuestion{},
		grades:    map[string]*models.StudentGrade{},
		roles:     map[string]models.UserRole{},
	}
}

func (m *mockRepository) id() uint {
	m.nextID++
	return m.nextID
}

func gradeKey(userID string, questionID uint) string {
	return fmt.Sprintf("%s|%d", userID, questionID)
}

func (m *mockRepository) Course() repositories.CourseRepository         { return &mockCourseRepo{m} }
func (m *mockRepository) Enrollment() repositories.EnrollmentRepository { return &mockEnrollmentRepo{m} }
func (m *mockRepository) Unit() repositories.UnitRepository             { return &mockUnitRepo{m} }
func (m *mockRepository) Topic() repositories.TopicRepository           { return &mockTopicRepo{m} }
func (m *mockRepository) Question() repositories.QuestionRepository     { return &mockQuestionRepo{m} }
func (m *mockRepository) Grade() repositories.GradeRepository           { return &mockGradeRepo{m} }
func (m *mockRepository) Workbook() repositories.WorkbookRepository     { return &mockWorkbookRepo{m} }
func (m *mockRepository) Override() repositories.OverrideRepository     { return &mockOverrideRepo{m} }
func (m *mockRepository) User() repositories.UserRepository             { return &mockUserRepo{m} }

func (m *mockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}

func (m *mockRepository) Ping(ctx context.Context) error { return nil }
func (m *mockRepository) Close() error                   { return nil }

// ===== COURSES / ENROLLMENTS =====

type mockCourseRepo struct{ m *mockRepository }

func (r *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	course.ID = r.m.id()
	r.m.courses[course.ID] = course
	return nil
}

func (r *mockCourseRepo) GetByID(ctx context.Context, id uint) (*models.Course, error) {
	course, ok := r.m.courses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return course, nil
}

func (r *mockCourseRepo) GetByIDWithContent(ctx context.Context, id uint) (*models.Course, error) {
	return r.GetByID(ctx, id)
}

func (r *mockCourseRepo) GetByCode(ctx context.Context, code string) (*models.Course, error) {
	for _, course := range r.m.courses {
		if course.Code == code {
			return course, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	if _, ok := r.m.courses[course.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.m.courses[course.ID] = course
	return nil
}

func (r *mockCourseRepo) List(ctx context.Context, filters repositories.CourseFilters) ([]*models.Course, int64, error) {
	var out []*models.Course
	for _, course := range r.m.courses {
		if filters.InstructorID != nil && course.InstructorID != *filters.InstructorID {
			continue
		}
		out = append(out, course)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *mockCourseRepo) Gradebook(ctx context.Context, courseID uint) ([]*repositories.GradebookRow, error) {
	return nil, nil
}

type mockEnrollmentRepo struct{ m *mockRepository }

func (r *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.StudentEnrollment) error {
	enrollment.ID = r.m.id()
	r.m.enrollments = append(r.m.enrollments, enrollment)
	return nil
}

func (r *mockEnrollmentRepo) GetByUserAndCourse(ctx context.Context, userID string, courseID uint) (*models.StudentEnrollment, error) {
	for _, e := range r.m.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			return e, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockEnrollmentRepo) GetByCourse(ctx context.Context, courseID uint) ([]*models.StudentEnrollment, error) {
	var out []*models.StudentEnrollment
	for _, e := range r.m.enrollments {
		if e.CourseID == courseID && e.DropDate == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *mockEnrollmentRepo) Update(ctx context.Context, enrollment *models.StudentEnrollment) error {
	return nil
}

// ===== SEQUENCE ROWS =====

// seqRow is the uniform view the sequence fake operates on.
type seqRow struct {
	scope  *uint
	order  *int
	active *bool
}

type mockSequence struct {
	rows   func() map[uint]seqRow
	unique string
}

func (s *mockSequence) get(id uint) (seqRow, bool) {
	row, ok := s.rows()[id]
	return row, ok
}

// checkUnique mirrors the active-scoped unique index on (scope, order):
// any statement leaving two active rows on the same position fails the
// way postgres would.
func (s *mockSequence) checkUnique() error {
	type position struct {
		scope uint
		order int
	}
	seen := map[position]bool{}
	for _, row := range s.rows() {
		if !*row.active {
			continue
		}
		pos := position{*row.scope, *row.order}
		if seen[pos] {
			return &repositories.ConstraintError{
				Constraint: s.unique,
				Unique:     true,
				Err:        fmt.Errorf("duplicate order %d in scope %d", pos.order, pos.scope),
			}
		}
		seen[pos] = true
	}
	return nil
}

func (s *mockSequence) Park(ctx context.Context, id uint) error {
	row, ok := s.get(id)
	if !ok || !*row.active {
		return gorm.ErrRecordNotFound
	}
	*row.order = models.SentinelContentOrder
	return s.checkUnique()
}

func (s *mockSequence) Place(ctx context.Context, id uint, scopeID uint, order int) error {
	row, ok := s.get(id)
	if !ok {
		return gorm.ErrRecordNotFound
	}
	*row.scope = scopeID
	*row.order = order
	return s.checkUnique()
}

func (s *mockSequence) ShiftDown(ctx context.Context, scopeID uint, after int) error {
	for _, row := range s.rows() {
		if *row.active && *row.scope == scopeID && *row.order > after && *row.order < models.SentinelContentOrder {
			*row.order--
		}
	}
	return s.checkUnique()
}

func (s *mockSequence) ShiftUp(ctx context.Context, scopeID uint, from int) error {
	for _, row := range s.rows() {
		if *row.active && *row.scope == scopeID && *row.order >= from && *row.order < models.SentinelContentOrder {
			*row.order++
		}
	}
	return s.checkUnique()
}

func (s *mockSequence) MaxOrder(ctx context.Context, scopeID uint) (int, error) {
	max := 0
	for _, row := range s.rows() {
		if *row.active && *row.scope == scopeID && *row.order < models.SentinelContentOrder && *row.order > max {
			max = *row.order
		}
	}
	return max, nil
}

func (s *mockSequence) NextDeletedOffset(ctx context.Context, scopeID uint) (int, error) {
	max := 0
	for _, row := range s.rows() {
		if *row.scope == scopeID && *row.order > max {
			max = *row.order
		}
	}
	return max + 1, nil
}

func (s *mockSequence) Deactivate(ctx context.Context, id uint, offset int) (int64, error) {
	row, ok := s.get(id)
	if !ok || !*row.active {
		return 0, nil
	}
	*row.active = false
	*row.order += offset
	return 1, nil
}

// ===== UNITS =====

type mockUnitRepo struct{ m *mockRepository }

func (r *mockUnitRepo) seq() *mockSequence {
	return &mockSequence{unique: models.ConstraintUniqueUnitOrderPerCourse, rows: func() map[uint]seqRow {
		rows := make(map[uint]seqRow, len(r.m.units))
		for id, u := range r.m.units {
			rows[id] = seqRow{scope: &u.CourseID, order: &u.ContentOrder, active: &u.Active}
		}
		return rows
	}}
}

func (r *mockUnitRepo) Park(ctx context.Context, id uint) error   { return r.seq().Park(ctx, id) }
func (r *mockUnitRepo) Place(ctx context.Context, id, scopeID uint, order int) error {
	return r.seq().Place(ctx, id, scopeID, order)
}
func (r *mockUnitRepo) ShiftDown(ctx context.Context, scopeID uint, after int) error {
	return r.seq().ShiftDown(ctx, scopeID, after)
}
func (r *mockUnitRepo) ShiftUp(ctx context.Context, scopeID uint, from int) error {
	return r.seq().ShiftUp(ctx, scopeID, from)
}
func (r *mockUnitRepo) MaxOrder(ctx context.Context, scopeID uint) (int, error) {
	return r.seq().MaxOrder(ctx, scopeID)
}
func (r *mockUnitRepo) NextDeletedOffset(ctx context.Context, scopeID uint) (int, error) {
	return r.seq().NextDeletedOffset(ctx, scopeID)
}
func (r *mockUnitRepo) Deactivate(ctx context.Context, id uint, offset int) (int64, error) {
	return r.seq().Deactivate(ctx, id, offset)
}

func (r *mockUnitRepo) Create(ctx context.Context, unit *models.CourseUnitContent) error {
	unit.ID = r.m.id()
	r.m.units[unit.ID] = unit
	return nil
}

func (r *mockUnitRepo) GetByID(ctx context.Context, id uint) (*models.CourseUnitContent, error) {
	unit, ok := r.m.units[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return unit, nil
}

func (r *mockUnitRepo) GetByIDWithTopics(ctx context.Context, id uint) (*models.CourseUnitContent, error) {
	return r.GetByID(ctx, id)
}

func (r *mockUnitRepo) Update(ctx context.Context, unit *models.CourseUnitContent) error {
	r.m.units[unit.ID] = unit
	return nil
}

func (r *mockUnitRepo) UpdateFields(ctx context.Context, id uint, updates map[string]interface{}) (int64, error) {
	unit, ok := r.m.units[id]
	if !ok || !unit.Active {
		return 0, nil
	}
	if name, ok := updates["name"].(string); ok {
		unit.Name = name
	}
	return 1, nil
}

func (r *mockUnitRepo) GetByCourse(ctx context.Context, courseID uint) ([]*models.CourseUnitContent, error) {
	var out []*models.CourseUnitContent
	for _, u := range r.m.units {
		if u.CourseID == courseID && u.Active {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentOrder < out[j].ContentOrder })
	return out, nil
}

func (r *mockUnitRepo) Stats(ctx context.Context, courseID uint) ([]*repositories.ContentStats, error) {
	return nil, nil
}

// ===== TOPICS =====

type mockTopicRepo struct{ m *mockRepository }

func (r *mockTopicRepo) seq() *mockSequence {
	return &mockSequence{unique: models.ConstraintUniqueTopicOrderPerUnit, rows: func() map[uint]seqRow {
		rows := make(map[uint]seqRow, len(r.m.topics))
		for id, t := range r.m.topics {
			rows[id] = seqRow{scope: &t.UnitID, order: &t.ContentOrder, active: &t.Active}
		}
		return rows
	}}
}

func (r *mockTopicRepo) Park(ctx context.Context, id uint) error { return r.seq().Park(ctx, id) }
func (r *mockTopicRepo) Place(ctx context.Context, id, scopeID uint, order int) error {
	return r.seq().Place(ctx, id, scopeID, order)
}
func (r *mockTopicRepo) ShiftDown(ctx context.Context, scopeID uint, after int) error {
	return r.seq().ShiftDown(ctx, scopeID, after)
}
func (r *mockTopicRepo) ShiftUp(ctx context.Context, scopeID uint, from int) error {
	return r.seq().ShiftUp(ctx, scopeID, from)
}
func (r *mockTopicRepo) MaxOrder(ctx context.Context, scopeID uint) (int, error) {
	return r.seq().MaxOrder(ctx, scopeID)
}
func (r *mockTopicRepo) NextDeletedOffset(ctx context.Context, scopeID uint) (int, error) {
	return r.seq().NextDeletedOffset(ctx, scopeID)
}
func (r *mockTopicRepo) Deactivate(ctx context.Context, id uint, offset int) (int64, error) {
	return r.seq().Deactivate(ctx, id, offset)
}

func (r *mockTopicRepo) Create(ctx context.Context, topic *models.CourseTopicContent) error {
	topic.ID = r.m.id()
	r.m.topics[topic.ID] = topic
	return nil
}

func (r *mockTopicRepo) GetByID(ctx context.Context, id uint) (*models.CourseTopicContent, error) {
	topic, ok := r.m.topics[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return topic, nil
}

func (r *mockTopicRepo) GetByIDWithQuestions(ctx context.Context, id uint) (*models.CourseTopicContent, error) {
	return r.GetByID(ctx, id)
}

func (r *mockTopicRepo) Update(ctx context.Context, topic *models.CourseTopicContent) error {
	r.m.topics[topic.ID] = topic
	return nil
}

func (r *mockTopicRepo) UpdateFields(ctx context.Context, id uint, updates map[string]interface{}) (int64, error) {
	topic, ok := r.m.topics[id]
	if !ok || !topic.Active {
		return 0, nil
	}
	if name, ok := updates["name"].(string); ok {
		topic.Name = name
	}
	return 1, nil
}

func (r *mockTopicRepo) GetByUnit(ctx context.Context, unitID uint) ([]*models.CourseTopicContent, error) {
	// Copies, not the stored pointers: a gorm Find returns row snapshots
	// that do not see later writes in the same transaction.
	var out []*models.CourseTopicContent
	for _, t := range r.m.topics {
		if t.UnitID == unitID && t.Active {
			row := *t
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentOrder < out[j].ContentOrder })
	return out, nil
}

func (r *mockTopicRepo) List(ctx context.Context, filters repositories.TopicFilters) ([]*models.CourseTopicContent, error) {
	var out []*models.CourseTopicContent
	for _, t := range r.m.topics {
		if !t.Active {
			continue
		}
		if filters.UnitID != nil && t.UnitID != *filters.UnitID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentOrder < out[j].ContentOrder })
	return out, nil
}

func (r *mockTopicRepo) Stats(ctx context.Context, unitID *uint, courseID *uint) ([]*repositories.ContentStats, error) {
	return nil, nil
}

// ===== QUESTIONS =====

type mockQuestionRepo struct{ m *mockRepository }

func (r *mockQuestionRepo) seq() *mockSequence {
	return &mockSequence{unique: models.ConstraintUniqueQuestionOrderPerTopic, rows: func() map[uint]seqRow {
		rows := make(map[uint]seqRow, len(r.m.questions))
		for id, q := range r.m.questions {
			rows[id] = seqRow{scope: &q.TopicID, order: &q.ProblemNumber, active: &q.Active}
		}
		return rows
	}}
}

func (r *mockQuestionRepo) Park(ctx context.Context, id uint) error { return r.seq().Park(ctx, id) }
func (r *mockQuestionRepo) Place(ctx context.Context, id, scopeID uint, order int) error {
	return r.seq().Place(ctx, id, scopeID, order)
}
func (r *mockQuestionRepo) ShiftDown(ctx context.Context, scopeID uint, after int) error {
	return r.seq().ShiftDown(ctx, scopeID, after)
}
func (r *mockQuestionRepo) ShiftUp(ctx context.Context, scopeID uint, from int) error {
	return r.seq().ShiftUp(ctx, scopeID, from)
}
func (r *mockQuestionRepo) MaxOrder(ctx context.Context, scopeID uint) (int, error) {
	return r.seq().MaxOrder(ctx, scopeID)
}
func (r *mockQuestionRepo) NextDeletedOffset(ctx context.Context, scopeID uint) (int, error) {
	return r.seq().NextDeletedOffset(ctx, scopeID)
}
func (r *mockQuestionRepo) Deactivate(ctx context.Context, id uint, offset int) (int64, error) {
	return r.seq().Deactivate(ctx, id, offset)
}

func (r *mockQuestionRepo) Create(ctx context.Context, question *models.CourseTopicQuestion) error {
	question.ID = r.m.id()
	r.m.questions[question.ID] = question
	return nil
}

func (r *mockQuestionRepo) GetByID(ctx context.Context, id uint) (*models.CourseTopicQuestion, error) {
	question, ok := r.m.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return question, nil
}

func (r *mockQuestionRepo) GetByIDWithTopic(ctx context.Context, id uint) (*models.CourseTopicQuestion, error) {
	question, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if topic, ok := r.m.topics[question.TopicID]; ok {
		question.Topic = topic
	}
	return question, nil
}

func (r *mockQuestionRepo) Update(ctx context.Context, question *models.CourseTopicQuestion) error {
	r.m.questions[question.ID] = question
	return nil
}

func (r *mockQuestionRepo) GetByTopic(ctx context.Context, filters repositories.QuestionFilters) ([]*models.CourseTopicQuestion, error) {
	var out []*models.CourseTopicQuestion
	for _, q := range r.m.questions {
		if !q.Active {
			continue
		}
		if filters.TopicID != nil && q.TopicID != *filters.TopicID {
			continue
		}
		if q.Hidden && !filters.IncludeHidden {
			continue
		}
		// Snapshot copy, same as GetByUnit.
		row := *q
		out = append(out, &row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProblemNumber < out[j].ProblemNumber })
	return out, nil
}

func (r *mockQuestionRepo) Stats(ctx context.Context, topicID *uint, courseID *uint) ([]*repositories.ContentStats, error) {
	return nil, nil
}

// ===== GRADES =====

type mockGradeRepo struct{ m *mockRepository }

func (r *mockGradeRepo) Create(ctx context.Context, grade *models.StudentGrade) error {
	key := gradeKey(grade.UserID, grade.QuestionID)
	if _, exists := r.m.grades[key]; exists {
		return &repositories.ConstraintError{
			Constraint: models.ConstraintUniqueGradePerUserQuestion,
			Unique:     true,
			Err:        fmt.Errorf("duplicate grade"),
		}
	}
	grade.ID = r.m.id()
	r.m.grades[key] = grade
	return nil
}

func (r *mockGradeRepo) GetByID(ctx context.Context, id uint) (*models.StudentGrade, error) {
	for _, g := range r.m.grades {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockGradeRepo) GetByUserAndQuestion(ctx context.Context, userID string, questionID uint) (*models.StudentGrade, error) {
	grade, ok := r.m.grades[gradeKey(userID, questionID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return grade, nil
}

func (r *mockGradeRepo) Update(ctx context.Context, grade *models.StudentGrade) error {
	r.m.grades[gradeKey(grade.UserID, grade.QuestionID)] = grade
	return nil
}

func (r *mockGradeRepo) GetByQuestion(ctx context.Context, questionID uint) ([]*models.StudentGrade, error) {
	var out []*models.StudentGrade
	for _, g := range r.m.grades {
		if g.QuestionID == questionID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *mockGradeRepo) Aggregates(ctx context.Context, filters repositories.GradeFilters) ([]*repositories.GradeAggregate, error) {
	return nil, nil
}

func (r *mockGradeRepo) QuestionsMissingGradeForUser(ctx context.Context, courseID uint, userID string) ([]uint, error) {
	var out []uint
	for _, questionID := range r.m.activeQuestionIDsInCourse(courseID) {
		if _, ok := r.m.grades[gradeKey(userID, questionID)]; !ok {
			out = append(out, questionID)
		}
	}
	return out, nil
}

func (r *mockGradeRepo) UsersMissingGradeForQuestion(ctx context.Context, questionID uint) ([]string, error) {
	question, ok := r.m.questions[questionID]
	if !ok || !question.Active {
		return nil, nil
	}
	topic, ok := r.m.topics[question.TopicID]
	if !ok {
		return nil, nil
	}
	unit, ok := r.m.units[topic.UnitID]
	if !ok {
		return nil, nil
	}

	var out []string
	for _, e := range r.m.enrollments {
		if e.CourseID != unit.CourseID || e.DropDate != nil {
			continue
		}
		if _, ok := r.m.grades[gradeKey(e.UserID, questionID)]; !ok {
			out = append(out, e.UserID)
		}
	}
	return out, nil
}

func (r *mockGradeRepo) FindMissingGrades(ctx context.Context) ([]*repositories.MissingGrade, error) {
	var out []*repositories.MissingGrade
	for _, e := range r.m.enrollments {
		if e.DropDate != nil {
			continue
		}
		for _, questionID := range r.m.activeQuestionIDsInCourse(e.CourseID) {
			if _, ok := r.m.grades[gradeKey(e.UserID, questionID)]; !ok {
				out = append(out, &repositories.MissingGrade{UserID: e.UserID, QuestionID: questionID})
			}
		}
	}
	return out, nil
}

func (m *mockRepository) activeQuestionIDsInCourse(courseID uint) []uint {
	var out []uint
	for id, q := range m.questions {
		if !q.Active {
			continue
		}
		topic, ok := m.topics[q.TopicID]
		if !ok || !topic.Active {
			continue
		}
		unit, ok := m.units[topic.UnitID]
		if !ok || !unit.Active || unit.CourseID != courseID {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ===== WORKBOOKS / OVERRIDES / USERS =====

type mockWorkbookRepo struct{ m *mockRepository }

func (r *mockWorkbookRepo) Create(ctx context.Context, workbook *models.StudentWorkbook) error {
	workbook.ID = r.m.id()
	r.m.workbooks = append(r.m.workbooks, workbook)
	return nil
}

func (r *mockWorkbookRepo) GetByGrade(ctx context.Context, gradeID uint) ([]*models.StudentWorkbook, error) {
	var out []*models.StudentWorkbook
	for _, wb := range r.m.workbooks {
		if wb.GradeID == gradeID {
			out = append(out, wb)
		}
	}
	return out, nil
}

type mockOverrideRepo struct{ m *mockRepository }

func (r *mockOverrideRepo) ActiveTopicOverrides(ctx context.Context, userID string, topicID uint) ([]*models.StudentTopicOverride, error) {
	var out []*models.StudentTopicOverride
	for _, o := range r.m.topicOverrides {
		if o.Active && o.UserID == userID && o.TopicID == topicID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *mockOverrideRepo) ActiveQuestionOverrides(ctx context.Context, userID string, questionID uint) ([]*models.StudentTopicQuestionOverride, error) {
	var out []*models.StudentTopicQuestionOverride
	for _, o := range r.m.questionOverrides {
		if o.Active && o.UserID == userID && o.QuestionID == questionID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *mockOverrideRepo) CreateTopicOverride(ctx context.Context, override *models.StudentTopicOverride) error {
	override.ID = r.m.id()
	r.m.topicOverrides = append(r.m.topicOverrides, override)
	return nil
}

func (r *mockOverrideRepo) CreateQuestionOverride(ctx context.Context, override *models.StudentTopicQuestionOverride) error {
	override.ID = r.m.id()
	r.m.questionOverrides = append(r.m.questionOverrides, override)
	return nil
}

type mockUserRepo struct{ m *mockRepository }

func (r *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	role, ok := r.m.roles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.User{ID: id, Role: role}, nil
}

func (r *mockUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *mockUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	var out []*models.User
	for _, id := range ids {
		if user, err := r.GetByID(ctx, id); err == nil {
			out = append(out, user)
		}
	}
	return out, nil
}

func (r *mockUserRepo) GetRole(ctx context.Context, id string) (models.UserRole, error) {
	role, ok := r.m.roles[id]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return role, nil
}

func (r *mockUserRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, ok := r.m.roles[id]
	return ok, nil
}

func (r *mockUserRepo) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	actual, ok := r.m.roles[id]
	return ok && actual == role, nil
}

// ===== RENDERER =====

// mockRenderer returns a fixed score and records the requests it saw.
type mockRenderer struct {
	score    float64
	err      error
	requests []renderer.ProblemRequest
}

func (r *mockRenderer) GetProblem(ctx context.Context, req renderer.ProblemRequest) (*renderer.ProblemResponse, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	resp := &renderer.ProblemResponse{RenderedHTML: "<div>problem</div>"}
	if hasSubmitMarker(req.FormData) {
		resp.ProblemResult = &renderer.ProblemResult{Score: r.score}
	}
	return resp, nil
}

func (r *mockRenderer) HealthCheck(ctx context.Context) error { return nil }
