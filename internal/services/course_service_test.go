package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openedu/course-service/internal/cache"
	"github.com/openedu/course-service/internal/events"
	"github.com/openedu/course-service/internal/models"
	"github.com/openedu/course-service/internal/validator"
)

type courseFixture struct {
	repo   *mockRepository
	events *events.MockEventPublisher
	svc    CourseService
}

func newCourseFixture(t *testing.T) *courseFixture {
	t.Helper()

	repo := newMockRepository()
	repo.roles[testStudent] = models.RoleStudent
	repo.roles[testProfessor] = models.RoleProfessor
	repo.roles["admin-1"] = models.RoleAdmin

	publisher := events.NewMockEventPublisher(testLogger())
	svc := NewCourseService(repo, cache.NewCacheManager(nil), publisher, testLogger(), validator.New())

	return &courseFixture{repo: repo, events: publisher, svc: svc}
}

func (f *courseFixture) createCourse(t *testing.T) *models.Course {
	t.Helper()
	now := time.Now()
	course, err := f.svc.CreateCourse(context.Background(), &CreateCourseRequest{
		Name:      "Calculus I",
		Code:      "CALC1",
		StartDate: now,
		EndDate:   now.Add(90 * 24 * time.Hour),
	}, testProfessor)
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	return course
}

// addQuestion wires a full active content path so enrollment backfill can
// find the question.
func (f *courseFixture) addQuestion(courseID uint) *models.CourseTopicQuestion {
	unit := &models.CourseUnitContent{CourseID: courseID, Name: "Limits", ContentOrder: 1, Active: true}
	unit.ID = f.repo.id()
	f.repo.units[unit.ID] = unit

	now := time.Now()
	topic := &models.CourseTopicContent{
		UnitID:       unit.ID,
		Name:         "Week 1",
		ContentOrder: 1,
		StartDate:    now,
		EndDate:      now.Add(24 * time.Hour),
		DeadDate:     now.Add(48 * time.Hour),
		Active:       true,
	}
	topic.ID = f.repo.id()
	f.repo.topics[topic.ID] = topic

	question := &models.CourseTopicQuestion{
		TopicID:             topic.ID,
		ProblemNumber:       1,
		Weight:              1,
		MaxAttempts:         models.UnlimitedAttempts,
		WebworkQuestionPath: "Library/Calculus/limits1.pg",
		Active:              true,
	}
	question.ID = f.repo.id()
	f.repo.questions[question.ID] = question
	return question
}

func TestCreateCourseRequiresProfessor(t *testing.T) {
	f := newCourseFixture(t)
	now := time.Now()

	_, err := f.svc.CreateCourse(context.Background(), &CreateCourseRequest{
		Name:      "Rogue Course",
		Code:      "ROGUE",
		StartDate: now,
		EndDate:   now.Add(time.Hour),
	}, testStudent)
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected a permission error, got %v", err)
	}
}

func TestCreateCoursePublishesEvent(t *testing.T) {
	f := newCourseFixture(t)

	course := f.createCourse(t)
	if course.InstructorID != testProfessor {
		t.Errorf("InstructorID = %q", course.InstructorID)
	}

	published := f.events.GetPublishedEvents()
	if len(published) != 1 || published[0].Type != events.EventTypeCourseCreated {
		t.Fatalf("published = %v", published)
	}
}

func TestEnrollBackfillsGrades(t *testing.T) {
	f := newCourseFixture(t)
	course := f.createCourse(t)
	question := f.addQuestion(course.ID)

	resp, err := f.svc.Enroll(context.Background(), &EnrollRequest{
		UserID:   testStudent,
		CourseID: course.ID,
	})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if resp.GradesCreated != 1 {
		t.Errorf("GradesCreated = %d, want 1", resp.GradesCreated)
	}
	if !resp.Enrollment.Active() {
		t.Error("enrollment not active")
	}
	if _, ok := f.repo.grades[gradeKey(testStudent, question.ID)]; !ok {
		t.Error("expected a grade row for the enrolled student")
	}
}

func TestEnrollTwiceFails(t *testing.T) {
	f := newCourseFixture(t)
	course := f.createCourse(t)

	req := &EnrollRequest{UserID: testStudent, CourseID: course.ID}
	if _, err := f.svc.Enroll(context.Background(), req); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if _, err := f.svc.Enroll(context.Background(), req); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("second enroll: expected already-exists, got %v", err)
	}
}

func TestReEnrollAfterDropKeepsRow(t *testing.T) {
	f := newCourseFixture(t)
	course := f.createCourse(t)

	first, err := f.svc.Enroll(context.Background(), &EnrollRequest{UserID: testStudent, CourseID: course.ID})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if err := f.svc.DropStudent(context.Background(), testStudent, course.ID); err != nil {
		t.Fatalf("DropStudent: %v", err)
	}

	second, err := f.svc.Enroll(context.Background(), &EnrollRequest{UserID: testStudent, CourseID: course.ID})
	if err != nil {
		t.Fatalf("re-enroll: %v", err)
	}
	if second.Enrollment.ID != first.Enrollment.ID {
		t.Errorf("re-enroll created a new row: %d != %d", second.Enrollment.ID, first.Enrollment.ID)
	}
	if !second.Enrollment.Active() {
		t.Error("re-enrolled row not active")
	}
}

func TestEnrollByCode(t *testing.T) {
	f := newCourseFixture(t)
	course := f.createCourse(t)

	resp, err := f.svc.EnrollByCode(context.Background(), &EnrollByCodeRequest{
		UserID: testStudent,
		Code:   course.Code,
	})
	if err != nil {
		t.Fatalf("EnrollByCode: %v", err)
	}
	if resp.Enrollment.CourseID != course.ID {
		t.Errorf("CourseID = %d, want %d", resp.Enrollment.CourseID, course.ID)
	}

	_, err = f.svc.EnrollByCode(context.Background(), &EnrollByCodeRequest{
		UserID: testStudent,
		Code:   "NOPE",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown code: expected not-found, got %v", err)
	}
}

func TestDropStudentTwice(t *testing.T) {
	f := newCourseFixture(t)
	course := f.createCourse(t)

	if _, err := f.svc.Enroll(context.Background(), &EnrollRequest{UserID: testStudent, CourseID: course.ID}); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if err := f.svc.DropStudent(context.Background(), testStudent, course.ID); err != nil {
		t.Fatalf("DropStudent: %v", err)
	}
	if err := f.svc.DropStudent(context.Background(), testStudent, course.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second drop: expected not-found, got %v", err)
	}
}

func TestUpdateCourseAccess(t *testing.T) {
	f := newCourseFixture(t)
	course := f.createCourse(t)

	name := "Calculus I (Honors)"
	_, err := f.svc.UpdateCourse(context.Background(), course.ID, &UpdateCourseRequest{Name: &name}, testStudent)
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("student update: expected a permission error, got %v", err)
	}

	updated, err := f.svc.UpdateCourse(context.Background(), course.ID, &UpdateCourseRequest{Name: &name}, "admin-1")
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if updated.Name != name {
		t.Errorf("Name = %q, want %q", updated.Name, name)
	}
}

func TestUpdateCourseRejectsInvertedDates(t *testing.T) {
	f := newCourseFixture(t)
	course := f.createCourse(t)

	badEnd := course.StartDate.Add(-24 * time.Hour)
	_, err := f.svc.UpdateCourse(context.Background(), course.ID, &UpdateCourseRequest{EndDate: &badEnd}, testProfessor)
	var verr *validator.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestGetGradesRequiresSingleScope(t *testing.T) {
	f := newCourseFixture(t)

	_, err := f.svc.GetGrades(context.Background(), &GetGradesRequest{})
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}
}
