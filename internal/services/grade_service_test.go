package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/openedu/course-service/internal/cache"
	"github.com/openedu/course-service/internal/events"
	"github.com/openedu/course-service/internal/models"
	"github.com/openedu/course-service/internal/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// gradeFixture wires a GradeService over the in-memory repository with one
// course / unit / topic / question and one enrolled student holding a grade.
type gradeFixture struct {
	repo     *mockRepository
	renderer *mockRenderer
	events   *events.MockEventPublisher
	svc      GradeService

	topic    *models.CourseTopicContent
	question *models.CourseTopicQuestion
	grade    *models.StudentGrade
}

const (
	testStudent   = "student-1"
	testProfessor = "prof-1"
)

// newGradeFixture builds the fixture with the topic's end and dead dates at
// the given offsets from now. The start date is always in the past.
func newGradeFixture(t *testing.T, endOffset, deadOffset time.Duration) *gradeFixture {
	t.Helper()
	now := time.Now()

	repo := newMockRepository()
	repo.roles[testStudent] = models.RoleStudent
	repo.roles[testProfessor] = models.RoleProfessor

	course := &models.Course{Name: "Calculus I", Code: "CALC1"}
	course.ID = repo.id()
	repo.courses[course.ID] = course

	unit := &models.CourseUnitContent{CourseID: course.ID, Name: "Limits", ContentOrder: 1, Active: true}
	unit.ID = repo.id()
	repo.units[unit.ID] = unit

	topic := &models.CourseTopicContent{
		UnitID:       unit.ID,
		Name:         "Week 1",
		ContentOrder: 1,
		StartDate:    now.Add(-48 * time.Hour),
		EndDate:      now.Add(endOffset),
		DeadDate:     now.Add(deadOffset),
		Active:       true,
	}
	topic.ID = repo.id()
	repo.topics[topic.ID] = topic

	question := &models.CourseTopicQuestion{
		TopicID:             topic.ID,
		ProblemNumber:       1,
		Weight:              1,
		MaxAttempts:         models.UnlimitedAttempts,
		WebworkQuestionPath: "Library/Calculus/limits1.pg",
		Active:              true,
	}
	question.ID = repo.id()
	repo.questions[question.ID] = question

	repo.enrollments = append(repo.enrollments, &models.StudentEnrollment{
		ID:         repo.id(),
		UserID:     testStudent,
		CourseID:   course.ID,
		EnrollDate: now.Add(-24 * time.Hour),
	})

	grade := &models.StudentGrade{
		UserID:     testStudent,
		QuestionID: question.ID,
		RandomSeed: 4242,
	}
	grade.ID = repo.id()
	repo.grades[gradeKey(testStudent, question.ID)] = grade

	rendererMock := &mockRenderer{score: 0.8}
	publisher := events.NewMockEventPublisher(testLogger())
	svc := NewGradeService(repo, rendererMock, publisher, cache.NewCacheManager(nil), testLogger(), validator.New(), 0)

	return &gradeFixture{
		repo:     repo,
		renderer: rendererMock,
		events:   publisher,
		svc:      svc,
		topic:    topic,
		question: question,
		grade:    grade,
	}
}

func submitForm(answer string) map[string][]string {
	return map[string][]string{
		submitMarkerField: {"Check Answers"},
		"AnSwEr0001":      {answer},
	}
}

func (f *gradeFixture) submit(t *testing.T, score float64) *SubmitAnswerResponse {
	t.Helper()
	f.renderer.score = score
	resp, err := f.svc.SubmitAnswer(context.Background(), &SubmitAnswerRequest{
		UserID:     testStudent,
		QuestionID: f.question.ID,
		FormData:   submitForm("42"),
	})
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	return resp
}

func TestSubmitAnswerBeforeEndDate(t *testing.T) {
	f := newGradeFixture(t, 24*time.Hour, 72*time.Hour)

	resp := f.submit(t, 0.8)

	if resp.Workbook == nil {
		t.Fatal("expected a workbook for a scored attempt")
	}
	g := resp.Grade
	if g.NumAttempts != 1 {
		t.Errorf("NumAttempts = %d, want 1", g.NumAttempts)
	}
	for name, got := range map[string]float64{
		"BestScore":              g.BestScore,
		"LegalScore":             g.LegalScore,
		"PartialCreditBestScore": g.PartialCreditBestScore,
		"OverallBestScore":       g.OverallBestScore,
		"EffectiveScore":         g.EffectiveScore,
		"FirstAttempts":          g.FirstAttempts,
		"LatestAttempts":         g.LatestAttempts,
	} {
		if !floatEq(got, 0.8) {
			t.Errorf("%s = %v, want 0.8", name, got)
		}
	}
	if len(g.CurrentProblemState) == 0 {
		t.Error("expected the form snapshot on the grade")
	}
	if n := len(f.repo.workbooks); n != 1 {
		t.Errorf("workbook rows = %d, want 1", n)
	}
	if n := len(f.events.GetPublishedEvents()); n != 1 {
		t.Errorf("published events = %d, want 1", n)
	}
}

func TestSubmitAnswerPartialCreditWindow(t *testing.T) {
	// End date has passed, dead date has not.
	f := newGradeFixture(t, -time.Hour, 72*time.Hour)
	f.grade.NumAttempts = 1
	f.grade.BestScore = 0.6
	f.grade.LegalScore = 0.6
	f.grade.PartialCreditBestScore = 0.6
	f.grade.OverallBestScore = 0.6
	f.grade.EffectiveScore = 0.6
	f.grade.FirstAttempts = 0.6

	resp := f.submit(t, 1.0)

	if resp.Workbook == nil {
		t.Fatal("expected a workbook for a scored attempt")
	}
	g := resp.Grade
	if g.NumAttempts != 2 {
		t.Errorf("NumAttempts = %d, want 2", g.NumAttempts)
	}
	// (1.0 - 0.6) * 0.5 + 0.6 = 0.8
	if !floatEq(g.PartialCreditBestScore, 0.8) {
		t.Errorf("PartialCreditBestScore = %v, want 0.8", g.PartialCreditBestScore)
	}
	if !floatEq(g.EffectiveScore, 0.8) {
		t.Errorf("EffectiveScore = %v, want 0.8", g.EffectiveScore)
	}
	if !floatEq(g.BestScore, 0.8) {
		t.Errorf("BestScore = %v, want 0.8", g.BestScore)
	}
	// The legal (pre-deadline) score must not move after the end date.
	if !floatEq(g.LegalScore, 0.6) {
		t.Errorf("LegalScore = %v, want 0.6", g.LegalScore)
	}
	if !floatEq(g.OverallBestScore, 1.0) {
		t.Errorf("OverallBestScore = %v, want 1.0", g.OverallBestScore)
	}
}

func TestSubmitAnswerLowerScoreNeverLowersBest(t *testing.T) {
	f := newGradeFixture(t, 24*time.Hour, 72*time.Hour)

	f.submit(t, 0.9)
	resp := f.submit(t, 0.4)

	g := resp.Grade
	if g.NumAttempts != 2 {
		t.Errorf("NumAttempts = %d, want 2", g.NumAttempts)
	}
	if !floatEq(g.EffectiveScore, 0.9) {
		t.Errorf("EffectiveScore = %v, want 0.9", g.EffectiveScore)
	}
	if !floatEq(g.BestScore, 0.9) {
		t.Errorf("BestScore = %v, want 0.9", g.BestScore)
	}
	if !floatEq(g.FirstAttempts, 0.9) {
		t.Errorf("FirstAttempts = %v, want 0.9", g.FirstAttempts)
	}
	if !floatEq(g.LatestAttempts, 0.4) {
		t.Errorf("LatestAttempts = %v, want 0.4", g.LatestAttempts)
	}
}

func TestSubmitAnswerAttemptCapExhausted(t *testing.T) {
	f := newGradeFixture(t, 24*time.Hour, 72*time.Hour)
	f.question.MaxAttempts = 2
	f.grade.NumAttempts = 2
	f.grade.EffectiveScore = 0.5
	f.grade.BestScore = 0.5
	f.grade.OverallBestScore = 0.5

	resp := f.submit(t, 0.9)

	if resp.Workbook != nil {
		t.Fatal("no workbook expected once the attempt cap is reached")
	}
	g := resp.Grade
	if g.NumAttempts != 2 {
		t.Errorf("NumAttempts = %d, want 2", g.NumAttempts)
	}
	if !floatEq(g.EffectiveScore, 0.5) {
		t.Errorf("EffectiveScore = %v, want unchanged 0.5", g.EffectiveScore)
	}
	// Practice tracking still moves.
	if !floatEq(g.OverallBestScore, 0.9) {
		t.Errorf("OverallBestScore = %v, want 0.9", g.OverallBestScore)
	}
	if !floatEq(g.LatestAttempts, 0.9) {
		t.Errorf("LatestAttempts = %v, want 0.9", g.LatestAttempts)
	}
	if n := len(f.events.GetPublishedEvents()); n != 0 {
		t.Errorf("published events = %d, want 0", n)
	}
}

func TestSubmitAnswerQuestionOverrideRaisesCap(t *testing.T) {
	f := newGradeFixture(t, 24*time.Hour, 72*time.Hour)
	f.question.MaxAttempts = 1
	f.grade.NumAttempts = 1

	raised := 3
	f.repo.questionOverrides = append(f.repo.questionOverrides, &models.StudentTopicQuestionOverride{
		ID:          f.repo.id(),
		UserID:      testStudent,
		QuestionID:  f.question.ID,
		MaxAttempts: &raised,
		Active:      true,
	})

	resp := f.submit(t, 0.7)

	if resp.Workbook == nil {
		t.Fatal("expected the override to permit another scored attempt")
	}
	if resp.Grade.NumAttempts != 2 {
		t.Errorf("NumAttempts = %d, want 2", resp.Grade.NumAttempts)
	}
}

func TestSubmitAnswerTopicOverrideExtendsWindow(t *testing.T) {
	// The base window is fully closed for everyone else.
	f := newGradeFixture(t, -48*time.Hour, -24*time.Hour)

	extendedEnd := time.Now().Add(24 * time.Hour)
	extendedDead := time.Now().Add(72 * time.Hour)
	f.repo.topicOverrides = append(f.repo.topicOverrides, &models.StudentTopicOverride{
		ID:       f.repo.id(),
		UserID:   testStudent,
		TopicID:  f.topic.ID,
		EndDate:  &extendedEnd,
		DeadDate: &extendedDead,
		Active:   true,
	})

	resp := f.submit(t, 0.8)

	if resp.Workbook == nil {
		t.Fatal("expected the override window to allow a scored attempt")
	}
	if !floatEq(resp.Grade.LegalScore, 0.8) {
		t.Errorf("LegalScore = %v, want 0.8 (full credit inside the extended window)", resp.Grade.LegalScore)
	}
}

func TestSubmitAnswerPastDeadDateIsPracticeOnly(t *testing.T) {
	// Dead date passed an hour ago, solutions not yet visible.
	f := newGradeFixture(t, -24*time.Hour, -time.Hour)
	f.grade.NumAttempts = 3
	f.grade.EffectiveScore = 0.5
	f.grade.BestScore = 0.5
	f.grade.OverallBestScore = 0.5

	resp := f.submit(t, 0.9)

	if resp.Workbook != nil {
		t.Fatal("no workbook expected past the dead date")
	}
	g := resp.Grade
	if g.NumAttempts != 3 {
		t.Errorf("NumAttempts = %d, want unchanged 3", g.NumAttempts)
	}
	if !floatEq(g.EffectiveScore, 0.5) {
		t.Errorf("EffectiveScore = %v, want unchanged 0.5", g.EffectiveScore)
	}
	if !floatEq(g.OverallBestScore, 0.9) {
		t.Errorf("OverallBestScore = %v, want 0.9", g.OverallBestScore)
	}
	if !floatEq(g.LatestAttempts, 0.9) {
		t.Errorf("LatestAttempts = %v, want 0.9", g.LatestAttempts)
	}
}

func TestSubmitAnswerAfterSolutionsVisible(t *testing.T) {
	// Dead date plus the solutions delay is behind us: full no-op.
	f := newGradeFixture(t, -400*time.Hour, -200*time.Hour)
	f.grade.OverallBestScore = 0.5
	f.grade.LatestAttempts = 0.5

	resp := f.submit(t, 0.9)

	g := resp.Grade
	if !floatEq(g.OverallBestScore, 0.5) {
		t.Errorf("OverallBestScore = %v, want unchanged 0.5", g.OverallBestScore)
	}
	if !floatEq(g.LatestAttempts, 0.5) {
		t.Errorf("LatestAttempts = %v, want unchanged 0.5", g.LatestAttempts)
	}
	if resp.Workbook != nil {
		t.Error("no workbook expected once solutions are visible")
	}
}

func TestSubmitAnswerMasteredIsNoOp(t *testing.T) {
	f := newGradeFixture(t, 24*time.Hour, 72*time.Hour)
	f.grade.NumAttempts = 2
	f.grade.OverallBestScore = 1.0
	f.grade.EffectiveScore = 1.0
	f.grade.LatestAttempts = 1.0

	resp := f.submit(t, 0.3)

	if resp.Workbook != nil {
		t.Error("no workbook expected on a mastered grade")
	}
	if resp.Grade.NumAttempts != 2 {
		t.Errorf("NumAttempts = %d, want unchanged 2", resp.Grade.NumAttempts)
	}
	if !floatEq(resp.Grade.LatestAttempts, 1.0) {
		t.Errorf("LatestAttempts = %v, want unchanged 1.0", resp.Grade.LatestAttempts)
	}
}

func TestSubmitAnswerLockedGrade(t *testing.T) {
	f := newGradeFixture(t, 24*time.Hour, 72*time.Hour)
	f.grade.Locked = true

	resp := f.submit(t, 0.8)

	if resp.Workbook != nil {
		t.Fatal("no workbook expected on a locked grade")
	}
	g := resp.Grade
	if g.NumAttempts != 0 {
		t.Errorf("NumAttempts = %d, want 0", g.NumAttempts)
	}
	if !floatEq(g.EffectiveScore, 0) {
		t.Errorf("EffectiveScore = %v, want 0", g.EffectiveScore)
	}
	if !floatEq(g.OverallBestScore, 0.8) {
		t.Errorf("OverallBestScore = %v, want 0.8 (practice tracking)", g.OverallBestScore)
	}
}

func TestSubmitAnswerWithoutGradeRow(t *testing.T) {
	f := newGradeFixture(t, 24*time.Hour, 72*time.Hour)

	resp, err := f.svc.SubmitAnswer(context.Background(), &SubmitAnswerRequest{
		UserID:     testProfessor, // no grade row
		QuestionID: f.question.ID,
		FormData:   submitForm("42"),
	})
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if resp.Grade != nil || resp.Workbook != nil {
		t.Error("expected an empty response for a user without a grade row")
	}
	if len(f.renderer.requests) != 0 {
		t.Error("renderer must not be called without a grade row")
	}
}

func TestSubmitAnswerWithoutMarkerIsNotScored(t *testing.T) {
	f := newGradeFixture(t, 24*time.Hour, 72*time.Hour)

	resp, err := f.svc.SubmitAnswer(context.Background(), &SubmitAnswerRequest{
		UserID:     testStudent,
		QuestionID: f.question.ID,
		FormData:   map[string][]string{"AnSwEr0001": {"42"}},
	})
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if resp.Grade == nil || resp.Grade.NumAttempts != 0 {
		t.Error("expected the grade back unchanged")
	}
	if resp.Workbook != nil {
		t.Error("no workbook expected without the submit marker")
	}
	if len(f.renderer.requests) != 0 {
		t.Error("renderer must not be called without the submit marker")
	}
}

func TestGetQuestionSeedIsStable(t *testing.T) {
	f := newGradeFixture(t, 24*time.Hour, 72*time.Hour)

	req := &GetQuestionRequest{UserID: testStudent, QuestionID: f.question.ID}
	first, err := f.svc.GetQuestion(context.Background(), req)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	second, err := f.svc.GetQuestion(context.Background(), req)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if first.Seed != 4242 || second.Seed != first.Seed {
		t.Errorf("seeds = %d, %d; want both 4242", first.Seed, second.Seed)
	}
	if first.Grade == nil {
		t.Error("expected the student's grade on the response")
	}
}

func TestGetQuestionPreviewWithoutGrade(t *testing.T) {
	f := newGradeFixture(t, 24*time.Hour, 72*time.Hour)

	resp, err := f.svc.GetQuestion(context.Background(), &GetQuestionRequest{
		UserID:     testProfessor,
		QuestionID: f.question.ID,
	})
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if resp.Grade != nil {
		t.Error("expected no grade for an instructor preview")
	}
	if resp.Seed != fallbackSeed {
		t.Errorf("Seed = %d, want the fallback seed %d", resp.Seed, fallbackSeed)
	}
	if resp.RenderedHTML == "" {
		t.Error("expected rendered markup")
	}
}

func TestSetGradeLockedRequiresProfessor(t *testing.T) {
	f := newGradeFixture(t, 24*time.Hour, 72*time.Hour)

	_, err := f.svc.SetGradeLocked(context.Background(), f.grade.ID, true, testStudent)
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected a permission error, got %v", err)
	}

	locked, err := f.svc.SetGradeLocked(context.Background(), f.grade.ID, true, testProfessor)
	if err != nil {
		t.Fatalf("SetGradeLocked: %v", err)
	}
	if !locked.Locked {
		t.Error("expected the grade to be locked")
	}
}

func TestSyncMissingGrades(t *testing.T) {
	f := newGradeFixture(t, 24*time.Hour, 72*time.Hour)

	// A second active question with no grade row yet.
	extra := &models.CourseTopicQuestion{
		TopicID:             f.topic.ID,
		ProblemNumber:       2,
		Weight:              1,
		MaxAttempts:         models.UnlimitedAttempts,
		WebworkQuestionPath: "Library/Calculus/limits2.pg",
		Active:              true,
	}
	extra.ID = f.repo.id()
	f.repo.questions[extra.ID] = extra

	created, err := f.svc.SyncMissingGrades(context.Background())
	if err != nil {
		t.Fatalf("SyncMissingGrades: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}

	grade, ok := f.repo.grades[gradeKey(testStudent, extra.ID)]
	if !ok {
		t.Fatal("expected a backfilled grade row")
	}
	if grade.RandomSeed < 0 || grade.RandomSeed >= 999999 {
		t.Errorf("RandomSeed = %d, want within [0, 999999)", grade.RandomSeed)
	}

	// A second sweep finds nothing.
	created, err = f.svc.SyncMissingGrades(context.Background())
	if err != nil {
		t.Fatalf("SyncMissingGrades: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d on a clean tree, want 0", created)
	}
}

func TestGetWorkbooksUnknownGrade(t *testing.T) {
	f := newGradeFixture(t, 24*time.Hour, 72*time.Hour)

	_, err := f.svc.GetWorkbooks(context.Background(), 9999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}
