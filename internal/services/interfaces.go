package services

import (
	"context"
	"time"

	"github.com/openedu/course-service/internal/models"
	"github.com/openedu/course-service/internal/renderer"
	"github.com/openedu/course-service/internal/repositories"
	"github.com/openedu/course-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type CreateCourseRequest = validator.CourseCreateRequest
type UpdateCourseRequest = validator.CourseUpdateRequest
type CreateUnitRequest = validator.UnitCreateRequest
type UpdateUnitRequest = validator.UnitUpdateRequest
type CreateTopicRequest = validator.TopicCreateRequest
type UpdateTopicRequest = validator.TopicUpdateRequest
type CreateQuestionRequest = validator.QuestionCreateRequest
type UpdateQuestionRequest = validator.QuestionUpdateRequest
type RelocateRequest = validator.RelocateRequest
type EnrollRequest = validator.EnrollRequest
type EnrollByCodeRequest = validator.EnrollByCodeRequest
type SubmitAnswerRequest = validator.SubmitAnswerRequest
type GetQuestionRequest = validator.GetQuestionRequest
type TopicOverrideRequest = validator.TopicOverrideRequest
type QuestionOverrideRequest = validator.QuestionOverrideRequest
type GetGradesRequest = validator.GetGradesRequest

type CourseListResponse struct {
	Courses []*models.Course `json:"courses"`
	Total   int64            `json:"total"`
}

// EnrollResponse reports the enrollment plus how many grade rows were
// backfilled for it.
type EnrollResponse struct {
	Enrollment    *models.StudentEnrollment `json:"enrollment"`
	GradesCreated int                       `json:"grades_created"`
}

// SubmitAnswerResponse is the outcome of one submission. Grade is nil when
// the student holds no grade row for the question; Workbook is nil when the
// submission was not a scored attempt.
type SubmitAnswerResponse struct {
	Grade        *models.StudentGrade    `json:"grade,omitempty"`
	Workbook     *models.StudentWorkbook `json:"workbook,omitempty"`
	RenderedHTML string                  `json:"rendered_html,omitempty"`
	Score        float64                 `json:"score"`
}

// RenderedQuestion pairs question metadata with the renderer's markup.
type RenderedQuestion struct {
	Question     *models.CourseTopicQuestion `json:"question"`
	Grade        *models.StudentGrade        `json:"grade,omitempty"`
	RenderedHTML string                      `json:"rendered_html"`
	Seed         int                         `json:"seed"`
}

// DeleteResult aggregates a cascading soft delete.
type DeleteResult struct {
	UnitsDeleted     int64 `json:"units_deleted"`
	TopicsDeleted    int64 `json:"topics_deleted"`
	QuestionsDeleted int64 `json:"questions_deleted"`
}

func (r *DeleteResult) Total() int64 {
	return r.UnitsDeleted + r.TopicsDeleted + r.QuestionsDeleted
}

// EffectiveTopic is a topic with per-student overrides applied.
type EffectiveTopic struct {
	*models.CourseTopicContent
	StartDate time.Time
	EndDate   time.Time
	DeadDate  time.Time
}

// EffectiveQuestion is a question with per-student overrides applied.
type EffectiveQuestion struct {
	*models.CourseTopicQuestion
	MaxAttempts int
}

// ===== SERVICE INTERFACES =====

// CourseService owns courses, enrollment and grade reporting.
type CourseService interface {
	CreateCourse(ctx context.Context, req *CreateCourseRequest, instructorID string) (*models.Course, error)
	GetCourseByID(ctx context.Context, id uint) (*models.Course, error)
	GetCourseByCode(ctx context.Context, code string) (*models.Course, error)
	GetCourses(ctx context.Context, filters repositories.CourseFilters) (*CourseListResponse, error)
	UpdateCourse(ctx context.Context, id uint, req *UpdateCourseRequest, requestorID string) (*models.Course, error)

	Enroll(ctx context.Context, req *EnrollRequest) (*EnrollResponse, error)
	EnrollByCode(ctx context.Context, req *EnrollByCodeRequest) (*EnrollResponse, error)
	DropStudent(ctx context.Context, userID string, courseID uint) error

	GetGrades(ctx context.Context, req *GetGradesRequest) ([]*repositories.GradeAggregate, error)
	GetUnitStats(ctx context.Context, courseID uint) ([]*repositories.ContentStats, error)
	GetTopicStats(ctx context.Context, unitID *uint, courseID *uint) ([]*repositories.ContentStats, error)
	GetQuestionStats(ctx context.Context, topicID *uint, courseID *uint) ([]*repositories.ContentStats, error)

	ExportGradebook(ctx context.Context, courseID uint) ([]byte, error)
}

// ContentService owns the unit/topic/question tree: creation, update,
// relocation, soft delete and per-student overrides.
type ContentService interface {
	CreateUnit(ctx context.Context, req *CreateUnitRequest) (*models.CourseUnitContent, error)
	UpdateUnit(ctx context.Context, id uint, req *UpdateUnitRequest) (*models.CourseUnitContent, error)
	RelocateUnit(ctx context.Context, id uint, req *RelocateRequest) error
	DeleteUnit(ctx context.Context, id uint) (*DeleteResult, error)

	CreateTopic(ctx context.Context, req *CreateTopicRequest) (*models.CourseTopicContent, error)
	UpdateTopic(ctx context.Context, id uint, req *UpdateTopicRequest) (*models.CourseTopicContent, error)
	RelocateTopic(ctx context.Context, id uint, req *RelocateRequest) error
	DeleteTopic(ctx context.Context, id uint) (*DeleteResult, error)
	GetTopic(ctx context.Context, id uint) (*models.CourseTopicContent, error)
	GetTopics(ctx context.Context, filters repositories.TopicFilters) ([]*models.CourseTopicContent, error)

	CreateQuestion(ctx context.Context, req *CreateQuestionRequest) (*models.CourseTopicQuestion, error)
	UpdateQuestion(ctx context.Context, id uint, req *UpdateQuestionRequest) (*models.CourseTopicQuestion, error)
	RelocateQuestion(ctx context.Context, id uint, req *RelocateRequest) error
	DeleteQuestion(ctx context.Context, id uint) (*DeleteResult, error)

	CreateTopicOverride(ctx context.Context, req *TopicOverrideRequest) (*models.StudentTopicOverride, error)
	CreateQuestionOverride(ctx context.Context, req *QuestionOverrideRequest) (*models.StudentTopicQuestionOverride, error)
}

// GradeService owns the scoring state machine, question rendering and grade
// reconciliation.
type GradeService interface {
	GetQuestion(ctx context.Context, req *GetQuestionRequest) (*RenderedQuestion, error)
	GetQuestions(ctx context.Context, filters repositories.QuestionFilters) ([]*models.CourseTopicQuestion, error)
	SubmitAnswer(ctx context.Context, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error)

	GetGrade(ctx context.Context, userID string, questionID uint) (*models.StudentGrade, error)
	GetWorkbooks(ctx context.Context, gradeID uint) ([]*models.StudentWorkbook, error)
	SetGradeLocked(ctx context.Context, gradeID uint, locked bool, requestorID string) (*models.StudentGrade, error)

	CreateGradesForUserEnrollment(ctx context.Context, courseID uint, userID string) (int, error)
	CreateGradesForQuestion(ctx context.Context, questionID uint) (int, error)
	FindMissingGrades(ctx context.Context) ([]*repositories.MissingGrade, error)
	SyncMissingGrades(ctx context.Context) (int, error)
}

// RendererClient re-exports the renderer interface for service consumers.
type RendererClient = renderer.Client

// ServiceManager provides access to all services.
type ServiceManager interface {
	Course() CourseService
	Content() ContentService
	Grade() GradeService

	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
