package validator

import (
	"time"
)

// CourseCreateRequest carries the fields for creating a course.
type CourseCreateRequest struct {
	Name        string    `json:"name" validate:"required,content_name"`
	Code        string    `json:"code" validate:"required,min=1,max=50"`
	StartDate   time.Time `json:"start_date" validate:"required"`
	EndDate     time.Time `json:"end_date" validate:"required"`
	SectionCode *string   `json:"section_code" validate:"omitempty,max=50"`
	Semester    *string   `json:"semester" validate:"omitempty,max=20"`
}

type CourseUpdateRequest struct {
	Name        *string    `json:"name" validate:"omitempty,content_name"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	SectionCode *string    `json:"section_code" validate:"omitempty,max=50"`
	Semester    *string    `json:"semester" validate:"omitempty,max=20"`
}

// UnitCreateRequest creates a unit. A nil ContentOrder appends at the end of
// the course's sequence.
type UnitCreateRequest struct {
	CourseID     uint   `json:"course_id" validate:"required"`
	Name         string `json:"name" validate:"required,content_name"`
	ContentOrder *int   `json:"content_order" validate:"omitempty,min=1"`
}

type UnitUpdateRequest struct {
	Name *string `json:"name" validate:"omitempty,content_name"`
}

// TopicCreateRequest creates a topic. Date ordering start <= end <= dead is
// enforced as a business rule, not a tag.
type TopicCreateRequest struct {
	UnitID        uint      `json:"unit_id" validate:"required"`
	Name          string    `json:"name" validate:"required,content_name"`
	StartDate     time.Time `json:"start_date" validate:"required"`
	EndDate       time.Time `json:"end_date" validate:"required"`
	DeadDate      time.Time `json:"dead_date" validate:"required"`
	PartialExtend bool      `json:"partial_extend"`
	ContentOrder  *int      `json:"content_order" validate:"omitempty,min=1"`
}

type TopicUpdateRequest struct {
	Name          *string    `json:"name" validate:"omitempty,content_name"`
	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
	DeadDate      *time.Time `json:"dead_date"`
	PartialExtend *bool      `json:"partial_extend"`
}

// QuestionCreateRequest creates a question. A nil ProblemNumber appends at
// the end of the topic's sequence. MaxAttempts -1 means unlimited.
type QuestionCreateRequest struct {
	TopicID             uint    `json:"topic_id" validate:"required"`
	Weight              float64 `json:"weight" validate:"min=0"`
	MaxAttempts         int     `json:"max_attempts" validate:"attempt_cap"`
	Hidden              bool    `json:"hidden"`
	Optional            bool    `json:"optional"`
	WebworkQuestionPath string  `json:"webwork_question_path" validate:"required,max=500"`
	ProblemNumber       *int    `json:"problem_number" validate:"omitempty,min=1"`
}

type QuestionUpdateRequest struct {
	Weight              *float64 `json:"weight" validate:"omitempty,min=0"`
	MaxAttempts         *int     `json:"max_attempts" validate:"omitempty,attempt_cap"`
	Hidden              *bool    `json:"hidden"`
	Optional            *bool    `json:"optional"`
	WebworkQuestionPath *string  `json:"webwork_question_path" validate:"omitempty,max=500"`
}

// RelocateRequest moves a content item to a new position, optionally into a
// different parent scope (unit move across courses, topic across units,
// question across topics).
type RelocateRequest struct {
	TargetScopeID *uint `json:"target_scope_id"`
	TargetOrder   int   `json:"target_order" validate:"required,min=1"`
}

// EnrollRequest enrolls a student into a course by ID.
type EnrollRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	CourseID uint   `json:"course_id" validate:"required"`
}

// EnrollByCodeRequest enrolls a student using the course's join code.
type EnrollByCodeRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Code   string `json:"code" validate:"required,min=1,max=50"`
}

// SubmitAnswerRequest carries one attempt's form payload. FormData is the
// url-encoded problem form as key -> values; it is forwarded to the renderer
// verbatim and snapshotted on the grade.
type SubmitAnswerRequest struct {
	UserID     string              `json:"user_id" validate:"required"`
	QuestionID uint                `json:"question_id" validate:"required"`
	FormData   map[string][]string `json:"form_data" validate:"required"`
}

// GetQuestionRequest renders one question for one user.
type GetQuestionRequest struct {
	UserID              string `json:"user_id" validate:"required"`
	QuestionID          uint   `json:"question_id" validate:"required"`
	ShowCorrectAnswers  bool   `json:"show_correct_answers"`
	ReadonlyWorkbookID  *uint  `json:"readonly_workbook_id"`
}

// TopicOverrideRequest extends topic dates for one student. Nil fields keep
// the base topic value.
type TopicOverrideRequest struct {
	UserID    string     `json:"user_id" validate:"required"`
	TopicID   uint       `json:"topic_id" validate:"required"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	DeadDate  *time.Time `json:"dead_date"`
}

// QuestionOverrideRequest raises the attempt cap for one student.
type QuestionOverrideRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	QuestionID  uint   `json:"question_id" validate:"required"`
	MaxAttempts *int   `json:"max_attempts" validate:"omitempty,attempt_cap"`
}

// GetGradesRequest scopes a grade query to exactly one content level.
type GetGradesRequest struct {
	CourseID   *uint `json:"course_id" form:"course_id"`
	UnitID     *uint `json:"unit_id" form:"unit_id"`
	TopicID    *uint `json:"topic_id" form:"topic_id"`
	QuestionID *uint `json:"question_id" form:"question_id"`
}
