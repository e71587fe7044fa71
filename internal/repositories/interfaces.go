package repositories

import (
	"time"
)

// ===== SHARED FILTER STRUCTS =====

type CourseFilters struct {
	InstructorID   *string `json:"instructor_id"`
	EnrolledUserID *string `json:"enrolled_user_id"`
	Limit          int     `json:"limit"`
	Offset         int     `json:"offset"`
	SortBy         string  `json:"sort_by"`    // "created_at", "name", "start_date"
	SortOrder      string  `json:"sort_order"` // "asc", "desc"
}

type TopicFilters struct {
	CourseID *uint      `json:"course_id"`
	UnitID   *uint      `json:"unit_id"`
	IsOpen   *bool      `json:"is_open"` // startDate <= now <= deadDate
	Now      *time.Time `json:"-"`       // reference time for IsOpen, defaults to time.Now
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}

type QuestionFilters struct {
	TopicID       *uint   `json:"topic_id"`
	UserID        *string `json:"user_id"` // preload this user's grade
	IncludeHidden bool    `json:"include_hidden"`
	Limit         int     `json:"limit"`
	Offset        int     `json:"offset"`
}

// GradeFilters scopes a grade query to exactly one content level. The
// service validates that exactly one of the four is set.
type GradeFilters struct {
	CourseID   *uint `json:"course_id"`
	UnitID     *uint `json:"unit_id"`
	TopicID    *uint `json:"topic_id"`
	QuestionID *uint `json:"question_id"`
}

// ===== SHARED HELPER STRUCTS =====

// MissingGrade is one (user, question) pair that has no grade row yet.
type MissingGrade struct {
	UserID     string `json:"user_id"`
	QuestionID uint   `json:"question_id"`
}

// ===== SHARED STATISTICS STRUCTS =====

// GradeAggregate summarizes grades grouped by student for one content scope.
type GradeAggregate struct {
	UserID                 string  `json:"user_id"`
	FullName               string  `json:"full_name"`
	Average                float64 `json:"average"`
	PendingProblemCount    int     `json:"pending_problem_count"`
	MasteredProblemCount   int     `json:"mastered_problem_count"`
	InProgressProblemCount int     `json:"in_progress_problem_count"`
}

// ContentStats summarizes grade activity for one unit, topic or question.
type ContentStats struct {
	ID                    uint     `json:"id"`
	Name                  string   `json:"name"`
	AverageAttemptedCount float64  `json:"average_attempted_count"`
	AverageScore          float64  `json:"average_score"`
	TotalGrades           int      `json:"total_grades"`
	CompletedCount        int      `json:"completed_count"`
	CompletionPercent     *float64 `json:"completion_percent"` // nil when no grades
}

// GradebookRow is one student's effective score on one question, used by the
// gradebook export.
type GradebookRow struct {
	UserID         string  `json:"user_id"`
	FullName       string  `json:"full_name"`
	UnitName       string  `json:"unit_name"`
	TopicName      string  `json:"topic_name"`
	ProblemNumber  int     `json:"problem_number"`
	Weight         float64 `json:"weight"`
	EffectiveScore float64 `json:"effective_score"`
	NumAttempts    int     `json:"num_attempts"`
}

// UserFilters defines filters for user queries.
type UserFilters struct {
	Query  string
	Limit  int
	Offset int
}
