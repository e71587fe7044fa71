package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	// EventSource identifies this service on the bus.
	EventSource = "course-service"
	// EventVersion is the payload schema version.
	EventVersion = "1.0"
)

// Event types published by this service.
const (
	EventTypeCourseCreated     = "course.created"
	EventTypeEnrollmentCreated = "enrollment.created"
	EventTypeGradeSubmitted    = "grade.submitted"
	EventTypeContentDeleted    = "content.deleted"
)

// Event is the envelope for every message this service publishes.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent builds an envelope around data.
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// CourseCreatedEvent announces a new course.
type CourseCreatedEvent struct {
	CourseID     uint   `json:"course_id"`
	Name         string `json:"name"`
	Code         string `json:"code"`
	InstructorID string `json:"instructor_id"`
}

// EnrollmentCreatedEvent announces a student joining a course.
type EnrollmentCreatedEvent struct {
	CourseID      uint   `json:"course_id"`
	UserID        string `json:"user_id"`
	GradesCreated int    `json:"grades_created"`
}

// GradeSubmittedEvent announces one scored submission.
type GradeSubmittedEvent struct {
	UserID         string  `json:"user_id"`
	QuestionID     uint    `json:"question_id"`
	TopicID        uint    `json:"topic_id"`
	Score          float64 `json:"score"`
	EffectiveScore float64 `json:"effective_score"`
	NumAttempts    int     `json:"num_attempts"`
	ScoreUpdated   bool    `json:"score_updated"`
}

// ContentDeletedEvent announces a soft-deleted content item and everything
// deactivated under it.
type ContentDeletedEvent struct {
	Level        string `json:"level"` // "unit", "topic" or "question"
	ContentID    uint   `json:"content_id"`
	CourseID     uint   `json:"course_id"`
	DeletedCount int64  `json:"deleted_count"`
}
