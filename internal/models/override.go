package models

import (
	"time"
)

// StudentTopicOverride extends a topic's date windows for one student. At
// most one active row per (user, topic) pair is expected; nil fields keep
// the base topic value.
type StudentTopicOverride struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	UserID    string     `json:"user_id" gorm:"not null;index;size:255"`
	TopicID   uint       `json:"topic_id" gorm:"not null;index"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	DeadDate  *time.Time `json:"dead_date"`
	Active    bool       `json:"active" gorm:"not null;default:true;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Topic *CourseTopicContent `json:"topic,omitempty" gorm:"foreignKey:TopicID"`
}

func (StudentTopicOverride) TableName() string {
	return "student_topic_overrides"
}

// StudentTopicQuestionOverride raises the attempt cap on one question for
// one student.
type StudentTopicQuestionOverride struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	UserID      string `json:"user_id" gorm:"not null;index;size:255"`
	QuestionID  uint   `json:"question_id" gorm:"not null;index"`
	MaxAttempts *int   `json:"max_attempts" validate:"omitempty,min=-1"`
	Active      bool   `json:"active" gorm:"not null;default:true;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Question *CourseTopicQuestion `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
}

func (StudentTopicQuestionOverride) TableName() string {
	return "student_topic_question_overrides"
}
