package models

import (
	"time"
)

// SentinelContentOrder is a reserved order value used to park a row while a
// relocation is in flight. No legitimate contentOrder or problemNumber may
// reach it.
const SentinelContentOrder = 1 << 30

// UnlimitedAttempts is the maxAttempts sentinel meaning no attempt cap.
const UnlimitedAttempts = -1

const (
	ConstraintUniqueUnitNamePerCourse  = "course_unit_contents_name_per_course_key"
	ConstraintUniqueUnitOrderPerCourse = "course_unit_contents_order_per_course_key"
	ConstraintForeignKeyUnitCourse     = "course_unit_contents_course_id_fkey"

	ConstraintUniqueTopicNamePerUnit  = "course_topic_contents_name_per_unit_key"
	ConstraintUniqueTopicOrderPerUnit = "course_topic_contents_order_per_unit_key"
	ConstraintForeignKeyTopicUnit     = "course_topic_contents_unit_id_fkey"

	ConstraintUniqueQuestionOrderPerTopic = "course_topic_questions_number_per_topic_key"
	ConstraintForeignKeyQuestionTopic     = "course_topic_questions_topic_id_fkey"
)

// CourseUnitContent is the top structural level inside a course. Active units
// keep a dense, 1-based contentOrder unique within their course.
type CourseUnitContent struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	CourseID     uint   `json:"course_id" gorm:"not null;index"`
	Name         string `json:"name" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	ContentOrder int    `json:"content_order" gorm:"not null"`
	Active       bool   `json:"active" gorm:"not null;default:true;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Course *Course              `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	Topics []CourseTopicContent `json:"topics,omitempty" gorm:"foreignKey:UnitID"`
}

func (CourseUnitContent) TableName() string {
	return "course_unit_contents"
}

// CourseTopicContent groups questions under a unit and carries the date
// windows the grade engine scores against. start <= end <= dead is the
// caller's responsibility, not a storage constraint.
type CourseTopicContent struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	UnitID        uint      `json:"unit_id" gorm:"not null;index"`
	Name          string    `json:"name" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	ContentOrder  int       `json:"content_order" gorm:"not null"`
	StartDate     time.Time `json:"start_date" gorm:"not null"`
	EndDate       time.Time `json:"end_date" gorm:"not null"`
	DeadDate      time.Time `json:"dead_date" gorm:"not null"`
	PartialExtend bool      `json:"partial_extend" gorm:"not null;default:false"`
	Active        bool      `json:"active" gorm:"not null;default:true;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Unit      *CourseUnitContent    `json:"unit,omitempty" gorm:"foreignKey:UnitID"`
	Questions []CourseTopicQuestion `json:"questions,omitempty" gorm:"foreignKey:TopicID"`
}

func (CourseTopicContent) TableName() string {
	return "course_topic_contents"
}

// CourseTopicQuestion is one renderable problem within a topic. Active
// questions keep a dense, 1-based problemNumber unique within their topic.
type CourseTopicQuestion struct {
	ID                  uint    `json:"id" gorm:"primaryKey"`
	TopicID             uint    `json:"topic_id" gorm:"not null;index"`
	ProblemNumber       int     `json:"problem_number" gorm:"not null"`
	Weight              float64 `json:"weight" gorm:"not null;default:1" validate:"min=0"`
	MaxAttempts         int     `json:"max_attempts" gorm:"not null;default:-1" validate:"min=-1"`
	Hidden              bool    `json:"hidden" gorm:"not null;default:false"`
	Optional            bool    `json:"optional" gorm:"not null;default:false"`
	WebworkQuestionPath string  `json:"webwork_question_path" gorm:"not null;size:500" validate:"required,max=500"`
	Active              bool    `json:"active" gorm:"not null;default:true;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Topic  *CourseTopicContent `json:"topic,omitempty" gorm:"foreignKey:TopicID"`
	Grades []StudentGrade      `json:"grades,omitempty" gorm:"foreignKey:QuestionID"`
}

func (CourseTopicQuestion) TableName() string {
	return "course_topic_questions"
}

// HasAttemptsRemaining reports whether a grade with the given attempt count
// may still be scored against this question's cap.
func (q *CourseTopicQuestion) HasAttemptsRemaining(numAttempts int) bool {
	return q.MaxAttempts == UnlimitedAttempts || numAttempts < q.MaxAttempts
}
