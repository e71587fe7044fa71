package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ConstraintUniqueGradePerUserQuestion = "student_grades_user_per_question_key"
	ConstraintForeignKeyGradeQuestion    = "student_grades_question_id_fkey"
	ConstraintForeignKeyWorkbookGrade    = "student_workbooks_grade_id_fkey"
)

// StudentGrade is the per-student per-question scoring record. All score
// fields live in [0,1]; numAttempts never decreases while unlocked;
// randomSeed is fixed at creation and reused for every re-render.
type StudentGrade struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	UserID     string `json:"user_id" gorm:"not null;index;size:255;uniqueIndex:idx_grade_user_question"`
	QuestionID uint   `json:"question_id" gorm:"not null;index;uniqueIndex:idx_grade_user_question"`
	RandomSeed int    `json:"random_seed" gorm:"not null"`

	NumAttempts int  `json:"num_attempts" gorm:"not null;default:0"`
	Locked      bool `json:"locked" gorm:"not null;default:false"`

	// Scores
	BestScore              float64 `json:"best_score" gorm:"not null;default:0"`
	OverallBestScore       float64 `json:"overall_best_score" gorm:"not null;default:0"`
	PartialCreditBestScore float64 `json:"partial_credit_best_score" gorm:"not null;default:0"`
	EffectiveScore         float64 `json:"effective_score" gorm:"not null;default:0"`
	LegalScore             float64 `json:"legal_score" gorm:"not null;default:0"`
	FirstAttempts          float64 `json:"first_attempts" gorm:"not null;default:0"`
	LatestAttempts         float64 `json:"latest_attempts" gorm:"not null;default:0"`

	// Opaque form snapshot used to resume a problem mid-attempt.
	CurrentProblemState datatypes.JSON `json:"current_problem_state" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Question  *CourseTopicQuestion `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
	User      *User                `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Workbooks []StudentWorkbook    `json:"workbooks,omitempty" gorm:"foreignKey:GradeID"`
}

func (StudentGrade) TableName() string {
	return "student_grades"
}

// Mastered reports whether the grade has reached a perfect raw score.
func (g *StudentGrade) Mastered() bool {
	return g.OverallBestScore >= 1
}

// StudentWorkbook is one immutable attempt-log row. Created on every scored
// submission, never updated.
type StudentWorkbook struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	GradeID    uint           `json:"grade_id" gorm:"not null;index"`
	UserID     string         `json:"user_id" gorm:"not null;index;size:255"`
	QuestionID uint           `json:"question_id" gorm:"not null;index"`
	RandomSeed int            `json:"random_seed" gorm:"not null"`
	Submitted  datatypes.JSON `json:"submitted" gorm:"type:jsonb"`
	Result     float64        `json:"result" gorm:"not null"`
	Time       time.Time      `json:"time" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Grade *StudentGrade `json:"grade,omitempty" gorm:"foreignKey:GradeID"`
}

func (StudentWorkbook) TableName() string {
	return "student_workbooks"
}
