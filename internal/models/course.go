package models

import (
	"time"
)

// Constraint names as created by the migrations. The postgres repositories
// translate unique/foreign-key violations on these into domain errors.
const (
	ConstraintUniqueCourseCode       = "courses_code_key"
	ConstraintUniqueUserPerCourse    = "student_enrollments_user_per_course_key"
	ConstraintForeignKeyCourseUser   = "student_enrollments_user_id_fkey"
	ConstraintForeignKeyCourseCourse = "student_enrollments_course_id_fkey"
)

type Course struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	Name         string     `json:"name" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Code         string     `json:"code" gorm:"not null;uniqueIndex;size:50" validate:"required,min=1,max=50"`
	StartDate    time.Time  `json:"start_date" gorm:"not null"`
	EndDate      time.Time  `json:"end_date" gorm:"not null"`
	InstructorID string     `json:"instructor_id" gorm:"not null;index;size:255"`
	SectionCode  *string    `json:"section_code" gorm:"size:50"`
	Semester     *string    `json:"semester" gorm:"size:20"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Units            []CourseUnitContent `json:"units,omitempty" gorm:"foreignKey:CourseID"`
	EnrolledStudents []StudentEnrollment `json:"enrolled_students,omitempty" gorm:"foreignKey:CourseID"`
	Instructor       *User               `json:"instructor,omitempty" gorm:"foreignKey:InstructorID"`
}

func (Course) TableName() string {
	return "courses"
}

type StudentEnrollment struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	CourseID   uint       `json:"course_id" gorm:"not null;index;uniqueIndex:idx_enrollment_user_course"`
	UserID     string     `json:"user_id" gorm:"not null;index;size:255;uniqueIndex:idx_enrollment_user_course"`
	EnrollDate time.Time  `json:"enroll_date" gorm:"not null"`
	DropDate   *time.Time `json:"drop_date"` // non-nil means withdrawn

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Course  *Course `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	Student *User   `json:"student,omitempty" gorm:"foreignKey:UserID"`
}

func (StudentEnrollment) TableName() string {
	return "student_enrollments"
}

// Active reports whether the enrollment is still current.
func (e *StudentEnrollment) Active() bool {
	return e.DropDate == nil
}
