package models

import "time"

// AcademicStatus represents a student's standing with the institution.
type AcademicStatus string

const (
	AcademicStatusActive    AcademicStatus = "ACTIVE"
	AcademicStatusSuspended AcademicStatus = "SUSPENDED"
	AcademicStatusGraduated AcademicStatus = "GRADUATED"
	AcademicStatusWithdrawn AcademicStatus = "WITHDRAWN"
)

// Student is a learner profile attached to a user account. GPA is
// derived data: only the GPA recalculator writes it.
type Student struct {
	ID             string         `db:"id" json:"id"`
	UserID         string         `db:"user_id" json:"user_id"`
	StudentNo      string         `db:"student_no" json:"student_no"`
	AcademicStatus AcademicStatus `db:"academic_status" json:"academic_status"`
	EnrollmentDate time.Time      `db:"enrollment_date" json:"enrollment_date"`
	GPA            float64        `db:"gpa" json:"gpa"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// StudentDetail enriches Student with account info.
type StudentDetail struct {
	Student
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
}

// StudentFilter encapsulates search parameters for listing students.
type StudentFilter struct {
	Search    string
	Status    AcademicStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
