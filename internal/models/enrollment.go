package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
//
// Transitions are one-directional: ENROLLED may become DROPPED,
// COMPLETED, or FAILED. Re-enrollment after a drop creates a new row;
// dropped rows are never reused.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusFailed    EnrollmentStatus = "FAILED"
)

// Enrollment captures a student's registration in a class offering.
// Grade and GradePoints are written once, at finalization (or again on
// an authorized amend).
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	OfferingID  string           `db:"offering_id" json:"offering_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	Grade       *string          `db:"grade" json:"grade,omitempty"`
	GradePoints *float64         `db:"grade_points" json:"grade_points,omitempty"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	DroppedAt   *time.Time       `db:"dropped_at" json:"dropped_at,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student, course, and
// offering context.
type EnrollmentDetail struct {
	Enrollment
	StudentNo    string   `db:"student_no" json:"student_no"`
	StudentName  string   `db:"student_name" json:"student_name"`
	OfferingCode string   `db:"offering_code" json:"offering_code"`
	CourseCode   string   `db:"course_code" json:"course_code"`
	CourseName   string   `db:"course_name" json:"course_name"`
	Credits      int      `db:"credits" json:"credits"`
	Semester     Semester `db:"semester" json:"semester"`
	AcademicYear int      `db:"academic_year" json:"academic_year"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID    string
	OfferingID   string
	Status       EnrollmentStatus
	Semester     Semester
	AcademicYear int
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// CompletedCourse pairs a finished enrollment with the course it
// belongs to; input to GPA recomputation and prerequisite checks.
type CompletedCourse struct {
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	CourseID     string           `db:"course_id" json:"course_id"`
	Credits      int              `db:"credits" json:"credits"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	GradePoints  *float64         `db:"grade_points" json:"grade_points,omitempty"`
}
