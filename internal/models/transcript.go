package models

// TranscriptRow is one finished or in-progress course on a transcript.
type TranscriptRow struct {
	CourseCode   string           `db:"course_code" json:"course_code"`
	CourseName   string           `db:"course_name" json:"course_name"`
	Credits      int              `db:"credits" json:"credits"`
	Semester     Semester         `db:"semester" json:"semester"`
	AcademicYear int              `db:"academic_year" json:"academic_year"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	Grade        *string          `db:"grade" json:"grade,omitempty"`
	GradePoints  *float64         `db:"grade_points" json:"grade_points,omitempty"`
}

// SemesterGPA is the credit-weighted GPA of one semester.
type SemesterGPA struct {
	Semester     Semester `json:"semester"`
	AcademicYear int      `json:"academic_year"`
	GPA          float64  `json:"gpa"`
	Credits      int      `json:"credits"`
}

// Transcript is the full academic record for one student.
type Transcript struct {
	Student       *StudentDetail  `json:"student"`
	Rows          []TranscriptRow `json:"rows"`
	SemesterGPAs  []SemesterGPA   `json:"semester_gpas"`
	CumulativeGPA float64         `json:"cumulative_gpa"`
	TotalCredits  int             `json:"total_credits"`
}
