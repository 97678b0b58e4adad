package models

import "time"

// AssessmentScore is one graded component of an enrollment, e.g. a
// midterm or an assignment. Marks never exceed TotalMarks; the weight
// is the share of the final grade this assessment contributes.
type AssessmentScore struct {
	ID            string    `db:"id" json:"id"`
	EnrollmentID  string    `db:"enrollment_id" json:"enrollment_id"`
	Name          string    `db:"name" json:"name"`
	MarksObtained float64   `db:"marks_obtained" json:"marks_obtained"`
	TotalMarks    float64   `db:"total_marks" json:"total_marks"`
	Weight        float64   `db:"weight" json:"weight"`
	GradedBy      *string   `db:"graded_by" json:"graded_by,omitempty"`
	Comments      string    `db:"comments" json:"comments"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// WeightedScore is this assessment's contribution to the course
// percentage: (obtained / total) * weight.
func (a *AssessmentScore) WeightedScore() float64 {
	if a.TotalMarks <= 0 {
		return 0
	}
	return a.MarksObtained / a.TotalMarks * a.Weight
}

// AssessmentFilter provides filters for listing assessment scores.
type AssessmentFilter struct {
	EnrollmentID string
	GradedBy     string
	Page         int
	PageSize     int
}

// FinalizeResult is the outcome of grade finalization for one
// enrollment.
type FinalizeResult struct {
	Enrollment  *EnrollmentDetail `json:"enrollment"`
	Percentage  float64           `json:"percentage"`
	Letter      string            `json:"letter"`
	GradePoints float64           `json:"grade_points"`
	GPA         float64           `json:"gpa"`
	TotalWeight float64           `json:"total_weight"`
	Warning     string            `json:"warning,omitempty"`
}
