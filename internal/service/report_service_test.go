package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openacad/sis-api/internal/models"
)

// mockReportEnrollmentStore serves a fixed result set in pages, the way
// the repository does.
type mockReportEnrollmentStore struct {
	details []models.EnrollmentDetail
	calls   int
}

func (m *mockReportEnrollmentStore) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	m.calls++
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	start := (page - 1) * size
	if start >= len(m.details) {
		return nil, len(m.details), nil
	}
	end := start + size
	if end > len(m.details) {
		end = len(m.details)
	}
	return m.details[start:end], len(m.details), nil
}

type mockReportOfferingStore struct {
	offering *models.OfferingDetail
}

func (m *mockReportOfferingStore) FindDetailByID(ctx context.Context, id string) (*models.OfferingDetail, error) {
	if m.offering == nil {
		return nil, sql.ErrNoRows
	}
	return m.offering, nil
}

func gradedDetail(i int, letter string, gradePoints float64) models.EnrollmentDetail {
	return models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:          fmt.Sprintf("e%d", i),
			StudentID:   studentID,
			Status:      models.EnrollmentStatusCompleted,
			Grade:       &letter,
			GradePoints: &gradePoints,
			EnrolledAt:  time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		},
		StudentNo:    "S-1001",
		StudentName:  "Dana Ortiz",
		CourseCode:   fmt.Sprintf("CS-%03d", i),
		CourseName:   "Course",
		Credits:      3,
		Semester:     models.SemesterFall,
		AcademicYear: 2025,
	}
}

func newReportFixture(details []models.EnrollmentDetail) (*ReportService, *mockReportEnrollmentStore) {
	enrollments := &mockReportEnrollmentStore{details: details}
	students := &mockStudentReader{students: map[string]*models.StudentDetail{studentID: activeStudent()}}
	offerings := &mockReportOfferingStore{offering: &models.OfferingDetail{
		ClassOffering: *openOffering(),
		CourseCode:    "CS-201",
		CourseName:    "Data Structures",
	}}
	svc := NewReportService(enrollments, students, offerings, nil, ReportConfig{InstitutionName: "Open Academy"}, nil)
	return svc, enrollments
}

func TestTranscriptIncludesFullHistory(t *testing.T) {
	// More rows than one repository page can hold.
	details := make([]models.EnrollmentDetail, 0, 250)
	for i := 0; i < 250; i++ {
		details = append(details, gradedDetail(i, "B", 3.0))
	}
	svc, enrollments := newReportFixture(details)

	transcript, err := svc.Transcript(context.Background(), studentID)
	require.NoError(t, err)

	assert.Len(t, transcript.Rows, 250)
	assert.Equal(t, 750, transcript.TotalCredits)
	assert.GreaterOrEqual(t, enrollments.calls, 3)
}

func TestTranscriptSkipsDroppedRows(t *testing.T) {
	dropped := gradedDetail(1, "", 0)
	dropped.Status = models.EnrollmentStatusDropped
	dropped.Grade = nil
	dropped.GradePoints = nil
	svc, _ := newReportFixture([]models.EnrollmentDetail{gradedDetail(0, "A", 4.0), dropped})

	transcript, err := svc.Transcript(context.Background(), studentID)
	require.NoError(t, err)

	require.Len(t, transcript.Rows, 1)
	assert.Equal(t, "CS-000", transcript.Rows[0].CourseCode)
	require.Len(t, transcript.SemesterGPAs, 1)
	assert.Equal(t, 4.0, transcript.SemesterGPAs[0].GPA)
}

func TestTranscriptCSVRowValues(t *testing.T) {
	svc, _ := newReportFixture([]models.EnrollmentDetail{gradedDetail(0, "B+", 3.5)})

	data, err := svc.TranscriptCSV(context.Background(), studentID)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Course,Title,Credits,Term,Status,Grade,Points", lines[0])
	assert.Equal(t, "CS-000,Course,3,FALL 2025,COMPLETED,B+,3.50", lines[1])
}

func TestClassRosterCSVRowValues(t *testing.T) {
	svc, _ := newReportFixture([]models.EnrollmentDetail{gradedDetail(0, "A", 4.0)})

	data, err := svc.ClassRosterCSV(context.Background(), offeringID)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Student No,Student,Status,Grade,Enrolled At", lines[0])
	assert.Equal(t, "S-1001,Dana Ortiz,COMPLETED,A,2025-09-01", lines[1])
}
