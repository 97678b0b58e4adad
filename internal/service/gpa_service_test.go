package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openacad/sis-api/internal/models"
)

type mockGPAStudentStore struct {
	finished []models.CompletedCourse
	saved    float64
	calls    int
}

func (m *mockGPAStudentStore) RecalculateGPA(ctx context.Context, studentID string, compute func([]models.CompletedCourse) float64) (float64, error) {
	m.calls++
	m.saved = compute(m.finished)
	return m.saved, nil
}

type mockGPATimer struct {
	observations int
}

func (m *mockGPATimer) ObserveGPARecompute(time.Duration) {
	m.observations++
}

func points(v float64) *float64 { return &v }

func TestComputeGPAEmpty(t *testing.T) {
	assert.Equal(t, 0.0, ComputeGPA(nil))
	assert.Equal(t, 0.0, ComputeGPA([]models.CompletedCourse{}))
}

func TestComputeGPACreditWeighting(t *testing.T) {
	finished := []models.CompletedCourse{
		{CourseID: "c1", Credits: 4, Status: models.EnrollmentStatusCompleted, GradePoints: points(4.0)},
		{CourseID: "c2", Credits: 2, Status: models.EnrollmentStatusCompleted, GradePoints: points(2.0)},
	}
	// (4*4 + 2*2) / 6 = 3.333... -> 3.33
	assert.Equal(t, 3.33, ComputeGPA(finished))
}

func TestComputeGPAIncludesFailedCourses(t *testing.T) {
	finished := []models.CompletedCourse{
		{CourseID: "c1", Credits: 3, Status: models.EnrollmentStatusCompleted, GradePoints: points(4.0)},
		{CourseID: "c2", Credits: 3, Status: models.EnrollmentStatusFailed, GradePoints: points(0.0)},
	}
	assert.Equal(t, 2.0, ComputeGPA(finished))
}

func TestComputeGPASkipsUngradedRows(t *testing.T) {
	finished := []models.CompletedCourse{
		{CourseID: "c1", Credits: 3, Status: models.EnrollmentStatusCompleted, GradePoints: points(3.0)},
		{CourseID: "c2", Credits: 3, Status: models.EnrollmentStatusCompleted, GradePoints: nil},
	}
	assert.Equal(t, 3.0, ComputeGPA(finished))
}

func TestComputeGPARoundsHalfToEven(t *testing.T) {
	// 2.5 + 2.0 averaged over equal credits is 2.25: exactly
	// representable midpoints round to the even neighbour.
	finished := []models.CompletedCourse{
		{CourseID: "c1", Credits: 1, Status: models.EnrollmentStatusCompleted, GradePoints: points(2.5)},
		{CourseID: "c2", Credits: 1, Status: models.EnrollmentStatusCompleted, GradePoints: points(2.0)},
	}
	assert.Equal(t, 2.25, ComputeGPA(finished))

	assert.Equal(t, 0.12, roundHalfEven(0.125))
	assert.Equal(t, 0.38, roundHalfEven(0.375))
}

func TestGPAServiceRecomputeIdempotent(t *testing.T) {
	store := &mockGPAStudentStore{
		finished: []models.CompletedCourse{
			{CourseID: "c1", Credits: 3, Status: models.EnrollmentStatusCompleted, GradePoints: points(3.5)},
		},
	}
	timer := &mockGPATimer{}
	svc := NewGPAService(store, timer, zap.NewNop())

	first, err := svc.Recompute(context.Background(), "student-1")
	require.NoError(t, err)
	second, err := svc.Recompute(context.Background(), "student-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 3.5, store.saved)
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, 2, timer.observations)
}
