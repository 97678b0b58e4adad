package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openacad/sis-api/internal/models"
	appErrors "github.com/openacad/sis-api/pkg/errors"
)

type mockAssessmentStore struct {
	scores  map[string]models.AssessmentScore
	created []models.AssessmentScore
	deleted []string
	nextID  int
}

func (m *mockAssessmentStore) List(ctx context.Context, filter models.AssessmentFilter) ([]models.AssessmentScore, int, error) {
	var out []models.AssessmentScore
	for _, s := range m.scores {
		if filter.EnrollmentID == "" || s.EnrollmentID == filter.EnrollmentID {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (m *mockAssessmentStore) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.AssessmentScore, error) {
	var out []models.AssessmentScore
	for _, s := range m.scores {
		if s.EnrollmentID == enrollmentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockAssessmentStore) FindByID(ctx context.Context, id string) (*models.AssessmentScore, error) {
	if s, ok := m.scores[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssessmentStore) Create(ctx context.Context, score *models.AssessmentScore) error {
	m.nextID++
	score.ID = fmt.Sprintf("a%d", m.nextID)
	if m.scores == nil {
		m.scores = make(map[string]models.AssessmentScore)
	}
	m.scores[score.ID] = *score
	m.created = append(m.created, *score)
	return nil
}

func (m *mockAssessmentStore) Update(ctx context.Context, score *models.AssessmentScore) error {
	m.scores[score.ID] = *score
	return nil
}

func (m *mockAssessmentStore) Delete(ctx context.Context, id string) error {
	delete(m.scores, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockGradeEnrollmentStore struct {
	enrollments map[string]models.Enrollment
	finalized   []string
}

func (m *mockGradeEnrollmentStore) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeEnrollmentStore) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e, CourseCode: "CS-201", CourseName: "Data Structures"}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeEnrollmentStore) SetFinalGrade(ctx context.Context, id, letter string, gradePoints float64, status models.EnrollmentStatus, fromStatuses ...models.EnrollmentStatus) error {
	e, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	allowed := false
	for _, from := range fromStatuses {
		if e.Status == from {
			allowed = true
		}
	}
	if !allowed {
		return fmt.Errorf("unexpected transition from %s", e.Status)
	}
	e.Grade = &letter
	e.GradePoints = &gradePoints
	e.Status = status
	m.enrollments[id] = e
	m.finalized = append(m.finalized, id)
	return nil
}

type mockGPARecalculator struct {
	gpa   float64
	calls []string
}

func (m *mockGPARecalculator) Recompute(ctx context.Context, studentID string) (float64, error) {
	m.calls = append(m.calls, studentID)
	return m.gpa, nil
}

type mockInvalidator struct {
	invalidated []string
}

func (m *mockInvalidator) InvalidateStudent(ctx context.Context, studentID string) error {
	m.invalidated = append(m.invalidated, studentID)
	return nil
}

type mockGradeMetrics struct {
	finalized map[string]int
}

func (m *mockGradeMetrics) RecordFinalization(letter string) {
	if m.finalized == nil {
		m.finalized = make(map[string]int)
	}
	m.finalized[letter]++
}

type gradeFixture struct {
	svc         *GradeService
	scores      *mockAssessmentStore
	enrollments *mockGradeEnrollmentStore
	gpa         *mockGPARecalculator
	cache       *mockInvalidator
	metrics     *mockGradeMetrics
	dispatcher  *mockDispatcher
}

func newGradeFixture(status models.EnrollmentStatus) *gradeFixture {
	f := &gradeFixture{
		scores: &mockAssessmentStore{scores: map[string]models.AssessmentScore{}},
		enrollments: &mockGradeEnrollmentStore{enrollments: map[string]models.Enrollment{
			"e1": {ID: "e1", StudentID: studentID, OfferingID: offeringID, Status: status},
		}},
		gpa:        &mockGPARecalculator{gpa: 3.42},
		cache:      &mockInvalidator{},
		metrics:    &mockGradeMetrics{},
		dispatcher: &mockDispatcher{},
	}
	students := &mockStudentReader{students: map[string]*models.StudentDetail{studentID: activeStudent()}}
	f.svc = NewGradeService(f.scores, f.enrollments, students, f.gpa, f.dispatcher, f.cache, f.metrics, nil, nil, nil)
	return f
}

func (f *gradeFixture) addScore(name string, obtained, total, weight float64) {
	f.scores.Create(context.Background(), &models.AssessmentScore{
		EnrollmentID:  "e1",
		Name:          name,
		MarksObtained: obtained,
		TotalMarks:    total,
		Weight:        weight,
	})
}

func TestComputePercentageWeightedSum(t *testing.T) {
	scores := []models.AssessmentScore{
		{MarksObtained: 80, TotalMarks: 100, Weight: 30},
		{MarksObtained: 45, TotalMarks: 50, Weight: 30},
		{MarksObtained: 90, TotalMarks: 100, Weight: 40},
	}
	percentage, totalWeight := ComputePercentage(scores)
	assert.InDelta(t, 87.0, percentage, 1e-9)
	assert.InDelta(t, 100.0, totalWeight, 1e-9)
}

func TestComputePercentageNoScores(t *testing.T) {
	percentage, totalWeight := ComputePercentage(nil)
	assert.Zero(t, percentage)
	assert.Zero(t, totalWeight)
}

func TestCreateAssessmentUnknownEnrollment(t *testing.T) {
	f := newGradeFixture(models.EnrollmentStatusEnrolled)

	score, err := f.svc.CreateAssessment(context.Background(), CreateAssessmentRequest{
		EnrollmentID:  otherID,
		Name:          "Midterm",
		MarksObtained: 42,
		TotalMarks:    50,
		Weight:        30,
	}, instructorX)
	require.Error(t, err)
	assert.Nil(t, score)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAssessmentLifecycleFreezesAfterFinalize(t *testing.T) {
	f := newGradeFixture(models.EnrollmentStatusEnrolled)
	f.enrollments.enrollments[offeringID] = models.Enrollment{
		ID: offeringID, StudentID: studentID, Status: models.EnrollmentStatusEnrolled,
	}

	score, err := f.svc.CreateAssessment(context.Background(), CreateAssessmentRequest{
		EnrollmentID:  offeringID,
		Name:          "Midterm",
		MarksObtained: 42,
		TotalMarks:    50,
		Weight:        30,
	}, instructorX)
	require.NoError(t, err)
	require.NotNil(t, score.GradedBy)
	assert.Equal(t, instructorX, *score.GradedBy)

	// Finalization freezes the enrollment's scores.
	frozen := f.enrollments.enrollments[offeringID]
	frozen.Status = models.EnrollmentStatusCompleted
	f.enrollments.enrollments[offeringID] = frozen

	_, err = f.svc.UpdateAssessment(context.Background(), score.ID, UpdateAssessmentRequest{
		Name:          "Midterm",
		MarksObtained: 45,
		TotalMarks:    50,
		Weight:        30,
	}, instructorX)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyFinalized.Code, appErrors.FromError(err).Code)

	err = f.svc.DeleteAssessment(context.Background(), score.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyFinalized.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.scores.deleted)
}

func TestFinalizePassingGrade(t *testing.T) {
	f := newGradeFixture(models.EnrollmentStatusEnrolled)
	f.addScore("Midterm", 80, 100, 30)
	f.addScore("Assignments", 45, 50, 30)
	f.addScore("Final", 90, 100, 40)

	result, err := f.svc.Finalize(context.Background(), "e1")
	require.NoError(t, err)

	assert.InDelta(t, 87.0, result.Percentage, 1e-9)
	assert.Equal(t, "B+", result.Letter)
	assert.InDelta(t, 3.5, result.GradePoints, 1e-9)
	assert.InDelta(t, 3.42, result.GPA, 1e-9)
	assert.Empty(t, result.Warning)
	assert.Equal(t, models.EnrollmentStatusCompleted, result.Enrollment.Status)

	assert.Equal(t, []string{studentID}, f.gpa.calls)
	assert.Equal(t, []string{studentID}, f.cache.invalidated)
	assert.Equal(t, 1, f.metrics.finalized["B+"])

	require.Len(t, f.dispatcher.events, 1)
	assert.Equal(t, models.NotificationGradeFinalized, f.dispatcher.events[0].Type)
}

func TestFinalizeFailingGrade(t *testing.T) {
	f := newGradeFixture(models.EnrollmentStatusEnrolled)
	f.addScore("Midterm", 20, 100, 50)
	f.addScore("Final", 30, 100, 50)

	result, err := f.svc.Finalize(context.Background(), "e1")
	require.NoError(t, err)

	assert.InDelta(t, 25.0, result.Percentage, 1e-9)
	assert.Equal(t, "F", result.Letter)
	assert.Zero(t, result.GradePoints)
	assert.Equal(t, models.EnrollmentStatusFailed, result.Enrollment.Status)
}

func TestFinalizeWithNoScoresFails(t *testing.T) {
	f := newGradeFixture(models.EnrollmentStatusEnrolled)

	result, err := f.svc.Finalize(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "F", result.Letter)
	assert.Equal(t, models.EnrollmentStatusFailed, result.Enrollment.Status)
}

func TestFinalizeOverweightedScoresWarn(t *testing.T) {
	f := newGradeFixture(models.EnrollmentStatusEnrolled)
	f.addScore("Midterm", 100, 100, 60)
	f.addScore("Final", 100, 100, 60)

	result, err := f.svc.Finalize(context.Background(), "e1")
	require.NoError(t, err)

	assert.InDelta(t, 120.0, result.Percentage, 1e-9)
	assert.Equal(t, "A+", result.Letter)
	assert.Equal(t, "assessment weights sum to 120.0; percentages above 100 clamp to the top grade band", result.Warning)
}

func TestFinalizeTwice(t *testing.T) {
	f := newGradeFixture(models.EnrollmentStatusEnrolled)
	f.addScore("Final", 85, 100, 100)

	_, err := f.svc.Finalize(context.Background(), "e1")
	require.NoError(t, err)

	_, err = f.svc.Finalize(context.Background(), "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyFinalized.Code, appErrors.FromError(err).Code)
	assert.Len(t, f.enrollments.finalized, 1)
}

func TestFinalizeDroppedEnrollment(t *testing.T) {
	f := newGradeFixture(models.EnrollmentStatusDropped)

	_, err := f.svc.Finalize(context.Background(), "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestPreviewDoesNotWrite(t *testing.T) {
	f := newGradeFixture(models.EnrollmentStatusEnrolled)
	f.addScore("Midterm", 95, 100, 50)

	result, err := f.svc.Preview(context.Background(), "e1")
	require.NoError(t, err)

	assert.InDelta(t, 47.5, result.Percentage, 1e-9)
	assert.Equal(t, "F", result.Letter)
	assert.Empty(t, f.enrollments.finalized)
	assert.Empty(t, f.gpa.calls)
	assert.Equal(t, models.EnrollmentStatusEnrolled, f.enrollments.enrollments["e1"].Status)
}

func TestAmendFinalizedGrade(t *testing.T) {
	f := newGradeFixture(models.EnrollmentStatusFailed)

	result, err := f.svc.Amend(context.Background(), "e1", AmendGradeRequest{
		Letter: "C",
		Reason: "regrade after appeal",
	})
	require.NoError(t, err)

	assert.Equal(t, "C", result.Letter)
	assert.InDelta(t, 2.0, result.GradePoints, 1e-9)
	assert.Equal(t, models.EnrollmentStatusCompleted, result.Enrollment.Status)
	assert.Equal(t, []string{studentID}, f.gpa.calls)
	assert.Equal(t, []string{studentID}, f.cache.invalidated)
}

func TestAmendToFailingLetter(t *testing.T) {
	f := newGradeFixture(models.EnrollmentStatusCompleted)

	result, err := f.svc.Amend(context.Background(), "e1", AmendGradeRequest{
		Letter: "F",
		Reason: "academic integrity finding",
	})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusFailed, result.Enrollment.Status)
	assert.Zero(t, result.GradePoints)
}

func TestAmendUnknownLetter(t *testing.T) {
	f := newGradeFixture(models.EnrollmentStatusCompleted)

	_, err := f.svc.Amend(context.Background(), "e1", AmendGradeRequest{
		Letter: "E",
		Reason: "typo",
	})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, `unknown letter grade "E"`)
}

func TestAmendActiveEnrollment(t *testing.T) {
	f := newGradeFixture(models.EnrollmentStatusEnrolled)

	_, err := f.svc.Amend(context.Background(), "e1", AmendGradeRequest{
		Letter: "A",
		Reason: "premature",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.enrollments.finalized)
}
