package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openacad/sis-api/internal/models"
	"github.com/openacad/sis-api/internal/repository"
	appErrors "github.com/openacad/sis-api/pkg/errors"
)

var (
	studentID   = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	offeringID  = "16fd2706-8baf-433b-82eb-8c7fada847da"
	courseID    = "6ba7b810-9dad-41d1-80b4-00c04fd430c8"
	prereqID    = "6ba7b811-9dad-41d1-80b4-00c04fd430c8"
	otherID     = "886313e1-3b8a-4372-9b90-0c9aee199e5d"
	instructorX = "2a8f0f9b-3c57-49a6-9d2e-5f6f3f1b2c4d"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	duplicate   bool
	finished    []models.CompletedCourse
	enrolled    []models.ClassOffering
	admitErr    error
	dropErr     error
	admitted    *models.Enrollment
	dropped     []string
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e, CourseCode: "CS-201", CourseName: "Data Structures"}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ExistsActiveOrCompleted(ctx context.Context, studentID, offeringID string) (bool, error) {
	return m.duplicate, nil
}

func (m *mockEnrollmentRepo) FinishedCourses(ctx context.Context, studentID string) ([]models.CompletedCourse, error) {
	return m.finished, nil
}

func (m *mockEnrollmentRepo) ListEnrolledOfferings(ctx context.Context, studentID string, semester models.Semester, year int) ([]models.ClassOffering, error) {
	return m.enrolled, nil
}

func (m *mockEnrollmentRepo) AdmitTx(ctx context.Context, enrollment *models.Enrollment) error {
	if m.admitErr != nil {
		return m.admitErr
	}
	if enrollment.ID == "" {
		enrollment.ID = "new-enrollment"
	}
	enrollment.Status = models.EnrollmentStatusEnrolled
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.admitted = enrollment
	return nil
}

func (m *mockEnrollmentRepo) DropTx(ctx context.Context, enrollmentID, offeringID string, droppedAt time.Time) error {
	if m.dropErr != nil {
		return m.dropErr
	}
	if e, ok := m.enrollments[enrollmentID]; ok {
		e.Status = models.EnrollmentStatusDropped
		e.DroppedAt = &droppedAt
		m.enrollments[enrollmentID] = e
	}
	m.dropped = append(m.dropped, enrollmentID)
	return nil
}

type mockOfferingReader struct {
	offerings map[string]*models.ClassOffering
}

func (m *mockOfferingReader) FindByID(ctx context.Context, id string) (*models.ClassOffering, error) {
	if o, ok := m.offerings[id]; ok {
		out := *o
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockOfferingReader) FindDetailByID(ctx context.Context, id string) (*models.OfferingDetail, error) {
	o, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.OfferingDetail{ClassOffering: *o}, nil
}

type mockCourseReader struct {
	prereqs map[string][]models.CourseRef
}

func (m *mockCourseReader) Prerequisites(ctx context.Context, courseID string) ([]models.CourseRef, error) {
	return m.prereqs[courseID], nil
}

type mockStudentReader struct {
	students map[string]*models.StudentDetail
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockDispatcher struct {
	events []models.NotificationEvent
}

func (m *mockDispatcher) Dispatch(event models.NotificationEvent) {
	m.events = append(m.events, event)
}

type mockAdmissionMetrics struct {
	admissions int
	drops      int
	rejections map[string]int
}

func (m *mockAdmissionMetrics) RecordAdmission() { m.admissions++ }
func (m *mockAdmissionMetrics) RecordDrop()      { m.drops++ }
func (m *mockAdmissionMetrics) RecordAdmissionRejected(reason string) {
	if m.rejections == nil {
		m.rejections = make(map[string]int)
	}
	m.rejections[reason]++
}

func activeStudent() *models.StudentDetail {
	return &models.StudentDetail{
		Student: models.Student{
			ID:             studentID,
			UserID:         instructorX,
			StudentNo:      "S-1001",
			AcademicStatus: models.AcademicStatusActive,
		},
		FullName: "Dana Ortiz",
	}
}

func openOffering() *models.ClassOffering {
	return &models.ClassOffering{
		ID:           offeringID,
		CourseID:     courseID,
		Code:         "CS201-A-FA25",
		Semester:     models.SemesterFall,
		AcademicYear: 2025,
		Capacity:     30,
		Status:       models.OfferingStatusOpen,
		Schedule: models.ScheduleBlocks{
			block("MONDAY", "09:00", "10:30"),
		},
	}
}

func newEnrollmentFixture() (*EnrollmentService, *mockEnrollmentRepo, *mockOfferingReader, *mockCourseReader, *mockDispatcher, *mockAdmissionMetrics) {
	repo := &mockEnrollmentRepo{}
	offerings := &mockOfferingReader{offerings: map[string]*models.ClassOffering{offeringID: openOffering()}}
	courses := &mockCourseReader{prereqs: map[string][]models.CourseRef{}}
	students := &mockStudentReader{students: map[string]*models.StudentDetail{studentID: activeStudent()}}
	dispatcher := &mockDispatcher{}
	metrics := &mockAdmissionMetrics{}
	svc := NewEnrollmentService(repo, offerings, courses, students, dispatcher, metrics, nil, nil)
	return svc, repo, offerings, courses, dispatcher, metrics
}

func TestEnrollSuccess(t *testing.T) {
	svc, repo, _, _, dispatcher, metrics := newEnrollmentFixture()

	detail, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: studentID, OfferingID: offeringID})
	require.NoError(t, err)
	require.NotNil(t, detail)

	assert.Equal(t, models.EnrollmentStatusEnrolled, detail.Status)
	require.NotNil(t, repo.admitted)
	assert.Equal(t, studentID, repo.admitted.StudentID)
	assert.Equal(t, 1, metrics.admissions)

	require.Len(t, dispatcher.events, 1)
	assert.Equal(t, models.NotificationEnrollmentConfirmed, dispatcher.events[0].Type)
}

func TestEnrollRejectsDuplicate(t *testing.T) {
	svc, repo, _, _, _, metrics := newEnrollmentFixture()
	repo.duplicate = true

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: studentID, OfferingID: offeringID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, metrics.rejections["already_enrolled"])
	assert.Nil(t, repo.admitted)
}

func TestEnrollRejectsMissingPrerequisitesWithFullList(t *testing.T) {
	svc, repo, _, courses, _, _ := newEnrollmentFixture()
	courses.prereqs[courseID] = []models.CourseRef{
		{ID: prereqID, Code: "CS-101", Name: "Intro"},
		{ID: otherID, Code: "MA-101", Name: "Calculus"},
	}
	// CS-101 was completed with a passing grade; MA-101 was failed.
	repo.finished = []models.CompletedCourse{
		{CourseID: prereqID, Status: models.EnrollmentStatusCompleted, GradePoints: points(3.0)},
		{CourseID: otherID, Status: models.EnrollmentStatusFailed, GradePoints: points(0.0)},
	}

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: studentID, OfferingID: offeringID})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPrerequisitesNotMet.Code, appErr.Code)
	details, ok := appErr.Details.(map[string]interface{})
	require.True(t, ok)
	missing, ok := details["missing_prerequisites"].([]models.CourseRef)
	require.True(t, ok)
	require.Len(t, missing, 1)
	assert.Equal(t, "MA-101", missing[0].Code)
}

func TestEnrollPrerequisiteSatisfiedByPassingCompletion(t *testing.T) {
	svc, repo, _, courses, _, _ := newEnrollmentFixture()
	courses.prereqs[courseID] = []models.CourseRef{{ID: prereqID, Code: "CS-101"}}
	repo.finished = []models.CompletedCourse{
		{CourseID: prereqID, Status: models.EnrollmentStatusCompleted, GradePoints: points(1.0)},
	}

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: studentID, OfferingID: offeringID})
	require.NoError(t, err)
}

func TestEnrollRejectsFullOffering(t *testing.T) {
	svc, _, offerings, _, _, metrics := newEnrollmentFixture()
	offerings.offerings[offeringID].Capacity = 1
	offerings.offerings[offeringID].EnrolledCount = 1

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: studentID, OfferingID: offeringID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrClassFull.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, metrics.rejections["class_full"])
}

func TestEnrollRejectsNonOpenOffering(t *testing.T) {
	svc, _, offerings, _, _, _ := newEnrollmentFixture()
	offerings.offerings[offeringID].Status = models.OfferingStatusCancelled

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: studentID, OfferingID: offeringID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrClassFull.Code, appErrors.FromError(err).Code)
}

func TestEnrollRejectsScheduleConflict(t *testing.T) {
	svc, repo, _, _, _, metrics := newEnrollmentFixture()
	repo.enrolled = []models.ClassOffering{{
		ID:       otherID,
		Code:     "PH101-A-FA25",
		Schedule: models.ScheduleBlocks{block("MONDAY", "10:00", "11:00")},
	}}

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: studentID, OfferingID: offeringID})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)
	details, ok := appErr.Details.(map[string]interface{})
	require.True(t, ok)
	conflict, ok := details["conflicting_offering"].(*models.OfferingRef)
	require.True(t, ok)
	assert.Equal(t, "PH101-A-FA25", conflict.Code)
	assert.Equal(t, 1, metrics.rejections["schedule_conflict"])
}

func TestEnrollSeatRaceMapsToClassFull(t *testing.T) {
	svc, repo, _, _, _, _ := newEnrollmentFixture()
	repo.admitErr = repository.ErrSeatUnavailable

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: studentID, OfferingID: offeringID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrClassFull.Code, appErrors.FromError(err).Code)
}

func TestEnrollTransientFailureIsRetryable(t *testing.T) {
	svc, repo, _, _, _, _ := newEnrollmentFixture()
	repo.admitErr = errors.New("commit failed")

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: studentID, OfferingID: offeringID})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAdmissionFailed.Code, appErr.Code)
	assert.Equal(t, 503, appErr.Status)
}

func TestEnrollRejectsInactiveStudent(t *testing.T) {
	svc, _, _, _, _, _ := newEnrollmentFixture()
	suspended := activeStudent()
	suspended.AcademicStatus = models.AcademicStatusSuspended
	svc.students.(*mockStudentReader).students[studentID] = suspended

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: studentID, OfferingID: offeringID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestDropActiveEnrollment(t *testing.T) {
	svc, repo, _, _, dispatcher, metrics := newEnrollmentFixture()
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: studentID, OfferingID: offeringID, Status: models.EnrollmentStatusEnrolled},
	}

	detail, err := svc.Drop(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, detail.Status)
	assert.Equal(t, []string{"e1"}, repo.dropped)
	assert.Equal(t, 1, metrics.drops)

	require.Len(t, dispatcher.events, 1)
	assert.Equal(t, models.NotificationEnrollmentDropped, dispatcher.events[0].Type)
}

func TestDropAlreadyDropped(t *testing.T) {
	svc, repo, _, _, _, _ := newEnrollmentFixture()
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: studentID, OfferingID: offeringID, Status: models.EnrollmentStatusDropped},
	}

	_, err := svc.Drop(context.Background(), "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.dropped)
}

func TestDropFinalizedEnrollment(t *testing.T) {
	svc, repo, _, _, _, _ := newEnrollmentFixture()
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: studentID, OfferingID: offeringID, Status: models.EnrollmentStatusCompleted},
	}

	_, err := svc.Drop(context.Background(), "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCannotDrop.Code, appErrors.FromError(err).Code)
}

func TestDropThenReenroll(t *testing.T) {
	svc, repo, _, _, _, _ := newEnrollmentFixture()
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: studentID, OfferingID: offeringID, Status: models.EnrollmentStatusEnrolled},
	}

	_, err := svc.Drop(context.Background(), "e1")
	require.NoError(t, err)

	// A dropped row does not block re-admission.
	detail, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: studentID, OfferingID: offeringID})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, detail.Status)
	assert.NotEqual(t, "e1", detail.ID)
}
