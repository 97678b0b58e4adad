package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openacad/sis-api/internal/models"
	"github.com/openacad/sis-api/internal/repository"
	appErrors "github.com/openacad/sis-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsActiveOrCompleted(ctx context.Context, studentID, offeringID string) (bool, error)
	FinishedCourses(ctx context.Context, studentID string) ([]models.CompletedCourse, error)
	ListEnrolledOfferings(ctx context.Context, studentID string, semester models.Semester, year int) ([]models.ClassOffering, error)
	AdmitTx(ctx context.Context, enrollment *models.Enrollment) error
	DropTx(ctx context.Context, enrollmentID, offeringID string, droppedAt time.Time) error
}

type enrollmentOfferingReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassOffering, error)
	FindDetailByID(ctx context.Context, id string) (*models.OfferingDetail, error)
}

type enrollmentCourseReader interface {
	Prerequisites(ctx context.Context, courseID string) ([]models.CourseRef, error)
}

type enrollmentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type eventDispatcher interface {
	Dispatch(event models.NotificationEvent)
}

type admissionMetrics interface {
	RecordAdmission()
	RecordAdmissionRejected(reason string)
	RecordDrop()
}

// EnrollRequest is the admission payload.
type EnrollRequest struct {
	StudentID  string `json:"student_id" validate:"required,uuid4"`
	OfferingID string `json:"offering_id" validate:"required,uuid4"`
}

// EnrollmentService runs the admission pipeline and the drop flow.
//
// Admission validates in a fixed order: duplicate, prerequisites,
// capacity, schedule conflict. The checks outside the transaction are
// advisory fast-fails; the seat claim re-checks capacity and status
// under a row lock, so overselling is impossible even when two
// requests race past the advisory check.
type EnrollmentService struct {
	repo      enrollmentRepository
	offerings enrollmentOfferingReader
	courses   enrollmentCourseReader
	students  enrollmentStudentReader
	notifier  eventDispatcher
	metrics   admissionMetrics
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(
	repo enrollmentRepository,
	offerings enrollmentOfferingReader,
	courses enrollmentCourseReader,
	students enrollmentStudentReader,
	notifier eventDispatcher,
	metrics admissionMetrics,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      repo,
		offerings: offerings,
		courses:   courses,
		students:  students,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// List returns enrollments and pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one enrollment with course and student context.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Enroll admits a student into a class offering.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment request")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.AcademicStatus != models.AcademicStatusActive {
		s.reject("student_inactive")
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "student is not active")
	}

	offering, err := s.offerings.FindByID(ctx, req.OfferingID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class offering not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class offering")
	}

	duplicate, err := s.repo.ExistsActiveOrCompleted(ctx, req.StudentID, req.OfferingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if duplicate {
		s.reject("already_enrolled")
		return nil, appErrors.ErrAlreadyEnrolled
	}

	missing, err := s.missingPrerequisites(ctx, req.StudentID, offering.CourseID)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		s.reject("prerequisites_not_met")
		return nil, appErrors.WithDetails(appErrors.ErrPrerequisitesNotMet, "", map[string]interface{}{
			"missing_prerequisites": missing,
		})
	}

	if offering.Status != models.OfferingStatusOpen || offering.IsFull() {
		s.reject("class_full")
		return nil, appErrors.ErrClassFull
	}

	if conflict, err := s.scheduleConflict(ctx, req.StudentID, offering); err != nil {
		return nil, err
	} else if conflict != nil {
		s.reject("schedule_conflict")
		return nil, appErrors.WithDetails(appErrors.ErrScheduleConflict, "", map[string]interface{}{
			"conflicting_offering": conflict,
		})
	}

	enrollment := &models.Enrollment{StudentID: req.StudentID, OfferingID: req.OfferingID}
	if err := s.repo.AdmitTx(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrSeatUnavailable) {
			s.reject("class_full")
			return nil, appErrors.ErrClassFull
		}
		s.logger.Error("admission transaction failed",
			zap.String("student_id", req.StudentID),
			zap.String("offering_id", req.OfferingID),
			zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrAdmissionFailed.Code, appErrors.ErrAdmissionFailed.Status, appErrors.ErrAdmissionFailed.Message)
	}

	if s.metrics != nil {
		s.metrics.RecordAdmission()
	}

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	s.notify(models.NotificationEvent{
		Type:    models.NotificationEnrollmentConfirmed,
		UserID:  student.UserID,
		Title:   "Enrollment confirmed",
		Message: fmt.Sprintf("You are enrolled in %s %s (%s %d).", detail.CourseCode, detail.CourseName, detail.Semester, detail.AcademicYear),
	})
	return detail, nil
}

// Drop withdraws an active enrollment and releases its seat.
func (s *EnrollmentService) Drop(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	switch enrollment.Status {
	case models.EnrollmentStatusEnrolled:
	case models.EnrollmentStatusDropped:
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "enrollment is already dropped")
	default:
		return nil, appErrors.ErrCannotDrop
	}

	if err := s.repo.DropTx(ctx, enrollment.ID, enrollment.OfferingID, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrStateChanged) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "enrollment is no longer active")
		}
		s.logger.Error("drop transaction failed", zap.String("enrollment_id", id), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
	}

	if s.metrics != nil {
		s.metrics.RecordDrop()
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if student, err := s.students.FindByID(ctx, enrollment.StudentID); err == nil {
		s.notify(models.NotificationEvent{
			Type:    models.NotificationEnrollmentDropped,
			UserID:  student.UserID,
			Title:   "Enrollment dropped",
			Message: fmt.Sprintf("You have been withdrawn from %s %s.", detail.CourseCode, detail.CourseName),
		})
	}
	return detail, nil
}

// missingPrerequisites returns every prerequisite the student has not
// passed, in catalog order. A prerequisite counts as satisfied only by
// a COMPLETED enrollment with a passing grade.
func (s *EnrollmentService) missingPrerequisites(ctx context.Context, studentID, courseID string) ([]models.CourseRef, error) {
	prereqs, err := s.courses.Prerequisites(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisites")
	}
	if len(prereqs) == 0 {
		return nil, nil
	}

	finished, err := s.repo.FinishedCourses(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic history")
	}

	passed := make(map[string]bool, len(finished))
	for _, course := range finished {
		if course.Status == models.EnrollmentStatusCompleted && course.GradePoints != nil && Passing(*course.GradePoints) {
			passed[course.CourseID] = true
		}
	}

	var missing []models.CourseRef
	for _, prereq := range prereqs {
		if !passed[prereq.ID] {
			missing = append(missing, prereq)
		}
	}
	return missing, nil
}

// scheduleConflict returns the first currently-enrolled offering in the
// same term whose weekly schedule overlaps the candidate's.
func (s *EnrollmentService) scheduleConflict(ctx context.Context, studentID string, offering *models.ClassOffering) (*models.OfferingRef, error) {
	if len(offering.Schedule) == 0 {
		return nil, nil
	}
	enrolled, err := s.repo.ListEnrolledOfferings(ctx, studentID, offering.Semester, offering.AcademicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current schedule")
	}
	for _, existing := range enrolled {
		if SchedulesConflict(offering.Schedule, existing.Schedule) {
			return &models.OfferingRef{ID: existing.ID, Code: existing.Code}, nil
		}
	}
	return nil, nil
}

func (s *EnrollmentService) notify(event models.NotificationEvent) {
	if s.notifier != nil {
		s.notifier.Dispatch(event)
	}
}

func (s *EnrollmentService) reject(reason string) {
	if s.metrics != nil {
		s.metrics.RecordAdmissionRejected(reason)
	}
}
