package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openacad/sis-api/internal/models"
	"github.com/openacad/sis-api/internal/repository"
	appErrors "github.com/openacad/sis-api/pkg/errors"
)

type assessmentStore interface {
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.AssessmentScore, int, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.AssessmentScore, error)
	FindByID(ctx context.Context, id string) (*models.AssessmentScore, error)
	Create(ctx context.Context, score *models.AssessmentScore) error
	Update(ctx context.Context, score *models.AssessmentScore) error
	Delete(ctx context.Context, id string) error
}

type gradeEnrollmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	SetFinalGrade(ctx context.Context, id, letter string, points float64, status models.EnrollmentStatus, fromStatuses ...models.EnrollmentStatus) error
}

type gpaRecalculator interface {
	Recompute(ctx context.Context, studentID string) (float64, error)
}

type transcriptInvalidator interface {
	InvalidateStudent(ctx context.Context, studentID string) error
}

type gradeMetrics interface {
	RecordFinalization(letter string)
}

// CreateAssessmentRequest records a graded component on an enrollment.
type CreateAssessmentRequest struct {
	EnrollmentID  string  `json:"enrollment_id" validate:"required,uuid4"`
	Name          string  `json:"name" validate:"required,max=120"`
	MarksObtained float64 `json:"marks_obtained" validate:"min=0,ltefield=TotalMarks"`
	TotalMarks    float64 `json:"total_marks" validate:"gt=0"`
	Weight        float64 `json:"weight" validate:"gt=0,lte=100"`
	Comments      string  `json:"comments" validate:"max=500"`
}

// UpdateAssessmentRequest revises a graded component.
type UpdateAssessmentRequest struct {
	Name          string  `json:"name" validate:"required,max=120"`
	MarksObtained float64 `json:"marks_obtained" validate:"min=0,ltefield=TotalMarks"`
	TotalMarks    float64 `json:"total_marks" validate:"gt=0"`
	Weight        float64 `json:"weight" validate:"gt=0,lte=100"`
	Comments      string  `json:"comments" validate:"max=500"`
}

// AmendGradeRequest overrides a finalized letter grade.
type AmendGradeRequest struct {
	Letter string `json:"letter" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// GradeService manages assessment scores and the finalization of
// enrollments into letter grades.
//
// Scores are mutable only while the enrollment is ENROLLED. Finalize
// computes the weighted percentage, maps it through the grade scale,
// moves the enrollment to COMPLETED or FAILED, and synchronously
// recomputes the student's GPA so a transcript read immediately after
// finalization already reflects the new grade.
type GradeService struct {
	scores      assessmentStore
	enrollments gradeEnrollmentStore
	students    enrollmentStudentReader
	gpa         gpaRecalculator
	notifier    eventDispatcher
	cache       transcriptInvalidator
	metrics     gradeMetrics
	scale       GradeScale
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs the grade service.
func NewGradeService(
	scores assessmentStore,
	enrollments gradeEnrollmentStore,
	students enrollmentStudentReader,
	gpa gpaRecalculator,
	notifier eventDispatcher,
	cache transcriptInvalidator,
	metrics gradeMetrics,
	scale GradeScale,
	validate *validator.Validate,
	logger *zap.Logger,
) *GradeService {
	if len(scale) == 0 {
		scale = DefaultGradeScale
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		scores:      scores,
		enrollments: enrollments,
		students:    students,
		gpa:         gpa,
		notifier:    notifier,
		cache:       cache,
		metrics:     metrics,
		scale:       scale,
		validator:   validate,
		logger:      logger,
	}
}

// ListAssessments returns assessment scores for an enrollment.
func (s *GradeService) ListAssessments(ctx context.Context, filter models.AssessmentFilter) ([]models.AssessmentScore, *models.Pagination, error) {
	scores, total, err := s.scores.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessment scores")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return scores, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// CreateAssessment records a new score on an active enrollment.
func (s *GradeService) CreateAssessment(ctx context.Context, req CreateAssessmentRequest, gradedBy string) (*models.AssessmentScore, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment score")
	}
	if err := s.requireMutable(ctx, req.EnrollmentID); err != nil {
		return nil, err
	}

	score := &models.AssessmentScore{
		EnrollmentID:  req.EnrollmentID,
		Name:          req.Name,
		MarksObtained: req.MarksObtained,
		TotalMarks:    req.TotalMarks,
		Weight:        req.Weight,
		Comments:      req.Comments,
	}
	if gradedBy != "" {
		score.GradedBy = &gradedBy
	}
	if err := s.scores.Create(ctx, score); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assessment score")
	}
	return score, nil
}

// UpdateAssessment revises an existing score while the enrollment is
// still active.
func (s *GradeService) UpdateAssessment(ctx context.Context, id string, req UpdateAssessmentRequest, gradedBy string) (*models.AssessmentScore, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment score")
	}
	score, err := s.scores.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment score not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment score")
	}
	if err := s.requireMutable(ctx, score.EnrollmentID); err != nil {
		return nil, err
	}

	score.Name = req.Name
	score.MarksObtained = req.MarksObtained
	score.TotalMarks = req.TotalMarks
	score.Weight = req.Weight
	score.Comments = req.Comments
	if gradedBy != "" {
		score.GradedBy = &gradedBy
	}
	if err := s.scores.Update(ctx, score); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assessment score")
	}
	return score, nil
}

// DeleteAssessment removes a score from an active enrollment.
func (s *GradeService) DeleteAssessment(ctx context.Context, id string) error {
	score, err := s.scores.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "assessment score not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment score")
	}
	if err := s.requireMutable(ctx, score.EnrollmentID); err != nil {
		return err
	}
	if err := s.scores.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assessment score")
	}
	return nil
}

// Preview computes the provisional percentage and letter without
// touching the enrollment.
func (s *GradeService) Preview(ctx context.Context, enrollmentID string) (*models.FinalizeResult, error) {
	detail, err := s.enrollments.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	scores, err := s.scores.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment scores")
	}

	percentage, totalWeight := ComputePercentage(scores)
	letter, points := s.scale.LetterAndPoints(percentage)
	result := &models.FinalizeResult{
		Enrollment:  detail,
		Percentage:  percentage,
		Letter:      letter,
		GradePoints: points,
		TotalWeight: totalWeight,
	}
	if totalWeight > 100 {
		result.Warning = overweightWarning(totalWeight)
	}
	return result, nil
}

// Finalize converts the accumulated scores into a final letter grade
// and moves the enrollment to its terminal status.
func (s *GradeService) Finalize(ctx context.Context, enrollmentID string) (*models.FinalizeResult, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	switch enrollment.Status {
	case models.EnrollmentStatusEnrolled:
	case models.EnrollmentStatusCompleted, models.EnrollmentStatusFailed:
		return nil, appErrors.ErrAlreadyFinalized
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "dropped enrollments cannot be graded")
	}

	scores, err := s.scores.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment scores")
	}

	percentage, totalWeight := ComputePercentage(scores)
	letter, points := s.scale.LetterAndPoints(percentage)
	status := models.EnrollmentStatusFailed
	if Passing(points) {
		status = models.EnrollmentStatusCompleted
	}

	var warning string
	if totalWeight > 100 {
		warning = overweightWarning(totalWeight)
		s.logger.Warn("assessment weights exceed 100",
			zap.String("enrollment_id", enrollmentID),
			zap.Float64("total_weight", totalWeight))
	}

	if err := s.enrollments.SetFinalGrade(ctx, enrollmentID, letter, points, status, models.EnrollmentStatusEnrolled); err != nil {
		if errors.Is(err, repository.ErrStateChanged) {
			return nil, appErrors.ErrAlreadyFinalized
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize grade")
	}

	return s.afterGradeWrite(ctx, enrollmentID, enrollment.StudentID, percentage, letter, points, totalWeight, warning)
}

// Amend overrides an already finalized grade with a new letter. The
// terminal status and the GPA follow the new letter.
func (s *GradeService) Amend(ctx context.Context, enrollmentID string, req AmendGradeRequest) (*models.FinalizeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid amendment")
	}
	points, ok := s.scale.PointsForLetter(req.Letter)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown letter grade %q", req.Letter))
	}

	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	switch enrollment.Status {
	case models.EnrollmentStatusCompleted, models.EnrollmentStatusFailed:
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only finalized grades can be amended")
	}

	status := models.EnrollmentStatusFailed
	if Passing(points) {
		status = models.EnrollmentStatusCompleted
	}
	if err := s.enrollments.SetFinalGrade(ctx, enrollmentID, req.Letter, points, status,
		models.EnrollmentStatusCompleted, models.EnrollmentStatusFailed); err != nil {
		if errors.Is(err, repository.ErrStateChanged) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "enrollment is no longer finalized")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to amend grade")
	}

	s.logger.Info("grade amended",
		zap.String("enrollment_id", enrollmentID),
		zap.String("letter", req.Letter),
		zap.String("reason", req.Reason))

	return s.afterGradeWrite(ctx, enrollmentID, enrollment.StudentID, 0, req.Letter, points, 0, "")
}

func (s *GradeService) afterGradeWrite(ctx context.Context, enrollmentID, studentID string, percentage float64, letter string, points, totalWeight float64, warning string) (*models.FinalizeResult, error) {
	gpa, err := s.gpa.Recompute(ctx, studentID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateStudent(ctx, studentID); err != nil {
			s.logger.Warn("transcript cache invalidation failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.RecordFinalization(letter)
	}

	detail, err := s.enrollments.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if s.notifier != nil {
		if student, err := s.students.FindByID(ctx, studentID); err == nil {
			s.notifier.Dispatch(models.NotificationEvent{
				Type:    models.NotificationGradeFinalized,
				UserID:  student.UserID,
				Title:   "Grade posted",
				Message: fmt.Sprintf("Your grade for %s %s is %s.", detail.CourseCode, detail.CourseName, letter),
			})
		}
	}

	return &models.FinalizeResult{
		Enrollment:  detail,
		Percentage:  percentage,
		Letter:      letter,
		GradePoints: points,
		GPA:         gpa,
		TotalWeight: totalWeight,
		Warning:     warning,
	}, nil
}

// requireMutable rejects score changes once the enrollment left the
// ENROLLED state.
func (s *GradeService) requireMutable(ctx context.Context, enrollmentID string) error {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	switch enrollment.Status {
	case models.EnrollmentStatusEnrolled:
		return nil
	case models.EnrollmentStatusCompleted, models.EnrollmentStatusFailed:
		return appErrors.Clone(appErrors.ErrAlreadyFinalized, "scores are frozen after finalization")
	default:
		return appErrors.Clone(appErrors.ErrInvalidState, "enrollment is not active")
	}
}

// ComputePercentage sums each score's weighted contribution. Weights
// are taken as given, with no normalization: missing weight simply
// caps the attainable percentage, and excess weight can push it past
// 100.
func ComputePercentage(scores []models.AssessmentScore) (percentage, totalWeight float64) {
	for _, score := range scores {
		percentage += score.WeightedScore()
		totalWeight += score.Weight
	}
	return percentage, totalWeight
}

func overweightWarning(totalWeight float64) string {
	return fmt.Sprintf("assessment weights sum to %.1f; percentages above 100 clamp to the top grade band", totalWeight)
}
