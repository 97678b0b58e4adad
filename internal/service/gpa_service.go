package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/openacad/sis-api/internal/models"
	appErrors "github.com/openacad/sis-api/pkg/errors"
)

type gpaStudentStore interface {
	RecalculateGPA(ctx context.Context, studentID string, compute func([]models.CompletedCourse) float64) (float64, error)
}

type gpaTimer interface {
	ObserveGPARecompute(duration time.Duration)
}

// GPAService recomputes cumulative GPA from finished enrollments.
//
// The GPA is derived data: it is always recomputed from the full set of
// COMPLETED and FAILED enrollments, never adjusted incrementally, so a
// recompute is idempotent and an amended grade needs no compensation
// logic. FAILED enrollments count with their zero-point grade; DROPPED
// enrollments carry no grade and are excluded.
type GPAService struct {
	students gpaStudentStore
	metrics  gpaTimer
	logger   *zap.Logger
}

// NewGPAService constructs the GPA service.
func NewGPAService(students gpaStudentStore, metrics gpaTimer, logger *zap.Logger) *GPAService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GPAService{students: students, metrics: metrics, logger: logger}
}

// Recompute recalculates and persists the student's cumulative GPA.
// The student row is locked for the duration, serializing concurrent
// recomputes for the same student.
func (s *GPAService) Recompute(ctx context.Context, studentID string) (float64, error) {
	start := time.Now()
	gpa, err := s.students.RecalculateGPA(ctx, studentID, ComputeGPA)
	if err != nil {
		s.logger.Error("gpa recompute failed", zap.String("student_id", studentID), zap.Error(err))
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recompute gpa")
	}
	if s.metrics != nil {
		s.metrics.ObserveGPARecompute(time.Since(start))
	}
	s.logger.Debug("gpa recomputed", zap.String("student_id", studentID), zap.Float64("gpa", gpa))
	return gpa, nil
}

// ComputeGPA returns the credit-weighted average of grade points over
// finished enrollments, rounded half-to-even to two decimals. No
// finished enrollments yields 0.00.
func ComputeGPA(finished []models.CompletedCourse) float64 {
	var qualityPoints float64
	var credits int
	for _, course := range finished {
		if course.GradePoints == nil {
			continue
		}
		switch course.Status {
		case models.EnrollmentStatusCompleted, models.EnrollmentStatusFailed:
			qualityPoints += *course.GradePoints * float64(course.Credits)
			credits += course.Credits
		}
	}
	if credits == 0 {
		return 0
	}
	return roundHalfEven(qualityPoints / float64(credits))
}

// roundHalfEven rounds to two decimals with banker's rounding.
func roundHalfEven(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
