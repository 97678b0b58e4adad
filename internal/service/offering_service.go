package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openacad/sis-api/internal/models"
	appErrors "github.com/openacad/sis-api/pkg/errors"
)

type offeringRepository interface {
	List(ctx context.Context, filter models.OfferingFilter) ([]models.OfferingDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassOffering, error)
	FindDetailByID(ctx context.Context, id string) (*models.OfferingDetail, error)
	ListByRoomAndTerm(ctx context.Context, roomID string, semester models.Semester, year int, excludeID string) ([]models.ClassOffering, error)
	Create(ctx context.Context, offering *models.ClassOffering) error
	Update(ctx context.Context, offering *models.ClassOffering) error
	UpdateStatus(ctx context.Context, id string, status models.OfferingStatus) error
}

type offeringCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type offeringRoomReader interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
}

type offeringUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateOfferingRequest schedules a course for one semester.
type CreateOfferingRequest struct {
	CourseID     string                `json:"course_id" validate:"required,uuid4"`
	InstructorID string                `json:"instructor_id" validate:"required,uuid4"`
	RoomID       *string               `json:"room_id" validate:"omitempty,uuid4"`
	Section      string                `json:"section" validate:"required,max=10"`
	Semester     models.Semester       `json:"semester" validate:"required,oneof=FALL SPRING SUMMER"`
	AcademicYear int                   `json:"academic_year" validate:"required,min=2000,max=2100"`
	Capacity     int                   `json:"capacity" validate:"required,min=1,max=1000"`
	Schedule     models.ScheduleBlocks `json:"schedule" validate:"required,min=1"`
}

// UpdateOfferingRequest modifies a scheduled offering.
type UpdateOfferingRequest struct {
	InstructorID string                `json:"instructor_id" validate:"required,uuid4"`
	RoomID       *string               `json:"room_id" validate:"omitempty,uuid4"`
	Capacity     int                   `json:"capacity" validate:"required,min=1,max=1000"`
	Schedule     models.ScheduleBlocks `json:"schedule" validate:"required,min=1"`
}

// OfferingService manages class offerings: semester scheduling, room
// allocation, and lifecycle status.
type OfferingService struct {
	repo      offeringRepository
	courses   offeringCourseReader
	rooms     offeringRoomReader
	users     offeringUserReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewOfferingService constructs the offering service.
func NewOfferingService(
	repo offeringRepository,
	courses offeringCourseReader,
	rooms offeringRoomReader,
	users offeringUserReader,
	validate *validator.Validate,
	logger *zap.Logger,
) *OfferingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OfferingService{repo: repo, courses: courses, rooms: rooms, users: users, validator: validate, logger: logger}
}

// List returns offerings and pagination metadata.
func (s *OfferingService) List(ctx context.Context, filter models.OfferingFilter) ([]models.OfferingDetail, *models.Pagination, error) {
	offerings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list offerings")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return offerings, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns an offering with course and room context.
func (s *OfferingService) Get(ctx context.Context, id string) (*models.OfferingDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class offering not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class offering")
	}
	return detail, nil
}

// Create schedules a new class offering.
func (s *OfferingService) Create(ctx context.Context, req CreateOfferingRequest) (*models.OfferingDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class offering")
	}
	schedule, err := s.normalizeSchedule(req.Schedule)
	if err != nil {
		return nil, err
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course is inactive")
	}
	if err := s.checkInstructor(ctx, req.InstructorID); err != nil {
		return nil, err
	}
	if err := s.checkRoom(ctx, req.RoomID, req.Capacity, req.Semester, req.AcademicYear, schedule, ""); err != nil {
		return nil, err
	}

	offering := &models.ClassOffering{
		CourseID:     req.CourseID,
		InstructorID: req.InstructorID,
		RoomID:       req.RoomID,
		Code:         fmt.Sprintf("%s-%s-%s%d", course.Code, req.Section, req.Semester[:2], req.AcademicYear%100),
		Section:      strings.ToUpper(req.Section),
		Semester:     req.Semester,
		AcademicYear: req.AcademicYear,
		Capacity:     req.Capacity,
		Schedule:     schedule,
		Status:       models.OfferingStatusOpen,
	}
	if err := s.repo.Create(ctx, offering); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class offering")
	}
	return s.Get(ctx, offering.ID)
}

// Update modifies the instructor, room, capacity, or schedule of an
// offering. Capacity can never drop below the current enrolled count.
func (s *OfferingService) Update(ctx context.Context, id string, req UpdateOfferingRequest) (*models.OfferingDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class offering")
	}
	schedule, err := s.normalizeSchedule(req.Schedule)
	if err != nil {
		return nil, err
	}

	offering, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class offering not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class offering")
	}
	if offering.Status == models.OfferingStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "cancelled offerings cannot be modified")
	}
	if req.Capacity < offering.EnrolledCount {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("capacity %d is below the current enrolled count %d", req.Capacity, offering.EnrolledCount))
	}
	if err := s.checkInstructor(ctx, req.InstructorID); err != nil {
		return nil, err
	}
	if err := s.checkRoom(ctx, req.RoomID, req.Capacity, offering.Semester, offering.AcademicYear, schedule, id); err != nil {
		return nil, err
	}

	offering.InstructorID = req.InstructorID
	offering.RoomID = req.RoomID
	offering.Capacity = req.Capacity
	offering.Schedule = schedule
	// Raising capacity reopens a full offering; the admission path
	// closes it again when the extra seats fill.
	if offering.Status == models.OfferingStatusClosed && offering.EnrolledCount < req.Capacity {
		offering.Status = models.OfferingStatusOpen
	}
	if err := s.repo.Update(ctx, offering); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class offering")
	}
	return s.Get(ctx, id)
}

// Cancel marks an offering CANCELLED; it stops accepting enrollments
// permanently.
func (s *OfferingService) Cancel(ctx context.Context, id string) (*models.OfferingDetail, error) {
	offering, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class offering not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class offering")
	}
	if offering.Status == models.OfferingStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "offering is already cancelled")
	}
	if err := s.repo.UpdateStatus(ctx, id, models.OfferingStatusCancelled); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel class offering")
	}
	return s.Get(ctx, id)
}

func (s *OfferingService) normalizeSchedule(blocks models.ScheduleBlocks) (models.ScheduleBlocks, error) {
	normalized := make(models.ScheduleBlocks, len(blocks))
	for i, block := range blocks {
		normalized[i] = models.ScheduleBlock{
			Day:       strings.ToUpper(strings.TrimSpace(block.Day)),
			StartTime: strings.TrimSpace(block.StartTime),
			EndTime:   strings.TrimSpace(block.EndTime),
		}
	}
	if err := ValidateScheduleBlocks(normalized); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	for i := range normalized {
		for j := i + 1; j < len(normalized); j++ {
			if BlocksOverlap(normalized[i], normalized[j]) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "schedule blocks overlap each other")
			}
		}
	}
	return normalized, nil
}

func (s *OfferingService) checkInstructor(ctx context.Context, instructorID string) error {
	instructor, err := s.users.FindByID(ctx, instructorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	if instructor.Role != models.RoleInstructor || !instructor.Active {
		return appErrors.Clone(appErrors.ErrValidation, "user is not an active instructor")
	}
	return nil
}

// checkRoom validates room existence, physical capacity, and
// double-booking against other offerings in the same term.
func (s *OfferingService) checkRoom(ctx context.Context, roomID *string, capacity int, semester models.Semester, year int, schedule models.ScheduleBlocks, excludeID string) error {
	if roomID == nil {
		return nil
	}
	room, err := s.rooms.FindByID(ctx, *roomID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	if !room.Available {
		return appErrors.Clone(appErrors.ErrValidation, "room is not available")
	}
	if capacity > room.Capacity {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("offering capacity %d exceeds room capacity %d", capacity, room.Capacity))
	}

	occupants, err := s.repo.ListByRoomAndTerm(ctx, *roomID, semester, year, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room schedule")
	}
	for _, occupant := range occupants {
		if occupant.Status == models.OfferingStatusCancelled {
			continue
		}
		if SchedulesConflict(schedule, occupant.Schedule) {
			return appErrors.WithDetails(appErrors.ErrScheduleConflict, "room is already booked at that time", map[string]interface{}{
				"conflicting_offering": models.OfferingRef{ID: occupant.ID, Code: occupant.Code},
			})
		}
	}
	return nil
}
