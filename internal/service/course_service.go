package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openacad/sis-api/internal/models"
	appErrors "github.com/openacad/sis-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	PrerequisiteIDs(ctx context.Context, courseID string) ([]string, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	ReplacePrerequisites(ctx context.Context, courseID string, prerequisiteIDs []string) error
	HasOfferings(ctx context.Context, courseID string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// CreateCourseRequest holds payload for creating catalog courses.
type CreateCourseRequest struct {
	Code            string   `json:"code" validate:"required,max=20"`
	Name            string   `json:"name" validate:"required,max=200"`
	Description     string   `json:"description" validate:"max=2000"`
	Credits         int      `json:"credits" validate:"required,min=1,max=12"`
	Department      string   `json:"department" validate:"required,max=100"`
	PrerequisiteIDs []string `json:"prerequisite_ids" validate:"dive,uuid4"`
}

// UpdateCourseRequest holds payload for updating catalog courses.
type UpdateCourseRequest struct {
	Name            string   `json:"name" validate:"required,max=200"`
	Description     string   `json:"description" validate:"max=2000"`
	Credits         int      `json:"credits" validate:"required,min=1,max=12"`
	Department      string   `json:"department" validate:"required,max=100"`
	Active          bool     `json:"active"`
	PrerequisiteIDs []string `json:"prerequisite_ids" validate:"dive,uuid4"`
}

// CourseService manages the course catalog and its prerequisite graph.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns catalog courses and pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a course with its prerequisites.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a new catalog course.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course")
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if existing, err := s.repo.FindByCode(ctx, code); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already exists")
	} else if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}

	course := &models.Course{
		Code:        code,
		Name:        req.Name,
		Description: req.Description,
		Credits:     req.Credits,
		Department:  req.Department,
		Active:      true,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	if len(req.PrerequisiteIDs) > 0 {
		if err := s.setPrerequisites(ctx, course.ID, req.PrerequisiteIDs); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, course.ID)
}

// Update modifies a course and replaces its prerequisite list.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course")
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	course.Name = req.Name
	course.Description = req.Description
	course.Credits = req.Credits
	course.Department = req.Department
	course.Active = req.Active
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	if err := s.setPrerequisites(ctx, id, req.PrerequisiteIDs); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a course that has never been offered.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	offered, err := s.repo.HasOfferings(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check offerings")
	}
	if offered {
		return appErrors.Clone(appErrors.ErrConflict, "course has offerings and cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

// setPrerequisites validates and replaces the prerequisite edges for a
// course. Self-references and cycles are rejected: a cycle would make
// the course permanently unenrollable.
func (s *CourseService) setPrerequisites(ctx context.Context, courseID string, prerequisiteIDs []string) error {
	seen := make(map[string]bool, len(prerequisiteIDs))
	unique := prerequisiteIDs[:0]
	for _, prereqID := range prerequisiteIDs {
		if prereqID == courseID {
			return appErrors.Clone(appErrors.ErrValidation, "a course cannot be its own prerequisite")
		}
		if seen[prereqID] {
			continue
		}
		seen[prereqID] = true
		if _, err := s.repo.FindByID(ctx, prereqID); err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrValidation, "prerequisite course not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite")
		}
		unique = append(unique, prereqID)
	}

	cyclic, err := s.wouldCycle(ctx, courseID, unique)
	if err != nil {
		return err
	}
	if cyclic {
		return appErrors.Clone(appErrors.ErrValidation, "prerequisites would form a cycle")
	}

	if err := s.repo.ReplacePrerequisites(ctx, courseID, unique); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set prerequisites")
	}
	return nil
}

// wouldCycle walks the existing prerequisite graph from each proposed
// prerequisite looking for a path back to the course.
func (s *CourseService) wouldCycle(ctx context.Context, courseID string, prerequisiteIDs []string) (bool, error) {
	visited := make(map[string]bool)
	stack := append([]string(nil), prerequisiteIDs...)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == courseID {
			return true, nil
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		next, err := s.repo.PrerequisiteIDs(ctx, current)
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to walk prerequisites")
		}
		stack = append(stack, next...)
	}
	return false, nil
}
