package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openacad/sis-api/internal/models"
)

// AssessmentRepository handles persistence of assessment scores.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs the repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

const assessmentColumns = `id, enrollment_id, name, marks_obtained, total_marks, weight, graded_by, comments, created_at, updated_at`

// List returns assessment scores filtered by the provided criteria.
func (r *AssessmentRepository) List(ctx context.Context, filter models.AssessmentFilter) ([]models.AssessmentScore, int, error) {
	base := "FROM assessment_scores"
	var conditions []string
	var args []interface{}

	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.GradedBy != "" {
		conditions = append(conditions, fmt.Sprintf("graded_by = $%d", len(args)+1))
		args = append(args, filter.GradedBy)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at ASC LIMIT %d OFFSET %d", assessmentColumns, base+clause, size, offset)
	var scores []models.AssessmentScore
	if err := r.db.SelectContext(ctx, &scores, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assessment scores: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assessment scores: %w", err)
	}
	return scores, total, nil
}

// ListByEnrollment returns every score recorded for an enrollment,
// input to the weighted percentage computation.
func (r *AssessmentRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.AssessmentScore, error) {
	query := fmt.Sprintf("SELECT %s FROM assessment_scores WHERE enrollment_id = $1 ORDER BY created_at ASC", assessmentColumns)
	var scores []models.AssessmentScore
	if err := r.db.SelectContext(ctx, &scores, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment scores: %w", err)
	}
	return scores, nil
}

// FindByID returns an assessment score by its ID.
func (r *AssessmentRepository) FindByID(ctx context.Context, id string) (*models.AssessmentScore, error) {
	query := fmt.Sprintf("SELECT %s FROM assessment_scores WHERE id = $1", assessmentColumns)
	var score models.AssessmentScore
	if err := r.db.GetContext(ctx, &score, query, id); err != nil {
		return nil, err
	}
	return &score, nil
}

// Create persists a new assessment score.
func (r *AssessmentRepository) Create(ctx context.Context, score *models.AssessmentScore) error {
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	score.CreatedAt = now
	score.UpdatedAt = now
	const query = `INSERT INTO assessment_scores (id, enrollment_id, name, marks_obtained, total_marks, weight, graded_by, comments, created_at, updated_at)
        VALUES (:id, :enrollment_id, :name, :marks_obtained, :total_marks, :weight, :graded_by, :comments, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, score); err != nil {
		return fmt.Errorf("create assessment score: %w", err)
	}
	return nil
}

// Update persists score changes.
func (r *AssessmentRepository) Update(ctx context.Context, score *models.AssessmentScore) error {
	score.UpdatedAt = time.Now().UTC()
	const query = `UPDATE assessment_scores SET name = :name, marks_obtained = :marks_obtained, total_marks = :total_marks,
        weight = :weight, comments = :comments, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, score); err != nil {
		return fmt.Errorf("update assessment score: %w", err)
	}
	return nil
}

// Delete removes an assessment score.
func (r *AssessmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM assessment_scores WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete assessment score: %w", err)
	}
	return nil
}
