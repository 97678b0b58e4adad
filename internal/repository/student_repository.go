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

// StudentRepository handles persistence of student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentDetailColumns = `s.id, s.user_id, s.student_no, s.academic_status, s.enrollment_date, s.gpa, s.created_at, s.updated_at,
        u.full_name AS full_name, u.email AS email`

// List returns students filtered by the provided criteria.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := `FROM students s JOIN users u ON u.id = s.user_id`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.academic_status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(u.full_name ILIKE $%d OR s.student_no ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"student_no": "s.student_no",
		"name":       "u.full_name",
		"gpa":        "s.gpa",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "s.student_no"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", studentDetailColumns, base+clause, orderBy, order, size, offset)
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID returns a student with account context.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM students s JOIN users u ON u.id = s.user_id WHERE s.id = $1", studentDetailColumns)
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByUserID returns the student profile attached to a user account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM students s JOIN users u ON u.id = s.user_id WHERE s.user_id = $1", studentDetailColumns)
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, query, userID); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create persists a new student profile.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.AcademicStatus == "" {
		student.AcademicStatus = models.AcademicStatusActive
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, user_id, student_no, academic_status, enrollment_date, gpa, created_at, updated_at)
        VALUES (:id, :user_id, :student_no, :academic_status, :enrollment_date, :gpa, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update persists profile changes. GPA is excluded on purpose: only
// RecalculateGPA writes it.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET student_no = :student_no, academic_status = :academic_status,
        enrollment_date = :enrollment_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// RecalculateGPA loads the student's finished enrollments and persists
// the GPA produced by compute, all inside one transaction holding a row
// lock on the student. The lock serializes concurrent recomputations,
// so the last finalization to commit always recomputes over the full
// history.
func (r *StudentRepository) RecalculateGPA(ctx context.Context, studentID string, compute func([]models.CompletedCourse) float64) (float64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin gpa tx: %w", err)
	}

	var current float64
	if err := tx.GetContext(ctx, &current, `SELECT gpa FROM students WHERE id = $1 FOR UPDATE`, studentID); err != nil {
		tx.Rollback() //nolint:errcheck
		return 0, err
	}

	const historyQuery = `SELECT e.id AS enrollment_id, c.id AS course_id, c.credits, e.status, e.grade_points
        FROM enrollments e
        JOIN class_offerings o ON o.id = e.offering_id
        JOIN courses c ON c.id = o.course_id
        WHERE e.student_id = $1 AND e.status IN ($2, $3)`
	var finished []models.CompletedCourse
	if err := tx.SelectContext(ctx, &finished, historyQuery, studentID, models.EnrollmentStatusCompleted, models.EnrollmentStatusFailed); err != nil {
		tx.Rollback() //nolint:errcheck
		return 0, fmt.Errorf("load finished enrollments: %w", err)
	}

	gpa := compute(finished)
	if _, err := tx.ExecContext(ctx, `UPDATE students SET gpa = $2, updated_at = $3 WHERE id = $1`, studentID, gpa, time.Now().UTC()); err != nil {
		tx.Rollback() //nolint:errcheck
		return 0, fmt.Errorf("persist gpa: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit gpa: %w", err)
	}
	return gpa, nil
}
