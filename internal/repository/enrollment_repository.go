package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openacad/sis-api/internal/models"
)

// Sentinels the enrollment service maps onto its error taxonomy.
var (
	// ErrSeatUnavailable is returned when the locked re-check finds the
	// offering full or no longer open.
	ErrSeatUnavailable = errors.New("seat unavailable")
	// ErrStateChanged is returned when a guarded status update matched
	// no row, i.e. the enrollment moved state concurrently.
	ErrStateChanged = errors.New("enrollment state changed")
)

// EnrollmentRepository handles persistence of enrollments and the
// transactional seat accounting on class offerings.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `e.id, e.student_id, e.offering_id, e.status, e.grade, e.grade_points, e.enrolled_at,
        e.dropped_at, e.created_at, e.updated_at`

const enrollmentDetailColumns = enrollmentColumns + `,
        s.student_no, u.full_name AS student_name, o.code AS offering_code,
        c.code AS course_code, c.name AS course_name, c.credits, o.semester, o.academic_year`

const enrollmentDetailJoins = `FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN users u ON u.id = s.user_id
        JOIN class_offerings o ON o.id = e.offering_id
        JOIN courses c ON c.id = o.course_id`

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.OfferingID != "" {
		conditions = append(conditions, fmt.Sprintf("e.offering_id = $%d", len(args)+1))
		args = append(args, filter.OfferingID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("o.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.AcademicYear != 0 {
		conditions = append(conditions, fmt.Sprintf("o.academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "u.full_name",
		"course_code":  "c.code",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d",
		enrollmentDetailColumns, enrollmentDetailJoins+clause, orderBy, order, size, offset)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + enrollmentDetailJoins + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments e WHERE e.id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.id = $1", enrollmentDetailColumns, enrollmentDetailJoins)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsActiveOrCompleted reports whether a live (ENROLLED) or finished
// passing-candidate (COMPLETED) enrollment exists for the pair. FAILED
// and DROPPED rows do not block re-enrollment.
func (r *EnrollmentRepository) ExistsActiveOrCompleted(ctx context.Context, studentID, offeringID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments
        WHERE student_id = $1 AND offering_id = $2 AND status IN ($3, $4) LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query, studentID, offeringID,
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// FinishedCourses returns the student's COMPLETED and FAILED
// enrollments with course context, input to prerequisite checks.
func (r *EnrollmentRepository) FinishedCourses(ctx context.Context, studentID string) ([]models.CompletedCourse, error) {
	const query = `SELECT e.id AS enrollment_id, c.id AS course_id, c.credits, e.status, e.grade_points
        FROM enrollments e
        JOIN class_offerings o ON o.id = e.offering_id
        JOIN courses c ON c.id = o.course_id
        WHERE e.student_id = $1 AND e.status IN ($2, $3)`
	var finished []models.CompletedCourse
	if err := r.db.SelectContext(ctx, &finished, query, studentID,
		models.EnrollmentStatusCompleted, models.EnrollmentStatusFailed); err != nil {
		return nil, fmt.Errorf("list finished courses: %w", err)
	}
	return finished, nil
}

// ListEnrolledOfferings returns the offerings the student is currently
// ENROLLED in for a term, input to the schedule conflict check.
func (r *EnrollmentRepository) ListEnrolledOfferings(ctx context.Context, studentID string, semester models.Semester, year int) ([]models.ClassOffering, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e
        JOIN class_offerings o ON o.id = e.offering_id
        WHERE e.student_id = $1 AND e.status = $2 AND o.semester = $3 AND o.academic_year = $4`, offeringColumns)
	var offerings []models.ClassOffering
	if err := r.db.SelectContext(ctx, &offerings, query, studentID,
		models.EnrollmentStatusEnrolled, semester, year); err != nil {
		return nil, fmt.Errorf("list enrolled offerings: %w", err)
	}
	return offerings, nil
}

// AdmitTx creates the enrollment and claims a seat in one transaction.
// The offering row is locked first, and status and capacity are
// re-checked under the lock: two admissions racing for the last seat
// serialize here, and the loser gets ErrSeatUnavailable. The count hits
// capacity at most exactly, never beyond it.
func (r *EnrollmentRepository) AdmitTx(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	enrollment.Status = models.EnrollmentStatusEnrolled
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin admit tx: %w", err)
	}

	var offering struct {
		Status        models.OfferingStatus `db:"status"`
		Capacity      int                   `db:"capacity"`
		EnrolledCount int                   `db:"enrolled_count"`
	}
	if err := tx.GetContext(ctx, &offering,
		`SELECT status, capacity, enrolled_count FROM class_offerings WHERE id = $1 FOR UPDATE`,
		enrollment.OfferingID); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if offering.Status != models.OfferingStatusOpen || offering.EnrolledCount >= offering.Capacity {
		tx.Rollback() //nolint:errcheck
		return ErrSeatUnavailable
	}

	const insertQuery = `INSERT INTO enrollments (id, student_id, offering_id, status, enrolled_at, created_at, updated_at)
        VALUES (:id, :student_id, :offering_id, :status, :enrolled_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, enrollment); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("insert enrollment: %w", err)
	}

	const claimQuery = `UPDATE class_offerings
        SET enrolled_count = enrolled_count + 1,
            status = CASE WHEN enrolled_count + 1 >= capacity THEN $2 ELSE status END,
            updated_at = $3
        WHERE id = $1`
	if _, err := tx.ExecContext(ctx, claimQuery, enrollment.OfferingID, models.OfferingStatusClosed, now); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("claim seat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit admit: %w", err)
	}
	return nil
}

// DropTx marks the enrollment DROPPED and releases its seat in one
// transaction. The guarded update only matches a live enrollment, so a
// double drop cannot decrement the counter twice. A CLOSED offering
// reopens once a seat frees.
func (r *EnrollmentRepository) DropTx(ctx context.Context, enrollmentID, offeringID string, droppedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin drop tx: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE enrollments SET status = $2, dropped_at = $3, updated_at = $3 WHERE id = $1 AND status = $4`,
		enrollmentID, models.EnrollmentStatusDropped, droppedAt, models.EnrollmentStatusEnrolled)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("mark dropped: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		tx.Rollback() //nolint:errcheck
		return ErrStateChanged
	}

	const releaseQuery = `UPDATE class_offerings
        SET enrolled_count = GREATEST(enrolled_count - 1, 0),
            status = CASE WHEN status = $2 AND enrolled_count - 1 < capacity THEN $3 ELSE status END,
            updated_at = $4
        WHERE id = $1`
	if _, err := tx.ExecContext(ctx, releaseQuery, offeringID,
		models.OfferingStatusClosed, models.OfferingStatusOpen, droppedAt); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("release seat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit drop: %w", err)
	}
	return nil
}

// SetFinalGrade writes the letter grade, grade points, and terminal
// status, guarded by the set of statuses the transition may start from.
func (r *EnrollmentRepository) SetFinalGrade(ctx context.Context, id, letter string, points float64, status models.EnrollmentStatus, fromStatuses ...models.EnrollmentStatus) error {
	if len(fromStatuses) == 0 {
		fromStatuses = []models.EnrollmentStatus{models.EnrollmentStatusEnrolled}
	}
	placeholders := make([]string, len(fromStatuses))
	args := []interface{}{id, letter, points, status, time.Now().UTC()}
	for i, from := range fromStatuses {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, from)
	}
	query := fmt.Sprintf(`UPDATE enrollments SET grade = $2, grade_points = $3, status = $4, updated_at = $5
        WHERE id = $1 AND status IN (%s)`, strings.Join(placeholders, ","))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set final grade: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrStateChanged
	}
	return nil
}
