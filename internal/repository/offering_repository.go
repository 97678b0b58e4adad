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

// OfferingRepository handles persistence of class offerings.
type OfferingRepository struct {
	db *sqlx.DB
}

// NewOfferingRepository constructs the repository.
func NewOfferingRepository(db *sqlx.DB) *OfferingRepository {
	return &OfferingRepository{db: db}
}

const offeringColumns = `o.id, o.course_id, o.instructor_id, o.room_id, o.code, o.section, o.semester, o.academic_year,
        o.capacity, o.enrolled_count, o.schedule, o.status, o.created_at, o.updated_at`

const offeringDetailColumns = offeringColumns + `,
        c.code AS course_code, c.name AS course_name, c.credits,
        u.full_name AS instructor_name, r.number AS room_number`

const offeringDetailJoins = `FROM class_offerings o
        JOIN courses c ON c.id = o.course_id
        LEFT JOIN users u ON u.id = o.instructor_id
        LEFT JOIN rooms r ON r.id = o.room_id`

// List returns offerings with course and room context.
func (r *OfferingRepository) List(ctx context.Context, filter models.OfferingFilter) ([]models.OfferingDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("o.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("o.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("o.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.AcademicYear != 0 {
		conditions = append(conditions, fmt.Sprintf("o.academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("o.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"code":        "o.code",
		"course_code": "c.code",
		"year":        "o.academic_year",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "o.code"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d",
		offeringDetailColumns, offeringDetailJoins+clause, orderBy, order, size, offset)
	var offerings []models.OfferingDetail
	if err := r.db.SelectContext(ctx, &offerings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list offerings: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + offeringDetailJoins + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count offerings: %w", err)
	}
	return offerings, total, nil
}

// FindByID returns a bare offering row.
func (r *OfferingRepository) FindByID(ctx context.Context, id string) (*models.ClassOffering, error) {
	query := fmt.Sprintf("SELECT %s FROM class_offerings o WHERE o.id = $1", offeringColumns)
	var offering models.ClassOffering
	if err := r.db.GetContext(ctx, &offering, query, id); err != nil {
		return nil, err
	}
	return &offering, nil
}

// FindDetailByID returns an offering with contextual info.
func (r *OfferingRepository) FindDetailByID(ctx context.Context, id string) (*models.OfferingDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE o.id = $1", offeringDetailColumns, offeringDetailJoins)
	var detail models.OfferingDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByRoomAndTerm returns offerings occupying a room in a term, input
// to the room double-booking check.
func (r *OfferingRepository) ListByRoomAndTerm(ctx context.Context, roomID string, semester models.Semester, year int, excludeID string) ([]models.ClassOffering, error) {
	query := fmt.Sprintf(`SELECT %s FROM class_offerings o
        WHERE o.room_id = $1 AND o.semester = $2 AND o.academic_year = $3 AND o.status <> $4`, offeringColumns)
	args := []interface{}{roomID, semester, year, models.OfferingStatusCancelled}
	if excludeID != "" {
		query += fmt.Sprintf(" AND o.id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	var offerings []models.ClassOffering
	if err := r.db.SelectContext(ctx, &offerings, query, args...); err != nil {
		return nil, fmt.Errorf("list room offerings: %w", err)
	}
	return offerings, nil
}

// Create persists a new offering.
func (r *OfferingRepository) Create(ctx context.Context, offering *models.ClassOffering) error {
	if offering.ID == "" {
		offering.ID = uuid.NewString()
	}
	if offering.Status == "" {
		offering.Status = models.OfferingStatusOpen
	}
	now := time.Now().UTC()
	offering.CreatedAt = now
	offering.UpdatedAt = now
	const query = `INSERT INTO class_offerings (id, course_id, instructor_id, room_id, code, section, semester,
        academic_year, capacity, enrolled_count, schedule, status, created_at, updated_at)
        VALUES (:id, :course_id, :instructor_id, :room_id, :code, :section, :semester,
        :academic_year, :capacity, :enrolled_count, :schedule, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, offering); err != nil {
		return fmt.Errorf("create offering: %w", err)
	}
	return nil
}

// Update persists offering changes. Seat counters are owned by the
// enrollment transactions and are not touched here.
func (r *OfferingRepository) Update(ctx context.Context, offering *models.ClassOffering) error {
	offering.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_offerings SET instructor_id = :instructor_id, room_id = :room_id, section = :section,
        semester = :semester, academic_year = :academic_year, capacity = :capacity, schedule = :schedule,
        status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, offering); err != nil {
		return fmt.Errorf("update offering: %w", err)
	}
	return nil
}

// UpdateStatus moves an offering between OPEN, CLOSED, and CANCELLED.
func (r *OfferingRepository) UpdateStatus(ctx context.Context, id string, status models.OfferingStatus) error {
	const query = `UPDATE class_offerings SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update offering status: %w", err)
	}
	return nil
}
