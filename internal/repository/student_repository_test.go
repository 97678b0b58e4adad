package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/openacad/sis-api/internal/models"
)

func newStudentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStudentRepositoryRecalculateGPA(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT gpa FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"gpa"}).AddRow(3.10))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT e.id AS enrollment_id, c.id AS course_id, c.credits, e.status, e.grade_points")).
		WithArgs("stu-1", models.EnrollmentStatusCompleted, models.EnrollmentStatusFailed).
		WillReturnRows(sqlmock.NewRows([]string{"enrollment_id", "course_id", "credits", "status", "grade_points"}).
			AddRow("enr-1", "crs-1", 4, "COMPLETED", 4.0).
			AddRow("enr-2", "crs-2", 2, "FAILED", 0.0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET gpa = $2")).
		WithArgs("stu-1", 8.0/3.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// (4*4.0 + 2*0.0) / 6 credits
	gpa, err := repo.RecalculateGPA(context.Background(), "stu-1", func(finished []models.CompletedCourse) float64 {
		require.Len(t, finished, 2)
		var quality, credits float64
		for _, c := range finished {
			if c.GradePoints == nil {
				continue
			}
			quality += float64(c.Credits) * *c.GradePoints
			credits += float64(c.Credits)
		}
		if credits == 0 {
			return 0
		}
		return quality / credits
	})
	require.NoError(t, err)
	require.InDelta(t, 2.6667, gpa, 1e-4)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryRecalculateGPANoHistory(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT gpa FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"gpa"}).AddRow(0.0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT e.id AS enrollment_id")).
		WithArgs("stu-1", models.EnrollmentStatusCompleted, models.EnrollmentStatusFailed).
		WillReturnRows(sqlmock.NewRows([]string{"enrollment_id", "course_id", "credits", "status", "grade_points"}))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET gpa = $2")).
		WithArgs("stu-1", 0.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	gpa, err := repo.RecalculateGPA(context.Background(), "stu-1", func(finished []models.CompletedCourse) float64 {
		require.Empty(t, finished)
		return 0
	})
	require.NoError(t, err)
	require.Zero(t, gpa)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryRecalculateGPAMissingStudent(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT gpa FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"gpa"}))
	mock.ExpectRollback()

	_, err := repo.RecalculateGPA(context.Background(), "missing", func([]models.CompletedCourse) float64 { return 0 })
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
