package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/openacad/sis-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryAdmitTxClaimsSeat(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, capacity, enrolled_count FROM class_offerings WHERE id = $1 FOR UPDATE")).
		WithArgs("off-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "capacity", "enrolled_count"}).
			AddRow("OPEN", 30, 12))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_offerings")).
		WithArgs("off-1", models.OfferingStatusClosed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{StudentID: "stu-1", OfferingID: "off-1"}
	require.NoError(t, repo.AdmitTx(context.Background(), enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAdmitTxFullOffering(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("off-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "capacity", "enrolled_count"}).
			AddRow("OPEN", 30, 30))
	mock.ExpectRollback()

	err := repo.AdmitTx(context.Background(), &models.Enrollment{StudentID: "stu-1", OfferingID: "off-1"})
	require.ErrorIs(t, err, ErrSeatUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAdmitTxClosedOffering(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("off-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "capacity", "enrolled_count"}).
			AddRow("CLOSED", 30, 12))
	mock.ExpectRollback()

	err := repo.AdmitTx(context.Background(), &models.Enrollment{StudentID: "stu-1", OfferingID: "off-1"})
	require.ErrorIs(t, err, ErrSeatUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDropTxReleasesSeat(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	droppedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, dropped_at = $3")).
		WithArgs("enr-1", models.EnrollmentStatusDropped, droppedAt, models.EnrollmentStatusEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_offerings")).
		WithArgs("off-1", models.OfferingStatusClosed, models.OfferingStatusOpen, droppedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DropTx(context.Background(), "enr-1", "off-1", droppedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDropTxAlreadyMoved(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)
	droppedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, dropped_at = $3")).
		WithArgs("enr-1", models.EnrollmentStatusDropped, droppedAt, models.EnrollmentStatusEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.DropTx(context.Background(), "enr-1", "off-1", droppedAt)
	require.ErrorIs(t, err, ErrStateChanged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySetFinalGradeGuarded(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET grade = $2, grade_points = $3, status = $4")).
		WithArgs("enr-1", "B+", 3.5, models.EnrollmentStatusCompleted, sqlmock.AnyArg(), models.EnrollmentStatusEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetFinalGrade(context.Background(), "enr-1", "B+", 3.5,
		models.EnrollmentStatusCompleted, models.EnrollmentStatusEnrolled))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySetFinalGradeStateChanged(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET grade = $2, grade_points = $3, status = $4")).
		WithArgs("enr-1", "A", 4.0, models.EnrollmentStatusCompleted, sqlmock.AnyArg(), models.EnrollmentStatusEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetFinalGrade(context.Background(), "enr-1", "A", 4.0,
		models.EnrollmentStatusCompleted, models.EnrollmentStatusEnrolled)
	require.ErrorIs(t, err, ErrStateChanged)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActiveOrCompleted(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments")).
		WithArgs("stu-1", "off-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsActiveOrCompleted(context.Background(), "stu-1", "off-1")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments")).
		WithArgs("stu-1", "off-2", models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err = repo.ExistsActiveOrCompleted(context.Background(), "stu-1", "off-2")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAdmitTxRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()

	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("off-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "capacity", "enrolled_count"}).
			AddRow("OPEN", 30, 12))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err := repo.AdmitTx(context.Background(), &models.Enrollment{StudentID: "stu-1", OfferingID: "off-1"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrSeatUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}
