package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsim/simlab-api/internal/models"
)

func newSimulationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func simulationRows(id string, start, end time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "group_number", "start_date_time", "end_date_time", "grade_status", "grade", "grade_date_time", "practice_id", "created_at", "updated_at"}).
		AddRow(id, 1, start, end, string(models.GradePending), nil, nil, "practice-1", start, start)
}

func TestSimulationRepositoryFindOverlapping(t *testing.T) {
	db, mock, cleanup := newSimulationRepoMock(t)
	defer cleanup()
	repo := NewSimulationRepository(db)

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("JOIN simulation_rooms sr ON sr.simulation_id = s.id")).
		WithArgs("room-1", start, end).
		WillReturnRows(simulationRows("sim-1", start.Add(-time.Hour), start.Add(time.Hour)))

	sims, err := repo.FindOverlapping(context.Background(), "room-1", start, end, "")
	require.NoError(t, err)
	require.Len(t, sims, 1)
	assert.Equal(t, "sim-1", sims[0].ID)
	assert.Equal(t, models.GradePending, sims[0].GradeStatus)
}

func TestSimulationRepositoryFindOverlappingExcludesSelf(t *testing.T) {
	db, mock, cleanup := newSimulationRepoMock(t)
	defer cleanup()
	repo := NewSimulationRepository(db)

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("AND s.id <> $4")).
		WithArgs("room-1", start, end, "sim-1").
		WillReturnRows(simulationRows("sim-2", start, end))

	sims, err := repo.FindOverlapping(context.Background(), "room-1", start, end, "sim-1")
	require.NoError(t, err)
	require.Len(t, sims, 1)
	assert.Equal(t, "sim-2", sims[0].ID)
}

func TestSimulationRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newSimulationRepoMock(t)
	defer cleanup()
	repo := NewSimulationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("sim-99").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "sim-99")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestSimulationRepositoryBulkCreate(t *testing.T) {
	db, mock, cleanup := newSimulationRepoMock(t)
	defer cleanup()
	repo := NewSimulationRepository(db)

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO simulations")).
		WithArgs(sqlmock.AnyArg(), 1, start, start.Add(time.Hour), string(models.GradePending), "practice-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO simulation_rooms")).
		WithArgs(sqlmock.AnyArg(), "room-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO simulation_users")).
		WithArgs(sqlmock.AnyArg(), "stu-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	bookings := []SimulationBooking{{
		Simulation: models.Simulation{
			GroupNumber:   1,
			StartDateTime: start,
			EndDateTime:   start.Add(time.Hour),
			PracticeID:    "practice-1",
		},
		RoomIDs: []string{"room-1"},
		UserIDs: []string{"stu-1"},
	}}
	err := repo.BulkCreate(context.Background(), bookings)
	require.NoError(t, err)
	assert.NotEmpty(t, bookings[0].Simulation.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSimulationRepositoryBulkCreateRollsBack(t *testing.T) {
	db, mock, cleanup := newSimulationRepoMock(t)
	defer cleanup()
	repo := NewSimulationRepository(db)

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO simulations")).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := repo.BulkCreate(context.Background(), []SimulationBooking{{
		Simulation: models.Simulation{
			StartDateTime: start,
			EndDateTime:   start.Add(time.Hour),
			PracticeID:    "practice-1",
		},
	}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSimulationRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newSimulationRepoMock(t)
	defer cleanup()
	repo := NewSimulationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM simulation_rooms WHERE simulation_id = $1")).
		WithArgs("sim-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM simulation_users WHERE simulation_id = $1")).
		WithArgs("sim-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM simulations WHERE id = $1")).
		WithArgs("sim-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), "sim-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSimulationRepositoryPublishGrade(t *testing.T) {
	db, mock, cleanup := newSimulationRepoMock(t)
	defer cleanup()
	repo := NewSimulationRepository(db)

	gradedAt := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE simulations SET grade = $1, grade_date_time = $2, grade_status = $3, updated_at = $2 WHERE id = $4")).
		WithArgs(4.5, gradedAt, string(models.GradeRegistered), "sim-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.PublishGrade(context.Background(), "sim-1", 4.5, gradedAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
