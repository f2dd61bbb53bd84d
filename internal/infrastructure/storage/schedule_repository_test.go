package storage_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowconductor/conductor/internal/infrastructure/storage"
)

func TestScheduleRepository_ListNodes(t *testing.T) {
	db, mock := newBunDBWithMock(t)
	repo := storage.NewScheduleRepository(db)

	rows := sqlmock.NewRows([]string{"id", "type", "name", "enabled"}).
		AddRow(int64(1), 0, "root", true).
		AddRow(int64(2), 1, "build", true)
	mock.ExpectQuery("^SELECT").WillReturnRows(rows)

	nodes, err := repo.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "root", nodes[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepository_ListSchedules(t *testing.T) {
	db, mock := newBunDBWithMock(t)
	repo := storage.NewScheduleRepository(db)

	rows := sqlmock.NewRows([]string{"id", "cron"}).AddRow(int64(5), "*/5 * * * * *")
	mock.ExpectQuery("^SELECT").WillReturnRows(rows)

	schedules, err := repo.ListSchedules(context.Background())
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "*/5 * * * * *", schedules[0].Cron)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepository_ListNodeSchedulesByNode(t *testing.T) {
	db, mock := newBunDBWithMock(t)
	repo := storage.NewScheduleRepository(db)

	mock.ExpectQuery("node_id = ").
		WillReturnRows(sqlmock.NewRows([]string{"id", "node_id", "schedule_id"}).
			AddRow(int64(1), int64(10), int64(5)))

	assocs, err := repo.ListNodeSchedulesByNode(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, assocs, 1)
	assert.Equal(t, int64(5), assocs[0].ScheduleID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepository_ListNodeSchedulesBySchedule(t *testing.T) {
	db, mock := newBunDBWithMock(t)
	repo := storage.NewScheduleRepository(db)

	mock.ExpectQuery("schedule_id = ").
		WillReturnRows(sqlmock.NewRows([]string{"id", "node_id", "schedule_id"}).
			AddRow(int64(1), int64(10), int64(5)))

	assocs, err := repo.ListNodeSchedulesBySchedule(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, assocs, 1)
	assert.Equal(t, int64(10), assocs[0].NodeID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepository_GetSchedule_NotFound(t *testing.T) {
	db, mock := newBunDBWithMock(t)
	repo := storage.NewScheduleRepository(db)

	mock.ExpectQuery("^SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "cron"}))

	_, err := repo.GetSchedule(context.Background(), 999)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
