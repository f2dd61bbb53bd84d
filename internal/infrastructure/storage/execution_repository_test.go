package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowconductor/conductor/internal/domain"
	"github.com/flowconductor/conductor/internal/infrastructure/storage"
)

func TestExecutionRepository_CreateExecution(t *testing.T) {
	db, mock := newBunDBWithMock(t)
	repo := storage.NewExecutionRepository(db)

	mock.ExpectQuery("^INSERT INTO \"execution\"").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	id, err := repo.CreateExecution(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_CreateExecutionWorkflow(t *testing.T) {
	db, mock := newBunDBWithMock(t)
	repo := storage.NewExecutionRepository(db)

	mock.ExpectQuery("^INSERT INTO \"execution_workflow\"").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := repo.CreateExecutionWorkflow(context.Background(), 1, 2, true)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_CreateExecutionEdges_EmptyIsNoop(t *testing.T) {
	db, _ := newBunDBWithMock(t)
	repo := storage.NewExecutionRepository(db)

	err := repo.CreateExecutionEdges(context.Background(), nil)
	require.NoError(t, err)
}

// SetVertexStarted's UPDATE must guard against re-starting an
// already-started vertex, so a retried run-job-ack is a no-op (§4.6).
func TestExecutionRepository_SetVertexStarted_GuardsAgainstRestart(t *testing.T) {
	db, mock := newBunDBWithMock(t)
	repo := storage.NewExecutionRepository(db)

	mock.ExpectExec(`UPDATE "execution_vertex".*id = 100 AND status != 2`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetVertexStarted(context.Background(), 100, "agent-1", time.Now())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// SetVertexFinished's UPDATE must guard against overwriting a vertex that
// already reached a terminal status, so a retried job-finished is a no-op.
func TestExecutionRepository_SetVertexFinished_GuardsTerminalStatuses(t *testing.T) {
	db, mock := newBunDBWithMock(t)
	repo := storage.NewExecutionRepository(db)

	mock.ExpectExec(`UPDATE "execution_vertex".*id = 100 AND status NOT IN \(3, 4, 5, 6\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetVertexFinished(context.Background(), 100, domain.VertexFinishedSucc, time.Now())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_SetVertexRunsExecWf(t *testing.T) {
	db, mock := newBunDBWithMock(t)
	repo := storage.NewExecutionRepository(db)

	mock.ExpectExec(`UPDATE "execution_vertex"`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetVertexRunsExecWf(context.Background(), 100, 55)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_SetVertexUnknown_EmptyIsNoop(t *testing.T) {
	db, _ := newBunDBWithMock(t)
	repo := storage.NewExecutionRepository(db)

	err := repo.SetVertexUnknown(context.Background(), nil)
	require.NoError(t, err)
}

func TestExecutionRepository_LoadSnapshot(t *testing.T) {
	db, mock := newBunDBWithMock(t)
	repo := storage.NewExecutionRepository(db)

	now := time.Now()

	mock.ExpectQuery(`FROM "execution" AS`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "start_ts", "finish_ts", "error_msg"}).
			AddRow(int64(1), int(domain.ExecutionStarted), now, nil, ""))

	mock.ExpectQuery(`FROM "execution_workflow" AS`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "execution_id", "workflow_id", "root", "status", "start_ts", "finish_ts"}).
			AddRow(int64(9), int64(1), int64(3), true, int(domain.ExecutionStarted), now, nil))

	mock.ExpectQuery(`FROM "execution_vertex"\b`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "exec_wf_id", "node_id", "status", "start_ts", "finish_ts", "layout", "agent_id", "runs_exec_wf_id"}).
			AddRow(int64(50), int64(9), int64(10), int(domain.VertexStarted), now, nil, "", nil, nil))

	mock.ExpectQuery(`FROM "execution_edge" AS`).
		WillReturnRows(sqlmock.NewRows([]string{"execution_id", "from_vertex_id", "to_vertex_id", "success"}))

	snap, err := repo.LoadSnapshot(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Execution.ID)
	assert.Equal(t, int64(9), snap.RootExecWfID)
	require.Len(t, snap.Workflows, 1)
	require.Len(t, snap.Vertices, 1)
	assert.Equal(t, int64(10), snap.Vertices[0].NodeID)
	require.NoError(t, mock.ExpectationsWereMet())
}
