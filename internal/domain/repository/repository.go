// Package repository defines the narrow, store-facing interfaces the core
// consumes. Implementations live in internal/infrastructure/storage; the
// core never imports that package directly, mirroring the teacher's
// split between internal/domain/repository (interfaces) and
// internal/infrastructure/storage (bun-backed implementations).
package repository

import (
	"context"
	"time"

	"github.com/flowconductor/conductor/internal/domain"
)

// NodeStore is the read path for node/job definitions the CRUD
// collaborator owns.
type NodeStore interface {
	GetNode(ctx context.Context, nodeID int64) (*domain.Node, error)
	GetJob(ctx context.Context, nodeID int64) (*domain.Job, error)
}

// WorkflowTemplateStore loads the template graph of a workflow (and its
// transitively-referenced sub-workflows) for Execution Setup.
type WorkflowTemplateStore interface {
	GetWorkflowVertices(ctx context.Context, workflowID int64) ([]domain.WorkflowVertex, error)
	GetWorkflowEdges(ctx context.Context, workflowID int64) ([]domain.WorkflowEdge, error)
}

// ScheduleStore is the read path the Schedule Cache uses to warm itself
// and the CRUD collaborator's write path the cache mirrors.
type ScheduleStore interface {
	ListNodes(ctx context.Context) ([]domain.Node, error)
	ListSchedules(ctx context.Context) ([]domain.Schedule, error)
	ListNodeSchedules(ctx context.Context) ([]domain.NodeSchedule, error)
	ListNodeSchedulesByNode(ctx context.Context, nodeID int64) ([]domain.NodeSchedule, error)
	ListNodeSchedulesBySchedule(ctx context.Context, scheduleID int64) ([]domain.NodeSchedule, error)
	GetSchedule(ctx context.Context, scheduleID int64) (*domain.Schedule, error)
}

// ExecutionStore persists the Execution/ExecutionWorkflow/ExecutionVertex/
// ExecutionEdge snapshot rows described in §3 and §6.3.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, startTS time.Time) (int64, error)
	CreateExecutionWorkflow(ctx context.Context, executionID, workflowID int64, root bool) (int64, error)
	CreateExecutionVertex(ctx context.Context, v domain.ExecutionVertex) (int64, error)
	CreateExecutionEdges(ctx context.Context, edges []domain.ExecutionEdge) error

	SetExecutionStarted(ctx context.Context, executionID int64, startTS time.Time) error
	SetExecutionFinished(ctx context.Context, executionID int64, status domain.ExecutionStatus, finishTS time.Time, errMsg string) error

	SetExecWfStarted(ctx context.Context, execWfID int64, startTS time.Time) error
	SetExecWfFinished(ctx context.Context, execWfID int64, status domain.ExecutionStatus, finishTS time.Time) error

	// SetVertexStarted is a no-op (idempotent) if the vertex is already
	// started (§4.6 "when jobs start"); the agent id is not compared.
	SetVertexStarted(ctx context.Context, vertexID int64, agentID string, startTS time.Time) error
	// SetVertexFinished is a no-op if the vertex is already terminal
	// (§4.6 "when jobs finish" idempotence).
	SetVertexFinished(ctx context.Context, vertexID int64, status domain.VertexStatus, finishTS time.Time) error
	SetVertexUnknown(ctx context.Context, vertexIDs []int64) error
	SetVertexRunsExecWf(ctx context.Context, vertexID int64, childExecWfID int64) error

	LoadSnapshot(ctx context.Context, executionID int64) (*Snapshot, error)
}

// Snapshot is the flat row-set Setup loads back out of the store to build
// an Execution Model (§4.2 step 4).
type Snapshot struct {
	Execution    domain.Execution
	Workflows    []domain.ExecutionWorkflow
	Vertices     []domain.ExecutionVertex
	Edges        []domain.ExecutionEdge
	RootExecWfID int64
}
