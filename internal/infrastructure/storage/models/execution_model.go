package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ExecutionModel is the bun row for one run of a root workflow (§6.3
// `execution`).
type ExecutionModel struct {
	bun.BaseModel `bun:"table:execution,alias:e"`

	ID       int64      `bun:"id,pk,autoincrement"`
	Status   int        `bun:"status,notnull"`
	StartTS  time.Time  `bun:"start_ts,notnull"`
	FinishTS *time.Time `bun:"finish_ts"`
	ErrorMsg string     `bun:"error_msg"`
}

// ExecutionWorkflowModel is the bun row for one exec-wf node of the
// execution-time workflow tree (§6.3 `execution_workflow`).
type ExecutionWorkflowModel struct {
	bun.BaseModel `bun:"table:execution_workflow,alias:ew"`

	ID          int64      `bun:"id,pk,autoincrement"`
	ExecutionID int64      `bun:"execution_id,notnull"`
	WorkflowID  int64      `bun:"workflow_id,notnull"`
	Root        bool       `bun:"root,notnull"`
	Status      int        `bun:"status,notnull"`
	StartTS     *time.Time `bun:"start_ts"`
	FinishTS    *time.Time `bun:"finish_ts"`
}

// ExecutionVertexModel is the bun row for one execution-time projection of
// a workflow-vertex (§6.3 `execution_vertex`).
type ExecutionVertexModel struct {
	bun.BaseModel `bun:"table:execution_vertex,alias:ev"`

	ID           int64      `bun:"id,pk,autoincrement"`
	ExecWfID     int64      `bun:"exec_wf_id,notnull"`
	NodeID       int64      `bun:"node_id,notnull"`
	Status       int        `bun:"status,notnull"`
	StartTS      *time.Time `bun:"start_ts"`
	FinishTS     *time.Time `bun:"finish_ts"`
	Layout       string     `bun:"layout"`
	AgentID      *string    `bun:"agent_id"`
	RunsExecWfID *int64     `bun:"runs_exec_wf_id"`
}

// ExecutionEdgeModel is the bun row for one execution-time projection of a
// workflow-edge, rewired to reference exec-vertex-ids (§6.3
// `execution_edge`).
type ExecutionEdgeModel struct {
	bun.BaseModel `bun:"table:execution_edge,alias:ee"`

	ExecutionID  int64 `bun:"execution_id,notnull"`
	FromVertexID int64 `bun:"from_vertex_id,notnull"`
	ToVertexID   int64 `bun:"to_vertex_id,notnull"`
	Success      bool  `bun:"success,notnull"`
}
