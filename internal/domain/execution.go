package domain

import "time"

// Execution is one run of a root workflow (or synthetic single-job
// workflow). It is a snapshot: Setup freezes the template DAG into
// ExecutionWorkflow/ExecutionVertex/ExecutionEdge rows at launch time so
// later edits to the templates never affect a running or historical run.
type Execution struct {
	ID       int64
	Status   ExecutionStatus
	StartTS  time.Time
	FinishTS *time.Time
	// ErrorMsg carries the template-defect message (§7) when Status is
	// finished_error due to Setup failing rather than a job failing; empty
	// otherwise.
	ErrorMsg string
}

// ExecutionWorkflow is the execution-time projection of one workflow
// template used inside an Execution. The tree of ExecutionWorkflows for one
// Execution is rooted at the row with Root=true.
type ExecutionWorkflow struct {
	ID          int64
	ExecutionID int64
	WorkflowID  int64
	Root        bool
	Status      ExecutionStatus
	StartTS     *time.Time
	FinishTS    *time.Time
}

// ExecutionVertex is the execution-time projection of one WorkflowVertex.
// RunsExecWfID is set only when the vertex's node is a workflow: it points
// at the child ExecutionWorkflow the vertex expands into.
type ExecutionVertex struct {
	ID           int64
	ExecWfID     int64
	NodeID       int64
	Status       VertexStatus
	StartTS      *time.Time
	FinishTS     *time.Time
	Layout       string
	AgentID      *string
	RunsExecWfID *int64
}

// ExecutionEdge is the execution-time projection of one WorkflowEdge,
// rewired to reference exec-vertex-ids within one Execution.
type ExecutionEdge struct {
	ExecutionID  int64
	FromVertexID int64
	ToVertexID   int64
	Success      bool
}
