package domain

import "errors"

// ErrCyclicGraph is returned by Model.Finalize when a workflow's internal
// graph (within one exec-wf) contains a cycle. Setup, on getting this from
// Finalize, marks the execution finished_error itself and returns the error
// without any vertex having been run.
var ErrCyclicGraph = errors.New("conductor: cyclic workflow graph")

// ErrMixedExecWf is returned when run_nodes (§4.6) is asked to schedule
// vertices that do not all belong to the same exec-wf — a violation of the
// Model's safety invariant.
var ErrMixedExecWf = errors.New("conductor: vertices span more than one exec-wf")

// ErrVertexNotFound / ErrExecWfNotFound are protocol-violation class errors
// (§7): an inbound message or query referenced an id the Model does not
// know about.
var (
	ErrVertexNotFound  = errors.New("conductor: unknown exec-vertex")
	ErrExecWfNotFound  = errors.New("conductor: unknown exec-workflow")
	ErrWorkflowMissing = errors.New("conductor: workflow-id not found in store")
	ErrNodeMissing     = errors.New("conductor: node-id not found in store")
	ErrJobMissing      = errors.New("conductor: job-id not found in store")
)

// ErrUnknownExecution is returned when a command references an execution-id
// the controller has no exec_infos entry for (already finished, aborted, or
// never started).
var ErrUnknownExecution = errors.New("conductor: unknown execution")

// ErrExecutionAlreadyLive is returned by resume_execution when the
// execution is still registered in exec_infos.
var ErrExecutionAlreadyLive = errors.New("conductor: execution already live")
