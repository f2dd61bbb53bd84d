package domain

// VertexStatus is the status progression of an execution vertex, fixed to
// the integer ids of §6.3 so the in-memory model and the persistent store
// never disagree on wire representation.
type VertexStatus int

const (
	VertexUnexecuted    VertexStatus = 1
	VertexStarted       VertexStatus = 2
	VertexFinishedSucc  VertexStatus = 3
	VertexFinishedError VertexStatus = 4
	VertexAborted       VertexStatus = 5
	VertexUnknown       VertexStatus = 6
	VertexPending       VertexStatus = 7
)

// IsTerminal reports whether the status cannot be re-entered within the
// same execution (invariant 4 of §3).
func (s VertexStatus) IsTerminal() bool {
	switch s {
	case VertexFinishedSucc, VertexFinishedError, VertexAborted, VertexUnknown:
		return true
	default:
		return false
	}
}

func (s VertexStatus) String() string {
	switch s {
	case VertexUnexecuted:
		return "unexecuted"
	case VertexStarted:
		return "started"
	case VertexFinishedSucc:
		return "finished_success"
	case VertexFinishedError:
		return "finished_error"
	case VertexAborted:
		return "aborted"
	case VertexUnknown:
		return "unknown"
	case VertexPending:
		return "pending"
	default:
		return "invalid"
	}
}

// NodeType discriminates a Node's scheduling behavior.
type NodeType int

const (
	NodeTypeJob      NodeType = 1
	NodeTypeWorkflow NodeType = 2
)

func (t NodeType) String() string {
	if t == NodeTypeJob {
		return "job"
	}
	return "workflow"
}

// ExecutionStatus mirrors the status of the root execution row.
type ExecutionStatus int

const (
	ExecutionUnexecuted    ExecutionStatus = 1
	ExecutionStarted       ExecutionStatus = 2
	ExecutionFinishedSucc  ExecutionStatus = 3
	ExecutionFinishedError ExecutionStatus = 4
	ExecutionAborted       ExecutionStatus = 5
)

func (s ExecutionStatus) String() string {
	switch s {
	case ExecutionUnexecuted:
		return "unexecuted"
	case ExecutionStarted:
		return "started"
	case ExecutionFinishedSucc:
		return "finished_success"
	case ExecutionFinishedError:
		return "finished_error"
	case ExecutionAborted:
		return "aborted"
	default:
		return "invalid"
	}
}

// SyntheticWorkflowID is the reserved workflow-id (§6.3) used to run a
// single job as an execution, without a user-authored workflow template.
const SyntheticWorkflowID int64 = 1
