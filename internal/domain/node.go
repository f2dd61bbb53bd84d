package domain

// Node is a scheduling target: either a job or a workflow. Created by the
// CRUD collaborator, consumed read-only by the core.
type Node struct {
	ID      int64
	Type    NodeType
	Name    string
	Enabled bool
}

// Job augments a job-type Node with the attributes the conductor needs to
// dispatch it to an agent.
type Job struct {
	NodeID        int64
	CommandLine   string
	ExecutionDir  string
	AgentAffinity []string // optional; empty means any agent
	MaxRetries    int
	MaxConcurrent int // per-node concurrent execution cap; 0 = unlimited
}

// WorkflowVertex is one occurrence of a Node inside a workflow template.
type WorkflowVertex struct {
	ID         int64
	WorkflowID int64
	NodeID     int64
	Layout     string // opaque UI string, carried through verbatim
}

// WorkflowEdge is a directed, success/failure-labelled edge between two
// WorkflowVertex rows of the same workflow.
type WorkflowEdge struct {
	ID         int64
	WorkflowID int64
	FromVertex int64
	ToVertex   int64
	Success    bool
}

// Schedule is a cron expression that can be associated with one or more
// nodes.
type Schedule struct {
	ID   int64
	Cron string
}

// NodeSchedule associates a Node with a Schedule.
type NodeSchedule struct {
	ID         int64
	NodeID     int64
	ScheduleID int64
}
