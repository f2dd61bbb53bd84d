package models

import "github.com/uptrace/bun"

// NodeModel is the bun row for a node/job definition row (§6.3 `node`),
// owned by the out-of-scope CRUD layer and read-only here.
type NodeModel struct {
	bun.BaseModel `bun:"table:node,alias:n"`

	ID      int64  `bun:"id,pk,autoincrement"`
	Type    int    `bun:"type,notnull"`
	Name    string `bun:"name,notnull"`
	Enabled bool   `bun:"enabled,notnull,default:true"`
}

// JobModel is the bun row for a job-type node's dispatch attributes
// (§6.3 `job`), keyed 1:1 by the owning node's id.
type JobModel struct {
	bun.BaseModel `bun:"table:job,alias:j"`

	NodeID        int64    `bun:"node_id,pk"`
	CommandLine   string   `bun:"command_line,notnull"`
	ExecutionDir  string   `bun:"execution_dir,notnull"`
	AgentAffinity []string `bun:"agent_affinity,array"`
	MaxRetries    int      `bun:"max_retries,notnull,default:0"`
	MaxConcurrent int      `bun:"max_concurrent,notnull,default:0"`
}

// ScheduleModel is the bun row for a cron schedule (§6.3 `schedule`).
type ScheduleModel struct {
	bun.BaseModel `bun:"table:schedule,alias:s"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Cron string `bun:"cron,notnull"`
}

// NodeScheduleModel associates a node with a schedule (§6.3 `node_schedule`).
type NodeScheduleModel struct {
	bun.BaseModel `bun:"table:node_schedule,alias:ns"`

	ID         int64 `bun:"id,pk,autoincrement"`
	NodeID     int64 `bun:"node_id,notnull"`
	ScheduleID int64 `bun:"schedule_id,notnull"`
}
