package models

import "github.com/uptrace/bun"

// WorkflowModel is the bun row for the `workflow` table of §6.3. Its id is
// the same id as the workflow-type node that owns it (the node-id doubles
// as the workflow-template-id, per the Execution Setup design); the table
// exists purely to anchor the workflow_vertex/workflow_edge foreign keys.
type WorkflowModel struct {
	bun.BaseModel `bun:"table:workflow,alias:wf"`

	ID int64 `bun:"id,pk"`
}

// WorkflowVertexModel is one occurrence of a node inside a workflow
// template (§6.3 `workflow_vertex`).
type WorkflowVertexModel struct {
	bun.BaseModel `bun:"table:workflow_vertex,alias:wv"`

	ID         int64  `bun:"id,pk,autoincrement"`
	WorkflowID int64  `bun:"workflow_id,notnull"`
	NodeID     int64  `bun:"node_id,notnull"`
	Layout     string `bun:"layout"`
}

// WorkflowEdgeModel is a directed, success/failure-labelled edge between
// two workflow-vertex rows of the same workflow (§6.3 `workflow_edge`).
type WorkflowEdgeModel struct {
	bun.BaseModel `bun:"table:workflow_edge,alias:we"`

	ID         int64 `bun:"id,pk,autoincrement"`
	WorkflowID int64 `bun:"workflow_id,notnull"`
	FromVertex int64 `bun:"from_vertex,notnull"`
	ToVertex   int64 `bun:"to_vertex,notnull"`
	Success    bool  `bun:"success,notnull"`
}
