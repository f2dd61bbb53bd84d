package models

import "github.com/flowconductor/conductor/internal/domain"

// NodeToDomain converts a bun node row to the domain type the core consumes.
func NodeToDomain(m *NodeModel) domain.Node {
	return domain.Node{
		ID:      m.ID,
		Type:    domain.NodeType(m.Type),
		Name:    m.Name,
		Enabled: m.Enabled,
	}
}

// JobToDomain converts a bun job row to the domain type the core consumes.
func JobToDomain(m *JobModel) domain.Job {
	return domain.Job{
		NodeID:        m.NodeID,
		CommandLine:   m.CommandLine,
		ExecutionDir:  m.ExecutionDir,
		AgentAffinity: m.AgentAffinity,
		MaxRetries:    m.MaxRetries,
		MaxConcurrent: m.MaxConcurrent,
	}
}

// ScheduleToDomain converts a bun schedule row to the domain type.
func ScheduleToDomain(m *ScheduleModel) domain.Schedule {
	return domain.Schedule{ID: m.ID, Cron: m.Cron}
}

// NodeScheduleToDomain converts a bun node-schedule row to the domain type.
func NodeScheduleToDomain(m *NodeScheduleModel) domain.NodeSchedule {
	return domain.NodeSchedule{ID: m.ID, NodeID: m.NodeID, ScheduleID: m.ScheduleID}
}

// WorkflowVertexToDomain converts a bun workflow-vertex row to the domain type.
func WorkflowVertexToDomain(m *WorkflowVertexModel) domain.WorkflowVertex {
	return domain.WorkflowVertex{
		ID:         m.ID,
		WorkflowID: m.WorkflowID,
		NodeID:     m.NodeID,
		Layout:     m.Layout,
	}
}

// WorkflowEdgeToDomain converts a bun workflow-edge row to the domain type.
func WorkflowEdgeToDomain(m *WorkflowEdgeModel) domain.WorkflowEdge {
	return domain.WorkflowEdge{
		ID:         m.ID,
		WorkflowID: m.WorkflowID,
		FromVertex: m.FromVertex,
		ToVertex:   m.ToVertex,
		Success:    m.Success,
	}
}

// ExecutionToDomain converts a bun execution row to the domain type.
func ExecutionToDomain(m *ExecutionModel) domain.Execution {
	return domain.Execution{
		ID:       m.ID,
		Status:   domain.ExecutionStatus(m.Status),
		StartTS:  m.StartTS,
		FinishTS: m.FinishTS,
		ErrorMsg: m.ErrorMsg,
	}
}

// ExecutionWorkflowToDomain converts a bun execution-workflow row to the
// domain type.
func ExecutionWorkflowToDomain(m *ExecutionWorkflowModel) domain.ExecutionWorkflow {
	return domain.ExecutionWorkflow{
		ID:          m.ID,
		ExecutionID: m.ExecutionID,
		WorkflowID:  m.WorkflowID,
		Root:        m.Root,
		Status:      domain.ExecutionStatus(m.Status),
		StartTS:     m.StartTS,
		FinishTS:    m.FinishTS,
	}
}

// ExecutionVertexToDomain converts a bun execution-vertex row to the domain
// type.
func ExecutionVertexToDomain(m *ExecutionVertexModel) domain.ExecutionVertex {
	return domain.ExecutionVertex{
		ID:           m.ID,
		ExecWfID:     m.ExecWfID,
		NodeID:       m.NodeID,
		Status:       domain.VertexStatus(m.Status),
		StartTS:      m.StartTS,
		FinishTS:     m.FinishTS,
		Layout:       m.Layout,
		AgentID:      m.AgentID,
		RunsExecWfID: m.RunsExecWfID,
	}
}

// ExecutionEdgeToDomain converts a bun execution-edge row to the domain type.
func ExecutionEdgeToDomain(m *ExecutionEdgeModel) domain.ExecutionEdge {
	return domain.ExecutionEdge{
		FromVertexID: m.FromVertexID,
		ToVertexID:   m.ToVertexID,
		Success:      m.Success,
	}
}
