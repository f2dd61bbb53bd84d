package storage

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/flowconductor/conductor/internal/domain"
	"github.com/flowconductor/conductor/internal/domain/repository"
	"github.com/flowconductor/conductor/internal/infrastructure/storage/models"
)

var _ repository.WorkflowTemplateStore = (*WorkflowTemplateRepository)(nil)

// WorkflowTemplateRepository implements repository.WorkflowTemplateStore
// over the workflow_vertex/workflow_edge tables, grounded on the teacher's
// WorkflowRepository (storage/workflow_repository.go)'s vertex/edge load
// pattern.
type WorkflowTemplateRepository struct {
	db *bun.DB
}

// NewWorkflowTemplateRepository returns a WorkflowTemplateRepository bound
// to db.
func NewWorkflowTemplateRepository(db *bun.DB) *WorkflowTemplateRepository {
	return &WorkflowTemplateRepository{db: db}
}

// GetWorkflowVertices loads every vertex belonging to workflowID's template.
func (r *WorkflowTemplateRepository) GetWorkflowVertices(ctx context.Context, workflowID int64) ([]domain.WorkflowVertex, error) {
	var rows []models.WorkflowVertexModel
	if err := r.db.NewSelect().Model(&rows).Where("workflow_id = ?", workflowID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("storage: get workflow vertices for %d: %w", workflowID, err)
	}
	out := make([]domain.WorkflowVertex, 0, len(rows))
	for i := range rows {
		out = append(out, models.WorkflowVertexToDomain(&rows[i]))
	}
	return out, nil
}

// GetWorkflowEdges loads every edge belonging to workflowID's template.
func (r *WorkflowTemplateRepository) GetWorkflowEdges(ctx context.Context, workflowID int64) ([]domain.WorkflowEdge, error) {
	var rows []models.WorkflowEdgeModel
	if err := r.db.NewSelect().Model(&rows).Where("workflow_id = ?", workflowID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("storage: get workflow edges for %d: %w", workflowID, err)
	}
	out := make([]domain.WorkflowEdge, 0, len(rows))
	for i := range rows {
		out = append(out, models.WorkflowEdgeToDomain(&rows[i]))
	}
	return out, nil
}
