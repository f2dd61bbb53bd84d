package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/flowconductor/conductor/internal/domain"
	"github.com/flowconductor/conductor/internal/domain/repository"
	"github.com/flowconductor/conductor/internal/infrastructure/storage/models"
)

var _ repository.NodeStore = (*NodeRepository)(nil)

// NodeRepository implements repository.NodeStore over the node/job
// tables the out-of-scope CRUD layer owns, grounded on the teacher's
// repository-per-aggregate shape (e.g. storage.UserRepository).
type NodeRepository struct {
	db *bun.DB
}

// NewNodeRepository returns a NodeRepository bound to db.
func NewNodeRepository(db *bun.DB) *NodeRepository {
	return &NodeRepository{db: db}
}

// GetNode loads a node by id.
func (r *NodeRepository) GetNode(ctx context.Context, nodeID int64) (*domain.Node, error) {
	m := &models.NodeModel{}
	if err := r.db.NewSelect().Model(m).Where("id = ?", nodeID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNodeMissing
		}
		return nil, fmt.Errorf("storage: get node %d: %w", nodeID, err)
	}
	n := models.NodeToDomain(m)
	return &n, nil
}

// GetJob loads a job's dispatch attributes by its owning node's id.
func (r *NodeRepository) GetJob(ctx context.Context, nodeID int64) (*domain.Job, error) {
	m := &models.JobModel{}
	if err := r.db.NewSelect().Model(m).Where("node_id = ?", nodeID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobMissing
		}
		return nil, fmt.Errorf("storage: get job %d: %w", nodeID, err)
	}
	j := models.JobToDomain(m)
	return &j, nil
}
