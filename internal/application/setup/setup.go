// Package setup implements Execution Setup (§4.2): it turns a workflow
// template (or a single job, via the reserved synthetic workflow) into a
// fresh Execution Model by projecting every reachable workflow-vertex/edge
// into execution-vertex/edge rows, then reading the snapshot back out of
// the store to build the in-memory Model. Grounded on the teacher's
// engine.RepositoryWorkflowLoader
// (internal/application/engine/repository_workflow_loader.go), which
// loads a workflow template from storage into the in-process domain type
// the DAG executor runs — generalized here from "one workflow" to "a
// template tree materialized as an execution snapshot, persisted so it
// survives a conductor restart."
package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/flowconductor/conductor/internal/application/model"
	"github.com/flowconductor/conductor/internal/domain"
	"github.com/flowconductor/conductor/internal/domain/repository"
)

// Setup executes Execution Setup against the persistent store.
type Setup struct {
	nodes     repository.NodeStore
	templates repository.WorkflowTemplateStore
	execStore repository.ExecutionStore
}

// New returns a Setup bound to the given stores.
func New(nodes repository.NodeStore, templates repository.WorkflowTemplateStore, execStore repository.ExecutionStore) *Setup {
	return &Setup{nodes: nodes, templates: templates, execStore: execStore}
}

// Result is what Setup hands back to the Conductor Controller (§4.2's
// "Result to caller").
type Result struct {
	ExecutionID  int64
	Model        *model.Model
	WorkflowName string
	StartTS      time.Time
	RootExecWfID int64
}

// InitialRun runs steps 1-5 of §4.2 for a workflow trigger.
func (s *Setup) InitialRun(ctx context.Context, rootWorkflowID int64, startTS time.Time) (*Result, error) {
	return s.run(ctx, rootWorkflowID, startTS)
}

// InitialRunJob runs Setup for a single job, via the reserved synthetic
// workflow id (§3, §6.3).
func (s *Setup) InitialRunJob(ctx context.Context, jobNodeID int64, startTS time.Time) (*Result, error) {
	return s.runSynthetic(ctx, jobNodeID, startTS)
}

// failSetup marks an already-created execution row finished_error with
// cause's message and returns cause unchanged (so errors.Is(err,
// domain.ErrCyclicGraph) still works at the caller), implementing §7's
// "template defect" rule that a failed trigger leaves the execution row
// finished_error rather than stuck at unexecuted. If the marking write
// itself fails, that failure is folded into the returned error so it is
// not silently lost.
func (s *Setup) failSetup(ctx context.Context, executionID int64, cause error) error {
	if markErr := s.execStore.SetExecutionFinished(ctx, executionID, domain.ExecutionFinishedError, time.Now(), cause.Error()); markErr != nil {
		return fmt.Errorf("%w (marking execution %d finished_error also failed: %v)", cause, executionID, markErr)
	}
	return cause
}

// template is one workflow template's reachable vertices/edges, plus the
// node-type of every vertex (keyed by template vertex-id) so callers don't
// need to re-query the node store to tell job vertices from workflow
// vertices that expand into a child exec-wf.
type template struct {
	workflowID int64
	vertices   []domain.WorkflowVertex
	edges      []domain.WorkflowEdge
	nodeTypes  map[int64]domain.NodeType // template vertex-id -> node type
}

// discoverTemplates walks rootWorkflowID and every transitively-referenced
// sub-workflow template, deduplicated (§4.2 step 1).
func (s *Setup) discoverTemplates(ctx context.Context, rootWorkflowID int64) ([]template, error) {
	seen := map[int64]bool{}
	var order []template

	var visit func(workflowID int64) error
	visit = func(workflowID int64) error {
		if seen[workflowID] {
			return nil
		}
		seen[workflowID] = true

		vertices, err := s.templates.GetWorkflowVertices(ctx, workflowID)
		if err != nil {
			return fmt.Errorf("setup: load vertices for workflow %d: %w", workflowID, err)
		}
		edges, err := s.templates.GetWorkflowEdges(ctx, workflowID)
		if err != nil {
			return fmt.Errorf("setup: load edges for workflow %d: %w", workflowID, err)
		}
		nodeTypes := make(map[int64]domain.NodeType, len(vertices))
		order = append(order, template{workflowID: workflowID, vertices: vertices, edges: edges, nodeTypes: nodeTypes})

		for _, v := range vertices {
			node, err := s.nodes.GetNode(ctx, v.NodeID)
			if err != nil {
				return fmt.Errorf("setup: load node %d: %w", v.NodeID, err)
			}
			nodeTypes[v.ID] = node.Type
			if node.Type == domain.NodeTypeWorkflow {
				// A workflow-type node's id doubles as the sub-workflow's
				// template id, so the node it names is the workflow to
				// recurse into.
				if err := visit(node.ID); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := visit(rootWorkflowID); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Setup) run(ctx context.Context, rootWorkflowID int64, startTS time.Time) (*Result, error) {
	templates, err := s.discoverTemplates(ctx, rootWorkflowID)
	if err != nil {
		return nil, err
	}

	rootNode, err := s.nodes.GetNode(ctx, rootWorkflowID)
	if err != nil {
		return nil, fmt.Errorf("setup: load root node %d: %w", rootWorkflowID, err)
	}

	executionID, err := s.execStore.CreateExecution(ctx, startTS)
	if err != nil {
		return nil, fmt.Errorf("setup: create execution: %w", err)
	}

	execWfID := make(map[int64]int64) // workflow-id -> exec-wf-id
	var rootExecWfID int64
	for i, tpl := range templates {
		root := i == 0
		id, err := s.execStore.CreateExecutionWorkflow(ctx, executionID, tpl.workflowID, root)
		if err != nil {
			return nil, s.failSetup(ctx, executionID, fmt.Errorf("setup: create execution-workflow for %d: %w", tpl.workflowID, err))
		}
		execWfID[tpl.workflowID] = id
		if root {
			rootExecWfID = id
		}
	}

	if err := s.projectVerticesAndEdges(ctx, executionID, templates, execWfID); err != nil {
		return nil, s.failSetup(ctx, executionID, err)
	}

	m, err := s.buildModel(ctx, executionID, rootExecWfID, true)
	if err != nil {
		return nil, s.failSetup(ctx, executionID, err)
	}

	return &Result{
		ExecutionID:  executionID,
		Model:        m,
		WorkflowName: rootNode.Name,
		StartTS:      startTS,
		RootExecWfID: rootExecWfID,
	}, nil
}

func (s *Setup) runSynthetic(ctx context.Context, jobNodeID int64, startTS time.Time) (*Result, error) {
	node, err := s.nodes.GetNode(ctx, jobNodeID)
	if err != nil {
		return nil, fmt.Errorf("setup: load job node %d: %w", jobNodeID, err)
	}

	executionID, err := s.execStore.CreateExecution(ctx, startTS)
	if err != nil {
		return nil, fmt.Errorf("setup: create execution: %w", err)
	}

	execWfID, err := s.execStore.CreateExecutionWorkflow(ctx, executionID, domain.SyntheticWorkflowID, true)
	if err != nil {
		return nil, s.failSetup(ctx, executionID, fmt.Errorf("setup: create synthetic execution-workflow: %w", err))
	}

	if _, err := s.execStore.CreateExecutionVertex(ctx, domain.ExecutionVertex{
		ExecWfID: execWfID,
		NodeID:   jobNodeID,
		Status:   domain.VertexUnexecuted,
	}); err != nil {
		return nil, s.failSetup(ctx, executionID, fmt.Errorf("setup: create synthetic execution-vertex: %w", err))
	}

	m, err := s.buildModel(ctx, executionID, execWfID, true)
	if err != nil {
		return nil, s.failSetup(ctx, executionID, err)
	}

	return &Result{
		ExecutionID:  executionID,
		Model:        m,
		WorkflowName: node.Name,
		StartTS:      startTS,
		RootExecWfID: execWfID,
	}, nil
}

// projectVerticesAndEdges inserts one Execution-Vertex row per template
// workflow-vertex (§4.2 step 2), then rewires each template's
// Workflow-Edges to the freshly minted exec-vertex-ids (§4.2 step 3).
// Vertex creation happens first so the from/to rewiring has every id it
// needs, keyed by the template vertex-id CreateExecutionVertex was called
// for. For every workflow-type vertex it also persists the
// vertex->child-exec-wf link (§4.1's set_vertex_runs_workflow, §4.2 step 5)
// so the snapshot LoadSnapshot reads back already carries RunsExecWfID and
// buildModel's Finalize can compute parent-vertex pointers without a second
// pass.
func (s *Setup) projectVerticesAndEdges(ctx context.Context, executionID int64, templates []template, execWfID map[int64]int64) error {
	for _, tpl := range templates {
		ewID := execWfID[tpl.workflowID]
		vertexID := make(map[int64]int64, len(tpl.vertices)) // template vertex-id -> exec-vertex-id
		for _, v := range tpl.vertices {
			id, err := s.execStore.CreateExecutionVertex(ctx, domain.ExecutionVertex{
				ExecWfID: ewID,
				NodeID:   v.NodeID,
				Status:   domain.VertexUnexecuted,
				Layout:   v.Layout,
			})
			if err != nil {
				return fmt.Errorf("setup: project vertex %d: %w", v.ID, err)
			}
			vertexID[v.ID] = id
		}

		for _, v := range tpl.vertices {
			if tpl.nodeTypes[v.ID] != domain.NodeTypeWorkflow {
				continue
			}
			// v.NodeID is the workflow-type node this vertex runs; that
			// node's id doubles as the sub-workflow template id (Open
			// Question decision 2), so execWfID[v.NodeID] is the child
			// exec-wf this vertex expands into.
			childExecWfID, ok := execWfID[v.NodeID]
			if !ok {
				return fmt.Errorf("setup: vertex %d's workflow node %d has no projected exec-wf", v.ID, v.NodeID)
			}
			if err := s.execStore.SetVertexRunsExecWf(ctx, vertexID[v.ID], childExecWfID); err != nil {
				return fmt.Errorf("setup: link vertex %d to child exec-wf %d: %w", v.ID, childExecWfID, err)
			}
		}

		edges := make([]domain.ExecutionEdge, 0, len(tpl.edges))
		for _, e := range tpl.edges {
			fromID, ok := vertexID[e.FromVertex]
			if !ok {
				return fmt.Errorf("setup: edge %d references unknown from-vertex %d", e.ID, e.FromVertex)
			}
			toID, ok := vertexID[e.ToVertex]
			if !ok {
				return fmt.Errorf("setup: edge %d references unknown to-vertex %d", e.ID, e.ToVertex)
			}
			edges = append(edges, domain.ExecutionEdge{
				ExecutionID:  executionID,
				FromVertexID: fromID,
				ToVertexID:   toID,
				Success:      e.Success,
			})
		}
		if len(edges) > 0 {
			if err := s.execStore.CreateExecutionEdges(ctx, edges); err != nil {
				return fmt.Errorf("setup: create execution-edges for workflow %d: %w", tpl.workflowID, err)
			}
		}
	}
	return nil
}

// buildModel loads the execution's snapshot from the store and builds an
// Execution Model from it (§4.2 step 4).
func (s *Setup) buildModel(ctx context.Context, executionID, rootExecWfID int64, finalize bool) (*model.Model, error) {
	snap, err := s.execStore.LoadSnapshot(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("setup: load snapshot for execution %d: %w", executionID, err)
	}

	m := model.New()
	m.SetRootWorkflow(rootExecWfID)
	for _, w := range snap.Workflows {
		m.AddWorkflowMapping(w.ID, w.WorkflowID)
	}
	for _, v := range snap.Vertices {
		node, err := s.nodes.GetNode(ctx, v.NodeID)
		if err != nil {
			return nil, fmt.Errorf("setup: load node %d while building model: %w", v.NodeID, err)
		}
		m.SetVertexAttrs(model.VertexAttrs{
			ID:              v.ID,
			NodeID:          v.NodeID,
			NodeName:        node.Name,
			NodeType:        node.Type,
			BelongsToExecWf: v.ExecWfID,
		})
		if v.RunsExecWfID != nil {
			m.SetVertexRunsWorkflow(v.ID, *v.RunsExecWfID)
		}
	}
	for _, e := range snap.Edges {
		fromExecWf := execWfOf(snap, e.FromVertexID)
		m.AddDependency(fromExecWf, e.FromVertexID, e.ToVertexID, e.Success)
	}

	if finalize {
		if err := m.Finalize(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func execWfOf(snap *repository.Snapshot, vertexID int64) int64 {
	for _, v := range snap.Vertices {
		if v.ID == vertexID {
			return v.ExecWfID
		}
	}
	return 0
}

// Resume reconstructs the Model for a previously-started execution from its
// stored snapshot. The persisted runs_execution_workflow_id links are
// replayed so workflow vertices point at the same child exec-wfs they did
// originally; the rebuilt Model is then finalized like an initial run's,
// which recomputes successor sets, roots and parent pointers from those
// rows (§4.2 step 4, "For resume").
func (s *Setup) Resume(ctx context.Context, executionID int64) (*Result, error) {
	snap, err := s.execStore.LoadSnapshot(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("setup: load snapshot for resume of execution %d: %w", executionID, err)
	}

	m, err := s.buildModel(ctx, executionID, snap.RootExecWfID, true)
	if err != nil {
		return nil, err
	}

	return &Result{
		ExecutionID:  executionID,
		Model:        m,
		StartTS:      snap.Execution.StartTS,
		RootExecWfID: snap.RootExecWfID,
	}, nil
}
