package setup_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowconductor/conductor/internal/application/setup"
	"github.com/flowconductor/conductor/internal/domain"
	"github.com/flowconductor/conductor/internal/domain/repository"
)

// fakeStore is an in-memory stand-in for the bun-backed store, exercising
// Setup's Execution/ExecutionWorkflow/ExecutionVertex/ExecutionEdge
// projection and snapshot reload without a real database.
type fakeStore struct {
	nodes     map[int64]domain.Node
	vertices  map[int64][]domain.WorkflowVertex // workflow-id -> template vertices
	edges     map[int64][]domain.WorkflowEdge   // workflow-id -> template edges

	nextID         int64
	executions     map[int64]domain.Execution
	execWorkflows  map[int64]domain.ExecutionWorkflow
	execVertices   map[int64]domain.ExecutionVertex
	execEdges      []domain.ExecutionEdge
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes:         make(map[int64]domain.Node),
		vertices:      make(map[int64][]domain.WorkflowVertex),
		edges:         make(map[int64][]domain.WorkflowEdge),
		executions:    make(map[int64]domain.Execution),
		execWorkflows: make(map[int64]domain.ExecutionWorkflow),
		execVertices:  make(map[int64]domain.ExecutionVertex),
	}
}

func (f *fakeStore) id() int64 { f.nextID++; return f.nextID }

func (f *fakeStore) GetNode(ctx context.Context, nodeID int64) (*domain.Node, error) {
	n, ok := f.nodes[nodeID]
	if !ok {
		return nil, domain.ErrNodeMissing
	}
	return &n, nil
}

func (f *fakeStore) GetJob(ctx context.Context, nodeID int64) (*domain.Job, error) {
	return &domain.Job{NodeID: nodeID, CommandLine: "echo hi"}, nil
}

func (f *fakeStore) GetWorkflowVertices(ctx context.Context, workflowID int64) ([]domain.WorkflowVertex, error) {
	return f.vertices[workflowID], nil
}

func (f *fakeStore) GetWorkflowEdges(ctx context.Context, workflowID int64) ([]domain.WorkflowEdge, error) {
	return f.edges[workflowID], nil
}

func (f *fakeStore) CreateExecution(ctx context.Context, startTS time.Time) (int64, error) {
	id := f.id()
	f.executions[id] = domain.Execution{ID: id, Status: domain.ExecutionStarted, StartTS: startTS}
	return id, nil
}

func (f *fakeStore) CreateExecutionWorkflow(ctx context.Context, executionID, workflowID int64, root bool) (int64, error) {
	id := f.id()
	f.execWorkflows[id] = domain.ExecutionWorkflow{ID: id, ExecutionID: executionID, WorkflowID: workflowID, Root: root}
	return id, nil
}

func (f *fakeStore) CreateExecutionVertex(ctx context.Context, v domain.ExecutionVertex) (int64, error) {
	id := f.id()
	v.ID = id
	f.execVertices[id] = v
	return id, nil
}

func (f *fakeStore) CreateExecutionEdges(ctx context.Context, edges []domain.ExecutionEdge) error {
	f.execEdges = append(f.execEdges, edges...)
	return nil
}

func (f *fakeStore) SetExecutionStarted(ctx context.Context, executionID int64, startTS time.Time) error {
	return nil
}
func (f *fakeStore) SetExecutionFinished(ctx context.Context, executionID int64, status domain.ExecutionStatus, finishTS time.Time, errMsg string) error {
	e := f.executions[executionID]
	e.Status = status
	e.FinishTS = &finishTS
	e.ErrorMsg = errMsg
	f.executions[executionID] = e
	return nil
}
func (f *fakeStore) SetExecWfStarted(ctx context.Context, execWfID int64, startTS time.Time) error {
	return nil
}
func (f *fakeStore) SetExecWfFinished(ctx context.Context, execWfID int64, status domain.ExecutionStatus, finishTS time.Time) error {
	return nil
}
func (f *fakeStore) SetVertexStarted(ctx context.Context, vertexID int64, agentID string, startTS time.Time) error {
	return nil
}
func (f *fakeStore) SetVertexFinished(ctx context.Context, vertexID int64, status domain.VertexStatus, finishTS time.Time) error {
	return nil
}
func (f *fakeStore) SetVertexUnknown(ctx context.Context, vertexIDs []int64) error { return nil }
func (f *fakeStore) SetVertexRunsExecWf(ctx context.Context, vertexID int64, childExecWfID int64) error {
	v := f.execVertices[vertexID]
	v.RunsExecWfID = &childExecWfID
	f.execVertices[vertexID] = v
	return nil
}

func (f *fakeStore) LoadSnapshot(ctx context.Context, executionID int64) (*repository.Snapshot, error) {
	snap := &repository.Snapshot{Execution: f.executions[executionID]}
	for _, w := range f.execWorkflows {
		if w.ExecutionID == executionID {
			snap.Workflows = append(snap.Workflows, w)
			if w.Root {
				snap.RootExecWfID = w.ID
			}
		}
	}
	rootIDs := map[int64]bool{}
	for _, w := range snap.Workflows {
		rootIDs[w.ID] = true
	}
	for _, v := range f.execVertices {
		if rootIDs[v.ExecWfID] {
			snap.Vertices = append(snap.Vertices, v)
		}
	}
	for _, e := range f.execEdges {
		vertexIDs := map[int64]bool{}
		for _, v := range snap.Vertices {
			vertexIDs[v.ID] = true
		}
		if vertexIDs[e.FromVertexID] {
			snap.Edges = append(snap.Edges, e)
		}
	}
	return snap, nil
}

// linearTemplate builds a one-workflow template: A -success-> B.
func linearTemplate(t *testing.T) (*fakeStore, int64) {
	t.Helper()
	s := newFakeStore()
	const workflowID = int64(1)
	const nodeA, nodeB = int64(10), int64(11)
	s.nodes[workflowID] = domain.Node{ID: workflowID, Type: domain.NodeTypeWorkflow, Name: "root"}
	s.nodes[nodeA] = domain.Node{ID: nodeA, Type: domain.NodeTypeJob, Name: "A"}
	s.nodes[nodeB] = domain.Node{ID: nodeB, Type: domain.NodeTypeJob, Name: "B"}

	vA := domain.WorkflowVertex{ID: 100, WorkflowID: workflowID, NodeID: nodeA}
	vB := domain.WorkflowVertex{ID: 101, WorkflowID: workflowID, NodeID: nodeB}
	s.vertices[workflowID] = []domain.WorkflowVertex{vA, vB}
	s.edges[workflowID] = []domain.WorkflowEdge{{ID: 200, WorkflowID: workflowID, FromVertex: vA.ID, ToVertex: vB.ID, Success: true}}
	return s, workflowID
}

func TestInitialRun_Linear(t *testing.T) {
	store, workflowID := linearTemplate(t)
	su := setup.New(store, store, store)

	res, err := su.InitialRun(context.Background(), workflowID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "root", res.WorkflowName)

	roots := res.Model.RootsOf(res.RootExecWfID)
	require.Len(t, roots, 1)
	attrs, ok := res.Model.VertexAttrsOf(roots[0])
	require.True(t, ok)
	assert.Equal(t, "A", attrs.NodeName)

	succ := res.Model.Dependencies(roots[0], true)
	require.Len(t, succ, 1)
	bAttrs, _ := res.Model.VertexAttrsOf(succ[0])
	assert.Equal(t, "B", bAttrs.NodeName)
}

func TestInitialRunJob_Synthetic(t *testing.T) {
	s := newFakeStore()
	const jobNode = int64(50)
	s.nodes[jobNode] = domain.Node{ID: jobNode, Type: domain.NodeTypeJob, Name: "solo"}
	su := setup.New(s, s, s)

	res, err := su.InitialRunJob(context.Background(), jobNode, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "solo", res.WorkflowName)
	roots := res.Model.RootsOf(res.RootExecWfID)
	assert.Len(t, roots, 1)
}

func TestInitialRun_NestedWorkflow(t *testing.T) {
	s := newFakeStore()
	const rootWf, childWf = int64(1), int64(2)
	const vertexX, nodeA = int64(20), int64(21)
	s.nodes[rootWf] = domain.Node{ID: rootWf, Type: domain.NodeTypeWorkflow, Name: "root"}
	s.nodes[childWf] = domain.Node{ID: childWf, Type: domain.NodeTypeWorkflow, Name: "child"}
	s.nodes[nodeA] = domain.Node{ID: nodeA, Type: domain.NodeTypeJob, Name: "A"}

	vX := domain.WorkflowVertex{ID: vertexX, WorkflowID: rootWf, NodeID: childWf}
	s.vertices[rootWf] = []domain.WorkflowVertex{vX}
	vA := domain.WorkflowVertex{ID: 30, WorkflowID: childWf, NodeID: nodeA}
	s.vertices[childWf] = []domain.WorkflowVertex{vA}

	su := setup.New(s, s, s)
	res, err := su.InitialRun(context.Background(), rootWf, time.Now())
	require.NoError(t, err)

	roots := res.Model.RootsOf(res.RootExecWfID)
	require.Len(t, roots, 1)
	xAttrs, _ := res.Model.VertexAttrsOf(roots[0])
	assert.Equal(t, domain.NodeTypeWorkflow, xAttrs.NodeType)
	require.NotNil(t, xAttrs.RunsExecWfID)

	childRoots := res.Model.RootsOf(*xAttrs.RunsExecWfID)
	require.Len(t, childRoots, 1)
	parent, ok := res.Model.ParentVertex(childRoots[0])
	require.True(t, ok)
	assert.Equal(t, roots[0], parent)
}

func TestInitialRun_CyclicTemplateFails(t *testing.T) {
	s := newFakeStore()
	const workflowID = int64(1)
	const nodeA, nodeB = int64(10), int64(11)
	s.nodes[workflowID] = domain.Node{ID: workflowID, Type: domain.NodeTypeWorkflow}
	s.nodes[nodeA] = domain.Node{ID: nodeA, Type: domain.NodeTypeJob}
	s.nodes[nodeB] = domain.Node{ID: nodeB, Type: domain.NodeTypeJob}

	vA := domain.WorkflowVertex{ID: 100, WorkflowID: workflowID, NodeID: nodeA}
	vB := domain.WorkflowVertex{ID: 101, WorkflowID: workflowID, NodeID: nodeB}
	s.vertices[workflowID] = []domain.WorkflowVertex{vA, vB}
	s.edges[workflowID] = []domain.WorkflowEdge{
		{ID: 200, WorkflowID: workflowID, FromVertex: vA.ID, ToVertex: vB.ID, Success: true},
		{ID: 201, WorkflowID: workflowID, FromVertex: vB.ID, ToVertex: vA.ID, Success: true},
	}

	su := setup.New(s, s, s)
	_, err := su.InitialRun(context.Background(), workflowID, time.Now())
	assert.ErrorIs(t, err, domain.ErrCyclicGraph)

	// CreateExecution is the first id() call made by run(), so the
	// execution row created for this failed attempt is id 1.
	exec, ok := s.executions[1]
	require.True(t, ok)
	assert.Equal(t, domain.ExecutionFinishedError, exec.Status)
	assert.NotEmpty(t, exec.ErrorMsg)
}
