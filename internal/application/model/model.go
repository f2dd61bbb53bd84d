// Package model implements the Execution Model (§4.1): a builder-then-
// immutable container for a single execution's graph. It is grounded on
// the teacher's engine.ExecutionState / engine's DAG-building helpers
// (internal/application/engine/types.go, dag_executor.go buildDAG), adapted
// from "one in-process DAG of nodes" to "a tree of exec-workflows, each
// with its own internal DAG, linked by workflow-vertices."
package model

import (
	"fmt"
	"sync"

	"github.com/flowconductor/conductor/internal/domain"
)

// VertexAttrs are the immutable-after-finalize attributes of one vertex,
// per §3's Execution Model description.
type VertexAttrs struct {
	ID              int64
	NodeID          int64
	NodeName        string
	NodeType        domain.NodeType
	BelongsToExecWf int64
	// RunsExecWfID is non-nil only for workflow-type vertices.
	RunsExecWfID *int64
}

// Model is the in-memory image of one Execution. It is built by a single
// writer (Execution Setup) via the Add* methods, frozen by Finalize, and is
// then safe for concurrent reads.
type Model struct {
	mu sync.RWMutex

	built bool

	rootExecWfID int64
	execWfToWf   map[int64]int64 // exec-wf-id -> workflow-id (template traceability)
	vertexAttrs  map[int64]VertexAttrs

	// edges[execWfID] holds the raw dependency edges of that exec-wf's
	// internal graph, populated before Finalize.
	edges map[int64][]rawEdge

	// computed by Finalize:
	onSuccess map[int64]map[int64]struct{} // vertex-id -> successor vertex ids (success edges)
	onFailure map[int64]map[int64]struct{} // vertex-id -> successor vertex ids (failure edges)
	parentOf  map[int64]int64             // vertex-id -> containing workflow-vertex id (absent = root)
	roots     map[int64][]int64           // exec-wf-id -> vertex ids with no predecessor in that exec-wf
}

type rawEdge struct {
	execWfID int64
	from, to int64
	success  bool
}

// New returns an empty, mutable Model.
func New() *Model {
	return &Model{
		execWfToWf:  make(map[int64]int64),
		vertexAttrs: make(map[int64]VertexAttrs),
		edges:       make(map[int64][]rawEdge),
	}
}

func (m *Model) assertMutable() {
	if m.built {
		panic("model: mutation after finalize")
	}
}

// AddWorkflowMapping records the workflow-id backing one exec-wf-id.
func (m *Model) AddWorkflowMapping(execWfID, workflowID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assertMutable()
	m.execWfToWf[execWfID] = workflowID
}

// SetRootWorkflow records the exec-wf-id of the root of this execution.
func (m *Model) SetRootWorkflow(execWfID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assertMutable()
	m.rootExecWfID = execWfID
}

// SetVertexAttrs records the static attributes of one vertex.
func (m *Model) SetVertexAttrs(a VertexAttrs) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assertMutable()
	m.vertexAttrs[a.ID] = a
}

// SetVertexRunsWorkflow links a workflow-type vertex to the child exec-wf
// it expands into.
func (m *Model) SetVertexRunsWorkflow(vertexID, childExecWfID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assertMutable()
	a, ok := m.vertexAttrs[vertexID]
	if !ok {
		a = VertexAttrs{ID: vertexID}
	}
	id := childExecWfID
	a.RunsExecWfID = &id
	m.vertexAttrs[vertexID] = a
}

// AddDependency records one edge within exec-wf's internal graph.
func (m *Model) AddDependency(execWfID, from, to int64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assertMutable()
	m.edges[execWfID] = append(m.edges[execWfID], rawEdge{execWfID: execWfID, from: from, to: to, success: success})
}

// Finalize computes, per vertex, its on-success/on-failure successor sets
// and parent-vertex, plus per-exec-wf root sets. It fails with
// domain.ErrCyclicGraph if any exec-wf's internal graph has a cycle.
func (m *Model) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.built {
		return nil
	}

	m.onSuccess = make(map[int64]map[int64]struct{})
	m.onFailure = make(map[int64]map[int64]struct{})
	m.parentOf = make(map[int64]int64)
	m.roots = make(map[int64][]int64)

	// Build successor sets and detect cycles per exec-wf.
	for execWfID, edgeList := range m.edges {
		hasIncoming := make(map[int64]bool)
		adj := make(map[int64][]int64)
		for _, e := range edgeList {
			adj[e.from] = append(adj[e.from], e.to)
			hasIncoming[e.to] = true

			set := m.onSuccess
			if !e.success {
				set = m.onFailure
			}
			if set[e.from] == nil {
				set[e.from] = make(map[int64]struct{})
			}
			set[e.from][e.to] = struct{}{}
		}

		if err := detectCycle(adj); err != nil {
			return fmt.Errorf("exec-wf %d: %w", execWfID, domain.ErrCyclicGraph)
		}

		for vertexID, a := range m.vertexAttrs {
			if a.BelongsToExecWf != execWfID {
				continue
			}
			if !hasIncoming[vertexID] {
				m.roots[execWfID] = append(m.roots[execWfID], vertexID)
			}
		}
	}

	// An exec-wf with zero edges still needs its root set populated (every
	// vertex in it is a root).
	for vertexID, a := range m.vertexAttrs {
		if _, seen := m.edges[a.BelongsToExecWf]; !seen {
			m.roots[a.BelongsToExecWf] = append(m.roots[a.BelongsToExecWf], vertexID)
		}
	}

	// parent-vertex: the workflow vertex whose RunsExecWfID equals this
	// vertex's own exec-wf.
	childExecWfToParent := make(map[int64]int64)
	for vertexID, a := range m.vertexAttrs {
		if a.RunsExecWfID != nil {
			childExecWfToParent[*a.RunsExecWfID] = vertexID
		}
	}
	for vertexID, a := range m.vertexAttrs {
		if parent, ok := childExecWfToParent[a.BelongsToExecWf]; ok {
			m.parentOf[vertexID] = parent
		}
	}

	m.built = true
	return nil
}

func detectCycle(adj map[int64][]int64) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int64]int)

	var visit func(int64) error
	visit = func(v int64) error {
		color[v] = gray
		for _, next := range adj[v] {
			switch color[next] {
			case gray:
				return domain.ErrCyclicGraph
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[v] = black
		return nil
	}

	for v := range adj {
		if color[v] == white {
			if err := visit(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Vertices returns every vertex id known to the Model.
func (m *Model) Vertices() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int64, 0, len(m.vertexAttrs))
	for id := range m.vertexAttrs {
		out = append(out, id)
	}
	return out
}

// VertexAttrsOf returns the static attributes of one vertex.
func (m *Model) VertexAttrsOf(vertexID int64) (VertexAttrs, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.vertexAttrs[vertexID]
	return a, ok
}

// Dependencies returns the successor vertex ids for vertex on the given
// outcome (§4.1 "dependencies(vertex_id, success?) → set").
func (m *Model) Dependencies(vertexID int64, success bool) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.onSuccess
	if !success {
		set = m.onFailure
	}
	out := make([]int64, 0, len(set[vertexID]))
	for id := range set[vertexID] {
		out = append(out, id)
	}
	return out
}

// RootsOf returns the roots of one exec-wf's internal graph (vertices with
// no incoming edges within that exec-wf).
func (m *Model) RootsOf(execWfID int64) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int64, len(m.roots[execWfID]))
	copy(out, m.roots[execWfID])
	return out
}

// RootWorkflow returns the root exec-wf-id of this execution.
func (m *Model) RootWorkflow() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rootExecWfID
}

// ParentVertex returns the workflow-vertex that contains vertexID's
// exec-wf, if any.
func (m *Model) ParentVertex(vertexID int64) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parentOf[vertexID]
	return p, ok
}

// WorkflowIDOf returns the template workflow-id backing an exec-wf-id.
func (m *Model) WorkflowIDOf(execWfID int64) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.execWfToWf[execWfID]
	return id, ok
}

// SameExecWf reports whether every vertex in ids belongs to the same
// exec-wf — the safety invariant run_nodes relies on (§4.6).
func (m *Model) SameExecWf(ids []int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var execWfID int64
	set := false
	for _, id := range ids {
		a, ok := m.vertexAttrs[id]
		if !ok {
			return 0, fmt.Errorf("%w: %d", domain.ErrVertexNotFound, id)
		}
		if !set {
			execWfID = a.BelongsToExecWf
			set = true
			continue
		}
		if a.BelongsToExecWf != execWfID {
			return 0, domain.ErrMixedExecWf
		}
	}
	return execWfID, nil
}
