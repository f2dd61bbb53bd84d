package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowconductor/conductor/internal/application/model"
	"github.com/flowconductor/conductor/internal/domain"
)

// linearWorkflow builds A -success-> B -success-> C inside one exec-wf,
// mirroring scenario S1 of §8.
func linearWorkflow(t *testing.T) (*model.Model, map[string]int64) {
	t.Helper()
	m := model.New()
	const execWfID = int64(1)
	m.AddWorkflowMapping(execWfID, 10)
	m.SetRootWorkflow(execWfID)

	ids := map[string]int64{"A": 1, "B": 2, "C": 3}
	for name, id := range ids {
		m.SetVertexAttrs(model.VertexAttrs{
			ID: id, NodeID: id, NodeName: name,
			NodeType: domain.NodeTypeJob, BelongsToExecWf: execWfID,
		})
	}
	m.AddDependency(execWfID, ids["A"], ids["B"], true)
	m.AddDependency(execWfID, ids["B"], ids["C"], true)
	return m, ids
}

func TestFinalize_LinearSuccess(t *testing.T) {
	m, ids := linearWorkflow(t)
	require.NoError(t, m.Finalize())

	assert.ElementsMatch(t, []int64{ids["A"]}, m.RootsOf(1))
	assert.ElementsMatch(t, []int64{ids["B"]}, m.Dependencies(ids["A"], true))
	assert.Empty(t, m.Dependencies(ids["A"], false))
	assert.ElementsMatch(t, []int64{ids["C"]}, m.Dependencies(ids["B"], true))
	assert.Empty(t, m.Dependencies(ids["C"], true))
}

func TestFinalize_FailureEdgeNotTakenOnSuccess(t *testing.T) {
	// A -success-> B ; A -failure-> C (scenario S2 of §8)
	m := model.New()
	const execWfID = int64(1)
	m.SetRootWorkflow(execWfID)
	for _, id := range []int64{1, 2, 3} {
		m.SetVertexAttrs(model.VertexAttrs{ID: id, BelongsToExecWf: execWfID, NodeType: domain.NodeTypeJob})
	}
	m.AddDependency(execWfID, 1, 2, true)
	m.AddDependency(execWfID, 1, 3, false)
	require.NoError(t, m.Finalize())

	assert.ElementsMatch(t, []int64{2}, m.Dependencies(1, true))
	assert.ElementsMatch(t, []int64{3}, m.Dependencies(1, false))
}

func TestFinalize_DetectsCycle(t *testing.T) {
	m := model.New()
	const execWfID = int64(1)
	for _, id := range []int64{1, 2, 3} {
		m.SetVertexAttrs(model.VertexAttrs{ID: id, BelongsToExecWf: execWfID, NodeType: domain.NodeTypeJob})
	}
	m.AddDependency(execWfID, 1, 2, true)
	m.AddDependency(execWfID, 2, 3, true)
	m.AddDependency(execWfID, 3, 1, true)

	err := m.Finalize()
	assert.ErrorIs(t, err, domain.ErrCyclicGraph)
}

func TestParentVertex_NestedWorkflow(t *testing.T) {
	// Root exec-wf R has vertex X (workflow-type) whose child exec-wf is W'.
	// W' contains vertex A. Scenario S4 of §8.
	m := model.New()
	const (
		rootExecWf  = int64(100)
		childExecWf = int64(200)
		vertexX     = int64(1)
		vertexA     = int64(2)
	)
	m.SetRootWorkflow(rootExecWf)
	m.SetVertexAttrs(model.VertexAttrs{ID: vertexX, BelongsToExecWf: rootExecWf, NodeType: domain.NodeTypeWorkflow})
	m.SetVertexAttrs(model.VertexAttrs{ID: vertexA, BelongsToExecWf: childExecWf, NodeType: domain.NodeTypeJob})
	m.SetVertexRunsWorkflow(vertexX, childExecWf)

	require.NoError(t, m.Finalize())

	parent, ok := m.ParentVertex(vertexA)
	require.True(t, ok)
	assert.Equal(t, vertexX, parent)

	_, ok = m.ParentVertex(vertexX)
	assert.False(t, ok, "root-exec-wf vertex has no parent")

	assert.ElementsMatch(t, []int64{vertexX}, m.RootsOf(rootExecWf))
	assert.ElementsMatch(t, []int64{vertexA}, m.RootsOf(childExecWf))
}

func TestSameExecWf(t *testing.T) {
	m, ids := linearWorkflow(t)
	require.NoError(t, m.Finalize())

	execWfID, err := m.SameExecWf([]int64{ids["A"], ids["B"]})
	require.NoError(t, err)
	assert.Equal(t, int64(1), execWfID)

	mixedModel := model.New()
	mixedModel.SetVertexAttrs(model.VertexAttrs{ID: 1, BelongsToExecWf: 1})
	mixedModel.SetVertexAttrs(model.VertexAttrs{ID: 2, BelongsToExecWf: 2})
	require.NoError(t, mixedModel.Finalize())
	_, err = mixedModel.SameExecWf([]int64{1, 2})
	assert.ErrorIs(t, err, domain.ErrMixedExecWf)
}
