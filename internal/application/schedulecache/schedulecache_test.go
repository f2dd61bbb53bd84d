package schedulecache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowconductor/conductor/internal/application/schedulecache"
	"github.com/flowconductor/conductor/internal/domain"
)

func TestPutAndLookup(t *testing.T) {
	c := schedulecache.New()
	c.PutNode(domain.Node{ID: 1, Name: "n1"})
	c.PutSchedule(domain.Schedule{ID: 10, Cron: "* * * * *"})
	c.PutAssocs([]schedulecache.Assoc{{ID: 100, NodeID: 1, ScheduleID: 10}})

	n, ok := c.Node(1)
	assert.True(t, ok)
	assert.Equal(t, "n1", n.Name)

	nodes := c.NodesForSchedule(10)
	assert.Len(t, nodes, 1)
	assert.Equal(t, int64(1), nodes[0].ID)

	scheds := c.SchedulesForNode(1)
	assert.Len(t, scheds, 1)
	assert.Equal(t, int64(10), scheds[0].ID)
}

func TestRemoveAssocs_PrunesIndexes(t *testing.T) {
	c := schedulecache.New()
	c.PutNode(domain.Node{ID: 1})
	c.PutSchedule(domain.Schedule{ID: 10})
	c.PutAssocs([]schedulecache.Assoc{{ID: 100, NodeID: 1, ScheduleID: 10}})

	c.RemoveAssocs([]int64{100})
	assert.Empty(t, c.NodesForSchedule(10))
	assert.Empty(t, c.SchedulesForNode(1))
}

func TestPutAssocs_ReplacesExistingIndexEntry(t *testing.T) {
	c := schedulecache.New()
	c.PutNode(domain.Node{ID: 1})
	c.PutNode(domain.Node{ID: 2})
	c.PutSchedule(domain.Schedule{ID: 10})
	c.PutSchedule(domain.Schedule{ID: 20})
	c.PutAssocs([]schedulecache.Assoc{{ID: 100, NodeID: 1, ScheduleID: 10}})

	// Re-associate the same assoc id with a different node/schedule.
	c.PutAssocs([]schedulecache.Assoc{{ID: 100, NodeID: 2, ScheduleID: 20}})

	assert.Empty(t, c.NodesForSchedule(10))
	assert.Empty(t, c.SchedulesForNode(1))
	assert.Len(t, c.NodesForSchedule(20), 1)
}

func TestBulkPut(t *testing.T) {
	c := schedulecache.New()
	c.PutNodes([]domain.Node{{ID: 1}, {ID: 2}})
	c.PutSchedules([]domain.Schedule{{ID: 10}, {ID: 20}})

	_, ok1 := c.Node(1)
	_, ok2 := c.Node(2)
	_, ok3 := c.Schedule(10)
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.True(t, ok3)
}
