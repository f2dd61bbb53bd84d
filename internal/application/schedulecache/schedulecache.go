// Package schedulecache implements the Schedule Cache (§4.4): an in-memory
// index of nodes, schedules and their associations, kept warm so the
// controller never blocks on the persistent store while routing a
// trigger_node event. Grounded on the teacher's ConditionCache
// (internal/application/engine/condition_cache.go) map+mutex shape,
// generalized from an LRU of compiled expressions to an un-evicted index
// of domain records, since schedule/node cardinality here is small enough
// that the controller owns the whole set rather than a bounded subset.
package schedulecache

import "github.com/flowconductor/conductor/internal/domain"

// Assoc is a node-schedule association: node-schedule-id -> (node-id,
// schedule-id).
type Assoc struct {
	ID         int64
	NodeID     int64
	ScheduleID int64
}

// Cache is the single-writer Schedule Cache. Only the Conductor Controller
// mutates or reads it (§4.4: "All operations are single-writer").
type Cache struct {
	nodes     map[int64]domain.Node
	schedules map[int64]domain.Schedule
	assocs    map[int64]Assoc

	byNode     map[int64]map[int64]struct{} // node-id -> assoc-id set
	bySchedule map[int64]map[int64]struct{} // schedule-id -> assoc-id set
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		nodes:      make(map[int64]domain.Node),
		schedules:  make(map[int64]domain.Schedule),
		assocs:     make(map[int64]Assoc),
		byNode:     make(map[int64]map[int64]struct{}),
		bySchedule: make(map[int64]map[int64]struct{}),
	}
}

// PutNode inserts or replaces one node.
func (c *Cache) PutNode(n domain.Node) {
	c.nodes[n.ID] = n
}

// PutNodes bulk-inserts nodes, e.g. on cache warm-up at startup.
func (c *Cache) PutNodes(nodes []domain.Node) {
	for _, n := range nodes {
		c.nodes[n.ID] = n
	}
}

// PutSchedule inserts or replaces one schedule.
func (c *Cache) PutSchedule(s domain.Schedule) {
	c.schedules[s.ID] = s
}

// PutSchedules bulk-inserts schedules.
func (c *Cache) PutSchedules(schedules []domain.Schedule) {
	for _, s := range schedules {
		c.schedules[s.ID] = s
	}
}

// PutAssocs inserts or replaces node-schedule associations, maintaining the
// by-node and by-schedule indexes.
func (c *Cache) PutAssocs(assocs []Assoc) {
	for _, a := range assocs {
		c.removeAssocFromIndexes(a.ID)
		c.assocs[a.ID] = a
		c.indexAssoc(a)
	}
}

// RemoveAssocs deletes associations by id, pruning the indexes.
func (c *Cache) RemoveAssocs(ids []int64) {
	for _, id := range ids {
		c.removeAssocFromIndexes(id)
		delete(c.assocs, id)
	}
}

func (c *Cache) indexAssoc(a Assoc) {
	if c.byNode[a.NodeID] == nil {
		c.byNode[a.NodeID] = make(map[int64]struct{})
	}
	c.byNode[a.NodeID][a.ID] = struct{}{}

	if c.bySchedule[a.ScheduleID] == nil {
		c.bySchedule[a.ScheduleID] = make(map[int64]struct{})
	}
	c.bySchedule[a.ScheduleID][a.ID] = struct{}{}
}

func (c *Cache) removeAssocFromIndexes(id int64) {
	old, ok := c.assocs[id]
	if !ok {
		return
	}
	delete(c.byNode[old.NodeID], id)
	delete(c.bySchedule[old.ScheduleID], id)
}

// Node looks up one node by id.
func (c *Cache) Node(id int64) (domain.Node, bool) {
	n, ok := c.nodes[id]
	return n, ok
}

// Schedule looks up one schedule by id.
func (c *Cache) Schedule(id int64) (domain.Schedule, bool) {
	s, ok := c.schedules[id]
	return s, ok
}

// NodesForSchedule returns the nodes currently associated with scheduleID.
func (c *Cache) NodesForSchedule(scheduleID int64) []domain.Node {
	out := make([]domain.Node, 0, len(c.bySchedule[scheduleID]))
	for assocID := range c.bySchedule[scheduleID] {
		a := c.assocs[assocID]
		if n, ok := c.nodes[a.NodeID]; ok {
			out = append(out, n)
		}
	}
	return out
}

// AssocIDsForNode returns the assoc-ids currently associated with nodeID.
func (c *Cache) AssocIDsForNode(nodeID int64) []int64 {
	out := make([]int64, 0, len(c.byNode[nodeID]))
	for id := range c.byNode[nodeID] {
		out = append(out, id)
	}
	return out
}

// SchedulesForNode returns the schedules currently associated with nodeID.
func (c *Cache) SchedulesForNode(nodeID int64) []domain.Schedule {
	out := make([]domain.Schedule, 0, len(c.byNode[nodeID]))
	for assocID := range c.byNode[nodeID] {
		a := c.assocs[assocID]
		if s, ok := c.schedules[a.ScheduleID]; ok {
			out = append(out, s)
		}
	}
	return out
}
