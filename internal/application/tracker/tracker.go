// Package tracker implements the Agent Tracker (§4.3): a pure in-memory
// registry of connected agents and the vertices currently assigned to each,
// grounded on the teacher's mutex+map cache style
// (internal/application/engine/condition_cache.go), generalized from an
// LRU of compiled expressions to a registry of agent job assignments.
package tracker

import (
	"math/rand"
	"time"
)

// Agent is the tracker's view of one connected agent.
type Agent struct {
	ID            string
	RegisteredAt  time.Time
	LastHeartbeat time.Time
	Jobs          map[int64]struct{} // exec_vertex_id -> struct{}
}

// Job describes the fields pick_agent needs to know about a candidate job.
type Job struct {
	Affinity          []string
	MaxConcurrentAgent int // 0 = unlimited
}

// Tracker is the single-writer Agent Tracker. The Conductor Controller is
// its only caller; it is not safe for concurrent use from multiple
// goroutines, matching the single-writer event-loop model (§4.6).
type Tracker struct {
	agents map[string]*Agent
	rand   *rand.Rand
	// deterministic disables random tie-break, for reproducible tests.
	deterministic bool
}

// New returns an empty Tracker. Pass deterministic=true to make pick_agent's
// tie-break stable (lowest agent id) instead of random, for tests.
func New(deterministic bool) *Tracker {
	return &Tracker{
		agents:        make(map[string]*Agent),
		rand:          rand.New(rand.NewSource(1)),
		deterministic: deterministic,
	}
}

// AddAgent registers a newly-connected agent.
func (t *Tracker) AddAgent(id string, ts time.Time) {
	t.agents[id] = &Agent{
		ID:            id,
		RegisteredAt:  ts,
		LastHeartbeat: ts,
		Jobs:          make(map[int64]struct{}),
	}
}

// RemoveAgent drops an agent from the registry.
func (t *Tracker) RemoveAgent(id string) {
	delete(t.agents, id)
}

// RemoveAgents drops a batch of agents, e.g. those found dead by the
// watchdog (§4.8).
func (t *Tracker) RemoveAgents(ids []string) {
	for _, id := range ids {
		delete(t.agents, id)
	}
}

// Heartbeat updates an agent's last-seen timestamp.
func (t *Tracker) Heartbeat(id string, ts time.Time) {
	if a, ok := t.agents[id]; ok {
		a.LastHeartbeat = ts
	}
}

// AssignJob records exec_vertex_id as in-flight on agent_id.
func (t *Tracker) AssignJob(agentID string, execVertexID int64, ts time.Time) {
	a, ok := t.agents[agentID]
	if !ok {
		return
	}
	a.Jobs[execVertexID] = struct{}{}
	a.LastHeartbeat = ts
}

// ClearJob removes exec_vertex_id from an agent's in-flight set, e.g. on
// job-finished.
func (t *Tracker) ClearJob(agentID string, execVertexID int64) {
	if a, ok := t.agents[agentID]; ok {
		delete(a.Jobs, execVertexID)
	}
}

// Agents returns the ids of every registered agent.
func (t *Tracker) Agents() []string {
	out := make([]string, 0, len(t.agents))
	for id := range t.agents {
		out = append(out, id)
	}
	return out
}

// AgentExists reports whether id is currently registered.
func (t *Tracker) AgentExists(id string) bool {
	_, ok := t.agents[id]
	return ok
}

// DeadSince returns, for every agent whose last heartbeat is at or before
// threshold, the set of exec_vertex_ids still assigned to it.
func (t *Tracker) DeadSince(threshold time.Time) map[string][]int64 {
	out := make(map[string][]int64)
	for id, a := range t.agents {
		if !a.LastHeartbeat.After(threshold) {
			jobs := make([]int64, 0, len(a.Jobs))
			for v := range a.Jobs {
				jobs = append(jobs, v)
			}
			out[id] = jobs
		}
	}
	return out
}

// PickAgent selects the best candidate agent for job per §4.3: affinity
// filter, then max-concurrent-per-agent filter, then fewest in-flight with
// a tie-break (random, or deterministic-lowest-id in test mode). Returns
// ("", false) if no candidate survives filtering.
func (t *Tracker) PickAgent(job Job) (string, bool) {
	candidates := make([]*Agent, 0, len(t.agents))
	for _, a := range t.agents {
		if len(job.Affinity) > 0 && !hasAnyTag(a.ID, job.Affinity) {
			continue
		}
		if job.MaxConcurrentAgent > 0 && len(a.Jobs) >= job.MaxConcurrentAgent {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return "", false
	}

	minJobs := len(candidates[0].Jobs)
	for _, a := range candidates[1:] {
		if len(a.Jobs) < minJobs {
			minJobs = len(a.Jobs)
		}
	}
	tied := make([]*Agent, 0, len(candidates))
	for _, a := range candidates {
		if len(a.Jobs) == minJobs {
			tied = append(tied, a)
		}
	}

	if t.deterministic {
		best := tied[0]
		for _, a := range tied[1:] {
			if a.ID < best.ID {
				best = a
			}
		}
		return best.ID, true
	}
	return tied[t.rand.Intn(len(tied))].ID, true
}

// hasAnyTag reports whether agentID is named in affinity, which is a set
// of agent identifiers per §3's Job definition.
func hasAnyTag(agentID string, affinity []string) bool {
	for _, id := range affinity {
		if agentID == id {
			return true
		}
	}
	return false
}
