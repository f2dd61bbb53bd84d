// Package timer implements the Timer Source (§4's component F): an
// external collaborator that emits {trigger-node, node-id} events when a
// cron schedule fires. Grounded on the teacher's
// internal/application/trigger.CronScheduler (robfig/cron/v3 entry
// bookkeeping) and trigger.TriggerState (next-run persistence in Redis),
// generalized from "look up and execute a workflow by trigger id" to
// "emit a node-id onto a channel the controller reads from," since owning
// execution is the Conductor Controller's job here, not the timer's.
package timer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowconductor/conductor/internal/infrastructure/cache"
)

// Fired is one {trigger-node, node-id} event (§4.2's "From timer").
type Fired struct {
	NodeID int64
	At     time.Time
}

// Source wraps a robfig/cron scheduler, keyed by schedule-id, each firing
// on behalf of one or more node-ids.
type Source struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[int64]cron.EntryID // schedule-id -> cron entry
	nodes   map[int64][]int64      // schedule-id -> node-ids currently associated

	cache *cache.RedisCache
	fired chan Fired
}

// New returns a Source with second-precision, UTC-anchored scheduling, the
// way the teacher's CronScheduler is constructed.
func New(rc *cache.RedisCache, bufSize int) *Source {
	return &Source{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		entries: make(map[int64]cron.EntryID),
		nodes:   make(map[int64][]int64),
		cache:   rc,
		fired:   make(chan Fired, bufSize),
	}
}

// Fired returns the channel the controller reads trigger-node events from.
func (s *Source) Fired() <-chan Fired { return s.fired }

// Start starts the underlying cron scheduler's goroutine.
func (s *Source) Start() { s.cron.Start() }

// Stop stops the scheduler, waiting for any in-flight job callback to
// finish.
func (s *Source) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// ScheduleCronJob registers or replaces scheduleID's cron expression,
// firing for every node-id in nodeIDs. This is the timer source's
// schedule_cron_job operation referenced by §4.6's schedule-save handler.
func (s *Source) ScheduleCronJob(scheduleID int64, cronExpr string, nodeIDs []int64) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("timer: invalid cron expression %q: %w", cronExpr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(entryID)
	}
	s.nodes[scheduleID] = nodeIDs

	entryID := s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(scheduleID) }))
	s.entries[scheduleID] = entryID

	// Entry.Next stays zero until the cron run loop starts, so the next run
	// is computed from the parsed schedule directly.
	s.persistNextRun(scheduleID, schedule.Next(time.Now().In(time.UTC)))
	return nil
}

// RemoveSchedule unregisters scheduleID, e.g. when its last association is
// removed.
func (s *Source) RemoveSchedule(scheduleID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, scheduleID)
		delete(s.nodes, scheduleID)
	}
}

func (s *Source) fire(scheduleID int64) {
	s.mu.Lock()
	nodeIDs := append([]int64(nil), s.nodes[scheduleID]...)
	entryID := s.entries[scheduleID]
	s.mu.Unlock()

	now := time.Now()
	for _, nodeID := range nodeIDs {
		s.fired <- Fired{NodeID: nodeID, At: now}
	}

	s.mu.Lock()
	if e := s.cron.Entry(entryID); e.Valid() {
		s.persistNextRun(scheduleID, e.Next)
	}
	s.mu.Unlock()
}

type nextRunState struct {
	ScheduleID int64     `json:"schedule_id"`
	NextRun    time.Time `json:"next_run"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s *Source) persistNextRun(scheduleID int64, next time.Time) {
	if s.cache == nil {
		return
	}
	state := nextRunState{ScheduleID: scheduleID, NextRun: next, UpdatedAt: time.Now()}
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.cache.Set(ctx, nextRunKey(scheduleID), string(data), 0)
}

// NextRun loads the persisted next-execution time for scheduleID, if any.
func (s *Source) NextRun(ctx context.Context, scheduleID int64) (time.Time, bool) {
	if s.cache == nil {
		return time.Time{}, false
	}
	data, err := s.cache.Get(ctx, nextRunKey(scheduleID))
	if err != nil {
		return time.Time{}, false
	}
	var state nextRunState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return time.Time{}, false
	}
	return state.NextRun, true
}

func nextRunKey(scheduleID int64) string {
	return fmt.Sprintf("conductor:schedule:%d:next_run", scheduleID)
}
