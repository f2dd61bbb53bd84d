// Package watchdog implements the Dead-Agent Watchdog (§4.8). Per §5's
// concurrency model, the watchdog itself is only a ticker: the actual
// tracker/store mutation runs synchronously on the Conductor Controller's
// own goroutine (Sweep is called from the controller's select loop when
// the ticker fires), so no second goroutine ever touches the Agent
// Tracker. Grounded on the teacher's use of a plain time.Ticker for
// periodic maintenance (trigger.CronScheduler's cron ticking) generalized
// from "fire a cron job" to "fire a liveness sweep."
package watchdog

import (
	"context"
	"time"

	"github.com/flowconductor/conductor/internal/application/notifier"
	"github.com/flowconductor/conductor/internal/application/status"
	"github.com/flowconductor/conductor/internal/application/tracker"
	"github.com/flowconductor/conductor/internal/domain/repository"
	"github.com/flowconductor/conductor/internal/infrastructure/logger"
)

// Ticker fires Sweep at a fixed interval. Its channel is read by the
// controller loop; Sweep is invoked from there, not from Ticker's own
// goroutine.
type Ticker struct {
	ticker *time.Ticker
}

// NewTicker starts ticking immediately at the given interval.
func NewTicker(interval time.Duration) *Ticker {
	return &Ticker{ticker: time.NewTicker(interval)}
}

// C returns the tick channel.
func (t *Ticker) C() <-chan time.Time { return t.ticker.C }

// Stop stops the ticker.
func (t *Ticker) Stop() { t.ticker.Stop() }

// Sweep runs one watchdog pass: find agents dead since threshold, mark
// their in-flight vertices unknown in the store, drop the agents from the
// tracker, and notify operators.
func Sweep(
	ctx context.Context,
	tr *tracker.Tracker,
	execStore repository.ExecutionStore,
	notif *notifier.Notifier,
	pub *status.Publisher,
	log *logger.Logger,
	now time.Time,
	deadAfter time.Duration,
) {
	threshold := now.Add(-deadAfter)
	dead := tr.DeadSince(threshold)
	if len(dead) == 0 {
		return
	}

	deadAgents := make([]notifier.DeadAgent, 0, len(dead))
	deadIDs := make([]string, 0, len(dead))
	for agentID, vertexIDs := range dead {
		if len(vertexIDs) > 0 {
			if err := execStore.SetVertexUnknown(ctx, vertexIDs); err != nil {
				log.Error("watchdog: failed to mark vertices unknown", "agent_id", agentID, "err", err)
			}
			for _, v := range vertexIDs {
				pub.Emit(status.Event{Type: status.EventVertexUnknown, ExecVertexID: v, AgentID: agentID})
			}
		}
		deadAgents = append(deadAgents, notifier.DeadAgent{AgentID: agentID, Vertices: vertexIDs})
		deadIDs = append(deadIDs, agentID)
		pub.Emit(status.Event{Type: status.EventAgentDead, AgentID: agentID})
	}

	tr.RemoveAgents(deadIDs)

	if err := notif.NotifyDeadAgents(deadAgents); err != nil {
		log.Error("watchdog: failed to notify operators", "err", err)
	}
}
