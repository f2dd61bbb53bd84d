// Package controller implements the Conductor Controller (§4.6): the
// single logical event loop that owns every piece of mutable execution
// state (exec_infos, the Agent Tracker, the Schedule Cache) and serializes
// every state transition onto one goroutine. Grounded on the teacher's
// websocket.Hub event loop (internal/infrastructure/websocket/hub.go,
// Run()'s `for { select {...} }` over register/unregister/broadcast
// channels), generalized from "fan out WSEvents to subscribed clients" to
// "dispatch agent protocol messages, timer fires, watchdog sweeps, and
// external commands against a DAG execution model," per §5's single-writer
// concurrency model.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/flowconductor/conductor/internal/application/model"
	"github.com/flowconductor/conductor/internal/application/notifier"
	"github.com/flowconductor/conductor/internal/application/protocol"
	"github.com/flowconductor/conductor/internal/application/schedulecache"
	"github.com/flowconductor/conductor/internal/application/setup"
	"github.com/flowconductor/conductor/internal/application/status"
	"github.com/flowconductor/conductor/internal/application/tracker"
	"github.com/flowconductor/conductor/internal/application/watchdog"
	"github.com/flowconductor/conductor/internal/domain"
	"github.com/flowconductor/conductor/internal/domain/repository"
	"github.com/flowconductor/conductor/internal/infrastructure/logger"
	"github.com/flowconductor/conductor/internal/infrastructure/timer"
	"github.com/flowconductor/conductor/internal/infrastructure/transport"
)

const (
	commandBufSize = 64
	cacheEventBuf  = 64

	storeRetryInterval = 100 * time.Millisecond
	storeRetryAttempts = 3
)

// withStoreRetry retries a store write with bounded backoff (§7's
// "transient infrastructure" handling): the first attempt plus up to three
// retries spaced 100ms apart, before the caller gives up and aborts the handler that invoked
// it rather than let exec_infos diverge from what made it to the store.
// Grounded on the teacher's exported-but-unused backoff dependency,
// following the retry_mapper pattern of pairing ConstantBackOff with
// WithMaxRetries found elsewhere in the example pack.
func withStoreRetry(ctx context.Context, fn func() error) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(storeRetryInterval), storeRetryAttempts),
		ctx,
	)
	return backoff.Retry(fn, b)
}

// publisher is the narrow slice of transport.Hub the controller dispatches
// outbound envelopes through.
type publisher interface {
	Publish(topic protocol.Topic, env protocol.Envelope)
}

// scheduler is the narrow slice of timer.Source the schedule-cache
// handlers mutate; kept as an interface so the controller can be tested
// without a real cron/Redis-backed Source.
type scheduler interface {
	ScheduleCronJob(scheduleID int64, cronExpr string, nodeIDs []int64) error
	RemoveSchedule(scheduleID int64)
}

// execInfo is the controller's per-execution runtime record (§4.6
// "exec_infos"), holding everything that cannot be reconstructed from the
// Model alone: in-flight job counts, which exec-wfs have already failed,
// and the idempotency guards §4.6 requires for repeat deliveries.
type execInfo struct {
	model      *model.Model
	rootWfName string
	startTS    time.Time

	runningJobs   map[int64]int  // exec-wf-id -> in-flight job count
	failedExecWfs map[int64]bool // exec-wf-id -> failed

	startedVertices  map[int64]struct{} // run-job-ack idempotency guard
	finishedVertices map[int64]struct{} // job-finished idempotency guard
	vertexAgent      map[int64]string   // exec-vertex-id -> holding agent, for abort/kill
}

func newExecInfo(m *model.Model, rootWfName string, startTS time.Time) *execInfo {
	return &execInfo{
		model:            m,
		rootWfName:       rootWfName,
		startTS:          startTS,
		runningJobs:      make(map[int64]int),
		failedExecWfs:    make(map[int64]bool),
		startedVertices:  make(map[int64]struct{}),
		finishedVertices: make(map[int64]struct{}),
		vertexAgent:      make(map[int64]string),
	}
}

type commandKind int

const (
	cmdTriggerNode commandKind = iota
	cmdAbortExecution
	cmdResumeExecution
)

type command struct {
	kind         commandKind
	nodeID       int64
	executionID  int64
	execVertexID int64
	reply        chan error
}

type cacheEventKind int

const (
	cacheNodeSave cacheEventKind = iota
	cacheScheduleSave
	cacheScheduleAssoc
)

type cacheEvent struct {
	kind       cacheEventKind
	nodeID     int64
	scheduleID int64
}

// Controller is the Conductor Controller. Every exported method except Run
// is safe to call from any goroutine: they enqueue work for the loop
// rather than touching state directly.
type Controller struct {
	nodes     repository.NodeStore
	schedules repository.ScheduleStore
	execStore repository.ExecutionStore
	setup     *setup.Setup

	tracker *tracker.Tracker
	cache   *schedulecache.Cache

	hub publisher
	sub <-chan transport.Inbound

	timerFired <-chan timer.Fired
	sched      scheduler
	pub        *status.Publisher
	notif      *notifier.Notifier

	watchdogTicker *watchdog.Ticker
	heartbeat      *time.Ticker
	deadAfter      time.Duration

	logger *logger.Logger

	execInfos map[int64]*execInfo

	commands    chan command
	cacheEvents chan cacheEvent
}

// Deps bundles every collaborator the controller dispatches onto.
type Deps struct {
	Nodes     repository.NodeStore
	Schedules repository.ScheduleStore
	ExecStore repository.ExecutionStore
	Setup     *setup.Setup

	Tracker *tracker.Tracker
	Cache   *schedulecache.Cache

	Hub publisher
	Sub <-chan transport.Inbound

	TimerFired <-chan timer.Fired
	Sched      scheduler
	Pub        *status.Publisher
	Notif      *notifier.Notifier

	HeartbeatInterval  time.Duration
	HeartbeatDeadAfter time.Duration

	Logger *logger.Logger
}

// New wires a Controller from its dependencies. Call Run in its own
// goroutine once constructed.
func New(d Deps) *Controller {
	return &Controller{
		nodes:          d.Nodes,
		schedules:      d.Schedules,
		execStore:      d.ExecStore,
		setup:          d.Setup,
		tracker:        d.Tracker,
		cache:          d.Cache,
		hub:            d.Hub,
		sub:            d.Sub,
		timerFired:     d.TimerFired,
		sched:          d.Sched,
		pub:            d.Pub,
		notif:          d.Notif,
		watchdogTicker: watchdog.NewTicker(d.HeartbeatDeadAfter),
		heartbeat:      time.NewTicker(d.HeartbeatInterval),
		deadAfter:      d.HeartbeatDeadAfter,
		logger:         d.Logger,
		execInfos:      make(map[int64]*execInfo),
		commands:       make(chan command, commandBufSize),
		cacheEvents:    make(chan cacheEvent, cacheEventBuf),
	}
}

// Run is the controller's single event loop (§5's "logical single-writer").
// Every other goroutine in the process (subscriber reader, timer consumer,
// watchdog/heartbeat tickers, external command callers) only ever reaches
// execution state through the channels this loop selects on.
func (c *Controller) Run(ctx context.Context) {
	defer c.watchdogTicker.Stop()
	defer c.heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case in := <-c.sub:
			c.handleInbound(ctx, in)

		case f := <-c.timerFired:
			if err := c.triggerNode(ctx, f.NodeID); err != nil {
				c.logger.Error("controller: timer-triggered run failed", "node_id", f.NodeID, "err", err)
			}

		case <-c.watchdogTicker.C():
			watchdog.Sweep(ctx, c.tracker, c.execStore, c.notif, c.pub, c.logger, time.Now(), c.deadAfter)

		case <-c.heartbeat.C:
			c.hub.Publish(protocol.TopicBroadcast, protocol.Envelope{Msg: protocol.KindHeartbeat})

		case cmd := <-c.commands:
			c.handleCommand(ctx, cmd)

		case ev := <-c.cacheEvents:
			c.handleCacheEvent(ctx, ev)
		}
	}
}

func (c *Controller) handleCommand(ctx context.Context, cmd command) {
	var err error
	switch cmd.kind {
	case cmdTriggerNode:
		err = c.triggerNode(ctx, cmd.nodeID)
	case cmdAbortExecution:
		err = c.abortExecution(ctx, cmd.executionID)
	case cmdResumeExecution:
		err = c.resumeExecution(ctx, cmd.executionID, cmd.execVertexID)
	}
	if cmd.reply != nil {
		cmd.reply <- err
	}
}

func (c *Controller) sendCommand(cmd command) error {
	cmd.reply = make(chan error, 1)
	c.commands <- cmd
	return <-cmd.reply
}

// TriggerNode runs trigger_node(node_id) (§4.6). The out-of-core CRUD/UI
// layer and the Timer Source are the two expected callers.
func (c *Controller) TriggerNode(nodeID int64) error {
	return c.sendCommand(command{kind: cmdTriggerNode, nodeID: nodeID})
}

// AbortExecution runs abort_execution(exec_id) (§4.6).
func (c *Controller) AbortExecution(executionID int64) error {
	return c.sendCommand(command{kind: cmdAbortExecution, executionID: executionID})
}

// ResumeExecution runs resume_execution(exec_id, exec_vertex_id) (§4.6).
func (c *Controller) ResumeExecution(executionID, execVertexID int64) error {
	return c.sendCommand(command{kind: cmdResumeExecution, executionID: executionID, execVertexID: execVertexID})
}

// NodeSave enqueues the node-save cache-update handler (§4.6).
func (c *Controller) NodeSave(nodeID int64) { c.cacheEvents <- cacheEvent{kind: cacheNodeSave, nodeID: nodeID} }

// ScheduleSave enqueues the schedule-save cache-update handler (§4.6).
func (c *Controller) ScheduleSave(scheduleID int64) {
	c.cacheEvents <- cacheEvent{kind: cacheScheduleSave, scheduleID: scheduleID}
}

// ScheduleAssoc enqueues the schedule-assoc cache-update handler (§4.6).
func (c *Controller) ScheduleAssoc(nodeID int64) {
	c.cacheEvents <- cacheEvent{kind: cacheScheduleAssoc, nodeID: nodeID}
}

func (c *Controller) handleInbound(ctx context.Context, in transport.Inbound) {
	env := in.Envelope
	switch env.Msg {
	case protocol.KindAgentRegistering:
		c.handleAgentRegistering(in.AgentID)
	case protocol.KindHeartbeatAck:
		c.handleHeartbeatAck(in.AgentID)
	case protocol.KindRunJobAck:
		c.handleRunJobAck(ctx, env)
	case protocol.KindJobFinished:
		c.handleJobFinished(ctx, env)
	case protocol.KindPing:
		c.hub.Publish(protocol.AgentTopic(in.AgentID), protocol.Envelope{Msg: protocol.KindPong})
	default:
		c.logger.Warn("controller: unhandled inbound message", "msg", env.Msg, "agent_id", in.AgentID)
	}
}

func (c *Controller) handleAgentRegistering(agentID string) {
	if agentID == "" {
		return
	}
	now := time.Now()
	if c.tracker.AgentExists(agentID) {
		c.tracker.Heartbeat(agentID, now)
	} else {
		c.tracker.AddAgent(agentID, now)
	}
	c.pub.Emit(status.Event{Type: status.EventAgentRegistered, AgentID: agentID})
	c.hub.Publish(protocol.AgentTopic(agentID), protocol.Envelope{Msg: protocol.KindAgentRegistered, AgentID: agentID})
}

func (c *Controller) handleHeartbeatAck(agentID string) {
	if agentID == "" {
		return
	}
	if !c.tracker.AgentExists(agentID) {
		// An agent whose heartbeat resumes after being declared dead is
		// asked to re-register from scratch (§4.8).
		c.hub.Publish(protocol.AgentTopic(agentID), protocol.Envelope{Msg: protocol.KindAgentsRegister})
		return
	}
	c.tracker.Heartbeat(agentID, time.Now())
}

// triggerNode implements §4.6's `trigger_node(node_id)`.
func (c *Controller) triggerNode(ctx context.Context, nodeID int64) error {
	node, ok := c.cache.Node(nodeID)
	if !ok {
		n, err := c.nodes.GetNode(ctx, nodeID)
		if err != nil {
			return fmt.Errorf("controller: trigger_node %d: %w", nodeID, err)
		}
		node = *n
		c.cache.PutNode(node)
	}

	now := time.Now()
	var res *setup.Result
	var err error
	if node.Type == domain.NodeTypeWorkflow {
		res, err = c.setup.InitialRun(ctx, nodeID, now)
	} else {
		res, err = c.setup.InitialRunJob(ctx, nodeID, now)
	}
	if err != nil {
		if errors.Is(err, domain.ErrCyclicGraph) {
			if notifyErr := c.notif.NotifyTemplateDefect(nodeID, err.Error()); notifyErr != nil {
				c.logger.Error("controller: notify template defect failed", "node_id", nodeID, "err", notifyErr)
			}
		}
		return fmt.Errorf("controller: setup for node %d: %w", nodeID, err)
	}

	if err := withStoreRetry(ctx, func() error {
		return c.execStore.SetExecutionStarted(ctx, res.ExecutionID, res.StartTS)
	}); err != nil {
		c.logger.WithExecution(res.ExecutionID).Error("controller: persist execution started failed, aborting trigger", "err", err)
		return fmt.Errorf("controller: trigger_node %d: persist execution started: %w", nodeID, err)
	}

	c.execInfos[res.ExecutionID] = newExecInfo(res.Model, res.WorkflowName, res.StartTS)
	c.pub.Emit(status.Event{Type: status.EventExecutionStarted, ExecutionID: res.ExecutionID})

	c.startExecWf(ctx, 0, res.RootExecWfID, res.ExecutionID, false)
	return nil
}

// startExecWf implements §4.6's `start_exec_wf`. containingVertexID is 0
// for the root exec-wf, which has no containing vertex; hasContaining
// disambiguates a real vertex-id 0 from "no containing vertex" (vertex ids
// are surrogate keys starting at 1, but the zero value is defensive here).
func (c *Controller) startExecWf(ctx context.Context, containingVertexID, execWfID, executionID int64, hasContaining bool) {
	now := time.Now()
	if err := withStoreRetry(ctx, func() error {
		return c.execStore.SetExecWfStarted(ctx, execWfID, now)
	}); err != nil {
		c.logger.WithExecWf(execWfID).Error("controller: persist exec-wf started failed, aborting", "err", err)
		return
	}
	if hasContaining {
		if err := withStoreRetry(ctx, func() error {
			return c.execStore.SetVertexStarted(ctx, containingVertexID, "", now)
		}); err != nil {
			c.logger.WithVertex(containingVertexID).Error("controller: persist containing vertex started failed, aborting", "err", err)
			return
		}
	}
	c.pub.Emit(status.Event{Type: status.EventExecWfStarted, ExecutionID: executionID, ExecWfID: execWfID})

	info, ok := c.execInfos[executionID]
	if !ok {
		return
	}
	info.runningJobs[execWfID] = 0
	roots := info.model.RootsOf(execWfID)
	c.runNodes(ctx, roots, executionID)
}

// runNodes implements §4.6's `run_nodes`: partitions vertex ids by
// node-type, recursing into child exec-wfs for workflow vertices and
// dispatching job vertices via run_jobs.
func (c *Controller) runNodes(ctx context.Context, vertexIDs []int64, executionID int64) {
	if len(vertexIDs) == 0 {
		return
	}
	info, ok := c.execInfos[executionID]
	if !ok {
		return
	}

	execWfID, err := info.model.SameExecWf(vertexIDs)
	if err != nil {
		c.logger.WithExecution(executionID).Error("controller: run_nodes precondition violated", "err", err)
		return
	}

	var jobVertices []int64
	for _, v := range vertexIDs {
		attrs, ok := info.model.VertexAttrsOf(v)
		if !ok {
			c.logger.WithVertex(v).Error("controller: run_nodes unknown vertex")
			continue
		}
		if attrs.NodeType == domain.NodeTypeWorkflow {
			if attrs.RunsExecWfID == nil {
				c.logger.WithVertex(v).Error("controller: workflow vertex missing child exec-wf link")
				continue
			}
			c.startExecWf(ctx, v, *attrs.RunsExecWfID, executionID, true)
			continue
		}
		jobVertices = append(jobVertices, v)
	}

	if len(jobVertices) > 0 {
		c.runJobs(ctx, jobVertices, execWfID, executionID)
	}
}

// runJobs implements §4.6's `run_jobs`.
func (c *Controller) runJobs(ctx context.Context, vertexIDs []int64, execWfID, executionID int64) {
	info, ok := c.execInfos[executionID]
	if !ok {
		return
	}

	for _, vertexID := range vertexIDs {
		attrs, ok := info.model.VertexAttrsOf(vertexID)
		if !ok {
			continue
		}

		job, err := c.nodes.GetJob(ctx, attrs.NodeID)
		if err != nil {
			c.logger.Error("controller: job lookup failed", "node_id", attrs.NodeID, "err", err)
			c.jobFinished(ctx, jobFinishedArgs{
				ExecutionID: executionID, ExecVertexID: vertexID, ExecWfID: execWfID,
				Success: false, ErrorMsg: "job definition missing", Forced: true,
			})
			continue
		}

		agentID, ok := c.tracker.PickAgent(tracker.Job{Affinity: job.AgentAffinity, MaxConcurrentAgent: job.MaxConcurrent})
		if !ok {
			// No eligible worker: drive the DAG onward without a network
			// round-trip (§4.6's run_jobs, "ensures that a job with no
			// eligible worker fails cleanly").
			c.jobFinished(ctx, jobFinishedArgs{
				ExecutionID: executionID, ExecVertexID: vertexID, ExecWfID: execWfID,
				Success: false, ErrorMsg: "no eligible agent", Forced: true,
			})
			continue
		}

		c.tracker.AssignJob(agentID, vertexID, time.Now())
		c.hub.Publish(protocol.AgentTopic(agentID), protocol.Envelope{
			Msg:          protocol.KindRunJob,
			ExecutionID:  executionID,
			ExecVertexID: vertexID,
			ExecWfID:     execWfID,
			AgentID:      agentID,
			Job: &protocol.JobSpec{
				NodeID:       job.NodeID,
				CommandLine:  job.CommandLine,
				ExecutionDir: job.ExecutionDir,
			},
			TimeoutSec: protocol.NoTimeout,
		})
	}
}

// handleRunJobAck implements §4.6's "when jobs start" handler.
func (c *Controller) handleRunJobAck(ctx context.Context, env protocol.Envelope) {
	info, ok := c.execInfos[env.ExecutionID]
	if !ok {
		c.logger.WithExecution(env.ExecutionID).Warn("controller: run-job-ack for unknown execution")
		return
	}
	if _, already := info.startedVertices[env.ExecVertexID]; already {
		return // idempotent retry: vertex already started by this agent
	}

	now := time.Now()
	if err := withStoreRetry(ctx, func() error {
		return c.execStore.SetVertexStarted(ctx, env.ExecVertexID, env.AgentID, now)
	}); err != nil {
		c.logger.WithVertex(env.ExecVertexID).Error("controller: persist vertex started failed, aborting", "err", err)
		return
	}

	info.startedVertices[env.ExecVertexID] = struct{}{}
	info.vertexAgent[env.ExecVertexID] = env.AgentID
	info.runningJobs[env.ExecWfID]++
	c.tracker.AssignJob(env.AgentID, env.ExecVertexID, now)
	c.pub.Emit(status.Event{
		Type: status.EventVertexStarted, ExecutionID: env.ExecutionID, ExecWfID: env.ExecWfID,
		ExecVertexID: env.ExecVertexID, AgentID: env.AgentID,
	})
}

type jobFinishedArgs struct {
	ExecutionID  int64
	ExecVertexID int64
	ExecWfID     int64
	AgentID      string
	Success      bool
	StatusStr    string
	ErrorMsg     string
	Forced       bool
}

func (c *Controller) handleJobFinished(ctx context.Context, env protocol.Envelope) {
	c.jobFinished(ctx, jobFinishedArgs{
		ExecutionID:  env.ExecutionID,
		ExecVertexID: env.ExecVertexID,
		ExecWfID:     env.ExecWfID,
		AgentID:      env.AgentID,
		Success:      env.Success,
		StatusStr:    env.Status,
		ErrorMsg:     env.ErrorMsg,
		Forced:       env.ForcedByConductor,
	})
}

// jobFinished implements §4.6's "when jobs finish" handler, shared by real
// inbound job-finished messages and the synthetic forced-by-conductor
// variant run_jobs produces when no agent is available.
func (c *Controller) jobFinished(ctx context.Context, a jobFinishedArgs) {
	info, ok := c.execInfos[a.ExecutionID]
	if !ok {
		// Late message for an aborted or already-finished execution (§5's
		// "late job-finished... discarded").
		c.logger.WithExecution(a.ExecutionID).Warn("controller: job-finished for unknown execution")
		return
	}
	if _, already := info.finishedVertices[a.ExecVertexID]; already {
		return // idempotent retry: vertex already terminal
	}

	now := time.Now()
	finalStatus := domain.VertexFinishedSucc
	if !a.Success {
		finalStatus = domain.VertexFinishedError
	}
	if err := withStoreRetry(ctx, func() error {
		return c.execStore.SetVertexFinished(ctx, a.ExecVertexID, finalStatus, now)
	}); err != nil {
		c.logger.WithVertex(a.ExecVertexID).Error("controller: persist vertex finished failed, aborting", "err", err)
		return
	}

	info.finishedVertices[a.ExecVertexID] = struct{}{}
	delete(info.vertexAgent, a.ExecVertexID)

	if !a.Forced {
		c.tracker.ClearJob(a.AgentID, a.ExecVertexID)
		c.hub.Publish(protocol.AgentTopic(a.AgentID), protocol.Envelope{
			Msg: protocol.KindJobFinishedAck, ExecutionID: a.ExecutionID, ExecVertexID: a.ExecVertexID,
		})
		info.runningJobs[a.ExecWfID]--
	}

	nextNodes := info.model.Dependencies(a.ExecVertexID, a.Success)
	if !a.Success && len(nextNodes) == 0 {
		info.failedExecWfs[a.ExecWfID] = true
	}

	c.pub.Emit(status.Event{
		Type: status.EventVertexFinished, ExecutionID: a.ExecutionID, ExecWfID: a.ExecWfID,
		ExecVertexID: a.ExecVertexID, AgentID: a.AgentID, Status: a.StatusStr, ErrorMsg: a.ErrorMsg,
	})

	if info.runningJobs[a.ExecWfID] == 0 && len(nextNodes) == 0 {
		containingVertex, hasContaining := info.model.ParentVertex(a.ExecVertexID)
		c.whenWfFinished(ctx, a.ExecutionID, a.ExecWfID, containingVertex, hasContaining)
	} else {
		c.runNodes(ctx, nextNodes, a.ExecutionID)
	}
}

// whenWfFinished implements §4.6's `when_wf_finished` and its propagation
// to parent workflows. It walks the (exec-wf, containing-vertex) chain
// upward: each iteration closes one exec-wf, marks its containing vertex
// finished, and either hands off to that vertex's own pending successors
// or keeps climbing, exactly mirroring the leaf-level completion check
// (`running_jobs == 0 and next_nodes empty`) one level up each time.
func (c *Controller) whenWfFinished(ctx context.Context, executionID, execWfID, containingVertexID int64, hasContaining bool) {
	info, ok := c.execInfos[executionID]
	if !ok {
		return
	}
	now := time.Now()

	curExecWf := execWfID
	curVertex := containingVertexID
	curHasContaining := hasContaining

	for {
		failed := info.failedExecWfs[curExecWf]
		success := !failed

		wfStatus := domain.ExecutionFinishedSucc
		if failed {
			wfStatus = domain.ExecutionFinishedError
		}
		if err := withStoreRetry(ctx, func() error {
			return c.execStore.SetExecWfFinished(ctx, curExecWf, wfStatus, now)
		}); err != nil {
			c.logger.WithExecWf(curExecWf).Error("controller: persist exec-wf finished failed, aborting", "err", err)
			return
		}
		c.pub.Emit(status.Event{Type: status.EventExecWfFinished, ExecutionID: executionID, ExecWfID: curExecWf, Status: wfStatus.String()})

		if curExecWf == info.model.RootWorkflow() {
			c.executionFinished(ctx, executionID, success)
			return
		}

		if !curHasContaining {
			c.logger.WithExecWf(curExecWf).Error("controller: non-root exec-wf has no containing vertex")
			return
		}

		attrs, ok := info.model.VertexAttrsOf(curVertex)
		if !ok {
			c.logger.WithExecWf(curExecWf).WithVertex(curVertex).Error("controller: missing containing vertex for finished exec-wf")
			return
		}
		parentExecWf := attrs.BelongsToExecWf

		vertexStatus := domain.VertexFinishedSucc
		if !success {
			vertexStatus = domain.VertexFinishedError
		}
		if err := withStoreRetry(ctx, func() error {
			return c.execStore.SetVertexFinished(ctx, curVertex, vertexStatus, now)
		}); err != nil {
			c.logger.WithVertex(curVertex).Error("controller: persist vertex finished failed, aborting", "err", err)
			return
		}
		c.pub.Emit(status.Event{
			Type: status.EventVertexFinished, ExecutionID: executionID, ExecWfID: parentExecWf,
			ExecVertexID: curVertex, Status: vertexStatus.String(),
		})

		next := info.model.Dependencies(curVertex, success)
		if !success && len(next) == 0 {
			info.failedExecWfs[parentExecWf] = true
		}

		if len(next) != 0 || info.runningJobs[parentExecWf] != 0 {
			// Siblings or successors still pending one level up: hand off
			// and stop climbing.
			c.runNodes(ctx, next, executionID)
			return
		}

		parentVertex, hasParent := info.model.ParentVertex(curVertex)
		curExecWf = parentExecWf
		curVertex = parentVertex
		curHasContaining = hasParent
	}
}

// executionFinished implements §4.6's `execution_finished`.
func (c *Controller) executionFinished(ctx context.Context, executionID int64, success bool) {
	now := time.Now()
	st := domain.ExecutionFinishedSucc
	if !success {
		st = domain.ExecutionFinishedError
	}
	if err := withStoreRetry(ctx, func() error {
		return c.execStore.SetExecutionFinished(ctx, executionID, st, now, "")
	}); err != nil {
		c.logger.WithExecution(executionID).Error("controller: persist execution finished failed, aborting", "err", err)
		return
	}
	c.pub.Emit(status.Event{Type: status.EventExecutionFinished, ExecutionID: executionID, Status: st.String()})
	delete(c.execInfos, executionID)
}

// abortExecution implements §4.6's `abort_execution`.
func (c *Controller) abortExecution(ctx context.Context, executionID int64) error {
	info, ok := c.execInfos[executionID]
	if !ok {
		return fmt.Errorf("controller: abort_execution %d: %w", executionID, domain.ErrUnknownExecution)
	}

	for vertexID, agentID := range info.vertexAgent {
		c.hub.Publish(protocol.AgentTopic(agentID), protocol.Envelope{
			Msg: protocol.KindKillJob, ExecutionID: executionID, ExecVertexID: vertexID, AgentID: agentID,
		})
		c.tracker.ClearJob(agentID, vertexID)
	}

	now := time.Now()
	if err := withStoreRetry(ctx, func() error {
		return c.execStore.SetExecutionFinished(ctx, executionID, domain.ExecutionAborted, now, "")
	}); err != nil {
		c.logger.WithExecution(executionID).Error("controller: persist execution aborted failed, aborting", "err", err)
		return fmt.Errorf("controller: abort_execution %d: persist aborted: %w", executionID, err)
	}
	c.pub.Emit(status.Event{Type: status.EventExecutionFinished, ExecutionID: executionID, Status: domain.ExecutionAborted.String()})
	delete(c.execInfos, executionID)
	return nil
}

// resumeExecution implements §4.6's `resume_execution`.
func (c *Controller) resumeExecution(ctx context.Context, executionID, execVertexID int64) error {
	if _, live := c.execInfos[executionID]; live {
		return fmt.Errorf("controller: resume_execution %d: %w", executionID, domain.ErrExecutionAlreadyLive)
	}

	res, err := c.setup.Resume(ctx, executionID)
	if err != nil {
		return fmt.Errorf("controller: resume_execution %d: %w", executionID, err)
	}

	now := time.Now()
	if err := withStoreRetry(ctx, func() error {
		return c.execStore.SetExecutionStarted(ctx, executionID, now)
	}); err != nil {
		c.logger.WithExecution(executionID).Error("controller: persist execution re-started failed, aborting", "err", err)
		return fmt.Errorf("controller: resume_execution %d: persist started: %w", executionID, err)
	}

	c.execInfos[executionID] = newExecInfo(res.Model, res.WorkflowName, res.StartTS)
	c.pub.Emit(status.Event{Type: status.EventExecutionStarted, ExecutionID: executionID})

	c.runNodes(ctx, []int64{execVertexID}, executionID)
	return nil
}

func (c *Controller) handleCacheEvent(ctx context.Context, ev cacheEvent) {
	switch ev.kind {
	case cacheNodeSave:
		c.handleNodeSave(ctx, ev.nodeID)
	case cacheScheduleSave:
		c.handleScheduleSave(ctx, ev.scheduleID)
	case cacheScheduleAssoc:
		c.handleScheduleAssoc(ctx, ev.nodeID)
	}
}

func (c *Controller) handleNodeSave(ctx context.Context, nodeID int64) {
	node, err := c.nodes.GetNode(ctx, nodeID)
	if err != nil {
		c.logger.Error("controller: node-save reload failed", "node_id", nodeID, "err", err)
		return
	}
	c.cache.PutNode(*node)
}

func (c *Controller) handleScheduleSave(ctx context.Context, scheduleID int64) {
	sched, err := c.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		c.logger.Error("controller: schedule-save reload failed", "schedule_id", scheduleID, "err", err)
		return
	}
	c.cache.PutSchedule(*sched)

	rows, err := c.schedules.ListNodeSchedulesBySchedule(ctx, scheduleID)
	if err != nil {
		c.logger.Error("controller: schedule-save load associations failed", "schedule_id", scheduleID, "err", err)
		return
	}
	assocs := make([]schedulecache.Assoc, 0, len(rows))
	nodeIDs := make([]int64, 0, len(rows))
	for _, r := range rows {
		assocs = append(assocs, schedulecache.Assoc{ID: r.ID, NodeID: r.NodeID, ScheduleID: r.ScheduleID})
		nodeIDs = append(nodeIDs, r.NodeID)
	}
	c.cache.PutAssocs(assocs)

	if len(nodeIDs) == 0 {
		c.sched.RemoveSchedule(scheduleID)
		return
	}
	if err := c.sched.ScheduleCronJob(scheduleID, sched.Cron, nodeIDs); err != nil {
		c.logger.Error("controller: schedule-save register cron job failed", "schedule_id", scheduleID, "err", err)
	}
}

func (c *Controller) handleScheduleAssoc(ctx context.Context, nodeID int64) {
	oldScheduleIDs := make(map[int64]struct{})
	for _, s := range c.cache.SchedulesForNode(nodeID) {
		oldScheduleIDs[s.ID] = struct{}{}
	}
	c.cache.RemoveAssocs(c.cache.AssocIDsForNode(nodeID))

	rows, err := c.schedules.ListNodeSchedulesByNode(ctx, nodeID)
	if err != nil {
		c.logger.Error("controller: schedule-assoc load failed", "node_id", nodeID, "err", err)
		return
	}
	assocs := make([]schedulecache.Assoc, 0, len(rows))
	touched := make(map[int64]struct{}, len(rows))
	for _, r := range rows {
		assocs = append(assocs, schedulecache.Assoc{ID: r.ID, NodeID: r.NodeID, ScheduleID: r.ScheduleID})
		touched[r.ScheduleID] = struct{}{}
	}
	c.cache.PutAssocs(assocs)
	for scheduleID := range oldScheduleIDs {
		touched[scheduleID] = struct{}{}
	}

	for scheduleID := range touched {
		nodeIDs := nodeIDsOf(c.cache.NodesForSchedule(scheduleID))
		for _, a := range assocs {
			// NodesForSchedule only sees nodes already in the cache; the
			// freshly loaded associations are registered regardless.
			if _, cached := c.cache.Node(a.NodeID); a.ScheduleID == scheduleID && !cached {
				nodeIDs = append(nodeIDs, a.NodeID)
			}
		}
		if len(nodeIDs) == 0 {
			c.sched.RemoveSchedule(scheduleID)
			continue
		}
		sched, ok := c.cache.Schedule(scheduleID)
		if !ok {
			loaded, err := c.schedules.GetSchedule(ctx, scheduleID)
			if err != nil {
				c.logger.Error("controller: schedule-assoc schedule lookup failed", "schedule_id", scheduleID, "err", err)
				continue
			}
			sched = *loaded
			c.cache.PutSchedule(sched)
		}
		if err := c.sched.ScheduleCronJob(scheduleID, sched.Cron, nodeIDs); err != nil {
			c.logger.Error("controller: schedule-assoc register cron job failed", "schedule_id", scheduleID, "err", err)
		}
	}
}

func nodeIDsOf(nodes []domain.Node) []int64 {
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
