// Package status implements the Status Publisher (§4.7): the controller
// writes every UI-visible event to one channel; a dedicated goroutine
// drains it onto the "status-updates" topic. Grounded on the teacher's
// observer.ObserverManager/EventFilter family
// (internal/application/observer/{observer,manager}.go), adapted in two
// ways: (1) the channel to the publisher goroutine is bounded but
// non-dropping — §4.7 prefers the controller blocking on a full channel
// to silently losing a correctness-bearing event, unlike the teacher's
// fire-and-forget Notify; (2) secondary local Observers (e.g. a logging
// sink) still get the teacher's non-blocking, panic-recovered, filtered
// fan-out, since dropping a log line is harmless.
package status

import (
	"context"
	"time"

	"github.com/flowconductor/conductor/internal/application/protocol"
	"github.com/flowconductor/conductor/internal/infrastructure/logger"
)

// EventType names the kinds of status event the controller can emit.
type EventType string

const (
	EventExecutionStarted  EventType = "execution.started"
	EventExecutionFinished EventType = "execution.finished"
	EventExecWfStarted     EventType = "exec_wf.started"
	EventExecWfFinished    EventType = "exec_wf.finished"
	EventVertexStarted     EventType = "vertex.started"
	EventVertexFinished    EventType = "vertex.finished"
	EventVertexUnknown     EventType = "vertex.unknown"
	EventAgentRegistered   EventType = "agent.registered"
	EventAgentDead         EventType = "agent.dead"
)

// Event is one UI-visible status record.
type Event struct {
	Type         EventType
	Timestamp    time.Time
	ExecutionID  int64
	ExecWfID     int64
	ExecVertexID int64
	AgentID      string
	Status       string
	ErrorMsg     string
}

// Filter decides whether an Observer wants a given Event.
type Filter interface {
	ShouldNotify(e Event) bool
}

// TypeFilter admits only the listed event types. An empty list admits
// everything (nil filter semantics, made explicit).
type TypeFilter struct{ types map[EventType]struct{} }

// NewTypeFilter builds a TypeFilter; with no types it behaves as pass-all.
func NewTypeFilter(types ...EventType) Filter {
	if len(types) == 0 {
		return nil
	}
	f := &TypeFilter{types: make(map[EventType]struct{}, len(types))}
	for _, t := range types {
		f.types[t] = struct{}{}
	}
	return f
}

func (f *TypeFilter) ShouldNotify(e Event) bool {
	_, ok := f.types[e.Type]
	return ok
}

// ExecutionIDFilter admits only events belonging to one execution.
type ExecutionIDFilter struct{ executionID int64 }

func NewExecutionIDFilter(executionID int64) Filter {
	return &ExecutionIDFilter{executionID: executionID}
}

func (f *ExecutionIDFilter) ShouldNotify(e Event) bool { return e.ExecutionID == f.executionID }

// NodeIDFilter admits only events for the listed exec-vertices; non-vertex
// events always pass.
type NodeIDFilter struct{ ids map[int64]struct{} }

func NewNodeIDFilter(execVertexIDs ...int64) Filter {
	if len(execVertexIDs) == 0 {
		return nil
	}
	f := &NodeIDFilter{ids: make(map[int64]struct{}, len(execVertexIDs))}
	for _, id := range execVertexIDs {
		f.ids[id] = struct{}{}
	}
	return f
}

func (f *NodeIDFilter) ShouldNotify(e Event) bool {
	if e.ExecVertexID == 0 {
		return true
	}
	_, ok := f.ids[e.ExecVertexID]
	return ok
}

// CompoundFilter requires every sub-filter to pass.
type CompoundFilter struct{ filters []Filter }

func NewCompoundFilter(filters ...Filter) Filter {
	nonNil := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			nonNil = append(nonNil, f)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &CompoundFilter{filters: nonNil}
	}
}

func (f *CompoundFilter) ShouldNotify(e Event) bool {
	for _, sub := range f.filters {
		if !sub.ShouldNotify(e) {
			return false
		}
	}
	return true
}

// Observer receives filtered status events, e.g. a structured-log sink.
type Observer interface {
	Name() string
	Filter() Filter
	OnEvent(ctx context.Context, e Event) error
}

// Publisher is the Status Publisher. The controller calls Emit from its
// single goroutine; Run drains the channel from a dedicated goroutine.
type Publisher struct {
	events    chan Event
	hub       interface {
		Publish(topic protocol.Topic, env protocol.Envelope)
	}
	observers []Observer
	logger    *logger.Logger
}

// New returns a Publisher with a channel of capacity bufSize. hub is the
// Messaging Transport's publisher-side Hub.
func New(hub interface {
	Publish(topic protocol.Topic, env protocol.Envelope)
}, bufSize int, log *logger.Logger) *Publisher {
	return &Publisher{
		events: make(chan Event, bufSize),
		hub:    hub,
		logger: log,
	}
}

// Register adds a local observer, e.g. a log sink. Not safe to call once
// Run has started.
func (p *Publisher) Register(o Observer) {
	p.observers = append(p.observers, o)
}

// Emit enqueues e, blocking if the channel is full per §4.7's
// no-back-pressure-drop policy.
func (p *Publisher) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	p.events <- e
}

// Run drains the event channel until ctx is cancelled, publishing each
// event to the status-updates topic and fanning it out to local observers.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.events:
			p.hub.Publish(protocol.TopicStatusUpdates, toEnvelope(e))
			for _, obs := range p.observers {
				go p.notify(ctx, obs, e)
			}
		}
	}
}

func (p *Publisher) notify(ctx context.Context, obs Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("status: observer panic recovered", "observer", obs.Name(), "panic", r)
		}
	}()
	if f := obs.Filter(); f != nil && !f.ShouldNotify(e) {
		return
	}
	if err := obs.OnEvent(ctx, e); err != nil {
		p.logger.Error("status: observer failed", "observer", obs.Name(), "err", err)
	}
}

func toEnvelope(e Event) protocol.Envelope {
	return protocol.Envelope{
		Msg:          protocol.Kind(e.Type),
		ExecutionID:  e.ExecutionID,
		ExecWfID:     e.ExecWfID,
		ExecVertexID: e.ExecVertexID,
		AgentID:      e.AgentID,
		Status:       e.Status,
		ErrorMsg:     e.ErrorMsg,
	}
}
