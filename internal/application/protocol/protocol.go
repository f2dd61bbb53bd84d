// Package protocol defines the conductor<->agent wire protocol (§6.1) and
// its self-describing codec (§4.5). Messages are tagged unions over a
// single Kind discriminator, the Go rendering of the source's dynamic
// dispatch on `:msg` (§9).
package protocol

import (
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind discriminates the wire message types of §6.1.
type Kind string

const (
	// Controller -> agents.
	KindRunJob          Kind = "run-job"
	KindJobFinishedAck  Kind = "job-finished-ack"
	KindHeartbeat       Kind = "heartbeat"
	KindAgentsRegister  Kind = "agents-register"
	KindAgentRegistered Kind = "agent-registered"
	KindPong            Kind = "pong"
	KindKillJob         Kind = "kill-job"

	// Agents -> controller.
	KindAgentRegistering Kind = "agent-registering"
	KindHeartbeatAck     Kind = "heartbeat-ack"
	KindRunJobAck        Kind = "run-job-ack"
	KindJobFinished      Kind = "job-finished"
	KindPing             Kind = "ping"
)

// JobSpec is the job-record embedded in a run-job message.
type JobSpec struct {
	NodeID       int64  `msgpack:"node_id"`
	CommandLine  string `msgpack:"command_line"`
	ExecutionDir string `msgpack:"execution_dir"`
}

// NoTimeout is the sentinel "no per-job timeout" value (§5, "Integer.MAX_VALUE
// means none").
const NoTimeout int64 = math.MaxInt32

// Envelope is the single wire struct carrying every message kind; fields
// tagged omitempty are left out of the encoding when zero and decode back
// as their zero values.
type Envelope struct {
	Msg Kind `msgpack:"msg"`

	ExecutionID  int64  `msgpack:"execution_id,omitempty"`
	ExecVertexID int64  `msgpack:"exec_vertex_id,omitempty"`
	ExecWfID     int64  `msgpack:"exec_wf_id,omitempty"`
	AgentID      string `msgpack:"agent_id,omitempty"`

	Job        *JobSpec `msgpack:"job,omitempty"`
	TimeoutSec int64    `msgpack:"timeout,omitempty"`

	Success           bool   `msgpack:"success,omitempty"`
	Status            string `msgpack:"status,omitempty"`
	ErrorMsg          string `msgpack:"error_msg,omitempty"`
	ForcedByConductor bool   `msgpack:"forced_by_conductor,omitempty"`

	ReplyTo string `msgpack:"reply_to,omitempty"`
}

// Encode serializes env with the self-describing msgpack codec.
func Encode(env Envelope) ([]byte, error) {
	b, err := msgpack.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", env.Msg, err)
	}
	return b, nil
}

// Decode deserializes a wire payload back into an Envelope.
func Decode(payload []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode: %w", err)
	}
	return env, nil
}

// Topic names the two reserved broadcast-style topics of §4.5.
type Topic = string

const (
	TopicBroadcast     Topic = "broadcast"
	TopicStatusUpdates Topic = "status-updates"
)

// AgentTopic returns the unicast topic an individual agent subscribes to.
func AgentTopic(agentID string) Topic {
	return "agent." + agentID
}
