package transport_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowconductor/conductor/internal/application/protocol"
)

func TestAgentTopic_Unicast(t *testing.T) {
	assert.Equal(t, "agent.a1", protocol.AgentTopic("a1"))
	assert.NotEqual(t, protocol.AgentTopic("a1"), protocol.AgentTopic("a2"))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	env := protocol.Envelope{
		Msg:          protocol.KindRunJob,
		ExecVertexID: 42,
		Job:          &protocol.JobSpec{NodeID: 1, CommandLine: "echo hi"},
	}
	payload, err := protocol.Encode(env)
	assert.NoError(t, err)

	got, err := protocol.Decode(payload)
	assert.NoError(t, err)
	assert.Equal(t, env.Msg, got.Msg)
	assert.Equal(t, env.ExecVertexID, got.ExecVertexID)
	assert.Equal(t, env.Job.CommandLine, got.Job.CommandLine)
}
