package watchdog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowconductor/conductor/internal/application/notifier"
	"github.com/flowconductor/conductor/internal/application/protocol"
	"github.com/flowconductor/conductor/internal/application/status"
	"github.com/flowconductor/conductor/internal/application/tracker"
	"github.com/flowconductor/conductor/internal/application/watchdog"
	"github.com/flowconductor/conductor/internal/domain/repository"
	"github.com/flowconductor/conductor/internal/infrastructure/config"
	"github.com/flowconductor/conductor/internal/infrastructure/logger"
)

func testLogger() *logger.Logger {
	return logger.New(config.LoggingConfig{Level: "error", Format: "text"})
}

type fakeExecStore struct {
	repository.ExecutionStore
	unknownVertices []int64
}

func (f *fakeExecStore) SetVertexUnknown(ctx context.Context, vertexIDs []int64) error {
	f.unknownVertices = append(f.unknownVertices, vertexIDs...)
	return nil
}

type noopHub struct{}

func (noopHub) Publish(topic protocol.Topic, env protocol.Envelope) {}

func TestSweep_MarksUnknownAndRemovesAgent(t *testing.T) {
	tr := tracker.New(true)
	now := time.Now()
	tr.AddAgent("a1", now.Add(-time.Hour))
	tr.AssignJob("a1", 100, now.Add(-time.Hour))

	store := &fakeExecStore{}
	pub := status.New(noopHub{}, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pub.Run(ctx)

	notif := notifier.New(config.NotifierConfig{}, testLogger())
	watchdog.Sweep(context.Background(), tr, store, notif, pub, testLogger(), now, 30*time.Second)

	require.Equal(t, []int64{100}, store.unknownVertices)
	assert.False(t, tr.AgentExists("a1"))
}

func TestSweep_NoDeadAgentsIsNoOp(t *testing.T) {
	tr := tracker.New(true)
	now := time.Now()
	tr.AddAgent("a1", now)

	store := &fakeExecStore{}
	pub := status.New(noopHub{}, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pub.Run(ctx)

	notif := notifier.New(config.NotifierConfig{}, testLogger())
	watchdog.Sweep(context.Background(), tr, store, notif, pub, testLogger(), now, 30*time.Second)

	assert.Empty(t, store.unknownVertices)
	assert.True(t, tr.AgentExists("a1"))
}
