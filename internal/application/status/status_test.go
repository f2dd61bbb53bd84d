package status_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowconductor/conductor/internal/application/protocol"
	"github.com/flowconductor/conductor/internal/application/status"
)

type fakeHub struct {
	mu        sync.Mutex
	published []protocol.Envelope
}

func (h *fakeHub) Publish(topic protocol.Topic, env protocol.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = append(h.published, env)
}

func (h *fakeHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.published)
}

func TestPublisher_EmitsToHub(t *testing.T) {
	hub := &fakeHub{}
	p := status.New(hub, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Emit(status.Event{Type: status.EventVertexFinished, ExecVertexID: 42})

	require.Eventually(t, func() bool { return hub.count() == 1 }, time.Second, 10*time.Millisecond)
}

type recordingObserver struct {
	name   string
	filter status.Filter
	got    []status.Event
	mu     sync.Mutex
}

func (o *recordingObserver) Name() string        { return o.name }
func (o *recordingObserver) Filter() status.Filter { return o.filter }
func (o *recordingObserver) OnEvent(ctx context.Context, e status.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, e)
	return nil
}

func TestPublisher_FiltersObservers(t *testing.T) {
	hub := &fakeHub{}
	p := status.New(hub, 8, nil)
	obs := &recordingObserver{name: "only-finished", filter: status.NewTypeFilter(status.EventVertexFinished)}
	p.Register(obs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Emit(status.Event{Type: status.EventVertexStarted})
	p.Emit(status.Event{Type: status.EventVertexFinished})

	require.Eventually(t, func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return len(obs.got) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCompoundFilter_RequiresAll(t *testing.T) {
	f := status.NewCompoundFilter(
		status.NewTypeFilter(status.EventVertexFinished),
		status.NewExecutionIDFilter(1),
	)
	assert.True(t, f.ShouldNotify(status.Event{Type: status.EventVertexFinished, ExecutionID: 1}))
	assert.False(t, f.ShouldNotify(status.Event{Type: status.EventVertexFinished, ExecutionID: 2}))
}
