package timer_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowconductor/conductor/internal/infrastructure/cache"
	"github.com/flowconductor/conductor/internal/infrastructure/config"
	"github.com/flowconductor/conductor/internal/infrastructure/timer"
)

func TestScheduleCronJob_FiresForEveryAssociatedNode(t *testing.T) {
	src := timer.New(nil, 8)
	defer src.Stop()

	// Every-second interval-style cron so the test completes quickly.
	require.NoError(t, src.ScheduleCronJob(1, "* * * * * *", []int64{10, 20}))
	src.Start()

	seen := map[int64]bool{}
	timeout := time.After(3 * time.Second)
	for len(seen) < 2 {
		select {
		case f := <-src.Fired():
			seen[f.NodeID] = true
		case <-timeout:
			t.Fatal("timed out waiting for both nodes to fire")
		}
	}
	assert.True(t, seen[10])
	assert.True(t, seen[20])
}

func TestRemoveSchedule_StopsFiring(t *testing.T) {
	src := timer.New(nil, 8)
	defer src.Stop()

	require.NoError(t, src.ScheduleCronJob(1, "* * * * * *", []int64{10}))
	src.RemoveSchedule(1)
	src.Start()

	select {
	case f := <-src.Fired():
		t.Fatalf("unexpected fire after removal: %+v", f)
	case <-time.After(1500 * time.Millisecond):
	}
}

func TestScheduleCronJob_InvalidExpression(t *testing.T) {
	src := timer.New(nil, 8)
	err := src.ScheduleCronJob(1, "not a cron expr", nil)
	assert.Error(t, err)
}

// TestNextRun_PersistsAndLoads exercises persistNextRun/NextRun through a
// real cache.RedisCache backed by miniredis, rather than the nil-cache
// bypass the tests above use. ScheduleCronJob calls persistNextRun
// synchronously, so this needs no cron fire and no Start().
func TestNextRun_PersistsAndLoads(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	rc, err := cache.New(config.RedisConfig{URL: "redis://" + s.Addr(), PoolSize: 10})
	require.NoError(t, err)
	defer rc.Close()

	src := timer.New(rc, 8)
	defer src.Stop()

	require.NoError(t, src.ScheduleCronJob(1, "* * * * * *", []int64{10}))

	next, ok := src.NextRun(context.Background(), 1)
	require.True(t, ok)
	assert.False(t, next.IsZero())
}

// TestNextRun_UnknownScheduleMisses covers the lookup-miss path: no entry
// was ever persisted for this schedule-id.
func TestNextRun_UnknownScheduleMisses(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	rc, err := cache.New(config.RedisConfig{URL: "redis://" + s.Addr(), PoolSize: 10})
	require.NoError(t, err)
	defer rc.Close()

	src := timer.New(rc, 8)
	defer src.Stop()

	_, ok := src.NextRun(context.Background(), 999)
	assert.False(t, ok)
}

// TestNextRun_NilCacheAlwaysMisses documents the bypass path the other
// tests in this file rely on: without a cache, persistNextRun/NextRun are
// no-ops rather than panics.
func TestNextRun_NilCacheAlwaysMisses(t *testing.T) {
	src := timer.New(nil, 8)
	defer src.Stop()

	require.NoError(t, src.ScheduleCronJob(1, "* * * * * *", []int64{10}))
	_, ok := src.NextRun(context.Background(), 1)
	assert.False(t, ok)
}
