package progress

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"training-orchestrator/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu    sync.Mutex
	snaps []models.ProgressSnapshot
}

func (s *captureSink) Publish(jobID string, snap models.ProgressSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
}

func (s *captureSink) all() []models.ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ProgressSnapshot(nil), s.snaps...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPollerDeliversOnlyChanges(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	cache := NewCache(time.Minute, nil)
	sink := &captureSink{}
	poller := NewPoller(10*time.Millisecond, cache, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Watch(ctx, "j1", store)

	require.NoError(t, store.Write(models.ProgressSnapshot{Status: models.JobStatusRunning, CurrentIteration: 1}))
	waitFor(t, func() bool { return len(sink.all()) >= 1 })

	// Unchanged file produces no further deliveries
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, sink.all(), 1)

	require.NoError(t, store.Write(models.ProgressSnapshot{CurrentIteration: 2}))
	waitFor(t, func() bool { return len(sink.all()) >= 2 })

	snaps := sink.all()
	assert.Equal(t, 1, snaps[0].CurrentIteration)
	assert.Equal(t, 2, snaps[1].CurrentIteration)
	assert.Equal(t, models.JobStatusRunning, snaps[1].Status, "merge keeps earlier fields")

	cached, ok := cache.Get("j1")
	require.True(t, ok)
	assert.Equal(t, 2, cached.CurrentIteration)
}

func TestPollerKeepsLastGoodOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	cache := NewCache(time.Minute, nil)
	sink := &captureSink{}
	poller := NewPoller(10*time.Millisecond, cache, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Watch(ctx, "j1", store)

	require.NoError(t, store.Write(models.ProgressSnapshot{Status: models.JobStatusRunning, CurrentIteration: 4}))
	waitFor(t, func() bool { return len(sink.all()) >= 1 })

	// Clobber the file directly to simulate a torn write
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProgressFile), []byte("{torn"), 0644))
	time.Sleep(60 * time.Millisecond)

	assert.Len(t, sink.all(), 1, "transient reads deliver nothing")
	cached, ok := cache.Get("j1")
	require.True(t, ok)
	assert.Equal(t, 4, cached.CurrentIteration)
}

func TestPollerStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	cache := NewCache(time.Minute, nil)
	sink := &captureSink{}
	poller := NewPoller(10*time.Millisecond, cache, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Watch(ctx, "j1", store)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancel")
	}
}

func TestCacheRetentionExpiresTerminalState(t *testing.T) {
	var mu sync.Mutex
	var expired []string
	cache := NewCache(50*time.Millisecond, func(jobID, dir string) {
		mu.Lock()
		defer mu.Unlock()
		expired = append(expired, jobID)
	})

	cache.Set("j1", models.ProgressSnapshot{Status: models.JobStatusRunning})
	cache.Finish("j1", models.ProgressSnapshot{Status: models.JobStatusCompleted}, t.TempDir())

	snap, ok := cache.Get("j1")
	require.True(t, ok, "terminal state visible inside retention window")
	assert.Equal(t, models.JobStatusCompleted, snap.Status)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(expired) == 1
	})

	_, ok = cache.Get("j1")
	assert.False(t, ok, "terminal state gone after retention")
}
