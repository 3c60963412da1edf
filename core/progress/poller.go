package progress

import (
	"context"
	"log"
	"time"

	"training-orchestrator/core/models"
)

// Sink receives the snapshots a poller decides are worth delivering
type Sink interface {
	Publish(jobID string, snap models.ProgressSnapshot)
}

// Poller watches working directories for progress changes on a fixed
// interval and pushes changed snapshots into the cache and the sink.
type Poller struct {
	interval time.Duration
	cache    *Cache
	sink     Sink
}

// NewPoller creates a poller
func NewPoller(interval time.Duration, cache *Cache, sink Sink) *Poller {
	return &Poller{interval: interval, cache: cache, sink: sink}
}

// Watch polls the job's working directory until ctx is cancelled or a
// terminal snapshot has been delivered, pushing a snapshot only when it
// differs from the last delivered one. Transient read failures keep the
// previous snapshot; they are logged once in a while and never change
// job state.
func (p *Poller) Watch(ctx context.Context, jobID string, store *Store) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	last, _ := p.cache.Get(jobID)
	var transientStreak int

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := store.Read()
		if err != nil {
			transientStreak++
			if transientStreak == 1 || transientStreak%20 == 0 {
				log.Printf("Transient progress read for job %s (streak %d): %v", jobID, transientStreak, err)
			}
			continue
		}
		transientStreak = 0

		if snap.Equal(last) {
			continue
		}
		last = snap
		p.cache.Set(jobID, snap)
		p.sink.Publish(jobID, snap)

		// Nothing more can change once the worker reports terminal
		if snap.Status.Terminal() {
			return
		}
	}
}
