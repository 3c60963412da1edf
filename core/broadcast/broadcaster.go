// Package broadcast fans progress snapshots out to live subscribers.
// Delivery is lossy on purpose: a subscriber that cannot keep up loses
// intermediate snapshots, never the terminal one, and never blocks the
// publisher or other subscribers.
package broadcast

import (
	"log"
	"sync"

	"training-orchestrator/core/models"
)

const subscriberBuffer = 16

type subscriber struct {
	ch chan models.ProgressSnapshot
}

// Broadcaster distributes per-job snapshot streams
type Broadcaster struct {
	mu       sync.Mutex
	jobs     map[string]map[*subscriber]struct{}
	finished map[string]bool
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		jobs:     make(map[string]map[*subscriber]struct{}),
		finished: make(map[string]bool),
	}
}

// Subscribe registers interest in a job's snapshots. The returned
// cancel func is idempotent and must be called when the caller is done.
// Subscribing to a finished job returns a channel that is already
// closed, so late subscribers terminate immediately and read the final
// state elsewhere.
func (b *Broadcaster) Subscribe(jobID string) (<-chan models.ProgressSnapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan models.ProgressSnapshot, subscriberBuffer)}

	if b.finished[jobID] {
		close(sub.ch)
		return sub.ch, func() {}
	}

	subs, ok := b.jobs[jobID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		b.jobs[jobID] = subs
	}
	subs[sub] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.jobs[jobID]; ok {
				if _, live := subs[sub]; live {
					delete(subs, sub)
					close(sub.ch)
					if len(subs) == 0 {
						delete(b.jobs, jobID)
					}
				}
			}
		})
	}
	return sub.ch, cancel
}

// Publish delivers a snapshot to every subscriber of the job without
// blocking. Full subscriber buffers drop the snapshot for that
// subscriber only.
func (b *Broadcaster) Publish(jobID string, snap models.ProgressSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.jobs[jobID] {
		select {
		case sub.ch <- snap:
		default:
			log.Printf("Dropping snapshot for slow subscriber of job %s", jobID)
		}
	}
}

// Finish delivers the terminal snapshot and closes every subscriber
// channel. The terminal snapshot is guaranteed delivery: the publisher
// makes room by discarding the subscriber's oldest buffered snapshot.
func (b *Broadcaster) Finish(jobID string, final models.ProgressSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finished[jobID] {
		return
	}
	b.finished[jobID] = true

	for sub := range b.jobs[jobID] {
		for {
			select {
			case sub.ch <- final:
			default:
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
		close(sub.ch)
	}
	delete(b.jobs, jobID)
}

// Forget clears the finished marker for a job so its id can be reused.
// Called when a job's retained state expires.
func (b *Broadcaster) Forget(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.finished, jobID)
}
