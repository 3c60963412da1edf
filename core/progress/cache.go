package progress

import (
	"sync"
	"time"

	"training-orchestrator/core/models"

	gocache "github.com/patrickmn/go-cache"
)

// terminalEntry keeps a finished job's last snapshot together with its
// working directory so expiry can clean both up at once.
type terminalEntry struct {
	snap models.ProgressSnapshot
	dir  string
}

// Cache holds the cumulative in-memory progress view per job. Live
// jobs are kept until they finish; terminal state is retained for a
// bounded window so late readers still see the final snapshot, then
// expires together with the job's working directory.
type Cache struct {
	mu       sync.RWMutex
	live     map[string]models.ProgressSnapshot
	terminal *gocache.Cache
}

// NewCache creates a progress cache. onExpire runs once per finished
// job when its retention window lapses, with the job id and working
// directory.
func NewCache(retention time.Duration, onExpire func(jobID, dir string)) *Cache {
	terminal := gocache.New(retention, retention/2+time.Second)
	if onExpire != nil {
		terminal.OnEvicted(func(jobID string, v interface{}) {
			entry := v.(terminalEntry)
			onExpire(jobID, entry.dir)
		})
	}
	return &Cache{
		live:     make(map[string]models.ProgressSnapshot),
		terminal: terminal,
	}
}

// Set replaces a live job's cumulative snapshot
func (c *Cache) Set(jobID string, snap models.ProgressSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live[jobID] = snap
}

// Get returns the current snapshot for a job, live or retained
func (c *Cache) Get(jobID string) (models.ProgressSnapshot, bool) {
	c.mu.RLock()
	snap, ok := c.live[jobID]
	c.mu.RUnlock()
	if ok {
		return snap, true
	}
	if v, found := c.terminal.Get(jobID); found {
		return v.(terminalEntry).snap, true
	}
	return models.ProgressSnapshot{}, false
}

// Finish moves a job from the live view into the retention window
func (c *Cache) Finish(jobID string, snap models.ProgressSnapshot, dir string) {
	c.mu.Lock()
	delete(c.live, jobID)
	c.mu.Unlock()
	c.terminal.SetDefault(jobID, terminalEntry{snap: snap, dir: dir})
}

// Drop removes a job from the live view without retention. Used when a
// job is torn down before producing anything worth keeping.
func (c *Cache) Drop(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.live, jobID)
}
