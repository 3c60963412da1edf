package lifecycle

import (
	"sync"
	"testing"

	"training-orchestrator/core/models"
	"training-orchestrator/core/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store with the same conditional-update
// semantics as the database repository.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*models.Job)}
}

func (s *memStore) add(job *models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *memStore) GetJob(id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *memStore) UpdateJobStatus(jobID string, fromStatus, toStatus models.JobStatus, reason string, fields repository.StatusFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return models.ErrJobNotFound
	}
	if job.Status != fromStatus {
		return models.ErrStatusConflict
	}
	job.Status = toStatus
	if fields.StartedAt != nil {
		job.StartedAt = fields.StartedAt
	}
	if fields.OutputDir != nil {
		job.OutputDir = *fields.OutputDir
	}
	if fields.CompletedAt != nil {
		job.CompletedAt = fields.CompletedAt
	}
	if fields.ResultRef != nil {
		job.ResultRef = *fields.ResultRef
	}
	if fields.ErrorKind != nil {
		job.ErrorKind = *fields.ErrorKind
	}
	if fields.ErrorMessage != nil {
		job.ErrorMessage = *fields.ErrorMessage
	}
	return nil
}

func TestStartTransitionsPendingToRunning(t *testing.T) {
	store := newMemStore()
	store.add(&models.Job{ID: "j1", Status: models.JobStatusPending})
	m := NewManager(store)

	require.NoError(t, m.Start("j1", "/data/training/j1"))

	job, err := store.GetJob("j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.NotNil(t, job.StartedAt)
	assert.Equal(t, "/data/training/j1", job.OutputDir)
}

func TestStartRefusesNonPending(t *testing.T) {
	store := newMemStore()
	store.add(&models.Job{ID: "j1", Status: models.JobStatusRunning})
	m := NewManager(store)

	err := m.Start("j1", "/data/training/j1")
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStartRefusesTerminal(t *testing.T) {
	store := newMemStore()
	store.add(&models.Job{ID: "j1", Status: models.JobStatusCompleted})
	m := NewManager(store)

	assert.ErrorIs(t, m.Start("j1", "/data/training/j1"), ErrAlreadyRunning)
}

func TestConcurrentStartExactlyOneWins(t *testing.T) {
	store := newMemStore()
	store.add(&models.Job{ID: "j1", Status: models.JobStatusPending})
	m := NewManager(store)

	const n = 16
	results := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.Start("j1", "/data/training/j1")
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyRunning)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestMarkCompletedSetsResultRef(t *testing.T) {
	store := newMemStore()
	store.add(&models.Job{ID: "j1", Status: models.JobStatusRunning})
	m := NewManager(store)

	require.NoError(t, m.MarkCompleted("j1", "/data/j1/final_results.json"))

	job, _ := store.GetJob("j1")
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "/data/j1/final_results.json", job.ResultRef)
	assert.NotNil(t, job.CompletedAt)
}

func TestMarkFailedClassifiesError(t *testing.T) {
	store := newMemStore()
	store.add(&models.Job{ID: "j1", Status: models.JobStatusRunning})
	m := NewManager(store)

	require.NoError(t, m.MarkFailed("j1", models.ErrKindProcessCrashed, "exit status 1"))

	job, _ := store.GetJob("j1")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, models.ErrKindProcessCrashed, job.ErrorKind)
	assert.Equal(t, "exit status 1", job.ErrorMessage)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	store := newMemStore()
	store.add(&models.Job{ID: "j1", Status: models.JobStatusFailed})
	m := NewManager(store)

	assert.ErrorIs(t, m.MarkCompleted("j1", "x"), models.ErrStatusConflict)
	assert.ErrorIs(t, m.MarkFailed("j1", models.ErrKindCancelled, ""), models.ErrStatusConflict)
}

func TestMarkFailedFromPending(t *testing.T) {
	store := newMemStore()
	store.add(&models.Job{ID: "j1", Status: models.JobStatusPending})
	m := NewManager(store)

	require.NoError(t, m.MarkFailedFrom("j1", models.JobStatusPending, models.ErrKindProcessLaunchFailed, "no such binary"))

	job, _ := store.GetJob("j1")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, models.ErrKindProcessLaunchFailed, job.ErrorKind)
}
