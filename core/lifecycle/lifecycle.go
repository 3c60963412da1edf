// Package lifecycle owns the job status state machine. All transitions
// go through the Manager so the allowed edges live in one place:
// pending -> running -> completed | failed, with pending -> failed for
// jobs that never launch.
package lifecycle

import (
	"errors"
	"fmt"
	"log"
	"time"

	"training-orchestrator/core/models"
	"training-orchestrator/core/repository"
)

// ErrAlreadyRunning is returned by Start when the job is not pending,
// which covers duplicate starts and starts of terminal jobs.
var ErrAlreadyRunning = errors.New("job is not pending")

// Store is the persistence surface the manager needs. Satisfied by
// repository.JobRepository.
type Store interface {
	GetJob(id string) (*models.Job, error)
	UpdateJobStatus(jobID string, fromStatus, toStatus models.JobStatus, reason string, fields repository.StatusFields) error
}

// Manager applies status transitions
type Manager struct {
	store Store
}

// NewManager creates a lifecycle manager
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Start transitions a job from pending to running and records its
// working directory. The conditional update is the duplicate-start
// guard: two concurrent starts race on the same row and exactly one
// wins.
func (m *Manager) Start(jobID, outputDir string) error {
	now := time.Now().UTC()
	err := m.store.UpdateJobStatus(jobID, models.JobStatusPending, models.JobStatusRunning, "job_started", repository.StatusFields{
		StartedAt: &now,
		OutputDir: &outputDir,
	})
	if errors.Is(err, models.ErrStatusConflict) {
		log.Printf("Start refused for job %s: not pending", jobID)
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, jobID)
	}
	return err
}

// MarkCompleted transitions a running job to completed with its result
// reference.
func (m *Manager) MarkCompleted(jobID, resultRef string) error {
	now := time.Now().UTC()
	return m.store.UpdateJobStatus(jobID, models.JobStatusRunning, models.JobStatusCompleted, "job_completed", repository.StatusFields{
		CompletedAt: &now,
		ResultRef:   &resultRef,
	})
}

// MarkFailed transitions a running job to failed with an error
// classification.
func (m *Manager) MarkFailed(jobID string, kind models.ErrorKind, message string) error {
	now := time.Now().UTC()
	return m.store.UpdateJobStatus(jobID, models.JobStatusRunning, models.JobStatusFailed, string(kind), repository.StatusFields{
		CompletedAt:  &now,
		ErrorKind:    &kind,
		ErrorMessage: &message,
	})
}

// MarkFailedFrom is MarkFailed for jobs that never reached running,
// such as launch failures observed before the pending->running edge.
func (m *Manager) MarkFailedFrom(jobID string, from models.JobStatus, kind models.ErrorKind, message string) error {
	now := time.Now().UTC()
	return m.store.UpdateJobStatus(jobID, from, models.JobStatusFailed, string(kind), repository.StatusFields{
		CompletedAt:  &now,
		ErrorKind:    &kind,
		ErrorMessage: &message,
	})
}
