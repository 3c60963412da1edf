// Package launcher starts and tracks worker processes. Each job runs
// in its own OS process rooted in a private working directory, so a
// crashing training round can never take the orchestrator down with it.
package launcher

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"training-orchestrator/core/models"
	"training-orchestrator/core/progress"
)

// Launcher spawns worker processes and enforces at most one live
// process per job id.
type Launcher struct {
	workerBin string
	baseDir   string
	extraEnv  []string

	mu      sync.Mutex
	handles map[string]*ProcessHandle
}

// NewLauncher creates a launcher. extraEnv entries are appended to the
// inherited environment of every worker.
func NewLauncher(workerBin, baseDir string, extraEnv []string) *Launcher {
	return &Launcher{
		workerBin: workerBin,
		baseDir:   baseDir,
		extraEnv:  extraEnv,
		handles:   make(map[string]*ProcessHandle),
	}
}

// WorkDir returns the working directory a job would run in, without
// creating anything.
func (l *Launcher) WorkDir(jobID string) string {
	return filepath.Join(l.baseDir, jobID)
}

// PrepareWorkDir creates the job's private working directory and writes
// its config.json.
func (l *Launcher) PrepareWorkDir(job *models.Job) (string, error) {
	dir := l.WorkDir(job.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create working directory: %w", err)
	}
	if err := progress.WriteConfig(dir, job); err != nil {
		return "", err
	}
	return dir, nil
}

// Launch starts the worker process for a job. The returned handle is
// registered until Release; a second Launch for the same job id fails
// without spawning anything.
func (l *Launcher) Launch(job *models.Job, dir string) (*ProcessHandle, error) {
	l.mu.Lock()
	if _, exists := l.handles[job.ID]; exists {
		l.mu.Unlock()
		return nil, fmt.Errorf("job %s already has a live worker", job.ID)
	}
	// Reserve the slot before releasing the lock so concurrent
	// launches cannot both spawn.
	l.handles[job.ID] = nil
	l.mu.Unlock()

	handle, err := startWorker(job.ID, l.workerBin, dir, l.extraEnv)
	l.mu.Lock()
	if err != nil {
		delete(l.handles, job.ID)
		l.mu.Unlock()
		return nil, err
	}
	l.handles[job.ID] = handle
	l.mu.Unlock()

	log.Printf("Launched worker for job %s (pid %d)", job.ID, handle.Pid())
	return handle, nil
}

func startWorker(jobID, workerBin, dir string, extraEnv []string) (*ProcessHandle, error) {
	cmd := exec.Command(workerBin, "--workdir", dir)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), extraEnv...)

	handle := newProcessHandle(jobID, cmd)
	if err := handle.start(); err != nil {
		return nil, fmt.Errorf("failed to launch worker: %w", err)
	}
	return handle, nil
}

// Handle returns the live handle for a job, if any
func (l *Launcher) Handle(jobID string) (*ProcessHandle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handles[jobID]
	return h, ok && h != nil
}

// Release drops the registration for a finished job so its id can be
// launched again later.
func (l *Launcher) Release(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handles, jobID)
}
