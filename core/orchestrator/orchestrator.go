// Package orchestrator ties the job subsystems together: it owns job
// creation and start, wires each running job to a progress poller and
// a completion watcher, fans live updates out to subscribers and chains
// a follow-up training job after a successful search.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"training-orchestrator/config"
	"training-orchestrator/core/broadcast"
	"training-orchestrator/core/launcher"
	"training-orchestrator/core/lifecycle"
	"training-orchestrator/core/models"
	"training-orchestrator/core/progress"
	"training-orchestrator/core/repository"
	"training-orchestrator/core/spec"

	"github.com/robfig/cron/v3"
)

// ErrConfigInvalid wraps job spec validation failures so the API layer
// can map them to a client error.
var ErrConfigInvalid = errors.New("invalid job config")

// JobStore is the persistence surface the orchestrator needs.
// Satisfied by repository.JobRepository.
type JobStore interface {
	CreateJob(job *models.Job) error
	GetJob(id string) (*models.Job, error)
	ListJobs(status *models.JobStatus, limit int) ([]*models.Job, error)
	UpdateJobStatus(jobID string, fromStatus, toStatus models.JobStatus, reason string, fields repository.StatusFields) error
}

// Orchestrator coordinates the lifetime of training and search jobs
type Orchestrator struct {
	cfg         *config.Config
	store       JobStore
	lifecycle   *lifecycle.Manager
	launcher    *launcher.Launcher
	watcher     *launcher.Watcher
	cache       *progress.Cache
	poller      *progress.Poller
	broadcaster *broadcast.Broadcaster
	cron        *cron.Cron

	mu       sync.Mutex
	watching map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// New wires an orchestrator from its configuration
func New(cfg *config.Config, store JobStore) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		store:       store,
		lifecycle:   lifecycle.NewManager(store),
		launcher:    launcher.NewLauncher(cfg.WorkerBin, cfg.TrainingDir, workerEnv(cfg)),
		broadcaster: broadcast.NewBroadcaster(),
		cron:        cron.New(),
		watching:    make(map[string]context.CancelFunc),
	}
	o.watcher = launcher.NewWatcher(o.lifecycle)
	o.cache = progress.NewCache(cfg.Retention, o.onRetentionExpired)
	o.poller = progress.NewPoller(cfg.PollInterval, o.cache, o.broadcaster)
	return o
}

func workerEnv(cfg *config.Config) []string {
	return []string{
		"TRAINER_COMMAND=" + cfg.TrainerCommand,
		"DEVICE=" + cfg.Device,
	}
}

// Start runs the orphan sweep once and schedules it. Jobs marked
// running in the database without a live worker are leftovers of a
// previous orchestrator process and are failed as crashed.
func (o *Orchestrator) Start() error {
	o.sweepOrphans()
	if _, err := o.cron.AddFunc("@every 1m", o.sweepOrphans); err != nil {
		return fmt.Errorf("failed to schedule orphan sweep: %w", err)
	}
	o.cron.Start()
	return nil
}

// Stop halts the sweep scheduler and waits for per-job goroutines
func (o *Orchestrator) Stop() {
	ctx := o.cron.Stop()
	<-ctx.Done()
	o.wg.Wait()
}

// CreateJob validates a YAML job spec and persists a pending job
func (o *Orchestrator) CreateJob(name, specYAML string) (*models.Job, error) {
	job, err := spec.ParseJobSpec(specYAML)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if name != "" {
		job.Name = name
	}
	if job.Config.Device == "" {
		job.Config.Device = o.cfg.Device
	}
	if err := o.store.CreateJob(job); err != nil {
		return nil, err
	}
	log.Printf("Created %s job %s (%s)", job.Kind, job.ID, job.Name)
	return job, nil
}

// StartJob launches the worker process for a pending job. Exactly one
// of any number of concurrent starts wins; the rest get
// lifecycle.ErrAlreadyRunning.
func (o *Orchestrator) StartJob(id string) error {
	job, err := o.store.GetJob(id)
	if err != nil {
		return err
	}

	workDir := o.launcher.WorkDir(job.ID)
	if err := o.lifecycle.Start(job.ID, workDir); err != nil {
		return err
	}

	dir, err := o.launcher.PrepareWorkDir(job)
	if err != nil {
		return o.failLaunch(job.ID, err)
	}
	job.OutputDir = dir

	handle, err := o.launcher.Launch(job, dir)
	if err != nil {
		return o.failLaunch(job.ID, err)
	}

	o.cache.Set(job.ID, models.ProgressSnapshot{
		Status:          models.JobStatusRunning,
		TotalIterations: totalIterations(job),
	})

	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.watching[job.ID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go o.supervise(ctx, job, handle, dir)
	return nil
}

func totalIterations(job *models.Job) int {
	if job.Kind == models.JobKindSearch {
		return job.Config.Iterations
	}
	return 1
}

// failLaunch records a launch failure and reports it to the caller
func (o *Orchestrator) failLaunch(jobID string, cause error) error {
	msg := cause.Error()
	if err := o.lifecycle.MarkFailed(jobID, models.ErrKindProcessLaunchFailed, msg); err != nil {
		log.Printf("Failed to record launch failure for job %s: %v", jobID, err)
	}
	o.finishFailed(jobID, msg, "")
	return fmt.Errorf("failed to launch job %s: %w", jobID, cause)
}

// finishFailed publishes a terminal failed snapshot for a job whose
// worker never produced one, so subscribers are released rather than
// left waiting on heartbeats.
func (o *Orchestrator) finishFailed(jobID, msg, dir string) {
	final := models.EmptySnapshot().Merge(models.ProgressSnapshot{
		Status: models.JobStatusFailed,
		Error:  msg,
	})
	o.cache.Finish(jobID, final, dir)
	o.broadcaster.Finish(jobID, final)
}

// supervise runs for the whole lifetime of one worker process
func (o *Orchestrator) supervise(ctx context.Context, job *models.Job, handle *launcher.ProcessHandle, dir string) {
	defer o.wg.Done()

	store := progress.NewStore(dir)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		o.poller.Watch(ctx, job.ID, store)
	}()

	outcome := o.watcher.Await(job, handle, dir)

	o.mu.Lock()
	if cancel, ok := o.watching[job.ID]; ok {
		cancel()
		delete(o.watching, job.ID)
	}
	o.mu.Unlock()
	<-pollDone

	final := o.finalSnapshot(job.ID, store, outcome)
	o.cache.Finish(job.ID, final, dir)
	o.broadcaster.Finish(job.ID, final)
	o.launcher.Release(job.ID)

	log.Printf("Job %s finished: %s", job.ID, outcome.Status)

	if outcome.Status == models.JobStatusCompleted && job.Kind == models.JobKindSearch {
		o.chainFollowUp(job, outcome.ResultRef)
	}
}

// finalSnapshot merges the worker's last progress with the reconciled
// terminal state. The terminal status always wins over whatever the
// worker last wrote.
func (o *Orchestrator) finalSnapshot(jobID string, store *progress.Store, outcome launcher.Outcome) models.ProgressSnapshot {
	snap, err := store.Read()
	if err != nil {
		if cached, ok := o.cache.Get(jobID); ok {
			snap = cached
		} else {
			snap = models.EmptySnapshot()
		}
	}
	return snap.Merge(models.ProgressSnapshot{
		Status: outcome.Status,
		Error:  outcome.ErrorMessage,
	})
}

// chainFollowUp creates and starts a training job with the best
// parameters a completed search found.
func (o *Orchestrator) chainFollowUp(parent *models.Job, resultRef string) {
	result, err := progress.ReadFinalResults(resultRef)
	if err != nil {
		log.Printf("Skipping follow-up for search %s: %v", parent.ID, err)
		return
	}

	child := &models.Job{
		Name:   followUpName(parent),
		Kind:   models.JobKindTraining,
		Status: models.JobStatusPending,
		Config: models.JobConfig{
			Dataset:         parent.Config.Dataset,
			Model:           parent.Config.Model,
			Device:          parent.Config.Device,
			Metric:          parent.Config.Metric,
			Seed:            parent.Config.Seed,
			Hyperparameters: result.BestParams,
		},
	}
	if err := o.store.CreateJob(child); err != nil {
		log.Printf("Failed to create follow-up for search %s: %v", parent.ID, err)
		return
	}
	log.Printf("Search %s chained follow-up training job %s", parent.ID, child.ID)

	if err := o.StartJob(child.ID); err != nil {
		log.Printf("Failed to start follow-up %s: %v", child.ID, err)
	}
}

func followUpName(parent *models.Job) string {
	base := parent.Name
	if base == "" {
		base = parent.ID
	}
	return base + "-best"
}

// CancelJob stops a job. Pending jobs are failed directly; running
// jobs have their worker killed and the completion watcher records the
// cancellation. Terminal jobs cannot be cancelled.
func (o *Orchestrator) CancelJob(id string) error {
	job, err := o.store.GetJob(id)
	if err != nil {
		return err
	}

	switch job.Status {
	case models.JobStatusPending:
		if err := o.lifecycle.MarkFailedFrom(id, models.JobStatusPending, models.ErrKindCancelled, "cancelled by request"); err != nil {
			return err
		}
		o.finishFailed(id, "cancelled by request", "")
		return nil

	case models.JobStatusRunning:
		handle, ok := o.launcher.Handle(id)
		if !ok {
			// Running in the database but no live worker here; the
			// orphan sweep owns this case, cancel just hurries it.
			if err := o.lifecycle.MarkFailed(id, models.ErrKindCancelled, "cancelled by request"); err != nil {
				return err
			}
			o.finishFailed(id, "cancelled by request", o.launcher.WorkDir(id))
			return nil
		}
		handle.MarkCancelled()
		if err := handle.Kill(); err != nil {
			return fmt.Errorf("failed to kill worker for job %s: %w", id, err)
		}
		return nil

	default:
		return models.ErrStatusConflict
	}
}

// GetJob returns a job by id
func (o *Orchestrator) GetJob(id string) (*models.Job, error) {
	return o.store.GetJob(id)
}

// ListJobs lists jobs with an optional status filter
func (o *Orchestrator) ListJobs(status *models.JobStatus, limit int) ([]*models.Job, error) {
	return o.store.ListJobs(status, limit)
}

// Progress returns the current cumulative snapshot for a job
func (o *Orchestrator) Progress(id string) (models.ProgressSnapshot, error) {
	if snap, ok := o.cache.Get(id); ok {
		return snap, nil
	}
	job, err := o.store.GetJob(id)
	if err != nil {
		return models.ProgressSnapshot{}, err
	}
	// Nothing cached: surface the durable status
	snap := models.EmptySnapshot()
	snap.Status = job.Status
	if job.ErrorMessage != "" {
		snap.Error = job.ErrorMessage
	}
	return snap, nil
}

// Subscribe attaches a live snapshot stream for a job
func (o *Orchestrator) Subscribe(id string) (<-chan models.ProgressSnapshot, func()) {
	return o.broadcaster.Subscribe(id)
}

// sweepOrphans fails database-running jobs that have no live worker in
// this process. Covers orchestrator restarts mid-job.
func (o *Orchestrator) sweepOrphans() {
	running := models.JobStatusRunning
	jobs, err := o.store.ListJobs(&running, 1000)
	if err != nil {
		log.Printf("Orphan sweep failed to list jobs: %v", err)
		return
	}
	for _, job := range jobs {
		if _, live := o.launcher.Handle(job.ID); live {
			continue
		}
		// Grace window so a job between its status flip and its
		// launch registration is not swept mid-start.
		if job.StartedAt != nil && time.Since(*job.StartedAt) < 30*time.Second {
			continue
		}
		msg := "worker lost: no live process for running job"
		err := o.lifecycle.MarkFailed(job.ID, models.ErrKindProcessCrashed, msg)
		if err != nil && !errors.Is(err, models.ErrStatusConflict) {
			log.Printf("Orphan sweep failed for job %s: %v", job.ID, err)
			continue
		}
		if err == nil {
			log.Printf("Orphan sweep failed job %s: no live worker", job.ID)
			o.finishFailed(job.ID, msg, o.launcher.WorkDir(job.ID))
		}
	}
}

// onRetentionExpired runs when a finished job's retention lapses
func (o *Orchestrator) onRetentionExpired(jobID, dir string) {
	o.broadcaster.Forget(jobID)
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("Failed to clean working directory for job %s: %v", jobID, err)
	} else {
		log.Printf("Cleaned working directory for job %s", jobID)
	}
}
