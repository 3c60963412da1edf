// Package worker is the body of the per-job worker process. It reads
// the job config placed in its working directory, runs training rounds
// and reports through progress.json and a result artifact. It never
// talks to the database; the orchestrator owns all durable state.
package worker

import (
	"context"
	"fmt"
	"log"

	"training-orchestrator/core/models"
	"training-orchestrator/core/optimizer"
	"training-orchestrator/core/progress"
	"training-orchestrator/training"
)

// Worker executes one job inside its working directory
type Worker struct {
	dir     string
	store   *progress.Store
	trainer training.Trainer
}

// New creates a worker rooted at dir
func New(dir string, trainer training.Trainer) *Worker {
	return &Worker{
		dir:     dir,
		store:   progress.NewStore(dir),
		trainer: trainer,
	}
}

// Run executes the configured job to completion. Any returned error
// has already been mirrored into progress.json so the orchestrator and
// subscribers see the failure reason even before process exit.
func (w *Worker) Run(ctx context.Context) error {
	cfg, err := progress.ReadConfig(w.dir)
	if err != nil {
		return w.fail(fmt.Errorf("unusable working directory: %w", err))
	}

	switch cfg.Kind {
	case models.JobKindSearch:
		return w.runSearch(ctx, cfg)
	default:
		return w.runTraining(ctx, cfg)
	}
}

func (w *Worker) runTraining(ctx context.Context, cfg *progress.WorkerConfig) error {
	log.Printf("Starting training job %s on dataset %s", cfg.JobID, cfg.Config.Dataset)
	if err := w.store.Write(models.ProgressSnapshot{
		Status:          models.JobStatusRunning,
		TotalIterations: 1,
		CurrentParams:   cfg.Config.Hyperparameters,
	}); err != nil {
		return err
	}

	metrics, err := w.trainer.Train(ctx, cfg.Config, cfg.Config.Hyperparameters, cfg.Config.Seed)
	if err != nil {
		return w.fail(fmt.Errorf("training round failed: %w", err))
	}

	if err := progress.WriteResults(w.dir, models.TrainingResult{
		Metrics: metrics,
		Params:  cfg.Config.Hyperparameters,
	}); err != nil {
		return w.fail(err)
	}

	return w.store.Write(models.ProgressSnapshot{
		Status:           models.JobStatusCompleted,
		CurrentIteration: 1,
		BestMetrics:      metrics,
	})
}

func (w *Worker) runSearch(ctx context.Context, cfg *progress.WorkerConfig) error {
	iterations := cfg.Config.Iterations
	log.Printf("Starting search job %s: %d iterations over %d parameters",
		cfg.JobID, iterations, len(cfg.Config.SearchSpace))

	search := optimizer.NewRandomSearch(cfg.Config.SearchSpace, cfg.Config.Seed, cfg.Config.MetricKey())
	if err := w.store.Write(models.ProgressSnapshot{
		Status:          models.JobStatusRunning,
		TotalIterations: iterations,
	}); err != nil {
		return err
	}

	for i := 1; i <= iterations; i++ {
		params := search.Sample()
		if err := w.store.Write(models.ProgressSnapshot{
			CurrentIteration: i,
			CurrentParams:    params,
		}); err != nil {
			return w.fail(err)
		}

		// Each iteration gets its own derived seed so rounds differ
		// while the whole search stays reproducible.
		metrics, err := w.trainer.Train(ctx, cfg.Config, params, cfg.Config.Seed+int64(i))
		if err != nil {
			return w.fail(fmt.Errorf("iteration %d failed: %w", i, err))
		}

		search.Observe(params, metrics, i)
		patch := models.ProgressSnapshot{Trials: search.Trials()}
		if best, ok := search.Best(); ok {
			patch.BestParams = best.Parameters
			patch.BestMetrics = best.Metrics
		}
		if err := w.store.Write(patch); err != nil {
			return w.fail(err)
		}
	}

	result := models.SearchResult{
		MetricKey: search.MetricKey(),
		Trials:    search.Trials(),
	}
	if best, ok := search.Best(); ok {
		result.BestParams = best.Parameters
		result.BestMetrics = best.Metrics
	} else {
		// No trial carried the ranking metric, probably a metric key
		// mismatch. Hand back a usable parameter set anyway and flag
		// it instead of scrapping the whole search.
		log.Printf("Search job %s: no trial produced metric %q, recording a sampled fallback", cfg.JobID, search.MetricKey())
		result.BestParams = search.BestOrSample()
		result.NoScoredTrials = true
	}

	if err := progress.WriteFinalResults(w.dir, result); err != nil {
		return w.fail(err)
	}

	return w.store.Write(models.ProgressSnapshot{Status: models.JobStatusCompleted})
}

// fail mirrors the error into progress.json before propagating it
func (w *Worker) fail(err error) error {
	if werr := w.store.Write(models.ProgressSnapshot{
		Status: models.JobStatusFailed,
		Error:  err.Error(),
	}); werr != nil {
		log.Printf("Failed to record worker error: %v", werr)
	}
	return err
}
