package launcher

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"training-orchestrator/core/lifecycle"
	"training-orchestrator/core/models"
	"training-orchestrator/core/progress"
)

// Outcome is the reconciled terminal state of a worker process
type Outcome struct {
	Status       models.JobStatus
	ErrorKind    models.ErrorKind
	ErrorMessage string
	ResultRef    string
}

// Watcher reconciles worker exits into terminal job states
type Watcher struct {
	lifecycle *lifecycle.Manager
}

// NewWatcher creates a completion watcher
func NewWatcher(lc *lifecycle.Manager) *Watcher {
	return &Watcher{lifecycle: lc}
}

// Await blocks until the job's worker exits, classifies the exit and
// records the terminal transition. An intentional kill is reported as
// cancellation; a nonzero exit as a crash with the stderr tail; a clean
// exit without the promised artifact as a missing result.
func (w *Watcher) Await(job *models.Job, handle *ProcessHandle, dir string) Outcome {
	exitCode, stderrTail := handle.Wait()

	outcome := w.classify(job, handle, dir, exitCode, stderrTail)
	w.record(job.ID, outcome)
	return outcome
}

func (w *Watcher) classify(job *models.Job, handle *ProcessHandle, dir string, exitCode int, stderrTail string) Outcome {
	if handle.Cancelled() {
		return Outcome{
			Status:       models.JobStatusFailed,
			ErrorKind:    models.ErrKindCancelled,
			ErrorMessage: "cancelled by request",
		}
	}

	if exitCode != 0 {
		msg := fmt.Sprintf("worker exited with code %d", exitCode)
		if tail := strings.TrimSpace(stderrTail); tail != "" {
			msg = fmt.Sprintf("%s: %s", msg, tail)
		}
		return Outcome{
			Status:       models.JobStatusFailed,
			ErrorKind:    models.ErrKindProcessCrashed,
			ErrorMessage: msg,
		}
	}

	resultPath, err := progress.ResultPath(dir, job.Kind)
	if err != nil {
		return Outcome{
			Status:       models.JobStatusFailed,
			ErrorKind:    models.ErrKindResultMissing,
			ErrorMessage: fmt.Sprintf("worker exited cleanly without %s", progress.ResultFileFor(job.Kind)),
		}
	}

	return Outcome{
		Status:    models.JobStatusCompleted,
		ResultRef: resultPath,
	}
}

func (w *Watcher) record(jobID string, outcome Outcome) {
	var err error
	if outcome.Status == models.JobStatusCompleted {
		err = w.lifecycle.MarkCompleted(jobID, outcome.ResultRef)
	} else {
		err = w.lifecycle.MarkFailed(jobID, outcome.ErrorKind, outcome.ErrorMessage)
	}
	if errors.Is(err, models.ErrStatusConflict) {
		// Someone already recorded a terminal state for this job
		log.Printf("Job %s already terminal, dropping %s outcome", jobID, outcome.Status)
	} else if err != nil {
		log.Printf("Failed to record outcome for job %s: %v", jobID, err)
	}
}
