package models

import "reflect"

// ProgressSnapshot is the unit exchanged through the progress store.
// Worker writes may be partial; readers merge them into a cumulative
// view, so a zero field here means "not written", not "reset".
type ProgressSnapshot struct {
	Status           JobStatus `json:"status,omitempty"`
	CurrentIteration int       `json:"current_iteration,omitempty"`
	TotalIterations  int       `json:"total_iterations,omitempty"`
	CurrentParams    ParamSet  `json:"current_params,omitempty"`
	BestParams       ParamSet  `json:"best_params,omitempty"`
	BestMetrics      Metrics   `json:"best_metrics,omitempty"`
	Trials           []Trial   `json:"trials,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// EmptySnapshot is the well-defined state of a job whose worker has not
// written anything yet.
func EmptySnapshot() ProgressSnapshot {
	return ProgressSnapshot{Status: JobStatusPending}
}

// Merge overlays the non-zero fields of patch onto s and returns the
// result. Last write wins per field.
func (s ProgressSnapshot) Merge(patch ProgressSnapshot) ProgressSnapshot {
	out := s
	if patch.Status != "" {
		out.Status = patch.Status
	}
	if patch.CurrentIteration != 0 {
		out.CurrentIteration = patch.CurrentIteration
	}
	if patch.TotalIterations != 0 {
		out.TotalIterations = patch.TotalIterations
	}
	if patch.CurrentParams != nil {
		out.CurrentParams = patch.CurrentParams
	}
	if patch.BestParams != nil {
		out.BestParams = patch.BestParams
	}
	if patch.BestMetrics != nil {
		out.BestMetrics = patch.BestMetrics
	}
	if patch.Trials != nil {
		out.Trials = patch.Trials
	}
	if patch.Error != "" {
		out.Error = patch.Error
	}
	return out
}

// Equal compares two snapshots by value. The poller uses this to decide
// whether a read is worth delivering.
func (s ProgressSnapshot) Equal(o ProgressSnapshot) bool {
	return reflect.DeepEqual(s, o)
}
