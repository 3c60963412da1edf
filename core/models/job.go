package models

import "time"

// Job represents one orchestrated unit of training or hyperparameter search work
type Job struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Kind         JobKind    `json:"kind"`
	Status       JobStatus  `json:"status"`
	Config       JobConfig  `json:"config"`
	OutputDir    string     `json:"output_dir,omitempty"`
	ResultRef    string     `json:"result_ref,omitempty"` // path of the final result artifact, set on completion
	ErrorKind    ErrorKind  `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// JobKind represents the kind of job
type JobKind string

const (
	JobKindTraining JobKind = "training"
	JobKindSearch   JobKind = "hyperparam_search"
)

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobConfig is the parameter blob owned exclusively by the job.
// Training jobs carry Hyperparameters; search jobs carry SearchSpace
// and Iterations.
type JobConfig struct {
	Dataset         string      `json:"dataset"`
	Model           string      `json:"model,omitempty"`
	Device          string      `json:"device,omitempty"`
	Metric          string      `json:"metric,omitempty"`
	Iterations      int         `json:"iterations,omitempty"`
	Seed            int64       `json:"seed,omitempty"`
	Hyperparameters ParamSet    `json:"hyperparameters,omitempty"`
	SearchSpace     SearchSpace `json:"search_space,omitempty"`
}

// DefaultMetric is the metric key used to rank trials when the spec
// does not name one.
const DefaultMetric = "map50"

// MetricKey returns the configured trial-ranking metric.
func (c JobConfig) MetricKey() string {
	if c.Metric != "" {
		return c.Metric
	}
	return DefaultMetric
}

// ParamSet maps hyperparameter names to sampled values.
type ParamSet map[string]interface{}

// Metrics maps metric names to observed values.
type Metrics map[string]float64

// Trial is one sampled parameter set and its outcome within a search job.
// Trials are appended, never mutated; Iteration ordering is significant.
type Trial struct {
	Parameters ParamSet  `json:"parameters"`
	Metrics    Metrics   `json:"metrics"`
	Iteration  int       `json:"iteration"`
	Timestamp  time.Time `json:"timestamp"`
}

// ErrorKind classifies job failures so callers can distinguish
// cancellation from organic failure
type ErrorKind string

const (
	ErrKindNone                ErrorKind = ""
	ErrKindAlreadyRunning      ErrorKind = "already_running"
	ErrKindConfigInvalid       ErrorKind = "config_invalid"
	ErrKindProcessLaunchFailed ErrorKind = "process_launch_failed"
	ErrKindProcessCrashed      ErrorKind = "process_crashed"
	ErrKindResultMissing       ErrorKind = "result_missing"
	ErrKindCancelled           ErrorKind = "cancelled"
)

// JobEvent records one status transition for audit and debugging
type JobEvent struct {
	ID         int64     `json:"id"`
	JobID      string    `json:"job_id"`
	At         time.Time `json:"at"`
	FromStatus *string   `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	Reason     string    `json:"reason"`
}
