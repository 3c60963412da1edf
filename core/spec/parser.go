package spec

import (
	"fmt"

	"training-orchestrator/core/models"

	"gopkg.in/yaml.v3"
)

// JobSpec represents the YAML job specification
type JobSpec struct {
	Job JobSpecJob `yaml:"job"`
}

// JobSpecJob represents the job section of the spec
type JobSpecJob struct {
	Name            string                 `yaml:"name"`
	Kind            string                 `yaml:"kind"`
	Dataset         string                 `yaml:"dataset"`
	Model           string                 `yaml:"model"`
	Device          string                 `yaml:"device"`
	Metric          string                 `yaml:"metric"`
	Seed            int64                  `yaml:"seed"`
	Iterations      int                    `yaml:"iterations"`
	Hyperparameters map[string]interface{} `yaml:"hyperparameters"`
	SearchSpace     map[string]interface{} `yaml:"search_space"`
}

// ParseJobSpec parses a YAML job specification into a Job model.
// This is the validation boundary: anything it accepts is safe to hand
// to the launcher, and anything malformed is rejected here, before any
// worker process exists.
func ParseJobSpec(specYAML string) (*models.Job, error) {
	var spec JobSpec
	if err := yaml.Unmarshal([]byte(specYAML), &spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	j := spec.Job
	if j.Dataset == "" {
		return nil, fmt.Errorf("job.dataset is required")
	}

	kind := models.JobKind(j.Kind)
	switch kind {
	case models.JobKindTraining, models.JobKindSearch:
	case "":
		kind = models.JobKindTraining
	default:
		return nil, fmt.Errorf("unknown job kind %q", j.Kind)
	}

	job := &models.Job{
		Name:   j.Name,
		Kind:   kind,
		Status: models.JobStatusPending,
		Config: models.JobConfig{
			Dataset:         j.Dataset,
			Model:           j.Model,
			Device:          j.Device,
			Metric:          j.Metric,
			Seed:            j.Seed,
			Iterations:      j.Iterations,
			Hyperparameters: models.ParamSet(j.Hyperparameters),
		},
	}

	switch kind {
	case models.JobKindSearch:
		space, err := parseSearchSpace(j.SearchSpace)
		if err != nil {
			return nil, fmt.Errorf("invalid search space: %w", err)
		}
		job.Config.SearchSpace = space
		if job.Config.Iterations < 1 {
			return nil, fmt.Errorf("search jobs require iterations >= 1, got %d", j.Iterations)
		}
	case models.JobKindTraining:
		if len(j.SearchSpace) > 0 {
			return nil, fmt.Errorf("training jobs do not take a search space")
		}
	}

	return job, nil
}

func parseSearchSpace(raw map[string]interface{}) (models.SearchSpace, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("search space is empty")
	}
	space := make(models.SearchSpace, len(raw))
	for name, v := range raw {
		p, err := models.ParamSpecFromValue(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		space[name] = p
	}
	if err := space.Validate(); err != nil {
		return nil, err
	}
	return space, nil
}
