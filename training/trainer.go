// Package training runs individual model training rounds for the
// worker process, either through an external detector CLI or through a
// deterministic simulation when no trainer is configured.
package training

import (
	"context"

	"training-orchestrator/core/models"
)

// Trainer runs one training round with a concrete parameter set and
// returns the metrics it achieved.
type Trainer interface {
	Train(ctx context.Context, cfg models.JobConfig, params models.ParamSet, seed int64) (models.Metrics, error)
}

// New selects a trainer. An empty command means no real trainer is
// installed and selects the simulation.
func New(command, device string) Trainer {
	if command == "" {
		return &SimulatedTrainer{}
	}
	return &ExternalTrainer{Command: command, Device: device}
}
