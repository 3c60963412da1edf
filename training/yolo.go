package training

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"sort"
	"strings"

	"training-orchestrator/core/models"
)

// ExternalTrainer shells out to a detector training CLI. The command
// receives the dataset, model and device as flags plus one flag per
// hyperparameter, and must print a JSON object of metrics as its last
// stdout line, e.g. {"map50": 0.62, "map50_95": 0.41}.
type ExternalTrainer struct {
	Command string
	Device  string
}

// Train runs one training round through the external command
func (t *ExternalTrainer) Train(ctx context.Context, cfg models.JobConfig, params models.ParamSet, seed int64) (models.Metrics, error) {
	args := CommandArgs(cfg, params, t.Device, seed)
	log.Printf("Running trainer: %s %s", t.Command, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, t.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("trainer failed: %s", msg)
	}

	metrics, err := ParseMetrics(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("trainer produced no metrics: %w", err)
	}
	return metrics, nil
}

// CommandArgs builds the trainer CLI arguments for one round. Params
// are emitted in sorted order so command lines are reproducible.
func CommandArgs(cfg models.JobConfig, params models.ParamSet, device string, seed int64) []string {
	args := []string{"--data", cfg.Dataset}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if device != "" && device != "auto" {
		args = append(args, "--device", device)
	}
	args = append(args, "--seed", fmt.Sprintf("%d", seed))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--"+k, formatValue(params[k]))
	}
	return args
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// Integral floats come out of JSON decoding; print them as ints
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ParseMetrics extracts the metrics object from trainer stdout. The
// last line that decodes as a JSON object wins, so trainers are free to
// log anything before it.
func ParseMetrics(output []byte) (models.Metrics, error) {
	var metrics models.Metrics
	found := false

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var m models.Metrics
		if err := json.Unmarshal([]byte(line), &m); err == nil && len(m) > 0 {
			metrics = m
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("no metrics line in trainer output")
	}
	return metrics, nil
}
