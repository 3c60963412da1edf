package training

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"time"

	"training-orchestrator/core/models"
)

// SimulatedTrainer produces plausible detector metrics without running
// a real training round. Metrics are a deterministic function of the
// parameter set and seed, so identical trials score identically and
// searches stay reproducible.
type SimulatedTrainer struct {
	// Delay per round; zero keeps tests fast while still yielding to
	// the scheduler.
	Delay time.Duration
}

// Train simulates one round
func (t *SimulatedTrainer) Train(ctx context.Context, cfg models.JobConfig, params models.ParamSet, seed int64) (models.Metrics, error) {
	delay := t.Delay
	if delay == 0 {
		delay = 10 * time.Millisecond
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(delay):
	}

	rng := rand.New(rand.NewSource(paramSeed(params) ^ seed))

	// Base score with a mild preference for mid-range learning rates,
	// so searches have an actual optimum to find.
	base := 0.35 + 0.3*rng.Float64()
	if lr, ok := toFloat(params["lr"]); ok && lr > 0 {
		base += 0.15 * math.Exp(-math.Pow(math.Log10(lr)+2, 2))
	}
	if base > 0.95 {
		base = 0.95
	}

	return models.Metrics{
		"map50":    round4(base),
		"map50_95": round4(base * 0.65),
		"loss":     round4(1.2 - base),
	}, nil
}

// paramSeed folds a parameter set into a stable seed
func paramSeed(params models.ParamSet) int64 {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v;", k, params[k])
	}
	return int64(h.Sum64())
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
