// Package optimizer implements hyperparameter search strategies.
package optimizer

import (
	"math/rand"
	"sort"
	"time"

	"training-orchestrator/core/models"
)

// RandomSearch samples parameter sets uniformly from a search space
// and tracks the best observed trial by a single metric. Not safe for
// concurrent use; each search job owns one instance.
type RandomSearch struct {
	space     models.SearchSpace
	keys      []string
	rng       *rand.Rand
	metricKey string

	trials      []models.Trial
	best        models.Trial
	bestMetric  float64
	hasObserved bool
}

// NewRandomSearch creates a search over space, seeded for
// reproducibility. metricKey selects the metric trials are ranked by.
func NewRandomSearch(space models.SearchSpace, seed int64, metricKey string) *RandomSearch {
	keys := make([]string, 0, len(space))
	for k := range space {
		keys = append(keys, k)
	}
	// Map iteration order is random; a fixed key order keeps a given
	// seed producing the same sample sequence.
	sort.Strings(keys)

	if metricKey == "" {
		metricKey = models.DefaultMetric
	}
	return &RandomSearch{
		space:     space,
		keys:      keys,
		rng:       rand.New(rand.NewSource(seed)),
		metricKey: metricKey,
	}
}

// Sample draws one parameter set from the space
func (o *RandomSearch) Sample() models.ParamSet {
	params := make(models.ParamSet, len(o.keys))
	for _, name := range o.keys {
		params[name] = o.sampleOne(o.space[name])
	}
	return params
}

func (o *RandomSearch) sampleOne(spec models.ParamSpec) interface{} {
	switch spec.Kind {
	case models.ParamDiscrete:
		return spec.Values[o.rng.Intn(len(spec.Values))]
	case models.ParamRange:
		if spec.Int {
			lo, hi := int64(spec.Min), int64(spec.Max)
			return lo + o.rng.Int63n(hi-lo+1)
		}
		return spec.Min + o.rng.Float64()*(spec.Max-spec.Min)
	case models.ParamOptions:
		return spec.Options[o.rng.Intn(len(spec.Options))]
	default:
		return spec.Fixed
	}
}

// Observe records a finished trial. A trial becomes the new best only
// when its ranking metric strictly exceeds the current best, so on a
// tie the earlier trial wins. Trials missing the ranking metric are
// recorded but can never become best.
func (o *RandomSearch) Observe(params models.ParamSet, metrics models.Metrics, iteration int) models.Trial {
	trial := models.Trial{
		Parameters: params,
		Metrics:    metrics,
		Iteration:  iteration,
		Timestamp:  time.Now().UTC(),
	}
	o.trials = append(o.trials, trial)

	value, ok := metrics[o.metricKey]
	if !ok {
		return trial
	}
	if !o.hasObserved || value > o.bestMetric {
		o.best = trial
		o.bestMetric = value
		o.hasObserved = true
	}
	return trial
}

// Best returns the best trial so far. ok is false until a trial with
// the ranking metric has been observed.
func (o *RandomSearch) Best() (models.Trial, bool) {
	return o.best, o.hasObserved
}

// BestOrSample returns the best observed parameters, or a fresh sample
// when nothing has been observed yet, so callers always get a usable
// parameter set.
func (o *RandomSearch) BestOrSample() models.ParamSet {
	if o.hasObserved {
		return o.best.Parameters
	}
	return o.Sample()
}

// Trials returns all observed trials in observation order
func (o *RandomSearch) Trials() []models.Trial {
	return o.trials
}

// MetricKey returns the metric trials are ranked by
func (o *RandomSearch) MetricKey() string {
	return o.metricKey
}
