package models

// TrainingResult is the artifact a training worker leaves behind in
// results.json.
type TrainingResult struct {
	Metrics Metrics  `json:"metrics"`
	Params  ParamSet `json:"params,omitempty"`
}

// SearchResult is the artifact a search worker leaves behind in
// final_results.json once all iterations ran.
type SearchResult struct {
	BestParams  ParamSet `json:"best_params"`
	BestMetrics Metrics  `json:"best_metrics"`
	MetricKey   string   `json:"metric_key"`
	Trials      []Trial  `json:"trials"`

	// NoScoredTrials marks a search where no trial carried the ranking
	// metric; BestParams then holds a sampled fallback, not a winner.
	NoScoredTrials bool `json:"no_scored_trials,omitempty"`
}
