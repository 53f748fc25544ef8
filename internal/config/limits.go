package config

import "time"

type Limits struct {
	// MaxRetries bounds consistency-driven plot re-drafts per run.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`
	// MaxRunsPerStory caps concurrent workflow runs within one story;
	// runs over the cap are rejected, not queued.
	MaxRunsPerStory int             `yaml:"max_runs_per_story" validate:"required,min=1,max=100"`
	WorkflowTimeout time.Duration   `yaml:"workflow_timeout" validate:"required,min=1s,max=1h"`
	RetrievalTopK   int             `yaml:"retrieval_top_k" validate:"required,min=1,max=50"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" validate:"required"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"required,min=1,max=1000"`
	BurstSize         int `yaml:"burst_size" validate:"required,min=1,max=100"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxRetries:      3,
		MaxRunsPerStory: 5,
		WorkflowTimeout: 300 * time.Second,
		RetrievalTopK:   5,
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			BurstSize:         15,
		},
	}
}
