package config

import (
	"time"
)

type Limits struct {
	MaxRetries     int             `yaml:"max_retries" validate:"min=0,max=10"`
	RequestTimeout time.Duration   `yaml:"request_timeout" validate:"omitempty,min=10s,max=1h"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"min=0,max=1000"`
	BurstSize         int `yaml:"burst_size" validate:"min=0,max=100"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxRetries:     3,
		RequestTimeout: 15 * time.Minute, // prose generation on large chapters is slow
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			BurstSize:         5,
		},
	}
}
