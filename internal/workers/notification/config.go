// internal/workers/notification/config.go
package notification

import "time"

type Config struct {
	Index        string
	MaxRetries   int           // bulk-write retry ceiling
	BaseDelay    time.Duration // backoff base, doubled per attempt
	EmailEnabled bool
	FromEmail    string
	ToEmail      string
}

func LoadConfig() *Config {
	return &Config{
		Index:      "notifications",
		MaxRetries: 5,
		BaseDelay:  200 * time.Millisecond,
	}
}
