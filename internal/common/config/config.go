// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	AWS           AWSConfig          `mapstructure:"aws"`
	Relay         RelayConfig        `mapstructure:"relay"`
	Stages        map[string]StageConfig `mapstructure:"stages"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	API           APIConfig          `mapstructure:"api"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AWSConfig holds the transport settings: one SNS topic fanning out to one
// SQS queue per consumer.
type AWSConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"` // non-empty for localstack
	SNS      struct {
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	SQS struct {
		WaitTimeSeconds   int `mapstructure:"wait_time_seconds"`
		MaxMessages       int `mapstructure:"max_messages"`
		VisibilityTimeout int `mapstructure:"visibility_timeout"` // seconds
	} `mapstructure:"sqs"`
	SES struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"ses"`
}

// RelayConfig holds settings for the outbox relay.
type RelayConfig struct {
	Channel          string `mapstructure:"channel"`            // LISTEN/NOTIFY channel
	SweepIntervalMS  int    `mapstructure:"sweep_interval_ms"`  // pending sweep period
	SweepBatchSize   int    `mapstructure:"sweep_batch_size"`   // records per sweep
	SweepMinAgeMS    int    `mapstructure:"sweep_min_age_ms"`   // leave fresh records to the listener
}

// StageConfig holds the per-stage processor settings.
type StageConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	QueueURL string `mapstructure:"queue_url"`
}

// NotificationConfig holds settings for the notification fan-out.
type NotificationConfig struct {
	QueueURL    string `mapstructure:"queue_url"`
	Index       string `mapstructure:"index"`         // Elasticsearch index
	MaxRetries  int    `mapstructure:"max_retries"`   // bulk-write retry ceiling
	BaseDelayMS int    `mapstructure:"base_delay_ms"` // backoff base delay
	Email       struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		ToEmail   string `mapstructure:"to_email"` // operator inbox
	} `mapstructure:"email"`
}

// APIConfig holds settings for the submission/query HTTP server.
type APIConfig struct {
	Addr         string `mapstructure:"addr"`
	CacheTTLMS   int    `mapstructure:"cache_ttl_ms"`
	DefaultLimit int    `mapstructure:"default_limit"` // audit log page size
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
