package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"extractify"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"extractify"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	// Queue
	QueueConcurrency  int           `envconfig:"QUEUE_CONCURRENCY" default:"4"`
	QueueMaxAttempts  uint16        `envconfig:"QUEUE_MAX_ATTEMPTS" default:"5"`
	QueueJobTTL       time.Duration `envconfig:"QUEUE_JOB_TTL" default:"24h"`
	QueueDrainTimeout time.Duration `envconfig:"QUEUE_DRAIN_TIMEOUT" default:"30s"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`
	EncryptionKey string `envconfig:"ENCRYPTION_KEY"`

	// Providers
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	AWSRegion     string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Audio transcription polling
	TranscribeInitialDelay time.Duration `envconfig:"TRANSCRIBE_INITIAL_DELAY" default:"2s"`
	TranscribeMaxDelay     time.Duration `envconfig:"TRANSCRIBE_MAX_DELAY" default:"15s"`
	TranscribeTimeout      time.Duration `envconfig:"TRANSCRIBE_TIMEOUT" default:"15m"`

	// Google Sheets OAuth client
	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`

	// Server
	ServerPort int    `envconfig:"SERVER_PORT" default:"8081"`
	LogFile    string `envconfig:"LOG_FILE"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// env vars may already be set in the shell
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("%w: ENCRYPTION_KEY", ErrMissingRequired)
	}
	return nil
}
