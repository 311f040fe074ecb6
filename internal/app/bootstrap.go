package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"

	"github.com/alereyleyva/extractify/internal/config"
	"github.com/alereyleyva/extractify/internal/queue"
	"github.com/alereyleyva/extractify/internal/retry"
)

type Dependencies struct {
	DB          *sql.DB
	NSQProducer *nsq.Producer
	AWS         aws.Config
}

func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, cfg.MigrationPath); err != nil {
		db.Close()
		return nil, err
	}

	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}

	createTopics(cfg.NSQDHTTP)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		producer.Stop()
		db.Close()
		return nil, fmt.Errorf("aws config error: %w", err)
	}

	return &Dependencies{
		DB:          db,
		NSQProducer: producer,
		AWS:         awsCfg,
	}, nil
}

// OpenDB opens the Postgres pool and pings it with the bootstrap retry budget.
func OpenDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	attempt := 0
	err = retry.Do(ctx, bootstrapRetry(cfg), func() error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			slog.Warn("failed to ping db, retrying...", "attempt", attempt, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}

func bootstrapRetry(cfg *config.Config) *retry.Config {
	attempts := cfg.BootstrapRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second,
		Multiplier:   1,
	}
}

// Migrate applies every pending up migration at path.
func Migrate(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied", "path", path)
	return nil
}

func createTopics(nsqdHTTP string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		client := &http.Client{Timeout: 5 * time.Second}

		create := func() error {
			return queue.CreateTopic(ctx, client, nsqdHTTP, config.TopicExtractionProcess)
		}
		if err := retry.Do(ctx, retry.DefaultConfig(), create); err != nil {
			slog.Warn("failed to create NSQ topic", "topic", config.TopicExtractionProcess, "error", err)
			return
		}
		slog.Info("nsq topic ready", "topic", config.TopicExtractionProcess)
	}()
}
