package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"
	"github.com/spf13/cobra"

	"github.com/alereyleyva/extractify/features/extraction"
	"github.com/alereyleyva/extractify/internal/app"
	"github.com/alereyleyva/extractify/internal/config"
	"github.com/alereyleyva/extractify/internal/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "extractify-worker",
	Short:         "Extraction worker",
	Long:          "Consumes extraction jobs from NSQ, runs them against the configured model and delivers results to integration targets.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
	RunE: runWorker,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the queue consumer and the ops HTTP server",
	RunE:  runWorker,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := app.OpenDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		return app.Migrate(db, cfg.MigrationPath)
	},
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <job.json>",
	Short: "Publish an extraction job read from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read job file: %w", err)
		}

		var j extraction.Job
		if err := json.Unmarshal(body, &j); err != nil {
			return fmt.Errorf("decode job: %w", err)
		}
		if err := j.Validate(); err != nil {
			return err
		}
		body, err = json.Marshal(j)
		if err != nil {
			return err
		}

		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			return fmt.Errorf("nsq producer error: %w", err)
		}
		defer producer.Stop()

		if err := producer.Publish(config.TopicExtractionProcess, body); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued extraction %s\n", j.ExtractionID)
		return nil
	},
}

func runWorker(cmd *cobra.Command, args []string) error {
	log, closeLog := logger.Setup(cfg.LogFile, logger.ParseLevel(cfg.LogLevel))
	defer closeLog()
	slog.SetDefault(log)

	return run(cmd.Context(), cfg, log)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	application, err := app.New(cfg, deps.DB, deps.NSQProducer, deps.AWS, logger)
	if err != nil {
		return err
	}
	return application.Run(ctx)
}

func main() {
	rootCmd.AddCommand(workerCmd, migrateCmd, enqueueCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
