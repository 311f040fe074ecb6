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
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"

	featextraction "github.com/alereyleyva/extractify/features/extraction"
	featintegration "github.com/alereyleyva/extractify/features/integration"
	"github.com/alereyleyva/extractify/features/job"
	"github.com/alereyleyva/extractify/features/stats"
	awsadapter "github.com/alereyleyva/extractify/internal/adapter/aws"
	"github.com/alereyleyva/extractify/internal/adapter/bedrock"
	"github.com/alereyleyva/extractify/internal/adapter/gemini"
	"github.com/alereyleyva/extractify/internal/adapter/openai"
	"github.com/alereyleyva/extractify/internal/adapter/storage"
	"github.com/alereyleyva/extractify/internal/config"
	"github.com/alereyleyva/extractify/internal/crypto"
	"github.com/alereyleyva/extractify/internal/extraction"
	"github.com/alereyleyva/extractify/internal/integration"
	"github.com/alereyleyva/extractify/internal/llm"
	"github.com/alereyleyva/extractify/internal/middleware"
	"github.com/alereyleyva/extractify/internal/queue"
	"github.com/alereyleyva/extractify/internal/worker"
)

type App struct {
	Handler    http.Handler
	Queue      *queue.Client
	Consumer   *worker.ExtractionConsumer
	Extraction *featextraction.Service

	port         int
	drainTimeout time.Duration
}

func New(
	cfg *config.Config,
	db *sql.DB,
	producer queue.Publisher,
	awsCfg aws.Config,
	logger *slog.Logger,
) (*App, error) {
	cipher, err := crypto.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	// Text extraction, first match wins
	transcriber := awsadapter.NewTranscriber(transcribe.NewFromConfig(awsCfg))
	dispatcher := extraction.NewDispatcher(
		extraction.NewPDFStrategy(nil),
		extraction.NewImageStrategy(awsadapter.NewTextDetector(textract.NewFromConfig(awsCfg))),
		extraction.NewAudioStrategy(transcriber, extraction.AudioConfig{
			InitialDelay: cfg.TranscribeInitialDelay,
			MaxDelay:     cfg.TranscribeMaxDelay,
			Timeout:      cfg.TranscribeTimeout,
		}),
	)

	// Model providers
	invoker := llm.NewInvoker(map[string]llm.Provider{
		llm.ProviderGemini:  gemini.NewProvider(cfg.GeminiAPIKey),
		llm.ProviderOpenAI:  openai.NewProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL),
		llm.ProviderBedrock: bedrock.NewProvider(bedrockruntime.NewFromConfig(awsCfg)),
	})

	files := storage.NewStore(s3.NewFromConfig(awsCfg))

	// Feature: Integrations
	targetRepo := featintegration.NewTargetRepo(db)
	deliveryRepo := featintegration.NewDeliveryRepo(db)
	tokens := integration.NewTokenResolver(cfg.GoogleClientID, cfg.GoogleClientSecret, cipher)
	orchestrator := integration.NewOrchestrator(targetRepo, deliveryRepo, map[string]integration.Sender{
		integration.TypeWebhook: integration.NewWebhookSender(&http.Client{}, cipher),
		integration.TypeSheets:  integration.NewSheetsSender(integration.NewSheetsClient(), tokens, targetRepo),
	})

	// Feature: Extraction
	runRepo := featextraction.NewPostgresRepo(db)
	extractionService := featextraction.NewService(runRepo, files, dispatcher, invoker, orchestrator)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, producer, logger)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(runRepo, deliveryRepo, jobRepo)

	// Routes
	mux := http.NewServeMux()
	mux.Handle("GET /jobs/failed", middleware.CorrelationID(http.HandlerFunc(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(http.HandlerFunc(jobHandler.Retry)))
	mux.Handle("GET /stats", middleware.CorrelationID(http.HandlerFunc(statsHandler.GetStats)))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Worker
	consumer := worker.NewExtractionConsumer(extractionService, jobRepo, cfg.QueueMaxAttempts, cfg.QueueJobTTL)
	client := queue.NewClient(queue.Options{
		Topic:       config.TopicExtractionProcess,
		Channel:     config.ChannelWorker,
		NSQDHost:    cfg.NSQDHost,
		NSQLookupd:  cfg.NSQLookupd,
		MaxAttempts: cfg.QueueMaxAttempts,
		Concurrency: cfg.QueueConcurrency,
	}, producer)

	return &App{
		Handler:      mux,
		Queue:        client,
		Consumer:     consumer,
		Extraction:   extractionService,
		port:         cfg.ServerPort,
		drainTimeout: cfg.QueueDrainTimeout,
	}, nil
}

// Run starts the consumer and the ops HTTP server, then blocks until ctx is
// cancelled and both have stopped.
func (a *App) Run(ctx context.Context) error {
	if err := a.Queue.Start(a.Consumer); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutting down server...")

		drainCtx, cancel := context.WithTimeout(context.Background(), a.drainTimeout)
		defer cancel()
		if err := a.Queue.Stop(drainCtx); err != nil {
			slog.Warn("queue drain incomplete", "error", err)
		}
		if err := srv.Shutdown(drainCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		stopCtx, cancel := context.WithTimeout(context.Background(), a.drainTimeout)
		defer cancel()
		_ = a.Queue.Stop(stopCtx)
		return err
	}
	<-shutdownDone
	return nil
}
