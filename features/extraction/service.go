package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	sink "github.com/alereyleyva/extractify/internal/integration"
	"github.com/alereyleyva/extractify/internal/llm"
	"github.com/alereyleyva/extractify/internal/schema"
)

// FileStore fetches and removes uploaded documents.
type FileStore interface {
	Download(ctx context.Context, fileURL string) ([]byte, error)
	Delete(ctx context.Context, fileURL string) error
}

type TextExtractor interface {
	ExtractText(ctx context.Context, fileType string, data []byte, fileName, fileURL string) (string, error)
}

type Extractor interface {
	Extract(ctx context.Context, req llm.Request) (*llm.Result, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, run sink.Run, targetIDs []string) error
}

type Service struct {
	repo      Repository
	files     FileStore
	texts     TextExtractor
	extractor Extractor
	deliverer Deliverer
}

func NewService(repo Repository, files FileStore, texts TextExtractor, extractor Extractor, deliverer Deliverer) *Service {
	return &Service{repo: repo, files: files, texts: texts, extractor: extractor, deliverer: deliverer}
}

// Process runs one job to a terminal state. A failed run is recorded and the
// original error returned. Delivery and file cleanup after success never
// fail the job.
func (s *Service) Process(ctx context.Context, job *Job) error {
	if err := s.repo.StartRun(ctx, job); err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	start := time.Now()
	slog.InfoContext(ctx, "extraction started", "extraction_id", job.ExtractionID, "files", len(job.Files))

	run, err := s.execute(ctx, job)
	if err != nil {
		slog.ErrorContext(ctx, "extraction failed", "extraction_id", job.ExtractionID, "error", err, "duration_ms", time.Since(start).Milliseconds())
		if ferr := s.repo.FailRun(ctx, job.ExtractionID, err.Error()); ferr != nil {
			slog.ErrorContext(ctx, "failed to record extraction error", "extraction_id", job.ExtractionID, "error", ferr)
		}
		return err
	}

	var usage llm.Usage
	if run.Usage != nil {
		usage = *run.Usage
	}
	slog.InfoContext(ctx, "extraction completed",
		"extraction_id", job.ExtractionID,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	s.runBestEffort(ctx, "deliver integrations", func(ctx context.Context) error {
		if s.deliverer == nil {
			return nil
		}
		return s.deliverer.Deliver(ctx, toDeliveryRun(run), job.IntegrationTargetIDs)
	})
	s.runBestEffort(ctx, "delete files", func(ctx context.Context) error {
		var errs []error
		for _, f := range job.Files {
			if err := s.files.Delete(ctx, f.FileURL); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", f.FileName, err))
			}
		}
		return errors.Join(errs...)
	})
	return nil
}

// Fail records a run that will never be processed, such as a rejected or
// expired job.
func (s *Service) Fail(ctx context.Context, extractionID, reason string) error {
	if err := s.repo.FailRun(ctx, extractionID, reason); err != nil {
		return fmt.Errorf("fail run %s: %w", extractionID, err)
	}
	return nil
}

func (s *Service) execute(ctx context.Context, job *Job) (*Run, error) {
	mv, err := s.repo.GetModelVersion(ctx, job.ModelVersionID)
	if err != nil {
		return nil, err
	}
	model, err := s.repo.GetLLMModel(ctx, job.LLMModelID)
	if err != nil {
		return nil, err
	}

	attrs, err := schema.ParseAttributes(mv.Attributes)
	if err != nil {
		return nil, fmt.Errorf("model version %s: %w", mv.ID, err)
	}
	compiled := schema.Compile(attrs)

	contents, err := s.download(ctx, job.Files)
	if err != nil {
		return nil, err
	}

	docs := make([]llm.Document, 0, len(job.Files))
	for i, f := range job.Files {
		text, err := s.texts.ExtractText(ctx, f.FileType, contents[i], f.FileName, f.FileURL)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", f.FileName, err)
		}
		docs = append(docs, llm.Document{FileName: f.FileName, SourceOrder: f.SourceOrder, Text: text})
	}

	res, err := s.extractor.Extract(ctx, llm.Request{
		Model:        *model,
		SystemPrompt: mv.SystemPrompt,
		Compiled:     compiled,
		Documents:    docs,
	})
	if err != nil {
		return nil, err
	}

	run, err := s.repo.CompleteRun(ctx, job.ExtractionID, res.Raw, res.Usage)
	if err != nil {
		return nil, err
	}
	if run.Normalized, err = schema.NormalizeJSON(compiled.Schema, res.Raw); err != nil {
		slog.WarnContext(ctx, "failed to normalize result", "extraction_id", job.ExtractionID, "error", err)
	}
	return run, nil
}

// download fetches every file concurrently. The first failure cancels the
// rest.
func (s *Service) download(ctx context.Context, files []File) ([][]byte, error) {
	contents := make([][]byte, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			data, err := s.files.Download(gctx, f.FileURL)
			if err != nil {
				return fmt.Errorf("download %s: %w", f.FileName, err)
			}
			contents[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return contents, nil
}

func (s *Service) runBestEffort(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "best-effort task panicked", "task", name, "panic", r)
		}
	}()
	if err := fn(ctx); err != nil {
		slog.WarnContext(ctx, "best-effort task failed", "task", name, "error", err)
	}
}

func toDeliveryRun(r *Run) sink.Run {
	return sink.Run{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		ModelID:        r.ModelID,
		ModelVersionID: r.ModelVersionID,
		LLMModelID:     r.LLMModelID,
		Status:         r.Status,
		Result:         r.Result,
		Normalized:     r.Normalized,
		Usage:          r.Usage,
		CreatedAt:      r.CreatedAt,
		CompletedAt:    r.CompletedAt,
	}
}
