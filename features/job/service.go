package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alereyleyva/extractify/internal/config"
)

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo           Repository
	pub            EventPublisher
	logger         *slog.Logger
	publishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, pub: pub, logger: logger, publishTimeout: 5 * time.Second}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// Retry republishes a dead-lettered payload and removes it from the store.
func (s *Service) Retry(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.publish(ctx, job.Payload); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "failed job requeued", "id", id, "extraction_id", job.ExtractionID)

	return s.repo.Delete(ctx, id)
}

// publish bounds the producer call, which blocks while nsqd is unreachable.
func (s *Service) publish(ctx context.Context, body []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicExtractionProcess, body)
	}()

	timer := time.NewTimer(s.publishTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
