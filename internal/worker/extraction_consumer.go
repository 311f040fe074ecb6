// Package worker turns NSQ messages into extraction runs.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"github.com/alereyleyva/extractify/features/extraction"
	"github.com/alereyleyva/extractify/features/job"
	"github.com/alereyleyva/extractify/internal/config"
	"github.com/alereyleyva/extractify/internal/middleware"
)

type Processor interface {
	Process(ctx context.Context, j *extraction.Job) error
	Fail(ctx context.Context, extractionID, reason string) error
}

type DeadLetters interface {
	Save(ctx context.Context, j *job.Job) error
}

// ExtractionConsumer handles one job per message. Returning an error requeues
// the message with NSQ backoff; nil finishes it.
type ExtractionConsumer struct {
	processor   Processor
	deadLetters DeadLetters
	maxAttempts uint16
	ttl         time.Duration
	now         func() time.Time
}

func NewExtractionConsumer(p Processor, d DeadLetters, maxAttempts uint16, ttl time.Duration) *ExtractionConsumer {
	return &ExtractionConsumer{
		processor:   p,
		deadLetters: d,
		maxAttempts: maxAttempts,
		ttl:         ttl,
		now:         time.Now,
	}
}

func (c *ExtractionConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var j extraction.Job
	decodeErr := json.Unmarshal(m.Body, &j)

	correlationID := j.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)

	if decodeErr != nil {
		slog.ErrorContext(ctx, "invalid message format", "error", decodeErr)
		c.deadLetter(ctx, &j, m, fmt.Sprintf("invalid message format: %v", decodeErr))
		return nil
	}
	if err := j.Validate(); err != nil {
		slog.ErrorContext(ctx, "invalid extraction job, dropping", "error", err, "extraction_id", j.ExtractionID)
		c.failRun(ctx, &j, err.Error())
		c.deadLetter(ctx, &j, m, err.Error())
		return nil
	}

	if c.ttl > 0 {
		age := c.now().Sub(time.Unix(0, m.Timestamp))
		if age > c.ttl {
			slog.WarnContext(ctx, "extraction job expired", "extraction_id", j.ExtractionID, "age", age.String())
			reason := fmt.Sprintf("job expired after %s", age.Round(time.Second))
			c.failRun(ctx, &j, reason)
			c.deadLetter(ctx, &j, m, reason)
			return nil
		}
	}

	j.CorrelationID = correlationID
	slog.InfoContext(ctx, "received extraction job", "extraction_id", j.ExtractionID, "attempt", m.Attempts, "files", len(j.Files))

	if err := c.processor.Process(ctx, &j); err != nil {
		if c.maxAttempts > 0 && m.Attempts >= c.maxAttempts {
			slog.ErrorContext(ctx, "extraction job exhausted attempts", "extraction_id", j.ExtractionID, "attempts", m.Attempts, "error", err)
			c.deadLetter(ctx, &j, m, err.Error())
			return nil
		}
		slog.WarnContext(ctx, "extraction job failed, requeueing", "extraction_id", j.ExtractionID, "attempt", m.Attempts, "error", err)
		return err
	}
	return nil
}

// failRun moves a job that never reaches the processor to a terminal state.
func (c *ExtractionConsumer) failRun(ctx context.Context, j *extraction.Job, reason string) {
	if j.ExtractionID == "" {
		return
	}
	if err := c.processor.Fail(ctx, j.ExtractionID, reason); err != nil {
		slog.ErrorContext(ctx, "failed to record extraction failure", "extraction_id", j.ExtractionID, "error", err)
	}
}

func (c *ExtractionConsumer) deadLetter(ctx context.Context, j *extraction.Job, m *nsq.Message, reason string) {
	failed := &job.Job{
		ExtractionID: j.ExtractionID,
		Handler:      config.HandlerExtractionWorker,
		Payload:      payloadOf(m.Body),
		Error:        reason,
		Retries:      int(m.Attempts),
	}
	if err := c.deadLetters.Save(ctx, failed); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "error", err)
		return
	}
	slog.InfoContext(ctx, "saved failed job for retry", "job_id", failed.ID)
}

// payloadOf keeps the body as-is when it is JSON so the stored payload can be
// republished verbatim.
func payloadOf(body []byte) json.RawMessage {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
