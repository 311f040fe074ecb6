package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alereyleyva/extractify/internal/retry"
)

var (
	ErrMissingMediaURI      = errors.New("audio transcription requires a remote file location")
	ErrTranscriptionFailed  = errors.New("transcription failed")
	ErrTranscriptionTimeout = errors.New("transcription timed out")
)

type TranscriptionStatus string

const (
	TranscriptionQueued     TranscriptionStatus = "QUEUED"
	TranscriptionInProgress TranscriptionStatus = "IN_PROGRESS"
	TranscriptionCompleted  TranscriptionStatus = "COMPLETED"
	TranscriptionFailed     TranscriptionStatus = "FAILED"
)

type TranscriptionRequest struct {
	JobName     string
	MediaURI    string
	MediaFormat string
}

type TranscriptionJob struct {
	Status        TranscriptionStatus
	FailureReason string
	TranscriptURI string
}

// Transcriber is an asynchronous speech-to-text service.
type Transcriber interface {
	StartTranscription(ctx context.Context, req TranscriptionRequest) error
	GetTranscription(ctx context.Context, jobName string) (*TranscriptionJob, error)
	FetchTranscript(ctx context.Context, uri string) ([]byte, error)
	DeleteTranscription(ctx context.Context, jobName string) error
}

const minPollDelay = 100 * time.Millisecond

type AudioConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Timeout      time.Duration
}

// AudioStrategy submits a remote transcription job and polls it until it
// settles. The remote job is always deleted before returning.
type AudioStrategy struct {
	transcriber Transcriber
	cfg         AudioConfig

	jobName func() string
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

func NewAudioStrategy(t Transcriber, cfg AudioConfig) *AudioStrategy {
	return &AudioStrategy{
		transcriber: t,
		cfg:         cfg,
		jobName:     func() string { return "extractify-" + uuid.New().String() },
		sleep:       retry.Sleep,
		now:         time.Now,
	}
}

func (s *AudioStrategy) Supports(fileType string) bool {
	return matches(fileType, "audio/", []string{"mp3", "mp4", "m4a", "wav", "flac", "ogg", "webm", "amr"})
}

func (s *AudioStrategy) ExtractText(ctx context.Context, _ []byte, fileName, fileURL string) (string, error) {
	if fileURL == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingMediaURI, fileName)
	}

	name := s.jobName()
	defer s.cleanup(ctx, name)

	err := s.transcriber.StartTranscription(ctx, TranscriptionRequest{
		JobName:     name,
		MediaURI:    fileURL,
		MediaFormat: mediaFormat(fileName),
	})
	if err != nil {
		return "", fmt.Errorf("start transcription: %w", err)
	}
	slog.InfoContext(ctx, "transcription submitted", "job", name, "file", fileName)

	deadline := s.now().Add(s.cfg.Timeout)
	delay := max(s.cfg.InitialDelay, minPollDelay)
	for {
		// never sleep past the deadline
		wait := min(delay, deadline.Sub(s.now()))
		if wait > 0 {
			if err := s.sleep(ctx, wait); err != nil {
				return "", err
			}
		}

		job, err := s.transcriber.GetTranscription(ctx, name)
		if err != nil {
			return "", fmt.Errorf("poll transcription: %w", err)
		}

		switch job.Status {
		case TranscriptionCompleted:
			return s.transcript(ctx, job.TranscriptURI)
		case TranscriptionFailed:
			return "", fmt.Errorf("%w: %s", ErrTranscriptionFailed, job.FailureReason)
		}

		if !s.now().Before(deadline) {
			return "", fmt.Errorf("%w after %s", ErrTranscriptionTimeout, s.cfg.Timeout)
		}

		delay *= 2
		if s.cfg.MaxDelay > 0 && delay > s.cfg.MaxDelay {
			delay = max(s.cfg.MaxDelay, minPollDelay)
		}
	}
}

// cleanup runs on a context detached from ctx so a cancelled job still
// releases its remote transcription.
func (s *AudioStrategy) cleanup(ctx context.Context, name string) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.transcriber.DeleteTranscription(delCtx, name); err != nil {
		slog.WarnContext(ctx, "failed to delete transcription job", "job", name, "error", err)
	}
}

func (s *AudioStrategy) transcript(ctx context.Context, uri string) (string, error) {
	raw, err := s.transcriber.FetchTranscript(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("fetch transcript: %w", err)
	}

	var payload struct {
		Results struct {
			Transcripts []struct {
				Transcript string `json:"transcript"`
			} `json:"transcripts"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode transcript: %w", err)
	}
	if len(payload.Results.Transcripts) == 0 {
		return "", nil
	}
	return payload.Results.Transcripts[0].Transcript, nil
}

// mediaFormat is the transcription media format, taken from the file
// extension ("mp3", "wav", ...).
func mediaFormat(fileName string) string {
	return extension(fileName)
}
