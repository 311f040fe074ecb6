package aws

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"

	"github.com/alereyleyva/extractify/internal/extraction"
)

type TranscribeAPI interface {
	StartTranscriptionJob(ctx context.Context, params *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, params *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
	DeleteTranscriptionJob(ctx context.Context, params *transcribe.DeleteTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.DeleteTranscriptionJobOutput, error)
}

// maxTranscriptSize caps the transcript document read into memory.
const maxTranscriptSize = 32 << 20

type Transcriber struct {
	client     TranscribeAPI
	httpClient *http.Client
}

func NewTranscriber(client TranscribeAPI) *Transcriber {
	return &Transcriber{
		client:     client,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *Transcriber) StartTranscription(ctx context.Context, req extraction.TranscriptionRequest) error {
	in := &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(req.JobName),
		Media:                &types.Media{MediaFileUri: aws.String(req.MediaURI)},
		IdentifyLanguage:     aws.Bool(true),
	}
	if req.MediaFormat != "" {
		in.MediaFormat = types.MediaFormat(req.MediaFormat)
	}
	_, err := t.client.StartTranscriptionJob(ctx, in)
	return err
}

func (t *Transcriber) GetTranscription(ctx context.Context, jobName string) (*extraction.TranscriptionJob, error) {
	out, err := t.client.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
	})
	if err != nil {
		return nil, err
	}
	if out.TranscriptionJob == nil {
		return nil, fmt.Errorf("transcription job %s not returned", jobName)
	}

	job := out.TranscriptionJob
	res := &extraction.TranscriptionJob{
		Status:        extraction.TranscriptionStatus(job.TranscriptionJobStatus),
		FailureReason: aws.ToString(job.FailureReason),
	}
	if job.Transcript != nil {
		res.TranscriptURI = aws.ToString(job.Transcript.TranscriptFileUri)
	}
	return res, nil
}

func (t *Transcriber) FetchTranscript(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("transcript download: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxTranscriptSize))
}

func (t *Transcriber) DeleteTranscription(ctx context.Context, jobName string) error {
	_, err := t.client.DeleteTranscriptionJob(ctx, &transcribe.DeleteTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
	})
	return err
}
