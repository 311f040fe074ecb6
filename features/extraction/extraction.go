// Package extraction runs extraction jobs and owns the run lifecycle.
package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alereyleyva/extractify/internal/llm"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	ErrModelVersionNotFound = errors.New("model version not found")
	ErrLLMModelNotFound     = errors.New("llm model not found")
	ErrRunNotFound          = errors.New("extraction run not found")
	ErrInvalidJob           = errors.New("invalid extraction job")
)

// File is one uploaded document referenced by a job.
type File struct {
	FileName    string `json:"fileName"`
	FileType    string `json:"fileType"`
	FileSize    int64  `json:"fileSize"`
	FileURL     string `json:"fileUrl"`
	SourceOrder int    `json:"sourceOrder"`
}

// Job is the queue payload for one extraction.
type Job struct {
	ExtractionID         string   `json:"extractionId"`
	OwnerID              string   `json:"ownerId"`
	ModelID              string   `json:"modelId"`
	ModelVersionID       string   `json:"modelVersionId"`
	LLMModelID           string   `json:"llmModelId"`
	Files                []File   `json:"files"`
	IntegrationTargetIDs []string `json:"integrationTargetIds,omitempty"`
	CorrelationID        string   `json:"correlationId,omitempty"`
}

func (j *Job) Validate() error {
	switch {
	case j.ExtractionID == "":
		return fmt.Errorf("%w: missing extractionId", ErrInvalidJob)
	case j.OwnerID == "":
		return fmt.Errorf("%w: missing ownerId", ErrInvalidJob)
	case j.ModelVersionID == "":
		return fmt.Errorf("%w: missing modelVersionId", ErrInvalidJob)
	case j.LLMModelID == "":
		return fmt.Errorf("%w: missing llmModelId", ErrInvalidJob)
	case len(j.Files) == 0:
		return fmt.Errorf("%w: no files", ErrInvalidJob)
	}
	for i, f := range j.Files {
		if f.FileURL == "" {
			return fmt.Errorf("%w: file %d has no url", ErrInvalidJob, i)
		}
	}
	return nil
}

type ModelVersion struct {
	ID           string
	ModelID      string
	Attributes   json.RawMessage
	SystemPrompt string
}

type Run struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"ownerId"`
	ModelID        string          `json:"modelId"`
	ModelVersionID string          `json:"modelVersionId"`
	LLMModelID     string          `json:"llmModelId"`
	Status         string          `json:"status"`
	Result         json.RawMessage `json:"result,omitempty"`
	Usage          *llm.Usage      `json:"usage,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`

	// Normalized is Result without confidence wrappers. Not persisted.
	Normalized json.RawMessage `json:"-"`
}
