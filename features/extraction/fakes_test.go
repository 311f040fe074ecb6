package extraction_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alereyleyva/extractify/features/extraction"
	sink "github.com/alereyleyva/extractify/internal/integration"
	"github.com/alereyleyva/extractify/internal/llm"
)

type memRepo struct {
	mu       sync.Mutex
	versions map[string]*extraction.ModelVersion
	models   map[string]*llm.Model
	runs     map[string]*extraction.Run
	errors   map[string][]string
}

func newMemRepo() *memRepo {
	return &memRepo{
		versions: map[string]*extraction.ModelVersion{},
		models:   map[string]*llm.Model{},
		runs:     map[string]*extraction.Run{},
		errors:   map[string][]string{},
	}
}

func (r *memRepo) GetModelVersion(_ context.Context, id string) (*extraction.ModelVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mv, ok := r.versions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", extraction.ErrModelVersionNotFound, id)
	}
	return mv, nil
}

func (r *memRepo) GetLLMModel(_ context.Context, id string) (*llm.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", extraction.ErrLLMModelNotFound, id)
	}
	return m, nil
}

func (r *memRepo) StartRun(_ context.Context, job *extraction.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[job.ExtractionID] = &extraction.Run{
		ID:             job.ExtractionID,
		OwnerID:        job.OwnerID,
		ModelID:        job.ModelID,
		ModelVersionID: job.ModelVersionID,
		LLMModelID:     job.LLMModelID,
		Status:         extraction.StatusProcessing,
		CreatedAt:      time.Now().UTC(),
	}
	return nil
}

func (r *memRepo) CompleteRun(_ context.Context, id string, result json.RawMessage, usage llm.Usage) (*extraction.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, extraction.ErrRunNotFound
	}
	now := time.Now().UTC()
	run.Status = extraction.StatusCompleted
	run.Result = result
	run.Usage = &usage
	run.CompletedAt = &now
	delete(r.errors, id)
	copied := *run
	return &copied, nil
}

func (r *memRepo) FailRun(_ context.Context, id, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return extraction.ErrRunNotFound
	}
	now := time.Now().UTC()
	run.Status = extraction.StatusFailed
	run.Result = nil
	run.Usage = nil
	run.CompletedAt = &now
	r.errors[id] = []string{message}
	return nil
}

type memFiles struct {
	mu      sync.Mutex
	content map[string][]byte
	deleted []string
}

func (f *memFiles) Download(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.content[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func (f *memFiles) Delete(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, url)
	return nil
}

type memTargets struct {
	targets []sink.Target
}

func (m *memTargets) ListEnabled(_ context.Context, ownerID string, _ []string) ([]sink.Target, error) {
	var out []sink.Target
	for _, t := range m.targets {
		if t.OwnerID == ownerID && t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTargets) UpdateConfig(context.Context, string, int64, json.RawMessage) (bool, error) {
	return true, nil
}

type memDeliveries struct {
	mu     sync.Mutex
	status map[string]sink.DeliveryStatus
	seq    int
}

func (m *memDeliveries) Create(_ context.Context, targetID, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("%s-%d", targetID, m.seq)
	if m.status == nil {
		m.status = map[string]sink.DeliveryStatus{}
	}
	m.status[id] = sink.DeliveryPending
	return id, nil
}

func (m *memDeliveries) MarkProcessing(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[id] = sink.DeliveryProcessing
	return nil
}

func (m *memDeliveries) Complete(_ context.Context, id string, status sink.DeliveryStatus, _ *int, _ *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[id] = status
	return nil
}

// staticProvider returns canned model output and records the prompt.
type staticProvider struct {
	content []byte
	calls   int
	prompt  string
}

func (p *staticProvider) Generate(_ context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	p.calls++
	p.prompt = req.Prompt
	return &llm.GenerateResponse{Content: p.content, Usage: llm.Usage{InputTokens: 120, OutputTokens: 40}}, nil
}
