package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/alereyleyva/extractify/features/extraction"
	"github.com/alereyleyva/extractify/features/job"
)

type MockProcessor struct{ mock.Mock }

func (m *MockProcessor) Process(ctx context.Context, j *extraction.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *MockProcessor) Fail(ctx context.Context, extractionID, reason string) error {
	args := m.Called(ctx, extractionID, reason)
	return args.Error(0)
}

type MockJobRepo struct{ mock.Mock }

func (m *MockJobRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}
