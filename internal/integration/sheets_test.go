package integration

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alereyleyva/extractify/internal/crypto"
)

type MockSheetsAPI struct {
	mock.Mock
}

func (m *MockSheetsAPI) ReadRow(ctx context.Context, token, spreadsheetID, sheetName string, row int) ([]string, error) {
	args := m.Called(ctx, token, spreadsheetID, sheetName, row)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockSheetsAPI) WriteRow(ctx context.Context, token, spreadsheetID, sheetName string, row int, values []string) error {
	args := m.Called(ctx, token, spreadsheetID, sheetName, row, values)
	return args.Error(0)
}

func (m *MockSheetsAPI) AppendRow(ctx context.Context, token, spreadsheetID, sheetName string, values []string) error {
	args := m.Called(ctx, token, spreadsheetID, sheetName, values)
	return args.Error(0)
}

type MockTokens struct {
	mock.Mock
}

func (m *MockTokens) Resolve(ctx context.Context, targetID string, o *SheetsOAuth, force bool) (string, bool, error) {
	args := m.Called(ctx, targetID, o, force)
	return args.String(0), args.Bool(1), args.Error(2)
}

type MockTargetStore struct {
	mock.Mock
}

func (m *MockTargetStore) ListEnabled(ctx context.Context, ownerID string, ids []string) ([]Target, error) {
	args := m.Called(ctx, ownerID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Target), args.Error(1)
}

func (m *MockTargetStore) UpdateConfig(ctx context.Context, id string, version int64, config json.RawMessage) (bool, error) {
	args := m.Called(ctx, id, version, config)
	return args.Bool(0), args.Error(1)
}

func sheetsTarget(t *testing.T, withOAuth bool) Target {
	t.Helper()
	cfg := map[string]any{
		"spreadsheetId": "sheet-123",
		"sheetName":     "Receipts",
		"headerRow":     1,
		"modelMappings": []any{map[string]any{
			"modelVersionId": "mv-1",
			"columns": []any{
				map[string]any{"header": "Vendor", "sourcePath": "vendor", "transform": "raw"},
			},
		}},
	}
	if withOAuth {
		cfg["oauth"] = map[string]any{
			"scopes":       []string{"https://www.googleapis.com/auth/spreadsheets"},
			"refreshToken": crypto.EncryptedSecret{Version: "v1", Algorithm: "aes-256-gcm", IV: "aXY=", Tag: "dGFn", Data: "ZGF0YQ=="},
		}
	}
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	return Target{ID: "target-s", Type: TypeSheets, Enabled: true, Config: raw, Version: 7}
}

func newTestSender(api SheetsAPI, tokens Tokens, targets TargetStore) (*SheetsSender, *[]time.Duration) {
	s := NewSheetsSender(api, tokens, targets)
	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return s, &slept
}

func TestSheetsSender_AppendsWithoutHeaderWrite(t *testing.T) {
	api := new(MockSheetsAPI)
	tokens := new(MockTokens)
	targets := new(MockTargetStore)

	tokens.On("Resolve", mock.Anything, "target-s", mock.Anything, false).Return("tok", false, nil)
	api.On("ReadRow", mock.Anything, "tok", "sheet-123", "Receipts", 1).Return([]string{"Vendor"}, nil)
	api.On("AppendRow", mock.Anything, "tok", "sheet-123", "Receipts", []string{"ACME"}).Return(nil)

	s, _ := newTestSender(api, tokens, targets)
	out := s.Deliver(context.Background(), sheetsTarget(t, true), completedRun())

	assert.Equal(t, DeliverySucceeded, out.Status)
	api.AssertNotCalled(t, "WriteRow", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	targets.AssertNotCalled(t, "UpdateConfig", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSheetsSender_WritesMissingHeader(t *testing.T) {
	api := new(MockSheetsAPI)
	tokens := new(MockTokens)

	tokens.On("Resolve", mock.Anything, "target-s", mock.Anything, false).Return("tok", false, nil)
	api.On("ReadRow", mock.Anything, "tok", "sheet-123", "Receipts", 1).Return(nil, nil)
	api.On("WriteRow", mock.Anything, "tok", "sheet-123", "Receipts", 1, []string{"Vendor"}).Return(nil)
	api.On("AppendRow", mock.Anything, "tok", "sheet-123", "Receipts", []string{"ACME"}).Return(nil)

	s, _ := newTestSender(api, tokens, new(MockTargetStore))
	out := s.Deliver(context.Background(), sheetsTarget(t, true), completedRun())

	assert.Equal(t, DeliverySucceeded, out.Status)
	api.AssertExpectations(t)
}

func TestSheetsSender_ServerErrorsExhaustBudget(t *testing.T) {
	api := new(MockSheetsAPI)
	tokens := new(MockTokens)

	tokens.On("Resolve", mock.Anything, "target-s", mock.Anything, false).Return("tok", false, nil)
	api.On("ReadRow", mock.Anything, "tok", "sheet-123", "Receipts", 1).Return([]string{"Vendor"}, nil)
	api.On("AppendRow", mock.Anything, "tok", "sheet-123", "Receipts", mock.Anything).Return(&StatusError{StatusCode: 500})

	s, slept := newTestSender(api, tokens, new(MockTargetStore))
	out := s.Deliver(context.Background(), sheetsTarget(t, true), completedRun())

	assert.Equal(t, DeliveryFailed, out.Status)
	require.NotNil(t, out.ResponseStatus)
	assert.Equal(t, 500, *out.ResponseStatus)
	api.AssertNumberOfCalls(t, "AppendRow", 3)
	require.Len(t, *slept, 2)
	assert.GreaterOrEqual(t, (*slept)[0], 500*time.Millisecond)
	assert.GreaterOrEqual(t, (*slept)[1], time.Second)
}

func TestSheetsSender_TransportErrorsRetried(t *testing.T) {
	api := new(MockSheetsAPI)
	tokens := new(MockTokens)

	tokens.On("Resolve", mock.Anything, "target-s", mock.Anything, false).Return("tok", false, nil)
	api.On("ReadRow", mock.Anything, "tok", "sheet-123", "Receipts", 1).Return(nil, errors.New("dial tcp 142.250.0.1:443: i/o timeout")).Twice()
	api.On("ReadRow", mock.Anything, "tok", "sheet-123", "Receipts", 1).Return([]string{"Vendor"}, nil).Once()
	api.On("AppendRow", mock.Anything, "tok", "sheet-123", "Receipts", []string{"ACME"}).Return(nil)

	s, slept := newTestSender(api, tokens, new(MockTargetStore))
	out := s.Deliver(context.Background(), sheetsTarget(t, true), completedRun())

	assert.Equal(t, DeliverySucceeded, out.Status)
	api.AssertNumberOfCalls(t, "ReadRow", 3)
	assert.Len(t, *slept, 2)
}

func TestSheetsSender_PermanentTransportErrorStops(t *testing.T) {
	api := new(MockSheetsAPI)
	tokens := new(MockTokens)

	tokens.On("Resolve", mock.Anything, "target-s", mock.Anything, false).Return("tok", false, nil)
	api.On("ReadRow", mock.Anything, "tok", "sheet-123", "Receipts", 1).Return(nil, errors.New("decode sheets response: unexpected EOF"))

	s, slept := newTestSender(api, tokens, new(MockTargetStore))
	out := s.Deliver(context.Background(), sheetsTarget(t, true), completedRun())

	assert.Equal(t, DeliveryFailed, out.Status)
	assert.Nil(t, out.ResponseStatus)
	api.AssertNumberOfCalls(t, "ReadRow", 1)
	assert.Empty(t, *slept)
}

func TestSheetsSender_UnauthorizedForcesRefresh(t *testing.T) {
	api := new(MockSheetsAPI)
	tokens := new(MockTokens)
	targets := new(MockTargetStore)

	tokens.On("Resolve", mock.Anything, "target-s", mock.Anything, false).Return("stale", false, nil).Once()
	tokens.On("Resolve", mock.Anything, "target-s", mock.Anything, true).Return("fresh", true, nil).Once()
	api.On("ReadRow", mock.Anything, "stale", "sheet-123", "Receipts", 1).Return(nil, &StatusError{StatusCode: 401})
	api.On("ReadRow", mock.Anything, "fresh", "sheet-123", "Receipts", 1).Return([]string{"Vendor"}, nil)
	api.On("AppendRow", mock.Anything, "fresh", "sheet-123", "Receipts", []string{"ACME"}).Return(nil)
	targets.On("UpdateConfig", mock.Anything, "target-s", int64(7), mock.MatchedBy(func(raw json.RawMessage) bool {
		var cfg map[string]any
		return json.Unmarshal(raw, &cfg) == nil && cfg["oauth"] != nil && cfg["spreadsheetId"] == "sheet-123"
	})).Return(true, nil)

	s, slept := newTestSender(api, tokens, targets)
	out := s.Deliver(context.Background(), sheetsTarget(t, true), completedRun())

	assert.Equal(t, DeliverySucceeded, out.Status)
	assert.Empty(t, *slept)
	tokens.AssertExpectations(t)
	targets.AssertExpectations(t)
}

func TestSheetsSender_ClientErrorStops(t *testing.T) {
	api := new(MockSheetsAPI)
	tokens := new(MockTokens)

	tokens.On("Resolve", mock.Anything, "target-s", mock.Anything, false).Return("tok", false, nil)
	api.On("ReadRow", mock.Anything, "tok", "sheet-123", "Receipts", 1).Return(nil, &StatusError{StatusCode: 404, Body: "not found"})

	s, _ := newTestSender(api, tokens, new(MockTargetStore))
	out := s.Deliver(context.Background(), sheetsTarget(t, true), completedRun())

	assert.Equal(t, DeliveryFailed, out.Status)
	assert.Equal(t, 404, *out.ResponseStatus)
	api.AssertNumberOfCalls(t, "ReadRow", 1)
}

func TestSheetsSender_Preconditions(t *testing.T) {
	t.Run("Missing OAuth", func(t *testing.T) {
		tokens := new(MockTokens)
		s, _ := newTestSender(new(MockSheetsAPI), tokens, new(MockTargetStore))
		out := s.Deliver(context.Background(), sheetsTarget(t, false), completedRun())

		assert.ErrorIs(t, out.Err, ErrMissingOAuth)
		tokens.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Missing Mapping", func(t *testing.T) {
		run := completedRun()
		run.ModelVersionID = "mv-other"
		s, _ := newTestSender(new(MockSheetsAPI), new(MockTokens), new(MockTargetStore))
		out := s.Deliver(context.Background(), sheetsTarget(t, true), run)

		assert.Equal(t, DeliveryFailed, out.Status)
		assert.ErrorIs(t, out.Err, ErrMissingMapping)
	})
}
