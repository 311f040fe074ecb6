package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestSheetsClient_RoundTrip(t *testing.T) {
	var appended, updated map[string]any
	var appendQuery, updateQuery string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodGet:
			assert.Contains(t, r.URL.Path, "/v4/spreadsheets/sheet-1/values/'My Sheet'!1:1")
			w.Write([]byte(`{"range":"'My Sheet'!A1:B1","values":[["Vendor"," Total "]]}`))
		case r.Method == http.MethodPut:
			updateQuery = r.URL.RawQuery
			require.NoError(t, json.NewDecoder(r.Body).Decode(&updated))
			w.Write([]byte(`{}`))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
			appendQuery = r.URL.RawQuery
			require.NoError(t, json.NewDecoder(r.Body).Decode(&appended))
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	c := NewSheetsClient(option.WithEndpoint(ts.URL + "/"))
	ctx := context.Background()

	header, err := c.ReadRow(ctx, "tok", "sheet-1", "My Sheet", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Vendor", "Total"}, header)

	require.NoError(t, c.WriteRow(ctx, "tok", "sheet-1", "My Sheet", 1, []string{"Vendor", "Total", "Date"}))
	assert.Contains(t, updateQuery, "valueInputOption=RAW")
	assert.Equal(t, []any{[]any{"Vendor", "Total", "Date"}}, updated["values"])

	require.NoError(t, c.AppendRow(ctx, "tok", "sheet-1", "My Sheet", []string{"ACME", "12.5", ""}))
	assert.Contains(t, appendQuery, "insertDataOption=INSERT_ROWS")
	assert.Contains(t, appendQuery, "valueInputOption=RAW")
	assert.Equal(t, []any{[]any{"ACME", "12.5", ""}}, appended["values"])
}

func TestSheetsClient_MapsStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer ts.Close()

	c := NewSheetsClient(option.WithEndpoint(ts.URL + "/"))
	err := c.AppendRow(context.Background(), "tok", "sheet-1", "Sheet1", []string{"x"})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.True(t, se.IsRetryable())
	assert.Contains(t, se.Body, "Quota exceeded")
}
