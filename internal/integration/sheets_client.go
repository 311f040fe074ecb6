package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	valueInputRaw  = "RAW"
	insertDataRows = "INSERT_ROWS"
)

// SheetsAPI is the spreadsheet surface used by sheets delivery. Every call
// is authorized with a bearer access token.
type SheetsAPI interface {
	ReadRow(ctx context.Context, token, spreadsheetID, sheetName string, row int) ([]string, error)
	WriteRow(ctx context.Context, token, spreadsheetID, sheetName string, row int, values []string) error
	AppendRow(ctx context.Context, token, spreadsheetID, sheetName string, values []string) error
}

// SheetsClient implements SheetsAPI on the Sheets v4 REST API.
type SheetsClient struct {
	opts []option.ClientOption
}

// NewSheetsClient accepts extra client options, e.g. option.WithEndpoint.
func NewSheetsClient(opts ...option.ClientOption) *SheetsClient {
	return &SheetsClient{opts: opts}
}

func (c *SheetsClient) service(ctx context.Context, token string) (*sheets.Service, error) {
	opts := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})),
	}, c.opts...)
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return srv, nil
}

func (c *SheetsClient) ReadRow(ctx context.Context, token, spreadsheetID, sheetName string, row int) ([]string, error) {
	srv, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}
	resp, err := srv.Spreadsheets.Values.Get(spreadsheetID, rowRange(sheetName, row)).Context(ctx).Do()
	if err != nil {
		return nil, apiError(err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	cells := make([]string, 0, len(resp.Values[0]))
	for _, v := range resp.Values[0] {
		cells = append(cells, strings.TrimSpace(fmt.Sprint(v)))
	}
	return cells, nil
}

func (c *SheetsClient) WriteRow(ctx context.Context, token, spreadsheetID, sheetName string, row int, values []string) error {
	srv, err := c.service(ctx, token)
	if err != nil {
		return err
	}
	_, err = srv.Spreadsheets.Values.Update(spreadsheetID, rowRange(sheetName, row), valueRange(values)).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do()
	return apiError(err)
}

func (c *SheetsClient) AppendRow(ctx context.Context, token, spreadsheetID, sheetName string, values []string) error {
	srv, err := c.service(ctx, token)
	if err != nil {
		return err
	}
	_, err = srv.Spreadsheets.Values.Append(spreadsheetID, quoteSheet(sheetName), valueRange(values)).
		ValueInputOption(valueInputRaw).
		InsertDataOption(insertDataRows).
		Context(ctx).
		Do()
	return apiError(err)
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func rowRange(sheetName string, row int) string {
	return fmt.Sprintf("%s!%d:%d", quoteSheet(sheetName), row, row)
}

func valueRange(values []string) *sheets.ValueRange {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return &sheets.ValueRange{Values: [][]interface{}{row}}
}

// apiError maps googleapi errors onto StatusError so the delivery loop can
// branch on the HTTP code.
func apiError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &StatusError{StatusCode: gerr.Code, Body: truncate(gerr.Message, maxErrorBody)}
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
