// Package sheets reads check inputs from, and appends results to, a Google
// spreadsheet.
package sheets

import (
	"context"
	"strings"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/xkilldash9x/rolecheck/internal/checkerr"
	"github.com/xkilldash9x/rolecheck/internal/config"
)

// valueInputRaw stores values exactly as sent, without formula or date parsing.
const valueInputRaw = "RAW"

// Table is the raw cell access the workbook needs.
type Table interface {
	// ReadRange returns the rows of sheet, limited to rng when it is not empty.
	ReadRange(ctx context.Context, sheet, rng string) ([][]interface{}, error)
	// WriteRange overwrites rng on sheet with rows.
	WriteRange(ctx context.Context, sheet, rng string, rows [][]interface{}) error
	// AppendRow adds row after the last non-empty row of sheet.
	AppendRow(ctx context.Context, sheet string, row []interface{}) error
}

// Client is a Table backed by the Sheets v4 API.
type Client struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	logger        *zap.Logger
}

var _ Table = (*Client)(nil)

// NewClient authenticates with the service-account file named in cfg.
func NewClient(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*Client, error) {
	const op = "sheets.NewClient"
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, checkerr.New(checkerr.KindConfiguration, op, "spreadsheet ID is empty")
	}
	path, err := homedir.Expand(cfg.CredentialsFile)
	if err != nil {
		return nil, checkerr.Wrap(err, checkerr.KindConfiguration, op, "cannot expand credentials path")
	}

	srv, err := sheets.NewService(ctx,
		option.WithCredentialsFile(path),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, checkerr.Wrap(err, checkerr.KindExternalService, op, "failed to create Sheets service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("sheets")
	logger.Info("Sheets client initialized.", zap.String("spreadsheet_id", cfg.SpreadsheetID))

	return &Client{
		values:        srv.Spreadsheets.Values,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// A1 builds an A1-notation reference. The sheet name is always quoted so names
// with spaces, dashes or non-Latin letters resolve.
func A1(sheet, rng string) string {
	quoted := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	if rng == "" {
		return quoted
	}
	return quoted + "!" + rng
}

// ReadRange implements Table.
func (c *Client) ReadRange(ctx context.Context, sheet, rng string) ([][]interface{}, error) {
	ref := A1(sheet, rng)
	resp, err := c.values.Get(c.spreadsheetID, ref).Context(ctx).Do()
	if err != nil {
		return nil, checkerr.Wrap(err, checkerr.KindExternalService, "sheets.ReadRange", "failed to read "+ref)
	}
	c.logger.Debug("Range read.", zap.String("range", ref), zap.Int("rows", len(resp.Values)))
	return resp.Values, nil
}

// WriteRange implements Table.
func (c *Client) WriteRange(ctx context.Context, sheet, rng string, rows [][]interface{}) error {
	ref := A1(sheet, rng)
	_, err := c.values.Update(c.spreadsheetID, ref, &sheets.ValueRange{Values: rows}).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do()
	if err != nil {
		return checkerr.Wrap(err, checkerr.KindExternalService, "sheets.WriteRange", "failed to write "+ref)
	}
	c.logger.Debug("Range written.", zap.String("range", ref), zap.Int("rows", len(rows)))
	return nil
}

// AppendRow implements Table.
func (c *Client) AppendRow(ctx context.Context, sheet string, row []interface{}) error {
	ref := A1(sheet, "")
	_, err := c.values.Append(c.spreadsheetID, ref, &sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption(valueInputRaw).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return checkerr.Wrap(err, checkerr.KindExternalService, "sheets.AppendRow", "failed to append to "+ref)
	}
	return nil
}
