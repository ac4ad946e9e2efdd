package sheets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/checkerr"
	"github.com/xkilldash9x/rolecheck/internal/config"
	"github.com/xkilldash9x/rolecheck/internal/results"
	"github.com/xkilldash9x/rolecheck/internal/validation"
)

// Column names of the profiles sheet, after lowercasing.
const (
	colSerialNumber = "serial_number"
	colEmail        = "email"
	colPassword     = "password"
	colUsername     = "username"
)

// Workbook maps the spreadsheet's tabs onto the checker's inputs and outputs.
// Reads are unsynchronized; appends to the results tab are serialized.
type Workbook struct {
	table  Table
	cfg    config.SheetsConfig
	logger *zap.Logger

	writeMu sync.Mutex
}

var _ results.Sink = (*Workbook)(nil)

// NewWorkbook wraps table with the tab names from cfg.
func NewWorkbook(table Table, cfg config.SheetsConfig, logger *zap.Logger) *Workbook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workbook{
		table:  table,
		cfg:    cfg,
		logger: logger.Named("workbook"),
	}
}

// ParseRowToMap pairs row cells with headers. Keys are trimmed and lowercased,
// values are stringified, and headers past the end of row are omitted.
func ParseRowToMap(headers, row []interface{}) map[string]string {
	out := make(map[string]string, len(headers))
	for i, h := range headers {
		if i >= len(row) {
			break
		}
		key := strings.ToLower(strings.TrimSpace(cellString(h)))
		out[key] = cellString(row[i])
	}
	return out
}

func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func blankRow(row []interface{}) bool {
	for _, v := range row {
		if strings.TrimSpace(cellString(v)) != "" {
			return false
		}
	}
	return true
}

// rows reads sheet and returns its data rows keyed by header, skipping blank rows.
func (w *Workbook) rows(ctx context.Context, sheet string) ([]map[string]string, error) {
	data, err := w.table.ReadRange(ctx, sheet, "")
	if err != nil {
		return nil, err
	}
	if len(data) < 2 {
		w.logger.Warn("Sheet is empty or has only headers.", zap.String("sheet", sheet))
		return nil, nil
	}
	headers := data[0]
	out := make([]map[string]string, 0, len(data)-1)
	for _, row := range data[1:] {
		if blankRow(row) {
			continue
		}
		out = append(out, ParseRowToMap(headers, row))
	}
	return out, nil
}

// ProfileRows returns every non-blank row of the profiles tab.
func (w *Workbook) ProfileRows(ctx context.Context) ([]map[string]string, error) {
	return w.rows(ctx, w.cfg.ProfilesSheet)
}

func rowToProfile(row map[string]string) schemas.Profile {
	return schemas.Profile{
		SerialNumber: strings.TrimSpace(row[colSerialNumber]),
		Email:        strings.TrimSpace(row[colEmail]),
		Password:     row[colPassword],
		Username:     strings.TrimSpace(row[colUsername]),
	}
}

// Profiles returns the valid profiles of the profiles tab in sheet order.
// Rows missing a serial number, email or password are skipped with a warning.
func (w *Workbook) Profiles(ctx context.Context) ([]schemas.Profile, error) {
	rows, err := w.ProfileRows(ctx)
	if err != nil {
		return nil, err
	}
	var out []schemas.Profile
	for i, row := range rows {
		p := rowToProfile(row)
		if err := validation.Profile(p); err != nil {
			w.logger.Warn("Skipping invalid profile row.", zap.Int("row", i+2), zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	w.logger.Debug("Profiles loaded.", zap.Int("valid", len(out)), zap.Int("rows", len(rows)))
	return out, nil
}

// ServerLinks returns the http(s) links in the first column of the links tab.
func (w *Workbook) ServerLinks(ctx context.Context) ([]string, error) {
	data, err := w.table.ReadRange(ctx, w.cfg.LinksSheet, "")
	if err != nil {
		return nil, err
	}
	var links []string
	for i, row := range data {
		if i == 0 || len(row) == 0 {
			continue
		}
		link := strings.TrimSpace(cellString(row[0]))
		if strings.HasPrefix(link, "http") {
			links = append(links, link)
		}
	}
	w.logger.Debug("Server links loaded.", zap.Int("count", len(links)))
	return links, nil
}

// Usernames returns the usernames to check from the profiles tab, in sheet order
// with duplicates (after normalization) dropped.
func (w *Workbook) Usernames(ctx context.Context) ([]string, error) {
	rows, err := w.ProfileRows(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(rows))
	var out []string
	for _, row := range rows {
		name := strings.TrimSpace(row[colUsername])
		if name == "" {
			continue
		}
		key := results.NormalizeUsername(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// CheckProfiles returns the row metadata used to key each saved result, by
// username.
func (w *Workbook) CheckProfiles(ctx context.Context) (map[string]schemas.SaveProfile, error) {
	rows, err := w.ProfileRows(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]schemas.SaveProfile, len(rows))
	for _, row := range rows {
		name := strings.TrimSpace(row[colUsername])
		if name == "" {
			continue
		}
		if _, ok := out[name]; ok {
			continue
		}
		out[name] = schemas.SaveProfile{
			Username:     name,
			SerialNumber: strings.TrimSpace(row[colSerialNumber]),
		}
	}
	return out, nil
}

// Save appends rec to the results tab. Concurrent calls are serialized.
func (w *Workbook) Save(ctx context.Context, rec schemas.Record) error {
	if strings.TrimSpace(rec.Username) == "" {
		return checkerr.New(checkerr.KindExternalService, "sheets.Save", "record has no username")
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.table.AppendRow(ctx, w.cfg.ResultsSheet, rec.Row()); err != nil {
		return err
	}
	w.logger.Debug("Result row appended.", zap.String("username", rec.Username))
	return nil
}
