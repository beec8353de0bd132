// Package input loads candidate records from the files the enrichment
// pipeline produces: JSONL exports and spreadsheet drops.
package input

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/model"
)

// LoadJSONL reads one candidate record per line. Blank lines are skipped;
// a malformed line or contract violation aborts the whole load, because a
// partially read batch silently drops profiles.
func LoadJSONL(path string) ([]*model.CandidateRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "input: open jsonl")
	}
	defer f.Close()

	var records []*model.CandidateRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		rec := &model.CandidateRecord{}
		if err := json.Unmarshal([]byte(text), rec); err != nil {
			return nil, eris.Wrapf(err, "input: %s line %d", path, line)
		}
		if err := rec.Validate(); err != nil {
			return nil, eris.Wrapf(err, "input: %s line %d", path, line)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "input: scan jsonl")
	}

	zap.L().Debug("loaded jsonl input", zap.String("path", path), zap.Int("records", len(records)))
	return records, nil
}

// XLSXOptions configures the spreadsheet loader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	// Method stamps every loaded record's extraction method, since
	// spreadsheets carry no provenance of their own.
	Method string
}

// Column headers with special meaning; everything else becomes a field
// keyed by its lowercased header.
const (
	colProfileID   = "profile_id"
	colProfileName = "profile_name"
	colContentAsOf = "content_as_of"
)

// LoadXLSX reads candidate records from a spreadsheet. The first row is the
// header; each subsequent row is one profile.
func LoadXLSX(path string, opts XLSXOptions) ([]*model.CandidateRecord, error) {
	if opts.Method == "" {
		opts.Method = "spreadsheet_import"
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "input: open xlsx")
	}
	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("input: %s has no header row", path)
	}

	header := rowToStrings(sheet.Rows[0])
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var records []*model.CandidateRecord
	for i, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		if emptyRow(cells) {
			continue
		}

		rec := &model.CandidateRecord{
			Fields:           make(map[string]string),
			ExtractionMethod: opts.Method,
		}
		for j, key := range header {
			if j >= len(cells) || key == "" {
				continue
			}
			value := strings.TrimSpace(cells[j])
			switch key {
			case colProfileID:
				rec.ProfileID = value
			case colProfileName:
				rec.ProfileName = value
			case colContentAsOf:
				if value == "" {
					continue
				}
				asOf, err := parseDate(value)
				if err != nil {
					return nil, eris.Wrapf(err, "input: %s row %d", path, i+2)
				}
				rec.ContentAsOf = &asOf
			default:
				rec.Fields[key] = value
			}
		}

		if err := rec.Validate(); err != nil {
			return nil, eris.Wrapf(err, "input: %s row %d", path, i+2)
		}
		records = append(records, rec)
	}

	zap.L().Debug("loaded xlsx input", zap.String("path", path), zap.Int("records", len(records)))
	return records, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("input: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("input: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func emptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized date %q", value)
}
